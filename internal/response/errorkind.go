package response

import "fmt"

// ErrorKind is a gateway-independent classification of a decline.
type ErrorKind string

const (
	IncorrectNumber   ErrorKind = "incorrect_number"
	InvalidNumber     ErrorKind = "invalid_number"
	InvalidExpiryDate ErrorKind = "invalid_expiry_date"
	InvalidCVC        ErrorKind = "invalid_cvc"
	ExpiredCard       ErrorKind = "expired_card"
	IncorrectCVC      ErrorKind = "incorrect_cvc"
	IncorrectZip      ErrorKind = "incorrect_zip"
	IncorrectAddress  ErrorKind = "incorrect_address"
	IncorrectPIN      ErrorKind = "incorrect_pin"
	CardDeclined      ErrorKind = "card_declined"
	ProcessingError   ErrorKind = "processing_error"
	CallIssuer        ErrorKind = "call_issuer"
	PickupCard        ErrorKind = "pickup_card"
)

var knownKinds = map[ErrorKind]struct{}{
	IncorrectNumber:   {},
	InvalidNumber:     {},
	InvalidExpiryDate: {},
	InvalidCVC:        {},
	ExpiredCard:       {},
	IncorrectCVC:      {},
	IncorrectZip:      {},
	IncorrectAddress:  {},
	IncorrectPIN:      {},
	CardDeclined:      {},
	ProcessingError:   {},
	CallIssuer:        {},
	PickupCard:        {},
}

// ParseErrorKind validates s against the closed set of error kinds.
func ParseErrorKind(s string) (ErrorKind, error) {
	kind := ErrorKind(s)
	if _, ok := knownKinds[kind]; !ok {
		return "", fmt.Errorf("unknown error kind %q", s)
	}
	return kind, nil
}
