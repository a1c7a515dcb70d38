package request

import (
	"errors"
	"fmt"
	"strings"
)

// Card is a raw card payment instrument.
type Card struct {
	Number string `json:"number"`
	Month  int    `json:"month"`
	Year   int    `json:"year"`
	Name   string `json:"name"`
	CVC    string `json:"cvc"`
}

// Validate requires every card field, as gateways reject partial cards.
func (c Card) Validate() error {
	var missing []string
	if strings.TrimSpace(c.Number) == "" {
		missing = append(missing, "number")
	}
	if c.Month < 1 || c.Month > 12 {
		missing = append(missing, "month")
	}
	if c.Year <= 0 {
		missing = append(missing, "year")
	}
	if strings.TrimSpace(c.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(c.CVC) == "" {
		missing = append(missing, "cvc")
	}
	if len(missing) > 0 {
		return fmt.Errorf("card is missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// Instrument is either a card or a stored payment-detail reference from an
// earlier recurring contract. Exactly one must be set.
type Instrument struct {
	Card      *Card  `json:"card,omitempty"`
	Reference string `json:"stored_reference,omitempty"`
}

func (i Instrument) Validate() error {
	switch {
	case i.Card != nil && i.Reference != "":
		return errors.New("payment instrument must be a card or a stored reference, not both")
	case i.Card != nil:
		return i.Card.Validate()
	case i.Reference != "":
		return nil
	default:
		return errors.New("payment instrument is required")
	}
}

// Address is a postal address.
type Address struct {
	Address1 string `json:"address1,omitempty"`
	Address2 string `json:"address2,omitempty"`
	City     string `json:"city,omitempty"`
	State    string `json:"state,omitempty"`
	Zip      string `json:"zip,omitempty"`
	Country  string `json:"country,omitempty"`
}

// ShopperName is the cardholder's structured name used for risk checks.
type ShopperName struct {
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Gender    string `json:"gender,omitempty"`
}

// Recurring names the recurring contract a payment belongs to.
type Recurring struct {
	Contract string `json:"contract"`
}

// Options enumerates every optional input the uniform operations accept.
// Zero values mean "not sent".
type Options struct {
	// Reference is the merchant's own reference for the payment. Authorize
	// requires it; modifications send it along when set.
	Reference       string `json:"reference,omitempty"`
	MerchantAccount string `json:"merchant_account,omitempty"`
	// Currency overrides the money's currency on the wire.
	Currency string `json:"currency,omitempty"`

	ShopperName       *ShopperName `json:"shopper_name,omitempty"`
	ShopperEmail      string       `json:"shopper_email,omitempty"`
	ShopperIP         string       `json:"shopper_ip,omitempty"`
	ShopperReference  string       `json:"shopper_reference,omitempty"`
	FraudOffset       *int         `json:"fraud_offset,omitempty"`
	DateOfBirth       string       `json:"date_of_birth,omitempty"`
	TelephoneNumber   string       `json:"telephone_number,omitempty"`
	DeliveryDate      string       `json:"delivery_date,omitempty"`
	DeviceFingerprint string       `json:"device_fingerprint,omitempty"`
	BillingAddress    *Address     `json:"billing_address,omitempty"`
	DeliveryAddress   *Address     `json:"delivery_address,omitempty"`

	SelectedBrand            string     `json:"selected_brand,omitempty"`
	MerchantOrderReference   string     `json:"merchant_order_reference,omitempty"`
	ShopperInteraction       string     `json:"shopper_interaction,omitempty"`
	Recurring                *Recurring `json:"recurring,omitempty"`
	CaptureDelayHours        *int       `json:"capture_delay_hours,omitempty"`
	RecurringProcessingModel string     `json:"recurring_processing_model,omitempty"`
}

// Validate checks the options that have a fixed format.
func (o Options) Validate() error {
	if o.Currency != "" && len(o.Currency) != 3 {
		return fmt.Errorf("currency must be a 3-letter code, got %q", o.Currency)
	}
	if o.CaptureDelayHours != nil && *o.CaptureDelayHours < 0 {
		return fmt.Errorf("capture_delay_hours must not be negative, got %d", *o.CaptureDelayHours)
	}
	return nil
}
