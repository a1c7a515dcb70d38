// Package mapping builds gateway request field sets from the typed inputs of
// the uniform operations.
package mapping

import (
	"errors"
	"fmt"

	"github.com/yourorg/payment-gateway/internal/request"
)

var (
	// ErrReferenceRequired is returned when authorizing without Options.Reference.
	ErrReferenceRequired = errors.New("reference is required")
	// ErrAuthorizationRequired is returned for a modification without the
	// original authorization handle.
	ErrAuthorizationRequired = errors.New("authorization is required")
)

// Envelope is the reference field mapper. It produces the JSON envelope used
// by the builtin adyen profile: a merchant account, an amount object in minor
// units and either a card or a stored payment-detail reference.
type Envelope struct {
	// MerchantAccount is sent unless Options.MerchantAccount overrides it.
	MerchantAccount string
}

// Authorize builds the request for an authorization.
func (e Envelope) Authorize(money request.Money, inst request.Instrument, opts request.Options) (request.Request, error) {
	if opts.Reference == "" {
		return request.Request{}, ErrReferenceRequired
	}
	if err := validate(money, opts); err != nil {
		return request.Request{}, err
	}
	if err := inst.Validate(); err != nil {
		return request.Request{}, err
	}

	post := e.base(opts)
	post["reference"] = opts.Reference
	post["amount"] = amount(money, opts)

	if inst.Card != nil {
		card := map[string]any{
			"expiryMonth": inst.Card.Month,
			"expiryYear":  inst.Card.Year,
			"holderName":  inst.Card.Name,
			"number":      inst.Card.Number,
			"cvc":         inst.Card.CVC,
		}
		if addr := address(opts.BillingAddress); addr != nil {
			card["billingAddress"] = addr
		}
		post["card"] = card
	} else {
		post["selectedRecurringDetailReference"] = inst.Reference
		post["shopperInteraction"] = "ContAuth"
		post["recurring"] = map[string]any{"contract": "RECURRING"}
	}

	addRiskData(post, opts)
	addExtraData(post, opts)
	return request.New(post), nil
}

// Capture builds the request capturing money against an authorization.
func (e Envelope) Capture(money request.Money, authorization string, opts request.Options) (request.Request, error) {
	return e.modification(money, authorization, opts)
}

// Refund builds the request refunding money against an authorization.
func (e Envelope) Refund(money request.Money, authorization string, opts request.Options) (request.Request, error) {
	return e.modification(money, authorization, opts)
}

// Void builds the request cancelling an authorization.
func (e Envelope) Void(authorization string, opts request.Options) (request.Request, error) {
	if authorization == "" {
		return request.Request{}, ErrAuthorizationRequired
	}
	if err := opts.Validate(); err != nil {
		return request.Request{}, err
	}
	post := e.base(opts)
	addReferences(post, authorization, opts)
	return request.New(post), nil
}

func (e Envelope) modification(money request.Money, authorization string, opts request.Options) (request.Request, error) {
	if authorization == "" {
		return request.Request{}, ErrAuthorizationRequired
	}
	if err := validate(money, opts); err != nil {
		return request.Request{}, err
	}
	post := e.base(opts)
	post["modificationAmount"] = amount(money, opts)
	addReferences(post, authorization, opts)
	return request.New(post), nil
}

func (e Envelope) base(opts request.Options) map[string]any {
	account := e.MerchantAccount
	if opts.MerchantAccount != "" {
		account = opts.MerchantAccount
	}
	return map[string]any{"merchantAccount": account}
}

func validate(money request.Money, opts request.Options) error {
	if err := money.Validate(); err != nil {
		return fmt.Errorf("money: %w", err)
	}
	return opts.Validate()
}

func amount(money request.Money, opts request.Options) map[string]any {
	currency := money.Currency
	if opts.Currency != "" {
		currency = opts.Currency
	}
	return map[string]any{"value": money.MinorUnits(), "currency": currency}
}

func addReferences(post map[string]any, authorization string, opts request.Options) {
	post["originalReference"] = authorization
	if opts.Reference != "" {
		post["reference"] = opts.Reference
	}
}

func addRiskData(post map[string]any, opts request.Options) {
	if n := opts.ShopperName; n != nil {
		name := map[string]any{}
		setString(name, "firstName", n.FirstName)
		setString(name, "lastName", n.LastName)
		setString(name, "gender", n.Gender)
		post["shopperName"] = name
	}
	setString(post, "shopperEmail", opts.ShopperEmail)
	setString(post, "shopperIP", opts.ShopperIP)
	setString(post, "shopperReference", opts.ShopperReference)
	if opts.FraudOffset != nil {
		post["fraudOffset"] = *opts.FraudOffset
	}
	setString(post, "dateOfBirth", opts.DateOfBirth)
	setString(post, "telephoneNumber", opts.TelephoneNumber)
	setString(post, "deliveryDate", opts.DeliveryDate)
	setString(post, "deviceFingerprint", opts.DeviceFingerprint)
	if addr := address(opts.DeliveryAddress); addr != nil {
		post["deliveryAddress"] = addr
	}
	if addr := address(opts.BillingAddress); addr != nil {
		post["billingAddress"] = addr
	}
}

// addExtraData runs after the instrument is mapped, so explicit options win
// over the recurring defaults.
func addExtraData(post map[string]any, opts request.Options) {
	setString(post, "selectedBrand", opts.SelectedBrand)
	setString(post, "merchantOrderReference", opts.MerchantOrderReference)
	setString(post, "shopperInteraction", opts.ShopperInteraction)
	if opts.Recurring != nil {
		post["recurring"] = map[string]any{"contract": opts.Recurring.Contract}
	}
	if opts.CaptureDelayHours != nil {
		post["captureDelayHours"] = *opts.CaptureDelayHours
	}
	setString(post, "recurringProcessingModel", opts.RecurringProcessingModel)
}

func address(a *request.Address) map[string]any {
	if a == nil {
		return nil
	}
	addr := map[string]any{}
	setString(addr, "street", a.Address1)
	setString(addr, "houseNumberOrName", a.Address2)
	setString(addr, "postalCode", a.Zip)
	setString(addr, "city", a.City)
	setString(addr, "stateOrProvince", a.State)
	setString(addr, "country", a.Country)
	return addr
}

func setString(m map[string]any, key, value string) {
	if value != "" {
		m[key] = value
	}
}
