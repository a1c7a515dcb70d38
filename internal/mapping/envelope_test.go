package mapping

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/payment-gateway/internal/request"
)

func usd(t *testing.T, amount string) request.Money {
	t.Helper()
	m, err := request.NewMoney(amount, "USD")
	require.NoError(t, err)
	return m
}

func visa() request.Instrument {
	return request.Instrument{Card: &request.Card{
		Number: "4111111111111111", Month: 8, Year: 2030, Name: "John Smith", CVC: "737",
	}}
}

func TestEnvelope_AuthorizeCard(t *testing.T) {
	env := Envelope{MerchantAccount: "AcmeCOM"}
	opts := request.Options{
		Reference:      "order-1",
		ShopperEmail:   "john@example.com",
		ShopperIP:      "77.110.174.153",
		BillingAddress: &request.Address{Address1: "Simon Carmiggeltstraat", Address2: "6-50", Zip: "1011DJ", City: "Amsterdam", Country: "NL"},
	}

	req, err := env.Authorize(usd(t, "10.00"), visa(), opts)
	require.NoError(t, err)
	fields := req.Fields()

	assert.Equal(t, "AcmeCOM", fields["merchantAccount"])
	assert.Equal(t, "order-1", fields["reference"])
	assert.Equal(t, map[string]any{"value": int64(1000), "currency": "USD"}, fields["amount"])
	assert.Equal(t, "john@example.com", fields["shopperEmail"])
	assert.Equal(t, "77.110.174.153", fields["shopperIP"])

	card := fields["card"].(map[string]any)
	assert.Equal(t, "4111111111111111", card["number"])
	assert.Equal(t, 8, card["expiryMonth"])
	assert.Equal(t, 2030, card["expiryYear"])
	assert.Equal(t, "John Smith", card["holderName"])
	assert.Equal(t, "737", card["cvc"])
	assert.Equal(t, map[string]any{
		"street": "Simon Carmiggeltstraat", "houseNumberOrName": "6-50",
		"postalCode": "1011DJ", "city": "Amsterdam", "country": "NL",
	}, card["billingAddress"])

	_, hasRecurring := fields["selectedRecurringDetailReference"]
	assert.False(t, hasRecurring)
}

func TestEnvelope_AuthorizeStoredReference(t *testing.T) {
	env := Envelope{MerchantAccount: "AcmeCOM"}
	inst := request.Instrument{Reference: "8315202663743702"}

	req, err := env.Authorize(usd(t, "1.00"), inst, request.Options{Reference: "sub-7", ShopperReference: "shopper-1"})
	require.NoError(t, err)
	fields := req.Fields()

	assert.Equal(t, "8315202663743702", fields["selectedRecurringDetailReference"])
	assert.Equal(t, "ContAuth", fields["shopperInteraction"])
	assert.Equal(t, map[string]any{"contract": "RECURRING"}, fields["recurring"])
	assert.Equal(t, "shopper-1", fields["shopperReference"])
	_, hasCard := fields["card"]
	assert.False(t, hasCard)
}

func TestEnvelope_ExtraDataOverridesRecurringDefaults(t *testing.T) {
	env := Envelope{MerchantAccount: "AcmeCOM"}
	delay := 48
	opts := request.Options{
		Reference:                "sub-8",
		ShopperInteraction:       "Ecommerce",
		Recurring:                &request.Recurring{Contract: "ONECLICK"},
		CaptureDelayHours:        &delay,
		RecurringProcessingModel: "Subscription",
		MerchantAccount:          "AcmeEU",
		Currency:                 "EUR",
	}

	req, err := env.Authorize(usd(t, "2.50"), request.Instrument{Reference: "8315"}, opts)
	require.NoError(t, err)
	fields := req.Fields()

	assert.Equal(t, "Ecommerce", fields["shopperInteraction"])
	assert.Equal(t, map[string]any{"contract": "ONECLICK"}, fields["recurring"])
	assert.Equal(t, 48, fields["captureDelayHours"])
	assert.Equal(t, "Subscription", fields["recurringProcessingModel"])
	assert.Equal(t, "AcmeEU", fields["merchantAccount"])
	assert.Equal(t, map[string]any{"value": int64(250), "currency": "EUR"}, fields["amount"])
}

func TestEnvelope_AuthorizeValidation(t *testing.T) {
	env := Envelope{MerchantAccount: "AcmeCOM"}

	_, err := env.Authorize(usd(t, "1.00"), visa(), request.Options{})
	assert.ErrorIs(t, err, ErrReferenceRequired)

	_, err = env.Authorize(usd(t, "1.00"), request.Instrument{}, request.Options{Reference: "r"})
	assert.ErrorContains(t, err, "payment instrument is required")

	_, err = env.Authorize(request.Money{Currency: "US"}, visa(), request.Options{Reference: "r"})
	assert.ErrorContains(t, err, "money:")

	subCent := request.Money{Amount: decimal.RequireFromString("10.005"), Currency: "USD"}
	_, err = env.Authorize(subCent, visa(), request.Options{Reference: "r"})
	assert.ErrorContains(t, err, "more than 2 decimal places")
	_, err = env.Capture(subCent, "8813", request.Options{})
	assert.ErrorContains(t, err, "more than 2 decimal places")

	huge := request.Money{Amount: decimal.RequireFromString("92233720368547758.08"), Currency: "USD"}
	_, err = env.Refund(huge, "8813", request.Options{})
	assert.ErrorContains(t, err, "too large")
}

func TestEnvelope_Modifications(t *testing.T) {
	env := Envelope{MerchantAccount: "AcmeCOM"}

	capture, err := env.Capture(usd(t, "10.00"), "8814", request.Options{Reference: "order-1"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"merchantAccount":    "AcmeCOM",
		"modificationAmount": map[string]any{"value": int64(1000), "currency": "USD"},
		"originalReference":  "8814",
		"reference":          "order-1",
	}, capture.Fields())

	refund, err := env.Refund(usd(t, "4.00"), "8815", request.Options{})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"merchantAccount":    "AcmeCOM",
		"modificationAmount": map[string]any{"value": int64(400), "currency": "USD"},
		"originalReference":  "8815",
	}, refund.Fields())

	void, err := env.Void("8816", request.Options{})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"merchantAccount": "AcmeCOM", "originalReference": "8816"}, void.Fields())
}

func TestEnvelope_ModificationsRequireAuthorization(t *testing.T) {
	env := Envelope{MerchantAccount: "AcmeCOM"}

	_, err := env.Capture(usd(t, "1.00"), "", request.Options{})
	assert.ErrorIs(t, err, ErrAuthorizationRequired)
	_, err = env.Refund(usd(t, "1.00"), "", request.Options{})
	assert.ErrorIs(t, err, ErrAuthorizationRequired)
	_, err = env.Void("", request.Options{})
	assert.ErrorIs(t, err, ErrAuthorizationRequired)
}
