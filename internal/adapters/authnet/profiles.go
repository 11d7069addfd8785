package authnet

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/recurpay/billing-gateway/internal/domain"
	"github.com/recurpay/billing-gateway/internal/domain/ports"
)

// Customer profiles.

type customerProfile struct {
	MerchantCustomerID string `json:"merchantCustomerId,omitempty"`
	Description        string `json:"description,omitempty"`
	Email              string `json:"email,omitempty"`
}

type createCustomerProfileRequest struct {
	MerchantAuthentication merchantAuthentication `json:"merchantAuthentication"`
	Profile                customerProfile        `json:"profile"`
}

type createCustomerProfileEnvelope struct {
	CreateCustomerProfileRequest createCustomerProfileRequest `json:"createCustomerProfileRequest"`
}

type createCustomerProfileResponse struct {
	CustomerProfileID string      `json:"customerProfileId"`
	Messages          apiMessages `json:"messages"`
}

// The duplicate-record error embeds the existing id in free text. There is
// no structured field for it.
var duplicateRecordID = regexp.MustCompile(`ID (\d+)`)

// CreateCustomerProfile registers a customer at the processor. Creating a
// profile that already exists resolves to the existing profile id.
func (g *Gateway) CreateCustomerProfile(ctx context.Context, req *ports.CustomerProfileRequest) (*ports.Outcome, error) {
	envelope := createCustomerProfileEnvelope{
		CreateCustomerProfileRequest: createCustomerProfileRequest{
			MerchantAuthentication: g.auth(),
			Profile: customerProfile{
				MerchantCustomerID: req.ExternalReference,
				Description:        req.FirstName + " " + req.LastName,
				Email:              req.Email,
			},
		},
	}

	body, err := g.makeRequest(ctx, "createCustomerProfileRequest", envelope)
	if err != nil {
		return faultOutcome(err), nil
	}

	var resp createCustomerProfileResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal customer profile response: %w", err)
	}

	if !resp.Messages.ok() {
		if id, ok := duplicateID(resp.Messages); ok {
			return ports.NewApprovedOutcome(ports.Approval{ExternalID: id}, "", body), nil
		}
		return envelopeFault(resp.Messages, body), nil
	}

	return ports.NewApprovedOutcome(ports.Approval{ExternalID: resp.CustomerProfileID}, "", body), nil
}

// Payment profiles.

type paymentProfilePayload struct {
	BillTo  *billToBlock `json:"billTo,omitempty"`
	Payment paymentBlock `json:"payment"`
}

type createPaymentProfileRequest struct {
	MerchantAuthentication merchantAuthentication `json:"merchantAuthentication"`
	CustomerProfileID      string                 `json:"customerProfileId"`
	PaymentProfile         paymentProfilePayload  `json:"paymentProfile"`
	ValidationMode         string                 `json:"validationMode,omitempty"`
}

type createPaymentProfileEnvelope struct {
	CreateCustomerPaymentProfileRequest createPaymentProfileRequest `json:"createCustomerPaymentProfileRequest"`
}

type createPaymentProfileResponse struct {
	CustomerPaymentProfileID string      `json:"customerPaymentProfileId"`
	Messages                 apiMessages `json:"messages"`
}

// CreatePaymentProfile tokenizes a card under an existing customer profile
func (g *Gateway) CreatePaymentProfile(ctx context.Context, req *ports.PaymentProfileRequest) (*ports.Outcome, error) {
	if req.Card == nil {
		return nil, fmt.Errorf("payment profile request has no card")
	}

	validationMode := "liveMode"
	if g.config.Environment != EnvironmentProduction {
		validationMode = "testMode"
	}

	payload := paymentProfilePayload{
		Payment: paymentBlock{CreditCard: creditCard{
			CardNumber:     req.Card.Number,
			ExpirationDate: formatExpiry(req.Card.ExpiryMonth, req.Card.ExpiryYear),
			CardCode:       req.Card.CVV,
		}},
	}
	if req.Billing != nil {
		payload.BillTo = buildBillTo(req.Card, req.Billing)
	}

	envelope := createPaymentProfileEnvelope{
		CreateCustomerPaymentProfileRequest: createPaymentProfileRequest{
			MerchantAuthentication: g.auth(),
			CustomerProfileID:      req.CustomerProfileID,
			PaymentProfile:         payload,
			ValidationMode:         validationMode,
		},
	}

	body, err := g.makeRequest(ctx, "createCustomerPaymentProfileRequest", envelope)
	if err != nil {
		return faultOutcome(err), nil
	}

	var resp createPaymentProfileResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal payment profile response: %w", err)
	}

	if !resp.Messages.ok() {
		if id, ok := duplicateID(resp.Messages); ok {
			return ports.NewApprovedOutcome(ports.Approval{ExternalID: id}, "", body), nil
		}
		return envelopeFault(resp.Messages, body), nil
	}

	return ports.NewApprovedOutcome(ports.Approval{ExternalID: resp.CustomerPaymentProfileID}, "", body), nil
}

// Recurring billing (ARB).

type arbInterval struct {
	Length int    `json:"length"`
	Unit   string `json:"unit"`
}

type arbPaymentSchedule struct {
	Interval         arbInterval `json:"interval"`
	StartDate        string      `json:"startDate"`
	TotalOccurrences int         `json:"totalOccurrences"`
}

type arbProfile struct {
	CustomerProfileID        string `json:"customerProfileId"`
	CustomerPaymentProfileID string `json:"customerPaymentProfileId"`
}

type arbSubscription struct {
	Name            string             `json:"name,omitempty"`
	PaymentSchedule arbPaymentSchedule `json:"paymentSchedule"`
	Amount          string             `json:"amount"`
	Profile         arbProfile         `json:"profile"`
}

type arbCreateRequest struct {
	MerchantAuthentication merchantAuthentication `json:"merchantAuthentication"`
	Subscription           arbSubscription        `json:"subscription"`
}

type arbCreateEnvelope struct {
	ARBCreateSubscriptionRequest arbCreateRequest `json:"ARBCreateSubscriptionRequest"`
}

type arbCreateResponse struct {
	SubscriptionID string      `json:"subscriptionId"`
	Messages       apiMessages `json:"messages"`
}

// The recurring API's "no end date" sentinel.
const arbOpenEnded = 9999

// arbInterval maps billing intervals onto the recurring API's vocabulary,
// which only speaks days and months.
func arbIntervalFor(unit domain.IntervalUnit, count int) (arbInterval, error) {
	switch unit {
	case domain.IntervalUnitDay:
		if count < 7 || count > 365 {
			return arbInterval{}, fmt.Errorf("daily recurring interval must be 7 to 365 days, got %d", count)
		}
		return arbInterval{Length: count, Unit: "days"}, nil
	case domain.IntervalUnitWeek:
		return arbIntervalFor(domain.IntervalUnitDay, count*7)
	case domain.IntervalUnitMonth:
		if count < 1 || count > 12 {
			return arbInterval{}, fmt.Errorf("monthly recurring interval must be 1 to 12 months, got %d", count)
		}
		return arbInterval{Length: count, Unit: "months"}, nil
	case domain.IntervalUnitYear:
		return arbIntervalFor(domain.IntervalUnitMonth, count*12)
	default:
		return arbInterval{}, fmt.Errorf("unsupported recurring interval unit %q", unit)
	}
}

// CreateRecurring creates a processor-managed recurring charge
func (g *Gateway) CreateRecurring(ctx context.Context, req *ports.RecurringRequest) (*ports.Outcome, error) {
	interval, err := arbIntervalFor(req.IntervalUnit, req.IntervalCount)
	if err != nil {
		return nil, err
	}

	occurrences := arbOpenEnded
	if req.TotalOccurrences != nil {
		occurrences = *req.TotalOccurrences
	}

	envelope := arbCreateEnvelope{
		ARBCreateSubscriptionRequest: arbCreateRequest{
			MerchantAuthentication: g.auth(),
			Subscription: arbSubscription{
				Name: req.Description,
				PaymentSchedule: arbPaymentSchedule{
					Interval:         interval,
					StartDate:        req.StartDate.Format("2006-01-02"),
					TotalOccurrences: occurrences,
				},
				Amount: req.Amount.StringFixed(2),
				Profile: arbProfile{
					CustomerProfileID:        req.CustomerProfileID,
					CustomerPaymentProfileID: req.PaymentProfileID,
				},
			},
		},
	}

	body, err := g.makeRequest(ctx, "ARBCreateSubscriptionRequest", envelope)
	if err != nil {
		return faultOutcome(err), nil
	}

	var resp arbCreateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal recurring create response: %w", err)
	}

	if !resp.Messages.ok() {
		return envelopeFault(resp.Messages, body), nil
	}

	return ports.NewApprovedOutcome(ports.Approval{ExternalID: resp.SubscriptionID}, "", body), nil
}

type arbCancelRequest struct {
	MerchantAuthentication merchantAuthentication `json:"merchantAuthentication"`
	SubscriptionID         string                 `json:"subscriptionId"`
}

type arbCancelEnvelope struct {
	ARBCancelSubscriptionRequest arbCancelRequest `json:"ARBCancelSubscriptionRequest"`
}

type arbCancelResponse struct {
	Messages apiMessages `json:"messages"`
}

// CancelRecurring cancels a processor-managed recurring charge. E00037
// means the subscription is already expired, cancelled or terminated,
// which is the state we want, so it resolves as success.
func (g *Gateway) CancelRecurring(ctx context.Context, recurringID string) (*ports.Outcome, error) {
	envelope := arbCancelEnvelope{
		ARBCancelSubscriptionRequest: arbCancelRequest{
			MerchantAuthentication: g.auth(),
			SubscriptionID:         recurringID,
		},
	}

	body, err := g.makeRequest(ctx, "ARBCancelSubscriptionRequest", envelope)
	if err != nil {
		return faultOutcome(err), nil
	}

	var resp arbCancelResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal recurring cancel response: %w", err)
	}

	if !resp.Messages.ok() && resp.Messages.first().Code != "E00037" {
		return envelopeFault(resp.Messages, body), nil
	}

	return ports.NewApprovedOutcome(ports.Approval{ExternalID: recurringID}, "", body), nil
}

// duplicateID extracts the existing record id from a duplicate-record
// failure (E00039).
func duplicateID(m apiMessages) (string, bool) {
	msg := m.first()
	if msg.Code != "E00039" {
		return "", false
	}
	match := duplicateRecordID.FindStringSubmatch(msg.Text)
	if len(match) != 2 {
		return "", false
	}
	return match[1], true
}

// envelopeFault folds an envelope-level failure into an ERROR outcome.
// E00001 is the processor's internal error and worth retrying; everything
// else is a request defect.
func envelopeFault(m apiMessages, raw []byte) *ports.Outcome {
	msg := m.first()
	return ports.NewErrorOutcome(ports.Fault{
		Code:      msg.Code,
		Message:   msg.Text,
		Transient: msg.Code == "E00001",
	}, "", raw)
}
