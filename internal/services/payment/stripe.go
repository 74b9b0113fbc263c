// Package payment wraps Stripe Checkout for one-off report purchases.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/snaglog/snaglog-api/internal/config"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"
)

// EventCheckoutCompleted is the only gateway event that changes report state
const EventCheckoutCompleted = "checkout.session.completed"

// ErrNotConfigured is returned when no Stripe secret key is set
var ErrNotConfigured = errors.New("payment gateway is not configured")

// CheckoutRequest describes the purchase of one report
type CheckoutRequest struct {
	ReportID   string
	OwnerID    string
	SuccessURL string
	CancelURL  string
}

// Session is the part of a checkout session the report pipeline cares about
type Session struct {
	ID         string `json:"sessionId"`
	URL        string `json:"url"`
	ReportID   string `json:"-"`
	Paid       bool   `json:"-"`
	PaymentRef string `json:"-"`
}

// Event is a verified gateway event
type Event struct {
	ID      string
	Type    string
	Session *Session
}

// Gateway talks to Stripe
type Gateway struct {
	api           *client.API
	priceID       string
	webhookSecret string
}

// NewGateway creates a Stripe gateway from config
func NewGateway(cfg config.StripeConfig) *Gateway {
	g := &Gateway{
		priceID:       cfg.PriceID,
		webhookSecret: cfg.WebhookSecret,
	}
	if cfg.SecretKey != "" {
		g.api = client.New(cfg.SecretKey, nil)
	}
	return g
}

// CreateCheckout opens a hosted checkout session for one report
func (g *Gateway) CreateCheckout(ctx context.Context, req CheckoutRequest) (*Session, error) {
	if g.api == nil {
		return nil, ErrNotConfigured
	}

	params := &stripe.CheckoutSessionParams{
		Params:             stripe.Params{Context: ctx},
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(g.priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.ReportID),
	}
	params.AddMetadata("reportId", req.ReportID)
	params.AddMetadata("userId", req.OwnerID)

	cs, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}
	return sessionFromStripe(cs), nil
}

// GetSession retrieves a checkout session by id
func (g *Gateway) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	if g.api == nil {
		return nil, ErrNotConfigured
	}

	params := &stripe.CheckoutSessionParams{Params: stripe.Params{Context: ctx}}
	cs, err := g.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve checkout session: %w", err)
	}
	return sessionFromStripe(cs), nil
}

// ParseEvent verifies the webhook signature and decodes the event.
// Session is only set for checkout session events.
func (g *Gateway) ParseEvent(payload []byte, signature string) (*Event, error) {
	if g.webhookSecret == "" {
		return nil, ErrNotConfigured
	}

	evt, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("webhook signature verification failed: %w", err)
	}

	out := &Event{ID: evt.ID, Type: string(evt.Type)}
	if out.Type == EventCheckoutCompleted && evt.Data != nil {
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(evt.Data.Raw, &cs); err != nil {
			return nil, fmt.Errorf("failed to decode checkout session: %w", err)
		}
		out.Session = sessionFromStripe(&cs)
	}
	return out, nil
}

func sessionFromStripe(cs *stripe.CheckoutSession) *Session {
	s := &Session{
		ID:   cs.ID,
		URL:  cs.URL,
		Paid: cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
	}
	if cs.Metadata != nil {
		s.ReportID = cs.Metadata["reportId"]
	}
	if s.ReportID == "" {
		s.ReportID = cs.ClientReferenceID
	}
	if cs.PaymentIntent != nil {
		s.PaymentRef = cs.PaymentIntent.ID
	}
	if s.PaymentRef == "" {
		s.PaymentRef = cs.ID
	}
	return s
}
