// Package stripe adapts the Stripe SDK to the domain payment port so the
// application layer never touches SDK types.
package stripe

import (
	"context"
	"encoding/json"
	"fmt"

	stripeapi "github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/autopruefer/autopruefer-api/internal/domain/payment"
)

type Provider struct {
	api           *client.API
	webhookSecret string
}

func New(secretKey, webhookSecret string) *Provider {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &Provider{api: api, webhookSecret: webhookSecret}
}

// CreateCheckout creates a one-off EUR payment session with the vehicle facts
// flattened into metadata for the webhook to pick up.
func (p *Provider) CreateCheckout(ctx context.Context, cp payment.CheckoutParams) (*payment.CheckoutSession, error) {
	params := &stripeapi.CheckoutSessionParams{
		Mode:               stripeapi.String(string(stripeapi.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripeapi.StringSlice([]string{"card", "sepa_debit"}),
		Locale:             stripeapi.String("de"),
		LineItems: []*stripeapi.CheckoutSessionLineItemParams{
			{
				PriceData: &stripeapi.CheckoutSessionLineItemPriceDataParams{
					Currency: stripeapi.String("eur"),
					ProductData: &stripeapi.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripeapi.String(cp.ProductName),
						Description: stripeapi.String(cp.Description),
					},
					UnitAmount: stripeapi.Int64(cp.AmountCents),
				},
				Quantity: stripeapi.Int64(1),
			},
		},
		SuccessURL: stripeapi.String(cp.SuccessURL),
		CancelURL:  stripeapi.String(cp.CancelURL),
	}
	params.Context = ctx
	params.Metadata = cp.Metadata
	if cp.CustomerEmail != "" {
		params.CustomerEmail = stripeapi.String(cp.CustomerEmail)
	}

	sess, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return &payment.CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

// VerifyWebhook validates the signature over the raw body and decodes the
// checkout session out of the event payload.
func (p *Provider) VerifyWebhook(payload []byte, signature string) (*payment.WebhookEvent, error) {
	event, err := webhook.ConstructEvent(payload, signature, p.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("webhook signature verification: %w", err)
	}

	evt := &payment.WebhookEvent{Type: string(event.Type)}
	if evt.Type != payment.EventCheckoutCompleted {
		return evt, nil
	}

	var sess stripeapi.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, fmt.Errorf("decode checkout session: %w", err)
	}
	evt.SessionID = sess.ID
	evt.Metadata = sess.Metadata
	if sess.CustomerDetails != nil {
		evt.CustomerEmail = sess.CustomerDetails.Email
	}
	return evt, nil
}
