package payment

import "context"

// Provider port (interface to the payment processor)
type Provider interface {
	CreateCheckout(ctx context.Context, p CheckoutParams) (*CheckoutSession, error)
	// VerifyWebhook checks the signature over the raw body and decodes the event.
	VerifyWebhook(payload []byte, signature string) (*WebhookEvent, error)
}
