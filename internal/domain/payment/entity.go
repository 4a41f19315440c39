package payment

// CheckoutParams describes one checkout session to be created at the provider.
// Metadata carries the vehicle facts and plan so the webhook can reconstruct
// the analysis request without any server-side session state.
type CheckoutParams struct {
	Plan          string
	AmountCents   int64
	ProductName   string
	Description   string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
	Metadata      map[string]string
}

// CheckoutSession is the provider's handle for a created session.
type CheckoutSession struct {
	ID  string `json:"sessionId"`
	URL string `json:"url,omitempty"`
}

// WebhookEvent is a verified inbound payment event.
type WebhookEvent struct {
	Type          string
	SessionID     string
	CustomerEmail string
	Metadata      map[string]string
}

// EventCheckoutCompleted is the only event type the service acts on.
const EventCheckoutCompleted = "checkout.session.completed"
