// Package checkout drives the external payment widget. The widget is an
// opaque collaborator: it is opened once per order, and exactly one of
// success-with-proof, cancellation or dismissal comes back.
package checkout

import (
	"context"
	"errors"
)

var (
	// ErrDismissed is returned when the user closes the checkout widget.
	ErrDismissed = errors.New("checkout closed by user")
	// ErrCancelled is returned when the user cancels the payment inside the widget.
	ErrCancelled = errors.New("payment cancelled by user")
)

// IsUserAbort reports whether err stems from the user closing or cancelling
// the checkout, as opposed to a real failure.
func IsUserAbort(err error) bool {
	return errors.Is(err, ErrDismissed) || errors.Is(err, ErrCancelled)
}

// Proof is the signed triple the gateway hands back after the user completes
// payment. It is single-use: one proof per checkout attempt, verified once.
type Proof struct {
	PaymentID string `json:"razorpay_payment_id"`
	OrderID   string `json:"razorpay_order_id"`
	Signature string `json:"razorpay_signature"`
}

// Prefill seeds the widget's contact form.
type Prefill struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Contact string `json:"contact,omitempty"`
}

// Options configures one checkout attempt. Amount is in minor units, exactly
// as issued on the order descriptor.
type Options struct {
	KeyID       string
	OrderID     string
	Amount      int64
	Currency    string
	Name        string
	Description string
	Prefill     Prefill
}

// Bridge opens the external checkout and blocks until the user settles it.
// Open returns the proof on success, ErrDismissed/ErrCancelled on user abort,
// or ctx.Err() if the caller gives up waiting.
type Bridge interface {
	Open(ctx context.Context, opts Options) (*Proof, error)
}
