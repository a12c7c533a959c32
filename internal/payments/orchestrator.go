package payments

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"zuja-payments/internal/checkout"
)

// State of one payment flow run.
type State string

const (
	StateIdle          State = "idle"
	StateOrderCreating State = "order_creating"
	StateAwaitingProof State = "awaiting_proof"
	StateVerifying     State = "verifying"
	StateSucceeded     State = "succeeded"
	StateFailed        State = "failed"
	StateCancelled     State = "cancelled"
)

// PayOptions tunes one PayForEntity run.
type PayOptions struct {
	// Amount overrides the payable amount; nil lets the backend decide.
	Amount *float64
	// Name and Description are shown inside the checkout widget.
	Name        string
	Description string
	Prefill     checkout.Prefill
	// OnDismiss runs when the user closes or cancels the checkout, before
	// the cancellation error is returned.
	OnDismiss func()
	// OnStateChange observes transitions; used by the UI layer for progress.
	OnStateChange func(State)
}

// VerificationError is a verification round-trip that came back with
// success=false. The server message, when present, is the error text.
type VerificationError struct {
	Result *VerificationResult
}

func (e *VerificationError) Error() string {
	if e.Result != nil && e.Result.Message != "" {
		return e.Result.Message
	}
	return "payment verification failed"
}

// IsCancellation reports whether the flow ended because the user closed or
// cancelled the checkout. Callers use it to skip error UI: a user-initiated
// abort still rejects the flow, it is just not a failure to display.
func IsCancellation(err error) bool {
	return checkout.IsUserAbort(err)
}

// Flow runs the payment state machine: create order, open checkout, verify
// proof. Flow itself holds no per-run state; each PayForEntity call is an
// independent run and concurrent runs for the same entity are the caller's
// problem to serialize.
type Flow struct {
	client *Client
	log    *zap.Logger
}

func NewFlow(client *Client, log *zap.Logger) *Flow {
	if log == nil {
		log = zap.L()
	}
	return &Flow{client: client, log: log}
}

type flowRun struct {
	flow       *Flow
	entityType string
	entityID   string
	opts       PayOptions
	state      State
}

func (r *flowRun) transition(next State) {
	r.state = next
	r.flow.log.Debug("payment flow transition",
		zap.String("entity_type", r.entityType),
		zap.String("entity_id", r.entityID),
		zap.String("state", string(next)),
	)
	if r.opts.OnStateChange != nil {
		r.opts.OnStateChange(next)
	}
}

// PayForEntity drives one complete payment attempt for a payable entity and
// returns the verification result. The steps are strictly sequential; once
// verification is in flight the run completes either way. A dismissed
// checkout invalidates the order descriptor: restart from here, never reuse
// it.
func (f *Flow) PayForEntity(ctx context.Context, entityType, entityID string, bridge checkout.Bridge, opts PayOptions) (*VerificationResult, error) {
	run := &flowRun{flow: f, entityType: entityType, entityID: entityID, opts: opts, state: StateIdle}

	run.transition(StateOrderCreating)
	desc, err := f.client.CreateOrder(ctx, entityType, entityID, opts.Amount)
	if err != nil {
		run.transition(StateFailed)
		return nil, err
	}

	run.transition(StateAwaitingProof)
	proof, err := bridge.Open(ctx, checkout.Options{
		KeyID:       desc.KeyID,
		OrderID:     desc.OrderID,
		Amount:      desc.Amount,
		Currency:    desc.Currency,
		Name:        opts.Name,
		Description: opts.Description,
		Prefill:     opts.Prefill,
	})
	if err != nil {
		if checkout.IsUserAbort(err) {
			run.transition(StateCancelled)
			if opts.OnDismiss != nil {
				opts.OnDismiss()
			}
			return nil, fmt.Errorf("payment cancelled: %w", err)
		}
		run.transition(StateFailed)
		return nil, err
	}

	run.transition(StateVerifying)
	result, err := f.client.VerifyPayment(ctx, proof)
	if err != nil {
		run.transition(StateFailed)
		return nil, err
	}
	if !result.Success {
		run.transition(StateFailed)
		return nil, &VerificationError{Result: result}
	}

	run.transition(StateSucceeded)
	f.log.Info("payment succeeded",
		zap.String("entity_type", entityType),
		zap.String("entity_id", entityID),
		zap.String("order_id", desc.OrderID),
		zap.String("payment_id", result.PaymentID),
	)
	return result, nil
}
