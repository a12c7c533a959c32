package payments

import (
	"context"

	"go.uber.org/zap"

	"zuja-payments/internal/checkout"
	"zuja-payments/internal/request"
	"zuja-payments/internal/utils"
)

const (
	createOrderPath  = "payments/create-order/"
	verifyPath       = "payments/verify/"
	refundPath       = "payments/refund/"
	createPayoutPath = "payments/create-payout/"
)

// Client talks to the payments backend through the resilient executor.
// Refund and payout are privileged calls; role gating happens before they
// are invoked and the backend stays the authority of record.
type Client struct {
	exec *request.Executor
	log  *zap.Logger
}

func NewClient(exec *request.Executor, log *zap.Logger) *Client {
	if log == nil {
		log = zap.L()
	}
	return &Client{exec: exec, log: log}
}

type createOrderRequest struct {
	EntityType string   `json:"entity_type" validate:"required,oneof=booking pre_booking payout"`
	EntityID   string   `json:"entity_id" validate:"required"`
	Amount     *float64 `json:"amount,omitempty" validate:"omitempty,gt=0"`
}

type verifyRequest struct {
	PaymentID string `json:"razorpay_payment_id" validate:"required"`
	OrderID   string `json:"razorpay_order_id" validate:"required"`
	Signature string `json:"razorpay_signature" validate:"required"`
}

type refundRequest struct {
	PaymentID string   `json:"payment_id" validate:"required"`
	Amount    *float64 `json:"amount,omitempty" validate:"omitempty,gt=0"`
}

type payoutRequest struct {
	PayoutID string `json:"payout_id" validate:"required"`
}

// CreateOrder asks the backend for a fresh order descriptor. A nil amount
// lets the backend decide (remaining balance for bookings, full amount for
// payouts). Two calls for the same entity produce two independent orders.
// Order creation is the first call after idle and the one most exposed to
// cold-start 504s; the executor's retry policy absorbs those.
func (c *Client) CreateOrder(ctx context.Context, entityType, entityID string, amount *float64) (*OrderDescriptor, error) {
	req := createOrderRequest{EntityType: entityType, EntityID: entityID, Amount: amount}
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	var desc OrderDescriptor
	if err := c.exec.PostJSON(ctx, createOrderPath, req, &desc, nil); err != nil {
		return nil, err
	}

	c.log.Debug("order created",
		zap.String("entity_type", entityType),
		zap.String("entity_id", entityID),
		zap.String("order_id", desc.OrderID),
		zap.Int64("amount", desc.Amount),
		zap.String("currency", desc.Currency),
	)
	return &desc, nil
}

// VerifyPayment submits a proof for server-side signature verification. A
// proof is single-use; this client never caches one for replay.
func (c *Client) VerifyPayment(ctx context.Context, proof *checkout.Proof) (*VerificationResult, error) {
	req := verifyRequest{PaymentID: proof.PaymentID, OrderID: proof.OrderID, Signature: proof.Signature}
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	var result VerificationResult
	if err := c.exec.PostJSON(ctx, verifyPath, req, &result, nil); err != nil {
		return nil, err
	}

	c.log.Debug("payment verified",
		zap.String("order_id", proof.OrderID),
		zap.String("payment_id", result.PaymentID),
		zap.Bool("success", result.Success),
	)
	return &result, nil
}

// CreateRefund refunds a captured payment, fully when amount is nil.
func (c *Client) CreateRefund(ctx context.Context, paymentID string, amount *float64) (*RefundResult, error) {
	req := refundRequest{PaymentID: paymentID, Amount: amount}
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	var result RefundResult
	if err := c.exec.PostJSON(ctx, refundPath, req, &result, nil); err != nil {
		return nil, err
	}

	c.log.Info("refund requested",
		zap.String("payment_id", paymentID),
		zap.String("refund_id", result.RefundID),
		zap.Bool("success", result.Success),
	)
	return &result, nil
}

// CreatePayout triggers an approved distributor payout.
func (c *Client) CreatePayout(ctx context.Context, payoutID string) (*PayoutResult, error) {
	req := payoutRequest{PayoutID: payoutID}
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	var result PayoutResult
	if err := c.exec.PostJSON(ctx, createPayoutPath, req, &result, nil); err != nil {
		return nil, err
	}

	c.log.Info("payout requested",
		zap.String("payout_id", payoutID),
		zap.Bool("success", result.Success),
	)
	return &result, nil
}
