package payments

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"zuja-payments/internal/checkout"
	"zuja-payments/internal/request"
)

type stubBridge struct {
	proof  *checkout.Proof
	err    error
	opened []checkout.Options
}

func (b *stubBridge) Open(ctx context.Context, opts checkout.Options) (*checkout.Proof, error) {
	b.opened = append(b.opened, opts)
	if b.err != nil {
		return nil, b.err
	}
	return b.proof, nil
}

func TestPayForEntityHappyPath(t *testing.T) {
	router, server := newBackend(t)

	router.POST("/payments/create-order/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"order_id": "o1", "key_id": "k1", "amount": 50000, "currency": "INR"})
	})

	var verified []map[string]string
	router.POST("/payments/verify/", func(c *gin.Context) {
		var proof map[string]string
		require.NoError(t, c.ShouldBindJSON(&proof))
		verified = append(verified, proof)
		c.JSON(http.StatusOK, gin.H{"success": true, "payment_id": proof["razorpay_payment_id"]})
	})

	flow := NewFlow(newTestClient(server), zap.NewNop())
	bridge := &stubBridge{proof: &checkout.Proof{PaymentID: "p1", OrderID: "o1", Signature: "s1"}}

	var states []State
	result, err := flow.PayForEntity(context.Background(), EntityBooking, "b1", bridge, PayOptions{
		Description:   "Booking balance",
		OnStateChange: func(s State) { states = append(states, s) },
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "p1", result.PaymentID)

	// The checkout is opened with the descriptor the backend issued
	require.Len(t, bridge.opened, 1)
	assert.Equal(t, "k1", bridge.opened[0].KeyID)
	assert.Equal(t, "o1", bridge.opened[0].OrderID)
	assert.Equal(t, int64(50000), bridge.opened[0].Amount)
	assert.Equal(t, "INR", bridge.opened[0].Currency)
	assert.Equal(t, "Booking balance", bridge.opened[0].Description)

	// Verification is called exactly once with the exact proof
	require.Len(t, verified, 1)
	assert.Equal(t, "p1", verified[0]["razorpay_payment_id"])
	assert.Equal(t, "o1", verified[0]["razorpay_order_id"])
	assert.Equal(t, "s1", verified[0]["razorpay_signature"])

	assert.Equal(t, []State{StateOrderCreating, StateAwaitingProof, StateVerifying, StateSucceeded}, states)
}

func TestPayForEntitySurvivesColdStart(t *testing.T) {
	router, server := newBackend(t)

	var orderHits int
	router.POST("/payments/create-order/", func(c *gin.Context) {
		orderHits++
		if orderHits == 1 {
			c.Status(http.StatusGatewayTimeout)
			return
		}
		c.JSON(http.StatusOK, gin.H{"order_id": "o1", "key_id": "k1", "amount": 50000, "currency": "INR"})
	})
	router.POST("/payments/verify/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"success": true, "payment_id": "p1"})
	})

	var delays []time.Duration
	client := newTestClient(server, request.WithSleep(func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}))

	flow := NewFlow(client, zap.NewNop())
	bridge := &stubBridge{proof: &checkout.Proof{PaymentID: "p1", OrderID: "o1", Signature: "s1"}}

	result, err := flow.PayForEntity(context.Background(), EntityBooking, "b1", bridge, PayOptions{})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 2, orderHits)
	assert.Equal(t, []time.Duration{2 * time.Second}, delays)
}

func TestPayForEntityDismissedCheckout(t *testing.T) {
	router, server := newBackend(t)

	router.POST("/payments/create-order/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"order_id": "o1", "key_id": "k1", "amount": 50000, "currency": "INR"})
	})
	var verifyHits int
	router.POST("/payments/verify/", func(c *gin.Context) {
		verifyHits++
		c.JSON(http.StatusOK, gin.H{"success": true})
	})

	flow := NewFlow(newTestClient(server), zap.NewNop())
	bridge := &stubBridge{err: checkout.ErrDismissed}

	var dismissed bool
	var states []State
	_, err := flow.PayForEntity(context.Background(), EntityBooking, "b1", bridge, PayOptions{
		OnDismiss:     func() { dismissed = true },
		OnStateChange: func(s State) { states = append(states, s) },
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "cancelled")
	assert.Contains(t, err.Error(), "closed")
	assert.True(t, IsCancellation(err))
	assert.True(t, dismissed)
	assert.Zero(t, verifyHits, "a dismissed checkout must never reach verification")
	assert.Equal(t, []State{StateOrderCreating, StateAwaitingProof, StateCancelled}, states)
}

func TestPayForEntityVerificationMismatch(t *testing.T) {
	router, server := newBackend(t)

	router.POST("/payments/create-order/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"order_id": "o1", "key_id": "k1", "amount": 50000, "currency": "INR"})
	})
	router.POST("/payments/verify/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "signature mismatch"})
	})

	flow := NewFlow(newTestClient(server), zap.NewNop())
	bridge := &stubBridge{proof: &checkout.Proof{PaymentID: "p1", OrderID: "o1", Signature: "bad"}}

	var states []State
	_, err := flow.PayForEntity(context.Background(), EntityBooking, "b1", bridge, PayOptions{
		OnStateChange: func(s State) { states = append(states, s) },
	})

	require.Error(t, err)
	assert.Equal(t, "signature mismatch", err.Error())

	var verr *VerificationError
	assert.ErrorAs(t, err, &verr)
	assert.False(t, verr.Result.Success)
	assert.False(t, IsCancellation(err))
	assert.Equal(t, []State{StateOrderCreating, StateAwaitingProof, StateVerifying, StateFailed}, states)
}

func TestPayForEntityOrderCreationFails(t *testing.T) {
	router, server := newBackend(t)

	router.POST("/payments/create-order/", func(c *gin.Context) {
		c.JSON(http.StatusBadRequest, gin.H{"message": "booking already paid"})
	})

	flow := NewFlow(newTestClient(server), zap.NewNop())
	bridge := &stubBridge{}

	var states []State
	_, err := flow.PayForEntity(context.Background(), EntityBooking, "b1", bridge, PayOptions{
		OnStateChange: func(s State) { states = append(states, s) },
	})

	var reqErr *request.Error
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, "booking already paid", reqErr.Message)
	assert.Empty(t, bridge.opened, "checkout must not open without an order")
	assert.Equal(t, []State{StateOrderCreating, StateFailed}, states)
}

func TestPayForEntityAmountOverride(t *testing.T) {
	router, server := newBackend(t)

	var sent map[string]interface{}
	router.POST("/payments/create-order/", func(c *gin.Context) {
		require.NoError(t, c.ShouldBindJSON(&sent))
		c.JSON(http.StatusOK, gin.H{"order_id": "o1", "key_id": "k1", "amount": 150000, "currency": "INR"})
	})
	router.POST("/payments/verify/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"success": true, "payment_id": "p1"})
	})

	flow := NewFlow(newTestClient(server), zap.NewNop())
	bridge := &stubBridge{proof: &checkout.Proof{PaymentID: "p1", OrderID: "o1", Signature: "s1"}}

	amount := 1500.0
	_, err := flow.PayForEntity(context.Background(), EntityPreBooking, "pb1", bridge, PayOptions{Amount: &amount})
	require.NoError(t, err)
	assert.Equal(t, 1500.0, sent["amount"])
	assert.Equal(t, "pre_booking", sent["entity_type"])
}
