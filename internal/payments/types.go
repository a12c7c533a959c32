package payments

import "encoding/json"

// Entity types that can be the subject of a payment order.
const (
	EntityBooking    = "booking"
	EntityPreBooking = "pre_booking"
	EntityPayout     = "payout"
)

// OrderDescriptor authorizes exactly one checkout attempt. It is never
// persisted and never reused: a dismissed checkout means a new order.
type OrderDescriptor struct {
	OrderID  string `json:"order_id"`
	KeyID    string `json:"key_id"`
	Amount   int64  `json:"amount"` // minor units
	Currency string `json:"currency"`
}

// VerificationResult is the terminal value of one payment attempt. Unknown
// response fields survive in Extra so backend extensions reach the caller.
type VerificationResult struct {
	Success   bool
	PaymentID string
	Message   string
	Extra     map[string]interface{}
}

func (r *VerificationResult) UnmarshalJSON(data []byte) error {
	var known struct {
		Success   bool   `json:"success"`
		PaymentID string `json:"payment_id"`
		Message   string `json:"message"`
	}
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	delete(raw, "success")
	delete(raw, "payment_id")
	delete(raw, "message")

	r.Success = known.Success
	r.PaymentID = known.PaymentID
	r.Message = known.Message
	if len(raw) > 0 {
		r.Extra = raw
	} else {
		r.Extra = nil
	}
	return nil
}

type RefundResult struct {
	Success  bool   `json:"success"`
	RefundID string `json:"refund_id"`
	Message  string `json:"message"`
}

type PayoutResult struct {
	Success  bool   `json:"success"`
	PayoutID string `json:"payout_id"`
	Message  string `json:"message"`
}
