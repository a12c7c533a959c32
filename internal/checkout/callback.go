package checkout

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Widget is the callback-oriented surface exposed by checkout SDKs: a
// success handler, a failure handler and a dismiss handler, any of which the
// underlying SDK may fire more than once on buggy code paths.
type Widget interface {
	Open(opts Options, onSuccess func(Proof), onFailure func(error), onDismiss func())
}

// CallbackBridge adapts a Widget into the blocking Bridge contract. The
// first settlement wins; every later callback firing is ignored.
type CallbackBridge struct {
	widget Widget
	log    *zap.Logger
}

func NewCallbackBridge(widget Widget, log *zap.Logger) *CallbackBridge {
	if log == nil {
		log = zap.L()
	}
	return &CallbackBridge{widget: widget, log: log}
}

func (b *CallbackBridge) Open(ctx context.Context, opts Options) (*Proof, error) {
	type settlement struct {
		proof *Proof
		err   error
	}

	done := make(chan settlement, 1)
	var once sync.Once
	settle := func(proof *Proof, err error) {
		once.Do(func() {
			done <- settlement{proof: proof, err: err}
		})
	}

	b.widget.Open(opts,
		func(proof Proof) { settle(&proof, nil) },
		func(err error) { settle(nil, err) },
		func() { settle(nil, ErrDismissed) },
	)

	select {
	case s := <-done:
		if s.err != nil {
			if IsUserAbort(s.err) {
				b.log.Info("checkout aborted by user", zap.String("order_id", opts.OrderID))
			}
			return nil, s.err
		}
		return s.proof, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
