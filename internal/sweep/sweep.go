// Package sweep contains the engine core: the balance poller, the sweep
// coordinator and the confirmation checker. All amount arithmetic is in
// integer minor units; the ledger rows are the single source of truth
// for what is in flight, so the in-flight invariant survives restarts.
package sweep

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ChainPool is the chain capability surface the engine consumes. It is
// satisfied by pool.Pool; tests plug in fakes.
type ChainPool interface {
	GetBalance(ctx context.Context, address string) (decimal.Decimal, error)
	GetTokenBalance(ctx context.Context, contract, address string) (decimal.Decimal, error)
	Transfer(ctx context.Context, to string, amount decimal.Decimal) (string, error)
	TransferToken(ctx context.Context, contract, to string, amount decimal.Decimal) (string, error)
	GetConfirmations(ctx context.Context, txid string) (int64, error)
	EstimateFee(token bool) decimal.Decimal
}

// StatusSink receives the liveness projection after every polling cycle.
type StatusSink interface {
	RecordCheck(at time.Time, message string)
}

// Error reasons recorded on failed attempts.
const (
	ReasonInsufficientFeeFunds = "InsufficientFeeFunds"
	ReasonBroadcastTimeout     = "BroadcastTimeout"
	ReasonPendingTimeout       = "PendingTimeout"
)
