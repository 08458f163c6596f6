package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// AssetKind distinguishes the chain's base coin from contract tokens.
type AssetKind string

const (
	AssetNative AssetKind = "native"
	AssetToken  AssetKind = "token"
)

// AttemptStatus is the sweep attempt state machine:
// pending -> broadcast -> confirmed, or pending/broadcast -> failed.
// Confirmed and failed are terminal.
type AttemptStatus string

const (
	StatusPending   AttemptStatus = "pending"
	StatusBroadcast AttemptStatus = "broadcast"
	StatusConfirmed AttemptStatus = "confirmed"
	StatusFailed    AttemptStatus = "failed"
)

// AssetSpec is one monitored asset. Amounts are integer minor units
// (sun for the native coin, raw token units for TRC20). The engine only
// reads these rows; the operator surface writes them.
type AssetSpec struct {
	ID                int64
	Kind              AssetKind
	ContractAddress   string // empty for the native asset
	Symbol            string
	Name              string
	Decimals          int32
	MinTransferAmount decimal.Decimal
	Enabled           bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// IsToken reports whether the asset is a contract token.
func (a AssetSpec) IsToken() bool {
	return a.Kind == AssetToken
}

// SweepAttempt is the durable record of one sweep. Rows are never
// deleted; they are the audit trail and the restart-safe source of the
// in-flight suppression invariant.
type SweepAttempt struct {
	ID                 int64
	AssetID            int64
	AssetSymbol        string // joined in for display; not a column of sweep_attempts
	SourceAddress      string
	DestinationAddress string
	Amount             decimal.Decimal // minor units
	Status             AttemptStatus
	ChainTxID          *string
	ErrorReason        *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// InFlight reports whether the attempt still claims the asset's sweep
// slot.
func (s SweepAttempt) InFlight() bool {
	return s.Status == StatusPending || s.Status == StatusBroadcast
}
