package sweep

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"tronsweep/internal/storage"
	"tronsweep/internal/tron"
)

type fakeChain struct {
	mu sync.Mutex

	nativeBalance decimal.Decimal
	nativeErr     error
	tokenBalances map[string]decimal.Decimal
	tokenErr      error

	transferTxID   string
	transferErr    error
	transferHook   func()
	transferCalls  []decimal.Decimal
	tokenTransfers []decimal.Decimal

	confirmations map[string]int64
	confirmErr    error

	nativeFee int64
	tokenFee  int64
}

func (f *fakeChain) GetBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nativeBalance, f.nativeErr
}

func (f *fakeChain) GetTokenBalance(ctx context.Context, contract, address string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tokenErr != nil {
		return decimal.Decimal{}, f.tokenErr
	}
	return f.tokenBalances[contract], nil
}

func (f *fakeChain) Transfer(ctx context.Context, to string, amount decimal.Decimal) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.transferHook != nil {
		f.transferHook()
	}
	if f.transferErr != nil {
		return "", f.transferErr
	}
	f.transferCalls = append(f.transferCalls, amount)
	return f.transferTxID, nil
}

func (f *fakeChain) TransferToken(ctx context.Context, contract, to string, amount decimal.Decimal) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.transferErr != nil {
		return "", f.transferErr
	}
	f.tokenTransfers = append(f.tokenTransfers, amount)
	return f.transferTxID, nil
}

func (f *fakeChain) GetConfirmations(ctx context.Context, txid string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.confirmErr != nil {
		return 0, f.confirmErr
	}
	depth, ok := f.confirmations[txid]
	if !ok {
		return 0, tron.ErrTxNotFound
	}
	return depth, nil
}

func (f *fakeChain) EstimateFee(token bool) decimal.Decimal {
	if token {
		return decimal.NewFromInt(f.tokenFee)
	}
	return decimal.NewFromInt(f.nativeFee)
}

type fakeLedger struct {
	mu        sync.Mutex
	nextID    int64
	attempts  map[int64]*storage.SweepAttempt
	insertErr error

	// honourCtx makes writes fail on a done context, like a real pg call.
	honourCtx bool
}

func (l *fakeLedger) ctxErr(ctx context.Context) error {
	if l.honourCtx {
		return ctx.Err()
	}
	return nil
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{attempts: make(map[int64]*storage.SweepAttempt)}
}

func (l *fakeLedger) InsertAttempt(ctx context.Context, attempt storage.SweepAttempt) (storage.SweepAttempt, error) {
	if err := l.ctxErr(ctx); err != nil {
		return storage.SweepAttempt{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.insertErr != nil {
		return storage.SweepAttempt{}, l.insertErr
	}
	l.nextID++
	attempt.ID = l.nextID
	attempt.CreatedAt = time.Now().UTC()
	attempt.UpdatedAt = attempt.CreatedAt
	stored := attempt
	l.attempts[attempt.ID] = &stored
	return attempt, nil
}

func (l *fakeLedger) MarkBroadcast(ctx context.Context, id int64, txid string) error {
	if err := l.ctxErr(ctx); err != nil {
		return err
	}
	return l.transition(id, storage.StatusBroadcast, func(a *storage.SweepAttempt) bool {
		if a.Status != storage.StatusPending {
			return false
		}
		a.ChainTxID = &txid
		return true
	})
}

func (l *fakeLedger) MarkConfirmed(ctx context.Context, id int64) error {
	return l.transition(id, storage.StatusConfirmed, func(a *storage.SweepAttempt) bool {
		return a.Status == storage.StatusBroadcast
	})
}

func (l *fakeLedger) MarkFailed(ctx context.Context, id int64, reason string) error {
	if err := l.ctxErr(ctx); err != nil {
		return err
	}
	return l.transition(id, storage.StatusFailed, func(a *storage.SweepAttempt) bool {
		if !a.InFlight() {
			return false
		}
		a.ErrorReason = &reason
		return true
	})
}

func (l *fakeLedger) transition(id int64, to storage.AttemptStatus, apply func(*storage.SweepAttempt) bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	attempt, ok := l.attempts[id]
	if !ok || !apply(attempt) {
		return storage.ErrInvalidTransition
	}
	attempt.Status = to
	attempt.UpdatedAt = time.Now().UTC()
	return nil
}

func (l *fakeLedger) InFlightAttempt(ctx context.Context, assetID int64) (*storage.SweepAttempt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, attempt := range l.attempts {
		if attempt.AssetID == assetID && attempt.InFlight() {
			copied := *attempt
			return &copied, nil
		}
	}
	return nil, nil
}

func (l *fakeLedger) ListBroadcastAttempts(ctx context.Context) ([]storage.SweepAttempt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []storage.SweepAttempt
	for _, attempt := range l.attempts {
		if attempt.Status == storage.StatusBroadcast {
			out = append(out, *attempt)
		}
	}
	return out, nil
}

func (l *fakeLedger) ListStalePendingAttempts(ctx context.Context, cutoff time.Time) ([]storage.SweepAttempt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []storage.SweepAttempt
	for _, attempt := range l.attempts {
		if attempt.Status == storage.StatusPending && attempt.UpdatedAt.Before(cutoff) {
			out = append(out, *attempt)
		}
	}
	return out, nil
}

func (l *fakeLedger) get(id int64) storage.SweepAttempt {
	l.mu.Lock()
	defer l.mu.Unlock()
	if attempt, ok := l.attempts[id]; ok {
		return *attempt
	}
	return storage.SweepAttempt{}
}

func (l *fakeLedger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.attempts)
}

func (l *fakeLedger) setUpdatedAt(id int64, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if attempt, ok := l.attempts[id]; ok {
		attempt.UpdatedAt = at
	}
}

type fakeAssets struct {
	specs []storage.AssetSpec
	err   error
}

func (f *fakeAssets) ListEnabledAssets(ctx context.Context) ([]storage.AssetSpec, error) {
	return f.specs, f.err
}

type statusRecorder struct {
	mu       sync.Mutex
	messages []string
}

func (s *statusRecorder) RecordCheck(at time.Time, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, message)
}

func (s *statusRecorder) last() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) == 0 {
		return ""
	}
	return s.messages[len(s.messages)-1]
}

var errBoom = errors.New("boom")
