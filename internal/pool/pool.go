// Package pool routes chain calls across upstream API credentials so no
// single key exceeds its provider rate limit. Each credential is a slot
// with its own cooldown and failure counter; throttled slots cool down
// with capped exponential backoff while calls fail over to the remaining
// eligible slots.
package pool

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"tronsweep/internal/metrics"
	"tronsweep/internal/tron"
)

// ErrRateLimited signals that every credential slot is cooling down and
// the call was not attempted (or only hit throttled slots). The call may
// simply be retried on a later tick.
var ErrRateLimited = errors.New("pool: all credential slots cooling down")

type slot struct {
	token  string
	client *tron.Client

	mu          sync.Mutex
	cooldown    time.Time
	failures    int
	lastSuccess time.Time
}

func (s *slot) eligible(now time.Time) (bool, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !now.Before(s.cooldown), s.failures
}

func (s *slot) punish(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures++
	delay := backoffDelay(s.failures)
	s.cooldown = now.Add(delay)
	return delay
}

func (s *slot) reward(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = 0
	s.cooldown = time.Time{}
	s.lastSuccess = now
}

// SlotStatus is a diagnostic snapshot of one credential slot.
type SlotStatus struct {
	Token               string    `json:"token"`
	CooldownUntil       time.Time `json:"cooldown_until"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
}

// Pool exposes the chain client operations, fanned out over credential
// slots.
type Pool struct {
	slots  []*slot
	next   atomic.Uint64
	logger zerolog.Logger
}

// New builds a pool over the configured API keys. With no keys the pool
// degrades to a single anonymous slot subject to provider-default
// limits.
func New(client *tron.Client, apiKeys []string, logger zerolog.Logger) *Pool {
	p := &Pool{logger: logger.With().Str("component", "client_pool").Logger()}

	for _, key := range apiKeys {
		p.slots = append(p.slots, &slot{token: key, client: client.WithAPIKey(key)})
	}
	if len(p.slots) == 0 {
		p.logger.Warn().Msg("no API keys configured; using anonymous slot, rate limits may apply")
		p.slots = append(p.slots, &slot{client: client})
	}

	return p
}

// Snapshot reports the current slot table (tokens redacted to a prefix).
func (p *Pool) Snapshot() []SlotStatus {
	out := make([]SlotStatus, 0, len(p.slots))
	for _, s := range p.slots {
		s.mu.Lock()
		out = append(out, SlotStatus{
			Token:               redact(s.token),
			CooldownUntil:       s.cooldown,
			ConsecutiveFailures: s.failures,
		})
		s.mu.Unlock()
	}
	return out
}

// call runs fn against an eligible slot, rotating to the next slot on
// throttle or transport failure. Non-transient chain errors surface to
// the caller untouched.
func (p *Pool) call(ctx context.Context, op string, fn func(*tron.Client) error) error {
	metrics.PoolCalls.WithLabelValues(op).Inc()

	tried := make(map[int]bool, len(p.slots))
	var lastTransient error

	for {
		idx := p.pick(tried)
		if idx < 0 {
			metrics.PoolRateLimited.Inc()
			if lastTransient != nil {
				return errors.Join(ErrRateLimited, lastTransient)
			}
			return ErrRateLimited
		}
		tried[idx] = true
		s := p.slots[idx]

		err := fn(s.client)
		now := time.Now()
		if err == nil {
			s.reward(now)
			return nil
		}

		if !isTransient(err) {
			return err
		}

		delay := s.punish(now)
		metrics.PoolThrottles.Inc()
		p.logger.Warn().
			Err(err).
			Str("op", op).
			Str("slot", redact(s.token)).
			Dur("cooldown", delay).
			Msg("slot throttled, rotating")
		lastTransient = err
	}
}

// pick selects the eligible slot with the fewest consecutive failures,
// round-robining among ties. Returns -1 when nothing is eligible.
func (p *Pool) pick(tried map[int]bool) int {
	now := time.Now()
	best := -1
	bestFailures := 0

	offset := int(p.next.Add(1) % uint64(len(p.slots)))
	for i := 0; i < len(p.slots); i++ {
		idx := (offset + i) % len(p.slots)
		if tried[idx] {
			continue
		}
		ok, failures := p.slots[idx].eligible(now)
		if !ok {
			continue
		}
		if best == -1 || failures < bestFailures {
			best = idx
			bestFailures = failures
		}
	}
	return best
}

func isTransient(err error) bool {
	if errors.Is(err, tron.ErrThrottled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

func redact(token string) string {
	if token == "" {
		return "(anonymous)"
	}
	if len(token) <= 2 {
		return "..."
	}
	if len(token) <= 8 {
		return token[:2] + "..."
	}
	return token[:8] + "..."
}

// --- chain operations, fanned out over the slot table ---

// GetBalance reads the native balance in sun.
func (p *Pool) GetBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	var out decimal.Decimal
	err := p.call(ctx, "get_balance", func(c *tron.Client) error {
		var callErr error
		out, callErr = c.GetBalance(ctx, address)
		return callErr
	})
	return out, err
}

// GetTokenBalance reads a TRC20 balance in token minor units.
func (p *Pool) GetTokenBalance(ctx context.Context, contract, address string) (decimal.Decimal, error) {
	var out decimal.Decimal
	err := p.call(ctx, "get_token_balance", func(c *tron.Client) error {
		var callErr error
		out, callErr = c.GetTokenBalance(ctx, contract, address)
		return callErr
	})
	return out, err
}

// GetTokenInfo reads TRC20 metadata.
func (p *Pool) GetTokenInfo(ctx context.Context, contract string) (tron.TokenInfo, error) {
	var out tron.TokenInfo
	err := p.call(ctx, "get_token_info", func(c *tron.Client) error {
		var callErr error
		out, callErr = c.GetTokenInfo(ctx, contract)
		return callErr
	})
	return out, err
}

// Transfer builds, signs and broadcasts a native transfer.
func (p *Pool) Transfer(ctx context.Context, to string, amount decimal.Decimal) (string, error) {
	var txid string
	err := p.call(ctx, "broadcast", func(c *tron.Client) error {
		var callErr error
		txid, callErr = c.Transfer(ctx, to, amount)
		return callErr
	})
	return txid, err
}

// TransferToken builds, signs and broadcasts a TRC20 transfer.
func (p *Pool) TransferToken(ctx context.Context, contract, to string, amount decimal.Decimal) (string, error) {
	var txid string
	err := p.call(ctx, "broadcast", func(c *tron.Client) error {
		var callErr error
		txid, callErr = c.TransferToken(ctx, contract, to, amount)
		return callErr
	})
	return txid, err
}

// GetConfirmations reads the confirmation depth of a broadcast
// transaction.
func (p *Pool) GetConfirmations(ctx context.Context, txid string) (int64, error) {
	var out int64
	err := p.call(ctx, "get_confirmation", func(c *tron.Client) error {
		var callErr error
		out, callErr = c.GetConfirmations(ctx, txid)
		return callErr
	})
	return out, err
}

// EstimateFee returns the static fee estimate in minor units.
func (p *Pool) EstimateFee(token bool) decimal.Decimal {
	return p.slots[0].client.EstimateFee(token)
}
