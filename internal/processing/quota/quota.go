// Package quota enforces tiered, sliding-window admission control on link
// creation. Identities are the rate-limit keys built by the links service
// ("wallet_<addr>" or "ip_<addr>"); wallet identities get the higher tier.
//
// Every identity is tracked over two independent windows (daily and
// per-minute). The sliding behaviour uses the standard two-bucket weighted
// interpolation: the previous fixed bucket's count is scaled by how much of
// it still overlaps the rolling window, so only INCR/GET/EXPIRE are needed
// from the counter store.
//
// The limiter fails open by policy: a missing or unreachable counter store
// admits everything. Availability of the creation path outranks strict quota
// enforcement; deployments that need fail-closed semantics must front this
// with their own enforcement.
package quota

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Akmalwizdom/onyx-shortener/internal/infrastructure/logger"
	"github.com/Akmalwizdom/onyx-shortener/internal/processing/links"
	"go.uber.org/zap"
)

// CounterStore is the external key-value backend for window counters. The
// redis client satisfies it.
type CounterStore interface {
	Incr(ctx context.Context, key string) (int64, error)
	Get(ctx context.Context, key string) (int64, error)
	ExpireSeconds(ctx context.Context, key string, ttlSeconds int64) error
}

// Tier holds the window limits for one identity class.
type Tier struct {
	DailyLimit  int64
	MinuteLimit int64
}

type window struct {
	scope  string
	limit  int64
	period time.Duration
}

type Service struct {
	store  CounterStore
	anon   Tier
	wallet Tier
	prefix string
	now    func() time.Time
}

// NewService builds the admission service. store may be nil, in which case
// every request is admitted.
func NewService(store CounterStore, anon, wallet Tier) *Service {
	return &Service{
		store:  store,
		anon:   anon,
		wallet: wallet,
		prefix: "q",
		now:    time.Now,
	}
}

// Admit checks both windows for identity and, when both have room, consumes
// one unit from each. Scope names the exhausted window on denial and is
// "none" on every allowed admission; the reported remaining, limit and reset
// come from the binding window either way.
func (s *Service) Admit(ctx context.Context, identity string) links.Admission {
	failOpen := links.Admission{Allowed: true, Scope: "none", Remaining: -1}

	if s.store == nil {
		return failOpen
	}

	tier := s.anon
	if strings.HasPrefix(identity, "wallet_") {
		tier = s.wallet
	}

	windows := []window{
		{scope: "daily", limit: tier.DailyLimit, period: 24 * time.Hour},
		{scope: "minute", limit: tier.MinuteLimit, period: time.Minute},
	}

	now := s.now().UTC()
	counts := make([]int64, len(windows))

	for i, w := range windows {
		used, err := s.windowCount(ctx, identity, w, now)
		if err != nil {
			logger.Warn("quota store unreachable, admitting fail-open",
				zap.String("identity", identity), zap.Error(err))
			return failOpen
		}
		counts[i] = used

		if used >= w.limit {
			return links.Admission{
				Allowed:   false,
				Scope:     w.scope,
				Remaining: 0,
				Limit:     w.limit,
				ResetAt:   s.windowReset(w, now),
			}
		}
	}

	adm := links.Admission{Allowed: true, Scope: "none", Remaining: -1}
	for i, w := range windows {
		if err := s.consume(ctx, identity, w, now); err != nil {
			logger.Warn("quota increment failed",
				zap.String("identity", identity), zap.Error(err))
			return failOpen
		}

		remaining := w.limit - counts[i] - 1
		if remaining < 0 {
			remaining = 0
		}
		if adm.Remaining < 0 || remaining < adm.Remaining {
			adm.Remaining = remaining
			adm.Limit = w.limit
			adm.ResetAt = s.windowReset(w, now)
		}
	}

	return adm
}

// windowCount returns the weighted request count over the rolling window.
func (s *Service) windowCount(ctx context.Context, identity string, w window, now time.Time) (int64, error) {
	periodSec := int64(w.period.Seconds())
	bucket := now.Unix() / periodSec

	cur, err := s.store.Get(ctx, s.key(identity, w.scope, bucket))
	if err != nil {
		return 0, err
	}
	prev, err := s.store.Get(ctx, s.key(identity, w.scope, bucket-1))
	if err != nil {
		return 0, err
	}

	elapsed := now.Unix() % periodSec
	weighted := cur + prev*(periodSec-elapsed)/periodSec
	return weighted, nil
}

func (s *Service) consume(ctx context.Context, identity string, w window, now time.Time) error {
	periodSec := int64(w.period.Seconds())
	bucket := now.Unix() / periodSec
	key := s.key(identity, w.scope, bucket)

	if _, err := s.store.Incr(ctx, key); err != nil {
		return err
	}
	// TTL covers the bucket plus its tail overlap into the next window.
	_ = s.store.ExpireSeconds(ctx, key, periodSec*2)
	return nil
}

func (s *Service) windowReset(w window, now time.Time) time.Time {
	periodSec := int64(w.period.Seconds())
	bucket := now.Unix() / periodSec
	return time.Unix((bucket+1)*periodSec, 0).UTC()
}

func (s *Service) key(identity, scope string, bucket int64) string {
	return fmt.Sprintf("%s:%s:%s:%d", s.prefix, scope, identity, bucket)
}
