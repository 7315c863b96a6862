package quota

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

type fakeStore struct {
	counts map[string]int64
	err    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{counts: map[string]int64{}}
}

func (f *fakeStore) Incr(_ context.Context, key string) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.counts[key]++
	return f.counts[key], nil
}

func (f *fakeStore) Get(_ context.Context, key string) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.counts[key], nil
}

func (f *fakeStore) ExpireSeconds(context.Context, string, int64) error {
	return f.err
}

// fixedNow sits 30s into a minute bucket so sliding-window math is stable.
var fixedNow = time.Unix(1_750_000_230, 0).UTC()

func newTestService(store CounterStore, anon, wallet Tier) *Service {
	svc := NewService(store, anon, wallet)
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func TestAdmit_MinuteLimitBoundary(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, Tier{DailyLimit: 100, MinuteLimit: 3}, Tier{})
	ctx := context.Background()

	for i := range 3 {
		adm := svc.Admit(ctx, "ip_10.0.0.1")
		if !adm.Allowed {
			t.Fatalf("request %d: expected allowed, got denied (scope %s)", i+1, adm.Scope)
		}
	}

	adm := svc.Admit(ctx, "ip_10.0.0.1")
	if adm.Allowed {
		t.Fatal("request 4: expected denied")
	}
	if adm.Scope != "minute" {
		t.Errorf("got scope %q, want %q", adm.Scope, "minute")
	}
	if adm.Limit != 3 {
		t.Errorf("got limit %d, want 3", adm.Limit)
	}
	if adm.Remaining != 0 {
		t.Errorf("got remaining %d, want 0", adm.Remaining)
	}
	if !adm.ResetAt.After(fixedNow) {
		t.Errorf("reset %v not after now %v", adm.ResetAt, fixedNow)
	}
}

func TestAdmit_DailyLimitWins(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, Tier{DailyLimit: 2, MinuteLimit: 100}, Tier{})
	ctx := context.Background()

	svc.Admit(ctx, "ip_10.0.0.2")
	svc.Admit(ctx, "ip_10.0.0.2")

	adm := svc.Admit(ctx, "ip_10.0.0.2")
	if adm.Allowed {
		t.Fatal("expected denied after daily limit")
	}
	if adm.Scope != "daily" {
		t.Errorf("got scope %q, want %q", adm.Scope, "daily")
	}

	wantReset := time.Unix((fixedNow.Unix()/86400+1)*86400, 0).UTC()
	if !adm.ResetAt.Equal(wantReset) {
		t.Errorf("got reset %v, want %v", adm.ResetAt, wantReset)
	}
}

func TestAdmit_RemainingIsBindingConstraint(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, Tier{DailyLimit: 5, MinuteLimit: 3}, Tier{})

	adm := svc.Admit(context.Background(), "ip_10.0.0.3")
	if !adm.Allowed {
		t.Fatal("expected allowed")
	}
	// After one request: daily has 4 left, minute has 2. Minute binds.
	if adm.Remaining != 2 {
		t.Errorf("got remaining %d, want 2", adm.Remaining)
	}
	if adm.Limit != 3 {
		t.Errorf("got limit %d, want 3", adm.Limit)
	}
	// Scope names a window only on denial.
	if adm.Scope != "none" {
		t.Errorf("got scope %q, want %q on allowed admission", adm.Scope, "none")
	}
}

func TestAdmit_WalletTierIsIndependent(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, Tier{DailyLimit: 1, MinuteLimit: 1}, Tier{DailyLimit: 50, MinuteLimit: 15})
	ctx := context.Background()

	// Exhaust the anonymous tier; the wallet identity is untouched.
	svc.Admit(ctx, "ip_10.0.0.4")
	if adm := svc.Admit(ctx, "ip_10.0.0.4"); adm.Allowed {
		t.Fatal("expected anonymous identity to be denied")
	}

	adm := svc.Admit(ctx, "wallet_0xabc")
	if !adm.Allowed {
		t.Fatal("expected wallet identity to be allowed")
	}
	if adm.Remaining != 14 {
		t.Errorf("got remaining %d, want 14 (wallet minute window)", adm.Remaining)
	}
}

func TestAdmit_SlidingWindowCountsPreviousBucket(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, Tier{DailyLimit: 100, MinuteLimit: 4}, Tier{})

	// 30s into the current minute bucket; previous bucket counts at half
	// weight, so 6 previous requests contribute 3.
	prevBucket := fixedNow.Unix()/60 - 1
	store.counts[fmt.Sprintf("q:minute:ip_10.0.0.5:%d", prevBucket)] = 6

	adm := svc.Admit(context.Background(), "ip_10.0.0.5")
	if !adm.Allowed {
		t.Fatalf("expected first request allowed, got denied (scope %s)", adm.Scope)
	}
	if adm.Remaining != 0 {
		t.Errorf("got remaining %d, want 0", adm.Remaining)
	}

	adm = svc.Admit(context.Background(), "ip_10.0.0.5")
	if adm.Allowed {
		t.Fatal("expected second request denied by sliding window")
	}
}

func TestAdmit_NilStoreFailsOpen(t *testing.T) {
	svc := newTestService(nil, Tier{DailyLimit: 1, MinuteLimit: 1}, Tier{})

	for range 10 {
		adm := svc.Admit(context.Background(), "ip_10.0.0.6")
		if !adm.Allowed {
			t.Fatal("expected fail-open admission with nil store")
		}
		if adm.Remaining != -1 {
			t.Errorf("got remaining %d, want -1 (unknown)", adm.Remaining)
		}
	}
}

func TestAdmit_StoreErrorFailsOpen(t *testing.T) {
	store := newFakeStore()
	store.err = errors.New("connection refused")
	svc := newTestService(store, Tier{DailyLimit: 1, MinuteLimit: 1}, Tier{})

	adm := svc.Admit(context.Background(), "ip_10.0.0.7")
	if !adm.Allowed {
		t.Fatal("expected fail-open admission on store error")
	}
	if adm.Scope != "none" {
		t.Errorf("got scope %q, want %q", adm.Scope, "none")
	}
}
