package ratelimit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/router-for-me/CreditEngine/internal/config"
	internalsettings "github.com/router-for-me/CreditEngine/internal/settings"
)

func TestKeyFor(t *testing.T) {
	if got := KeyFor(42, ActionRevision); got != "u:42:revision" {
		t.Fatalf("expected u:42:revision, got %q", got)
	}
	if got := KeyFor(0, ActionRevision); got != "" {
		t.Fatalf("expected empty key for anonymous user, got %q", got)
	}
}

func TestMemoryLimiterWindow(t *testing.T) {
	limiter := NewMemoryLimiter()
	now := time.Unix(1_700_000_000, 0)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, _ := limiter.Allow(ctx, "k", 2, now)
		if !res.Allowed {
			t.Fatalf("hit %d: expected allowed", i+1)
		}
	}
	if res, _ := limiter.Allow(ctx, "k", 2, now); res.Allowed {
		t.Fatalf("expected third hit in the same second to be throttled")
	}
	if res, _ := limiter.Allow(ctx, "k", 2, now.Add(time.Second)); !res.Allowed || res.Remaining != 1 {
		t.Fatalf("expected new window to allow with 1 remaining, got %+v", res)
	}
}

func TestManagerZeroLimitNeverThrottles(t *testing.T) {
	m := NewManager(nil, nil, nil)
	for i := 0; i < 10; i++ {
		if res, err := m.AllowAction(context.Background(), 1, ActionRevision); err != nil || !res.Allowed {
			t.Fatalf("expected unthrottled, got %+v err=%v", res, err)
		}
	}
	var nilManager *Manager
	if res, _ := nilManager.AllowAction(context.Background(), 1, ActionRevision); !res.Allowed {
		t.Fatalf("expected nil manager to allow")
	}
}

func TestManagerFallsBackToMemoryWhenRedisDown(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	dials := 0
	provider := func() SettingsConfig {
		return SettingsConfig{Limit: 1, RedisEnabled: true, RedisAddr: "127.0.0.1:1"}
	}
	factory := func(options *redis.Options) *redis.Client {
		dials++
		options.DialTimeout = 50 * time.Millisecond
		options.MaxRetries = -1
		return redis.NewClient(options)
	}
	m := NewManager(provider, func() time.Time { return now }, factory)
	t.Cleanup(func() { _ = m.Close() })

	res, err := m.AllowAction(context.Background(), 9, ActionCreateRequest)
	if err != nil || !res.Allowed {
		t.Fatalf("expected first hit allowed via memory, got %+v err=%v", res, err)
	}
	res, _ = m.AllowAction(context.Background(), 9, ActionCreateRequest)
	if res.Allowed {
		t.Fatalf("expected second hit throttled via memory")
	}
	if dials != 1 {
		t.Fatalf("expected breaker to stop redial, got %d dials", dials)
	}
}

func TestSettingsProviderDBOverride(t *testing.T) {
	provider := NewSettingsProvider(config.ThrottleConfig{Limit: 3})
	t.Cleanup(func() { internalsettings.StoreDBConfig(nil) })

	if got := provider().Limit; got != 3 {
		t.Fatalf("expected file limit 3, got %d", got)
	}
	if got := provider().RedisPrefix; got != config.DefaultThrottlePrefix {
		t.Fatalf("expected default prefix, got %q", got)
	}
	internalsettings.StoreDBConfig(map[string]json.RawMessage{
		internalsettings.SpendThrottleLimitKey: json.RawMessage(`7`),
	})
	if got := provider().Limit; got != 7 {
		t.Fatalf("expected db override 7, got %d", got)
	}
	internalsettings.StoreDBConfig(map[string]json.RawMessage{
		internalsettings.SpendThrottleLimitKey: json.RawMessage(`0`),
	})
	if got := provider().Limit; got != 3 {
		t.Fatalf("expected zero db value to keep file limit, got %d", got)
	}
}
