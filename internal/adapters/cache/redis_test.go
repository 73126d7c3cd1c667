package cache

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/terradex/strata/internal/ports/output"
)

// newTestCache connects to the Redis named by REDIS_TEST_ADDR, or
// skips the test when none is available.
func newTestCache(t *testing.T) *Cache {
	t.Helper()

	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c, err := New(context.Background(), Config{Addr: addr, DB: 15}, &output.NoOpMetrics{}, logger)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() {
		_ = c.client.FlushDB(context.Background()).Err()
		_ = c.Close()
	})
	return c
}

func TestGetMiss(t *testing.T) {
	c := newTestCache(t)

	_, found, err := c.Get(context.Background(), "strata:v1:absent")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if found {
		t.Error("found = true for absent key")
	}
}

func TestSetGetRoundTrip(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "scenes", "strata:v1:scenes:overview", []byte(`{"count":7}`), time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	value, found, err := c.Get(ctx, "strata:v1:scenes:overview")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !found {
		t.Fatal("cached value not found")
	}
	if string(value) != `{"count":7}` {
		t.Errorf("value = %s", value)
	}
}

func TestInvalidateProductScoped(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	entries := map[string]string{
		"strata:v1:scenes:overview":  "scenes",
		"strata:v1:scenes:footprint": "scenes",
		"strata:v1:other:overview":   "other",
	}
	for key, product := range entries {
		if err := c.Set(ctx, product, key, []byte("x"), time.Minute); err != nil {
			t.Fatalf("Set(%s) error = %v", key, err)
		}
	}

	if err := c.InvalidateProduct(ctx, "scenes"); err != nil {
		t.Fatalf("InvalidateProduct() error = %v", err)
	}

	for key, product := range entries {
		_, found, err := c.Get(ctx, key)
		if err != nil {
			t.Fatalf("Get(%s) error = %v", key, err)
		}
		if product == "scenes" && found {
			t.Errorf("key %s survived invalidation", key)
		}
		if product == "other" && !found {
			t.Errorf("key %s of another product was dropped", key)
		}
	}
}
