package application

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func newTestHealth(store *mockStore, geo *mockGeometryOps) (*HealthService, *ProductRegistry) {
	registry := NewProductRegistry(store, testLogger())
	return NewHealthService(registry, store, geo, newMockCache()), registry
}

func TestHealthReadiness(t *testing.T) {
	store := newMockStore()
	geo := &mockGeometryOps{}
	health, _ := newTestHealth(store, geo)
	ctx := context.Background()

	if !health.IsHealthy(ctx) {
		t.Error("a serving process is always healthy")
	}
	if !health.IsReady(ctx) {
		t.Error("IsReady() = false with all components up")
	}

	store.pingErr = errors.New("connection refused")
	if health.IsReady(ctx) {
		t.Error("IsReady() = true with the store down")
	}
	store.pingErr = nil

	geo.pingErr = errors.New("engine gone")
	if health.IsReady(ctx) {
		t.Error("IsReady() = true with the geometry engine down")
	}
}

func TestHealthDetails(t *testing.T) {
	store := newMockStore()
	geo := &mockGeometryOps{}
	health, registry := newTestHealth(store, geo)
	ctx := context.Background()

	if _, err := registry.Register(ctx, newProduct("ls8_scenes")); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	details := health.GetHealthDetails(ctx)
	if !details.Healthy || !details.Ready {
		t.Errorf("details = {healthy %v, ready %v}, want both true", details.Healthy, details.Ready)
	}
	if details.Products != 1 {
		t.Errorf("Products = %d, want 1", details.Products)
	}
	for _, component := range []string{"store", "geometry_engine", "cache"} {
		if details.Components[component] != "ok" {
			t.Errorf("component %s = %q, want ok", component, details.Components[component])
		}
	}
}

func TestHealthDetailsReportComponentErrors(t *testing.T) {
	store := newMockStore()
	store.pingErr = errors.New("connection refused")
	health, _ := newTestHealth(store, &mockGeometryOps{})

	details := health.GetHealthDetails(context.Background())
	if details.Ready {
		t.Error("Ready = true with the store down")
	}
	if !strings.HasPrefix(details.Components["store"], "error:") {
		t.Errorf("store component = %q, want an error status", details.Components["store"])
	}
	if details.Components["geometry_engine"] != "ok" {
		t.Errorf("geometry_engine = %q, want ok", details.Components["geometry_engine"])
	}
}
