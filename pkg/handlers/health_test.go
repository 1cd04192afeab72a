package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/ekaya-inc/recon-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/recon-engine/pkg/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Version:        "test-version",
		Env:            "test",
		KnowledgeGraph: config.KnowledgeGraphConfig{Store: config.KGStoreFile},
	}
}

func TestHealthHandler_Health_WithoutConnManager(t *testing.T) {
	handler := NewHealthHandler(testConfig(), nil, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	handler.Health(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var response HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if response.Status != "ok" {
		t.Errorf("expected status 'ok', got '%s'", response.Status)
	}
	if response.Connections != nil {
		t.Error("expected nil connections when conn manager not provided")
	}
}

func TestHealthHandler_Health_WithConnManager(t *testing.T) {
	connManager := datasource.NewConnectionManager(datasource.ConnectionManagerConfig{
		TTLMinutes:     5,
		MaxConnections: 7,
	}, zap.NewNop())
	defer connManager.Close()

	handler := NewHealthHandler(testConfig(), connManager, zap.NewNop())

	rec := httptest.NewRecorder()
	handler.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var response HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Connections == nil {
		t.Fatal("expected connection stats")
	}
	if response.Connections.TotalConnections != 0 {
		t.Errorf("expected 0 connections, got %d", response.Connections.TotalConnections)
	}
	if response.Connections.MaxConnections != 7 {
		t.Errorf("expected max connections 7, got %d", response.Connections.MaxConnections)
	}
}

func TestHealthHandler_Ping(t *testing.T) {
	cfg := testConfig()
	handler := NewHealthHandler(cfg, nil, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	rec := httptest.NewRecorder()

	handler.Ping(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var response PingResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if response.Service != "recon-engine" {
		t.Errorf("expected service 'recon-engine', got '%s'", response.Service)
	}
	if response.Version != cfg.Version {
		t.Errorf("expected version '%s', got '%s'", cfg.Version, response.Version)
	}
	if response.Environment != cfg.Env {
		t.Errorf("expected environment '%s', got '%s'", cfg.Env, response.Environment)
	}
	if response.GraphStore != config.KGStoreFile {
		t.Errorf("expected graph store %q, got %q", config.KGStoreFile, response.GraphStore)
	}
	if response.LLMEnabled {
		t.Error("expected LLM disabled without a provider")
	}
	if response.GoVersion == "" {
		t.Error("expected go_version to be set")
	}
}

func TestHealthHandler_RegisterRoutes(t *testing.T) {
	mux := http.NewServeMux()
	NewHealthHandler(testConfig(), nil, zap.NewNop()).RegisterRoutes(mux)

	for _, path := range []string{"/health", "/ping"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s: expected %d, got %d", path, http.StatusOK, rec.Code)
		}
	}
}
