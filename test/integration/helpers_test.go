//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/vyrodovalexey/storefront/internal/store"
)

// Environment variable names for integration test configuration.
const (
	EnvServerURL   = "INTEGRATION_SERVER_URL"
	EnvPostgresDSN = "INTEGRATION_POSTGRES_DSN"
	EnvCatalogURL  = "INTEGRATION_CATALOG_URL"
)

// Default configuration values.
const (
	DefaultServerURL  = "http://localhost:8080"
	DefaultCatalogURL = "https://fakestoreapi.com"
	DefaultTimeout    = 10 * time.Second
)

// getEnvOrDefault returns the value of the environment variable
// identified by key, or defaultVal if the variable is not set.
func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// skipIfServiceUnavailable checks whether the service at the given
// URL is reachable and skips the test if it is not.
func skipIfServiceUnavailable(t *testing.T, url string) {
	t.Helper()

	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		t.Skipf("Service unavailable at %s: %v", url, err)
	}
	resp.Body.Close()
}

// openPostgres opens the Postgres backend named by INTEGRATION_POSTGRES_DSN
// and skips the test when it is unset or unreachable.
func openPostgres(t *testing.T) store.Store {
	t.Helper()

	dsn := os.Getenv(EnvPostgresDSN)
	if dsn == "" {
		t.Skipf("%s not set, skipping", EnvPostgresDSN)
	}

	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	defer cancel()

	backend, err := store.New(ctx, store.BackendPostgres, dsn)
	if err != nil {
		t.Skipf("Postgres unavailable: %v", err)
	}
	t.Cleanup(func() { _ = backend.Close() })
	return backend
}

// uniqueKey returns a storage key that does not collide across runs.
func uniqueKey(prefix string) string {
	return fmt.Sprintf("integration-%s:%d", prefix, time.Now().UnixNano())
}

// createHTTPClient returns an *http.Client with a sensible timeout
// for integration tests.
func createHTTPClient() *http.Client {
	return &http.Client{Timeout: DefaultTimeout}
}

// apiResponse is a generic API response envelope.
type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// doRequest performs an HTTP request and returns status code and body.
func doRequest(
	t *testing.T,
	client *http.Client,
	method, url string,
	headers map[string]string,
) (int, []byte) {
	t.Helper()

	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Request %s %s failed: %v", method, url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response body: %v", err)
	}

	return resp.StatusCode, body
}
