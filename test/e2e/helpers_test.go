//go:build e2e

package e2e_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/vyrodovalexey/storefront/internal/middleware"
	"github.com/vyrodovalexey/storefront/internal/model"
)

// Environment variable names for E2E test configuration.
const (
	EnvServerURL = "E2E_SERVER_URL"
)

// Default configuration values.
const (
	DefaultServerURL = "http://localhost:8080"
	DefaultTimeout   = 15 * time.Second
)

// getEnvOrDefault returns the value of the environment variable
// identified by key, or defaultVal if the variable is not set.
func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// e2eServerURL returns the base URL of the server under test.
func e2eServerURL() string {
	return getEnvOrDefault(EnvServerURL, DefaultServerURL)
}

// skipIfServerUnavailable checks whether the server is reachable
// and skips the test if it is not.
func skipIfServerUnavailable(t *testing.T) {
	t.Helper()

	base := e2eServerURL()
	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(base + "/health")
	if err != nil {
		t.Skipf("Server unavailable at %s: %v", base, err)
	}
	resp.Body.Close()
}

// newHTTPClient returns an *http.Client with a sensible timeout.
func newHTTPClient() *http.Client {
	return &http.Client{Timeout: DefaultTimeout}
}

// apiResponse is a generic API response envelope.
type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// errorResponse represents an error response from the API.
type errorResponse struct {
	Code    int               `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// listingResponse mirrors the product listing payload.
type listingResponse struct {
	Products   []model.Product `json:"products"`
	Categories []string        `json:"categories"`
	Total      int             `json:"total"`
}

// summaryResponse mirrors the checkout summary payload.
type summaryResponse struct {
	Subtotal     string `json:"subtotal"`
	Shipping     string `json:"shipping"`
	Tax          string `json:"tax"`
	Total        string `json:"total"`
	FreeShipping bool   `json:"freeShipping"`
	ItemsCount   int    `json:"itemsCount"`
}

// doRequest performs an HTTP request bound to sessionID and returns the
// status code and body.
func doRequest(
	t *testing.T,
	client *http.Client,
	method, url, sessionID string,
	body any,
) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request: %v", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if sessionID != "" {
		req.Header.Set(middleware.SessionIDHeader, sessionID)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Request %s %s failed: %v", method, url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response body: %v", err)
	}

	return resp.StatusCode, respBody
}

// decodeData unwraps the success envelope of body into dest.
func decodeData(t *testing.T, body []byte, dest any) {
	t.Helper()

	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("Failed to parse response: %v. Body: %s", err, body)
	}
	if err := json.Unmarshal(resp.Data, dest); err != nil {
		t.Fatalf("Failed to parse data: %v. Body: %s", err, body)
	}
}

// validCheckout returns a checkout form that passes validation.
func validCheckout() model.CheckoutForm {
	return model.CheckoutForm{
		FirstName:  "Alex",
		LastName:   "Kim",
		Email:      "alex.kim@example.com",
		Address:    "7 Market St",
		City:       "Springfield",
		State:      "IL",
		Zip:        "62701",
		CardNumber: "4111111111111111",
		Expiry:     "09/31",
		CVC:        "321",
	}
}
