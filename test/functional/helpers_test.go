//go:build functional

// Package functional provides functional tests for the storefront REST API
// and WebSocket server.
package functional

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/storefront/internal/catalog"
	"github.com/vyrodovalexey/storefront/internal/checkout"
	"github.com/vyrodovalexey/storefront/internal/config"
	"github.com/vyrodovalexey/storefront/internal/middleware"
	"github.com/vyrodovalexey/storefront/internal/model"
	"github.com/vyrodovalexey/storefront/internal/server"
	"github.com/vyrodovalexey/storefront/internal/state"
	"github.com/vyrodovalexey/storefront/internal/store"
)

// Environment variable names for test configuration.
const (
	EnvTestServerHost    = "TEST_SERVER_HOST"
	EnvTestTimeout       = "TEST_TIMEOUT"
	EnvTestMetricsEnable = "TEST_METRICS_ENABLED"
)

// Default test configuration values.
const (
	DefaultTestHost         = "localhost"
	DefaultTestTimeout      = 30 * time.Second
	DefaultRequestTimeout   = 5 * time.Second
	DefaultWebSocketTimeout = 10 * time.Second
	DefaultShutdownTimeout  = 5 * time.Second
	DefaultMetricsEnabled   = false
)

// catalogFixture is served by the fake upstream catalog.
var catalogFixture = []model.Product{
	{ID: 1, Title: "Fjallraven Backpack", Price: 109.95, Description: "Your perfect pack for everyday use", Category: "men's clothing", Rating: model.Rating{Rate: 3.9, Count: 120}},
	{ID: 2, Title: "Slim Fit T-Shirt", Price: 22.3, Description: "Slim-fitting style", Category: "men's clothing", Rating: model.Rating{Rate: 4.1, Count: 259}},
	{ID: 5, Title: "Dragon Chain Bracelet", Price: 695, Description: "Gold and silver bracelet", Category: "jewelery", Rating: model.Rating{Rate: 4.6, Count: 400}},
	{ID: 9, Title: "External Hard Drive", Price: 64, Description: "USB 3.0 portable storage", Category: "electronics", Rating: model.Rating{Rate: 3.3, Count: 203}},
	{ID: 14, Title: "Curved Gaming Monitor", Price: 999.99, Description: "49 inch super ultrawide", Category: "electronics", Rating: model.Rating{Rate: 2.2, Count: 140}},
}

// TestConfig holds test configuration loaded from environment.
type TestConfig struct {
	Host           string
	Timeout        time.Duration
	MetricsEnabled bool
}

// LoadTestConfig loads test configuration from environment variables.
func LoadTestConfig() *TestConfig {
	cfg := &TestConfig{
		Host:           DefaultTestHost,
		Timeout:        DefaultTestTimeout,
		MetricsEnabled: DefaultMetricsEnabled,
	}

	if host := os.Getenv(EnvTestServerHost); host != "" {
		cfg.Host = host
	}

	if timeoutStr := os.Getenv(EnvTestTimeout); timeoutStr != "" {
		if timeout, err := time.ParseDuration(timeoutStr); err == nil {
			cfg.Timeout = timeout
		}
	}

	if metricsStr := os.Getenv(EnvTestMetricsEnable); metricsStr != "" {
		if enabled, err := strconv.ParseBool(metricsStr); err == nil {
			cfg.MetricsEnabled = enabled
		}
	}

	return cfg
}

// NewCatalogUpstream starts a fake catalog API serving catalogFixture.
func NewCatalogUpstream(t *testing.T) *Upstream {
	t.Helper()

	mux := http.NewServeMux()
	writeJSON := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}
	mux.HandleFunc("GET /products", func(w http.ResponseWriter, r *http.Request) {
		products := catalogFixture
		if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n < len(products) {
			products = products[:n]
		}
		writeJSON(w, products)
	})
	mux.HandleFunc("GET /products/categories", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, []string{"electronics", "jewelery", "men's clothing"})
	})
	mux.HandleFunc("GET /products/category/{category}", func(w http.ResponseWriter, r *http.Request) {
		out := []model.Product{}
		for _, p := range catalogFixture {
			if p.Category == r.PathValue("category") {
				out = append(out, p)
			}
		}
		writeJSON(w, out)
	})
	mux.HandleFunc("GET /products/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.Atoi(r.PathValue("id"))
		for _, p := range catalogFixture {
			if p.ID == id {
				writeJSON(w, p)
				return
			}
		}
		// The public catalog answers unknown IDs with an empty body.
		w.WriteHeader(http.StatusOK)
	})

	return startUpstream(t, mux)
}

// Upstream is a fake catalog API. It outlives TestServer restarts within a
// test.
type Upstream struct {
	URL string
}

func startUpstream(t *testing.T, h http.Handler) *Upstream {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen for catalog upstream: %v", err)
	}
	srv := &http.Server{Handler: h, ReadHeaderTimeout: time.Second}
	go func() { _ = srv.Serve(listener) }()
	t.Cleanup(func() { _ = srv.Close() })
	return &Upstream{URL: "http://" + listener.Addr().String()}
}

// ServerOption tweaks the server configuration of a TestServer.
type ServerOption func(*config.Config)

// WithFileStore persists cart state as JSON files under dir.
func WithFileStore(dir string) ServerOption {
	return func(c *config.Config) {
		c.StoreBackend = store.BackendFile
		c.StoreDSN = dir
	}
}

// WithSearchDebounce sets the live search debounce.
func WithSearchDebounce(d time.Duration) ServerOption {
	return func(c *config.Config) { c.SearchDebounce = d }
}

// TestServer wraps the server for testing purposes.
type TestServer struct {
	Server   *server.Server
	Registry *state.Registry
	Backend  store.Store
	BaseURL  string
	WSURL    string
	Port     int
	listener net.Listener
	t        *testing.T
	mu       sync.Mutex
	started  bool
}

// NewTestServer creates a new test server backed by a fake catalog.
func NewTestServer(t *testing.T, upstream *Upstream, opts ...ServerOption) *TestServer {
	t.Helper()

	testCfg := LoadTestConfig()

	// Find an available port
	listener, err := net.Listen("tcp", net.JoinHostPort(testCfg.Host, "0"))
	if err != nil {
		t.Fatalf("Failed to find available port: %v", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port

	cfg := config.Default()
	cfg.ServerPort = port
	cfg.ProbePort = 0
	cfg.LogLevel = "error"
	cfg.ShutdownTimeout = DefaultShutdownTimeout
	cfg.MetricsEnabled = testCfg.MetricsEnabled
	cfg.CatalogBaseURL = upstream.URL
	cfg.CheckoutDelay = 50 * time.Millisecond
	cfg.ContactDelay = 10 * time.Millisecond
	cfg.SearchDebounce = 0
	for _, opt := range opts {
		opt(cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Invalid test config: %v", err)
	}

	backend, err := store.New(context.Background(), cfg.StoreBackend, cfg.StoreDSN)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	client, err := catalog.NewClient(cfg.CatalogBaseURL, cfg.CatalogTimeout)
	if err != nil {
		t.Fatalf("Failed to create catalog client: %v", err)
	}

	logger := zap.NewNop()
	registry := state.NewRegistry(cfg.StorageName, backend, logger)
	srv := server.New(cfg, logger, server.Dependencies{
		Registry: registry,
		Backend:  backend,
		Catalog: catalog.NewService(client, logger, catalog.ServiceOptions{
			CacheTTL:         cfg.CatalogCacheTTL,
			SearchMinLength:  cfg.SearchMinLength,
			SearchMaxResults: cfg.SearchMaxResults,
		}),
		Checkout: checkout.NewService(logger, cfg.CheckoutDelay, cfg.ContactDelay),
	})

	return &TestServer{
		Server:   srv,
		Registry: registry,
		Backend:  backend,
		BaseURL:  fmt.Sprintf("http://%s", net.JoinHostPort(testCfg.Host, strconv.Itoa(port))),
		WSURL:    fmt.Sprintf("ws://%s", net.JoinHostPort(testCfg.Host, strconv.Itoa(port))),
		Port:     port,
		listener: listener,
		t:        t,
	}
}

// Start starts the test server.
func (ts *TestServer) Start() {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.started {
		return
	}

	// Close the listener we used to find the port
	_ = ts.listener.Close()

	go func() {
		if err := ts.Server.Start(); err != nil {
			ts.t.Logf("Server error: %v", err)
		}
	}()

	ts.waitForReady()
	ts.started = true
}

// waitForReady waits for the server to be ready to accept connections.
func (ts *TestServer) waitForReady() {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultTestTimeout)
	defer cancel()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			ts.t.Fatalf("Server did not become ready within timeout")
		case <-ticker.C:
			resp, err := http.Get(ts.BaseURL + "/health")
			if err == nil {
				_ = resp.Body.Close()
				if resp.StatusCode == http.StatusOK {
					return
				}
			}
		}
	}
}

// Stop stops the test server and closes its backend.
func (ts *TestServer) Stop() {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if !ts.started {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()

	if err := ts.Server.Shutdown(ctx); err != nil {
		ts.t.Logf("Server shutdown error: %v", err)
	}
	if err := ts.Backend.Close(); err != nil {
		ts.t.Logf("Store close error: %v", err)
	}

	ts.started = false
}

// HTTPClient provides a configured HTTP client bound to one session.
type HTTPClient struct {
	client    *http.Client
	baseURL   string
	sessionID string
	t         *testing.T
}

// NewHTTPClient creates a new HTTP client for testing. An empty sessionID
// lets the server assign one.
func NewHTTPClient(t *testing.T, baseURL, sessionID string) *HTTPClient {
	return &HTTPClient{
		client: &http.Client{
			Timeout: DefaultRequestTimeout,
		},
		baseURL:   baseURL,
		sessionID: sessionID,
		t:         t,
	}
}

// Request represents an HTTP request configuration.
type Request struct {
	Method  string
	Path    string
	Body    any
	Headers map[string]string
}

// Response represents an HTTP response.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Do executes an HTTP request and returns the response.
func (c *HTTPClient) Do(ctx context.Context, req Request) (*Response, error) {
	var bodyReader io.Reader
	if req.Body != nil {
		switch v := req.Body.(type) {
		case string:
			bodyReader = bytes.NewBufferString(v)
		case []byte:
			bodyReader = bytes.NewBuffer(v)
		default:
			jsonBody, err := json.Marshal(req.Body)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal request body: %w", err)
			}
			bodyReader = bytes.NewBuffer(jsonBody)
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.baseURL+req.Path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.sessionID != "" {
		httpReq.Header.Set(middleware.SessionIDHeader, c.sessionID)
	}
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       body,
	}, nil
}

// Get performs a GET request.
func (c *HTTPClient) Get(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path})
}

// Post performs a POST request.
func (c *HTTPClient) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: path, Body: body})
}

// Put performs a PUT request.
func (c *HTTPClient) Put(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodPut, Path: path, Body: body})
}

// Delete performs a DELETE request.
func (c *HTTPClient) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodDelete, Path: path})
}

// MustDo performs req and fails the test on transport errors.
func (c *HTTPClient) MustDo(ctx context.Context, req Request) *Response {
	c.t.Helper()
	resp, err := c.Do(ctx, req)
	if err != nil {
		c.t.Fatalf("%s %s failed: %v", req.Method, req.Path, err)
	}
	return resp
}

// APIResponse represents a generic API response structure.
type APIResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error,omitempty"`
}

// ErrorResponse represents an error response structure.
type ErrorResponse struct {
	Code    int               `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// SummaryResponse mirrors the checkout summary payload.
type SummaryResponse struct {
	Subtotal                 string `json:"subtotal"`
	Shipping                 string `json:"shipping"`
	Tax                      string `json:"tax"`
	Total                    string `json:"total"`
	RemainingForFreeShipping string `json:"remainingForFreeShipping"`
	FreeShipping             bool   `json:"freeShipping"`
	ItemsCount               int    `json:"itemsCount"`
}

// ListingResponse mirrors the product listing payload.
type ListingResponse struct {
	Products   []model.Product `json:"products"`
	Categories []string        `json:"categories"`
	Total      int             `json:"total"`
}

// DecodeData parses the envelope of resp and decodes its data into dest.
func DecodeData(t *testing.T, resp *Response, dest any) {
	t.Helper()
	var apiResp APIResponse
	if err := json.Unmarshal(resp.Body, &apiResp); err != nil {
		t.Fatalf("Failed to parse API response: %v. Body: %s", err, string(resp.Body))
	}
	if !apiResp.Success {
		t.Fatalf("Expected success=true, got false. Error: %s", apiResp.Error)
	}
	if err := json.Unmarshal(apiResp.Data, dest); err != nil {
		t.Fatalf("Failed to parse data: %v", err)
	}
}

// DecodeError parses an error response.
func DecodeError(t *testing.T, resp *Response) ErrorResponse {
	t.Helper()
	var errResp ErrorResponse
	if err := json.Unmarshal(resp.Body, &errResp); err != nil {
		t.Fatalf("Failed to parse error response: %v. Body: %s", err, string(resp.Body))
	}
	return errResp
}

// ProductIDs returns the IDs of products in order.
func ProductIDs(products []model.Product) []int {
	ids := make([]int, len(products))
	for i, p := range products {
		ids[i] = p.ID
	}
	return ids
}

// ValidCheckoutForm returns a checkout form that passes validation.
func ValidCheckoutForm() model.CheckoutForm {
	return model.CheckoutForm{
		FirstName:  "Jane",
		LastName:   "Roe",
		Email:      "jane@example.com",
		Address:    "42 Harbor Rd",
		City:       "Portland",
		State:      "OR",
		Zip:        "97201",
		CardNumber: "4242424242424242",
		Expiry:     "12/30",
		CVC:        "123",
	}
}

// AssertStatusCode asserts that the response has the expected status code.
func AssertStatusCode(t *testing.T, resp *Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d. Body: %s", expected, resp.StatusCode, string(resp.Body))
	}
}

// LogTestStart logs the start of a test.
func LogTestStart(t *testing.T, testID, testName string) {
	t.Helper()
	t.Logf("Starting test %s: %s", testID, testName)
}

// LogTestEnd logs the end of a test.
func LogTestEnd(t *testing.T, testID string) {
	t.Helper()
	t.Logf("Completed test %s", testID)
}
