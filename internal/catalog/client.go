// Package catalog talks to the remote product catalog and provides the pure
// filtering and search functions applied to its products.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vyrodovalexey/storefront/internal/model"
)

// Catalog errors.
var (
	ErrNotFound  = errors.New("product not found")
	ErrNilClient = errors.New("catalog client is nil")
)

// Fetcher defines the remote catalog operations.
// This interface is implemented by *Client and can be used for testing.
type Fetcher interface {
	FetchProducts(ctx context.Context, limit int) ([]model.Product, error)
	FetchProductsByCategory(ctx context.Context, category string, limit int) ([]model.Product, error)
	FetchProduct(ctx context.Context, id int) (*model.Product, error)
	FetchCategories(ctx context.Context) ([]string, error)
}

// Ensure Client implements Fetcher at compile time.
var _ Fetcher = (*Client)(nil)

// Client talks to the catalog HTTP API.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	userAgent string
}

const (
	// DefaultBaseURL is the public catalog the storefront is built on.
	DefaultBaseURL   = "https://fakestoreapi.com"
	DefaultTimeout   = 10 * time.Second
	defaultUserAgent = "storefront/1.0"
)

// NewClient builds a Client for baseURL. A zero timeout uses DefaultTimeout.
func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	base, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: base,
		http: &http.Client{
			Timeout: timeout,
		},
		userAgent: defaultUserAgent,
	}, nil
}

// FetchProducts retrieves all products, or the first limit when limit > 0.
func (c *Client) FetchProducts(ctx context.Context, limit int) ([]model.Product, error) {
	if c == nil {
		return nil, ErrNilClient
	}
	var payload []model.Product
	if err := c.do(ctx, "/products", limitQuery(limit), &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// FetchProductsByCategory retrieves the products of one category.
func (c *Client) FetchProductsByCategory(ctx context.Context, category string, limit int) ([]model.Product, error) {
	if c == nil {
		return nil, ErrNilClient
	}
	category = strings.TrimSpace(category)
	if category == "" {
		return nil, fmt.Errorf("category required")
	}
	var payload []model.Product
	if err := c.do(ctx, "/products/category/"+category, limitQuery(limit), &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// FetchProduct retrieves a single product. The upstream API answers unknown
// IDs with an empty body, which is reported as ErrNotFound.
func (c *Client) FetchProduct(ctx context.Context, id int) (*model.Product, error) {
	if c == nil {
		return nil, ErrNilClient
	}
	if id <= 0 {
		return nil, ErrNotFound
	}
	var payload *model.Product
	if err := c.do(ctx, "/products/"+strconv.Itoa(id), nil, &payload); err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, ErrNotFound
	}
	return payload, nil
}

// FetchCategories retrieves the category names.
func (c *Client) FetchCategories(ctx context.Context) ([]string, error) {
	if c == nil {
		return nil, ErrNilClient
	}
	var payload []string
	if err := c.do(ctx, "/products/categories", nil, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func (c *Client) do(ctx context.Context, path string, query url.Values, dest any) error {
	reqURL := *c.baseURL
	reqURL.Path = strings.TrimSuffix(c.baseURL.Path, "/") + path
	reqURL.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("api %s returned status %d", path, resp.StatusCode)
	}

	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func limitQuery(limit int) url.Values {
	if limit <= 0 {
		return nil
	}
	return url.Values{"limit": []string{strconv.Itoa(limit)}}
}

func parseBaseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		trimmed = DefaultBaseURL
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse catalog url %q: %w", raw, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("parse catalog url %q: missing host", raw)
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
