package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/noah-isme/backend-travel/internal/resilience"
)

// HTTPSource fetches products from the upstream catalog service.
type HTTPSource struct {
	BaseURL string
	HTTP    *resilience.HTTPClient
}

// Get implements Source. The catalog endpoint shape is
// GET {base}/v1/products/{type}/{id} returning {"data": Product}.
func (s HTTPSource) Get(ctx context.Context, productType ProductType, id string) (Product, error) {
	if s.HTTP == nil {
		return Product{}, fmt.Errorf("catalog: http client not configured")
	}
	endpoint := fmt.Sprintf("%s/v1/products/%s/%s",
		strings.TrimRight(s.BaseURL, "/"), url.PathEscape(string(productType)), url.PathEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Product{}, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := s.HTTP.Do(ctx, req)
	if err != nil {
		return Product{}, fmt.Errorf("catalog: fetch product: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return Product{}, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return Product{}, fmt.Errorf("catalog: unexpected status %s", resp.Status)
	}
	var payload struct {
		Data Product `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Product{}, fmt.Errorf("catalog: decode product: %w", err)
	}
	if payload.Data.ID == "" {
		return Product{}, ErrNotFound
	}
	return payload.Data, nil
}

// StaticSource serves a fixed set of products and is useful for testing and
// local development without the catalog service.
type StaticSource map[string]Product

// Get implements Source.
func (s StaticSource) Get(_ context.Context, productType ProductType, id string) (Product, error) {
	product, ok := s[string(productType)+":"+id]
	if !ok {
		return Product{}, ErrNotFound
	}
	return product, nil
}

// Register adds a product keyed by its type and id.
func (s StaticSource) Register(p Product) {
	s[string(p.Type)+":"+p.ID] = p
}
