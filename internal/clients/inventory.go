package clients

import (
	"context"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"
)

// InventoryClient talks to the product inventory service.
type InventoryClient struct {
	c *httpClient
}

func NewInventoryClient(cfg Config, logger zerolog.Logger) *InventoryClient {
	return &InventoryClient{c: newHTTPClient("inventory", cfg, logger)}
}

type releaseRequest struct {
	Available bool `json:"available"`
}

// ReleaseItem puts a reserved product back on sale.
func (i *InventoryClient) ReleaseItem(ctx context.Context, productID string) error {
	path := "/api/products/" + url.PathEscape(productID) + "/release"
	return i.c.do(ctx, "release item", http.MethodPut, path, releaseRequest{Available: true}, nil, nil)
}
