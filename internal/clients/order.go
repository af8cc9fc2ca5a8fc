package clients

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	domainErrors "github.com/cassiomorais/orderpay/internal/domain/errors"
	"github.com/cassiomorais/orderpay/internal/domain/order"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// OrderClient talks to the order service.
type OrderClient struct {
	c *httpClient
}

func NewOrderClient(cfg Config, logger zerolog.Logger) *OrderClient {
	return &OrderClient{c: newHTTPClient("order", cfg, logger)}
}

type orderResponse struct {
	ID            string             `json:"id"`
	UserID        string             `json:"userId"`
	Item          *orderItemResponse `json:"item"`
	TotalAmount   decimal.Decimal    `json:"totalAmount"`
	Status        string             `json:"status"`
	PaymentStatus string             `json:"paymentStatus"`
}

type orderItemResponse struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	ArtistID    string          `json:"artistId"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

func (r orderResponse) toDomain() *order.Order {
	o := &order.Order{
		ID:            r.ID,
		UserID:        r.UserID,
		TotalAmount:   toMinorUnits(r.TotalAmount),
		Status:        order.Status(r.Status),
		PaymentStatus: r.PaymentStatus,
	}
	if r.Item != nil {
		o.Item = &order.Item{
			ProductID:   r.Item.ProductID,
			ProductName: r.Item.ProductName,
			SellerID:    r.Item.ArtistID,
			Quantity:    r.Item.Quantity,
			Price:       toMinorUnits(r.Item.Price),
			Subtotal:    toMinorUnits(r.Item.Subtotal),
		}
	}
	return o
}

// GetOrder fetches an order. A missing order fails with ErrOrderNotFound.
func (o *OrderClient) GetOrder(ctx context.Context, orderID string) (*order.Order, error) {
	var resp orderResponse
	path := "/api/orders/" + url.PathEscape(orderID)
	if err := o.c.do(ctx, "get order", http.MethodGet, path, nil, &resp, domainErrors.ErrOrderNotFound); err != nil {
		return nil, err
	}
	return resp.toDomain(), nil
}

// UpdateOrderStatus pushes a new status to the order service.
func (o *OrderClient) UpdateOrderStatus(ctx context.Context, orderID string, status order.Status) error {
	path := fmt.Sprintf("/api/orders/%s/status?status=%s", url.PathEscape(orderID), url.QueryEscape(string(status)))
	return o.c.do(ctx, "update order status", http.MethodPut, path, nil, nil, domainErrors.ErrOrderNotFound)
}

// ListSellerOrders returns the orders containing a seller's items.
func (o *OrderClient) ListSellerOrders(ctx context.Context, sellerID string) ([]*order.Order, error) {
	var resp []orderResponse
	path := "/api/orders/artisan/" + url.PathEscape(sellerID)
	if err := o.c.do(ctx, "list seller orders", http.MethodGet, path, nil, &resp, nil); err != nil {
		return nil, err
	}
	orders := make([]*order.Order, 0, len(resp))
	for _, r := range resp {
		orders = append(orders, r.toDomain())
	}
	return orders, nil
}
