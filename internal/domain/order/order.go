package order

// Status is the order lifecycle status owned by the order service.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusConfirmed  Status = "CONFIRMED"
	StatusProcessing Status = "PROCESSING"
	StatusShipped    Status = "SHIPPED"
	StatusDelivered  Status = "DELIVERED"
	StatusCancelled  Status = "CANCELLED"
	StatusExpired    Status = "EXPIRED"
)

// Order is the order service's view of an order. Orders carry exactly one item.
type Order struct {
	ID            string
	UserID        string
	Item          *Item
	TotalAmount   int64 // minor units
	Status        Status
	PaymentStatus string
}

type Item struct {
	ProductID   string
	ProductName string
	SellerID    string
	Quantity    int
	Price       int64 // minor units
	Subtotal    int64 // minor units
}
