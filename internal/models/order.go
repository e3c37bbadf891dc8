package models

// OrderStatus is the backend-assigned lifecycle state of an order.
// The client never assigns a status on its own; statuses only arrive
// from the backend via a refresh or a pushed update.
type OrderStatus int

const (
	// OrderPending means the vendor has not yet accepted the order.
	OrderPending OrderStatus = iota

	// OrderPreparing means the vendor accepted the order and is working on it.
	OrderPreparing

	// OrderReady means the order is ready for pickup.
	OrderReady

	// OrderCompleted is terminal: the order was picked up.
	OrderCompleted

	// OrderCancelled is terminal: the order was cancelled.
	OrderCancelled
)

// Valid reports whether s is one of the known lifecycle states.
func (s OrderStatus) Valid() bool {
	return s >= OrderPending && s <= OrderCancelled
}

// Terminal reports whether the order can no longer change state.
func (s OrderStatus) Terminal() bool {
	return s == OrderCompleted || s == OrderCancelled
}

// Accepted reports whether the vendor has accepted the order and it is
// still in progress. The pickup code can only be revealed in this window.
func (s OrderStatus) Accepted() bool {
	return s == OrderPreparing || s == OrderReady
}

func (s OrderStatus) String() string {
	switch s {
	case OrderPending:
		return "pending"
	case OrderPreparing:
		return "preparing"
	case OrderReady:
		return "ready"
	case OrderCompleted:
		return "completed"
	case OrderCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// OrderItem is a single line on an order.
type OrderItem struct {
	// ItemID identifies the menu item.
	ItemID int64

	// Name is the menu item's display name.
	Name string

	// UnitPrice is the per-unit price in minor currency units (paise/cents).
	UnitPrice int64

	// Quantity is how many units were ordered.
	Quantity int

	// Veg marks the item as vegetarian.
	Veg bool
}

// Order is the locally cached view of a placed order. The backend is the
// source of truth; the local copy exists so the order list survives
// restarts and stays readable while offline.
type Order struct {
	// ID is the backend-assigned order id.
	ID int64

	// VendorID identifies the vendor the order was placed with.
	VendorID int64

	// Items are the ordered lines.
	Items []OrderItem

	// Total is the order total in minor currency units.
	Total int64

	// Status is the backend-assigned lifecycle state.
	Status OrderStatus

	// OTP is the pickup code. Empty until revealed; populated by the
	// reveal call, never by an order fetch.
	OTP string

	// OTPSeen records that the pickup code was revealed. Monotonic:
	// once true it never reverts, so the code is disclosed at most once.
	OTPSeen bool

	// IsSplit records that the order was captured by a split session.
	// Monotonic: once true the order is permanently ineligible for
	// another split.
	IsSplit bool

	// CreatedAt is the Unix timestamp when the order was placed.
	CreatedAt int64
}
