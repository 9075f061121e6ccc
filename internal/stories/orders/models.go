package orders

import (
	"time"

	"engagement-shop/internal/stories/catalog"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusPartial    Status = "partial"
	StatusCanceled   Status = "canceled"
	StatusFailed     Status = "failed"
	StatusRefunded   Status = "refunded"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusPartial, StatusCanceled, StatusFailed, StatusRefunded:
		return true
	}
	return false
}

// Refundable reports whether an admin refund may be issued from this status.
func (s Status) Refundable() bool {
	return s == StatusCompleted || s == StatusProcessing
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

type RefillStatus string

const (
	RefillPending    RefillStatus = "pending"
	RefillProcessing RefillStatus = "processing"
	RefillCompleted  RefillStatus = "completed"
	RefillRejected   RefillStatus = "rejected"
)

type DeliverySpeed string

const (
	DeliveryStandard DeliverySpeed = "standard"
	DeliveryFast     DeliverySpeed = "fast"
)

type Order struct {
	ID                string              `json:"id"`
	OrderNumber       string              `json:"orderNumber"`
	UserID            string              `json:"userId"`
	ServiceID         string              `json:"serviceId"`
	SupplierServiceID string              `json:"-"`
	SocialUsername    string              `json:"socialUsername"`
	PostURL           *string             `json:"postUrl,omitempty"`
	PostID            *string             `json:"postId,omitempty"`
	ServiceType       catalog.ServiceType `json:"serviceType"`
	Quality           catalog.Quality     `json:"quality"`
	Quantity          int                 `json:"quantity"`
	Price             decimal.Decimal     `json:"price"`
	OriginalPrice     decimal.Decimal     `json:"originalPrice"`
	SupplierPrice     decimal.Decimal     `json:"-"`
	DeliverySpeed     DeliverySpeed       `json:"deliverySpeed"`
	Status            Status              `json:"status"`
	PaymentStatus     PaymentStatus       `json:"paymentStatus"`
	SupplierOrderID   *string             `json:"supplierOrderId,omitempty"`
	StartCount        int                 `json:"startCount"`
	Remains           int                 `json:"remains"`
	RefillRequested   bool                `json:"refillRequested"`
	RefillID          *string             `json:"refillId,omitempty"`
	RefillStatus      *RefillStatus       `json:"refillStatus,omitempty"`
	DeliveryStartedAt *time.Time          `json:"deliveryStartedAt,omitempty"`
	CompletedAt       *time.Time          `json:"completedAt,omitempty"`
	CreatedAt         time.Time           `json:"createdAt"`
	UpdatedAt         time.Time           `json:"updatedAt"`
}

// TargetLink is the URL the supplier delivers to.
func (o *Order) TargetLink() string {
	if o.ServiceType == catalog.TypeFollowers || o.PostURL == nil {
		return "https://instagram.com/" + o.SocialUsername
	}
	return *o.PostURL
}

type CreateOrderRequest struct {
	UserID         string
	TargetUsername string
	Service        catalog.Selector
	Quantity       int
	PostURL        string
	DeliverySpeed  DeliverySpeed
}

type GetCriteria struct {
	ID              *string
	OrderNumber     *string
	SupplierOrderID *string
	// ExcludeStatuses makes an update a no-op for rows in one of these statuses.
	ExcludeStatuses []Status
}

type ListCriteria struct {
	UserID         *string
	Statuses       []Status
	PaymentStatus  *PaymentStatus
	ServiceType    *catalog.ServiceType
	RefillStatuses []RefillStatus
	// WithSupplierOrder keeps only orders already placed at the supplier.
	WithSupplierOrder bool
	CreatedFrom       *time.Time
	CreatedTo         *time.Time
	Limit             int
	Offset            int
}

type UpdateParams struct {
	Status            *Status
	PaymentStatus     *PaymentStatus
	SupplierOrderID   *string
	StartCount        *int
	Remains           *int
	RefillRequested   *bool
	RefillID          *string
	RefillStatus      *RefillStatus
	DeliveryStartedAt *time.Time
	CompletedAt       *time.Time
}

type Period string

const (
	PeriodToday Period = "today"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
	PeriodAll   Period = "all"
)

// Since returns the lower bound of the period, nil for PeriodAll.
func (p Period) Since(now time.Time) (*time.Time, bool) {
	var since time.Time
	switch p {
	case PeriodToday:
		since = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	case PeriodWeek:
		since = now.AddDate(0, 0, -7)
	case PeriodMonth:
		since = now.AddDate(0, -1, 0)
	case PeriodYear:
		since = now.AddDate(-1, 0, 0)
	case PeriodAll, "":
		return nil, true
	default:
		return nil, false
	}
	return &since, true
}

type Stats struct {
	Period            Period                      `json:"period"`
	TotalOrders       int                         `json:"totalOrders"`
	ByStatus          map[Status]int              `json:"byStatus"`
	ByServiceType     map[catalog.ServiceType]int `json:"byServiceType"`
	Revenue           decimal.Decimal             `json:"revenue"`
	AverageOrderValue decimal.Decimal             `json:"averageOrderValue"`
}

// StatsRow is one (status, service type) bucket as aggregated by storage.
type StatsRow struct {
	Status      Status
	ServiceType catalog.ServiceType
	Count       int
	Revenue     decimal.Decimal
}
