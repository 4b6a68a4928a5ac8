package order

import "time"

// Status は注文の状態を表す
type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
)

// Line は注文明細
type Line struct {
	ItemID    string
	Quantity  int
	UnitPrice int
}

// Order は注文エンティティを表す
type Order struct {
	ID             string
	AccountID      string
	Lines          []Line
	Status         Status
	IdempotencyKey string
	TotalAmount    int
	ExpiresAt      time.Time
	PaidAt         *time.Time
	CancelledAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// DefaultPaymentTimeout は支払い期限の既定値
const DefaultPaymentTimeout = 15 * time.Minute

// NewOrder は新しい注文を作成する
func NewOrder(accountID, idempotencyKey string, lines []Line, paymentTimeout time.Duration) *Order {
	if paymentTimeout <= 0 {
		paymentTimeout = DefaultPaymentTimeout
	}
	now := time.Now()
	o := &Order{
		AccountID:      accountID,
		Lines:          lines,
		Status:         StatusPending,
		IdempotencyKey: idempotencyKey,
		ExpiresAt:      now.Add(paymentTimeout),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	o.TotalAmount = o.total()
	return o
}

func (o *Order) total() int {
	sum := 0
	for _, l := range o.Lines {
		sum += l.Quantity * l.UnitPrice
	}
	return sum
}

// IsExpired は支払い期限が切れているかを返す
func (o *Order) IsExpired() bool {
	return time.Now().After(o.ExpiresAt)
}

// IsPending は支払い待ちかを返す
func (o *Order) IsPending() bool {
	return o.Status == StatusPending
}

// MarkPaid は注文を支払い済みにする
func (o *Order) MarkPaid() error {
	if o.Status != StatusPending {
		return ErrOrderNotPending
	}
	if o.IsExpired() {
		return ErrOrderExpired
	}
	now := time.Now()
	o.Status = StatusPaid
	o.PaidAt = &now
	o.UpdatedAt = now
	return nil
}

// Cancel は注文をキャンセルする
func (o *Order) Cancel() error {
	switch o.Status {
	case StatusCancelled:
		return ErrOrderAlreadyCancelled
	case StatusPaid:
		return ErrOrderAlreadyPaid
	}
	now := time.Now()
	o.Status = StatusCancelled
	o.CancelledAt = &now
	o.UpdatedAt = now
	return nil
}

// Validate は注文の検証を行う
func (o *Order) Validate() error {
	if o.AccountID == "" {
		return ErrAccountIDRequired
	}
	if len(o.Lines) == 0 {
		return ErrLinesRequired
	}
	if o.IdempotencyKey == "" {
		return ErrIdempotencyKeyRequired
	}
	seen := make(map[string]struct{}, len(o.Lines))
	for _, l := range o.Lines {
		if l.ItemID == "" || l.Quantity <= 0 {
			return ErrInvalidLine
		}
		if _, dup := seen[l.ItemID]; dup {
			return ErrInvalidLine
		}
		seen[l.ItemID] = struct{}{}
	}
	return nil
}
