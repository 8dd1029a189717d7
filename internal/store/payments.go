package store

import (
	"path/filepath"
	"sync"
	"time"
)

// Payment is one invoice issued to a user.
type Payment struct {
	OrderID   string    `json:"order_id"`
	TrackID   string    `json:"track_id"`
	UserID    string    `json:"user_id"`
	PlanID    string    `json:"plan_id"`
	AmountUSD float64   `json:"amount_usd"`
	Status    string    `json:"status"` // "pending", "paid", "expired"
	CreatedAt time.Time `json:"created_at"`
	PaidAt    time.Time `json:"paid_at,omitempty"`
}

// PaymentStore persists invoices keyed by order ID.
type PaymentStore struct {
	path string

	mu       sync.Mutex
	payments map[string]Payment
}

// NewPaymentStore loads dataDir/payments.json.
func NewPaymentStore(dataDir string) (*PaymentStore, error) {
	if err := ensureDir(dataDir); err != nil {
		return nil, err
	}
	s := &PaymentStore{
		path:     filepath.Join(dataDir, "payments.json"),
		payments: make(map[string]Payment),
	}
	if _, err := readFile(s.path, &s.payments); err != nil {
		return nil, err
	}
	return s, nil
}

// Put inserts or replaces a payment record and persists.
func (s *PaymentStore) Put(p Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments[p.OrderID] = p
	return s.save()
}

// Get returns the payment with the given order ID.
func (s *PaymentStore) Get(orderID string) (Payment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[orderID]
	return p, ok
}

// PendingForUser returns the user's pending invoices, newest first is
// not guaranteed.
func (s *PaymentStore) PendingForUser(userID string) []Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Payment
	for _, p := range s.payments {
		if p.UserID == userID && p.Status == "pending" {
			out = append(out, p)
		}
	}
	return out
}

// Pending returns every invoice still awaiting payment.
func (s *PaymentStore) Pending() []Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Payment
	for _, p := range s.payments {
		if p.Status == "pending" {
			out = append(out, p)
		}
	}
	return out
}

// SetStatus updates a payment's status and persists. Marking "paid"
// stamps PaidAt.
func (s *PaymentStore) SetStatus(orderID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[orderID]
	if !ok {
		return nil
	}
	p.Status = status
	if status == "paid" && p.PaidAt.IsZero() {
		p.PaidAt = time.Now().UTC()
	}
	s.payments[orderID] = p
	return s.save()
}

func (s *PaymentStore) save() error {
	return writeAtomic(s.path, s.payments)
}
