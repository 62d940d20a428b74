package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/m3rciful/exchangebot/internal/review"
)

// Tickets is a review.Store.
type Tickets struct {
	mu      sync.Mutex
	tickets map[string]review.Ticket
}

// NewTickets returns an empty ticket store.
func NewTickets() *Tickets {
	return &Tickets{tickets: make(map[string]review.Ticket)}
}

func (s *Tickets) Create(_ context.Context, t review.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets[t.ID] = t
	return nil
}

func (s *Tickets) Get(_ context.Context, id string) (review.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return review.Ticket{}, review.ErrNotFound
	}
	return t, nil
}

func (s *Tickets) Transition(_ context.Context, id string, to review.Status, at time.Time) (review.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return review.Ticket{}, review.ErrNotFound
	}
	if t.Status != review.StatusPending {
		return t, review.ErrAlreadyDecided
	}
	t.Status = to
	t.DecidedAt = &at
	s.tickets[id] = t
	return t, nil
}

func (s *Tickets) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tickets[id]; !ok {
		return review.ErrNotFound
	}
	delete(s.tickets, id)
	return nil
}

func (s *Tickets) ListPending(_ context.Context, limit int) ([]review.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []review.Ticket
	for _, t := range s.tickets {
		if t.Status == review.StatusPending {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Count returns the number of stored tickets.
func (s *Tickets) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tickets)
}
