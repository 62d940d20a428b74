package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/m3rciful/exchangebot/internal/chat"
	"github.com/m3rciful/exchangebot/internal/product"
)

// Products is a product.Store.
type Products struct {
	mu    sync.RWMutex
	items map[string]product.Product
}

// NewProducts returns an empty product store.
func NewProducts() *Products {
	return &Products{items: make(map[string]product.Product)}
}

func (s *Products) Save(_ context.Context, p product.Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	p.Items = append(chat.Items(nil), p.Items...)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[p.Keyword] = p
	return nil
}

func (s *Products) Get(_ context.Context, keyword string) (product.Product, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.items[product.NormalizeKeyword(keyword)]
	if ok {
		p.Items = append(chat.Items(nil), p.Items...)
	}
	return p, ok, nil
}

func (s *Products) List(_ context.Context) ([]product.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]product.Product, 0, len(s.items))
	for _, p := range s.items {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Keyword < out[j].Keyword })
	return out, nil
}

func (s *Products) Delete(_ context.Context, keyword string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := product.NormalizeKeyword(keyword)
	_, ok := s.items[key]
	delete(s.items, key)
	return ok, nil
}
