package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/exchangebot/internal/chat"
	"github.com/m3rciful/exchangebot/internal/product"
)

// Products is a product.Store with items kept as JSONB.
type Products struct {
	db *sqlx.DB
}

type productRow struct {
	Keyword   string    `db:"keyword"`
	Items     itemsJSON `db:"items"`
	CreatedAt time.Time `db:"created_at"`
}

func (r productRow) product() product.Product {
	return product.Product{Keyword: r.Keyword, Items: chat.Items(r.Items), CreatedAt: r.CreatedAt}
}

func (s *Products) Save(ctx context.Context, p product.Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO products (keyword, items, created_at)
VALUES ($1, $2, $3)
ON CONFLICT (keyword) DO UPDATE SET items = EXCLUDED.items, created_at = EXCLUDED.created_at`,
		p.Keyword, itemsJSON(p.Items), p.CreatedAt)
	if err != nil {
		return fmt.Errorf("save product %q: %w", p.Keyword, err)
	}
	return nil
}

func (s *Products) Get(ctx context.Context, keyword string) (product.Product, bool, error) {
	kw := product.NormalizeKeyword(keyword)
	var row productRow
	err := s.db.GetContext(ctx, &row, `SELECT keyword, items, created_at FROM products WHERE keyword = $1`, kw)
	if errors.Is(err, sql.ErrNoRows) {
		return product.Product{}, false, nil
	}
	if err != nil {
		return product.Product{}, false, fmt.Errorf("get product %q: %w", kw, err)
	}
	return row.product(), true, nil
}

func (s *Products) List(ctx context.Context) ([]product.Product, error) {
	var rows []productRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT keyword, items, created_at FROM products ORDER BY keyword`); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	out := make([]product.Product, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.product())
	}
	return out, nil
}

func (s *Products) Delete(ctx context.Context, keyword string) (bool, error) {
	kw := product.NormalizeKeyword(keyword)
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE keyword = $1`, kw)
	if err != nil {
		return false, fmt.Errorf("delete product %q: %w", kw, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete product %q: %w", kw, err)
	}
	return n > 0, nil
}
