// Package postgres implements the bot's stores on top of sqlx and lib/pq.
// The schema lives in the migrations directory.
package postgres

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/exchangebot/internal/chat"
)

// dayFormat renders a DATE column as quota.DateLayout.
const dayFormat = "YYYY-MM-DD"

// DB groups every store that shares one connection pool.
type DB struct {
	Users    *Users
	Quotas   *Quotas
	Products *Products
	Tickets  *Tickets
}

// New wraps db with all stores.
func New(db *sqlx.DB) *DB {
	return &DB{
		Users:    &Users{db: db},
		Quotas:   &Quotas{db: db},
		Products: &Products{db: db},
		Tickets:  &Tickets{db: db},
	}
}

// itemsJSON stores chat.Items in a JSONB column.
type itemsJSON chat.Items

func (j itemsJSON) Value() (driver.Value, error) {
	if j == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(chat.Items(j))
}

func (j *itemsJSON) Scan(value any) error {
	if value == nil {
		*j = nil
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.New("items: unsupported column type")
	}
	var items chat.Items
	if err := json.Unmarshal(raw, &items); err != nil {
		return fmt.Errorf("items: %w", err)
	}
	*j = itemsJSON(items)
	return nil
}
