package app

import (
	"time"

	"github.com/m3rciful/exchangebot/core/bootstrap"
	coreconfig "github.com/m3rciful/exchangebot/core/config"
	"github.com/m3rciful/exchangebot/internal/conversation"
	"github.com/m3rciful/exchangebot/internal/metrics"
	"github.com/m3rciful/exchangebot/internal/product"
	"github.com/m3rciful/exchangebot/internal/quota"
	"github.com/m3rciful/exchangebot/internal/review"
	"github.com/m3rciful/exchangebot/internal/storage/memory"
	"github.com/m3rciful/exchangebot/internal/storage/postgres"
	"github.com/m3rciful/exchangebot/internal/storage/redisstore"
	"github.com/m3rciful/exchangebot/internal/user"
)

type stores struct {
	mode     string
	users    user.Store
	quotas   quota.Store
	products product.Store
	tickets  review.Store
	sessions conversation.Store
	locker   quota.Locker
}

// buildStores picks Postgres when a pool exists and memory otherwise;
// conversation state and the quota lock live in Redis when it is connected.
func buildStores(infra *bootstrap.Result, rc coreconfig.RedisConfig, m *metrics.BotMetrics) stores {
	var s stores
	if infra != nil && infra.DB != nil {
		db := postgres.New(infra.DB)
		s.mode = "postgres"
		s.users, s.quotas, s.products, s.tickets = db.Users, db.Quotas, db.Products, db.Tickets
	} else {
		users := memory.NewUsers(nil)
		s.mode = "memory"
		s.users, s.quotas, s.products, s.tickets = users, memory.NewQuotas(users), memory.NewProducts(), memory.NewTickets()
	}

	if infra != nil && infra.Redis != nil {
		s.sessions = redisstore.NewSessions(infra.Redis)
		if !rc.DisableLocking {
			s.locker = redisstore.NewLocker(infra.Redis, time.Duration(rc.LockExpiryMS)*time.Millisecond, m)
		}
		return s
	}
	s.sessions = memory.NewSessions(nil)
	return s
}
