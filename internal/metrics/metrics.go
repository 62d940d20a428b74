// Package metrics exposes the bot's Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/m3rciful/exchangebot/internal/conversation"
	"github.com/m3rciful/exchangebot/internal/quota"
)

// BotMetrics holds every collector. A nil *BotMetrics is valid and records nothing.
type BotMetrics struct {
	// quota engine
	QuotaDecisionTotal *prometheus.CounterVec // outcome, reason

	// delivery
	DeliveryItemsTotal *prometheus.CounterVec // result: ok/fail

	// review queue
	ReviewEventsTotal *prometheus.CounterVec // event

	// conversation
	TransitionTotal *prometheus.CounterVec // from, to

	// redis lock
	LockAcquireTotal    *prometheus.CounterVec // result: ok/fail
	LockAcquireDuration prometheus.Histogram

	// telegram updates
	UpdatesTotal    *prometheus.CounterVec // kind, status
	HandlerDuration *prometheus.HistogramVec
	MessagesSent    prometheus.Counter
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *BotMetrics {
	f := promauto.With(reg)
	return &BotMetrics{
		QuotaDecisionTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exchangebot_quota_decisions_total",
				Help: "Quota decisions by outcome and denial reason",
			},
			[]string{"outcome", "reason"},
		),
		DeliveryItemsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exchangebot_delivery_items_total",
				Help: "Product items sent to users",
			},
			[]string{"result"},
		),
		ReviewEventsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exchangebot_review_events_total",
				Help: "Review queue submissions and decisions",
			},
			[]string{"event"},
		),
		TransitionTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exchangebot_conversation_transitions_total",
				Help: "Conversation state transitions",
			},
			[]string{"from", "to"},
		),
		LockAcquireTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exchangebot_lock_acquire_total",
				Help: "Per-user quota lock acquisitions",
			},
			[]string{"result"},
		),
		LockAcquireDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "exchangebot_lock_acquire_duration_seconds",
				Help:    "Time spent acquiring the per-user quota lock",
				Buckets: prometheus.DefBuckets,
			},
		),
		UpdatesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exchangebot_updates_total",
				Help: "Telegram updates handled",
			},
			[]string{"kind", "status"},
		),
		HandlerDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "exchangebot_handler_duration_seconds",
				Help:    "Update handler latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		MessagesSent: f.NewCounter(
			prometheus.CounterOpts{
				Name: "exchangebot_messages_sent_total",
				Help: "Messages sent or edited by handlers",
			},
		),
	}
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "fail"
}

func (m *BotMetrics) ObserveQuota(outcome quota.Outcome, reason quota.Reason) {
	if m == nil {
		return
	}
	r := string(reason)
	if r == "" {
		r = "none"
	}
	m.QuotaDecisionTotal.WithLabelValues(string(outcome), r).Inc()
}

func (m *BotMetrics) ObserveDelivery(ok bool) {
	if m == nil {
		return
	}
	m.DeliveryItemsTotal.WithLabelValues(result(ok)).Inc()
}

func (m *BotMetrics) ObserveReview(event string) {
	if m == nil {
		return
	}
	m.ReviewEventsTotal.WithLabelValues(event).Inc()
}

func (m *BotMetrics) ObserveTransition(from, to conversation.Action) {
	if m == nil {
		return
	}
	m.TransitionTotal.WithLabelValues(actionLabel(from), actionLabel(to)).Inc()
}

func actionLabel(a conversation.Action) string {
	if a == conversation.Idle {
		return "idle"
	}
	return string(a)
}

func (m *BotMetrics) ObserveLock(ok bool, took time.Duration) {
	if m == nil {
		return
	}
	m.LockAcquireTotal.WithLabelValues(result(ok)).Inc()
	m.LockAcquireDuration.Observe(took.Seconds())
}

// ObserveUpdate records one handled update and the messages it produced.
func (m *BotMetrics) ObserveUpdate(kind, status string, took time.Duration, messages int) {
	if m == nil {
		return
	}
	m.UpdatesTotal.WithLabelValues(kind, status).Inc()
	m.HandlerDuration.WithLabelValues(kind).Observe(took.Seconds())
	if messages > 0 {
		m.MessagesSent.Add(float64(messages))
	}
}
