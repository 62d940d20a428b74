package quota

import "time"

// Outcome is the result class of CheckAndConsume.
type Outcome string

const (
	Allowed Outcome = "allowed"
	// AllowedWithCooldownTrigger succeeds and arms the next cooldown.
	AllowedWithCooldownTrigger Outcome = "allowed_cooldown_armed"
	Denied                     Outcome = "denied"
)

// Reason explains a Denied outcome.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonDailyCapReached Reason = "daily_cap"
	ReasonCooling         Reason = "cooling"
)

// Decision is the value returned for every redemption attempt.
type Decision struct {
	Outcome Outcome
	Reason  Reason
	// RetryAfter is set only for ReasonCooling.
	RetryAfter time.Duration
	// Record is the state after the decision was applied.
	Record Record
}

// Permitted reports whether the redemption may proceed.
func (d Decision) Permitted() bool {
	return d.Outcome == Allowed || d.Outcome == AllowedWithCooldownTrigger
}
