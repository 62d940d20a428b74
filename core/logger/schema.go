package logger

import "strings"

const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

var allowedLevels = map[string]string{
	"debug":   LevelDebug,
	"info":    LevelInfo,
	"warn":    LevelWarn,
	"warning": LevelWarn,
	"error":   LevelError,
}

var allowedStatus = map[string]string{
	"ok":           "ok",
	"fail":         "fail",
	"skip":         "skip",
	"retry":        "retry",
	"rate_limited": "rate_limited",
	"cancelled":    "cancelled",
	"denied":       "denied",
}

// allowedOutcome mirrors quota.Outcome names.
var allowedOutcome = map[string]string{
	"allowed":                "allowed",
	"allowed_cooldown_armed": "allowed_cooldown_armed",
	"denied":                 "denied",
	"ok":                     "ok",
	"fail":                   "fail",
	"cancelled":              "cancelled",
	"rate_limited":           "rate_limited",
}

// allowedDecision mirrors review decisions.
var allowedDecision = map[string]string{
	"approve": "approve",
	"reject":  "reject",
	"ban":     "ban",
	"delete":  "delete",
}

func normalizeLevel(level string) string {
	if level == "" {
		return LevelInfo
	}
	if mapped, ok := allowedLevels[strings.ToLower(level)]; ok {
		return mapped
	}
	return strings.ToUpper(level)
}

func normalizeStatus(status string) (string, bool) {
	return lookupEnum(allowedStatus, status)
}

func normalizeOutcome(outcome string) (string, bool) {
	return lookupEnum(allowedOutcome, outcome)
}

func normalizeDecision(decision string) (string, bool) {
	return lookupEnum(allowedDecision, decision)
}

func lookupEnum(set map[string]string, v string) (string, bool) {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return "", false
	}
	if mapped, ok := set[v]; ok {
		return mapped, true
	}
	return v, false
}

var defaultKeyOrder = []string{
	"ts",
	"level",
	"component",
	"event",
	"status",
	"rid",
	"rid_full",
	"ts_unix_nano",
	"update_id",
	"user_id",
	"chat_id",
	"handler",
	"op",
	"cb_key",
	"action",
	"outcome",
	"reason",
	"decision",
	"duration_ms",
	"keyword",
	"product_id",
	"items",
	"ticket_id",
	"daily_count",
	"allowance",
	"cooldown_level",
	"retry_after_ms",
	"tier",
	"attempts",
	"page",
	"pages",
	"username",
	"mode",
	"listen",
	"public_url",
	"http_code",
	"db",
	"host",
	"port",
	"addr",
	"err",
	"err_code",
	"cause",
	"retryable",
	"backoff_ms",
}
