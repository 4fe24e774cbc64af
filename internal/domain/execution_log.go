package domain

import "time"

// LogLevel is the severity of an execution log entry.
type LogLevel string

const (
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// ExecutionLog is one append-only audit entry for a copier. Entries reference
// the trades and follower account involved where applicable.
type ExecutionLog struct {
	ID             int64
	CopierID       string
	Level          LogLevel
	Message        string
	MasterTradeID  *string
	SlaveTradeID   *string
	SlaveAccountID *string
	Details        map[string]any
	CreatedAt      time.Time
}
