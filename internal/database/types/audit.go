package types

import (
	"time"

	"github.com/uptrace/bun"
)

// AuditLog is an append-only record of a moderation action.
type AuditLog struct {
	bun.BaseModel `bun:"table:audit_logs"`

	ID           string    `bun:",pk"`
	Content      string    `bun:",type:text,notnull"`
	RegistrantID string    `bun:",notnull"` // Actor who performed the action
	CreatedAt    time.Time `bun:",notnull"`
}
