package types

import (
	"errors"
	"time"

	"github.com/dokkuadmin/banflow/internal/database/types/enum"
	"github.com/uptrace/bun"
)

var ErrTicketNotFound = errors.New("block ticket not found")

// BlockTicket is a staff request to permanently ban the target of a report.
// ReportID points into the legacy store and is not a foreign key.
type BlockTicket struct {
	bun.BaseModel `bun:"table:block_tickets"`

	ID           string            `bun:",pk"`
	ReportID     int64             `bun:",notnull"`
	RegistrantID string            `bun:",notnull"` // Actor who filed the request
	ApproverID   string            `bun:",nullzero"` // Actor who resolved it
	Status       enum.TicketStatus `bun:",notnull"`
	CreatedAt    time.Time         `bun:",notnull"`
	ApprovedAt   time.Time         `bun:",nullzero"` // Set only on approval
}

// IsPending reports whether the ticket still awaits review.
func (t *BlockTicket) IsPending() bool {
	return t.Status == enum.TicketStatusPending
}
