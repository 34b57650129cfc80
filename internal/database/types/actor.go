package types

import (
	"errors"
	"time"

	"github.com/dokkuadmin/banflow/internal/database/types/enum"
	"github.com/uptrace/bun"
)

var ErrActorNotFound = errors.New("actor not found")

// Actor is a dashboard account.
type Actor struct {
	bun.BaseModel `bun:"table:actors"`

	ID          string          `bun:",pk"`
	Name        string          `bun:",notnull"`
	Role        enum.Role       `bun:",notnull"`
	Permissions enum.Permission `bun:",notnull"`
	CreatedAt   time.Time       `bun:",notnull"`
	UpdatedAt   time.Time       `bun:",notnull"`
}
