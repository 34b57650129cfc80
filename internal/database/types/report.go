package types

import (
	"errors"
	"time"

	"github.com/dokkuadmin/banflow/internal/database/types/enum"
	"github.com/uptrace/bun"
)

var (
	ErrReportNotFound     = errors.New("incident report not found")
	ErrPlayerNotFound     = errors.New("player not found")
	ErrInvalidBanDuration = errors.New("invalid ban duration")
)

const (
	// BanDurationPermanent marks a report whose ban never expires.
	BanDurationPermanent = -1
	// BanDurationNone marks a report with no ban attached.
	BanDurationNone = 0
	// BanDurationBlockRequest is the provisional duration applied to staff block requests.
	BanDurationBlockRequest = 72

	// PermanentBanTime is the marker written to players.bantime for permanent bans.
	PermanentBanTime = "영구정지"
)

// IncidentReport is a moderator-authored record of a player incident in the legacy store.
type IncidentReport struct {
	bun.BaseModel `bun:"table:incident_reports"`

	ReportID              int64            `bun:"report_id,pk,autoincrement"`
	Reason                string           `bun:"reason,notnull"`
	Description           string           `bun:"description,type:text"`
	IncidentTime          time.Time        `bun:"incident_time,notnull"`
	TargetUserID          int64            `bun:"target_user_id,notnull"`
	TargetUserNickname    string           `bun:"target_user_nickname"`
	ReportingUserID       int64            `bun:"reporting_user_id"`
	ReportingUserNickname string           `bun:"reporting_user_nickname"`
	PenaltyType           enum.PenaltyType `bun:"penalty_type,notnull"`
	WarningCount          int              `bun:"warning_count,notnull"`
	DetentionTimeMinutes  int              `bun:"detention_time_minutes,notnull"`
	BanDurationHours      int              `bun:"ban_duration_hours,notnull"` // -1 permanent, 0 none, N hours
	Admin                 string           `bun:"admin"`                      // Free-text name of the acting moderator
	Image                 string           `bun:"image"`                      // Evidence URL
}

// IsPermanent reports whether the report carries a permanent ban.
func (r *IncidentReport) IsPermanent() bool {
	return r.BanDurationHours == BanDurationPermanent
}

// Player is the subset of a legacy player row that carries ban state.
type Player struct {
	bun.BaseModel `bun:"table:players"`

	ID        int64  `bun:"id,pk"`
	Nickname  string `bun:"nickname"`
	Banned    bool   `bun:"banned,notnull"`
	Bantime   string `bun:"bantime"`   // Hour count, PermanentBanTime, or empty
	Banreason string `bun:"banreason"` // Copied from the enforcing report
	Banadmin  string `bun:"banadmin"`  // Copied from the enforcing report
}

// IsEnforcedBy reports whether the player's ban state matches a permanent
// enforcement of the given report.
func (p *Player) IsEnforcedBy(report *IncidentReport) bool {
	return p.Banned &&
		p.Bantime == PermanentBanTime &&
		p.Banreason == report.Reason &&
		p.Banadmin == report.Admin
}
