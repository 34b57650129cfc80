package enum

// PenaltyType is the kind of sanction recorded on an incident report.
// Values are stored verbatim in the legacy store.
type PenaltyType string

const (
	// PenaltyTypeWarning is a written warning counted toward warning_count.
	PenaltyTypeWarning PenaltyType = "WARNING"
	// PenaltyTypeVerbalWarning is a warning given in game with no count change.
	PenaltyTypeVerbalWarning PenaltyType = "VERBAL_WARNING"
	// PenaltyTypeGameBan removes the player from the game server.
	PenaltyTypeGameBan PenaltyType = "GAME_BAN"
	// PenaltyTypeBanRelease lifts an earlier game ban.
	PenaltyTypeBanRelease PenaltyType = "BAN_RELEASE"
)

// IsValid reports whether the penalty type is one of the known values.
func (p PenaltyType) IsValid() bool {
	switch p {
	case PenaltyTypeWarning, PenaltyTypeVerbalWarning, PenaltyTypeGameBan, PenaltyTypeBanRelease:
		return true
	default:
		return false
	}
}

func (p PenaltyType) String() string {
	return string(p)
}
