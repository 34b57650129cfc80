package enum

// TicketStatus is the review state of a block ticket.
// PENDING may move to APPROVED or REJECTED, both of which are terminal.
type TicketStatus string

const (
	// TicketStatusPending is awaiting review by an in-game admin.
	TicketStatusPending TicketStatus = "PENDING"
	// TicketStatusApproved has been enforced against the player.
	TicketStatusApproved TicketStatus = "APPROVED"
	// TicketStatusRejected was dismissed without enforcement.
	TicketStatusRejected TicketStatus = "REJECTED"
)

// IsTerminal reports whether no further transition is allowed.
func (s TicketStatus) IsTerminal() bool {
	return s == TicketStatusApproved || s == TicketStatusRejected
}

func (s TicketStatus) String() string {
	return string(s)
}
