package constant

// Ticket lifecycle. Pending and paid are the only states that can still move;
// used, refunded and expired are terminal.
const (
	TicketStatusPending  = "pending"
	TicketStatusPaid     = "paid"
	TicketStatusUsed     = "used"
	TicketStatusRefunded = "refunded"
	TicketStatusExpired  = "expired"
)

const (
	RegistrationStatusRegistered = "registered"
	RegistrationStatusCancelled  = "cancelled"
)

const (
	ScanModeOrganizer = "organizer_scans"
	ScanModeStudents  = "students_scan"
)

const (
	PaymentStatusSuccess  = "success"
	PaymentStatusDeclined = "declined"
	PaymentStatusFailed   = "failed"
)

var ticketTransitions = map[string][]string{
	TicketStatusPending: {TicketStatusPaid, TicketStatusExpired},
	TicketStatusPaid:    {TicketStatusUsed, TicketStatusRefunded},
}

// CanTransitionTicket reports whether from -> to is a legal ticket transition.
// The conditional UPDATEs in outbound/store enforce the same guards at commit
// time; this is the shared vocabulary handlers consult to produce a precise
// error before attempting a write.
func CanTransitionTicket(from, to string) bool {
	for _, next := range ticketTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
