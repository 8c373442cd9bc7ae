package model

type AwardPointsEventMessage struct {
	UserID  string `json:"user_id"`
	EventID string `json:"event_id"`
	Points  int32  `json:"points"`
	Reason  string `json:"reason"`
}

type TicketSettledEventMessage struct {
	TicketID      string `json:"ticket_id"`
	EventID       string `json:"event_id"`
	UserEmail     string `json:"user_email"`
	AmountPaid    int64  `json:"amount_paid"`
	TransactionID string `json:"transaction_id"`
}
