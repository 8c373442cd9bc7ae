package model

type ErrorResponse struct {
	Error string `json:"error"`
	Data  any    `json:"data,omitempty"`
}

type CreatePaymentRequest struct {
	EventId string `json:"event_id" validate:"required"`
	Amount  int64  `json:"amount" validate:"required,gt=0"`
}

type CreatePaymentResponse struct {
	TransactionId string `json:"transaction_id"`
	RedirectUrl   string `json:"redirect_url"`
}

type PaymentCallbackRequest struct {
	TransactionId string `json:"transaction_id" validate:"required"`
	Status        string `json:"status" validate:"required,oneof=success declined failed"`
}

type RefundTicketResponse struct {
	Id     string `json:"id"`
	Status string `json:"status"`
}

type OrganizerScanRequest struct {
	EventId string `json:"event_id" validate:"required"`
	Token   string `json:"token" validate:"required"`
}

type SelfScanRequest struct {
	Token string `json:"token" validate:"required"`
}

type CheckInResponse struct {
	CheckInId   string `json:"check_in_id"`
	EventId     string `json:"event_id"`
	UserId      string `json:"user_id"`
	ScanMode    string `json:"scan_mode"`
	CheckedInAt string `json:"checked_in_at"`
}

type EventQrResponse struct {
	EventId   string `json:"event_id"`
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at,omitempty"`
}
