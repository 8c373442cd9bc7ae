package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"campus-ticket/common"
	"campus-ticket/common/constant"
	"campus-ticket/common/otel"
	"campus-ticket/model"
	"campus-ticket/outbound/store"

	"github.com/google/uuid"
	"golang.org/x/text/message"
)

type EmailSender interface {
	Send(to []string, subject string, body string) error
}

type NotificationEvent struct {
	EmailOutbound     EmailSender
	Querier           *store.Queries
	CurrencyFormatter *message.Printer

	Timeout time.Duration
}

const settlementEmailTemplate = `Your ticket is confirmed.

Ticket: %s
Amount paid: %s
Transaction: %s

Show the QR code in the app at the venue entrance.
`

func (in NotificationEvent) SendEmailHandler(ctx context.Context, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, in.Timeout)
	defer cancel()

	var req model.TicketSettledEventMessage
	if err := json.Unmarshal(msg, &req); err != nil {
		slog.WarnContext(ctx, "send email event unmarshal error", slog.Any(constant.LogFieldErr, err))
		return nil
	}

	ctx, span := otel.Tracer.Start(ctx, "NotificationEvent.SendEmailHandler")
	defer span.End()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)

	amount := in.CurrencyFormatter.Sprintf("$%d", req.AmountPaid)
	body := fmt.Sprintf(settlementEmailTemplate, req.TicketID, amount, req.TransactionID)

	if err := in.EmailOutbound.Send([]string{req.UserEmail}, "Ticket Confirmation", body); err != nil {
		slog.ErrorContext(ctx, "failed to send settlement email", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		return err
	}

	slog.DebugContext(ctx, "settlement email sent", traceIdAttr)

	return nil
}

func (in NotificationEvent) AwardPointsHandler(ctx context.Context, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, in.Timeout)
	defer cancel()

	var req model.AwardPointsEventMessage
	if err := json.Unmarshal(msg, &req); err != nil {
		slog.WarnContext(ctx, "award points event unmarshal error", slog.Any(constant.LogFieldErr, err))
		return nil
	}

	ctx, span := otel.Tracer.Start(ctx, "NotificationEvent.AwardPointsHandler")
	defer span.End()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)

	err := in.Querier.InsertPointsEntry(ctx, store.InsertPointsEntryParams{
		ID:      uuid.NewString(),
		UserID:  req.UserID,
		EventID: req.EventID,
		Points:  req.Points,
		Reason:  req.Reason,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to insert points entry", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		return err
	}

	slog.DebugContext(ctx, "points awarded", traceIdAttr, slog.Any(constant.LogFieldPayload, req))

	return nil
}
