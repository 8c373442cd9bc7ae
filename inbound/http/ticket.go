package http

import (
	"log/slog"
	"net/http"
	"time"

	"campus-ticket/common"
	"campus-ticket/common/constant"
	"campus-ticket/common/errs"
	"campus-ticket/common/otel"
	"campus-ticket/model"
	"campus-ticket/outbound/store"

	"github.com/jackc/pgx/v5"
)

type TicketHttp struct {
	Querier *store.Queries

	TimeNow func() time.Time
}

func RegisterTicketHttp(mux *http.ServeMux, querier *store.Queries) *TicketHttp {
	in := &TicketHttp{
		Querier: querier,
		TimeNow: time.Now,
	}

	mux.HandleFunc("POST /api/tickets/{id}/refund", in.refund)

	return in
}

func (in TicketHttp) refund(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUser(r)
	if err != nil {
		writeErrorResponse(w, err)
		return
	}

	ctx, span := otel.Tracer.Start(r.Context(), "TicketHttp.refund")
	defer span.End()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)

	ticketID := r.PathValue("id")
	slog.InfoContext(ctx, "refund ticket receive request", slog.Any(constant.LogFieldPayload, ticketID), traceIdAttr)

	ticket, err := in.Querier.FindTicketByID(ctx, ticketID)
	if err == pgx.ErrNoRows {
		writeErrorResponse(w, errs.NotFound("Ticket not found"))
		return
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to find ticket", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		writeErrorResponse(w, err)
		return
	}

	if ticket.UserID != userID && r.Header.Get("X-User-Role") != "admin" {
		writeErrorResponse(w, errs.Forbidden("Only the ticket owner or an admin may refund"))
		return
	}

	switch ticket.Status {
	case constant.TicketStatusPaid:
	case constant.TicketStatusRefunded:
		writeErrorResponse(w, errs.BadRequest("Ticket already refunded"))
		return
	case constant.TicketStatusUsed:
		writeErrorResponse(w, errs.BadRequest("Ticket already used"))
		return
	default:
		writeErrorResponse(w, errs.BadRequest("Ticket is not paid"))
		return
	}

	event, err := in.Querier.FindEventByID(ctx, ticket.EventID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to find event", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		writeErrorResponse(w, err)
		return
	}

	if !in.TimeNow().Before(event.StartAt) {
		writeErrorResponse(w, errs.BadRequest("Event has already started"))
		return
	}

	cmd, err := in.Querier.RefundPaidTicket(ctx, ticket.ID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to refund ticket", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		writeErrorResponse(w, err)
		return
	}

	if cmd.RowsAffected() == 0 {
		writeErrorResponse(w, errs.Conflict("Ticket is no longer refundable"))
		return
	}

	slog.InfoContext(ctx, "ticket refunded", traceIdAttr, slog.Any(constant.LogFieldResponse, ticket.ID))

	writeJSONResponse(w, http.StatusOK, model.RefundTicketResponse{
		Id:     ticket.ID,
		Status: constant.TicketStatusRefunded,
	})
}
