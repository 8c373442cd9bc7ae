package http

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"campus-ticket/common"
	"campus-ticket/common/constant"
	"campus-ticket/common/errs"
	"campus-ticket/common/otel"
	"campus-ticket/common/qrtoken"
	"campus-ticket/model"
	"campus-ticket/monitoring"
	"campus-ticket/outbound/store"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type PaymentHttp struct {
	Querier   *store.Queries
	Cache     *redis.Client
	Publisher jetstream.Publisher
	Validate  *validator.Validate
	Codec     *qrtoken.Codec

	TimeNow func() time.Time

	webhookSecret  string
	gatewayBaseUrl string
}

func RegisterPaymentHttp(
	mux *http.ServeMux,
	cfg *viper.Viper,
	querier *store.Queries,
	cache *redis.Client,
	publisher jetstream.Publisher,
	validate *validator.Validate,
	codec *qrtoken.Codec,
) *PaymentHttp {
	in := &PaymentHttp{
		Querier:   querier,
		Cache:     cache,
		Publisher: publisher,
		Validate:  validate,
		Codec:     codec,
		TimeNow:   time.Now,

		webhookSecret:  cfg.GetString("payment.webhook_secret"),
		gatewayBaseUrl: cfg.GetString("payment.gateway_base_url"),
	}

	mux.HandleFunc("POST /api/payments", in.create)
	mux.HandleFunc("POST /api/payments/callback", in.callback)

	return in
}

func (in PaymentHttp) create(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUser(r)
	if err != nil {
		writeErrorResponse(w, err)
		return
	}

	var req model.CreatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, &errs.HttpError{Code: http.StatusBadRequest, Message: "Invalid request"})
		return
	}

	if err := in.Validate.Struct(req); err != nil {
		writeErrorResponse(w, err)
		return
	}

	ctx, span := otel.Tracer.Start(r.Context(), "PaymentHttp.create")
	defer span.End()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)
	slog.InfoContext(ctx, "create payment receive request", slog.Any(constant.LogFieldPayload, req), traceIdAttr)

	event, err := in.Querier.FindEventByID(ctx, req.EventId)
	if err == pgx.ErrNoRows {
		writeErrorResponse(w, errs.NotFound("Event not found"))
		return
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to find event", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		writeErrorResponse(w, err)
		return
	}

	if !event.IsPaid {
		writeErrorResponse(w, errs.BadRequest("Event does not require payment"))
		return
	}

	purchaseLock, err := in.Cache.SetNX(ctx,
		fmt.Sprintf(constant.PaymentUserLockKey, event.ID, userID),
		true, constant.PaymentUserLockDefaultTTL).Result()
	if err != nil {
		slog.ErrorContext(ctx, "failed to set purchase lock", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		writeErrorResponse(w, err)
		return
	}

	if !purchaseLock {
		slog.DebugContext(ctx, "purchase already in progress", traceIdAttr)
		writeErrorResponse(w, errs.Conflict("Purchase already in progress"))
		return
	}

	activeExists, err := in.Querier.ExistsActiveTicket(ctx, event.ID, userID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to check active ticket", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		writeErrorResponse(w, err)
		return
	}

	if activeExists {
		slog.DebugContext(ctx, "user already holds a ticket", traceIdAttr)
		writeErrorResponse(w, errs.Conflict("Ticket already exists for this event"))
		return
	}

	issued, err := in.Querier.CountIssuedTickets(ctx, event.ID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count issued tickets", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		writeErrorResponse(w, err)
		return
	}

	if issued >= int64(event.Capacity) {
		slog.DebugContext(ctx, "event capacity exceeded", traceIdAttr)
		writeErrorResponse(w, errs.BadRequest("Event capacity exceeded"))
		return
	}

	if req.Amount != event.Price+event.PlatformFee {
		writeErrorResponse(w, errs.BadRequest("Invalid amount"))
		return
	}

	params := store.InsertTicketParams{
		ID:            uuid.NewString(),
		EventID:       event.ID,
		UserID:        userID,
		UserEmail:     r.Header.Get("X-User-Email"),
		Price:         event.Price,
		PlatformFee:   event.PlatformFee,
		TransactionID: ulid.Make().String(),
	}

	if event.IsExternal && event.CommissionRate.Valid {
		rate, err := decimal.NewFromString(event.CommissionRate.String)
		if err != nil {
			slog.ErrorContext(ctx, "invalid commission rate on event", traceIdAttr, slog.Any(constant.LogFieldErr, err))
			writeErrorResponse(w, err)
			return
		}

		commission := decimal.NewFromInt(event.Price).Mul(rate).Round(0).IntPart()
		params.CommissionRate = event.CommissionRate
		params.CommissionAmount = pgtype.Int8{Int64: commission, Valid: true}
		params.PartnerAmount = pgtype.Int8{Int64: event.Price - commission, Valid: true}
		params.SettlementCode = pgtype.Text{String: fmt.Sprintf("CMPTKT-%s", params.TransactionID), Valid: true}
	}

	if _, err := in.Querier.InsertTicket(ctx, params); err != nil {
		if isUniqueViolation(err) {
			writeErrorResponse(w, errs.Conflict("Ticket already exists for this event"))
			return
		}

		slog.ErrorContext(ctx, "failed to insert ticket", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		writeErrorResponse(w, err)
		return
	}

	monitoring.TrackPaymentCreated(event.ID)

	slog.InfoContext(ctx, "pending ticket created", traceIdAttr, slog.Any(constant.LogFieldResponse, params.TransactionID))

	writeJSONResponse(w, http.StatusOK, model.CreatePaymentResponse{
		TransactionId: params.TransactionID,
		RedirectUrl:   fmt.Sprintf("%s/pay?tx=%s", in.gatewayBaseUrl, params.TransactionID),
	})
}

func (in PaymentHttp) callback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeErrorResponse(w, &errs.HttpError{Code: http.StatusBadRequest, Message: "Invalid request"})
		return
	}

	if err := in.verifyCallbackSignature(body, r.Header.Get("X-Callback-Signature")); err != nil {
		writeErrorResponse(w, err)
		return
	}

	var req model.PaymentCallbackRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeErrorResponse(w, &errs.HttpError{Code: http.StatusBadRequest, Message: "Invalid request"})
		return
	}

	if err := in.Validate.Struct(req); err != nil {
		writeErrorResponse(w, err)
		return
	}

	ctx, span := otel.Tracer.Start(r.Context(), "PaymentHttp.callback")
	defer span.End()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)
	slog.InfoContext(ctx, "payment callback receive request", slog.Any(constant.LogFieldPayload, req), traceIdAttr)

	ticket, err := in.Querier.FindTicketByTransactionID(ctx, req.TransactionId)
	if err == pgx.ErrNoRows {
		writeErrorResponse(w, errs.NotFound("Transaction not found"))
		return
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to find ticket by transaction id", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		writeErrorResponse(w, err)
		return
	}

	// Idempotency guard: duplicate gateway callbacks observe a non-pending
	// ticket and fail cleanly without further writes.
	if ticket.Status != constant.TicketStatusPending {
		slog.DebugContext(ctx, "transaction already processed", traceIdAttr)
		writeErrorResponse(w, errs.Conflict("Transaction already processed"))
		return
	}

	if req.Status != constant.PaymentStatusSuccess {
		in.settleFailure(ctx, w, req, traceIdAttr)
		return
	}

	now := in.TimeNow()
	qrCode, err := in.Codec.Encode(map[string]any{
		"ticket_id": ticket.ID,
		"event_id":  ticket.EventID,
		"user_id":   ticket.UserID,
		"timestamp": now.Unix(),
	})
	if errors.Is(err, qrtoken.ErrNoSecret) {
		writeErrorResponse(w, &errs.HttpError{Code: http.StatusInternalServerError, Message: "QR secret not configured"})
		return
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to sign qr token", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		writeErrorResponse(w, err)
		return
	}

	cmd, err := in.Querier.SettleTicket(ctx, store.SettleTicketParams{
		ID:          ticket.ID,
		QrCode:      qrCode,
		PurchasedAt: pgtype.Timestamptz{Time: now, Valid: true},
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to settle ticket", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		writeErrorResponse(w, err)
		return
	}

	if cmd.RowsAffected() == 0 {
		slog.DebugContext(ctx, "concurrent settle won the race", traceIdAttr)
		writeErrorResponse(w, errs.Conflict("Transaction already processed"))
		return
	}

	monitoring.TrackPaymentSettled(constant.PaymentStatusSuccess)

	// Ticket is committed; the confirmation email is a queued side effect and
	// must not fail the settlement.
	if ticket.UserEmail != "" {
		publishErr := common.PublishMessage(ctx, in.Publisher, constant.SubjectSendEmail, model.TicketSettledEventMessage{
			TicketID:      ticket.ID,
			EventID:       ticket.EventID,
			UserEmail:     ticket.UserEmail,
			AmountPaid:    ticket.Price + ticket.PlatformFee,
			TransactionID: ticket.TransactionID,
		})
		if publishErr != nil {
			slog.ErrorContext(ctx, "failed to publish settlement email", traceIdAttr, slog.Any(constant.LogFieldErr, publishErr))
		}
	}

	slog.InfoContext(ctx, "ticket settled", traceIdAttr, slog.Any(constant.LogFieldResponse, ticket.ID))

	writeJSONResponse(w, http.StatusOK, map[string]string{
		"transaction_id": req.TransactionId,
		"status":         constant.TicketStatusPaid,
	})
}

// settleFailure deletes the pending ticket so a failed payment neither holds a
// capacity slot nor blocks a future purchase attempt.
func (in PaymentHttp) settleFailure(ctx context.Context, w http.ResponseWriter, req model.PaymentCallbackRequest, traceIdAttr slog.Attr) {
	cmd, err := in.Querier.DeletePendingTicketByTransactionID(ctx, req.TransactionId)
	if err != nil {
		slog.ErrorContext(ctx, "failed to delete pending ticket", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		writeErrorResponse(w, err)
		return
	}

	if cmd.RowsAffected() == 0 {
		writeErrorResponse(w, errs.Conflict("Transaction already processed"))
		return
	}

	monitoring.TrackPaymentSettled(req.Status)

	slog.InfoContext(ctx, "pending ticket deleted after failed payment", traceIdAttr)

	if req.Status == constant.PaymentStatusDeclined {
		writeErrorResponse(w, &errs.HttpError{Code: http.StatusPaymentRequired, Message: "Payment declined"})
		return
	}

	writeErrorResponse(w, errs.BadRequest("Payment failed"))
}

func (in PaymentHttp) verifyCallbackSignature(body []byte, supplied string) error {
	if in.webhookSecret == "" {
		return &errs.HttpError{Code: http.StatusInternalServerError, Message: "Webhook secret not configured"}
	}

	if supplied == "" {
		return &errs.HttpError{Code: http.StatusUnauthorized, Message: "Missing webhook signature"}
	}

	mac := hmac.New(sha256.New, []byte(in.webhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(supplied)) {
		return &errs.HttpError{Code: http.StatusUnauthorized, Message: "Invalid webhook signature"}
	}

	return nil
}
