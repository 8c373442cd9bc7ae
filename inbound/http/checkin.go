package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"

	"campus-ticket/common"
	"campus-ticket/common/constant"
	"campus-ticket/common/contract"
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
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
)

type CheckInHttp struct {
	Db        contract.DbConn
	Querier   *store.Queries
	Cache     *redis.Client
	Publisher jetstream.Publisher
	Validate  *validator.Validate
	Codec     *qrtoken.Codec

	TimeNow func() time.Time

	earlyWindow   time.Duration
	checkInPoints int32
}

func RegisterCheckInHttp(
	mux *http.ServeMux,
	cfg *viper.Viper,
	db contract.DbConn,
	querier *store.Queries,
	cache *redis.Client,
	publisher jetstream.Publisher,
	validate *validator.Validate,
	codec *qrtoken.Codec,
) *CheckInHttp {
	in := &CheckInHttp{
		Db:        db,
		Querier:   querier,
		Cache:     cache,
		Publisher: publisher,
		Validate:  validate,
		Codec:     codec,
		TimeNow:   time.Now,

		earlyWindow:   cfg.GetDuration("checkin.early_window"),
		checkInPoints: cfg.GetInt32("checkin.points"),
	}

	mux.HandleFunc("POST /api/checkins/scan", in.organizerScan)
	mux.HandleFunc("POST /api/checkins/self", in.selfScan)

	return in
}

// organizerScan is the mode where event staff scans an attendee's personal
// ticket or registration QR.
func (in CheckInHttp) organizerScan(w http.ResponseWriter, r *http.Request) {
	scannerID, err := requireUser(r)
	if err != nil {
		writeErrorResponse(w, err)
		return
	}

	var req model.OrganizerScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, &errs.HttpError{Code: http.StatusBadRequest, Message: "Invalid request"})
		return
	}

	if err := in.Validate.Struct(req); err != nil {
		writeErrorResponse(w, err)
		return
	}

	ctx, span := otel.Tracer.Start(r.Context(), "CheckInHttp.organizerScan")
	defer span.End()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)
	slog.InfoContext(ctx, "organizer scan receive request", traceIdAttr)

	token, err := in.decodeToken(req.Token)
	if err != nil {
		writeErrorResponse(w, err)
		return
	}

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

	if scannerID != event.CreatorID && (!event.PartnerID.Valid || scannerID != event.PartnerID.String) {
		writeErrorResponse(w, errs.Forbidden("Caller is not the event organizer or partner"))
		return
	}

	if ticketID, ok := token["ticket_id"].(string); ok {
		in.scanTicket(ctx, w, event, ticketID, traceIdAttr)
		return
	}

	if registrationID, ok := token["registration_id"].(string); ok {
		in.scanRegistration(ctx, w, event, registrationID, traceIdAttr)
		return
	}

	writeErrorResponse(w, errs.BadRequest("Token carries no ticket or registration"))
}

func (in CheckInHttp) scanTicket(ctx context.Context, w http.ResponseWriter, event model.Event, ticketID string, traceIdAttr slog.Attr) {
	ticket, err := in.Querier.FindTicketByID(ctx, ticketID)
	if err == pgx.ErrNoRows {
		monitoring.TrackCheckIn(constant.ScanModeOrganizer, "not_found")
		writeErrorResponse(w, errs.NotFound("Ticket not found"))
		return
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to find ticket", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		writeErrorResponse(w, err)
		return
	}

	if ticket.EventID != event.ID {
		writeErrorResponse(w, errs.BadRequest("Ticket belongs to a different event"))
		return
	}

	if ticket.Status == constant.TicketStatusUsed {
		monitoring.TrackCheckIn(constant.ScanModeOrganizer, "duplicate")
		writeErrorResponse(w, errs.Conflict("Ticket already used"))
		return
	}

	if !constant.CanTransitionTicket(ticket.Status, constant.TicketStatusUsed) {
		writeErrorResponse(w, errs.BadRequest(fmt.Sprintf("Ticket is %s, not paid", ticket.Status)))
		return
	}

	now := in.TimeNow()
	checkInID, err := in.commitCheckIn(ctx, now, func(withTx *store.Queries) error {
		cmd, err := withTx.UsePaidTicket(ctx, store.UsePaidTicketParams{
			ID:          ticket.ID,
			CheckedInAt: pgtype.Timestamptz{Time: now, Valid: true},
		})
		if err != nil {
			return err
		}

		if cmd.RowsAffected() == 0 {
			return errs.Conflict("Ticket already used")
		}

		return nil
	}, store.InsertCheckInParams{
		ID:          uuid.NewString(),
		EventID:     event.ID,
		UserID:      ticket.UserID,
		ScanMode:    constant.ScanModeOrganizer,
		CheckedInAt: pgtype.Timestamptz{Time: now, Valid: true},
	}, traceIdAttr)
	if err != nil {
		monitoring.TrackCheckIn(constant.ScanModeOrganizer, "rejected")
		writeErrorResponse(w, err)
		return
	}

	monitoring.TrackCheckIn(constant.ScanModeOrganizer, "success")
	in.awardPoints(ctx, event.ID, ticket.UserID, traceIdAttr)

	slog.InfoContext(ctx, "ticket checked in", traceIdAttr, slog.Any(constant.LogFieldResponse, checkInID))

	writeJSONResponse(w, http.StatusOK, model.CheckInResponse{
		CheckInId:   checkInID,
		EventId:     event.ID,
		UserId:      ticket.UserID,
		ScanMode:    constant.ScanModeOrganizer,
		CheckedInAt: now.Format(time.RFC3339),
	})
}

func (in CheckInHttp) scanRegistration(ctx context.Context, w http.ResponseWriter, event model.Event, registrationID string, traceIdAttr slog.Attr) {
	registration, err := in.Querier.FindRegistrationByID(ctx, registrationID)
	if err == pgx.ErrNoRows {
		monitoring.TrackCheckIn(constant.ScanModeOrganizer, "not_found")
		writeErrorResponse(w, errs.NotFound("Registration not found"))
		return
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to find registration", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		writeErrorResponse(w, err)
		return
	}

	if registration.EventID != event.ID {
		writeErrorResponse(w, errs.BadRequest("Registration belongs to a different event"))
		return
	}

	if registration.CheckedIn {
		monitoring.TrackCheckIn(constant.ScanModeOrganizer, "duplicate")
		writeErrorResponse(w, errs.Conflict("Already checked in"))
		return
	}

	if registration.Status != constant.RegistrationStatusRegistered {
		writeErrorResponse(w, errs.BadRequest("Registration is cancelled"))
		return
	}

	now := in.TimeNow()
	checkInID, err := in.commitCheckIn(ctx, now, func(withTx *store.Queries) error {
		cmd, err := withTx.CheckInRegistration(ctx, store.CheckInRegistrationParams{
			ID:          registration.ID,
			CheckedInAt: pgtype.Timestamptz{Time: now, Valid: true},
		})
		if err != nil {
			return err
		}

		if cmd.RowsAffected() == 0 {
			return errs.Conflict("Already checked in")
		}

		return nil
	}, store.InsertCheckInParams{
		ID:          uuid.NewString(),
		EventID:     event.ID,
		UserID:      registration.UserID,
		ScanMode:    constant.ScanModeOrganizer,
		CheckedInAt: pgtype.Timestamptz{Time: now, Valid: true},
	}, traceIdAttr)
	if err != nil {
		monitoring.TrackCheckIn(constant.ScanModeOrganizer, "rejected")
		writeErrorResponse(w, err)
		return
	}

	monitoring.TrackCheckIn(constant.ScanModeOrganizer, "success")
	in.awardPoints(ctx, event.ID, registration.UserID, traceIdAttr)

	slog.InfoContext(ctx, "registration checked in", traceIdAttr, slog.Any(constant.LogFieldResponse, checkInID))

	writeJSONResponse(w, http.StatusOK, model.CheckInResponse{
		CheckInId:   checkInID,
		EventId:     event.ID,
		UserId:      registration.UserID,
		ScanMode:    constant.ScanModeOrganizer,
		CheckedInAt: now.Format(time.RFC3339),
	})
}

// commitCheckIn runs the status transition and the CheckIn insert in one
// transaction so a reader never observes one without the other.
func (in CheckInHttp) commitCheckIn(ctx context.Context, now time.Time, transition func(withTx *store.Queries) error, insert store.InsertCheckInParams, traceIdAttr slog.Attr) (string, error) {
	tx, err := in.Db.Begin(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to begin transaction", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		return "", err
	}

	defer func() {
		if err := tx.Rollback(ctx); err != nil && err != pgx.ErrTxClosed {
			slog.ErrorContext(ctx, "failed to rollback transaction", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		}
	}()

	withTx := in.Querier.WithTx(tx)

	if err := transition(withTx); err != nil {
		return "", err
	}

	checkInID, err := withTx.InsertCheckIn(ctx, insert)
	if err != nil {
		if isUniqueViolation(err) {
			return "", errs.Conflict("Already checked in")
		}

		slog.ErrorContext(ctx, "failed to insert check-in", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		return "", err
	}

	if err := tx.Commit(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to commit transaction", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		return "", err
	}

	return checkInID, nil
}

// selfScan is the mode where a student scans the event's shared QR; the
// scanning user is the authenticated caller, the token carries only the event.
func (in CheckInHttp) selfScan(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUser(r)
	if err != nil {
		writeErrorResponse(w, err)
		return
	}

	var req model.SelfScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, &errs.HttpError{Code: http.StatusBadRequest, Message: "Invalid request"})
		return
	}

	if err := in.Validate.Struct(req); err != nil {
		writeErrorResponse(w, err)
		return
	}

	ctx, span := otel.Tracer.Start(r.Context(), "CheckInHttp.selfScan")
	defer span.End()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)
	slog.InfoContext(ctx, "self scan receive request", traceIdAttr)

	token, err := in.decodeToken(req.Token)
	if err != nil {
		writeErrorResponse(w, err)
		return
	}

	eventID, ok := token["event_id"].(string)
	if !ok || eventID == "" {
		writeErrorResponse(w, errs.BadRequest("Token carries no event"))
		return
	}

	event, err := in.Querier.FindEventByID(ctx, eventID)
	if err == pgx.ErrNoRows {
		writeErrorResponse(w, errs.NotFound("Event not found"))
		return
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to find event", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		writeErrorResponse(w, err)
		return
	}

	// Shared-store rate limit: one scan attempt per (user, event) per window,
	// correct across service instances. SetNX never refreshes an existing
	// key, so a rejected attempt does not extend the wait.
	rlKey := fmt.Sprintf(constant.CheckInRateLimitKey, event.ID, userID)
	allowed, err := in.Cache.SetNX(ctx, rlKey, true, constant.CheckInRateLimitTTL).Result()
	if err != nil {
		slog.ErrorContext(ctx, "failed to set rate limit key", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		writeErrorResponse(w, err)
		return
	}

	if !allowed {
		wait := constant.CheckInRateLimitTTL
		if pttl, err := in.Cache.PTTL(ctx, rlKey).Result(); err == nil && pttl > 0 {
			wait = pttl
		}

		monitoring.TrackCheckIn(constant.ScanModeStudents, "rate_limited")
		writeErrorResponse(w, &errs.HttpError{
			Code:    http.StatusTooManyRequests,
			Message: fmt.Sprintf("Too many scan attempts, try again in %d seconds", int64(math.Ceil(wait.Seconds()))),
		})
		return
	}

	now := in.TimeNow()
	windowOpensAt := event.StartAt.Add(-in.earlyWindow)

	if now.Before(windowOpensAt) {
		minutes := int64(math.Ceil(windowOpensAt.Sub(now).Minutes()))
		monitoring.TrackCheckIn(constant.ScanModeStudents, "too_early")
		writeErrorResponse(w, errs.BadRequest(fmt.Sprintf("Check-in available in %d minutes", minutes)))
		return
	}

	if now.After(event.EndAt) {
		monitoring.TrackCheckIn(constant.ScanModeStudents, "too_late")
		writeErrorResponse(w, errs.BadRequest("Event has ended"))
		return
	}

	// Secondary expiry supports rotating the event QR mid-window.
	if event.QrExpiresAt.Valid && now.After(event.QrExpiresAt.Time) {
		writeErrorResponse(w, errs.BadRequest("Event QR has expired"))
		return
	}

	alreadyIn, err := in.Querier.ExistsCheckIn(ctx, event.ID, userID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to check existing check-in", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		writeErrorResponse(w, err)
		return
	}

	if alreadyIn {
		monitoring.TrackCheckIn(constant.ScanModeStudents, "duplicate")
		writeErrorResponse(w, errs.Conflict("Already checked in"))
		return
	}

	checkInID, err := in.Querier.InsertCheckIn(ctx, store.InsertCheckInParams{
		ID:          uuid.NewString(),
		EventID:     event.ID,
		UserID:      userID,
		ScanMode:    constant.ScanModeStudents,
		CheckedInAt: pgtype.Timestamptz{Time: now, Valid: true},
	})
	if err != nil {
		// The unique (event_id, user_id) index is the last line of defense
		// against a race that slipped past the rate limiter.
		if isUniqueViolation(err) {
			monitoring.TrackCheckIn(constant.ScanModeStudents, "duplicate")
			writeErrorResponse(w, errs.Conflict("Already checked in"))
			return
		}

		slog.ErrorContext(ctx, "failed to insert check-in", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		writeErrorResponse(w, err)
		return
	}

	monitoring.TrackCheckIn(constant.ScanModeStudents, "success")
	in.awardPoints(ctx, event.ID, userID, traceIdAttr)

	slog.InfoContext(ctx, "self check-in success", traceIdAttr, slog.Any(constant.LogFieldResponse, checkInID))

	writeJSONResponse(w, http.StatusOK, model.CheckInResponse{
		CheckInId:   checkInID,
		EventId:     event.ID,
		UserId:      userID,
		ScanMode:    constant.ScanModeStudents,
		CheckedInAt: now.Format(time.RFC3339),
	})
}

func (in CheckInHttp) decodeToken(raw string) (map[string]any, error) {
	token, err := in.Codec.Decode(raw)
	if errors.Is(err, qrtoken.ErrNoSecret) {
		return nil, &errs.HttpError{Code: http.StatusInternalServerError, Message: "QR secret not configured"}
	}
	if err != nil {
		return nil, errs.BadRequest("Invalid QR token")
	}

	return token, nil
}

// awardPoints queues the gamification reward. It is fire-and-forget: a
// publish failure is logged and swallowed, never rolled into the check-in.
func (in CheckInHttp) awardPoints(ctx context.Context, eventID, userID string, traceIdAttr slog.Attr) {
	err := common.PublishMessage(ctx, in.Publisher, constant.SubjectAwardPoints, model.AwardPointsEventMessage{
		UserID:  userID,
		EventID: eventID,
		Points:  in.checkInPoints,
		Reason:  "event_checkin",
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to publish award points message", traceIdAttr, slog.Any(constant.LogFieldErr, err))
	}
}
