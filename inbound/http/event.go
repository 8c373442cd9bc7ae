package http

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"campus-ticket/common"
	"campus-ticket/common/constant"
	"campus-ticket/common/errs"
	"campus-ticket/common/otel"
	"campus-ticket/common/qrtoken"
	"campus-ticket/model"
	"campus-ticket/outbound/store"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
)

type EventHttp struct {
	Querier *store.Queries
	Cache   *redis.Client
	Codec   *qrtoken.Codec

	TimeNow func() time.Time
}

func RegisterEventHttp(
	mux *http.ServeMux,
	querier *store.Queries,
	cache *redis.Client,
	codec *qrtoken.Codec,
) *EventHttp {
	in := &EventHttp{
		Querier: querier,
		Cache:   cache,
		Codec:   codec,
		TimeNow: time.Now,
	}

	mux.HandleFunc("GET /api/events/{id}/qr", in.qr)

	return in
}

// qr mints the event's shared check-in QR for the organizer screen. The
// serialized token is cached briefly so repeated loads don't re-sign; the
// cache TTL never outlives an explicit qr_expires_at rotation deadline.
func (in EventHttp) qr(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUser(r)
	if err != nil {
		writeErrorResponse(w, err)
		return
	}

	ctx, span := otel.Tracer.Start(r.Context(), "EventHttp.qr")
	defer span.End()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)

	eventID := r.PathValue("id")

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

	if userID != event.CreatorID && (!event.PartnerID.Valid || userID != event.PartnerID.String) {
		writeErrorResponse(w, errs.Forbidden("Caller is not the event organizer or partner"))
		return
	}

	now := in.TimeNow()
	if event.QrExpiresAt.Valid && now.After(event.QrExpiresAt.Time) {
		writeErrorResponse(w, errs.BadRequest("Event QR has expired"))
		return
	}

	cacheKey := fmt.Sprintf(constant.EventQrCacheKey, event.ID)
	if cached, err := in.Cache.Get(ctx, cacheKey).Result(); err == nil && cached != "" {
		writeJSONResponse(w, http.StatusOK, in.qrResponse(event, cached))
		return
	}

	raw, err := in.Codec.Encode(map[string]any{
		"event_id":  event.ID,
		"timestamp": now.Unix(),
	})
	if errors.Is(err, qrtoken.ErrNoSecret) {
		writeErrorResponse(w, &errs.HttpError{Code: http.StatusInternalServerError, Message: "QR secret not configured"})
		return
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to sign event qr", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		writeErrorResponse(w, err)
		return
	}

	ttl := constant.EventQrCacheTTL
	if event.QrExpiresAt.Valid {
		if remaining := event.QrExpiresAt.Time.Sub(now); remaining < ttl {
			ttl = remaining
		}
	}

	if err := in.Cache.Set(ctx, cacheKey, raw, ttl).Err(); err != nil {
		slog.ErrorContext(ctx, "failed to cache event qr", traceIdAttr, slog.Any(constant.LogFieldErr, err))
	}

	writeJSONResponse(w, http.StatusOK, in.qrResponse(event, raw))
}

func (in EventHttp) qrResponse(event model.Event, token string) model.EventQrResponse {
	resp := model.EventQrResponse{
		EventId: event.ID,
		Token:   token,
	}

	if event.QrExpiresAt.Valid {
		resp.ExpiresAt = event.QrExpiresAt.Time.Format(time.RFC3339)
	}

	return resp
}
