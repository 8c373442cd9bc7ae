package store

import (
	"context"

	"campus-ticket/model"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

const findRegistrationByID = `SELECT id, event_id, user_id, status, checked_in, checked_in_at FROM registrations WHERE id = $1`

func (q *Queries) FindRegistrationByID(ctx context.Context, id string) (model.Registration, error) {
	var r model.Registration
	err := q.db.QueryRow(ctx, findRegistrationByID, id).Scan(
		&r.ID,
		&r.EventID,
		&r.UserID,
		&r.Status,
		&r.CheckedIn,
		&r.CheckedInAt,
	)
	return r, err
}

const checkInRegistration = `UPDATE registrations SET checked_in = TRUE, checked_in_at = $2 WHERE id = $1 AND status = 'registered' AND checked_in = FALSE`

type CheckInRegistrationParams struct {
	ID          string
	CheckedInAt pgtype.Timestamptz
}

// CheckInRegistration flips the one-shot checked_in flag; zero rows affected
// means the registration was cancelled or already checked in.
func (q *Queries) CheckInRegistration(ctx context.Context, arg CheckInRegistrationParams) (pgconn.CommandTag, error) {
	return q.db.Exec(ctx, checkInRegistration, arg.ID, arg.CheckedInAt)
}
