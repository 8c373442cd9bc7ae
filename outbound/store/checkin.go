package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const existsCheckIn = `SELECT EXISTS (SELECT 1 FROM checkins WHERE event_id = $1 AND user_id = $2) AS "exists"`

func (q *Queries) ExistsCheckIn(ctx context.Context, eventID, userID string) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, existsCheckIn, eventID, userID).Scan(&exists)
	return exists, err
}

const insertCheckIn = `INSERT INTO checkins (id, event_id, user_id, scan_mode, checked_in_at) VALUES ($1, $2, $3, $4, $5) RETURNING id`

type InsertCheckInParams struct {
	ID          string
	EventID     string
	UserID      string
	ScanMode    string
	CheckedInAt pgtype.Timestamptz
}

// InsertCheckIn appends the attendance row. The unique (event_id, user_id)
// index is the authoritative duplicate defense; a violation surfaces as
// SQLSTATE 23505.
func (q *Queries) InsertCheckIn(ctx context.Context, arg InsertCheckInParams) (string, error) {
	var id string
	err := q.db.QueryRow(ctx, insertCheckIn,
		arg.ID,
		arg.EventID,
		arg.UserID,
		arg.ScanMode,
		arg.CheckedInAt,
	).Scan(&id)
	return id, err
}

const insertPointsEntry = `INSERT INTO points_ledger (id, user_id, event_id, points, reason) VALUES ($1, $2, $3, $4, $5)`

type InsertPointsEntryParams struct {
	ID      string
	UserID  string
	EventID string
	Points  int32
	Reason  string
}

func (q *Queries) InsertPointsEntry(ctx context.Context, arg InsertPointsEntryParams) error {
	_, err := q.db.Exec(ctx, insertPointsEntry,
		arg.ID,
		arg.UserID,
		arg.EventID,
		arg.Points,
		arg.Reason,
	)
	return err
}
