package store

import (
	"context"

	"campus-ticket/model"
)

const findEventByID = `SELECT id, title, price, platform_fee, capacity, start_at, end_at, is_paid, is_external, partner_id, commission_rate, qr_expires_at, creator_id FROM events WHERE id = $1`

func (q *Queries) FindEventByID(ctx context.Context, id string) (model.Event, error) {
	var e model.Event
	err := q.db.QueryRow(ctx, findEventByID, id).Scan(
		&e.ID,
		&e.Title,
		&e.Price,
		&e.PlatformFee,
		&e.Capacity,
		&e.StartAt,
		&e.EndAt,
		&e.IsPaid,
		&e.IsExternal,
		&e.PartnerID,
		&e.CommissionRate,
		&e.QrExpiresAt,
		&e.CreatorID,
	)
	return e, err
}

const countIssuedTickets = `SELECT COUNT(*) FROM tickets WHERE event_id = $1 AND status IN ('pending', 'paid')`

// CountIssuedTickets counts the tickets occupying a capacity slot.
func (q *Queries) CountIssuedTickets(ctx context.Context, eventID string) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, countIssuedTickets, eventID).Scan(&count)
	return count, err
}
