package store

import (
	"context"

	"campus-ticket/model"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

const existsActiveTicket = `SELECT EXISTS (SELECT 1 FROM tickets WHERE event_id = $1 AND user_id = $2 AND status IN ('pending', 'paid')) AS "exists"`

// ExistsActiveTicket reports whether the user already holds a non-terminal
// ticket for the event.
func (q *Queries) ExistsActiveTicket(ctx context.Context, eventID, userID string) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, existsActiveTicket, eventID, userID).Scan(&exists)
	return exists, err
}

const insertTicket = `INSERT INTO tickets (id, event_id, user_id, user_email, status, price, platform_fee, commission_rate, commission_amount, partner_amount, transaction_id, settlement_code) VALUES ($1, $2, $3, $4, 'pending', $5, $6, $7, $8, $9, $10, $11) RETURNING id`

type InsertTicketParams struct {
	ID               string
	EventID          string
	UserID           string
	UserEmail        string
	Price            int64
	PlatformFee      int64
	CommissionRate   pgtype.Text
	CommissionAmount pgtype.Int8
	PartnerAmount    pgtype.Int8
	TransactionID    string
	SettlementCode   pgtype.Text
}

func (q *Queries) InsertTicket(ctx context.Context, arg InsertTicketParams) (string, error) {
	var id string
	err := q.db.QueryRow(ctx, insertTicket,
		arg.ID,
		arg.EventID,
		arg.UserID,
		arg.UserEmail,
		arg.Price,
		arg.PlatformFee,
		arg.CommissionRate,
		arg.CommissionAmount,
		arg.PartnerAmount,
		arg.TransactionID,
		arg.SettlementCode,
	).Scan(&id)
	return id, err
}

const ticketColumns = `id, event_id, user_id, user_email, status, price, platform_fee, commission_rate, commission_amount, partner_amount, transaction_id, settlement_code, qr_code, purchased_at, checked_in_at`

const findTicketByTransactionID = `SELECT ` + ticketColumns + ` FROM tickets WHERE transaction_id = $1`

func (q *Queries) FindTicketByTransactionID(ctx context.Context, transactionID string) (model.Ticket, error) {
	return q.scanTicket(q.db.QueryRow(ctx, findTicketByTransactionID, transactionID))
}

const findTicketByID = `SELECT ` + ticketColumns + ` FROM tickets WHERE id = $1`

func (q *Queries) FindTicketByID(ctx context.Context, id string) (model.Ticket, error) {
	return q.scanTicket(q.db.QueryRow(ctx, findTicketByID, id))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (q *Queries) scanTicket(row rowScanner) (model.Ticket, error) {
	var t model.Ticket
	err := row.Scan(
		&t.ID,
		&t.EventID,
		&t.UserID,
		&t.UserEmail,
		&t.Status,
		&t.Price,
		&t.PlatformFee,
		&t.CommissionRate,
		&t.CommissionAmount,
		&t.PartnerAmount,
		&t.TransactionID,
		&t.SettlementCode,
		&t.QrCode,
		&t.PurchasedAt,
		&t.CheckedInAt,
	)
	return t, err
}

const settleTicket = `UPDATE tickets SET status = 'paid', qr_code = $2, purchased_at = $3 WHERE id = $1 AND status = 'pending'`

type SettleTicketParams struct {
	ID          string
	QrCode      string
	PurchasedAt pgtype.Timestamptz
}

// SettleTicket moves a pending ticket to paid and attaches its QR in one
// statement. Zero rows affected means a concurrent settle won the race.
func (q *Queries) SettleTicket(ctx context.Context, arg SettleTicketParams) (pgconn.CommandTag, error) {
	return q.db.Exec(ctx, settleTicket, arg.ID, arg.QrCode, arg.PurchasedAt)
}

const deletePendingTicketByTransactionID = `DELETE FROM tickets WHERE transaction_id = $1 AND status = 'pending'`

// DeletePendingTicketByTransactionID frees the capacity slot of a failed
// payment. The status guard keeps a late duplicate callback from deleting a
// settled ticket.
func (q *Queries) DeletePendingTicketByTransactionID(ctx context.Context, transactionID string) (pgconn.CommandTag, error) {
	return q.db.Exec(ctx, deletePendingTicketByTransactionID, transactionID)
}

const refundPaidTicket = `UPDATE tickets SET status = 'refunded' WHERE id = $1 AND status = 'paid'`

func (q *Queries) RefundPaidTicket(ctx context.Context, id string) (pgconn.CommandTag, error) {
	return q.db.Exec(ctx, refundPaidTicket, id)
}

const usePaidTicket = `UPDATE tickets SET status = 'used', checked_in_at = $2 WHERE id = $1 AND status = 'paid'`

type UsePaidTicketParams struct {
	ID          string
	CheckedInAt pgtype.Timestamptz
}

func (q *Queries) UsePaidTicket(ctx context.Context, arg UsePaidTicketParams) (pgconn.CommandTag, error) {
	return q.db.Exec(ctx, usePaidTicket, arg.ID, arg.CheckedInAt)
}
