package model

import (
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

type Event struct {
	ID             string
	Title          string
	Price          int64
	PlatformFee    int64
	Capacity       int32
	StartAt        time.Time
	EndAt          time.Time
	IsPaid         bool
	IsExternal     bool
	PartnerID      pgtype.Text
	CommissionRate pgtype.Text
	QrExpiresAt    pgtype.Timestamptz
	CreatorID      string
}

type Ticket struct {
	ID               string
	EventID          string
	UserID           string
	UserEmail        string
	Status           string
	Price            int64
	PlatformFee      int64
	CommissionRate   pgtype.Text
	CommissionAmount pgtype.Int8
	PartnerAmount    pgtype.Int8
	TransactionID    string
	SettlementCode   pgtype.Text
	QrCode           pgtype.Text
	PurchasedAt      pgtype.Timestamptz
	CheckedInAt      pgtype.Timestamptz
}

type Registration struct {
	ID          string
	EventID     string
	UserID      string
	Status      string
	CheckedIn   bool
	CheckedInAt pgtype.Timestamptz
}

type CheckIn struct {
	ID          string
	EventID     string
	UserID      string
	ScanMode    string
	CheckedInAt time.Time
}
