package event

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"campus-ticket/outbound/store"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/suite"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

type fakeEmailSender struct {
	to      []string
	subject string
	body    string
	err     error
}

func (f *fakeEmailSender) Send(to []string, subject string, body string) error {
	f.to = to
	f.subject = subject
	f.body = body
	return f.err
}

type NotificationEventTestSuite struct {
	suite.Suite

	Querier *store.Queries
	PgxMock pgxmock.PgxPoolIface
	Sender  *fakeEmailSender

	NotificationEvent NotificationEvent
}

func (s *NotificationEventTestSuite) SetupTest() {
	pool, err := pgxmock.NewPool()
	if err != nil {
		s.T().Fatalf("failed to create pgxmock pool: %v", err)
	}

	s.PgxMock = pool
	s.Querier = store.New(pool)
	s.Sender = &fakeEmailSender{}

	s.NotificationEvent = NotificationEvent{
		EmailOutbound:     s.Sender,
		Querier:           s.Querier,
		CurrencyFormatter: message.NewPrinter(language.English),
		Timeout:           5 * time.Second,
	}

	slog.SetLogLoggerLevel(slog.LevelDebug)
}

func (s *NotificationEventTestSuite) TearDownTest() {
	s.PgxMock.Close()
}

func TestNotificationEventTestSuite(t *testing.T) {
	suite.Run(t, new(NotificationEventTestSuite))
}

func (s *NotificationEventTestSuite) TestSendEmailHandler() {
	msg := []byte(`{"ticket_id": "t-1", "event_id": "ev-1", "user_email": "stu@campus.edu", "amount_paid": 1500, "transaction_id": "tx-1"}`)

	err := s.NotificationEvent.SendEmailHandler(context.Background(), msg)

	s.NoError(err)
	s.Equal([]string{"stu@campus.edu"}, s.Sender.to)
	s.Equal("Ticket Confirmation", s.Sender.subject)
	s.Contains(s.Sender.body, "t-1")
	s.Contains(s.Sender.body, "$1,500")
	s.Contains(s.Sender.body, "tx-1")
}

// Malformed payloads are dropped, not redelivered.
func (s *NotificationEventTestSuite) TestSendEmailHandlerBadPayload() {
	err := s.NotificationEvent.SendEmailHandler(context.Background(), []byte(`{invalid`))

	s.NoError(err)
	s.Empty(s.Sender.to)
}

func (s *NotificationEventTestSuite) TestSendEmailHandlerSendError() {
	s.Sender.err = errors.New("smtp unavailable")

	msg := []byte(`{"ticket_id": "t-1", "user_email": "stu@campus.edu", "amount_paid": 150, "transaction_id": "tx-1"}`)

	err := s.NotificationEvent.SendEmailHandler(context.Background(), msg)

	s.Error(err)
}

func (s *NotificationEventTestSuite) TestAwardPointsHandler() {
	s.PgxMock.ExpectExec(`INSERT INTO points_ledger`).
		WithArgs(pgxmock.AnyArg(), "stu-1", "ev-1", int32(10), "event_checkin").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	msg := []byte(`{"user_id": "stu-1", "event_id": "ev-1", "points": 10, "reason": "event_checkin"}`)

	err := s.NotificationEvent.AwardPointsHandler(context.Background(), msg)

	s.NoError(err)
	s.NoError(s.PgxMock.ExpectationsWereMet())
}

func (s *NotificationEventTestSuite) TestAwardPointsHandlerBadPayload() {
	err := s.NotificationEvent.AwardPointsHandler(context.Background(), []byte(`{invalid`))

	s.NoError(err)
	s.NoError(s.PgxMock.ExpectationsWereMet())
}
