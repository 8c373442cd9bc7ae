package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"campus-ticket/common/constant"
	"campus-ticket/common/qrtoken"
	"campus-ticket/outbound/store"

	"github.com/go-redis/redismock/v9"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
)

type EventHttpTestSuite struct {
	suite.Suite

	Querier *store.Queries
	PgxMock pgxmock.PgxPoolIface

	Cache     *redis.Client
	CacheMock redismock.ClientMock

	Codec *qrtoken.Codec
}

func (s *EventHttpTestSuite) SetupTest() {
	rdb, mock := redismock.NewClientMock()
	s.Cache = rdb
	s.CacheMock = mock

	pool, err := pgxmock.NewPool()
	if err != nil {
		s.T().Fatalf("failed to create pgxmock pool: %v", err)
	}

	s.PgxMock = pool
	s.Querier = store.New(pool)

	s.Codec, err = qrtoken.New(testQrSecret)
	if err != nil {
		s.T().Fatalf("failed to create codec: %v", err)
	}

	slog.SetLogLoggerLevel(slog.LevelDebug)
}

func (s *EventHttpTestSuite) TearDownTest() {
	s.PgxMock.Close()

	if err := s.Cache.Close(); err != nil {
		s.T().Fatalf("failed to close redis mock: %v", err)
	}
}

func TestEventHttpTestSuite(t *testing.T) {
	suite.Run(t, new(EventHttpTestSuite))
}

func (s *EventHttpTestSuite) newEventHttp() *EventHttp {
	in := RegisterEventHttp(http.NewServeMux(), s.Querier, s.Cache, s.Codec)
	in.TimeNow = func() time.Time { return fixedNow }
	return in
}

func (s *EventHttpTestSuite) expectFindEvent(mutate ...func(vals []any)) {
	vals := []any{"ev-1", "Spring Expo", int64(100), int64(50), int32(100),
		fixedNow.Add(time.Hour), fixedNow.Add(3 * time.Hour),
		true, false, nil, nil, nil, "org-1"}

	for _, m := range mutate {
		m(vals)
	}

	s.PgxMock.ExpectQuery(`SELECT .+ FROM events WHERE id = \$1`).
		WithArgs("ev-1").
		WillReturnRows(pgxmock.NewRows(eventColumns).AddRow(vals...))
}

// mintedToken reproduces the token the handler signs at the fixed clock.
func (s *EventHttpTestSuite) mintedToken() string {
	token, err := s.Codec.Encode(map[string]any{
		"event_id":  "ev-1",
		"timestamp": fixedNow.Unix(),
	})
	if err != nil {
		s.T().Fatalf("failed to encode token: %v", err)
	}
	return token
}

func (s *EventHttpTestSuite) TestQr() {
	cacheKey := fmt.Sprintf(constant.EventQrCacheKey, "ev-1")
	qrExpiry := fixedNow.Add(30 * time.Second)

	tests := []struct {
		name           string
		userID         string
		setupMock      func()
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "missing user identity",
			userID:         "",
			setupMock:      func() {},
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   `{"error":"Missing user identity"}`,
		},
		{
			name:   "event not found",
			userID: "org-1",
			setupMock: func() {
				s.PgxMock.ExpectQuery(`SELECT .+ FROM events WHERE id = \$1`).
					WithArgs("ev-1").
					WillReturnError(pgx.ErrNoRows)
			},
			expectedStatus: http.StatusNotFound,
			expectedBody:   `{"error":"Event not found"}`,
		},
		{
			name:   "caller is not organizer or partner",
			userID: "intruder-1",
			setupMock: func() {
				s.expectFindEvent()
			},
			expectedStatus: http.StatusForbidden,
			expectedBody:   `{"error":"Caller is not the event organizer or partner"}`,
		},
		{
			name:   "event qr expired",
			userID: "org-1",
			setupMock: func() {
				s.expectFindEvent(func(vals []any) {
					vals[11] = fixedNow.Add(-time.Minute) // qr_expires_at
				})
			},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"error":"Event QR has expired"}`,
		},
		{
			name:   "cache hit skips signing",
			userID: "org-1",
			setupMock: func() {
				s.expectFindEvent()
				s.CacheMock.ExpectGet(cacheKey).SetVal("cached-token")
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"token":"cached-token"`,
		},
		{
			name:   "cache miss mints and caches",
			userID: "org-1",
			setupMock: func() {
				s.expectFindEvent()
				s.CacheMock.ExpectGet(cacheKey).RedisNil()
				s.CacheMock.ExpectSet(cacheKey, s.mintedToken(), constant.EventQrCacheTTL).SetVal("OK")
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"event_id":"ev-1"`,
		},
		{
			name:   "cache ttl capped by qr expiry",
			userID: "org-1",
			setupMock: func() {
				s.expectFindEvent(func(vals []any) {
					vals[11] = qrExpiry // qr_expires_at
				})
				s.CacheMock.ExpectGet(cacheKey).RedisNil()
				s.CacheMock.ExpectSet(cacheKey, s.mintedToken(), 30*time.Second).SetVal("OK")
			},
			expectedStatus: http.StatusOK,
			expectedBody:   fmt.Sprintf(`"expires_at":%q`, qrExpiry.Format(time.RFC3339)),
		},
	}

	for _, tc := range tests {
		s.Run(tc.name, func() {
			eventHttp := s.newEventHttp()

			tc.setupMock()

			req := httptest.NewRequest(http.MethodGet, "/api/events/ev-1/qr", nil)
			req.SetPathValue("id", "ev-1")
			if tc.userID != "" {
				req.Header.Set("X-User-Id", tc.userID)
			}
			w := httptest.NewRecorder()

			eventHttp.qr(w, req)

			s.Equal(tc.expectedStatus, w.Code)

			if tc.expectedStatus == http.StatusOK {
				s.Contains(w.Body.String(), tc.expectedBody)
			} else {
				s.Equal(tc.expectedBody, strings.TrimSpace(w.Body.String()))
			}

			s.NoError(s.CacheMock.ExpectationsWereMet())
			s.NoError(s.PgxMock.ExpectationsWereMet())
		})
	}
}
