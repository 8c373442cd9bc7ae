package cmd

import (
	"context"
	"log"
	"log/slog"
	"time"

	"campus-ticket/common/constant"
	commonJetstream "campus-ticket/common/jetstream"
	"campus-ticket/inbound/event"
	emailOutbound "campus-ticket/outbound/email"
	"campus-ticket/outbound/store"

	"github.com/nats-io/nats.go/jetstream"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func runQueueNotificationCmd(ctx context.Context) {
	cfg := newCfg("env")

	db := newDb(cfg)
	defer db.Close()

	querier := store.New(db)

	natsConn := newNats(cfg)
	defer natsConn.Close()

	js := newJs(natsConn)
	commonJetstream.CreateQueueStream(ctx, js)

	st, err := js.Stream(ctx, constant.QueueStreamName)
	if err != nil {
		log.Fatalln("failed to get stream", err)
	}

	outbound := emailOutbound.EmailOutbound{Cfg: cfg}
	outbound.Init()

	notificationEvent := event.NotificationEvent{
		EmailOutbound:     &outbound,
		Querier:           querier,
		CurrencyFormatter: message.NewPrinter(language.English),
		Timeout:           cfg.GetDuration("queue.notification.timeout"),
	}

	cons, err := st.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       "consumer:notification",
		FilterSubject: constant.AllWildcard,
		MaxDeliver:    cfg.GetInt("queue.notification.max_deliver"),
		AckWait:       cfg.GetDuration("queue.notification.ack_wait"),
	})
	if err != nil {
		log.Fatalln("failed to create consumer", err)
	}

	iter, err := cons.Messages()
	if err != nil {
		panic(err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
				msg, err := iter.Next()
				if err != nil && err != jetstream.ErrMsgIteratorClosed {
					slog.ErrorContext(ctx, "Error fetching message", slog.Any(constant.LogFieldErr, err))
					continue
				}

				if msg == nil {
					continue
				}

				var eventErr error
				switch msg.Subject() {
				case constant.SubjectSendEmail:
					eventErr = notificationEvent.SendEmailHandler(ctx, msg.Data())
				case constant.SubjectAwardPoints:
					eventErr = notificationEvent.AwardPointsHandler(ctx, msg.Data())
				}

				if eventErr != nil {
					msg.NakWithDelay(1 * time.Second)
					continue
				}

				if err := msg.Ack(); err != nil {
					slog.ErrorContext(ctx, "Error acknowledging message",
						slog.Any(constant.LogFieldErr, err),
						slog.Any(constant.LogFieldPayload, string(msg.Data())),
						slog.String("subject", msg.Subject()),
					)
					continue
				}
			}
		}
	}()

	slog.InfoContext(ctx, "notification queue consumer started")

	<-ctx.Done()

	iter.Stop()

	slog.InfoContext(ctx, "notification queue consumer stopped")
}
