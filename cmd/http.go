package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"time"

	commonJetstream "campus-ticket/common/jetstream"
	"campus-ticket/common/otel"
	inboundHttp "campus-ticket/inbound/http"
	"campus-ticket/outbound/store"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func runHttpServerCmd(ctx context.Context) {
	cfg := newCfg("env")

	if endpoint := cfg.GetString("otel.endpoint"); endpoint != "" {
		shutdown, err := otel.InitTracerProvider(ctx, endpoint)
		if err != nil {
			log.Fatalln("unable to init tracer provider", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				slog.Error("unable to shutdown tracer provider", slog.Any("err", err))
			}
		}()
	}

	validate := validator.New()

	db := newDb(cfg)
	defer db.Close()

	cacheClient := newRedis(cfg)
	defer cacheClient.Close()

	natsConn := newNats(cfg)
	defer natsConn.Close()

	js := newJs(natsConn)
	commonJetstream.CreateQueueStream(ctx, js)

	codec := newQrCodec(cfg)
	querier := store.New(db)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		slog.DebugContext(r.Context(), "health check")
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("GET /metrics", promhttp.Handler())

	timeoutMiddleware := inboundHttp.TimeoutMiddleware(20 * time.Second)

	inboundHttp.RegisterPaymentHttp(mux, cfg, querier, cacheClient, js, validate, codec)
	inboundHttp.RegisterTicketHttp(mux, querier)
	inboundHttp.RegisterCheckInHttp(mux, cfg, db, querier, cacheClient, js, validate, codec)
	inboundHttp.RegisterEventHttp(mux, querier, cacheClient, codec)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.GetInt("server.port")),
		Handler:           timeoutMiddleware(inboundHttp.CorsMiddleware(mux)),
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalln("unable to start server", err)
		}
	}()

	slog.Info("http server started")

	<-ctx.Done()

	ctxShutDown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctxShutDown); err != nil {
		log.Fatalln("unable to shutdown server", err)
	}

	slog.Info("http server stopped")
}
