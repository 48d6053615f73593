package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/clinicdesk/libs/config"
	"github.com/md-rashed-zaman/clinicdesk/libs/httpx"
	"github.com/md-rashed-zaman/clinicdesk/libs/kafkax"
	otelx "github.com/md-rashed-zaman/clinicdesk/libs/otel"
	"github.com/md-rashed-zaman/clinicdesk/libs/runtime"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/events"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/grpcserver"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/handlers"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "scheduling-service")
	port, err := config.Port("PORT", "8090")
	if err != nil {
		panic(err)
	}
	grpcPort, err := config.Port("GRPC_PORT", "9093")
	if err != nil {
		panic(err)
	}
	loc, err := config.Location("CLINIC_TIMEZONE")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	store, err := openStore(ctx, logger)
	if err != nil {
		logger.Error("storage init failed", "err", err)
		panic(err)
	}
	defer store.close()

	var publisher events.Publisher = events.NopPublisher{}
	brokers := config.String("KAFKA_BROKERS", "")
	if brokers != "" {
		publisher = events.NewKafkaPublisher(brokers, config.String("KAFKA_TOPIC", "clinic.appointments"))
	} else {
		logger.Info("KAFKA_BROKERS not set; appointment events are not published")
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Error("event publisher close failed", "err", err)
		}
	}()

	limiter, err := openLimiter(ctx, logger)
	if err != nil {
		logger.Error("rate limiter init failed", "err", err)
		panic(err)
	}
	defer limiter.close()

	checks := []runtime.ReadyCheck{store.ready, limiter.ready}
	if brokers != "" {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}
	mux := runtime.NewBaseMuxWithReady(checks...)

	appointmentHandler := handlers.NewAppointmentHandler(store.repo, publisher, logger, loc)
	appointmentHandler.Register(mux)

	bodyLimit, err := config.Int("HTTP_BODY_LIMIT_BYTES", 1<<20)
	if err != nil {
		panic(err)
	}
	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithRecover(logger),
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: config.List("CORS_ORIGINS"),
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", httpx.RequestIDHeader},
			MaxAge:         10 * time.Minute,
		}),
		httpx.WithBodyLimit(int64(bodyLimit)),
		httpx.RateLimit(limiter.limiter, logger, limiter.failOpen),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "scheduling")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lis, err := net.Listen("tcp", ":"+grpcPort)
	if err != nil {
		logger.Error("grpc listen failed", "err", err)
		panic(err)
	}
	grpcSrv := grpcserver.New(logger)
	go func() {
		if err := grpcSrv.Serve(lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	go func() {
		logger.Info("http server starting", "addr", srv.Addr, "timezone", loc.String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	grpcSrv.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
