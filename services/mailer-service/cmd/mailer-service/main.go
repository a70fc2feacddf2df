package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/slotly-app/slotly/libs/config"
	"github.com/slotly-app/slotly/libs/db"
	"github.com/slotly-app/slotly/libs/httpx"
	"github.com/slotly-app/slotly/libs/kafkax"
	otelx "github.com/slotly-app/slotly/libs/otel"
	"github.com/slotly-app/slotly/libs/runtime"
	"github.com/slotly-app/slotly/services/mailer-service/internal/consumer"
	"github.com/slotly-app/slotly/services/mailer-service/internal/email"
	"github.com/slotly-app/slotly/services/mailer-service/internal/inbox"
	"github.com/slotly-app/slotly/services/mailer-service/internal/sms"
	"github.com/slotly-app/slotly/services/mailer-service/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// appointmentPayload is the shape booking-service puts on both appointment
// topics; confirmation_code is only present on the pending event.
type appointmentPayload struct {
	AppointmentID    string `json:"appointment_id"`
	BusinessID       string `json:"business_id"`
	ServiceID        string `json:"service_id"`
	CustomerName     string `json:"customer_name"`
	CustomerEmail    string `json:"customer_email"`
	CustomerPhone    string `json:"customer_phone"`
	StartTime        string `json:"start_time"`
	EndTime          string `json:"end_time"`
	ConfirmationCode string `json:"confirmation_code"`
}

func (p appointmentPayload) startAt() time.Time {
	t, err := time.Parse(time.RFC3339, p.StartTime)
	if err != nil {
		return time.Time{}
	}
	return t
}

func main() {
	service := config.String("SERVICE_NAME", "mailer-service")
	port, err := config.Port("PORT", "8096")
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

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	repo := storage.NewRepository(pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		logger.Error("schema setup failed", "err", err)
		panic(err)
	}
	inboxRepo := inbox.NewRepository(pool)

	emailSender := email.NewSMTPSender(
		config.String("SMTP_HOST", "mailpit"),
		config.String("SMTP_PORT", "1025"),
		config.String("SMTP_FROM", "no-reply@slotly.local"),
	)

	var smsSender sms.Sender = sms.NewNoop()
	if strings.EqualFold(config.String("SMS_PROVIDER", "noop"), "webhook") {
		smsSender = sms.NewWebhook(sms.Config{
			URL:    config.String("SMS_WEBHOOK_URL", ""),
			Token:  config.String("SMS_WEBHOOK_TOKEN", ""),
			Sender: config.String("SMS_SENDER", "Slotly"),
		})
	}

	record := func(ctx context.Context, p appointmentPayload, channel, recipient string, sendErr error) {
		d := storage.Delivery{
			AppointmentID: p.AppointmentID,
			BusinessID:    p.BusinessID,
			Channel:       channel,
			Recipient:     recipient,
			Status:        "sent",
		}
		if sendErr != nil {
			d.Status = "failed"
			d.ErrorReason = sendErr.Error()
		}
		if err := repo.Insert(ctx, d); err != nil {
			logger.Error("failed to persist delivery", "err", err)
		}
	}

	onPending := func(ctx context.Context, msg kafka.Message) error {
		p, ok := decodePayload(logger, msg)
		if !ok {
			return nil
		}
		if p.ConfirmationCode == "" {
			logger.Error("pending event missing confirmation code", "appointment_id", p.AppointmentID)
			return nil
		}

		body := email.ConfirmationCodeBody(p.CustomerName, p.ConfirmationCode, p.startAt())
		sendErr := emailSender.Send(p.CustomerEmail, "Confirm your appointment", body)
		if sendErr != nil {
			logger.Error("confirmation email failed", "err", sendErr, "appointment_id", p.AppointmentID)
		}
		record(ctx, p, "email", p.CustomerEmail, sendErr)

		if p.CustomerPhone != "" {
			smsErr := smsSender.Send(ctx, p.CustomerPhone, "Your Slotly confirmation code: "+p.ConfirmationCode)
			if smsErr != nil {
				logger.Error("confirmation sms failed", "err", smsErr, "appointment_id", p.AppointmentID)
			}
			record(ctx, p, "sms", p.CustomerPhone, smsErr)
		}
		return sendErr
	}

	onConfirmed := func(ctx context.Context, msg kafka.Message) error {
		p, ok := decodePayload(logger, msg)
		if !ok {
			return nil
		}
		body := email.BookedBody(p.CustomerName, p.startAt())
		sendErr := emailSender.Send(p.CustomerEmail, "Your appointment is booked", body)
		if sendErr != nil {
			logger.Error("booked email failed", "err", sendErr, "appointment_id", p.AppointmentID)
		}
		record(ctx, p, "email", p.CustomerEmail, sendErr)
		return sendErr
	}

	brokers := config.String("KAFKA_BROKERS", "")
	groupID := config.String("KAFKA_GROUP_ID", "mailer-service")
	startConsumer := func(topic string, handler consumer.Handler) {
		if strings.TrimSpace(topic) == "" {
			return
		}
		c := consumer.New(logger, inboxRepo, consumer.Config{
			Brokers: brokers,
			GroupID: groupID,
			Topic:   topic,
		}, handler)
		go c.Run(ctx)
	}
	startConsumer(config.String("KAFKA_PENDING_TOPIC", "booking.appointment.pending.v1"), onPending)
	startConsumer(config.String("KAFKA_CONFIRMED_TOPIC", "booking.appointment.confirmed.v1"), onConfirmed)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "mailer")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

func decodePayload(logger *slog.Logger, msg kafka.Message) (appointmentPayload, bool) {
	var p appointmentPayload
	if err := json.Unmarshal(msg.Value, &p); err != nil {
		logger.Error("invalid event payload", "err", err, "topic", msg.Topic)
		return appointmentPayload{}, false
	}
	if p.AppointmentID == "" || p.CustomerEmail == "" {
		logger.Error("missing required event fields", "topic", msg.Topic)
		return appointmentPayload{}, false
	}
	return p, true
}
