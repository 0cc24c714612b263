package event

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/VictoriaMetrics/metrics"
	"github.com/segmentio/kafka-go"

	"miprojet-payment-service/internal/message"
)

var (
	publishSuccessCounter = metrics.GetOrCreateCounter(`payment_status_events_total{result="success"}`)
	publishErrorCounter   = metrics.GetOrCreateCounter(`payment_status_events_total{result="error"}`)
)

// Publisher emits payment status-change events for downstream consumers
// (notifications, dashboards). A nil writer disables publication, for
// deployments without a broker.
type Publisher struct {
	writer *kafka.Writer
	logger *slog.Logger
}

func NewPublisher(writer *kafka.Writer, logger *slog.Logger) *Publisher {
	return &Publisher{writer: writer, logger: logger}
}

// Publish is best-effort: a broker failure is logged and counted, never
// propagated, because the reconciliation it reports has already committed.
func (p *Publisher) Publish(ctx context.Context, ev message.PaymentStatusEvent) {
	if p.writer == nil {
		return
	}

	value, err := json.Marshal(ev)
	if err != nil {
		p.logger.ErrorContext(ctx, "Error marshalling payment status event", "error", err)
		publishErrorCounter.Inc()
		return
	}

	msg := kafka.Message{
		Key:   []byte(ev.PaymentID.String()),
		Value: value,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.ErrorContext(ctx, "Error publishing payment status event", "error", err, "paymentId", ev.PaymentID)
		publishErrorCounter.Inc()
		return
	}

	publishSuccessCounter.Inc()
}
