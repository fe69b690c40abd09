package eventbroker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/jupiterclapton/cenackle/services/social-service/internal/core/domain"
)

// SubjectPrefix : un sujet par kind, ex. "social.events.FollowChanged".
const SubjectPrefix = "social.events."

// SubjectAll est le wildcard utilisé par les bridges de chaque instance.
const SubjectAll = SubjectPrefix + "*"

func Subject(kind domain.EventKind) string {
	return SubjectPrefix + string(kind)
}

// NatsPublisher diffuse les ChangeEvent à toutes les instances (NATS core, at-most-once).
// nc.PublishMsg ne fait que bufferiser côté client : la mutation n'attend jamais le réseau.
type NatsPublisher struct {
	nc *nats.Conn
}

func NewNatsPublisher(nc *nats.Conn) *NatsPublisher {
	return &NatsPublisher{nc: nc}
}

func (p *NatsPublisher) Publish(ctx context.Context, ev domain.ChangeEvent) error {
	ctx, span := otel.Tracer("social-service").Start(ctx, "publish "+string(ev.Kind),
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "nats"),
			attribute.String("social.subject_account_id", ev.SubjectAccountID),
			attribute.String("social.target_id", ev.TargetID),
		),
	)
	defer span.End()

	data, err := json.Marshal(ev)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("marshalling error: %w", err)
	}

	msg := &nats.Msg{
		Subject: Subject(ev.Kind),
		Data:    data,
		Header:  nats.Header{},
	}
	// Le TraceID de la requête HTTP voyage dans les headers NATS
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(msg.Header))

	slog.Debug("publishing change event", "subject", msg.Subject, "target_id", ev.TargetID)

	if err := p.nc.PublishMsg(msg); err != nil {
		span.RecordError(err)
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}
