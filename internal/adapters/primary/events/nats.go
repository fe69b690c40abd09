package events

import (
	"context"
	"log/slog"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/jupiterclapton/cenackle/services/social-service/internal/adapters/secondary/eventbroker"
	"github.com/jupiterclapton/cenackle/services/social-service/internal/core/domain"
	"github.com/jupiterclapton/cenackle/services/social-service/internal/core/ports"
	"github.com/jupiterclapton/cenackle/services/social-service/internal/metrics"
)

// Bridge relaie les ChangeEvent reçus de NATS vers le hub local.
// Chaque instance s'abonne (pas de queue group) : le hub qui détient la connexion livre.
type Bridge struct {
	hub     ports.EventPublisher
	metrics *metrics.Metrics
}

func NewBridge(hub ports.EventPublisher, m *metrics.Metrics) *Bridge {
	return &Bridge{hub: hub, metrics: m}
}

func (b *Bridge) Subscribe(nc *nats.Conn) (*nats.Subscription, error) {
	return nc.Subscribe(eventbroker.SubjectAll, b.HandleChangeEvent)
}

func (b *Bridge) HandleChangeEvent(msg *nats.Msg) {
	// Lien avec la trace de la requête qui a produit la mutation
	ctx := otel.GetTextMapPropagator().Extract(context.Background(), propagation.HeaderCarrier(msg.Header))

	ctx, span := otel.Tracer("social-service").Start(ctx, "relay_change_event", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	var ev domain.ChangeEvent
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		span.RecordError(err)
		b.metrics.Dropped(metrics.DropBridgeFailed)
		slog.Error("invalid change event payload", "subject", msg.Subject, "error", err)
		return
	}
	if !ev.Kind.Valid() {
		b.metrics.Dropped(metrics.DropBridgeFailed)
		slog.Warn("unknown change event kind", "subject", msg.Subject, "kind", ev.Kind)
		return
	}

	// Le hub compte lui-même ses drops (buffer plein, fermé)
	if err := b.hub.Publish(ctx, ev); err != nil {
		span.RecordError(err)
		slog.Warn("change event not relayed", "kind", ev.Kind, "error", err)
	}
}
