package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/jupiterclapton/cenackle/services/social-service/internal/core/domain"
	"github.com/jupiterclapton/cenackle/services/social-service/internal/core/ports"
	"github.com/jupiterclapton/cenackle/services/social-service/internal/metrics"
)

// RetryPolicy borne les retries sur ErrStorageConflict (backoff exponentiel avec jitter).
type RetryPolicy struct {
	MaxAttempts     uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:     3,
	InitialInterval: 25 * time.Millisecond,
	MaxInterval:     250 * time.Millisecond,
}

func (p RetryPolicy) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.RandomizationFactor = 0.5
	return b
}

// GraphService est le Social Graph Mutator.
type GraphService struct {
	repo      ports.GraphRepository
	accounts  ports.AccountRepository
	publisher ports.EventPublisher
	retry     RetryPolicy
	metrics   *metrics.Metrics
}

func NewGraphService(
	repo ports.GraphRepository,
	accounts ports.AccountRepository,
	pub ports.EventPublisher,
	retry RetryPolicy,
	m *metrics.Metrics,
) *GraphService {
	if retry.MaxAttempts == 0 {
		retry = DefaultRetryPolicy
	}
	return &GraphService{repo: repo, accounts: accounts, publisher: pub, retry: retry, metrics: m}
}

func (s *GraphService) Follow(ctx context.Context, actorID, targetID string) (domain.EdgeState, error) {
	return s.mutate(ctx, domain.EdgeFollow, actorID, targetID)
}

func (s *GraphService) Unfollow(ctx context.Context, actorID, targetID string) (domain.EdgeState, error) {
	return s.mutate(ctx, domain.EdgeUnfollow, actorID, targetID)
}

func (s *GraphService) Relations(ctx context.Context, accountID string) (domain.Relations, error) {
	if _, err := s.accounts.AccountByID(ctx, accountID); err != nil {
		return domain.Relations{}, err
	}
	return s.repo.Relations(ctx, accountID)
}

func (s *GraphService) mutate(ctx context.Context, op domain.EdgeOp, actorID, targetID string) (domain.EdgeState, error) {
	if actorID == "" || targetID == "" {
		return domain.EdgeState{}, domain.ErrAccountNotFound
	}
	// Rejeté AVANT tout accès au store
	if actorID == targetID {
		return domain.EdgeState{}, domain.ErrSelfReference
	}

	// Une mutation va au bout ou échoue : la déconnexion du client ne l'interrompt pas.
	ctx = context.WithoutCancel(ctx)

	edge, err := backoff.Retry(ctx, func() (domain.EdgeState, error) {
		edge, err := s.repo.ApplyEdge(ctx, op, actorID, targetID)
		switch {
		case err == nil:
			return edge, nil
		case errors.Is(err, domain.ErrStorageConflict):
			return edge, err
		default:
			return edge, backoff.Permanent(err)
		}
	},
		backoff.WithBackOff(s.retry.backOff()),
		backoff.WithMaxTries(s.retry.MaxAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.metrics.GraphRetry(op.String())
			slog.Debug("graph conflict, retrying", "op", op.String(), "actor_id", actorID, "target_id", targetID, "backoff", next)
		}),
	)
	if err != nil {
		if errors.Is(err, domain.ErrStorageConflict) {
			slog.Warn("graph mutation gave up after retries", "op", op.String(), "actor_id", actorID, "target_id", targetID)
		}
		return domain.EdgeState{}, err
	}

	if edge.Changed {
		publish(ctx, s.publisher, s.metrics, domain.NewEdgeEvent(edge))
	}
	return edge, nil
}

// publish est best-effort : une erreur de notification ne fait jamais échouer la mutation.
func publish(ctx context.Context, pub ports.EventPublisher, m *metrics.Metrics, ev domain.ChangeEvent) {
	if pub == nil {
		return
	}
	if err := pub.Publish(ctx, ev); err != nil {
		slog.Warn("change event dropped", "kind", ev.Kind, "subject_id", ev.SubjectAccountID, "target_id", ev.TargetID, "error", err)
		return
	}
	m.Published(string(ev.Kind))
}
