package services

import (
	"context"
	"fmt"

	"github.com/jupiterclapton/cenackle/services/social-service/internal/core/domain"
	"github.com/jupiterclapton/cenackle/services/social-service/internal/core/ports"
	"github.com/jupiterclapton/cenackle/services/social-service/internal/metrics"
)

// EngagementService est l'Engagement Toggle Service.
type EngagementService struct {
	content   ports.ContentRepository
	likes     ports.LikeRepository
	publisher ports.EventPublisher
	metrics   *metrics.Metrics
}

func NewEngagementService(
	content ports.ContentRepository,
	likes ports.LikeRepository,
	pub ports.EventPublisher,
	m *metrics.Metrics,
) *EngagementService {
	return &EngagementService{content: content, likes: likes, publisher: pub, metrics: m}
}

// ToggleLike : like si absent, unlike sinon. Le count vient toujours du store,
// recalculé dans la même étape atomique que le test d'appartenance.
func (s *EngagementService) ToggleLike(ctx context.Context, actorID, contentID string) (domain.LikeState, error) {
	if actorID == "" {
		return domain.LikeState{}, domain.ErrAuthMissing
	}
	if contentID == "" {
		return domain.LikeState{}, domain.ErrContentNotFound
	}

	ctx = context.WithoutCancel(ctx)

	state, err := s.likes.ToggleLike(ctx, contentID, actorID)
	if err != nil {
		return domain.LikeState{}, err
	}
	s.metrics.LikeToggled(state.Liked)

	publish(ctx, s.publisher, s.metrics, domain.NewLikeEvent(actorID, state))
	return state, nil
}

func (s *EngagementService) CreateContent(ctx context.Context, cmd ports.CreateContentCmd) (*domain.ContentItem, error) {
	item, err := domain.NewContentItem(cmd.OwnerID, cmd.MediaURL, cmd.Caption)
	if err != nil {
		return nil, err
	}
	if err := s.content.CreateContent(ctx, item); err != nil {
		return nil, fmt.Errorf("save content: %w", err)
	}
	return item, nil
}

// GetContent hydrate LikedBy depuis le LikeRepository (qui peut être un autre store, ex: Redis).
func (s *EngagementService) GetContent(ctx context.Context, contentID string) (*domain.ContentItem, error) {
	item, err := s.content.ContentByID(ctx, contentID)
	if err != nil {
		return nil, err
	}
	likedBy, err := s.likes.LikedBy(ctx, contentID)
	if err != nil {
		return nil, fmt.Errorf("load likes: %w", err)
	}
	item.LikedBy = likedBy
	return item, nil
}
