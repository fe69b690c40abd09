package services_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jupiterclapton/cenackle/services/social-service/internal/adapters/secondary/repository"
	"github.com/jupiterclapton/cenackle/services/social-service/internal/core/domain"
)

// recordingPublisher capture les événements publiés.
type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.ChangeEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev domain.ChangeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Events() []domain.ChangeEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.ChangeEvent(nil), p.events...)
}

func seedAccount(t *testing.T, store *repository.MemoryStore, handle string) *domain.Account {
	t.Helper()
	a, err := domain.NewAccount(handle, handle+"@example.com", "hash")
	require.NoError(t, err)
	require.NoError(t, store.CreateAccount(context.Background(), a))
	return a
}

func seedContent(t *testing.T, store *repository.MemoryStore, ownerID string) *domain.ContentItem {
	t.Helper()
	item, err := domain.NewContentItem(ownerID, "https://media.example.com/v/1.mp4", "clip")
	require.NoError(t, err)
	require.NoError(t, store.CreateContent(context.Background(), item))
	return item
}
