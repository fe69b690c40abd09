package repository

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/jupiterclapton/cenackle/services/social-service/internal/core/domain"
)

// MemoryStore implémente tous les ports de persistance en mémoire (dev local, tests).
// Les deux côtés d'une arête sont modifiés dans UNE section critique : c'est
// l'équivalent d'une transaction multi-documents, aucune lecture ne voit un état partiel.
type MemoryStore struct {
	mu        sync.RWMutex
	accounts  map[string]*domain.Account
	byHandle  map[string]string
	byContact map[string]string
	content   map[string]*memContent
}

// Un verrou par contenu : deux toggles sur des posts différents ne se bloquent pas.
type memContent struct {
	mu   sync.Mutex
	item *domain.ContentItem
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:  make(map[string]*domain.Account),
		byHandle:  make(map[string]string),
		byContact: make(map[string]string),
		content:   make(map[string]*memContent),
	}
}

// --- ACCOUNTS ---

func (s *MemoryStore) CreateAccount(_ context.Context, account *domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byHandle[account.Handle]; ok {
		return domain.ErrHandleTaken
	}
	if _, ok := s.byContact[account.Contact]; ok {
		return domain.ErrContactTaken
	}
	s.accounts[account.ID] = account.Clone()
	s.byHandle[account.Handle] = account.ID
	s.byContact[account.Contact] = account.ID
	return nil
}

func (s *MemoryStore) AccountByID(_ context.Context, id string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return a.Clone(), nil
}

func (s *MemoryStore) AccountByHandle(ctx context.Context, handle string) (*domain.Account, error) {
	return s.lookup(ctx, s.byHandle, handle)
}

func (s *MemoryStore) AccountByContact(ctx context.Context, contact string) (*domain.Account, error) {
	return s.lookup(ctx, s.byContact, contact)
}

func (s *MemoryStore) lookup(ctx context.Context, index map[string]string, key string) (*domain.Account, error) {
	s.mu.RLock()
	id, ok := index[key]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return s.AccountByID(ctx, id)
}

// --- GRAPH ---

func (s *MemoryStore) ApplyEdge(_ context.Context, op domain.EdgeOp, actorID, targetID string) (domain.EdgeState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	actor, ok := s.accounts[actorID]
	if !ok {
		return domain.EdgeState{}, domain.ErrAccountNotFound
	}
	target, ok := s.accounts[targetID]
	if !ok {
		return domain.EdgeState{}, domain.ErrAccountNotFound
	}

	var changedA, changedB bool
	switch op {
	case domain.EdgeFollow:
		actor.Following, changedA = addMember(actor.Following, targetID)
		target.Followers, changedB = addMember(target.Followers, actorID)
	case domain.EdgeUnfollow:
		actor.Following, changedA = removeMember(actor.Following, targetID)
		target.Followers, changedB = removeMember(target.Followers, actorID)
	}

	now := time.Now().UTC()
	if changedA {
		actor.UpdatedAt = now
	}
	if changedB {
		target.UpdatedAt = now
	}

	return domain.EdgeState{
		ActorID:   actorID,
		TargetID:  targetID,
		Following: op == domain.EdgeFollow,
		Changed:   changedA || changedB,
	}, nil
}

func (s *MemoryStore) Relations(_ context.Context, accountID string) (domain.Relations, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return domain.Relations{}, domain.ErrAccountNotFound
	}
	c := a.Clone()
	return domain.Relations{Followers: c.Followers, Following: c.Following}, nil
}

// --- CONTENT & LIKES ---

func (s *MemoryStore) CreateContent(_ context.Context, item *domain.ContentItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[item.OwnerID]; !ok {
		return domain.ErrAccountNotFound
	}
	s.content[item.ID] = &memContent{item: item.Clone()}
	return nil
}

func (s *MemoryStore) ContentByID(_ context.Context, id string) (*domain.ContentItem, error) {
	c, err := s.contentEntry(id)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.item.Clone(), nil
}

func (s *MemoryStore) ToggleLike(_ context.Context, contentID, actorID string) (domain.LikeState, error) {
	c, err := s.contentEntry(contentID)
	if err != nil {
		return domain.LikeState{}, err
	}

	// Test + mutation + recomptage sous le même verrou
	c.mu.Lock()
	defer c.mu.Unlock()

	var liked bool
	if c.item.IsLikedBy(actorID) {
		c.item.LikedBy, _ = removeMember(c.item.LikedBy, actorID)
	} else {
		c.item.LikedBy, _ = addMember(c.item.LikedBy, actorID)
		liked = true
	}

	return domain.LikeState{
		ContentID: contentID,
		OwnerID:   c.item.OwnerID,
		Liked:     liked,
		Count:     c.item.LikeCount(),
	}, nil
}

func (s *MemoryStore) LikedBy(_ context.Context, contentID string) ([]string, error) {
	c, err := s.contentEntry(contentID)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.item.Clone().LikedBy, nil
}

func (s *MemoryStore) contentEntry(id string) (*memContent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.content[id]
	if !ok {
		return nil, domain.ErrContentNotFound
	}
	return c, nil
}

// --- HELPERS ---

func addMember(set []string, id string) ([]string, bool) {
	if slices.Contains(set, id) {
		return set, false
	}
	return append(set, id), true
}

func removeMember(set []string, id string) ([]string, bool) {
	i := slices.Index(set, id)
	if i < 0 {
		return set, false
	}
	return slices.Delete(set, i, i+1), true
}
