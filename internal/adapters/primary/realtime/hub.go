// Package realtime est le Notification Fan-out Hub : il relaie les ChangeEvent
// vers les connexions WebSocket des comptes concernés, au plus une fois.
package realtime

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"github.com/jupiterclapton/cenackle/services/social-service/internal/core/domain"
	"github.com/jupiterclapton/cenackle/services/social-service/internal/metrics"
)

var (
	ErrHubClosed    = errors.New("notification hub closed")
	ErrHubSaturated = errors.New("notification hub buffer full")
)

type Options struct {
	EventBuffer    int // Événements en attente de dispatch
	ClientBuffer   int // Messages en attente d'écriture par connexion
	Shards         int
	PongWait       time.Duration
	AllowedOrigins []string // Vide ou "*" : toutes les origines
}

func (o Options) withDefaults() Options {
	if o.EventBuffer <= 0 {
		o.EventBuffer = 1024
	}
	if o.ClientBuffer <= 0 {
		o.ClientBuffer = 64
	}
	if o.Shards <= 0 {
		o.Shards = 32
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	return o
}

// shard : sous-ensemble du registre, protégé par son propre verrou.
// Les envois vers client.send se font sous RLock, la fermeture de send sous Lock :
// on n'écrit jamais dans un canal fermé.
type shard struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
}

type Hub struct {
	opts    Options
	shards  []*shard
	events  chan domain.ChangeEvent
	metrics *metrics.Metrics
	closed  atomic.Bool
}

func NewHub(opts Options, m *metrics.Metrics) *Hub {
	opts = opts.withDefaults()
	h := &Hub{
		opts:    opts,
		shards:  make([]*shard, opts.Shards),
		events:  make(chan domain.ChangeEvent, opts.EventBuffer),
		metrics: m,
	}
	for i := range h.shards {
		h.shards[i] = &shard{clients: make(map[string]map[*Client]struct{})}
	}
	return h
}

func (h *Hub) shardFor(accountID string) *shard {
	f := fnv.New32a()
	_, _ = f.Write([]byte(accountID))
	return h.shards[f.Sum32()%uint32(len(h.shards))]
}

// --- PUBLICATION ---

// Publish implémente ports.EventPublisher. Ne bloque jamais : buffer plein = drop.
func (h *Hub) Publish(_ context.Context, ev domain.ChangeEvent) error {
	if h.closed.Load() {
		h.metrics.Dropped(metrics.DropHubClosed)
		return ErrHubClosed
	}
	select {
	case h.events <- ev:
		return nil
	default:
		h.metrics.Dropped(metrics.DropBufferFull)
		return ErrHubSaturated
	}
}

// Run dispatche les événements jusqu'à l'annulation du contexte, puis ferme toutes les connexions.
func (h *Hub) Run(ctx context.Context) error {
	slog.Info("notification hub started", "shards", len(h.shards), "event_buffer", cap(h.events))
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return ctx.Err()
		case ev := <-h.events:
			h.dispatch(ev)
		}
	}
}

func (h *Hub) dispatch(ev domain.ChangeEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		slog.Error("change event encoding failed", "kind", ev.Kind, "error", err)
		return
	}

	delivered := 0
	var slow []*Client
	for _, accountID := range ev.Recipients() {
		s := h.shardFor(accountID)
		s.mu.RLock()
		for c := range s.clients[accountID] {
			select {
			case c.send <- payload:
				delivered++
				h.metrics.Delivered(string(ev.Kind))
			default:
				slow = append(slow, c)
			}
		}
		s.mu.RUnlock()
	}

	// Une connexion incapable de suivre est coupée : le client se reconnecte et relit l'état.
	for _, c := range slow {
		h.metrics.Dropped(metrics.DropSlowConsumer)
		slog.Warn("reaping slow websocket client", "account_id", c.accountID, "kind", ev.Kind)
		h.Unsubscribe(c)
	}

	if delivered == 0 && len(slow) == 0 {
		h.metrics.Dropped(metrics.DropNoSubscriber)
		slog.Debug("change event without live subscriber", "kind", ev.Kind, "target_id", ev.TargetID)
	}
}

// --- REGISTRE ---

func (h *Hub) Subscribe(c *Client) error {
	if h.closed.Load() {
		return ErrHubClosed
	}
	s := h.shardFor(c.accountID)
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.clients[c.accountID]
	if !ok {
		set = make(map[*Client]struct{})
		s.clients[c.accountID] = set
	}
	set[c] = struct{}{}
	h.metrics.SubscriptionOpened()
	slog.Debug("websocket client subscribed", "account_id", c.accountID)
	return nil
}

// Unsubscribe est idempotent.
func (h *Hub) Unsubscribe(c *Client) {
	s := h.shardFor(c.accountID)
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.clients[c.accountID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(s.clients, c.accountID)
	}
	c.closeSend()
	h.metrics.SubscriptionClosed()
	slog.Debug("websocket client unsubscribed", "account_id", c.accountID)
}

// enqueue écrit un message de contrôle (subscribed, pong) si le client est encore inscrit.
func (h *Hub) enqueue(c *Client, payload []byte) bool {
	s := h.shardFor(c.accountID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.clients[c.accountID][c]; !ok {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// SubscriberCount renvoie le nombre de connexions actives d'un compte.
func (h *Hub) SubscriberCount(accountID string) int {
	s := h.shardFor(accountID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients[accountID])
}

func (h *Hub) shutdown() {
	h.closed.Store(true)
	total := 0
	for _, s := range h.shards {
		s.mu.Lock()
		for accountID, set := range s.clients {
			for c := range set {
				c.closeSend()
				h.metrics.SubscriptionClosed()
				total++
			}
			delete(s.clients, accountID)
		}
		s.mu.Unlock()
	}
	slog.Info("notification hub stopped", "closed_clients", total, "pending_events", len(h.events))
}
