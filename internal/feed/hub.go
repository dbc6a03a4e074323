package feed

import (
	"context"
	"sync"

	"medtrak/internal/model"
)

// Hub is an in-process Feed.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[*Subscription]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*Subscription]struct{})}
}

func (h *Hub) Publish(_ context.Context, recordID string, followUps []model.FollowUpQuestion) error {
	h.mu.Lock()
	targets := make([]*Subscription, 0, len(h.subs[recordID]))
	for sub := range h.subs[recordID] {
		targets = append(targets, sub)
	}
	h.mu.Unlock()

	for _, sub := range targets {
		sub.Offer(Update{RecordID: recordID, FollowUps: model.CloneFollowUps(followUps)})
	}
	return nil
}

func (h *Hub) Subscribe(_ context.Context, recordID string) (*Subscription, error) {
	var sub *Subscription
	sub = newSubscription(recordID, func() { h.remove(recordID, sub) })

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[recordID] == nil {
		h.subs[recordID] = make(map[*Subscription]struct{})
	}
	h.subs[recordID][sub] = struct{}{}
	return sub, nil
}

func (h *Hub) subscriberCount(recordID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[recordID])
}

func (h *Hub) remove(recordID string, sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs[recordID], sub)
	if len(h.subs[recordID]) == 0 {
		delete(h.subs, recordID)
	}
}
