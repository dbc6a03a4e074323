// Package feed streams live changes of a record's follow-up list to
// subscribers.
package feed

import (
	"context"
	"sync"

	"medtrak/internal/model"
)

// Update carries the full follow-up list of one record. A nil FollowUps
// means the field is absent or the record does not exist.
type Update struct {
	RecordID  string
	FollowUps []model.FollowUpQuestion
}

type Feed interface {
	Publish(ctx context.Context, recordID string, followUps []model.FollowUpQuestion) error
	// Subscribe starts a subscription; ctx bounds only the setup, the
	// subscription lives until Cancel.
	Subscribe(ctx context.Context, recordID string) (*Subscription, error)
}

// Subscription holds at most one undelivered update. A newer update
// replaces an unread older one, so a slow reader sees the latest value and
// publishers never block.
type Subscription struct {
	recordID string
	updates  chan Update
	done     chan struct{}

	mu       sync.Mutex
	offered  bool
	once     sync.Once
	onCancel func()
}

func newSubscription(recordID string, onCancel func()) *Subscription {
	return &Subscription{
		recordID: recordID,
		updates:  make(chan Update, 1),
		done:     make(chan struct{}),
		onCancel: onCancel,
	}
}

func (s *Subscription) RecordID() string {
	return s.recordID
}

func (s *Subscription) Updates() <-chan Update {
	return s.updates
}

// Done is closed once the subscription is cancelled.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Offer queues an update, dropping any unread older one. It is a no-op
// after Cancel.
func (s *Subscription) Offer(u Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offer(u)
}

// Prime delivers an initial snapshot unless a live update already arrived,
// which is at least as new.
func (s *Subscription) Prime(u Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.offered {
		s.offer(u)
	}
}

func (s *Subscription) offer(u Update) {
	select {
	case <-s.done:
		return
	default:
	}
	s.offered = true
	for {
		select {
		case s.updates <- u:
			return
		default:
		}
		select {
		case <-s.updates:
		default:
		}
	}
}

// Cancel releases the subscription. Safe to call more than once.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.mu.Lock()
		close(s.done)
		s.mu.Unlock()
		if s.onCancel != nil {
			s.onCancel()
		}
	})
}
