// Package dialogue runs the patient-facing conversation: composing records
// and walking the patient through the follow-up questions generated for
// them, one at a time.
package dialogue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"medtrak/internal/app"
	"medtrak/internal/feed"
	"medtrak/internal/metrics"
	"medtrak/internal/model"
)

var (
	ErrFollowUpsActive = errors.New("follow-up questions are pending")
	ErrMessageEmpty    = errors.New("message content is empty")
	ErrSessionClosed   = errors.New("session is closed")
	ErrInvalidMode     = errors.New("invalid input mode")
)

const (
	watcherBuffer = 64

	defaultClosingMessage = "Thanks for sharing how you're feeling today. You can continue with another report anytime."
)

// Backend is the record store a session writes through.
type Backend interface {
	Upload(ctx context.Context, patientUID string, kind model.RecordKind, filename string, r io.Reader) (string, error)
	SaveTextRecord(ctx context.Context, input app.TextRecordInput) (*model.TextRecord, error)
	SaveImageRecord(ctx context.Context, input app.ImageRecordInput) (*model.ImageRecord, error)
	SaveVoiceRecord(ctx context.Context, input app.VoiceRecordInput) (*model.VoiceRecord, error)
	SetFollowUpResponse(ctx context.Context, id string, index int, answer string) (bool, error)
	Subscribe(ctx context.Context, id string) (*feed.Subscription, error)
}

type Config struct {
	InitialPrompt  string
	ClosingMessage string
}

type State string

const (
	StateIdle   State = "idle"
	StateQueued State = "queued"
)

// Question is a pending follow-up with its position in the record's list.
type Question struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

type Snapshot struct {
	State     State            `json:"state"`
	Mode      model.RecordKind `json:"mode"`
	RecordID  string           `json:"recordId,omitempty"`
	Remaining int              `json:"remaining"`
}

// Attachment is an uploaded file on its way into a record.
type Attachment struct {
	Filename string
	Body     io.Reader
}

// BlockedNotice is the text shown when the patient tries to attach media
// while a follow-up is waiting for an answer.
func BlockedNotice(kind model.RecordKind) string {
	switch kind {
	case model.KindImage:
		return "Answer the follow-up question before adding images."
	case model.KindVoice:
		return "Answer the follow-up question before recording audio."
	default:
		return "Answer the follow-up question first."
	}
}

// Session is one patient's conversation. All transitions hold mu, including
// the backend calls they make, so a session handles one event at a time.
type Session struct {
	id         string
	patientUID string
	backend    Backend
	cfg        Config
	logger     zerolog.Logger
	metrics    *metrics.Metrics

	mu             sync.Mutex
	closed         bool
	messages       []Message
	mode           model.RecordKind
	queuedRecordID string
	questions      []Question
	hadFollowUps   bool
	lastClosedID   string
	sub            *feed.Subscription
	watchers       map[int]chan Message
	nextWatcher    int
}

func NewSession(id, patientUID string, backend Backend, cfg Config, logger zerolog.Logger, m *metrics.Metrics) *Session {
	if strings.TrimSpace(cfg.ClosingMessage) == "" {
		cfg.ClosingMessage = defaultClosingMessage
	}
	s := &Session{
		id:         id,
		patientUID: patientUID,
		backend:    backend,
		cfg:        cfg,
		logger:     logger.With().Str("session_id", id).Logger(),
		metrics:    m,
		mode:       model.KindText,
		watchers:   make(map[int]chan Message),
	}
	if prompt := strings.TrimSpace(cfg.InitialPrompt); prompt != "" {
		s.messages = append(s.messages, assistantText(prompt))
	}
	return s
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) PatientUID() string {
	return s.patientUID
}

func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.messages...)
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{State: StateIdle, Mode: s.mode}
	if s.queuedLocked() {
		snap.State = StateQueued
		snap.RecordID = s.queuedRecordID
		snap.Remaining = len(s.questions)
	}
	return snap
}

// Watch streams messages appended after the call. The channel is closed by
// stop or when the session closes.
func (s *Session) Watch() (<-chan Message, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan Message, watcherBuffer)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextWatcher
	s.nextWatcher++
	s.watchers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if w, ok := s.watchers[id]; ok {
				delete(s.watchers, id)
				close(w)
			}
		})
	}
}

// RequestMode switches the input affordance. Image and voice are refused
// while a follow-up is pending.
func (s *Session) RequestMode(mode model.RecordKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	switch mode {
	case model.KindText, model.KindImage, model.KindVoice:
	default:
		return ErrInvalidMode
	}
	if mode != model.KindText && s.queuedLocked() {
		return s.blocked(mode)
	}
	s.mode = mode
	return nil
}

// SendText answers the pending follow-up when one is queued and composes a
// new text record otherwise. The text is kept as typed; blank input is
// rejected.
func (s *Session) SendText(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrMessageEmpty
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}

	if s.queuedLocked() {
		s.answerLocked(ctx, text)
		return nil
	}

	s.appendLocked(newMessage(RoleUser, model.KindText, text))
	record, err := s.backend.SaveTextRecord(ctx, app.TextRecordInput{PatientUID: s.patientUID, Text: text})
	if err != nil {
		return fmt.Errorf("save text record failed: %w", err)
	}
	s.followLocked(ctx, record.ID)
	return nil
}

func (s *Session) SendImage(ctx context.Context, image Attachment, caption string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if s.queuedLocked() {
		return s.blocked(model.KindImage)
	}
	defer func() { s.mode = model.KindText }()

	// An image needs a description; check before anything is uploaded.
	caption = strings.TrimSpace(caption)
	if caption == "" {
		return ErrMessageEmpty
	}

	url, err := s.backend.Upload(ctx, s.patientUID, model.KindImage, image.Filename, image.Body)
	if err != nil {
		return err
	}

	msg := newMessage(RoleUser, model.KindImage, caption)
	msg.MediaURL = url
	s.appendLocked(msg)

	record, err := s.backend.SaveImageRecord(ctx, app.ImageRecordInput{PatientUID: s.patientUID, ImageURL: url, Caption: caption})
	if err != nil {
		return fmt.Errorf("save image record failed: %w", err)
	}
	s.followLocked(ctx, record.ID)
	return nil
}

func (s *Session) SendVoice(ctx context.Context, audio Attachment, durationSec *int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if s.queuedLocked() {
		return s.blocked(model.KindVoice)
	}
	defer func() { s.mode = model.KindText }()

	url, err := s.backend.Upload(ctx, s.patientUID, model.KindVoice, audio.Filename, audio.Body)
	if err != nil {
		return err
	}

	msg := newMessage(RoleUser, model.KindVoice, "")
	msg.MediaURL = url
	msg.AudioDurationSec = durationSec
	s.appendLocked(msg)

	record, err := s.backend.SaveVoiceRecord(ctx, app.VoiceRecordInput{PatientUID: s.patientUID, AudioURL: url, DurationSec: durationSec})
	if err != nil {
		return fmt.Errorf("save voice record failed: %w", err)
	}
	s.followLocked(ctx, record.ID)
	return nil
}

// Arm queues the unanswered follow-ups of a record. Nil or empty lists,
// repeats for the queued record and late deliveries for the record just
// finished are ignored. A list for another record replaces the pending
// one.
func (s *Session) Arm(recordID string, followUps []model.FollowUpQuestion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armLocked(recordID, followUps)
}

// deliver arms from a subscription, dropping updates that raced with its
// replacement.
func (s *Session) deliver(sub *feed.Subscription, followUps []model.FollowUpQuestion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub != sub {
		return
	}
	s.armLocked(sub.RecordID(), followUps)
}

func (s *Session) armLocked(recordID string, followUps []model.FollowUpQuestion) {
	if s.closed || len(followUps) == 0 {
		return
	}
	if recordID == s.lastClosedID {
		return
	}
	if s.queuedLocked() && s.queuedRecordID == recordID {
		return
	}

	questions := make([]Question, 0, len(followUps))
	for i, q := range followUps {
		if strings.TrimSpace(q.Question) == "" || q.Answered() {
			continue
		}
		questions = append(questions, Question{Index: i, Text: strings.TrimSpace(q.Question)})
	}
	if len(questions) == 0 {
		return
	}

	if s.queuedLocked() {
		s.logger.Warn().
			Str("record_id", recordID).
			Str("replaced_record_id", s.queuedRecordID).
			Msg("pending follow-ups replaced")
	}
	s.queuedRecordID = recordID
	s.questions = questions
	s.hadFollowUps = true
	s.presentLocked()
}

// Close releases the live subscription and ends every watcher. Safe to
// call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.sub != nil {
		s.sub.Cancel()
		s.sub = nil
	}
	for id, w := range s.watchers {
		delete(s.watchers, id)
		close(w)
	}
}

func (s *Session) queuedLocked() bool {
	return len(s.questions) > 0
}

func (s *Session) blocked(kind model.RecordKind) error {
	return fmt.Errorf("%w: %s", ErrFollowUpsActive, BlockedNotice(kind))
}

// presentLocked shows the head question unless it is already the last
// message.
func (s *Session) presentLocked() {
	if !s.queuedLocked() {
		return
	}
	head := s.questions[0].Text
	if n := len(s.messages); n > 0 {
		last := s.messages[n-1]
		if last.Role == RoleAssistant && last.Type == model.KindText && last.Content == head {
			return
		}
	}
	s.appendLocked(assistantText(head))
}

func (s *Session) answerLocked(ctx context.Context, answer string) {
	s.appendLocked(newMessage(RoleUser, model.KindText, answer))

	head := s.questions[0]
	applied, err := s.backend.SetFollowUpResponse(ctx, s.queuedRecordID, head.Index, answer)
	switch {
	case err != nil:
		s.logger.Error().Err(err).
			Str("record_id", s.queuedRecordID).
			Int("index", head.Index).
			Msg("persist follow-up answer failed")
		s.metrics.FollowUpAnswer(metrics.OutcomeFailed)
	case !applied:
		s.logger.Warn().
			Str("record_id", s.queuedRecordID).
			Int("index", head.Index).
			Msg("follow-up answer not applied")
		s.metrics.FollowUpAnswer(metrics.OutcomeSkipped)
	default:
		s.metrics.FollowUpAnswer(metrics.OutcomeOK)
	}

	s.questions = s.questions[1:]
	if s.queuedLocked() {
		s.presentLocked()
		return
	}
	s.closeQueueLocked()
}

func (s *Session) closeQueueLocked() {
	if !s.hadFollowUps {
		return
	}
	s.hadFollowUps = false
	if s.sub != nil {
		s.sub.Cancel()
		s.sub = nil
	}
	s.lastClosedID = s.queuedRecordID
	s.queuedRecordID = ""
	s.questions = nil
	s.appendLocked(assistantText(s.cfg.ClosingMessage))
}

// followLocked replaces the live subscription with one on the new record.
func (s *Session) followLocked(ctx context.Context, recordID string) {
	if s.sub != nil {
		s.sub.Cancel()
		s.sub = nil
	}

	sub, err := s.backend.Subscribe(ctx, recordID)
	if err != nil {
		s.logger.Error().Err(err).Str("record_id", recordID).Msg("subscribe follow-ups failed")
		return
	}
	s.sub = sub
	go s.pump(sub)
}

func (s *Session) pump(sub *feed.Subscription) {
	for {
		select {
		case <-sub.Done():
			return
		case u := <-sub.Updates():
			s.deliver(sub, u.FollowUps)
		}
	}
}

func (s *Session) appendLocked(msg Message) {
	s.messages = append(s.messages, msg)
	for _, w := range s.watchers {
		select {
		case w <- msg:
		default:
			s.logger.Warn().Msg("session watcher lagging, message dropped")
		}
	}
}
