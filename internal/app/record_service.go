package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"medtrak/internal/feed"
	"medtrak/internal/metrics"
	"medtrak/internal/model"
	"medtrak/internal/repository"
)

var (
	ErrUnauthenticated = errors.New("no authenticated patient")
	ErrRecordNotFound  = errors.New("record not found")
	ErrMessageEmpty    = errors.New("message content is empty")
	ErrForbidden       = errors.New("record belongs to another patient")
)

// JobPublisher hands annotation work to the background worker.
type JobPublisher interface {
	Publish(ctx context.Context, job model.AnnotationJob) error
}

type Uploader interface {
	Upload(ctx context.Context, prefix, filename string, r io.Reader) (string, error)
}

type TimelineCache interface {
	GetTimeline(ctx context.Context, patientUID string) ([]model.Record, bool, error)
	SetTimeline(ctx context.Context, patientUID string, records []model.Record) error
	DeleteTimeline(ctx context.Context, patientUID string) error
	MarkDirty(ctx context.Context, patientUID string) error
	IsDirty(ctx context.Context, patientUID string) (bool, error)
}

type RecordService struct {
	repo      *repository.RecordRepository
	uploader  Uploader
	publisher JobPublisher
	timeline  TimelineCache
	feed      feed.Feed
	logger    zerolog.Logger
	metrics   *metrics.Metrics
}

type TextRecordInput struct {
	PatientUID string
	Text       string
	CreatedAt  int64
}

type ImageRecordInput struct {
	PatientUID string
	ImageURL   string
	Caption    string
	CreatedAt  int64
}

type VoiceRecordInput struct {
	PatientUID  string
	AudioURL    string
	DurationSec *int
	CreatedAt   int64
}

func NewRecordService(
	repo *repository.RecordRepository,
	uploader Uploader,
	publisher JobPublisher,
	timeline TimelineCache,
	followUpFeed feed.Feed,
	logger zerolog.Logger,
	m *metrics.Metrics,
) *RecordService {
	return &RecordService{
		repo:      repo,
		uploader:  uploader,
		publisher: publisher,
		timeline:  timeline,
		feed:      followUpFeed,
		logger:    logger,
		metrics:   m,
	}
}

// Upload stores an attachment for the patient and returns its public URL.
func (s *RecordService) Upload(ctx context.Context, patientUID string, kind model.RecordKind, filename string, r io.Reader) (string, error) {
	if strings.TrimSpace(patientUID) == "" {
		return "", ErrUnauthenticated
	}

	var prefix string
	switch kind {
	case model.KindImage:
		prefix = "images/" + patientUID
	case model.KindVoice:
		prefix = "audio/" + patientUID
	default:
		return "", fmt.Errorf("%w: %s", model.ErrUnknownRecordKind, kind)
	}

	url, err := s.uploader.Upload(ctx, prefix, filename, r)
	if err != nil {
		return "", fmt.Errorf("upload attachment failed: %w", err)
	}
	return url, nil
}

func (s *RecordService) SaveTextRecord(ctx context.Context, input TextRecordInput) (*model.TextRecord, error) {
	if strings.TrimSpace(input.PatientUID) == "" {
		return nil, ErrUnauthenticated
	}
	if strings.TrimSpace(input.Text) == "" {
		return nil, ErrMessageEmpty
	}

	record := model.NewTextRecord(model.TextInit{
		PatientUID: input.PatientUID,
		UserText:   input.Text,
		CreatedAt:  input.CreatedAt,
	})
	if err := s.save(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *RecordService) SaveImageRecord(ctx context.Context, input ImageRecordInput) (*model.ImageRecord, error) {
	if strings.TrimSpace(input.PatientUID) == "" {
		return nil, ErrUnauthenticated
	}
	if strings.TrimSpace(input.ImageURL) == "" {
		return nil, ErrInvalidInput
	}
	if strings.TrimSpace(input.Caption) == "" {
		return nil, ErrMessageEmpty
	}

	record := model.NewImageRecord(model.ImageInit{
		PatientUID: input.PatientUID,
		ImageURL:   input.ImageURL,
		UserText:   input.Caption,
		CreatedAt:  input.CreatedAt,
	})
	if err := s.save(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *RecordService) SaveVoiceRecord(ctx context.Context, input VoiceRecordInput) (*model.VoiceRecord, error) {
	if strings.TrimSpace(input.PatientUID) == "" {
		return nil, ErrUnauthenticated
	}
	if strings.TrimSpace(input.AudioURL) == "" {
		return nil, ErrInvalidInput
	}
	if input.DurationSec != nil && *input.DurationSec < 0 {
		return nil, ErrInvalidInput
	}

	record := model.NewVoiceRecord(model.VoiceInit{
		PatientUID:       input.PatientUID,
		AudioURL:         input.AudioURL,
		AudioDurationSec: input.DurationSec,
		CreatedAt:        input.CreatedAt,
	})
	if err := s.save(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// save persists the record and then enqueues annotation. Enqueue failures
// are logged only: the record itself is already durable.
func (s *RecordService) save(ctx context.Context, record model.Record) error {
	patientUID := record.Base().PatientUID
	s.markDirty(ctx, patientUID)

	if err := s.repo.Create(ctx, record); err != nil {
		return err
	}
	s.metrics.RecordSaved(string(record.Kind()))

	if s.publisher == nil {
		return nil
	}
	job := model.AnnotationJobFor(record)
	if err := s.publisher.Publish(ctx, job); err != nil {
		s.logger.Error().Err(err).Str("record_id", job.RecordID).Msg("enqueue annotation failed")
	}
	return nil
}

// SetDerivedText stores the caption or transcript; nil clears it.
func (s *RecordService) SetDerivedText(ctx context.Context, id string, text *string) error {
	if text != nil && strings.TrimSpace(*text) == "" {
		text = nil
	}
	if err := s.repo.SetLLMText(ctx, id, text); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

// SetFollowUps replaces the list and notifies live subscribers.
func (s *RecordService) SetFollowUps(ctx context.Context, id string, followUps []model.FollowUpQuestion) error {
	if err := s.repo.SetFollowUps(ctx, id, followUps); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	s.publish(ctx, id, followUps)
	return nil
}

// SetFollowUpResponse answers one follow-up. It reports false when the
// record, its list or the index does not exist.
func (s *RecordService) SetFollowUpResponse(ctx context.Context, id string, index int, answer string) (bool, error) {
	followUps, applied, err := s.repo.SetFollowUpResponse(ctx, id, index, answer)
	if err != nil {
		return false, err
	}
	if !applied {
		return false, nil
	}
	s.invalidate(ctx, id)
	s.publish(ctx, id, followUps)
	return true, nil
}

// Subscribe streams the record's follow-up list, starting with its current
// value.
func (s *RecordService) Subscribe(ctx context.Context, id string) (*feed.Subscription, error) {
	sub, err := s.feed.Subscribe(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("subscribe follow-ups failed: %w", err)
	}

	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		sub.Cancel()
		return nil, err
	}
	var snapshot []model.FollowUpQuestion
	if record != nil {
		snapshot = record.Base().FollowUps
	}
	sub.Prime(feed.Update{RecordID: id, FollowUps: snapshot})
	return sub, nil
}

func (s *RecordService) GetRecord(ctx context.Context, id string) (model.Record, error) {
	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrRecordNotFound
	}
	return record, nil
}

// GetPatientRecord is GetRecord restricted to the owning patient.
func (s *RecordService) GetPatientRecord(ctx context.Context, patientUID, id string) (model.Record, error) {
	if strings.TrimSpace(patientUID) == "" {
		return nil, ErrUnauthenticated
	}
	record, err := s.GetRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.Base().PatientUID != patientUID {
		return nil, ErrRecordNotFound
	}
	return record, nil
}

// ListRecords returns every record of the patient in timeline order.
func (s *RecordService) ListRecords(ctx context.Context, patientUID string) ([]model.Record, error) {
	if strings.TrimSpace(patientUID) == "" {
		return nil, ErrUnauthenticated
	}

	if s.timeline != nil {
		dirty, err := s.timeline.IsDirty(ctx, patientUID)
		if err == nil && !dirty {
			if cached, hit, cacheErr := s.timeline.GetTimeline(ctx, patientUID); cacheErr == nil && hit {
				return cached, nil
			}
		}
	}

	records, err := s.repo.ListByPatientUID(ctx, patientUID)
	if err != nil {
		return nil, err
	}

	if s.timeline != nil {
		if dirty, dirtyErr := s.timeline.IsDirty(ctx, patientUID); dirtyErr == nil && !dirty {
			_ = s.timeline.SetTimeline(ctx, patientUID, records)
		}
	}
	return records, nil
}

// FetchGroupedByDay buckets the patient's records by UTC day, each bucket
// ascending by creation time.
func (s *RecordService) FetchGroupedByDay(ctx context.Context, patientUID string) (map[string][]model.Record, error) {
	records, err := s.ListRecords(ctx, patientUID)
	if err != nil {
		return nil, err
	}
	return model.GroupByDay(records), nil
}

func (s *RecordService) publish(ctx context.Context, id string, followUps []model.FollowUpQuestion) {
	if s.feed == nil {
		return
	}
	if err := s.feed.Publish(ctx, id, followUps); err != nil {
		s.logger.Warn().Err(err).Str("record_id", id).Msg("publish follow-ups failed")
	}
}

// invalidate drops the cached timeline of the record's owner.
func (s *RecordService) invalidate(ctx context.Context, id string) {
	if s.timeline == nil {
		return
	}
	record, err := s.repo.GetByID(ctx, id)
	if err != nil || record == nil {
		return
	}
	s.markDirty(ctx, record.Base().PatientUID)
}

func (s *RecordService) markDirty(ctx context.Context, patientUID string) {
	if s.timeline == nil {
		return
	}
	_ = s.timeline.MarkDirty(ctx, patientUID)
	_ = s.timeline.DeleteTimeline(ctx, patientUID)
}
