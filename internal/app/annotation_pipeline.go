package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"medtrak/internal/metrics"
	"medtrak/internal/model"
)

// Annotator is the AI annotation client. Each method returns nil when the
// annotation is unavailable.
type Annotator interface {
	Transcribe(ctx context.Context, audioURL string) *string
	Describe(ctx context.Context, imageURL string) *string
	GenerateFollowUps(ctx context.Context, contextText string) []string
}

// AnnotationPipeline derives text and follow-up questions for a saved
// record.
type AnnotationPipeline struct {
	records   *RecordService
	annotator Annotator
	logger    zerolog.Logger
	metrics   *metrics.Metrics
}

func NewAnnotationPipeline(records *RecordService, annotator Annotator, logger zerolog.Logger, m *metrics.Metrics) *AnnotationPipeline {
	return &AnnotationPipeline{
		records:   records,
		annotator: annotator,
		logger:    logger,
		metrics:   m,
	}
}

// Run returns an error only when a derived value could not be persisted.
func (p *AnnotationPipeline) Run(ctx context.Context, job model.AnnotationJob) error {
	switch job.Kind {
	case model.KindText:
		return p.followUps(ctx, job.RecordID, job.UserText)

	case model.KindImage:
		caption := p.annotator.Describe(ctx, job.MediaURL)
		if err := p.records.SetDerivedText(ctx, job.RecordID, caption); err != nil {
			return err
		}
		contextText := strings.TrimSpace(job.UserText)
		if caption != nil {
			contextText = strings.TrimSpace(job.UserText + "\n" + *caption)
		}
		return p.followUps(ctx, job.RecordID, contextText)

	case model.KindVoice:
		transcript := p.annotator.Transcribe(ctx, job.MediaURL)
		if err := p.records.SetDerivedText(ctx, job.RecordID, transcript); err != nil {
			return err
		}
		if transcript == nil {
			p.skip(job.RecordID, "no transcript")
			return nil
		}
		return p.followUps(ctx, job.RecordID, *transcript)

	default:
		return fmt.Errorf("%w: %s", model.ErrUnknownRecordKind, job.Kind)
	}
}

func (p *AnnotationPipeline) followUps(ctx context.Context, recordID, contextText string) error {
	if strings.TrimSpace(contextText) == "" {
		p.skip(recordID, "empty context")
		return nil
	}

	questions := p.annotator.GenerateFollowUps(ctx, contextText)
	if questions == nil {
		p.logger.Debug().Str("record_id", recordID).Msg("follow-ups unavailable, leaving field absent")
		return nil
	}
	return p.records.SetFollowUps(ctx, recordID, model.FollowUpsFromQuestions(questions))
}

func (p *AnnotationPipeline) skip(recordID, reason string) {
	p.logger.Debug().Str("record_id", recordID).Str("reason", reason).Msg("follow-up generation skipped")
	p.metrics.Annotation("followups", metrics.OutcomeSkipped)
}
