package app

import (
	"context"
	"errors"

	"medtrak/internal/annotation"
	"medtrak/internal/model"
)

var ErrSummaryUnavailable = errors.New("summary unavailable")

type Summarizer interface {
	Summarize(ctx context.Context, req annotation.SummaryRequest) *annotation.Summary
}

// SummaryService prepares a provider's digest of one patient's records.
type SummaryService struct {
	records    *RecordService
	summarizer Summarizer
}

func NewSummaryService(records *RecordService, summarizer Summarizer) *SummaryService {
	return &SummaryService{records: records, summarizer: summarizer}
}

func (s *SummaryService) Summarize(ctx context.Context, patientUID string) (*annotation.Summary, error) {
	records, err := s.records.ListRecords(ctx, patientUID)
	if err != nil {
		return nil, err
	}
	req := BuildSummaryRequest(records)
	if len(req.Records) == 0 {
		return nil, ErrRecordNotFound
	}

	summary := s.summarizer.Summarize(ctx, req)
	if summary == nil {
		return nil, ErrSummaryUnavailable
	}
	return summary, nil
}

// BuildSummaryRequest flattens records into the summarizer input. Records
// without any usable text are left out.
func BuildSummaryRequest(records []model.Record) annotation.SummaryRequest {
	ordered := append([]model.Record(nil), records...)
	model.SortByCreatedAt(ordered)

	req := annotation.SummaryRequest{
		Records:         []string{},
		Dates:           []string{},
		FollowUpAnswers: []annotation.FollowUpAnswer{},
	}
	for _, record := range ordered {
		text, err := model.ContextText(record)
		if err != nil || text == "" {
			continue
		}
		req.Records = append(req.Records, text)
		req.Dates = append(req.Dates, model.DayKey(record.Base().CreatedAt))

		for _, q := range record.Base().FollowUps {
			if q.Answered() {
				req.FollowUpAnswers = append(req.FollowUpAnswers, annotation.FollowUpAnswer{
					Question: q.Question,
					Answer:   *q.UserResponse,
				})
			}
		}
	}
	return req
}
