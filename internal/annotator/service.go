// Package annotator implements the inference endpoints the annotation
// client talks to, backed by an OpenAI-compatible API.
package annotator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"medtrak/internal/ai"
	"medtrak/internal/annotation"
)

var ErrEmptyInput = errors.New("empty input")

// LLM is the subset of ai.OpenAICompatibleClient the annotator needs.
type LLM interface {
	Complete(ctx context.Context, cfg ai.ChatConfig, messages []ai.ChatMessage) (string, error)
	Transcribe(ctx context.Context, cfg ai.TranscriptionConfig, filename string, audio io.Reader) (string, error)
}

type Service struct {
	llm           LLM
	chat          ai.ChatConfig
	transcription ai.TranscriptionConfig
	logger        zerolog.Logger
}

func NewService(llm LLM, chat ai.ChatConfig, transcription ai.TranscriptionConfig, logger zerolog.Logger) *Service {
	return &Service{
		llm:           llm,
		chat:          chat,
		transcription: transcription,
		logger:        logger,
	}
}

func (s *Service) TranscribeAudio(ctx context.Context, filename string, audio io.Reader) (string, error) {
	text, err := s.llm.Transcribe(ctx, s.transcription, filename, audio)
	if err != nil {
		return "", fmt.Errorf("transcribe audio failed: %w", err)
	}
	return strings.TrimSpace(text), nil
}

func (s *Service) DescribeImage(ctx context.Context, jpeg []byte) (string, error) {
	if len(jpeg) == 0 {
		return "", ErrEmptyInput
	}
	content, err := s.llm.Complete(ctx, s.chat, []ai.ChatMessage{ai.UserImage(imagePrompt, jpeg)})
	if err != nil {
		return "", fmt.Errorf("describe image failed: %w", err)
	}
	return strings.TrimSpace(content), nil
}

// FollowUpQuestions never returns a nil slice on success.
func (s *Service) FollowUpQuestions(ctx context.Context, record string) ([]string, error) {
	record = strings.TrimSpace(record)
	if record == "" {
		return nil, ErrEmptyInput
	}

	cfg := s.chat
	cfg.Temperature = 0.3
	content, err := s.llm.Complete(ctx, cfg, []ai.ChatMessage{ai.UserText(fmt.Sprintf(followUpPrompt, record))})
	if err != nil {
		return nil, fmt.Errorf("generate follow-ups failed: %w", err)
	}

	var parsed struct {
		FollowUpQuestions []string `json:"followup_questions"`
	}
	if err := json.Unmarshal([]byte(ai.ExtractJSON(content)), &parsed); err != nil {
		return nil, fmt.Errorf("parse follow-ups failed: %w", err)
	}

	questions := make([]string, 0, len(parsed.FollowUpQuestions))
	for _, q := range parsed.FollowUpQuestions {
		if q = strings.TrimSpace(q); q != "" {
			questions = append(questions, q)
		}
	}
	s.logger.Debug().Int("count", len(questions)).Msg("follow-up questions generated")
	return questions, nil
}

func (s *Service) Summarize(ctx context.Context, req annotation.SummaryRequest) (*annotation.Summary, error) {
	if len(req.Records) == 0 {
		return nil, ErrEmptyInput
	}

	records, err := json.Marshal(req.Records)
	if err != nil {
		return nil, fmt.Errorf("marshal summary records failed: %w", err)
	}
	dates, err := json.Marshal(req.Dates)
	if err != nil {
		return nil, fmt.Errorf("marshal summary dates failed: %w", err)
	}
	answers, err := json.Marshal(req.FollowUpAnswers)
	if err != nil {
		return nil, fmt.Errorf("marshal summary answers failed: %w", err)
	}

	cfg := s.chat
	cfg.Temperature = 0.3
	prompt := fmt.Sprintf(summaryPrompt, records, dates, answers)
	content, err := s.llm.Complete(ctx, cfg, []ai.ChatMessage{ai.UserText(prompt)})
	if err != nil {
		return nil, fmt.Errorf("summarize records failed: %w", err)
	}

	var summary annotation.Summary
	if err := json.Unmarshal([]byte(ai.ExtractJSON(content)), &summary); err != nil {
		return nil, fmt.Errorf("parse summary failed: %w", err)
	}
	return &summary, nil
}
