// Package annotation talks to the AI annotation service that transcribes
// voice notes, captions photos and proposes follow-up questions.
//
// Every call degrades to nil on failure. Errors are logged and counted
// here and never reach the caller: a missing annotation is not a reason to
// roll back a record that is already saved.
package annotation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"medtrak/internal/metrics"
)

const (
	opTranscribe = "transcribe"
	opDescribe   = "describe"
	opFollowUps  = "followups"
	opSummarize  = "summarize"

	audioFileName = "audio.mp3"
	imageFileName = "image.jpg"
)

var errEmptyAnnotation = errors.New("annotation is empty")

// MediaSource reads a stored attachment back by its URL.
type MediaSource interface {
	Open(ctx context.Context, url string) (io.ReadCloser, error)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	media      MediaSource
	logger     zerolog.Logger
	metrics    *metrics.Metrics
}

func NewClient(baseURL string, timeout time.Duration, media MediaSource, logger zerolog.Logger, m *metrics.Metrics) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		media:      media,
		logger:     logger,
		metrics:    m,
	}
}

// result keeps the failure visible inside the package even though the
// exported methods flatten it to nil.
type result[T any] struct {
	value T
	err   error
}

func ok[T any](v T) result[T] {
	return result[T]{value: v}
}

func fail[T any](err error) result[T] {
	return result[T]{err: err}
}

func settle[T any](c *Client, op, subject string, res result[T]) (T, bool) {
	if res.err != nil {
		c.logger.Warn().Err(res.err).Str("operation", op).Str("subject", subject).Msg("annotation unavailable")
		c.metrics.Annotation(op, metrics.OutcomeFailed)
		var zero T
		return zero, false
	}
	c.metrics.Annotation(op, metrics.OutcomeOK)
	return res.value, true
}

// Transcribe returns the transcript of the voice note at audioURL, or nil.
func (c *Client) Transcribe(ctx context.Context, audioURL string) *string {
	text, ok := settle(c, opTranscribe, audioURL, c.transcribe(ctx, audioURL))
	if !ok {
		return nil
	}
	return &text
}

// Describe returns a caption of the photo at imageURL, or nil.
func (c *Client) Describe(ctx context.Context, imageURL string) *string {
	text, ok := settle(c, opDescribe, imageURL, c.describe(ctx, imageURL))
	if !ok {
		return nil
	}
	return &text
}

// GenerateFollowUps returns candidate follow-up questions for the given
// context, or nil. An empty non-nil slice means the service had nothing to
// ask.
func (c *Client) GenerateFollowUps(ctx context.Context, contextText string) []string {
	questions, ok := settle(c, opFollowUps, "", c.generateFollowUps(ctx, contextText))
	if !ok {
		return nil
	}
	return questions
}

// Summarize returns the provider digest for a patient's records, or nil.
func (c *Client) Summarize(ctx context.Context, req SummaryRequest) *Summary {
	summary, ok := settle(c, opSummarize, "", c.summarize(ctx, req))
	if !ok {
		return nil
	}
	return summary
}

func (c *Client) transcribe(ctx context.Context, audioURL string) result[string] {
	raw, err := c.postMedia(ctx, "/transcribe_audio", audioURL, audioFileName)
	if err != nil {
		return fail[string](err)
	}
	return textResult(raw)
}

func (c *Client) describe(ctx context.Context, imageURL string) result[string] {
	raw, err := c.postMedia(ctx, "/transcribe_image", imageURL, imageFileName)
	if err != nil {
		return fail[string](err)
	}
	return textResult(raw)
}

func (c *Client) generateFollowUps(ctx context.Context, contextText string) result[[]string] {
	contextText = strings.TrimSpace(contextText)
	if contextText == "" {
		return fail[[]string](errEmptyAnnotation)
	}

	raw, err := c.post(ctx, "/followup", "text/plain", strings.NewReader(contextText))
	if err != nil {
		return fail[[]string](err)
	}
	questions, err := parseQuestions(raw)
	if err != nil {
		return fail[[]string](err)
	}
	return ok(questions)
}

func (c *Client) summarize(ctx context.Context, req SummaryRequest) result[*Summary] {
	body, err := json.Marshal(req)
	if err != nil {
		return fail[*Summary](fmt.Errorf("marshal summary request failed: %w", err))
	}
	raw, err := c.post(ctx, "/summarize", "application/json", bytes.NewReader(body))
	if err != nil {
		return fail[*Summary](err)
	}
	var summary Summary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return fail[*Summary](fmt.Errorf("parse summary json failed: %w", err))
	}
	return ok(&summary)
}

func (c *Client) postMedia(ctx context.Context, endpoint, mediaURL, fileName string) ([]byte, error) {
	if c.media == nil {
		return nil, errors.New("no media source configured")
	}
	media, err := c.media.Open(ctx, mediaURL)
	if err != nil {
		return nil, fmt.Errorf("read media failed: %w", err)
	}
	defer media.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", fileName)
	if err != nil {
		return nil, fmt.Errorf("create form file failed: %w", err)
	}
	if _, err := io.Copy(part, media); err != nil {
		return nil, fmt.Errorf("copy media failed: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart body failed: %w", err)
	}
	return c.post(ctx, endpoint, writer.FormDataContentType(), body)
}

func (c *Client) post(ctx context.Context, endpoint, contentType string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("build annotation request failed: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("annotation request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read annotation response failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("annotation response status %d: %s", resp.StatusCode, string(raw))
	}
	return raw, nil
}

// textResult accepts the raw text body and, for services that JSON-encode
// plain strings, a quoted JSON string.
func textResult(raw []byte) result[string] {
	text := strings.TrimSpace(string(raw))
	if strings.HasPrefix(text, `"`) {
		var unquoted string
		if err := json.Unmarshal([]byte(text), &unquoted); err == nil {
			text = strings.TrimSpace(unquoted)
		}
	}
	if text == "" {
		return fail[string](errEmptyAnnotation)
	}
	return ok(text)
}

func parseQuestions(raw []byte) ([]string, error) {
	var questions []string
	if err := json.Unmarshal(raw, &questions); err != nil {
		var wrapped struct {
			FollowUpQuestions []string `json:"followup_questions"`
		}
		if wrapErr := json.Unmarshal(raw, &wrapped); wrapErr != nil || wrapped.FollowUpQuestions == nil {
			return nil, fmt.Errorf("parse follow-up questions failed: %w", err)
		}
		questions = wrapped.FollowUpQuestions
	}
	if questions == nil {
		return nil, errors.New("follow-up questions are null")
	}
	return questions, nil
}
