package annotator

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medtrak/internal/ai"
	"medtrak/internal/annotation"
)

type fakeLLM struct {
	reply      string
	err        error
	transcript string
	prompts    []string
}

func (f *fakeLLM) Complete(_ context.Context, _ ai.ChatConfig, messages []ai.ChatMessage) (string, error) {
	for _, m := range messages {
		switch content := m.Content.(type) {
		case string:
			f.prompts = append(f.prompts, content)
		case []ai.ContentPart:
			f.prompts = append(f.prompts, content[0].Text)
		}
	}
	return f.reply, f.err
}

func (f *fakeLLM) Transcribe(_ context.Context, _ ai.TranscriptionConfig, _ string, audio io.Reader) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	_, _ = io.ReadAll(audio)
	return f.transcript, nil
}

type memMedia map[string]string

func (m memMedia) Open(_ context.Context, url string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(m[url])), nil
}

func newAnnotatorClient(t *testing.T, llm *fakeLLM) *annotation.Client {
	t.Helper()
	service := NewService(llm, ai.ChatConfig{Model: "m"}, ai.TranscriptionConfig{Model: "whisper-1"}, zerolog.Nop())
	srv := httptest.NewServer(NewRouter(service, gin.TestMode))
	t.Cleanup(srv.Close)
	return annotation.NewClient(srv.URL, 5*time.Second, memMedia{"a": "audio", "i": "jpeg"}, zerolog.Nop(), nil)
}

func TestAnnotator_TranscribeAudio(t *testing.T) {
	client := newAnnotatorClient(t, &fakeLLM{transcript: " I have a headache "})

	text := client.Transcribe(context.Background(), "a")
	require.NotNil(t, text)
	assert.Equal(t, "I have a headache", *text)
}

func TestAnnotator_TranscribeImage(t *testing.T) {
	llm := &fakeLLM{reply: "Red patch on the left arm."}
	client := newAnnotatorClient(t, llm)

	text := client.Describe(context.Background(), "i")
	require.NotNil(t, text)
	assert.Equal(t, "Red patch on the left arm.", *text)
	require.Len(t, llm.prompts, 1)
	assert.Contains(t, llm.prompts[0], "skin condition")
}

func TestAnnotator_FollowUp(t *testing.T) {
	llm := &fakeLLM{reply: "```json\n{\"followup_questions\": [\"How long?\", \" \", \"Any nausea?\"]}\n```"}
	client := newAnnotatorClient(t, llm)

	questions := client.GenerateFollowUps(context.Background(), "feeling dizzy")
	assert.Equal(t, []string{"How long?", "Any nausea?"}, questions)
	require.Len(t, llm.prompts, 1)
	assert.Contains(t, llm.prompts[0], "feeling dizzy")
}

func TestAnnotator_FollowUpEmptyList(t *testing.T) {
	client := newAnnotatorClient(t, &fakeLLM{reply: `{"followup_questions": []}`})

	questions := client.GenerateFollowUps(context.Background(), "all good")
	assert.NotNil(t, questions)
	assert.Empty(t, questions)
}

func TestAnnotator_UpstreamFailure(t *testing.T) {
	client := newAnnotatorClient(t, &fakeLLM{err: errors.New("quota")})

	assert.Nil(t, client.GenerateFollowUps(context.Background(), "dizzy"))
	assert.Nil(t, client.Transcribe(context.Background(), "a"))
	assert.Nil(t, client.Describe(context.Background(), "i"))
}

func TestAnnotator_Summarize(t *testing.T) {
	llm := &fakeLLM{reply: `{"summary":{"symptom":["dizziness"],"severity":"Mild","relevant":"Neurological"},"urgent":"No","indicator":["dizzy"]}`}
	client := newAnnotatorClient(t, llm)

	summary := client.Summarize(context.Background(), annotation.SummaryRequest{
		Records: []string{"feeling dizzy"},
		Dates:   []string{"2025-09-26"},
		FollowUpAnswers: []annotation.FollowUpAnswer{
			{Question: "Since when?", Answer: "this morning"},
		},
	})
	require.NotNil(t, summary)
	assert.Equal(t, "No", summary.Urgent)
	assert.Contains(t, llm.prompts[0], `["feeling dizzy"]`)
	assert.Contains(t, llm.prompts[0], `["2025-09-26"]`)
	assert.Contains(t, llm.prompts[0], `"this morning"`)
}

func TestService_SummarizeLLMFailure(t *testing.T) {
	service := NewService(&fakeLLM{err: errors.New("quota")}, ai.ChatConfig{}, ai.TranscriptionConfig{}, zerolog.Nop())

	_, err := service.Summarize(context.Background(), annotation.SummaryRequest{Records: []string{"x"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "summarize records failed")

	_, err = service.Summarize(context.Background(), annotation.SummaryRequest{})
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestAnnotator_BadRequests(t *testing.T) {
	service := NewService(&fakeLLM{}, ai.ChatConfig{}, ai.TranscriptionConfig{}, zerolog.Nop())
	router := NewRouter(service, gin.TestMode)

	cases := []struct {
		path        string
		contentType string
		body        string
	}{
		{"/transcribe_audio", "text/plain", "x"},
		{"/transcribe_image", "text/plain", "x"},
		{"/followup", "text/plain", "   "},
		{"/summarize", "application/json", "{"},
		{"/summarize", "application/json", `{"records":[]}`},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, tc.path, strings.NewReader(tc.body))
		req.Header.Set("Content-Type", tc.contentType)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, tc.path)
	}
}
