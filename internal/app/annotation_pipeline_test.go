package app

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medtrak/internal/model"
)

func TestPipeline_TextRecordGetsFollowUps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	annotator := &fakeAnnotator{questions: map[string][]string{
		"feeling dizzy": {"Since when?", "Any nausea?"},
	}}
	pipeline := NewAnnotationPipeline(f.service, annotator, zerolog.Nop(), nil)

	rec, err := f.service.SaveTextRecord(ctx, TextRecordInput{PatientUID: "p1", Text: "feeling dizzy"})
	require.NoError(t, err)
	require.NoError(t, pipeline.Run(ctx, f.publisher.jobs[0]))

	got, err := f.service.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.FollowUpsFromQuestions([]string{"Since when?", "Any nausea?"}), got.Base().FollowUps)
}

func TestPipeline_NilFollowUpsLeaveFieldAbsent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pipeline := NewAnnotationPipeline(f.service, &fakeAnnotator{}, zerolog.Nop(), nil)

	rec, err := f.service.SaveTextRecord(ctx, TextRecordInput{PatientUID: "p1", Text: "fine"})
	require.NoError(t, err)
	require.NoError(t, pipeline.Run(ctx, f.publisher.jobs[0]))

	got, err := f.service.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Base().FollowUps)
}

func TestPipeline_EmptyListIsStored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pipeline := NewAnnotationPipeline(f.service, &fakeAnnotator{questions: map[string][]string{"fine": {}}}, zerolog.Nop(), nil)

	rec, err := f.service.SaveTextRecord(ctx, TextRecordInput{PatientUID: "p1", Text: "fine"})
	require.NoError(t, err)
	require.NoError(t, pipeline.Run(ctx, f.publisher.jobs[0]))

	got, err := f.service.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.Base().FollowUps)
	assert.Empty(t, got.Base().FollowUps)
}

func TestPipeline_ImageCaptionFeedsFollowUps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	annotator := &fakeAnnotator{
		caption:   strPtr("Red patch on forearm"),
		questions: map[string][]string{"itchy\nRed patch on forearm": {"Does it itch at night?"}},
	}
	pipeline := NewAnnotationPipeline(f.service, annotator, zerolog.Nop(), nil)

	rec, err := f.service.SaveImageRecord(ctx, ImageRecordInput{PatientUID: "p1", ImageURL: "http://media/i.jpg", Caption: "itchy"})
	require.NoError(t, err)
	require.NoError(t, pipeline.Run(ctx, f.publisher.jobs[0]))

	got, err := f.service.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	image := got.(*model.ImageRecord)
	require.NotNil(t, image.LLMText)
	assert.Equal(t, "Red patch on forearm", *image.LLMText)
	require.Len(t, image.FollowUps, 1)
	assert.Equal(t, []string{"itchy\nRed patch on forearm"}, annotator.contexts)
}

func TestPipeline_ImageWithoutCaptionUsesUserText(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	annotator := &fakeAnnotator{}
	pipeline := NewAnnotationPipeline(f.service, annotator, zerolog.Nop(), nil)

	rec, err := f.service.SaveImageRecord(ctx, ImageRecordInput{PatientUID: "p1", ImageURL: "http://media/i.jpg", Caption: "swollen"})
	require.NoError(t, err)
	require.NoError(t, pipeline.Run(ctx, f.publisher.jobs[0]))

	got, err := f.service.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Nil(t, got.(*model.ImageRecord).LLMText)
	assert.Equal(t, []string{"swollen"}, annotator.contexts)
}

func TestPipeline_VoiceWithoutTranscriptSkipsFollowUps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	annotator := &fakeAnnotator{}
	pipeline := NewAnnotationPipeline(f.service, annotator, zerolog.Nop(), nil)

	_, err := f.service.SaveVoiceRecord(ctx, VoiceRecordInput{PatientUID: "p1", AudioURL: "http://media/a.m4a"})
	require.NoError(t, err)
	require.NoError(t, pipeline.Run(ctx, f.publisher.jobs[0]))
	assert.Empty(t, annotator.contexts)
}

func TestPipeline_VoiceTranscriptFeedsFollowUps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	annotator := &fakeAnnotator{
		transcript: strPtr("my knee hurts"),
		questions:  map[string][]string{"my knee hurts": {"Left or right?"}},
	}
	pipeline := NewAnnotationPipeline(f.service, annotator, zerolog.Nop(), nil)

	rec, err := f.service.SaveVoiceRecord(ctx, VoiceRecordInput{PatientUID: "p1", AudioURL: "http://media/a.m4a"})
	require.NoError(t, err)
	require.NoError(t, pipeline.Run(ctx, f.publisher.jobs[0]))

	got, err := f.service.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	voice := got.(*model.VoiceRecord)
	assert.Equal(t, "my knee hurts", *voice.LLMText)
	require.Len(t, voice.FollowUps, 1)
	assert.Equal(t, "Left or right?", voice.FollowUps[0].Question)
}

func TestPipeline_UnknownKind(t *testing.T) {
	f := newFixture(t)
	pipeline := NewAnnotationPipeline(f.service, &fakeAnnotator{}, zerolog.Nop(), nil)

	err := pipeline.Run(context.Background(), model.AnnotationJob{RecordID: "x", Kind: "video"})
	assert.ErrorIs(t, err, model.ErrUnknownRecordKind)
}
