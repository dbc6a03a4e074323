package app

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medtrak/internal/model"
)

func TestSaveTextRecord_RequiresPatient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.SaveTextRecord(ctx, TextRecordInput{Text: "dizzy"})
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = f.service.SaveTextRecord(ctx, TextRecordInput{PatientUID: "p1", Text: "   "})
	assert.ErrorIs(t, err, ErrMessageEmpty)

	_, err = f.service.Upload(ctx, "", model.KindImage, "a.jpg", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrUnauthenticated)

	assert.Empty(t, f.publisher.jobs)
	var count int64
	require.NoError(t, f.db.Model(&model.RecordRow{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestSaveRecords_EnqueueAnnotation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	text, err := f.service.SaveTextRecord(ctx, TextRecordInput{PatientUID: "p1", Text: " feeling dizzy "})
	require.NoError(t, err)
	assert.Equal(t, "feeling dizzy", text.UserText)
	assert.Nil(t, text.FollowUps)

	image, err := f.service.SaveImageRecord(ctx, ImageRecordInput{PatientUID: "p1", ImageURL: "http://media/i.jpg", Caption: "rash"})
	require.NoError(t, err)

	duration := 12
	voice, err := f.service.SaveVoiceRecord(ctx, VoiceRecordInput{PatientUID: "p1", AudioURL: "http://media/a.m4a", DurationSec: &duration})
	require.NoError(t, err)

	assert.Equal(t, []model.AnnotationJob{
		{RecordID: text.ID, Kind: model.KindText, UserText: "feeling dizzy"},
		{RecordID: image.ID, Kind: model.KindImage, UserText: "rash", MediaURL: "http://media/i.jpg"},
		{RecordID: voice.ID, Kind: model.KindVoice, MediaURL: "http://media/a.m4a"},
	}, f.publisher.jobs)
}

func TestSaveRecord_EnqueueFailureKeepsRecord(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = errBoom

	rec, err := f.service.SaveTextRecord(context.Background(), TextRecordInput{PatientUID: "p1", Text: "headache"})
	require.NoError(t, err)

	got, err := f.service.GetRecord(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.Base().ID)
}

func TestSaveRecord_RejectsInvalidMedia(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.SaveImageRecord(ctx, ImageRecordInput{PatientUID: "p1"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.service.SaveImageRecord(ctx, ImageRecordInput{PatientUID: "p1", ImageURL: "http://media/i.jpg", Caption: "   "})
	assert.ErrorIs(t, err, ErrMessageEmpty)
	saved, err := f.service.ListRecords(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, saved)

	negative := -1
	_, err = f.service.SaveVoiceRecord(ctx, VoiceRecordInput{PatientUID: "p1", AudioURL: "u", DurationSec: &negative})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestUpload_PrefixesByKindAndPatient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	url, err := f.service.Upload(ctx, "p1", model.KindImage, "a.jpg", strings.NewReader("x"))
	require.NoError(t, err)
	assert.Equal(t, "http://media/images/p1/a.jpg", url)

	_, err = f.service.Upload(ctx, "p1", model.KindVoice, "a.m4a", strings.NewReader("x"))
	require.NoError(t, err)

	_, err = f.service.Upload(ctx, "p1", model.KindText, "a.txt", strings.NewReader("x"))
	assert.ErrorIs(t, err, model.ErrUnknownRecordKind)

	assert.Equal(t, []string{"images/p1", "audio/p1"}, f.uploader.prefixes)

	f.uploader.err = errBoom
	_, err = f.service.Upload(ctx, "p1", model.KindImage, "b.jpg", strings.NewReader("x"))
	assert.ErrorIs(t, err, errBoom)
}

func TestSetFollowUpResponse_PublishesAndPersists(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec, err := f.service.SaveTextRecord(ctx, TextRecordInput{PatientUID: "p1", Text: "feeling dizzy"})
	require.NoError(t, err)

	sub, err := f.service.Subscribe(ctx, rec.ID)
	require.NoError(t, err)
	defer sub.Cancel()
	assert.Nil(t, receive(t, sub).FollowUps)

	require.NoError(t, f.service.SetFollowUps(ctx, rec.ID, model.FollowUpsFromQuestions([]string{"Since when?", "Any nausea?"})))
	u := receive(t, sub)
	require.Len(t, u.FollowUps, 2)

	applied, err := f.service.SetFollowUpResponse(ctx, rec.ID, 1, "no")
	require.NoError(t, err)
	assert.True(t, applied)

	u = receive(t, sub)
	require.Len(t, u.FollowUps, 2)
	assert.Nil(t, u.FollowUps[0].UserResponse)
	require.NotNil(t, u.FollowUps[1].UserResponse)
	assert.Equal(t, "no", *u.FollowUps[1].UserResponse)

	got, err := f.service.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "Since when?", got.Base().FollowUps[0].Question)
	assert.Equal(t, "no", *got.Base().FollowUps[1].UserResponse)
}

func TestSetFollowUpResponse_NoOps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	applied, err := f.service.SetFollowUpResponse(ctx, "missing", 0, "a")
	require.NoError(t, err)
	assert.False(t, applied)

	rec, err := f.service.SaveTextRecord(ctx, TextRecordInput{PatientUID: "p1", Text: "cough"})
	require.NoError(t, err)

	applied, err = f.service.SetFollowUpResponse(ctx, rec.ID, 0, "a")
	require.NoError(t, err)
	assert.False(t, applied)

	require.NoError(t, f.service.SetFollowUps(ctx, rec.ID, model.FollowUpsFromQuestions([]string{"q"})))
	applied, err = f.service.SetFollowUpResponse(ctx, rec.ID, 3, "a")
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestSubscribe_SnapshotOfExistingList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec, err := f.service.SaveTextRecord(ctx, TextRecordInput{PatientUID: "p1", Text: "cough"})
	require.NoError(t, err)
	require.NoError(t, f.service.SetFollowUps(ctx, rec.ID, []model.FollowUpQuestion{}))

	sub, err := f.service.Subscribe(ctx, rec.ID)
	require.NoError(t, err)
	defer sub.Cancel()

	u := receive(t, sub)
	assert.NotNil(t, u.FollowUps)
	assert.Empty(t, u.FollowUps)
}

func TestFetchGroupedByDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	day1 := time.Date(2025, 9, 26, 8, 0, 0, 0, time.UTC).UnixMilli()
	day1Later := time.Date(2025, 9, 26, 23, 59, 0, 0, time.UTC).UnixMilli()
	day2 := time.Date(2025, 9, 27, 0, 1, 0, 0, time.UTC).UnixMilli()

	for _, in := range []TextRecordInput{
		{PatientUID: "p1", Text: "late", CreatedAt: day1Later},
		{PatientUID: "p1", Text: "next day", CreatedAt: day2},
		{PatientUID: "p1", Text: "early", CreatedAt: day1},
		{PatientUID: "p2", Text: "someone else", CreatedAt: day1},
	} {
		_, err := f.service.SaveTextRecord(ctx, in)
		require.NoError(t, err)
	}

	grouped, err := f.service.FetchGroupedByDay(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, grouped, 2)
	require.Len(t, grouped["2025-09-26"], 2)
	assert.Equal(t, "early", grouped["2025-09-26"][0].(*model.TextRecord).UserText)
	assert.Equal(t, "late", grouped["2025-09-26"][1].(*model.TextRecord).UserText)
	require.Len(t, grouped["2025-09-27"], 1)

	_, err = f.service.FetchGroupedByDay(ctx, "")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestListRecords_UsesTimelineCacheWhenClean(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.SaveTextRecord(ctx, TextRecordInput{PatientUID: "p1", Text: "first"})
	require.NoError(t, err)

	_, hit, err := f.timeline.GetTimeline(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, hit)

	f.redis.FastForward(10 * time.Second)
	records, err := f.service.ListRecords(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, records, 1)

	cached, hit, err := f.timeline.GetTimeline(ctx, "p1")
	require.NoError(t, err)
	require.True(t, hit)
	require.Len(t, cached, 1)

	rec, err := f.service.SaveTextRecord(ctx, TextRecordInput{PatientUID: "p1", Text: "second"})
	require.NoError(t, err)
	_, hit, err = f.timeline.GetTimeline(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, hit)

	records, err = f.service.ListRecords(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, records, 2)

	f.redis.FastForward(10 * time.Second)
	_, err = f.service.ListRecords(ctx, "p1")
	require.NoError(t, err)
	require.NoError(t, f.service.SetFollowUps(ctx, rec.ID, model.FollowUpsFromQuestions([]string{"q"})))
	_, hit, err = f.timeline.GetTimeline(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestGetPatientRecord_HidesOtherPatients(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec, err := f.service.SaveTextRecord(ctx, TextRecordInput{PatientUID: "p1", Text: "cough"})
	require.NoError(t, err)

	_, err = f.service.GetPatientRecord(ctx, "p2", rec.ID)
	assert.ErrorIs(t, err, ErrRecordNotFound)

	got, err := f.service.GetPatientRecord(ctx, "p1", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.Base().ID)
}
