package app

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	redisv9 "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"medtrak/internal/annotation"
	"medtrak/internal/cache"
	"medtrak/internal/feed"
	"medtrak/internal/model"
	"medtrak/internal/repository"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&model.User{}, &model.RecordRow{}))
	return db
}

type fakePublisher struct {
	mu   sync.Mutex
	jobs []model.AnnotationJob
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, job model.AnnotationJob) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jobs = append(p.jobs, job)
	return p.err
}

type fakeUploader struct {
	prefixes []string
	err      error
}

func (u *fakeUploader) Upload(_ context.Context, prefix, filename string, r io.Reader) (string, error) {
	if u.err != nil {
		return "", u.err
	}
	_, _ = io.ReadAll(r)
	u.prefixes = append(u.prefixes, prefix)
	return "http://media/" + prefix + "/" + filename, nil
}

type fakeAnnotator struct {
	transcript *string
	caption    *string
	questions  map[string][]string
	contexts   []string
}

func (a *fakeAnnotator) Transcribe(context.Context, string) *string { return a.transcript }
func (a *fakeAnnotator) Describe(context.Context, string) *string   { return a.caption }

func (a *fakeAnnotator) GenerateFollowUps(_ context.Context, contextText string) []string {
	a.contexts = append(a.contexts, contextText)
	return a.questions[contextText]
}

type fakeSummarizer struct {
	req     annotation.SummaryRequest
	summary *annotation.Summary
}

func (s *fakeSummarizer) Summarize(_ context.Context, req annotation.SummaryRequest) *annotation.Summary {
	s.req = req
	return s.summary
}

type fixture struct {
	db        *gorm.DB
	repo      *repository.RecordRepository
	publisher *fakePublisher
	uploader  *fakeUploader
	hub       *feed.Hub
	timeline  *cache.TimelineCache
	redis     *miniredis.Miniredis
	service   *RecordService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)
	mr := miniredis.RunT(t)
	client := redisv9.NewClient(&redisv9.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := &fixture{
		db:        db,
		repo:      repository.NewRecordRepository(db),
		publisher: &fakePublisher{},
		uploader:  &fakeUploader{},
		hub:       feed.NewHub(),
		timeline:  cache.NewTimelineCache(client, time.Minute, 5*time.Second),
		redis:     mr,
	}
	f.service = NewRecordService(f.repo, f.uploader, f.publisher, f.timeline, f.hub, zerolog.Nop(), nil)
	return f
}

func strPtr(s string) *string { return &s }

func receive(t *testing.T, sub *feed.Subscription) feed.Update {
	t.Helper()
	select {
	case u := <-sub.Updates():
		return u
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for follow-up update")
		return feed.Update{}
	}
}

var errBoom = errors.New("boom")

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if strings.Contains(s, needle) {
			return true
		}
	}
	return false
}
