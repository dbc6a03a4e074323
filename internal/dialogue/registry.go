package dialogue

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/maypok86/otter"
	"github.com/rs/zerolog"

	"medtrak/internal/app"
	"medtrak/internal/metrics"
)

var ErrSessionNotFound = errors.New("dialogue session not found")

type RegistryConfig struct {
	Session  Config
	Capacity int
	TTL      time.Duration
}

// Registry holds the live sessions. Idle sessions expire after the TTL and
// are closed on the way out.
type Registry struct {
	sessions otter.Cache[string, *Session]
	backend  Backend
	cfg      Config
	logger   zerolog.Logger
	metrics  *metrics.Metrics
}

func NewRegistry(backend Backend, cfg RegistryConfig, logger zerolog.Logger, m *metrics.Metrics) (*Registry, error) {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 10000
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Minute
	}

	r := &Registry{
		backend: backend,
		cfg:     cfg.Session,
		logger:  logger,
		metrics: m,
	}
	sessions, err := otter.MustBuilder[string, *Session](cfg.Capacity).
		WithTTL(cfg.TTL).
		DeletionListener(r.onDeletion).
		Build()
	if err != nil {
		return nil, fmt.Errorf("build session cache failed: %w", err)
	}
	r.sessions = sessions
	return r, nil
}

func (r *Registry) Create(patientUID string) (*Session, error) {
	if strings.TrimSpace(patientUID) == "" {
		return nil, app.ErrUnauthenticated
	}

	id := uuid.NewString()
	session := NewSession(id, patientUID, r.backend, r.cfg, r.logger, r.metrics)
	if !r.sessions.Set(id, session) {
		session.Close()
		return nil, fmt.Errorf("store session %s rejected", id)
	}
	r.metrics.Session("created")
	r.logger.Info().Str("session_id", id).Str("patient_uid", patientUID).Msg("dialogue session created")
	return session, nil
}

// Get returns the patient's session and extends its lifetime. Sessions of
// other patients are reported as missing.
func (r *Registry) Get(id, patientUID string) (*Session, error) {
	session, ok := r.sessions.Get(id)
	if !ok || session.PatientUID() != patientUID {
		return nil, ErrSessionNotFound
	}
	r.sessions.Set(id, session)
	return session, nil
}

func (r *Registry) Delete(id, patientUID string) error {
	if _, err := r.Get(id, patientUID); err != nil {
		return err
	}
	r.sessions.Delete(id)
	return nil
}

func (r *Registry) Len() int {
	return r.sessions.Size()
}

// Close ends every session and stops the cache.
func (r *Registry) Close() {
	r.sessions.Range(func(_ string, session *Session) bool {
		session.Close()
		return true
	})
	r.sessions.Close()
}

func (r *Registry) onDeletion(id string, session *Session, cause otter.DeletionCause) {
	if cause == otter.Replaced {
		return
	}
	session.Close()

	event := "deleted"
	switch cause {
	case otter.Expired:
		event = "expired"
	case otter.Size:
		event = "evicted"
	}
	r.metrics.Session(event)
	r.logger.Info().Str("session_id", id).Str("event", event).Msg("dialogue session closed")
}
