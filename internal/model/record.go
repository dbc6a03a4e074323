package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

type RecordKind string

const (
	KindText  RecordKind = "text"
	KindImage RecordKind = "image"
	KindVoice RecordKind = "voice"
)

var ErrUnknownRecordKind = errors.New("unknown record kind")

// now is swapped in tests.
var now = time.Now

// FollowUpQuestion is one generated clarifying question. It is unanswered
// while UserResponse is nil and is never un-answered afterwards.
type FollowUpQuestion struct {
	Question     string  `json:"question"`
	UserResponse *string `json:"userResponse"`
}

func (q FollowUpQuestion) Answered() bool {
	return q.UserResponse != nil
}

// RecordBase holds the fields shared by every record kind.
//
// FollowUps is nil until generation has run; an empty non-nil slice means
// generation ran and produced nothing.
type RecordBase struct {
	ID         string
	PatientUID string
	CreatedAt  int64
	ServerTime *time.Time
	FollowUps  []FollowUpQuestion
}

func (b *RecordBase) Base() *RecordBase {
	return b
}

// Record is implemented by *TextRecord, *ImageRecord and *VoiceRecord only.
type Record interface {
	Kind() RecordKind
	Base() *RecordBase
	isRecord()
}

type TextRecord struct {
	RecordBase
	UserText string
}

type ImageRecord struct {
	RecordBase
	ImageURL string
	UserText string
	LLMText  *string
}

type VoiceRecord struct {
	RecordBase
	AudioURL         string
	AudioDurationSec *int
	LLMText          *string
}

func (*TextRecord) Kind() RecordKind  { return KindText }
func (*ImageRecord) Kind() RecordKind { return KindImage }
func (*VoiceRecord) Kind() RecordKind { return KindVoice }

func (*TextRecord) isRecord()  {}
func (*ImageRecord) isRecord() {}
func (*VoiceRecord) isRecord() {}

type TextInit struct {
	PatientUID string
	UserText   string
	CreatedAt  int64
	ID         string
	FollowUps  []FollowUpQuestion
}

type ImageInit struct {
	PatientUID string
	ImageURL   string
	UserText   string
	CreatedAt  int64
	ID         string
	FollowUps  []FollowUpQuestion
}

type VoiceInit struct {
	PatientUID       string
	AudioURL         string
	AudioDurationSec *int
	CreatedAt        int64
	ID               string
	FollowUps        []FollowUpQuestion
}

// NewTextRecord trims the text but does not reject empty input; callers
// validate at the boundary.
func NewTextRecord(init TextInit) *TextRecord {
	return &TextRecord{
		RecordBase: newBase(init.PatientUID, init.ID, init.CreatedAt, init.FollowUps),
		UserText:   strings.TrimSpace(init.UserText),
	}
}

func NewImageRecord(init ImageInit) *ImageRecord {
	return &ImageRecord{
		RecordBase: newBase(init.PatientUID, init.ID, init.CreatedAt, init.FollowUps),
		ImageURL:   init.ImageURL,
		UserText:   strings.TrimSpace(init.UserText),
	}
}

// NewVoiceRecord accepts a nil duration; it is resolved later by probing
// the decoded audio.
func NewVoiceRecord(init VoiceInit) *VoiceRecord {
	return &VoiceRecord{
		RecordBase:       newBase(init.PatientUID, init.ID, init.CreatedAt, init.FollowUps),
		AudioURL:         init.AudioURL,
		AudioDurationSec: init.AudioDurationSec,
	}
}

func newBase(patientUID, id string, createdAt int64, followUps []FollowUpQuestion) RecordBase {
	if createdAt == 0 {
		createdAt = now().UnixMilli()
	}
	return RecordBase{
		ID:         id,
		PatientUID: patientUID,
		CreatedAt:  createdAt,
		FollowUps:  followUps,
	}
}

// DayKey returns the UTC calendar day (YYYY-MM-DD) of an epoch-ms timestamp.
func DayKey(createdAtMs int64) string {
	return time.UnixMilli(createdAtMs).UTC().Format("2006-01-02")
}

// SortByCreatedAt orders records ascending by CreatedAt, falling back to
// ServerTime and then ID for ties.
func SortByCreatedAt(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i].Base(), records[j].Base()
		if a.CreatedAt != b.CreatedAt {
			return a.CreatedAt < b.CreatedAt
		}
		if a.ServerTime != nil && b.ServerTime != nil && !a.ServerTime.Equal(*b.ServerTime) {
			return a.ServerTime.Before(*b.ServerTime)
		}
		return a.ID < b.ID
	})
}

// GroupByDay buckets records by DayKey; every bucket is sorted ascending.
func GroupByDay(records []Record) map[string][]Record {
	byDay := make(map[string][]Record)
	for _, r := range records {
		key := DayKey(r.Base().CreatedAt)
		byDay[key] = append(byDay[key], r)
	}
	for _, group := range byDay {
		SortByCreatedAt(group)
	}
	return byDay
}

// ContextText is the text follow-up generation works from: the patient's
// own words plus whatever the annotation service derived.
func ContextText(r Record) (string, error) {
	switch rec := r.(type) {
	case *TextRecord:
		return rec.UserText, nil
	case *ImageRecord:
		if rec.LLMText == nil || strings.TrimSpace(*rec.LLMText) == "" {
			return rec.UserText, nil
		}
		return strings.TrimSpace(rec.UserText + "\n" + *rec.LLMText), nil
	case *VoiceRecord:
		if rec.LLMText == nil {
			return "", nil
		}
		return strings.TrimSpace(*rec.LLMText), nil
	default:
		return "", fmt.Errorf("%w: %T", ErrUnknownRecordKind, r)
	}
}

func CloneFollowUps(in []FollowUpQuestion) []FollowUpQuestion {
	if in == nil {
		return nil
	}
	out := make([]FollowUpQuestion, len(in))
	for i, q := range in {
		out[i] = FollowUpQuestion{Question: q.Question}
		if q.UserResponse != nil {
			answer := *q.UserResponse
			out[i].UserResponse = &answer
		}
	}
	return out
}

// FollowUpsFromQuestions turns generated question strings into an
// unanswered follow-up list. A nil input stays nil.
func FollowUpsFromQuestions(questions []string) []FollowUpQuestion {
	if questions == nil {
		return nil
	}
	out := make([]FollowUpQuestion, 0, len(questions))
	for _, q := range questions {
		out = append(out, FollowUpQuestion{Question: q})
	}
	return out
}

// Wire encoding. Optional fields are always present, as null when unset.

type baseWire struct {
	PatientUID string             `json:"patientUid"`
	Kind       RecordKind         `json:"kind"`
	CreatedAt  int64              `json:"createdAt"`
	ID         *string            `json:"id"`
	FollowUps  []FollowUpQuestion `json:"followUps"`
	ServerTime *time.Time         `json:"serverTime"`
}

type textWire struct {
	baseWire
	UserText string `json:"userText"`
}

type imageWire struct {
	baseWire
	ImageURL string  `json:"imageUrl"`
	UserText string  `json:"userText"`
	LLMText  *string `json:"llmText"`
}

type voiceWire struct {
	baseWire
	AudioURL         string  `json:"audioUrl"`
	AudioDurationSec *int    `json:"audioDurationSec"`
	LLMText          *string `json:"llmText"`
}

func (b *RecordBase) wire(kind RecordKind) baseWire {
	w := baseWire{
		PatientUID: b.PatientUID,
		Kind:       kind,
		CreatedAt:  b.CreatedAt,
		FollowUps:  b.FollowUps,
		ServerTime: b.ServerTime,
	}
	if b.ID != "" {
		id := b.ID
		w.ID = &id
	}
	return w
}

func (w baseWire) base() RecordBase {
	b := RecordBase{
		PatientUID: w.PatientUID,
		CreatedAt:  w.CreatedAt,
		FollowUps:  w.FollowUps,
		ServerTime: w.ServerTime,
	}
	if w.ID != nil {
		b.ID = *w.ID
	}
	return b
}

func (r *TextRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(textWire{baseWire: r.wire(KindText), UserText: r.UserText})
}

func (r *ImageRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(imageWire{
		baseWire: r.wire(KindImage),
		ImageURL: r.ImageURL,
		UserText: r.UserText,
		LLMText:  r.LLMText,
	})
}

func (r *VoiceRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(voiceWire{
		baseWire:         r.wire(KindVoice),
		AudioURL:         r.AudioURL,
		AudioDurationSec: r.AudioDurationSec,
		LLMText:          r.LLMText,
	})
}

// UnmarshalRecord decodes the wire form of any record kind.
func UnmarshalRecord(data []byte) (Record, error) {
	var head struct {
		Kind RecordKind `json:"kind"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode record kind failed: %w", err)
	}

	switch head.Kind {
	case KindText:
		var w textWire
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("decode text record failed: %w", err)
		}
		return &TextRecord{RecordBase: w.base(), UserText: w.UserText}, nil
	case KindImage:
		var w imageWire
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("decode image record failed: %w", err)
		}
		return &ImageRecord{RecordBase: w.base(), ImageURL: w.ImageURL, UserText: w.UserText, LLMText: w.LLMText}, nil
	case KindVoice:
		var w voiceWire
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("decode voice record failed: %w", err)
		}
		return &VoiceRecord{
			RecordBase:       w.base(),
			AudioURL:         w.AudioURL,
			AudioDurationSec: w.AudioDurationSec,
			LLMText:          w.LLMText,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRecordKind, head.Kind)
	}
}
