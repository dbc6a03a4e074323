package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// RecordRow is the persisted form of a Record. Every optional column is
// nullable so an unset field is stored as NULL rather than dropped.
type RecordRow struct {
	ID               string    `gorm:"primaryKey;size:36" json:"id"`
	PatientUID       string    `gorm:"size:64;not null;index:idx_records_patient_created,priority:1" json:"patient_uid"`
	Kind             string    `gorm:"size:16;not null" json:"kind"`
	UserText         *string   `gorm:"type:text" json:"user_text"`
	ImageURL         *string   `gorm:"size:1024" json:"image_url"`
	AudioURL         *string   `gorm:"size:1024" json:"audio_url"`
	AudioDurationSec *int      `json:"audio_duration_sec"`
	LLMText          *string   `gorm:"type:text" json:"llm_text"`
	FollowUps        *string   `gorm:"type:text" json:"follow_ups"`
	CreatedAtMs      int64     `gorm:"not null;index:idx_records_patient_created,priority:2" json:"created_at_ms"`
	ServerTime       time.Time `gorm:"autoCreateTime" json:"server_time"`
}

func (RecordRow) TableName() string {
	return "records"
}

// RecordRowFrom flattens a record into its row form.
func RecordRowFrom(r Record) (*RecordRow, error) {
	base := r.Base()
	row := &RecordRow{
		ID:          base.ID,
		PatientUID:  base.PatientUID,
		Kind:        string(r.Kind()),
		CreatedAtMs: base.CreatedAt,
	}
	if base.ServerTime != nil {
		row.ServerTime = *base.ServerTime
	}
	followUps, err := EncodeFollowUps(base.FollowUps)
	if err != nil {
		return nil, err
	}
	row.FollowUps = followUps

	switch rec := r.(type) {
	case *TextRecord:
		row.UserText = stringPtr(rec.UserText)
	case *ImageRecord:
		row.UserText = stringPtr(rec.UserText)
		row.ImageURL = stringPtr(rec.ImageURL)
		row.LLMText = rec.LLMText
	case *VoiceRecord:
		row.AudioURL = stringPtr(rec.AudioURL)
		row.AudioDurationSec = rec.AudioDurationSec
		row.LLMText = rec.LLMText
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownRecordKind, r)
	}
	return row, nil
}

// ToRecord rebuilds the typed record from a row.
func (row *RecordRow) ToRecord() (Record, error) {
	followUps, err := DecodeFollowUps(row.FollowUps)
	if err != nil {
		return nil, err
	}
	base := RecordBase{
		ID:         row.ID,
		PatientUID: row.PatientUID,
		CreatedAt:  row.CreatedAtMs,
		FollowUps:  followUps,
	}
	if !row.ServerTime.IsZero() {
		serverTime := row.ServerTime
		base.ServerTime = &serverTime
	}

	switch RecordKind(row.Kind) {
	case KindText:
		return &TextRecord{RecordBase: base, UserText: deref(row.UserText)}, nil
	case KindImage:
		return &ImageRecord{
			RecordBase: base,
			ImageURL:   deref(row.ImageURL),
			UserText:   deref(row.UserText),
			LLMText:    row.LLMText,
		}, nil
	case KindVoice:
		return &VoiceRecord{
			RecordBase:       base,
			AudioURL:         deref(row.AudioURL),
			AudioDurationSec: row.AudioDurationSec,
			LLMText:          row.LLMText,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRecordKind, row.Kind)
	}
}

// EncodeFollowUps maps nil to a NULL column and anything else, including an
// empty list, to its JSON text.
func EncodeFollowUps(followUps []FollowUpQuestion) (*string, error) {
	if followUps == nil {
		return nil, nil
	}
	raw, err := json.Marshal(followUps)
	if err != nil {
		return nil, fmt.Errorf("marshal follow-ups failed: %w", err)
	}
	encoded := string(raw)
	return &encoded, nil
}

func DecodeFollowUps(raw *string) ([]FollowUpQuestion, error) {
	if raw == nil || *raw == "" || *raw == "null" {
		return nil, nil
	}
	followUps := []FollowUpQuestion{}
	if err := json.Unmarshal([]byte(*raw), &followUps); err != nil {
		return nil, fmt.Errorf("unmarshal follow-ups failed: %w", err)
	}
	return followUps, nil
}

func stringPtr(s string) *string {
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
