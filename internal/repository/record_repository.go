package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"medtrak/internal/model"
)

type RecordRepository struct {
	db *gorm.DB
}

func NewRecordRepository(db *gorm.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// Create writes the record once and assigns its id when the caller did not
// pre-generate one.
func (r *RecordRepository) Create(ctx context.Context, record model.Record) error {
	row, err := model.RecordRowFrom(record)
	if err != nil {
		return err
	}
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("create record failed: %w", err)
	}

	// The record only takes the id once the row exists.
	base := record.Base()
	base.ID = row.ID
	serverTime := row.ServerTime
	base.ServerTime = &serverTime
	return nil
}

func (r *RecordRepository) GetByID(ctx context.Context, id string) (model.Record, error) {
	row, err := r.getRow(ctx, r.db, id)
	if err != nil || row == nil {
		return nil, err
	}
	return row.ToRecord()
}

func (r *RecordRepository) ListByPatientUID(ctx context.Context, patientUID string) ([]model.Record, error) {
	var rows []model.RecordRow
	if err := r.db.WithContext(ctx).
		Where("patient_uid = ?", patientUID).
		Order("created_at_ms ASC").
		Order("server_time ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list records failed: %w", err)
	}

	records := make([]model.Record, 0, len(rows))
	for i := range rows {
		record, err := rows[i].ToRecord()
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// SetLLMText overwrites the derived text; last writer wins.
func (r *RecordRepository) SetLLMText(ctx context.Context, id string, text *string) error {
	if err := r.db.WithContext(ctx).
		Model(&model.RecordRow{}).
		Where("id = ?", id).
		Update("llm_text", text).Error; err != nil {
		return fmt.Errorf("set llm text failed: %w", err)
	}
	return nil
}

// SetFollowUps replaces the whole list in one write; nil stores NULL.
func (r *RecordRepository) SetFollowUps(ctx context.Context, id string, followUps []model.FollowUpQuestion) error {
	encoded, err := model.EncodeFollowUps(followUps)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).
		Model(&model.RecordRow{}).
		Where("id = ?", id).
		Update("follow_ups", encoded).Error; err != nil {
		return fmt.Errorf("set follow-ups failed: %w", err)
	}
	return nil
}

// SetFollowUpResponse reads the list, answers one entry and writes the whole
// list back. It reports false without error when the record, its list or
// the index does not exist. Two concurrent calls on the same record can
// lose one answer.
func (r *RecordRepository) SetFollowUpResponse(ctx context.Context, id string, index int, answer string) ([]model.FollowUpQuestion, bool, error) {
	row, err := r.getRow(ctx, r.db, id)
	if err != nil {
		return nil, false, err
	}
	if row == nil {
		return nil, false, nil
	}
	followUps, err := model.DecodeFollowUps(row.FollowUps)
	if err != nil {
		return nil, false, err
	}
	if index < 0 || index >= len(followUps) {
		return followUps, false, nil
	}

	followUps[index].UserResponse = &answer
	if err := r.SetFollowUps(ctx, id, followUps); err != nil {
		return nil, false, err
	}
	return followUps, true, nil
}

func (r *RecordRepository) getRow(ctx context.Context, db *gorm.DB, id string) (*model.RecordRow, error) {
	var row model.RecordRow
	if err := db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get record failed: %w", err)
	}
	return &row, nil
}
