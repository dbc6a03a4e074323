package repository

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"medtrak/internal/model"
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

func TestRecordRepository_CreateAssignsID(t *testing.T) {
	repo := NewRecordRepository(newTestDB(t))
	ctx := context.Background()

	rec := model.NewTextRecord(model.TextInit{PatientUID: "p1", UserText: "feeling dizzy", CreatedAt: 1000})
	require.NoError(t, repo.Create(ctx, rec))
	require.NotEmpty(t, rec.ID)
	require.NotNil(t, rec.ServerTime)

	got, err := repo.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	text, ok := got.(*model.TextRecord)
	require.True(t, ok)
	assert.Equal(t, "feeling dizzy", text.UserText)
	assert.Nil(t, text.FollowUps)

	missing, err := repo.GetByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRecordRepository_CreateFailureLeavesNoID(t *testing.T) {
	db := newTestDB(t)
	repo := NewRecordRepository(db)
	require.NoError(t, db.Migrator().DropTable(&model.RecordRow{}))

	rec := model.NewTextRecord(model.TextInit{PatientUID: "p1", UserText: "cough", CreatedAt: 1000})
	require.Error(t, repo.Create(context.Background(), rec))
	assert.Empty(t, rec.ID)
	assert.Nil(t, rec.ServerTime)
}

func TestRecordRepository_SetLLMTextAndFollowUps(t *testing.T) {
	repo := NewRecordRepository(newTestDB(t))
	ctx := context.Background()

	rec := model.NewImageRecord(model.ImageInit{PatientUID: "p1", ImageURL: "https://x/i.jpg", UserText: "rash", CreatedAt: 1})
	require.NoError(t, repo.Create(ctx, rec))

	caption := "red, raised"
	require.NoError(t, repo.SetLLMText(ctx, rec.ID, &caption))
	require.NoError(t, repo.SetFollowUps(ctx, rec.ID, []model.FollowUpQuestion{}))

	got, err := repo.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	img := got.(*model.ImageRecord)
	assert.Equal(t, "red, raised", *img.LLMText)
	require.NotNil(t, img.FollowUps)
	assert.Len(t, img.FollowUps, 0)

	require.NoError(t, repo.SetLLMText(ctx, rec.ID, nil))
	require.NoError(t, repo.SetFollowUps(ctx, rec.ID, nil))
	got, err = repo.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	img = got.(*model.ImageRecord)
	assert.Nil(t, img.LLMText)
	assert.Nil(t, img.FollowUps)
}

func TestRecordRepository_SetFollowUpResponseRoundTrip(t *testing.T) {
	repo := NewRecordRepository(newTestDB(t))
	ctx := context.Background()

	rec := model.NewTextRecord(model.TextInit{PatientUID: "p1", UserText: "feeling dizzy", CreatedAt: 1})
	require.NoError(t, repo.Create(ctx, rec))
	require.NoError(t, repo.SetFollowUps(ctx, rec.ID, model.FollowUpsFromQuestions([]string{"Since when?", "Any other symptoms?"})))

	_, applied, err := repo.SetFollowUpResponse(ctx, rec.ID, 1, "no")
	require.NoError(t, err)
	assert.True(t, applied)

	got, err := repo.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	followUps := got.Base().FollowUps
	require.Len(t, followUps, 2)
	assert.Nil(t, followUps[0].UserResponse)
	assert.Equal(t, "Since when?", followUps[0].Question)
	require.NotNil(t, followUps[1].UserResponse)
	assert.Equal(t, "no", *followUps[1].UserResponse)
}

func TestRecordRepository_SetFollowUpResponseNoOps(t *testing.T) {
	repo := NewRecordRepository(newTestDB(t))
	ctx := context.Background()

	_, applied, err := repo.SetFollowUpResponse(ctx, "missing", 0, "x")
	require.NoError(t, err)
	assert.False(t, applied)

	rec := model.NewTextRecord(model.TextInit{PatientUID: "p1", UserText: "t", CreatedAt: 1})
	require.NoError(t, repo.Create(ctx, rec))

	_, applied, err = repo.SetFollowUpResponse(ctx, rec.ID, 0, "x")
	require.NoError(t, err)
	assert.False(t, applied, "absent follow-ups")

	require.NoError(t, repo.SetFollowUps(ctx, rec.ID, model.FollowUpsFromQuestions([]string{"q"})))
	_, applied, err = repo.SetFollowUpResponse(ctx, rec.ID, 3, "x")
	require.NoError(t, err)
	assert.False(t, applied, "index out of range")
	_, applied, err = repo.SetFollowUpResponse(ctx, rec.ID, -1, "x")
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestRecordRepository_ListByPatientUIDOrdersAscending(t *testing.T) {
	repo := NewRecordRepository(newTestDB(t))
	ctx := context.Background()

	for _, createdAt := range []int64{300, 100, 200} {
		rec := model.NewTextRecord(model.TextInit{PatientUID: "p1", UserText: "t", CreatedAt: createdAt})
		require.NoError(t, repo.Create(ctx, rec))
	}
	other := model.NewTextRecord(model.TextInit{PatientUID: "p2", UserText: "t", CreatedAt: 50})
	require.NoError(t, repo.Create(ctx, other))

	records, err := repo.ListByPatientUID(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, int64(100), records[0].Base().CreatedAt)
	assert.Equal(t, int64(200), records[1].Base().CreatedAt)
	assert.Equal(t, int64(300), records[2].Base().CreatedAt)
}

func TestUserRepository(t *testing.T) {
	repo := NewUserRepository(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &model.User{Username: "pat", Email: "pat@x.io", PasswordHash: "h", Role: model.RolePatient, DisplayName: "Pat"}))
	require.NoError(t, repo.Create(ctx, &model.User{Username: "doc", Email: "doc@x.io", PasswordHash: "h", Role: model.RoleProvider, DisplayName: "Doc"}))

	byName, err := repo.GetByUsername(ctx, "pat")
	require.NoError(t, err)
	require.NotNil(t, byName)
	assert.Equal(t, model.RolePatient, byName.Role)

	missing, err := repo.GetByEmail(ctx, "none@x.io")
	require.NoError(t, err)
	assert.Nil(t, missing)

	patients, err := repo.ListByRole(ctx, model.RolePatient)
	require.NoError(t, err)
	require.Len(t, patients, 1)
	assert.Equal(t, "pat", patients[0].Username)
}
