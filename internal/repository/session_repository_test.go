package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gradesheet-api/internal/models"
	appErrors "github.com/noah-isme/gradesheet-api/pkg/errors"
)

func sampleSnapshot(id string) *models.SheetSnapshot {
	return &models.SheetSnapshot{
		ID:      id,
		OwnerID: "teacher-1",
		Context: models.SheetContext{AssignmentID: "asg-1", PeriodID: "per-1", IndicatorsDefined: true},
		Students: []models.Student{{
			ID:       "s-1",
			FullName: "Ana Gómez",
			Grades:   models.StudentGrades{Ser: []models.GradeEntry{{Value: "4,5", Description: "Taller"}}},
		}},
		Descriptions: map[models.Competency]map[int]string{models.CompetencySer: {0: "Taller"}},
		Weights:      models.Weights{Ser: 30, Saber: 40, Hacer: 30},
		Status:       models.SheetStatusPending,
		Revision:     3,
	}
}

func TestMemorySessionRepositoryRoundTrip(t *testing.T) {
	repo := NewMemorySessionRepository()
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, sampleSnapshot("abc"), time.Hour))
	got, err := repo.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, sampleSnapshot("abc"), got)

	got.Students[0].FullName = "changed"
	again, err := repo.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "Ana Gómez", again.Students[0].FullName)

	require.NoError(t, repo.Delete(ctx, "abc"))
	_, err = repo.Get(ctx, "abc")
	assert.ErrorIs(t, err, appErrors.ErrSessionNotFound)
}

func TestMemorySessionRepositoryExpiry(t *testing.T) {
	repo := NewMemorySessionRepository()
	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, sampleSnapshot("short"), time.Minute))
	require.NoError(t, repo.Save(ctx, sampleSnapshot("forever"), 0))

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	now = now.Add(2 * time.Minute)
	_, err = repo.Get(ctx, "short")
	assert.ErrorIs(t, err, appErrors.ErrSessionNotFound)

	removed, err := repo.PurgeExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	count, err = repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSessionKey(t *testing.T) {
	assert.Equal(t, "gradesheet:session:abc", SessionKey("abc"))
}
