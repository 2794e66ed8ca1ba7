package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gradesheet-api/internal/dto"
	"github.com/noah-isme/gradesheet-api/internal/models"
	"github.com/noah-isme/gradesheet-api/internal/repository"
	"github.com/noah-isme/gradesheet-api/internal/sheet"
	appErrors "github.com/noah-isme/gradesheet-api/pkg/errors"
)

const serviceRoster = `[
	{"id": 11, "nombre_completo": "Ana Gómez", "notas": {"ser": [{"valor": "4.0", "descripcion": "Taller"}], "saber": [], "hacer": []}, "inasistencias": 1},
	{"id": "12", "nombre_completo": "Bruno Díaz", "notas": {"ser": [], "saber": [], "hacer": []}, "inasistencias": 0}
]`

type fakeBackend struct {
	saveCalls  []dto.SaveSheetRequest
	saveCreds  BackendCredentials
	saveErr    error
	onSave     func()
	count      int
	countErr   error
	countQuery AttendanceQuery
	onCount    func()
}

func (f *fakeBackend) SaveSheet(_ context.Context, creds BackendCredentials, body dto.SaveSheetRequest) (*dto.BackendSaveResponse, error) {
	f.saveCalls = append(f.saveCalls, body)
	f.saveCreds = creds
	if f.onSave != nil {
		f.onSave()
	}
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	return &dto.BackendSaveResponse{Status: dto.BackendStatusSuccess, Message: "Calificaciones guardadas"}, nil
}

func (f *fakeBackend) AttendanceCount(_ context.Context, _ BackendCredentials, q AttendanceQuery) (int, error) {
	f.countQuery = q
	if f.onCount != nil {
		f.onCount()
	}
	return f.count, f.countErr
}

// cancellableStore fails like a network store once the request context is done.
type cancellableStore struct {
	*repository.MemorySessionRepository
}

func (s cancellableStore) Get(ctx context.Context, id string) (*models.SheetSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.MemorySessionRepository.Get(ctx, id)
}

func (s cancellableStore) Save(ctx context.Context, snap *models.SheetSnapshot, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemorySessionRepository.Save(ctx, snap, ttl)
}

type fakeExporter struct {
	format string
}

func (f *fakeExporter) ExportSheet(_ context.Context, s *sheet.Sheet, format string) (*dto.ExportLink, error) {
	f.format = format
	return &dto.ExportLink{URL: "/exports/download?token=t", Filename: s.Context().AssignmentID + "." + format}, nil
}

var (
	teacher = models.Actor{UserID: "teacher-1", Role: models.RoleTeacher}
	other   = models.Actor{UserID: "teacher-2", Role: models.RoleTeacher}
	admin   = models.Actor{UserID: "admin-1", Role: models.RoleAdmin}
)

func newTestGradeSheetService(backend *fakeBackend, exporter SheetExporter) *GradeSheetService {
	svc := NewGradeSheetService(repository.NewMemorySessionRepository(), backend, exporter, nil, nil, nil, GradeSheetConfig{
		Options: models.SheetOptions{ColumnFloor: 1, ClampOnCommit: true},
	})
	svc.newID = func() string { return "session-1" }
	return svc
}

func openTestSheet(t *testing.T, svc *GradeSheetService) *dto.SheetResponse {
	t.Helper()
	res, err := svc.Open(context.Background(), teacher, dto.OpenSheetRequest{
		Context: models.SheetContext{
			AssignmentID:      "asg-1",
			PeriodID:          "per-1",
			IndicatorsDefined: true,
			CSRFToken:         "csrf-1",
			BackendCookie:     "sessionid=abc",
		},
		Students: []byte(serviceRoster),
		Weights:  models.Weights{Ser: 30, Saber: 40, Hacer: 30},
	})
	require.NoError(t, err)
	return res
}

func setTestEntry(t *testing.T, svc *GradeSheetService, value string) *dto.RowUpdateResponse {
	t.Helper()
	res, err := svc.SetEntry(context.Background(), teacher, "session-1", dto.SetEntryRequest{
		StudentID: "11", Competency: "saber", Column: 0, Value: value,
	})
	require.NoError(t, err)
	return res
}

func TestGradeSheetServiceOpen(t *testing.T) {
	svc := newTestGradeSheetService(&fakeBackend{}, nil)
	res := openTestSheet(t, svc)

	assert.Equal(t, "session-1", res.ID)
	assert.Equal(t, models.SheetStatusSaved, res.State.Status)
	assert.False(t, res.State.CanSave)
	require.Len(t, res.View.Rows, 2)
	assert.Equal(t, "11", res.View.Rows[0].StudentID)

	_, err := svc.Open(context.Background(), teacher, dto.OpenSheetRequest{
		Context:  models.SheetContext{PeriodID: "per-1"},
		Students: []byte(serviceRoster),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Open(context.Background(), teacher, dto.OpenSheetRequest{
		Context:  models.SheetContext{AssignmentID: "asg-1", PeriodID: "per-1"},
		Students: []byte(`{"broken"`),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSnapshotInvalid.Code, appErrors.FromError(err).Code)
}

func TestGradeSheetServiceOwnership(t *testing.T) {
	svc := newTestGradeSheetService(&fakeBackend{}, nil)
	openTestSheet(t, svc)
	ctx := context.Background()

	_, err := svc.Get(ctx, other, "session-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = svc.Get(ctx, admin, "session-1")
	require.NoError(t, err)

	_, err = svc.Get(ctx, teacher, "missing")
	assert.ErrorIs(t, err, appErrors.ErrSessionNotFound)
}

func TestGradeSheetServiceEditsReturnRowUpdates(t *testing.T) {
	svc := newTestGradeSheetService(&fakeBackend{}, nil)
	openTestSheet(t, svc)
	ctx := context.Background()

	res := setTestEntry(t, svc, "4,5")
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "4.5", res.Rows[0].Averages[models.CompetencySaber])
	assert.Equal(t, models.SheetStatusPending, res.State.Status)
	assert.True(t, res.State.CanSave)

	res, err := svc.CommitEntry(ctx, teacher, "session-1", dto.CommitEntryRequest{StudentID: "11", Competency: "saber", Column: 0})
	require.NoError(t, err)
	view, err := svc.Get(ctx, teacher, "session-1")
	require.NoError(t, err)
	assert.Equal(t, "4.5", view.View.Rows[0].Cells[4].Text)

	_, err = svc.SetEntry(ctx, teacher, "session-1", dto.SetEntryRequest{StudentID: "11", Competency: "arte", Value: "4"})
	require.Error(t, err)

	res, err = svc.SetAttendance(ctx, teacher, "session-1", "12", dto.AttendanceRequest{Value: "3"})
	require.NoError(t, err)
	assert.Equal(t, "12", res.Rows[0].StudentID)

	_, err = svc.SetAttendance(ctx, teacher, "session-1", "12", dto.AttendanceRequest{Value: "-1"})
	require.Error(t, err)
}

func TestGradeSheetServiceColumns(t *testing.T) {
	svc := newTestGradeSheetService(&fakeBackend{}, nil)
	openTestSheet(t, svc)
	ctx := context.Background()

	res, err := svc.AddColumn(ctx, teacher, "session-1", "ser")
	require.NoError(t, err)
	assert.Equal(t, 2, res.View.ColumnCount[models.CompetencySer])

	res, err = svc.SetDescription(ctx, teacher, "session-1", "ser", 1, dto.DescriptionRequest{Description: "Maqueta"})
	require.NoError(t, err)
	assert.Equal(t, "Maqueta", res.View.Groups[0].Columns[1].Description)

	res, err = svc.RemoveColumn(ctx, teacher, "session-1", "ser")
	require.NoError(t, err)
	assert.Equal(t, 1, res.View.ColumnCount[models.CompetencySer])
	assert.False(t, res.View.Groups[0].CanRemove)

	_, err = svc.RemoveColumn(ctx, teacher, "session-1", "ser")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	_, err = svc.AddColumn(ctx, teacher, "session-1", "nope")
	require.Error(t, err)
}

func TestGradeSheetServicePaste(t *testing.T) {
	svc := newTestGradeSheetService(&fakeBackend{}, nil)
	openTestSheet(t, svc)

	res, err := svc.Paste(context.Background(), teacher, "session-1", dto.PasteRequest{
		Row: 0, Competency: "saber", Column: 0, Text: "3.0\n4.0\n",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.CellsWritten)
	assert.Len(t, res.Rows, 2)
	assert.Equal(t, models.SheetStatusPending, res.State.Status)

	_, err = svc.Paste(context.Background(), teacher, "session-1", dto.PasteRequest{Row: 0, Competency: "saber", Column: 5, Text: "3"})
	require.Error(t, err)
}

func TestGradeSheetServiceSave(t *testing.T) {
	backend := &fakeBackend{}
	svc := newTestGradeSheetService(backend, nil)
	openTestSheet(t, svc)
	ctx := context.Background()

	_, err := svc.Save(ctx, teacher, "session-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSaveBlocked.Code, appErrors.FromError(err).Code)
	assert.Empty(t, backend.saveCalls)

	setTestEntry(t, svc, "3,5")
	res, err := svc.Save(ctx, teacher, "session-1")
	require.NoError(t, err)
	assert.Equal(t, dto.BackendStatusSuccess, res.Status)
	assert.Equal(t, models.SheetStatusSaved, res.State.Status)
	assert.False(t, res.State.Saving)

	require.Len(t, backend.saveCalls, 1)
	assert.Equal(t, BackendCredentials{CSRFToken: "csrf-1", Cookie: "sessionid=abc"}, backend.saveCreds)
	body := backend.saveCalls[0]
	assert.Equal(t, "asg-1", body.AssignmentID)
	require.Len(t, body.Students, 2)
	require.Len(t, body.Students[0].Grades.Saber, 1)
	assert.Equal(t, "3.5", body.Students[0].Grades.Saber[0].Value)
}

func TestGradeSheetServiceSaveKeepsEditsMadeInFlight(t *testing.T) {
	backend := &fakeBackend{}
	svc := newTestGradeSheetService(backend, nil)
	openTestSheet(t, svc)
	setTestEntry(t, svc, "3.5")

	var inFlightErr error
	backend.onSave = func() {
		_, inFlightErr = svc.Save(context.Background(), teacher, "session-1")
		setTestEntry(t, svc, "4.5")
	}
	res, err := svc.Save(context.Background(), teacher, "session-1")
	require.NoError(t, err)
	assert.ErrorIs(t, inFlightErr, appErrors.ErrInFlight)
	assert.Equal(t, models.SheetStatusPending, res.State.Status)
	assert.True(t, res.State.CanSave)
	assert.Len(t, backend.saveCalls, 1)
}

func TestGradeSheetServiceClearsFlagsAfterClientDisconnect(t *testing.T) {
	backend := &fakeBackend{count: 3}
	svc := NewGradeSheetService(cancellableStore{repository.NewMemorySessionRepository()}, backend, nil, nil, nil, nil, GradeSheetConfig{
		Options: models.SheetOptions{ColumnFloor: 1},
	})
	svc.newID = func() string { return "session-1" }
	openTestSheet(t, svc)
	setTestEntry(t, svc, "3.5")

	reqCtx, cancel := context.WithCancel(context.Background())
	backend.onSave = cancel
	_, err := svc.Save(reqCtx, teacher, "session-1")
	require.NoError(t, err)

	view, err := svc.Get(context.Background(), teacher, "session-1")
	require.NoError(t, err)
	assert.False(t, view.State.Saving)
	assert.Equal(t, models.SheetStatusSaved, view.State.Status)

	backend.onSave = nil
	setTestEntry(t, svc, "4.0")
	_, err = svc.Save(context.Background(), teacher, "session-1")
	require.NoError(t, err)
	assert.Len(t, backend.saveCalls, 2)

	reqCtx, cancel = context.WithCancel(context.Background())
	backend.onCount = cancel
	_, err = svc.SyncAttendance(reqCtx, teacher, "session-1", "12")
	require.NoError(t, err)

	backend.onCount = nil
	res, err := svc.SyncAttendance(context.Background(), teacher, "session-1", "12")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Attendance)
}

func TestGradeSheetServiceSaveFailure(t *testing.T) {
	backend := &fakeBackend{saveErr: appErrors.Clone(appErrors.ErrBackendFailure, "Periodo cerrado")}
	svc := newTestGradeSheetService(backend, nil)
	openTestSheet(t, svc)
	setTestEntry(t, svc, "3.5")

	_, err := svc.Save(context.Background(), teacher, "session-1")
	require.Error(t, err)
	assert.Equal(t, "Periodo cerrado", appErrors.FromError(err).Message)

	view, err := svc.Get(context.Background(), teacher, "session-1")
	require.NoError(t, err)
	assert.Equal(t, models.SheetStatusError, view.State.Status)
	assert.False(t, view.State.Saving)
	assert.True(t, view.State.CanSave)
}

func TestGradeSheetServiceSyncAttendance(t *testing.T) {
	backend := &fakeBackend{count: 5}
	svc := newTestGradeSheetService(backend, nil)
	openTestSheet(t, svc)
	ctx := context.Background()

	var inFlightErr error
	backend.onCount = func() {
		_, inFlightErr = svc.SyncAttendance(ctx, teacher, "session-1", "12")
	}
	res, err := svc.SyncAttendance(ctx, teacher, "session-1", "12")
	require.NoError(t, err)
	assert.ErrorIs(t, inFlightErr, appErrors.ErrInFlight)
	assert.Equal(t, 5, res.Attendance)
	assert.Equal(t, models.SheetStatusPending, res.State.Status)
	assert.Equal(t, AttendanceQuery{StudentID: "12", AssignmentID: "asg-1", PeriodID: "per-1"}, backend.countQuery)

	view, err := svc.Get(ctx, teacher, "session-1")
	require.NoError(t, err)
	assert.Equal(t, "5", view.View.Rows[1].Cells[len(view.View.Rows[1].Cells)-1].Text)

	_, err = svc.SyncAttendance(ctx, teacher, "session-1", "99")
	require.Error(t, err)
}

func TestGradeSheetServiceSyncAttendanceFailure(t *testing.T) {
	backend := &fakeBackend{countErr: appErrors.Clone(appErrors.ErrBackendFailure, "Error al sincronizar")}
	svc := newTestGradeSheetService(backend, nil)
	openTestSheet(t, svc)
	ctx := context.Background()

	_, err := svc.SyncAttendance(ctx, teacher, "session-1", "11")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrBackendFailure) || appErrors.FromError(err).Code == appErrors.ErrBackendFailure.Code)

	view, err := svc.Get(ctx, teacher, "session-1")
	require.NoError(t, err)
	assert.Equal(t, models.SheetStatusSaved, view.State.Status)
	assert.Equal(t, "1", view.View.Rows[0].Cells[len(view.View.Rows[0].Cells)-1].Text)

	backend.countErr = nil
	backend.count = 2
	res, err := svc.SyncAttendance(ctx, teacher, "session-1", "11")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Attendance)
}

func TestGradeSheetServiceWeights(t *testing.T) {
	backend := &fakeBackend{}
	svc := NewGradeSheetService(repository.NewMemorySessionRepository(), backend, nil, nil, nil, nil, GradeSheetConfig{})
	svc.newID = func() string { return "session-1" }
	ctx := context.Background()
	_, err := svc.Open(ctx, teacher, dto.OpenSheetRequest{
		Context:  models.SheetContext{AssignmentID: "asg-1", PeriodID: "per-1", IndicatorsDefined: true, WeightsEditable: true},
		Students: []byte(serviceRoster),
		Weights:  models.Weights{Ser: 30, Saber: 40, Hacer: 30},
	})
	require.NoError(t, err)

	res, err := svc.SetWeights(ctx, teacher, "session-1", dto.WeightsRequest{Ser: 30, Saber: 30, Hacer: 30})
	require.NoError(t, err)
	assert.False(t, res.State.CanSave)
	assert.Contains(t, res.State.SaveBlockers, sheet.BlockerInvalidWeight)

	_, err = svc.Save(ctx, teacher, "session-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSaveBlocked.Code, appErrors.FromError(err).Code)
	assert.Empty(t, backend.saveCalls)

	_, err = svc.SetWeights(ctx, teacher, "session-1", dto.WeightsRequest{Ser: 130})
	require.Error(t, err)
}

func TestGradeSheetServiceTableAndDiscard(t *testing.T) {
	svc := newTestGradeSheetService(&fakeBackend{}, nil)
	openTestSheet(t, svc)
	ctx := context.Background()

	html, err := svc.Table(ctx, teacher, "session-1")
	require.NoError(t, err)
	assert.Contains(t, string(html), "Ana Gómez")

	require.Error(t, svc.Discard(ctx, other, "session-1"))
	require.NoError(t, svc.Discard(ctx, teacher, "session-1"))
	_, err = svc.Get(ctx, teacher, "session-1")
	assert.ErrorIs(t, err, appErrors.ErrSessionNotFound)
	assert.Empty(t, svc.locks.locks)
}

func TestGradeSheetServiceExport(t *testing.T) {
	svc := newTestGradeSheetService(&fakeBackend{}, nil)
	openTestSheet(t, svc)
	ctx := context.Background()

	_, err := svc.Export(ctx, teacher, "session-1", dto.ExportRequest{Format: "csv"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	exporter := &fakeExporter{}
	svc.exporter = exporter
	link, err := svc.Export(ctx, teacher, "session-1", dto.ExportRequest{Format: "xlsx"})
	require.NoError(t, err)
	assert.Equal(t, "xlsx", exporter.format)
	assert.Equal(t, "asg-1.xlsx", link.Filename)

	_, err = svc.Export(ctx, teacher, "session-1", dto.ExportRequest{Format: "doc"})
	require.Error(t, err)
}

func TestGradeSheetServicePurgeAndReady(t *testing.T) {
	svc := newTestGradeSheetService(&fakeBackend{}, nil)
	openTestSheet(t, svc)

	removed, err := svc.PurgeExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
	require.NoError(t, svc.Ready(context.Background()))
}
