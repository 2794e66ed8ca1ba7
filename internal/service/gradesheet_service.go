package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/gradesheet-api/internal/dto"
	"github.com/noah-isme/gradesheet-api/internal/models"
	"github.com/noah-isme/gradesheet-api/internal/sheet"
	appErrors "github.com/noah-isme/gradesheet-api/pkg/errors"
)

type sessionStore interface {
	Get(ctx context.Context, id string) (*models.SheetSnapshot, error)
	Save(ctx context.Context, snap *models.SheetSnapshot, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}

type gradeBackend interface {
	SaveSheet(ctx context.Context, creds BackendCredentials, body dto.SaveSheetRequest) (*dto.BackendSaveResponse, error)
	AttendanceCount(ctx context.Context, creds BackendCredentials, q AttendanceQuery) (int, error)
}

// SheetExporter renders a session into a downloadable file.
type SheetExporter interface {
	ExportSheet(ctx context.Context, s *sheet.Sheet, format string) (*dto.ExportLink, error)
}

// Outcome labels for save and sync metrics.
const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// GradeSheetConfig tunes session behaviour.
type GradeSheetConfig struct {
	Options    models.SheetOptions
	SessionTTL time.Duration
}

// GradeSheetService hosts grade sheet editing sessions. Operations on one session are
// serialised; the backend calls of save and attendance sync run without holding the
// session lock and are guarded by in-flight flags instead.
type GradeSheetService struct {
	store     sessionStore
	backend   gradeBackend
	exporter  SheetExporter
	validator *validator.Validate
	logger    *zap.Logger
	metrics   *MetricsService
	cfg       GradeSheetConfig
	locks     *keyedMutex
	newID     func() string
}

// NewGradeSheetService constructs the session service. exporter may be nil when exports
// are disabled.
func NewGradeSheetService(store sessionStore, backend gradeBackend, exporter SheetExporter, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger, cfg GradeSheetConfig) *GradeSheetService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 8 * time.Hour
	}
	if cfg.Options.EmptyAverage == "" {
		cfg.Options.EmptyAverage = models.EmptyAverageZero
	}
	return &GradeSheetService{
		store:     store,
		backend:   backend,
		exporter:  exporter,
		validator: validate,
		logger:    logger,
		metrics:   metrics,
		cfg:       cfg,
		locks:     newKeyedMutex(),
		newID:     uuid.NewString,
	}
}

// Open starts a session from a page snapshot.
func (s *GradeSheetService) Open(ctx context.Context, actor models.Actor, req dto.OpenSheetRequest) (*dto.SheetResponse, error) {
	if err := s.validator.Struct(req.Context); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid sheet context")
	}
	if req.Weights.Ser < 0 || req.Weights.Saber < 0 || req.Weights.Hacer < 0 {
		return nil, appErrors.Clone(appErrors.ErrInvalidWeights, "weights cannot be negative")
	}
	scale, err := sheet.ParseScale(req.Scale)
	if err != nil {
		return nil, err
	}
	sh, err := sheet.LoadJSON(req.Context, s.cfg.Options, req.Students, req.Weights, scale)
	if err != nil {
		s.logger.Warn("grade sheet snapshot rejected", zap.String("assignment_id", req.Context.AssignmentID), zap.Error(err))
		return nil, err
	}
	sh.SetIdentity(s.newID(), actor.UserID)

	snap := sh.Snapshot()
	if err := s.store.Save(ctx, &snap, s.cfg.SessionTTL); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store grade sheet session")
	}
	s.metrics.SessionOpened()
	s.logger.Info("grade sheet session opened",
		zap.String("session_id", sh.ID()),
		zap.String("assignment_id", req.Context.AssignmentID),
		zap.String("period_id", req.Context.PeriodID),
		zap.Int("students", len(sh.Students())),
		zap.String("user_id", actor.UserID),
	)
	return sheetResponse(sh), nil
}

// Get returns the rendered view of a session.
func (s *GradeSheetService) Get(ctx context.Context, actor models.Actor, id string) (*dto.SheetResponse, error) {
	var out *dto.SheetResponse
	err := s.read(ctx, actor, id, func(sh *sheet.Sheet) error {
		out = sheetResponse(sh)
		return nil
	})
	return out, err
}

// Table renders the session as an HTML table fragment.
func (s *GradeSheetService) Table(ctx context.Context, actor models.Actor, id string) ([]byte, error) {
	var out []byte
	err := s.read(ctx, actor, id, func(sh *sheet.Sheet) error {
		html, err := sheet.RenderHTML(sheet.Render(sh))
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render grade table")
		}
		out = html
		return nil
	})
	return out, err
}

// Discard ends a session without saving.
func (s *GradeSheetService) Discard(ctx context.Context, actor models.Actor, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	sh, err := s.load(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to discard grade sheet session")
	}
	s.metrics.SessionsClosed(1)
	s.logger.Info("grade sheet session discarded", zap.String("session_id", id), zap.String("status", string(sh.Status())))
	return nil
}

// AddColumn appends a grade column to a competency.
func (s *GradeSheetService) AddColumn(ctx context.Context, actor models.Actor, id, competency string) (*dto.SheetResponse, error) {
	c, err := parseCompetency(competency)
	if err != nil {
		return nil, err
	}
	var out *dto.SheetResponse
	err = s.update(ctx, actor, id, func(sh *sheet.Sheet) error {
		if err := sh.AddColumn(c); err != nil {
			return err
		}
		out = sheetResponse(sh)
		return nil
	})
	return out, err
}

// RemoveColumn drops the last grade column of a competency.
func (s *GradeSheetService) RemoveColumn(ctx context.Context, actor models.Actor, id, competency string) (*dto.SheetResponse, error) {
	c, err := parseCompetency(competency)
	if err != nil {
		return nil, err
	}
	var out *dto.SheetResponse
	err = s.update(ctx, actor, id, func(sh *sheet.Sheet) error {
		if err := sh.RemoveColumn(c); err != nil {
			return err
		}
		out = sheetResponse(sh)
		return nil
	})
	return out, err
}

// SetDescription relabels a column.
func (s *GradeSheetService) SetDescription(ctx context.Context, actor models.Actor, id, competency string, index int, req dto.DescriptionRequest) (*dto.SheetResponse, error) {
	c, err := parseCompetency(competency)
	if err != nil {
		return nil, err
	}
	var out *dto.SheetResponse
	err = s.update(ctx, actor, id, func(sh *sheet.Sheet) error {
		if err := sh.SetColumnDescription(c, index, req.Description); err != nil {
			return err
		}
		out = sheetResponse(sh)
		return nil
	})
	return out, err
}

// SetEntry stores the raw text of a grade cell and returns the recomputed row.
func (s *GradeSheetService) SetEntry(ctx context.Context, actor models.Actor, id string, req dto.SetEntryRequest) (*dto.RowUpdateResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade entry payload")
	}
	c, err := parseCompetency(req.Competency)
	if err != nil {
		return nil, err
	}
	var out *dto.RowUpdateResponse
	err = s.update(ctx, actor, id, func(sh *sheet.Sheet) error {
		row, err := sh.SetEntryValue(req.StudentID, c, req.Column, req.Value)
		if err != nil {
			return err
		}
		out = rowUpdate(sh, row)
		return nil
	})
	return out, err
}

// CommitEntry applies blur-time normalisation to a grade cell.
func (s *GradeSheetService) CommitEntry(ctx context.Context, actor models.Actor, id string, req dto.CommitEntryRequest) (*dto.RowUpdateResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade entry payload")
	}
	c, err := parseCompetency(req.Competency)
	if err != nil {
		return nil, err
	}
	var out *dto.RowUpdateResponse
	err = s.update(ctx, actor, id, func(sh *sheet.Sheet) error {
		row, err := sh.CommitEntry(req.StudentID, c, req.Column)
		if err != nil {
			return err
		}
		out = rowUpdate(sh, row)
		return nil
	})
	return out, err
}

// SetAttendance stores a manually typed absence count.
func (s *GradeSheetService) SetAttendance(ctx context.Context, actor models.Actor, id, studentID string, req dto.AttendanceRequest) (*dto.RowUpdateResponse, error) {
	count, err := sheet.ParseAttendance(req.Value)
	if err != nil {
		return nil, err
	}
	var out *dto.RowUpdateResponse
	err = s.update(ctx, actor, id, func(sh *sheet.Sheet) error {
		row, err := sh.SetAttendance(studentID, count)
		if err != nil {
			return err
		}
		out = rowUpdate(sh, row)
		return nil
	})
	return out, err
}

// SyncAttendance replaces a student's absence count with the backend's automatic count.
// Only one sync per student may be in flight.
func (s *GradeSheetService) SyncAttendance(ctx context.Context, actor models.Actor, id, studentID string) (*dto.AttendanceSyncResult, error) {
	var (
		creds BackendCredentials
		query AttendanceQuery
	)
	err := s.update(ctx, actor, id, func(sh *sheet.Sheet) error {
		if !sh.Editable() {
			return appErrors.Clone(appErrors.ErrSheetLocked, "attendance cannot be synchronised while grade entry is disabled")
		}
		if _, err := sh.StudentIndex(studentID); err != nil {
			return err
		}
		if sh.Syncing(studentID) {
			return appErrors.Clone(appErrors.ErrInFlight, "attendance sync already in progress for this student")
		}
		sh.SetSyncing(studentID, true)
		creds = credentials(sh.Context())
		query = AttendanceQuery{StudentID: studentID, AssignmentID: sh.Context().AssignmentID, PeriodID: sh.Context().PeriodID}
		return nil
	})
	if err != nil {
		return nil, err
	}

	count, callErr := s.backend.AttendanceCount(ctx, creds, query)

	// The flag must be cleared even when the caller has gone away.
	var out *dto.AttendanceSyncResult
	err = s.update(context.WithoutCancel(ctx), actor, id, func(sh *sheet.Sheet) error {
		sh.SetSyncing(studentID, false)
		if callErr != nil {
			return nil
		}
		row, err := sh.SetAttendance(studentID, count)
		if err != nil {
			return err
		}
		out = &dto.AttendanceSyncResult{StudentID: studentID, Attendance: count, Row: sh.RowSummary(row), State: sh.State()}
		return nil
	})
	if callErr != nil {
		s.metrics.RecordAttendanceSync(outcomeFailure)
		s.logger.Warn("attendance sync failed", zap.String("session_id", id), zap.String("student_id", studentID), zap.Error(callErr))
		if err != nil {
			s.logger.Error("failed to clear attendance sync flag", zap.String("session_id", id), zap.Error(err))
		}
		return nil, callErr
	}
	if err != nil {
		return nil, err
	}
	s.metrics.RecordAttendanceSync(outcomeSuccess)
	return out, nil
}

// SetWeights edits competency percentages. Sums other than 100 are kept but block saving.
func (s *GradeSheetService) SetWeights(ctx context.Context, actor models.Actor, id string, req dto.WeightsRequest) (*dto.SheetResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid weights payload")
	}
	var out *dto.SheetResponse
	err := s.update(ctx, actor, id, func(sh *sheet.Sheet) error {
		if err := sh.SetWeights(models.Weights{Ser: req.Ser, Saber: req.Saber, Hacer: req.Hacer}); err != nil {
			return err
		}
		out = sheetResponse(sh)
		return nil
	})
	return out, err
}

// Paste writes clipboard text into the grade cells starting at an anchor cell.
func (s *GradeSheetService) Paste(ctx context.Context, actor models.Actor, id string, req dto.PasteRequest) (*dto.PasteResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid paste payload")
	}
	var out *dto.PasteResponse
	err := s.update(ctx, actor, id, func(sh *sheet.Sheet) error {
		view := sheet.Render(sh)
		cell, err := pasteAnchor(view, req)
		if err != nil {
			return err
		}
		res, err := sh.Paste(view, req.Row, cell, req.Text)
		if err != nil {
			return err
		}
		out = &dto.PasteResponse{CellsWritten: res.CellsWritten, Rows: res.Rows, State: sh.State()}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordPaste(out.CellsWritten)
	return out, nil
}

func pasteAnchor(view models.SheetView, req dto.PasteRequest) (int, error) {
	if req.Cell != nil {
		return *req.Cell, nil
	}
	c, err := parseCompetency(req.Competency)
	if err != nil {
		return 0, err
	}
	cell, ok := sheet.CellOffset(view, c, req.Column)
	if !ok {
		return 0, appErrors.Clone(appErrors.ErrValidation, "paste anchor is not a grade cell")
	}
	return cell, nil
}

// Save posts the complete sheet to the grade backend. The session is marked saved only
// when no edit happened while the request was in flight.
func (s *GradeSheetService) Save(ctx context.Context, actor models.Actor, id string) (*dto.SaveResult, error) {
	var (
		creds     BackendCredentials
		body      dto.SaveSheetRequest
		skipped   []dto.SkippedCell
		startedAt int64
	)
	err := s.update(ctx, actor, id, func(sh *sheet.Sheet) error {
		blockers := sh.SaveBlockers()
		if len(blockers) > 0 {
			for _, b := range blockers {
				if b == sheet.BlockerSaveInFlight {
					return appErrors.ErrInFlight
				}
			}
			return appErrors.Clone(appErrors.ErrSaveBlocked, "save is not available: "+strings.Join(blockers, ", "))
		}
		sh.BeginSave()
		startedAt = sh.Revision()
		creds = credentials(sh.Context())
		body, skipped = sh.Payload()
		return nil
	})
	if err != nil {
		return nil, err
	}

	started := time.Now()
	resp, callErr := s.backend.SaveSheet(ctx, creds, body)

	var state models.SheetState
	err = s.update(context.WithoutCancel(ctx), actor, id, func(sh *sheet.Sheet) error {
		sh.FinishSave(startedAt, callErr == nil)
		state = sh.State()
		return nil
	})
	if err != nil {
		s.logger.Error("failed to record save outcome", zap.String("session_id", id), zap.Error(err))
	}

	fields := []zap.Field{
		zap.String("session_id", id),
		zap.String("assignment_id", body.AssignmentID),
		zap.String("period_id", body.PeriodID),
		zap.Int("students", len(body.Students)),
		zap.Int("skipped_cells", len(skipped)),
		zap.Duration("duration", time.Since(started)),
	}
	if callErr != nil {
		s.metrics.RecordSave(outcomeFailure, 0)
		s.logger.Warn("grade sheet save failed", append(fields, zap.Error(callErr))...)
		return nil, callErr
	}
	s.metrics.RecordSave(outcomeSuccess, len(skipped))
	s.logger.Info("grade sheet saved", append(fields, zap.String("backend_status", resp.Status))...)
	return &dto.SaveResult{
		Status:  resp.Status,
		Message: resp.Message,
		Errors:  resp.Errors,
		Skipped: skipped,
		State:   state,
	}, nil
}

// Export renders the session's table into a downloadable file.
func (s *GradeSheetService) Export(ctx context.Context, actor models.Actor, id string, req dto.ExportRequest) (*dto.ExportLink, error) {
	if s.exporter == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "exports are disabled")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export payload")
	}
	var out *dto.ExportLink
	err := s.read(ctx, actor, id, func(sh *sheet.Sheet) error {
		link, err := s.exporter.ExportSheet(ctx, sh, req.Format)
		if err != nil {
			return err
		}
		out = link
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordExport(req.Format)
	return out, nil
}

// PurgeExpired drops expired sessions and refreshes the active session gauge.
func (s *GradeSheetService) PurgeExpired(ctx context.Context) (int, error) {
	removed, err := s.store.PurgeExpired(ctx, time.Now())
	if err != nil {
		return 0, err
	}
	s.metrics.SessionsClosed(removed)
	if count, err := s.store.Count(ctx); err == nil {
		s.metrics.SetActiveSessions(count)
	}
	if removed > 0 {
		s.logger.Info("expired grade sheet sessions purged", zap.Int("removed", removed))
	}
	return removed, nil
}

// Ready reports whether the session store answers.
func (s *GradeSheetService) Ready(ctx context.Context) error {
	_, err := s.store.Count(ctx)
	return err
}

func (s *GradeSheetService) read(ctx context.Context, actor models.Actor, id string, fn func(*sheet.Sheet) error) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	sh, err := s.load(ctx, actor, id)
	if err != nil {
		return err
	}
	return fn(sh)
}

// update runs fn against the session and persists the result when fn succeeds.
func (s *GradeSheetService) update(ctx context.Context, actor models.Actor, id string, fn func(*sheet.Sheet) error) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	sh, err := s.load(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := fn(sh); err != nil {
		return err
	}
	snap := sh.Snapshot()
	if err := s.store.Save(ctx, &snap, s.cfg.SessionTTL); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store grade sheet session")
	}
	return nil
}

func (s *GradeSheetService) load(ctx context.Context, actor models.Actor, id string) (*sheet.Sheet, error) {
	snap, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, appErrors.ErrSessionNotFound) {
			return nil, appErrors.ErrSessionNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade sheet session")
	}
	if snap.OwnerID != actor.UserID && !actor.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "grade sheet session belongs to another user")
	}
	return sheet.New(*snap), nil
}

func parseCompetency(raw string) (models.Competency, error) {
	c, ok := models.ParseCompetency(raw)
	if !ok {
		return "", appErrors.Clone(appErrors.ErrValidation, "unknown competency "+raw)
	}
	return c, nil
}

func credentials(ctx models.SheetContext) BackendCredentials {
	return BackendCredentials{CSRFToken: ctx.CSRFToken, Cookie: ctx.BackendCookie}
}

func sheetResponse(sh *sheet.Sheet) *dto.SheetResponse {
	return &dto.SheetResponse{ID: sh.ID(), View: sheet.Render(sh), State: sh.State()}
}

func rowUpdate(sh *sheet.Sheet, row int) *dto.RowUpdateResponse {
	return &dto.RowUpdateResponse{Rows: []models.RowSummary{sh.RowSummary(row)}, State: sh.State()}
}

// keyedMutex hands out one mutex per key and forgets it once no caller holds or
// waits for it.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

// Lock blocks until key is free and returns the matching unlock function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
