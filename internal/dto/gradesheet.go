package dto

import (
	"encoding/json"
	"time"

	"github.com/noah-isme/gradesheet-api/internal/models"
)

// OpenSheetRequest carries the page snapshot a session starts from.
type OpenSheetRequest struct {
	Context  models.SheetContext `json:"context"`
	Students json.RawMessage     `json:"estudiantes"`
	Scale    json.RawMessage     `json:"escala,omitempty"`
	Weights  models.Weights      `json:"porcentajes"`
}

// SetEntryRequest edits the raw text of one grade cell.
type SetEntryRequest struct {
	StudentID  string `json:"student_id" validate:"required"`
	Competency string `json:"competency" validate:"required,oneof=ser saber hacer"`
	Column     int    `json:"column" validate:"min=0"`
	Value      string `json:"value"`
}

// CommitEntryRequest normalises a grade cell when it loses focus.
type CommitEntryRequest struct {
	StudentID  string `json:"student_id" validate:"required"`
	Competency string `json:"competency" validate:"required,oneof=ser saber hacer"`
	Column     int    `json:"column" validate:"min=0"`
}

// DescriptionRequest relabels a column.
type DescriptionRequest struct {
	Description string `json:"description"`
}

// AttendanceRequest sets an absence count from the attendance control's text.
type AttendanceRequest struct {
	Value string `json:"value"`
}

// WeightsRequest edits competency percentages.
type WeightsRequest struct {
	Ser   float64 `json:"ser" validate:"min=0,max=100"`
	Saber float64 `json:"saber" validate:"min=0,max=100"`
	Hacer float64 `json:"hacer" validate:"min=0,max=100"`
}

// PasteRequest pastes clipboard text anchored at a grade cell. The anchor is either an
// explicit cell position or a competency column of the anchor row.
type PasteRequest struct {
	Row        int    `json:"row" validate:"min=0"`
	Cell       *int   `json:"cell,omitempty"`
	Competency string `json:"competency" validate:"omitempty,oneof=ser saber hacer"`
	Column     int    `json:"column" validate:"min=0"`
	Text       string `json:"text"`
}

// ExportRequest selects the export format.
type ExportRequest struct {
	Format string `json:"format" validate:"required,oneof=csv pdf xlsx"`
}

// SheetResponse is the full view of a session.
type SheetResponse struct {
	ID    string            `json:"id"`
	View  models.SheetView  `json:"view"`
	State models.SheetState `json:"state"`
}

// RowUpdateResponse is the partial-update result of a cell edit.
type RowUpdateResponse struct {
	Rows  []models.RowSummary `json:"rows"`
	State models.SheetState   `json:"state"`
}

// PasteResponse reports the outcome of a paste.
type PasteResponse struct {
	CellsWritten int                 `json:"cells_written"`
	Rows         []models.RowSummary `json:"rows"`
	State        models.SheetState   `json:"state"`
}

// SaveResult reports a finished save.
type SaveResult struct {
	Status  string            `json:"status"`
	Message string            `json:"message"`
	Errors  []string          `json:"errors,omitempty"`
	Skipped []SkippedCell     `json:"skipped,omitempty"`
	State   models.SheetState `json:"state"`
}

// AttendanceSyncResult reports the synchronised absence count.
type AttendanceSyncResult struct {
	StudentID  string            `json:"student_id"`
	Attendance int               `json:"inasistencias"`
	Row        models.RowSummary `json:"row"`
	State      models.SheetState `json:"state"`
}

// ExportLink points at a generated export.
type ExportLink struct {
	URL       string    `json:"url"`
	Filename  string    `json:"filename"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SaveSheetRequest is the body posted to the grade backend.
type SaveSheetRequest struct {
	AssignmentID string          `json:"asignacion_id"`
	PeriodID     string          `json:"periodo_id"`
	Students     []SaveStudent   `json:"estudiantes"`
	Weights      *models.Weights `json:"porcentajes,omitempty"`
}

// SaveStudent is one student of the save body.
type SaveStudent struct {
	ID         string     `json:"id"`
	Grades     SaveGrades `json:"notas"`
	Attendance int        `json:"inasistencias"`
}

// SaveGrades groups saved grades by competency.
type SaveGrades struct {
	Ser   []SaveGrade `json:"ser"`
	Saber []SaveGrade `json:"saber"`
	Hacer []SaveGrade `json:"hacer"`
}

// Bucket returns the slice of a competency.
func (g *SaveGrades) Bucket(c models.Competency) *[]SaveGrade {
	switch c {
	case models.CompetencySaber:
		return &g.Saber
	case models.CompetencyHacer:
		return &g.Hacer
	default:
		return &g.Ser
	}
}

// SaveGrade is a graded item as the backend stores it.
type SaveGrade struct {
	Description string `json:"descripcion"`
	Value       string `json:"valor"`
}

// SkippedCell is a non-blank cell left out of a save because it is not a valid grade.
type SkippedCell struct {
	StudentID  string            `json:"student_id"`
	Competency models.Competency `json:"competency"`
	Column     int               `json:"column"`
	Value      string            `json:"value"`
}

// Backend response statuses treated as success.
const (
	BackendStatusSuccess           = "success"
	BackendStatusSuccessWithErrors = "success_with_errors"
)

// BackendSaveResponse is the save endpoint's answer.
type BackendSaveResponse struct {
	Status  string   `json:"status"`
	Message string   `json:"message"`
	Errors  []string `json:"errors,omitempty"`
}

// BackendAttendanceResponse is the attendance count endpoint's answer.
type BackendAttendanceResponse struct {
	Status      string `json:"status"`
	Count       *int   `json:"inasistencias_auto,omitempty"`
	LegacyCount *int   `json:"inasistencias,omitempty"`
	Message     string `json:"message,omitempty"`
}

// AutoCount returns the synchronised count from either field name.
func (r BackendAttendanceResponse) AutoCount() (int, bool) {
	if r.Count != nil {
		return *r.Count, true
	}
	if r.LegacyCount != nil {
		return *r.LegacyCount, true
	}
	return 0, false
}
