// Package sheet holds the in-memory grade sheet of an editing session: the student
// model, the tabular projection of it, aggregate computation and spreadsheet paste.
//
// A Sheet is not safe for concurrent use; callers serialise access per session.
package sheet

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/noah-isme/gradesheet-api/internal/models"
	appErrors "github.com/noah-isme/gradesheet-api/pkg/errors"
)

// Sheet is the session-scoped grade model.
type Sheet struct {
	snap models.SheetSnapshot
}

// New wraps an existing snapshot, typically one restored from the session store.
func New(snap models.SheetSnapshot) *Sheet {
	s := &Sheet{snap: snap}
	s.normalise()
	return s
}

// Load builds a fresh sheet from the students embedded in the page snapshot.
func Load(ctx models.SheetContext, opts models.SheetOptions, students []models.Student, weights models.Weights, scale []models.PerformanceBand) *Sheet {
	s := &Sheet{snap: models.SheetSnapshot{
		Context:  ctx,
		Options:  opts,
		Students: students,
		Weights:  weights,
		Scale:    scale,
		Status:   models.SheetStatusSaved,
	}}
	s.normalise()
	s.rebuildDescriptions()
	return s
}

// LoadJSON parses the embedded student JSON array. An empty document is an empty roster.
func LoadJSON(ctx models.SheetContext, opts models.SheetOptions, raw []byte, weights models.Weights, scale []models.PerformanceBand) (*Sheet, error) {
	var students []models.Student
	if text := strings.TrimSpace(string(raw)); text != "" {
		if err := json.Unmarshal([]byte(text), &students); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrSnapshotInvalid.Code, appErrors.ErrSnapshotInvalid.Status, appErrors.ErrSnapshotInvalid.Message)
		}
	}
	return Load(ctx, opts, students, weights, scale), nil
}

// ParseScale decodes the optional performance-scale JSON array.
func ParseScale(raw []byte) ([]models.PerformanceBand, error) {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return nil, nil
	}
	var bands []models.PerformanceBand
	if err := json.Unmarshal([]byte(text), &bands); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrSnapshotInvalid.Code, appErrors.ErrSnapshotInvalid.Status, "error loading performance scale")
	}
	return bands, nil
}

func (s *Sheet) normalise() {
	if s.snap.Options.EmptyAverage == "" {
		s.snap.Options.EmptyAverage = models.EmptyAverageZero
	}
	if s.snap.Options.ColumnFloor < 0 {
		s.snap.Options.ColumnFloor = 0
	}
	if s.snap.Status == "" {
		s.snap.Status = models.SheetStatusSaved
	}
	if s.snap.Descriptions == nil {
		s.snap.Descriptions = make(map[models.Competency]map[int]string, len(models.Competencies))
	}
	for _, c := range models.Competencies {
		if s.snap.Descriptions[c] == nil {
			s.snap.Descriptions[c] = make(map[int]string)
		}
	}
}

// Snapshot returns the serialisable state of the sheet.
func (s *Sheet) Snapshot() models.SheetSnapshot {
	return s.snap
}

// ID returns the session identifier.
func (s *Sheet) ID() string { return s.snap.ID }

// Context returns the assignment context.
func (s *Sheet) Context() models.SheetContext { return s.snap.Context }

// Students returns the roster in display order.
func (s *Sheet) Students() []models.Student { return s.snap.Students }

// Status returns the unsaved-changes indicator.
func (s *Sheet) Status() models.SheetStatus { return s.snap.Status }

// Revision increases on every mutation.
func (s *Sheet) Revision() int64 { return s.snap.Revision }

// Weights returns the competency weights.
func (s *Sheet) Weights() models.Weights { return s.snap.Weights }

// Editable reports whether grade entry is enabled at all.
func (s *Sheet) Editable() bool { return s.snap.Context.IndicatorsDefined }

// ColumnCount is the widest bucket of a competency across students, at least one.
func (s *Sheet) ColumnCount(c models.Competency) int {
	n := s.entryCount(c)
	if n == 0 {
		return 1
	}
	return n
}

func (s *Sheet) entryCount(c models.Competency) int {
	widest := 0
	for i := range s.snap.Students {
		if n := len(*s.snap.Students[i].Grades.Bucket(c)); n > widest {
			widest = n
		}
	}
	return widest
}

// Description returns the shared label of a column.
func (s *Sheet) Description(c models.Competency, index int) string {
	return s.snap.Descriptions[c][index]
}

// rebuildDescriptions fills unlabelled columns with the first non-empty description
// found at that position. Labels already cached win over student data.
func (s *Sheet) rebuildDescriptions() {
	for _, c := range models.Competencies {
		cache := s.snap.Descriptions[c]
		for i := range s.snap.Students {
			for idx, entry := range *s.snap.Students[i].Grades.Bucket(c) {
				if entry.Description != "" && cache[idx] == "" {
					cache[idx] = entry.Description
				}
			}
		}
	}
}

func (s *Sheet) ensureEditable() error {
	if !s.Editable() {
		return appErrors.Clone(appErrors.ErrSheetLocked, "no achievement indicators are defined for this assignment and period")
	}
	return nil
}

func (s *Sheet) touch() {
	s.snap.Revision++
	s.snap.Status = models.SheetStatusPending
}

// AddColumn appends a blank entry to every student's bucket. An empty roster is left
// untouched.
func (s *Sheet) AddColumn(c models.Competency) error {
	if err := s.ensureEditable(); err != nil {
		return err
	}
	if len(s.snap.Students) == 0 {
		return nil
	}
	for i := range s.snap.Students {
		bucket := s.snap.Students[i].Grades.Bucket(c)
		*bucket = append(*bucket, models.GradeEntry{})
	}
	s.rebuildDescriptions()
	s.touch()
	return nil
}

// CanRemoveColumn reports whether the competency has entry columns above the floor.
func (s *Sheet) CanRemoveColumn(c models.Competency) bool {
	return s.entryCount(c) > s.snap.Options.ColumnFloor
}

// RemoveColumn drops the last entry of every non-empty bucket, together with the
// description of the removed column. It undoes AddColumn exactly.
func (s *Sheet) RemoveColumn(c models.Competency) error {
	if err := s.ensureEditable(); err != nil {
		return err
	}
	if !s.CanRemoveColumn(c) {
		return appErrors.Clone(appErrors.ErrConflict, "the competency is already at its minimum number of columns")
	}
	removed := s.entryCount(c) - 1
	for i := range s.snap.Students {
		bucket := s.snap.Students[i].Grades.Bucket(c)
		if len(*bucket) > 0 {
			*bucket = (*bucket)[:len(*bucket)-1]
		}
	}
	delete(s.snap.Descriptions[c], removed)
	s.rebuildDescriptions()
	s.touch()
	return nil
}

// SetColumnDescription overwrites the shared label of a column.
func (s *Sheet) SetColumnDescription(c models.Competency, index int, text string) error {
	if err := s.ensureEditable(); err != nil {
		return err
	}
	if index < 0 || index >= s.ColumnCount(c) {
		return appErrors.Clone(appErrors.ErrValidation, "column index out of range")
	}
	s.snap.Descriptions[c][index] = strings.TrimSpace(text)
	s.touch()
	return nil
}

// StudentIndex returns the row position of a student.
func (s *Sheet) StudentIndex(studentID string) (int, error) {
	for i := range s.snap.Students {
		if s.snap.Students[i].ID == studentID {
			return i, nil
		}
	}
	return -1, appErrors.Clone(appErrors.ErrNotFound, "student not found in sheet")
}

// SetEntryValue stores raw text for a grade cell. Entries between the end of a short
// bucket and index are materialised blank, mirroring the padded table row.
func (s *Sheet) SetEntryValue(studentID string, c models.Competency, index int, raw string) (int, error) {
	if err := s.ensureEditable(); err != nil {
		return -1, err
	}
	row, err := s.StudentIndex(studentID)
	if err != nil {
		return -1, err
	}
	if err := s.setValueAt(row, c, index, raw); err != nil {
		return -1, err
	}
	s.touch()
	return row, nil
}

func (s *Sheet) setValueAt(row int, c models.Competency, index int, raw string) error {
	if index < 0 || index >= s.ColumnCount(c) {
		return appErrors.Clone(appErrors.ErrValidation, "column index out of range")
	}
	bucket := s.snap.Students[row].Grades.Bucket(c)
	for len(*bucket) <= index {
		*bucket = append(*bucket, models.GradeEntry{})
	}
	(*bucket)[index].Value = models.GradeValue(raw)
	return nil
}

func (s *Sheet) valueAt(row int, c models.Competency, index int) string {
	bucket := *s.snap.Students[row].Grades.Bucket(c)
	if index < len(bucket) {
		return string(bucket[index].Value)
	}
	return ""
}

// CommitEntry is the blur-time normalisation. With clamping enabled numeric text is
// clamped into [1.0, 5.0] and reformatted to one decimal; other text is kept as typed.
func (s *Sheet) CommitEntry(studentID string, c models.Competency, index int) (int, error) {
	if err := s.ensureEditable(); err != nil {
		return -1, err
	}
	row, err := s.StudentIndex(studentID)
	if err != nil {
		return -1, err
	}
	if !s.snap.Options.ClampOnCommit {
		return row, nil
	}
	raw := s.valueAt(row, c, index)
	d, ok := ParseGrade(raw)
	if !ok {
		return row, nil
	}
	if d.LessThan(minGrade) {
		d = minGrade
	}
	if d.GreaterThan(maxGrade) {
		d = maxGrade
	}
	formatted := Round1(d).StringFixed(1)
	if formatted != raw {
		if err := s.setValueAt(row, c, index, formatted); err != nil {
			return -1, err
		}
		s.touch()
	}
	return row, nil
}

// SetAttendance stores an absence count.
func (s *Sheet) SetAttendance(studentID string, count int) (int, error) {
	if err := s.ensureEditable(); err != nil {
		return -1, err
	}
	if count < 0 {
		return -1, appErrors.Clone(appErrors.ErrValidation, "attendance count cannot be negative")
	}
	row, err := s.StudentIndex(studentID)
	if err != nil {
		return -1, err
	}
	s.snap.Students[row].Attendance = models.Attendance(count)
	s.touch()
	return row, nil
}

// ParseAttendance accepts the integer-like text of the attendance control.
func ParseAttendance(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, "attendance must be a non-negative integer")
	}
	return n, nil
}

// SetWeights replaces editable competency weights. Sums other than 100 are stored so the
// user can keep typing, but they block saving.
func (s *Sheet) SetWeights(w models.Weights) error {
	if err := s.ensureEditable(); err != nil {
		return err
	}
	if !s.snap.Context.WeightsEditable {
		return appErrors.Clone(appErrors.ErrForbidden, "competency weights are fixed for this assignment")
	}
	if w.Ser < 0 || w.Saber < 0 || w.Hacer < 0 {
		return appErrors.Clone(appErrors.ErrInvalidWeights, "weights cannot be negative")
	}
	s.snap.Weights = w
	s.touch()
	return nil
}

// MarkPending flags unsaved changes without a model edit.
func (s *Sheet) MarkPending() { s.touch() }

// BeginSave flips the in-flight flag used to disable saving.
func (s *Sheet) BeginSave() { s.snap.Saving = true }

// FinishSave records the outcome of a save started at revision startedAt.
// Edits made while the request was in flight keep the sheet pending.
func (s *Sheet) FinishSave(startedAt int64, ok bool) {
	s.snap.Saving = false
	switch {
	case !ok:
		s.snap.Status = models.SheetStatusError
	case s.snap.Revision == startedAt:
		s.snap.Status = models.SheetStatusSaved
	default:
		s.snap.Status = models.SheetStatusPending
	}
}

// Syncing reports whether an attendance sync is running for a student.
func (s *Sheet) Syncing(studentID string) bool { return s.snap.Syncing[studentID] }

// SetSyncing toggles the per-student attendance sync flag.
func (s *Sheet) SetSyncing(studentID string, on bool) {
	if on {
		if s.snap.Syncing == nil {
			s.snap.Syncing = make(map[string]bool)
		}
		s.snap.Syncing[studentID] = true
		return
	}
	delete(s.snap.Syncing, studentID)
}

// SetIdentity assigns the session id and owner.
func (s *Sheet) SetIdentity(id, ownerID string) {
	s.snap.ID = id
	s.snap.OwnerID = ownerID
}

// OwnerID returns the user that opened the session.
func (s *Sheet) OwnerID() string { return s.snap.OwnerID }
