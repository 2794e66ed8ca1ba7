package sheet

import (
	"fmt"

	"github.com/noah-isme/gradesheet-api/internal/dto"
	"github.com/noah-isme/gradesheet-api/internal/models"
)

// Reasons that keep the save control disabled.
const (
	BlockerPeriodClosed  = "period_closed"
	BlockerNoIndicators  = "no_indicators"
	BlockerInvalidWeight = "weights_not_100"
	BlockerNothingToSave = "no_pending_changes"
	BlockerSaveInFlight  = "save_in_progress"
)

// SaveBlockers lists every precondition currently preventing a save.
func (s *Sheet) SaveBlockers() []string {
	var blockers []string
	if s.snap.Context.PeriodClosed {
		blockers = append(blockers, BlockerPeriodClosed)
	}
	if !s.snap.Context.IndicatorsDefined {
		blockers = append(blockers, BlockerNoIndicators)
	}
	if s.snap.Context.WeightsEditable && !WeightsSumTo100(s.snap.Weights) {
		blockers = append(blockers, BlockerInvalidWeight)
	}
	if s.snap.Status == models.SheetStatusSaved {
		blockers = append(blockers, BlockerNothingToSave)
	}
	if s.snap.Saving {
		blockers = append(blockers, BlockerSaveInFlight)
	}
	return blockers
}

// State summarises status and save availability.
func (s *Sheet) State() models.SheetState {
	blockers := s.SaveBlockers()
	return models.SheetState{
		Status:       s.snap.Status,
		Revision:     s.snap.Revision,
		CanSave:      len(blockers) == 0,
		SaveBlockers: blockers,
		Saving:       s.snap.Saving,
	}
}

// Payload serialises the complete sheet into the save request body. Blank cells are
// omitted; cells whose text is not a grade in [1.0, 5.0] are left out and reported.
func (s *Sheet) Payload() (dto.SaveSheetRequest, []dto.SkippedCell) {
	req := dto.SaveSheetRequest{
		AssignmentID: s.snap.Context.AssignmentID,
		PeriodID:     s.snap.Context.PeriodID,
		Students:     make([]dto.SaveStudent, 0, len(s.snap.Students)),
	}
	if s.snap.Context.WeightsEditable {
		w := s.snap.Weights
		req.Weights = &w
	}

	var skipped []dto.SkippedCell
	for row := range s.snap.Students {
		student := s.snap.Students[row]
		out := dto.SaveStudent{
			ID:         student.ID,
			Attendance: int(student.Attendance),
			Grades: dto.SaveGrades{
				Ser:   []dto.SaveGrade{},
				Saber: []dto.SaveGrade{},
				Hacer: []dto.SaveGrade{},
			},
		}
		for _, c := range models.Competencies {
			bucket := out.Grades.Bucket(c)
			for i := 0; i < s.ColumnCount(c); i++ {
				value := NormalizeGradeText(s.valueAt(row, c, i))
				if value == "" {
					continue
				}
				if _, ok := ValidGrade(value); !ok {
					skipped = append(skipped, dto.SkippedCell{StudentID: student.ID, Competency: c, Column: i, Value: value})
					continue
				}
				desc := s.Description(c, i)
				if desc == "" {
					desc = fmt.Sprintf("Nota %d", i+1)
				}
				*bucket = append(*bucket, dto.SaveGrade{Description: desc, Value: value})
			}
		}
		req.Students = append(req.Students, out)
	}
	return req, skipped
}
