package sheet

import (
	"regexp"
	"strings"

	"github.com/noah-isme/gradesheet-api/internal/models"
	appErrors "github.com/noah-isme/gradesheet-api/pkg/errors"
)

var lineBreak = regexp.MustCompile(`\r\n|\n|\r`)

// PasteResult reports what a paste changed.
type PasteResult struct {
	CellsWritten int                 `json:"cells_written"`
	Rows         []models.RowSummary `json:"rows"`
}

// ParseGrid splits clipboard text into rows on line breaks and cells on tabs. The single
// trailing line break spreadsheets append to a copied block does not produce a row.
func ParseGrid(text string) [][]string {
	lines := lineBreak.Split(text, -1)
	if len(lines) > 1 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	grid := make([][]string, len(lines))
	for i, line := range lines {
		grid[i] = strings.Split(line, "\t")
	}
	return grid
}

// Paste writes a clipboard grid into the grade cells of view, anchored at the given
// row and cell position. Positions beyond the last row or the last cell of a row are
// dropped, and only grade cells are written. Rows that received a value get their
// aggregates recomputed.
func (s *Sheet) Paste(view models.SheetView, anchorRow, anchorCell int, text string) (PasteResult, error) {
	if err := s.ensureEditable(); err != nil {
		return PasteResult{}, err
	}
	if len(s.snap.Students) == 0 || anchorRow < 0 || anchorRow >= len(view.Rows) {
		return PasteResult{}, appErrors.Clone(appErrors.ErrValidation, "paste anchor is not a grade cell")
	}
	anchor := view.Rows[anchorRow].Cells
	if anchorCell < 0 || anchorCell >= len(anchor) || anchor[anchorCell].Kind != models.CellGrade {
		return PasteResult{}, appErrors.Clone(appErrors.ErrValidation, "paste anchor is not a grade cell")
	}

	result := PasteResult{}
	touched := make([]int, 0)
	for r, cells := range ParseGrid(text) {
		rowIdx := anchorRow + r
		if rowIdx >= len(view.Rows) {
			break
		}
		row := view.Rows[rowIdx]
		studentRow, err := s.StudentIndex(row.StudentID)
		if err != nil {
			continue
		}
		written := false
		for c, value := range cells {
			cellIdx := anchorCell + c
			if cellIdx >= len(row.Cells) {
				break
			}
			target := row.Cells[cellIdx]
			if target.Kind != models.CellGrade {
				continue
			}
			if err := s.setValueAt(studentRow, target.Competency, target.Column, NormalizeGradeText(value)); err != nil {
				return PasteResult{}, err
			}
			result.CellsWritten++
			written = true
		}
		if written {
			touched = append(touched, studentRow)
		}
	}

	for _, row := range touched {
		result.Rows = append(result.Rows, s.RowSummary(row))
	}
	if len(touched) > 0 {
		s.touch()
	}
	return result, nil
}
