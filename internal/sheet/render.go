package sheet

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/noah-isme/gradesheet-api/internal/models"
)

const (
	emptyRosterNotice = "No hay estudiantes en este curso."
	lockedNotice      = "No se pueden ingresar calificaciones porque no ha definido ningún indicador de logro para esta asignación en este periodo."
)

// Render projects the sheet into a table. It is a pure function of the sheet state, so
// rendering the same state twice yields identical views.
func Render(s *Sheet) models.SheetView {
	editable := s.Editable()
	view := models.SheetView{
		ColumnCount: make(map[models.Competency]int, len(models.Competencies)),
		Editable:    editable,
	}
	if !editable {
		view.Notice = lockedNotice
	}

	totalColumns := 4
	for _, c := range models.Competencies {
		count := s.ColumnCount(c)
		view.ColumnCount[c] = count
		totalColumns += count + 1

		group := models.CompetencyHeader{
			Competency: c,
			Label:      groupLabel(s, c),
			Columns:    make([]models.ColumnHeader, 0, count),
			CanAdd:     editable && len(s.snap.Students) > 0,
			CanRemove:  editable && s.CanRemoveColumn(c),
		}
		for i := 0; i < count; i++ {
			group.Columns = append(group.Columns, models.ColumnHeader{
				Competency:  c,
				Index:       i,
				Title:       columnTitle(i),
				Description: s.Description(c, i),
			})
		}
		view.Groups = append(view.Groups, group)
	}

	if len(s.snap.Students) == 0 {
		view.Rows = []models.ViewRow{{Cells: []models.ViewCell{{
			Kind: models.CellMessage,
			Text: emptyRosterNotice,
			Span: totalColumns,
		}}}}
		return view
	}

	view.Rows = make([]models.ViewRow, 0, len(s.snap.Students))
	for i := range s.snap.Students {
		view.Rows = append(view.Rows, renderRow(s, i, view.ColumnCount, editable))
	}
	return view
}

func groupLabel(s *Sheet, c models.Competency) string {
	label := strings.ToUpper(string(c))
	if s.snap.Context.EqualWeighting {
		return label
	}
	return fmt.Sprintf("%s (%s%%)", label, strconv.FormatFloat(s.snap.Weights.Of(c), 'f', -1, 64))
}

func columnTitle(i int) string {
	return "n" + strconv.Itoa(i+1)
}

func renderRow(s *Sheet, row int, counts map[models.Competency]int, editable bool) models.ViewRow {
	student := s.snap.Students[row]
	summary := s.RowSummary(row)

	cells := []models.ViewCell{
		{Kind: models.CellIndex, Text: strconv.Itoa(row + 1)},
		{Kind: models.CellName, Text: student.FullName},
	}
	for _, c := range models.Competencies {
		for i := 0; i < counts[c]; i++ {
			cells = append(cells, models.ViewCell{
				Kind:       models.CellGrade,
				Competency: c,
				Column:     i,
				Text:       s.valueAt(row, c, i),
				Editable:   editable,
			})
		}
		cells = append(cells, models.ViewCell{
			Kind:       models.CellAverage,
			Competency: c,
			Text:       summary.Averages[c],
		})
	}
	cells = append(cells,
		models.ViewCell{Kind: models.CellFinal, Text: summary.Final, Class: summary.FinalClass},
		models.ViewCell{Kind: models.CellAttendance, Text: strconv.Itoa(int(student.Attendance)), Editable: editable},
	)
	return models.ViewRow{StudentID: student.ID, Cells: cells}
}

// RowSummary recomputes the aggregates of one row without rendering the table.
func (s *Sheet) RowSummary(row int) models.RowSummary {
	student := s.snap.Students[row]
	averages := make(map[models.Competency]Score, len(models.Competencies))
	texts := make(map[models.Competency]string, len(models.Competencies))
	for _, c := range models.Competencies {
		avg := Average(*student.Grades.Bucket(c), s.snap.Options.EmptyAverage)
		averages[c] = avg
		texts[c] = FormatScore(avg, s.snap.Options.DecimalComma)
	}
	final := FinalScore(averages, s.snap.Weights, s.snap.Context.EqualWeighting)
	band := Classify(final, s.snap.Scale)
	return models.RowSummary{
		Row:        row,
		StudentID:  student.ID,
		Averages:   texts,
		Final:      FormatScore(final, s.snap.Options.DecimalComma),
		FinalClass: band.Class,
		Band:       band.Label,
	}
}

// CellOffset returns the position of a grade cell inside a rendered row.
func CellOffset(view models.SheetView, c models.Competency, column int) (int, bool) {
	offset := 2
	for _, comp := range models.Competencies {
		count := view.ColumnCount[comp]
		if comp == c {
			if column < 0 || column >= count {
				return 0, false
			}
			return offset + column, true
		}
		offset += count + 1
	}
	return 0, false
}
