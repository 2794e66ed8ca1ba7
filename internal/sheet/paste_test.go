package sheet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gradesheet-api/internal/models"
)

func TestParseGrid(t *testing.T) {
	assert.Equal(t, [][]string{{"3.5"}, {"4,0"}}, ParseGrid("3.5\n4,0"))
	assert.Equal(t, [][]string{{"1", "2"}, {"3", "4"}}, ParseGrid("1\t2\r\n3\t4\r\n"))
	assert.Equal(t, [][]string{{"1"}, {"2"}, {"3"}}, ParseGrid("1\r2\n3"))
	assert.Equal(t, [][]string{{""}}, ParseGrid(""))
	assert.Equal(t, [][]string{{"1"}, {""}}, ParseGrid("1\n\n"))
}

func TestPasteColumnDown(t *testing.T) {
	s := loadTestSheet(t, models.SheetOptions{})
	view := Render(s)
	cell, ok := CellOffset(view, models.CompetencySaber, 0)
	require.True(t, ok)

	res, err := s.Paste(view, 0, cell, "3.5\n4,0")
	require.NoError(t, err)
	assert.Equal(t, 2, res.CellsWritten)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, models.GradeValue("3.5"), s.Students()[0].Grades.Saber[0].Value)
	assert.Equal(t, models.GradeValue("4.0"), s.Students()[1].Grades.Saber[0].Value)
	assert.Equal(t, "11", res.Rows[0].StudentID)
	assert.Equal(t, "4.0", res.Rows[1].Averages[models.CompetencySaber])
	assert.Equal(t, models.SheetStatusPending, s.Status())
}

func TestPasteSkipsNonGradeCellsAndDropsOverflow(t *testing.T) {
	s := loadTestSheet(t, models.SheetOptions{})
	view := Render(s)
	cell, ok := CellOffset(view, models.CompetencySer, 0)
	require.True(t, ok)

	// ser n1, ser average, saber n1, saber n2, saber average
	res, err := s.Paste(view, 2, cell, "4.1\t9.9\t3.2\t2.8\t7.7\n5\n1\n2")
	require.NoError(t, err)
	assert.Equal(t, 4, res.CellsWritten)
	require.Len(t, res.Rows, 2)

	carla := s.Students()[2]
	assert.Equal(t, models.GradeValue("4.1"), carla.Grades.Ser[0].Value)
	assert.Equal(t, models.GradeValue("3.2"), carla.Grades.Saber[0].Value)
	assert.Equal(t, models.GradeValue("2.8"), carla.Grades.Saber[1].Value)
	assert.Equal(t, models.GradeValue("5"), s.Students()[3].Grades.Ser[0].Value)
}

func TestPasteStopsAtLastRow(t *testing.T) {
	s := loadTestSheet(t, models.SheetOptions{})
	view := Render(s)
	attendance := len(view.Rows[0].Cells) - 1
	_, err := s.Paste(view, 0, attendance, "1")
	require.Error(t, err)

	cell, _ := CellOffset(view, models.CompetencyHacer, 0)
	res, err := s.Paste(view, 3, cell, "4.2\t4.8\n3\n3")
	require.NoError(t, err)
	// hacer n1, then hacer average, final, attendance are not grade cells
	assert.Equal(t, 1, res.CellsWritten)
	assert.Len(t, res.Rows, 1)
}

func TestPasteOnlyRecomputesWrittenRows(t *testing.T) {
	s := loadTestSheet(t, models.SheetOptions{})
	view := Render(s)
	cell, ok := CellOffset(view, models.CompetencyHacer, 0)
	require.True(t, ok)
	view.Rows[1].Cells[cell].Kind = models.CellAverage

	res, err := s.Paste(view, 0, cell, "4\n5")
	require.NoError(t, err)
	assert.Equal(t, 1, res.CellsWritten)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "11", res.Rows[0].StudentID)
	assert.Equal(t, models.GradeValue("3.0"), s.Students()[1].Grades.Hacer[0].Value)
}

func TestPasteRejectsBadAnchor(t *testing.T) {
	s := loadTestSheet(t, models.SheetOptions{})
	view := Render(s)
	_, err := s.Paste(view, 0, 1, "4")
	require.Error(t, err)
	_, err = s.Paste(view, 9, 2, "4")
	require.Error(t, err)
	assert.Equal(t, models.SheetStatusSaved, s.Status())
}

func TestPasteEmptyRoster(t *testing.T) {
	s := Load(testContext(), models.SheetOptions{}, nil, testWeights(), nil)
	_, err := s.Paste(Render(s), 0, 0, "4")
	require.Error(t, err)
}
