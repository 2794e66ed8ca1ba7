package sheet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gradesheet-api/internal/models"
)

func TestRenderIsIdempotent(t *testing.T) {
	s := loadTestSheet(t, models.SheetOptions{})
	assert.Equal(t, Render(s), Render(s))
}

func TestRenderHeaders(t *testing.T) {
	s := loadTestSheet(t, models.SheetOptions{})
	view := Render(s)
	require.Len(t, view.Groups, 3)
	assert.Equal(t, "SER (30%)", view.Groups[0].Label)
	assert.Equal(t, "SABER (40%)", view.Groups[1].Label)
	require.Len(t, view.Groups[1].Columns, 2)
	assert.Equal(t, "n2", view.Groups[1].Columns[1].Title)
	assert.Equal(t, "Quiz", view.Groups[1].Columns[1].Description)
	assert.True(t, view.Groups[0].CanAdd)

	ctx := testContext()
	ctx.EqualWeighting = true
	equal := Load(ctx, models.SheetOptions{}, nil, testWeights(), nil)
	assert.Equal(t, "HACER", Render(equal).Groups[2].Label)
}

func TestRenderRowLayout(t *testing.T) {
	s := loadTestSheet(t, models.SheetOptions{})
	view := Render(s)
	require.Len(t, view.Rows, 4)

	// index, name, ser(1)+avg, saber(2)+avg, hacer(1)+avg, final, attendance
	row := view.Rows[0]
	require.Len(t, row.Cells, 11)
	assert.Equal(t, "11", row.StudentID)
	assert.Equal(t, "1", row.Cells[0].Text)
	assert.Equal(t, "Ana Gómez", row.Cells[1].Text)
	assert.Equal(t, models.CellAverage, row.Cells[3].Kind)
	assert.Equal(t, "4.0", row.Cells[3].Text)
	assert.Equal(t, "4,5", row.Cells[5].Text)
	assert.Equal(t, "4.0", row.Cells[6].Text)
	assert.Equal(t, "0.0", row.Cells[8].Text)
	assert.Equal(t, models.CellFinal, row.Cells[9].Kind)
	// 4.0*0.3 + 4.0*0.4 + 0.0*0.3
	assert.Equal(t, "2.8", row.Cells[9].Text)
	assert.Equal(t, "nota-roja", row.Cells[9].Class)
	assert.Equal(t, "2", row.Cells[10].Text)

	// short buckets are padded with blank grade cells
	carla := view.Rows[2]
	assert.Equal(t, models.CellGrade, carla.Cells[5].Kind)
	assert.Equal(t, "", carla.Cells[5].Text)
}

func TestRenderNotApplicablePolicy(t *testing.T) {
	s := loadTestSheet(t, models.SheetOptions{EmptyAverage: models.EmptyAverageNotApplicable})
	row := Render(s).Rows[0]
	assert.Equal(t, models.NotApplicable, row.Cells[8].Text)
	assert.Equal(t, models.NotApplicable, row.Cells[9].Text)
	assert.Equal(t, "nota-na", row.Cells[9].Class)
}

func TestRenderEmptyRoster(t *testing.T) {
	s := Load(testContext(), models.SheetOptions{}, nil, testWeights(), nil)
	view := Render(s)
	require.Len(t, view.Rows, 1)
	require.Len(t, view.Rows[0].Cells, 1)
	cell := view.Rows[0].Cells[0]
	assert.Equal(t, models.CellMessage, cell.Kind)
	assert.Equal(t, emptyRosterNotice, cell.Text)
	assert.Equal(t, 10, cell.Span)
	for _, c := range models.Competencies {
		assert.Equal(t, 1, view.ColumnCount[c])
	}
}

func TestRenderLockedSheet(t *testing.T) {
	ctx := testContext()
	ctx.IndicatorsDefined = false
	s, err := LoadJSON(ctx, models.SheetOptions{}, []byte(rosterJSON), testWeights(), nil)
	require.NoError(t, err)
	view := Render(s)
	assert.False(t, view.Editable)
	assert.Equal(t, lockedNotice, view.Notice)
	assert.False(t, view.Groups[0].CanAdd)
	for _, cell := range view.Rows[0].Cells {
		assert.False(t, cell.Editable)
	}
}

func TestRenderDecimalComma(t *testing.T) {
	s := loadTestSheet(t, models.SheetOptions{DecimalComma: true})
	row := Render(s).Rows[0]
	assert.Equal(t, "4,0", row.Cells[3].Text)
	assert.Equal(t, "2,8", row.Cells[9].Text)
}

func TestCellOffset(t *testing.T) {
	s := loadTestSheet(t, models.SheetOptions{})
	view := Render(s)
	cases := []struct {
		c      models.Competency
		column int
		want   int
	}{
		{models.CompetencySer, 0, 2},
		{models.CompetencySaber, 0, 4},
		{models.CompetencySaber, 1, 5},
		{models.CompetencyHacer, 0, 7},
	}
	for _, tc := range cases {
		got, ok := CellOffset(view, tc.c, tc.column)
		require.True(t, ok)
		assert.Equal(t, tc.want, got)
		assert.Equal(t, models.CellGrade, view.Rows[0].Cells[got].Kind)
	}
	_, ok := CellOffset(view, models.CompetencySaber, 2)
	assert.False(t, ok)
}
