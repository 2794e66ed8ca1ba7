package models

// CellKind classifies a cell of the rendered grade table.
type CellKind string

const (
	CellIndex      CellKind = "index"
	CellName       CellKind = "name"
	CellGrade      CellKind = "grade"
	CellAverage    CellKind = "average"
	CellFinal      CellKind = "final"
	CellAttendance CellKind = "attendance"
	CellMessage    CellKind = "message"
)

// NotApplicable marks an aggregate that could not be computed.
const NotApplicable = "N/A"

// ViewCell is one cell of a rendered row.
type ViewCell struct {
	Kind       CellKind   `json:"kind"`
	Competency Competency `json:"competency,omitempty"`
	Column     int        `json:"column"`
	Text       string     `json:"text"`
	Class      string     `json:"class,omitempty"`
	Editable   bool       `json:"editable"`
	Span       int        `json:"span,omitempty"`
}

// ViewRow is a rendered student row, or the placeholder row of an empty sheet.
type ViewRow struct {
	StudentID string     `json:"student_id,omitempty"`
	Cells     []ViewCell `json:"cells"`
}

// ColumnHeader labels one grade-entry column.
type ColumnHeader struct {
	Competency  Competency `json:"competency"`
	Index       int        `json:"index"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
}

// CompetencyHeader is the grouped header above a competency's columns.
type CompetencyHeader struct {
	Competency Competency     `json:"competency"`
	Label      string         `json:"label"`
	Columns    []ColumnHeader `json:"columns"`
	CanAdd     bool           `json:"can_add"`
	CanRemove  bool           `json:"can_remove"`
}

// SheetView is the tabular projection of a grade sheet.
type SheetView struct {
	Groups      []CompetencyHeader `json:"groups"`
	ColumnCount map[Competency]int `json:"column_count"`
	Rows        []ViewRow          `json:"rows"`
	Editable    bool               `json:"editable"`
	Notice      string             `json:"notice,omitempty"`
}

// RowSummary carries the recomputed aggregates of a single row.
type RowSummary struct {
	Row        int                   `json:"row"`
	StudentID  string                `json:"student_id"`
	Averages   map[Competency]string `json:"averages"`
	Final      string                `json:"final"`
	FinalClass string                `json:"final_class"`
	Band       string                `json:"band"`
}

// SheetState summarises the control state exposed to clients next to a view.
type SheetState struct {
	Status       SheetStatus `json:"status"`
	Revision     int64       `json:"revision"`
	CanSave      bool        `json:"can_save"`
	SaveBlockers []string    `json:"save_blockers,omitempty"`
	Saving       bool        `json:"saving"`
}
