package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Competency identifies one of the three graded dimensions of a period grade.
type Competency string

const (
	// CompetencySer is the "being" dimension.
	CompetencySer Competency = "ser"
	// CompetencySaber is the "knowing" dimension.
	CompetencySaber Competency = "saber"
	// CompetencyHacer is the "doing" dimension.
	CompetencyHacer Competency = "hacer"
)

// Competencies lists the graded dimensions in display order.
var Competencies = []Competency{CompetencySer, CompetencySaber, CompetencyHacer}

// ParseCompetency normalises a path/query value into a Competency.
func ParseCompetency(raw string) (Competency, bool) {
	c := Competency(strings.ToLower(strings.TrimSpace(raw)))
	switch c {
	case CompetencySer, CompetencySaber, CompetencyHacer:
		return c, true
	}
	return "", false
}

// GradeValue keeps the raw text typed for a grade. Numeric interpretation happens at read time.
type GradeValue string

// UnmarshalJSON accepts strings, numbers and null.
func (v *GradeValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = GradeValue(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("grade value must be a string or number: %w", err)
	}
	*v = GradeValue(n.String())
	return nil
}

// GradeEntry is one graded item inside a competency bucket.
type GradeEntry struct {
	Value       GradeValue `json:"valor"`
	Description string     `json:"descripcion"`
}

// StudentGrades holds the three ordered competency buckets of a student.
type StudentGrades struct {
	Ser   []GradeEntry `json:"ser"`
	Saber []GradeEntry `json:"saber"`
	Hacer []GradeEntry `json:"hacer"`
}

// Bucket returns a pointer to the bucket of the given competency.
func (g *StudentGrades) Bucket(c Competency) *[]GradeEntry {
	switch c {
	case CompetencySaber:
		return &g.Saber
	case CompetencyHacer:
		return &g.Hacer
	default:
		return &g.Ser
	}
}

// Attendance is a non-negative absence count. It decodes from numbers, numeric strings or null.
type Attendance int

// UnmarshalJSON accepts numbers, numeric strings and null.
func (a *Attendance) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*a = 0
		return nil
	}
	raw := string(data)
	if data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		*a = 0
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		f, ferr := strconv.ParseFloat(raw, 64)
		if ferr != nil {
			return fmt.Errorf("invalid attendance count %q", raw)
		}
		n = int(f)
	}
	if n < 0 {
		return fmt.Errorf("attendance count cannot be negative")
	}
	*a = Attendance(n)
	return nil
}

// Student is a graded row of the sheet.
type Student struct {
	ID         string        `json:"id"`
	FullName   string        `json:"nombre_completo"`
	Grades     StudentGrades `json:"notas"`
	Attendance Attendance    `json:"inasistencias"`
}

// UnmarshalJSON accepts numeric or string student ids.
func (s *Student) UnmarshalJSON(data []byte) error {
	type plain Student
	var aux struct {
		plain
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*s = Student(aux.plain)
	id := bytes.TrimSpace(aux.ID)
	switch {
	case len(id) == 0 || bytes.Equal(id, []byte("null")):
		s.ID = ""
	case id[0] == '"':
		if err := json.Unmarshal(id, &s.ID); err != nil {
			return err
		}
	default:
		var n json.Number
		if err := json.Unmarshal(id, &n); err != nil {
			return fmt.Errorf("student id must be a string or number: %w", err)
		}
		s.ID = n.String()
	}
	return nil
}

// PerformanceBand maps an inclusive score range to a performance label.
type PerformanceBand struct {
	Min   float64 `json:"valor_minimo"`
	Max   float64 `json:"valor_maximo"`
	Label string  `json:"nombre_desempeno"`
}

// Weights carries the competency percentages used by the final score.
type Weights struct {
	Ser   float64 `json:"ser"`
	Saber float64 `json:"saber"`
	Hacer float64 `json:"hacer"`
}

// Of returns the weight of a competency.
func (w Weights) Of(c Competency) float64 {
	switch c {
	case CompetencySaber:
		return w.Saber
	case CompetencyHacer:
		return w.Hacer
	default:
		return w.Ser
	}
}

// EmptyAveragePolicy decides how a competency without valid grades is reported.
type EmptyAveragePolicy string

const (
	// EmptyAverageZero reports 0.0 and lets it contribute to the final score.
	EmptyAverageZero EmptyAveragePolicy = "zero"
	// EmptyAverageNotApplicable reports N/A and withholds the final score.
	EmptyAverageNotApplicable EmptyAveragePolicy = "na"
)

// SheetOptions are the per-deployment behaviour switches of a grade sheet.
type SheetOptions struct {
	EmptyAverage  EmptyAveragePolicy `json:"empty_average"`
	ColumnFloor   int                `json:"column_floor"`
	ClampOnCommit bool               `json:"clamp_on_commit"`
	DecimalComma  bool               `json:"decimal_comma"`
}

// SheetContext describes the assignment a sheet belongs to and the page-level flags around it.
type SheetContext struct {
	AssignmentID      string `json:"asignacion_id" validate:"required"`
	PeriodID          string `json:"periodo_id" validate:"required"`
	IndicatorsDefined bool   `json:"hay_indicadores"`
	PeriodClosed      bool   `json:"periodo_cerrado"`
	EqualWeighting    bool   `json:"usar_ponderacion_equitativa"`
	WeightsEditable   bool   `json:"porcentajes_editables"`
	CSRFToken         string `json:"csrf_token,omitempty"`
	BackendCookie     string `json:"backend_cookie,omitempty"`
}

// SheetStatus is the unsaved-changes indicator.
type SheetStatus string

const (
	SheetStatusSaved   SheetStatus = "saved"
	SheetStatusPending SheetStatus = "pending"
	SheetStatusError   SheetStatus = "error"
)

// SheetSnapshot is the serialisable state of an editing session.
type SheetSnapshot struct {
	ID           string                       `json:"id"`
	OwnerID      string                       `json:"owner_id"`
	Context      SheetContext                 `json:"context"`
	Options      SheetOptions                 `json:"options"`
	Students     []Student                    `json:"students"`
	Descriptions map[Competency]map[int]string `json:"descriptions"`
	Weights      Weights                      `json:"weights"`
	Scale        []PerformanceBand            `json:"scale,omitempty"`
	Status       SheetStatus                  `json:"status"`
	Revision     int64                        `json:"revision"`
	Saving       bool                         `json:"saving"`
	Syncing      map[string]bool              `json:"syncing,omitempty"`
}
