package sheet

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/noah-isme/gradesheet-api/internal/models"
)

var tableTemplate = template.Must(template.New("table").Funcs(template.FuncMap{
	"inc": func(n int) int { return n + 1 },
}).Parse(`<thead class="table-light"><tr><th rowspan="2" class="text-center align-middle">#</th><th rowspan="2" class="align-middle">Estudiante</th>
{{- range .Groups}}<th colspan="{{inc (len .Columns)}}" class="text-center comp-{{.Competency}}">{{.Label}} <button class="btn btn-outline-success btn-sm btn-add-col" data-tipo="{{.Competency}}" title="Añadir columna de nota"{{if not .CanAdd}} disabled{{end}}>+</button><button class="btn btn-outline-danger btn-sm btn-remove-col" data-tipo="{{.Competency}}" title="Quitar última columna"{{if not .CanRemove}} disabled{{end}}>-</button></th>{{end -}}
<th rowspan="2" class="text-center align-middle">Definitiva</th><th rowspan="2" class="text-center align-middle">Inasistencias</th></tr><tr>
{{- range .Groups}}{{range .Columns}}<th class="text-center th-nota" data-tipo="{{.Competency}}" data-col-index="{{.Index}}" title="Clic para describir esta columna"><span class="col-title">{{.Title}}</span><span class="col-desc">{{.Description}}</span></th>{{end}}<th class="text-center align-middle prom-header">Prom.</th>{{end -}}
</tr></thead><tbody>
{{- $editable := .Editable}}
{{- range .Rows}}<tr{{if .StudentID}} data-estudiante-id="{{.StudentID}}"{{end}}>
{{- range .Cells}}
{{- if eq .Kind "message"}}<td colspan="{{.Span}}" class="text-center text-muted py-4">{{.Text}}</td>
{{- else if eq .Kind "index"}}<td class="text-center align-middle">{{.Text}}</td>
{{- else if eq .Kind "name"}}<td class="align-middle">{{.Text}}</td>
{{- else if eq .Kind "grade"}}<td><input type="text" class="form-control form-control-sm input-nota" data-tipo="{{.Competency}}" data-col-index="{{.Column}}" value="{{.Text}}" inputmode="decimal"{{if not .Editable}} disabled{{end}}></td>
{{- else if eq .Kind "average"}}<td class="text-center align-middle fw-bold prom-celda" data-tipo="{{.Competency}}">{{.Text}}</td>
{{- else if eq .Kind "final"}}<td class="text-center align-middle fw-bolder def-celda {{.Class}}">{{.Text}}</td>
{{- else if eq .Kind "attendance"}}<td class="align-middle"><div class="input-group input-group-sm"><input type="number" class="form-control input-inasistencia" min="0" value="{{.Text}}"{{if not .Editable}} disabled{{end}}><button class="btn btn-outline-secondary sync-inasistencias" type="button" title="Sincronizar faltas automáticas"{{if not $editable}} disabled{{end}}><i class="fas fa-sync-alt"></i></button></div></td>
{{- end}}
{{- end}}</tr>
{{- end}}</tbody>`))

// RenderHTML writes the table markup of a view.
func RenderHTML(view models.SheetView) ([]byte, error) {
	var buf bytes.Buffer
	if err := tableTemplate.Execute(&buf, view); err != nil {
		return nil, fmt.Errorf("render grade table: %w", err)
	}
	return buf.Bytes(), nil
}
