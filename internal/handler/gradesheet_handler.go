package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/gradesheet-api/internal/dto"
	"github.com/noah-isme/gradesheet-api/internal/models"
	appErrors "github.com/noah-isme/gradesheet-api/pkg/errors"
	"github.com/noah-isme/gradesheet-api/pkg/response"
)

// CSRFHeader carries the backend's CSRF token when the open payload omits it.
const CSRFHeader = "X-CSRFToken"

type gradeSheetService interface {
	Open(ctx context.Context, actor models.Actor, req dto.OpenSheetRequest) (*dto.SheetResponse, error)
	Get(ctx context.Context, actor models.Actor, id string) (*dto.SheetResponse, error)
	Table(ctx context.Context, actor models.Actor, id string) ([]byte, error)
	Discard(ctx context.Context, actor models.Actor, id string) error
	AddColumn(ctx context.Context, actor models.Actor, id, competency string) (*dto.SheetResponse, error)
	RemoveColumn(ctx context.Context, actor models.Actor, id, competency string) (*dto.SheetResponse, error)
	SetDescription(ctx context.Context, actor models.Actor, id, competency string, index int, req dto.DescriptionRequest) (*dto.SheetResponse, error)
	SetEntry(ctx context.Context, actor models.Actor, id string, req dto.SetEntryRequest) (*dto.RowUpdateResponse, error)
	CommitEntry(ctx context.Context, actor models.Actor, id string, req dto.CommitEntryRequest) (*dto.RowUpdateResponse, error)
	SetAttendance(ctx context.Context, actor models.Actor, id, studentID string, req dto.AttendanceRequest) (*dto.RowUpdateResponse, error)
	SyncAttendance(ctx context.Context, actor models.Actor, id, studentID string) (*dto.AttendanceSyncResult, error)
	SetWeights(ctx context.Context, actor models.Actor, id string, req dto.WeightsRequest) (*dto.SheetResponse, error)
	Paste(ctx context.Context, actor models.Actor, id string, req dto.PasteRequest) (*dto.PasteResponse, error)
	Save(ctx context.Context, actor models.Actor, id string) (*dto.SaveResult, error)
	Export(ctx context.Context, actor models.Actor, id string, req dto.ExportRequest) (*dto.ExportLink, error)
}

// GradeSheetHandler exposes grade sheet editing sessions.
type GradeSheetHandler struct {
	sheets gradeSheetService
}

// NewGradeSheetHandler constructs handler.
func NewGradeSheetHandler(sheets gradeSheetService) *GradeSheetHandler {
	return &GradeSheetHandler{sheets: sheets}
}

func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return false
	}
	return true
}

// Open godoc
// @Summary Open a grade sheet session
// @Description Loads the page snapshot (context, roster, weights and performance scale) into a new editing session.
// @Tags GradeSheets
// @Accept json
// @Produce json
// @Param X-CSRFToken header string false "Backend CSRF token when absent from the payload"
// @Param payload body dto.OpenSheetRequest true "Sheet snapshot"
// @Success 201 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /sheets [post]
func (h *GradeSheetHandler) Open(c *gin.Context) {
	var req dto.OpenSheetRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Context.CSRFToken == "" {
		req.Context.CSRFToken = c.GetHeader(CSRFHeader)
	}
	if req.Context.BackendCookie == "" {
		req.Context.BackendCookie = c.GetHeader("Cookie")
	}
	res, err := h.sheets.Open(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

// Get godoc
// @Summary Get the rendered view of a session
// @Tags GradeSheets
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /sheets/{id} [get]
func (h *GradeSheetHandler) Get(c *gin.Context) {
	res, err := h.sheets.Get(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, res)
}

// Table godoc
// @Summary Render the grade table as HTML
// @Tags GradeSheets
// @Produce html
// @Param id path string true "Session ID"
// @Success 200 {string} string "HTML table fragment"
// @Router /sheets/{id}/table [get]
func (h *GradeSheetHandler) Table(c *gin.Context) {
	html, err := h.sheets.Table(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.HTML(c, html)
}

// Discard godoc
// @Summary Discard a session without saving
// @Tags GradeSheets
// @Param id path string true "Session ID"
// @Success 204
// @Router /sheets/{id} [delete]
func (h *GradeSheetHandler) Discard(c *gin.Context) {
	if err := h.sheets.Discard(c.Request.Context(), actorFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// AddColumn godoc
// @Summary Append a grade column to a competency
// @Tags GradeSheets
// @Produce json
// @Param id path string true "Session ID"
// @Param competency path string true "ser, saber or hacer"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sheets/{id}/columns/{competency} [post]
func (h *GradeSheetHandler) AddColumn(c *gin.Context) {
	res, err := h.sheets.AddColumn(c.Request.Context(), actorFromContext(c), c.Param("id"), c.Param("competency"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, res)
}

// RemoveColumn godoc
// @Summary Remove the last grade column of a competency
// @Tags GradeSheets
// @Produce json
// @Param id path string true "Session ID"
// @Param competency path string true "ser, saber or hacer"
// @Success 200 {object} response.Envelope
// @Router /sheets/{id}/columns/{competency} [delete]
func (h *GradeSheetHandler) RemoveColumn(c *gin.Context) {
	res, err := h.sheets.RemoveColumn(c.Request.Context(), actorFromContext(c), c.Param("id"), c.Param("competency"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, res)
}

// SetDescription godoc
// @Summary Relabel a grade column
// @Tags GradeSheets
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param competency path string true "ser, saber or hacer"
// @Param index path int true "Zero-based column index"
// @Param payload body dto.DescriptionRequest true "Description"
// @Success 200 {object} response.Envelope
// @Router /sheets/{id}/columns/{competency}/{index}/description [put]
func (h *GradeSheetHandler) SetDescription(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "column index must be a non-negative integer"))
		return
	}
	var req dto.DescriptionRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.sheets.SetDescription(c.Request.Context(), actorFromContext(c), c.Param("id"), c.Param("competency"), index, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, res)
}

// SetEntry godoc
// @Summary Edit the raw text of a grade cell
// @Tags GradeSheets
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.SetEntryRequest true "Cell edit"
// @Success 200 {object} response.Envelope
// @Router /sheets/{id}/entries [put]
func (h *GradeSheetHandler) SetEntry(c *gin.Context) {
	var req dto.SetEntryRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.sheets.SetEntry(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, res)
}

// CommitEntry godoc
// @Summary Normalise a grade cell after editing
// @Tags GradeSheets
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.CommitEntryRequest true "Cell position"
// @Success 200 {object} response.Envelope
// @Router /sheets/{id}/entries/commit [post]
func (h *GradeSheetHandler) CommitEntry(c *gin.Context) {
	var req dto.CommitEntryRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.sheets.CommitEntry(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, res)
}

// SetAttendance godoc
// @Summary Set a student's absence count
// @Tags GradeSheets
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param studentId path string true "Student ID"
// @Param payload body dto.AttendanceRequest true "Absence count"
// @Success 200 {object} response.Envelope
// @Router /sheets/{id}/students/{studentId}/attendance [put]
func (h *GradeSheetHandler) SetAttendance(c *gin.Context) {
	var req dto.AttendanceRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.sheets.SetAttendance(c.Request.Context(), actorFromContext(c), c.Param("id"), c.Param("studentId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, res)
}

// SyncAttendance godoc
// @Summary Replace a student's absence count with the backend's automatic count
// @Tags GradeSheets
// @Produce json
// @Param id path string true "Session ID"
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /sheets/{id}/students/{studentId}/attendance/sync [post]
func (h *GradeSheetHandler) SyncAttendance(c *gin.Context) {
	res, err := h.sheets.SyncAttendance(c.Request.Context(), actorFromContext(c), c.Param("id"), c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, res)
}

// SetWeights godoc
// @Summary Edit competency weights
// @Tags GradeSheets
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.WeightsRequest true "Weights"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /sheets/{id}/weights [put]
func (h *GradeSheetHandler) SetWeights(c *gin.Context) {
	var req dto.WeightsRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.sheets.SetWeights(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, res)
}

// Paste godoc
// @Summary Paste tab-separated clipboard text into the grade cells
// @Tags GradeSheets
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.PasteRequest true "Anchor and clipboard text"
// @Success 200 {object} response.Envelope
// @Router /sheets/{id}/paste [post]
func (h *GradeSheetHandler) Paste(c *gin.Context) {
	var req dto.PasteRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.sheets.Paste(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, res)
}

// Save godoc
// @Summary Save the sheet to the grade backend
// @Tags GradeSheets
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /sheets/{id}/save [post]
func (h *GradeSheetHandler) Save(c *gin.Context) {
	res, err := h.sheets.Save(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	var meta map[string]interface{}
	if len(res.Skipped) > 0 {
		meta = map[string]interface{}{"skipped_cells": len(res.Skipped)}
	}
	response.OK(c, res, meta)
}

// Export godoc
// @Summary Export the sheet as CSV, PDF or XLSX
// @Tags GradeSheets
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.ExportRequest true "Format"
// @Success 201 {object} response.Envelope
// @Router /sheets/{id}/exports [post]
func (h *GradeSheetHandler) Export(c *gin.Context) {
	var req dto.ExportRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.sheets.Export(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}
