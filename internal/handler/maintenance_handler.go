package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/gradesheet-api/pkg/response"
)

type maintenanceTrigger interface {
	Trigger(jobType string) (string, error)
}

// MaintenanceHandler lets administrators run housekeeping on demand.
type MaintenanceHandler struct {
	jobs maintenanceTrigger
}

// NewMaintenanceHandler constructs handler.
func NewMaintenanceHandler(jobs maintenanceTrigger) *MaintenanceHandler {
	return &MaintenanceHandler{jobs: jobs}
}

// Trigger godoc
// @Summary Enqueue a maintenance job
// @Tags Admin
// @Produce json
// @Param job path string true "purge_sessions or cleanup_exports"
// @Success 202 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/maintenance/{job} [post]
func (h *MaintenanceHandler) Trigger(c *gin.Context) {
	id, err := h.jobs.Trigger(c.Param("job"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, gin.H{"job_id": id, "type": c.Param("job")})
}
