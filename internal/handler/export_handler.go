package handler

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/gradesheet-api/internal/service"
	appErrors "github.com/noah-isme/gradesheet-api/pkg/errors"
	"github.com/noah-isme/gradesheet-api/pkg/response"
)

type exportDownloader interface {
	ResolveDownload(token string) (*service.ExportFile, error)
}

// ExportHandler streams generated exports. The signed token is the only credential.
type ExportHandler struct {
	exports exportDownloader
}

// NewExportHandler constructs handler.
func NewExportHandler(exports exportDownloader) *ExportHandler {
	return &ExportHandler{exports: exports}
}

// Download godoc
// @Summary Download a generated grade sheet export
// @Tags Exports
// @Produce octet-stream
// @Param token query string true "Signed download token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Router /exports/download [get]
func (h *ExportHandler) Download(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	file, err := h.exports.ResolveDownload(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.File.Close() //nolint:errcheck
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", file.Filename))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, file.SizeBytes, file.ContentType, file.File, nil)
}
