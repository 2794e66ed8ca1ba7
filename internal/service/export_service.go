package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/gradesheet-api/internal/dto"
	"github.com/noah-isme/gradesheet-api/internal/models"
	"github.com/noah-isme/gradesheet-api/internal/sheet"
	appErrors "github.com/noah-isme/gradesheet-api/pkg/errors"
	"github.com/noah-isme/gradesheet-api/pkg/export"
	"github.com/noah-isme/gradesheet-api/pkg/storage"
)

// Supported export formats.
const (
	ExportFormatCSV  = "csv"
	ExportFormatPDF  = "pdf"
	ExportFormatXLSX = "xlsx"
)

var exportContentTypes = map[string]string{
	ExportFormatCSV:  "text/csv; charset=utf-8",
	ExportFormatPDF:  "application/pdf",
	ExportFormatXLSX: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type datasetRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix    string
	ResultTTL    time.Duration
	CSVSeparator rune
}

// ExportFile is an opened export ready to stream.
type ExportFile struct {
	File        *os.File
	Filename    string
	ContentType string
	SizeBytes   int64
}

// ExportService renders grade sheets into downloadable files behind signed links.
type ExportService struct {
	storage   fileStorage
	signer    *storage.SignedURLSigner
	renderers map[string]datasetRenderer
	logger    *zap.Logger
	cfg       ExportConfig
	now       func() time.Time
}

// NewExportService constructs an ExportService with the CSV, PDF and XLSX renderers.
func NewExportService(store fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
	return &ExportService{
		storage: store,
		signer:  signer,
		renderers: map[string]datasetRenderer{
			ExportFormatCSV:  export.NewCSVExporter(cfg.CSVSeparator),
			ExportFormatPDF:  export.NewPDFExporter(),
			ExportFormatXLSX: export.NewXLSXExporter(""),
		},
		logger: logger,
		cfg:    cfg,
		now:    time.Now,
	}
}

// ExportSheet renders the sheet's table in format, stores it and returns a signed link.
func (s *ExportService) ExportSheet(_ context.Context, sh *sheet.Sheet, format string) (*dto.ExportLink, error) {
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %s", format))
	}
	payload, err := renderer.Render(BuildSheetDataset(sh))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	filename := s.buildFilename(sh.Context(), format)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}
	token, expiresAt, err := s.signer.Generate(sh.ID(), relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign export link")
	}

	s.logger.Info("grade sheet exported",
		zap.String("session_id", sh.ID()),
		zap.String("format", format),
		zap.String("path", relPath),
		zap.Int("bytes", len(payload)),
	)
	return &dto.ExportLink{
		URL:       fmt.Sprintf("%s/exports/download?token=%s", strings.TrimRight(s.cfg.APIPrefix, "/"), url.QueryEscape(token)),
		Filename:  path.Base(relPath),
		ExpiresAt: expiresAt,
	}, nil
}

// ResolveDownload validates a download token and opens the file it points at.
func (s *ExportService) ResolveDownload(token string) (*ExportFile, error) {
	claims, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrExportToken.Code, appErrors.ErrExportToken.Status, appErrors.ErrExportToken.Message)
	}
	file, err := s.storage.Open(claims.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export file no longer available")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export")
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat export")
	}
	name := path.Base(claims.Path)
	return &ExportFile{
		File:        file,
		Filename:    name,
		ContentType: contentTypeFor(name),
		SizeBytes:   info.Size(),
	}, nil
}

// Cleanup removes stored exports older than ttl, or the configured result TTL when ttl <= 0.
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	deleted, err := s.storage.CleanupOlderThan(ttl)
	if err != nil {
		return nil, err
	}
	if len(deleted) > 0 {
		s.logger.Info("stale exports removed", zap.Int("count", len(deleted)))
	}
	return deleted, nil
}

func (s *ExportService) buildFilename(ctx models.SheetContext, format string) string {
	timestamp := s.now().UTC().Format("20060102_150405")
	suffix := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return fmt.Sprintf("calificaciones_%s_%s_%s_%s.%s", sanitizeFilename(ctx.AssignmentID), sanitizeFilename(ctx.PeriodID), timestamp, suffix, format)
}

func contentTypeFor(name string) string {
	ext := strings.TrimPrefix(path.Ext(name), ".")
	if ct, ok := exportContentTypes[ext]; ok {
		return ct
	}
	return "application/octet-stream"
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

// BuildSheetDataset flattens the rendered table of a sheet into export rows. The band
// label follows the final score; the empty-roster placeholder produces no rows.
func BuildSheetDataset(sh *sheet.Sheet) export.Dataset {
	view := sheet.Render(sh)
	ctx := sh.Context()

	headers := []string{"#", "Estudiante"}
	for _, group := range view.Groups {
		name := strings.ToUpper(string(group.Competency))
		for _, col := range group.Columns {
			title := fmt.Sprintf("%s %s", name, col.Title)
			if col.Description != "" {
				title += " - " + col.Description
			}
			headers = append(headers, title)
		}
		headers = append(headers, "Prom. "+name)
	}
	headers = append(headers, "Definitiva", "Desempeño", "Inasistencias")

	rows := make([][]string, 0, len(view.Rows))
	for i, row := range view.Rows {
		if row.StudentID == "" {
			continue
		}
		band := sh.RowSummary(i).Band
		values := make([]string, 0, len(headers))
		for _, cell := range row.Cells {
			values = append(values, cell.Text)
			if cell.Kind == models.CellFinal {
				values = append(values, band)
			}
		}
		rows = append(rows, values)
	}

	return export.Dataset{
		Title:   fmt.Sprintf("Calificaciones %s - %s", ctx.AssignmentID, ctx.PeriodID),
		Headers: headers,
		Rows:    rows,
	}
}
