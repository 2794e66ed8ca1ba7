package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/gradesheet-api/internal/dto"
	"github.com/noah-isme/gradesheet-api/pkg/config"
	appErrors "github.com/noah-isme/gradesheet-api/pkg/errors"
	"github.com/noah-isme/gradesheet-api/pkg/middleware/requestid"
)

const maxBackendBody = 1 << 20

// BackendCredentials are the page-scoped credentials forwarded to the grade backend.
type BackendCredentials struct {
	CSRFToken string
	Cookie    string
}

// AttendanceQuery identifies the count requested from the attendance endpoint.
type AttendanceQuery struct {
	StudentID    string
	AssignmentID string
	PeriodID     string
}

// BackendClient talks to the grade persistence endpoints.
type BackendClient struct {
	client        *http.Client
	saveURL       string
	attendanceURL string
	metrics       *MetricsService
	logger        *zap.Logger
}

// NewBackendClient builds a client from configuration. A zero timeout leaves requests
// bounded only by the caller's context.
func NewBackendClient(cfg config.BackendConfig, metrics *MetricsService, logger *zap.Logger) *BackendClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BackendClient{
		client:        &http.Client{Timeout: cfg.Timeout},
		saveURL:       joinURL(cfg.BaseURL, cfg.SavePath),
		attendanceURL: joinURL(cfg.BaseURL, cfg.AttendancePath),
		metrics:       metrics,
		logger:        logger,
	}
}

func joinURL(base, path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

// SaveSheet posts the complete sheet. Non-2xx answers and statuses other than
// success or success_with_errors are failures carrying the backend's message.
func (c *BackendClient) SaveSheet(ctx context.Context, creds BackendCredentials, body dto.SaveSheetRequest) (*dto.BackendSaveResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal save payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.saveURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build save request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.decorate(ctx, req, creds)

	var result dto.BackendSaveResponse
	status, err := c.do(req, "save", &result)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return &result, backendFailure(result.Message, "Error del servidor")
	}
	switch result.Status {
	case dto.BackendStatusSuccess, dto.BackendStatusSuccessWithErrors:
		return &result, nil
	default:
		return &result, backendFailure(result.Message, "unexpected save status "+result.Status)
	}
}

// AttendanceCount fetches the automatic absence count of a student.
func (c *BackendClient) AttendanceCount(ctx context.Context, creds BackendCredentials, q AttendanceQuery) (int, error) {
	params := url.Values{}
	params.Set("estudiante_id", q.StudentID)
	params.Set("asignacion_id", q.AssignmentID)
	params.Set("periodo_id", q.PeriodID)
	target := c.attendanceURL
	if strings.Contains(target, "?") {
		target += "&" + params.Encode()
	} else {
		target += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, fmt.Errorf("build attendance request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	c.decorate(ctx, req, creds)

	var result dto.BackendAttendanceResponse
	status, err := c.do(req, "attendance", &result)
	if err != nil {
		return 0, err
	}
	if status < 200 || status > 299 || result.Status != dto.BackendStatusSuccess {
		return 0, backendFailure(result.Message, "attendance count unavailable")
	}
	count, ok := result.AutoCount()
	if !ok || count < 0 {
		return 0, backendFailure("", "attendance response carried no count")
	}
	return count, nil
}

func (c *BackendClient) decorate(ctx context.Context, req *http.Request, creds BackendCredentials) {
	if creds.CSRFToken != "" {
		req.Header.Set("X-CSRFToken", creds.CSRFToken)
	}
	if creds.Cookie != "" {
		req.Header.Set("Cookie", creds.Cookie)
	}
	if id := requestid.FromContext(ctx); id != "" {
		req.Header.Set(requestid.Header, id)
	}
}

// do executes req and decodes a JSON body into dest. A body that is not JSON is only
// an error for 2xx answers; for other statuses the status code alone decides.
func (c *BackendClient) do(req *http.Request, operation string, dest interface{}) (int, error) {
	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.metrics.ObserveBackendCall(operation, 0, time.Since(start))
		c.logger.Warn("grade backend unreachable", zap.String("operation", operation), zap.Error(err))
		return 0, appErrors.Wrap(err, appErrors.ErrBackendFailure.Code, appErrors.ErrBackendFailure.Status, "grade backend unreachable")
	}
	defer resp.Body.Close() //nolint:errcheck
	c.metrics.ObserveBackendCall(operation, resp.StatusCode, time.Since(start))

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBackendBody))
	if err != nil {
		return resp.StatusCode, appErrors.Wrap(err, appErrors.ErrBackendFailure.Code, appErrors.ErrBackendFailure.Status, "read grade backend response")
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			return resp.StatusCode, appErrors.Wrap(err, appErrors.ErrBackendFailure.Code, appErrors.ErrBackendFailure.Status, "grade backend returned an unreadable response")
		}
		c.logger.Debug("non-json backend error body", zap.String("operation", operation), zap.Int("status", resp.StatusCode))
	}
	return resp.StatusCode, nil
}

func backendFailure(message, fallback string) error {
	if message == "" {
		message = fallback
	}
	return appErrors.Clone(appErrors.ErrBackendFailure, message)
}
