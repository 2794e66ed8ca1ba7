package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gradesheet-api/internal/dto"
	"github.com/noah-isme/gradesheet-api/pkg/config"
	appErrors "github.com/noah-isme/gradesheet-api/pkg/errors"
	"github.com/noah-isme/gradesheet-api/pkg/middleware/requestid"
)

func newTestBackendClient(srv *httptest.Server) *BackendClient {
	return NewBackendClient(config.BackendConfig{
		BaseURL:        srv.URL,
		SavePath:       "/guardar/",
		AttendancePath: "/inasistencias/",
	}, nil, nil)
}

func TestBackendClientSaveSheet(t *testing.T) {
	var got dto.SaveSheetRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/guardar/", r.URL.Path)
		assert.Equal(t, "csrf-1", r.Header.Get("X-CSRFToken"))
		assert.Equal(t, "sessionid=abc", r.Header.Get("Cookie"))
		assert.Equal(t, "req-9", r.Header.Get(requestid.Header))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"status": "success_with_errors", "message": "ok", "errors": []string{"fila 2"}})
	}))
	defer srv.Close()

	ctx := requestid.WithContext(context.Background(), "req-9")
	body := dto.SaveSheetRequest{AssignmentID: "asg-1", PeriodID: "per-1", Students: []dto.SaveStudent{{ID: "s-1", Attendance: 2}}}
	res, err := newTestBackendClient(srv).SaveSheet(ctx, BackendCredentials{CSRFToken: "csrf-1", Cookie: "sessionid=abc"}, body)
	require.NoError(t, err)
	assert.Equal(t, []string{"fila 2"}, res.Errors)
	assert.Equal(t, "asg-1", got.AssignmentID)
	require.Len(t, got.Students, 1)
	assert.Equal(t, 2, got.Students[0].Attendance)
}

func TestBackendClientSaveFailures(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"server error with message", http.StatusBadRequest, `{"status":"error","message":"Periodo cerrado"}`, "Periodo cerrado"},
		{"server error without json", http.StatusInternalServerError, `<html>boom</html>`, "Error del servidor"},
		{"ok with error status", http.StatusOK, `{"status":"error","message":"Sin permisos"}`, "Sin permisos"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := newTestBackendClient(srv).SaveSheet(context.Background(), BackendCredentials{}, dto.SaveSheetRequest{})
			require.Error(t, err)
			var appErr *appErrors.Error
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, appErrors.ErrBackendFailure.Code, appErr.Code)
			assert.Equal(t, tc.message, appErr.Message)
		})
	}
}

func TestBackendClientUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	client := newTestBackendClient(srv)
	srv.Close()

	_, err := client.SaveSheet(context.Background(), BackendCredentials{}, dto.SaveSheetRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrBackendFailure.Code, appErrors.FromError(err).Code)
}

func TestBackendClientTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()
	client := NewBackendClient(config.BackendConfig{BaseURL: srv.URL, SavePath: "/g", Timeout: 20 * time.Millisecond}, nil, nil)

	_, err := client.SaveSheet(context.Background(), BackendCredentials{}, dto.SaveSheetRequest{})
	require.Error(t, err)
}

func TestBackendClientAttendanceCount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/inasistencias/", r.URL.Path)
		assert.Equal(t, "asg-1", q.Get("asignacion_id"))
		assert.Equal(t, "per-1", q.Get("periodo_id"))
		switch q.Get("estudiante_id") {
		case "s-1":
			_, _ = w.Write([]byte(`{"status":"success","inasistencias_auto":4}`))
		case "s-2":
			_, _ = w.Write([]byte(`{"status":"success","inasistencias":3}`))
		default:
			_, _ = w.Write([]byte(`{"status":"error","message":"Estudiante no encontrado"}`))
		}
	}))
	defer srv.Close()
	client := newTestBackendClient(srv)
	ctx := context.Background()

	n, err := client.AttendanceCount(ctx, BackendCredentials{}, AttendanceQuery{StudentID: "s-1", AssignmentID: "asg-1", PeriodID: "per-1"})
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	n, err = client.AttendanceCount(ctx, BackendCredentials{}, AttendanceQuery{StudentID: "s-2", AssignmentID: "asg-1", PeriodID: "per-1"})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = client.AttendanceCount(ctx, BackendCredentials{}, AttendanceQuery{StudentID: "s-3", AssignmentID: "asg-1", PeriodID: "per-1"})
	require.Error(t, err)
	assert.Equal(t, "Estudiante no encontrado", appErrors.FromError(err).Message)
}

func TestJoinURL(t *testing.T) {
	assert.Equal(t, "http://b/x/", joinURL("http://b/", "/x/"))
	assert.Equal(t, "https://other/y", joinURL("http://b", "https://other/y"))
}
