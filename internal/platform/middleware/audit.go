package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medbook/medbook/internal/platform/auth"
)

// AuditEntry represents an audit log entry produced by the middleware.
// It captures who accessed what, when, from where, and the action type.
type AuditEntry struct {
	UserID     string
	UserRoles  []string
	Resource   string
	PatientID  string
	PracticeID string
	Action     string // read, create, update, delete
	IPAddress  string
	UserAgent  string
	Path       string
	Method     string
	Timestamp  time.Time
	RequestID  string
	StatusCode int
}

// AuditRecorder is the interface that the audit middleware uses to persist
// audit entries. This decouples the middleware from the concrete storage
// so that tests can provide a mock implementation.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

// AuditRecorderFunc is a function adapter for AuditRecorder.
type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

// Audit returns Echo middleware that intercepts requests to /api/v1/*,
// extracts the authenticated user from JWT claims, determines the touched
// resource from the URL path, and logs patient-data access.
//
// If no AuditRecorder is provided, it falls back to structured zerolog logging.
func Audit(logger zerolog.Logger, recorders ...AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			path := req.URL.Path

			if !isAuditablePath(path) {
				return next(c)
			}

			// Execute the handler first so we capture the response status
			err := next(c)

			entry := AuditEntry{
				Timestamp:  time.Now().UTC(),
				Path:       path,
				Method:     req.Method,
				IPAddress:  c.RealIP(),
				UserAgent:  req.UserAgent(),
				StatusCode: c.Response().Status,
			}

			// Extract authenticated user from JWT claims via context
			ctx := req.Context()
			entry.UserID = auth.UserIDFromContext(ctx)
			entry.UserRoles = auth.RolesFromContext(ctx)

			// Request ID from middleware chain
			if rid, ok := c.Get("request_id").(string); ok {
				entry.RequestID = rid
			}
			if pid, ok := c.Get("practice_id").(string); ok {
				entry.PracticeID = pid
			}

			entry.Action = httpMethodToAction(req.Method)
			entry.Resource = extractResource(path)
			entry.PatientID = extractPatientID(c)

			if len(recorders) > 0 && recorders[0] != nil {
				if recErr := recorders[0].RecordAccess(entry); recErr != nil {
					logger.Error().Err(recErr).
						Str("request_id", entry.RequestID).
						Msg("failed to record audit entry")
				}
			}

			// Always emit a structured log for the audit trail
			logger.Info().
				Str("type", "access_audit").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Strs("user_roles", entry.UserRoles).
				Str("practice_id", entry.PracticeID).
				Str("resource", entry.Resource).
				Str("patient_id", entry.PatientID).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("patient_data_access")

			return err
		}
	}
}

// isAuditablePath returns true if the path is under /api/v1/.
func isAuditablePath(path string) bool {
	return strings.HasPrefix(path, "/api/v1/")
}

// httpMethodToAction maps HTTP methods to audit action codes.
func httpMethodToAction(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead:
		return "read"
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

// extractResource parses the API resource from a URL path.
//
// Supported patterns:
//   - /api/v1/patients        -> patients
//   - /api/v1/patients/123    -> patients
//   - /api/v1/appointments/1  -> appointments
func extractResource(path string) string {
	if !strings.HasPrefix(path, "/api/v1/") {
		return "unknown"
	}
	segments := strings.Split(strings.TrimPrefix(path, "/api/v1/"), "/")
	if len(segments) > 0 && segments[0] != "" {
		return segments[0]
	}
	return "unknown"
}

// extractPatientID attempts to find a patient identifier in the request.
// It checks the URL path for /patients/<id> patterns and the patient_id
// query parameter.
func extractPatientID(c echo.Context) string {
	path := c.Request().URL.Path

	if strings.HasPrefix(path, "/api/v1/patients/") {
		segments := strings.Split(strings.TrimPrefix(path, "/api/v1/patients/"), "/")
		if len(segments) > 0 && isUUIDLike(segments[0]) {
			return segments[0]
		}
	}

	if patient := c.QueryParam("patient_id"); patient != "" {
		return patient
	}

	return ""
}

// isUUIDLike checks if a string looks like a UUID (basic length/format check).
func isUUIDLike(s string) bool {
	if len(s) < 1 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}
