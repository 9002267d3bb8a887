package web

// errors.go provides unified error response handling for the web layer.
//
// Every error a handler returns to a client goes through respondError, which
// logs the technical error with the request ID for correlation and maps it
// to a user-friendly message before writing the JSON response.

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

// ErrorResponse is the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// userMessage provides user-friendly error information with actionable guidance.
type userMessage struct {
	Message string
	Action  string
	Code    string
}

// errorPatterns maps technical error substrings (case-insensitive) to user
// messages. The first matching pattern wins, so specific patterns come
// before general ones.
var errorPatterns = []struct {
	pattern string
	msg     userMessage
}{
	// Request and input errors
	{
		pattern: "request body too large",
		msg: userMessage{
			Message: "The uploaded file is too large",
			Action:  "Split the file or raise INFER_MAX_BODY_SIZE",
			Code:    "REQ001",
		},
	},
	{
		pattern: "no file provided",
		msg: userMessage{
			Message: "The request did not include a file",
			Action:  "Send the file in a multipart field named \"file\" or as the raw body",
			Code:    "REQ002",
		},
	},
	{
		pattern: "stream already consumed",
		msg: userMessage{
			Message: "The input was already read once and cannot be replayed",
			Action:  "Resend the file",
			Code:    "REQ003",
		},
	},
	{
		pattern: "nesting too deep",
		msg: userMessage{
			Message: "The file is wrapped in too many layers of compression or archives",
			Action:  "Extract the file and upload the inner table directly",
			Code:    "REQ004",
		},
	},
	{
		pattern: "no tables found",
		msg: userMessage{
			Message: "No tables were recognized in the file",
			Action:  "Check that the file holds delimited text, a workbook, Parquet, or HTML tables",
			Code:    "REQ005",
		},
	},

	// Database errors
	{
		pattern: "duplicate key",
		msg: userMessage{
			Message: "A record with this key already exists in the target table",
			Action:  "Review the failed rows in the load result",
			Code:    "DB001",
		},
	},
	{
		pattern: "connection refused",
		msg: userMessage{
			Message: "The database is not reachable",
			Action:  "Check DATABASE_URL and that the database is running",
			Code:    "DB002",
		},
	},
	{
		pattern: "failed to connect",
		msg: userMessage{
			Message: "The database is not reachable",
			Action:  "Check DATABASE_URL and that the database is running",
			Code:    "DB002",
		},
	},
	{
		pattern: "no database configured",
		msg: userMessage{
			Message: "This service is running without a database",
			Action:  "Set DATABASE_URL and restart to enable loading",
			Code:    "DB003",
		},
	},

	// System errors
	{
		pattern: "context deadline exceeded",
		msg: userMessage{
			Message: "The operation timed out",
			Action:  "Retry with a smaller file or raise SERVER_REQUEST_TIMEOUT",
			Code:    "SYS001",
		},
	},
}

// defaultMessage is returned when no pattern matches.
var defaultMessage = userMessage{
	Message: "An unexpected error occurred",
	Action:  "Retry the request; check the server logs if it persists",
	Code:    "ERR000",
}

// mapError converts an internal error to its user-facing message.
func mapError(err error) userMessage {
	if err == nil {
		return userMessage{}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	msg := defaultMessage
	msg.Message = sanitizeErrorMessage(err.Error())
	return msg
}

// respondError logs the technical error server-side and returns the mapped
// user-friendly JSON response.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	userMsg := mapError(err)

	slog.Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", userMsg.Code,
		"request_id", middleware.GetReqID(r.Context()),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   userMsg.Message,
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
	})
}

// dsnPattern matches connection strings so they never leak into responses.
var dsnPattern = regexp.MustCompile(`\b(postgres|postgresql)://\S+`)

// sanitizeErrorMessage strips credentials and caps the length of raw error
// text before it reaches a client.
func sanitizeErrorMessage(message string) string {
	message = dsnPattern.ReplaceAllString(message, "[connection string]")
	if len(message) > 200 {
		message = message[:200] + "..."
	}
	return message
}
