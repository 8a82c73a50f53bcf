// Package httputil writes the API's JSON envelope and maps the autherr taxonomy onto HTTP statuses.
//
// Every response body has the shape {"code":1|0,"msg":string,"data":any}; list endpoints add a
// "paginate" block.
package httputil

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/swpuclaylee/APIFlask/internal/autherr"
	"github.com/swpuclaylee/APIFlask/internal/logging"
)

const (
	codeSuccess = 1
	codeFailure = 0
)

// Envelope is the body of every API response.
type Envelope struct {
	Code     int         `json:"code"`
	Msg      string      `json:"msg"`
	Data     interface{} `json:"data"`
	Paginate *Paginate   `json:"paginate,omitempty"`
}

// Paginate describes one page of a list result.
type Paginate struct {
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasPrev    bool  `json:"has_prev"`
	HasNext    bool  `json:"has_next"`
}

// NewPaginate builds the pagination block for page (1-based) of perPage items out of total.
func NewPaginate(page, perPage int, total int64) *Paginate {
	pages := 0
	if perPage > 0 {
		pages = int(math.Ceil(float64(total) / float64(perPage)))
	}
	return &Paginate{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: pages,
		HasPrev:    page > 1,
		HasNext:    page < pages,
	}
}

// WriteJSON writes env with the given status code.
func WriteJSON(w http.ResponseWriter, status int, env Envelope) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(env)
}

// WriteSuccess writes a 200 success envelope carrying data.
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteSuccessMessage(w, "success", data)
}

// WriteSuccessMessage writes a 200 success envelope with a custom message.
func WriteSuccessMessage(w http.ResponseWriter, msg string, data interface{}) error {
	return WriteJSON(w, http.StatusOK, Envelope{Code: codeSuccess, Msg: msg, Data: data})
}

// WritePaginated writes a 200 success envelope for one page of a list.
func WritePaginated(w http.ResponseWriter, items interface{}, p *Paginate) error {
	return WriteJSON(w, http.StatusOK, Envelope{Code: codeSuccess, Msg: "success", Data: items, Paginate: p})
}

// WriteFailure writes a failure envelope with status and msg.
func WriteFailure(w http.ResponseWriter, status int, msg string, data interface{}) {
	_ = WriteJSON(w, status, Envelope{Code: codeFailure, Msg: msg, Data: data})
}

// Status and message for a token verification failure.
func tokenFailure(err error) (string, bool) {
	switch {
	case errors.Is(err, autherr.ErrTokenExpired):
		return "Token has expired", true
	case errors.Is(err, autherr.ErrTokenWrongKind):
		return "Invalid token type", true
	case errors.Is(err, autherr.ErrTokenRevoked):
		return "Token has been revoked, please login again", true
	case errors.Is(err, autherr.ErrTokenMalformed):
		return "Invalid token", true
	}
	return "", false
}

// StatusFor maps err onto its HTTP status and the message shown to clients. Unexpected errors
// map to 500 with an empty message.
func StatusFor(err error) (int, string) {
	var (
		ve  *autherr.ValidationError
		dup *autherr.DuplicateError
	)
	if msg, ok := tokenFailure(err); ok {
		return http.StatusUnauthorized, msg
	}
	switch {
	case errors.As(err, &ve):
		return http.StatusUnprocessableEntity, ve.Error()
	case errors.As(err, &dup):
		return http.StatusConflict, capitalize(dup.Error())
	case errors.Is(err, autherr.ErrDuplicateIdentity):
		return http.StatusConflict, "Already exists"
	case errors.Is(err, autherr.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid username or password"
	case errors.Is(err, autherr.ErrAccountDisabled):
		return http.StatusUnauthorized, "Account has been deactivated"
	case errors.Is(err, autherr.ErrIdentityInvalid):
		return http.StatusUnauthorized, "User does not exist or has been deactivated"
	case errors.Is(err, autherr.ErrInsufficientPermission):
		return http.StatusForbidden, capitalize(err.Error())
	case errors.Is(err, autherr.ErrNotFound):
		return http.StatusNotFound, notFoundMessage(err)
	case errors.Is(err, autherr.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "Service temporarily unavailable"
	}
	return http.StatusInternalServerError, ""
}

// ErrorWriter renders service errors. Unexpected errors are logged; with Debug set their text is
// returned in data.detail instead of being hidden.
type ErrorWriter struct {
	Logger *logrus.Logger
	Debug  bool
	// Fields adds request-scoped log fields such as the caller's user id.
	Fields func(r *http.Request) logrus.Fields
}

// Write renders err as a failure envelope.
func (ew ErrorWriter) Write(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := StatusFor(err)
	var ve *autherr.ValidationError
	switch {
	case status == http.StatusUnprocessableEntity && errors.As(err, &ve):
		WriteFailure(w, status, msg, map[string]string{"field": ve.Field, "message": ve.Message})
		return
	case status == http.StatusServiceUnavailable:
		ew.entry(r).WithError(err).Warn("store unavailable")
	case status == http.StatusInternalServerError:
		ew.entry(r).WithError(err).Error("unhandled error")
		if ew.Debug {
			WriteFailure(w, status, "Internal server error", map[string]string{"detail": err.Error()})
			return
		}
		msg = "Internal server error"
	}
	WriteFailure(w, status, msg, nil)
}

func (ew ErrorWriter) entry(r *http.Request) *logrus.Entry {
	logger := logging.OrDiscard(ew.Logger)
	fields := logrus.Fields{"method": r.Method, "path": r.URL.Path}
	if id := r.Header.Get(RequestIDHeader); id != "" {
		fields["request_id"] = id
	}
	if ew.Fields != nil {
		for k, v := range ew.Fields(r) {
			fields[k] = v
		}
	}
	return logger.WithFields(fields)
}

// RequestIDHeader carries the request id set by the request id middleware.
const RequestIDHeader = "X-Request-ID"

// notFoundMessage keeps the subject of a wrapped "role x: not found" error.
func notFoundMessage(err error) string {
	text := err.Error()
	if i := strings.Index(text, ": "+autherr.ErrNotFound.Error()); i > 0 {
		return capitalize(text[:i]) + " not found"
	}
	return "Resource not found"
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
