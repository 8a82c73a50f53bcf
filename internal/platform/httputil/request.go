package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/swpuclaylee/APIFlask/internal/autherr"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// ParseJSON decodes the request body into dest. A malformed or missing body is a
// ValidationError on field "body".
func ParseJSON(r *http.Request, dest interface{}) error {
	if r.Body == nil {
		return autherr.Invalid("body", "request body is required")
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return autherr.Invalid("body", "request body is required")
		}
		return autherr.Invalid("body", "request body must be valid JSON")
	}
	return nil
}

// ParseOptionalJSON is ParseJSON but treats an empty body as an empty object.
func ParseOptionalJSON(r *http.Request, dest interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	err := ParseJSON(r, dest)
	var ve *autherr.ValidationError
	if errors.As(err, &ve) && ve.Message == "request body is required" {
		return nil
	}
	return err
}

// PathString returns the mux path variable key.
func PathString(r *http.Request, key string) string {
	return mux.Vars(r)[key]
}

// QueryInt parses an integer query parameter, returning def when it is absent.
func QueryInt(r *http.Request, key string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, autherr.Invalid(key, "must be an integer")
	}
	return v, nil
}

// QueryBool parses an optional boolean query parameter; absent yields nil.
func QueryBool(r *http.Request, key string) (*bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, autherr.Invalid(key, "must be true or false")
	}
	return &v, nil
}
