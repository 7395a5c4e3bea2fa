package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success bool     `json:"success"`
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

// errInvalidBody is returned by decodeBody for unreadable or malformed JSON.
var errInvalidBody = eris.New("api: invalid request body")

// readBody reads at most maxBodyBytes of the request body.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, eris.Wrap(err, "api: read body")
	}
	return body, nil
}

// decodeBody decodes a JSON request body into dst. Unknown fields are
// accepted since the website posts whatever its forms hold.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	body, err := readBody(w, r)
	if err != nil {
		return errInvalidBody
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return errInvalidBody
	}
	return nil
}

// writeJSON writes a JSON response and logs serialization failures.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("api: encode response", zap.Int("status", status), zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Success: false, Error: msg})
}

// writeInternal logs err and answers with a generic 500.
func writeInternal(w http.ResponseWriter, r *http.Request, msg string, err error) {
	zap.L().Error("api: "+msg,
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, "Internal server error")
}
