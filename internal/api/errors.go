package api

import (
	"encoding/json"
	"io"
	"net/http"
)

// maxBodySize caps request bodies at 1 MB. Prompts are far smaller; anything
// beyond this is truncated and fails to decode.
const maxBodySize = 1 << 20

// errorEnvelope wraps every error the gateway returns, so callers parse one
// shape for auth, policy, and upstream failures alike.
type errorEnvelope struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError sends the envelope with a machine-readable code and a
// human-readable message.
func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorEnvelope{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// writeJSON sends data as a JSON response body.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// readJSON decodes the body into v, reading at most maxBodySize bytes.
func readJSON(r *http.Request, v interface{}) error {
	lr := io.LimitReader(r.Body, maxBodySize)
	return json.NewDecoder(lr).Decode(v)
}
