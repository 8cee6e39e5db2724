package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/swapmeet/swapmeet/internal/model"
)

// jsonResponse writes a JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("encoding response", "error", err)
		}
	}
}

type errorBody struct {
	Error string          `json:"error"`
	Kind  model.ErrorKind `json:"kind,omitempty"`
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, errorBody{Error: message})
}

// kindStatus maps error kinds to HTTP status codes.
var kindStatus = map[model.ErrorKind]int{
	model.KindValidation:    http.StatusBadRequest,
	model.KindNotFound:      http.StatusNotFound,
	model.KindAuthorization: http.StatusForbidden,
	model.KindInvalidState:  http.StatusConflict,
	model.KindConflict:      http.StatusConflict,
}

// writeError reports err to the client. Errors without a kind are logged and
// hidden behind a generic 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := model.KindOf(err)
	status, ok := kindStatus[kind]
	if !ok {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}
	jsonResponse(w, status, errorBody{Error: err.Error(), Kind: kind})
}

// decodeJSON decodes a JSON request body into the given target.
func decodeJSON(r *http.Request, target any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(target)
}
