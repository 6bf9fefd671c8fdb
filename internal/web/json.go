package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/sweeney/brew-controller/internal/config"
	"github.com/sweeney/brew-controller/internal/rig"
)

// maxBodyBytes bounds request bodies; the largest is a settings document.
const maxBodyBytes = 64 << 10

// OKResponse is the body of a successful command.
type OKResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse is the body of every error.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// PowerRequest switches a pot or pump.
type PowerRequest struct {
	On *bool `json:"on"`
}

// ValueRequest sets an efficiency or speed, in percent.
type ValueRequest struct {
	Value *float64 `json:"value"`
}

// validationError is a request body that does not match the schema.
type validationError struct {
	msg string
}

func (e *validationError) Error() string { return e.msg }

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, OKResponse{Status: "ok"})
}

func writeDetail(w http.ResponseWriter, code int, detail string) {
	writeJSON(w, code, ErrorResponse{Detail: detail})
}

// writeError maps domain errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	var (
		unknown *rig.UnknownDeviceError
		invalid *validationError
		saveErr *config.SaveError
	)
	switch {
	case errors.As(err, &invalid):
		writeDetail(w, http.StatusUnprocessableEntity, invalid.msg)
	case errors.As(err, &unknown):
		writeDetail(w, http.StatusBadRequest, unknown.Error())
	case errors.Is(err, config.ErrNotFound):
		writeDetail(w, http.StatusNotFound, "Config file not found")
	case errors.Is(err, config.ErrCorrupt):
		writeDetail(w, http.StatusInternalServerError, "Invalid config file format")
	case errors.As(err, &saveErr):
		writeDetail(w, http.StatusInternalServerError, fmt.Sprintf("Failed to update settings: %v", saveErr.Err))
	default:
		writeDetail(w, http.StatusInternalServerError, err.Error())
	}
}

func readBody(r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, &validationError{msg: fmt.Sprintf("read body: %v", err)}
	}
	if len(data) > maxBodyBytes {
		return nil, &validationError{msg: "request body too large"}
	}
	return data, nil
}

func decodePower(r *http.Request) (bool, error) {
	data, err := readBody(r)
	if err != nil {
		return false, err
	}
	var req PowerRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return false, &validationError{msg: fmt.Sprintf("invalid body: %v", err)}
	}
	if req.On == nil {
		return false, &validationError{msg: "field required: on"}
	}
	return *req.On, nil
}

// decodeValue requires a percentage in [0, 100].
func decodeValue(r *http.Request) (float64, error) {
	data, err := readBody(r)
	if err != nil {
		return 0, err
	}
	var req ValueRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return 0, &validationError{msg: fmt.Sprintf("invalid body: %v", err)}
	}
	if req.Value == nil {
		return 0, &validationError{msg: "field required: value"}
	}
	if v := *req.Value; v < 0 || v > 100 {
		return 0, &validationError{msg: fmt.Sprintf("value must be between 0 and 100, got %g", v)}
	}
	return *req.Value, nil
}

func decodeSettings(r *http.Request) (config.Config, error) {
	data, err := readBody(r)
	if err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Parse(data)
	if err != nil {
		return config.Config{}, &validationError{msg: fmt.Sprintf("invalid settings: %v", err)}
	}
	return cfg, nil
}
