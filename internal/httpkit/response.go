package httpkit

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// ErrEmptyBody is returned by DecodeJSON when the request carries no body.
var ErrEmptyBody = errors.New("request body is empty")

// ErrorEnvelope is the body of every failed response.
type ErrorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details,omitempty"`
	} `json:"error"`
}

// Success is the body of every accepted print or device command.
type Success struct {
	Status  string   `json:"status"`
	Message string   `json:"message"`
	JobID   string   `json:"job_id,omitempty"`
	JobIDs  []string `json:"job_ids,omitempty"`
}

// DecodeJSON decodes exactly one JSON object into v. Unknown fields and
// trailing data are rejected.
func DecodeJSON(r *http.Request, v any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return ErrEmptyBody
	}
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrEmptyBody
		}
		return err
	}
	if dec.More() {
		return errors.New("unexpected data after JSON object")
	}
	return nil
}

func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// WriteSuccess writes a 200 Success. One id lands in job_id, several in
// job_ids.
func WriteSuccess(w http.ResponseWriter, message string, jobIDs ...string) {
	resp := Success{Status: "success", Message: message}
	switch len(jobIDs) {
	case 0:
	case 1:
		resp.JobID = jobIDs[0]
	default:
		resp.JobIDs = jobIDs
	}
	WriteJSON(w, http.StatusOK, resp)
}

func WriteErr(w http.ResponseWriter, status int, code, msg string, details map[string]any) {
	var env ErrorEnvelope
	env.Error.Code = code
	env.Error.Message = msg
	env.Error.Details = details
	WriteJSON(w, status, env)
}
