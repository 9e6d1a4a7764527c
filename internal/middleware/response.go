/*
Copyright 2026 The SAMFMS Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	apperrors "github.com/samfms/scf/internal/errors"
	"github.com/samfms/scf/internal/logging"
)

// requestInfo is the nested "request" object in the fixed error body.
type requestInfo struct {
	Method    string `json:"method"`
	Endpoint  string `json:"endpoint"`
	RequestID string `json:"request_id"`
}

// errorBody is the fixed-shape body spec §4.7 requires for every error
// response.
type errorBody struct {
	Success bool `json:"success"`
	Error   struct {
		Code          int         `json:"code"`
		Message       string      `json:"message"`
		CorrelationID string      `json:"correlation_id"`
		Timestamp     time.Time   `json:"timestamp"`
		Details       string      `json:"details,omitempty"`
		Request       requestInfo `json:"request"`
	} `json:"error"`
}

// WriteError writes err as the fixed-shape error response, mapping its
// AppError Type to an HTTP status via the shared taxonomy. Details
// (which may include stack-trace-adjacent debug information) are
// included only outside production mode and only for server-class
// (5xx) errors, per spec §4.7.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	appErr, ok := apperrors.As(err)
	if !ok {
		appErr = apperrors.NewInternalError(err)
	}

	status := appErr.StatusCode()

	body := errorBody{Success: false}
	body.Error.Code = status
	body.Error.Message = appErr.Message
	body.Error.CorrelationID = CorrelationID(r.Context())
	body.Error.Timestamp = time.Now().UTC()
	body.Error.Request = requestInfo{
		Method:    r.Method,
		Endpoint:  r.URL.Path,
		RequestID: RequestID(r.Context()),
	}
	if logging.IsDevMode() && status >= http.StatusInternalServerError {
		body.Error.Details = appErr.Details
		if body.Error.Details == "" && appErr.Cause != nil {
			body.Error.Details = appErr.Cause.Error()
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// WriteSuccess writes data as a {success:true, data:...} body with the
// given status code.
func WriteSuccess(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": data})
}
