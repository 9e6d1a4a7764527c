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
	"fmt"
	"net/http"

	"go.uber.org/zap"

	apperrors "github.com/samfms/scf/internal/errors"
	"github.com/samfms/scf/internal/logging"
)

// Recover converts a panic in a downstream handler into the fixed
// error body instead of letting it crash the connection, mirroring
// chi's own Recoverer but emitting the taxonomy's Internal error shape.
func Recover(logger *zap.Logger) func(http.Handler) http.Handler {
	logger = logging.NopIfNil(logger)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("middleware: recovered from panic",
						zap.String("path", r.URL.Path),
						zap.String("correlation_id", CorrelationID(r.Context())),
						zap.Any("panic", rec))
					WriteError(w, r, apperrors.New(apperrors.TypeInternal, fmt.Sprintf("%v", rec)))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
