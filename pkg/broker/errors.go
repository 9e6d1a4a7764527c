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

package broker

import (
	apperrors "github.com/samfms/scf/internal/errors"
)

// newUnavailable and newConfigConflict build fresh *AppError values per
// call site; AppError.WithDetails mutates in place, so a shared package
// var would race across concurrent callers.

func newUnavailable(detail string) *apperrors.AppError {
	return apperrors.New(apperrors.TypeServiceUnavailable, "broker is unavailable").WithDetails(detail)
}

func newUnavailablef(format string, args ...any) *apperrors.AppError {
	return apperrors.Newf(apperrors.TypeServiceUnavailable, "broker is unavailable").WithDetailsf(format, args...)
}

// newConfigConflict reports that a queue or exchange already exists on the
// broker with incompatible arguments, per spec §4.1's "QueueConfigConflict"
// contract: declaration must be idempotent under configuration drift, and
// when it is not, the conflict is surfaced rather than silently accepted.
func newConfigConflict(name string, cause error) *apperrors.AppError {
	return apperrors.Wrapf(cause, apperrors.TypeConflict,
		"%s already exists with incompatible configuration", name)
}
