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

package trips

import (
	"fmt"

	apperrors "github.com/samfms/scf/internal/errors"
)

func apperrorsNotFound(resource, id string) *apperrors.AppError {
	return apperrors.NewNotFoundError(fmt.Sprintf("%s %q", resource, id))
}

func errTripNotFound(id string) *apperrors.AppError {
	return apperrors.NewNotFoundError(fmt.Sprintf("trip %q", id))
}

func errScheduledTripNotFound(id string) *apperrors.AppError {
	return apperrors.NewNotFoundError(fmt.Sprintf("scheduled trip %q", id))
}

func errSmartTripNotFound(id string) *apperrors.AppError {
	return apperrors.NewNotFoundError(fmt.Sprintf("smart trip %q", id))
}

func errRecommendationNotFound(id string) *apperrors.AppError {
	return apperrors.NewNotFoundError(fmt.Sprintf("route recommendation %q", id))
}

// errVehicleAlreadyAssigned is spec §5's "per-vehicle-id at most one
// active assignment" invariant violation.
func errVehicleAlreadyAssigned(vehicleID string) *apperrors.AppError {
	return apperrors.New(apperrors.TypeConflict, fmt.Sprintf("vehicle %q already has an active assignment", vehicleID))
}

// errDriverAlreadyAssigned is spec §8's "Assignment exclusivity" testable
// property's driver half: no two active assignments may share a driver
// either.
func errDriverAlreadyAssigned(driverID string) *apperrors.AppError {
	return apperrors.New(apperrors.TypeConflict, fmt.Sprintf("driver %q already has an active assignment", driverID))
}

func errPingSessionAlreadyActive(tripID string) *apperrors.AppError {
	return apperrors.New(apperrors.TypeConflict, fmt.Sprintf("trip %q already has an active ping session", tripID))
}

// errInvalidTransition is raised when UpdateTripStatus is asked to move a
// trip out of a terminal state, or into a state that doesn't follow the
// scheduled -> in_progress -> {paused, completed, cancelled} graph.
func errInvalidTransition(from, to TripStatus) *apperrors.AppError {
	return apperrors.New(apperrors.TypeBusinessRule, fmt.Sprintf("cannot transition trip from %q to %q", from, to))
}

// validTransitions encodes spec §5's trip status graph.
var validTransitions = map[TripStatus]map[TripStatus]bool{
	StatusScheduled:  {StatusInProgress: true, StatusCancelled: true},
	StatusInProgress: {StatusPaused: true, StatusCompleted: true, StatusCancelled: true},
	StatusPaused:     {StatusInProgress: true, StatusCancelled: true, StatusCompleted: true},
	StatusCompleted:  {},
	StatusCancelled:  {},
}

func isValidTransition(from, to TripStatus) bool {
	if from == to {
		return true
	}
	next, ok := validTransitions[from]
	return ok && next[to]
}
