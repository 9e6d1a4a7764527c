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
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"

	apperrors "github.com/samfms/scf/internal/errors"
	"github.com/samfms/scf/internal/geo"
	"github.com/samfms/scf/internal/objectid"
	"github.com/samfms/scf/pkg/trips/migrations"
)

// Postgres is the relational Store implementation, built on sqlx over
// pgx: nested geometry (origin, destination, waypoints, route
// coordinates) is kept as JSONB so the schema doesn't need a join
// table per nested shape, while every field spec §4.9 lists an index
// for is a real scalar column.
type Postgres struct {
	db *sqlx.DB
}

// OpenPostgres connects to dsn via the pgx stdlib driver, wraps it in
// sqlx, and applies every pending migration embedded in
// pkg/trips/migrations before returning.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.TypeStorage, "opening trip store connection")
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, apperrors.Wrap(err, apperrors.TypeStorage, "pinging trip store")
	}

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return nil, apperrors.Wrap(err, apperrors.TypeStorage, "setting migration dialect")
	}
	if err := goose.Up(sqlDB, "."); err != nil {
		return nil, apperrors.Wrap(err, apperrors.TypeStorage, "applying trip store migrations")
	}

	return &Postgres{db: sqlx.NewDb(sqlDB, "pgx")}, nil
}

// NewPostgresFromDB wraps an already-open, already-migrated connection,
// used by callers (e.g. the registry's stdlib pool) that manage the
// *sql.DB lifecycle themselves.
func NewPostgresFromDB(sqlDB *sql.DB) *Postgres {
	return &Postgres{db: sqlx.NewDb(sqlDB, "pgx")}
}

func (p *Postgres) Close() error { return p.db.Close() }

// tripRow mirrors the trips/trip_history table shape for sqlx scanning;
// the nested Place/RouteInfo values travel as JSONB and are
// marshaled/unmarshaled explicitly rather than through struct tags.
type tripRow struct {
	ID             string         `db:"id"`
	Name           string         `db:"name"`
	Description    string         `db:"description"`
	Origin         []byte         `db:"origin"`
	Destination    []byte         `db:"destination"`
	Waypoints      []byte         `db:"waypoints"`
	VehicleID      string         `db:"vehicle_id"`
	DriverID       string         `db:"driver_id"`
	Status         string         `db:"status"`
	Priority       string         `db:"priority"`
	ScheduledStart time.Time      `db:"scheduled_start"`
	ScheduledEnd   time.Time      `db:"scheduled_end"`
	ActualStart    sql.NullTime   `db:"actual_start"`
	ActualEnd      sql.NullTime   `db:"actual_end"`
	RouteInfo      sql.NullString `db:"route_info"`
	CreatedBy      string         `db:"created_by"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

func (r tripRow) toTrip() (Trip, error) {
	t := Trip{
		ID: r.ID, Name: r.Name, Description: r.Description,
		VehicleID: r.VehicleID, DriverID: r.DriverID,
		Status: TripStatus(r.Status), Priority: Priority(r.Priority),
		ScheduledStart: r.ScheduledStart, ScheduledEnd: r.ScheduledEnd,
		CreatedBy: r.CreatedBy, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
	if r.ActualStart.Valid {
		t.ActualStart = &r.ActualStart.Time
	}
	if r.ActualEnd.Valid {
		t.ActualEnd = &r.ActualEnd.Time
	}
	if err := json.Unmarshal(r.Origin, &t.Origin); err != nil {
		return Trip{}, fmt.Errorf("decoding trip origin: %w", err)
	}
	if err := json.Unmarshal(r.Destination, &t.Destination); err != nil {
		return Trip{}, fmt.Errorf("decoding trip destination: %w", err)
	}
	if len(r.Waypoints) > 0 {
		if err := json.Unmarshal(r.Waypoints, &t.Waypoints); err != nil {
			return Trip{}, fmt.Errorf("decoding trip waypoints: %w", err)
		}
	}
	if r.RouteInfo.Valid && r.RouteInfo.String != "" {
		var ri RouteInfo
		if err := json.Unmarshal([]byte(r.RouteInfo.String), &ri); err != nil {
			return Trip{}, fmt.Errorf("decoding trip route info: %w", err)
		}
		t.RouteInfo = &ri
	}
	return t, nil
}

func tripColumns(t Trip) (map[string]any, error) {
	origin, err := json.Marshal(t.Origin)
	if err != nil {
		return nil, err
	}
	destination, err := json.Marshal(t.Destination)
	if err != nil {
		return nil, err
	}
	waypoints, err := json.Marshal(t.Waypoints)
	if err != nil {
		return nil, err
	}
	var routeInfo any
	if t.RouteInfo != nil {
		b, err := json.Marshal(t.RouteInfo)
		if err != nil {
			return nil, err
		}
		routeInfo = string(b)
	}
	return map[string]any{
		"id": t.ID, "name": t.Name, "description": t.Description,
		"origin": string(origin), "destination": string(destination), "waypoints": string(waypoints),
		"vehicle_id": t.VehicleID, "driver_id": t.DriverID,
		"status": string(t.Status), "priority": string(t.Priority),
		"scheduled_start": t.ScheduledStart, "scheduled_end": t.ScheduledEnd,
		"actual_start": nullTime(t.ActualStart), "actual_end": nullTime(t.ActualEnd),
		"route_info": routeInfo,
		"created_by": t.CreatedBy, "created_at": t.CreatedAt, "updated_at": t.UpdatedAt,
	}, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func (p *Postgres) CreateTrip(ctx context.Context, t Trip) (Trip, error) {
	if t.ID == "" {
		t.ID = objectid.New()
	}
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now

	cols, err := tripColumns(t)
	if err != nil {
		return Trip{}, apperrors.Wrap(err, apperrors.TypeStorage, "encoding trip")
	}
	_, err = p.db.NamedExecContext(ctx, `
		INSERT INTO trips (id, name, description, origin, destination, waypoints, vehicle_id, driver_id,
			status, priority, scheduled_start, scheduled_end, actual_start, actual_end, route_info,
			created_by, created_at, updated_at)
		VALUES (:id, :name, :description, :origin, :destination, :waypoints, :vehicle_id, :driver_id,
			:status, :priority, :scheduled_start, :scheduled_end, :actual_start, :actual_end, :route_info,
			:created_by, :created_at, :updated_at)`, cols)
	if err != nil {
		return Trip{}, apperrors.Wrap(err, apperrors.TypeStorage, "inserting trip")
	}
	return t, nil
}

func (p *Postgres) GetTrip(ctx context.Context, id string) (Trip, error) {
	var r tripRow
	err := p.db.GetContext(ctx, &r, `SELECT * FROM trips WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Trip{}, errTripNotFound(id)
	}
	if err != nil {
		return Trip{}, apperrors.Wrap(err, apperrors.TypeStorage, "fetching trip")
	}
	return r.toTrip()
}

func (p *Postgres) ListTrips(ctx context.Context, filter TripFilter) ([]Trip, error) {
	query := `SELECT * FROM trips WHERE ($1 = '' OR vehicle_id = $1) AND ($2 = '' OR driver_id = $2) AND ($3 = '' OR status = $3)`
	var rows []tripRow
	if err := p.db.SelectContext(ctx, &rows, query, filter.VehicleID, filter.DriverID, string(filter.Status)); err != nil {
		return nil, apperrors.Wrap(err, apperrors.TypeStorage, "listing trips")
	}
	out := make([]Trip, 0, len(rows))
	for _, r := range rows {
		t, err := r.toTrip()
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.TypeStorage, "decoding trip row")
		}
		out = append(out, t)
	}
	return out, nil
}

// UpdateTripStatus runs the read-modify-write inside one transaction with
// `SELECT ... FOR UPDATE`, the relational equivalent of the in-memory
// store's single critical section, and performs the terminal-state move
// to trip_history in the same transaction so it commits or rolls back
// atomically (spec §4.9).
func (p *Postgres) UpdateTripStatus(ctx context.Context, id string, newStatus TripStatus, now time.Time) (Trip, error) {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return Trip{}, apperrors.Wrap(err, apperrors.TypeStorage, "beginning trip status transaction")
	}
	defer tx.Rollback()

	var r tripRow
	if err := tx.GetContext(ctx, &r, `SELECT * FROM trips WHERE id = $1 FOR UPDATE`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Trip{}, errTripNotFound(id)
		}
		return Trip{}, apperrors.Wrap(err, apperrors.TypeStorage, "locking trip row")
	}

	t, err := r.toTrip()
	if err != nil {
		return Trip{}, apperrors.Wrap(err, apperrors.TypeStorage, "decoding trip row")
	}
	if !isValidTransition(t.Status, newStatus) {
		return Trip{}, errInvalidTransition(t.Status, newStatus)
	}

	t.Status = newStatus
	t.UpdatedAt = now
	switch {
	case newStatus == StatusInProgress && t.ActualStart == nil:
		t.ActualStart = &now
	case newStatus.IsTerminal() && t.ActualEnd == nil:
		t.ActualEnd = &now
	}

	cols, err := tripColumns(t)
	if err != nil {
		return Trip{}, apperrors.Wrap(err, apperrors.TypeStorage, "encoding trip")
	}

	if newStatus.IsTerminal() {
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO trip_history (id, name, description, origin, destination, waypoints, vehicle_id, driver_id,
				status, priority, scheduled_start, scheduled_end, actual_start, actual_end, route_info,
				created_by, created_at, updated_at)
			VALUES (:id, :name, :description, :origin, :destination, :waypoints, :vehicle_id, :driver_id,
				:status, :priority, :scheduled_start, :scheduled_end, :actual_start, :actual_end, :route_info,
				:created_by, :created_at, :updated_at)`, cols); err != nil {
			return Trip{}, apperrors.Wrap(err, apperrors.TypeStorage, "archiving trip to history")
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM trips WHERE id = $1`, id); err != nil {
			return Trip{}, apperrors.Wrap(err, apperrors.TypeStorage, "removing trip after archival")
		}
	} else {
		if _, err := tx.NamedExecContext(ctx, `
			UPDATE trips SET status = :status, priority = :priority, actual_start = :actual_start,
				actual_end = :actual_end, updated_at = :updated_at WHERE id = :id`, cols); err != nil {
			return Trip{}, apperrors.Wrap(err, apperrors.TypeStorage, "updating trip status")
		}
	}

	if err := tx.Commit(); err != nil {
		return Trip{}, apperrors.Wrap(err, apperrors.TypeStorage, "committing trip status transaction")
	}
	return t, nil
}

func (p *Postgres) UpdateTripRoute(ctx context.Context, id string, route RouteInfo) (Trip, error) {
	b, err := json.Marshal(route)
	if err != nil {
		return Trip{}, apperrors.Wrap(err, apperrors.TypeStorage, "encoding route info")
	}
	_, err = p.db.ExecContext(ctx, `UPDATE trips SET route_info = $1, updated_at = $2 WHERE id = $3`, string(b), time.Now().UTC(), id)
	if err != nil {
		return Trip{}, apperrors.Wrap(err, apperrors.TypeStorage, "updating trip route")
	}
	return p.GetTrip(ctx, id)
}

func (p *Postgres) GetTripHistory(ctx context.Context, id string) (Trip, error) {
	var r tripRow
	err := p.db.GetContext(ctx, &r, `SELECT * FROM trip_history WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Trip{}, errTripNotFound(id)
	}
	if err != nil {
		return Trip{}, apperrors.Wrap(err, apperrors.TypeStorage, "fetching archived trip")
	}
	return r.toTrip()
}

func (p *Postgres) ListTripHistory(ctx context.Context, filter TripFilter) ([]Trip, error) {
	query := `SELECT * FROM trip_history WHERE ($1 = '' OR vehicle_id = $1) AND ($2 = '' OR driver_id = $2) AND ($3 = '' OR status = $3)`
	var rows []tripRow
	if err := p.db.SelectContext(ctx, &rows, query, filter.VehicleID, filter.DriverID, string(filter.Status)); err != nil {
		return nil, apperrors.Wrap(err, apperrors.TypeStorage, "listing archived trips")
	}
	out := make([]Trip, 0, len(rows))
	for _, r := range rows {
		t, err := r.toTrip()
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.TypeStorage, "decoding archived trip row")
		}
		out = append(out, t)
	}
	return out, nil
}

// --- scheduled / smart trips -------------------------------------------------------

type scheduledTripRow struct {
	ID          string    `db:"id"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	Origin      []byte    `db:"origin"`
	Destination []byte    `db:"destination"`
	Waypoints   []byte    `db:"waypoints"`
	Priority    string    `db:"priority"`
	Status      string    `db:"status"`
	StartWindow time.Time `db:"start_window"`
	EndWindow   time.Time `db:"end_window"`
	CreatedBy   string    `db:"created_by"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r scheduledTripRow) toScheduledTrip() (ScheduledTrip, error) {
	st := ScheduledTrip{
		Trip: Trip{
			ID: r.ID, Name: r.Name, Description: r.Description,
			Status: TripStatus(r.Status), Priority: Priority(r.Priority),
			CreatedBy: r.CreatedBy, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
		},
		StartWindow: r.StartWindow, EndWindow: r.EndWindow,
	}
	if err := json.Unmarshal(r.Origin, &st.Origin); err != nil {
		return ScheduledTrip{}, err
	}
	if err := json.Unmarshal(r.Destination, &st.Destination); err != nil {
		return ScheduledTrip{}, err
	}
	if len(r.Waypoints) > 0 {
		if err := json.Unmarshal(r.Waypoints, &st.Waypoints); err != nil {
			return ScheduledTrip{}, err
		}
	}
	return st, nil
}

func (p *Postgres) CreateScheduledTrip(ctx context.Context, st ScheduledTrip) (ScheduledTrip, error) {
	if st.ID == "" {
		st.ID = objectid.New()
	}
	now := time.Now().UTC()
	st.CreatedAt, st.UpdatedAt = now, now
	if st.Status == "" {
		st.Status = StatusScheduled
	}

	origin, err := json.Marshal(st.Origin)
	if err != nil {
		return ScheduledTrip{}, apperrors.Wrap(err, apperrors.TypeStorage, "encoding scheduled trip origin")
	}
	destination, err := json.Marshal(st.Destination)
	if err != nil {
		return ScheduledTrip{}, apperrors.Wrap(err, apperrors.TypeStorage, "encoding scheduled trip destination")
	}
	waypoints, err := json.Marshal(st.Waypoints)
	if err != nil {
		return ScheduledTrip{}, apperrors.Wrap(err, apperrors.TypeStorage, "encoding scheduled trip waypoints")
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO scheduled_trips (id, name, description, origin, destination, waypoints, priority, status,
			start_window, end_window, created_by, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		st.ID, st.Name, st.Description, string(origin), string(destination), string(waypoints),
		string(st.Priority), string(st.Status), st.StartWindow, st.EndWindow, st.CreatedBy, st.CreatedAt, st.UpdatedAt)
	if err != nil {
		return ScheduledTrip{}, apperrors.Wrap(err, apperrors.TypeStorage, "inserting scheduled trip")
	}
	return st, nil
}

func (p *Postgres) GetScheduledTrip(ctx context.Context, id string) (ScheduledTrip, error) {
	var r scheduledTripRow
	err := p.db.GetContext(ctx, &r, `SELECT * FROM scheduled_trips WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return ScheduledTrip{}, errScheduledTripNotFound(id)
	}
	if err != nil {
		return ScheduledTrip{}, apperrors.Wrap(err, apperrors.TypeStorage, "fetching scheduled trip")
	}
	return r.toScheduledTrip()
}

func (p *Postgres) DeleteScheduledTrip(ctx context.Context, id string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM scheduled_trips WHERE id = $1`, id)
	if err != nil {
		return apperrors.Wrap(err, apperrors.TypeStorage, "deleting scheduled trip")
	}
	return nil
}

type smartTripRow struct {
	ID              string    `db:"id"`
	ScheduledTripID string    `db:"scheduled_trip_id"`
	OptimizedStart  time.Time `db:"optimized_start"`
	OptimizedEnd    time.Time `db:"optimized_end"`
	VehicleID       string    `db:"vehicle_id"`
	DriverID        string    `db:"driver_id"`
	RouteInfo       []byte    `db:"route_info"`
	Reasoning       []byte    `db:"reasoning"`
	CreatedAt       time.Time `db:"created_at"`
}

func (r smartTripRow) toSmartTrip() (SmartTrip, error) {
	st := SmartTrip{
		ID: r.ID, ScheduledTripID: r.ScheduledTripID,
		OptimizedStart: r.OptimizedStart, OptimizedEnd: r.OptimizedEnd,
		VehicleID: r.VehicleID, DriverID: r.DriverID, CreatedAt: r.CreatedAt,
	}
	if err := json.Unmarshal(r.RouteInfo, &st.RouteInfo); err != nil {
		return SmartTrip{}, err
	}
	if len(r.Reasoning) > 0 {
		if err := json.Unmarshal(r.Reasoning, &st.Reasoning); err != nil {
			return SmartTrip{}, err
		}
	}
	return st, nil
}

func (p *Postgres) PutSmartTrip(ctx context.Context, st SmartTrip) (SmartTrip, error) {
	if st.ID == "" {
		st.ID = objectid.New()
	}
	if st.CreatedAt.IsZero() {
		st.CreatedAt = time.Now().UTC()
	}
	routeInfo, err := json.Marshal(st.RouteInfo)
	if err != nil {
		return SmartTrip{}, apperrors.Wrap(err, apperrors.TypeStorage, "encoding smart trip route info")
	}
	reasoning, err := json.Marshal(st.Reasoning)
	if err != nil {
		return SmartTrip{}, apperrors.Wrap(err, apperrors.TypeStorage, "encoding smart trip reasoning")
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO smart_trips (id, scheduled_trip_id, optimized_start, optimized_end, vehicle_id, driver_id, route_info, reasoning, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (scheduled_trip_id) DO UPDATE SET
			optimized_start = EXCLUDED.optimized_start, optimized_end = EXCLUDED.optimized_end,
			vehicle_id = EXCLUDED.vehicle_id, driver_id = EXCLUDED.driver_id,
			route_info = EXCLUDED.route_info, reasoning = EXCLUDED.reasoning`,
		st.ID, st.ScheduledTripID, st.OptimizedStart, st.OptimizedEnd, st.VehicleID, st.DriverID,
		string(routeInfo), string(reasoning), st.CreatedAt)
	if err != nil {
		return SmartTrip{}, apperrors.Wrap(err, apperrors.TypeStorage, "upserting smart trip")
	}
	return st, nil
}

func (p *Postgres) GetSmartTripByScheduledTrip(ctx context.Context, scheduledTripID string) (SmartTrip, error) {
	var r smartTripRow
	err := p.db.GetContext(ctx, &r, `SELECT * FROM smart_trips WHERE scheduled_trip_id = $1`, scheduledTripID)
	if errors.Is(err, sql.ErrNoRows) {
		return SmartTrip{}, errSmartTripNotFound(scheduledTripID)
	}
	if err != nil {
		return SmartTrip{}, apperrors.Wrap(err, apperrors.TypeStorage, "fetching smart trip")
	}
	return r.toSmartTrip()
}

func (p *Postgres) DeleteSmartTrip(ctx context.Context, id string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM smart_trips WHERE id = $1`, id)
	if err != nil {
		return apperrors.Wrap(err, apperrors.TypeStorage, "deleting smart trip")
	}
	return nil
}

// --- vehicle assignments -------------------------------------------------------

// CreateAssignment relies on two partial unique indexes — one on
// vehicle_id, one on driver_id, both WHERE end_time IS NULL — to enforce
// spec §8's assignment-exclusivity property at the database level rather
// than with an application-side lock. Each index violation is translated
// to the matching Conflict error the in-memory store returns directly.
func (p *Postgres) CreateAssignment(ctx context.Context, a VehicleAssignment) (VehicleAssignment, error) {
	if a.ID == "" {
		a.ID = objectid.New()
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO vehicle_assignments (id, trip_id, vehicle_id, driver_id, start_time, end_time)
		VALUES ($1,$2,$3,$4,$5,$6)`, a.ID, a.TripID, a.VehicleID, a.DriverID, a.Start, nullTime(a.End))
	if err != nil {
		if isUniqueViolation(err) {
			if constraintName(err) == "vehicle_assignments_active_driver_idx" {
				return VehicleAssignment{}, errDriverAlreadyAssigned(a.DriverID)
			}
			return VehicleAssignment{}, errVehicleAlreadyAssigned(a.VehicleID)
		}
		return VehicleAssignment{}, apperrors.Wrap(err, apperrors.TypeStorage, "inserting vehicle assignment")
	}
	return a, nil
}

func (p *Postgres) EndAssignment(ctx context.Context, id string, end time.Time) error {
	_, err := p.db.ExecContext(ctx, `UPDATE vehicle_assignments SET end_time = $1 WHERE id = $2`, end, id)
	if err != nil {
		return apperrors.Wrap(err, apperrors.TypeStorage, "ending vehicle assignment")
	}
	return nil
}

func (p *Postgres) ActiveAssignmentForVehicle(ctx context.Context, vehicleID string) (VehicleAssignment, bool, error) {
	var a struct {
		ID        string       `db:"id"`
		TripID    string       `db:"trip_id"`
		VehicleID string       `db:"vehicle_id"`
		DriverID  string       `db:"driver_id"`
		Start     time.Time    `db:"start_time"`
		End       sql.NullTime `db:"end_time"`
	}
	err := p.db.GetContext(ctx, &a, `SELECT * FROM vehicle_assignments WHERE vehicle_id = $1 AND end_time IS NULL`, vehicleID)
	if errors.Is(err, sql.ErrNoRows) {
		return VehicleAssignment{}, false, nil
	}
	if err != nil {
		return VehicleAssignment{}, false, apperrors.Wrap(err, apperrors.TypeStorage, "fetching active assignment")
	}
	out := VehicleAssignment{ID: a.ID, TripID: a.TripID, VehicleID: a.VehicleID, DriverID: a.DriverID, Start: a.Start}
	if a.End.Valid {
		out.End = &a.End.Time
	}
	return out, true, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// constraintName extracts the violated constraint/index name from a pgx
// error, used to disambiguate which of two partial unique indexes a
// CreateAssignment insert tripped.
func constraintName(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}

// --- location tracking -------------------------------------------------------

func (p *Postgres) UpsertVehicleLocation(ctx context.Context, loc VehicleLocation) error {
	if loc.UpdatedAt.IsZero() {
		loc.UpdatedAt = time.Now().UTC()
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO vehicle_locations (vehicle_id, lat, lng, speed_kmh, heading, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (vehicle_id) DO UPDATE SET
			lat = EXCLUDED.lat, lng = EXCLUDED.lng, speed_kmh = EXCLUDED.speed_kmh,
			heading = EXCLUDED.heading, updated_at = EXCLUDED.updated_at`,
		loc.VehicleID, loc.Location.Lat, loc.Location.Lng, loc.SpeedKMH, loc.Heading, loc.UpdatedAt)
	if err != nil {
		return apperrors.Wrap(err, apperrors.TypeStorage, "upserting vehicle location")
	}
	return nil
}

func (p *Postgres) GetVehicleLocation(ctx context.Context, vehicleID string) (VehicleLocation, bool, error) {
	var row struct {
		VehicleID string    `db:"vehicle_id"`
		Lat       float64   `db:"lat"`
		Lng       float64   `db:"lng"`
		SpeedKMH  float64   `db:"speed_kmh"`
		Heading   float64   `db:"heading"`
		UpdatedAt time.Time `db:"updated_at"`
	}
	err := p.db.GetContext(ctx, &row, `SELECT * FROM vehicle_locations WHERE vehicle_id = $1`, vehicleID)
	if errors.Is(err, sql.ErrNoRows) {
		return VehicleLocation{}, false, nil
	}
	if err != nil {
		return VehicleLocation{}, false, apperrors.Wrap(err, apperrors.TypeStorage, "fetching vehicle location")
	}
	return VehicleLocation{
		VehicleID: row.VehicleID, Location: geo.Point{Lat: row.Lat, Lng: row.Lng},
		SpeedKMH: row.SpeedKMH, Heading: row.Heading, UpdatedAt: row.UpdatedAt,
	}, true, nil
}

func (p *Postgres) AppendLocationHistory(ctx context.Context, h LocationHistory) error {
	if h.Timestamp.IsZero() {
		h.Timestamp = time.Now().UTC()
	}
	_, err := p.db.ExecContext(ctx, `INSERT INTO location_history (vehicle_id, lat, lng, speed_kmh, timestamp) VALUES ($1,$2,$3,$4,$5)`,
		h.VehicleID, h.Location.Lat, h.Location.Lng, h.SpeedKMH, h.Timestamp)
	if err != nil {
		return apperrors.Wrap(err, apperrors.TypeStorage, "appending location history")
	}
	return nil
}

func (p *Postgres) PurgeLocationHistoryBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM location_history WHERE timestamp < $1`, cutoff)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.TypeStorage, "purging location history")
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// --- ping sessions / violations -------------------------------------------------------

func (p *Postgres) OpenPingSession(ctx context.Context, s PingSession) (PingSession, error) {
	s.IsActive = true
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO ping_sessions (trip_id, started_at, last_ping_at, next_ping_expected_at, is_active, violations_count)
		VALUES ($1,$2,$3,$4,true,$5)`, s.TripID, s.StartedAt, s.LastPingAt, s.NextPingExpectedAt, s.ViolationsCount)
	if err != nil {
		if isUniqueViolation(err) {
			return PingSession{}, errPingSessionAlreadyActive(s.TripID)
		}
		return PingSession{}, apperrors.Wrap(err, apperrors.TypeStorage, "opening ping session")
	}
	return s, nil
}

func (p *Postgres) GetActivePingSession(ctx context.Context, tripID string) (PingSession, bool, error) {
	var s PingSession
	err := p.db.GetContext(ctx, &s, `SELECT * FROM ping_sessions WHERE trip_id = $1 AND is_active = true`, tripID)
	if errors.Is(err, sql.ErrNoRows) {
		return PingSession{}, false, nil
	}
	if err != nil {
		return PingSession{}, false, apperrors.Wrap(err, apperrors.TypeStorage, "fetching active ping session")
	}
	return s, true, nil
}

func (p *Postgres) UpdatePingSession(ctx context.Context, s PingSession) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE ping_sessions SET last_ping_at = $1, next_ping_expected_at = $2, violations_count = $3
		WHERE trip_id = $4 AND is_active = true`, s.LastPingAt, s.NextPingExpectedAt, s.ViolationsCount, s.TripID)
	if err != nil {
		return apperrors.Wrap(err, apperrors.TypeStorage, "updating ping session")
	}
	return nil
}

func (p *Postgres) CloseActivePingSession(ctx context.Context, tripID string) error {
	_, err := p.db.ExecContext(ctx, `UPDATE ping_sessions SET is_active = false WHERE trip_id = $1 AND is_active = true`, tripID)
	if err != nil {
		return apperrors.Wrap(err, apperrors.TypeStorage, "closing ping session")
	}
	return nil
}

func (p *Postgres) ListActivePingSessions(ctx context.Context) ([]PingSession, error) {
	var out []PingSession
	if err := p.db.SelectContext(ctx, &out, `SELECT * FROM ping_sessions WHERE is_active = true`); err != nil {
		return nil, apperrors.Wrap(err, apperrors.TypeStorage, "listing active ping sessions")
	}
	return out, nil
}

func (p *Postgres) RecordViolation(ctx context.Context, v Violation) (Violation, error) {
	if v.ID == "" {
		v.ID = objectid.New()
	}
	if v.At.IsZero() {
		v.At = time.Now().UTC()
	}
	_, err := p.db.ExecContext(ctx, `INSERT INTO violations (id, trip_id, type, details, at) VALUES ($1,$2,$3,$4,$5)`,
		v.ID, v.TripID, string(v.Type), v.Details, v.At)
	if err != nil {
		return Violation{}, apperrors.Wrap(err, apperrors.TypeStorage, "recording violation")
	}
	return v, nil
}

// --- route recommendations -------------------------------------------------------

func (p *Postgres) PutRouteRecommendation(ctx context.Context, r RouteRecommendation) (RouteRecommendation, error) {
	if r.ID == "" {
		r.ID = objectid.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	current, err := json.Marshal(r.CurrentRoute)
	if err != nil {
		return RouteRecommendation{}, apperrors.Wrap(err, apperrors.TypeStorage, "encoding current route")
	}
	recommended, err := json.Marshal(r.RecommendedRoute)
	if err != nil {
		return RouteRecommendation{}, apperrors.Wrap(err, apperrors.TypeStorage, "encoding recommended route")
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO route_recommendations (id, trip_id, vehicle_id, current_route, recommended_route, time_savings_s, traffic_severity, confidence, reason, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		r.ID, r.TripID, r.VehicleID, string(current), string(recommended), r.TimeSavingsS, string(r.TrafficSeverity), r.Confidence, r.Reason, r.CreatedAt)
	if err != nil {
		return RouteRecommendation{}, apperrors.Wrap(err, apperrors.TypeStorage, "inserting route recommendation")
	}
	return r, nil
}

type routeRecommendationRow struct {
	ID               string    `db:"id"`
	TripID           string    `db:"trip_id"`
	VehicleID        string    `db:"vehicle_id"`
	CurrentRoute     []byte    `db:"current_route"`
	RecommendedRoute []byte    `db:"recommended_route"`
	TimeSavingsS     float64   `db:"time_savings_s"`
	TrafficSeverity  string    `db:"traffic_severity"`
	Confidence       float64   `db:"confidence"`
	Reason           string    `db:"reason"`
	CreatedAt        time.Time `db:"created_at"`
}

func (r routeRecommendationRow) toRouteRecommendation() (RouteRecommendation, error) {
	out := RouteRecommendation{
		ID: r.ID, TripID: r.TripID, VehicleID: r.VehicleID, TimeSavingsS: r.TimeSavingsS,
		TrafficSeverity: TrafficSeverity(r.TrafficSeverity), Confidence: r.Confidence,
		Reason: r.Reason, CreatedAt: r.CreatedAt,
	}
	if err := json.Unmarshal(r.CurrentRoute, &out.CurrentRoute); err != nil {
		return RouteRecommendation{}, err
	}
	if err := json.Unmarshal(r.RecommendedRoute, &out.RecommendedRoute); err != nil {
		return RouteRecommendation{}, err
	}
	return out, nil
}

func (p *Postgres) GetRouteRecommendation(ctx context.Context, id string) (RouteRecommendation, error) {
	var r routeRecommendationRow
	err := p.db.GetContext(ctx, &r, `SELECT * FROM route_recommendations WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return RouteRecommendation{}, errRecommendationNotFound(id)
	}
	if err != nil {
		return RouteRecommendation{}, apperrors.Wrap(err, apperrors.TypeStorage, "fetching route recommendation")
	}
	return r.toRouteRecommendation()
}

func (p *Postgres) DeleteRouteRecommendation(ctx context.Context, id string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM route_recommendations WHERE id = $1`, id)
	if err != nil {
		return apperrors.Wrap(err, apperrors.TypeStorage, "deleting route recommendation")
	}
	return nil
}

// --- notifications -------------------------------------------------------

func (p *Postgres) CreateNotification(ctx context.Context, n Notification) (Notification, error) {
	if n.ID == "" {
		n.ID = objectid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(n.Data)
	if err != nil {
		return Notification{}, apperrors.Wrap(err, apperrors.TypeStorage, "encoding notification data")
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO notifications (id, recipient_user_id, type, title, message, data, created_at, read_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		n.ID, n.RecipientUserID, n.Type, n.Title, n.Message, string(data), n.CreatedAt, nullTime(n.ReadAt))
	if err != nil {
		return Notification{}, apperrors.Wrap(err, apperrors.TypeStorage, "inserting notification")
	}
	return n, nil
}

type notificationRow struct {
	ID              string       `db:"id"`
	RecipientUserID string       `db:"recipient_user_id"`
	Type            string       `db:"type"`
	Title           string       `db:"title"`
	Message         string       `db:"message"`
	Data            []byte       `db:"data"`
	CreatedAt       time.Time    `db:"created_at"`
	ReadAt          sql.NullTime `db:"read_at"`
}

func (r notificationRow) toNotification() (Notification, error) {
	n := Notification{
		ID: r.ID, RecipientUserID: r.RecipientUserID, Type: r.Type,
		Title: r.Title, Message: r.Message, CreatedAt: r.CreatedAt,
	}
	if r.ReadAt.Valid {
		n.ReadAt = &r.ReadAt.Time
	}
	if len(r.Data) > 0 {
		if err := json.Unmarshal(r.Data, &n.Data); err != nil {
			return Notification{}, err
		}
	}
	return n, nil
}

func (p *Postgres) ListUnreadNotifications(ctx context.Context, recipientUserID string) ([]Notification, error) {
	var rows []notificationRow
	if err := p.db.SelectContext(ctx, &rows, `SELECT * FROM notifications WHERE recipient_user_id = $1 AND read_at IS NULL`, recipientUserID); err != nil {
		return nil, apperrors.Wrap(err, apperrors.TypeStorage, "listing unread notifications")
	}
	out := make([]Notification, 0, len(rows))
	for _, r := range rows {
		n, err := r.toNotification()
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.TypeStorage, "decoding notification row")
		}
		out = append(out, n)
	}
	return out, nil
}

func (p *Postgres) MarkNotificationRead(ctx context.Context, id string, at time.Time) error {
	_, err := p.db.ExecContext(ctx, `UPDATE notifications SET read_at = $1 WHERE id = $2`, at, id)
	if err != nil {
		return apperrors.Wrap(err, apperrors.TypeStorage, "marking notification read")
	}
	return nil
}
