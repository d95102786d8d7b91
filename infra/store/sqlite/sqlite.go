// Package sqlite implements store.Store on SQLite through the pure Go
// modernc driver. Conditional updates map to UPDATE ... WHERE status = ?,
// and partial unique indexes keep at most one pending and one accepted
// assignment per booking.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kilianp07/jobroute/core/model"
	"github.com/kilianp07/jobroute/core/store"
)

// Store persists dispatch state in a SQLite database.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open opens or creates the database at path and ensures schema. Use
// ":memory:" for a private in-memory database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection serialises writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func nanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

type scanner interface {
	Scan(dest ...any) error
}

const assignmentCols = `id, booking_id, provider_id, method, assignment_order, status, score,
    assigned_at, expires_at, responded_at, response_time, decline_reason, created_at, updated_at`

func scanAssignment(r scanner) (model.Assignment, error) {
	var a model.Assignment
	var method, status string
	var assigned, expires, responded, respTime, created, updated int64
	err := r.Scan(&a.ID, &a.BookingID, &a.ProviderID, &method, &a.Order, &status, &a.Score,
		&assigned, &expires, &responded, &respTime, &a.DeclineReason, &created, &updated)
	if err != nil {
		return a, err
	}
	a.Method = model.AssignmentMethod(method)
	a.Status = model.AssignmentStatus(status)
	a.AssignedAt = fromNanos(assigned)
	a.ExpiresAt = fromNanos(expires)
	a.RespondedAt = fromNanos(responded)
	a.ResponseTime = time.Duration(respTime)
	a.CreatedAt = fromNanos(created)
	a.UpdatedAt = fromNanos(updated)
	return a, nil
}

func collectAssignments(rows *sql.Rows) ([]model.Assignment, error) {
	defer func() { _ = rows.Close() }()
	var out []model.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) CreateAssignments(ctx context.Context, as []model.Assignment) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	maxOrder := map[string]int{}
	for _, a := range as {
		if _, ok := maxOrder[a.BookingID]; ok {
			continue
		}
		var m int
		if err = tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(assignment_order), 0) FROM assignments WHERE booking_id = ?`, a.BookingID).Scan(&m); err != nil {
			return err
		}
		maxOrder[a.BookingID] = m
	}
	for _, a := range as {
		if a.Order <= maxOrder[a.BookingID] {
			return fmt.Errorf("order %d not increasing for booking %s: %w", a.Order, a.BookingID, store.ErrConflict)
		}
		maxOrder[a.BookingID] = a.Order
		_, err = tx.ExecContext(ctx, `INSERT INTO assignments (`+assignmentCols+`)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.BookingID, a.ProviderID, string(a.Method), a.Order, string(a.Status), a.Score,
			nanos(a.AssignedAt), nanos(a.ExpiresAt), nanos(a.RespondedAt), int64(a.ResponseTime),
			a.DeclineReason, nanos(a.CreatedAt), nanos(a.UpdatedAt))
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("insert assignment %s: %w", a.ID, store.ErrConflict)
			}
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) GetAssignment(ctx context.Context, id string) (model.Assignment, error) {
	a, err := scanAssignment(s.db.QueryRowContext(ctx,
		`SELECT `+assignmentCols+` FROM assignments WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return a, store.ErrNotFound
	}
	return a, err
}

func (s *Store) ListByBooking(ctx context.Context, bookingID string) ([]model.Assignment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+assignmentCols+` FROM assignments WHERE booking_id = ? ORDER BY assignment_order`, bookingID)
	if err != nil {
		return nil, err
	}
	return collectAssignments(rows)
}

func (s *Store) Transition(ctx context.Context, id string, from model.AssignmentStatus, upd model.AssignmentUpdate) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE assignments SET
            status = ?,
            updated_at = ?,
            responded_at = CASE WHEN ? > 0 THEN ? ELSE responded_at END,
            response_time = CASE WHEN ? > 0 THEN ? ELSE response_time END,
            decline_reason = CASE WHEN ? <> '' THEN ? ELSE decline_reason END
        WHERE id = ? AND status = ?`,
		string(upd.Status), nanos(upd.At),
		nanos(upd.RespondedAt), nanos(upd.RespondedAt),
		nanos(upd.RespondedAt), int64(upd.ResponseTime),
		upd.DeclineReason, upd.DeclineReason,
		id, string(from))
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 1 {
		return true, nil
	}
	return false, s.exists(ctx, id)
}

func (s *Store) exists(ctx context.Context, id string) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM assignments WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func (s *Store) PromoteNext(ctx context.Context, bookingID string, assignedAt, expiresAt time.Time) (model.Assignment, bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE assignments
        SET status = 'pending', assigned_at = ?, expires_at = ?, updated_at = ?
        WHERE id = (
            SELECT id FROM assignments
            WHERE booking_id = ? AND status = 'scheduled'
            ORDER BY assignment_order LIMIT 1)
        AND status = 'scheduled'
        AND NOT EXISTS (
            SELECT 1 FROM assignments
            WHERE booking_id = ? AND status IN ('pending', 'accepted'))`,
		nanos(assignedAt), nanos(expiresAt), nanos(assignedAt), bookingID, bookingID)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Assignment{}, false, nil
		}
		return model.Assignment{}, false, err
	}
	n, err := res.RowsAffected()
	if err != nil || n == 0 {
		return model.Assignment{}, false, err
	}
	a, err := scanAssignment(s.db.QueryRowContext(ctx, `SELECT `+assignmentCols+` FROM assignments
        WHERE booking_id = ? AND status = 'pending'`, bookingID))
	if err != nil {
		return model.Assignment{}, false, err
	}
	return a, true, nil
}

func (s *Store) CancelSiblings(ctx context.Context, bookingID, exceptID string, at time.Time) ([]model.Assignment, error) {
	rows, err := s.db.QueryContext(ctx, `UPDATE assignments SET status = 'cancelled', updated_at = ?
        WHERE booking_id = ? AND id <> ? AND status IN ('scheduled', 'pending')
        RETURNING `+assignmentCols, nanos(at), bookingID, exceptID)
	if err != nil {
		return nil, err
	}
	out, err := collectAssignments(rows)
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (s *Store) ListExpired(ctx context.Context, now time.Time, limit int) ([]model.Assignment, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+assignmentCols+` FROM assignments
        WHERE status = 'pending' AND expires_at > 0 AND expires_at < ?
        ORDER BY expires_at, id LIMIT ?`, nanos(now), limit)
	if err != nil {
		return nil, err
	}
	return collectAssignments(rows)
}

func (s *Store) Query(ctx context.Context, q store.AssignmentQuery) ([]model.Assignment, int, error) {
	q.Normalize()
	where := []string{"1=1"}
	var args []any
	from := "assignments a"
	switch q.Role {
	case store.RoleProvider:
		where = append(where, "a.provider_id = ?")
		args = append(args, q.Identity)
	case store.RoleCustomer:
		from = "assignments a JOIN bookings b ON b.id = a.booking_id"
		where = append(where, "b.customer_id = ?")
		args = append(args, q.Identity)
	}
	if len(q.Statuses) > 0 {
		ph := make([]string, len(q.Statuses))
		for i, st := range q.Statuses {
			ph[i] = "?"
			args = append(args, string(st))
		}
		where = append(where, "a.status IN ("+strings.Join(ph, ", ")+")")
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+from+` WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	cols := "a." + strings.ReplaceAll(strings.Join(strings.Fields(assignmentCols), " "), ", ", ", a.")
	rows, err := s.db.QueryContext(ctx, `SELECT `+cols+` FROM `+from+` WHERE `+cond+
		` ORDER BY a.created_at DESC, a.booking_id, a.assignment_order LIMIT ? OFFSET ?`,
		append(args, q.PageSize, q.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	res, err := collectAssignments(rows)
	return res, total, err
}

const bookingCols = `id, customer_id, service_type, lat, lng, zip, status, provider_id, created_at, updated_at`

func scanBooking(r scanner) (model.Booking, error) {
	var b model.Booking
	var lat, lng sql.NullFloat64
	var status string
	var created, updated int64
	if err := r.Scan(&b.ID, &b.CustomerID, &b.ServiceType, &lat, &lng, &b.Location.Zip,
		&status, &b.ProviderID, &created, &updated); err != nil {
		return b, err
	}
	if lat.Valid && lng.Valid {
		b.Location.Point = &model.Point{Lat: lat.Float64, Lng: lng.Float64}
	}
	b.Status = model.BookingStatus(status)
	b.CreatedAt = fromNanos(created)
	b.UpdatedAt = fromNanos(updated)
	return b, nil
}

func point(p *model.Point) (sql.NullFloat64, sql.NullFloat64) {
	if p == nil {
		return sql.NullFloat64{}, sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: p.Lat, Valid: true}, sql.NullFloat64{Float64: p.Lng, Valid: true}
}

func (s *Store) GetBooking(ctx context.Context, id string) (model.Booking, error) {
	b, err := scanBooking(s.db.QueryRowContext(ctx, `SELECT `+bookingCols+` FROM bookings WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return b, store.ErrNotFound
	}
	return b, err
}

func (s *Store) UpsertBooking(ctx context.Context, b model.Booking) error {
	lat, lng := point(b.Location.Point)
	_, err := s.db.ExecContext(ctx, `INSERT INTO bookings (`+bookingCols+`)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            customer_id = excluded.customer_id,
            service_type = excluded.service_type,
            lat = excluded.lat,
            lng = excluded.lng,
            zip = excluded.zip,
            status = excluded.status,
            provider_id = excluded.provider_id,
            updated_at = excluded.updated_at`,
		b.ID, b.CustomerID, b.ServiceType, lat, lng, b.Location.Zip, string(b.Status), b.ProviderID,
		nanos(b.CreatedAt), nanos(b.UpdatedAt))
	return err
}

func (s *Store) TransitionBooking(ctx context.Context, id string, from []model.BookingStatus, to model.BookingStatus, providerID string, at time.Time) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}
	ph := make([]string, len(from))
	args := []any{string(to), providerID, providerID, nanos(at), id}
	for i, f := range from {
		ph[i] = "?"
		args = append(args, string(f))
	}
	res, err := s.db.ExecContext(ctx, `UPDATE bookings SET
            status = ?,
            provider_id = CASE WHEN ? <> '' THEN ? ELSE provider_id END,
            updated_at = ?
        WHERE id = ? AND status IN (`+strings.Join(ph, ", ")+`)`, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 1 {
		return true, nil
	}
	var one int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM bookings WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, store.ErrNotFound
	}
	return false, err
}

func (s *Store) ListStalledBookings(ctx context.Context, limit int) ([]model.Booking, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+bookingCols+` FROM bookings b
        WHERE b.status = 'pending'
        AND EXISTS (SELECT 1 FROM assignments a WHERE a.booking_id = b.id)
        AND NOT EXISTS (SELECT 1 FROM assignments a WHERE a.booking_id = b.id AND a.status = 'pending')
        ORDER BY b.id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) UpsertProvider(ctx context.Context, p model.Provider) error {
	types, err := json.Marshal(p.ServiceTypes)
	if err != nil {
		return err
	}
	cov, err := json.Marshal(p.Coverage)
	if err != nil {
		return err
	}
	lat, lng := point(p.Home.Point)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO providers (id, name, service_types, home_lat, home_lng, home_zip, coverage, active)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            name = excluded.name,
            service_types = excluded.service_types,
            home_lat = excluded.home_lat,
            home_lng = excluded.home_lng,
            home_zip = excluded.home_zip,
            coverage = excluded.coverage,
            active = excluded.active`,
		p.ID, p.Name, string(types), lat, lng, p.Home.Zip, string(cov), p.Active); err != nil {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO provider_metrics (provider_id) VALUES (?)
        ON CONFLICT(provider_id) DO NOTHING`, p.ID); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *Store) loadProvider(ctx context.Context, id string) (model.Provider, error) {
	var p model.Provider
	var types, cov string
	var lat, lng sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `SELECT id, name, service_types, home_lat, home_lng, home_zip, coverage, active
        FROM providers WHERE id = ?`, id).Scan(&p.ID, &p.Name, &types, &lat, &lng, &p.Home.Zip, &cov, &p.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return p, store.ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if lat.Valid && lng.Valid {
		p.Home.Point = &model.Point{Lat: lat.Float64, Lng: lng.Float64}
	}
	if err := json.Unmarshal([]byte(types), &p.ServiceTypes); err != nil {
		return p, fmt.Errorf("decode service types of %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(cov), &p.Coverage); err != nil {
		return p, fmt.Errorf("decode coverage of %s: %w", id, err)
	}
	for i := range p.Coverage {
		p.Coverage[i].ProviderID = p.ID
	}
	return p, nil
}

func (s *Store) loadMetrics(ctx context.Context, id string) (model.PerformanceMetrics, error) {
	m := model.PerformanceMetrics{ProviderID: id}
	var scores string
	var updated int64
	err := s.db.QueryRowContext(ctx, `SELECT jobs_offered, jobs_accepted, jobs_declined, jobs_no_response,
            jobs_completed, on_time, late, cancellations, cached_scores, updated_at
        FROM provider_metrics WHERE provider_id = ?`, id).Scan(
		&m.JobsOffered, &m.JobsAccepted, &m.JobsDeclined, &m.JobsNoResponse,
		&m.JobsCompleted, &m.OnTime, &m.Late, &m.Cancellations, &scores, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return m, nil
	}
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal([]byte(scores), &m.CachedScores); err != nil {
		return m, fmt.Errorf("decode cached scores of %s: %w", id, err)
	}
	m.UpdatedAt = fromNanos(updated)
	return m, nil
}

func (s *Store) loadHistory(ctx context.Context, id string) ([]model.PerformanceHistoryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT provider_id, booking_id, rating, on_time, distance_miles, completed_at, decay_weight
        FROM performance_history WHERE provider_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []model.PerformanceHistoryRecord
	for rows.Next() {
		var r model.PerformanceHistoryRecord
		var completed int64
		if err := rows.Scan(&r.ProviderID, &r.BookingID, &r.Rating, &r.OnTime, &r.DistanceMiles, &completed, &r.DecayWeight); err != nil {
			return nil, err
		}
		r.CompletedAt = fromNanos(completed)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) GetProfile(ctx context.Context, providerID string) (model.ProviderProfile, error) {
	p, err := s.loadProvider(ctx, providerID)
	if err != nil {
		return model.ProviderProfile{}, err
	}
	m, err := s.loadMetrics(ctx, providerID)
	if err != nil {
		return model.ProviderProfile{}, err
	}
	h, err := s.loadHistory(ctx, providerID)
	if err != nil {
		return model.ProviderProfile{}, err
	}
	return model.ProviderProfile{Provider: p, Metrics: m, History: h}, nil
}

func (s *Store) ListCandidates(ctx context.Context, serviceType string) ([]model.ProviderProfile, error) {
	ids, err := s.queryIDs(ctx, `SELECT id FROM providers WHERE active = 1 ORDER BY id`)
	if err != nil {
		return nil, err
	}
	var out []model.ProviderProfile
	for _, id := range ids {
		prof, err := s.GetProfile(ctx, id)
		if err != nil {
			return nil, err
		}
		if prof.Provider.Offers(serviceType) {
			out = append(out, prof)
		}
	}
	return out, nil
}

func (s *Store) ListProviderIDs(ctx context.Context) ([]string, error) {
	return s.queryIDs(ctx, `SELECT id FROM providers ORDER BY id`)
}

func (s *Store) queryIDs(ctx context.Context, q string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Store) ApplyOutcome(ctx context.Context, providerID string, o model.Outcome, at time.Time) (model.PerformanceMetrics, error) {
	_, err := s.db.ExecContext(ctx, `INSERT INTO provider_metrics (provider_id, jobs_offered, jobs_accepted, jobs_declined,
            jobs_no_response, jobs_completed, on_time, late, cancellations, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(provider_id) DO UPDATE SET
            jobs_offered = jobs_offered + excluded.jobs_offered,
            jobs_accepted = jobs_accepted + excluded.jobs_accepted,
            jobs_declined = jobs_declined + excluded.jobs_declined,
            jobs_no_response = jobs_no_response + excluded.jobs_no_response,
            jobs_completed = jobs_completed + excluded.jobs_completed,
            on_time = on_time + excluded.on_time,
            late = late + excluded.late,
            cancellations = cancellations + excluded.cancellations,
            updated_at = excluded.updated_at`,
		providerID, o.Offered, o.Accepted, o.Declined, o.NoResponse, o.Completed, o.OnTime, o.Late, o.Cancellation, nanos(at))
	if err != nil {
		return model.PerformanceMetrics{}, err
	}
	return s.loadMetrics(ctx, providerID)
}

func (s *Store) SaveScores(ctx context.Context, providerID string, sc model.ScoreBreakdown, at time.Time) error {
	b, err := json.Marshal(sc)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO provider_metrics (provider_id, cached_scores, updated_at)
        VALUES (?, ?, ?)
        ON CONFLICT(provider_id) DO UPDATE SET
            cached_scores = excluded.cached_scores,
            updated_at = excluded.updated_at`, providerID, string(b), nanos(at))
	return err
}

func (s *Store) AppendHistory(ctx context.Context, r model.PerformanceHistoryRecord) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO performance_history
        (provider_id, booking_id, rating, on_time, distance_miles, completed_at, decay_weight)
        VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ProviderID, r.BookingID, r.Rating, r.OnTime, r.DistanceMiles, nanos(r.CompletedAt), r.DecayWeight)
	return err
}

func (s *Store) Enqueue(ctx context.Context, e model.QueueEntry) error {
	payload := string(e.Payload)
	if payload == "" {
		payload = "null"
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO notification_queue
        (id, identity, event, payload, attempts, max_attempts, priority, deadline, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Identity, e.Event, payload, e.Attempts, e.MaxAttempts, int(e.Priority), nanos(e.Deadline), nanos(e.CreatedAt))
	return err
}

func (s *Store) Pending(ctx context.Context, identity string) ([]model.QueueEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, identity, event, payload, attempts, max_attempts, priority, deadline, created_at
        FROM notification_queue WHERE identity = ? ORDER BY seq`, identity)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []model.QueueEntry
	for rows.Next() {
		var e model.QueueEntry
		var payload string
		var prio int
		var deadline, created int64
		if err := rows.Scan(&e.ID, &e.Identity, &e.Event, &payload, &e.Attempts, &e.MaxAttempts, &prio, &deadline, &created); err != nil {
			return nil, err
		}
		e.Payload = json.RawMessage(payload)
		e.Priority = model.Priority(prio)
		e.Deadline = fromNanos(deadline)
		e.CreatedAt = fromNanos(created)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) DeleteEntry(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM notification_queue WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) IncrementAttempts(ctx context.Context, id string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `UPDATE notification_queue SET attempts = attempts + 1
        WHERE id = ? RETURNING attempts`, id).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, store.ErrNotFound
	}
	return n, err
}

func (s *Store) Identities(ctx context.Context) ([]string, error) {
	return s.queryIDs(ctx, `SELECT DISTINCT identity FROM notification_queue ORDER BY identity`)
}
