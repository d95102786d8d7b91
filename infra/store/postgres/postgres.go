// Package postgres implements store.Store on PostgreSQL through pgx.
//
// Every guarded transition is a single conditional UPDATE, so competing
// writers on different replicas resolve through row locks: the loser of a
// race sees zero affected rows.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kilianp07/jobroute/core/model"
	"github.com/kilianp07/jobroute/core/store"
)

// Store persists dispatch state in PostgreSQL.
type Store struct {
	db *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

// Open connects to dsn and ensures schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := New(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing pool. Call Migrate before use on a fresh database.
func New(pool *pgxpool.Pool) *Store { return &Store{db: pool} }

// Migrate creates missing tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, schema)
	return err
}

// Close releases the pool.
func (s *Store) Close() error {
	s.db.Close()
	return nil
}

func ts(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func fromTS(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.UTC()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

const assignmentCols = `id, booking_id, provider_id, method, assignment_order, status, score,
    assigned_at, expires_at, responded_at, response_time, decline_reason, created_at, updated_at`

func scanAssignment(r pgx.Row) (model.Assignment, error) {
	var a model.Assignment
	var method, status string
	var assigned, expires, responded, created, updated *time.Time
	var respTime int64
	err := r.Scan(&a.ID, &a.BookingID, &a.ProviderID, &method, &a.Order, &status, &a.Score,
		&assigned, &expires, &responded, &respTime, &a.DeclineReason, &created, &updated)
	if err != nil {
		return a, err
	}
	a.Method = model.AssignmentMethod(method)
	a.Status = model.AssignmentStatus(status)
	a.AssignedAt = fromTS(assigned)
	a.ExpiresAt = fromTS(expires)
	a.RespondedAt = fromTS(responded)
	a.ResponseTime = time.Duration(respTime)
	a.CreatedAt = fromTS(created)
	a.UpdatedAt = fromTS(updated)
	return a, nil
}

func collectAssignments(rows pgx.Rows) ([]model.Assignment, error) {
	defer rows.Close()
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

func (s *Store) CreateAssignments(ctx context.Context, as []model.Assignment) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	maxOrder := map[string]int{}
	for _, a := range as {
		if _, ok := maxOrder[a.BookingID]; ok {
			continue
		}
		// Serialise chain writers for the same booking.
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, a.BookingID); err != nil {
			return err
		}
		var m int
		if err := tx.QueryRow(ctx,
			`SELECT COALESCE(MAX(assignment_order), 0) FROM assignments WHERE booking_id = $1`, a.BookingID).Scan(&m); err != nil {
			return err
		}
		maxOrder[a.BookingID] = m
	}
	for _, a := range as {
		if a.Order <= maxOrder[a.BookingID] {
			return fmt.Errorf("order %d not increasing for booking %s: %w", a.Order, a.BookingID, store.ErrConflict)
		}
		maxOrder[a.BookingID] = a.Order
		_, err := tx.Exec(ctx, `INSERT INTO assignments (`+assignmentCols+`)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			a.ID, a.BookingID, a.ProviderID, string(a.Method), a.Order, string(a.Status), a.Score,
			ts(a.AssignedAt), ts(a.ExpiresAt), ts(a.RespondedAt), int64(a.ResponseTime),
			a.DeclineReason, ts(a.CreatedAt), ts(a.UpdatedAt))
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("insert assignment %s: %w", a.ID, store.ErrConflict)
			}
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) GetAssignment(ctx context.Context, id string) (model.Assignment, error) {
	a, err := scanAssignment(s.db.QueryRow(ctx,
		`SELECT `+assignmentCols+` FROM assignments WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return a, store.ErrNotFound
	}
	return a, err
}

func (s *Store) ListByBooking(ctx context.Context, bookingID string) ([]model.Assignment, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+assignmentCols+` FROM assignments WHERE booking_id = $1 ORDER BY assignment_order`, bookingID)
	if err != nil {
		return nil, err
	}
	return collectAssignments(rows)
}

func (s *Store) Transition(ctx context.Context, id string, from model.AssignmentStatus, upd model.AssignmentUpdate) (bool, error) {
	tag, err := s.db.Exec(ctx, `UPDATE assignments SET
            status = $1,
            updated_at = $2,
            responded_at = COALESCE($3, responded_at),
            response_time = CASE WHEN $4::BIGINT > 0 THEN $4 ELSE response_time END,
            decline_reason = CASE WHEN $5::TEXT <> '' THEN $5 ELSE decline_reason END
        WHERE id = $6 AND status = $7`,
		string(upd.Status), ts(upd.At), ts(upd.RespondedAt), int64(upd.ResponseTime),
		upd.DeclineReason, id, string(from))
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	var one int
	err = s.db.QueryRow(ctx, `SELECT 1 FROM assignments WHERE id = $1`, id).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, store.ErrNotFound
	}
	return false, err
}

func (s *Store) PromoteNext(ctx context.Context, bookingID string, assignedAt, expiresAt time.Time) (model.Assignment, bool, error) {
	a, err := scanAssignment(s.db.QueryRow(ctx, `UPDATE assignments
        SET status = 'pending', assigned_at = $2, expires_at = $3, updated_at = $2
        WHERE id = (
            SELECT id FROM assignments
            WHERE booking_id = $1 AND status = 'scheduled'
            ORDER BY assignment_order LIMIT 1)
        AND status = 'scheduled'
        AND NOT EXISTS (
            SELECT 1 FROM assignments
            WHERE booking_id = $1 AND status IN ('pending', 'accepted'))
        RETURNING `+assignmentCols, bookingID, ts(assignedAt), ts(expiresAt)))
	switch {
	case errors.Is(err, pgx.ErrNoRows), isUniqueViolation(err):
		return model.Assignment{}, false, nil
	case err != nil:
		return model.Assignment{}, false, err
	}
	return a, true, nil
}

func (s *Store) CancelSiblings(ctx context.Context, bookingID, exceptID string, at time.Time) ([]model.Assignment, error) {
	rows, err := s.db.Query(ctx, `UPDATE assignments SET status = 'cancelled', updated_at = $1
        WHERE booking_id = $2 AND id <> $3 AND status IN ('scheduled', 'pending')
        RETURNING `+assignmentCols, ts(at), bookingID, exceptID)
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
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	rows, err := s.db.Query(ctx, `SELECT `+assignmentCols+` FROM assignments
        WHERE status = 'pending' AND expires_at IS NOT NULL AND expires_at < $1
        ORDER BY expires_at, id LIMIT $2`, now, lim)
	if err != nil {
		return nil, err
	}
	return collectAssignments(rows)
}

func (s *Store) Query(ctx context.Context, q store.AssignmentQuery) ([]model.Assignment, int, error) {
	q.Normalize()
	where := []string{"TRUE"}
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	from := "assignments a"
	switch q.Role {
	case store.RoleProvider:
		where = append(where, "a.provider_id = "+arg(q.Identity))
	case store.RoleCustomer:
		from = "assignments a JOIN bookings b ON b.id = a.booking_id"
		where = append(where, "b.customer_id = "+arg(q.Identity))
	}
	if len(q.Statuses) > 0 {
		sts := make([]string, len(q.Statuses))
		for i, st := range q.Statuses {
			sts[i] = string(st)
		}
		where = append(where, "a.status = ANY("+arg(sts)+")")
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM `+from+` WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	cols := "a." + strings.ReplaceAll(strings.Join(strings.Fields(assignmentCols), " "), ", ", ", a.")
	limit, offset := arg(q.PageSize), arg(q.Offset())
	rows, err := s.db.Query(ctx, `SELECT `+cols+` FROM `+from+` WHERE `+cond+
		` ORDER BY a.created_at DESC, a.booking_id, a.assignment_order LIMIT `+limit+` OFFSET `+offset, args...)
	if err != nil {
		return nil, 0, err
	}
	res, err := collectAssignments(rows)
	return res, total, err
}

const bookingCols = `id, customer_id, service_type, lat, lng, zip, status, provider_id, created_at, updated_at`

func scanBooking(r pgx.Row) (model.Booking, error) {
	var b model.Booking
	var lat, lng *float64
	var status string
	var created, updated *time.Time
	if err := r.Scan(&b.ID, &b.CustomerID, &b.ServiceType, &lat, &lng, &b.Location.Zip,
		&status, &b.ProviderID, &created, &updated); err != nil {
		return b, err
	}
	if lat != nil && lng != nil {
		b.Location.Point = &model.Point{Lat: *lat, Lng: *lng}
	}
	b.Status = model.BookingStatus(status)
	b.CreatedAt = fromTS(created)
	b.UpdatedAt = fromTS(updated)
	return b, nil
}

func coords(p *model.Point) (*float64, *float64) {
	if p == nil {
		return nil, nil
	}
	return &p.Lat, &p.Lng
}

func (s *Store) GetBooking(ctx context.Context, id string) (model.Booking, error) {
	b, err := scanBooking(s.db.QueryRow(ctx, `SELECT `+bookingCols+` FROM bookings WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return b, store.ErrNotFound
	}
	return b, err
}

func (s *Store) UpsertBooking(ctx context.Context, b model.Booking) error {
	lat, lng := coords(b.Location.Point)
	_, err := s.db.Exec(ctx, `INSERT INTO bookings (`+bookingCols+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        ON CONFLICT (id) DO UPDATE SET
            customer_id = EXCLUDED.customer_id,
            service_type = EXCLUDED.service_type,
            lat = EXCLUDED.lat,
            lng = EXCLUDED.lng,
            zip = EXCLUDED.zip,
            status = EXCLUDED.status,
            provider_id = EXCLUDED.provider_id,
            updated_at = EXCLUDED.updated_at`,
		b.ID, b.CustomerID, b.ServiceType, lat, lng, b.Location.Zip, string(b.Status), b.ProviderID,
		ts(b.CreatedAt), ts(b.UpdatedAt))
	return err
}

func (s *Store) TransitionBooking(ctx context.Context, id string, from []model.BookingStatus, to model.BookingStatus, providerID string, at time.Time) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}
	sts := make([]string, len(from))
	for i, f := range from {
		sts[i] = string(f)
	}
	tag, err := s.db.Exec(ctx, `UPDATE bookings SET
            status = $1,
            provider_id = CASE WHEN $2::TEXT <> '' THEN $2 ELSE provider_id END,
            updated_at = $3
        WHERE id = $4 AND status = ANY($5)`, string(to), providerID, ts(at), id, sts)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	var one int
	err = s.db.QueryRow(ctx, `SELECT 1 FROM bookings WHERE id = $1`, id).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, store.ErrNotFound
	}
	return false, err
}

func (s *Store) ListStalledBookings(ctx context.Context, limit int) ([]model.Booking, error) {
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	rows, err := s.db.Query(ctx, `SELECT `+bookingCols+` FROM bookings b
        WHERE b.status = 'pending'
        AND EXISTS (SELECT 1 FROM assignments a WHERE a.booking_id = b.id)
        AND NOT EXISTS (SELECT 1 FROM assignments a WHERE a.booking_id = b.id AND a.status = 'pending')
        ORDER BY b.id LIMIT $1`, lim)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
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
	lat, lng := coords(p.Home.Point)
	batch := &pgx.Batch{}
	batch.Queue(`INSERT INTO providers (id, name, service_types, home_lat, home_lng, home_zip, coverage, active)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (id) DO UPDATE SET
            name = EXCLUDED.name,
            service_types = EXCLUDED.service_types,
            home_lat = EXCLUDED.home_lat,
            home_lng = EXCLUDED.home_lng,
            home_zip = EXCLUDED.home_zip,
            coverage = EXCLUDED.coverage,
            active = EXCLUDED.active`,
		p.ID, p.Name, string(types), lat, lng, p.Home.Zip, string(cov), p.Active)
	batch.Queue(`INSERT INTO provider_metrics (provider_id) VALUES ($1) ON CONFLICT (provider_id) DO NOTHING`, p.ID)
	return s.db.SendBatch(ctx, batch).Close()
}

func (s *Store) GetProfile(ctx context.Context, providerID string) (model.ProviderProfile, error) {
	var p model.Provider
	var types, cov []byte
	var lat, lng *float64
	err := s.db.QueryRow(ctx, `SELECT id, name, service_types, home_lat, home_lng, home_zip, coverage, active
        FROM providers WHERE id = $1`, providerID).Scan(&p.ID, &p.Name, &types, &lat, &lng, &p.Home.Zip, &cov, &p.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ProviderProfile{}, store.ErrNotFound
	}
	if err != nil {
		return model.ProviderProfile{}, err
	}
	if lat != nil && lng != nil {
		p.Home.Point = &model.Point{Lat: *lat, Lng: *lng}
	}
	if err := json.Unmarshal(types, &p.ServiceTypes); err != nil {
		return model.ProviderProfile{}, fmt.Errorf("decode service types of %s: %w", providerID, err)
	}
	if err := json.Unmarshal(cov, &p.Coverage); err != nil {
		return model.ProviderProfile{}, fmt.Errorf("decode coverage of %s: %w", providerID, err)
	}
	for i := range p.Coverage {
		p.Coverage[i].ProviderID = p.ID
	}
	m, err := s.metrics(ctx, providerID)
	if err != nil {
		return model.ProviderProfile{}, err
	}
	h, err := s.history(ctx, providerID)
	if err != nil {
		return model.ProviderProfile{}, err
	}
	return model.ProviderProfile{Provider: p, Metrics: m, History: h}, nil
}

const metricsCols = `jobs_offered, jobs_accepted, jobs_declined, jobs_no_response,
    jobs_completed, on_time, late, cancellations, cached_scores, updated_at`

func scanMetrics(r pgx.Row, m *model.PerformanceMetrics) error {
	var scores []byte
	var updated *time.Time
	if err := r.Scan(&m.JobsOffered, &m.JobsAccepted, &m.JobsDeclined, &m.JobsNoResponse,
		&m.JobsCompleted, &m.OnTime, &m.Late, &m.Cancellations, &scores, &updated); err != nil {
		return err
	}
	m.UpdatedAt = fromTS(updated)
	return json.Unmarshal(scores, &m.CachedScores)
}

func (s *Store) metrics(ctx context.Context, id string) (model.PerformanceMetrics, error) {
	m := model.PerformanceMetrics{ProviderID: id}
	err := scanMetrics(s.db.QueryRow(ctx, `SELECT `+metricsCols+` FROM provider_metrics WHERE provider_id = $1`, id), &m)
	if errors.Is(err, pgx.ErrNoRows) {
		return m, nil
	}
	return m, err
}

func (s *Store) history(ctx context.Context, id string) ([]model.PerformanceHistoryRecord, error) {
	rows, err := s.db.Query(ctx, `SELECT provider_id, booking_id, rating, on_time, distance_miles, completed_at, decay_weight
        FROM performance_history WHERE provider_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.PerformanceHistoryRecord
	for rows.Next() {
		var r model.PerformanceHistoryRecord
		if err := rows.Scan(&r.ProviderID, &r.BookingID, &r.Rating, &r.OnTime, &r.DistanceMiles, &r.CompletedAt, &r.DecayWeight); err != nil {
			return nil, err
		}
		r.CompletedAt = r.CompletedAt.UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) ListCandidates(ctx context.Context, serviceType string) ([]model.ProviderProfile, error) {
	ids, err := s.ids(ctx, `SELECT id FROM providers
        WHERE active AND (jsonb_array_length(COALESCE(NULLIF(service_types, 'null'), '[]')) = 0 OR service_types ? $1)
        ORDER BY id`, serviceType)
	if err != nil {
		return nil, err
	}
	out := make([]model.ProviderProfile, 0, len(ids))
	for _, id := range ids {
		prof, err := s.GetProfile(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, prof)
	}
	return out, nil
}

func (s *Store) ListProviderIDs(ctx context.Context) ([]string, error) {
	return s.ids(ctx, `SELECT id FROM providers ORDER BY id`)
}

func (s *Store) ids(ctx context.Context, q string, args ...any) ([]string, error) {
	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (s *Store) ApplyOutcome(ctx context.Context, providerID string, o model.Outcome, at time.Time) (model.PerformanceMetrics, error) {
	m := model.PerformanceMetrics{ProviderID: providerID}
	err := scanMetrics(s.db.QueryRow(ctx, `INSERT INTO provider_metrics AS pm (provider_id, jobs_offered, jobs_accepted,
            jobs_declined, jobs_no_response, jobs_completed, on_time, late, cancellations, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        ON CONFLICT (provider_id) DO UPDATE SET
            jobs_offered = pm.jobs_offered + EXCLUDED.jobs_offered,
            jobs_accepted = pm.jobs_accepted + EXCLUDED.jobs_accepted,
            jobs_declined = pm.jobs_declined + EXCLUDED.jobs_declined,
            jobs_no_response = pm.jobs_no_response + EXCLUDED.jobs_no_response,
            jobs_completed = pm.jobs_completed + EXCLUDED.jobs_completed,
            on_time = pm.on_time + EXCLUDED.on_time,
            late = pm.late + EXCLUDED.late,
            cancellations = pm.cancellations + EXCLUDED.cancellations,
            updated_at = EXCLUDED.updated_at
        RETURNING `+metricsCols,
		providerID, o.Offered, o.Accepted, o.Declined, o.NoResponse, o.Completed, o.OnTime, o.Late, o.Cancellation, ts(at)), &m)
	return m, err
}

func (s *Store) SaveScores(ctx context.Context, providerID string, sc model.ScoreBreakdown, at time.Time) error {
	b, err := json.Marshal(sc)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `INSERT INTO provider_metrics (provider_id, cached_scores, updated_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (provider_id) DO UPDATE SET
            cached_scores = EXCLUDED.cached_scores,
            updated_at = EXCLUDED.updated_at`, providerID, string(b), ts(at))
	return err
}

func (s *Store) AppendHistory(ctx context.Context, r model.PerformanceHistoryRecord) error {
	_, err := s.db.Exec(ctx, `INSERT INTO performance_history
        (provider_id, booking_id, rating, on_time, distance_miles, completed_at, decay_weight)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ProviderID, r.BookingID, r.Rating, r.OnTime, r.DistanceMiles, r.CompletedAt, r.DecayWeight)
	return err
}

func (s *Store) Enqueue(ctx context.Context, e model.QueueEntry) error {
	payload := string(e.Payload)
	if payload == "" {
		payload = "null"
	}
	_, err := s.db.Exec(ctx, `INSERT INTO notification_queue
        (id, identity, event, payload, attempts, max_attempts, priority, deadline, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.Identity, e.Event, payload, e.Attempts, e.MaxAttempts, int(e.Priority), ts(e.Deadline), e.CreatedAt)
	return err
}

func (s *Store) Pending(ctx context.Context, identity string) ([]model.QueueEntry, error) {
	rows, err := s.db.Query(ctx, `SELECT id, identity, event, payload, attempts, max_attempts, priority, deadline, created_at
        FROM notification_queue WHERE identity = $1 ORDER BY seq`, identity)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.QueueEntry
	for rows.Next() {
		var e model.QueueEntry
		var payload []byte
		var prio int
		var deadline *time.Time
		if err := rows.Scan(&e.ID, &e.Identity, &e.Event, &payload, &e.Attempts, &e.MaxAttempts, &prio, &deadline, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Payload = json.RawMessage(payload)
		e.Priority = model.Priority(prio)
		e.Deadline = fromTS(deadline)
		e.CreatedAt = e.CreatedAt.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) DeleteEntry(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM notification_queue WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) IncrementAttempts(ctx context.Context, id string) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `UPDATE notification_queue SET attempts = attempts + 1
        WHERE id = $1 RETURNING attempts`, id).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, store.ErrNotFound
	}
	return n, err
}

func (s *Store) Identities(ctx context.Context) ([]string, error) {
	return s.ids(ctx, `SELECT DISTINCT identity FROM notification_queue ORDER BY identity`)
}
