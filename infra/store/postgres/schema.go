package postgres

const schema = `
CREATE TABLE IF NOT EXISTS bookings (
    id TEXT PRIMARY KEY,
    customer_id TEXT NOT NULL DEFAULT '',
    service_type TEXT NOT NULL DEFAULT '',
    lat DOUBLE PRECISION,
    lng DOUBLE PRECISION,
    zip TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    provider_id TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ,
    updated_at TIMESTAMPTZ
);
CREATE TABLE IF NOT EXISTS assignments (
    id TEXT PRIMARY KEY,
    booking_id TEXT NOT NULL,
    provider_id TEXT NOT NULL,
    method TEXT NOT NULL,
    assignment_order INTEGER NOT NULL,
    status TEXT NOT NULL,
    score DOUBLE PRECISION NOT NULL DEFAULT 0,
    assigned_at TIMESTAMPTZ,
    expires_at TIMESTAMPTZ,
    responded_at TIMESTAMPTZ,
    response_time BIGINT NOT NULL DEFAULT 0,
    decline_reason TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ,
    updated_at TIMESTAMPTZ,
    UNIQUE (booking_id, assignment_order)
);
CREATE UNIQUE INDEX IF NOT EXISTS assignments_one_pending ON assignments (booking_id) WHERE status = 'pending';
CREATE UNIQUE INDEX IF NOT EXISTS assignments_one_accepted ON assignments (booking_id) WHERE status = 'accepted';
CREATE INDEX IF NOT EXISTS assignments_expiry ON assignments (status, expires_at);
CREATE INDEX IF NOT EXISTS assignments_provider ON assignments (provider_id);
CREATE TABLE IF NOT EXISTS providers (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL DEFAULT '',
    service_types JSONB NOT NULL DEFAULT '[]',
    home_lat DOUBLE PRECISION,
    home_lng DOUBLE PRECISION,
    home_zip TEXT NOT NULL DEFAULT '',
    coverage JSONB NOT NULL DEFAULT '[]',
    active BOOLEAN NOT NULL DEFAULT TRUE
);
CREATE TABLE IF NOT EXISTS provider_metrics (
    provider_id TEXT PRIMARY KEY,
    jobs_offered INTEGER NOT NULL DEFAULT 0,
    jobs_accepted INTEGER NOT NULL DEFAULT 0,
    jobs_declined INTEGER NOT NULL DEFAULT 0,
    jobs_no_response INTEGER NOT NULL DEFAULT 0,
    jobs_completed INTEGER NOT NULL DEFAULT 0,
    on_time INTEGER NOT NULL DEFAULT 0,
    late INTEGER NOT NULL DEFAULT 0,
    cancellations INTEGER NOT NULL DEFAULT 0,
    cached_scores JSONB NOT NULL DEFAULT '{}',
    updated_at TIMESTAMPTZ
);
CREATE TABLE IF NOT EXISTS performance_history (
    id BIGSERIAL PRIMARY KEY,
    provider_id TEXT NOT NULL,
    booking_id TEXT NOT NULL,
    rating DOUBLE PRECISION NOT NULL DEFAULT 0,
    on_time BOOLEAN NOT NULL DEFAULT FALSE,
    distance_miles DOUBLE PRECISION NOT NULL DEFAULT 0,
    completed_at TIMESTAMPTZ NOT NULL,
    decay_weight DOUBLE PRECISION NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS performance_history_provider ON performance_history (provider_id);
CREATE TABLE IF NOT EXISTS notification_queue (
    seq BIGSERIAL PRIMARY KEY,
    id TEXT NOT NULL UNIQUE,
    identity TEXT NOT NULL,
    event TEXT NOT NULL,
    payload JSONB NOT NULL DEFAULT 'null',
    attempts INTEGER NOT NULL DEFAULT 0,
    max_attempts INTEGER NOT NULL,
    priority INTEGER NOT NULL DEFAULT 0,
    deadline TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS notification_queue_identity ON notification_queue (identity, seq);
`
