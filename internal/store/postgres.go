package store

import (
	"context"
	"database/sql"
	"embed"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Postgres is the external-store implementation for deployments where the
// log must outlive the process host. Durability and total ordering come from
// the database: BIGSERIAL assigns ids in commit order and INSERT does not
// return until committed.
type Postgres struct {
	db *sql.DB
}

// NewPostgres connects, applies the embedded migrations, and returns the
// store. Connection pool limits follow the service's modest write rate.
func NewPostgres(dbURL string) (*Postgres, error) {
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, &UnavailableError{Op: "open database", Err: err}
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &UnavailableError{Op: "ping database", Err: err}
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return &UnavailableError{Op: "load migrations", Err: err}
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: "schema_migrations"})
	if err != nil {
		return &UnavailableError{Op: "init migration driver", Err: err}
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return &UnavailableError{Op: "init migrations", Err: err}
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return &UnavailableError{Op: "run migrations", Err: err}
	}
	return nil
}

const insertPrediction = `
INSERT INTO predictions (
    ts, sequence, station_id,
    temperature_c, humidity_pct, sound_db,
    anomaly_score, is_anomaly, model_version, scored_at,
    raw_input, raw_output
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING id`

func (s *Postgres) Append(ctx context.Context, p Prediction) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, insertPrediction,
		p.Timestamp, p.Sequence, p.StationID,
		p.TemperatureC, p.HumidityPct, p.SoundDB,
		p.AnomalyScore, p.Label, p.ModelVersion, p.ScoredAt,
		nullableJSON(p.RawInput), nullableJSON(p.RawOutput),
	).Scan(&id)
	if err != nil {
		return 0, &UnavailableError{Op: "append", Err: err}
	}
	return id, nil
}

const selectRecentAnomalies = `
SELECT id, ts, sequence, station_id,
       temperature_c, humidity_pct, sound_db,
       anomaly_score, is_anomaly, model_version, scored_at
FROM predictions
WHERE is_anomaly
ORDER BY id DESC
LIMIT $1`

func (s *Postgres) RecentAnomalies(ctx context.Context, limit int) ([]StoredPrediction, error) {
	rows, err := s.db.QueryContext(ctx, selectRecentAnomalies, clampLimit(limit))
	if err != nil {
		return nil, &UnavailableError{Op: "query anomalies", Err: err}
	}
	defer rows.Close()

	out := make([]StoredPrediction, 0, clampLimit(limit))
	for rows.Next() {
		var rec StoredPrediction
		if err := rows.Scan(
			&rec.ID, &rec.Timestamp, &rec.Sequence, &rec.StationID,
			&rec.TemperatureC, &rec.HumidityPct, &rec.SoundDB,
			&rec.AnomalyScore, &rec.Label, &rec.ModelVersion, &rec.ScoredAt,
		); err != nil {
			return nil, &UnavailableError{Op: "scan anomaly row", Err: err}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &UnavailableError{Op: "iterate anomaly rows", Err: err}
	}
	return out, nil
}

func (s *Postgres) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return &UnavailableError{Op: "ping", Err: err}
	}
	return nil
}

func (s *Postgres) Close() error { return s.db.Close() }

// nullableJSON maps empty raw payloads to SQL NULL instead of invalid ''.
func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

var (
	_ Store = (*Postgres)(nil)
	_ Store = (*LogFile)(nil)
)
