package recorder

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	_ "modernc.org/sqlite"

	"BikeRebalancer/internal/model"
)

// SchemaVersion is the latest schema version supported by the migrator.
const SchemaVersion = 2

// SQLiteRecorder persists simulation results to a SQLite database.
type SQLiteRecorder struct {
	db          *sql.DB
	mu          sync.Mutex
	recordTicks bool
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
// Tick snapshots are only stored when recordTicks is set.
func NewSQLiteRecorder(dbPath string, recordTicks bool) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL lets dashboards read while a run is writing.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	log.Info("sqlite recorder opened", "path", dbPath, "ticks", recordTicks)
	return &SQLiteRecorder{db: db, recordTicks: recordTicks}, nil
}

type migration struct {
	version int
	stmts   []string
}

var migrations = []migration{
	{1, []string{
		`CREATE TABLE IF NOT EXISTS day_summaries (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id           TEXT NOT NULL,
			day              TEXT NOT NULL,
			policy           TEXT NOT NULL,
			completed        INTEGER NOT NULL,
			missed           INTEGER NOT NULL,
			completion_rate  REAL,
			avg_availability REAL,
			rebalancing_cost REAL,
			bikes_moved      INTEGER,
			epsilon          REAL,
			finished_at      INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_summaries_run ON day_summaries(run_id, day)`,
		`CREATE TABLE IF NOT EXISTS station_status (
			run_id      TEXT NOT NULL,
			day         TEXT NOT NULL,
			station_id  TEXT NOT NULL,
			status      TEXT NOT NULL,
			final_count INTEGER NOT NULL,
			PRIMARY KEY (run_id, day, station_id)
		)`,
		`CREATE TABLE IF NOT EXISTS missed_trips (
			trip_id     TEXT NOT NULL,
			day         TEXT NOT NULL,
			start_time  INTEGER NOT NULL,
			end_time    INTEGER NOT NULL,
			origin      TEXT NOT NULL,
			destination TEXT NOT NULL,
			UNIQUE (trip_id, day)
		)`,
	}},
	{2, []string{
		`CREATE TABLE IF NOT EXISTS tick_snapshots (
			day        TEXT NOT NULL,
			tick       INTEGER NOT NULL,
			sim_time   INTEGER NOT NULL,
			in_transit INTEGER NOT NULL,
			completed  INTEGER NOT NULL,
			missed     INTEGER NOT NULL,
			stations   TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ticks_day ON tick_snapshots(day, tick)`,
	}},
}

// Migrate ensures the schema exists and is upgraded to SchemaVersion. Each
// pending version is applied in its own transaction.
func Migrate(db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("migrate: db is nil")
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY)`); err != nil {
		return fmt.Errorf("migrate: create schema_migrations: %w", err)
	}

	var current int
	if err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("migrate: read current version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := apply(db, m); err != nil {
			return fmt.Errorf("migrate: version %d: %w", m.version, err)
		}
		log.Debug("schema migrated", "version", m.version)
	}
	return nil
}

func apply(db *sql.DB, m migration) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, s := range m.stmts {
		if _, err := tx.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:min(len(s), 40)], err)
		}
	}
	if _, err := tx.Exec(`INSERT INTO schema_migrations(version) VALUES (?)`, m.version); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return tx.Commit()
}

func (r *SQLiteRecorder) RecordTick(snap *model.TickSnapshot) error {
	if !r.recordTicks {
		return nil
	}
	stations, err := json.Marshal(snap.Stations)
	if err != nil {
		return fmt.Errorf("encode stations: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, err = r.db.Exec(`INSERT INTO tick_snapshots
		(day, tick, sim_time, in_transit, completed, missed, stations)
		VALUES (?,?,?,?,?,?,?)`,
		snap.Day, snap.Tick, snap.Time.Unix(), snap.InTransit, snap.Completed, snap.Missed, string(stations),
	)
	return err
}

func (r *SQLiteRecorder) RecordDay(sum *model.DaySummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("record day: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	finished := sum.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	_, err = tx.Exec(`INSERT INTO day_summaries
		(run_id, day, policy, completed, missed, completion_rate, avg_availability,
		 rebalancing_cost, bikes_moved, epsilon, finished_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		sum.RunID, sum.Day, sum.Policy, sum.Completed, sum.Missed, sum.CompletionRate,
		sum.AvgAvailability, sum.RebalancingCost, sum.BikesMoved, sum.Epsilon, finished.Unix(),
	)
	if err != nil {
		return fmt.Errorf("record day: summary: %w", err)
	}

	ids := make([]string, 0, len(sum.Statuses))
	for id := range sum.Statuses {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		_, err := tx.Exec(`INSERT OR REPLACE INTO station_status
			(run_id, day, station_id, status, final_count) VALUES (?,?,?,?,?)`,
			sum.RunID, sum.Day, id, string(sum.Statuses[id]), sum.FinalCounts[id],
		)
		if err != nil {
			return fmt.Errorf("record day: station %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// RecordMissed appends missed trips; a (trip id, day) pair is stored once.
func (r *SQLiteRecorder) RecordMissed(trips []model.MissedTripRecord) error {
	if len(trips) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("record missed: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, t := range trips {
		_, err := tx.Exec(`INSERT OR IGNORE INTO missed_trips
			(trip_id, day, start_time, end_time, origin, destination) VALUES (?,?,?,?,?,?)`,
			t.TripID, t.Day, t.Start.Unix(), t.End.Unix(), t.Origin, t.Destination,
		)
		if err != nil {
			return fmt.Errorf("record missed: trip %s: %w", t.TripID, err)
		}
	}
	return tx.Commit()
}

func (r *SQLiteRecorder) Close() error {
	log.Info("closing sqlite recorder")
	return r.db.Close()
}
