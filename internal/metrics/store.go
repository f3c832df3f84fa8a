package metrics

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// StoreConfig holds configuration for the SQLite persistence sink.
type StoreConfig struct {
	DBPath          string
	WriteBufferSize int           // records buffered before a batch write
	FlushInterval   time.Duration // max time between flushes
	Retention       time.Duration // how long to keep persisted points
}

// DefaultStoreConfig returns sensible defaults for metrics persistence.
func DefaultStoreConfig(dataDir string) StoreConfig {
	return StoreConfig{
		DBPath:          filepath.Join(dataDir, "metrics.db"),
		WriteBufferSize: 100,
		FlushInterval:   5 * time.Second,
		Retention:       90 * 24 * time.Hour,
	}
}

// Store persists metric points to SQLite. It doubles as the database
// collaborator for health checks via Ping and ConnectionInfo.
type Store struct {
	db     *sql.DB
	config StoreConfig

	bufferMu sync.Mutex
	buffer   []Point

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewStore opens (or creates) the metrics database and starts the background
// flush/retention worker.
func NewStore(config StoreConfig) (*Store, error) {
	dir := filepath.Dir(config.DBPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create metrics directory: %w", err)
	}

	db, err := sql.Open("sqlite", config.DBPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open metrics database: %w", err)
	}

	// SQLite works best with a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &Store{
		db:     db,
		config: config,
		buffer: make([]Point, 0, config.WriteBufferSize),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	go store.backgroundWorker()

	log.Info().
		Str("path", config.DBPath).
		Int("bufferSize", config.WriteBufferSize).
		Msg("Metrics store initialized")

	return store, nil
}

func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS metric_points (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			value REAL NOT NULL,
			labels TEXT,
			timestamp INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_metric_points_lookup
		ON metric_points(name, timestamp);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Write buffers a point for persistence; a full buffer triggers a batch write.
func (s *Store) Write(point Point) {
	s.bufferMu.Lock()
	defer s.bufferMu.Unlock()

	s.buffer = append(s.buffer, point)
	if len(s.buffer) >= s.config.WriteBufferSize {
		s.flushLocked()
	}
}

// flushLocked hands the buffer off to a background batch write. Caller must
// hold bufferMu.
func (s *Store) flushLocked() {
	if len(s.buffer) == 0 {
		return
	}

	toWrite := make([]Point, len(s.buffer))
	copy(toWrite, s.buffer)
	s.buffer = s.buffer[:0]

	go s.writeBatch(toWrite)
}

func (s *Store) writeBatch(points []Point) {
	tx, err := s.db.Begin()
	if err != nil {
		log.Error().Err(err).Msg("Failed to begin metrics transaction")
		return
	}

	stmt, err := tx.Prepare(`
		INSERT INTO metric_points (name, value, labels, timestamp)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		log.Error().Err(err).Msg("Failed to prepare metric insert")
		return
	}
	defer stmt.Close()

	for _, p := range points {
		var labels any
		if len(p.Labels) > 0 {
			if data, err := json.Marshal(p.Labels); err == nil {
				labels = string(data)
			}
		}
		if _, err := stmt.Exec(p.Name, p.Value, labels, p.Timestamp.UnixMilli()); err != nil {
			log.Warn().Err(err).Str("metric", p.Name).Msg("Failed to insert metric point")
		}
	}

	if err := tx.Commit(); err != nil {
		log.Error().Err(err).Msg("Failed to commit metrics batch")
		return
	}

	log.Debug().Int("count", len(points)).Msg("Wrote metrics batch")
}

// QueryRange returns persisted points for a metric within [start, end].
func (s *Store) QueryRange(name string, start, end time.Time) ([]Point, error) {
	rows, err := s.db.Query(`
		SELECT value, labels, timestamp
		FROM metric_points
		WHERE name = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC
	`, name, start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to query metrics: %w", err)
	}
	defer rows.Close()

	var points []Point
	for rows.Next() {
		var (
			p      Point
			labels sql.NullString
			ts     int64
		)
		if err := rows.Scan(&p.Value, &labels, &ts); err != nil {
			log.Warn().Err(err).Msg("Failed to scan metric row")
			continue
		}
		p.Name = name
		p.Timestamp = time.UnixMilli(ts)
		if labels.Valid && labels.String != "" {
			_ = json.Unmarshal([]byte(labels.String), &p.Labels)
		}
		points = append(points, p)
	}

	return points, rows.Err()
}

// Flush writes any buffered points to the database.
func (s *Store) Flush() {
	s.bufferMu.Lock()
	defer s.bufferMu.Unlock()
	s.flushLocked()
}

// Ping reports whether the database connection is usable.
func (s *Store) Ping() error {
	return s.db.Ping()
}

// ConnectionInfo describes the database for health reporting.
func (s *Store) ConnectionInfo() map[string]any {
	info := map[string]any{
		"driver": "sqlite",
		"path":   s.config.DBPath,
	}
	if fi, err := os.Stat(s.config.DBPath); err == nil {
		info["sizeBytes"] = fi.Size()
	}
	return info
}

func (s *Store) backgroundWorker() {
	defer close(s.doneCh)

	flushTicker := time.NewTicker(s.config.FlushInterval)
	retentionTicker := time.NewTicker(1 * time.Hour)
	defer flushTicker.Stop()
	defer retentionTicker.Stop()

	for {
		select {
		case <-s.stopCh:
			s.Flush()
			return
		case <-flushTicker.C:
			s.Flush()
		case <-retentionTicker.C:
			s.runRetention()
		}
	}
}

func (s *Store) runRetention() {
	cutoff := time.Now().Add(-s.config.Retention).UnixMilli()
	result, err := s.db.Exec(`DELETE FROM metric_points WHERE timestamp < ?`, cutoff)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to prune persisted metrics")
		return
	}
	if deleted, _ := result.RowsAffected(); deleted > 0 {
		log.Info().Int64("deleted", deleted).Msg("Metrics retention cleanup completed")
	}
}

// Close shuts down the store gracefully.
func (s *Store) Close() error {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})

	select {
	case <-s.doneCh:
	case <-time.After(5 * time.Second):
		log.Warn().Msg("Metrics store shutdown timed out")
	}

	return s.db.Close()
}
