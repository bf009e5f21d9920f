// Package store handles SQLite persistence.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/verte-zerg/keyprofile/internal/model"

	_ "modernc.org/sqlite" // SQLite driver.
)

// timeLayout is fixed width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime also reads the shorter RFC3339Nano form.
func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("session not found")

// Store wraps SQLite access for recorded sessions.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps in-memory databases shared and writes serialized.
	db.SetMaxOpenConns(1)
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id INTEGER PRIMARY KEY,
			ref TEXT NOT NULL UNIQUE,
			started_at TEXT NOT NULL,
			ended_at TEXT NOT NULL,
			source TEXT NOT NULL,
			text TEXT NOT NULL,
			scale_factor REAL NOT NULL,
			press_events INTEGER NOT NULL,
			release_events INTEGER NOT NULL,
			pauses INTEGER NOT NULL DEFAULT 0,
			features_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS session_channels (
			session_id INTEGER NOT NULL,
			channel TEXT NOT NULL,
			kind TEXT NOT NULL,
			sample_count INTEGER NOT NULL,
			mean_ms REAL NOT NULL,
			samples_json TEXT NOT NULL,
			bins_json TEXT NOT NULL,
			PRIMARY KEY (session_id, channel)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_ended_at ON sessions(ended_at);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_source ON sessions(source);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// InsertSession stores a completed session with its channels. A reference
// is generated when rec.Ref is empty. It returns the new row id.
func (s *Store) InsertSession(ctx context.Context, rec model.SessionRecord) (id int64, err error) {
	if rec.Ref == "" {
		rec.Ref = uuid.NewString()
	}
	if rec.Source == "" {
		rec.Source = model.SourceTerminal
	}
	features := rec.FeaturesJSON
	if len(features) == 0 {
		features = []byte("{}")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (ref, started_at, ended_at, source, text, scale_factor, press_events, release_events, pauses, features_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Ref,
		formatTime(rec.StartedAt),
		formatTime(rec.EndedAt),
		rec.Source,
		rec.Text,
		rec.ScaleFactor,
		rec.PressEvents,
		rec.ReleaseEvents,
		rec.Pauses,
		string(features),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert session: %w", err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read session id: %w", err)
	}

	for _, ch := range rec.Channels {
		samples, merr := json.Marshal(nonNilSamples(ch.Samples))
		if merr != nil {
			err = fmt.Errorf("failed to encode %s samples: %w", ch.Channel, merr)
			return 0, err
		}
		bins, merr := json.Marshal(ch.Bins)
		if merr != nil {
			err = fmt.Errorf("failed to encode %s bins: %w", ch.Channel, merr)
			return 0, err
		}
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO session_channels (session_id, channel, kind, sample_count, mean_ms, samples_json, bins_json)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, string(ch.Channel), ch.Kind, ch.Summary.Count, ch.Summary.MeanMs, string(samples), string(bins),
		); err != nil {
			err = fmt.Errorf("failed to insert %s channel: %w", ch.Channel, err)
			return 0, err
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit session: %w", err)
	}
	return id, nil
}

// GetSession loads a session with all of its channels.
func (s *Store) GetSession(ctx context.Context, id int64) (model.SessionRecord, error) {
	var rec model.SessionRecord
	var startedAt, endedAt, features string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, ref, started_at, ended_at, source, text, scale_factor, press_events, release_events, pauses, features_json
		 FROM sessions WHERE id = ?`, id,
	).Scan(&rec.ID, &rec.Ref, &startedAt, &endedAt, &rec.Source, &rec.Text, &rec.ScaleFactor,
		&rec.PressEvents, &rec.ReleaseEvents, &rec.Pauses, &features)
	if errors.Is(err, sql.ErrNoRows) {
		return model.SessionRecord{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return model.SessionRecord{}, fmt.Errorf("failed to load session: %w", err)
	}
	if rec.StartedAt, err = parseTime(startedAt); err != nil {
		return model.SessionRecord{}, fmt.Errorf("failed to parse started_at: %w", err)
	}
	if rec.EndedAt, err = parseTime(endedAt); err != nil {
		return model.SessionRecord{}, fmt.Errorf("failed to parse ended_at: %w", err)
	}
	rec.FeaturesJSON = []byte(features)

	channels, err := s.listChannels(ctx, id)
	if err != nil {
		return model.SessionRecord{}, err
	}
	rec.Channels = channels
	return rec, nil
}

func (s *Store) listChannels(ctx context.Context, id int64) ([]model.ChannelRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT channel, kind, sample_count, mean_ms, samples_json, bins_json
		 FROM session_channels WHERE session_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load channels: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	byChannel := map[model.Channel]model.ChannelRecord{}
	for rows.Next() {
		var name, samples, bins string
		var ch model.ChannelRecord
		if err := rows.Scan(&name, &ch.Kind, &ch.Summary.Count, &ch.Summary.MeanMs, &samples, &bins); err != nil {
			return nil, fmt.Errorf("failed to scan channel: %w", err)
		}
		parsed, ok := model.ParseChannel(name)
		if !ok {
			return nil, fmt.Errorf("unknown channel %q in session %d", name, id)
		}
		ch.Channel = parsed
		if err := json.Unmarshal([]byte(samples), &ch.Samples); err != nil {
			return nil, fmt.Errorf("failed to decode %s samples: %w", name, err)
		}
		if err := json.Unmarshal([]byte(bins), &ch.Bins); err != nil {
			return nil, fmt.Errorf("failed to decode %s bins: %w", name, err)
		}
		byChannel[parsed] = ch
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]model.ChannelRecord, 0, len(byChannel))
	for _, ch := range model.Channels {
		if rec, ok := byChannel[ch]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// ListSessions returns session aggregates filtered by stats config, oldest
// first. Last keeps only the most recent sessions.
func (s *Store) ListSessions(ctx context.Context, cfg model.StatsConfig) ([]model.SessionAggregate, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if cfg.Source != "" {
		clauses = append(clauses, "s.source = ?")
		args = append(args, cfg.Source)
	}
	if cfg.Since != nil {
		clauses = append(clauses, "s.ended_at >= ?")
		args = append(args, formatTime(*cfg.Since))
	}
	query := fmt.Sprintf(`SELECT s.id, s.ref, s.started_at, s.ended_at, s.source, length(s.text), s.scale_factor, s.press_events,
			c.channel, c.sample_count, c.mean_ms
		FROM sessions s
		LEFT JOIN session_channels c ON c.session_id = s.id
		WHERE %s
		ORDER BY s.ended_at ASC, s.id ASC`, strings.Join(clauses, " AND "))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var sessions []model.SessionAggregate
	for rows.Next() {
		var agg model.SessionAggregate
		var startedAt, endedAt string
		var channel sql.NullString
		var count sql.NullInt64
		var mean sql.NullFloat64
		if err := rows.Scan(&agg.SessionID, &agg.Ref, &startedAt, &endedAt, &agg.Source, &agg.TextLength,
			&agg.ScaleFactor, &agg.PressEvents, &channel, &count, &mean); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		if n := len(sessions); n == 0 || sessions[n-1].SessionID != agg.SessionID {
			started, err := parseTime(startedAt)
			if err != nil {
				return nil, err
			}
			agg.EndedAt, err = parseTime(endedAt)
			if err != nil {
				return nil, err
			}
			agg.DurationMs = agg.EndedAt.Sub(started).Milliseconds()
			agg.Summaries = map[model.Channel]model.ChannelSummary{}
			sessions = append(sessions, agg)
		}
		if !channel.Valid {
			continue
		}
		if ch, ok := model.ParseChannel(channel.String); ok {
			sessions[len(sessions)-1].Summaries[ch] = model.ChannelSummary{
				Count:  int(count.Int64),
				MeanMs: mean.Float64,
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if cfg.Last > 0 && len(sessions) > cfg.Last {
		sessions = sessions[len(sessions)-cfg.Last:]
	}
	return sessions, nil
}

// DeleteSession removes a session and its channels.
func (s *Store) DeleteSession(ctx context.Context, id int64) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()
	if _, err = tx.ExecContext(ctx, `DELETE FROM session_channels WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete channels: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		err = fmt.Errorf("%w: %d", ErrNotFound, id)
		return err
	}
	return tx.Commit()
}

func nonNilSamples(values []float64) []float64 {
	if values == nil {
		return []float64{}
	}
	return values
}
