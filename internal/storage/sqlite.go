package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"tubewatch/internal/model"
	"tubewatch/migrations"
)

// Full precision, so dedup timestamp equality survives the round-trip.
const timeLayout = time.RFC3339Nano

// SQLite implements Store backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=OFF"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("disable foreign keys: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Subscribe links target to ch, creating the channel and seeding its dedup
// state on first contact.
func (s *SQLite) Subscribe(ctx context.Context, ch model.Channel, target int64, seed model.DedupState) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(timeLayout)

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO channels (id, title, created_at) VALUES (?, ?, ?)`,
		ch.ID, ch.Title, now,
	); err != nil {
		return false, fmt.Errorf("insert channel: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO subscriptions (channel_id, chat_id, created_at) VALUES (?, ?, ?)`,
		ch.ID, target, now,
	)
	if err != nil {
		return false, fmt.Errorf("insert subscription: %w", err)
	}
	added, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}

	recentIDs, err := marshalIDs(seed.RecentIDs)
	if err != nil {
		return false, err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO dedup_states (channel_id, last_published, recent_ids, updated_at)
		 VALUES (?, ?, ?, ?)`,
		ch.ID, seed.LastPublished.UTC().Format(timeLayout), recentIDs, now,
	); err != nil {
		return false, fmt.Errorf("seed dedup state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit tx: %w", err)
	}
	return added > 0, nil
}

// Unsubscribe removes a (channel, target) link. Dropping the last
// subscription takes the channel row and its dedup state with it.
func (s *SQLite) Unsubscribe(ctx context.Context, channelID string, target int64) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM subscriptions WHERE channel_id = ? AND chat_id = ?`,
		channelID, target,
	)
	if err != nil {
		return false, fmt.Errorf("delete subscription: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}

	var remaining int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM subscriptions WHERE channel_id = ?`, channelID,
	).Scan(&remaining); err != nil {
		return false, fmt.Errorf("count subscriptions: %w", err)
	}
	if remaining == 0 {
		if _, err := tx.ExecContext(ctx, `DELETE FROM dedup_states WHERE channel_id = ?`, channelID); err != nil {
			return false, fmt.Errorf("delete dedup state: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM channels WHERE id = ?`, channelID); err != nil {
			return false, fmt.Errorf("delete channel: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit tx: %w", err)
	}
	return removed > 0, nil
}

// ListSubscriptions returns the channels the given chat is watching.
func (s *SQLite) ListSubscriptions(ctx context.Context, target int64) ([]model.Channel, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.title, c.gone_at, c.created_at
		 FROM channels c
		 JOIN subscriptions s ON s.channel_id = c.id
		 WHERE s.chat_id = ?
		 ORDER BY c.id`, target,
	)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanChannels(rows)
}

// ListTargets returns the chats subscribed to the given channel.
func (s *SQLite) ListTargets(ctx context.Context, channelID string) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chat_id FROM subscriptions WHERE channel_id = ? ORDER BY chat_id`, channelID,
	)
	if err != nil {
		return nil, fmt.Errorf("query targets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var targets []int64
	for rows.Next() {
		var chatID int64
		if err := rows.Scan(&chatID); err != nil {
			return nil, fmt.Errorf("scan target: %w", err)
		}
		targets = append(targets, chatID)
	}
	return targets, rows.Err()
}

// ListChannels returns every watched channel.
func (s *SQLite) ListChannels(ctx context.Context) ([]model.Channel, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, gone_at, created_at FROM channels ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query channels: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanChannels(rows)
}

// GetChannel returns a single channel by its upstream id.
func (s *SQLite) GetChannel(ctx context.Context, channelID string) (*model.Channel, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, gone_at, created_at FROM channels WHERE id = ?`, channelID,
	)
	ch, err := scanChannel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan channel: %w", err)
	}
	return ch, nil
}

// UpdateChannelTitle refreshes the cached display name of a channel.
func (s *SQLite) UpdateChannelTitle(ctx context.Context, channelID, title string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE channels SET title = ? WHERE id = ?`, title, channelID,
	)
	if err != nil {
		return fmt.Errorf("update title: %w", err)
	}
	return affectedOrNotFound(res)
}

// SetChannelGone flags or clears the missing-upstream marker. Flagging an
// already flagged channel keeps the original timestamp.
func (s *SQLite) SetChannelGone(ctx context.Context, channelID string, gone bool) error {
	var (
		res sql.Result
		err error
	)
	if gone {
		now := time.Now().UTC().Format(timeLayout)
		res, err = s.db.ExecContext(ctx,
			`UPDATE channels SET gone_at = COALESCE(gone_at, ?) WHERE id = ?`, now, channelID,
		)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE channels SET gone_at = NULL WHERE id = ?`, channelID,
		)
	}
	if err != nil {
		return fmt.Errorf("set gone flag: %w", err)
	}
	return affectedOrNotFound(res)
}

// LoadDedupState returns the stored fingerprint, or (nil, nil) when the
// channel has none yet.
func (s *SQLite) LoadDedupState(ctx context.Context, channelID string) (*model.DedupState, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT last_published, recent_ids FROM dedup_states WHERE channel_id = ?`, channelID,
	)

	var publishedStr, idsStr string
	err := row.Scan(&publishedStr, &idsStr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan dedup state: %w", err)
	}

	published, err := time.Parse(timeLayout, publishedStr)
	if err != nil {
		return nil, fmt.Errorf("parse last_published: %w", err)
	}
	ids, err := unmarshalIDs(idsStr)
	if err != nil {
		return nil, err
	}
	return &model.DedupState{LastPublished: published, RecentIDs: ids}, nil
}

// CommitDedupState replaces the channel's fingerprint in one statement. The
// write is refused with ErrNotFound when the channel row no longer exists.
func (s *SQLite) CommitDedupState(ctx context.Context, channelID string, st model.DedupState) error {
	recentIDs, err := marshalIDs(st.RecentIDs)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO dedup_states (channel_id, last_published, recent_ids, updated_at)
		 SELECT ?, ?, ?, ?
		 WHERE EXISTS (SELECT 1 FROM channels WHERE id = ?)`,
		channelID,
		st.LastPublished.UTC().Format(timeLayout),
		recentIDs,
		time.Now().UTC().Format(timeLayout),
		channelID,
	)
	if err != nil {
		return fmt.Errorf("commit dedup state: %w", err)
	}
	return affectedOrNotFound(res)
}

func affectedOrNotFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func marshalIDs(ids []string) (string, error) {
	if ids == nil {
		ids = []string{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return "", fmt.Errorf("marshal recent ids: %w", err)
	}
	return string(data), nil
}

func unmarshalIDs(data string) ([]string, error) {
	var ids []string
	if err := json.Unmarshal([]byte(data), &ids); err != nil {
		return nil, fmt.Errorf("unmarshal recent ids: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return ids, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanChannel(row scannable) (*model.Channel, error) {
	var ch model.Channel
	var goneAt, created sql.NullString
	if err := row.Scan(&ch.ID, &ch.Title, &goneAt, &created); err != nil {
		return nil, err
	}
	if goneAt.Valid {
		t, err := time.Parse(timeLayout, goneAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse gone_at: %w", err)
		}
		ch.GoneAt = &t
	}
	if created.Valid {
		t, err := time.Parse(timeLayout, created.String)
		if err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		ch.CreatedAt = t
	}
	return &ch, nil
}

func scanChannels(rows *sql.Rows) ([]model.Channel, error) {
	var channels []model.Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		channels = append(channels, *ch)
	}
	return channels, rows.Err()
}
