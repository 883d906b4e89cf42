package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"todo-backend/internal/session"

	_ "modernc.org/sqlite"
)

// sqliteSessionStore SQLite 实现的 session 存储，多个实例共享同一个库文件时可跨实例读取
type sqliteSessionStore struct {
	db  *sql.DB
	now func() time.Time
}

// SQLiteSessionStore session.Store + session.Pruner + Close
type SQLiteSessionStore interface {
	session.Store
	session.Pruner
	Close() error
}

// NewSQLiteSessionStore 创建 SQLite session 存储
func NewSQLiteSessionStore(dbPath string) (SQLiteSessionStore, error) {
	// 确保目录存在
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// 多个连接并发写时等待锁而不是直接报 SQLITE_BUSY
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	// 创建 sessions 表
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			data TEXT NOT NULL,
			expires_at INTEGER NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create sessions table: %w", err)
	}

	// 创建索引
	if _, err := db.Exec("CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at)"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	return &sqliteSessionStore{db: db, now: time.Now}, nil
}

// Get 读取未过期的 session
func (s *sqliteSessionStore) Get(ctx context.Context, id string) (*session.Record, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		"SELECT data FROM sessions WHERE id = ? AND expires_at > ?",
		id, s.now().UnixMilli(),
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	var rec session.Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	rec.ID = id
	return &rec, nil
}

// Save 写入或覆盖 session
func (s *sqliteSessionStore) Save(ctx context.Context, rec *session.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, data, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			data = excluded.data,
			expires_at = excluded.expires_at,
			updated_at = CURRENT_TIMESTAMP
	`, rec.ID, string(data), rec.ExpiresAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Delete 删除 session，不存在时不报错
func (s *sqliteSessionStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Prune 清理过期 session
func (s *sqliteSessionStore) Prune(ctx context.Context, now time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at <= ?", now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune sessions: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// Close 关闭数据库连接
func (s *sqliteSessionStore) Close() error {
	return s.db.Close()
}
