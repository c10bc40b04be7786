package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/psu6810110402/gemini-foundry/pkg/types"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: db}
	if err := s.Init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Init() error {
	if _, err := s.db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		return err
	}
	if _, err := s.db.Exec(`PRAGMA busy_timeout=5000;`); err != nil {
		return err
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS profiles (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL DEFAULT '',
			full_name TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL DEFAULT 'user',
			banned INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS chat_sessions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			title TEXT NOT NULL,
			mode TEXT NOT NULL CHECK (mode IN ('investor','market','mvp','financial','pivot')),
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_user ON chat_sessions(user_id, updated_at);`,
		`CREATE TABLE IF NOT EXISTS chat_messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL CHECK (role IN ('user','model')),
			content TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session ON chat_messages(session_id);`,
		`CREATE TABLE IF NOT EXISTS api_usage (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			endpoint TEXT NOT NULL,
			tokens_used INTEGER NOT NULL,
			created_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_usage_user ON api_usage(user_id);`,
		`CREATE TABLE IF NOT EXISTS deleted_profiles (
			id TEXT PRIMARY KEY,
			deleted_at DATETIME NOT NULL
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) CreateSession(ctx context.Context, userID, title string, mode types.Mode) (*types.Session, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("invalid mode %q", mode)
	}
	if title == "" {
		title = types.DefaultSessionTitle
	}
	now := time.Now().UTC()
	sess := &types.Session{ID: uuid.NewString(), UserID: userID, Title: title, Mode: mode, CreatedAt: now, UpdatedAt: now}
	_, err := s.db.ExecContext(ctx, `INSERT INTO chat_sessions(id,user_id,title,mode,created_at,updated_at) VALUES(?,?,?,?,?,?)`,
		sess.ID, sess.UserID, sess.Title, sess.Mode, sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

const sessionColumns = `id,user_id,title,mode,created_at,updated_at`

func scanSession(sc interface{ Scan(...any) error }) (types.Session, error) {
	var out types.Session
	err := sc.Scan(&out.ID, &out.UserID, &out.Title, &out.Mode, &out.CreatedAt, &out.UpdatedAt)
	return out, err
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*types.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM chat_sessions WHERE id=?`, id)
	out, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context, userID string) ([]types.Session, error) {
	return s.querySessions(ctx, `SELECT `+sessionColumns+` FROM chat_sessions WHERE user_id=? ORDER BY updated_at DESC`, userID)
}

// ListAllSessions returns the newest sessions of every user; limit <= 0
// returns all of them.
func (s *SQLiteStore) ListAllSessions(ctx context.Context, limit int) ([]types.Session, error) {
	if limit <= 0 {
		limit = -1
	}
	return s.querySessions(ctx, `SELECT `+sessionColumns+` FROM chat_sessions ORDER BY created_at DESC LIMIT ?`, limit)
}

func (s *SQLiteStore) querySessions(ctx context.Context, query string, args ...any) ([]types.Session, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]types.Session, 0)
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// DeleteSession removes the session and its messages.
func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM chat_messages WHERE session_id=?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM chat_sessions WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

func (s *SQLiteStore) InsertMessage(ctx context.Context, sessionID string, role types.Role, content string) (*types.Message, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("invalid role %q", role)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `UPDATE chat_sessions SET updated_at=? WHERE id=?`, now, sessionID)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	res, err = tx.ExecContext(ctx, `INSERT INTO chat_messages(session_id,role,content,created_at) VALUES(?,?,?,?)`, sessionID, role, content, now)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &types.Message{ID: id, SessionID: sessionID, Role: role, Content: content, CreatedAt: now}, nil
}

// GetMessages returns the messages of a session in creation order.
func (s *SQLiteStore) GetMessages(ctx context.Context, sessionID string) ([]types.Message, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id,session_id,role,content,created_at FROM chat_messages WHERE session_id=? ORDER BY created_at ASC, id ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]types.Message, 0)
	for rows.Next() {
		var m types.Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) RecordUsage(ctx context.Context, userID, endpoint string, tokens int) error {
	if tokens <= 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO api_usage(user_id,endpoint,tokens_used,created_at) VALUES(?,?,?,?)`,
		userID, endpoint, tokens, time.Now().UTC())
	return err
}

// UsageSummary aggregates a user's usage per endpoint; an empty userID
// aggregates every user.
func (s *SQLiteStore) UsageSummary(ctx context.Context, userID string) ([]types.UsageSummary, error) {
	query := `SELECT endpoint, COUNT(*), COALESCE(SUM(tokens_used),0) FROM api_usage`
	var args []any
	if userID != "" {
		query += ` WHERE user_id=?`
		args = append(args, userID)
	}
	query += ` GROUP BY endpoint ORDER BY endpoint ASC`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]types.UsageSummary, 0)
	for rows.Next() {
		var u types.UsageSummary
		if err := rows.Scan(&u.Endpoint, &u.Calls, &u.TokensUsed); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// UpsertProfile creates the profile on first sight. Later calls refresh the
// role and any non-empty email or name; stored values are never blanked. A
// deleted profile is not brought back.
func (s *SQLiteStore) UpsertProfile(ctx context.Context, p types.Profile) error {
	if p.ID == "" {
		return errors.New("profile id is required")
	}
	if p.Role == "" {
		p.Role = "user"
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	var tomb int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM deleted_profiles WHERE id=?`, p.ID).Scan(&tomb)
	switch {
	case err == nil:
		return ErrProfileDeleted
	case !errors.Is(err, sql.ErrNoRows):
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO profiles(id,email,full_name,role,banned,created_at) VALUES(?,?,?,?,?,?)
	ON CONFLICT(id) DO UPDATE SET
		email=CASE WHEN excluded.email<>'' THEN excluded.email ELSE profiles.email END,
		full_name=CASE WHEN excluded.full_name<>'' THEN excluded.full_name ELSE profiles.full_name END,
		role=excluded.role`,
		p.ID, p.Email, p.FullName, p.Role, p.Banned, p.CreatedAt)
	return err
}

const profileColumns = `id,email,full_name,role,banned,created_at`

func scanProfile(sc interface{ Scan(...any) error }) (types.Profile, error) {
	var p types.Profile
	err := sc.Scan(&p.ID, &p.Email, &p.FullName, &p.Role, &p.Banned, &p.CreatedAt)
	return p, err
}

func (s *SQLiteStore) GetProfile(ctx context.Context, id string) (*types.Profile, error) {
	p, err := scanProfile(s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *SQLiteStore) ListProfiles(ctx context.Context) ([]types.Profile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+profileColumns+` FROM profiles ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]types.Profile, 0)
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SetBanned(ctx context.Context, id string, banned bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE profiles SET banned=? WHERE id=?`, banned, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteProfile removes a user with their sessions, messages and usage.
func (s *SQLiteStore) DeleteProfile(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	stmts := []string{
		`DELETE FROM chat_messages WHERE session_id IN (SELECT id FROM chat_sessions WHERE user_id=?)`,
		`DELETE FROM chat_sessions WHERE user_id=?`,
		`DELETE FROM api_usage WHERE user_id=?`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return err
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM profiles WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO deleted_profiles(id,deleted_at) VALUES(?,?)`, id, time.Now().UTC()); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return errors.New("store is nil")
	}
	return s.db.Close()
}
