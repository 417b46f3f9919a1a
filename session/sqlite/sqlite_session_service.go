//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

// Package sqlite provides a session service backed by a local SQLite file.
//
// The database is opened with a single connection, so all commits serialize
// through one writer and concurrent use never hits SQLITE_BUSY.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"trpc.group/trpc-go/trpc-adk-go/event"
	"trpc.group/trpc-go/trpc-adk-go/log"
	"trpc.group/trpc-go/trpc-adk-go/session"
)

const defaultSessionEventLimit = 1000

var _ session.Service = (*SessionService)(nil)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		app_name   TEXT NOT NULL,
		user_id    TEXT NOT NULL,
		session_id TEXT NOT NULL,
		state      TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (app_name, user_id, session_id)
	)`,
	`CREATE TABLE IF NOT EXISTS session_events (
		seq        INTEGER PRIMARY KEY AUTOINCREMENT,
		app_name   TEXT NOT NULL,
		user_id    TEXT NOT NULL,
		session_id TEXT NOT NULL,
		payload    TEXT NOT NULL,
		created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_session_events_key
		ON session_events(app_name, user_id, session_id)`,
	`CREATE TABLE IF NOT EXISTS app_states (
		app_name TEXT NOT NULL,
		key      TEXT NOT NULL,
		value    BLOB NOT NULL,
		PRIMARY KEY (app_name, key)
	)`,
	`CREATE TABLE IF NOT EXISTS user_states (
		app_name TEXT NOT NULL,
		user_id  TEXT NOT NULL,
		key      TEXT NOT NULL,
		value    BLOB NOT NULL,
		PRIMARY KEY (app_name, user_id, key)
	)`,
}

// serviceOpts is the options for the sqlite session service.
type serviceOpts struct {
	sessionEventLimit int
}

// ServiceOpt is the option for the sqlite session service.
type ServiceOpt func(*serviceOpts)

// WithSessionEventLimit sets the limit of events returned per session.
// Zero means unlimited.
func WithSessionEventLimit(limit int) ServiceOpt {
	return func(opts *serviceOpts) {
		opts.sessionEventLimit = limit
	}
}

// SessionService implements session.Service on top of a SQLite database.
type SessionService struct {
	db   *sql.DB
	opts serviceOpts
}

// NewSessionService opens (or creates) the database at path and prepares the
// schema.
func NewSessionService(path string, options ...ServiceOpt) (*SessionService, error) {
	opts := serviceOpts{
		sessionEventLimit: defaultSessionEventLimit,
	}
	for _, option := range options {
		option(&opts)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One shared connection serializes all writers.
	db.SetMaxOpenConns(1)

	for _, ddl := range schema {
		if _, err := db.ExecContext(context.Background(), ddl); err != nil {
			db.Close()
			return nil, fmt.Errorf("create table: %w", err)
		}
	}
	log.Debugf("sqlite session service opened: %s", path)
	return &SessionService{db: db, opts: opts}, nil
}

// CreateSession creates a new session row. An empty SessionID asks the
// service to generate one; an explicit ID that is already taken fails with
// session.ErrSessionAlreadyExists.
func (s *SessionService) CreateSession(
	ctx context.Context,
	key session.Key,
	state session.StateMap,
	opts ...session.Option,
) (*session.Session, error) {
	if err := key.CheckUserKey(); err != nil {
		return nil, err
	}

	explicitID := key.SessionID != ""
	if !explicitID {
		key.SessionID = uuid.New().String()
	}

	seed := make(session.StateMap, len(state))
	for k, v := range state {
		if session.IsTempKey(k) {
			continue
		}
		seed[k] = v
	}
	stateJSON, err := json.Marshal(seed)
	if err != nil {
		return nil, fmt.Errorf("encode session state: %w", err)
	}

	now := time.Now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if explicitID {
		var one int
		err := tx.QueryRowContext(ctx,
			`SELECT 1 FROM sessions WHERE app_name = ? AND user_id = ? AND session_id = ?`,
			key.AppName, key.UserID, key.SessionID,
		).Scan(&one)
		if err == nil {
			return nil, session.ErrSessionAlreadyExists
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("check session: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (app_name, user_id, session_id, state, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		key.AppName, key.UserID, key.SessionID, string(stateJSON), now.UnixNano(), now.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	sess := &session.Session{
		ID:        key.SessionID,
		AppName:   key.AppName,
		UserID:    key.UserID,
		State:     seed,
		Events:    []event.Event{},
		UpdatedAt: now,
		CreatedAt: now,
	}
	if err := s.mergeScopedState(ctx, key.AppName, key.UserID, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// GetSession retrieves a session with its event history and the app and user
// state merged in under their prefixes. A missing session fails with
// session.ErrSessionNotFound.
func (s *SessionService) GetSession(
	ctx context.Context,
	key session.Key,
	opts ...session.Option,
) (*session.Session, error) {
	if err := key.CheckSessionKey(); err != nil {
		return nil, err
	}
	opt := applyOptions(opts...)

	sess, err := s.loadSession(ctx, key, opt)
	if err != nil {
		return nil, err
	}
	if err := s.mergeScopedState(ctx, key.AppName, key.UserID, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// ListSessions returns all sessions for a given app and user, ordered by
// creation time.
func (s *SessionService) ListSessions(
	ctx context.Context,
	userKey session.UserKey,
	opts ...session.Option,
) ([]*session.Session, error) {
	if err := userKey.CheckUserKey(); err != nil {
		return nil, err
	}
	opt := applyOptions(opts...)

	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id FROM sessions WHERE app_name = ? AND user_id = ?
		 ORDER BY created_at, session_id`,
		userKey.AppName, userKey.UserID,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	sessList := make([]*session.Session, 0, len(ids))
	for _, id := range ids {
		key := session.Key{AppName: userKey.AppName, UserID: userKey.UserID, SessionID: id}
		sess, err := s.loadSession(ctx, key, opt)
		if err != nil {
			return nil, err
		}
		if err := s.mergeScopedState(ctx, key.AppName, key.UserID, sess); err != nil {
			return nil, err
		}
		sessList = append(sessList, sess)
	}
	return sessList, nil
}

// DeleteSession removes a session and its events. A missing session fails
// with session.ErrSessionNotFound.
func (s *SessionService) DeleteSession(
	ctx context.Context,
	key session.Key,
	opts ...session.Option,
) error {
	if err := key.CheckSessionKey(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM sessions WHERE app_name = ? AND user_id = ? AND session_id = ?`,
		key.AppName, key.UserID, key.SessionID,
	)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n == 0 {
		return session.ErrSessionNotFound
	}
	_, err = tx.ExecContext(ctx,
		`DELETE FROM session_events WHERE app_name = ? AND user_id = ? AND session_id = ?`,
		key.AppName, key.UserID, key.SessionID,
	)
	if err != nil {
		return fmt.Errorf("delete session events: %w", err)
	}
	return tx.Commit()
}

// UpdateAppState updates app-scoped state. Keys may carry the app: prefix;
// it is stripped before storage.
func (s *SessionService) UpdateAppState(ctx context.Context, appName string, state session.StateMap) error {
	if appName == "" {
		return session.ErrAppNameRequired
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for k, v := range state {
		k = strings.TrimPrefix(k, session.StateAppPrefix)
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO app_states (app_name, key, value) VALUES (?, ?, ?)`,
			appName, k, v,
		); err != nil {
			return fmt.Errorf("update app state: %w", err)
		}
	}
	return tx.Commit()
}

// DeleteAppState deletes one app-scoped key.
func (s *SessionService) DeleteAppState(ctx context.Context, appName string, key string) error {
	if appName == "" {
		return session.ErrAppNameRequired
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM app_states WHERE app_name = ? AND key = ?`,
		appName, strings.TrimPrefix(key, session.StateAppPrefix),
	)
	if err != nil {
		return fmt.Errorf("delete app state: %w", err)
	}
	return nil
}

// ListAppStates gets the app-scoped state. Keys are returned unprefixed.
func (s *SessionService) ListAppStates(ctx context.Context, appName string) (session.StateMap, error) {
	if appName == "" {
		return nil, session.ErrAppNameRequired
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM app_states WHERE app_name = ?`, appName)
	if err != nil {
		return nil, fmt.Errorf("list app states: %w", err)
	}
	defer rows.Close()
	return scanStateRows(rows)
}

// UpdateUserState updates user-scoped state. Keys may carry the user:
// prefix; app: and temp: keys are rejected.
func (s *SessionService) UpdateUserState(ctx context.Context, userKey session.UserKey, state session.StateMap) error {
	if err := userKey.CheckUserKey(); err != nil {
		return err
	}
	for k := range state {
		if strings.HasPrefix(k, session.StateAppPrefix) || strings.HasPrefix(k, session.StateTempPrefix) {
			return fmt.Errorf("update user state: key %q is not user scoped", k)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for k, v := range state {
		k = strings.TrimPrefix(k, session.StateUserPrefix)
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO user_states (app_name, user_id, key, value) VALUES (?, ?, ?, ?)`,
			userKey.AppName, userKey.UserID, k, v,
		); err != nil {
			return fmt.Errorf("update user state: %w", err)
		}
	}
	return tx.Commit()
}

// ListUserStates gets the user-scoped state. Keys are returned unprefixed.
func (s *SessionService) ListUserStates(ctx context.Context, userKey session.UserKey) (session.StateMap, error) {
	if err := userKey.CheckUserKey(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM user_states WHERE app_name = ? AND user_id = ?`,
		userKey.AppName, userKey.UserID)
	if err != nil {
		return nil, fmt.Errorf("list user states: %w", err)
	}
	defer rows.Close()
	return scanStateRows(rows)
}

// DeleteUserState deletes one user-scoped key.
func (s *SessionService) DeleteUserState(ctx context.Context, userKey session.UserKey, key string) error {
	if err := userKey.CheckUserKey(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM user_states WHERE app_name = ? AND user_id = ? AND key = ?`,
		userKey.AppName, userKey.UserID, strings.TrimPrefix(key, session.StateUserPrefix),
	)
	if err != nil {
		return fmt.Errorf("delete user state: %w", err)
	}
	return nil
}

// AppendEvent commits an event in a single transaction: the event row is
// inserted and the StateDelta is routed by key prefix. app: keys go to the
// app_states table, user: keys to user_states, temp: keys are dropped,
// everything else lands in the session's own state column. The caller's
// session copy is updated to match on success.
func (s *SessionService) AppendEvent(
	ctx context.Context,
	sess *session.Session,
	evt *event.Event,
	opts ...session.Option,
) error {
	key := session.Key{
		AppName:   sess.AppName,
		UserID:    sess.UserID,
		SessionID: sess.ID,
	}
	if err := key.CheckSessionKey(); err != nil {
		return err
	}

	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var stateJSON string
	err = tx.QueryRowContext(ctx,
		`SELECT state FROM sessions WHERE app_name = ? AND user_id = ? AND session_id = ?`,
		key.AppName, key.UserID, key.SessionID,
	).Scan(&stateJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return session.ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("load session state: %w", err)
	}

	sessionState := make(session.StateMap)
	if err := json.Unmarshal([]byte(stateJSON), &sessionState); err != nil {
		return fmt.Errorf("decode session state: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO session_events (app_name, user_id, session_id, payload, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		key.AppName, key.UserID, key.SessionID, string(payload), evt.Timestamp.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	for k, v := range evt.StateDelta {
		switch {
		case strings.HasPrefix(k, session.StateTempPrefix):
			// Invocation-scoped, never persisted.
		case strings.HasPrefix(k, session.StateAppPrefix):
			if _, err := tx.ExecContext(ctx,
				`INSERT OR REPLACE INTO app_states (app_name, key, value) VALUES (?, ?, ?)`,
				key.AppName, strings.TrimPrefix(k, session.StateAppPrefix), v,
			); err != nil {
				return fmt.Errorf("route app state: %w", err)
			}
		case strings.HasPrefix(k, session.StateUserPrefix):
			if _, err := tx.ExecContext(ctx,
				`INSERT OR REPLACE INTO user_states (app_name, user_id, key, value) VALUES (?, ?, ?, ?)`,
				key.AppName, key.UserID, strings.TrimPrefix(k, session.StateUserPrefix), v,
			); err != nil {
				return fmt.Errorf("route user state: %w", err)
			}
		default:
			sessionState[k] = v
		}
	}

	now := time.Now()
	newStateJSON, err := json.Marshal(sessionState)
	if err != nil {
		return fmt.Errorf("encode session state: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE sessions SET state = ?, updated_at = ? WHERE app_name = ? AND user_id = ? AND session_id = ?`,
		string(newStateJSON), now.UnixNano(), key.AppName, key.UserID, key.SessionID,
	)
	if err != nil {
		return fmt.Errorf("update session state: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	// Bring the caller's view in line with the stored session.
	sess.Events = append(sess.Events, *evt)
	for k, v := range evt.StateDelta {
		if session.IsTempKey(k) {
			continue
		}
		sess.State[k] = v
	}
	sess.UpdatedAt = now
	return nil
}

// Close closes the underlying database.
func (s *SessionService) Close() error {
	return s.db.Close()
}

func (s *SessionService) loadSession(
	ctx context.Context,
	key session.Key,
	opt *session.Options,
) (*session.Session, error) {
	var stateJSON string
	var createdAt, updatedAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT state, created_at, updated_at FROM sessions
		 WHERE app_name = ? AND user_id = ? AND session_id = ?`,
		key.AppName, key.UserID, key.SessionID,
	).Scan(&stateJSON, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	state := make(session.StateMap)
	if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
		return nil, fmt.Errorf("decode session state: %w", err)
	}

	events, err := s.loadEvents(ctx, key, opt)
	if err != nil {
		return nil, err
	}

	return &session.Session{
		ID:        key.SessionID,
		AppName:   key.AppName,
		UserID:    key.UserID,
		State:     state,
		Events:    events,
		CreatedAt: time.Unix(0, createdAt),
		UpdatedAt: time.Unix(0, updatedAt),
	}, nil
}

func (s *SessionService) loadEvents(
	ctx context.Context,
	key session.Key,
	opt *session.Options,
) ([]event.Event, error) {
	limit := s.opts.sessionEventLimit
	if opt.EventNum > 0 && (limit == 0 || opt.EventNum < limit) {
		limit = opt.EventNum
	}

	query := `SELECT payload FROM session_events
		WHERE app_name = ? AND user_id = ? AND session_id = ?`
	args := []any{key.AppName, key.UserID, key.SessionID}
	if !opt.EventTime.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, opt.EventTime.UnixNano())
	}
	// Take the most recent rows, then restore chronological order.
	query += ` ORDER BY seq DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		var evt event.Event
		if err := json.Unmarshal([]byte(payload), &evt); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	if events == nil {
		events = []event.Event{}
	}
	return events, nil
}

func (s *SessionService) mergeScopedState(
	ctx context.Context,
	appName, userID string,
	sess *session.Session,
) error {
	appState, err := s.ListAppStates(ctx, appName)
	if err != nil {
		return err
	}
	for k, v := range appState {
		sess.State[session.StateAppPrefix+k] = v
	}
	userState, err := s.ListUserStates(ctx, session.UserKey{AppName: appName, UserID: userID})
	if err != nil {
		return err
	}
	for k, v := range userState {
		sess.State[session.StateUserPrefix+k] = v
	}
	return nil
}

func scanStateRows(rows *sql.Rows) (session.StateMap, error) {
	state := make(session.StateMap)
	for rows.Next() {
		var k string
		var v []byte
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan state: %w", err)
		}
		state[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate state: %w", err)
	}
	return state, nil
}

func applyOptions(opts ...session.Option) *session.Options {
	opt := &session.Options{}
	for _, o := range opts {
		o(opt)
	}
	return opt
}
