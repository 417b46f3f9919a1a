//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

// Package inmemory provides in-memory session service implementation.
package inmemory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"trpc.group/trpc-go/trpc-adk-go/event"
	"trpc.group/trpc-go/trpc-adk-go/session"
)

const (
	defaultSessionEventLimit = 1000
)

var _ session.Service = (*SessionService)(nil)

// appSessions holds the sessions and scoped state of one app.
type appSessions struct {
	mu        sync.RWMutex
	sessions  map[string]map[string]*session.Session // userID -> sessionID -> session
	userState map[string]session.StateMap            // userID -> state
	appState  session.StateMap
}

func newAppSessions() *appSessions {
	return &appSessions{
		sessions:  make(map[string]map[string]*session.Session),
		userState: make(map[string]session.StateMap),
		appState:  make(session.StateMap),
	}
}

// serviceOpts is the options for session service.
type serviceOpts struct {
	// sessionEventLimit is the limit of events kept per session.
	sessionEventLimit int
}

// ServiceOpt is the option for the in-memory session service.
type ServiceOpt func(*serviceOpts)

// WithSessionEventLimit sets the limit of events kept per session.
// Zero means unlimited.
func WithSessionEventLimit(limit int) ServiceOpt {
	return func(opts *serviceOpts) {
		opts.sessionEventLimit = limit
	}
}

// SessionService provides an in-memory implementation of session.Service.
//
// Sessions are stored per app, per user. Commits against one session are
// serialized by the owning app's lock.
type SessionService struct {
	mu   sync.RWMutex
	apps map[string]*appSessions
	opts serviceOpts
}

// NewSessionService creates a new in-memory session service.
func NewSessionService(options ...ServiceOpt) *SessionService {
	opts := serviceOpts{
		sessionEventLimit: defaultSessionEventLimit,
	}
	for _, option := range options {
		option(&opts)
	}
	return &SessionService{
		apps: make(map[string]*appSessions),
		opts: opts,
	}
}

func (s *SessionService) getAppSessions(appName string) (*appSessions, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	app, ok := s.apps[appName]
	return app, ok
}

func (s *SessionService) getOrCreateAppSessions(appName string) *appSessions {
	s.mu.RLock()
	app, ok := s.apps[appName]
	if ok {
		s.mu.RUnlock()
		return app
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok = s.apps[appName]
	if ok {
		return app
	}
	app = newAppSessions()
	s.apps[appName] = app
	return app
}

// CreateSession creates a new session. An empty SessionID asks the service
// to generate one; an explicit ID that is already taken fails with
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

	app := s.getOrCreateAppSessions(key.AppName)

	explicitID := key.SessionID != ""
	if !explicitID {
		key.SessionID = uuid.New().String()
	}

	now := time.Now()
	sess := &session.Session{
		ID:        key.SessionID,
		AppName:   key.AppName,
		UserID:    key.UserID,
		State:     make(session.StateMap, len(state)),
		Events:    []event.Event{},
		UpdatedAt: now,
		CreatedAt: now,
	}
	for k, v := range state {
		if session.IsTempKey(k) {
			continue
		}
		sess.State[k] = copyBytes(v)
	}

	app.mu.Lock()
	defer app.mu.Unlock()

	if app.sessions[key.UserID] == nil {
		app.sessions[key.UserID] = make(map[string]*session.Session)
	}
	if app.userState[key.UserID] == nil {
		app.userState[key.UserID] = make(session.StateMap)
	}
	if explicitID {
		if _, ok := app.sessions[key.UserID][key.SessionID]; ok {
			return nil, session.ErrSessionAlreadyExists
		}
	}
	app.sessions[key.UserID][key.SessionID] = sess

	return mergeState(app.appState, app.userState[key.UserID], copySession(sess)), nil
}

// GetSession retrieves a session. The returned session is a deep copy with
// app and user state merged in under their prefixes. A missing session
// fails with session.ErrSessionNotFound.
func (s *SessionService) GetSession(
	ctx context.Context,
	key session.Key,
	opts ...session.Option,
) (*session.Session, error) {
	if err := key.CheckSessionKey(); err != nil {
		return nil, err
	}
	opt := applyOptions(opts...)
	app, ok := s.getAppSessions(key.AppName)
	if !ok {
		return nil, session.ErrSessionNotFound
	}

	app.mu.RLock()
	defer app.mu.RUnlock()
	sess, ok := app.sessions[key.UserID][key.SessionID]
	if !ok {
		return nil, session.ErrSessionNotFound
	}

	copiedSess := copySession(sess)
	applyGetSessionOptions(copiedSess, opt)
	return mergeState(app.appState, app.userState[key.UserID], copiedSess), nil
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
	app, ok := s.getAppSessions(userKey.AppName)
	if !ok {
		return []*session.Session{}, nil
	}

	app.mu.RLock()
	defer app.mu.RUnlock()

	sessList := make([]*session.Session, 0, len(app.sessions[userKey.UserID]))
	for _, sess := range app.sessions[userKey.UserID] {
		copiedSess := copySession(sess)
		applyGetSessionOptions(copiedSess, opt)
		sessList = append(sessList, mergeState(app.appState, app.userState[userKey.UserID], copiedSess))
	}
	sort.Slice(sessList, func(i, j int) bool {
		if sessList[i].CreatedAt.Equal(sessList[j].CreatedAt) {
			return sessList[i].ID < sessList[j].ID
		}
		return sessList[i].CreatedAt.Before(sessList[j].CreatedAt)
	})
	return sessList, nil
}

// DeleteSession removes a session. A missing session fails with
// session.ErrSessionNotFound.
func (s *SessionService) DeleteSession(
	ctx context.Context,
	key session.Key,
	opts ...session.Option,
) error {
	if err := key.CheckSessionKey(); err != nil {
		return err
	}

	app, ok := s.getAppSessions(key.AppName)
	if !ok {
		return session.ErrSessionNotFound
	}

	app.mu.Lock()
	defer app.mu.Unlock()

	if _, ok := app.sessions[key.UserID][key.SessionID]; !ok {
		return session.ErrSessionNotFound
	}
	delete(app.sessions[key.UserID], key.SessionID)
	if len(app.sessions[key.UserID]) == 0 {
		delete(app.sessions, key.UserID)
	}
	return nil
}

// UpdateAppState updates app-scoped state. Keys may carry the app: prefix;
// it is stripped before storage.
func (s *SessionService) UpdateAppState(ctx context.Context, appName string, state session.StateMap) error {
	if appName == "" {
		return session.ErrAppNameRequired
	}

	app := s.getOrCreateAppSessions(appName)

	app.mu.Lock()
	defer app.mu.Unlock()

	for k, v := range state {
		k = strings.TrimPrefix(k, session.StateAppPrefix)
		app.appState[k] = copyBytes(v)
	}
	return nil
}

// DeleteAppState deletes one app-scoped key.
func (s *SessionService) DeleteAppState(ctx context.Context, appName string, key string) error {
	if appName == "" {
		return session.ErrAppNameRequired
	}

	app, ok := s.getAppSessions(appName)
	if !ok {
		return nil
	}

	app.mu.Lock()
	defer app.mu.Unlock()

	delete(app.appState, strings.TrimPrefix(key, session.StateAppPrefix))
	return nil
}

// ListAppStates gets the app-scoped state. Keys are returned unprefixed.
func (s *SessionService) ListAppStates(ctx context.Context, appName string) (session.StateMap, error) {
	if appName == "" {
		return nil, session.ErrAppNameRequired
	}

	app, ok := s.getAppSessions(appName)
	if !ok {
		return make(session.StateMap), nil
	}

	app.mu.RLock()
	defer app.mu.RUnlock()
	return copyStateMap(app.appState), nil
}

// UpdateUserState updates user-scoped state. Keys may carry the user:
// prefix; app: and temp: keys are rejected.
func (s *SessionService) UpdateUserState(ctx context.Context, userKey session.UserKey, state session.StateMap) error {
	if err := userKey.CheckUserKey(); err != nil {
		return err
	}

	app := s.getOrCreateAppSessions(userKey.AppName)

	app.mu.Lock()
	defer app.mu.Unlock()

	for k := range state {
		if strings.HasPrefix(k, session.StateAppPrefix) || strings.HasPrefix(k, session.StateTempPrefix) {
			return fmt.Errorf("update user state: key %q is not user scoped", k)
		}
	}

	if app.userState[userKey.UserID] == nil {
		app.userState[userKey.UserID] = make(session.StateMap)
	}
	for k, v := range state {
		k = strings.TrimPrefix(k, session.StateUserPrefix)
		app.userState[userKey.UserID][k] = copyBytes(v)
	}
	return nil
}

// ListUserStates gets the user-scoped state. Keys are returned unprefixed.
func (s *SessionService) ListUserStates(ctx context.Context, userKey session.UserKey) (session.StateMap, error) {
	if err := userKey.CheckUserKey(); err != nil {
		return nil, err
	}
	app, ok := s.getAppSessions(userKey.AppName)
	if !ok {
		return make(session.StateMap), nil
	}

	app.mu.RLock()
	defer app.mu.RUnlock()
	userState, ok := app.userState[userKey.UserID]
	if !ok {
		return make(session.StateMap), nil
	}
	return copyStateMap(userState), nil
}

// DeleteUserState deletes one user-scoped key.
func (s *SessionService) DeleteUserState(ctx context.Context, userKey session.UserKey, key string) error {
	if err := userKey.CheckUserKey(); err != nil {
		return err
	}

	app, ok := s.getAppSessions(userKey.AppName)
	if !ok {
		return nil
	}

	app.mu.Lock()
	defer app.mu.Unlock()

	if app.userState[userKey.UserID] == nil {
		return nil
	}
	delete(app.userState[userKey.UserID], strings.TrimPrefix(key, session.StateUserPrefix))
	if len(app.userState[userKey.UserID]) == 0 {
		delete(app.userState, userKey.UserID)
	}
	return nil
}

// AppendEvent commits an event: the event is appended to the stored history
// and its StateDelta is routed by key prefix. app: keys go to app state,
// user: keys to user state, temp: keys are dropped, everything else lands
// in the session's own state. The commit is atomic under the app lock.
// The caller's session copy is updated to match on success.
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

	app, ok := s.getAppSessions(key.AppName)
	if !ok {
		return session.ErrSessionNotFound
	}

	app.mu.Lock()
	defer app.mu.Unlock()

	storedSession, ok := app.sessions[key.UserID][key.SessionID]
	if !ok {
		return session.ErrSessionNotFound
	}

	s.appendToSession(storedSession, evt)
	for k, v := range evt.StateDelta {
		switch {
		case strings.HasPrefix(k, session.StateTempPrefix):
			// Invocation-scoped, never persisted.
		case strings.HasPrefix(k, session.StateAppPrefix):
			app.appState[strings.TrimPrefix(k, session.StateAppPrefix)] = copyBytes(v)
		case strings.HasPrefix(k, session.StateUserPrefix):
			if app.userState[key.UserID] == nil {
				app.userState[key.UserID] = make(session.StateMap)
			}
			app.userState[key.UserID][strings.TrimPrefix(k, session.StateUserPrefix)] = copyBytes(v)
		default:
			storedSession.State[k] = copyBytes(v)
		}
	}

	// Bring the caller's view in line with the stored session.
	s.appendToSession(sess, evt)
	for k, v := range evt.StateDelta {
		if session.IsTempKey(k) {
			continue
		}
		sess.State[k] = copyBytes(v)
	}
	return nil
}

// Close closes the service.
func (s *SessionService) Close() error {
	return nil
}

func (s *SessionService) appendToSession(sess *session.Session, evt *event.Event) {
	sess.Events = append(sess.Events, *evt)
	if s.opts.sessionEventLimit > 0 && len(sess.Events) > s.opts.sessionEventLimit {
		sess.Events = sess.Events[len(sess.Events)-s.opts.sessionEventLimit:]
	}
	sess.UpdatedAt = time.Now()
}

// copySession creates a deep copy of a session.
func copySession(sess *session.Session) *session.Session {
	copiedSess := &session.Session{
		ID:        sess.ID,
		AppName:   sess.AppName,
		UserID:    sess.UserID,
		State:     copyStateMap(sess.State),
		Events:    make([]event.Event, len(sess.Events)),
		UpdatedAt: sess.UpdatedAt,
		CreatedAt: sess.CreatedAt,
	}
	copy(copiedSess.Events, sess.Events)
	return copiedSess
}

// applyGetSessionOptions applies event filtering options to the session.
func applyGetSessionOptions(sess *session.Session, opts *session.Options) {
	if opts.EventNum > 0 && len(sess.Events) > opts.EventNum {
		sess.Events = sess.Events[len(sess.Events)-opts.EventNum:]
	}
	if !opts.EventTime.IsZero() {
		var filtered []event.Event
		for _, e := range sess.Events {
			if !e.Timestamp.Before(opts.EventTime) {
				filtered = append(filtered, e)
			}
		}
		sess.Events = filtered
	}
}

// mergeState merges app and user state into the session state view under
// their prefixes.
func mergeState(appState, userState session.StateMap, sess *session.Session) *session.Session {
	for k, v := range appState {
		sess.State[session.StateAppPrefix+k] = copyBytes(v)
	}
	for k, v := range userState {
		sess.State[session.StateUserPrefix+k] = copyBytes(v)
	}
	return sess
}

func applyOptions(opts ...session.Option) *session.Options {
	opt := &session.Options{}
	for _, o := range opts {
		o(opt)
	}
	return opt
}

func copyBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func copyStateMap(m session.StateMap) session.StateMap {
	out := make(session.StateMap, len(m))
	for k, v := range m {
		out[k] = copyBytes(v)
	}
	return out
}
