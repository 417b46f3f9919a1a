//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-adk-go/event"
	"trpc.group/trpc-go/trpc-adk-go/model"
	"trpc.group/trpc-go/trpc-adk-go/session"
)

func newTestService(t *testing.T) *SessionService {
	t.Helper()
	service, err := NewSessionService(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { service.Close() })
	return service
}

func newStateEvent(author string, delta map[string][]byte) *event.Event {
	evt := event.New("inv-1", author, event.WithStateDelta(delta))
	content := model.NewModelContent(model.NewTextPart("done"))
	evt.Response = &model.Response{
		Content:      &content,
		TurnComplete: true,
	}
	return evt
}

func TestCreateAndGetSession(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()
	key := session.Key{AppName: "test-app", UserID: "user-1", SessionID: "s1"}

	created, err := service.CreateSession(ctx, key, session.StateMap{"topic": []byte(`"go"`)})
	require.NoError(t, err)
	assert.Equal(t, "s1", created.ID)
	assert.Equal(t, []byte(`"go"`), created.State["topic"])

	got, err := service.GetSession(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "s1", got.ID)
	assert.Equal(t, "test-app", got.AppName)
	assert.Equal(t, []byte(`"go"`), got.State["topic"])
	assert.Empty(t, got.Events)

	// Duplicate explicit ID fails.
	_, err = service.CreateSession(ctx, key, nil)
	assert.ErrorIs(t, err, session.ErrSessionAlreadyExists)

	// Generated IDs never collide with each other.
	a, err := service.CreateSession(ctx, session.Key{AppName: "test-app", UserID: "user-1"}, nil)
	require.NoError(t, err)
	b, err := service.CreateSession(ctx, session.Key{AppName: "test-app", UserID: "user-1"}, nil)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)

	// Missing sessions report not found.
	_, err = service.GetSession(ctx, session.Key{AppName: "test-app", UserID: "user-1", SessionID: "missing"})
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestAppendEventPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sessions.db")
	key := session.Key{AppName: "test-app", UserID: "user-1", SessionID: "s1"}

	service, err := NewSessionService(path)
	require.NoError(t, err)

	sess, err := service.CreateSession(ctx, key, nil)
	require.NoError(t, err)

	evt := newStateEvent("assistant", map[string][]byte{
		"step":                                []byte(`1`),
		session.StateAppPrefix + "config":     []byte(`"shared"`),
		session.StateUserPrefix + "nickname":  []byte(`"sam"`),
		session.StateTempPrefix + "transient": []byte(`"gone"`),
	})
	require.NoError(t, service.AppendEvent(ctx, sess, evt))
	require.NoError(t, service.Close())

	// Reopen the same file and verify everything survived.
	service, err = NewSessionService(path)
	require.NoError(t, err)
	defer service.Close()

	got, err := service.GetSession(ctx, key)
	require.NoError(t, err)
	require.Len(t, got.Events, 1)
	assert.Equal(t, "assistant", got.Events[0].Author)
	assert.Equal(t, "done", got.Events[0].Response.Content.Text())
	assert.Equal(t, []byte(`1`), got.State["step"])
	assert.Equal(t, []byte(`"shared"`), got.State[session.StateAppPrefix+"config"])
	assert.Equal(t, []byte(`"sam"`), got.State[session.StateUserPrefix+"nickname"])
	_, ok := got.State[session.StateTempPrefix+"transient"]
	assert.False(t, ok)

	appState, err := service.ListAppStates(ctx, "test-app")
	require.NoError(t, err)
	assert.Equal(t, []byte(`"shared"`), appState["config"])

	userState, err := service.ListUserStates(ctx, session.UserKey{AppName: "test-app", UserID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, []byte(`"sam"`), userState["nickname"])
}

func TestAppendEventSessionNotFound(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	ghost := &session.Session{
		ID:      "ghost",
		AppName: "test-app",
		UserID:  "user-1",
		State:   session.StateMap{},
	}
	err := service.AppendEvent(ctx, ghost, newStateEvent("assistant", nil))
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
	assert.Empty(t, ghost.Events)
}

func TestListSessions(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()
	userKey := session.UserKey{AppName: "test-app", UserID: "user-1"}

	list, err := service.ListSessions(ctx, userKey)
	require.NoError(t, err)
	assert.Empty(t, list)

	for _, id := range []string{"s1", "s2", "s3"} {
		_, err := service.CreateSession(ctx, session.Key{
			AppName:   "test-app",
			UserID:    "user-1",
			SessionID: id,
		}, nil)
		require.NoError(t, err)
	}
	_, err = service.CreateSession(ctx, session.Key{
		AppName:   "test-app",
		UserID:    "user-2",
		SessionID: "other",
	}, nil)
	require.NoError(t, err)

	list, err = service.ListSessions(ctx, userKey)
	require.NoError(t, err)
	require.Len(t, list, 3)
	for _, sess := range list {
		assert.Equal(t, "user-1", sess.UserID)
	}
}

func TestDeleteSession(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()
	key := session.Key{AppName: "test-app", UserID: "user-1", SessionID: "s1"}

	err := service.DeleteSession(ctx, key)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)

	sess, err := service.CreateSession(ctx, key, nil)
	require.NoError(t, err)
	require.NoError(t, service.AppendEvent(ctx, sess, newStateEvent("assistant", nil)))

	require.NoError(t, service.DeleteSession(ctx, key))

	_, err = service.GetSession(ctx, key)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)

	// Events were removed with the session; a fresh session with the same ID
	// starts empty.
	recreated, err := service.CreateSession(ctx, key, nil)
	require.NoError(t, err)
	assert.Empty(t, recreated.Events)
}

func TestGetSessionEventNum(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()
	key := session.Key{AppName: "test-app", UserID: "user-1", SessionID: "s1"}

	sess, err := service.CreateSession(ctx, key, nil)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, service.AppendEvent(ctx, sess, newStateEvent("assistant", nil)))
	}

	got, err := service.GetSession(ctx, key, session.WithEventNum(2))
	require.NoError(t, err)
	assert.Len(t, got.Events, 2)

	got, err = service.GetSession(ctx, key)
	require.NoError(t, err)
	assert.Len(t, got.Events, 5)
}

func TestAppAndUserStateCRUD(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()
	userKey := session.UserKey{AppName: "test-app", UserID: "user-1"}

	require.NoError(t, service.UpdateAppState(ctx, "test-app",
		session.StateMap{session.StateAppPrefix + "k1": []byte(`1`), "k2": []byte(`2`)}))
	appState, err := service.ListAppStates(ctx, "test-app")
	require.NoError(t, err)
	assert.Equal(t, []byte(`1`), appState["k1"])
	assert.Equal(t, []byte(`2`), appState["k2"])

	require.NoError(t, service.DeleteAppState(ctx, "test-app", "k1"))
	appState, err = service.ListAppStates(ctx, "test-app")
	require.NoError(t, err)
	assert.Nil(t, appState["k1"])

	require.NoError(t, service.UpdateUserState(ctx, userKey,
		session.StateMap{session.StateUserPrefix + "lang": []byte(`"en"`)}))
	userState, err := service.ListUserStates(ctx, userKey)
	require.NoError(t, err)
	assert.Equal(t, []byte(`"en"`), userState["lang"])

	// Foreign prefixes are rejected.
	err = service.UpdateUserState(ctx, userKey, session.StateMap{session.StateAppPrefix + "x": []byte(`1`)})
	require.Error(t, err)
	err = service.UpdateUserState(ctx, userKey, session.StateMap{session.StateTempPrefix + "x": []byte(`1`)})
	require.Error(t, err)

	require.NoError(t, service.DeleteUserState(ctx, userKey, "lang"))
	userState, err = service.ListUserStates(ctx, userKey)
	require.NoError(t, err)
	assert.Empty(t, userState)
}
