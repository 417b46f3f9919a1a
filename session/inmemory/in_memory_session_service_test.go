//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

package inmemory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-adk-go/event"
	"trpc.group/trpc-go/trpc-adk-go/model"
	"trpc.group/trpc-go/trpc-adk-go/session"
)

func TestCreateSession(t *testing.T) {
	service := NewSessionService()
	defer service.Close()
	ctx := context.Background()

	// Create with a generated ID.
	sess, err := service.CreateSession(ctx, session.Key{
		AppName: "test-app",
		UserID:  "user-1",
	}, session.StateMap{"topic": []byte(`"weather"`)})
	require.NoError(t, err)
	require.NotEmpty(t, sess.ID)
	assert.Equal(t, "test-app", sess.AppName)
	assert.Equal(t, "user-1", sess.UserID)
	assert.Equal(t, []byte(`"weather"`), sess.State["topic"])

	// Create with an explicit ID.
	sess2, err := service.CreateSession(ctx, session.Key{
		AppName:   "test-app",
		UserID:    "user-1",
		SessionID: "explicit-id",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "explicit-id", sess2.ID)

	// Re-creating the same explicit ID fails.
	_, err = service.CreateSession(ctx, session.Key{
		AppName:   "test-app",
		UserID:    "user-1",
		SessionID: "explicit-id",
	}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, session.ErrSessionAlreadyExists)

	// Temp-scoped seed keys are not stored.
	sess3, err := service.CreateSession(ctx, session.Key{
		AppName: "test-app",
		UserID:  "user-1",
	}, session.StateMap{session.StateTempPrefix + "scratch": []byte(`1`)})
	require.NoError(t, err)
	_, ok := sess3.State[session.StateTempPrefix+"scratch"]
	assert.False(t, ok)

	// Missing key fields are rejected.
	_, err = service.CreateSession(ctx, session.Key{UserID: "user-1"}, nil)
	assert.ErrorIs(t, err, session.ErrAppNameRequired)
	_, err = service.CreateSession(ctx, session.Key{AppName: "test-app"}, nil)
	assert.ErrorIs(t, err, session.ErrUserIDRequired)
}

func TestGetSession(t *testing.T) {
	service := NewSessionService()
	defer service.Close()
	ctx := context.Background()
	key := session.Key{AppName: "test-app", UserID: "user-1", SessionID: "s1"}

	_, err := service.GetSession(ctx, key)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)

	created, err := service.CreateSession(ctx, key, session.StateMap{"k": []byte(`"v"`)})
	require.NoError(t, err)

	got, err := service.GetSession(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, []byte(`"v"`), got.State["k"])

	// The returned session is a copy; mutating it does not affect storage.
	got.State["k"] = []byte(`"mutated"`)
	again, err := service.GetSession(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte(`"v"`), again.State["k"])
}

func TestGetSessionMergesScopedState(t *testing.T) {
	service := NewSessionService()
	defer service.Close()
	ctx := context.Background()
	key := session.Key{AppName: "test-app", UserID: "user-1", SessionID: "s1"}

	_, err := service.CreateSession(ctx, key, nil)
	require.NoError(t, err)

	err = service.UpdateAppState(ctx, "test-app", session.StateMap{"model": []byte(`"gpt"`)})
	require.NoError(t, err)
	err = service.UpdateUserState(ctx, session.UserKey{AppName: "test-app", UserID: "user-1"},
		session.StateMap{"lang": []byte(`"en"`)})
	require.NoError(t, err)

	got, err := service.GetSession(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte(`"gpt"`), got.State[session.StateAppPrefix+"model"])
	assert.Equal(t, []byte(`"en"`), got.State[session.StateUserPrefix+"lang"])
}

func TestListSessions(t *testing.T) {
	service := NewSessionService()
	defer service.Close()
	ctx := context.Background()
	userKey := session.UserKey{AppName: "test-app", UserID: "user-1"}

	list, err := service.ListSessions(ctx, userKey)
	require.NoError(t, err)
	assert.Empty(t, list)

	for i := 0; i < 3; i++ {
		_, err := service.CreateSession(ctx, session.Key{
			AppName:   "test-app",
			UserID:    "user-1",
			SessionID: fmt.Sprintf("s%d", i),
		}, nil)
		require.NoError(t, err)
	}
	// Another user's session must not appear.
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
	service := NewSessionService()
	defer service.Close()
	ctx := context.Background()
	key := session.Key{AppName: "test-app", UserID: "user-1", SessionID: "s1"}

	err := service.DeleteSession(ctx, key)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)

	_, err = service.CreateSession(ctx, key, nil)
	require.NoError(t, err)

	err = service.DeleteSession(ctx, key)
	require.NoError(t, err)

	_, err = service.GetSession(ctx, key)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)

	// Deleting twice reports not found again.
	err = service.DeleteSession(ctx, key)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
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

func TestAppendEventRoutesStateDelta(t *testing.T) {
	service := NewSessionService()
	defer service.Close()
	ctx := context.Background()
	key := session.Key{AppName: "test-app", UserID: "user-1", SessionID: "s1"}

	sess, err := service.CreateSession(ctx, key, nil)
	require.NoError(t, err)

	evt := newStateEvent("assistant", map[string][]byte{
		"step":                                []byte(`1`),
		session.StateAppPrefix + "config":     []byte(`"shared"`),
		session.StateUserPrefix + "nickname":  []byte(`"sam"`),
		session.StateTempPrefix + "transient": []byte(`"gone"`),
	})
	err = service.AppendEvent(ctx, sess, evt)
	require.NoError(t, err)

	// The caller's copy reflects the commit, minus temp keys.
	assert.Equal(t, []byte(`1`), sess.State["step"])
	assert.Equal(t, []byte(`"shared"`), sess.State[session.StateAppPrefix+"config"])
	_, ok := sess.State[session.StateTempPrefix+"transient"]
	assert.False(t, ok)
	require.Len(t, sess.Events, 1)

	// Session-scoped keys persist on the session.
	got, err := service.GetSession(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte(`1`), got.State["step"])
	require.Len(t, got.Events, 1)
	assert.Equal(t, "assistant", got.Events[0].Author)

	// App-scoped keys persist app-wide, unprefixed in the app store.
	appState, err := service.ListAppStates(ctx, "test-app")
	require.NoError(t, err)
	assert.Equal(t, []byte(`"shared"`), appState["config"])

	// User-scoped keys persist for the user across sessions.
	userState, err := service.ListUserStates(ctx, session.UserKey{AppName: "test-app", UserID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, []byte(`"sam"`), userState["nickname"])

	// Temp keys were dropped everywhere.
	_, ok = got.State[session.StateTempPrefix+"transient"]
	assert.False(t, ok)

	// A second session of the same user sees user and app scope, not the
	// first session's own keys.
	key2 := session.Key{AppName: "test-app", UserID: "user-1", SessionID: "s2"}
	sess2, err := service.CreateSession(ctx, key2, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte(`"sam"`), sess2.State[session.StateUserPrefix+"nickname"])
	assert.Equal(t, []byte(`"shared"`), sess2.State[session.StateAppPrefix+"config"])
	_, ok = sess2.State["step"]
	assert.False(t, ok)
}

func TestAppendEventSessionNotFound(t *testing.T) {
	service := NewSessionService()
	defer service.Close()
	ctx := context.Background()

	ghost := &session.Session{
		ID:      "ghost",
		AppName: "test-app",
		UserID:  "user-1",
		State:   session.StateMap{},
	}
	err := service.AppendEvent(ctx, ghost, newStateEvent("assistant", nil))
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
	// The caller's copy stays untouched on failure.
	assert.Empty(t, ghost.Events)
}

func TestAppendEventLimit(t *testing.T) {
	service := NewSessionService(WithSessionEventLimit(2))
	defer service.Close()
	ctx := context.Background()
	key := session.Key{AppName: "test-app", UserID: "user-1", SessionID: "s1"}

	sess, err := service.CreateSession(ctx, key, nil)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		evt := newStateEvent("assistant", map[string][]byte{"i": []byte(fmt.Sprintf("%d", i))})
		require.NoError(t, service.AppendEvent(ctx, sess, evt))
	}

	got, err := service.GetSession(ctx, key)
	require.NoError(t, err)
	require.Len(t, got.Events, 2)
	// State updates from trimmed events are not lost.
	assert.Equal(t, []byte("3"), got.State["i"])
}

func TestGetSessionEventFilters(t *testing.T) {
	service := NewSessionService()
	defer service.Close()
	ctx := context.Background()
	key := session.Key{AppName: "test-app", UserID: "user-1", SessionID: "s1"}

	sess, err := service.CreateSession(ctx, key, nil)
	require.NoError(t, err)

	var cutoff time.Time
	for i := 0; i < 5; i++ {
		if i == 3 {
			cutoff = time.Now()
		}
		require.NoError(t, service.AppendEvent(ctx, sess, newStateEvent("assistant", nil)))
		time.Sleep(2 * time.Millisecond)
	}

	got, err := service.GetSession(ctx, key, session.WithEventNum(2))
	require.NoError(t, err)
	assert.Len(t, got.Events, 2)

	got, err = service.GetSession(ctx, key, session.WithEventTime(cutoff))
	require.NoError(t, err)
	assert.Len(t, got.Events, 2)
}

func TestUpdateUserStateRejectsForeignPrefixes(t *testing.T) {
	service := NewSessionService()
	defer service.Close()
	ctx := context.Background()
	userKey := session.UserKey{AppName: "test-app", UserID: "user-1"}

	err := service.UpdateUserState(ctx, userKey, session.StateMap{
		session.StateAppPrefix + "k": []byte(`1`),
	})
	require.Error(t, err)

	err = service.UpdateUserState(ctx, userKey, session.StateMap{
		session.StateTempPrefix + "k": []byte(`1`),
	})
	require.Error(t, err)
}
