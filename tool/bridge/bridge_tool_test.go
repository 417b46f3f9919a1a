//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-adk-go/tool"
)

func TestBridgeToolCall(t *testing.T) {
	b, err := New("upper", "uppercases text", func(request []byte) ([]byte, error) {
		var in struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(request, &in); err != nil {
			return nil, err
		}
		return json.Marshal(map[string]string{"text": strings.ToUpper(in.Text)})
	})
	require.NoError(t, err)
	defer b.Close()

	result, err := b.Call(context.Background(), []byte(`{"text": "hello"}`))
	require.NoError(t, err)
	raw, ok := result.(json.RawMessage)
	require.True(t, ok)
	assert.JSONEq(t, `{"text": "HELLO"}`, string(raw))
}

func TestBridgeToolSerializesInvocations(t *testing.T) {
	var active, peak int32
	handler := func(request []byte) ([]byte, error) {
		cur := atomic.AddInt32(&active, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if cur <= old || atomic.CompareAndSwapInt32(&peak, old, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return []byte(`{}`), nil
	}

	// Two independent tools still share the runtime lock.
	a, err := New("a", "", handler, WithPoolSize(4))
	require.NoError(t, err)
	defer a.Close()
	b, err := New("b", "", handler, WithPoolSize(4))
	require.NoError(t, err)
	defer b.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		tl := a
		if i%2 == 0 {
			tl = b
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := tl.Call(context.Background(), []byte(`{}`))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&peak))
}

func TestBridgeToolTimeout(t *testing.T) {
	release := make(chan struct{})
	b, err := New("slow", "", func(request []byte) ([]byte, error) {
		<-release
		return []byte(`{}`), nil
	}, WithTimeout(10*time.Millisecond))
	require.NoError(t, err)
	defer b.Close()
	defer close(release)

	_, err = b.Call(context.Background(), []byte(`{}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, tool.ErrTimeout)

	var toolErr *tool.Error
	require.True(t, errors.As(err, &toolErr))
	assert.Equal(t, "slow", toolErr.Tool)
}

func TestBridgeToolContextCancel(t *testing.T) {
	release := make(chan struct{})
	b, err := New("slow", "", func(request []byte) ([]byte, error) {
		<-release
		return []byte(`{}`), nil
	})
	require.NoError(t, err)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	_, err = b.Call(ctx, []byte(`{}`))
	assert.ErrorIs(t, err, context.Canceled)

	// The abandoned worker still finishes and releases the runtime lock, so
	// a fresh call must go through.
	close(release)
	result, err := b.Call(context.Background(), []byte(`{}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(result.(json.RawMessage)))
}

func TestBridgeToolHandlerError(t *testing.T) {
	cause := errors.New("runtime panic: segfault")
	b, err := New("broken", "", func(request []byte) ([]byte, error) {
		return nil, cause
	})
	require.NoError(t, err)
	defer b.Close()

	_, err = b.Call(context.Background(), []byte(`{}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
}

func TestBridgeToolNilHandler(t *testing.T) {
	_, err := New("nil", "", nil)
	require.Error(t, err)
}

func TestBridgeToolDeclaration(t *testing.T) {
	in := &tool.Schema{
		Type: "object",
		Properties: map[string]*tool.Schema{
			"text": {Type: "string"},
		},
		Required: []string{"text"},
	}
	b, err := New("upper", "uppercases text", func(request []byte) ([]byte, error) {
		return request, nil
	}, WithInputSchema(in))
	require.NoError(t, err)
	defer b.Close()

	decl := b.Declaration()
	assert.Equal(t, "upper", decl.Name)
	assert.Equal(t, "uppercases text", decl.Description)
	assert.Same(t, in, decl.InputSchema)
}
