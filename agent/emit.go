//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

package agent

import (
	"context"

	"trpc.group/trpc-go/trpc-adk-go/event"
)

// EmitEvent sends an event to the channel, giving up when the context is
// cancelled. A nil channel or event is a no-op.
func EmitEvent(ctx context.Context, ch chan<- *event.Event, evt *event.Event) error {
	if ch == nil || evt == nil {
		return nil
	}
	select {
	case ch <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CheckContextCancelled reports the context error, if any.
func CheckContextCancelled(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
