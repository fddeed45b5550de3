// Copyright (c) 2025 Resonance Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"sync"
	"testing"

	"github.com/resonancehq/resonance/internal/session"
)

func TestCoalescerTakeReturnsNewestOnly(t *testing.T) {
	sc := NewStreamCoalescer()

	sc.Set("Stay")
	sc.Set("Stay hungry")
	sc.Set("Stay hungry, stay foolish")

	content, ok := sc.Take()
	if !ok {
		t.Fatal("expected content")
	}
	if content != "Stay hungry, stay foolish" {
		t.Errorf("content = %q, want newest snapshot", content)
	}

	if _, ok := sc.Take(); ok {
		t.Error("second Take without new content must report clean")
	}
}

func TestCoalescerReset(t *testing.T) {
	sc := NewStreamCoalescer()
	sc.Set("partial")
	sc.Reset()
	if _, ok := sc.Take(); ok {
		t.Error("Take after Reset must report clean")
	}
}

func TestCoalescerConcurrentWriters(t *testing.T) {
	sc := NewStreamCoalescer()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				sc.Set("content")
			}
		}()
	}
	wg.Wait()

	content, ok := sc.Take()
	if !ok || content != "content" {
		t.Errorf("Take = (%q, %v)", content, ok)
	}
}

func TestBridgeRoutesStreamUpdatesToCoalescer(t *testing.T) {
	b := NewBridge()

	b.Notify(session.StreamUpdate{MessageID: "m1", Content: "hello"})

	select {
	case ev := <-b.events:
		t.Fatalf("stream update leaked onto the event channel: %#v", ev)
	default:
	}

	content, ok := b.coalescer.Take()
	if !ok || content != "hello" {
		t.Errorf("coalescer = (%q, %v)", content, ok)
	}
}

func TestBridgeDeliversLifecycleEvents(t *testing.T) {
	b := NewBridge()
	b.Notify(session.TurnAborted{})

	select {
	case ev := <-b.events:
		if _, ok := ev.(session.TurnAborted); !ok {
			t.Errorf("event = %#v", ev)
		}
	default:
		t.Fatal("lifecycle event not queued")
	}
}

func TestBridgeDoesNotBlockWhenQueueFull(t *testing.T) {
	b := NewBridge()
	// Fill the queue and one more; Notify must return rather than block.
	for i := 0; i < cap(b.events)+10; i++ {
		b.Notify(session.TurnCompleted{MessageID: "m", Content: "c"})
	}
}
