// Copyright (c) 2025 Resonance Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "testing"

// =============================================================================
// MESSAGE TESTS
// =============================================================================

func TestNewMessageHasUniqueID(t *testing.T) {
	a := NewUserMessage("hello")
	b := NewUserMessage("hello")

	if a.ID == "" || b.ID == "" {
		t.Fatal("expected generated message IDs")
	}
	if a.ID == b.ID {
		t.Error("two messages share an ID")
	}
}

func TestAssistantPlaceholder(t *testing.T) {
	m := NewAssistantPlaceholder()

	if m.Role != RoleAssistant {
		t.Errorf("role = %q, want assistant", m.Role)
	}
	if m.Content != "" {
		t.Errorf("placeholder content = %q, want empty", m.Content)
	}
	if !m.IsStreaming {
		t.Error("placeholder should be streaming")
	}
}

func TestSetStreamContentOnlyWhileStreaming(t *testing.T) {
	m := NewAssistantPlaceholder()

	m.SetStreamContent("Hi")
	m.SetStreamContent("Hi there")
	if m.Content != "Hi there" {
		t.Errorf("content = %q, want %q", m.Content, "Hi there")
	}

	m.Finalize("Hi there!")
	if m.IsStreaming {
		t.Error("finalized message still streaming")
	}

	// Stale updates after finalization must be ignored.
	m.SetStreamContent("Hi there! And more")
	if m.Content != "Hi there!" {
		t.Errorf("content mutated after finalize: %q", m.Content)
	}
}

func TestGreetingIsSeeded(t *testing.T) {
	g := NewGreeting("welcome")
	if !g.Seeded {
		t.Error("greeting not marked seeded")
	}
	if g.Role != RoleAssistant {
		t.Errorf("greeting role = %q, want assistant", g.Role)
	}
}

func TestRoleValid(t *testing.T) {
	for _, r := range []Role{RoleUser, RoleAssistant, RoleSystem} {
		if !r.Valid() {
			t.Errorf("role %q should be valid", r)
		}
	}
	if Role("tool").Valid() {
		t.Error("unknown role reported valid")
	}
}

// =============================================================================
// CONVERSATION TESTS
// =============================================================================

func TestDeriveTitle(t *testing.T) {
	c := &Conversation{}
	if c.DeriveTitle() != "" {
		t.Error("empty conversation should have no derived title")
	}

	c.Messages = append(c.Messages, NewGreeting("hello there"))
	c.Messages = append(c.Messages, NewUserMessage("How do I focus?\nReally."))
	if got := c.DeriveTitle(); got != "How do I focus? Really." {
		t.Errorf("derived title = %q", got)
	}

	c.Title = "Focus"
	if got := c.DeriveTitle(); got != "Focus" {
		t.Errorf("explicit title not honored: %q", got)
	}
}

func TestMetaPreviewUsesFirstUserMessage(t *testing.T) {
	c := &Conversation{ID: "c1", Language: "en"}
	c.Messages = append(c.Messages, NewGreeting("greeting"))
	c.Messages = append(c.Messages, NewUserMessage("the question"))
	c.Messages = append(c.Messages, NewMessage(RoleAssistant, "the answer"))

	meta := c.Meta()
	if meta.Preview != "the question" {
		t.Errorf("preview = %q", meta.Preview)
	}
	if meta.MessageCount != 3 {
		t.Errorf("message count = %d", meta.MessageCount)
	}
}
