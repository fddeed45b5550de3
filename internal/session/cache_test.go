// Copyright (c) 2025 Resonance Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"fmt"
	"testing"

	"github.com/resonancehq/resonance/internal/model"
)

func TestCacheBoundedEviction(t *testing.T) {
	c := newConversationCache(3)

	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("conv-%d", i)
		c.put(id, "en", []*model.Message{model.NewUserMessage(id)})
	}

	if c.len() != 3 {
		t.Fatalf("cache holds %d entries, want 3", c.len())
	}
	if _, _, ok := c.get("conv-0"); ok {
		t.Error("oldest entry survived eviction")
	}
	if _, _, ok := c.get("conv-4"); !ok {
		t.Error("newest entry missing")
	}
}

func TestCacheGetRefreshesRecency(t *testing.T) {
	c := newConversationCache(2)
	c.put("a", "en", nil)
	c.put("b", "en", nil)

	// Touch a so b becomes the eviction candidate.
	if _, _, ok := c.get("a"); !ok {
		t.Fatal("a missing")
	}
	c.put("c", "en", nil)

	if _, _, ok := c.get("b"); ok {
		t.Error("least recently used entry not evicted")
	}
	if _, _, ok := c.get("a"); !ok {
		t.Error("recently used entry evicted")
	}
}

func TestCacheReturnsClones(t *testing.T) {
	c := newConversationCache(2)
	orig := model.NewUserMessage("immutable")
	c.put("a", "en", []*model.Message{orig})

	_, msgs, ok := c.get("a")
	if !ok {
		t.Fatal("a missing")
	}
	msgs[0].Content = "mutated"

	_, again, _ := c.get("a")
	if again[0].Content != "immutable" {
		t.Error("cache snapshot aliased caller memory")
	}
	if orig.Content != "immutable" {
		t.Error("cache put aliased caller memory")
	}
}
