// Copyright (c) 2025 Resonance Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import "github.com/resonancehq/resonance/internal/model"

// =============================================================================
// CONVERSATION CACHE
// =============================================================================

// DefaultCacheSize caps how many conversations stay resident. Re-selecting
// one of the last N conversations costs no fetch; older ones are evicted
// least-recently-used so memory stays bounded over a long session.
const DefaultCacheSize = 16

// cacheEntry is one resident conversation snapshot.
type cacheEntry struct {
	language string
	messages []*model.Message
}

// conversationCache is a small LRU of conversation id -> message snapshot.
// It is not safe for concurrent use; the Session's lock guards it.
type conversationCache struct {
	entries     map[string]*cacheEntry
	accessOrder []string
	maxEntries  int
}

func newConversationCache(maxEntries int) *conversationCache {
	if maxEntries <= 0 {
		maxEntries = DefaultCacheSize
	}
	return &conversationCache{
		entries:     make(map[string]*cacheEntry),
		accessOrder: make([]string, 0, maxEntries),
		maxEntries:  maxEntries,
	}
}

// get returns a cloned snapshot so the caller can mutate freely.
func (c *conversationCache) get(id string) (string, []*model.Message, bool) {
	entry, ok := c.entries[id]
	if !ok {
		return "", nil, false
	}
	c.touch(id)
	return entry.language, cloneMessages(entry.messages), true
}

// put stores a cloned snapshot, evicting the least recently used entry when
// over capacity.
func (c *conversationCache) put(id, language string, messages []*model.Message) {
	if id == "" {
		return
	}
	if _, ok := c.entries[id]; !ok {
		for len(c.entries) >= c.maxEntries && len(c.accessOrder) > 0 {
			oldest := c.accessOrder[0]
			c.remove(oldest)
		}
	}
	c.entries[id] = &cacheEntry{language: language, messages: cloneMessages(messages)}
	c.touch(id)
}

// remove drops an entry.
func (c *conversationCache) remove(id string) {
	if _, ok := c.entries[id]; !ok {
		return
	}
	delete(c.entries, id)
	for i, v := range c.accessOrder {
		if v == id {
			c.accessOrder = append(c.accessOrder[:i], c.accessOrder[i+1:]...)
			break
		}
	}
}

// len returns the number of resident conversations.
func (c *conversationCache) len() int {
	return len(c.entries)
}

// touch moves id to the most-recently-used end.
func (c *conversationCache) touch(id string) {
	for i, v := range c.accessOrder {
		if v == id {
			c.accessOrder = append(c.accessOrder[:i], c.accessOrder[i+1:]...)
			break
		}
	}
	c.accessOrder = append(c.accessOrder, id)
}

func cloneMessages(in []*model.Message) []*model.Message {
	out := make([]*model.Message, len(in))
	for i, m := range in {
		out[i] = m.Clone()
	}
	return out
}
