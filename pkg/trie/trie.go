// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package trie implements a rune-keyed prefix tree used to look up display
// names while scanning chat text.
//
// A Trie is not safe for concurrent use; callers that share one across
// goroutines must guard it with their own lock.
package trie

type node[V any] struct {
	children map[rune]*node[V]
	value    V
	hasValue bool
}

func (n *node[V]) empty() bool {
	return !n.hasValue && len(n.children) == 0
}

// Trie maps string keys to values and supports exact and shortest-prefix lookup.
type Trie[V any] struct {
	root *node[V]
	size int
}

// New returns an empty Trie.
func New[V any]() *Trie[V] {
	return &Trie[V]{root: &node[V]{}}
}

// Len returns the number of keys holding a value.
func (t *Trie[V]) Len() int {
	return t.size
}

// Insert stores value at key, overwriting any value already there.
// The empty key stores the value on the root node.
func (t *Trie[V]) Insert(key string, value V) {
	n := t.root
	for _, r := range key {
		if n.children == nil {
			n.children = make(map[rune]*node[V])
		}
		child, ok := n.children[r]
		if !ok {
			child = &node[V]{}
			n.children[r] = child
		}
		n = child
	}
	if !n.hasValue {
		t.size++
	}
	n.value = value
	n.hasValue = true
}

// Remove clears the value stored at key and prunes nodes left without a
// value or children. It reports whether a value was removed.
func (t *Trie[V]) Remove(key string) bool {
	return t.RemoveFunc(key, nil)
}

// RemoveFunc clears the value at key only when match returns true for it.
// A nil match removes unconditionally.
func (t *Trie[V]) RemoveFunc(key string, match func(V) bool) bool {
	runes := []rune(key)
	path := make([]*node[V], 0, len(runes)+1)
	n := t.root
	path = append(path, n)
	for _, r := range runes {
		child, ok := n.children[r]
		if !ok {
			return false
		}
		n = child
		path = append(path, n)
	}
	if !n.hasValue {
		return false
	}
	if match != nil && !match(n.value) {
		return false
	}
	var zero V
	n.value = zero
	n.hasValue = false
	t.size--

	// Walk back toward the root, dropping nodes that became empty.
	for i := len(runes); i > 0; i-- {
		if !path[i].empty() {
			break
		}
		delete(path[i-1].children, runes[i-1])
	}
	return true
}

// Search looks up key. With partial false only an exact key matches. With
// partial true the value at the shortest stored prefix of key is returned,
// so descent stops at the first node carrying a value even if key continues.
func (t *Trie[V]) Search(key string, partial bool) (V, bool) {
	n := t.root
	for _, r := range key {
		if partial && n.hasValue {
			return n.value, true
		}
		child, ok := n.children[r]
		if !ok {
			var zero V
			return zero, false
		}
		n = child
	}
	return n.value, n.hasValue
}
