package bus

import (
	"sync"
)

// registry maps subscription patterns to delivery channels through a
// trie keyed by path segment. Literal segments live in children;
// wildcard branches hang off the plus pointer, so a lookup walks at
// most two branches per level. Equal segment counts are enforced by
// trie depth: entries only exist where a pattern ends.
//
// The RWMutex guards structure only. Match returns a snapshot of
// channel handles and the lock is released before any channel I/O.
type registry struct {
	mu   sync.RWMutex
	root *trieNode
}

type trieNode struct {
	children map[string]*trieNode
	plus     *trieNode
	entries  map[string]*ring // subscriber ID -> channel
}

func newRegistry() *registry {
	return &registry{root: newTrieNode()}
}

func newTrieNode() *trieNode {
	return &trieNode{children: make(map[string]*trieNode)}
}

func (r *registry) register(p Pattern, id string, ch *ring) {
	r.mu.Lock()
	defer r.mu.Unlock()

	node := r.root
	for _, seg := range p.Segments() {
		if seg == Wildcard {
			if node.plus == nil {
				node.plus = newTrieNode()
			}
			node = node.plus
			continue
		}
		child, ok := node.children[seg]
		if !ok {
			child = newTrieNode()
			node.children[seg] = child
		}
		node = child
	}
	if node.entries == nil {
		node.entries = make(map[string]*ring)
	}
	node.entries[id] = ch
}

// unregister removes the entry and prunes any branch it leaves empty,
// so subscriber churn across many distinct patterns does not grow the
// trie monotonically.
func (r *registry) unregister(p Pattern, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prune(r.root, p.Segments(), id)
}

// prune walks to the pattern's node, deletes the entry, and reports
// whether node itself is now empty and removable from its parent. The
// root is never removed.
func prune(node *trieNode, segments []string, id string) bool {
	if node == nil {
		return false
	}
	switch {
	case len(segments) == 0:
		delete(node.entries, id)
	case segments[0] == Wildcard:
		if prune(node.plus, segments[1:], id) {
			node.plus = nil
		}
	default:
		if prune(node.children[segments[0]], segments[1:], id) {
			delete(node.children, segments[0])
		}
	}
	return len(node.entries) == 0 && len(node.children) == 0 && node.plus == nil
}

// match returns the channels of every subscription whose pattern
// matches the topic. The result is a private snapshot.
func (r *registry) match(t Topic) []*ring {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*ring
	collect(r.root, t.Segments(), &out)
	return out
}

func collect(node *trieNode, segments []string, out *[]*ring) {
	if node == nil {
		return
	}
	if len(segments) == 0 {
		for _, ch := range node.entries {
			*out = append(*out, ch)
		}
		return
	}
	collect(node.children[segments[0]], segments[1:], out)
	collect(node.plus, segments[1:], out)
}
