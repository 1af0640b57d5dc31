package bus

import (
	"fmt"
	"strings"
)

// MaxTopicDepth bounds the number of '/'-separated segments in a topic
// or pattern.
const MaxTopicDepth = 16

// Wildcard matches exactly one topic segment in a pattern.
const Wildcard = "+"

// Topic is an immutable '/'-separated path. Construct with NewTopic so
// the invariants (non-empty, no empty segments, no trailing slash,
// allowed characters only) hold everywhere a Topic is passed.
type Topic string

func (t Topic) String() string { return string(t) }

// Segments splits the topic into its path segments.
func (t Topic) Segments() []string {
	s := strings.TrimPrefix(string(t), "/")
	return strings.Split(s, "/")
}

// NewTopic validates s as a concrete topic. Wildcards are rejected;
// use NewPattern for subscriptions.
func NewTopic(s string) (Topic, error) {
	if err := validate(s, false); err != nil {
		return "", err
	}
	return Topic(s), nil
}

// Pattern is a subscription pattern: a topic path where '+' matches
// any single segment. Segment counts must match for a pattern to match
// a topic; there is no multi-level wildcard.
type Pattern string

func (p Pattern) String() string { return string(p) }

// Segments splits the pattern into its path segments.
func (p Pattern) Segments() []string {
	s := strings.TrimPrefix(string(p), "/")
	return strings.Split(s, "/")
}

// NewPattern validates s as a subscription pattern.
func NewPattern(s string) (Pattern, error) {
	if err := validate(s, true); err != nil {
		return "", err
	}
	return Pattern(s), nil
}

// Matches reports whether the pattern matches the topic: equal segment
// counts, every literal segment equal, '+' matching any one segment.
func (p Pattern) Matches(t Topic) bool {
	ps := p.Segments()
	ts := t.Segments()
	if len(ps) != len(ts) {
		return false
	}
	for i, seg := range ps {
		if seg != Wildcard && seg != ts[i] {
			return false
		}
	}
	return true
}

func validate(s string, allowWildcard bool) error {
	if s == "" {
		return fmt.Errorf("%w: empty", ErrTopicInvalid)
	}
	trimmed := strings.TrimPrefix(s, "/")
	if trimmed == "" || strings.HasSuffix(trimmed, "/") {
		return fmt.Errorf("%w: %q has an empty segment", ErrTopicInvalid, s)
	}
	segments := strings.Split(trimmed, "/")
	if len(segments) > MaxTopicDepth {
		return fmt.Errorf("%w: %q exceeds max depth %d", ErrTopicInvalid, s, MaxTopicDepth)
	}
	for _, seg := range segments {
		if seg == "" {
			return fmt.Errorf("%w: %q has an empty segment", ErrTopicInvalid, s)
		}
		if seg == Wildcard {
			if !allowWildcard {
				return fmt.Errorf("%w: wildcard not allowed in topic %q", ErrTopicInvalid, s)
			}
			continue
		}
		for i := 0; i < len(seg); i++ {
			if !isSegmentChar(seg[i]) {
				return fmt.Errorf("%w: %q contains disallowed character %q", ErrTopicInvalid, s, seg[i])
			}
		}
	}
	return nil
}

func isSegmentChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '_', c == '.', c == '-':
		return true
	default:
		return false
	}
}
