// Package queueset composes several independently addressable queues
// (typically one per priority tier, or one per producer shard) behind
// a single merged iteration order: each member keeps its own on-disk
// state and its own cursor, and the set layer only ever merges their
// pending heads.
package queueset

import "github.com/fishy/dirq"

// Member is the capability set a queue must expose to participate in
// a Set: both *dirq.Normal and *dirq.Simple satisfy it once wrapped
// with WrapNormal/WrapSimple.
type Member interface {
	// ID returns the member's stable queue identity.
	ID() []byte
	// Copy returns an independent iterator handle over the same member.
	Copy() Member
	// First resets the handle's cursor to the first live element.
	First() (string, error)
	// Next advances the handle's cursor to the next live element.
	Next() (string, error)
	// Count returns the member's current element count.
	Count() (int, error)
}

type normalMember struct {
	*dirq.Normal
}

func (m normalMember) Copy() Member {
	return normalMember{m.Normal.Copy()}
}

// WrapNormal adapts a *dirq.Normal queue into a Member.
func WrapNormal(n *dirq.Normal) Member {
	return normalMember{n}
}

type simpleMember struct {
	*dirq.Simple
}

func (m simpleMember) Copy() Member {
	return simpleMember{m.Simple.Copy()}
}

// WrapSimple adapts a *dirq.Simple queue into a Member.
func WrapSimple(s *dirq.Simple) Member {
	return simpleMember{s}
}
