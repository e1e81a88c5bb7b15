package epoll

import (
	"fmt"
	"math/bits"
	"strings"
)

// Condition is a readiness condition a descriptor can be registered for or
// reported in. The set of conditions is closed: only the constants below are
// valid, and their numeric values carry no meaning beyond identity.
type Condition uint8

const (
	// Readable means data is available to read.
	Readable Condition = iota
	// Priority means exceptional (out-of-band) data is available to read.
	Priority
	// Writable means a write will not block.
	Writable
	// ReadNormal means normal data is available to read.
	ReadNormal
	// ReadBand means priority band data is available to read.
	ReadBand
	// WriteNormal means normal data may be written.
	WriteNormal
	// WriteBand means priority band data may be written.
	WriteBand
	// Message is accepted by the kernel but never reported.
	Message
	// Errored means an error condition happened on the descriptor. The kernel
	// always reports it, whether or not it was requested.
	Errored
	// Hangup means the descriptor was hung up. The kernel always reports it,
	// whether or not it was requested.
	Hangup
	// PeerClosed means the peer closed its end of a stream socket, or shut
	// down its writing half.
	PeerClosed
	// OneShot disables the registration after one event is delivered, until
	// it is re-armed with Modify.
	OneShot
	// EdgeTriggered requests edge-triggered rather than level-triggered
	// delivery.
	EdgeTriggered

	numConditions
)

var conditionNames = [numConditions]string{
	Readable:      "readable",
	Priority:      "priority",
	Writable:      "writable",
	ReadNormal:    "read-normal",
	ReadBand:      "read-band",
	WriteNormal:   "write-normal",
	WriteBand:     "write-band",
	Message:       "message",
	Errored:       "error",
	Hangup:        "hangup",
	PeerClosed:    "peer-closed",
	OneShot:       "one-shot",
	EdgeTriggered: "edge-triggered",
}

// allConditions has one bit per known condition.
const allConditions Set = 1<<numConditions - 1

// Valid reports whether c is one of the declared conditions.
func (c Condition) Valid() bool {
	return c < numConditions
}

func (c Condition) String() string {
	if !c.Valid() {
		return fmt.Sprintf("Condition(%d)", uint8(c))
	}
	return conditionNames[c]
}

// member returns the single-element Set for c, panicking if c is not a
// declared condition.
func (c Condition) member() Set {
	if !c.Valid() {
		panic(fmt.Sprintf("epoll: invalid condition %d", uint8(c)))
	}
	return 1 << c
}

// Set is an unordered collection of distinct conditions. The zero value is
// the empty set, which is a valid interest: it keeps the registration but
// stops every requested condition. Errored and Hangup are still reported on
// an empty interest, because the kernel adds them to every registration; only
// Deregister silences a descriptor completely. Sets are values and compare
// with ==.
type Set uint16

// NewSet returns the set holding the given conditions. Repeats are collapsed.
// It panics if any condition is not one of the declared constants.
func NewSet(conds ...Condition) Set {
	var s Set
	for _, c := range conds {
		s |= c.member()
	}
	return s
}

// Add returns s with c included.
func (s Set) Add(c Condition) Set { return s | c.member() }

// Remove returns s with c excluded.
func (s Set) Remove(c Condition) Set { return s &^ c.member() }

// Has reports whether c is in s.
func (s Set) Has(c Condition) bool {
	return c.Valid() && s&(1<<c) != 0
}

// Len returns the number of conditions in s.
func (s Set) Len() int { return bits.OnesCount16(uint16(s)) }

// IsEmpty reports whether s has no conditions.
func (s Set) IsEmpty() bool { return s == 0 }

// Conditions returns the members of s in declaration order.
func (s Set) Conditions() []Condition {
	out := make([]Condition, 0, s.Len())
	for c := Condition(0); c < numConditions; c++ {
		if s.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

// valid reports whether s only holds declared conditions. Sets built through
// NewSet and Add always are; a Set converted from an arbitrary integer may not
// be.
func (s Set) valid() bool {
	return s&^allConditions == 0
}

func (s Set) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, c := range s.Conditions() {
		if i > 0 {
			sb.WriteByte('|')
		}
		sb.WriteString(c.String())
	}
	if extra := s &^ allConditions; extra != 0 {
		if s&allConditions != 0 {
			sb.WriteByte('|')
		}
		fmt.Fprintf(&sb, "0x%x", uint16(extra))
	}
	sb.WriteByte('}')
	return sb.String()
}
