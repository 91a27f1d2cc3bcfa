package adapter

import (
	"fmt"
	"regexp"
	"time"
)

// Savepoint is one entry of a transaction's savepoint stack. StackName is
// the identifier actually issued to the engine; it appends the creation
// timestamp so reusing a user-facing name never collides at the engine
// level.
type Savepoint struct {
	UserName  string
	StackName string
	CreatedAt time.Time
}

var savepointNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SavepointStack is the ordered set of savepoints of one open transaction.
// It is not safe for concurrent use; a transaction context serializes all
// work onto one connection, so no locking is needed.
type SavepointStack struct {
	entries []Savepoint
}

// Push creates a new savepoint entry for the user-supplied name and returns
// it. The engine-facing StackName is userName + "_" + creation nanos.
func (s *SavepointStack) Push(userName string) (Savepoint, error) {
	if !savepointNamePattern.MatchString(userName) {
		return Savepoint{}, NewError(CodeTransactionFailed, "create-savepoint", "",
			fmt.Errorf("invalid savepoint name %q", userName))
	}
	now := time.Now()
	sp := Savepoint{
		UserName:  userName,
		StackName: fmt.Sprintf("%s_%d", userName, now.UnixNano()),
		CreatedAt: now,
	}
	s.entries = append(s.entries, sp)
	return sp, nil
}

// Resolve finds the savepoint a user-facing name refers to. Names may be
// reused, so resolution picks the most recently created matching entry (the
// last match in creation order).
func (s *SavepointStack) Resolve(userName string) (Savepoint, int, bool) {
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].UserName == userName {
			return s.entries[i], i, true
		}
	}
	return Savepoint{}, -1, false
}

// TruncateThrough drops the entry at index and everything created after it.
// Used by rollback-to-savepoint, which invalidates all later savepoints.
func (s *SavepointStack) TruncateThrough(index int) {
	if index < 0 || index >= len(s.entries) {
		return
	}
	s.entries = s.entries[:index]
}

// RemoveAt drops exactly one entry. Used by release-savepoint, which leaves
// later savepoints intact.
func (s *SavepointStack) RemoveAt(index int) {
	if index < 0 || index >= len(s.entries) {
		return
	}
	s.entries = append(s.entries[:index], s.entries[index+1:]...)
}

// Clone returns an independent copy. A nested transaction context inherits a
// copy of its parent's stack so the child's savepoint bookkeeping cannot
// corrupt the parent's.
func (s *SavepointStack) Clone() *SavepointStack {
	return &SavepointStack{entries: append([]Savepoint(nil), s.entries...)}
}

// Len reports the number of live savepoints.
func (s *SavepointStack) Len() int {
	return len(s.entries)
}
