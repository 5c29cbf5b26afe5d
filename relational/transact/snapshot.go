package transact

// RelationSnapshot is an immutable copy of one relation's mutation
// log.
type RelationSnapshot struct {
	log []Change
}

// Equal reports whether two snapshots hold logs of the same length
// with entry-wise equal effect. Snapshots taken immediately after
// RestoreSnapshot(s) always equal s.
func (s RelationSnapshot) Equal(other RelationSnapshot) bool {
	if len(s.log) != len(other.log) {
		return false
	}
	for i := range s.log {
		if !changesEquivalent(s.log[i], other.log[i]) {
			return false
		}
	}
	return true
}

// Len returns the number of log entries in the snapshot.
func (s RelationSnapshot) Len() int { return len(s.log) }

func changesEquivalent(a, b Change) bool {
	switch ac := a.(type) {
	case UnionChange:
		bc, ok := b.(UnionChange)
		if !ok || len(ac.Rows) != len(bc.Rows) {
			return false
		}
		for i := range ac.Rows {
			if !ac.Rows[i].Equal(bc.Rows[i]) {
				return false
			}
		}
		return true
	case SelectChange:
		bc, ok := b.(SelectChange)
		return ok && ac.Keeping.String() == bc.Keeping.String()
	case UpdateChange:
		bc, ok := b.(UpdateChange)
		return ok && ac.Expr.String() == bc.Expr.String() && ac.NewValues.Equal(bc.NewValues)
	}
	return false
}

// DatabaseSnapshot captures the log of each member relation of a
// transactional database at a point in time, keyed by relation
// identity. Snapshots are immutable in-memory values, not a wire
// format.
type DatabaseSnapshot struct {
	relations map[uint64]RelationSnapshot
}

// Relation returns the snapshot of one member relation.
func (s DatabaseSnapshot) Relation(id uint64) (RelationSnapshot, bool) {
	snap, ok := s.relations[id]
	return snap, ok
}

// Equal reports whether two database snapshots cover the same
// relations with equal logs.
func (s DatabaseSnapshot) Equal(other DatabaseSnapshot) bool {
	if len(s.relations) != len(other.relations) {
		return false
	}
	for id, snap := range s.relations {
		o, ok := other.relations[id]
		if !ok || !snap.Equal(o) {
			return false
		}
	}
	return true
}
