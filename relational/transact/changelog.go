package transact

import (
	"github.com/wbrown/janus-relational/relational"
)

// ChangeLoggingRelation wraps an underlying mutable relation with a
// mutation log. Reads see the logical state (underlying plus log);
// the underlying content only changes on Save. The materialization is
// cached and updated incrementally on every log append.
type ChangeLoggingRelation struct {
	id         uint64
	name       string
	underlying relational.MutableRelation
	log        []Change

	cache *relational.ConcreteRelation

	observers relational.ObserverRegistry
	db        *Database

	// Notifications buffered while the owning database is inside a
	// transaction, merged into one delta per relation.
	pendingAdded   map[string]relational.Row
	pendingRemoved map[string]relational.Row
}

// NewChangeLoggingRelation wraps an underlying relation. Relations
// that participate in transactions are created through
// Database.AddRelation instead.
func NewChangeLoggingRelation(underlying relational.MutableRelation) *ChangeLoggingRelation {
	return &ChangeLoggingRelation{
		id:         relational.NextRelationID(),
		underlying: underlying,
	}
}

func (r *ChangeLoggingRelation) RelationID() uint64        { return r.id }
func (r *ChangeLoggingRelation) Scheme() relational.Scheme { return r.underlying.Scheme() }

// Name returns the name under which the owning database registered
// this relation, or "".
func (r *ChangeLoggingRelation) Name() string { return r.name }

// Underlying returns the wrapped relation.
func (r *ChangeLoggingRelation) Underlying() relational.MutableRelation { return r.underlying }

// Database returns the owning transactional database, or nil.
func (r *ChangeLoggingRelation) Database() *Database { return r.db }

// Log returns the current mutation log. Callers must not modify it.
func (r *ChangeLoggingRelation) Log() []Change { return r.log }

func (r *ChangeLoggingRelation) Rows() relational.RowIterator {
	mat, err := r.Materialize()
	if err != nil {
		return relational.NewErrorIterator(err)
	}
	return mat.Rows()
}

// Materialize applies the log to the underlying relation, returning
// the current logical content. The result is cached until the log
// changes.
func (r *ChangeLoggingRelation) Materialize() (*relational.ConcreteRelation, error) {
	if r.cache != nil {
		return r.cache, nil
	}
	mat, err := Materialize(r.underlying, r.log)
	if err != nil {
		return nil, err
	}
	r.cache = mat
	return mat, nil
}

// Add appends a union of the single row to the log and notifies
// observers with added={row}. Adding a row already logically present
// is a no-op.
func (r *ChangeLoggingRelation) Add(row relational.Row) error {
	if !row.Satisfies(r.Scheme()) {
		return relational.SchemeViolationf("row %s does not satisfy scheme %s", row, r.Scheme())
	}
	mat, err := r.Materialize()
	if err != nil {
		return err
	}
	if mat.ContainsRow(row) {
		return nil
	}

	stored := row.Clone()
	r.log = append(r.log, UnionChange{Rows: []relational.Row{stored}})
	r.cache = nil
	if err := r.refreshCacheFrom(mat, UnionChange{Rows: []relational.Row{stored}}); err != nil {
		return err
	}

	added, err := relational.ConcreteFromRows(r.Scheme(), []relational.Row{stored})
	if err != nil {
		return err
	}
	r.notify(relational.RelationChange{Added: added})
	return nil
}

// Delete computes the rows currently matching expr, appends
// Select(not expr) to the log, and notifies with the removed set.
func (r *ChangeLoggingRelation) Delete(expr relational.SelectExpression) error {
	mat, err := r.Materialize()
	if err != nil {
		return err
	}
	removed, err := matchingRows(mat, expr)
	if err != nil {
		return err
	}
	if len(removed) == 0 {
		return nil
	}

	change := SelectChange{Keeping: relational.Not(expr)}
	r.log = append(r.log, change)
	r.cache = nil
	if err := r.refreshCacheFrom(mat, change); err != nil {
		return err
	}

	removedRel, err := relational.ConcreteFromRows(r.Scheme(), removed)
	if err != nil {
		return err
	}
	r.notify(relational.RelationChange{Removed: removedRel})
	return nil
}

// Update computes the before and after views of the rows matching
// expr, appends the update to the log, and notifies with
// added=updatedAfter, removed=updatedBefore.
func (r *ChangeLoggingRelation) Update(expr relational.SelectExpression, newValues relational.Row) error {
	if !newValues.Scheme().SubsetOf(r.Scheme()) {
		return relational.SchemeViolationf("update values %s outside scheme %s", newValues, r.Scheme())
	}
	mat, err := r.Materialize()
	if err != nil {
		return err
	}
	matched, err := matchingRows(mat, expr)
	if err != nil {
		return err
	}
	var before, after []relational.Row
	for _, row := range matched {
		updated := row.Overwriting(newValues)
		if updated.Equal(row) {
			continue
		}
		before = append(before, row)
		after = append(after, updated)
	}
	if len(before) == 0 {
		return nil
	}

	change := UpdateChange{Expr: expr, NewValues: newValues.Clone()}
	r.log = append(r.log, change)
	r.cache = nil
	if err := r.refreshCacheFrom(mat, change); err != nil {
		return err
	}

	addedRel, err := relational.ConcreteFromRows(r.Scheme(), after)
	if err != nil {
		return err
	}
	removedRel, err := relational.ConcreteFromRows(r.Scheme(), before)
	if err != nil {
		return err
	}
	r.notify(relational.RelationChange{Added: addedRel, Removed: removedRel})
	return nil
}

// refreshCacheFrom advances the cached materialization by one change
// instead of replaying the whole log.
func (r *ChangeLoggingRelation) refreshCacheFrom(previous *relational.ConcreteRelation, change Change) error {
	rows, err := relational.RowSet(previous)
	if err != nil {
		return err
	}
	change.apply(rows)
	flat := make([]relational.Row, 0, len(rows))
	for _, row := range rows {
		flat = append(flat, row)
	}
	mat, err := relational.ConcreteFromRows(r.Scheme(), flat)
	if err != nil {
		return err
	}
	r.cache = mat
	return nil
}

// TakeSnapshot returns an immutable copy of the log.
func (r *ChangeLoggingRelation) TakeSnapshot() RelationSnapshot {
	log := make([]Change, len(r.log))
	for i, change := range r.log {
		log[i] = change.clone()
	}
	return RelationSnapshot{log: log}
}

// RestoreSnapshot replaces the log and notifies observers with the
// delta between the old and new logical contents.
func (r *ChangeLoggingRelation) RestoreSnapshot(s RelationSnapshot) error {
	oldMat, err := r.Materialize()
	if err != nil {
		return err
	}

	r.log = make([]Change, len(s.log))
	for i, change := range s.log {
		r.log[i] = change.clone()
	}
	r.cache = nil
	newMat, err := r.Materialize()
	if err != nil {
		return err
	}

	added, removed, err := diffRelations(oldMat, newMat)
	if err != nil {
		return err
	}
	if len(added) == 0 && len(removed) == 0 {
		return nil
	}
	addedRel, err := relational.ConcreteFromRows(r.Scheme(), added)
	if err != nil {
		return err
	}
	removedRel, err := relational.ConcreteFromRows(r.Scheme(), removed)
	if err != nil {
		return err
	}
	r.notify(relational.RelationChange{Added: addedRel, Removed: removedRel})
	return nil
}

// Save diffs the logical state against the underlying relation and
// issues minimal adds and deletes against it; on success the log is
// truncated. A persistence error surfaces without mutating the log.
func (r *ChangeLoggingRelation) Save() error {
	added, removed, err := ComputeChange(r.underlying, r.log)
	if err != nil {
		return err
	}
	for _, row := range removed {
		if err := r.underlying.Delete(relational.RowEquality(row)); err != nil {
			return err
		}
	}
	for _, row := range added {
		if err := r.underlying.Add(row); err != nil {
			return err
		}
	}
	r.log = nil
	r.cache = nil
	return nil
}

// AddChangeObserver registers a synchronous delta callback.
func (r *ChangeLoggingRelation) AddChangeObserver(observer relational.ChangeObserver) relational.RemoveObserver {
	return r.observers.Add(observer)
}

// notify delivers a change immediately, or buffers it while the
// owning database is inside a transaction.
func (r *ChangeLoggingRelation) notify(change relational.RelationChange) {
	if r.db != nil && r.db.inTransaction() {
		r.bufferChange(change)
		return
	}
	r.observers.Notify(change)
}

func (r *ChangeLoggingRelation) bufferChange(change relational.RelationChange) {
	if r.pendingAdded == nil {
		r.pendingAdded = make(map[string]relational.Row)
		r.pendingRemoved = make(map[string]relational.Row)
	}
	added, _ := change.AddedRows()
	removed, _ := change.RemovedRows()

	// A row removed then re-added (or vice versa) cancels out so the
	// flushed delta matches the transaction's net effect.
	for _, row := range added {
		key := row.Key()
		if _, ok := r.pendingRemoved[key]; ok {
			delete(r.pendingRemoved, key)
		} else {
			r.pendingAdded[key] = row
		}
	}
	for _, row := range removed {
		key := row.Key()
		if _, ok := r.pendingAdded[key]; ok {
			delete(r.pendingAdded, key)
		} else {
			r.pendingRemoved[key] = row
		}
	}
}

// flushPending delivers the buffered transaction delta, if any.
func (r *ChangeLoggingRelation) flushPending() {
	if len(r.pendingAdded) == 0 && len(r.pendingRemoved) == 0 {
		r.pendingAdded, r.pendingRemoved = nil, nil
		return
	}
	var added, removed []relational.Row
	for _, row := range r.pendingAdded {
		added = append(added, row)
	}
	for _, row := range r.pendingRemoved {
		removed = append(removed, row)
	}
	r.pendingAdded, r.pendingRemoved = nil, nil

	change := relational.RelationChange{}
	if len(added) > 0 {
		if rel, err := relational.ConcreteFromRows(r.Scheme(), added); err == nil {
			change.Added = rel
		}
	}
	if len(removed) > 0 {
		if rel, err := relational.ConcreteFromRows(r.Scheme(), removed); err == nil {
			change.Removed = rel
		}
	}
	r.observers.Notify(change)
}

func (r *ChangeLoggingRelation) String() string {
	return relational.FormatRelationTable(r)
}

func matchingRows(rel relational.Relation, expr relational.SelectExpression) ([]relational.Row, error) {
	var rows []relational.Row
	it := rel.Rows()
	defer it.Close()
	for it.Next() {
		row, err := it.Row()
		if err != nil {
			return nil, err
		}
		if relational.Truthy(expr.Evaluate(row)) {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func diffRelations(old, new *relational.ConcreteRelation) (added, removed []relational.Row, err error) {
	oldSet, err := relational.RowSet(old)
	if err != nil {
		return nil, nil, err
	}
	newSet, err := relational.RowSet(new)
	if err != nil {
		return nil, nil, err
	}
	for key, row := range newSet {
		if _, ok := oldSet[key]; !ok {
			added = append(added, row)
		}
	}
	for key, row := range oldSet {
		if _, ok := newSet[key]; !ok {
			removed = append(removed, row)
		}
	}
	return added, removed, nil
}
