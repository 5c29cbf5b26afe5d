package relational

// ConcreteRelation owns an in-memory set of rows with a scheme. It is
// the baseline Relation implementation; deltas and materializations
// are delivered as concrete relations.
type ConcreteRelation struct {
	id        uint64
	scheme    Scheme
	rows      map[string]Row
	order     []string
	observers ObserverRegistry
}

// NewConcreteRelation creates an empty concrete relation.
func NewConcreteRelation(scheme Scheme) *ConcreteRelation {
	return &ConcreteRelation{
		id:     NextRelationID(),
		scheme: scheme.Clone(),
		rows:   make(map[string]Row),
	}
}

// ConcreteFromRows creates a concrete relation holding the given rows.
// Rows whose attributes differ from the scheme are rejected.
func ConcreteFromRows(scheme Scheme, rows []Row) (*ConcreteRelation, error) {
	rel := NewConcreteRelation(scheme)
	for _, row := range rows {
		if err := rel.Add(row); err != nil {
			return nil, err
		}
	}
	return rel, nil
}

// concreteFromRowsUnchecked builds a delta relation from rows that are
// already known to satisfy the scheme.
func concreteFromRowsUnchecked(scheme Scheme, rows []Row) *ConcreteRelation {
	rel := NewConcreteRelation(scheme)
	for _, row := range rows {
		key := row.Key()
		if _, ok := rel.rows[key]; !ok {
			rel.rows[key] = row
			rel.order = append(rel.order, key)
		}
	}
	return rel
}

func (r *ConcreteRelation) RelationID() uint64 { return r.id }
func (r *ConcreteRelation) Scheme() Scheme     { return r.scheme }

func (r *ConcreteRelation) Rows() RowIterator {
	rows := make([]Row, 0, len(r.order))
	for _, key := range r.order {
		rows = append(rows, r.rows[key])
	}
	return NewSliceIterator(rows)
}

// Count returns the number of rows.
func (r *ConcreteRelation) Count() int { return len(r.rows) }

// ContainsRow reports membership without iterating.
func (r *ConcreteRelation) ContainsRow(row Row) bool {
	_, ok := r.rows[row.Key()]
	return ok
}

// Add inserts a row. Adding a duplicate is a no-op and produces no
// notification.
func (r *ConcreteRelation) Add(row Row) error {
	if !row.Satisfies(r.scheme) {
		return SchemeViolationf("row %s does not satisfy scheme %s", row, r.scheme)
	}
	for _, v := range row {
		if !IsStorable(v) {
			return SchemeViolationf("row %s carries a non-storable value", row)
		}
	}

	key := row.Key()
	if _, ok := r.rows[key]; ok {
		return nil
	}
	added := row.Clone()
	r.rows[key] = added
	r.order = append(r.order, key)

	r.observers.Notify(RelationChange{
		Added: concreteFromRowsUnchecked(r.scheme, []Row{added}),
	})
	return nil
}

// Delete removes the rows matching the predicate.
func (r *ConcreteRelation) Delete(expr SelectExpression) error {
	var removed []Row
	kept := r.order[:0]
	for _, key := range r.order {
		row := r.rows[key]
		if Truthy(expr.Evaluate(row)) {
			removed = append(removed, row)
			delete(r.rows, key)
		} else {
			kept = append(kept, key)
		}
	}
	r.order = kept

	if len(removed) > 0 {
		r.observers.Notify(RelationChange{
			Removed: concreteFromRowsUnchecked(r.scheme, removed),
		})
	}
	return nil
}

// Update overwrites the given attributes on rows matching the
// predicate.
func (r *ConcreteRelation) Update(expr SelectExpression, newValues Row) error {
	if !newValues.Scheme().SubsetOf(r.scheme) {
		return SchemeViolationf("update values %s outside scheme %s", newValues, r.scheme)
	}

	var before, after []Row
	for _, key := range r.order {
		row := r.rows[key]
		if !Truthy(expr.Evaluate(row)) {
			continue
		}
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

	for i, old := range before {
		key := old.Key()
		delete(r.rows, key)
		for j, k := range r.order {
			if k == key {
				r.order = append(r.order[:j], r.order[j+1:]...)
				break
			}
		}
		newKey := after[i].Key()
		if _, ok := r.rows[newKey]; !ok {
			r.rows[newKey] = after[i]
			r.order = append(r.order, newKey)
		}
	}

	r.observers.Notify(RelationChange{
		Added:   concreteFromRowsUnchecked(r.scheme, after),
		Removed: concreteFromRowsUnchecked(r.scheme, before),
	})
	return nil
}

// AddChangeObserver registers a synchronous delta callback.
func (r *ConcreteRelation) AddChangeObserver(observer ChangeObserver) RemoveObserver {
	return r.observers.Add(observer)
}

// Clone returns an independent copy with the same rows and no
// observers.
func (r *ConcreteRelation) Clone() *ConcreteRelation {
	result := NewConcreteRelation(r.scheme)
	for _, key := range r.order {
		result.rows[key] = r.rows[key]
		result.order = append(result.order, key)
	}
	return result
}

func (r *ConcreteRelation) String() string { return relationString(r) }

// Table returns a formatted markdown table representation.
func (r *ConcreteRelation) Table() string { return FormatRelationTable(r) }
