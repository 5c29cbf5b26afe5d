package relational

// Rows evaluates the algebraic node. Operands are re-evaluated on
// every call; nothing is cached between calls.
func (r *IntermediateRelation) Rows() RowIterator {
	switch r.op {
	case OperationUnion:
		return &unionIterator{left: r.left.Rows(), right: r.right.Rows(), seen: make(map[string]struct{})}
	case OperationIntersection:
		return r.intersectionRows()
	case OperationDifference:
		return r.differenceRows()
	case OperationProject:
		return &projectIterator{inner: r.left.Rows(), scheme: r.scheme, seen: make(map[string]struct{})}
	case OperationSelect:
		return r.selectRows()
	case OperationRename:
		return &mapIterator{inner: r.left.Rows(), mapRow: func(row Row) Row {
			return row.Renaming(r.renames)
		}}
	case OperationEquijoin:
		return r.equijoinRows()
	case OperationAggregate:
		return r.aggregateRows()
	case OperationOtherwise:
		return r.otherwiseRows()
	case OperationUnique:
		return r.uniqueRows()
	case OperationUpdate:
		return &projectLikeIterator{inner: r.left.Rows(), seen: make(map[string]struct{}), mapRow: func(row Row) Row {
			return row.Overwriting(r.updateValues)
		}}
	}
	return NewSliceIterator(nil)
}

func (r *IntermediateRelation) selectRows() RowIterator {
	if Unsatisfiable(r.expr) {
		return NewSliceIterator(nil)
	}
	if native, ok := r.left.(NativeSelectable); ok {
		if pushed, ok := native.SelectNative(r.expr); ok {
			return pushed.Rows()
		}
	}
	return &filterIterator{inner: r.left.Rows(), keep: func(row Row) bool {
		return Truthy(r.expr.Evaluate(row))
	}}
}

func (r *IntermediateRelation) intersectionRows() RowIterator {
	rightSet, err := RowSet(r.right)
	if err != nil {
		return NewErrorIterator(err)
	}
	return &filterIterator{inner: r.left.Rows(), keep: func(row Row) bool {
		_, ok := rightSet[row.Key()]
		return ok
	}}
}

func (r *IntermediateRelation) differenceRows() RowIterator {
	rightSet, err := RowSet(r.right)
	if err != nil {
		return NewErrorIterator(err)
	}
	return &filterIterator{inner: r.left.Rows(), keep: func(row Row) bool {
		_, ok := rightSet[row.Key()]
		return !ok
	}}
}

func (r *IntermediateRelation) equijoinRows() RowIterator {
	// Build the hash side from the right operand, keyed by the
	// matched attribute values.
	index := make(map[string][]Row)
	it := r.right.Rows()
	defer it.Close()
	for it.Next() {
		row, err := it.Row()
		if err != nil {
			return NewErrorIterator(err)
		}
		index[r.rightJoinKey(row)] = append(index[r.rightJoinKey(row)], row)
	}

	return &equijoinIterator{
		node:    r,
		left:    r.left.Rows(),
		index:   index,
		pending: nil,
	}
}

func (r *IntermediateRelation) leftJoinKey(row Row) string {
	var key []byte
	for _, k := range sortedMatchingKeys(r.matching) {
		vb := CanonicalBytes(row.Get(k))
		key = appendUnsigned(key, uint64(len(vb)))
		key = append(key, ':')
		key = append(key, vb...)
	}
	return string(key)
}

func (r *IntermediateRelation) rightJoinKey(row Row) string {
	var key []byte
	for _, k := range sortedMatchingKeys(r.matching) {
		vb := CanonicalBytes(row.Get(r.matching[k]))
		key = appendUnsigned(key, uint64(len(vb)))
		key = append(key, ':')
		key = append(key, vb...)
	}
	return string(key)
}

func sortedMatchingKeys(matching map[Attribute]Attribute) []Attribute {
	keys := make(Scheme, len(matching))
	for k := range matching {
		keys[k] = struct{}{}
	}
	return keys.Sorted()
}

func (r *IntermediateRelation) aggregateRows() RowIterator {
	acc := r.aggInitial

	it := r.left.Rows()
	defer it.Close()
	for it.Next() {
		row, err := it.Row()
		if err != nil {
			return NewErrorIterator(err)
		}
		acc, err = r.aggFn(acc, row.Get(r.aggAttr))
		if err != nil {
			return NewErrorIterator(err)
		}
	}

	if Type(acc) == TypeNotFound {
		// No fold seed and no rows contributed a value.
		return NewSliceIterator(nil)
	}
	return NewSliceIterator([]Row{{r.aggAttr: acc}})
}

func (r *IntermediateRelation) otherwiseRows() RowIterator {
	leftRows, err := AllRows(r.left)
	if err != nil {
		return NewErrorIterator(err)
	}
	if len(leftRows) > 0 {
		return NewSliceIterator(leftRows)
	}
	return r.right.Rows()
}

func (r *IntermediateRelation) uniqueRows() RowIterator {
	rows, err := AllRows(r.left)
	if err != nil {
		return NewErrorIterator(err)
	}
	for _, row := range rows {
		if !ValuesEqual(row.Get(r.uniqueAttr), r.uniqueValue) {
			return NewSliceIterator(nil)
		}
	}
	return NewSliceIterator(rows)
}

// filterIterator streams the rows satisfying keep. Row errors pass
// through without ending iteration.
type filterIterator struct {
	inner RowIterator
	keep  func(Row) bool
	row   Row
	err   error
}

func (it *filterIterator) Next() bool {
	for it.inner.Next() {
		row, err := it.inner.Row()
		if err != nil {
			it.row, it.err = nil, err
			return true
		}
		if it.keep(row) {
			it.row, it.err = row, nil
			return true
		}
	}
	return false
}

func (it *filterIterator) Row() (Row, error) { return it.row, it.err }
func (it *filterIterator) Close() error      { return it.inner.Close() }

// mapIterator streams rows through a transform.
type mapIterator struct {
	inner  RowIterator
	mapRow func(Row) Row
	row    Row
	err    error
}

func (it *mapIterator) Next() bool {
	if !it.inner.Next() {
		return false
	}
	row, err := it.inner.Row()
	if err != nil {
		it.row, it.err = nil, err
		return true
	}
	it.row, it.err = it.mapRow(row), nil
	return true
}

func (it *mapIterator) Row() (Row, error) { return it.row, it.err }
func (it *mapIterator) Close() error      { return it.inner.Close() }

// projectIterator restricts rows to a scheme, collapsing duplicates.
type projectIterator struct {
	inner  RowIterator
	scheme Scheme
	seen   map[string]struct{}
	row    Row
	err    error
}

func (it *projectIterator) Next() bool {
	for it.inner.Next() {
		row, err := it.inner.Row()
		if err != nil {
			it.row, it.err = nil, err
			return true
		}
		projected := row.Project(it.scheme)
		key := projected.Key()
		if _, dup := it.seen[key]; dup {
			continue
		}
		it.seen[key] = struct{}{}
		it.row, it.err = projected, nil
		return true
	}
	return false
}

func (it *projectIterator) Row() (Row, error) { return it.row, it.err }
func (it *projectIterator) Close() error      { return it.inner.Close() }

// projectLikeIterator maps rows and collapses duplicates; update uses
// it since overwriting can merge rows.
type projectLikeIterator struct {
	inner  RowIterator
	mapRow func(Row) Row
	seen   map[string]struct{}
	row    Row
	err    error
}

func (it *projectLikeIterator) Next() bool {
	for it.inner.Next() {
		row, err := it.inner.Row()
		if err != nil {
			it.row, it.err = nil, err
			return true
		}
		mapped := it.mapRow(row)
		key := mapped.Key()
		if _, dup := it.seen[key]; dup {
			continue
		}
		it.seen[key] = struct{}{}
		it.row, it.err = mapped, nil
		return true
	}
	return false
}

func (it *projectLikeIterator) Row() (Row, error) { return it.row, it.err }
func (it *projectLikeIterator) Close() error      { return it.inner.Close() }

// unionIterator streams the left operand then the right, collapsing
// duplicates across both.
type unionIterator struct {
	left  RowIterator
	right RowIterator
	seen  map[string]struct{}
	onB   bool
	row   Row
	err   error
}

func (it *unionIterator) Next() bool {
	for {
		inner := it.left
		if it.onB {
			inner = it.right
		}
		if !inner.Next() {
			if it.onB {
				return false
			}
			it.onB = true
			continue
		}
		row, err := inner.Row()
		if err != nil {
			it.row, it.err = nil, err
			return true
		}
		key := row.Key()
		if _, dup := it.seen[key]; dup {
			continue
		}
		it.seen[key] = struct{}{}
		it.row, it.err = row, nil
		return true
	}
}

func (it *unionIterator) Row() (Row, error) { return it.row, it.err }

func (it *unionIterator) Close() error {
	err := it.left.Close()
	if rerr := it.right.Close(); err == nil {
		err = rerr
	}
	return err
}

// equijoinIterator probes the prebuilt right-side index with each left
// row and emits the combined rows.
type equijoinIterator struct {
	node    *IntermediateRelation
	left    RowIterator
	index   map[string][]Row
	pending []Row
	row     Row
	err     error
}

func (it *equijoinIterator) Next() bool {
	for {
		if len(it.pending) > 0 {
			it.row, it.err = it.pending[0], nil
			it.pending = it.pending[1:]
			return true
		}
		if !it.left.Next() {
			return false
		}
		leftRow, err := it.left.Row()
		if err != nil {
			it.row, it.err = nil, err
			return true
		}
		for _, rightRow := range it.index[it.node.leftJoinKey(leftRow)] {
			// The left row wins on any overlap; overlaps beyond the
			// matching were rejected at construction.
			it.pending = append(it.pending, rightRow.Overwriting(leftRow))
		}
	}
}

func (it *equijoinIterator) Row() (Row, error) { return it.row, it.err }
func (it *equijoinIterator) Close() error      { return it.left.Close() }
