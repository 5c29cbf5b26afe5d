package update

import (
	"errors"
	"sort"
	"sync"

	"github.com/wbrown/janus-relational/relational"
	"github.com/wbrown/janus-relational/relational/annotations"
	"github.com/wbrown/janus-relational/relational/derivative"
	"github.com/wbrown/janus-relational/relational/executor"
	"github.com/wbrown/janus-relational/relational/transact"
)

// State is the manager's lifecycle phase.
//
//	idle ──register──▶ pending ──drain──▶ running ──queries done──▶ stopping ──▶ idle
//	                                        │                                      ▲
//	                                        └──new actions registered during run───┘
type State int

const (
	StateIdle State = iota
	StatePending
	StateRunning
	StateStopping
)

// ErrShutdown is returned for registrations after Shutdown.
var ErrShutdown = errors.New("update manager is shut down")

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	// Workers is the background worker pool size (0 = NumCPU).
	Workers int

	// BatchSize bounds rows per streamed delivery (0 = default).
	BatchSize int

	// Collector receives engine events; nil disables them.
	Collector *annotations.Collector
}

// Manager coalesces mutations registered within a dispatch tick, runs
// them and the resulting queries off the owning context, and notifies
// observers with the three-phase protocol. One instance exists per
// execution context; it is an explicit handle, not ambient state.
//
// Mutations across multiple transactional databases in one batch are
// applied in order but are only best-effort atomic: a single logical
// transaction should be confined to one database.
type Manager struct {
	ctx       DispatchContext
	runner    *executor.Runner
	collector *annotations.Collector

	mu           sync.Mutex
	cond         *sync.Cond
	state        State
	pending      []*action
	observers    map[uint64]*observerEntry
	nextObserver uint64
	shutdown     bool
}

// observerEntry pairs one async observer with the derivative of its
// root expression.
type observerEntry struct {
	id      uint64
	root    relational.Relation
	deriv   *derivative.Derivative
	delta   relational.AsyncRelationObserver
	content relational.AsyncContentObserver
	ctx     DispatchContext
	removed bool

	// didSendWillChange guarantees exactly one willChange per
	// observer per drain; every willChange is matched by exactly one
	// later didChange.
	didSendWillChange bool
	willCount         int
	didCount          int

	// batchErr, when set, replaces this round's row deliveries with a
	// single relationError.
	errMu    sync.Mutex
	batchErr error
}

// ObserverHandle identifies a registered observer. Remove detaches
// it; Counts exposes the willChange/didChange totals, equal at every
// quiescent point.
type ObserverHandle struct {
	m     *Manager
	entry *observerEntry
}

// NewManager creates a manager pinned to the given context.
func NewManager(ctx DispatchContext, opts ManagerOptions) *Manager {
	m := &Manager{
		ctx:       ctx,
		runner:    executor.NewRunner(executor.NewWorkerPool(opts.Workers), opts.BatchSize, opts.Collector),
		collector: opts.Collector,
		observers: make(map[uint64]*observerEntry),
	}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// State returns the current lifecycle phase.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ObserveDelta registers an async delta observer on a root relation.
// Callbacks run on callbackCtx, or the manager's context when nil.
func (m *Manager) ObserveDelta(root relational.Relation, observer relational.AsyncRelationObserver, callbackCtx DispatchContext) *ObserverHandle {
	return m.addObserver(root, observer, nil, callbackCtx)
}

// ObserveContent registers an async content observer on a root
// relation.
func (m *Manager) ObserveContent(root relational.Relation, observer relational.AsyncContentObserver, callbackCtx DispatchContext) *ObserverHandle {
	return m.addObserver(root, nil, observer, callbackCtx)
}

func (m *Manager) addObserver(root relational.Relation, delta relational.AsyncRelationObserver, content relational.AsyncContentObserver, callbackCtx DispatchContext) *ObserverHandle {
	if callbackCtx == nil {
		callbackCtx = m.ctx
	}
	entry := &observerEntry{
		root:    root,
		deriv:   derivative.NewDerivative(root),
		delta:   delta,
		content: content,
		ctx:     callbackCtx,
	}

	m.mu.Lock()
	m.nextObserver++
	entry.id = m.nextObserver
	m.observers[entry.id] = entry
	m.mu.Unlock()

	if m.collector.Enabled() {
		m.collector.Note(annotations.DerivativeBuilt, map[string]interface{}{
			"observer":  entry.id,
			"variables": len(entry.deriv.Variables()),
		})
	}
	return &ObserverHandle{m: m, entry: entry}
}

// Remove detaches the observer. A removal racing an in-flight
// delivery is honored for subsequent deliveries only.
func (h *ObserverHandle) Remove() {
	h.m.mu.Lock()
	h.entry.removed = true
	delete(h.m.observers, h.entry.id)
	h.m.mu.Unlock()
}

// Counts returns the willChange and didChange totals so far.
func (h *ObserverHandle) Counts() (willChange, didChange int) {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	return h.entry.willCount, h.entry.didCount
}

// RegisterAdd schedules add(rel, row) for the next drain.
func (m *Manager) RegisterAdd(rel relational.MutableRelation, row relational.Row) error {
	return m.register(&action{kind: actionAdd, target: rel, row: row.Clone()})
}

// RegisterDelete schedules delete(rel, predicate).
func (m *Manager) RegisterDelete(rel relational.MutableRelation, expr relational.SelectExpression) error {
	return m.register(&action{kind: actionDelete, target: rel, expr: expr})
}

// RegisterUpdate schedules update(rel, predicate, newValues).
func (m *Manager) RegisterUpdate(rel relational.MutableRelation, expr relational.SelectExpression, newValues relational.Row) error {
	return m.register(&action{kind: actionUpdate, target: rel, expr: expr, values: newValues.Clone()})
}

// RegisterRestoreSnapshot schedules an atomic snapshot restore on a
// database.
func (m *Manager) RegisterRestoreSnapshot(db *transact.Database, snap transact.DatabaseSnapshot) error {
	return m.register(&action{kind: actionRestoreSnapshot, db: db, snapshot: snap})
}

// RegisterQuery schedules a one-shot query; the callback runs on the
// manager's context with the materialized rows.
func (m *Manager) RegisterQuery(rel relational.Relation, callback func(rows []relational.Row, err error)) error {
	return m.register(&action{kind: actionQuery, queryRel: rel, queryCB: callback})
}

func (m *Manager) register(a *action) error {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return ErrShutdown
	}
	m.pending = append(m.pending, a)
	schedule := m.state == StateIdle
	if schedule {
		m.state = StatePending
	}
	m.mu.Unlock()

	if m.collector.Enabled() {
		m.collector.Note(annotations.UpdateRegistered, map[string]interface{}{"action": a.kind.String()})
	}
	if schedule {
		// At most one scheduled drain: only the idle→pending
		// transition posts it.
		m.ctx.Async(m.drain)
	}
	return nil
}

// Shutdown drains pending actions and refuses new registrations.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.shutdown = true
	m.mu.Unlock()
	m.WaitIdle()
}

// WaitIdle blocks until the manager is idle with nothing pending.
func (m *Manager) WaitIdle() {
	m.mu.Lock()
	for m.state != StateIdle || len(m.pending) > 0 {
		m.cond.Wait()
	}
	m.mu.Unlock()
}

// drain runs on the owning context: it snapshots the pending actions,
// sends willChange to every observer whose dependency graph may be
// affected, and hands the batch to a background worker.
func (m *Manager) drain() {
	m.mu.Lock()
	actions := m.pending
	m.pending = nil
	m.state = StateRunning
	entries := make([]*observerEntry, 0, len(m.observers))
	for _, entry := range m.observers {
		entries = append(entries, entry)
	}
	m.mu.Unlock()
	sort.Slice(entries, func(i, j int) bool { return entries[i].id < entries[j].id })

	if m.collector.Enabled() {
		m.collector.Note(annotations.BatchBegin, map[string]interface{}{"actions": len(actions)})
	}

	affected := make(map[uint64]*observerEntry)
	for _, a := range actions {
		m.markAffected(a, entries, affected)
	}

	m.mu.Lock()
	for _, entry := range entries {
		e := affected[entry.id]
		if e == nil || e.didSendWillChange {
			continue
		}
		e.didSendWillChange = true
		e.willCount++
		m.postWillChange(e)
	}
	m.mu.Unlock()

	go m.execute(actions, affected)
}

// markAffected decides which observers a single action can reach,
// applying the conservative consistency check.
func (m *Manager) markAffected(a *action, entries []*observerEntry, affected map[uint64]*observerEntry) {
	switch a.kind {
	case actionAdd, actionDelete, actionUpdate:
		for _, entry := range entries {
			if !entry.deriv.HasVariable(a.target) {
				continue
			}
			expr, row, ok := a.mutationPredicate()
			if ok {
				filtered := false
				if expr != nil {
					filtered = entry.deriv.MutationFiltered(a.target, expr)
				} else {
					filtered = entry.deriv.RowFiltered(a.target, row)
				}
				if filtered {
					if m.collector.Enabled() {
						m.collector.Note(annotations.ObserverSkipped, map[string]interface{}{"observer": entry.id})
					}
					continue
				}
			}
			affected[entry.id] = entry
		}

	case actionRestoreSnapshot:
		for _, rel := range a.db.Relations() {
			for _, entry := range entries {
				if entry.deriv.HasVariable(rel) {
					affected[entry.id] = entry
				}
			}
		}
	}
}

// execute runs on a background worker: it wires variable listeners
// into derivatives, applies the actions inside transactions, queries
// every derivative plus the direct queries in one combined execution,
// and posts completion back to the owning context.
func (m *Manager) execute(actions []*action, affected map[uint64]*observerEntry) {
	// Route each base-level change into the affected derivatives.
	var removers []relational.RemoveObserver
	for _, entry := range affected {
		entry.deriv.Clear()
		for _, variable := range entry.deriv.Variables() {
			observable, ok := variable.(relational.ObservableRelation)
			if !ok {
				continue
			}
			deriv, v := entry.deriv, variable
			removers = append(removers, observable.AddChangeObserver(func(change relational.RelationChange) {
				_ = deriv.AddVariableChange(v, change)
			}))
		}
	}

	dbs := touchedDatabases(actions)
	for _, db := range dbs {
		db.Begin()
	}

	for _, a := range actions {
		if err := m.apply(a); err != nil {
			if m.collector.Enabled() {
				m.collector.Note(annotations.ErrorMutation, map[string]interface{}{"error": err.Error()})
			}
			// The failing action is abandoned; the rest of the batch
			// still executes. Observers the action reached report the
			// error instead of rows.
			for _, entry := range affected {
				if a.target != nil && entry.deriv.HasVariable(a.target) {
					entry.setBatchErr(err)
				} else if a.kind == actionRestoreSnapshot {
					entry.setBatchErr(err)
				}
			}
		}
	}

	// Ending the transactions flushes each member relation's buffered
	// delta into the listeners attached above.
	for _, db := range dbs {
		db.End()
	}
	for _, remover := range removers {
		remover()
	}

	if m.collector.Enabled() {
		m.collector.Note(annotations.BatchApplied, map[string]interface{}{"databases": len(dbs)})
	}

	queries := m.buildQueries(actions, affected)
	m.runner.Execute(queries)

	for _, entry := range affected {
		entry.deriv.Clear()
	}
	if m.collector.Enabled() {
		m.collector.Note(annotations.DerivativeCleared, nil)
	}

	m.ctx.Async(func() { m.finish(affected) })
}

func (m *Manager) apply(a *action) error {
	switch a.kind {
	case actionAdd:
		return a.target.Add(a.row)
	case actionDelete:
		return a.target.Delete(a.expr)
	case actionUpdate:
		return a.target.Update(a.expr, a.values)
	case actionRestoreSnapshot:
		err := a.db.RestoreSnapshot(a.snapshot)
		if err == nil && m.collector.Enabled() {
			m.collector.Note(annotations.SnapshotRestored, map[string]interface{}{"relations": len(a.db.Relations())})
		}
		return err
	}
	return nil
}

// buildQueries assembles the combined execution of one drain: the
// added/removed delta of every affected delta observer, the new
// contents of every affected content observer, and the direct query
// actions.
func (m *Manager) buildQueries(actions []*action, affected map[uint64]*observerEntry) []executor.Query {
	var queries []executor.Query

	for _, entry := range affected {
		if err := entry.getBatchErr(); err != nil {
			m.postError(entry, err)
			continue
		}

		change, reached, err := entry.deriv.Change()
		if err != nil {
			m.postError(entry, err)
			continue
		}

		if entry.delta != nil && reached {
			queries = append(queries, m.deltaQueries(entry, change)...)
		}
		// Content observers always see the refreshed contents once a
		// willChange went out, even when the net delta is empty.
		if entry.content != nil {
			queries = append(queries, m.contentQuery(entry))
		}
	}

	for _, a := range actions {
		if a.kind != actionQuery {
			continue
		}
		queries = append(queries, m.directQuery(a))
	}
	return queries
}

func (m *Manager) deltaQueries(entry *observerEntry, change relational.RelationChange) []executor.Query {
	var queries []executor.Query
	if change.Added != nil {
		queries = append(queries, executor.Query{
			Relation: change.Added,
			Deliver: func(rows []relational.Row) {
				if m.collector.Enabled() {
					m.collector.Note(annotations.ObserverDelta, map[string]interface{}{
						"observer": entry.id, "added": len(rows), "removed": 0,
					})
				}
				m.postDelivery(entry, func() { entry.delta.RelationAddedRows(entry.root, rows) })
			},
			Error: func(err error) { m.postError(entry, err) },
		})
	}
	if change.Removed != nil {
		queries = append(queries, executor.Query{
			Relation: change.Removed,
			Deliver: func(rows []relational.Row) {
				if m.collector.Enabled() {
					m.collector.Note(annotations.ObserverDelta, map[string]interface{}{
						"observer": entry.id, "added": 0, "removed": len(rows),
					})
				}
				m.postDelivery(entry, func() { entry.delta.RelationRemovedRows(entry.root, rows) })
			},
			Error: func(err error) { m.postError(entry, err) },
		})
	}
	return queries
}

func (m *Manager) contentQuery(entry *observerEntry) executor.Query {
	var rows []relational.Row
	failed := false
	return executor.Query{
		Relation: entry.root,
		Deliver: func(batch []relational.Row) {
			rows = append(rows, batch...)
		},
		Error: func(err error) {
			failed = true
			m.postError(entry, err)
		},
		Done: func() {
			if failed {
				return
			}
			contents := rows
			if m.collector.Enabled() {
				m.collector.Note(annotations.ObserverContents, map[string]interface{}{
					"observer": entry.id, "rows": len(contents),
				})
			}
			m.postDelivery(entry, func() { entry.content.RelationNewContents(entry.root, contents) })
		},
	}
}

func (m *Manager) directQuery(a *action) executor.Query {
	var rows []relational.Row
	var failure error
	callback := a.queryCB
	return executor.Query{
		Relation: a.queryRel,
		Deliver: func(batch []relational.Row) {
			rows = append(rows, batch...)
		},
		Error: func(err error) { failure = err },
		Done: func() {
			result, err := rows, failure
			m.ctx.Async(func() { callback(result, err) })
		},
	}
}

// finish runs on the owning context after all queries complete. If
// actions arrived during delivery the manager loops, pairing a
// didChange/willChange for content observers so they interpret the
// next delivery as replacement rather than extension. Otherwise it
// transitions through stopping, emits the final didChange to every
// observer with an open willChange, and returns to idle.
func (m *Manager) finish(affected map[uint64]*observerEntry) {
	m.mu.Lock()
	if len(m.pending) > 0 {
		if m.collector.Enabled() {
			m.collector.Note(annotations.BatchLooped, map[string]interface{}{"actions": len(m.pending)})
		}
		for _, entry := range m.observers {
			if entry.content != nil && entry.didSendWillChange {
				entry.didCount++
				entry.willCount++
				m.postPairedDidWill(entry)
			}
		}
		m.mu.Unlock()
		m.drain()
		return
	}

	m.state = StateStopping
	notified := 0
	for _, entry := range m.observers {
		if entry.didSendWillChange {
			entry.didSendWillChange = false
			entry.didCount++
			m.postDidChange(entry)
			notified++
		}
	}
	// Observers removed mid-flight still close their protocol.
	for _, entry := range affected {
		if entry.removed && entry.didSendWillChange {
			entry.didSendWillChange = false
			entry.didCount++
			m.postDidChange(entry)
			notified++
		}
	}
	m.state = StateIdle
	m.cond.Broadcast()
	m.mu.Unlock()

	if m.collector.Enabled() {
		m.collector.Note(annotations.BatchComplete, map[string]interface{}{"observers": notified})
	}
}

// Delivery posting. All posts for one observer go through its serial
// context, so willChange strictly precedes row deliveries, which
// strictly precede didChange.

func (m *Manager) postWillChange(entry *observerEntry) {
	if m.collector.Enabled() {
		m.collector.Note(annotations.ObserverWillChange, map[string]interface{}{"observer": entry.id})
	}
	entry.ctx.Async(func() {
		if entry.delta != nil {
			entry.delta.RelationWillChange(entry.root)
		}
		if entry.content != nil {
			entry.content.RelationWillChange(entry.root)
		}
	})
}

func (m *Manager) postDidChange(entry *observerEntry) {
	if m.collector.Enabled() {
		m.collector.Note(annotations.ObserverDidChange, map[string]interface{}{"observer": entry.id})
	}
	entry.ctx.Async(func() {
		if entry.delta != nil {
			entry.delta.RelationDidChange(entry.root)
		}
		if entry.content != nil {
			entry.content.RelationDidChange(entry.root)
		}
	})
}

func (m *Manager) postPairedDidWill(entry *observerEntry) {
	entry.ctx.Async(func() {
		entry.content.RelationDidChange(entry.root)
		entry.content.RelationWillChange(entry.root)
	})
}

func (m *Manager) postDelivery(entry *observerEntry, deliver func()) {
	entry.ctx.Async(deliver)
}

func (m *Manager) postError(entry *observerEntry, err error) {
	if m.collector.Enabled() {
		m.collector.Note(annotations.ErrorQuery, map[string]interface{}{"error": err.Error(), "observer": entry.id})
	}
	entry.ctx.Async(func() {
		if entry.delta != nil {
			entry.delta.RelationError(entry.root, err)
		}
		if entry.content != nil {
			entry.content.RelationError(entry.root, err)
		}
	})
}

func (e *observerEntry) setBatchErr(err error) {
	e.errMu.Lock()
	if e.batchErr == nil {
		e.batchErr = err
	}
	e.errMu.Unlock()
}

func (e *observerEntry) getBatchErr() error {
	e.errMu.Lock()
	defer e.errMu.Unlock()
	err := e.batchErr
	e.batchErr = nil
	return err
}

// touchedDatabases collects the transactional databases a batch
// reaches, in first-touch order.
func touchedDatabases(actions []*action) []*transact.Database {
	var dbs []*transact.Database
	seen := make(map[*transact.Database]struct{})
	for _, a := range actions {
		var db *transact.Database
		switch a.kind {
		case actionRestoreSnapshot:
			db = a.db
		case actionAdd, actionDelete, actionUpdate:
			if cl, ok := a.target.(*transact.ChangeLoggingRelation); ok {
				db = cl.Database()
			}
		}
		if db == nil {
			continue
		}
		if _, ok := seen[db]; ok {
			continue
		}
		seen[db] = struct{}{}
		dbs = append(dbs, db)
	}
	return dbs
}
