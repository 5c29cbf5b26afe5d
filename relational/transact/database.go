package transact

import (
	"sort"
	"sync"

	"github.com/wbrown/janus-relational/relational"
	"github.com/wbrown/janus-relational/relational/annotations"
)

// Database groups change-logging relations under names and gives them
// transactional behavior: begin/end nesting, per-transaction
// notification buffering, and snapshot/restore atomic across every
// member relation.
//
// The database owns its relations exclusively; a relation observing a
// database that contains it is forbidden by construction.
type Database struct {
	mu        sync.Mutex
	relations map[string]*ChangeLoggingRelation
	txDepth   int
	collector *annotations.Collector
}

// NewDatabase creates an empty transactional database.
func NewDatabase() *Database {
	return &Database{
		relations: make(map[string]*ChangeLoggingRelation),
	}
}

// NewDatabaseWithCollector creates a database whose transaction
// boundaries are reported to the collector.
func NewDatabaseWithCollector(collector *annotations.Collector) *Database {
	db := NewDatabase()
	db.collector = collector
	return db
}

// SetCollector attaches (or detaches, with nil) the event collector.
func (db *Database) SetCollector(collector *annotations.Collector) {
	db.mu.Lock()
	db.collector = collector
	db.mu.Unlock()
}

// AddRelation wraps an underlying relation in a change-logging
// relation owned by this database.
func (db *Database) AddRelation(name string, underlying relational.MutableRelation) (*ChangeLoggingRelation, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, exists := db.relations[name]; exists {
		return nil, relational.SchemeViolationf("relation %q already registered", name)
	}
	rel := NewChangeLoggingRelation(underlying)
	rel.name = name
	rel.db = db
	db.relations[name] = rel
	return rel, nil
}

// Relation returns a member relation by name, or nil.
func (db *Database) Relation(name string) *ChangeLoggingRelation {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.relations[name]
}

// Relations returns the member relations in name order.
func (db *Database) Relations() []*ChangeLoggingRelation {
	db.mu.Lock()
	defer db.mu.Unlock()

	names := make([]string, 0, len(db.relations))
	for name := range db.relations {
		names = append(names, name)
	}
	sort.Strings(names)
	result := make([]*ChangeLoggingRelation, len(names))
	for i, name := range names {
		result[i] = db.relations[name]
	}
	return result
}

// Begin enters a transaction. Transactions nest; observers of member
// relations receive no change notifications until the outermost End.
func (db *Database) Begin() {
	db.mu.Lock()
	db.txDepth++
	depth := db.txDepth
	collector := db.collector
	db.mu.Unlock()

	if collector.Enabled() {
		collector.Note(annotations.TransactionBegin, map[string]interface{}{"depth": depth})
	}
}

// End leaves a transaction. Leaving the outermost transaction flushes
// each member relation's buffered delta as one notification.
func (db *Database) End() {
	db.mu.Lock()
	if db.txDepth == 0 {
		db.mu.Unlock()
		return
	}
	db.txDepth--
	depth := db.txDepth
	collector := db.collector
	flush := db.txDepth == 0
	var members []*ChangeLoggingRelation
	if flush {
		for _, rel := range db.relations {
			members = append(members, rel)
		}
	}
	db.mu.Unlock()

	if flush {
		for _, rel := range members {
			rel.flushPending()
		}
	}
	if collector.Enabled() {
		collector.Note(annotations.TransactionEnd, map[string]interface{}{"depth": depth})
	}
}

func (db *Database) inTransaction() bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.txDepth > 0
}

// Transaction runs f inside a transaction, guaranteeing End on every
// exit path. A failing mutation inside f leaves the logs in a defined
// partial state; the caller rolls back by restoring a snapshot taken
// before the transaction.
func (db *Database) Transaction(f func() error) error {
	db.Begin()
	defer db.End()
	return f()
}

// TransactionWithSnapshots runs f inside a transaction and captures
// snapshots before and after it. Undo stacks install the pair as
// backward/forward restore entries.
func (db *Database) TransactionWithSnapshots(f func() error) (before, after DatabaseSnapshot, err error) {
	before = db.TakeSnapshot()
	err = db.Transaction(f)
	after = db.TakeSnapshot()
	return before, after, err
}

// TakeSnapshot captures the log of every member relation.
func (db *Database) TakeSnapshot() DatabaseSnapshot {
	snap := DatabaseSnapshot{relations: make(map[uint64]RelationSnapshot)}
	for _, rel := range db.Relations() {
		snap.relations[rel.RelationID()] = rel.TakeSnapshot()
	}
	return snap
}

// RestoreSnapshot replaces every member relation's log with the
// snapshot's copy. Restoring runs inside a transaction so each
// affected relation delivers exactly one combined delta. Relations
// absent from the snapshot are reset to an empty log.
func (db *Database) RestoreSnapshot(snap DatabaseSnapshot) error {
	return db.Transaction(func() error {
		for _, rel := range db.Relations() {
			target, ok := snap.relations[rel.RelationID()]
			if !ok {
				target = RelationSnapshot{}
			}
			if err := rel.RestoreSnapshot(target); err != nil {
				return err
			}
		}
		return nil
	})
}
