package update

import (
	"sync"
	"testing"
	"time"

	"github.com/wbrown/janus-relational/relational"
	"github.com/wbrown/janus-relational/relational/annotations"
	"github.com/wbrown/janus-relational/relational/storage"
	"github.com/wbrown/janus-relational/relational/transact"
)

func petsScheme() relational.Scheme {
	return relational.NewScheme("id", "name")
}

func pet(id int64, name string) relational.Row {
	return relational.Row{
		relational.Attr("id"):   relational.Integer(id),
		relational.Attr("name"): relational.Text(name),
	}
}

func newStored(t *testing.T, rows ...relational.Row) *storage.StoredRelation {
	t.Helper()
	rel := storage.NewStoredRelation(storage.NewMemoryStore(petsScheme()))
	for _, row := range rows {
		if err := rel.Add(row); err != nil {
			t.Fatal(err)
		}
	}
	return rel
}

// recordingObserver records protocol events in delivery order. It
// serves as both a delta and a content observer.
type recordingObserver struct {
	mu     sync.Mutex
	events []string
	rows   [][]relational.Row

	// onDidChange, when set, runs inside the didChange callback.
	onDidChange func()
}

func (o *recordingObserver) record(event string) {
	o.mu.Lock()
	o.events = append(o.events, event)
	o.mu.Unlock()
}

func (o *recordingObserver) Events() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string{}, o.events...)
}

func (o *recordingObserver) RelationWillChange(relational.Relation) { o.record("will") }
func (o *recordingObserver) RelationDidChange(rel relational.Relation) {
	o.record("did")
	if o.onDidChange != nil {
		cb := o.onDidChange
		o.onDidChange = nil
		cb()
	}
}
func (o *recordingObserver) RelationError(_ relational.Relation, err error) { o.record("error") }

func (o *recordingObserver) RelationAddedRows(_ relational.Relation, rows []relational.Row) {
	o.mu.Lock()
	o.events = append(o.events, "added")
	o.rows = append(o.rows, rows)
	o.mu.Unlock()
}

func (o *recordingObserver) RelationRemovedRows(_ relational.Relation, rows []relational.Row) {
	o.mu.Lock()
	o.events = append(o.events, "removed")
	o.rows = append(o.rows, rows)
	o.mu.Unlock()
}

func (o *recordingObserver) RelationNewContents(_ relational.Relation, rows []relational.Row) {
	o.mu.Lock()
	o.events = append(o.events, "contents")
	o.rows = append(o.rows, rows)
	o.mu.Unlock()
}

// flush waits for everything already posted to the context to run.
func flush(ctx *SerialQueue) {
	var wg sync.WaitGroup
	wg.Add(1)
	ctx.Async(wg.Done)
	wg.Wait()
}

// settle waits until the manager is idle and all deliveries ran.
func settle(m *Manager, ctx *SerialQueue) {
	// A delivery can re-register actions (re-entry), so wait and
	// flush until the manager stays idle across a flush.
	for i := 0; i < 100; i++ {
		m.WaitIdle()
		flush(ctx)
		if m.State() == StateIdle {
			m.mu.Lock()
			quiet := len(m.pending) == 0
			m.mu.Unlock()
			if quiet {
				return
			}
		}
		time.Sleep(time.Millisecond)
	}
}

func TestBasicDeltaScenario(t *testing.T) {
	// S1: observe select(id==1).project(name) as content; async
	// update name to "kat"; expect willChange, newContents "kat",
	// didChange, and the final value "kat".
	ctx := NewSerialQueue()
	defer ctx.Stop()
	m := NewManager(ctx, ManagerOptions{})

	rel := newStored(t, pet(1, "cat"), pet(2, "dog"))
	sel, err := relational.Select(rel, relational.AttrEq("id", relational.Integer(1)))
	if err != nil {
		t.Fatal(err)
	}
	root, err := relational.Project(sel, relational.NewScheme("name"))
	if err != nil {
		t.Fatal(err)
	}

	if v, ok, _ := relational.OneString(root, relational.Attr("name")); !ok || v != "cat" {
		t.Fatalf("initial value = %q", v)
	}

	obs := &recordingObserver{}
	m.ObserveContent(root, obs, nil)

	if err := m.RegisterUpdate(rel, relational.AttrEq("id", relational.Integer(1)), relational.Row{relational.Attr("name"): relational.Text("kat")}); err != nil {
		t.Fatal(err)
	}
	settle(m, ctx)

	events := obs.Events()
	want := []string{"will", "contents", "did"}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events = %v, want %v", events, want)
		}
	}
	if len(obs.rows) != 1 || len(obs.rows[0]) != 1 || obs.rows[0][0].Get(relational.Attr("name")) != relational.Text("kat") {
		t.Errorf("contents = %v", obs.rows)
	}

	if v, ok, _ := relational.OneString(root, relational.Attr("name")); !ok || v != "kat" {
		t.Errorf("final value = %q, want kat", v)
	}
}

func TestUnrelatedMutationIsFiltered(t *testing.T) {
	// S2: an add with id=3 is provably outside select(id==1); the
	// observer sees neither willChange nor didChange.
	ctx := NewSerialQueue()
	defer ctx.Stop()
	m := NewManager(ctx, ManagerOptions{})

	rel := newStored(t, pet(1, "cat"), pet(2, "dog"))
	root, err := relational.Select(rel, relational.AttrEq("id", relational.Integer(1)))
	if err != nil {
		t.Fatal(err)
	}

	obs := &recordingObserver{}
	handle := m.ObserveDelta(root, obs, nil)

	if err := m.RegisterAdd(rel, pet(3, "fish")); err != nil {
		t.Fatal(err)
	}
	settle(m, ctx)

	if events := obs.Events(); len(events) != 0 {
		t.Errorf("filtered observer got events %v", events)
	}
	if will, did := handle.Counts(); will != 0 || did != 0 {
		t.Errorf("counts = (%d, %d), want (0, 0)", will, did)
	}

	// The mutation itself still happened.
	rows, _ := relational.AllRows(rel)
	if len(rows) != 3 {
		t.Errorf("rows after add = %d", len(rows))
	}
}

func TestDeltaObserverReceivesPreciseRows(t *testing.T) {
	ctx := NewSerialQueue()
	defer ctx.Stop()
	m := NewManager(ctx, ManagerOptions{})

	rel := newStored(t, pet(1, "cat"))
	obs := &recordingObserver{}
	handle := m.ObserveDelta(rel, obs, nil)

	if err := m.RegisterUpdate(rel, relational.AttrEq("id", relational.Integer(1)), relational.Row{relational.Attr("name"): relational.Text("kat")}); err != nil {
		t.Fatal(err)
	}
	settle(m, ctx)

	events := obs.Events()
	if len(events) < 3 || events[0] != "will" || events[len(events)-1] != "did" {
		t.Fatalf("events = %v", events)
	}

	var added, removed []relational.Row
	for i, e := range events {
		if e == "added" {
			added = append(added, obs.rows[deliveryIndex(events, i)]...)
		}
		if e == "removed" {
			removed = append(removed, obs.rows[deliveryIndex(events, i)]...)
		}
	}
	if len(added) != 1 || added[0].Get(relational.Attr("name")) != relational.Text("kat") {
		t.Errorf("added = %v", added)
	}
	if len(removed) != 1 || removed[0].Get(relational.Attr("name")) != relational.Text("cat") {
		t.Errorf("removed = %v", removed)
	}

	if will, did := handle.Counts(); will != 1 || did != 1 {
		t.Errorf("counts = (%d, %d), want (1, 1)", will, did)
	}
}

// deliveryIndex maps an event position to its row-batch index: row
// batches are recorded in the order added/removed/contents events
// occur.
func deliveryIndex(events []string, pos int) int {
	idx := 0
	for i := 0; i < pos; i++ {
		switch events[i] {
		case "added", "removed", "contents":
			idx++
		}
	}
	return idx
}

func TestReentrantRegistrationLoops(t *testing.T) {
	// S6: from inside a didChange callback, register another
	// mutation. The manager loops and the total willChange count
	// equals the didChange count at quiescence.
	ctx := NewSerialQueue()
	defer ctx.Stop()
	m := NewManager(ctx, ManagerOptions{})

	rel := newStored(t, pet(1, "cat"))
	obs := &recordingObserver{}
	handle := m.ObserveDelta(rel, obs, nil)

	obs.onDidChange = func() {
		if err := m.RegisterAdd(rel, pet(2, "dog")); err != nil {
			t.Errorf("re-entrant register: %v", err)
		}
	}

	if err := m.RegisterAdd(rel, pet(3, "fish")); err != nil {
		t.Fatal(err)
	}
	settle(m, ctx)

	will, did := handle.Counts()
	if will != did {
		t.Errorf("willChange=%d didChange=%d, must be equal at quiescence", will, did)
	}
	if will != 2 {
		t.Errorf("expected two full cycles, got %d", will)
	}

	rows, _ := relational.AllRows(rel)
	if len(rows) != 3 {
		t.Errorf("rows = %d, want 3", len(rows))
	}
}

func TestQueryAction(t *testing.T) {
	ctx := NewSerialQueue()
	defer ctx.Stop()
	m := NewManager(ctx, ManagerOptions{})

	rel := newStored(t, pet(1, "cat"), pet(2, "dog"))

	var got []relational.Row
	var wg sync.WaitGroup
	wg.Add(1)
	err := m.RegisterQuery(rel, func(rows []relational.Row, err error) {
		if err != nil {
			t.Errorf("query error: %v", err)
		}
		got = rows
		wg.Done()
	})
	if err != nil {
		t.Fatal(err)
	}
	wg.Wait()
	if len(got) != 2 {
		t.Errorf("query rows = %d", len(got))
	}
}

func TestMutationsApplyInRegistrationOrder(t *testing.T) {
	ctx := NewSerialQueue()
	defer ctx.Stop()
	m := NewManager(ctx, ManagerOptions{})

	rel := newStored(t)
	if err := m.RegisterAdd(rel, pet(1, "cat")); err != nil {
		t.Fatal(err)
	}
	if err := m.RegisterUpdate(rel, relational.AttrEq("id", relational.Integer(1)), relational.Row{relational.Attr("name"): relational.Text("kat")}); err != nil {
		t.Fatal(err)
	}
	if err := m.RegisterDelete(rel, relational.AttrEq("name", relational.Text("cat"))); err != nil {
		t.Fatal(err)
	}
	settle(m, ctx)

	// The update saw the added row before the delete predicate ran,
	// so the row survives with name=kat.
	rows, _ := relational.AllRows(rel)
	if len(rows) != 1 || rows[0].Get(relational.Attr("name")) != relational.Text("kat") {
		t.Errorf("rows = %v", rows)
	}
}

func TestRemovedObserverGetsNoFurtherDeliveries(t *testing.T) {
	ctx := NewSerialQueue()
	defer ctx.Stop()
	m := NewManager(ctx, ManagerOptions{})

	rel := newStored(t, pet(1, "cat"))
	obs := &recordingObserver{}
	handle := m.ObserveDelta(rel, obs, nil)

	if err := m.RegisterAdd(rel, pet(2, "dog")); err != nil {
		t.Fatal(err)
	}
	settle(m, ctx)
	first := len(obs.Events())
	if first == 0 {
		t.Fatal("first mutation should have notified")
	}

	handle.Remove()
	if err := m.RegisterAdd(rel, pet(3, "fish")); err != nil {
		t.Fatal(err)
	}
	settle(m, ctx)

	if got := len(obs.Events()); got != first {
		t.Errorf("removed observer got %d new events", got-first)
	}
}

func TestCollectorSeesFullEventTrail(t *testing.T) {
	// Every layer reports into the shared collector: registration,
	// batch lifecycle, transaction boundaries, derivative
	// construction, query execution, and observer deliveries.
	collector := annotations.NewCollector(func(annotations.Event) {})

	ctx := NewSerialQueue()
	defer ctx.Stop()
	m := NewManager(ctx, ManagerOptions{Collector: collector})

	db := transact.NewDatabaseWithCollector(collector)
	rel, err := db.AddRelation("pets", newStored(t, pet(1, "cat")))
	if err != nil {
		t.Fatal(err)
	}

	obs := &recordingObserver{}
	m.ObserveContent(rel, obs, nil)

	if err := m.RegisterUpdate(rel, relational.AttrEq("id", relational.Integer(1)), relational.Row{relational.Attr("name"): relational.Text("kat")}); err != nil {
		t.Fatal(err)
	}
	settle(m, ctx)

	seen := make(map[string]int)
	for _, event := range collector.Events() {
		seen[event.Name]++
	}
	for _, name := range []string{
		annotations.UpdateRegistered,
		annotations.BatchBegin,
		annotations.BatchApplied,
		annotations.BatchComplete,
		annotations.TransactionBegin,
		annotations.TransactionEnd,
		annotations.DerivativeBuilt,
		annotations.DerivativeCleared,
		annotations.ObserverWillChange,
		annotations.ObserverDidChange,
		annotations.ObserverContents,
		annotations.QueryExecuted,
	} {
		if seen[name] == 0 {
			t.Errorf("event %s never emitted (trail: %v)", name, seen)
		}
	}
}

func TestCollectorSeesDeltaDeliveries(t *testing.T) {
	collector := annotations.NewCollector(func(annotations.Event) {})

	ctx := NewSerialQueue()
	defer ctx.Stop()
	m := NewManager(ctx, ManagerOptions{Collector: collector})

	rel := newStored(t, pet(1, "cat"))
	obs := &recordingObserver{}
	m.ObserveDelta(rel, obs, nil)

	if err := m.RegisterUpdate(rel, relational.AttrEq("id", relational.Integer(1)), relational.Row{relational.Attr("name"): relational.Text("kat")}); err != nil {
		t.Fatal(err)
	}
	settle(m, ctx)

	var added, removed int
	for _, event := range collector.Events() {
		if event.Name != annotations.ObserverDelta {
			continue
		}
		added += event.Data["added"].(int)
		removed += event.Data["removed"].(int)
	}
	if added != 1 || removed != 1 {
		t.Errorf("delta events reported added=%d removed=%d, want 1 and 1", added, removed)
	}
}

func TestShutdownRefusesNewWork(t *testing.T) {
	ctx := NewSerialQueue()
	defer ctx.Stop()
	m := NewManager(ctx, ManagerOptions{})

	rel := newStored(t)
	if err := m.RegisterAdd(rel, pet(1, "cat")); err != nil {
		t.Fatal(err)
	}
	m.Shutdown()

	// The pending action drained before shutdown returned.
	rows, _ := relational.AllRows(rel)
	if len(rows) != 1 {
		t.Errorf("rows = %d, want 1", len(rows))
	}

	if err := m.RegisterAdd(rel, pet(2, "dog")); err != ErrShutdown {
		t.Errorf("register after shutdown = %v, want ErrShutdown", err)
	}
}
