// Package executor runs relations and change deltas, streaming their
// rows to callbacks. The async update manager submits the queries of
// one drain as a single combined execution.
package executor

import (
	"time"

	"github.com/wbrown/janus-relational/relational"
	"github.com/wbrown/janus-relational/relational/annotations"
)

// Query is one relation to evaluate. Rows stream to Deliver in
// batches; a row error goes to Error and ends that query's streaming,
// leaving sibling queries untouched. Done fires exactly once after
// either outcome.
type Query struct {
	Relation relational.Relation
	Deliver  func(rows []relational.Row)
	Error    func(err error)
	Done     func()
}

// Runner executes queries on a shared worker pool.
type Runner struct {
	pool      *Pool
	batchSize int
	collector *annotations.Collector
}

// Pool is the worker pool alias the runner schedules on.
type Pool = WorkerPool

// NewRunner creates a runner. batchSize bounds the rows per Deliver
// call (0 = default); collector receives query events and may be nil.
func NewRunner(pool *Pool, batchSize int, collector *annotations.Collector) *Runner {
	if pool == nil {
		pool = NewWorkerPool(0)
	}
	if batchSize <= 0 {
		batchSize = 64
	}
	return &Runner{pool: pool, batchSize: batchSize, collector: collector}
}

// Execute runs every query to completion. Queries run concurrently on
// the pool; each query's callbacks are invoked from its own worker in
// order Deliver* (Error?) Done.
func (r *Runner) Execute(queries []Query) {
	if len(queries) == 0 {
		return
	}

	inputs := make([]interface{}, len(queries))
	for i := range queries {
		inputs[i] = &queries[i]
	}

	// Individual query failures are routed to the query's own Error
	// callback, so the pool-level error is always nil here.
	_, _ = r.pool.ExecuteParallel(inputs, func(input interface{}) (interface{}, error) {
		r.runOne(input.(*Query))
		return nil, nil
	})
}

func (r *Runner) runOne(q *Query) {
	start := time.Now()
	delivered := 0
	defer func() {
		if r.collector.Enabled() {
			r.collector.AddTiming(annotations.QueryExecuted, start, map[string]interface{}{
				"relation": q.Relation.Scheme().String(),
				"rows":     delivered,
			})
		}
		if q.Done != nil {
			q.Done()
		}
	}()

	it := q.Relation.Rows()
	defer it.Close()

	batch := make([]relational.Row, 0, r.batchSize)
	flush := func() {
		if len(batch) > 0 && q.Deliver != nil {
			q.Deliver(batch)
			delivered += len(batch)
			if r.collector.Enabled() {
				r.collector.Note(annotations.QueryStreamed, map[string]interface{}{
					"relation": q.Relation.Scheme().String(),
					"rows":     len(batch),
				})
			}
			batch = make([]relational.Row, 0, r.batchSize)
		}
	}

	for it.Next() {
		row, err := it.Row()
		if err != nil {
			flush()
			if q.Error != nil {
				q.Error(err)
			}
			return
		}
		batch = append(batch, row)
		if len(batch) >= r.batchSize {
			flush()
		}
	}
	flush()
}
