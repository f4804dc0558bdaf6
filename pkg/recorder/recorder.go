// Package recorder stores simulation traces in a SQLite database.
package recorder

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	// Pure Go SQLite driver, registered as "sqlite".
	_ "github.com/glebarez/go-sqlite"

	"github.com/rs/xid"
	"github.com/tebeka/atexit"

	"github.com/sherine-k/eventloop-sim/pkg/simulation"
)

// DefaultBatchSize is the number of buffered rows that triggers a flush.
const DefaultBatchSize = 10000

type taskRow struct {
	runID       string
	seq         uint64
	handle      uint64
	name        string
	kind        simulation.Kind
	scheduledAt simulation.VTime
	ranAt       simulation.VTime
	err         string
}

type recordRow struct {
	runID  string
	record simulation.Record
}

// Recorder is a simulation.Hook that writes records and task executions into
// SQLite. Rows are buffered and written in batched transactions.
type Recorder struct {
	mu sync.Mutex

	db        *sql.DB
	path      string
	batchSize int
	runID     string
	closed    bool

	// err is the first write failure; rows are dropped once it is set
	err error

	recordsToWrite []recordRow
	tasksToWrite   []taskRow
}

// Option configures a Recorder
type Option func(*Recorder)

// WithBatchSize sets how many rows are buffered before they are written
func WithBatchSize(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// New opens (or creates) the database at path and prepares the schema. The
// buffered rows are flushed when the process exits through atexit.
func New(path string, opts ...Option) (*Recorder, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace database %s: %w", path, err)
	}

	r := &Recorder{
		db:        db,
		path:      path,
		batchSize: DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(r)
	}

	if err := r.createTables(); err != nil {
		db.Close()
		return nil, err
	}

	atexit.Register(func() { _ = r.Flush() })

	return r, nil
}

// Path returns the database file name
func (r *Recorder) Path() string {
	return r.path
}

// RunID returns the identifier of the current run, empty before StartRun
func (r *Recorder) RunID() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.runID
}

func (r *Recorder) createTables() error {
	statements := []string{
		`create table if not exists runs
		(
			run_id     varchar(20)  not null primary key,
			scenario   varchar(200) not null,
			started_at varchar(40)  not null
		)`,
		`create table if not exists records
		(
			run_id  varchar(20)  not null,
			seq     integer      not null,
			time    integer      not null,
			kind    varchar(20)  not null,
			task    varchar(200) not null,
			message text         not null,
			failure integer      not null default 0
		)`,
		`create table if not exists tasks
		(
			run_id       varchar(20)  not null,
			seq          integer      not null,
			handle       integer      not null,
			name         varchar(200) not null,
			kind         varchar(20)  not null,
			scheduled_at integer      not null,
			ran_at       integer      not null,
			error        text
		)`,
		`create index if not exists records_run on records (run_id, seq)`,
		`create index if not exists tasks_run on tasks (run_id, seq)`,
	}

	for _, stmt := range statements {
		if _, err := r.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create trace schema: %w", err)
		}
	}

	return nil
}

// StartRun begins a new run labelled with the scenario name and returns its
// ID. Rows buffered for the previous run are flushed first.
func (r *Recorder) StartRun(scenario string) (string, error) {
	if err := r.Flush(); err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return "", fmt.Errorf("recorder %s is closed", r.path)
	}

	runID := xid.New().String()
	_, err := r.db.Exec(
		"insert into runs (run_id, scenario, started_at) values (?, ?, ?)",
		runID, scenario, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("failed to register run: %w", err)
	}

	r.runID = runID

	return runID, nil
}

// Func implements simulation.Hook
func (r *Recorder) Func(ctx simulation.HookCtx) {
	switch ctx.Pos {
	case simulation.HookPosRecord:
		record, ok := ctx.Item.(simulation.Record)
		if !ok {
			return
		}
		r.writeRecord(record)

	case simulation.HookPosAfterTask:
		info, ok := ctx.Item.(simulation.TaskInfo)
		if !ok {
			return
		}

		var ranAt simulation.VTime
		if sim, ok := ctx.Domain.(*simulation.Simulator); ok {
			ranAt = sim.Now()
		}

		var errMsg string
		if err, ok := ctx.Detail.(error); ok && err != nil {
			errMsg = err.Error()
		}

		r.writeTask(taskRow{
			seq:         info.Seq,
			handle:      uint64(info.Handle),
			name:        info.Name,
			kind:        info.Kind,
			scheduledAt: info.At,
			ranAt:       ranAt,
			err:         errMsg,
		})
	}
}

func (r *Recorder) writeRecord(record simulation.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil || r.closed {
		return
	}

	r.recordsToWrite = append(r.recordsToWrite, recordRow{runID: r.runID, record: record})
	r.flushIfFull()
}

func (r *Recorder) writeTask(row taskRow) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil || r.closed {
		return
	}

	row.runID = r.runID
	r.tasksToWrite = append(r.tasksToWrite, row)
	r.flushIfFull()
}

// flushIfFull writes a full batch. A failure is kept in r.err and reported
// by the next Flush or Close; hooks never fail the simulation.
func (r *Recorder) flushIfFull() {
	if len(r.recordsToWrite)+len(r.tasksToWrite) >= r.batchSize {
		_ = r.flushLocked()
	}
}

// Flush writes all the buffered rows in one transaction. After a failed
// write the recorder drops further rows and Flush keeps returning the first
// error.
func (r *Recorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.flushLocked()
}

func (r *Recorder) flushLocked() error {
	if r.err != nil {
		return r.err
	}
	if r.closed || (len(r.recordsToWrite) == 0 && len(r.tasksToWrite) == 0) {
		return nil
	}

	err := r.writeBatch()

	r.recordsToWrite = nil
	r.tasksToWrite = nil

	if err != nil {
		r.err = err
		return err
	}

	return nil
}

func (r *Recorder) writeBatch() error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := r.insertRows(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit trace rows: %w", err)
	}

	return nil
}

func (r *Recorder) insertRows(tx *sql.Tx) error {
	recordStmt, err := tx.Prepare(
		"insert into records (run_id, seq, time, kind, task, message, failure) values (?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare record insert: %w", err)
	}
	defer recordStmt.Close()

	for _, row := range r.recordsToWrite {
		rec := row.record
		_, err := recordStmt.Exec(row.runID, rec.Seq, int64(rec.Time), string(rec.Kind), rec.Task, rec.Message, rec.Failure)
		if err != nil {
			return fmt.Errorf("failed to insert record %d: %w", rec.Seq, err)
		}
	}

	taskStmt, err := tx.Prepare(
		"insert into tasks (run_id, seq, handle, name, kind, scheduled_at, ran_at, error) values (?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare task insert: %w", err)
	}
	defer taskStmt.Close()

	for _, row := range r.tasksToWrite {
		var errMsg any
		if row.err != "" {
			errMsg = row.err
		}
		_, err := taskStmt.Exec(row.runID, int64(row.seq), int64(row.handle), row.name, string(row.kind),
			int64(row.scheduledAt), int64(row.ranAt), errMsg)
		if err != nil {
			return fmt.Errorf("failed to insert task %s: %w", row.name, err)
		}
	}

	return nil
}

// Close flushes the buffered rows and closes the database. It returns the
// first write failure of the recorder, if any.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}

	flushErr := r.flushLocked()
	r.closed = true

	if err := r.db.Close(); err != nil && flushErr == nil {
		return fmt.Errorf("failed to close trace database: %w", err)
	}

	return flushErr
}

// LoadRecords reads back the records written for runID, in trace order
func (r *Recorder) LoadRecords(runID string) ([]simulation.Record, error) {
	if err := r.Flush(); err != nil {
		return nil, err
	}

	rows, err := r.db.Query(
		"select seq, time, kind, task, message, failure from records where run_id = ? order by seq", runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var records []simulation.Record
	for rows.Next() {
		var (
			rec  simulation.Record
			at   int64
			kind string
		)
		if err := rows.Scan(&rec.Seq, &at, &kind, &rec.Task, &rec.Message, &rec.Failure); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		rec.Time = simulation.VTime(at)
		rec.Kind = simulation.Kind(kind)
		records = append(records, rec)
	}

	return records, rows.Err()
}
