// Package profile records GC cycles and JIT compilations in a SQLite
// database so runs can be compared over time.
package profile

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/tuuvm/config"
	"github.com/chazu/tuuvm/heap"
	"github.com/chazu/tuuvm/vm"
)

var log = commonlog.GetLogger("tuuvm.profile")

// ErrNoDatabase is returned by OpenConfigured when no database is configured.
var ErrNoDatabase = errors.New("profile: no database configured")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	label TEXT NOT NULL,
	started_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS gc_cycles (
	run INTEGER NOT NULL REFERENCES runs(id),
	cycle INTEGER NOT NULL,
	live_objects INTEGER NOT NULL,
	live_bytes INTEGER NOT NULL,
	freed_objects INTEGER NOT NULL,
	freed_bytes INTEGER NOT NULL,
	weak_cleared INTEGER NOT NULL,
	chunks INTEGER NOT NULL,
	chunks_released INTEGER NOT NULL,
	duration_ns INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS jit_compilations (
	run INTEGER NOT NULL REFERENCES runs(id),
	function TEXT NOT NULL,
	arch TEXT NOT NULL,
	ops INTEGER NOT NULL,
	code_size INTEGER NOT NULL,
	session INTEGER NOT NULL,
	duration_ns INTEGER NOT NULL,
	error TEXT
);
`

// Store is a statistics database. One Store may record several runs.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// Observers are called from the mutator; one connection keeps writes
	// ordered.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// OpenConfigured opens the database named by cfg.
func OpenConfigured(cfg *config.Config) (*Store, error) {
	path := cfg.ProfilePath()
	if path == "" {
		return nil, ErrNoDatabase
	}
	return Open(path)
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Path returns the database file.
func (s *Store) Path() string { return s.path }

// Begin starts a run and returns a recorder for it.
func (s *Store) Begin(label string) (*Recorder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec("INSERT INTO runs (label, started_at) VALUES (?, ?)", label, time.Now().UnixNano())
	if err != nil {
		return nil, fmt.Errorf("starting run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &Recorder{store: s, run: id}, nil
}

// Recorder is a vm.Observer writing into one run. Write errors are logged
// and counted; they never reach the context.
type Recorder struct {
	store  *Store
	run    int64
	failed int
}

var _ vm.Observer = (*Recorder)(nil)

// Run returns the run id.
func (r *Recorder) Run() int64 { return r.run }

// Failed returns the number of events that could not be written.
func (r *Recorder) Failed() int { return r.failed }

func (r *Recorder) exec(query string, args ...any) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, err := r.store.db.Exec(query, args...); err != nil {
		r.failed++
		log.Warningf("profile write: %s", err)
	}
}

func (r *Recorder) GCCycle(st heap.CycleStats) {
	r.exec(`INSERT INTO gc_cycles
		(run, cycle, live_objects, live_bytes, freed_objects, freed_bytes, weak_cleared, chunks, chunks_released, duration_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.run, int64(st.Cycle), st.LiveObjects, st.LiveBytes, st.FreedObjects, st.FreedBytes,
		st.WeakCleared, st.Chunks, st.ChunksReleased, st.Duration.Nanoseconds())
}

func (r *Recorder) JITCompiled(ev vm.JITEvent) {
	var errText sql.NullString
	if ev.Err != nil {
		errText = sql.NullString{String: ev.Err.Error(), Valid: true}
	}
	r.exec(`INSERT INTO jit_compilations
		(run, function, arch, ops, code_size, session, duration_ns, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.run, ev.Function, ev.Arch, ev.Ops, ev.CodeSize, int64(ev.Session), ev.Duration.Nanoseconds(), errText)
}
