package profile

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrRunNotFound is returned for unknown run ids.
var ErrRunNotFound = errors.New("profile: run not found")

// RunSummary aggregates one run.
type RunSummary struct {
	ID         int64
	Label      string
	StartedAt  time.Time
	GCCycles   int
	FreedBytes int64
	GCTime     time.Duration
	Compiled   int
	JITFailed  int
	JITTime    time.Duration
}

// Runs lists the most recent runs first, at most limit of them.
func (s *Store) Runs(limit int) ([]RunSummary, error) {
	rows, err := s.db.Query("SELECT id FROM runs ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]RunSummary, 0, len(ids))
	for _, id := range ids {
		sum, err := s.Summary(id)
		if err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, nil
}

// Summary aggregates the run id.
func (s *Store) Summary(id int64) (RunSummary, error) {
	sum := RunSummary{ID: id}
	var started int64
	err := s.db.QueryRow("SELECT label, started_at FROM runs WHERE id = ?", id).Scan(&sum.Label, &started)
	if errors.Is(err, sql.ErrNoRows) {
		return sum, fmt.Errorf("%w: %d", ErrRunNotFound, id)
	} else if err != nil {
		return sum, fmt.Errorf("querying run: %w", err)
	}
	sum.StartedAt = time.Unix(0, started)

	var gcNanos int64
	err = s.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(freed_bytes), 0), COALESCE(SUM(duration_ns), 0)
		FROM gc_cycles WHERE run = ?`, id).Scan(&sum.GCCycles, &sum.FreedBytes, &gcNanos)
	if err != nil {
		return sum, fmt.Errorf("querying gc cycles: %w", err)
	}
	sum.GCTime = time.Duration(gcNanos)

	var jitNanos int64
	err = s.db.QueryRow(`SELECT COUNT(*), COUNT(error), COALESCE(SUM(duration_ns), 0)
		FROM jit_compilations WHERE run = ?`, id).Scan(&sum.Compiled, &sum.JITFailed, &jitNanos)
	if err != nil {
		return sum, fmt.Errorf("querying jit compilations: %w", err)
	}
	sum.Compiled -= sum.JITFailed
	sum.JITTime = time.Duration(jitNanos)
	return sum, nil
}

// Compilation is one recorded JIT compilation.
type Compilation struct {
	Function string
	Arch     string
	Ops      int
	CodeSize int
	Duration time.Duration
	Err      string
}

// Compilations lists the compilations of run id in recording order.
func (s *Store) Compilations(id int64) ([]Compilation, error) {
	rows, err := s.db.Query(`SELECT function, arch, ops, code_size, duration_ns, COALESCE(error, '')
		FROM jit_compilations WHERE run = ? ORDER BY rowid`, id)
	if err != nil {
		return nil, fmt.Errorf("querying jit compilations: %w", err)
	}
	defer rows.Close()

	var out []Compilation
	for rows.Next() {
		var c Compilation
		var nanos int64
		if err := rows.Scan(&c.Function, &c.Arch, &c.Ops, &c.CodeSize, &nanos, &c.Err); err != nil {
			return nil, err
		}
		c.Duration = time.Duration(nanos)
		out = append(out, c)
	}
	return out, rows.Err()
}
