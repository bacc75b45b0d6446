package profile

import (
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/chazu/tuuvm/compiler"
	"github.com/chazu/tuuvm/config"
	"github.com/chazu/tuuvm/corpus"
	"github.com/chazu/tuuvm/heap"
	"github.com/chazu/tuuvm/jit"
	"github.com/chazu/tuuvm/vm"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "stats", "profile.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecorderWritesEvents(t *testing.T) {
	s := openStore(t)
	r, err := s.Begin("unit")
	if err != nil {
		t.Fatal(err)
	}
	r.GCCycle(heap.CycleStats{Cycle: 1, FreedBytes: 64, Duration: time.Millisecond})
	r.GCCycle(heap.CycleStats{Cycle: 2, FreedBytes: 32, Duration: time.Millisecond})
	r.JITCompiled(vm.JITEvent{Function: "f", Arch: "threaded", Ops: 4, Duration: time.Microsecond})
	r.JITCompiled(vm.JITEvent{Function: "g", Arch: "amd64", Err: errors.New("boom")})
	if r.Failed() != 0 {
		t.Fatalf("%d failed writes", r.Failed())
	}

	sum, err := s.Summary(r.Run())
	if err != nil {
		t.Fatal(err)
	}
	if sum.Label != "unit" || sum.GCCycles != 2 || sum.FreedBytes != 96 {
		t.Errorf("gc summary = %+v", sum)
	}
	if sum.GCTime != 2*time.Millisecond {
		t.Errorf("gc time = %v", sum.GCTime)
	}
	if sum.Compiled != 1 || sum.JITFailed != 1 {
		t.Errorf("jit summary = %+v", sum)
	}

	comps, err := s.Compilations(r.Run())
	if err != nil {
		t.Fatal(err)
	}
	if len(comps) != 2 || comps[0].Function != "f" || comps[1].Err != "boom" {
		t.Errorf("compilations = %+v", comps)
	}
}

func TestRunsAreSeparate(t *testing.T) {
	s := openStore(t)
	a, _ := s.Begin("a")
	b, _ := s.Begin("b")
	a.GCCycle(heap.CycleStats{Cycle: 1})
	b.JITCompiled(vm.JITEvent{Function: "f"})

	runs, err := s.Runs(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].Label != "b" || runs[1].Label != "a" {
		t.Fatalf("runs = %+v", runs)
	}
	if runs[0].GCCycles != 0 || runs[0].Compiled != 1 || runs[1].GCCycles != 1 || runs[1].Compiled != 0 {
		t.Errorf("runs mixed up: %+v", runs)
	}
	if _, err := s.Summary(99); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("err = %v", err)
	}
}

func TestReopenKeepsRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	r, _ := s.Begin("first")
	r.GCCycle(heap.CycleStats{Cycle: 1})
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	runs, err := s.Runs(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].Label != "first" || runs[0].GCCycles != 1 {
		t.Errorf("runs = %+v", runs)
	}
}

func TestOpenConfigured(t *testing.T) {
	cfg := config.Default()
	cfg.Profile.Database = ""
	if _, err := OpenConfigured(cfg); !errors.Is(err, ErrNoDatabase) {
		t.Errorf("err = %v", err)
	}
	cfg.Profile.Database = filepath.Join(t.TempDir(), "p.db")
	s, err := OpenConfigured(cfg)
	if err != nil {
		t.Fatal(err)
	}
	s.Close()
}

func TestContextReportsToRecorder(t *testing.T) {
	s := openStore(t)
	r, _ := s.Begin("loops")

	cfg := config.Default()
	cfg.JIT.Mode = config.JITEager
	ctx, err := vm.NewContext(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer ctx.Destroy()
	ctx.SetOutput(io.Discard)
	compiler.New().Install(ctx)
	jit.New(jit.ArchThreaded).Install(ctx)
	ctx.AddObserver(r)

	p, _ := corpus.Lookup("loops")
	p.Run(ctx)
	ctx.CollectGarbage()

	sum, err := s.Summary(r.Run())
	if err != nil {
		t.Fatal(err)
	}
	if sum.GCCycles == 0 {
		t.Error("no gc cycle recorded")
	}
	if sum.Compiled == 0 {
		t.Error("no compilation recorded")
	}
}
