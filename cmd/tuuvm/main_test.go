package main

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"

	"github.com/chazu/tuuvm/config"
	"github.com/chazu/tuuvm/corpus"
	"github.com/chazu/tuuvm/image"
	"github.com/chazu/tuuvm/profile"
)

func TestVerifyAllPrograms(t *testing.T) {
	programs := corpus.All()
	verdicts, err := verifyPrograms(context.Background(), config.Default(), programs, 4)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range verdicts {
		if !v.ok(programs[i]) {
			t.Errorf("%s: %+v", v.Program, v)
		}
	}
}

func TestVerifyStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := verifyPrograms(ctx, config.Default(), corpus.All(), 1); err == nil {
		t.Error("cancelled verification succeeded")
	}
}

func TestLookupPrograms(t *testing.T) {
	all, err := lookupPrograms(nil)
	if err != nil || len(all) != len(corpus.Names()) {
		t.Fatalf("all programs: %d, %v", len(all), err)
	}
	if _, err := lookupPrograms([]string{"factorial", "nope"}); err == nil {
		t.Error("unknown program accepted")
	}
}

func TestSessionRecordsProfile(t *testing.T) {
	c := config.Default()
	c.Profile.Database = filepath.Join(t.TempDir(), "profile.db")
	s, err := newSession(c, "test")
	if err != nil {
		t.Fatal(err)
	}
	p, _ := corpus.Lookup("factorial")
	if out := runProgram(s.ctx, p); !out.matches(p) {
		t.Errorf("outcome %+v", out)
	}
	s.ctx.CollectGarbage()
	id := s.recorder.Run()
	s.close()

	store, err := profile.Open(c.Profile.Database)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	sum, err := store.Summary(id)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Label != "test" || sum.GCCycles == 0 {
		t.Errorf("summary %+v", sum)
	}
}

func TestSavedImageRuns(t *testing.T) {
	cfg = config.Default()
	path := filepath.Join(t.TempDir(), "closures.image")
	if err := runImageSave(nil, []string{"closures", path}); err != nil {
		t.Fatal(err)
	}
	ctx, err := image.Load(path, cfg)
	if err != nil {
		t.Fatal(err)
	}
	ctx.Destroy()
	if err := runImageRun(nil, []string{path}); err != nil {
		t.Fatal(err)
	}
}

func TestColorizeLine(t *testing.T) {
	color.NoColor = true
	line := "0004  send             L0, K1 (#+), L0"
	if got := colorizeLine(line); got != line {
		t.Errorf("colorizeLine changed text: %q", got)
	}
	if got := colorizeLine("0000"); got != "0000" {
		t.Errorf("short line: %q", got)
	}
	if !strings.HasPrefix(colorizeLine("0010  return           L1"), "0010  return") {
		t.Error("mnemonic lost")
	}
}
