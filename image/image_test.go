package image

import (
	"bytes"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/fxamacker/cbor/v2"

	"github.com/chazu/tuuvm/compiler"
	"github.com/chazu/tuuvm/corpus"
	"github.com/chazu/tuuvm/tuple"
	"github.com/chazu/tuuvm/vm"
)

func newContext(t *testing.T) *vm.Context {
	t.Helper()
	ctx, err := vm.NewContext(nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(ctx.Destroy)
	ctx.SetOutput(io.Discard)
	ctx.SetErrorOutput(io.Discard)
	compiler.New().Install(ctx)
	return ctx
}

func runMain(ctx *vm.Context) string {
	fn, _ := ctx.Global("main")
	return ctx.PrintString(ctx.Catch(tuple.Null, func() tuple.Tuple {
		return ctx.Apply(fn)
	}, func(e tuple.Tuple) tuple.Tuple { return e }))
}

func TestProgramsSurviveSaveAndLoad(t *testing.T) {
	for _, p := range corpus.All() {
		t.Run(p.Name, func(t *testing.T) {
			ctx := newContext(t)
			p.Install(ctx)
			ctx.SetGlobal("main", ctx.DefineFunction(p.Main))

			path := filepath.Join(t.TempDir(), "test.image")
			if err := Save(ctx, path); err != nil {
				t.Fatal(err)
			}
			loaded, err := Load(path, nil)
			if err != nil {
				t.Fatal(err)
			}
			defer loaded.Destroy()
			loaded.SetOutput(io.Discard)
			loaded.SetErrorOutput(io.Discard)

			// No compiler: every definition was compiled before saving.
			want := p.Result
			if p.Error != "" {
				want = p.Error
			}
			if got := runMain(loaded); got != want {
				t.Errorf("loaded image gives %s, want %s", got, want)
			}
			if loaded.SessionToken() == ctx.SessionToken() {
				t.Error("session token reused")
			}
		})
	}
}

func TestLoadedImageKeepsRunning(t *testing.T) {
	ctx := newContext(t)
	p, _ := corpus.Lookup("dictionaries")
	p.Install(ctx)
	ctx.SetGlobal("main", ctx.DefineFunction(p.Main))
	var buf bytes.Buffer
	if err := Encode(ctx, &buf); err != nil {
		t.Fatal(err)
	}
	loaded, err := Decode(&buf, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer loaded.Destroy()

	// Symbols keep their identity, so interning finds the saved ones.
	sym, ok := loaded.LookupSymbol("main")
	if !ok || sym != loaded.Intern("main") {
		t.Error("symbol table not restored")
	}
	for range 3 {
		if got := runMain(loaded); got != p.Result {
			t.Fatalf("run gives %s", got)
		}
		loaded.CollectGarbage()
	}
	loaded.SetGlobal("extra", tuple.FromSmallInteger(3))
	if v, _ := loaded.Global("extra"); v != tuple.FromSmallInteger(3) {
		t.Error("globals not writable after load")
	}
}

func TestDecodeRejectsForeignDocuments(t *testing.T) {
	if _, err := Decode(bytes.NewReader([]byte("not cbor at all")), nil); !errors.Is(err, ErrNotAnImage) {
		t.Errorf("garbage: %v", err)
	}
	data, err := encMode.Marshal(&document{Magic: "OTHER", Version: Version})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Decode(bytes.NewReader(data), nil); !errors.Is(err, ErrNotAnImage) {
		t.Errorf("wrong magic: %v", err)
	}
}

func TestUnknownPrimitiveFailsLoad(t *testing.T) {
	ctx := newContext(t)
	var buf bytes.Buffer
	if err := Encode(ctx, &buf); err != nil {
		t.Fatal(err)
	}
	var doc document
	if err := cbor.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatal(err)
	}
	doc.Primitives = append(doc.Primitives, "image.test.missing")
	data, err := encMode.Marshal(&doc)
	if err != nil {
		t.Fatal(err)
	}
	_, err = Decode(bytes.NewReader(data), nil)
	if !errors.Is(err, vm.ErrUnknownPrimitive) || !errors.Is(err, vm.ErrBadImage) {
		t.Errorf("err = %v", err)
	}
}

func TestEncodeNeedsCompilerForPendingDefinitions(t *testing.T) {
	ctx, err := vm.NewContext(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer ctx.Destroy()
	p, _ := corpus.Lookup("loops")
	ctx.SetGlobal("main", ctx.DefineFunction(p.Main))
	if err := Encode(ctx, io.Discard); !errors.Is(err, vm.ErrNoCompiler) {
		t.Errorf("err = %v", err)
	}
}
