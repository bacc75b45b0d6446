// Package corpus holds representative analyzed programs. Tests use them to
// check the interpreter and the jit against each other, and the CLI runs
// them by name.
package corpus

import (
	"sort"

	"github.com/chazu/tuuvm/ast"
	"github.com/chazu/tuuvm/tuple"
	"github.com/chazu/tuuvm/vm"
)

// Program is a set of global functions plus an entry point without
// arguments.
type Program struct {
	Name    string
	Summary string

	// Functions are bound as globals under their names before Main runs.
	Functions []*ast.FunctionDef
	Main      *ast.FunctionDef

	// Result is the print string of Main's value. When Error is set, Main
	// raises instead and Error is the print string of the exception.
	Result string
	Error  string
}

var builders = map[string]func() Program{
	"factorial":          factorialProgram,
	"factorialRecursive": factorialRecursiveProgram,
	"factorialNegative":  factorialNegativeProgram,
	"loops":              loopsProgram,
	"nestedLoops":        nestedLoopsProgram,
	"closures":           closuresProgram,
	"sends":              sendsProgram,
	"dictionaries":       dictionariesProgram,
	"exceptions":         exceptionsProgram,
	"nonLocalReturn":     nonLocalReturnProgram,
}

// Names returns the program names in sorted order.
func Names() []string {
	names := make([]string, 0, len(builders))
	for name := range builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup builds a fresh copy of the named program.
func Lookup(name string) (Program, bool) {
	build, ok := builders[name]
	if !ok {
		return Program{}, false
	}
	return build(), true
}

// All builds every program, sorted by name. Trees are never shared between
// calls, so each context may own its copy.
func All() []Program {
	var programs []Program
	for _, name := range Names() {
		programs = append(programs, builders[name]())
	}
	return programs
}

// Install binds the program's functions as globals.
func (p Program) Install(ctx *vm.Context) {
	for _, def := range p.Functions {
		ctx.SetGlobal(def.Name, ctx.DefineFunction(def))
	}
}

// Run installs p and applies its entry point.
func (p Program) Run(ctx *vm.Context) tuple.Tuple {
	p.Install(ctx)
	return ctx.Apply(ctx.DefineFunction(p.Main))
}

// ---------------------------------------------------------------------------
// Tree helpers
// ---------------------------------------------------------------------------

func fn(name string, argc int, captures []ast.Binding, body ...ast.Node) *ast.FunctionDef {
	return &ast.FunctionDef{Name: name, ArgumentCount: argc, Captures: captures, Body: ast.Seq(body...)}
}

func entry(body ...ast.Node) *ast.FunctionDef {
	return fn("main", 0, nil, body...)
}

func sym(s string) *ast.Literal { return ast.Lit(ast.Symbol(s)) }

func array(elems ...ast.Node) *ast.MakeArray { return &ast.MakeArray{Elements: elems} }

func slot(t ast.Node, i int64) *ast.SlotAt { return &ast.SlotAt{Tuple: t, Index: ast.Int(i)} }

func inc(b ast.Binding, by int64) *ast.Assignment {
	return ast.Assign(b, ast.Send(ast.Ref(b), "+", ast.Int(by)))
}

// ---------------------------------------------------------------------------
// Factorial
// ---------------------------------------------------------------------------

// factorial is iterative and rejects negative arguments.
func factorial() *ast.FunctionDef {
	n := ast.Arg("n", 0)
	result, i := ast.Local("result", true), ast.Local("i", true)
	return fn("factorial", 1, nil,
		ast.Cond(ast.Send(ast.Ref(n), "<", ast.Int(0)),
			ast.Send(ast.Ref(n), "error:", ast.Str("negative argument")), nil),
		ast.Define(result, ast.Int(1)),
		ast.Define(i, ast.Ref(n)),
		ast.Loop(ast.Send(ast.Ref(i), ">", ast.Int(1)),
			ast.Seq(
				ast.Assign(result, ast.Send(ast.Ref(result), "*", ast.Ref(i))),
				inc(i, -1)),
			nil),
		ast.Ret(ast.Ref(result)),
	)
}

func factorialRecursive() *ast.FunctionDef {
	n := ast.Arg("n", 0)
	return fn("factorialRecursive", 1, nil,
		ast.Cond(ast.Send(ast.Ref(n), "<", ast.Int(0)),
			ast.Send(ast.Ref(n), "error:", ast.Str("negative argument")), nil),
		ast.Cond(ast.Send(ast.Ref(n), "<=", ast.Int(1)),
			ast.Int(1),
			ast.Send(ast.Ref(n), "*",
				ast.Apply(ast.Global("factorialRecursive"), ast.Send(ast.Ref(n), "-", ast.Int(1))))),
	)
}

func factorialProgram() Program {
	return Program{
		Name:      "factorial",
		Summary:   "iterative factorial past the small integer range",
		Functions: []*ast.FunctionDef{factorial()},
		Main: entry(array(
			ast.Apply(ast.Global("factorial"), ast.Int(0)),
			ast.Apply(ast.Global("factorial"), ast.Int(10)),
			ast.Apply(ast.Global("factorial"), ast.Int(20)),
		)),
		Result: "#(1 3628800 2432902008176640000)",
	}
}

func factorialRecursiveProgram() Program {
	return Program{
		Name:      "factorialRecursive",
		Summary:   "recursive factorial through a global, into large integers",
		Functions: []*ast.FunctionDef{factorialRecursive()},
		Main:      entry(ast.Apply(ast.Global("factorialRecursive"), ast.Int(30))),
		Result:    "265252859812191058636308480000000",
	}
}

func factorialNegativeProgram() Program {
	return Program{
		Name:      "factorialNegative",
		Summary:   "factorial of a negative number raises an unhandled Error",
		Functions: []*ast.FunctionDef{factorial()},
		Main:      entry(ast.Apply(ast.Global("factorial"), ast.Int(-1))),
		Error:     "Error: negative argument",
	}
}

// ---------------------------------------------------------------------------
// Loops
// ---------------------------------------------------------------------------

func loopsProgram() Program {
	i, sum := ast.Local("i", true), ast.Local("sum", true)
	return Program{
		Name:    "loops",
		Summary: "while loop with continue and break",
		Main: entry(
			ast.Define(i, ast.Int(0)),
			ast.Define(sum, ast.Int(0)),
			ast.Loop(ast.Send(ast.Ref(i), "<", ast.Int(1000)),
				ast.Seq(
					inc(i, 1),
					ast.Cond(ast.Send(ast.Send(ast.Ref(i), "\\\\", ast.Int(2)), "=", ast.Int(0)), &ast.Continue{}, nil),
					ast.Cond(ast.Send(ast.Ref(i), ">", ast.Int(99)), &ast.Break{}, nil),
					ast.Assign(sum, ast.Send(ast.Ref(sum), "+", ast.Ref(i)))),
				nil),
			ast.Ref(sum),
		),
		Result: "2500",
	}
}

func nestedLoopsProgram() Program {
	a, b, total := ast.Local("a", true), ast.Local("b", true), ast.Local("total", true)
	return Program{
		Name:    "nestedLoops",
		Summary: "nested loops with step clauses",
		Main: entry(
			ast.Define(total, ast.Int(0)),
			ast.Define(a, ast.Int(1)),
			ast.Loop(ast.Send(ast.Ref(a), "<=", ast.Int(10)),
				ast.Seq(
					ast.Define(b, ast.Int(1)),
					ast.Loop(ast.Send(ast.Ref(b), "<=", ast.Int(10)),
						ast.Assign(total, ast.Send(ast.Ref(total), "+", ast.Send(ast.Ref(a), "*", ast.Ref(b)))),
						inc(b, 1))),
				inc(a, 1)),
			ast.Ref(total),
		),
		Result: "3025",
	}
}

// ---------------------------------------------------------------------------
// Closures
// ---------------------------------------------------------------------------

func closuresProgram() Program {
	count := ast.Local("count", true)
	shared := ast.Capture("count", 0, true)
	makeCounter := fn("makeCounter", 0, nil,
		ast.Define(count, ast.Int(0)),
		ast.Fn(fn("counter", 0, []ast.Binding{count}, inc(shared, 1))),
	)

	x := ast.Arg("x", 0)
	makeAdder := fn("makeAdder", 1, nil,
		ast.Fn(fn("adder", 1, []ast.Binding{x},
			ast.Send(ast.Ref(ast.Capture("x", 0, false)), "+", ast.Ref(ast.Arg("y", 0))))),
	)

	c, d := ast.Local("c", false), ast.Local("d", false)
	return Program{
		Name:      "closures",
		Summary:   "counters sharing a boxed capture, adders capturing an argument",
		Functions: []*ast.FunctionDef{makeCounter, makeAdder},
		Main: entry(
			ast.Define(c, ast.Apply(ast.Global("makeCounter"))),
			ast.Define(d, ast.Apply(ast.Global("makeCounter"))),
			ast.Apply(ast.Ref(c)),
			ast.Apply(ast.Ref(c)),
			ast.Apply(ast.Ref(d)),
			array(
				ast.Apply(ast.Ref(c)),
				ast.Apply(ast.Ref(d)),
				ast.Apply(ast.Apply(ast.Global("makeAdder"), ast.Int(10)), ast.Int(5)),
			),
		),
		Result: "#(3 2 15)",
	}
}

// ---------------------------------------------------------------------------
// Sends
// ---------------------------------------------------------------------------

func sendsProgram() Program {
	self := ast.Arg("self", 0)
	sum := fn("Point>>sum", 1, nil,
		ast.Send(slot(ast.Ref(self), 0), "+", slot(ast.Ref(self), 1)))
	sum3 := fn("Point3D>>sum", 1, nil,
		ast.Send(ast.SuperSend(ast.Global("Point"), ast.Ref(self), "sum"), "+", slot(ast.Ref(self), 2)))

	return Program{
		Name:    "sends",
		Summary: "user types, installed methods, super sends and cache invalidation",
		Main: entry(
			ast.Send(ast.Global("Object"), "subtype:slots:", ast.Str("Point"), array(ast.Str("x"), ast.Str("y"))),
			ast.Send(ast.Global("Point"), "at:installMethod:", sym("sum"), ast.Fn(sum)),
			ast.Send(ast.Global("Point"), "subtype:slots:", ast.Str("Point3D"), array(ast.Str("z"))),
			ast.Send(ast.Global("Point3D"), "at:installMethod:", sym("sum"), ast.Fn(sum3)),
			array(
				ast.Send(&ast.MakeTuple{Type: ast.Global("Point"), Slots: []ast.Node{ast.Int(3), ast.Int(4)}}, "sum"),
				ast.Send(&ast.MakeTuple{Type: ast.Global("Point3D"), Slots: []ast.Node{ast.Int(1), ast.Int(2), ast.Int(3)}}, "sum"),
				ast.Send(ast.Int(7), "respondsTo:", sym("sum")),
				ast.Send(ast.Send(ast.Global("Point3D"), "new"), "isKindOf:", ast.Global("Point")),
			),
		),
		Result: "#(7 6 false true)",
	}
}

func dictionariesProgram() Program {
	d := ast.Local("d", false)
	return Program{
		Name:    "dictionaries",
		Summary: "dictionary literals with string keys",
		Main: entry(
			ast.Define(d, &ast.MakeDictionary{
				Keys:   []ast.Node{ast.Str("one"), ast.Str("two"), sym("three")},
				Values: []ast.Node{ast.Int(1), ast.Int(2), ast.Int(3)},
			}),
			ast.Send(ast.Ref(d), "at:put:", ast.Str("four"), ast.Int(4)),
			array(
				ast.Send(ast.Ref(d), "at:", ast.Str("two")),
				ast.Send(ast.Ref(d), "at:", sym("three")),
				ast.Send(ast.Ref(d), "size"),
				ast.Send(ast.Ref(d), "includesKey:", ast.Str("five")),
			),
		),
		Result: "#(2 3 4 false)",
	}
}

// ---------------------------------------------------------------------------
// Exceptions and non-local exits
// ---------------------------------------------------------------------------

func messageTextHandler(name string) *ast.Lambda {
	return ast.Fn(fn(name, 1, nil, ast.Send(ast.Ref(ast.Arg("e", 0)), "messageText")))
}

func exceptionsProgram() Program {
	cleanups := ast.Local("cleanups", true)
	shared := ast.Capture("cleanups", 0, true)
	return Program{
		Name:      "exceptions",
		Summary:   "on:do: filtering, ensure: blocks and errors raised by user code",
		Functions: []*ast.FunctionDef{factorial()},
		Main: entry(
			ast.Define(cleanups, ast.Int(0)),
			ast.Send(ast.Fn(fn("body", 0, nil, ast.Int(1))), "ensure:",
				ast.Fn(fn("cleanup", 0, []ast.Binding{cleanups}, inc(shared, 1)))),
			ast.Send(
				ast.Fn(fn("outer", 0, []ast.Binding{cleanups},
					ast.Send(ast.Fn(fn("failing", 0, nil, ast.Send(ast.Int(1), "//", ast.Int(0)))), "ensure:",
						ast.Fn(fn("cleanup", 0, []ast.Binding{ast.Capture("cleanups", 0, true)},
							inc(ast.Capture("cleanups", 0, true), 10)))))),
				"on:do:", ast.Global("ZeroDivide"), ast.Fn(fn("ignore", 0, nil, ast.Lit(nil)))),
			array(
				ast.Send(ast.Fn(fn("divide", 0, nil, ast.Send(ast.Int(1), "//", ast.Int(0)))),
					"on:do:", ast.Global("ZeroDivide"), messageTextHandler("zeroDivideHandler")),
				ast.Send(ast.Fn(fn("negative", 0, nil, ast.Apply(ast.Global("factorial"), ast.Int(-1)))),
					"on:do:", ast.Global("Error"), messageTextHandler("errorHandler")),
				ast.Send(
					ast.Fn(fn("nested", 0, nil,
						ast.Send(ast.Fn(fn("inner", 0, nil, ast.Send(ast.Int(1), "frobnicate"))),
							"on:do:", ast.Global("ZeroDivide"), messageTextHandler("wrongHandler")))),
					"on:do:", ast.Global("MessageNotUnderstood"),
					ast.Fn(fn("dnuHandler", 1, nil, ast.Send(ast.Ref(ast.Arg("e", 0)), "selector")))),
				ast.Ref(cleanups),
			),
		),
		Result: "#('division by zero' 'negative argument' #frobnicate 11)",
	}
}

func nonLocalReturnProgram() Program {
	arr, limit := ast.Arg("arr", 0), ast.Arg("limit", 1)
	rt := ast.Arg("rt", 0)
	elem := ast.Arg("x", 0)

	visit := fn("visit", 1, []ast.Binding{rt, ast.Capture("limit", 1, false)},
		ast.Cond(ast.Send(ast.Ref(elem), ">", ast.Ref(ast.Capture("limit", 1, false))),
			ast.Send(ast.Ref(ast.Capture("rt", 0, false)), "return:", ast.Ref(elem)), nil))
	search := fn("search", 1, []ast.Binding{arr, limit},
		ast.Send(ast.Ref(ast.Capture("arr", 0, false)), "do:", ast.Fn(visit)),
		ast.Lit(nil))
	findFirst := fn("findFirst", 2, nil, ast.Send(ast.Fn(search), "withReturnTarget"))

	return Program{
		Name:      "nonLocalReturn",
		Summary:   "returning from an enclosing function out of an iteration",
		Functions: []*ast.FunctionDef{findFirst},
		Main: entry(array(
			ast.Apply(ast.Global("findFirst"), array(ast.Int(1), ast.Int(5), ast.Int(2), ast.Int(8)), ast.Int(4)),
			ast.Apply(ast.Global("findFirst"), array(ast.Int(1), ast.Int(2)), ast.Int(4)),
		)),
		Result: "#(5 nil)",
	}
}
