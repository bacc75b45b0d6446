package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chazu/tuuvm/bytecode"
	"github.com/chazu/tuuvm/config"
	"github.com/chazu/tuuvm/tuple"
	"github.com/chazu/tuuvm/vm"
)

var disasmCmd = &cobra.Command{
	Use:   "disasm <program>",
	Short: "Compile a program and print its bytecode",
	Args:  cobra.ExactArgs(1),
	RunE:  runDisasm,
}

func runDisasm(_ *cobra.Command, args []string) error {
	programs, err := lookupPrograms(args)
	if err != nil {
		return err
	}
	p := programs[0]

	c := *cfg
	c.JIT.Mode = config.JITOff
	s, err := newSession(&c, "disasm "+p.Name)
	if err != nil {
		return err
	}
	defer s.close()
	ctx := s.ctx

	p.Install(ctx)
	ctx.SetGlobal(p.Main.Name, ctx.DefineFunction(p.Main))
	names := []string{p.Main.Name}
	for _, def := range p.Functions {
		names = append(names, def.Name)
	}

	// Compilation allocates but never collects, so the tuples below stay
	// valid for the whole listing.
	seen := map[tuple.Tuple]bool{}
	for _, name := range names {
		fn, _ := ctx.Global(name)
		bc, err := ctx.FunctionBytecode(fn)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if err := disassemble(os.Stdout, ctx, name, bc, seen); err != nil {
			return err
		}
	}
	return nil
}

// disassemble prints bc and then every function definition among its
// literals.
func disassemble(w io.Writer, ctx *vm.Context, name string, bc tuple.Tuple, seen map[tuple.Tuple]bool) error {
	if seen[bc] {
		return nil
	}
	seen[bc] = true

	sizes := ctx.VectorSizes(bc)
	literals := ctx.ArrayElements(ctx.Literals(bc))
	describe := func(o bytecode.Operand) string {
		if i := o.Index(); i < len(literals) {
			return ctx.PrintString(literals[i])
		}
		return ""
	}

	headerColor.Fprintf(w, "%s", name)
	fmt.Fprintln(w, commentColor.Sprintf("  ; %d arguments, %d captures, %d locals, %d literals",
		sizes.Arguments, sizes.Captures, sizes.Locals, sizes.Literals))
	for _, line := range strings.Split(bytecode.Disassemble(ctx.Instructions(bc), describe), "\n") {
		fmt.Fprintln(w, colorizeLine(line))
	}
	fmt.Fprintln(w)

	for _, lit := range literals {
		if !ctx.IsKindOfWellKnown(lit, vm.FunctionDefinitionType) {
			continue
		}
		inner, err := ctx.CompileDefinition(lit)
		if err != nil {
			return err
		}
		innerName := ctx.StringValue(ctx.Heap().Slot(lit, vm.DefinitionName))
		if err := disassemble(w, ctx, name+"/"+innerName, inner, seen); err != nil {
			return err
		}
	}
	return nil
}

// colorizeLine highlights the mnemonic and dims literal descriptions.
func colorizeLine(line string) string {
	if len(line) < 6 {
		return line
	}
	pc, rest := line[:6], line[6:]
	mnemonic, operands, found := strings.Cut(rest, " ")
	if !found {
		return commentColor.Sprint(pc) + opcodeColor.Sprint(mnemonic)
	}
	if i := strings.Index(operands, " ("); i >= 0 {
		operands = operands[:i] + commentColor.Sprint(operands[i:])
	}
	return commentColor.Sprint(pc) + opcodeColor.Sprint(mnemonic) + " " + operands
}
