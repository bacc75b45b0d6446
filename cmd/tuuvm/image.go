package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chazu/tuuvm/image"
	"github.com/chazu/tuuvm/jit"
	"github.com/chazu/tuuvm/tuple"
)

var imageCmd = &cobra.Command{
	Use:   "image",
	Short: "Save and run heap images",
}

var imageSaveCmd = &cobra.Command{
	Use:   "save <program> <file>",
	Short: "Install a program and save the context as an image",
	Args:  cobra.ExactArgs(2),
	RunE:  runImageSave,
}

var imageRunCmd = &cobra.Command{
	Use:   "run <file>",
	Short: "Load an image and apply its main function",
	Args:  cobra.ExactArgs(1),
	RunE:  runImageRun,
}

func init() {
	imageCmd.AddCommand(imageSaveCmd)
	imageCmd.AddCommand(imageRunCmd)
}

func runImageSave(_ *cobra.Command, args []string) error {
	programs, err := lookupPrograms(args[:1])
	if err != nil {
		return err
	}
	p := programs[0]
	s, err := newSession(cfg, "image save "+p.Name)
	if err != nil {
		return err
	}
	defer s.close()

	p.Install(s.ctx)
	s.ctx.SetGlobal("main", s.ctx.DefineFunction(p.Main))
	if err := image.Save(s.ctx, args[1]); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "saved %s to %s\n", p.Name, args[1])
	return nil
}

func runImageRun(_ *cobra.Command, args []string) error {
	ctx, err := image.Load(args[0], cfg)
	if err != nil {
		return err
	}
	defer ctx.Destroy()
	// Native code is never saved; a fresh JIT recompiles as needed.
	jit.New(cfg.JIT.Arch).Install(ctx)

	fn, ok := ctx.Global("main")
	if !ok {
		return fmt.Errorf("%s: image has no main global", args[0])
	}
	var out outcome
	result := ctx.Catch(tuple.Null, func() tuple.Tuple {
		return ctx.Apply(fn)
	}, func(e tuple.Tuple) tuple.Tuple {
		out.Raised = true
		return e
	})
	out.Value = ctx.PrintString(result)
	printResult(args[0], out)
	return nil
}
