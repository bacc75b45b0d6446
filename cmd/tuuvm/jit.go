package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chazu/tuuvm/config"
	"github.com/chazu/tuuvm/jit"
)

var jitCmd = &cobra.Command{
	Use:   "jit",
	Short: "Inspect native code",
}

var jitDumpCmd = &cobra.Command{
	Use:   "dump <program>",
	Short: "Compile a program eagerly and print the lowered ops and machine code",
	Args:  cobra.ExactArgs(1),
	RunE:  runJITDump,
}

var jitShowCmd = &cobra.Command{
	Use:   "show <file>",
	Short: "Print the images of an exported code file",
	Args:  cobra.ExactArgs(1),
	RunE:  runJITShow,
}

func init() {
	jitDumpCmd.Flags().StringP("output", "o", "", "also export the native images to this file")
	jitDumpCmd.Flags().String("cache", "", "code cache directory")
	jitCmd.AddCommand(jitDumpCmd)
	jitCmd.AddCommand(jitShowCmd)
}

func runJITDump(cmd *cobra.Command, args []string) error {
	programs, err := lookupPrograms(args)
	if err != nil {
		return err
	}
	p := programs[0]

	c := *cfg
	c.JIT.Mode = config.JITEager
	s, err := newSession(&c, "jit dump "+p.Name)
	if err != nil {
		return err
	}
	defer s.close()
	if dir, _ := cmd.Flags().GetString("cache"); dir != "" {
		if s.jit.Cache, err = jit.OpenCodeCache(dir); err != nil {
			return err
		}
	}

	out := runProgram(s.ctx, p)
	printResult(p.Name, out)

	var images []*jit.NativeImage
	for _, name := range s.jit.Names() {
		prog, _ := s.jit.Lookup(name)
		headerColor.Fprintln(os.Stdout, name)
		fmt.Fprintln(os.Stdout, prog.Function().Listing())
		if img := prog.Image(); img != nil {
			fmt.Fprintln(os.Stdout, commentColor.Sprintf("; %s, %d bytes", img.Arch, len(img.Code)))
			fmt.Fprintln(os.Stdout, img.Dump())
			images = append(images, img)
		}
		fmt.Fprintln(os.Stdout)
	}

	output, _ := cmd.Flags().GetString("output")
	if output == "" {
		return nil
	}
	f, err := os.Create(output)
	if err != nil {
		return err
	}
	if err := jit.Export(f, images); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "exported %d images to %s\n", len(images), output)
	return nil
}

func runJITShow(_ *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()
	images, err := jit.Import(f)
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}
	for _, img := range images {
		headerColor.Fprintln(os.Stdout, img.Function)
		fmt.Fprintln(os.Stdout, img.Dump())
	}
	return nil
}
