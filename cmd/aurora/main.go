// Command aurora renders an Aurora source document into stems, a master
// mix, a MIDI file, and a render.json manifest.
package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/aurora-lang/aurora/internal/render"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "aurora",
		Short: "Deterministic offline render pipeline for Aurora source files",
	}
	root.AddCommand(newRenderCmd())
	return root
}

func newRenderCmd() *cobra.Command {
	var (
		seed     int64
		sr       int
		outDir   string
		parallel bool
		debugLog string
		noTUI    bool
	)

	cmd := &cobra.Command{
		Use:   "render <file.aurora>",
		Short: "Render an Aurora source file to stems, a mix, MIDI, and render.json",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if debugLog != "" {
				f, err := os.Create(debugLog)
				if err != nil {
					return fmt.Errorf("open debug log: %w", err)
				}
				defer f.Close()
				log.SetOutput(f)
				log.SetFlags(log.LstdFlags | log.Lshortfile)
			} else {
				log.SetOutput(io.Discard)
			}

			source, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}

			opts := render.Options{
				Seed:       uint64(seed),
				SampleRate: sr,
				OutDir:     outDir,
				Parallel:   parallel,
			}

			if noTUI {
				result, err := render.Source(string(source), opts)
				if err != nil {
					return err
				}
				printReport(os.Stdout, result)
				return nil
			}

			return runWithProgress(string(source), opts)
		},
	}

	cmd.Flags().Int64Var(&seed, "seed", 0, "deterministic render seed")
	cmd.Flags().IntVar(&sr, "sr", 0, "override globals.sr (0 keeps the file's declared sample rate)")
	cmd.Flags().StringVar(&outDir, "out", ".", "output directory for renders/{stems,mix,midi,meta}")
	cmd.Flags().BoolVar(&parallel, "parallel", true, "render patch stems concurrently")
	cmd.Flags().StringVar(&debugLog, "debug", "", "if set, write debug logs to this file; empty disables logging")
	cmd.Flags().BoolVar(&noTUI, "no-tui", false, "skip the progress UI and print a plain report")

	return cmd
}
