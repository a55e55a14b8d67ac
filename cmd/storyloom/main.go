// Command storyloom plans and writes multi-chapter fiction with a language
// model, in one batch or interactively chapter by chapter.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

const usage = `usage: storyloom <command> [flags]

commands:
  generate     write a whole story in one run
  interactive  plan, revise and write chapter by chapter
  resume       continue a saved interactive session
  export       write manuscript.md and story.yaml for a run directory
  runs         list archived runs

Run "storyloom <command> -h" for the flags of a command.
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, "storyloom:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return errors.New("no command given")
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "generate":
		return generateCmd(ctx, rest)
	case "interactive":
		return interactiveCmd(ctx, rest)
	case "resume":
		return resumeCmd(ctx, rest)
	case "export":
		return exportCmd(ctx, rest)
	case "runs":
		return runsCmd(ctx, rest)
	case "help", "-h", "--help":
		fmt.Print(usage)
		return nil
	}
	fmt.Fprint(os.Stderr, usage)
	return fmt.Errorf("unknown command %q", cmd)
}
