package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/vampirenirmal/storyloom/internal/core"
	"github.com/vampirenirmal/storyloom/internal/export"
	"github.com/vampirenirmal/storyloom/internal/phase/fiction"
	"github.com/vampirenirmal/storyloom/internal/tui"
)

// storyFlags are shared by generate and interactive.
type storyFlags struct {
	premise  string
	genre    string
	chapters int
	dryRun   bool
}

func (f *storyFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.premise, "premise", "", "story premise (required)")
	fs.StringVar(&f.genre, "genre", "", "genre, e.g. Fantasy (required)")
	fs.IntVar(&f.chapters, "chapters", 0, "number of chapters, 1-10 (default from config)")
	fs.BoolVar(&f.dryRun, "dry-run", false, "use canned model output instead of a provider")
}

func (f *storyFlags) request(a *app) core.RunRequest {
	chapters := f.chapters
	if chapters == 0 {
		chapters = a.cfg.Story.DefaultChapters
	}
	return core.RunRequest{Premise: f.premise, Genre: f.genre, Chapters: chapters}
}

func generateCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	var sf storyFlags
	sf.register(fs)
	coherence := fs.Bool("coherence", false, "run a coherence check after the last chapter")
	doExport := fs.Bool("export", false, "write manuscript.md and story.yaml when done")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := newApp(ctx, appOptions{dryRun: sf.dryRun})
	if err != nil {
		return err
	}
	defer a.Close()

	req := sf.request(a)
	req.Coherence = *coherence || a.cfg.Story.CoherenceCheck

	out, err := a.pipeline.Generate(ctx, req)
	if err != nil {
		if out == nil {
			return err
		}
		a.logger.Warn("run stopped early", "run_id", out.ID, "chapters", len(out.Chapters), "error", err)
	}

	dir := a.files.Dir(ctx, out.ID)
	words := fiction.NewWordTracker()
	for i, ch := range out.Chapters {
		words.Record(i+1, ch)
	}
	fmt.Printf("%s\n%s\n", titleOr(out.Context.Title), words.Summary())
	fmt.Printf("output: %s\n", filepath.Join(a.store.Root(), dir))
	if out.Coherence != nil {
		fmt.Printf("\ncoherence:\n%s\n", out.Coherence.Report)
		if out.Coherence.NeedsRevision {
			fmt.Println("(revision suggested)")
		}
	}

	if *doExport && len(out.Chapters) > 0 {
		res, err := export.Run(ctx, a.store, dir)
		if err != nil {
			return err
		}
		printExport(a, res)
	}
	return err
}

func interactiveCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("interactive", flag.ContinueOnError)
	var sf storyFlags
	sf.register(fs)
	style := fs.String("style", "", "glamour style for rendering (default: detect)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := newApp(ctx, appOptions{dryRun: sf.dryRun, logFile: true})
	if err != nil {
		return err
	}
	defer a.Close()

	req := sf.request(a)
	// fail fast instead of inside the TUI
	if err := a.pipeline.Validate(req); err != nil {
		return err
	}
	return runTUI(a, tui.Options{Request: req, GlamourStyle: *style})
}

func resumeCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("resume", flag.ContinueOnError)
	id := fs.String("session", "", "session ID (default: most recent)")
	dryRun := fs.Bool("dry-run", false, "use canned model output instead of a provider")
	style := fs.String("style", "", "glamour style for rendering (default: detect)")
	list := fs.Bool("list", false, "list saved sessions and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := newApp(ctx, appOptions{dryRun: *dryRun, logFile: true})
	if err != nil {
		return err
	}
	defer a.Close()

	saved, err := a.checkpoints.List(ctx)
	if err != nil {
		return err
	}
	if *list {
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SESSION\tSTATE\tCHAPTER\tSAVED\tRESUMES")
		for _, cp := range saved {
			fmt.Fprintf(w, "%s\t%s\t%d/%d\t%s\t%d\n", cp.ID, cp.State, cp.Chapter, cp.Total,
				cp.Timestamp.Format("2006-01-02 15:04"), cp.ResumeCount)
		}
		return w.Flush()
	}

	if *id == "" {
		if len(saved) == 0 {
			return fmt.Errorf("%w: no saved sessions", core.ErrCheckpointNotFound)
		}
		*id = saved[0].ID
	}
	s, err := a.checkpoints.Restore(ctx, *id, a.pipeline)
	if err != nil {
		return err
	}
	if s.Done() {
		return fmt.Errorf("session %s: %w", s.ID, core.ErrSessionDone)
	}
	return runTUI(a, tui.Options{Session: s, GlamourStyle: *style})
}

func runTUI(a *app, opts tui.Options) error {
	opts.Pipeline = a.pipeline
	opts.Checkpoints = a.checkpoints
	opts.Logger = a.logger
	s, err := tui.Run(opts)
	if err != nil {
		return err
	}
	if s != nil {
		fmt.Printf("output: %s\n", filepath.Join(a.store.Root(), a.files.Dir(context.Background(), s.ID)))
	}
	return nil
}

func exportCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: storyloom export <run-id | sessions/dir>")
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errors.New("export needs one run")
	}

	a, err := newApp(ctx, appOptions{offline: true})
	if err != nil {
		return err
	}
	defer a.Close()

	dir := fs.Arg(0)
	if !strings.HasPrefix(dir, "sessions/") {
		dir = a.files.Dir(ctx, dir)
	}
	res, err := export.Run(ctx, a.store, dir)
	if err != nil {
		return err
	}
	printExport(a, res)
	return nil
}

func printExport(a *app, res export.Result) {
	fmt.Printf("manuscript: %s (%d chapters", filepath.Join(a.store.Root(), res.Manuscript), res.Chapters)
	if res.Skipped > 0 {
		fmt.Printf(", %d without a heading skipped", res.Skipped)
	}
	fmt.Println(")")
	fmt.Printf("story bible: %s\n", filepath.Join(a.store.Root(), res.Bible))
}

func runsCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "maximum runs to list; 0 lists all")
	show := fs.String("show", "", "print the archived chapters of one run")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := newApp(ctx, appOptions{offline: true})
	if err != nil {
		return err
	}
	defer a.Close()

	if *show != "" {
		return showRun(ctx, a, *show)
	}

	runs, err := a.archive.ListRuns(ctx, *limit)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tMODE\tGENRE\tCHAPTERS\tTITLE\tSTARTED\tSTATUS")
	for _, r := range runs {
		status := "open"
		if r.FinishedAt != nil {
			status = "finished"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\t%s\t%s\n", r.ID, r.Mode, r.Genre,
			r.ChaptersWritten, r.ChaptersPlanned, titleOr(r.Title),
			r.StartedAt.Local().Format("2006-01-02 15:04"), status)
	}
	return w.Flush()
}

func showRun(ctx context.Context, a *app, id string) error {
	chapters, err := a.archive.LoadChapters(ctx, id)
	if err != nil {
		return err
	}
	if len(chapters) == 0 {
		return fmt.Errorf("no archived chapters for run %s", id)
	}
	degraded, err := a.archive.CountEvents(ctx, id, "")
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CHAPTER\tWORDS\tTRACKED\tHEADING")
	for _, c := range chapters {
		fmt.Fprintf(w, "%d/%d\t%d\t%t\t%s\n", c.Index, c.Total, c.Words, c.Tracked, headingOf(c.Text))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("degraded outputs: %d\n", degraded)
	return nil
}

func headingOf(text string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(text), "\n")
	if line == "" {
		return "(empty)"
	}
	return line
}

func titleOr(title string) string {
	if title == "" {
		return "(untitled)"
	}
	return title
}
