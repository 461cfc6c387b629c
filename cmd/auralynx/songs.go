package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/kingrea/auralynx/internal/api"
	"github.com/kingrea/auralynx/internal/export"
	"github.com/kingrea/auralynx/internal/store"
)

func newSongsCommand() *ffcli.Command {
	fs := flag.NewFlagSet("songs", flag.ExitOnError)
	common := &commonFlags{}
	registerCommon(fs, common)
	csvPath := fs.String("csv", "", "write the list as CSV to this file ('-' for stdout)")

	return &ffcli.Command{
		Name:       "songs",
		ShortUsage: "auralynx songs [--csv <file>]",
		ShortHelp:  "list the songs saved to your account",
		Options:    ffOptions(),
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			return withRuntime(ctx, common, func(rt *runtime) error {
				return runSongs(ctx, rt, *csvPath, os.Stdout)
			})
		},
	}
}

func runSongs(ctx context.Context, rt *runtime, csvPath string, out io.Writer) error {
	if !rt.auth.SignedIn() {
		return fmt.Errorf("songs: sign in with 'auralynx login' first")
	}
	songs, err := rt.client.ListSongs(ctx)
	if err != nil {
		return err
	}
	switch csvPath {
	case "":
		return printSongs(out, rt.client, songs)
	case "-":
		return export.WriteSongsCSV(out, songs)
	}
	if err := os.MkdirAll(filepath.Dir(csvPath), 0o755); err != nil {
		return err
	}
	f, err := os.Create(csvPath)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := export.WriteSongsCSV(f, songs); err != nil {
		return err
	}
	fmt.Fprintf(out, "Exported %d songs to %s\n", len(songs), csvPath)
	return nil
}

func printSongs(out io.Writer, client *api.Client, songs []api.Song) error {
	if len(songs) == 0 {
		fmt.Fprintln(out, "No saved songs yet.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tGENRE\tCREATED\tMIX")
	for _, s := range songs {
		created := ""
		if !s.CreatedAt.IsZero() {
			created = s.CreatedAt.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", s.ID, s.Title, s.Genre, created, client.AssetURL(s.MixURL))
	}
	return w.Flush()
}

func newHistoryCommand() *ffcli.Command {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	common := &commonFlags{}
	registerCommon(fs, common)
	limit := fs.Int("limit", 20, "number of runs to show")
	id := fs.String("id", "", "show one run in full")

	return &ffcli.Command{
		Name:       "history",
		ShortUsage: "auralynx history [--limit <n>] [--id <run>]",
		ShortHelp:  "list local generation runs, newest first",
		Options:    ffOptions(),
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			return withRuntime(ctx, common, func(rt *runtime) error {
				if *id != "" {
					return runHistoryDetail(ctx, rt, *id, os.Stdout)
				}
				return runHistory(ctx, rt, *limit, os.Stdout)
			})
		},
	}
}

func runHistory(ctx context.Context, rt *runtime, limit int, out io.Writer) error {
	runs, err := rt.store.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs yet.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tWHEN\tGENRE\tSTATUS\tTOOK\tIDEA")
	for _, r := range runs {
		status := string(r.Status)
		if r.Status == store.RunFailed && r.FailedStep != "" {
			status += " (" + r.FailedStep + ")"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", r.ID, r.CreatedAt.Local().Format(time.DateTime), r.Genre, status, took(r), shorten(r.InputText, 48))
	}
	return w.Flush()
}

func runHistoryDetail(ctx context.Context, rt *runtime, id string, out io.Writer) error {
	r, err := rt.store.GetRun(ctx, strings.ToUpper(strings.TrimSpace(id)))
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("history: no run %s", id)
	}
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "id\t%s\n", r.ID)
	fmt.Fprintf(w, "when\t%s\n", r.CreatedAt.Local().Format(time.DateTime))
	fmt.Fprintf(w, "genre\t%s\n", r.Genre)
	fmt.Fprintf(w, "status\t%s\n", r.Status)
	if r.Status == store.RunFailed {
		fmt.Fprintf(w, "failed at\t%s\n", r.FailedStep)
		fmt.Fprintf(w, "error\t%s\n", r.Error)
	}
	fmt.Fprintf(w, "took\t%s\n", took(r))
	if r.DurationSeconds > 0 {
		fmt.Fprintf(w, "length\t%s\n", time.Duration(r.DurationSeconds)*time.Second)
	}
	fmt.Fprintf(w, "idea\t%s\n", r.InputText)
	for _, asset := range []struct{ label, url string }{
		{"instrumental", r.InstrumentalURL},
		{"vocals", r.VocalsURL},
		{"mix", r.MixURL},
	} {
		if asset.url != "" {
			fmt.Fprintf(w, "%s\t%s\n", asset.label, rt.client.AssetURL(asset.url))
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%s\n", r.Lyrics)
	return nil
}

func took(r *store.Run) string {
	d := r.Elapsed()
	if d == 0 {
		return "-"
	}
	return d.Round(time.Second).String()
}

func shorten(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func newHealthCommand() *ffcli.Command {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	common := &commonFlags{}
	registerCommon(fs, common)

	return &ffcli.Command{
		Name:       "health",
		ShortUsage: "auralynx health",
		ShortHelp:  "check the backend",
		Options:    ffOptions(),
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			return withRuntime(ctx, common, func(rt *runtime) error {
				return runHealth(ctx, rt, os.Stdout)
			})
		},
	}
}

func runHealth(ctx context.Context, rt *runtime, out io.Writer) error {
	h, err := rt.client.Health(ctx)
	if err != nil {
		return fmt.Errorf("backend %s unreachable: %w", rt.client.BaseURL(), err)
	}
	fmt.Fprintf(out, "%s: %s", rt.client.BaseURL(), h.Status)
	if h.Version != "" {
		fmt.Fprintf(out, " (v%s)", h.Version)
	}
	if h.Message != "" {
		fmt.Fprintf(out, " · %s", h.Message)
	}
	fmt.Fprintln(out)
	return nil
}
