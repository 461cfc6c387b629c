package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/kingrea/auralynx/internal/api"
	"github.com/kingrea/auralynx/internal/export"
	"github.com/kingrea/auralynx/internal/generation"
	"github.com/kingrea/auralynx/internal/lyrics"
	"github.com/kingrea/auralynx/internal/store"
	"github.com/kingrea/auralynx/internal/wizard"
)

type generateOptions struct {
	text     string
	audio    string
	genre    string
	out      string
	attempts int
	download bool
	upload   bool
	save     bool
	title    string
	open     bool
}

func newGenerateCommand() *ffcli.Command {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	common := &commonFlags{}
	registerCommon(fs, common)
	opts := &generateOptions{}
	fs.StringVar(&opts.text, "text", "", "song idea")
	fs.StringVar(&opts.audio, "audio", "", "recorded idea to transcribe instead of --text")
	fs.StringVar(&opts.genre, "genre", "", "genre (default from config.yaml)")
	fs.StringVar(&opts.out, "out", "", "download directory (default ~/.auralynx/songs)")
	fs.IntVar(&opts.attempts, "attempts", 1, "generation attempts; later attempts resume from the failed step")
	fs.BoolVar(&opts.download, "download", true, "download the final mix")
	fs.BoolVar(&opts.upload, "upload", false, "upload the mix to the configured S3 bucket")
	fs.BoolVar(&opts.save, "save", false, "save the song to your account")
	fs.StringVar(&opts.title, "title", "", "song title used with --save")
	fs.BoolVar(&opts.open, "open", false, "open the mix when done")

	return &ffcli.Command{
		Name:       "generate",
		ShortUsage: "auralynx generate --text <idea> [flags]",
		ShortHelp:  "run the whole wizard without the TUI",
		Options:    ffOptions(),
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			if len(args) > 0 && opts.text == "" {
				opts.text = strings.Join(args, " ")
			}
			rt, err := bootstrap(ctx, common, os.Stderr)
			if err != nil {
				return err
			}
			defer rt.Close()
			return runGenerate(ctx, rt, opts, os.Stdout)
		},
	}
}

func runGenerate(ctx context.Context, rt *runtime, opts *generateOptions, out io.Writer) error {
	if opts.text == "" && opts.audio == "" {
		return errors.New("generate: --text or --audio is required")
	}
	if opts.save {
		if strings.TrimSpace(opts.title) == "" {
			return errors.New("generate: --title is required with --save")
		}
		if !rt.auth.SignedIn() {
			return errors.New("generate: sign in with 'auralynx login' before using --save")
		}
	}
	if opts.upload && rt.uploader == nil {
		return errors.New("generate: S3 export is not configured (export.s3 in config.yaml)")
	}
	genre := rt.cfg.DefaultGenre()
	if opts.genre != "" {
		g, err := wizard.NormalizeGenre(opts.genre)
		if err != nil {
			return err
		}
		genre = g
	}

	ctl := wizard.NewController(wizard.WithDefaultGenre(genre))
	mode := wizard.InputText
	if opts.audio != "" {
		mode = wizard.InputVoice
	}
	if err := ctl.Apply(wizard.LandingCompleted{Mode: mode}); err != nil {
		return err
	}

	idea := opts.text
	if mode == wizard.InputVoice {
		fmt.Fprintf(out, "Transcribing %s...\n", opts.audio)
		text, err := rt.client.Transcribe(ctx, opts.audio)
		if err != nil {
			return fmt.Errorf("generate: transcribe: %w", err)
		}
		idea = text
		fmt.Fprintf(out, "Heard: %s\n", text)
	}
	if err := ctl.Apply(wizard.InputCompleted{Text: idea}); err != nil {
		return err
	}
	rt.logbook.Info("Idea captured (%s)", mode)

	res := lyrics.NewService(rt.client, rt.templates).Generate(ctx, idea, genre)
	if res.Fallback {
		fmt.Fprintf(out, "Lyrics service unavailable (%s); using a %s template.\n", api.Detail(res.Err, res.Err.Error()), genre)
		rt.logbook.Warn("Lyrics fallback: %v", res.Err)
	}
	fmt.Fprintf(out, "\n%s\n\n", res.Lyrics)
	if err := ctl.Apply(wizard.LyricsCompleted{Lyrics: res.Lyrics, Genre: genre}); err != nil {
		return err
	}

	result, err := generate(ctx, rt, ctl, opts.attempts, out)
	if err != nil {
		return err
	}
	sess := ctl.Session()
	fmt.Fprintf(out, "Mix: %s\n", rt.client.AssetURL(sess.FinalMixURL))

	duration := result.DurationSeconds
	target := rt.client.AssetURL(sess.FinalMixURL)
	if opts.download || opts.upload {
		dir := opts.out
		if dir == "" {
			dir = rt.cfg.ExportDir()
		}
		path, err := export.Download(ctx, rt.client, sess.FinalMixURL, dir)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Saved to %s\n", path)
		if duration == 0 {
			if d, err := export.Duration(path); err == nil {
				duration = int(d.Round(time.Second) / time.Second)
			}
		}
		target = path
		if opts.upload {
			link, err := rt.uploader.Upload(ctx, path)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Share link (24h): %s\n", link)
		}
	}

	if opts.save {
		song := api.NewSong{
			Title:           strings.TrimSpace(opts.title),
			Genre:           sess.Genre,
			Lyrics:          sess.Lyrics,
			InstrumentalURL: sess.InstrumentalURL,
			VocalsURL:       sess.VocalsURL,
			MixURL:          sess.FinalMixURL,
		}
		if duration > 0 {
			song.DurationSeconds = &duration
		}
		created, err := rt.client.CreateSong(ctx, song)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Saved %q to your account (id %d)\n", created.Title, created.ID)
		rt.logbook.Info("Saved song %d · %s", created.ID, created.Title)
	}

	if opts.open {
		if err := export.Open(target); err != nil {
			fmt.Fprintf(out, "Could not open player: %v\n", err)
		}
	}
	return nil
}

// generate runs the pipeline, resuming a failed run up to attempts times,
// and applies the result to the wizard.
func generate(ctx context.Context, rt *runtime, ctl *wizard.Controller, attempts int, out io.Writer) (generation.Result, error) {
	orch, err := generation.New(rt.client, rt.genOptions...)
	if err != nil {
		return generation.Result{}, err
	}
	sess := ctl.Session()
	run := orch.NewRun(sess.Lyrics, sess.Genre)
	hooks := generation.Hooks{
		Step: func(s generation.Step) {
			if s != generation.StepComplete {
				fmt.Fprintf(out, "%s...\n", s.Title())
			}
		},
		Progress: func(p int) {
			fmt.Fprintf(out, "  %d%%\n", p)
		},
	}
	attempts = max(1, attempts)
	for attempt := 1; ; attempt++ {
		token, err := ctl.BeginRun()
		if err != nil {
			return generation.Result{}, err
		}
		if attempt > 1 {
			fmt.Fprintf(out, "Resuming from %s (attempt %d of %d)\n", run.Step.Title(), attempt, attempts)
		}
		result, runErr := orch.Execute(ctx, run, hooks)
		recordRun(ctx, rt, sess.InputText, run, runErr)
		if runErr == nil {
			err := ctl.Complete(token, wizard.GenerationCompleted{
				InstrumentalURL: result.InstrumentalURL,
				VocalsURL:       result.VocalsURL,
				FinalMixURL:     result.FinalMixURL,
			})
			if err != nil {
				ctl.EndRun(token)
				return generation.Result{}, err
			}
			rt.logbook.Info("Generation %s complete", run.ID)
			fmt.Fprintf(out, "Done in %s\n", run.FinishedAt.Sub(run.StartedAt).Round(time.Second))
			return result, nil
		}
		ctl.EndRun(token)
		step, _ := generation.FailedStep(runErr)
		rt.logbook.Error("Generation %s failed at %s: %v", run.ID, step, runErr)
		if attempt >= attempts || ctx.Err() != nil {
			return generation.Result{}, runErr
		}
		fmt.Fprintf(out, "%s failed: %v\n", step.Title(), runErr)
	}
}

// recordRun writes a history row for a terminated run.
func recordRun(ctx context.Context, rt *runtime, inputText string, run *generation.Run, runErr error) {
	row := &store.Run{
		InputText:       inputText,
		Genre:           run.Genre,
		Lyrics:          run.Lyrics,
		InstrumentalURL: run.Result.InstrumentalURL,
		VocalsURL:       run.Result.VocalsURL,
		MixURL:          run.Result.FinalMixURL,
		DurationSeconds: run.Result.DurationSeconds,
		StartedAt:       run.StartedAt,
		FinishedAt:      run.FinishedAt,
		Status:          store.RunComplete,
	}
	if runErr != nil {
		row.Status = store.RunFailed
		row.Error = runErr.Error()
		if step, ok := generation.FailedStep(runErr); ok {
			row.FailedStep = string(step)
		}
	}
	if err := rt.store.AddRun(ctx, row); err != nil {
		rt.logbook.Warn("Could not record run history: %v", err)
	}
}
