// cmd/auralynx/main.go
//
// This is the entry point for the AuraLynx CLI.
// Without a subcommand it opens the wizard TUI; subcommands run the same
// flows headless.

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/kingrea/auralynx/internal/tui"
)

// Build flags
var version = ""
var commit = ""
var date = ""

func main() {
	// Create signal based context
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	// Launch command
	cmd := newCommand()
	if err := cmd.ParseAndRun(ctx, os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

// commonFlags are accepted by every command.
type commonFlags struct {
	home   string
	apiURL string
	debug  bool
}

func registerCommon(fs *flag.FlagSet, c *commonFlags) {
	_ = fs.String("config", "", "config file (optional)")
	fs.StringVar(&c.home, "home", "", "state directory (default ~/.auralynx)")
	fs.StringVar(&c.apiURL, "api-url", "", "backend base URL")
	fs.BoolVar(&c.debug, "debug", false, "log every request to logs/auralynx.log")
}

func ffOptions() []ff.Option {
	return []ff.Option{
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
		ff.WithEnvVarPrefix("AURALYNX"),
	}
}

func newCommand() *ffcli.Command {
	fs := flag.NewFlagSet("auralynx", flag.ExitOnError)
	common := &commonFlags{}
	registerCommon(fs, common)

	return &ffcli.Command{
		ShortUsage: "auralynx [flags] [<subcommand>]",
		ShortHelp:  "turn an idea into a song",
		Options:    ffOptions(),
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unknown command %q", args[0])
			}
			return runTUI(ctx, common)
		},
		Subcommands: []*ffcli.Command{
			newVersionCommand(),
			newGenerateCommand(),
			newLoginCommand(),
			newRegisterCommand(),
			newLogoutCommand(),
			newWhoamiCommand(),
			newSongsCommand(),
			newHistoryCommand(),
			newHealthCommand(),
		},
	}
}

func runTUI(ctx context.Context, common *commonFlags) error {
	rt, err := bootstrap(ctx, common, os.Stderr)
	if err != nil {
		return err
	}
	defer rt.Close()

	app, err := tui.NewApp(rt.deps())
	if err != nil {
		return err
	}
	p := tea.NewProgram(
		app,
		tea.WithAltScreen(), // Use alternate screen buffer (like vim does)
		tea.WithContext(ctx),
	)
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running TUI: %w", err)
	}
	return nil
}

func newVersionCommand() *ffcli.Command {
	return &ffcli.Command{
		Name:       "version",
		ShortUsage: "auralynx version",
		ShortHelp:  "print version",
		Exec: func(ctx context.Context, args []string) error {
			fmt.Println(versionString())
			return nil
		},
	}
}

func versionString() string {
	v := version
	if v == "" {
		if buildInfo, ok := debug.ReadBuildInfo(); ok {
			v = buildInfo.Main.Version
		}
	}
	if v == "" || v == "(devel)" {
		v = "dev"
	}
	versionFields := []string{v}
	if commit != "" {
		versionFields = append(versionFields, commit)
	}
	if date != "" {
		versionFields = append(versionFields, date)
	}
	return strings.Join(versionFields, " ")
}
