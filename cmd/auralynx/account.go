package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/peterbourgon/ff/v3/ffcli"
)

type credentialFlags struct {
	username string
	email    string
	password string
}

func (c *credentialFlags) register(fs *flag.FlagSet, withEmail bool) {
	fs.StringVar(&c.username, "username", "", "account username")
	fs.StringVar(&c.password, "password", "", "account password (or AURALYNX_PASSWORD)")
	if withEmail {
		fs.StringVar(&c.email, "email", "", "email address (optional)")
	}
}

func (c *credentialFlags) check() error {
	if c.username == "" || c.password == "" {
		return errors.New("--username and --password are required")
	}
	return nil
}

func newLoginCommand() *ffcli.Command {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	common := &commonFlags{}
	registerCommon(fs, common)
	creds := &credentialFlags{}
	creds.register(fs, false)

	return &ffcli.Command{
		Name:       "login",
		ShortUsage: "auralynx login --username <name> --password <password>",
		ShortHelp:  "sign in and remember the session",
		Options:    ffOptions(),
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			if err := creds.check(); err != nil {
				return err
			}
			return withRuntime(ctx, common, func(rt *runtime) error {
				return runLogin(ctx, rt, creds, os.Stdout)
			})
		},
	}
}

func runLogin(ctx context.Context, rt *runtime, creds *credentialFlags, out io.Writer) error {
	user, err := rt.auth.Login(ctx, creds.username, creds.password)
	if err != nil {
		return err
	}
	rt.logbook.Info("Signed in as %s", user.Username)
	fmt.Fprintf(out, "Signed in as %s\n", user.Username)
	return nil
}

func newRegisterCommand() *ffcli.Command {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	common := &commonFlags{}
	registerCommon(fs, common)
	creds := &credentialFlags{}
	creds.register(fs, true)

	return &ffcli.Command{
		Name:       "register",
		ShortUsage: "auralynx register --username <name> --password <password> [--email <email>]",
		ShortHelp:  "create an account and sign in",
		Options:    ffOptions(),
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			if err := creds.check(); err != nil {
				return err
			}
			return withRuntime(ctx, common, func(rt *runtime) error {
				return runRegister(ctx, rt, creds, os.Stdout)
			})
		},
	}
}

func runRegister(ctx context.Context, rt *runtime, creds *credentialFlags, out io.Writer) error {
	user, err := rt.auth.Register(ctx, creds.username, creds.email, creds.password)
	if err != nil {
		return err
	}
	rt.logbook.Info("Account created; signed in as %s", user.Username)
	fmt.Fprintf(out, "Account created; signed in as %s\n", user.Username)
	return nil
}

func newLogoutCommand() *ffcli.Command {
	fs := flag.NewFlagSet("logout", flag.ExitOnError)
	common := &commonFlags{}
	registerCommon(fs, common)

	return &ffcli.Command{
		Name:       "logout",
		ShortUsage: "auralynx logout",
		ShortHelp:  "forget the saved session",
		Options:    ffOptions(),
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			return withRuntime(ctx, common, func(rt *runtime) error {
				if err := rt.auth.Logout(); err != nil {
					return err
				}
				rt.logbook.Info("Signed out")
				fmt.Println("Signed out")
				return nil
			})
		},
	}
}

func newWhoamiCommand() *ffcli.Command {
	fs := flag.NewFlagSet("whoami", flag.ExitOnError)
	common := &commonFlags{}
	registerCommon(fs, common)

	return &ffcli.Command{
		Name:       "whoami",
		ShortUsage: "auralynx whoami",
		ShortHelp:  "show the signed in user",
		Options:    ffOptions(),
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			return withRuntime(ctx, common, func(rt *runtime) error {
				return runWhoami(rt, os.Stdout)
			})
		},
	}
}

func runWhoami(rt *runtime, out io.Writer) error {
	user := rt.auth.CurrentUser()
	if user == nil {
		fmt.Fprintln(out, "Not signed in")
		return nil
	}
	if user.Email != "" {
		fmt.Fprintf(out, "%s <%s>\n", user.Username, user.Email)
		return nil
	}
	fmt.Fprintln(out, user.Username)
	return nil
}

// withRuntime bootstraps, runs fn and releases the runtime.
func withRuntime(ctx context.Context, common *commonFlags, fn func(*runtime) error) error {
	rt, err := bootstrap(ctx, common, os.Stderr)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(rt)
}
