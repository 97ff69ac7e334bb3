package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sakif/tasklist/internal/client"
	"github.com/sakif/tasklist/internal/ui"
)

const defaultAPIURL = "http://localhost:8080"

// cli holds the flags and the App built from them before each command runs.
type cli struct {
	apiURL      string
	sessionPath string
	verbose     bool

	app *ui.App
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:               "tasks",
		Short:             "Manage your to-do list from the terminal",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
	}

	apiURL := os.Getenv("TASKS_API_URL")
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	root.PersistentFlags().StringVar(&c.apiURL, "api", apiURL, "task API base URL (env TASKS_API_URL)")
	root.PersistentFlags().StringVar(&c.sessionPath, "session", "", "session file (default <user config dir>/tasklist/session.json)")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "log retries and other client events")

	root.AddCommand(
		c.authCmd("register", "Create an account and sign in", func(a *ui.App) authFunc { return a.Register }),
		c.authCmd("login", "Sign in", func(a *ui.App) authFunc { return a.Login }),
		c.logoutCmd(),
		c.whoamiCmd(),
		c.listCmd(),
		c.addCmd(),
		c.setDoneCmd("done", "Mark a task complete", true),
		c.setDoneCmd("undo", "Mark a task incomplete", false),
		c.toggleCmd(),
		c.editCmd(),
		c.rmCmd(),
	)
	return root
}

func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	path := c.sessionPath
	if path == "" {
		var err error
		if path, err = client.DefaultSessionPath(); err != nil {
			return err
		}
	}
	store, err := client.OpenFileStorage(path)
	if err != nil {
		return err
	}
	session := client.NewSession(store)

	level := slog.LevelWarn
	if c.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	gateway := client.NewGateway(c.apiURL, session, client.WithLogger(logger))
	render := ui.NewTextRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr())
	c.app = ui.NewApp(gateway, session, render, ui.WithLogger(logger))
	return nil
}

// emit dispatches ev to the stored session's controller.
func (c *cli) emit(ctx context.Context, ev ui.Event) error {
	c.app.Resume()
	return c.app.Emit(ctx, ev)
}

type authFunc func(ctx context.Context, email, password string) error

func (c *cli) authCmd(use, short string, pick func(*ui.App) authFunc) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   use + " EMAIL",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				var err error
				if password, err = promptPassword(cmd.InOrStdin(), cmd.ErrOrStderr()); err != nil {
					return err
				}
			}
			return pick(c.app)(cmd.Context(), args[0], password)
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (prompted on stdin if omitted)")
	return cmd
}

func (c *cli) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !c.app.Resume() {
				return c.app.Logout(cmd.Context())
			}
			return c.app.Emit(cmd.Context(), ui.Event{Type: ui.EventAuthLogout})
		},
	}
}

func (c *cli) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			u, err := c.app.Whoami(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", u.Email, u.ID)
			return nil
		},
	}
}

func (c *cli) listCmd() *cobra.Command {
	var done, pending bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ev := ui.Event{Type: ui.EventTaskRefresh}
			switch {
			case done:
				ev.Completed = boolPtr(true)
			case pending:
				ev.Completed = boolPtr(false)
			}
			return c.emit(cmd.Context(), ev)
		},
	}
	cmd.Flags().BoolVar(&done, "done", false, "only completed tasks")
	cmd.Flags().BoolVar(&pending, "pending", false, "only incomplete tasks")
	cmd.MarkFlagsMutuallyExclusive("done", "pending")
	return cmd
}

func (c *cli) addCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add DESCRIPTION...",
		Short: "Add a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.emit(cmd.Context(), ui.Event{Type: ui.EventTaskAdd, Description: strings.Join(args, " ")})
		},
	}
}

func (c *cli) setDoneCmd(use, short string, completed bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.emit(cmd.Context(), ui.Event{Type: ui.EventTaskToggle, TaskID: args[0], Completed: boolPtr(completed)})
		},
	}
}

func (c *cli) toggleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle ID",
		Short: "Flip a task's completion state, as of the last listing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.emit(cmd.Context(), ui.Event{Type: ui.EventTaskToggle, TaskID: args[0]})
		},
	}
}

func (c *cli) editCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "edit ID DESCRIPTION...",
		Short: "Change a task's description",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.emit(cmd.Context(), ui.Event{Type: ui.EventTaskEdit, TaskID: args[0], Description: strings.Join(args[1:], " ")})
		},
	}
}

func (c *cli) rmCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm ID",
		Aliases: []string{"delete"},
		Short:   "Delete a task",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.emit(cmd.Context(), ui.Event{Type: ui.EventTaskDelete, TaskID: args[0]})
		},
	}
}

func promptPassword(in io.Reader, out io.Writer) (string, error) {
	fmt.Fprint(out, "Password: ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func boolPtr(b bool) *bool { return &b }
