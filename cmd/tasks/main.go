// Package main is the terminal client for the task API.
//
//	tasks register alice@example.com
//	tasks add buy milk
//	tasks list --pending
//	tasks done <id>
//
// The session token is kept in a JSON file under the user config directory,
// so it survives between invocations until `tasks logout` or until the
// server rejects it.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/sakif/tasklist/internal/ui"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		// Notices and the login screen have already told the user.
		if !ui.Reported(err) && !errors.Is(err, ui.ErrNotSignedIn) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		stop()
		os.Exit(1)
	}
}
