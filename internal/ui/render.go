package ui

import (
	"fmt"
	"io"
	"sync"
	"text/tabwriter"

	"github.com/sakif/tasklist/internal/model"
)

// Renderer draws the two screens and notices. Each call replaces
// what the previous call of the same kind drew.
type Renderer interface {
	// ShowLogin draws the signed-out screen with its persistent notices.
	ShowLogin(notices []Notice)
	// ShowTasks draws the task list for user.
	ShowTasks(user model.User, tasks []model.Task)
	// ShowNotice displays one notice outside the login screen.
	ShowNotice(n Notice)
}

// TextRenderer writes plain text, for terminals.
type TextRenderer struct {
	mu  sync.Mutex
	out io.Writer
	err io.Writer
}

// NewTextRenderer writes screens to out and error notices to errOut.
func NewTextRenderer(out, errOut io.Writer) *TextRenderer {
	return &TextRenderer{out: out, err: errOut}
}

func (r *TextRenderer) ShowLogin(notices []Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, n := range notices {
		fmt.Fprintf(r.err, "! %s\n", n.Message)
	}
	fmt.Fprintln(r.out, "Not logged in. Run `tasks login` or `tasks register`.")
}

func (r *TextRenderer) ShowTasks(user model.User, tasks []model.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(tasks) == 0 {
		fmt.Fprintf(r.out, "No tasks for %s.\n", user.Email)
		return
	}

	tw := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDONE\tDESCRIPTION")
	for _, t := range tasks {
		done := "[ ]"
		if t.Completed {
			done = "[x]"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", t.ID, done, t.Description)
	}
	tw.Flush()
}

func (r *TextRenderer) ShowNotice(n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n.Level == LevelError {
		fmt.Fprintf(r.err, "! %s\n", n.Message)
		return
	}
	fmt.Fprintf(r.out, "* %s\n", n.Message)
}
