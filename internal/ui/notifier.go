package ui

import (
	"slices"
	"sync"
	"time"
)

// Channel selects where a notice is shown.
type Channel int

const (
	// Transient notices announce a finished operation and dismiss themselves.
	Transient Channel = iota + 1
	// Persistent notices belong to a form and stay until Resolve.
	Persistent
)

// Level is the severity of a notice.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Form identifies the form a persistent notice is attached to.
type Form string

const (
	FormLogin    Form = "login"
	FormRegister Form = "register"
	FormTask     Form = "task"
)

// Notice is a user-visible message. Form is only used on the persistent
// channel.
type Notice struct {
	Level   Level
	Message string
	Form    Form
}

// DefaultTransientTTL is how long a transient notice stays pending.
const DefaultTransientTTL = 3 * time.Second

// SessionExpiredMessage is shown on both channels when the server rejects
// the stored token.
const SessionExpiredMessage = "Your session has expired. Please log in again."

type pendingNotice struct {
	notice  Notice
	expires time.Time
}

// Notifier routes notices to one of two channels.
type Notifier struct {
	mu         sync.Mutex
	ttl        time.Duration
	now        func() time.Time
	transient  []pendingNotice
	persistent map[Form]Notice
	sink       func(Channel, Notice)
}

// NewNotifier creates a Notifier. sink, if not nil, is called with every
// notice as it is posted.
func NewNotifier(ttl time.Duration, sink func(Channel, Notice)) *Notifier {
	if ttl <= 0 {
		ttl = DefaultTransientTTL
	}
	return &Notifier{
		ttl:        ttl,
		now:        time.Now,
		persistent: make(map[Form]Notice),
		sink:       sink,
	}
}

// Notify posts n on ch. A persistent notice replaces any earlier one for the
// same form; one without a Form is attached to FormTask.
func (n *Notifier) Notify(ch Channel, nt Notice) {
	n.mu.Lock()
	switch ch {
	case Transient:
		n.pruneLocked()
		n.transient = append(n.transient, pendingNotice{notice: nt, expires: n.now().Add(n.ttl)})
	case Persistent:
		if nt.Form == "" {
			nt.Form = FormTask
		}
		n.persistent[nt.Form] = nt
	}
	sink := n.sink
	n.mu.Unlock()

	if sink != nil {
		sink(ch, nt)
	}
}

// Transients returns the transient notices that have not yet expired.
func (n *Notifier) Transients() []Notice {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.pruneLocked()
	out := make([]Notice, 0, len(n.transient))
	for _, p := range n.transient {
		out = append(out, p.notice)
	}
	return out
}

// ClearTransients drops every pending transient notice.
func (n *Notifier) ClearTransients() {
	n.mu.Lock()
	n.transient = nil
	n.mu.Unlock()
}

// PersistentFor returns the notice attached to form, if any.
func (n *Notifier) PersistentFor(form Form) (Notice, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	nt, ok := n.persistent[form]
	return nt, ok
}

// Resolve removes the persistent notice for form once the user has fixed
// the input or left the form.
func (n *Notifier) Resolve(form Form) {
	n.mu.Lock()
	delete(n.persistent, form)
	n.mu.Unlock()
}

// SessionExpired clears pending transients, then posts the expiry message as
// a transient and as a persistent notice on the login form. It is the only
// notice that goes to both channels.
func (n *Notifier) SessionExpired() {
	n.ClearTransients()
	nt := Notice{Level: LevelError, Message: SessionExpiredMessage, Form: FormLogin}
	n.Notify(Transient, nt)
	n.Notify(Persistent, nt)
}

// must be called with mu held.
func (n *Notifier) pruneLocked() {
	now := n.now()
	n.transient = slices.DeleteFunc(n.transient, func(p pendingNotice) bool {
		return !now.Before(p.expires)
	})
}
