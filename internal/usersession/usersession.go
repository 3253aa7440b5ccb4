package usersession

import (
	"os/user"

	"github.com/X3n0m0rph59/precached/internal/eventbus"
	"github.com/X3n0m0rph59/precached/internal/logging"
)

// Tracker maintains the set of logged-in users across successive Poll
// calls, same shape as original_source's OrderMap<Uid, PathBuf> but keyed
// by username (Go's os/user resolves by name or uid equally well, and
// utmp's ut_user field is already the name, so resolving uid first to then
// look the name back up — as the original did — is unneeded indirection).
type Tracker struct {
	utmpPath string
	loggedIn map[string]string // username -> home dir
}

// New builds a Tracker reading /run/utmp by default.
func New() *Tracker {
	return &Tracker{utmpPath: "/run/utmp", loggedIn: make(map[string]string)}
}

// WithUtmpPath overrides the utmp file path, for testing.
func (t *Tracker) WithUtmpPath(path string) *Tracker {
	t.utmpPath = path
	return t
}

// Poll scans utmp, returning UserLogin/UserLogout InternalEvents for any
// session that started or ended since the previous Poll.
func (t *Tracker) Poll() ([]eventbus.InternalEvent, error) {
	log := logging.For("usersession")
	records, err := readUtmp(t.utmpPath)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var events []eventbus.InternalEvent

	for _, rec := range records {
		if rec.Type != utmpUserProcess || rec.User == "" {
			continue
		}
		seen[rec.User] = true
		if _, known := t.loggedIn[rec.User]; known {
			continue
		}

		home := ""
		if u, err := user.Lookup(rec.User); err == nil {
			home = u.HomeDir
		} else {
			log.Info("spurious login for unknown user", "user", rec.User)
		}
		t.loggedIn[rec.User] = home
		events = append(events, eventbus.InternalEvent{Kind: eventbus.EventUserLogin, User: rec.User})
	}

	for name := range t.loggedIn {
		if !seen[name] {
			delete(t.loggedIn, name)
			events = append(events, eventbus.InternalEvent{Kind: eventbus.EventUserLogout, User: name})
		}
	}

	return events, nil
}

// LoggedIn reports the usernames currently considered logged in.
func (t *Tracker) LoggedIn() []string {
	out := make([]string, 0, len(t.loggedIn))
	for name := range t.loggedIn {
		out = append(out, name)
	}
	return out
}
