// Package attach fetches announcement attachments on demand, either saving
// them to disk or handing them to a viewer. Each record tracks its own busy
// state and error so one failing attachment never affects another row.
package attach

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"sync"

	"annfeed/internal/util"
	"annfeed/pkg/annfeed"
)

// ErrBusy is returned when an action is requested for a record whose
// attachment is already being fetched.
var ErrBusy = errors.New("attach: attachment request already in progress")

// Busy is the per-record attachment activity.
type Busy int

const (
	Idle Busy = iota
	Viewing
	Downloading
)

func (b Busy) String() string {
	switch b {
	case Viewing:
		return "viewing"
	case Downloading:
		return "downloading"
	default:
		return "idle"
	}
}

// State is the attachment state of one record.
type State struct {
	Busy      Busy
	Err       string // user-facing message of the last failure
	Retriable bool
}

// Fetcher returns the attachment blob for an announcement id.
type Fetcher interface {
	Attachment(ctx context.Context, id string) ([]byte, error)
}

// Options configures a Manager.
type Options struct {
	Dir    string             // download directory
	Opener string             // viewer command; defaults to xdg-open or open
	Open   func(string) error // overrides Opener when set
	Logger *slog.Logger
}

// Manager runs attachment downloads and views.
type Manager struct {
	fetch Fetcher
	dir   string
	open  func(string) error
	log   *slog.Logger

	mu     sync.Mutex
	states map[string]State
}

// NewManager creates a Manager.
func NewManager(f Fetcher, opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = util.Discard()
	}
	if opts.Dir == "" {
		opts.Dir = "."
	}
	open := opts.Open
	if open == nil {
		cmd := opts.Opener
		if cmd == "" {
			cmd = "xdg-open"
			if runtime.GOOS == "darwin" {
				cmd = "open"
			}
		}
		open = func(path string) error {
			return exec.Command(cmd, path).Start()
		}
	}
	return &Manager{
		fetch:  f,
		dir:    opts.Dir,
		open:   open,
		log:    opts.Logger,
		states: make(map[string]State),
	}
}

// State returns the current state for id.
func (m *Manager) State(id string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[id]
}

// Forget drops the state for id once its row leaves the screen. A record
// that is still busy keeps its state.
func (m *Manager) Forget(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.states[id].Busy == Idle {
		delete(m.states, id)
	}
}

// Download saves the attachment to <dir>/<id>.pdf and returns the path.
func (m *Manager) Download(ctx context.Context, id string) (string, error) {
	return m.run(ctx, id, Downloading, func(blob []byte) (string, error) {
		if err := os.MkdirAll(m.dir, 0o755); err != nil {
			return "", fmt.Errorf("create download dir: %w", err)
		}
		path := filepath.Join(m.dir, fileName(id))
		if err := os.WriteFile(path, blob, 0o644); err != nil {
			return "", fmt.Errorf("write attachment: %w", err)
		}
		return path, nil
	})
}

// View writes the attachment to a temp file and opens it with the viewer.
func (m *Manager) View(ctx context.Context, id string) (string, error) {
	return m.run(ctx, id, Viewing, func(blob []byte) (string, error) {
		f, err := os.CreateTemp("", "annfeed-*-"+fileName(id))
		if err != nil {
			return "", fmt.Errorf("create temp file: %w", err)
		}
		if _, err := f.Write(blob); err != nil {
			f.Close()
			return "", fmt.Errorf("write temp file: %w", err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("close temp file: %w", err)
		}
		if err := m.open(f.Name()); err != nil {
			return "", fmt.Errorf("open viewer: %w", err)
		}
		return f.Name(), nil
	})
}

func (m *Manager) run(ctx context.Context, id string, busy Busy, deliver func([]byte) (string, error)) (string, error) {
	m.mu.Lock()
	if m.states[id].Busy != Idle {
		m.mu.Unlock()
		return "", ErrBusy
	}
	m.states[id] = State{Busy: busy}
	m.mu.Unlock()

	path, err := m.fetchAndDeliver(ctx, id, deliver)

	st := State{Busy: Idle}
	if err != nil {
		st.Err, st.Retriable = Message(err)
		m.log.Warn("attachment failed", "id", id, "action", busy.String(), "error", err)
	} else {
		m.log.Info("attachment ready", "id", id, "action", busy.String(), "path", path)
	}
	m.mu.Lock()
	m.states[id] = st
	m.mu.Unlock()
	return path, err
}

func (m *Manager) fetchAndDeliver(ctx context.Context, id string, deliver func([]byte) (string, error)) (string, error) {
	blob, err := m.fetch.Attachment(ctx, id)
	if err != nil {
		return "", err
	}
	if info, err := Inspect(blob); err != nil {
		m.log.Warn("attachment is not a valid PDF", "id", id, "bytes", len(blob), "error", err)
	} else {
		m.log.Debug("attachment inspected", "id", id, "pages", info.Pages)
	}
	return deliver(blob)
}

// Message maps an attachment error to the message shown on the row and
// whether retrying may help.
func Message(err error) (string, bool) {
	switch {
	case errors.Is(err, annfeed.ErrNotFound):
		return "attachment not found", false
	case annfeed.IsRetriable(err):
		return "attachment service unavailable, retry", true
	default:
		return "attachment failed: " + err.Error(), false
	}
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

func fileName(id string) string {
	return unsafeName.ReplaceAllString(id, "_") + ".pdf"
}
