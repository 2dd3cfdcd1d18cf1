// Package keyboard arbitrates the shared on-screen math keyboard between
// math fields.
package keyboard

import (
	"sync"

	"latex-mathedit/internal/logger"
)

// VirtualKeyboard 进程内唯一的虚拟键盘
type VirtualKeyboard interface {
	Show()
	Hide()
	// SetTarget points keystrokes at the field with the given id. An empty id
	// detaches the keyboard.
	SetTarget(fieldID string)
	// SetContainer moves the keyboard into the named host element.
	SetContainer(container string)
}

// Service owns the keyboard. Only the most recently focused field is its
// target and only that field may hide it.
type Service struct {
	mu    sync.Mutex
	kb    VirtualKeyboard
	owner string
}

// NewService wraps kb.
func NewService(kb VirtualKeyboard) *Service {
	return &Service{kb: kb}
}

// Acquire makes fieldID the keyboard target and shows the keyboard.
func (s *Service) Acquire(fieldID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.owner != "" && s.owner != fieldID {
		logger.Debug("keyboard ownership moved",
			logger.String("from", s.owner), logger.String("to", fieldID))
	}
	s.owner = fieldID
	s.kb.SetTarget(fieldID)
	s.kb.Show()
}

// Release hides the keyboard if fieldID still owns it. It reports whether
// the keyboard was released.
func (s *Service) Release(fieldID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if fieldID == "" || s.owner != fieldID {
		return false
	}
	s.owner = ""
	s.kb.Hide()
	s.kb.SetTarget("")
	return true
}

// Owner returns the id of the current owner, or "".
func (s *Service) Owner() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owner
}

// SetContainer forwards to the keyboard.
func (s *Service) SetContainer(container string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kb.SetContainer(container)
}

// Recorder is an in-memory VirtualKeyboard. It is used when no real keyboard
// is attached, e.g. by the CLI and in tests.
type Recorder struct {
	mu        sync.Mutex
	Visible   bool
	Target    string
	Container string
	Calls     []string
}

func (r *Recorder) Show() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Visible = true
	r.Calls = append(r.Calls, "show")
}

func (r *Recorder) Hide() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Visible = false
	r.Calls = append(r.Calls, "hide")
}

func (r *Recorder) SetTarget(fieldID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Target = fieldID
	r.Calls = append(r.Calls, "target:"+fieldID)
}

func (r *Recorder) SetContainer(container string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Container = container
	r.Calls = append(r.Calls, "container:"+container)
}

// Snapshot returns the visible flag and target under the lock.
func (r *Recorder) Snapshot() (visible bool, target string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Visible, r.Target
}
