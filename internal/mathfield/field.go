// Package mathfield wraps a math-editing widget with the focus and typing
// state needed to keep a controlled value in sync without stealing focus.
//
// A Field is driven by three widget events (input, focus, blur) and by the
// parent through SetValue. Every value it emits through OnChange is
// normalized. While the user is typing, an incoming value equal to the last
// emitted one is an echo of our own change and is not written back into the
// widget, so the cursor is never reset mid-keystroke.
package mathfield

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"latex-mathedit/internal/keyboard"
	"latex-mathedit/internal/latex"
	"latex-mathedit/internal/logger"
	"latex-mathedit/internal/types"
)

// Widget is the math-editing widget a Field drives.
type Widget interface {
	GetValue() string
	SetValue(value string)
	// ContainsFocus reports whether the active focus target is inside the
	// widget, including nested editable regions such as matrix cells.
	ContainsFocus() bool
}

// WriteState tracks programmatic writes into the widget.
type WriteState int

const (
	// WriteIdle: input events come from the user.
	WriteIdle WriteState = iota
	// WriteProgrammatic: a SetValue call into the widget is in progress.
	WriteProgrammatic
	// WriteAwaitingEcho: the write returned; its input event may still arrive
	// until one frame has passed.
	WriteAwaitingEcho
)

func (s WriteState) String() string {
	switch s {
	case WriteIdle:
		return "idle"
	case WriteProgrammatic:
		return "programmatic"
	case WriteAwaitingEcho:
		return "awaiting-echo"
	default:
		return "unknown"
	}
}

// Placeholder text of a field whose widget could not be loaded.
const LoadingPlaceholder = "Loading…"

// Options 数学输入框参数
type Options struct {
	ID           string        // 为空时自动生成 UUID
	Value        string        // 初始值
	TypingWindow time.Duration // 最后一次输入后保持 typing 的时长
	BlurSettle   time.Duration // blur 确认前的等待
	EchoFrame    time.Duration // 程序写入后忽略回声的时长
	LoadRetries  int
	LoadBackoff  time.Duration
	Clock        clockwork.Clock
	Keyboard     *keyboard.Service
	OnChange     func(value string)
}

// DefaultOptions returns the stock timings.
func DefaultOptions() Options {
	return Options{
		TypingWindow: 300 * time.Millisecond,
		BlurSettle:   50 * time.Millisecond,
		EchoFrame:    16 * time.Millisecond,
		LoadRetries:  2,
		LoadBackoff:  250 * time.Millisecond,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.TypingWindow <= 0 {
		o.TypingWindow = d.TypingWindow
	}
	if o.BlurSettle < 0 {
		o.BlurSettle = d.BlurSettle
	}
	if o.EchoFrame <= 0 {
		o.EchoFrame = d.EchoFrame
	}
	if o.LoadRetries < 0 {
		o.LoadRetries = 0
	}
	if o.LoadBackoff <= 0 {
		o.LoadBackoff = d.LoadBackoff
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Keyboard == nil {
		o.Keyboard = keyboard.NewService(&keyboard.Recorder{})
	}
	return o
}

// Field 数学输入框：持有焦点/输入状态，独占 EditorFocusState
type Field struct {
	mu     sync.Mutex
	id     string
	widget Widget
	opts   Options
	log    logger.Logger

	state types.EditorFocusState
	write WriteState

	typingTimer clockwork.Timer
	blurTimer   clockwork.Timer
	echoTimer   clockwork.Timer
	echoSeq     uint64

	disabled bool
	loadErr  error
	closed   bool
}

// New creates a Field around a loaded widget and writes opts.Value into it.
func New(widget Widget, opts Options) *Field {
	opts = opts.withDefaults()
	f := &Field{
		id:     opts.ID,
		widget: widget,
		opts:   opts,
		log:    logger.With(logger.String("component", "mathfield"), logger.String("field", opts.ID)),
	}
	f.SetValue(opts.Value)
	return f
}

func newDisabled(opts Options, err error) *Field {
	return &Field{
		id:       opts.ID,
		opts:     opts,
		log:      logger.With(logger.String("component", "mathfield"), logger.String("field", opts.ID)),
		disabled: true,
		loadErr:  err,
		state:    types.EditorFocusState{LastNormalizedValue: latex.Normalize(opts.Value)},
	}
}

// ID returns the field id used as the keyboard handle.
func (f *Field) ID() string {
	return f.id
}

// State returns a snapshot of the focus state.
func (f *Field) State() types.EditorFocusState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// WriteState returns the current write guard state.
func (f *Field) WriteState() WriteState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.write
}

// Value returns the last normalized value emitted or accepted.
func (f *Field) Value() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.LastNormalizedValue
}

// Disabled reports whether the widget failed to load.
func (f *Field) Disabled() bool {
	return f.disabled
}

// LoadError returns the widget load failure of a disabled field.
func (f *Field) LoadError() error {
	return f.loadErr
}

// Placeholder is shown instead of the widget; empty for a working field.
func (f *Field) Placeholder() string {
	if f.disabled {
		return LoadingPlaceholder
	}
	return ""
}

// HandleInput processes an input event from the widget.
func (f *Field) HandleInput() {
	f.mu.Lock()
	if f.closed || f.disabled {
		f.mu.Unlock()
		return
	}
	if f.write != WriteIdle {
		f.mu.Unlock()
		f.log.Debug("ignoring input from programmatic write")
		return
	}
	f.state.IsTyping = true
	stop(&f.typingTimer)
	f.typingTimer = f.opts.Clock.AfterFunc(f.opts.TypingWindow, f.endTyping)
	f.mu.Unlock()

	f.flush()
}

// HandleFocus processes a focus event and takes the shared keyboard.
func (f *Field) HandleFocus() {
	f.mu.Lock()
	if f.closed || f.disabled {
		f.mu.Unlock()
		return
	}
	stop(&f.blurTimer)
	f.state.IsFocused = true
	f.mu.Unlock()

	f.opts.Keyboard.Acquire(f.id)
	f.log.Debug("focused")
}

// HandleBlur schedules a blur confirmation after the settle delay. If focus
// is still inside the widget by then, the blur is dropped.
func (f *Field) HandleBlur() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || f.disabled {
		return
	}
	stop(&f.blurTimer)
	f.blurTimer = f.opts.Clock.AfterFunc(f.opts.BlurSettle, f.confirmBlur)
}

// SetValue applies a value supplied by the parent. It reports whether the
// widget was written.
func (f *Field) SetValue(value string) bool {
	incoming := latex.Normalize(value)

	f.mu.Lock()
	if f.closed || f.disabled {
		f.mu.Unlock()
		return false
	}
	typing, last := f.state.IsTyping, f.state.LastNormalizedValue
	f.mu.Unlock()

	if typing && incoming == last {
		f.log.Debug("skipping echo of emitted value")
		return false
	}
	if latex.Normalize(f.widget.GetValue()) == incoming {
		f.mu.Lock()
		f.state.LastNormalizedValue = incoming
		f.mu.Unlock()
		return false
	}

	f.mu.Lock()
	f.state.LastNormalizedValue = incoming
	f.mu.Unlock()
	f.writeWidget(value)
	f.log.Debug("applied external value", logger.Int("length", len(value)))
	return true
}

// Close cancels pending timers and gives up the keyboard. Events after
// Close are ignored.
func (f *Field) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	stop(&f.typingTimer)
	stop(&f.blurTimer)
	stop(&f.echoTimer)
	f.write = WriteIdle
	f.state.IsFocused = false
	f.state.IsTyping = false
	f.mu.Unlock()

	if !f.disabled {
		f.opts.Keyboard.Release(f.id)
	}
}

// flush reads the widget, repairs the Euler artifact in place and emits the
// normalized value if it differs from the last one emitted.
func (f *Field) flush() {
	raw := f.widget.GetValue()
	fixed := raw
	if strings.Contains(raw, latex.EulerArtifact) {
		fixed = latex.FixEuler(raw)
	}
	normalized := latex.Normalize(fixed)

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	changed := normalized != f.state.LastNormalizedValue
	if changed {
		f.state.LastNormalizedValue = normalized
	}
	onChange := f.opts.OnChange
	f.mu.Unlock()

	if fixed != raw {
		f.writeWidget(fixed)
	}
	if changed && onChange != nil {
		onChange(normalized)
	}
}

// writeWidget writes into the widget with the guard held. The widget call is
// made without the lock so a synchronous input event can re-enter.
func (f *Field) writeWidget(value string) {
	f.mu.Lock()
	stop(&f.echoTimer)
	f.write = WriteProgrammatic
	f.mu.Unlock()

	f.widget.SetValue(value)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		f.write = WriteIdle
		return
	}
	f.write = WriteAwaitingEcho
	f.echoSeq++
	seq := f.echoSeq
	f.echoTimer = f.opts.Clock.AfterFunc(f.opts.EchoFrame, func() { f.settleEcho(seq) })
}

// settleEcho ends the echo frame of write seq. Input the user made during the
// frame was ignored as a possible echo, so a widget value that differs from
// the last normalized one is handled as a fresh input.
func (f *Field) settleEcho(seq uint64) {
	f.mu.Lock()
	if f.closed || f.echoSeq != seq || f.write != WriteAwaitingEcho {
		f.mu.Unlock()
		return
	}
	f.write = WriteIdle
	f.echoTimer = nil
	last := f.state.LastNormalizedValue
	f.mu.Unlock()

	if latex.Normalize(f.widget.GetValue()) != last {
		f.log.Debug("input arrived during echo frame")
		f.HandleInput()
	}
}

func (f *Field) endTyping() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typingTimer = nil
	f.state.IsTyping = false
}

func (f *Field) confirmBlur() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.blurTimer = nil
	f.mu.Unlock()

	if f.widget.ContainsFocus() {
		f.log.Debug("focus stayed inside field")
		return
	}

	f.flush()

	f.mu.Lock()
	stop(&f.typingTimer)
	f.state.IsFocused = false
	f.state.IsTyping = false
	f.mu.Unlock()

	if f.opts.Keyboard.Release(f.id) {
		f.log.Debug("blurred, keyboard released")
	}
}

func stop(t *clockwork.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}
