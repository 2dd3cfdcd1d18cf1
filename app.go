package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/wailsapp/wails/v2/pkg/runtime"

	"latex-mathedit/internal/assist"
	"latex-mathedit/internal/composer"
	"latex-mathedit/internal/config"
	"latex-mathedit/internal/keyboard"
	"latex-mathedit/internal/latex"
	"latex-mathedit/internal/logger"
	"latex-mathedit/internal/mathfield"
	"latex-mathedit/internal/render"
	"latex-mathedit/internal/segment"
	"latex-mathedit/internal/types"
)

// Event names for frontend communication
const (
	EventFieldSetValue    = "mathfield:set-value"
	EventFieldChange      = "mathfield:change"
	EventKeyboardShow     = "keyboard:show"
	EventKeyboardHide     = "keyboard:hide"
	EventKeyboardTarget   = "keyboard:target"
	EventKeyboardHost     = "keyboard:container"
	EventWidgetLoadFailed = "mathfield:load-failed"
)

// errWidgetLibraryMissing is returned by the loader until the frontend
// reports that the math-editing library is available.
var errWidgetLibraryMissing = errors.New("math widget library not loaded")

// App is the main Wails application controller.
// It exposes the normalizer, validator, segment parser and renderer to the
// frontend and owns one mathfield.Field per mounted math input.
type App struct {
	ctx      context.Context
	config   *config.ConfigManager
	renderer *render.Renderer
	keyboard *keyboard.Service
	clock    clockwork.Clock

	assistMu  sync.RWMutex
	assistant *assist.Assistant

	fieldsMu sync.Mutex
	fields   map[string]*fieldSession

	libMu      sync.RWMutex
	libLoaded  bool
	libLoadErr string

	// isWailsRuntime indicates if the app is running in a Wails environment
	// This is used to safely skip EventsEmit calls during tests
	isWailsRuntime bool
}

// fieldSession pairs a field with the widget proxy the frontend drives.
type fieldSession struct {
	field  *mathfield.Field
	widget *bridgeWidget
}

// FieldInfo 挂载结果
type FieldInfo struct {
	ID          string `json:"id"`
	Value       string `json:"value"`
	Disabled    bool   `json:"disabled"`
	Placeholder string `json:"placeholder,omitempty"`
}

// EditResult 编辑数学片段后的结果
type EditResult struct {
	Text       string                 `json:"text"`
	Segments   []types.MathSegment    `json:"segments"`
	Validation types.ValidationResult `json:"validation"`
}

// safeEmit safely emits an event to the frontend.
// It only emits events when running in a Wails environment.
func (a *App) safeEmit(eventName string, data ...interface{}) {
	if !a.isWailsRuntime || a.ctx == nil {
		logger.Debug("event emit skipped (not in Wails runtime)",
			logger.String("event", eventName))
		return
	}
	runtime.EventsEmit(a.ctx, eventName, data...)
}

// SetWailsRuntime sets the Wails runtime flag.
// This should be called from main.go when the app is started in Wails mode.
func (a *App) SetWailsRuntime(isWails bool) {
	a.isWailsRuntime = isWails
}

// NewApp creates a new App.
func NewApp() *App {
	a := &App{
		renderer: render.NewRenderer(),
		clock:    clockwork.NewRealClock(),
		fields:   make(map[string]*fieldSession),
	}
	a.keyboard = keyboard.NewService(&wailsKeyboard{app: a})
	return a
}

// NewAppWithConfig creates a new App with a custom config path.
func NewAppWithConfig(configPath string) (*App, error) {
	configMgr, err := config.NewConfigManager(configPath)
	if err != nil {
		return nil, err
	}
	app := NewApp()
	app.config = configMgr
	return app, nil
}

// startup is called when the app starts. The context is saved
// so we can call the runtime methods.
func (a *App) startup(ctx context.Context) {
	a.ctx = ctx
	logger.Info("application starting up")

	if a.config == nil {
		configMgr, err := config.NewConfigManager("")
		if err != nil {
			logger.Error("failed to create config manager", err)
			return
		}
		a.config = configMgr
	}

	if err := a.config.Load(); err != nil {
		// Continue with defaults if config load fails
		logger.Warn("failed to load config, using defaults", logger.Err(err))
	}
	logger.GetLogger().SetLevel(a.config.GetLogLevel())

	a.initAssistant()
	logger.Info("application startup complete")
}

// shutdown is called when the app is closing. Every mounted field is
// closed so no timer fires after the window is gone.
func (a *App) shutdown(ctx context.Context) {
	logger.Info("application shutting down")

	a.fieldsMu.Lock()
	sessions := a.fields
	a.fields = make(map[string]*fieldSession)
	a.fieldsMu.Unlock()

	for _, s := range sessions {
		s.field.Close()
	}
	logger.Info("application shutdown complete", logger.Int("closedFields", len(sessions)))
}

func (a *App) initAssistant() {
	var assistant *assist.Assistant
	switch {
	case a.config == nil || a.config.GetAPIKey() == "":
		logger.Info("assistant disabled, no API key configured")
	default:
		var err error
		assistant, err = assist.NewFromConfig(a.config)
		if err != nil {
			logger.Warn("failed to initialize assistant", logger.Err(err))
		} else {
			logger.Debug("assistant initialized", logger.String("model", a.config.GetModel()))
		}
	}

	a.assistMu.Lock()
	a.assistant = assistant
	a.assistMu.Unlock()
}

func (a *App) currentAssistant() *assist.Assistant {
	a.assistMu.RLock()
	defer a.assistMu.RUnlock()
	return a.assistant
}

// GetConfig returns the configuration manager.
func (a *App) GetConfig() *config.ConfigManager {
	return a.config
}

// Normalize returns the canonical form of a LaTeX expression.
func (a *App) Normalize(raw string) string {
	return latex.Normalize(raw)
}

// Validate checks brace and $ balance.
func (a *App) Validate(s string) types.ValidationResult {
	return latex.Validate(s)
}

// ParseSegments splits composite text into text and math segments.
func (a *App) ParseSegments(text string) []types.MathSegment {
	segs := segment.Parse(text)
	if segs == nil {
		return []types.MathSegment{}
	}
	return segs
}

// Render renders composite text to preview HTML.
func (a *App) Render(content string) types.RenderResult {
	return a.renderer.Render(content)
}

// EditSegment replaces math segment index of text with content.
func (a *App) EditSegment(text string, index int, content string) (*EditResult, error) {
	doc := composer.NewDocument(text, a.renderer)
	result, err := doc.EditMath(index, content)
	if err != nil {
		return nil, err
	}
	return &EditResult{Text: doc.Text(), Segments: doc.Segments(), Validation: result}, nil
}

// Suggest asks the assistant for a repaired expression.
func (a *App) Suggest(expr string) (*assist.Suggestion, error) {
	ctx := a.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	return a.suggest(ctx, expr)
}

func (a *App) suggest(ctx context.Context, expr string) (*assist.Suggestion, error) {
	assistant := a.currentAssistant()
	if assistant == nil {
		return nil, types.NewAppError(types.ErrConfig, "assistant is not configured", nil)
	}
	return assistant.Suggest(ctx, expr)
}

// GetSettings returns the current configuration.
func (a *App) GetSettings() *types.Config {
	if a.config == nil {
		return nil
	}
	return a.config.GetConfig()
}

// SaveSettings stores the assistant settings and rebuilds the assistant.
func (a *App) SaveSettings(apiKey, baseURL, model string) error {
	if a.config == nil {
		return types.NewAppError(types.ErrConfig, "configuration is not loaded", nil)
	}
	cfg := *a.config.GetConfig()
	cfg.OpenAIAPIKey = apiKey
	cfg.OpenAIBaseURL = baseURL
	cfg.OpenAIModel = model
	a.config.SetConfig(&cfg)
	if err := a.config.Save(); err != nil {
		return err
	}
	a.initAssistant()
	logger.Info("settings saved", logger.String("model", a.config.GetModel()))
	return nil
}

// ReportWidgetLibrary records whether the frontend managed to load the
// math-editing library. Pending MountField retries pick this up.
func (a *App) ReportWidgetLibrary(loaded bool, errMsg string) {
	a.libMu.Lock()
	a.libLoaded = loaded
	a.libLoadErr = errMsg
	a.libMu.Unlock()
	if !loaded {
		logger.Warn("frontend reported math widget library failure", logger.String("error", errMsg))
	}
}

func (a *App) loadWidget(w *bridgeWidget) mathfield.Loader {
	return func(ctx context.Context) (mathfield.Widget, error) {
		a.libMu.RLock()
		loaded, msg := a.libLoaded, a.libLoadErr
		a.libMu.RUnlock()
		if !loaded {
			if msg != "" {
				return nil, fmt.Errorf("%w: %s", errWidgetLibraryMissing, msg)
			}
			return nil, errWidgetLibraryMissing
		}
		return w, nil
	}
}

func (a *App) fieldOptions(id, initial string) mathfield.Options {
	opts := mathfield.DefaultOptions()
	opts.ID = id
	opts.Value = initial
	opts.Clock = a.clock
	opts.Keyboard = a.keyboard
	opts.OnChange = func(value string) {
		a.safeEmit(EventFieldChange, map[string]interface{}{"id": id, "value": value})
	}
	if a.config != nil {
		opts.TypingWindow = a.config.TypingWindow()
		opts.BlurSettle = a.config.BlurSettle()
		opts.EchoFrame = a.config.EchoFrame()
		opts.LoadRetries = a.config.GetConfig().WidgetLoadRetry
		opts.LoadBackoff = a.config.WidgetBackoff()
	}
	return opts
}

// MountField creates a math field session. A widget that cannot be loaded
// yields a disabled field; the error is reported through an event, not
// returned.
func (a *App) MountField(initial string) *FieldInfo {
	id := uuid.NewString()
	ctx := a.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	widget := &bridgeWidget{app: a, id: id}
	field := mathfield.Mount(ctx, a.loadWidget(widget), a.fieldOptions(id, initial))
	if field.Disabled() {
		a.safeEmit(EventWidgetLoadFailed, map[string]interface{}{
			"id":    id,
			"error": field.LoadError().Error(),
		})
	}
	session := &fieldSession{field: field, widget: widget}

	a.fieldsMu.Lock()
	a.fields[id] = session
	a.fieldsMu.Unlock()

	logger.Info("math field mounted", logger.String("field", id), logger.Bool("disabled", field.Disabled()))
	return &FieldInfo{
		ID:          id,
		Value:       field.Value(),
		Disabled:    field.Disabled(),
		Placeholder: field.Placeholder(),
	}
}

func (a *App) session(id string) (*fieldSession, error) {
	a.fieldsMu.Lock()
	defer a.fieldsMu.Unlock()
	s, ok := a.fields[id]
	if !ok {
		return nil, types.NewAppErrorWithDetails(types.ErrNotFound, "math field not found", id, nil)
	}
	return s, nil
}

// FieldInput delivers an input event with the widget's current value.
func (a *App) FieldInput(id, value string) error {
	s, err := a.session(id)
	if err != nil {
		return err
	}
	s.widget.setDisplayed(value)
	s.field.HandleInput()
	return nil
}

// FieldFocus delivers a focus event.
func (a *App) FieldFocus(id string) error {
	s, err := a.session(id)
	if err != nil {
		return err
	}
	s.widget.setFocusWithin(true)
	s.field.HandleFocus()
	return nil
}

// FieldBlur delivers a blur event. Whether focus left the field is decided
// after the settle delay from the last FieldFocusWithin report.
func (a *App) FieldBlur(id string) error {
	s, err := a.session(id)
	if err != nil {
		return err
	}
	s.field.HandleBlur()
	return nil
}

// FieldFocusWithin reports whether the active element is inside the field,
// including nested editable regions.
func (a *App) FieldFocusWithin(id string, inside bool) error {
	s, err := a.session(id)
	if err != nil {
		return err
	}
	s.widget.setFocusWithin(inside)
	return nil
}

// FieldSetValue applies a value from the parent form.
func (a *App) FieldSetValue(id, value string) (bool, error) {
	s, err := a.session(id)
	if err != nil {
		return false, err
	}
	return s.field.SetValue(value), nil
}

// FieldState returns the focus state of a field.
func (a *App) FieldState(id string) (types.EditorFocusState, error) {
	s, err := a.session(id)
	if err != nil {
		return types.EditorFocusState{}, err
	}
	return s.field.State(), nil
}

// UnmountField closes the field and forgets it.
func (a *App) UnmountField(id string) error {
	a.fieldsMu.Lock()
	s, ok := a.fields[id]
	delete(a.fields, id)
	a.fieldsMu.Unlock()
	if !ok {
		return types.NewAppErrorWithDetails(types.ErrNotFound, "math field not found", id, nil)
	}
	s.field.Close()
	logger.Debug("math field unmounted", logger.String("field", id))
	return nil
}

// SetKeyboardContainer moves the shared keyboard into the named element.
func (a *App) SetKeyboardContainer(container string) {
	a.keyboard.SetContainer(container)
}

// KeyboardOwner returns the id of the field the keyboard types into.
func (a *App) KeyboardOwner() string {
	return a.keyboard.Owner()
}
