package main

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"latex-mathedit/internal/mathfield"
	"latex-mathedit/internal/types"
)

func newTestApp(t *testing.T) (*App, clockwork.FakeClock) {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "")

	app, err := NewAppWithConfig(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatalf("NewAppWithConfig() returned error: %v", err)
	}
	fake := clockwork.NewFakeClockAt(time.Unix(0, 0))
	app.clock = fake
	app.startup(context.Background())
	app.ReportWidgetLibrary(true, "")
	t.Cleanup(func() { app.shutdown(context.Background()) })
	return app, fake
}

func TestNewApp(t *testing.T) {
	app := NewApp()
	if app == nil {
		t.Fatal("NewApp() returned nil")
	}
	if app.renderer == nil || app.keyboard == nil {
		t.Fatal("NewApp() should create renderer and keyboard service")
	}
}

func TestApp_Pipeline(t *testing.T) {
	app, _ := newTestApp(t)

	assert.Equal(t, "e", app.Normalize(`\exponentialE`))
	assert.Equal(t, types.ValidationResult{Valid: false, Error: "Unbalanced braces"}, app.Validate("{a"))
	assert.Len(t, app.ParseSegments(`The area is $A=\pi r^2$ square units`), 3)
	assert.NotNil(t, app.ParseSegments(""))
	assert.Contains(t, app.Render(`\(x\)`).HTML, "<math")

	res, err := app.EditSegment(`The area is $A=\pi r^2$ square units`, 1, `A = \pi r^{2}`)
	require.NoError(t, err)
	assert.Equal(t, `The area is $A = \pi r^2$ square units`, res.Text)
}

func TestApp_SuggestWithoutKey(t *testing.T) {
	app, _ := newTestApp(t)

	_, err := app.Suggest("x^{2")
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrConfig, appErr.Code)
}

// waitFieldIdle waits for the echo frame of the last widget write to end.
// Fake clock callbacks run on their own goroutines.
func waitFieldIdle(t *testing.T, app *App, id string) {
	t.Helper()
	s, err := app.session(id)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return s.field.WriteState() == mathfield.WriteIdle
	}, time.Second, time.Millisecond)
}

func fieldState(app *App, id string) types.EditorFocusState {
	state, _ := app.FieldState(id)
	return state
}

func TestApp_FieldLifecycle(t *testing.T) {
	app, fake := newTestApp(t)

	info := app.MountField("x^{2}")
	require.False(t, info.Disabled)
	assert.Equal(t, "x^2", info.Value)
	assert.Empty(t, info.Placeholder)
	fake.Advance(20 * time.Millisecond)
	waitFieldIdle(t, app, info.ID)

	require.NoError(t, app.FieldFocus(info.ID))
	assert.Equal(t, info.ID, app.KeyboardOwner())

	require.NoError(t, app.FieldInput(info.ID, `\frac{1}{2} + {y}`))
	state, err := app.FieldState(info.ID)
	require.NoError(t, err)
	assert.True(t, state.IsTyping)
	assert.Equal(t, `\frac{1}{2} + y`, state.LastNormalizedValue)

	// The parent echoes the emitted value: nothing is written back.
	applied, err := app.FieldSetValue(info.ID, `\frac{1}{2} + y`)
	require.NoError(t, err)
	assert.False(t, applied)

	// Focus moved into a nested cell; the blur is dropped.
	require.NoError(t, app.FieldFocusWithin(info.ID, true))
	require.NoError(t, app.FieldBlur(info.ID))
	fake.Advance(time.Second)
	require.Eventually(t, func() bool { return !fieldState(app, info.ID).IsTyping }, time.Second, time.Millisecond)
	assert.True(t, fieldState(app, info.ID).IsFocused)
	assert.Equal(t, info.ID, app.KeyboardOwner())

	require.NoError(t, app.FieldFocusWithin(info.ID, false))
	require.NoError(t, app.FieldBlur(info.ID))
	fake.Advance(time.Second)
	require.Eventually(t, func() bool { return app.KeyboardOwner() == "" }, time.Second, time.Millisecond)
	assert.False(t, fieldState(app, info.ID).IsFocused)

	require.NoError(t, app.UnmountField(info.ID))
	assert.Error(t, app.FieldInput(info.ID, "z"))
	assert.Error(t, app.UnmountField(info.ID))
}

func TestApp_MountWithoutLibrary(t *testing.T) {
	app, _ := newTestApp(t)
	app.ReportWidgetLibrary(false, "script blocked")
	app.config.GetConfig().WidgetLoadRetry = 0

	info := app.MountField("x")
	assert.True(t, info.Disabled)
	assert.Equal(t, mathfield.LoadingPlaceholder, info.Placeholder)

	// Events on a disabled field are accepted and ignored.
	require.NoError(t, app.FieldInput(info.ID, "y"))
	state, err := app.FieldState(info.ID)
	require.NoError(t, err)
	assert.Equal(t, "x", state.LastNormalizedValue)
}

func TestApp_UnknownField(t *testing.T) {
	app, _ := newTestApp(t)

	_, err := app.FieldState("missing")
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrNotFound, appErr.Code)
}

func TestFrontendDrivesBridge(t *testing.T) {
	page, err := assets.ReadFile("frontend/dist/index.html")
	require.NoError(t, err)
	html := string(page)

	for _, event := range []string{
		EventFieldSetValue, EventFieldChange, EventWidgetLoadFailed,
		EventKeyboardShow, EventKeyboardHide, EventKeyboardTarget, EventKeyboardHost,
	} {
		assert.Contains(t, html, "'"+event+"'", "frontend should listen for %s", event)
	}
	for _, method := range []string{
		"ReportWidgetLibrary", "MountField", "UnmountField", "FieldInput", "FieldFocus",
		"FieldFocusWithin", "FieldBlur", "EditSegment", "ParseSegments", "Render",
		"Validate", "SetKeyboardContainer",
	} {
		assert.Contains(t, html, "App."+method+"(", "frontend should call %s", method)
	}
}
