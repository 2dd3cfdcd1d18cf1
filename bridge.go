package main

import (
	"sync"
)

// bridgeWidget is the Go side of a math-editing element in the webview.
// The frontend pushes the displayed value and focus location; writes go
// back as EventFieldSetValue.
type bridgeWidget struct {
	app *App
	id  string

	mu          sync.Mutex
	displayed   string
	focusWithin bool
}

func (w *bridgeWidget) GetValue() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.displayed
}

func (w *bridgeWidget) SetValue(value string) {
	w.mu.Lock()
	w.displayed = value
	w.mu.Unlock()
	w.app.safeEmit(EventFieldSetValue, map[string]interface{}{"id": w.id, "value": value})
}

func (w *bridgeWidget) ContainsFocus() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.focusWithin
}

func (w *bridgeWidget) setDisplayed(value string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.displayed = value
}

func (w *bridgeWidget) setFocusWithin(inside bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.focusWithin = inside
}

// wailsKeyboard forwards keyboard commands to the frontend singleton.
type wailsKeyboard struct {
	app *App
}

func (k *wailsKeyboard) Show() {
	k.app.safeEmit(EventKeyboardShow)
}

func (k *wailsKeyboard) Hide() {
	k.app.safeEmit(EventKeyboardHide)
}

func (k *wailsKeyboard) SetTarget(fieldID string) {
	k.app.safeEmit(EventKeyboardTarget, fieldID)
}

func (k *wailsKeyboard) SetContainer(container string) {
	k.app.safeEmit(EventKeyboardHost, container)
}
