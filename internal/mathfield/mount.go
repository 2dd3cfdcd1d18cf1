package mathfield

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"

	"latex-mathedit/internal/logger"
	"latex-mathedit/internal/types"
)

var errNoWidget = errors.New("loader returned no widget")

// Loader creates the widget. It may fail when the editing library is not
// available yet.
type Loader func(ctx context.Context) (Widget, error)

// Mount loads the widget and returns a Field around it. A failing loader is
// retried opts.LoadRetries times with a doubling backoff. When every attempt
// fails, or ctx ends first, Mount returns a disabled field showing
// LoadingPlaceholder; the failure is available from LoadError and is never
// returned to the caller.
func Mount(ctx context.Context, load Loader, opts Options) *Field {
	opts = opts.withDefaults()
	log := logger.With(logger.String("component", "mathfield"), logger.String("field", opts.ID))

	var widget Widget
	attempt := 0
	operation := func() error {
		attempt++
		w, err := load(ctx)
		if err == nil && w == nil {
			err = errNoWidget
		}
		if err != nil {
			log.Warn("math widget failed to load",
				logger.Int("attempt", attempt),
				logger.Int("max_attempts", opts.LoadRetries+1),
				logger.Err(err))
			return err
		}
		widget = w
		return nil
	}

	err := backoff.RetryNotifyWithTimer(operation, loadBackOff(ctx, opts), nil, &clockTimer{clock: opts.Clock})
	if err == nil {
		if attempt > 1 {
			log.Info("math widget loaded after retry", logger.Int("attempt", attempt))
		}
		return New(widget, opts)
	}

	appErr := types.NewAppErrorWithDetails(types.ErrWidgetLoad, "math widget unavailable",
		fmt.Sprintf("gave up after %d attempt(s)", attempt), err)
	log.Error("math field disabled", appErr)
	return newDisabled(opts, appErr)
}

// loadBackOff doubles from opts.LoadBackoff without jitter and stops after
// opts.LoadRetries retries or when ctx ends.
func loadBackOff(ctx context.Context, opts Options) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = opts.LoadBackoff
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = time.Hour
	b.MaxElapsedTime = 0
	b.Clock = opts.Clock
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(opts.LoadRetries)), ctx)
}

// clockTimer runs backoff waits on the field's clock.
type clockTimer struct {
	clock clockwork.Clock
	timer clockwork.Timer
}

func (t *clockTimer) Start(d time.Duration) {
	t.Stop()
	t.timer = t.clock.NewTimer(d)
}

func (t *clockTimer) Stop() {
	if t.timer != nil {
		t.timer.Stop()
	}
}

func (t *clockTimer) C() <-chan time.Time {
	return t.timer.Chan()
}
