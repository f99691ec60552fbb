package sentry

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"

	"optionsflow/pkg/errors"
)

const defaultFlushTimeout = 2 * time.Second

var _ errors.Tracker = (*Tracker)(nil)

// Options configures the Sentry client
type Options struct {
	DSN         string
	Environment string
	Release     string
	ServerName  string
	SampleRate  float64 // 0 means send everything
}

// Tracker reports errors to Sentry through a private hub.
// A Tracker built by Disabled drops everything.
type Tracker struct {
	hub *sentry.Hub
}

// New creates a tracker with its own client so tests and tools never touch
// the global hub
func New(opts Options) (*Tracker, error) {
	if opts.DSN == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "sentry dsn is empty")
	}

	sampleRate := opts.SampleRate
	if sampleRate <= 0 || sampleRate > 1 {
		sampleRate = 1
	}

	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:         opts.DSN,
		Environment: opts.Environment,
		Release:     opts.Release,
		ServerName:  opts.ServerName,
		SampleRate:  sampleRate,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to init sentry")
	}

	return &Tracker{hub: sentry.NewHub(client, sentry.NewScope())}, nil
}

// Disabled returns a tracker that records nothing
func Disabled() *Tracker {
	return &Tracker{}
}

// Enabled reports whether events reach Sentry
func (t *Tracker) Enabled() bool {
	return t.hub != nil
}

// CaptureError sends err with tags plus the ticker carried by ctx, if any
func (t *Tracker) CaptureError(ctx context.Context, err error, tags map[string]string) error {
	if t.hub == nil || err == nil {
		return nil
	}

	t.hub.WithScope(func(scope *sentry.Scope) {
		applyTags(ctx, scope, tags)
		t.hub.CaptureException(err)
	})
	return nil
}

// CaptureMessage sends a message at the given level
func (t *Tracker) CaptureMessage(ctx context.Context, message string, level errors.Level, tags map[string]string) error {
	if t.hub == nil {
		return nil
	}

	t.hub.WithScope(func(scope *sentry.Scope) {
		applyTags(ctx, scope, tags)
		scope.SetLevel(convertLevel(level))
		t.hub.CaptureMessage(message)
	})
	return nil
}

// AddBreadcrumb records a step that is attached to later events
func (t *Tracker) AddBreadcrumb(ctx context.Context, message string, category string, level errors.Level, data map[string]interface{}) {
	if t.hub == nil {
		return
	}

	t.hub.AddBreadcrumb(&sentry.Breadcrumb{
		Message:   message,
		Category:  category,
		Level:     convertLevel(level),
		Data:      data,
		Timestamp: time.Now().UTC(),
	}, &sentry.BreadcrumbHint{})
}

// Flush waits for queued events until ctx's deadline, or 2s without one
func (t *Tracker) Flush(ctx context.Context) error {
	if t.hub == nil {
		return nil
	}

	timeout := defaultFlushTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if !t.hub.Flush(timeout) {
		return errors.Wrap(errors.ErrTimeout, "sentry flush")
	}
	return nil
}

func applyTags(ctx context.Context, scope *sentry.Scope, tags map[string]string) {
	scope.SetTags(tags)
	if ticker, ok := errors.TickerFromContext(ctx); ok {
		scope.SetTag("ticker", ticker)
	}
}

var levels = map[errors.Level]sentry.Level{
	errors.LevelDebug:   sentry.LevelDebug,
	errors.LevelInfo:    sentry.LevelInfo,
	errors.LevelWarning: sentry.LevelWarning,
	errors.LevelError:   sentry.LevelError,
	errors.LevelFatal:   sentry.LevelFatal,
}

func convertLevel(level errors.Level) sentry.Level {
	if l, ok := levels[level]; ok {
		return l
	}
	return sentry.LevelInfo
}
