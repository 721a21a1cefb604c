// Package rcontext threads a context.Context, a *logrus.Entry, and a
// config snapshot together through every action, fetcher, and diff call,
// generalizing the teacher's RequestContext (built for one incoming HTTP
// request) to one long-lived UpdateContext per sequencer run.
package rcontext

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/kestrelgames/cytrus-updater/common/config"
)

type loggerKey struct{}
type configKey struct{}

// UpdateContext is the ambient value every action/fetcher/diff call
// receives instead of a bare context.Context, so logging and
// configuration stay consistent without global state lookups at each
// call site.
type UpdateContext struct {
	context.Context

	Log    *logrus.Entry
	Config *config.UpdaterConfig
}

// Initial builds an UpdateContext with no request-specific fields set yet,
// the way the teacher's rcontext.Initial() seeds a logger before any HTTP
// request exists.
func Initial() UpdateContext {
	return UpdateContext{
		Context: context.Background(),
		Log:     logrus.WithFields(logrus.Fields{"nocontext": true}),
		Config:  config.Get(),
	}.populate()
}

// FromParent wraps an existing context.Context (e.g. one carrying a
// cancellation cause from the sequencer) while keeping the current
// logger/config attached.
func FromParent(parent context.Context, log *logrus.Entry, cfg *config.UpdaterConfig) UpdateContext {
	return UpdateContext{Context: parent, Log: log, Config: cfg}.populate()
}

func (c UpdateContext) populate() UpdateContext {
	c.Context = context.WithValue(c.Context, loggerKey{}, c.Log)
	c.Context = context.WithValue(c.Context, configKey{}, c.Config)
	return c
}

// ReplaceLogger returns a copy of c with log swapped in, both as the
// struct field and as the context value other layers read via LoggerFrom.
func (c UpdateContext) ReplaceLogger(log *logrus.Entry) UpdateContext {
	return UpdateContext{Context: c.Context, Log: log, Config: c.Config}.populate()
}

// LogWithFields returns a copy of c whose logger carries the given fields,
// for attributing a release id, fragment name, action name, or attempt
// count to every subsequent log line in that call chain.
func (c UpdateContext) LogWithFields(fields logrus.Fields) UpdateContext {
	return c.ReplaceLogger(c.Log.WithFields(fields))
}

// LoggerFrom recovers the attached logger from a bare context.Context,
// for code paths (e.g. a ControllableTask's step function) that only have
// the context.Context half of an UpdateContext in hand.
func LoggerFrom(ctx context.Context) *logrus.Entry {
	if log, ok := ctx.Value(loggerKey{}).(*logrus.Entry); ok {
		return log
	}
	return logrus.WithFields(logrus.Fields{"nocontext": true})
}

// ConfigFrom recovers the attached config snapshot from a bare
// context.Context.
func ConfigFrom(ctx context.Context) *config.UpdaterConfig {
	if cfg, ok := ctx.Value(configKey{}).(*config.UpdaterConfig); ok {
		return cfg
	}
	return config.Get()
}
