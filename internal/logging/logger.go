// ChainAuth - Blockchain-anchored authentication broker
// Copyright (C) 2025 ChainAuth
//
// This file is part of ChainAuth.
//
// ChainAuth is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// ChainAuth is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with ChainAuth. If not, see <https://www.gnu.org/licenses/>.

// Package logging provides structured logging for the broker, scoped to
// sessions and connections rather than HTTP requests.
package logging

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ctxKey is the type for context keys used to carry log fields.
type ctxKey string

const (
	sessionIDKey       ctxKey = "session_id"
	clientSessionIDKey ctxKey = "client_session_id"
	aliasKey           ctxKey = "alias"
)

// Logger wraps logrus.Logger with broker-specific field helpers.
type Logger struct {
	*logrus.Logger
	component string
}

// New creates a Logger for the named component ("broker", "chain", "transport", ...).
func New(component, level, format string) *Logger {
	logger := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	}

	logger.SetOutput(os.Stdout)

	return &Logger{Logger: logger, component: component}
}

// NewFromEnv builds a Logger using LOG_LEVEL and LOG_FORMAT, defaulting to
// info/json when unset.
func NewFromEnv(component string) *Logger {
	level := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if level == "" {
		level = "info"
	}
	format := strings.TrimSpace(os.Getenv("LOG_FORMAT"))
	if format == "" {
		format = "json"
	}
	return New(component, level, format)
}

// WithContext returns an entry carrying whichever session/alias fields ctx holds.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithField("component", l.component)

	if v := ctx.Value(sessionIDKey); v != nil {
		entry = entry.WithField("session_id", v)
	}
	if v := ctx.Value(clientSessionIDKey); v != nil {
		entry = entry.WithField("client_session_id", v)
	}
	if v := ctx.Value(aliasKey); v != nil {
		entry = entry.WithField("alias", v)
	}
	return entry
}

// WithSession returns an entry scoped to a session ID.
func (l *Logger) WithSession(sessionID string) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{
		"component":  l.component,
		"session_id": sessionID,
	})
}

// WithFields returns an entry carrying the component field plus the given fields.
func (l *Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	if fields == nil {
		fields = logrus.Fields{}
	}
	fields["component"] = l.component
	return l.Logger.WithFields(fields)
}

// WithError returns an entry carrying the component field plus the error.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{
		"component": l.component,
		"error":     err.Error(),
	})
}

// WithSessionID adds a session ID to ctx for later retrieval by WithContext.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// WithClientSessionID adds a client session ID to ctx.
func WithClientSessionID(ctx context.Context, clientSessionID string) context.Context {
	return context.WithValue(ctx, clientSessionIDKey, clientSessionID)
}

// WithAlias adds an alias to ctx.
func WithAlias(ctx context.Context, alias string) context.Context {
	return context.WithValue(ctx, aliasKey, alias)
}
