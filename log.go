// Copyright 2023 - MinIO, Inc. All rights reserved.
// Use of this source code is governed by the AGPLv3
// license that can be found in the LICENSE file.

package bank

import (
	"context"
	"io"
	"log/slog"

	"github.com/minio/bank/internal/api"
	"github.com/minio/bank/internal/log"
)

// logHandler is an slog.Handler that handles replica log records.
//
// It wraps a custom slog.Handler provided by Config.ErrorLog. If
// Config.ErrorLog is nil, a slog.TextHandler to os.Stderr is used
// as default.
//
// Log records may be handled twice. First, they are passed to the
// custom/default handler. For example to write to standard error.
// Second, they are sent to clients, that have subscribed to the
// ErrorLog API, if any.
type logHandler struct {
	h     slog.Handler
	level slog.Leveler

	text slog.Handler
	out  *api.LogStream // clients subscribed to the ErrorLog API
}

// newLogHandler returns a new logHandler that passes records to h.
//
// A record is only sent to clients subscribed to the ErrorLog API,
// and to tap, if its log level is >= level.
func newLogHandler(h slog.Handler, level slog.Leveler, tap io.Writer) *logHandler {
	handler := &logHandler{
		h:     h,
		level: level,
		out:   api.NewLogStream(tap),
	}
	handler.text = slog.NewTextHandler(handler.out, &slog.HandlerOptions{
		Level: level,
	})
	return handler
}

// NewLogHandler returns a new text or JSON formatted log handler
// writing to w.
func NewLogHandler(w io.Writer, f log.Format, opts *slog.HandlerOptions) slog.Handler {
	switch f {
	case log.JSONFormat:
		return slog.NewJSONHandler(w, opts)
	default:
		return slog.NewTextHandler(w, opts)
	}
}

// Enabled reports whether h handles records at the given level.
func (h *logHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level.Level() && h.h.Enabled(ctx, level) ||
		(h.text.Enabled(ctx, level) && h.out.Active())
}

// Handle handles r by passing it first to the custom/default handler and
// then sending it to all clients subscribed to the ErrorLog API.
func (h *logHandler) Handle(ctx context.Context, r slog.Record) error {
	var err error
	if r.Level >= h.level.Level() {
		err = h.h.Handle(ctx, r)
	}
	if h.out.Active() && h.text.Enabled(ctx, r.Level) {
		if tErr := h.text.Handle(ctx, r); err == nil {
			err = tErr
		}
	}
	return err
}

// WithAttrs returns a new Handler whose attributes consist of
// both the receiver's attributes and the arguments.
func (h *logHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &logHandler{
		h:     h.h.WithAttrs(attrs),
		level: h.level,
		text:  h.text.WithAttrs(attrs),
		out:   h.out, // Share all connections to clients
	}
}

// WithGroup returns a new Handler with the given group appended to
// the receiver's existing groups.
func (h *logHandler) WithGroup(name string) slog.Handler {
	return &logHandler{
		h:     h.h.WithGroup(name),
		level: h.level,
		text:  h.text.WithGroup(name),
		out:   h.out, // Share all connections to clients
	}
}

// Handler returns the underlying custom/default slog.Handler.
func (h *logHandler) Handler() slog.Handler { return h.h }
