// Copyright 2023 - MinIO, Inc. All rights reserved.
// Use of this source code is governed by the AGPLv3
// license that can be found in the LICENSE file.

package bank

import (
	"context"
	"crypto/ed25519"
	"log/slog"
	"net/http"
	"net/netip"
	"time"
)

// AuditRecord describes an audit event logged by a replica.
type AuditRecord struct {
	// Point in time when the audit event happened.
	Time time.Time

	// The request HTTP method. (GET, PUT, ...)
	Method string

	// Request URL path. Always starts with a '/'.
	Path string

	// Identity of the key that signed the request, if any.
	Identity Identity

	// IP address of the client that sent the request.
	RemoteIP netip.Addr

	// Status code the replica responded with.
	StatusCode int

	// Amount of time the replica took to process the
	// request and generate a response.
	ResponseTime time.Duration

	// The log level of this event.
	Level slog.Level

	// The log message describing the event.
	Message string
}

// An AuditHandler handles audit records produced by a replica.
//
// A typical handler may print audit records to standard error,
// or write them to a file or database.
//
// Any of the AuditHandler's methods may be called concurrently
// with itself or with other methods. It is the responsibility
// of the Handler to manage this concurrency.
type AuditHandler interface {
	// Enabled reports whether the handler handles records at
	// the given level. The handler ignores records whose level
	// is lower. It is called early, before an audit record is
	// created, to save effort if the audit event should be
	// discarded.
	Enabled(context.Context, slog.Level) bool

	// Handle handles the AuditRecord. It will only be called when
	// Enabled returns true.
	Handle(context.Context, AuditRecord) error
}

// AuditLogHandler is an AuditHandler adapter that wraps
// an slog.Handler. It converts AuditRecords to slog.Records
// and passes them to the slog.Handler. An AuditLogHandler
// acts as a bridge between AuditHandlers and slog.Handlers.
type AuditLogHandler struct {
	Handler slog.Handler
}

// Enabled reports whether the AuditLogHandler handles records
// at the given level. It returns true if the underlying handler
// returns true.
func (a *AuditLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return a.Handler.Enabled(ctx, level)
}

// Handle converts the AuditRecord to an slog.Record and
// passes it to the underlying handler.
func (a *AuditLogHandler) Handle(ctx context.Context, r AuditRecord) error {
	rec := slog.Record{
		Time:    r.Time,
		Message: r.Message,
		Level:   r.Level,
	}
	rec.AddAttrs(
		slog.Attr{Key: "req", Value: slog.GroupValue(
			slog.String("method", r.Method),
			slog.String("path", r.Path),
			slog.String("ip", r.RemoteIP.String()),
			slog.String("identity", r.Identity.String()),
		)},
		slog.Attr{Key: "res", Value: slog.GroupValue(
			slog.Int("code", r.StatusCode),
			slog.Duration("time", r.ResponseTime),
		)},
	)
	return a.Handler.Handle(ctx, rec)
}

// An auditLogger records information about a request/response
// handled by a replica.
//
// It wraps API handlers. For each request, it creates one
// AuditRecord and passes it to its AuditHandler.
type auditLogger struct {
	h     AuditHandler
	level slog.Leveler
}

// newAuditLogger returns a new auditLogger passing AuditRecords to h.
// If h is nil, the returned auditLogger discards all records.
func newAuditLogger(h AuditHandler, level slog.Leveler) *auditLogger {
	return &auditLogger{
		h:     h,
		level: level,
	}
}

// Audit returns a handler that serves requests using f and
// emits one audit record per request.
func (a *auditLogger) Audit(f http.HandlerFunc) http.HandlerFunc {
	const Level = slog.LevelInfo
	return func(w http.ResponseWriter, r *http.Request) {
		if a.h == nil || Level < a.level.Level() || !a.h.Enabled(r.Context(), Level) {
			f(w, r)
			return
		}

		received := time.Now()
		identity := new(Identity)
		rw := &auditResponseWriter{ResponseWriter: w}
		f(rw, r.WithContext(context.WithValue(r.Context(), identityContextKey{}, identity)))

		if rw.statusCode == 0 {
			rw.statusCode = http.StatusOK
		}
		now := time.Now()
		remoteIP, _ := netip.ParseAddrPort(r.RemoteAddr)
		a.h.Handle(r.Context(), AuditRecord{
			Time:         now,
			Method:       r.Method,
			Path:         r.URL.Path,
			Identity:     *identity,
			RemoteIP:     remoteIP.Addr(),
			StatusCode:   rw.statusCode,
			ResponseTime: now.Sub(received),
			Level:        Level,
			Message:      http.StatusText(rw.statusCode),
		})
	}
}

type identityContextKey struct{}

// setIdentity records the identity of the key that signed
// the request for the audit log.
func setIdentity(r *http.Request, key ed25519.PublicKey) {
	if id, ok := r.Context().Value(identityContextKey{}).(*Identity); ok && len(key) == ed25519.PublicKeySize {
		*id = IdentityOf(key)
	}
}

type auditResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *auditResponseWriter) WriteHeader(status int) {
	if w.statusCode == 0 {
		w.statusCode = status
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *auditResponseWriter) Write(p []byte) (int, error) {
	if w.statusCode == 0 {
		w.statusCode = http.StatusOK
	}
	return w.ResponseWriter.Write(p)
}

func (w *auditResponseWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func (w *auditResponseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
