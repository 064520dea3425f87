// Copyright 2023 - MinIO, Inc. All rights reserved.
// Use of this source code is governed by the AGPLv3
// license that can be found in the LICENSE file.

package bank

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"
)

// ErrStopped is returned by a Server that has been stopped.
var ErrStopped = errors.New("bank: server stopped")

// Server is a replica HTTP server.
type Server struct {
	addr    atomic.Pointer[Addr]
	replica atomic.Pointer[Replica]

	stop              atomic.Pointer[context.CancelCauseFunc]
	starting, started atomic.Bool
	shutdown          atomic.Bool
}

// Addr returns the server's listening address.
// If the Server hasn't been started, it returns
// the zero Addr.
func (s *Server) Addr() Addr {
	if a := s.addr.Load(); a != nil {
		return *a
	}
	return Addr{}
}

// Replica returns the replica served by the Server,
// or nil if the Server hasn't been started.
func (s *Server) Replica() *Replica { return s.replica.Load() }

// ListenAndStart listens on the Config's address and
// serves the replica until ctx is done or the Server is
// stopped.
func (s *Server) ListenAndStart(ctx context.Context, conf *Config) error {
	addr := conf.Addr
	if addr == "" {
		addr = ":7373"
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Start(ctx, listener, conf)
}

// Start serves the replica on the listener until ctx is
// done or the Server is stopped. It closes the listener.
// If the Config contains a TLS configuration, Start serves
// TLS connections on the listener.
//
// A Server can only be started once. Once stopped, Start
// returns ErrStopped.
func (s *Server) Start(ctx context.Context, listener net.Listener, conf *Config) error {
	defer listener.Close()

	if s.shutdown.Load() {
		return ErrStopped
	}
	if !s.starting.CompareAndSwap(false, true) {
		return errors.New("bank: server already started")
	}

	addr, err := ParseAddr(listener.Addr().String())
	if err != nil {
		return err
	}
	if conf.TLS == nil {
		addr.insecure = true
	} else {
		config := conf.TLS.Clone()
		if config.MinVersion < tls.VersionTLS12 {
			config.MinVersion = tls.VersionTLS12
		}
		config.NextProtos = []string{"h2", "http/1.1"} // Prefer HTTP/2 but also support HTTP/1.1
		listener = tls.NewListener(listener, config)
	}
	replica, err := NewReplica(conf)
	if err != nil {
		return err
	}
	defer replica.Close()

	ctx, stop := context.WithCancelCause(ctx)
	defer stop(nil)
	s.stop.Store(&stop)
	if s.shutdown.Load() {
		stop(ErrStopped)
	}
	s.addr.Store(&addr)
	s.replica.Store(replica)

	srv := &http.Server{
		Handler:           replica.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      0 * time.Second, // explicitly set no write timeout - we use http.ResponseController
		IdleTimeout:       90 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
		ErrorLog:          slog.NewLogLogger(replica.errorLog, slog.LevelError),
	}
	srvCh := make(chan error, 1)
	go func() { srvCh <- srv.Serve(listener) }()

	s.started.Store(true)
	replica.log.Info("replica started", slog.String("addr", addr.String()))

	select {
	case err := <-srvCh:
		return err
	case <-ctx.Done():
		s.shutdown.Store(true)

		graceCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		err := srv.Shutdown(graceCtx)
		if errors.Is(err, context.DeadlineExceeded) {
			err = srv.Close()
		}
		if err == nil {
			err = http.ErrServerClosed
		}
		return err
	}
}

// Stop stops a started Server. Once stopped,
// a Server cannot be started again and Start
// returns ErrStopped.
//
// If the Server is already stopped or has been
// shutdown in any other way, Stop does nothing.
func (s *Server) Stop() {
	if !s.shutdown.CompareAndSwap(false, true) {
		return
	}
	if stop := s.stop.Load(); stop != nil {
		(*stop)(ErrStopped)
	}
}
