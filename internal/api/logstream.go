// Copyright 2024 - MinIO, Inc. All rights reserved.
// Use of this source code is governed by the AGPLv3
// license that can be found in the LICENSE file.

package api

import (
	"encoding/json"
	"io"
	"net/http"
	"slices"
	"sync"
)

// LogStream is an io.Writer that forwards log lines to the
// clients subscribed to the error log API. Each line is
// sent as one JSON encoded ErrorLogEvent.
//
// A subscriber whose write fails is dropped. A LogStream
// may be used by multiple go routines concurrently.
type LogStream struct {
	tap io.Writer

	mu   sync.RWMutex
	subs []*subscriber
}

type subscriber struct {
	encoder *json.Encoder
	flusher http.Flusher
	dropped chan struct{}
	once    sync.Once
}

func (s *subscriber) drop() { s.once.Do(func() { close(s.dropped) }) }

// NewLogStream returns a new LogStream without subscribers.
// If tap is not nil, every log line is also written to tap
// unmodified. Write errors of tap are ignored.
func NewLogStream(tap io.Writer) *LogStream {
	return &LogStream{tap: tap}
}

// Active reports whether log lines written to s reach
// any subscriber or the tap.
func (s *LogStream) Active() bool {
	if s.tap != nil {
		return true
	}
	return s.Len() > 0
}

// Len returns the number of subscribers.
func (s *LogStream) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// Subscribe adds w as subscriber. It returns a channel that
// is closed once w has been dropped because a write failed,
// and a function that removes w. Removing w more than once
// is a no-op.
func (s *LogStream) Subscribe(w io.Writer) (<-chan struct{}, func()) {
	flusher, _ := w.(http.Flusher)
	sub := &subscriber{
		encoder: json.NewEncoder(w),
		flusher: flusher,
		dropped: make(chan struct{}),
	}

	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()
	return sub.dropped, func() { s.remove(sub) }
}

// Write sends p as ErrorLogEvent to all subscribers. A
// trailing newline is removed. Write never fails, such that
// a slow or broken client cannot fail logging.
func (s *LogStream) Write(p []byte) (int, error) {
	n := len(p)
	if n == 0 {
		return 0, nil
	}
	if s.tap != nil {
		s.tap.Write(p)
	}

	s.mu.RLock()
	subs := slices.Clone(s.subs)
	s.mu.RUnlock()
	if len(subs) == 0 {
		return n, nil
	}

	event := ErrorLogEvent{Message: string(p)}
	if p[n-1] == '\n' {
		event.Message = string(p[:n-1])
	}
	for _, sub := range subs {
		if err := sub.encoder.Encode(event); err != nil {
			s.remove(sub)
			continue
		}
		if sub.flusher != nil {
			sub.flusher.Flush()
		}
	}
	return n, nil
}

func (s *LogStream) remove(sub *subscriber) {
	s.mu.Lock()
	s.subs = slices.DeleteFunc(s.subs, func(v *subscriber) bool { return v == sub })
	s.mu.Unlock()
	sub.drop()
}
