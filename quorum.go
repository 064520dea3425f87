// Copyright 2024 - MinIO, Inc. All rights reserved.
// Use of this source code is governed by the AGPLv3
// license that can be found in the LICENSE file.

package bank

import (
	"context"
	"errors"
	"log/slog"

	"github.com/minio/bank/internal/api"
	"github.com/minio/bank/internal/protocol"
)

// A reply is the outcome of one replica call. A reply
// with a non-nil err is a bad vote: the replica did not
// answer in time or its answer cannot be trusted.
type reply[T any] struct {
	node  *Node
	value T
	msg   string // protocol.Valid or the reason of a signed rejection
	err   error
}

// quorum calls fn for every replica concurrently and folds the
// replies until the outcome is decided or the client timeout
// elapses.
//
// It returns the first 2f+1 accepted replies in arrival order.
// It returns the rejection reason once f+1 replicas agree on it,
// and ErrQuorumNotReached once more than f replies are bad votes
// or 2f+1 accepted replies are no longer possible.
//
// Replicas that have not answered when the outcome is decided
// keep running in the background until the timeout elapses.
func quorum[T any](ctx context.Context, c *Client, fn func(context.Context, *Node) (T, string, error)) ([]reply[T], error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)

	replies := make(chan reply[T], len(c.replicas))
	for i := range c.replicas {
		node := &c.replicas[i]
		go func() {
			value, msg, err := fn(ctx, node)
			replies <- reply[T]{node: node, value: value, msg: msg, err: err}
		}()
	}

	var (
		remaining  = len(c.replicas)
		accepted   = make([]reply[T], 0, c.quorum)
		bad        int
		rejections = map[string]int{}
		rejected   int // max. number of replicas agreeing on a rejection
	)
	defer func() { drain(c, replies, remaining, cancel) }()

	for remaining > 0 {
		var r reply[T]
		select {
		case r = <-replies:
			remaining--
		case <-ctx.Done():
			if err := ctx.Err(); !errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			return nil, api.ErrQuorumNotReached
		}

		switch {
		case r.err != nil:
			bad++
			c.log.DebugContext(ctx, "bad vote", slog.String("replica", r.node.Name), slog.String("err", r.err.Error()))
		case r.msg == protocol.Valid:
			accepted = append(accepted, r)
		default:
			rejections[r.msg]++
			rejected = max(rejected, rejections[r.msg])
			if rejected > c.f {
				return nil, api.ParseError(r.msg)
			}
		}

		if len(accepted) >= c.quorum {
			return accepted, nil
		}
		if bad > c.f {
			return nil, api.ErrQuorumNotReached
		}
		if len(accepted)+remaining < c.quorum && rejected+remaining <= c.f {
			return nil, api.ErrQuorumNotReached
		}
	}
	return nil, api.ErrQuorumNotReached
}

// drain receives the replies of replicas that have not
// answered yet and calls cancel once all replies have been
// received. It returns immediately and drains in the
// background.
func drain[T any](c *Client, replies <-chan reply[T], remaining int, cancel context.CancelFunc) {
	if remaining == 0 {
		cancel()
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()

		for ; remaining > 0; remaining-- {
			<-replies
		}
	}()
}
