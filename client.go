// Copyright 2024 - MinIO, Inc. All rights reserved.
// Use of this source code is governed by the AGPLv3
// license that can be found in the LICENSE file.

package bank

import (
	"context"
	"crypto/ed25519"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/minio/bank/internal/api"
	"github.com/minio/bank/internal/protocol"
)

// ClientConfig is a structure containing the configuration
// of a Client.
type ClientConfig struct {
	// Byzantine is the number of arbitrarily faulty
	// replicas tolerated. There must be exactly
	// 3*Byzantine+1 Replicas.
	Byzantine int

	// Replicas are all replicas of the bank.
	Replicas []Node

	// Key is the account key of the client. It signs
	// all requests.
	Key APIKey

	// Timeout is the deadline of one client call. If 0,
	// defaults to DefaultTimeout.
	Timeout time.Duration

	// TLS, if not nil, is the TLS configuration used to
	// connect to replicas.
	TLS *tls.Config

	// HTTPClient, if not nil, is used to send requests to
	// replicas. It takes precedence over TLS.
	HTTPClient *http.Client

	// ErrorLog, if not nil, logs bad votes and failed
	// write-backs at debug level.
	ErrorLog *slog.Logger
}

// Account is the state of an account agreed on by a quorum
// of replicas.
type Account struct {
	Username string
	Key      ed25519.PublicKey
	Balance  int64
	WID      uint64
	RID      uint64
	Pending  []Transaction
}

// Client is a quorum client of the bank. It sends each
// request to all replicas and accepts a result once 2f+1
// replicas returned valid, signed responses.
//
// A Client repairs lagging replicas by writing back the
// state that f+1 replicas agree on, together with their
// signed responses. Close waits for all outstanding
// write-backs.
type Client struct {
	key      ed25519.PrivateKey
	pub      ed25519.PublicKey
	replicas []Node
	f        int
	quorum   int
	timeout  time.Duration
	client   *http.Client
	log      *slog.Logger

	wg sync.WaitGroup // in-flight replica calls and write-backs
}

// NewClient returns a new Client for the given ClientConfig.
func NewClient(conf *ClientConfig) (*Client, error) {
	if conf.Key == nil {
		return nil, errors.New("bank: invalid config: no API key")
	}
	if err := verifyReplicas(conf.Byzantine, conf.Replicas); err != nil {
		return nil, err
	}

	client := conf.HTTPClient
	if client == nil {
		client = newHTTPClient(conf.TLS)
	}
	timeout := conf.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	log := conf.ErrorLog
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		key:      conf.Key.Private(),
		pub:      conf.Key.Public(),
		replicas: slices.Clone(conf.Replicas),
		f:        conf.Byzantine,
		quorum:   2*conf.Byzantine + 1,
		timeout:  timeout,
		client:   client,
		log:      log,
	}, nil
}

// Key returns the client's account key.
func (c *Client) Key() ed25519.PublicKey { return c.pub }

// Close waits until all replica calls and write-backs
// running in the background have completed.
func (c *Client) Close() error {
	c.wg.Wait()
	return nil
}

// Ping sends text to all replicas and returns the text
// followed by "Pong".
func (c *Client) Ping(ctx context.Context, text string) (string, error) {
	req := &protocol.PingRequest{Text: text}
	accepted, err := quorum(ctx, c, func(ctx context.Context, node *Node) (*protocol.PingResponse, string, error) {
		var resp protocol.PingResponse
		if err := call(ctx, c.client, node.Addr, api.PathPing, req, &resp); err != nil {
			return nil, "", err
		}
		if err := verifyReplica(node, resp.Replica, resp.Transcript(), resp.Signature); err != nil {
			return nil, "", err
		}
		if resp.Message == protocol.Valid && resp.Text != text+"Pong" {
			return nil, "", errors.New("bank: invalid ping response")
		}
		return &resp, resp.Message, nil
	})
	if err != nil {
		return "", fmt.Errorf("bank: ping: %w", err)
	}
	return accepted[0].value.Text, nil
}

// OpenAccount opens the client's account with the given
// username and the initial balance.
func (c *Client) OpenAccount(ctx context.Context, username string) error {
	req := &protocol.OpenRequest{
		Key:      c.pub,
		Username: username,
		Balance:  InitialBalance,
		WID:      0,
	}
	req.PairSignature = protocol.Pair(c.pub, req.Balance, req.WID).Sign(c.key)
	req.Signature = req.Transcript().Sign(c.key)

	_, err := quorum(ctx, c, func(ctx context.Context, node *Node) (*protocol.OpenResponse, string, error) {
		var resp protocol.OpenResponse
		if err := call(ctx, c.client, node.Addr, api.PathAccountOpen, req, &resp); err != nil {
			return nil, "", err
		}
		if err := verifyReplica(node, resp.Replica, resp.Transcript(), resp.Signature); err != nil {
			return nil, "", err
		}
		if !resp.Key.Equal(node.PublicKey) || !resp.Account.Equal(c.pub) {
			return nil, "", errors.New("bank: response does not match request")
		}
		return &resp, resp.Message, nil
	})
	if err != nil {
		return fmt.Errorf("bank: open account: %w", err)
	}
	return nil
}

// RID returns the (f+1)-th highest rid of the account
// returned by a quorum of replicas. At least one correct
// replica has reached this rid.
func (c *Client) RID(ctx context.Context, key ed25519.PublicKey) (uint64, error) {
	nonce, err := protocol.NewNonce()
	if err != nil {
		return 0, err
	}
	req := &protocol.RIDRequest{Key: key, Nonce: nonce}

	accepted, err := quorum(ctx, c, func(ctx context.Context, node *Node) (*protocol.RIDResponse, string, error) {
		var resp protocol.RIDResponse
		if err := call(ctx, c.client, node.Addr, api.PathAccountRID, req, &resp); err != nil {
			return nil, "", err
		}
		if err := verifyReplica(node, resp.Replica, resp.Transcript(), resp.Signature); err != nil {
			return nil, "", err
		}
		if resp.Nonce != nonce+1 || !resp.Key.Equal(key) {
			return nil, "", errors.New("bank: response does not match request")
		}
		return &resp, resp.Message, nil
	})
	if err != nil {
		return 0, fmt.Errorf("bank: rid: %w", err)
	}

	rids := make([]uint64, 0, len(accepted))
	for _, r := range accepted {
		rids = append(rids, r.value.RID)
	}
	return protocol.VouchedRID(c.f, rids), nil
}

// CheckAccount returns the balance, wid and pending transfers
// of the account. It returns the freshest state returned by
// a quorum of replicas. The state vouched for by f+1 of them
// is written back to replicas that are lagging or did not
// answer with a valid response.
func (c *Client) CheckAccount(ctx context.Context, key ed25519.PublicKey) (*Account, error) {
	var accepted []reply[*protocol.CheckResponse]
	err := c.read(ctx, key, protocol.OpCheck, func(req *protocol.ReadRequest) (err error) {
		accepted, err = quorum(ctx, c, func(ctx context.Context, node *Node) (*protocol.CheckResponse, string, error) {
			var resp protocol.CheckResponse
			if err := call(ctx, c.client, node.Addr, api.PathAccountCheck, req, &resp); err != nil {
				return nil, "", err
			}
			if err := verifyRead(node, req, resp.Replica, resp.Target, resp.Nonce, resp.Transcript(), resp.Signature); err != nil {
				return nil, "", err
			}
			if resp.Message != protocol.Valid {
				return &resp, resp.Message, nil
			}
			if !protocol.Pair(key, resp.Balance, resp.WID).Verify(key, resp.PairSignature) {
				return nil, "", errors.New("bank: invalid pair signature")
			}
			if !protocol.VerifyAll(resp.Pending) || !transfersTo(key, resp.Pending) {
				return nil, "", errors.New("bank: invalid pending transfer")
			}
			return &resp, resp.Message, nil
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("bank: check account: %w", err)
	}

	best := accepted[0].value
	for _, r := range accepted[1:] {
		if fresher(r.value, best) {
			best = r.value
		}
	}
	proofs := make([]protocol.CheckResponse, 0, len(accepted))
	for _, r := range accepted {
		proofs = append(proofs, *r.value)
	}
	if vouched, ok := protocol.VouchedState(c.f, proofs); ok {
		wb := &protocol.CheckWriteBackRequest{
			Requester: c.pub,
			Target:    key,
			Proofs:    proofs,
		}
		wb.Signature = wb.Transcript().Sign(c.key)
		for _, r := range accepted {
			if fresher(vouched, r.value) {
				c.writeBack(r.node, api.PathAccountCheckWriteBack, wb)
			}
		}
		for _, node := range unanswered(c, accepted) {
			c.writeBack(node, api.PathAccountCheckWriteBack, wb)
		}
	}
	return &Account{
		Username: best.Username,
		Key:      key,
		Balance:  best.Balance,
		WID:      best.WID,
		RID:      best.RID,
		Pending:  best.Pending,
	}, nil
}

// Audit returns the history of the account. It returns the
// longest history returned by a quorum of replicas. The
// history vouched for by f+1 of them is written back to
// replicas that are lagging or did not answer with a valid
// response.
func (c *Client) Audit(ctx context.Context, key ed25519.PublicKey) ([]Transaction, error) {
	var accepted []reply[*protocol.AuditResponse]
	err := c.read(ctx, key, protocol.OpAudit, func(req *protocol.ReadRequest) (err error) {
		accepted, err = quorum(ctx, c, func(ctx context.Context, node *Node) (*protocol.AuditResponse, string, error) {
			var resp protocol.AuditResponse
			if err := call(ctx, c.client, node.Addr, api.PathAccountAudit, req, &resp); err != nil {
				return nil, "", err
			}
			if err := verifyRead(node, req, resp.Replica, resp.Target, resp.Nonce, resp.Transcript(), resp.Signature); err != nil {
				return nil, "", err
			}
			if resp.Message == protocol.Valid && (!protocol.VerifyAll(resp.History) || !involves(key, resp.History)) {
				return nil, "", errors.New("bank: invalid history")
			}
			return &resp, resp.Message, nil
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("bank: audit: %w", err)
	}

	best := accepted[0].value
	for _, r := range accepted[1:] {
		if len(r.value.History) > len(best.History) {
			best = r.value
		}
	}

	proofs := make([]protocol.AuditResponse, 0, len(accepted))
	for _, r := range accepted {
		proofs = append(proofs, *r.value)
	}
	if history, _, ok := protocol.VouchedHistory(c.f, proofs); ok {
		wb := &protocol.AuditWriteBackRequest{
			Requester: c.pub,
			Target:    key,
			Proofs:    proofs,
		}
		wb.Signature = wb.Transcript().Sign(c.key)
		for _, r := range accepted {
			if len(r.value.History) < len(history) {
				c.writeBack(r.node, api.PathAccountAuditWriteBack, wb)
			}
		}
		for _, node := range unanswered(c, accepted) {
			c.writeBack(node, api.PathAccountAuditWriteBack, wb)
		}
	}
	return best.History, nil
}

// read fetches the account's rid and calls fn with a signed
// read request for the next rid. Concurrent readers of the
// same account may race for a rid. Hence, read retries a
// stale read with a new rid.
func (c *Client) read(ctx context.Context, key ed25519.PublicKey, op string, fn func(*protocol.ReadRequest) error) error {
	const MaxAttempts = 3

	var err error
	for i := 0; i < MaxAttempts; i++ {
		var rid, nonce uint64
		if rid, err = c.RID(ctx, key); err != nil {
			return err
		}
		if rid == math.MaxUint64 {
			return errors.New("bank: rid of account exhausted")
		}
		if nonce, err = protocol.NewNonce(); err != nil {
			return err
		}

		req := &protocol.ReadRequest{
			Target:    key,
			Requester: c.pub,
			RID:       rid + 1,
			Nonce:     nonce,
		}
		req.Signature = req.Transcript(op).Sign(c.key)
		if err = fn(req); !errors.Is(err, api.ErrStaleRead) {
			return err
		}
	}
	return err
}

// SendAmount transfers amount from the client's account to
// the pending transfers of the destination account.
func (c *Client) SendAmount(ctx context.Context, to ed25519.PublicKey, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("bank: send amount: %w", api.ErrInvalidAmount)
	}
	if to.Equal(c.pub) {
		return fmt.Errorf("bank: send amount: %w", api.ErrInvalidTransfer)
	}

	src, err := c.CheckAccount(ctx, c.pub)
	if err != nil {
		return err
	}
	dst, err := c.CheckAccount(ctx, to)
	if err != nil {
		return err
	}
	if src.Balance < amount {
		return fmt.Errorf("bank: send amount: %w", api.ErrInsufficientBalance)
	}

	req := &protocol.SendRequest{
		Transaction: protocol.Transaction{
			SourceUsername: src.Username,
			DestUsername:   dst.Username,
			Amount:         amount,
			SourceKey:      c.pub,
			DestKey:        to,
			WID:            src.WID + 1,
		},
		NewBalance: src.Balance - amount,
	}
	req.Transaction.Sign(c.key)
	req.PairSignature = protocol.Pair(c.pub, req.NewBalance, req.Transaction.WID).Sign(c.key)
	req.Signature = req.Transcript().Sign(c.key)

	if err = c.write(ctx, api.PathAccountSend, protocol.OpSend, req.Transaction.WID, req); err != nil {
		return fmt.Errorf("bank: send amount: %w", err)
	}
	return nil
}

// ReceiveAmount accepts the pending transfer at index. The
// amount is credited to the client's account.
func (c *Client) ReceiveAmount(ctx context.Context, index uint64) error {
	a, err := c.CheckAccount(ctx, c.pub)
	if err != nil {
		return err
	}
	if index >= uint64(len(a.Pending)) {
		return fmt.Errorf("bank: receive amount: %w", api.ErrInvalidTransfer)
	}
	tx := a.Pending[index]

	req := &protocol.ReceiveRequest{
		Key:           c.pub,
		Index:         index,
		WID:           a.WID + 1,
		FutureBalance: a.Balance + tx.Amount,
		ToAudit:       tx.Mirror(),
	}
	req.ToAudit.Sign(c.key)
	req.PairSignature = protocol.Pair(c.pub, req.FutureBalance, req.WID).Sign(c.key)
	req.Signature = req.Transcript().Sign(c.key)

	if err = c.write(ctx, api.PathAccountReceive, protocol.OpReceive, req.WID, req); err != nil {
		return fmt.Errorf("bank: receive amount: %w", err)
	}
	return nil
}

// write sends a write request of the client's account to all
// replicas. A valid response must confirm the requested wid.
func (c *Client) write(ctx context.Context, path, op string, wid uint64, req any) error {
	_, err := quorum(ctx, c, func(ctx context.Context, node *Node) (*protocol.WriteResponse, string, error) {
		var resp protocol.WriteResponse
		if err := call(ctx, c.client, node.Addr, path, req, &resp); err != nil {
			return nil, "", err
		}
		if err := verifyReplica(node, resp.Replica, resp.Transcript(op), resp.Signature); err != nil {
			return nil, "", err
		}
		if !resp.Key.Equal(c.pub) {
			return nil, "", errors.New("bank: response does not match request")
		}
		if resp.Message == protocol.Valid && resp.WID != wid {
			return nil, "", fmt.Errorf("bank: replica confirmed wid %d instead of %d", resp.WID, wid)
		}
		return &resp, resp.Message, nil
	})
	return err
}

// writeBack sends a write-back request to a lagging replica
// in the background.
func (c *Client) writeBack(node *Node, path string, req any) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()

		var resp protocol.WriteBackResponse
		if err := call(ctx, c.client, node.Addr, path, req, &resp); err != nil {
			c.log.Debug("write-back failed", slog.String("replica", node.Name), slog.String("err", err.Error()))
			return
		}
		if err := verifyReplica(node, resp.Replica, resp.Transcript(), resp.Signature); err != nil {
			c.log.Debug("write-back failed", slog.String("replica", node.Name), slog.String("err", err.Error()))
			return
		}
		if resp.Message != protocol.Valid {
			c.log.Debug("write-back rejected", slog.String("replica", node.Name), slog.String("reason", resp.Message))
		}
	}()
}

// unanswered returns the replicas without an accepted reply.
func unanswered[T any](c *Client, accepted []reply[T]) []*Node {
	var nodes []*Node
	for i := range c.replicas {
		node := &c.replicas[i]
		if !slices.ContainsFunc(accepted, func(r reply[T]) bool { return r.node == node }) {
			nodes = append(nodes, node)
		}
	}
	return nodes
}

// fresher reports whether a is a fresher account state
// than b. Pending transfers are appended without changing
// the account's wid. Hence, a state with more pending
// transfers is fresher than a state with the same wid.
func fresher(a, b *protocol.CheckResponse) bool {
	if a.WID != b.WID {
		return a.WID > b.WID
	}
	return len(a.Pending) > len(b.Pending)
}

// verifyReplica verifies that a response has been signed
// by the replica it has been sent to.
func verifyReplica(node *Node, replica string, t *protocol.Transcript, signature []byte) error {
	if replica != node.Name {
		return fmt.Errorf("bank: response of replica '%s' claims to be from '%s'", node.Name, replica)
	}
	if !t.Verify(node.PublicKey, signature) {
		return fmt.Errorf("bank: invalid signature of replica '%s'", node.Name)
	}
	return nil
}

// verifyRead verifies the replica signature of a read
// response and that the response answers req.
func verifyRead(node *Node, req *protocol.ReadRequest, replica string, target ed25519.PublicKey, nonce uint64, t *protocol.Transcript, signature []byte) error {
	if err := verifyReplica(node, replica, t, signature); err != nil {
		return err
	}
	if nonce != req.Nonce+1 || !target.Equal(req.Target) {
		return errors.New("bank: response does not match request")
	}
	return nil
}
