// Copyright 2024 - MinIO, Inc. All rights reserved.
// Use of this source code is governed by the AGPLv3
// license that can be found in the LICENSE file.

package bank

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/minio/bank/internal/api"
	"github.com/minio/bank/internal/broadcast"
	"github.com/minio/bank/internal/ledger"
	"github.com/minio/bank/internal/metric"
	"github.com/minio/bank/internal/protocol"
)

// Transaction is a transfer between two accounts.
type Transaction = protocol.Transaction

// InitialBalance is the balance of a newly opened account.
const InitialBalance = ledger.InitialBalance

var errEmptyText = api.NewError(http.StatusBadRequest, "ping text is empty")

// Replica is one replica of the bank. It implements one
// method per replica operation. Every client-visible
// response is signed with the replica's key, including
// rejections.
//
// Write operations are agreed upon with all other replicas
// by reliable broadcast before they are applied.
type Replica struct {
	name      string
	key       ed25519.PrivateKey
	identity  Identity
	f         int
	replicas  int
	keys      map[string]ed25519.PublicKey // replica keys by name
	startTime time.Time

	store     ledger.Store
	registry  *ledger.Registry
	broadcast *broadcast.Manager
	metrics   *metric.Metrics

	errorLog *logHandler
	auditLog *auditLogger
	log      *slog.Logger
}

// NewReplica returns a new Replica for the given Config.
// It loads all accounts from the Config's database, if
// any. The Replica must be closed to release the database.
func NewReplica(conf *Config) (*Replica, error) {
	if err := conf.Verify(); err != nil {
		return nil, err
	}

	metrics := metric.New()
	errH := conf.ErrorLog
	if errH == nil {
		errH = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	errorLog := newLogHandler(errH, slog.LevelInfo, metrics.ErrorEventCounter())
	log := slog.New(errorLog).With(slog.String("replica", conf.Name))

	var auditH AuditHandler
	if conf.AuditLog != nil {
		auditH = &AuditLogHandler{Handler: conf.AuditLog}
	}

	timeout := conf.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client := newHTTPClient(conf.PeerTLS)
	peers := make(map[string]broadcast.Peer, len(conf.Replicas)-1)
	keys := make(map[string]ed25519.PublicKey, len(conf.Replicas))
	for _, node := range conf.Replicas {
		keys[node.Name] = node.PublicKey
		if node.Name != conf.Name {
			peers[node.Name] = &httpPeer{client: client, addr: node.Addr}
		}
	}
	manager, err := broadcast.NewManager(&broadcast.Config{
		Name:     conf.Name,
		Key:      conf.Key.Private(),
		F:        conf.Byzantine,
		Peers:    peers,
		Keys:     keys,
		Timeout:  timeout,
		ErrorLog: log,
		Metrics:  metrics,
	})
	if err != nil {
		return nil, err
	}

	var store ledger.Store
	if conf.Database != "" {
		if store, err = ledger.OpenBoltStore(conf.Database); err != nil {
			return nil, err
		}
	}
	registry, err := ledger.NewRegistry(store)
	if err != nil {
		if store != nil {
			store.Close()
		}
		return nil, err
	}

	return &Replica{
		name:      conf.Name,
		key:       conf.Key.Private(),
		identity:  conf.Key.Identity(),
		f:         conf.Byzantine,
		replicas:  len(conf.Replicas),
		keys:      keys,
		startTime: time.Now(),
		store:     store,
		registry:  registry,
		broadcast: manager,
		metrics:   metrics,
		errorLog:  errorLog,
		auditLog:  newAuditLogger(auditH, slog.LevelInfo),
		log:       log,
	}, nil
}

// Name returns the replica's name.
func (r *Replica) Name() string { return r.name }

// Close closes the replica's database, if any.
func (r *Replica) Close() error {
	if r.store != nil {
		return r.store.Close()
	}
	return nil
}

// Ping answers with the request text followed by "Pong".
// Blank texts are rejected.
func (r *Replica) Ping(req *protocol.PingRequest) *protocol.PingResponse {
	resp := &protocol.PingResponse{
		Replica: r.name,
		Message: protocol.Valid,
	}
	if strings.TrimSpace(req.Text) == "" {
		resp.Message = errEmptyText.Error()
	} else {
		resp.Text = req.Text + "Pong"
	}
	resp.Signature = resp.Transcript().Sign(r.key)
	return resp
}

// OpenAccount opens a new account with the initial balance.
// The request and the pair signature must be signed by the
// account key.
func (r *Replica) OpenAccount(req *protocol.OpenRequest) (*protocol.OpenResponse, error) {
	resp := &protocol.OpenResponse{
		Replica: r.name,
		Account: req.Key,
		Key:     r.key.Public().(ed25519.PublicKey),
	}

	var err error
	switch {
	case !req.Transcript().Verify(req.Key, req.Signature):
		err = api.ErrInvalidSignature
	case !protocol.Pair(req.Key, req.Balance, req.WID).Verify(req.Key, req.PairSignature):
		err = api.ErrInvalidSignature
	case strings.TrimSpace(req.Username) == "":
		err = api.ErrInvalidTransfer
	default:
		err = r.registry.Open(req.Key, req.Username, req.Balance, req.WID, req.PairSignature)
	}
	if resp.Message, err = message(err); err != nil {
		return nil, err
	}
	resp.Signature = resp.Transcript().Sign(r.key)
	return resp, nil
}

// CheckAccount returns the balance, wid and pending transfers
// of the target account. It advances the account's rid.
func (r *Replica) CheckAccount(req *protocol.ReadRequest) (*protocol.CheckResponse, error) {
	resp := &protocol.CheckResponse{
		Replica: r.name,
		Target:  req.Target,
		Nonce:   req.Nonce + 1,
	}

	a, err := r.read(protocol.OpCheck, req)
	if err == nil {
		resp.Username = a.Username
		resp.Balance = a.Balance
		resp.WID = a.WID
		resp.PairSignature = a.PairSignature
		resp.RID = a.RID
		resp.Pending = a.Pending
	}
	if resp.Message, err = message(err); err != nil {
		return nil, err
	}
	resp.Signature = resp.Transcript().Sign(r.key)
	return resp, nil
}

// Audit returns the history of the target account. It
// advances the account's rid.
func (r *Replica) Audit(req *protocol.ReadRequest) (*protocol.AuditResponse, error) {
	resp := &protocol.AuditResponse{
		Replica: r.name,
		Target:  req.Target,
		Nonce:   req.Nonce + 1,
	}

	a, err := r.read(protocol.OpAudit, req)
	if err == nil {
		resp.RID = a.RID
		resp.History = a.History
	}
	if resp.Message, err = message(err); err != nil {
		return nil, err
	}
	resp.Signature = resp.Transcript().Sign(r.key)
	return resp, nil
}

func (r *Replica) read(op string, req *protocol.ReadRequest) (*ledger.Account, error) {
	if !req.Transcript(op).Verify(req.Requester, req.Signature) {
		return nil, api.ErrInvalidSignature
	}
	return r.registry.Read(req.Target, req.Requester, req.RID, req.Nonce)
}

// RID returns the current rid of an account.
func (r *Replica) RID(req *protocol.RIDRequest) (*protocol.RIDResponse, error) {
	resp := &protocol.RIDResponse{
		Replica: r.name,
		Key:     req.Key,
		Nonce:   req.Nonce + 1,
	}

	rid, err := r.registry.RID(req.Key)
	resp.RID = rid
	if resp.Message, err = message(err); err != nil {
		return nil, err
	}
	resp.Signature = resp.Transcript().Sign(r.key)
	return resp, nil
}

// SendAmount transfers an amount from the source account to
// the pending transfers of the destination account once all
// replicas agreed on the transfer for the source's new wid.
// Only transfers valid for the current account state are
// proposed. The transfer is verified again once delivered.
//
// It returns an error without a response if ctx is done
// before the agreement completes.
func (r *Replica) SendAmount(ctx context.Context, req *protocol.SendRequest) (*protocol.WriteResponse, error) {
	tx := &req.Transaction
	resp := &protocol.WriteResponse{
		Replica: r.name,
		Key:     tx.SourceKey,
	}

	var err error
	switch {
	case tx.Amount <= 0:
		err = api.ErrInvalidAmount
	case !req.Transcript().Verify(tx.SourceKey, req.Signature) || !tx.Verify():
		err = api.ErrInvalidSignature
	case !protocol.Pair(tx.SourceKey, req.NewBalance, tx.WID).Verify(tx.SourceKey, req.PairSignature):
		err = api.ErrInvalidSignature
	default:
		if err = r.registry.VerifySend(tx, req.NewBalance); err != nil {
			break
		}
		if err = r.agree(ctx, tx.SourceKey, tx.WID, req.Transcript().Bytes()); err != nil {
			break
		}
		resp.WID, err = r.registry.Send(tx, req.NewBalance, req.PairSignature)
	}
	if err != nil {
		resp.WID = r.registry.WID(tx.SourceKey)
	}
	if resp.Message, err = message(err); err != nil {
		return nil, err
	}
	resp.Signature = resp.Transcript(protocol.OpSend).Sign(r.key)
	return resp, nil
}

// ReceiveAmount accepts a pending transfer of the account
// once all replicas agreed on it for the account's new wid.
//
// It returns an error without a response if ctx is done
// before the agreement completes.
func (r *Replica) ReceiveAmount(ctx context.Context, req *protocol.ReceiveRequest) (*protocol.WriteResponse, error) {
	audit := &req.ToAudit
	resp := &protocol.WriteResponse{
		Replica: r.name,
		Key:     req.Key,
	}

	var err error
	switch {
	case audit.Amount >= 0:
		err = api.ErrInvalidAmount
	case !audit.DestKey.Equal(req.Key):
		err = api.ErrInvalidTransfer
	case !req.Transcript().Verify(req.Key, req.Signature) || !audit.Verify():
		err = api.ErrInvalidSignature
	case !protocol.Pair(req.Key, req.FutureBalance, req.WID).Verify(req.Key, req.PairSignature):
		err = api.ErrInvalidSignature
	default:
		if err = r.registry.VerifyReceive(req.Key, req.Index, req.WID, req.FutureBalance, audit); err != nil {
			break
		}
		if err = r.agree(ctx, req.Key, req.WID, req.Transcript().Bytes()); err != nil {
			break
		}
		resp.WID, err = r.registry.Receive(req.Key, req.Index, req.WID, req.FutureBalance, req.PairSignature, audit)
	}
	if err != nil {
		resp.WID = r.registry.WID(req.Key)
	}
	if resp.Message, err = message(err); err != nil {
		return nil, err
	}
	resp.Signature = resp.Transcript(protocol.OpReceive).Sign(r.key)
	return resp, nil
}

// agree proposes the write on the broadcast slot of the
// account's wid and waits until it has been delivered.
func (r *Replica) agree(ctx context.Context, key ed25519.PublicKey, wid uint64, value []byte) error {
	slot := hex.EncodeToString(key) + "/" + strconv.FormatUint(wid, 10)
	switch err := r.broadcast.Propose(ctx, slot, value); {
	case errors.Is(err, broadcast.ErrConflict):
		return api.ErrStaleWrite
	case err != nil:
		r.log.DebugContext(ctx, "broadcast: proposal abandoned", slog.String("slot", slot), slog.String("err", err.Error()))
		return err
	default:
		return nil
	}
}

// CheckWriteBack brings the target account up to the state
// that f+1 of the carried check responses agree on. Every
// response must be a valid response for the target, signed
// by a distinct replica. An unknown account is created.
func (r *Replica) CheckWriteBack(req *protocol.CheckWriteBackRequest) (*protocol.WriteBackResponse, error) {
	resp := &protocol.WriteBackResponse{
		Replica: r.name,
		Target:  req.Target,
	}

	var err error
	if !req.Transcript().Verify(req.Requester, req.Signature) {
		err = api.ErrInvalidSignature
	} else {
		err = r.verifyCheckProofs(req.Target, req.Proofs)
	}
	if err == nil {
		state, ok := protocol.VouchedState(r.f, req.Proofs)
		if !ok {
			err = api.ErrUnvouchedState
		} else {
			var adopted bool
			if adopted, err = r.registry.AdoptState(req.Target, state.Username, state.Balance, state.WID, state.PairSignature, state.Pending); adopted {
				r.log.Debug("adopted account state", slog.String("account", EncodePublicKey(req.Target)), slog.Uint64("wid", state.WID))
			}
		}
	}
	if resp.Message, err = message(err); err != nil {
		return nil, err
	}
	resp.Signature = resp.Transcript().Sign(r.key)
	return resp, nil
}

// AuditWriteBack replaces the history of the target account
// with the longest history that f+1 of the carried audit
// responses start with, if it extends the current one.
func (r *Replica) AuditWriteBack(req *protocol.AuditWriteBackRequest) (*protocol.WriteBackResponse, error) {
	resp := &protocol.WriteBackResponse{
		Replica: r.name,
		Target:  req.Target,
	}

	var err error
	if !req.Transcript().Verify(req.Requester, req.Signature) {
		err = api.ErrInvalidSignature
	} else {
		err = r.verifyAuditProofs(req.Target, req.Proofs)
	}
	if err == nil {
		history, rid, ok := protocol.VouchedHistory(r.f, req.Proofs)
		if !ok {
			err = api.ErrUnvouchedState
		} else {
			var adopted bool
			if adopted, err = r.registry.AdoptHistory(req.Target, rid, history); adopted {
				r.log.Debug("adopted account history", slog.String("account", EncodePublicKey(req.Target)), slog.Int("len", len(history)))
			}
		}
	}
	if resp.Message, err = message(err); err != nil {
		return nil, err
	}
	resp.Signature = resp.Transcript().Sign(r.key)
	return resp, nil
}

func (r *Replica) verifyCheckProofs(target ed25519.PublicKey, proofs []protocol.CheckResponse) error {
	signers := make(map[string]struct{}, len(proofs))
	for i := range proofs {
		p := &proofs[i]
		if err := r.verifyProof(signers, p.Replica, p.Transcript(), p.Signature); err != nil {
			return err
		}
		if p.Message != protocol.Valid || !bytes.Equal(p.Target, target) {
			return api.ErrInvalidTransfer
		}
		if !protocol.Pair(target, p.Balance, p.WID).Verify(target, p.PairSignature) || !protocol.VerifyAll(p.Pending) {
			return api.ErrInvalidSignature
		}
		if !transfersTo(target, p.Pending) {
			return api.ErrInvalidTransfer
		}
	}
	return nil
}

func (r *Replica) verifyAuditProofs(target ed25519.PublicKey, proofs []protocol.AuditResponse) error {
	signers := make(map[string]struct{}, len(proofs))
	for i := range proofs {
		p := &proofs[i]
		if err := r.verifyProof(signers, p.Replica, p.Transcript(), p.Signature); err != nil {
			return err
		}
		if p.Message != protocol.Valid || !bytes.Equal(p.Target, target) {
			return api.ErrInvalidTransfer
		}
		if !protocol.VerifyAll(p.History) {
			return api.ErrInvalidSignature
		}
		if !involves(target, p.History) {
			return api.ErrInvalidTransfer
		}
	}
	return nil
}

// verifyProof verifies that a replica response is signed by
// the named replica and that no replica signed more than one
// of the responses seen so far.
func (r *Replica) verifyProof(signers map[string]struct{}, replica string, t *protocol.Transcript, signature []byte) error {
	key, ok := r.keys[replica]
	if !ok || !t.Verify(key, signature) {
		return api.ErrInvalidSignature
	}
	if _, ok = signers[replica]; ok {
		return api.ErrUnvouchedState
	}
	signers[replica] = struct{}{}
	return nil
}

// Echo handles an echo vote of a peer replica.
func (r *Replica) Echo(msg *broadcast.Message) error { return r.broadcast.Echo(msg) }

// Ready handles a ready vote of a peer replica.
func (r *Replica) Ready(msg *broadcast.Message) error { return r.broadcast.Ready(msg) }

// Status returns a status snapshot of the replica.
func (r *Replica) Status() api.StatusResponse {
	return api.StatusResponse{
		Name:      r.name,
		Identity:  r.identity.String(),
		UpTime:    time.Since(r.startTime).Round(time.Second),
		Replicas:  r.replicas,
		Byzantine: r.f,
		Quorum:    r.broadcast.Quorum(),
		Accounts:  r.registry.Len(),
		Proposals: r.broadcast.Len(),
	}
}

// message returns the response message for the outcome err
// of an operation. API errors become signed rejections. Any
// other error is returned.
func message(err error) (string, error) {
	if err == nil {
		return protocol.Valid, nil
	}
	var e api.Error
	if errors.As(err, &e) {
		return e.Error(), nil
	}
	return "", err
}

// statusOf returns the HTTP status code of a response
// with the given message.
func statusOf(msg string) int {
	if msg == protocol.Valid {
		return http.StatusOK
	}
	return api.ParseError(msg).Status()
}

// transfersTo reports whether all transactions are distinct
// incoming transfers of the account. A sender produces at
// most one transfer per wid.
func transfersTo(key ed25519.PublicKey, txs []protocol.Transaction) bool {
	type transfer struct {
		sender string
		wid    uint64
	}
	seen := make(map[transfer]struct{}, len(txs))
	for i := range txs {
		if txs[i].Amount <= 0 || !bytes.Equal(txs[i].DestKey, key) {
			return false
		}
		t := transfer{sender: string(txs[i].SourceKey), wid: txs[i].WID}
		if _, ok := seen[t]; ok {
			return false
		}
		seen[t] = struct{}{}
	}
	return true
}

// involves reports whether all transactions are history
// entries of the account: received transfers or audit
// entries of sent transfers.
func involves(key ed25519.PublicKey, txs []protocol.Transaction) bool {
	for i := range txs {
		switch tx := &txs[i]; {
		case tx.Amount > 0 && bytes.Equal(tx.DestKey, key):
		case tx.Amount < 0 && bytes.Equal(tx.SourceKey, key):
		default:
			return false
		}
	}
	return true
}
