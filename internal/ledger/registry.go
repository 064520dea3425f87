// Copyright 2024 - MinIO, Inc. All rights reserved.
// Use of this source code is governed by the AGPLv3
// license that can be found in the LICENSE file.

package ledger

import (
	"bytes"
	"crypto/ed25519"
	"math"
	"slices"
	"sync"

	"github.com/minio/bank/internal/api"
	"github.com/minio/bank/internal/cache"
	"github.com/minio/bank/internal/protocol"
)

// Registry is the account table of one replica.
//
// It performs the state checks of every operation
// atomically per account. Operations on different
// accounts proceed in parallel. Signatures are not
// verified by the Registry.
type Registry struct {
	store Store
	locks cache.Barrier[string]

	mu       sync.RWMutex
	accounts map[string]*Account

	nonceLock sync.Mutex
	nonces    map[string]map[uint64]struct{} // consumed nonces per requester
}

// NewRegistry returns a new Registry that persists accounts
// to store and loads all accounts already stored. If store
// is nil, accounts are only kept in memory.
func NewRegistry(store Store) (*Registry, error) {
	r := &Registry{
		store:    store,
		accounts: map[string]*Account{},
		nonces:   map[string]map[uint64]struct{}{},
	}
	if store != nil {
		if err := store.Load(func(a *Account) error {
			r.accounts[string(a.Key)] = a
			return nil
		}); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Len returns the number of accounts.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.accounts)
}

// Accounts returns a copy of all accounts.
func (r *Registry) Accounts() []*Account {
	r.mu.RLock()
	keys := make([]string, 0, len(r.accounts))
	for key := range r.accounts {
		keys = append(keys, key)
	}
	r.mu.RUnlock()
	slices.Sort(keys)

	accounts := make([]*Account, 0, len(keys))
	for _, key := range keys {
		if a, err := r.Get(ed25519.PublicKey(key)); err == nil {
			accounts = append(accounts, a)
		}
	}
	return accounts
}

// Get returns a copy of the account.
func (r *Registry) Get(key ed25519.PublicKey) (*Account, error) {
	r.locks.Lock(string(key))
	defer r.locks.Unlock(string(key))

	a, ok := r.lookup(key)
	if !ok {
		return nil, api.ErrUnknownAccount
	}
	return a.Clone(), nil
}

// WID returns the current wid of the account, or 0 if
// the account does not exist.
func (r *Registry) WID(key ed25519.PublicKey) uint64 {
	r.locks.Lock(string(key))
	defer r.locks.Unlock(string(key))

	if a, ok := r.lookup(key); ok {
		return a.WID
	}
	return 0
}

// RID returns the current rid of the account.
func (r *Registry) RID(key ed25519.PublicKey) (uint64, error) {
	r.locks.Lock(string(key))
	defer r.locks.Unlock(string(key))

	a, ok := r.lookup(key)
	if !ok {
		return 0, api.ErrUnknownAccount
	}
	return a.RID, nil
}

// Open adds a new account with the initial balance
// and wid 0.
func (r *Registry) Open(key ed25519.PublicKey, username string, balance int64, wid uint64, pairSignature []byte) error {
	if balance != InitialBalance || wid != 0 {
		return api.ErrInvalidAmount
	}

	r.locks.Lock(string(key))
	defer r.locks.Unlock(string(key))

	if _, ok := r.lookup(key); ok {
		return api.ErrAccountExists
	}
	return r.commit(&Account{
		Username:      username,
		Key:           bytes.Clone(key),
		Balance:       balance,
		WID:           wid,
		PairSignature: bytes.Clone(pairSignature),
	})
}

// Read consumes the requester's nonce, advances the
// account's rid to rid and returns a copy of the account.
// The nonce is consumed even if the read is rejected.
func (r *Registry) Read(target, requester ed25519.PublicKey, rid, nonce uint64) (*Account, error) {
	r.locks.Lock(string(target))
	defer r.locks.Unlock(string(target))

	a, ok := r.lookup(target)
	if !ok {
		return nil, api.ErrUnknownAccount
	}

	if !r.consumeNonce(requester, nonce) {
		return nil, api.ErrReplayedNonce
	}
	if rid <= a.RID {
		return nil, api.ErrStaleRead
	}

	a = a.Clone()
	a.RID = rid
	if err := r.commit(a); err != nil {
		return nil, err
	}
	return a.Clone(), nil
}

// VerifySend reports whether Send would accept the
// transaction given the current account states.
func (r *Registry) VerifySend(tx *protocol.Transaction, newBalance int64) error {
	unlock := r.locks.LockAll(string(tx.SourceKey), string(tx.DestKey))
	defer unlock()

	_, _, err := r.verifySend(tx, newBalance)
	return err
}

// Send debits the transaction amount from the source account
// and appends the transaction to the destination's pending
// transfers. The source account's wid is set to the
// transaction's wid. It returns the source's wid after the
// operation.
func (r *Registry) Send(tx *protocol.Transaction, newBalance int64, pairSignature []byte) (uint64, error) {
	unlock := r.locks.LockAll(string(tx.SourceKey), string(tx.DestKey))
	defer unlock()

	src, dst, err := r.verifySend(tx, newBalance)
	if err != nil {
		if src != nil {
			return src.WID, err
		}
		return 0, err
	}

	src, dst = src.Clone(), dst.Clone()
	src.Balance = newBalance
	src.WID = tx.WID
	src.PairSignature = bytes.Clone(pairSignature)
	dst.Pending = append(dst.Pending, tx.Clone())
	if err := r.commit(src, dst); err != nil {
		return 0, err
	}
	return src.WID, nil
}

// verifySend returns the source and destination account of
// tx if Send would accept it. The source is returned, if it
// exists, even if tx is rejected. It must be called while
// holding the locks of both accounts.
func (r *Registry) verifySend(tx *protocol.Transaction, newBalance int64) (src, dst *Account, err error) {
	src, ok := r.lookup(tx.SourceKey)
	if !ok {
		return nil, nil, api.ErrUnknownAccount
	}
	if !next(src.WID, tx.WID) {
		return src, nil, api.ErrStaleWrite
	}
	if bytes.Equal(tx.SourceKey, tx.DestKey) {
		return src, nil, api.ErrInvalidTransfer
	}
	dst, ok = r.lookup(tx.DestKey)
	if !ok {
		return src, nil, api.ErrUnknownAccount
	}
	if tx.SourceUsername != src.Username || tx.DestUsername != dst.Username {
		return src, nil, api.ErrInvalidTransfer
	}
	if tx.Amount <= 0 {
		return src, nil, api.ErrInvalidAmount
	}
	if src.Balance < tx.Amount {
		return src, nil, api.ErrInsufficientBalance
	}
	if newBalance != src.Balance-tx.Amount {
		return src, nil, api.ErrInvalidAmount
	}
	return src, dst, nil
}

// VerifyReceive reports whether Receive would accept the
// pending transfer given the current account states.
func (r *Registry) VerifyReceive(key ed25519.PublicKey, index, wid uint64, futureBalance int64, audit *protocol.Transaction) error {
	unlock := r.locks.LockAll(string(key), string(audit.SourceKey))
	defer unlock()

	_, _, err := r.verifyReceive(key, index, wid, futureBalance, audit)
	return err
}

// Receive accepts the pending transfer at index. The amount is
// credited to the account and the transfer moves to the history
// of the account. The sender's history receives the audit entry.
// It returns the account's wid after the operation.
func (r *Registry) Receive(key ed25519.PublicKey, index, wid uint64, futureBalance int64, pairSignature []byte, audit *protocol.Transaction) (uint64, error) {
	unlock := r.locks.LockAll(string(key), string(audit.SourceKey))
	defer unlock()

	src, dst, err := r.verifyReceive(key, index, wid, futureBalance, audit)
	if err != nil {
		if dst != nil {
			return dst.WID, err
		}
		return 0, err
	}
	tx := dst.Pending[index]

	src, dst = src.Clone(), dst.Clone()
	dst.Balance = futureBalance
	dst.WID = wid
	dst.PairSignature = bytes.Clone(pairSignature)
	dst.Pending = slices.Delete(dst.Pending, int(index), int(index)+1)
	dst.History = append(dst.History, tx.Clone())
	src.History = append(src.History, audit.Clone())
	if err := r.commit(src, dst); err != nil {
		return 0, err
	}
	return dst.WID, nil
}

// verifyReceive returns the sender's and the receiver's
// account if Receive would accept the pending transfer.
// The receiver is returned, if it exists, even if the
// transfer is rejected. It must be called while holding
// the locks of both accounts.
func (r *Registry) verifyReceive(key ed25519.PublicKey, index, wid uint64, futureBalance int64, audit *protocol.Transaction) (src, dst *Account, err error) {
	dst, ok := r.lookup(key)
	if !ok {
		return nil, nil, api.ErrUnknownAccount
	}
	if !next(dst.WID, wid) {
		return nil, dst, api.ErrStaleWrite
	}
	if index >= uint64(len(dst.Pending)) {
		return nil, dst, api.ErrInvalidTransfer
	}
	tx := dst.Pending[index]
	if mirror := tx.Mirror(); !mirror.Equal(audit) || !tx.DestKey.Equal(key) {
		return nil, dst, api.ErrInvalidTransfer
	}
	src, ok = r.lookup(tx.SourceKey)
	if !ok {
		return nil, dst, api.ErrUnknownAccount
	}
	if tx.Amount <= 0 {
		return nil, dst, api.ErrInvalidAmount
	}
	if futureBalance != dst.Balance+tx.Amount {
		return nil, dst, api.ErrInvalidAmount
	}
	return src, dst, nil
}

// AdoptState brings the account up to the given state.
//
// An unknown account is created with the state. If wid is
// greater than the account's wid, the balance, wid, pair
// signature and pending transfers are replaced. With an
// equal wid, pending transfers not yet known are appended.
// The caller must ensure that the state has been committed
// by at least one correct replica. It reports whether the
// account has changed.
func (r *Registry) AdoptState(key ed25519.PublicKey, username string, balance int64, wid uint64, pairSignature []byte, pending []protocol.Transaction) (bool, error) {
	r.locks.Lock(string(key))
	defer r.locks.Unlock(string(key))

	a, ok := r.lookup(key)
	if !ok {
		if err := r.commit(&Account{
			Username:      username,
			Key:           bytes.Clone(key),
			Balance:       balance,
			WID:           wid,
			PairSignature: bytes.Clone(pairSignature),
			Pending:       cloneTransactions(pending),
		}); err != nil {
			return false, err
		}
		return true, nil
	}
	if username != a.Username {
		return false, api.ErrInvalidTransfer
	}
	if wid < a.WID {
		return false, nil
	}
	if wid == a.WID {
		var missing []protocol.Transaction
		for i := range pending {
			known := slices.ContainsFunc(a.Pending, func(tx protocol.Transaction) bool { return tx.Equal(&pending[i]) })
			if !known {
				missing = append(missing, pending[i].Clone())
			}
		}
		if len(missing) == 0 {
			return false, nil
		}
		a = a.Clone()
		a.Pending = append(a.Pending, missing...)
		if err := r.commit(a); err != nil {
			return false, err
		}
		return true, nil
	}

	a = a.Clone()
	a.Balance = balance
	a.WID = wid
	a.PairSignature = bytes.Clone(pairSignature)
	a.Pending = cloneTransactions(pending)
	if err := r.commit(a); err != nil {
		return false, err
	}
	return true, nil
}

// AdoptHistory replaces the history of the account if the
// given history is longer and extends the current one. The
// account's rid advances to rid if rid is greater. As for
// AdoptState, the history must have been committed by a
// correct replica. It reports whether the history has been
// adopted.
func (r *Registry) AdoptHistory(key ed25519.PublicKey, rid uint64, history []protocol.Transaction) (bool, error) {
	r.locks.Lock(string(key))
	defer r.locks.Unlock(string(key))

	a, ok := r.lookup(key)
	if !ok {
		return false, api.ErrUnknownAccount
	}
	if !extends(history, a.History) {
		return false, nil
	}

	a = a.Clone()
	a.History = cloneTransactions(history)
	a.RID = max(a.RID, rid)
	if err := r.commit(a); err != nil {
		return false, err
	}
	return true, nil
}

// next reports whether wid is the successor of the
// stored wid.
func next(stored, wid uint64) bool {
	return stored < math.MaxUint64 && wid == stored+1
}

// extends reports whether txs is longer than prefix and
// starts with the transactions of prefix.
func extends(txs, prefix []protocol.Transaction) bool {
	if len(txs) <= len(prefix) {
		return false
	}
	for i := range prefix {
		if !prefix[i].Equal(&txs[i]) {
			return false
		}
	}
	return true
}

// consumeNonce marks the nonce as used by the requester.
// It reports false if the nonce has been used before.
func (r *Registry) consumeNonce(requester ed25519.PublicKey, nonce uint64) bool {
	r.nonceLock.Lock()
	defer r.nonceLock.Unlock()

	seen, ok := r.nonces[string(requester)]
	if !ok {
		seen = map[uint64]struct{}{}
		r.nonces[string(requester)] = seen
	}
	if _, ok = seen[nonce]; ok {
		return false
	}
	seen[nonce] = struct{}{}
	return true
}

func (r *Registry) lookup(key ed25519.PublicKey) (*Account, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.accounts[string(key)]
	return a, ok
}

// commit persists the accounts and replaces the in-memory
// state. The caller must hold the account locks.
func (r *Registry) commit(accounts ...*Account) error {
	if r.store != nil {
		if err := r.store.Save(accounts...); err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range accounts {
		r.accounts[string(a.Key)] = a
	}
	return nil
}
