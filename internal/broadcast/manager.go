// Copyright 2024 - MinIO, Inc. All rights reserved.
// Use of this source code is governed by the AGPLv3
// license that can be found in the LICENSE file.

// Package broadcast implements Bracha's reliable broadcast
// among 3f+1 replicas.
//
// A replica proposes a value for a slot when it receives a
// client write. All correct replicas deliver the same value
// for a slot, or none, even if the client sends different
// values to different replicas.
package broadcast

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/minio/bank/internal/metric"
	"github.com/minio/bank/internal/protocol"
)

// ErrConflict is returned by Propose when a different
// value has been delivered for the same slot.
var ErrConflict = errors.New("broadcast: a different value has been delivered for the slot")

// Kind is the kind of a broadcast vote.
type Kind uint8

// Broadcast votes.
const (
	Echo Kind = iota + 1
	Ready
)

func (k Kind) String() string {
	switch k {
	case Echo:
		return "echo"
	case Ready:
		return "ready"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Message is a signed echo or ready vote for a value.
type Message struct {
	Slot      string `json:"slot"`
	Value     []byte `json:"value"`
	Nonce     uint64 `json:"nonce"`
	Sender    string `json:"sender"`
	Signature []byte `json:"signature"`
}

// Transcript returns the transcript signed by the sender
// of a vote of the given kind.
func (m *Message) Transcript(kind Kind) *protocol.Transcript {
	return protocol.NewTranscript(kind.String()).
		AddString(m.Slot).
		AddBytes(m.Value).
		AddUint64(m.Nonce).
		AddString(m.Sender)
}

// A Peer sends votes to a replica. A Peer must return
// once ctx is done.
type Peer interface {
	Send(ctx context.Context, kind Kind, msg *Message) error
}

// Config is a structure for configuring a Manager.
type Config struct {
	// Name is the name of the local replica.
	Name string

	// Key is the private key of the local replica.
	Key ed25519.PrivateKey

	// F is the number of faulty replicas the broadcast
	// tolerates. There must be exactly 3F+1 replicas.
	F int

	// Peers contains all remote replicas by name.
	Peers map[string]Peer

	// Keys contains the public keys of all replicas,
	// including the local one, by name.
	Keys map[string]ed25519.PublicKey

	// Timeout is the deadline for sending one vote.
	// If <= 0, it defaults to 3 seconds.
	Timeout time.Duration

	// ErrorLog is the logger for failed and invalid
	// votes. If nil, slog.Default is used.
	ErrorLog *slog.Logger

	// Metrics, if not nil, counts votes and deliveries.
	Metrics *metric.Metrics
}

// Manager runs the broadcast protocol of the local replica.
//
// It keeps one Instance per proposed value until the
// value is delivered.
type Manager struct {
	name    string
	key     ed25519.PrivateKey
	quorum  int
	peers   map[string]Peer
	keys    map[string]ed25519.PublicKey
	timeout time.Duration
	log     *slog.Logger
	metrics *metric.Metrics

	mu        sync.Mutex
	instances map[Digest]*Instance
	owned     map[string]int // undelivered instances created by votes of a peer
	echoed    *lru.Cache     // slot -> Digest the local replica has echoed
	delivered *lru.Cache     // slot -> Digest that has been delivered
}

const (
	// maxSlots is the number of slots for which a Manager
	// remembers the echoed and the delivered digest.
	maxSlots = 1 << 16

	// MaxPeerInstances is the number of undelivered instances
	// the votes of one peer may create. Votes of a peer that
	// would exceed it are dropped until some of its instances
	// are delivered or released.
	MaxPeerInstances = 1 << 12
)

// NewManager returns a new Manager for the given Config.
func NewManager(conf *Config) (*Manager, error) {
	if conf.F < 0 {
		return nil, errors.New("broadcast: number of faulty replicas is negative")
	}
	if n := 3*conf.F + 1; len(conf.Keys) != n || len(conf.Peers) != n-1 {
		return nil, fmt.Errorf("broadcast: %d faulty replicas require %d replicas", conf.F, n)
	}
	if _, ok := conf.Keys[conf.Name]; !ok {
		return nil, fmt.Errorf("broadcast: no public key for replica '%s'", conf.Name)
	}
	if _, ok := conf.Peers[conf.Name]; ok {
		return nil, fmt.Errorf("broadcast: replica '%s' is its own peer", conf.Name)
	}

	echoed, err := lru.New(maxSlots)
	if err != nil {
		return nil, err
	}
	delivered, err := lru.New(maxSlots)
	if err != nil {
		return nil, err
	}

	timeout := conf.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	log := conf.ErrorLog
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		name:      conf.Name,
		key:       conf.Key,
		quorum:    2*conf.F + 1,
		peers:     conf.Peers,
		keys:      conf.Keys,
		timeout:   timeout,
		log:       log,
		metrics:   conf.Metrics,
		instances: map[Digest]*Instance{},
		owned:     map[string]int{},
		echoed:    echoed,
		delivered: delivered,
	}, nil
}

// Quorum returns the number of votes required by each
// broadcast phase.
func (m *Manager) Quorum() int { return m.quorum }

// Len returns the number of proposals that have not been
// delivered yet.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.instances)
}

// Propose broadcasts value for slot and blocks until the
// value has been delivered, a different value has been
// delivered for the slot or ctx is done.
//
// The local replica echoes at most one value per slot.
// Proposing another value for an echoed slot waits for
// delivery without casting another echo.
func (m *Manager) Propose(ctx context.Context, slot string, value []byte) error {
	digest := DigestOf(slot, value)

	m.mu.Lock()
	if v, ok := m.delivered.Get(slot); ok {
		m.mu.Unlock()
		if v.(Digest) != digest {
			m.metrics.CountConflict()
			return ErrConflict
		}
		return nil
	}
	instance, _ := m.instance(m.name, slot, digest, value)
	echo := !m.echoed.Contains(slot)
	if echo {
		m.echoed.Add(slot, digest)
	}
	m.mu.Unlock()

	if echo {
		m.broadcast(Echo, slot, value)
	}
	if err := instance.Wait(ctx); err != nil {
		if errors.Is(err, ErrConflict) {
			m.metrics.CountConflict()
		}
		return err
	}
	return nil
}

// Echo handles an echo vote sent by a peer.
func (m *Manager) Echo(msg *Message) error { return m.receive(Echo, msg) }

// Ready handles a ready vote sent by a peer.
func (m *Manager) Ready(msg *Message) error { return m.receive(Ready, msg) }

func (m *Manager) receive(kind Kind, msg *Message) error {
	key, ok := m.keys[msg.Sender]
	if !ok || msg.Sender == m.name {
		m.metrics.CountInvalidVote()
		return fmt.Errorf("broadcast: %s vote from unknown replica '%s'", kind, msg.Sender)
	}
	if !msg.Transcript(kind).Verify(key, msg.Signature) {
		m.metrics.CountInvalidVote()
		return fmt.Errorf("broadcast: invalid signature of %s vote from '%s'", kind, msg.Sender)
	}
	if !m.handle(kind, msg) {
		m.metrics.CountInvalidVote()
		return fmt.Errorf("broadcast: replica '%s' exceeds %d undelivered proposals", msg.Sender, MaxPeerInstances)
	}
	return nil
}

// handle counts the vote and reports whether it has been
// accepted. Votes for delivered slots are accepted and
// ignored.
func (m *Manager) handle(kind Kind, msg *Message) bool {
	digest := DigestOf(msg.Slot, msg.Value)

	m.mu.Lock()
	if m.delivered.Contains(msg.Slot) {
		m.mu.Unlock()
		return true
	}
	instance, ok := m.instance(msg.Sender, msg.Slot, digest, msg.Value)
	m.mu.Unlock()
	if !ok {
		return false
	}

	switch kind {
	case Echo:
		m.metrics.CountEcho()
		if instance.AddEcho(msg.Sender, m.quorum) {
			m.broadcast(Ready, instance.Slot, instance.Value)
		}
	case Ready:
		m.metrics.CountReady()
		sendReady, deliver := instance.AddReady(msg.Sender, m.quorum)
		if sendReady {
			m.broadcast(Ready, instance.Slot, instance.Value)
		}
		if deliver {
			m.retire(instance)
		}
	}
	return true
}

// instance returns the instance for digest and creates
// it on behalf of owner if it does not exist. It reports
// false if owner is a peer that already owns too many
// instances. It must be called while holding m.mu.
func (m *Manager) instance(owner, slot string, digest Digest, value []byte) (*Instance, bool) {
	if instance, ok := m.instances[digest]; ok {
		return instance, true
	}
	if owner != m.name {
		if m.owned[owner] >= MaxPeerInstances {
			return nil, false
		}
		m.owned[owner]++
	}
	instance := newInstance(slot, digest, value)
	instance.owner = owner
	m.instances[digest] = instance
	return instance, true
}

// remove deletes the instance. It must be called while
// holding m.mu.
func (m *Manager) remove(instance *Instance) {
	if m.instances[instance.Digest] != instance {
		return
	}
	delete(m.instances, instance.Digest)
	if n, ok := m.owned[instance.owner]; ok {
		if n <= 1 {
			delete(m.owned, instance.owner)
		} else {
			m.owned[instance.owner] = n - 1
		}
	}
}

// retire removes the delivered instance and releases all
// instances of other values proposed for the same slot.
func (m *Manager) retire(delivered *Instance) {
	m.mu.Lock()
	m.delivered.Add(delivered.Slot, delivered.Digest)
	m.remove(delivered)

	var conflicts []*Instance
	for _, instance := range m.instances {
		if instance.Slot == delivered.Slot {
			conflicts = append(conflicts, instance)
		}
	}
	for _, instance := range conflicts {
		m.remove(instance)
	}
	m.mu.Unlock()

	m.metrics.CountDelivery()
	delivered.finish()
	for _, instance := range conflicts {
		instance.abort(ErrConflict)
	}
	m.log.Debug("broadcast: delivered value", "slot", delivered.Slot, "digest", delivered.Digest.String())
}

// broadcast sends a signed vote to all replicas. The local
// replica handles its own vote synchronously. Votes to
// peers are sent concurrently, one deadline per peer.
func (m *Manager) broadcast(kind Kind, slot string, value []byte) {
	nonce, err := protocol.NewNonce()
	if err != nil {
		m.log.Error(fmt.Sprintf("broadcast: failed to generate nonce: %v", err))
		return
	}
	msg := &Message{
		Slot:   slot,
		Value:  value,
		Nonce:  nonce,
		Sender: m.name,
	}
	msg.Signature = msg.Transcript(kind).Sign(m.key)

	for name, peer := range m.peers {
		go func(name string, peer Peer) {
			ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
			defer cancel()

			if err := peer.Send(ctx, kind, msg); err != nil {
				m.log.Debug(fmt.Sprintf("broadcast: failed to send %s vote to '%s': %v", kind, name, err), "slot", slot)
			}
		}(name, peer)
	}
	m.handle(kind, msg)
}
