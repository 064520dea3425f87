// Copyright 2024 - MinIO, Inc. All rights reserved.
// Use of this source code is governed by the AGPLv3
// license that can be found in the LICENSE file.

package broadcast

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestInstanceVotes(t *testing.T) {
	const Quorum = 3
	i := newInstance("alice/1", DigestOf("alice/1", []byte("v")), []byte("v"))

	if i.AddEcho("r0", Quorum) || i.AddEcho("r0", Quorum) || i.AddEcho("r1", Quorum) {
		t.Fatal("Ready sent before a quorum of distinct echoes")
	}
	if !i.AddEcho("r2", Quorum) {
		t.Fatal("Ready not sent after a quorum of echoes")
	}
	if i.AddEcho("r3", Quorum) {
		t.Fatal("Ready sent twice")
	}

	for _, sender := range []string{"r0", "r1", "r1"} {
		if _, deliver := i.AddReady(sender, Quorum); deliver {
			t.Fatalf("Delivered before a quorum of distinct readies: %s", sender)
		}
	}
	sendReady, deliver := i.AddReady("r2", Quorum)
	if sendReady {
		t.Fatal("Ready sent twice")
	}
	if !deliver || !i.Delivered() {
		t.Fatal("Not delivered after a quorum of readies")
	}
	if _, deliver = i.AddReady("r3", Quorum); deliver {
		t.Fatal("Delivered twice")
	}
	i.finish()
	if err := i.Wait(context.Background()); err != nil {
		t.Fatalf("Wait failed after delivery: %v", err)
	}
}

func TestInstanceReadyAmplification(t *testing.T) {
	const Quorum = 3
	i := newInstance("alice/1", DigestOf("alice/1", []byte("v")), []byte("v"))

	i.AddReady("r0", Quorum)
	i.AddReady("r1", Quorum)
	sendReady, deliver := i.AddReady("r2", Quorum)
	if !sendReady || !deliver {
		t.Fatalf("Instance without echoes did not amplify ready: sendReady=%v deliver=%v", sendReady, deliver)
	}
	if i.AddEcho("r3", 1) {
		t.Fatal("Ready sent again after amplification")
	}
}

func TestInstanceWaitCanceled(t *testing.T) {
	i := newInstance("alice/1", DigestOf("alice/1", nil), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := i.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait returned '%v' - want '%v'", err, context.DeadlineExceeded)
	}
}

func TestManagerDeliver(t *testing.T) {
	net := newNetwork(t, 1)
	propose(t, net, "alice/1", []byte("transfer"), "r0", "r1", "r2", "r3")
}

func TestManagerSilentReplica(t *testing.T) {
	net := newNetwork(t, 1)
	net.Silence("r3")
	propose(t, net, "alice/1", []byte("transfer"), "r0", "r1", "r2")
}

func TestManagerLateReplica(t *testing.T) {
	net := newNetwork(t, 1)
	propose(t, net, "alice/1", []byte("transfer"), "r0", "r1", "r2")

	late := net.managers["r3"]
	waitFor(t, func() bool { return isDelivered(late, "alice/1") })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := late.Propose(ctx, "alice/1", []byte("transfer")); err != nil {
		t.Fatalf("Late proposal of the delivered value failed: %v", err)
	}
	if err := late.Propose(ctx, "alice/1", []byte("other")); !errors.Is(err, ErrConflict) {
		t.Fatalf("Late proposal of another value: got '%v' - want '%v'", err, ErrConflict)
	}
}

func TestManagerConflict(t *testing.T) {
	net := newNetwork(t, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errs := make(chan error, 1)
	go func() { errs <- net.managers["r3"].Propose(ctx, "alice/1", []byte("pay carol")) }()
	propose(t, net, "alice/1", []byte("pay bob"), "r0", "r1", "r2")

	if err := <-errs; !errors.Is(err, ErrConflict) {
		t.Fatalf("Equivocated proposal: got '%v' - want '%v'", err, ErrConflict)
	}
	for name, m := range net.managers {
		if n := m.Len(); n != 0 {
			t.Fatalf("Replica '%s' keeps %d instances after delivery", name, n)
		}
	}
}

func TestManagerNoQuorum(t *testing.T) {
	net := newNetwork(t, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	var wg sync.WaitGroup
	values := map[string]string{"r0": "a", "r1": "a", "r2": "b", "r3": "b"}
	for name, value := range values {
		wg.Add(1)
		go func(m *Manager, value string) {
			defer wg.Done()
			if err := m.Propose(ctx, "alice/1", []byte(value)); !errors.Is(err, context.DeadlineExceeded) {
				t.Errorf("Split proposal: got '%v' - want '%v'", err, context.DeadlineExceeded)
			}
		}(net.managers[name], value)
	}
	wg.Wait()
}

func TestManagerEchoOncePerSlot(t *testing.T) {
	net := newNetwork(t, 1)
	m := net.managers["r0"]

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	m.Propose(ctx, "alice/1", []byte("a"))
	m.Propose(ctx, "alice/1", []byte("b"))

	waitFor(t, func() bool { return net.Sent("r0", Echo) == 3 })
	time.Sleep(20 * time.Millisecond)
	if n := net.Sent("r0", Echo); n != 3 {
		t.Fatalf("Replica sent %d echo votes - want 3", n)
	}
}

func TestManagerInvalidVote(t *testing.T) {
	net := newNetwork(t, 1)
	m := net.managers["r0"]

	_, key, _ := ed25519.GenerateKey(nil)
	msg := &Message{Slot: "alice/1", Value: []byte("v"), Sender: "r1"}
	msg.Signature = msg.Transcript(Echo).Sign(key)
	if err := m.Echo(msg); err == nil {
		t.Fatal("Echo with invalid signature accepted")
	}

	msg = &Message{Slot: "alice/1", Value: []byte("v"), Sender: "mallory"}
	msg.Signature = msg.Transcript(Echo).Sign(key)
	if err := m.Echo(msg); err == nil {
		t.Fatal("Echo from unknown replica accepted")
	}

	msg = &Message{Slot: "alice/1", Value: []byte("v"), Sender: "r1"}
	msg.Signature = msg.Transcript(Ready).Sign(net.keys["r1"])
	if err := m.Echo(msg); err == nil {
		t.Fatal("Ready vote accepted as echo vote")
	}
	if err := m.Ready(msg); err != nil {
		t.Fatalf("Valid ready vote rejected: %v", err)
	}
}

func TestManagerPeerInstanceLimit(t *testing.T) {
	net := newNetwork(t, 1)
	m := net.managers["r0"]

	echo := func(sender, slot string) error {
		msg := &Message{Slot: slot, Value: []byte("v"), Sender: sender}
		msg.Signature = msg.Transcript(Echo).Sign(net.keys[sender])
		return m.Echo(msg)
	}
	for i := 0; i < MaxPeerInstances; i++ {
		if err := echo("r1", fmt.Sprintf("mallory/%d", i)); err != nil {
			t.Fatalf("Echo %d rejected: %v", i, err)
		}
	}
	if err := echo("r1", "mallory/overflow"); err == nil {
		t.Fatal("Echo exceeding the instance limit accepted")
	}
	if n := m.Len(); n != MaxPeerInstances {
		t.Fatalf("Replica keeps %d instances - want %d", n, MaxPeerInstances)
	}

	// Votes for existing instances and votes of other peers are still counted.
	if err := echo("r1", "mallory/0"); err != nil {
		t.Fatalf("Echo for existing instance rejected: %v", err)
	}
	if err := echo("r2", "alice/1"); err != nil {
		t.Fatalf("Echo of another peer rejected: %v", err)
	}
	propose(t, net, "bob/1", []byte("v"), "r0", "r1", "r2", "r3")
}

func TestNewManager(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(nil)
	_, err := NewManager(&Config{
		Name:  "r0",
		Key:   priv,
		F:     1,
		Keys:  map[string]ed25519.PublicKey{"r0": pub},
		Peers: map[string]Peer{},
	})
	if err == nil {
		t.Fatal("Manager with 1 replica and f=1 created")
	}
}

type network struct {
	managers map[string]*Manager
	keys     map[string]ed25519.PrivateKey

	mu     sync.Mutex
	silent map[string]bool
	sent   map[string]map[Kind]int
}

func newNetwork(t *testing.T, f int) *network {
	net := &network{
		managers: map[string]*Manager{},
		keys:     map[string]ed25519.PrivateKey{},
		silent:   map[string]bool{},
		sent:     map[string]map[Kind]int{},
	}

	keys := map[string]ed25519.PublicKey{}
	for i := 0; i < 3*f+1; i++ {
		name := fmt.Sprintf("r%d", i)
		pub, priv, err := ed25519.GenerateKey(nil)
		if err != nil {
			t.Fatal(err)
		}
		keys[name], net.keys[name] = pub, priv
	}
	for name := range keys {
		peers := map[string]Peer{}
		for peer := range keys {
			if peer != name {
				peers[peer] = &localPeer{net: net, from: name, to: peer}
			}
		}
		m, err := NewManager(&Config{
			Name:    name,
			Key:     net.keys[name],
			F:       f,
			Peers:   peers,
			Keys:    keys,
			Timeout: time.Second,
		})
		if err != nil {
			t.Fatal(err)
		}
		net.managers[name] = m
	}
	return net
}

func (n *network) Silence(name string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.silent[name] = true
}

func (n *network) Sent(name string, kind Kind) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sent[name][kind]
}

type localPeer struct {
	net      *network
	from, to string
}

func (p *localPeer) Send(_ context.Context, kind Kind, msg *Message) error {
	p.net.mu.Lock()
	if p.net.silent[p.from] || p.net.silent[p.to] {
		p.net.mu.Unlock()
		return nil
	}
	if p.net.sent[p.from] == nil {
		p.net.sent[p.from] = map[Kind]int{}
	}
	p.net.sent[p.from][kind]++
	p.net.mu.Unlock()

	m := p.net.managers[p.to]
	if kind == Echo {
		return m.Echo(msg)
	}
	return m.Ready(msg)
}

func propose(t *testing.T, net *network, slot string, value []byte, replicas ...string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for _, name := range replicas {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			if err := net.managers[name].Propose(ctx, slot, value); err != nil {
				t.Errorf("Replica '%s' failed to deliver: %v", name, err)
			}
		}(name)
	}
	wg.Wait()
}

func isDelivered(m *Manager, slot string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.delivered.Contains(slot)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("Condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
