// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package topology

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nodaldb/nodal-go-driver/address"
	"github.com/nodaldb/nodal-go-driver/description"
	"github.com/nodaldb/nodal-go-driver/session"
)

// Config configures a Topology: its seed list, discovery mode, and the
// per-server settings every monitored node is constructed with.
type Config struct {
	Seeds                  []address.Address
	Mode                   description.TopologyKind // Single for directConnection, Unknown to auto-discover (New starts a lone seed with no ReplicaSetName as Single)
	ReplicaSetName         string
	ServerSelectionTimeout time.Duration
	LocalThreshold         time.Duration
	ServerConfig           ServerConfig
	SessionPool            *session.Pool
}

// Topology aggregates every monitored Server's description into the single
// view the operation executor selects against. It owns the one writer lock
// mentioned in the core's locking discipline: held only for the duration
// of folding one server update into the aggregate description.
type Topology struct {
	cfg Config

	mu      sync.Mutex
	servers map[address.Address]*Server
	desc    description.Topology

	subLock     sync.Mutex
	subscribers map[uint64]chan description.Topology
	nextSubID   uint64

	closed chan struct{}
}

// New constructs a Topology from cfg without connecting to anything yet.
func New(cfg Config) *Topology {
	kind := cfg.Mode
	if kind == description.TopologyUnknown && len(cfg.Seeds) == 1 && cfg.ReplicaSetName == "" {
		kind = description.Single
	}
	t := &Topology{
		cfg:         cfg,
		servers:     make(map[address.Address]*Server),
		desc:        description.NewTopology(kind, cfg.Seeds),
		subscribers: make(map[uint64]chan description.Topology),
		closed:      make(chan struct{}),
	}
	return t
}

// Connect starts a Server (and its heartbeat monitor) for every seed.
func (t *Topology) Connect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, addr := range t.cfg.Seeds {
		t.addServerLocked(addr)
	}
	return nil
}

func (t *Topology) addServerLocked(addr address.Address) {
	addr = addr.Canonicalize()
	if _, ok := t.servers[addr]; ok {
		return
	}
	srv := NewServer(addr, t.cfg.ServerConfig, t.onServerDescriptionChanged)
	t.servers[addr] = srv
	_ = srv.Connect()
}

// onServerDescriptionChanged is the callback a Server invokes whenever its
// own description changes; it folds the update into the aggregate
// description under the topology's single writer lock.
func (t *Topology) onServerDescriptionChanged(desc description.Server) {
	t.mu.Lock()
	previous := t.desc
	newDesc, changed := t.desc.Apply(desc)
	if changed {
		t.desc = newDesc
	}

	if t.cfg.SessionPool != nil {
		t.cfg.SessionPool.SetLogicalSessionTimeoutMinutes(newDesc.SessionTimeoutMinutes)
	}

	for addr := range newDesc.Servers {
		if _, ok := t.servers[addr]; !ok {
			t.addServerLocked(addr)
		}
	}
	t.mu.Unlock()

	if changed {
		t.publish(previous, newDesc)
	}
}

func (t *Topology) publish(previous, newDesc description.Topology) {
	t.subLock.Lock()
	for _, ch := range t.subscribers {
		select {
		case <-ch:
		default:
		}
		ch <- newDesc
	}
	t.subLock.Unlock()
}

// Description returns the current aggregate TopologyDescription.
func (t *Topology) Description() description.Topology {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.desc
}

// Subscribe returns a channel receiving every subsequent TopologyDescription,
// pre-populated with the current one.
func (t *Topology) Subscribe() (<-chan description.Topology, func()) {
	ch := make(chan description.Topology, 1)
	ch <- t.Description()

	t.subLock.Lock()
	id := t.nextSubID
	t.nextSubID++
	t.subscribers[id] = ch
	t.subLock.Unlock()

	cancel := func() {
		t.subLock.Lock()
		delete(t.subscribers, id)
		t.subLock.Unlock()
	}
	return ch, cancel
}

// SelectServer blocks until a server satisfying criteria is found, ctx
// expires, or serverSelectionTimeout elapses, implementing §4.5's "wait
// for a topology change and retry" loop around the pure SelectServer
// computation in package description.
func (t *Topology) SelectServer(ctx context.Context, criteria description.SelectionCriteria) (*Server, error) {
	timeout := t.cfg.ServerSelectionTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	deadline := time.Now().Add(timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}

	ch, cancel := t.Subscribe()
	defer cancel()

	for {
		desc := t.Description()
		candidates, err := description.SelectServer(desc, criteria, t.cfg.LocalThreshold)
		if err != nil {
			return nil, err
		}
		if len(candidates) > 0 {
			chosen := candidates[rand.Intn(len(candidates))]
			t.mu.Lock()
			srv := t.servers[chosen.Addr]
			t.mu.Unlock()
			if srv != nil {
				return srv, nil
			}
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, description.ErrServerSelectionTimeout{Criteria: criteria}
		}
		timer := time.NewTimer(remaining)
		select {
		case <-ch:
			timer.Stop()
		case <-timer.C:
			return nil, description.ErrServerSelectionTimeout{Criteria: criteria}
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-t.closed:
			timer.Stop()
			return nil, ErrTopologyClosed
		}
	}
}

// MarkPoolCleared invalidates the connection pool for addr, called by the
// operation executor after a network error reading a reply from addr (§7
// propagation policy: "network errors post-handshake ... pool cleared").
func (t *Topology) MarkPoolCleared(addr address.Address, reason string) {
	t.mu.Lock()
	srv := t.servers[addr.Canonicalize()]
	t.mu.Unlock()
	if srv != nil {
		srv.pool.clear("", reason)
	}
}

// UpdateFromCommandError folds a server's reported error and topology
// version into that server's description via Server.ProcessError. The
// operation executor does not call it: command errors such as "not
// primary" leave the server description unchanged.
func (t *Topology) UpdateFromCommandError(addr address.Address, err error, tv *description.TopologyVersion) {
	t.mu.Lock()
	srv := t.servers[addr.Canonicalize()]
	t.mu.Unlock()
	if srv != nil {
		srv.ProcessError(err, tv)
	}
}

// Disconnect stops every server's monitor and closes every pool.
func (t *Topology) Disconnect(ctx context.Context) error {
	close(t.closed)
	t.mu.Lock()
	servers := make([]*Server, 0, len(t.servers))
	for _, srv := range t.servers {
		servers = append(servers, srv)
	}
	t.mu.Unlock()

	var g errgroup.Group
	for _, srv := range servers {
		srv := srv
		g.Go(func() error { return srv.Disconnect(ctx) })
	}
	return g.Wait()
}
