// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package topology

import (
	"context"
	"crypto/tls"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/nodaldb/nodal-go-driver/address"
	"github.com/nodaldb/nodal-go-driver/auth"
	"github.com/nodaldb/nodal-go-driver/bson/bsoncore"
	"github.com/nodaldb/nodal-go-driver/event"
)

// defaultMaxConnecting is the CMAP default cap on concurrent in-flight
// connection establishment per pool.
const defaultMaxConnecting = 2

// backgroundSweepInterval is how often the pool's background worker checks
// for connections that have crossed max-idle-time or max-lifetime and tops
// the pool back up toward MinPoolSize.
const backgroundSweepInterval = 30 * time.Second

// poolState mirrors the CMAP pool state machine: paused pools refuse
// checkouts until Ready is called (normally right after a successful
// handshake); closed pools refuse everything.
type poolState int32

const (
	poolPaused poolState = iota
	poolReady
	poolClosed
)

// poolConfig configures a pool's sizing and event reporting.
type poolConfig struct {
	Address       address.Address
	MinPoolSize   uint64
	MaxPoolSize   uint64
	MaxConnecting uint64
	MaxIdleTime   time.Duration
	MaxLifetime   time.Duration
	PoolMonitor   *event.PoolMonitor
	TLSConfig     *tls.Config

	AppName      string
	Compressors  []string
	LoadBalanced bool
	Credential   *auth.Cred
}

// poolRequest is sent to the pool's single owning goroutine (manage) to
// request a connection, mirroring the requester/receiver channel split in
// the source's connection_requester module: the caller never touches pool
// state directly, it only ever talks to the owning goroutine over a
// channel, so no lock is needed for the core state transitions.
type poolRequest struct {
	ctx    context.Context
	result chan poolResult
}

type poolResult struct {
	conn *pooledConnection
	err  error
}

// pool is a CMAP connection pool for a single server address.
type pool struct {
	cfg     poolConfig
	address address.Address

	state      int32 // poolState, accessed atomically
	generation uint64
	// perServiceGeneration holds generation counters keyed by serviceId, used
	// only in load-balanced mode where one pool fronts many logical backends
	// and a single clear must not invalidate connections to unrelated ones.
	perServiceGeneration map[string]uint64
	genMu                sync.Mutex

	requests    chan poolRequest
	returns     chan *pooledConnection
	clears      chan clearRequest
	closes      chan chan struct{}
	established chan establishResult
	readyCh     chan struct{}

	// connSem bounds how many connections this pool dials/handshakes at
	// once, independent of MaxPoolSize, matching CMAP's maxConnecting.
	connSem *semaphore.Weighted

	idCounter uint64

	connectOnce sync.Once
	closeOnce   sync.Once
	closed      chan struct{}
}

// establishResult is delivered to the pool's owning goroutine once a
// background dial+handshake for a waiter completes, successfully or not.
type establishResult struct {
	waiter poolRequest
	conn   *pooledConnection
	err    error
}

type clearRequest struct {
	serviceID string
	reason    string
}

// pooledConnection is a connection as tracked by the pool: the wire
// connection plus its pool bookkeeping (generation snapshot, id).
type pooledConnection struct {
	conn       *Connection
	generation uint64
	serviceID  string
	id         string
	pool       *pool
	createdAt  time.Time
	idleSince  time.Time
}

// Release returns the connection to its owning pool, or closes it outright
// if it has been marked stale by an I/O error.
func (pc *pooledConnection) Release() {
	if pc.conn.Stale() {
		pc.conn.close()
		return
	}
	pc.pool.checkIn(pc)
}

// WriteCommand and ReadReply delegate to the underlying wire connection.
func (pc *pooledConnection) WriteCommand(ctx context.Context, name string, cmd bsoncore.Document) (int32, error) {
	return pc.conn.WriteCommand(ctx, name, cmd)
}

func (pc *pooledConnection) ReadReply(ctx context.Context) (bsoncore.Document, error) {
	return pc.conn.ReadReply(ctx)
}

// Stale reports whether the underlying connection has been poisoned.
func (pc *pooledConnection) Stale() bool { return pc.conn.Stale() }

// ID returns the connection's pool-scoped identifier for event reporting.
func (pc *pooledConnection) ID() string { return pc.id }

// newPool constructs a pool in the paused state; callers call ready() once
// the server's handshake succeeds.
func newPool(cfg poolConfig) *pool {
	maxConnecting := cfg.MaxConnecting
	if maxConnecting == 0 {
		maxConnecting = defaultMaxConnecting
	}
	p := &pool{
		cfg:                  cfg,
		address:              cfg.Address,
		state:                int32(poolPaused),
		perServiceGeneration: make(map[string]uint64),
		requests:             make(chan poolRequest),
		returns:              make(chan *pooledConnection),
		clears:               make(chan clearRequest),
		closes:               make(chan chan struct{}),
		established:          make(chan establishResult),
		readyCh:              make(chan struct{}, 1),
		connSem:              semaphore.NewWeighted(int64(maxConnecting)),
		closed:               make(chan struct{}),
	}
	if cfg.PoolMonitor != nil && cfg.PoolMonitor.PoolCreated != nil {
		cfg.PoolMonitor.PoolCreated(event.PoolCreatedEvent{
			Address: p.address, MinPoolSize: cfg.MinPoolSize, MaxPoolSize: cfg.MaxPoolSize, MaxConnecting: cfg.MaxConnecting,
		})
	}
	return p
}

// start launches the pool's owning goroutine. Must be called once.
func (p *pool) start() {
	p.connectOnce.Do(func() { go p.manage() })
}

// ready transitions a paused pool to ready, allowing checkouts again.
func (p *pool) ready() {
	if atomic.CompareAndSwapInt32(&p.state, int32(poolPaused), int32(poolReady)) {
		if p.cfg.PoolMonitor != nil && p.cfg.PoolMonitor.PoolReady != nil {
			p.cfg.PoolMonitor.PoolReady(event.PoolReadyEvent{Address: p.address})
		}
		select {
		case p.readyCh <- struct{}{}:
		default:
		}
	}
}

// clear invalidates every connection currently checked out or idle by
// bumping the generation counter; existing connections are closed as they
// are returned or encountered at next checkout, never handed to a new
// caller. serviceID scopes the clear to one logical backend in
// load-balanced mode; empty clears the whole pool and pauses it.
func (p *pool) clear(serviceID, reason string) {
	select {
	case p.clears <- clearRequest{serviceID: serviceID, reason: reason}:
	case <-p.closed:
	}
}

// checkOut requests a connection, blocking until one is available, ctx is
// done, or the pool is closed.
func (p *pool) checkOut(ctx context.Context) (*pooledConnection, error) {
	if p.cfg.PoolMonitor != nil && p.cfg.PoolMonitor.ConnectionCheckOutStarted != nil {
		p.cfg.PoolMonitor.ConnectionCheckOutStarted(event.ConnectionCheckOutStartedEvent{Address: p.address})
	}
	started := time.Now()

	if poolState(atomic.LoadInt32(&p.state)) == poolClosed {
		p.emitCheckoutFailed("poolClosed")
		return nil, ErrPoolClosed
	}

	req := poolRequest{ctx: ctx, result: make(chan poolResult, 1)}
	select {
	case p.requests <- req:
	case <-ctx.Done():
		p.emitCheckoutFailed("timeout")
		return nil, WaitQueueTimeoutError{Wrapped: ctx.Err()}
	case <-p.closed:
		p.emitCheckoutFailed("poolClosed")
		return nil, ErrPoolClosed
	}

	select {
	case res := <-req.result:
		if res.err != nil {
			p.emitCheckoutFailed(res.err.Error())
			return nil, res.err
		}
		if p.cfg.PoolMonitor != nil && p.cfg.PoolMonitor.ConnectionCheckedOut != nil {
			p.cfg.PoolMonitor.ConnectionCheckedOut(event.ConnectionCheckedOutEvent{
				Address: p.address, ConnectionID: res.conn.id, Duration: time.Since(started),
			})
		}
		return res.conn, nil
	case <-ctx.Done():
		p.emitCheckoutFailed("timeout")
		return nil, WaitQueueTimeoutError{Wrapped: ctx.Err()}
	}
}

// checkIn returns a connection to the pool, or closes it outright if it is
// stale (generation has advanced past it) or the pool is closed.
func (p *pool) checkIn(c *pooledConnection) {
	if p.cfg.PoolMonitor != nil && p.cfg.PoolMonitor.ConnectionCheckedIn != nil {
		p.cfg.PoolMonitor.ConnectionCheckedIn(event.ConnectionCheckedInEvent{Address: p.address, ConnectionID: c.id})
	}
	select {
	case p.returns <- c:
	case <-p.closed:
		c.conn.close()
	}
}

// close drains and closes every connection the pool knows about and stops
// its goroutine. It blocks until shutdown completes or ctx expires.
func (p *pool) close(ctx context.Context) error {
	atomic.StoreInt32(&p.state, int32(poolClosed))
	done := make(chan struct{})
	p.closeOnce.Do(func() {
		close(p.closed)
		select {
		case p.closes <- done:
		case <-ctx.Done():
			close(done)
		}
	})
	select {
	case <-done:
	case <-ctx.Done():
	}
	if p.cfg.PoolMonitor != nil && p.cfg.PoolMonitor.PoolClosed != nil {
		p.cfg.PoolMonitor.PoolClosed(event.PoolClosedEvent{Address: p.address})
	}
	return nil
}

func (p *pool) currentGeneration(serviceID string) uint64 {
	p.genMu.Lock()
	defer p.genMu.Unlock()
	if serviceID == "" {
		return p.generation
	}
	return p.perServiceGeneration[serviceID]
}

// manage is the pool's single owning goroutine: it is the only code that
// ever mutates available/waiters, so neither needs a lock. It is also the
// only writer of generation, which still sits behind genMu because
// establishAsync reads it from other goroutines.
func (p *pool) manage() {
	var available []*pooledConnection
	var waiters []poolRequest
	numOpen := 0
	pending := 0 // connections currently being established, counted toward numOpen already

	// expired reports whether cand must never be handed to a caller: its
	// generation is stale, it has sat idle past MaxIdleTime, or it has lived
	// past MaxLifetime since creation.
	expired := func(cand *pooledConnection) bool {
		if cand.generation < p.currentGeneration(cand.serviceID) {
			return true
		}
		now := time.Now()
		if p.cfg.MaxIdleTime > 0 && now.Sub(cand.idleSince) > p.cfg.MaxIdleTime {
			return true
		}
		if p.cfg.MaxLifetime > 0 && now.Sub(cand.createdAt) > p.cfg.MaxLifetime {
			return true
		}
		return false
	}

	// spawn starts one background establishment. A nil result channel marks
	// a min-pool background fill rather than a waiter's request; numOpen is
	// incremented immediately so concurrent fills/checkouts see an accurate
	// count of open-or-opening connections.
	spawn := func(w poolRequest) {
		numOpen++
		pending++
		p.idCounter++
		id := address.Address(p.address).String() + "-" + itoa(p.idCounter)
		if p.cfg.PoolMonitor != nil && p.cfg.PoolMonitor.ConnectionCreated != nil {
			p.cfg.PoolMonitor.ConnectionCreated(event.ConnectionCreatedEvent{Address: p.address, ConnectionID: id})
		}
		go p.establishAsync(w, id)
	}

	// fill schedules background establishment until available+pending
	// connections reach MinPoolSize, per §4.3's min-pool maintenance rule.
	fill := func() {
		if p.cfg.MinPoolSize == 0 || poolState(atomic.LoadInt32(&p.state)) != poolReady {
			return
		}
		for uint64(len(available)+pending) < p.cfg.MinPoolSize {
			if p.cfg.MaxPoolSize > 0 && uint64(numOpen) >= p.cfg.MaxPoolSize {
				return
			}
			spawn(poolRequest{ctx: context.Background()})
		}
	}

	// reap closes every available connection that has crossed max-idle-time
	// or max-lifetime, then tops the pool back up.
	reap := func() {
		if len(available) == 0 {
			return
		}
		kept := available[:0:0]
		for _, c := range available {
			if expired(c) {
				c.conn.close()
				numOpen--
			} else {
				kept = append(kept, c)
			}
		}
		available = kept
		fill()
	}

	tryFulfill := func() {
		for len(waiters) > 0 {
			if poolState(atomic.LoadInt32(&p.state)) == poolPaused {
				break
			}
			var pc *pooledConnection
			// Scan available LIFO: the most recently returned connection is
			// reused first, per §4.3's check-out algorithm.
			for len(available) > 0 {
				last := len(available) - 1
				cand := available[last]
				available = available[:last]
				if expired(cand) {
					cand.conn.close()
					numOpen--
					continue
				}
				pc = cand
				break
			}
			if pc == nil {
				if uint64(numOpen) >= p.cfg.MaxPoolSize && p.cfg.MaxPoolSize > 0 {
					return
				}
				w := waiters[0]
				waiters = waiters[1:]
				spawn(w)
				continue
			}
			w := waiters[0]
			waiters = waiters[1:]
			w.result <- poolResult{conn: pc}
		}
	}

	ticker := time.NewTicker(backgroundSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case req := <-p.requests:
			if poolState(atomic.LoadInt32(&p.state)) == poolPaused {
				req.result <- poolResult{err: ErrPoolClosed}
				continue
			}
			waiters = append(waiters, req)
			tryFulfill()

		case res := <-p.established:
			pending--
			background := res.waiter.result == nil
			if res.err != nil {
				numOpen--
				if !background {
					res.waiter.result <- poolResult{err: res.err}
				}
			} else if res.conn.generation < p.currentGeneration(res.conn.serviceID) {
				res.conn.conn.close()
				numOpen--
				if !background {
					res.waiter.result <- poolResult{err: ErrPoolClosed}
				}
			} else if background {
				available = append(available, res.conn)
			} else {
				res.waiter.result <- poolResult{conn: res.conn}
			}
			tryFulfill()

		case c := <-p.returns:
			c.idleSince = time.Now()
			if expired(c) {
				c.conn.close()
				numOpen--
			} else {
				available = append(available, c)
			}
			tryFulfill()

		case cr := <-p.clears:
			p.genMu.Lock()
			if cr.serviceID == "" {
				p.generation++
				atomic.CompareAndSwapInt32(&p.state, int32(poolReady), int32(poolPaused))
			} else {
				p.perServiceGeneration[cr.serviceID]++
			}
			p.genMu.Unlock()
			if p.cfg.PoolMonitor != nil && p.cfg.PoolMonitor.PoolCleared != nil {
				p.cfg.PoolMonitor.PoolCleared(event.PoolClearedEvent{Address: p.address, ServiceID: cr.serviceID, Reason: cr.reason})
			}
			kept := available[:0:0]
			for _, c := range available {
				if c.generation < p.currentGeneration(c.serviceID) {
					c.conn.close()
					numOpen--
				} else {
					kept = append(kept, c)
				}
			}
			available = kept

		case <-p.readyCh:
			fill()
			tryFulfill()

		case <-ticker.C:
			reap()
			fill()

		case done := <-p.closes:
			for _, c := range available {
				c.conn.close()
			}
			for _, w := range waiters {
				w.result <- poolResult{err: ErrPoolClosed}
			}
			close(done)
			return
		}
	}
}

// establishAsync dials and handshakes a new connection for waiter w off the
// pool's owning goroutine, so a slow TLS handshake or DNS lookup never stalls
// every other checkout. Concurrency is bounded by connSem (CMAP's
// maxConnecting) rather than by the single-actor loop.
func (p *pool) establishAsync(w poolRequest, id string) {
	if err := p.connSem.Acquire(w.ctx, 1); err != nil {
		p.sendEstablished(establishResult{waiter: w, err: err})
		return
	}
	defer p.connSem.Release(1)

	conn := newConnection(p.address, id, p.cfg.TLSConfig)
	err := conn.connect(w.ctx)
	if err == nil {
		_, err = handshake(w.ctx, conn, p.cfg.AppName, p.cfg.Compressors, p.cfg.LoadBalanced, p.cfg.Credential)
	}
	if err != nil {
		conn.close()
		p.sendEstablished(establishResult{waiter: w, err: err})
		return
	}
	if p.cfg.PoolMonitor != nil && p.cfg.PoolMonitor.ConnectionReady != nil {
		p.cfg.PoolMonitor.ConnectionReady(event.ConnectionReadyEvent{Address: p.address, ConnectionID: id})
	}
	now := time.Now()
	pc := &pooledConnection{conn: conn, generation: p.currentGeneration(""), id: id, pool: p, createdAt: now, idleSince: now}
	p.sendEstablished(establishResult{waiter: w, conn: pc})
}

// sendEstablished hands an establishAsync outcome back to manage(), closing
// a successfully-dialed connection outright if the pool shut down first.
func (p *pool) sendEstablished(res establishResult) {
	select {
	case p.established <- res:
	case <-p.closed:
		if res.conn != nil {
			res.conn.conn.close()
		}
	}
}

func (p *pool) emitCheckoutFailed(reason string) {
	if p.cfg.PoolMonitor != nil && p.cfg.PoolMonitor.ConnectionCheckOutFailed != nil {
		p.cfg.PoolMonitor.ConnectionCheckOutFailed(event.ConnectionCheckOutFailedEvent{Address: p.address, Reason: reason})
	}
}

func itoa(n uint64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
