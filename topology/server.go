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

	"github.com/nodaldb/nodal-go-driver/address"
	"github.com/nodaldb/nodal-go-driver/auth"
	"github.com/nodaldb/nodal-go-driver/description"
	"github.com/nodaldb/nodal-go-driver/event"
)

const minHeartbeatInterval = 500 * time.Millisecond

// server connection states, mirroring the source's atomic int32 state
// machine (grounded on x/mongo/driver/topology/server.go).
const (
	stateDisconnected int32 = iota
	stateDisconnecting
	stateConnected
)

// ServerConfig configures a Server's pool sizing, heartbeat cadence, and
// event reporting.
type ServerConfig struct {
	AppName           string
	Compressors       []string
	HeartbeatInterval time.Duration
	MinPoolSize       uint64
	MaxPoolSize       uint64
	MaxConnecting     uint64
	MaxIdleTime       time.Duration
	MaxLifetime       time.Duration
	LoadBalanced      bool
	ServerMonitor     *event.ServerMonitor
	PoolMonitor       *event.PoolMonitor
	TLSConfig         *tls.Config
	Credential        *auth.Cred
}

// updateTopologyFunc is called by a Server whenever it observes a new
// description, letting the owning Topology fold it into the aggregate view.
type updateTopologyFunc func(description.Server)

// Server monitors a single node: it runs a heartbeat loop, maintains the
// node's most recently observed ServerDescription, and fronts the node's
// CMAP connection pool.
type Server struct {
	cfg     ServerConfig
	address address.Address

	state int32

	pool *pool

	desc atomic.Value // description.Server

	done     chan struct{}
	checkNow chan struct{}
	closewg  sync.WaitGroup

	subLock     sync.Mutex
	subscribers map[uint64]chan description.Server
	nextSubID   uint64

	updateTopology updateTopologyFunc

	monitorConn *Connection
}

// NewServer constructs a Server for addr; it does not connect until
// Connect is called.
func NewServer(addr address.Address, cfg ServerConfig, update updateTopologyFunc) *Server {
	s := &Server{
		cfg:            cfg,
		address:        addr,
		done:           make(chan struct{}),
		checkNow:       make(chan struct{}, 1),
		subscribers:    make(map[uint64]chan description.Server),
		updateTopology: update,
	}
	s.desc.Store(description.NewDefaultServer(addr))
	s.pool = newPool(poolConfig{
		Address:       addr,
		MinPoolSize:   cfg.MinPoolSize,
		MaxPoolSize:   cfg.MaxPoolSize,
		MaxConnecting: cfg.MaxConnecting,
		MaxIdleTime:   cfg.MaxIdleTime,
		MaxLifetime:   cfg.MaxLifetime,
		PoolMonitor:   cfg.PoolMonitor,
		TLSConfig:     cfg.TLSConfig,
		AppName:       cfg.AppName,
		Compressors:   cfg.Compressors,
		LoadBalanced:  cfg.LoadBalanced,
		Credential:    cfg.Credential,
	})
	return s
}

// Connect starts the pool and the heartbeat monitor goroutine.
func (s *Server) Connect() error {
	if !atomic.CompareAndSwapInt32(&s.state, stateDisconnected, stateConnected) {
		return ErrServerConnected
	}
	s.emitServerOpening()
	s.pool.start()
	s.closewg.Add(1)
	go s.monitor()
	return nil
}

// Disconnect stops the heartbeat monitor and closes the pool.
func (s *Server) Disconnect(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.state, stateConnected, stateDisconnecting) {
		return ErrServerClosed
	}
	close(s.done)
	s.closewg.Wait()
	err := s.pool.close(ctx)
	atomic.StoreInt32(&s.state, stateDisconnected)
	s.emitServerClosed()
	return err
}

// Connection checks out a connection from the server's pool.
func (s *Server) Connection(ctx context.Context) (*pooledConnection, error) {
	if atomic.LoadInt32(&s.state) != stateConnected {
		return nil, ErrServerClosed
	}
	pc, err := s.pool.checkOut(ctx)
	if err != nil {
		s.ProcessHandshakeError(err)
		return nil, err
	}
	return pc, nil
}

// Description returns the most recently observed ServerDescription.
func (s *Server) Description() description.Server {
	return s.desc.Load().(description.Server)
}

// RequestImmediateCheck wakes the heartbeat loop early, used after an
// error that invalidates the server's last known state. The loop runs its
// next hello as soon as the minHeartbeatInterval limiter allows; a hello
// already in flight is not cancelled.
func (s *Server) RequestImmediateCheck() {
	select {
	case s.checkNow <- struct{}{}:
	default:
	}
}

// Subscribe returns a channel that receives every subsequent description
// update, pre-populated with the current description.
func (s *Server) Subscribe() (<-chan description.Server, func(), error) {
	if atomic.LoadInt32(&s.state) != stateConnected {
		return nil, nil, ErrSubscribeAfterClosed
	}
	ch := make(chan description.Server, 1)
	ch <- s.Description()

	s.subLock.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = ch
	s.subLock.Unlock()

	cancel := func() {
		s.subLock.Lock()
		delete(s.subscribers, id)
		s.subLock.Unlock()
	}
	return ch, cancel, nil
}

// ProcessHandshakeError implements the pre-handshake branch of SDAM error
// handling: any connection error observed while obtaining a connection
// marks the server Unknown and clears its pool.
func (s *Server) ProcessHandshakeError(err error) {
	if err == nil {
		return
	}
	desc := description.NewServerFromError(s.address, err, s.Description().TopologyVersion)
	s.updateDescription(desc)
	s.pool.clear("", "handshake error: "+err.Error())
}

// ProcessError implements the post-handshake branch of SDAM error handling
// per §7: unless the current description's topology version is at least as
// new as the reported one, any error marks the server Unknown, requests an
// immediate re-check and clears the pool; the kind of error does not change
// this.
func (s *Server) ProcessError(err error, topologyVersion *description.TopologyVersion) {
	if err == nil {
		return
	}
	current := s.Description()
	if description.CompareTopologyVersion(current.TopologyVersion, topologyVersion) >= 0 {
		return
	}
	s.updateDescription(description.NewServerFromError(s.address, err, topologyVersion))
	s.RequestImmediateCheck()
	s.pool.clear("", err.Error())
}

func (s *Server) updateDescription(desc description.Server) {
	s.desc.Store(desc)

	s.subLock.Lock()
	for _, ch := range s.subscribers {
		select {
		case <-ch:
		default:
		}
		ch <- desc
	}
	s.subLock.Unlock()

	if s.cfg.ServerMonitor != nil && s.cfg.ServerMonitor.ServerDescriptionChanged != nil {
		s.cfg.ServerMonitor.ServerDescriptionChanged(event.ServerDescriptionChangedEvent{
			Address: s.address,
		})
	}
	if s.updateTopology != nil {
		s.updateTopology(desc)
	}
}

// monitor runs the heartbeat loop: on each tick (or RequestImmediateCheck,
// rate-limited to minHeartbeatInterval) it issues a hello against a
// dedicated monitoring connection and republishes the resulting
// description.
func (s *Server) monitor() {
	defer s.closewg.Done()

	ticker := time.NewTicker(s.heartbeatInterval())
	limiter := time.NewTicker(minHeartbeatInterval)
	defer ticker.Stop()
	defer limiter.Stop()

	s.heartbeat()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.heartbeat()
		case <-s.checkNow:
			select {
			case <-limiter.C:
			case <-s.done:
				return
			}
			s.heartbeat()
		}
	}
}

func (s *Server) heartbeatInterval() time.Duration {
	if s.cfg.HeartbeatInterval <= 0 {
		return 10 * time.Second
	}
	return s.cfg.HeartbeatInterval
}

func (s *Server) heartbeat() {
	started := time.Now()
	s.emitHeartbeatStarted()

	ctx, cancel := context.WithTimeout(context.Background(), s.heartbeatInterval())
	defer cancel()

	if s.monitorConn == nil {
		s.monitorConn = newConnection(s.address, "monitor-"+string(s.address), s.cfg.TLSConfig)
		if err := s.monitorConn.connect(ctx); err != nil {
			s.monitorConn = nil
			s.emitHeartbeatFailed(time.Since(started), err)
			s.updateDescription(description.NewServerFromError(s.address, err, nil))
			return
		}
	}

	cmd := buildHelloCommand(s.cfg.AppName, s.cfg.Compressors, s.cfg.LoadBalanced)
	if _, err := s.monitorConn.WriteCommand(ctx, "hello", cmd); err != nil {
		s.monitorConn = nil
		s.emitHeartbeatFailed(time.Since(started), err)
		s.updateDescription(description.NewServerFromError(s.address, err, nil))
		return
	}
	reply, err := s.monitorConn.ReadReply(ctx)
	if err != nil {
		s.monitorConn = nil
		s.emitHeartbeatFailed(time.Since(started), err)
		s.updateDescription(description.NewServerFromError(s.address, err, nil))
		return
	}

	rtt := time.Since(started)
	desc := parseHelloReply(s.address, reply, rtt, true)
	s.emitHeartbeatSucceeded(rtt)
	s.updateDescription(desc)
	if desc.Kind != description.Unknown {
		s.pool.ready()
	}
}

func (s *Server) emitServerOpening() {
	if s.cfg.ServerMonitor != nil && s.cfg.ServerMonitor.ServerOpening != nil {
		s.cfg.ServerMonitor.ServerOpening(event.ServerOpeningEvent{Address: s.address})
	}
}

func (s *Server) emitServerClosed() {
	if s.cfg.ServerMonitor != nil && s.cfg.ServerMonitor.ServerClosed != nil {
		s.cfg.ServerMonitor.ServerClosed(event.ServerClosedEvent{Address: s.address})
	}
}

func (s *Server) emitHeartbeatStarted() {
	if s.cfg.ServerMonitor != nil && s.cfg.ServerMonitor.ServerHeartbeatStarted != nil {
		s.cfg.ServerMonitor.ServerHeartbeatStarted(event.ServerHeartbeatStartedEvent{Address: s.address})
	}
}

func (s *Server) emitHeartbeatSucceeded(d time.Duration) {
	if s.cfg.ServerMonitor != nil && s.cfg.ServerMonitor.ServerHeartbeatSucceeded != nil {
		s.cfg.ServerMonitor.ServerHeartbeatSucceeded(event.ServerHeartbeatSucceededEvent{Address: s.address, Duration: d})
	}
}

func (s *Server) emitHeartbeatFailed(d time.Duration, err error) {
	if s.cfg.ServerMonitor != nil && s.cfg.ServerMonitor.ServerHeartbeatFailed != nil {
		s.cfg.ServerMonitor.ServerHeartbeatFailed(event.ServerHeartbeatFailedEvent{Address: s.address, Duration: d, Failure: err})
	}
}
