// Package nodal is the public surface consumed by applications: Client,
// Database and Collection wrap the core topology/driver/cursor/auth
// packages with the CRUD and aggregation operations applications actually
// call.
package nodal

import (
	"context"
	"errors"
	"time"

	"github.com/nodaldb/nodal-go-driver/address"
	"github.com/nodaldb/nodal-go-driver/auth"
	"github.com/nodaldb/nodal-go-driver/connstring"
	"github.com/nodaldb/nodal-go-driver/description"
	"github.com/nodaldb/nodal-go-driver/driver/operation"
	"github.com/nodaldb/nodal-go-driver/event"
	"github.com/nodaldb/nodal-go-driver/session"
	"github.com/nodaldb/nodal-go-driver/topology"
)

// ErrClientDisconnected is returned by operations run after Disconnect.
var ErrClientDisconnected = errors.New("nodal: client is disconnected")

// Client is a handle to a deployment, fronting one Topology and the
// session pool every ClientSession is drawn from.
type Client struct {
	deployment     *topology.Topology
	sessionPool    *session.Pool
	clock          *session.ClusterClock
	monitor        *event.CommandMonitor
	readPreference *description.ReadPreference

	connString connstring.ConnString
	disconnect chan struct{}
}

// Connect parses uri and starts monitoring its deployment; it does not
// block for an initial server selection the way legacy drivers did, since
// the topology has always been able to report Unknown until a heartbeat
// lands.
func Connect(ctx context.Context, uri string, opts ...ClientOption) (*Client, error) {
	cs, err := connstring.Parse(uri)
	if err != nil {
		return nil, err
	}

	cfg := clientConfig{}
	for _, o := range opts {
		o(&cfg)
	}

	tlsConfig, err := topology.NewTLSConfig(*cs)
	if err != nil {
		return nil, err
	}

	var cred *auth.Cred
	if cs.Username != "" || cs.AuthMechanism != "" {
		cred = &auth.Cred{
			Source:      cs.AuthSource,
			Username:    cs.Username,
			Password:    cs.Password,
			PasswordSet: cs.Password != "",
			Mechanism:   cs.AuthMechanism,
			Props:       cs.AuthMechanismProperties,
		}
	}

	seeds := make([]address.Address, 0, len(cs.Hosts))
	for _, h := range cs.Hosts {
		seeds = append(seeds, address.Address(h).Canonicalize())
	}

	mode := description.TopologyUnknown
	if cs.DirectConnection {
		mode = description.Single
	}

	sessionPool := session.NewPool()

	c := &Client{
		sessionPool:    sessionPool,
		clock:          &session.ClusterClock{},
		monitor:        cfg.monitor,
		readPreference: cfg.readPreference,
		connString:     *cs,
		disconnect:     make(chan struct{}),
	}

	c.deployment = topology.New(topology.Config{
		Seeds:          seeds,
		Mode:           mode,
		ReplicaSetName: cs.ReplicaSet,
		SessionPool:    sessionPool,
		ServerConfig: topology.ServerConfig{
			AppName:       cfg.appName,
			Compressors:   cfg.compressors,
			ServerMonitor: cfg.serverMonitor,
			PoolMonitor:   cfg.poolMonitor,
			TLSConfig:     tlsConfig,
			Credential:    cred,
			MinPoolSize:   cs.MinPoolSize,
			MaxPoolSize:   cs.MaxPoolSize,
			MaxIdleTime:   cs.MaxIdleTime,
			MaxLifetime:   cs.MaxLifetime,
		},
	})
	if err := c.deployment.Connect(); err != nil {
		return nil, err
	}
	return c, nil
}

// Disconnect best-effort ends every server-side logical session this client
// ever handed out, then stops every server monitor and closes every pool.
func (c *Client) Disconnect(ctx context.Context) error {
	select {
	case <-c.disconnect:
		return ErrClientDisconnected
	default:
		close(c.disconnect)
	}
	endClientSessions(ctx, c)
	return c.deployment.Disconnect(ctx)
}

// Database returns a handle for name; it does no I/O.
func (c *Client) Database(name string) *Database {
	return &Database{client: c, name: name}
}

// Ping confirms connectivity by selecting a server matching rp (the
// client's default read preference when rp is nil). It does not send a
// command to the selected server.
func (c *Client) Ping(ctx context.Context, rp *description.ReadPreference) error {
	if rp == nil {
		rp = c.readPreference
	}
	criteria := description.SelectionCriteria{ReadPref: rp}
	_, err := c.deployment.SelectServer(ctx, criteria)
	return err
}

// StartSession checks out a logical session for explicit use across
// multiple operations; the caller must EndSession when done.
func (c *Client) StartSession(causalConsistency bool) *session.Client {
	sess := c.sessionPool.GetSession()
	if sess == nil {
		sess = session.NewClient(true, causalConsistency)
	}
	return sess
}

// EndSession returns an explicit session to the pool for reuse.
func (c *Client) EndSession(sess *session.Client) {
	c.sessionPool.ReturnSession(sess)
}

func endClientSessions(ctx context.Context, c *Client) {
	if c.sessionPool == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	batches := c.sessionPool.Drain()
	operation.EndSessions(ctx, "admin", c.deployment, batches)
}
