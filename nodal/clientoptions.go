package nodal

import (
	"github.com/nodaldb/nodal-go-driver/description"
	"github.com/nodaldb/nodal-go-driver/event"
)

type clientConfig struct {
	appName        string
	compressors    []string
	monitor        *event.CommandMonitor
	serverMonitor  *event.ServerMonitor
	poolMonitor    *event.PoolMonitor
	readPreference *description.ReadPreference
}

// ClientOption configures a Client at Connect time.
type ClientOption func(*clientConfig)

// WithAppName sets the client application name reported in every
// handshake's client.application.name field.
func WithAppName(name string) ClientOption {
	return func(c *clientConfig) { c.appName = name }
}

// WithCompressors sets the wire compressors offered during handshake, in
// preference order.
func WithCompressors(names ...string) ClientOption {
	return func(c *clientConfig) { c.compressors = names }
}

// WithCommandMonitor registers command-started/succeeded/failed event
// listeners.
func WithCommandMonitor(m *event.CommandMonitor) ClientOption {
	return func(c *clientConfig) { c.monitor = m }
}

// WithServerMonitor registers SDAM event listeners.
func WithServerMonitor(m *event.ServerMonitor) ClientOption {
	return func(c *clientConfig) { c.serverMonitor = m }
}

// WithPoolMonitor registers CMAP event listeners.
func WithPoolMonitor(m *event.PoolMonitor) ClientOption {
	return func(c *clientConfig) { c.poolMonitor = m }
}

// WithReadPreference sets the client-wide default read preference,
// overridable per operation.
func WithReadPreference(rp *description.ReadPreference) ClientOption {
	return func(c *clientConfig) { c.readPreference = rp }
}
