// Package connstring parses the driver's connection string URI into a
// ConnString, per §6.1: scheme://[user[:pass]@]host[:port][,host[:port]]*[/[db][?opt=val&...]]
// with schemes "db://" (seed list) and "db+srv://" (DNS-bootstrapped seed
// list). SRV/TXT resolution itself is an external collaborator (§6.4); this
// package only merges TXT-sourced options with URI options once a resolver
// has produced them.
package connstring

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nodaldb/nodal-go-driver/description"
)

const (
	schemeSeedList = "db"
	schemeSRV      = "db+srv"

	minHeartbeatFrequency = 500 * time.Millisecond
)

// ConnString is the parsed, validated form of a connection string.
type ConnString struct {
	Original string

	SRV      bool
	Hosts    []string
	Username string
	Password string
	Database string

	AppName string

	AuthMechanism           string
	AuthSource              string
	AuthMechanismProperties map[string]string

	Compressors          []string
	ZlibCompressionLevel int

	ConnectTimeout time.Duration
	SocketTimeout  time.Duration

	DirectConnection bool

	HeartbeatFrequency time.Duration

	LoadBalanced bool

	LocalThreshold time.Duration

	MaxIdleTime time.Duration
	MaxLifetime time.Duration
	MaxPoolSize uint64
	MinPoolSize uint64

	MaxStaleness time.Duration

	ReadConcernLevel   string
	ReadPreference     description.ReadPreferenceMode
	ReadPreferenceTags []map[string]string

	ReplicaSet string

	RetryReads  bool
	RetryWrites bool

	ServerSelectionTimeout time.Duration

	TLS                           bool
	TLSInsecure                   bool
	TLSAllowInvalidCertificates   bool
	TLSAllowInvalidHostnames      bool
	TLSCAFile                     string
	TLSCertificateKeyFile         string
	TLSCertificateKeyFilePassword string

	W        interface{}
	WTimeout time.Duration
	Journal  bool

	// UnknownOptions records option keys not recognized above; the caller is
	// expected to log a warning for each, per §6.1 ("unknown options are
	// ignored with a warning").
	UnknownOptions []string
}

// Parse parses uri without performing DNS SRV resolution; a "db+srv://"
// scheme is recognized and ConnString.SRV is set, but Hosts is left as the
// single bootstrap hostname for the caller's resolver to expand via
// ApplySRVResult.
func Parse(uri string) (*ConnString, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("connstring: %w", err)
	}

	cs := &ConnString{
		Original:               uri,
		RetryReads:             true,
		RetryWrites:            true,
		HeartbeatFrequency:     10 * time.Second,
		ServerSelectionTimeout: 30 * time.Second,
		LocalThreshold:         15 * time.Millisecond,
		ReadPreference:         description.PrimaryMode,
		TLS:                    true,
	}

	switch u.Scheme {
	case schemeSeedList:
	case schemeSRV:
		cs.SRV = true
		cs.TLS = true
	default:
		return nil, fmt.Errorf("connstring: unsupported scheme %q", u.Scheme)
	}

	if u.User != nil {
		cs.Username = u.User.Username()
		cs.Password, _ = u.User.Password()
	}

	hostSpec := u.Host
	if hostSpec == "" {
		return nil, fmt.Errorf("connstring: missing host")
	}
	cs.Hosts = strings.Split(hostSpec, ",")

	if cs.Database = strings.TrimPrefix(u.Path, "/"); cs.Database == "" {
		cs.Database = ""
	}

	if err := cs.applyQuery(u.Query()); err != nil {
		return nil, err
	}
	return cs, nil
}

func (cs *ConnString) applyQuery(q url.Values) error {
	for key, vals := range q {
		if len(vals) == 0 {
			continue
		}
		v := vals[len(vals)-1]
		if err := cs.applyOption(key, v); err != nil {
			return err
		}
	}
	return nil
}

func (cs *ConnString) applyOption(key, value string) error {
	switch strings.ToLower(key) {
	case "appname":
		cs.AppName = value
	case "authmechanism":
		cs.AuthMechanism = value
	case "authsource":
		cs.AuthSource = value
	case "authmechanismproperties":
		cs.AuthMechanismProperties = parsePropertyList(value)
	case "compressors":
		cs.Compressors = strings.Split(value, ",")
	case "zlibcompressionlevel":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("connstring: invalid zlibCompressionLevel %q: %w", value, err)
		}
		cs.ZlibCompressionLevel = n
	case "connecttimeoutms":
		d, err := parseMillisOption(value)
		if err != nil {
			return err
		}
		cs.ConnectTimeout = d
	case "sockettimeoutms":
		d, err := parseMillisOption(value)
		if err != nil {
			return err
		}
		cs.SocketTimeout = d
	case "directconnection":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("connstring: invalid directConnection %q: %w", value, err)
		}
		cs.DirectConnection = b
	case "heartbeatfrequencyms":
		d, err := parseMillisOption(value)
		if err != nil {
			return err
		}
		if d < minHeartbeatFrequency {
			d = minHeartbeatFrequency
		}
		cs.HeartbeatFrequency = d
	case "loadbalanced":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("connstring: invalid loadBalanced %q: %w", value, err)
		}
		cs.LoadBalanced = b
	case "localthresholdms":
		d, err := parseMillisOption(value)
		if err != nil {
			return err
		}
		cs.LocalThreshold = d
	case "maxidletimems":
		d, err := parseMillisOption(value)
		if err != nil {
			return err
		}
		cs.MaxIdleTime = d
	case "maxconnlifetimems":
		d, err := parseMillisOption(value)
		if err != nil {
			return err
		}
		cs.MaxLifetime = d
	case "maxpoolsize":
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("connstring: invalid maxPoolSize %q: %w", value, err)
		}
		cs.MaxPoolSize = n
	case "minpoolsize":
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("connstring: invalid minPoolSize %q: %w", value, err)
		}
		cs.MinPoolSize = n
	case "maxstalenessseconds":
		secs, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("connstring: invalid maxStalenessSeconds %q: %w", value, err)
		}
		d := time.Duration(secs) * time.Second
		if err := description.ValidateMaxStaleness(d, cs.HeartbeatFrequency); err != nil {
			return fmt.Errorf("connstring: %w", err)
		}
		cs.MaxStaleness = d
	case "readconcernlevel":
		cs.ReadConcernLevel = value
	case "readpreference":
		mode, err := description.ParseReadPreferenceMode(value)
		if err != nil {
			return fmt.Errorf("connstring: %w", err)
		}
		cs.ReadPreference = mode
	case "readpreferencetags":
		cs.ReadPreferenceTags = append(cs.ReadPreferenceTags, parsePropertyList(value))
	case "replicaset":
		cs.ReplicaSet = value
	case "retryreads":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("connstring: invalid retryReads %q: %w", value, err)
		}
		cs.RetryReads = b
	case "retrywrites":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("connstring: invalid retryWrites %q: %w", value, err)
		}
		cs.RetryWrites = b
	case "serverselectiontimeoutms":
		d, err := parseMillisOption(value)
		if err != nil {
			return err
		}
		cs.ServerSelectionTimeout = d
	case "tls", "ssl":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("connstring: invalid tls %q: %w", value, err)
		}
		cs.TLS = b
	case "tlsinsecure":
		cs.TLSInsecure, _ = strconv.ParseBool(value)
	case "tlsallowinvalidcertificates":
		cs.TLSAllowInvalidCertificates, _ = strconv.ParseBool(value)
	case "tlsallowinvalidhostnames":
		cs.TLSAllowInvalidHostnames, _ = strconv.ParseBool(value)
	case "tlscafile":
		cs.TLSCAFile = value
	case "tlscertificatekeyfile":
		cs.TLSCertificateKeyFile = value
	case "tlscertificatekeyfilepassword":
		cs.TLSCertificateKeyFilePassword = value
	case "w":
		if n, err := strconv.Atoi(value); err == nil {
			cs.W = n
		} else {
			cs.W = value
		}
	case "wtimeoutms":
		d, err := parseMillisOption(value)
		if err != nil {
			return err
		}
		cs.WTimeout = d
	case "journal":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("connstring: invalid journal %q: %w", value, err)
		}
		cs.Journal = b
	default:
		cs.UnknownOptions = append(cs.UnknownOptions, key)
	}
	return nil
}

func parseMillisOption(value string) (time.Duration, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("connstring: invalid duration %q: %w", value, err)
	}
	return time.Duration(n) * time.Millisecond, nil
}

func parsePropertyList(value string) map[string]string {
	out := make(map[string]string)
	for _, pair := range strings.Split(value, ",") {
		kv := strings.SplitN(pair, ":", 2)
		if len(kv) != 2 {
			continue
		}
		out[kv[0]] = kv[1]
	}
	return out
}

// SRVResult is what a DNS resolver (§6.4's "DNS resolver" collaborator)
// returns for a "db+srv://" bootstrap host.
type SRVResult struct {
	Hosts   []string
	Options map[string]string // extra options sourced from the TXT record
}

// ApplySRVResult merges a resolver's result into cs. Per the documented
// precedence (§8 scenario 6), options already set explicitly in the URI
// always win over TXT-sourced ones; TXT only fills in options the URI did
// not set.
func (cs *ConnString) ApplySRVResult(res SRVResult) error {
	cs.Hosts = res.Hosts
	explicit := cs.snapshotExplicitOptions()
	for key, value := range res.Options {
		if explicit[strings.ToLower(key)] {
			continue
		}
		if err := cs.applyOption(key, value); err != nil {
			return err
		}
	}
	return nil
}

func (cs *ConnString) snapshotExplicitOptions() map[string]bool {
	set := make(map[string]bool)
	if cs.ReplicaSet != "" {
		set["replicaset"] = true
	}
	if cs.AuthSource != "" {
		set["authsource"] = true
	}
	if u, err := url.Parse(cs.Original); err == nil {
		for key := range u.Query() {
			set[strings.ToLower(key)] = true
		}
	}
	return set
}
