package connstring

import (
	"testing"
	"time"

	"github.com/nodaldb/nodal-go-driver/description"
)

func TestParseBasic(t *testing.T) {
	cs, err := Parse("db://user:pass@h1:27017,h2:27018/mydb?replicaSet=rs0&readPreference=secondary")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cs.Username != "user" || cs.Password != "pass" {
		t.Fatalf("unexpected credentials: %+v", cs)
	}
	if len(cs.Hosts) != 2 || cs.Hosts[0] != "h1:27017" || cs.Hosts[1] != "h2:27018" {
		t.Fatalf("unexpected hosts: %v", cs.Hosts)
	}
	if cs.Database != "mydb" {
		t.Fatalf("unexpected database: %q", cs.Database)
	}
	if cs.ReplicaSet != "rs0" {
		t.Fatalf("unexpected replicaSet: %q", cs.ReplicaSet)
	}
	if cs.ReadPreference != description.SecondaryMode {
		t.Fatalf("unexpected read preference: %v", cs.ReadPreference)
	}
}

func TestParseSRVScheme(t *testing.T) {
	cs, err := Parse("db+srv://h/?authSource=admin")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !cs.SRV {
		t.Fatalf("expected SRV to be set")
	}
	if cs.AuthSource != "admin" {
		t.Fatalf("unexpected authSource: %q", cs.AuthSource)
	}
}

func TestHeartbeatFrequencyFloor(t *testing.T) {
	cs, err := Parse("db://h/?heartbeatFrequencyMS=100")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cs.HeartbeatFrequency != minHeartbeatFrequency {
		t.Fatalf("expected floor of %v, got %v", minHeartbeatFrequency, cs.HeartbeatFrequency)
	}
}

func TestMaxStalenessRejectedBelowFloor(t *testing.T) {
	_, err := Parse("db://h/?maxStalenessSeconds=1")
	if err == nil {
		t.Fatal("expected maxStalenessSeconds=1 to be rejected")
	}
}

func TestPoolSizeOptions(t *testing.T) {
	cs, err := Parse("db://h/?minPoolSize=5&maxPoolSize=50&maxIdleTimeMS=60000&maxConnLifetimeMS=1800000")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cs.MinPoolSize != 5 || cs.MaxPoolSize != 50 {
		t.Fatalf("unexpected pool bounds: min=%d max=%d", cs.MinPoolSize, cs.MaxPoolSize)
	}
	if cs.MaxIdleTime != 60*time.Second {
		t.Fatalf("unexpected maxIdleTimeMS: %v", cs.MaxIdleTime)
	}
	if cs.MaxLifetime != 30*time.Minute {
		t.Fatalf("unexpected maxConnLifetimeMS: %v", cs.MaxLifetime)
	}
}

func TestSRVResultPrecedence(t *testing.T) {
	cs, err := Parse("db+srv://h/?authSource=admin")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	err = cs.ApplySRVResult(SRVResult{
		Hosts:   []string{"a.example.com:27017", "b.example.com:27017"},
		Options: map[string]string{"replicaSet": "rs0", "authSource": "other"},
	})
	if err != nil {
		t.Fatalf("ApplySRVResult: %v", err)
	}
	if cs.AuthSource != "admin" {
		t.Fatalf("expected URI authSource to win, got %q", cs.AuthSource)
	}
	if cs.ReplicaSet != "rs0" {
		t.Fatalf("expected TXT replicaSet to apply, got %q", cs.ReplicaSet)
	}
	if len(cs.Hosts) != 2 {
		t.Fatalf("expected resolved hosts, got %v", cs.Hosts)
	}
}

func TestUnknownOptionIgnored(t *testing.T) {
	cs, err := Parse("db://h/?bogusOption=1")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(cs.UnknownOptions) != 1 || cs.UnknownOptions[0] != "bogusOption" {
		t.Fatalf("expected bogusOption recorded as unknown, got %v", cs.UnknownOptions)
	}
}
