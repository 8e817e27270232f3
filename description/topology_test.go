package description

import (
	"testing"

	"github.com/nodaldb/nodal-go-driver/address"
)

func TestApplyPrimaryElection(t *testing.T) {
	top := NewTopology(ReplicaSetNoPrimary, []address.Address{"a:27017", "b:27017"})

	primary := Server{
		Addr:    "a:27017",
		Kind:    RSPrimary,
		SetName: "rs0",
		Members: []address.Address{"a:27017", "b:27017"},
	}
	top, changed := top.Apply(primary)
	if !changed {
		t.Fatal("expected change")
	}
	if top.Kind != ReplicaSetWithPrimary {
		t.Fatalf("got kind %s", top.Kind)
	}
	if top.PrimaryCount() != 1 {
		t.Fatalf("expected exactly one primary, got %d", top.PrimaryCount())
	}
}

func TestApplyDemotesOldPrimary(t *testing.T) {
	top := NewTopology(ReplicaSetNoPrimary, []address.Address{"a:27017", "b:27017"})
	top, _ = top.Apply(Server{Addr: "a:27017", Kind: RSPrimary, Members: []address.Address{"a:27017", "b:27017"},
		HasElectionID: true, ElectionID: [12]byte{1}})

	top, changed := top.Apply(Server{Addr: "b:27017", Kind: RSPrimary, Members: []address.Address{"a:27017", "b:27017"},
		HasElectionID: true, ElectionID: [12]byte{2}})
	if !changed {
		t.Fatal("expected change")
	}
	if top.PrimaryCount() != 1 {
		t.Fatalf("expected exactly one primary after re-election, got %d", top.PrimaryCount())
	}
	if top.Servers["b:27017"].Kind != RSPrimary {
		t.Fatalf("expected b to be the new primary")
	}
	if top.Servers["a:27017"].Kind != Unknown {
		t.Fatalf("expected old primary a to be demoted to Unknown, got %s", top.Servers["a:27017"].Kind)
	}
}

func TestApplyRejectsStalePrimary(t *testing.T) {
	top := NewTopology(ReplicaSetNoPrimary, []address.Address{"a:27017", "b:27017"})
	top, _ = top.Apply(Server{Addr: "a:27017", Kind: RSPrimary, SetVersion: 2, HasElectionID: true,
		ElectionID: [12]byte{2}, Members: []address.Address{"a:27017", "b:27017"}})

	top, _ = top.Apply(Server{Addr: "b:27017", Kind: RSPrimary, SetVersion: 1, HasElectionID: true,
		ElectionID: [12]byte{1}, Members: []address.Address{"a:27017", "b:27017"}})

	if top.Servers["b:27017"].Kind == RSPrimary {
		t.Fatal("stale primary should have been coerced to Unknown")
	}
	if top.Servers["a:27017"].Kind != RSPrimary {
		t.Fatal("original primary should remain primary")
	}
}

func TestSelectServerPrimaryMode(t *testing.T) {
	top := NewTopology(ReplicaSetWithPrimary, nil)
	top.Servers = map[address.Address]Server{
		"a:27017": {Addr: "a:27017", Kind: RSPrimary},
		"b:27017": {Addr: "b:27017", Kind: RSSecondary},
	}
	servers, err := SelectServer(top, SelectionCriteria{ReadPref: &ReadPreference{Mode: PrimaryMode}}, 0)
	if err != nil {
		t.Fatalf("SelectServer: %v", err)
	}
	if len(servers) != 1 || servers[0].Kind != RSPrimary {
		t.Fatalf("expected only the primary, got %+v", servers)
	}
}

func TestValidateMaxStalenessRejectsTooLow(t *testing.T) {
	if err := ValidateMaxStaleness(10*1000000000, 10*1000000000); err == nil {
		t.Fatal("expected validation error for too-low maxStaleness")
	}
}
