package nodal

import (
	"testing"

	"github.com/nodaldb/nodal-go-driver/bson/bsoncore"
)

func TestMergeFindOptionsLastWriteWins(t *testing.T) {
	skip := int64(5)
	limit := int64(10)
	a := (&FindOptions{}).SetSkip(1)
	b := (&FindOptions{}).SetSkip(int64(*a.skip) + 4).SetLimit(limit)

	merged := mergeFindOptions([]*FindOptions{a, b})
	if merged.skip == nil || *merged.skip != skip {
		t.Fatalf("skip = %v, want %d", merged.skip, skip)
	}
	if merged.limit == nil || *merged.limit != limit {
		t.Fatalf("limit = %v, want %d", merged.limit, limit)
	}
}

func TestMergeFindOptionsIgnoresNilEntries(t *testing.T) {
	a := (&FindOptions{}).SetBatchSize(7)
	merged := mergeFindOptions([]*FindOptions{nil, a, nil})
	if merged.batchSize == nil || *merged.batchSize != 7 {
		t.Fatalf("batchSize = %v, want 7", merged.batchSize)
	}
}

func TestMarshalOneProducesAValidDocument(t *testing.T) {
	doc, err := marshalOne(struct {
		Name string `bson:"name"`
	}{Name: "alice"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := bsoncore.Document(doc).Validate(); err != nil {
		t.Fatalf("invalid document: %v", err)
	}
}

func TestFirstKeyReturnsCommandName(t *testing.T) {
	cmd := bsoncore.NewDocumentBuilder().
		AppendInt32("ping", 1).
		AppendString("$db", "admin").
		Build()
	if got := firstKey(cmd); got != "ping" {
		t.Fatalf("firstKey() = %q, want %q", got, "ping")
	}
}

func TestChangeStreamOptionsToCursorOptions(t *testing.T) {
	batchSize := int32(50)
	opts := (&ChangeStreamOptions{}).SetBatchSize(batchSize).SetFullDocument("updateLookup")
	merged := mergeChangeStreamOptions([]*ChangeStreamOptions{opts})
	cur := merged.toCursorOptions()
	if cur.BatchSize == nil || *cur.BatchSize != batchSize {
		t.Fatalf("BatchSize = %v, want %d", cur.BatchSize, batchSize)
	}
	if cur.FullDocument != "updateLookup" {
		t.Fatalf("FullDocument = %q", cur.FullDocument)
	}
}
