package cursor

import (
	"context"
	"testing"

	"github.com/nodaldb/nodal-go-driver/bson/bsoncore"
	"github.com/nodaldb/nodal-go-driver/description"
	"github.com/nodaldb/nodal-go-driver/driver"
)

func doc(key, value string) bsoncore.Document {
	return bsoncore.NewDocumentBuilder().AppendString(key, value).Build()
}

func exhaustedBatchCursor(batch []bsoncore.Document) *driver.BatchCursor {
	return driver.NewBatchCursor(0, "db", "coll", batch, nil, description.SelectionCriteria{}, nil, nil, nil)
}

func TestCursorIteratesFirstBatch(t *testing.T) {
	batch := []bsoncore.Document{doc("name", "a"), doc("name", "b")}
	c := New(exhaustedBatchCursor(batch), nil)

	var got []string
	for c.Next(context.Background()) {
		var v struct {
			Name string `bson:"name"`
		}
		if err := c.Decode(&v); err != nil {
			t.Fatalf("Decode: %v", err)
		}
		got = append(got, v.Name)
	}
	if err := c.Err(); err != nil {
		t.Fatalf("unexpected Err: %v", err)
	}
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("got %v, want [a b]", got)
	}
}

func TestCursorEmptyBatchIsNotAnError(t *testing.T) {
	c := New(exhaustedBatchCursor(nil), nil)
	if c.Next(context.Background()) {
		t.Fatal("Next on empty exhausted cursor should return false")
	}
	if c.Err() != nil {
		t.Fatalf("unexpected Err: %v", c.Err())
	}
}

func TestCursorCloseIsIdempotent(t *testing.T) {
	c := New(exhaustedBatchCursor(nil), nil)
	if err := c.Close(context.Background()); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := c.Close(context.Background()); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestCursorNextAfterCloseReturnsFalse(t *testing.T) {
	batch := []bsoncore.Document{doc("name", "a")}
	c := New(exhaustedBatchCursor(batch), nil)
	if err := c.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if c.Next(context.Background()) {
		t.Fatal("Next after Close should return false")
	}
}
