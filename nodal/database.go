package nodal

import (
	"context"

	"github.com/nodaldb/nodal-go-driver/bson"
	"github.com/nodaldb/nodal-go-driver/bson/bsoncore"
	"github.com/nodaldb/nodal-go-driver/cursor"
	"github.com/nodaldb/nodal-go-driver/description"
	"github.com/nodaldb/nodal-go-driver/driver"
	"github.com/nodaldb/nodal-go-driver/driver/operation"
)

// Database is a handle to a named database; it does no I/O on its own.
type Database struct {
	client *Client
	name   string
}

// Name returns the database's name.
func (d *Database) Name() string { return d.name }

// Collection returns a handle for name within this database.
func (d *Database) Collection(name string) *Collection {
	return &Collection{db: d, name: name}
}

// Drop drops the database and all its collections.
func (d *Database) Drop(ctx context.Context) error {
	return operation.NewDropDatabase().
		Database(d.name).
		Deployment(d.client.deployment).
		ClusterClock(d.client.clock).
		CommandMonitor(d.client.monitor).
		Execute(ctx)
}

// ListCollectionNames returns the names of every collection matching
// filter (nil for all collections).
func (d *Database) ListCollectionNames(ctx context.Context, filter bsoncore.Document) ([]string, error) {
	lc := operation.NewListCollections(filter).
		NameOnly(true).
		Database(d.name).
		Deployment(d.client.deployment).
		ReadPreference(d.client.readPreference).
		ClusterClock(d.client.clock).
		CommandMonitor(d.client.monitor)
	if err := lc.Execute(ctx); err != nil {
		return nil, err
	}
	bc := lc.Result()
	c := cursor.New(bc, nil)
	defer c.Close(ctx)

	var names []string
	for c.Next(ctx) {
		var v struct {
			Name string `bson:"name"`
		}
		if err := c.Decode(&v); err != nil {
			return nil, err
		}
		names = append(names, v.Name)
	}
	return names, c.Err()
}

// RunCommand runs an arbitrary admin/database command and returns its
// reply document.
func (d *Database) RunCommand(ctx context.Context, cmd bsoncore.Document) (bson.Raw, error) {
	op := &driver.Operation{
		CommandName:    firstKey(cmd),
		Database:       d.name,
		Command:        func(description.Server) (bsoncore.Document, error) { return cmd, nil },
		Deployment:     d.client.deployment,
		ReadPreference: d.client.readPreference,
		ClusterClock:   d.client.clock,
		CommandMonitor: d.client.monitor,
	}
	reply, err := op.Execute(ctx)
	if err != nil {
		return nil, err
	}
	return bson.Raw(reply), nil
}

// firstKey returns a command document's leading element's key, which is
// the command name by wire-protocol convention.
func firstKey(cmd bsoncore.Document) string {
	elems, err := cmd.Elements()
	if err != nil || len(elems) == 0 {
		return ""
	}
	return elems[0].Key()
}
