package nodal

import (
	"context"
	"errors"

	"github.com/nodaldb/nodal-go-driver/bson"
	"github.com/nodaldb/nodal-go-driver/bson/bsoncore"
	"github.com/nodaldb/nodal-go-driver/cursor"
	"github.com/nodaldb/nodal-go-driver/driver/operation"
	"github.com/nodaldb/nodal-go-driver/session"
)

// ErrNoDocuments is returned by FindOne when the filter matches nothing.
var ErrNoDocuments = errors.New("nodal: no documents in result")

// Collection is a handle to a named collection within a Database.
type Collection struct {
	db   *Database
	name string
}

// Name returns the collection's name.
func (c *Collection) Name() string { return c.name }

// Database returns the owning Database.
func (c *Collection) Database() *Database { return c.db }

func marshalOne(v interface{}) (bsoncore.Document, error) {
	data, err := bson.Marshal(v)
	if err != nil {
		return nil, err
	}
	return bsoncore.Document(data), nil
}

// InsertOneResult is the outcome of a successful InsertOne.
type InsertOneResult struct {
	InsertedCount int32
}

// InsertOne inserts a single document.
func (c *Collection) InsertOne(ctx context.Context, document interface{}, opts ...*InsertOptions) (*InsertOneResult, error) {
	doc, err := marshalOne(document)
	if err != nil {
		return nil, err
	}
	cfg := mergeInsertOptions(opts)
	ins := operation.NewInsert(doc).
		Collection(c.name).
		Database(c.db.name).
		Deployment(c.db.client.deployment).
		ClusterClock(c.db.client.clock).
		CommandMonitor(c.db.client.monitor).
		RetryWrite(true)
	if cfg.ordered != nil {
		ins = ins.Ordered(*cfg.ordered)
	}
	if cfg.sess != nil {
		ins = ins.Session(cfg.sess)
	}
	if err := ins.Execute(ctx); err != nil {
		return nil, err
	}
	return &InsertOneResult{InsertedCount: ins.Result().N}, nil
}

// InsertManyResult is the outcome of a successful InsertMany.
type InsertManyResult struct {
	InsertedCount int32
}

// InsertMany inserts every document in documents as a single insert
// command.
func (c *Collection) InsertMany(ctx context.Context, documents []interface{}, opts ...*InsertOptions) (*InsertManyResult, error) {
	docs := make([]bsoncore.Document, 0, len(documents))
	for _, d := range documents {
		doc, err := marshalOne(d)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	cfg := mergeInsertOptions(opts)
	ins := operation.NewInsert(docs...).
		Collection(c.name).
		Database(c.db.name).
		Deployment(c.db.client.deployment).
		ClusterClock(c.db.client.clock).
		CommandMonitor(c.db.client.monitor).
		RetryWrite(true)
	if cfg.ordered != nil {
		ins = ins.Ordered(*cfg.ordered)
	}
	if cfg.sess != nil {
		ins = ins.Session(cfg.sess)
	}
	if err := ins.Execute(ctx); err != nil {
		return nil, err
	}
	return &InsertManyResult{InsertedCount: ins.Result().N}, nil
}

// Find runs a find command and returns a cursor over the matching
// documents.
func (c *Collection) Find(ctx context.Context, filter interface{}, opts ...*FindOptions) (*cursor.Cursor, error) {
	filterDoc, err := marshalOne(filter)
	if err != nil {
		return nil, err
	}
	cfg := mergeFindOptions(opts)
	f := operation.NewFind(filterDoc).
		Collection(c.name).
		Database(c.db.name).
		Deployment(c.db.client.deployment).
		ReadPreference(c.db.client.readPreference).
		ClusterClock(c.db.client.clock).
		CommandMonitor(c.db.client.monitor)
	if cfg.sort != nil {
		sortDoc, err := marshalOne(cfg.sort)
		if err != nil {
			return nil, err
		}
		f = f.Sort(sortDoc)
	}
	if cfg.projection != nil {
		projDoc, err := marshalOne(cfg.projection)
		if err != nil {
			return nil, err
		}
		f = f.Projection(projDoc)
	}
	if cfg.skip != nil {
		f = f.Skip(*cfg.skip)
	}
	if cfg.limit != nil {
		f = f.Limit(*cfg.limit)
	}
	if cfg.batchSize != nil {
		f = f.BatchSize(*cfg.batchSize)
	}
	if cfg.sess != nil {
		f = f.Session(cfg.sess)
	}
	if err := f.Execute(ctx); err != nil {
		return nil, err
	}
	return cursor.New(f.Result(), nil), nil
}

// FindOne runs a find command limited to a single result and decodes it
// into out, returning ErrNoDocuments if the filter matches nothing.
func (c *Collection) FindOne(ctx context.Context, filter interface{}, out interface{}, opts ...*FindOptions) error {
	limited := append(append([]*FindOptions{}, opts...), &FindOptions{limit: int64ptr(-1)})
	cur, err := c.Find(ctx, filter, limited...)
	if err != nil {
		return err
	}
	defer cur.Close(ctx)
	if !cur.Next(ctx) {
		if err := cur.Err(); err != nil {
			return err
		}
		return ErrNoDocuments
	}
	return cur.Decode(out)
}

// UpdateResult is the outcome of a successful update.
type UpdateResult struct {
	MatchedCount  int32
	ModifiedCount int32
	UpsertedCount int32
}

func (c *Collection) update(ctx context.Context, filter, update interface{}, multi, upsert bool, opts ...*UpdateOptions) (*UpdateResult, error) {
	filterDoc, err := marshalOne(filter)
	if err != nil {
		return nil, err
	}
	updateDoc, err := marshalOne(update)
	if err != nil {
		return nil, err
	}
	cfg := mergeUpdateOptions(opts)
	if cfg.upsert != nil {
		upsert = *cfg.upsert
	}
	u := operation.NewUpdate(operation.UpdateStatement{
		Filter: filterDoc,
		Update: updateDoc,
		Multi:  multi,
		Upsert: upsert,
	}).
		Collection(c.name).
		Database(c.db.name).
		Deployment(c.db.client.deployment).
		ClusterClock(c.db.client.clock).
		CommandMonitor(c.db.client.monitor).
		RetryWrite(!multi)
	if cfg.sess != nil {
		u = u.Session(cfg.sess)
	}
	if err := u.Execute(ctx); err != nil {
		return nil, err
	}
	r := u.Result()
	return &UpdateResult{MatchedCount: r.N, ModifiedCount: r.NModified, UpsertedCount: int32(len(r.Upserted))}, nil
}

// UpdateOne applies update to at most one document matching filter.
func (c *Collection) UpdateOne(ctx context.Context, filter, update interface{}, opts ...*UpdateOptions) (*UpdateResult, error) {
	return c.update(ctx, filter, update, false, false, opts...)
}

// UpdateMany applies update to every document matching filter.
func (c *Collection) UpdateMany(ctx context.Context, filter, update interface{}, opts ...*UpdateOptions) (*UpdateResult, error) {
	return c.update(ctx, filter, update, true, false, opts...)
}

// DeleteResult is the outcome of a successful delete.
type DeleteResult struct {
	DeletedCount int32
}

func (c *Collection) delete(ctx context.Context, filter interface{}, multi bool, sess *session.Client) (*DeleteResult, error) {
	filterDoc, err := marshalOne(filter)
	if err != nil {
		return nil, err
	}
	limit := int32(1)
	if multi {
		limit = 0
	}
	d := operation.NewDelete(operation.DeleteStatement{Filter: filterDoc, Limit: limit}).
		Collection(c.name).
		Database(c.db.name).
		Deployment(c.db.client.deployment).
		ClusterClock(c.db.client.clock).
		CommandMonitor(c.db.client.monitor).
		RetryWrite(!multi)
	if sess != nil {
		d = d.Session(sess)
	}
	if err := d.Execute(ctx); err != nil {
		return nil, err
	}
	return &DeleteResult{DeletedCount: d.Result().N}, nil
}

// DeleteOne removes at most one document matching filter.
func (c *Collection) DeleteOne(ctx context.Context, filter interface{}) (*DeleteResult, error) {
	return c.delete(ctx, filter, false, nil)
}

// DeleteMany removes every document matching filter.
func (c *Collection) DeleteMany(ctx context.Context, filter interface{}) (*DeleteResult, error) {
	return c.delete(ctx, filter, true, nil)
}

// Aggregate runs an aggregation pipeline and returns a cursor over its
// output documents.
func (c *Collection) Aggregate(ctx context.Context, pipeline []interface{}, opts ...*AggregateOptions) (*cursor.Cursor, error) {
	ab := bsoncore.NewArrayBuilder()
	for _, stage := range pipeline {
		doc, err := marshalOne(stage)
		if err != nil {
			return nil, err
		}
		ab.AppendDocument(doc)
	}
	cfg := mergeAggregateOptions(opts)
	a := operation.NewAggregate(ab.Build()).
		Collection(c.name).
		Database(c.db.name).
		Deployment(c.db.client.deployment).
		ReadPreference(c.db.client.readPreference).
		ClusterClock(c.db.client.clock).
		CommandMonitor(c.db.client.monitor)
	if cfg.batchSize != nil {
		a = a.BatchSize(*cfg.batchSize)
	}
	if cfg.sess != nil {
		a = a.Session(cfg.sess)
	}
	if err := a.Execute(ctx); err != nil {
		return nil, err
	}
	return cursor.New(a.Result(), nil), nil
}

// Watch opens a change stream over this collection.
func (c *Collection) Watch(ctx context.Context, pipeline []interface{}, opts ...*ChangeStreamOptions) (*cursor.ChangeStream, error) {
	ab := bsoncore.NewArrayBuilder()
	for _, stage := range pipeline {
		doc, err := marshalOne(stage)
		if err != nil {
			return nil, err
		}
		ab.AppendDocument(doc)
	}
	cfg := mergeChangeStreamOptions(opts)
	return cursor.Open(ctx, c.db.name, c.name, ab.Build(), cfg.toCursorOptions(),
		c.db.client.deployment, c.db.client.readPreference, cfg.sess, c.db.client.clock, c.db.client.monitor)
}

func int64ptr(v int64) *int64 { return &v }
