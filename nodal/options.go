package nodal

import (
	"github.com/nodaldb/nodal-go-driver/bson/bsoncore"
	"github.com/nodaldb/nodal-go-driver/cursor"
	"github.com/nodaldb/nodal-go-driver/session"
)

// InsertOptions configures InsertOne/InsertMany.
type InsertOptions struct {
	ordered *bool
	sess    *session.Client
}

// SetOrdered sets whether the server stops at the first write error.
func (o *InsertOptions) SetOrdered(ordered bool) *InsertOptions {
	o.ordered = &ordered
	return o
}

// SetSession attaches an explicit session to the operation.
func (o *InsertOptions) SetSession(sess *session.Client) *InsertOptions {
	o.sess = sess
	return o
}

func mergeInsertOptions(opts []*InsertOptions) InsertOptions {
	var out InsertOptions
	for _, o := range opts {
		if o == nil {
			continue
		}
		if o.ordered != nil {
			out.ordered = o.ordered
		}
		if o.sess != nil {
			out.sess = o.sess
		}
	}
	return out
}

// FindOptions configures Find/FindOne.
type FindOptions struct {
	sort       interface{}
	projection interface{}
	skip       *int64
	limit      *int64
	batchSize  *int32
	sess       *session.Client
}

func (o *FindOptions) SetSort(sort interface{}) *FindOptions        { o.sort = sort; return o }
func (o *FindOptions) SetProjection(proj interface{}) *FindOptions  { o.projection = proj; return o }
func (o *FindOptions) SetSkip(skip int64) *FindOptions              { o.skip = &skip; return o }
func (o *FindOptions) SetLimit(limit int64) *FindOptions            { o.limit = &limit; return o }
func (o *FindOptions) SetBatchSize(batchSize int32) *FindOptions    { o.batchSize = &batchSize; return o }
func (o *FindOptions) SetSession(sess *session.Client) *FindOptions { o.sess = sess; return o }

func mergeFindOptions(opts []*FindOptions) FindOptions {
	var out FindOptions
	for _, o := range opts {
		if o == nil {
			continue
		}
		if o.sort != nil {
			out.sort = o.sort
		}
		if o.projection != nil {
			out.projection = o.projection
		}
		if o.skip != nil {
			out.skip = o.skip
		}
		if o.limit != nil {
			out.limit = o.limit
		}
		if o.batchSize != nil {
			out.batchSize = o.batchSize
		}
		if o.sess != nil {
			out.sess = o.sess
		}
	}
	return out
}

// UpdateOptions configures UpdateOne/UpdateMany.
type UpdateOptions struct {
	upsert *bool
	sess   *session.Client
}

func (o *UpdateOptions) SetUpsert(upsert bool) *UpdateOptions           { o.upsert = &upsert; return o }
func (o *UpdateOptions) SetSession(sess *session.Client) *UpdateOptions { o.sess = sess; return o }

func mergeUpdateOptions(opts []*UpdateOptions) UpdateOptions {
	var out UpdateOptions
	for _, o := range opts {
		if o == nil {
			continue
		}
		if o.upsert != nil {
			out.upsert = o.upsert
		}
		if o.sess != nil {
			out.sess = o.sess
		}
	}
	return out
}

// AggregateOptions configures Aggregate.
type AggregateOptions struct {
	batchSize *int32
	sess      *session.Client
}

func (o *AggregateOptions) SetBatchSize(batchSize int32) *AggregateOptions {
	o.batchSize = &batchSize
	return o
}
func (o *AggregateOptions) SetSession(sess *session.Client) *AggregateOptions {
	o.sess = sess
	return o
}

func mergeAggregateOptions(opts []*AggregateOptions) AggregateOptions {
	var out AggregateOptions
	for _, o := range opts {
		if o == nil {
			continue
		}
		if o.batchSize != nil {
			out.batchSize = o.batchSize
		}
		if o.sess != nil {
			out.sess = o.sess
		}
	}
	return out
}

// ChangeStreamOptions configures Watch.
type ChangeStreamOptions struct {
	batchSize    *int32
	fullDocument string
	resumeAfter  bsoncore.Document
	startAfter   bsoncore.Document
	sess         *session.Client
}

func (o *ChangeStreamOptions) SetBatchSize(batchSize int32) *ChangeStreamOptions {
	o.batchSize = &batchSize
	return o
}
func (o *ChangeStreamOptions) SetFullDocument(mode string) *ChangeStreamOptions {
	o.fullDocument = mode
	return o
}
func (o *ChangeStreamOptions) SetResumeAfter(token bsoncore.Document) *ChangeStreamOptions {
	o.resumeAfter = token
	return o
}
func (o *ChangeStreamOptions) SetStartAfter(token bsoncore.Document) *ChangeStreamOptions {
	o.startAfter = token
	return o
}
func (o *ChangeStreamOptions) SetSession(sess *session.Client) *ChangeStreamOptions {
	o.sess = sess
	return o
}

func mergeChangeStreamOptions(opts []*ChangeStreamOptions) ChangeStreamOptions {
	var out ChangeStreamOptions
	for _, o := range opts {
		if o == nil {
			continue
		}
		if o.batchSize != nil {
			out.batchSize = o.batchSize
		}
		if o.fullDocument != "" {
			out.fullDocument = o.fullDocument
		}
		if o.resumeAfter != nil {
			out.resumeAfter = o.resumeAfter
		}
		if o.startAfter != nil {
			out.startAfter = o.startAfter
		}
		if o.sess != nil {
			out.sess = o.sess
		}
	}
	return out
}

func (o ChangeStreamOptions) toCursorOptions() cursor.ChangeStreamOptions {
	return cursor.ChangeStreamOptions{
		BatchSize:    o.batchSize,
		FullDocument: o.fullDocument,
		ResumeAfter:  o.resumeAfter,
		StartAfter:   o.startAfter,
	}
}
