package cursor

import (
	"context"
	"errors"

	"github.com/nodaldb/nodal-go-driver/bson"
	"github.com/nodaldb/nodal-go-driver/bson/bsoncore"
	"github.com/nodaldb/nodal-go-driver/description"
	"github.com/nodaldb/nodal-go-driver/driver"
	"github.com/nodaldb/nodal-go-driver/driver/operation"
	"github.com/nodaldb/nodal-go-driver/event"
	"github.com/nodaldb/nodal-go-driver/session"
	"github.com/nodaldb/nodal-go-driver/topology"
)

// ErrMissingResumeToken is returned when a change event arrives without an
// "_id" resume token, which leaves the stream unable to resume.
var ErrMissingResumeToken = errors.New("cannot provide resume functionality when the resume token is missing")

// Non-resumable server error codes: the cursor behind them is gone for
// reasons a retry of the same aggregation cannot fix.
const (
	codeInterrupted        int32 = 11601
	codeCappedPositionLost int32 = 136
	codeCursorKilled       int32 = 237
)

// ChangeStreamOptions configures how a ChangeStream is opened and, after a
// resumable error, reopened.
type ChangeStreamOptions struct {
	BatchSize            *int32
	FullDocument         string
	ResumeAfter          bsoncore.Document
	StartAfter           bsoncore.Document
	StartAtOperationTime *bson.Timestamp
}

// ChangeStream wraps a Cursor over a $changeStream aggregation with the
// resume-token bookkeeping and automatic resumption described in §4.8: a
// resumable error re-issues the aggregation with startAfter if the caller
// asked for it and nothing has been returned yet, otherwise resumeAfter,
// otherwise startAtOperationTime using the stream's initial operation time.
type ChangeStream struct {
	stages         bsoncore.Array
	collection     string // empty opens a database- or client-level stream
	database       string
	deployment     *topology.Topology
	readPreference *description.ReadPreference
	sess           *session.Client
	clock          *session.ClusterClock
	monitor        *event.CommandMonitor

	opts                ChangeStreamOptions
	resumeToken         bsoncore.Document
	operationTime       *bson.Timestamp
	hasReturnedDocument bool

	cursor *Cursor
	err    error
	closed bool
}

// Open runs the initial aggregation and returns a positioned ChangeStream.
// stages is the caller's pipeline, not including the leading $changeStream
// stage, which Open prepends itself.
func Open(
	ctx context.Context,
	database, collection string,
	stages bsoncore.Array,
	opts ChangeStreamOptions,
	deployment *topology.Topology,
	readPreference *description.ReadPreference,
	sess *session.Client,
	clock *session.ClusterClock,
	monitor *event.CommandMonitor,
) (*ChangeStream, error) {
	cs := &ChangeStream{
		stages:         stages,
		collection:     collection,
		database:       database,
		deployment:     deployment,
		readPreference: readPreference,
		sess:           sess,
		clock:          clock,
		monitor:        monitor,
		opts:           opts,
		resumeToken:    opts.ResumeAfter,
		operationTime:  opts.StartAtOperationTime,
	}
	if opts.StartAfter != nil {
		cs.resumeToken = opts.StartAfter
	}
	if err := cs.runAggregate(ctx); err != nil {
		return nil, err
	}
	return cs, nil
}

func (cs *ChangeStream) pipeline() bsoncore.Array {
	ab := bsoncore.NewArrayBuilder()
	ab.AppendDocument(bsoncore.NewDocumentBuilder().AppendDocument("$changeStream", cs.changeStreamStage()).Build())
	if vals, err := cs.stages.Values(); err == nil {
		for _, v := range vals {
			if d, ok := v.DocumentOK(); ok {
				ab.AppendDocument(d)
			}
		}
	}
	return ab.Build()
}

func (cs *ChangeStream) changeStreamStage() bsoncore.Document {
	b := bsoncore.NewDocumentBuilder()
	if cs.opts.FullDocument != "" {
		b.AppendString("fullDocument", cs.opts.FullDocument)
	}
	switch {
	case cs.opts.StartAfter != nil && !cs.hasReturnedDocument:
		b.AppendDocument("startAfter", cs.opts.StartAfter)
	case cs.resumeToken != nil:
		b.AppendDocument("resumeAfter", cs.resumeToken)
	case cs.operationTime != nil:
		b.AppendTimestamp("startAtOperationTime", cs.operationTime.T, cs.operationTime.I)
	}
	return b.Build()
}

func (cs *ChangeStream) runAggregate(ctx context.Context) error {
	agg := operation.NewAggregate(cs.pipeline()).
		Collection(cs.collection).
		Database(cs.database).
		Deployment(cs.deployment).
		ReadPreference(cs.readPreference).
		Session(cs.sess).
		ClusterClock(cs.clock).
		CommandMonitor(cs.monitor)
	if cs.opts.BatchSize != nil {
		agg.BatchSize(*cs.opts.BatchSize)
	}
	if err := agg.Execute(ctx); err != nil {
		return err
	}
	bc := agg.Result()
	if cs.sess != nil && cs.operationTime == nil {
		t := cs.sess.OperationTime()
		cs.operationTime = &t
	}
	if cs.cursor != nil {
		_ = cs.cursor.Close(ctx)
	}
	cs.cursor = New(bc, nil)
	return nil
}

// ID returns the server-side cursor id backing the stream, 0 once closed.
func (cs *ChangeStream) ID() int64 {
	if cs.cursor == nil {
		return 0
	}
	return cs.cursor.ID()
}

// Next advances to the next change event, transparently resuming the
// aggregation once if the underlying cursor fails with a resumable error.
func (cs *ChangeStream) Next(ctx context.Context) bool {
	if cs.closed || cs.err != nil {
		return false
	}
	if cs.cursor.Next(ctx) {
		return true
	}

	err := cs.cursor.Err()
	if err == nil {
		if pbrt := cs.cursor.bc.PostBatchResumeToken(); pbrt != nil {
			cs.resumeToken = pbrt
		}
		return false
	}
	if !isResumable(err) {
		cs.err = err
		return false
	}

	_ = cs.cursor.Close(ctx)
	if err := cs.runAggregate(ctx); err != nil {
		cs.err = err
		return false
	}
	return cs.cursor.Next(ctx)
}

func isResumable(err error) bool {
	de, ok := err.(*driver.Error)
	if !ok {
		return true
	}
	switch de.Code {
	case codeInterrupted, codeCappedPositionLost, codeCursorKilled:
		return false
	}
	return true
}

// Decode unmarshals the most recent change event into out, recording its
// "_id" as the new resume token. A document with no "_id" closes the stream
// and returns ErrMissingResumeToken, matching the server's own contract
// that every change event carries a resume token.
func (cs *ChangeStream) Decode(ctx context.Context, out interface{}) error {
	raw := cs.cursor.Current()
	idVal, err := raw.LookupErr("_id")
	if err != nil {
		_ = cs.Close(ctx)
		return ErrMissingResumeToken
	}
	tokenDoc, ok := idVal.DocumentOK()
	if !ok {
		_ = cs.Close(ctx)
		return ErrMissingResumeToken
	}
	cs.resumeToken = tokenDoc
	cs.hasReturnedDocument = true
	return bson.Unmarshal(raw, out)
}

// ResumeToken returns the token that would be used to resume the stream
// from its current position.
func (cs *ChangeStream) ResumeToken() bsoncore.Document { return cs.resumeToken }

// Err returns the first non-resumable error encountered, if any.
func (cs *ChangeStream) Err() error { return cs.err }

// Close releases the stream's underlying cursor.
func (cs *ChangeStream) Close(ctx context.Context) error {
	if cs.closed {
		return nil
	}
	cs.closed = true
	return cs.cursor.Close(ctx)
}
