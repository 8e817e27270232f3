package driver

import (
	"context"
	"time"

	"github.com/nodaldb/nodal-go-driver/bson"
	"github.com/nodaldb/nodal-go-driver/bson/bsoncore"
	"github.com/nodaldb/nodal-go-driver/description"
	"github.com/nodaldb/nodal-go-driver/event"
	"github.com/nodaldb/nodal-go-driver/session"
	"github.com/nodaldb/nodal-go-driver/topology"
)

// BatchCursor drives the getMore/killCursors half of a server-side cursor's
// lifetime, one batch at a time. It knows nothing about decoding documents
// into caller types; package cursor layers that on top.
type BatchCursor struct {
	id         int64
	collection string
	database   string

	deployment     *topology.Topology
	readPreference *description.ReadPreference
	serverSelector *description.SelectionCriteria
	session        *session.Client
	clusterClock   *session.ClusterClock
	commandMonitor *event.CommandMonitor

	batchSize   int32
	limit       int32
	numReturned int32
	maxTimeMS   int64
	comment     bson.Raw

	currentBatch         []bsoncore.Document
	postBatchResumeToken bsoncore.Document
	exhausted            bool
}

// NewBatchCursor constructs a BatchCursor from a command reply's initial
// cursor subdocument, pinning every subsequent getMore/killCursors to the
// server that opened the cursor (§8: "a cursor's getMores are always sent
// to the server that opened it").
func NewBatchCursor(
	id int64,
	database, collection string,
	firstBatch []bsoncore.Document,
	deployment *topology.Topology,
	pinnedServer description.SelectionCriteria,
	sess *session.Client,
	clock *session.ClusterClock,
	monitor *event.CommandMonitor,
) *BatchCursor {
	bc := &BatchCursor{
		id:             id,
		database:       database,
		collection:     collection,
		currentBatch:   firstBatch,
		deployment:     deployment,
		serverSelector: &pinnedServer,
		session:        sess,
		clusterClock:   clock,
		commandMonitor: monitor,
	}
	bc.numReturned = int32(len(firstBatch))
	if bc.id == 0 {
		bc.exhausted = true
	}
	return bc
}

// ID returns the server-side cursor id, 0 once the server reports the
// cursor exhausted. A cursor exhausted by its local limit keeps its last id.
func (bc *BatchCursor) ID() int64 { return bc.id }

// Batch returns the most recently fetched batch of raw documents.
func (bc *BatchCursor) Batch() []bsoncore.Document { return bc.currentBatch }

// PostBatchResumeToken returns the resume token attached to the most
// recent batch, if any (change stream cursors only).
func (bc *BatchCursor) PostBatchResumeToken() bsoncore.Document { return bc.postBatchResumeToken }

// SetBatchSize overrides the batchSize sent with each getMore.
func (bc *BatchCursor) SetBatchSize(size int32) { bc.batchSize = size }

// SetLimit sets the total document limit across every batch; 0 means
// unlimited.
func (bc *BatchCursor) SetLimit(limit int32) { bc.limit = limit }

// SetMaxTime sets the maxTimeMS sent with each getMore, truncating to
// millisecond granularity.
func (bc *BatchCursor) SetMaxTime(d time.Duration) {
	bc.maxTimeMS = int64(d / time.Millisecond)
}

// SetComment attaches an arbitrary BSON value as the getMore "comment"
// option. Non-document-marshalable values are silently dropped, matching
// the teacher's permissive comment handling.
func (bc *BatchCursor) SetComment(comment interface{}) {
	if comment == nil {
		bc.comment = nil
		return
	}
	data, err := bson.Marshal(comment)
	if err != nil {
		bc.comment = nil
		return
	}
	bc.comment = bson.Raw(data)
}

// Exhausted reports whether the server has reported cursor id 0 or the
// local limit has been reached.
func (bc *BatchCursor) Exhausted() bool { return bc.exhausted }

// Next fetches the next batch via getMore. It returns false once the
// cursor is exhausted and there is no further batch to deliver.
func (bc *BatchCursor) Next(ctx context.Context) (bool, error) {
	if bc.exhausted {
		return false, nil
	}

	size, ok := calcGetMoreBatchSize(*bc)
	if !ok {
		bc.exhausted = true
		bc.currentBatch = nil
		return false, nil
	}

	reply, err := bc.getMore(ctx, size)
	if err != nil {
		return false, err
	}

	batch, nextID, pbrt, err := parseGetMoreReply(reply)
	if err != nil {
		return false, newError(KindInvalidResponse, "", err.Error(), err)
	}

	bc.currentBatch = batch
	bc.numReturned += int32(len(batch))
	bc.id = nextID
	bc.postBatchResumeToken = pbrt
	if bc.id == 0 {
		bc.exhausted = true
	}
	if bc.limit > 0 && bc.numReturned >= bc.limit {
		bc.exhausted = true
	}
	return len(batch) > 0, nil
}

func (bc *BatchCursor) getMore(ctx context.Context, batchSize int32) (bsoncore.Document, error) {
	op := &Operation{
		CommandName:    "getMore",
		Database:       bc.database,
		Deployment:     bc.deployment,
		ReadPreference: bc.readPreference,
		Session:        bc.session,
		ClusterClock:   bc.clusterClock,
		ServerSelector: bc.serverSelector,
		CommandMonitor: bc.commandMonitor,
		Command: func(description.Server) (bsoncore.Document, error) {
			b := bsoncore.NewDocumentBuilder().
				AppendInt64("getMore", bc.id).
				AppendString("collection", bc.collection)
			if batchSize > 0 {
				b.AppendInt32("batchSize", batchSize)
			}
			if bc.maxTimeMS > 0 {
				b.AppendInt64("maxTimeMS", bc.maxTimeMS)
			}
			if len(bc.comment) > 0 {
				b.AppendDocument("comment", bsoncore.Document(bc.comment))
			}
			return b.Build(), nil
		},
	}
	return op.Execute(ctx)
}

// Close sends a best-effort killCursors for an unexhausted cursor. It
// never returns an error for an already-exhausted cursor.
func (bc *BatchCursor) Close(ctx context.Context) error {
	if bc.exhausted || bc.id == 0 {
		return nil
	}
	op := &Operation{
		CommandName:    "killCursors",
		Database:       bc.database,
		Deployment:     bc.deployment,
		Session:        bc.session,
		ClusterClock:   bc.clusterClock,
		ServerSelector: bc.serverSelector,
		Command: func(description.Server) (bsoncore.Document, error) {
			ids := bsoncore.NewArrayBuilder().AppendInt64(bc.id).Build()
			return bsoncore.NewDocumentBuilder().
				AppendString("killCursors", bc.collection).
				AppendArray("cursors", ids).
				Build(), nil
		},
	}
	_, err := op.Execute(ctx)
	bc.exhausted = true
	bc.id = 0
	return err
}

// calcGetMoreBatchSize computes the batchSize to send on the next getMore,
// honoring a client-side limit across the cursor's lifetime. Equal
// batchSize/remaining compensates by sending the remaining count itself
// rather than the raw batchSize, so the final getMore never overshoots
// the limit by one extra document.
func calcGetMoreBatchSize(bc BatchCursor) (int32, bool) {
	if bc.limit == 0 {
		return bc.batchSize, true
	}
	remaining := bc.limit - bc.numReturned
	if remaining < 0 {
		return remaining, false
	}
	if bc.batchSize == 0 {
		return 0, true
	}
	if bc.batchSize < remaining {
		return bc.batchSize, true
	}
	return remaining, true
}

func parseGetMoreReply(reply bsoncore.Document) ([]bsoncore.Document, int64, bsoncore.Document, error) {
	cv, err := reply.LookupErr("cursor")
	if err != nil {
		return nil, 0, nil, err
	}
	curDoc, ok := cv.DocumentOK()
	if !ok {
		return nil, 0, nil, errNotADocument("cursor")
	}

	var id int64
	if v, err := curDoc.LookupErr("id"); err == nil {
		id, _ = v.AsInt64()
	}

	var batch []bsoncore.Document
	if v, err := curDoc.LookupErr("nextBatch"); err == nil {
		batch = readDocumentArray(v)
	} else if v, err := curDoc.LookupErr("firstBatch"); err == nil {
		batch = readDocumentArray(v)
	}

	var pbrt bsoncore.Document
	if v, err := curDoc.LookupErr("postBatchResumeToken"); err == nil {
		if d, ok := v.DocumentOK(); ok {
			pbrt = d
		}
	}
	return batch, id, pbrt, nil
}

func readDocumentArray(v bsoncore.Value) []bsoncore.Document {
	arr, ok := v.ArrayOK()
	if !ok {
		return nil
	}
	vals, _ := arr.Values()
	out := make([]bsoncore.Document, 0, len(vals))
	for _, val := range vals {
		if d, ok := val.DocumentOK(); ok {
			out = append(out, d)
		}
	}
	return out
}

type malformedReplyError string

func (e malformedReplyError) Error() string { return string(e) + " is not a document" }

func errNotADocument(field string) error { return malformedReplyError(field) }
