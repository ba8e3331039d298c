/*
Package dynamostore – DynamoDB-backed document store.

Each document is one item keyed by its slash-joined path in the reserved
"_path" attribute; "_rev" carries an opaque revision token for optimistic
concurrency. Reads inside a transaction record the revision observed and
keep the decoded body so later writes of the same document resolve
client-side; commit sends one TransactWriteItems request with a revision
condition per touched item and retries the transaction function when the
request is cancelled by a conflicting commit.

Writes to documents not read in the transaction compile into an
UpdateExpression where possible. A blind merge set assigns its top-level
fields wholesale (nested maps are replaced, not merged); reading the
document first gives full merge semantics. Values round-trip through their
DynamoDB representations: numbers come back as float64, dates as RFC 3339
strings.
*/
package dynamostore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	ts "github.com/skeldata/typedstore-go"
	"github.com/skeldata/typedstore-go/internal/uid"
)

const (
	attrPath = "_path"
	attrRev  = "_rev"

	defaultMaxAttempts = 5
)

// Client is the DynamoDB API subset the store needs.
type Client interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, opts ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Store is a DynamoDB implementation of typedstore.Store.
type Store struct {
	client      Client
	table       string
	clock       func() time.Time
	log         ts.Logger
	maxAttempts int
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(l ts.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClock overrides the commit timestamp source.
func WithClock(fn func() time.Time) Option {
	return func(s *Store) {
		if fn != nil {
			s.clock = fn
		}
	}
}

// WithMaxAttempts bounds transaction retries on conflict.
func WithMaxAttempts(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// New creates a store over an existing table whose partition key is the
// "_path" string attribute.
func New(client Client, table string, opts ...Option) (*Store, error) {
	if client == nil {
		return nil, ts.NewArgError("nil dynamodb client")
	}
	if table == "" {
		return nil, ts.NewArgError("empty table name")
	}
	s := &Store{
		client:      client,
		table:       table,
		clock:       time.Now,
		log:         ts.NopLogger(),
		maxAttempts: defaultMaxAttempts,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// RunTransaction runs fn against fresh handles, retrying when the commit
// request is cancelled by a conflicting write.
func (s *Store) RunTransaction(ctx context.Context, fn func(ctx context.Context, h ts.TxnHandle) error) error {
	var last error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return ts.NewError("transaction context done",
				ts.WithCode(ts.ErrRuntime), ts.WithCause(err))
		}
		h := &handle{
			store:    s,
			reads:    map[string]string{},
			readData: map[string]ts.Item{},
			written:  map[string]bool{},
		}
		if err := fn(ctx, h); err != nil {
			return err
		}
		err := s.commit(ctx, h)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		last = err
		s.log.Trace("transaction cancelled, retrying", map[string]any{
			"attempt": attempt,
		})
	}
	return ts.NewError("transaction exceeded retry attempts",
		ts.WithCode(ts.ErrConflict),
		ts.WithContext(map[string]any{"attempts": s.maxAttempts}),
		ts.WithCause(last))
}

func retryable(err error) bool {
	var cancelled *types.TransactionCanceledException
	if errors.As(err, &cancelled) {
		return true
	}
	var conditional *types.ConditionalCheckFailedException
	return errors.As(err, &conditional)
}

func (s *Store) key(path string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrPath: &types.AttributeValueMemberS{Value: path},
	}
}

// commit plans one TransactWriteItem per touched document and sends the
// whole batch.
func (s *Store) commit(ctx context.Context, h *handle) error {
	if len(h.writes) == 0 && len(h.reads) == 0 {
		return nil
	}
	now := s.clock()
	newRev := uid.New().String()

	byPath := map[string][]write{}
	var order []string
	for _, w := range h.writes {
		p := w.ref.Path()
		if _, ok := byPath[p]; !ok {
			order = append(order, p)
		}
		byPath[p] = append(byPath[p], w)
	}

	var items []types.TransactWriteItem
	for _, path := range order {
		item, err := s.planPath(path, byPath[path], h, now, newRev)
		if err != nil {
			return err
		}
		items = append(items, item)
	}

	// Read-only documents still get a revision condition so a conflicting
	// write since the read aborts the commit.
	var readOnly []string
	for path := range h.reads {
		if !h.written[path] {
			readOnly = append(readOnly, path)
		}
	}
	sort.Strings(readOnly)
	for _, path := range readOnly {
		items = append(items, types.TransactWriteItem{
			ConditionCheck: s.revCheck(path, h.reads[path]),
		})
	}

	if len(items) == 0 {
		return nil
	}
	// one idempotency token per attempt: a retried attempt is a new
	// request with new conditions, never a replay
	_, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems:      items,
		ClientRequestToken: aws.String(uid.UUID()),
	})
	if err != nil {
		return ts.NewError("transaction commit failed",
			ts.WithCode(ts.ErrRuntime), ts.WithCause(err))
	}
	s.log.Trace("transaction committed", map[string]any{
		"writes": len(order), "checks": len(readOnly), "rev": newRev,
	})
	return nil
}

func (s *Store) revCheck(path, rev string) *types.ConditionCheck {
	if rev == "" {
		return &types.ConditionCheck{
			TableName:                aws.String(s.table),
			Key:                      s.key(path),
			ConditionExpression:      aws.String("attribute_not_exists(#p)"),
			ExpressionAttributeNames: map[string]string{"#p": attrPath},
		}
	}
	return &types.ConditionCheck{
		TableName:                 aws.String(s.table),
		Key:                       s.key(path),
		ConditionExpression:       aws.String("#r = :r"),
		ExpressionAttributeNames:  map[string]string{"#r": attrRev},
		ExpressionAttributeValues: map[string]types.AttributeValue{":r": &types.AttributeValueMemberS{Value: rev}},
	}
}

// planPath folds a document's buffered writes into one transact item. Read
// documents resolve entirely client-side against the snapshot taken at
// read time; unread documents compile to an UpdateExpression when the
// operations allow it.
func (s *Store) planPath(path string, ws []write, h *handle, now time.Time, newRev string) (types.TransactWriteItem, error) {
	known := false
	var image ts.Item
	oldRev, wasRead := h.reads[path]
	if wasRead {
		known = true
		image = h.readData[path]
	}
	var remote []ts.FieldUpdate
	remoteRequiresExist := false
	remoteUsed := false

	for _, w := range ws {
		if remoteUsed {
			return types.TransactWriteItem{}, ts.NewError(
				fmt.Sprintf("multiple blind writes to %q; read the document in this transaction first", path),
				ts.WithCode(ts.ErrArgument))
		}
		if known {
			var err error
			image, err = applyKnown(image, w, now)
			if err != nil {
				return types.TransactWriteItem{}, err
			}
			continue
		}
		switch w.kind {
		case kindDelete:
			known, image = true, nil
		case kindSet:
			known, image = true, ts.ApplySet(nil, w.data, nil, now)
		case kindSetOpts:
			if !w.opts.Merge {
				opts := w.opts
				known, image = true, ts.ApplySet(nil, w.data, &opts, now)
				continue
			}
			remote = mergeUpdates(w.data)
			remoteUsed = true
		case kindUpdate:
			remote = w.updates
			remoteRequiresExist = true
			remoteUsed = true
		}
	}

	switch {
	case known && image == nil:
		del := &types.Delete{
			TableName: aws.String(s.table),
			Key:       s.key(path),
		}
		if wasRead {
			s.conditionOn(oldRev, &del.ConditionExpression, &del.ExpressionAttributeNames, &del.ExpressionAttributeValues)
		}
		return types.TransactWriteItem{Delete: del}, nil

	case known:
		av, err := attributevalue.MarshalMap(image)
		if err != nil {
			return types.TransactWriteItem{}, ts.NewError("cannot marshal document",
				ts.WithCode(ts.ErrRuntime),
				ts.WithContext(map[string]any{"ref": path}),
				ts.WithCause(err))
		}
		av[attrPath] = &types.AttributeValueMemberS{Value: path}
		av[attrRev] = &types.AttributeValueMemberS{Value: newRev}
		put := &types.Put{
			TableName: aws.String(s.table),
			Item:      av,
		}
		if wasRead {
			s.conditionOn(oldRev, &put.ConditionExpression, &put.ExpressionAttributeNames, &put.ExpressionAttributeValues)
		}
		return types.TransactWriteItem{Put: put}, nil

	default:
		b := newExprBuilder()
		for _, u := range remote {
			if err := b.addUpdate(u, now); err != nil {
				return types.TransactWriteItem{}, err
			}
		}
		revPh, err := b.value(newRev)
		if err != nil {
			return types.TransactWriteItem{}, err
		}
		b.set(fmt.Sprintf("%s = %s", b.name(attrRev), revPh))
		upd := &types.Update{
			TableName:                 aws.String(s.table),
			Key:                       s.key(path),
			UpdateExpression:          aws.String(b.expression()),
			ExpressionAttributeNames:  b.names,
			ExpressionAttributeValues: b.values,
		}
		if remoteRequiresExist {
			upd.ConditionExpression = aws.String(fmt.Sprintf("attribute_exists(%s)", b.name(attrPath)))
		}
		return types.TransactWriteItem{Update: upd}, nil
	}
}

// conditionOn installs the optimistic revision condition on a Put/Delete.
func (s *Store) conditionOn(oldRev string, expr **string, names *map[string]string, values *map[string]types.AttributeValue) {
	if oldRev == "" {
		*expr = aws.String("attribute_not_exists(#p)")
		*names = map[string]string{"#p": attrPath}
		return
	}
	*expr = aws.String("#r = :r")
	*names = map[string]string{"#r": attrRev}
	*values = map[string]types.AttributeValue{
		":r": &types.AttributeValueMemberS{Value: oldRev},
	}
}

// applyKnown applies one buffered write to a client-side document image.
func applyKnown(image ts.Item, w write, now time.Time) (ts.Item, error) {
	switch w.kind {
	case kindDelete:
		return nil, nil
	case kindSet:
		return ts.ApplySet(image, w.data, nil, now), nil
	case kindSetOpts:
		opts := w.opts
		return ts.ApplySet(image, w.data, &opts, now), nil
	case kindUpdate:
		return ts.ApplyUpdates(image, w.updates, now)
	}
	return image, nil
}

// mergeUpdates lowers a blind merge set to per-field assignments.
func mergeUpdates(data ts.Item) []ts.FieldUpdate {
	out := make([]ts.FieldUpdate, 0, len(data))
	for k, v := range data {
		out = append(out, ts.FieldUpdate{Path: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// ─── transaction handle ─────────────────────────────────────────────────────

type writeKind int

const (
	kindSet writeKind = iota
	kindSetOpts
	kindUpdate
	kindDelete
)

type write struct {
	kind    writeKind
	ref     ts.Ref
	data    ts.Item
	opts    ts.SetOptions
	updates []ts.FieldUpdate
}

// handle is one transaction attempt: observed revisions, decoded read
// bodies, and an ordered write buffer.
type handle struct {
	store    *Store
	reads    map[string]string
	readData map[string]ts.Item
	written  map[string]bool
	writes   []write
}

// Get reads a document with a consistent read and records the revision
// observed. Reads must precede writes of the same document.
func (h *handle) Get(ctx context.Context, ref ts.Ref) (ts.Snapshot, error) {
	path := ref.Path()
	if h.written[path] {
		return ts.Snapshot{}, ts.NewError(
			fmt.Sprintf("document %q was already written in this transaction", path),
			ts.WithCode(ts.ErrArgument))
	}
	out, err := h.store.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(h.store.table),
		Key:            h.store.key(path),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return ts.Snapshot{}, ts.NewError("cannot read document",
			ts.WithCode(ts.ErrRuntime),
			ts.WithContext(map[string]any{"ref": path}),
			ts.WithCause(err))
	}
	if len(out.Item) == 0 {
		h.reads[path] = ""
		h.readData[path] = nil
		return ts.Snapshot{Ref: ref}, nil
	}
	rev := ""
	if av, ok := out.Item[attrRev].(*types.AttributeValueMemberS); ok {
		rev = av.Value
	}
	var data ts.Item
	if err := attributevalue.UnmarshalMap(out.Item, &data); err != nil {
		return ts.Snapshot{}, ts.NewError("cannot decode document",
			ts.WithCode(ts.ErrRuntime),
			ts.WithContext(map[string]any{"ref": path}),
			ts.WithCause(err))
	}
	delete(data, attrPath)
	delete(data, attrRev)
	h.reads[path] = rev
	h.readData[path] = ts.CloneItem(data)
	return ts.Snapshot{Ref: ref, Exists: true, Data: data}, nil
}

func (h *handle) Delete(ctx context.Context, ref ts.Ref) error {
	return h.buffer(ctx, write{kind: kindDelete, ref: ref})
}

func (h *handle) Set(ctx context.Context, ref ts.Ref, data ts.Item) error {
	return h.buffer(ctx, write{kind: kindSet, ref: ref, data: ts.CloneItem(data)})
}

func (h *handle) SetWithOptions(ctx context.Context, ref ts.Ref, data ts.Item, opts ts.SetOptions) error {
	return h.buffer(ctx, write{kind: kindSetOpts, ref: ref, data: ts.CloneItem(data), opts: opts})
}

func (h *handle) Update(ctx context.Context, ref ts.Ref, updates []ts.FieldUpdate) error {
	cp := make([]ts.FieldUpdate, len(updates))
	copy(cp, updates)
	return h.buffer(ctx, write{kind: kindUpdate, ref: ref, updates: cp})
}

func (h *handle) buffer(ctx context.Context, w write) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.written[w.ref.Path()] = true
	h.writes = append(h.writes, w)
	return nil
}
