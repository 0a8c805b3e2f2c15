package natsstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"golang.org/x/sync/errgroup"

	"github.com/chrisdevereux/earthstar-data/docstore"
	"github.com/chrisdevereux/earthstar-data/errors"
	"github.com/chrisdevereux/earthstar-data/pkg/retry"
)

// queryFanout bounds concurrent envelope fetches during a scan.
const queryFanout = 16

// Store is a docstore.Store backed by NATS JetStream. Document envelopes
// live in a KV bucket keyed by encoded path, attachment bodies in an object
// store bucket keyed by content hash, and the KV watch feed drives event
// streams.
type Store struct {
	kv  jetstream.KeyValue
	obj jetstream.ObjectStore

	docsBucket        string
	attachmentsBucket string
	replicas          int
	ttl               time.Duration
	markerTTL         time.Duration
	maxValueSize      int
	casRetry          retry.Config
	clock             func() time.Time
	logger            *slog.Logger
	metrics           *storeMetrics

	mu      sync.Mutex
	streams map[int]*kvEventStream
	nextID  int
	closed  bool
}

var _ docstore.Store = (*Store)(nil)

// New connects a Store to JetStream, creating the document and attachment
// buckets if they do not exist yet. The caller owns the underlying NATS
// connection; Close releases only what the Store itself opened.
func New(ctx context.Context, js jetstream.JetStream, opts ...Option) (*Store, error) {
	if js == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("nil jetstream context"),
			"Store", "New", "configuration check")
	}

	s := defaultStore()
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, errors.WrapInvalid(err, "Store", "New", "option")
		}
	}

	kv, err := s.ensureKVBucket(ctx, js)
	if err != nil {
		return nil, err
	}
	obj, err := s.ensureObjectBucket(ctx, js)
	if err != nil {
		return nil, err
	}
	s.kv = kv
	s.obj = obj

	s.logger.Debug("nats store ready",
		"docs_bucket", s.docsBucket,
		"attachments_bucket", s.attachmentsBucket)
	return s, nil
}

func defaultStore() *Store {
	return &Store{
		docsBucket:        DefaultDocsBucket,
		attachmentsBucket: DefaultAttachmentsBucket,
		replicas:          1,
		maxValueSize:      DefaultMaxValueSize,
		casRetry:          retry.Conflict(),
		clock:             time.Now,
		logger:            slog.Default(),
		streams:           make(map[int]*kvEventStream),
	}
}

// ensureKVBucket opens the docs bucket, creating it on first use. A create
// losing the race to another instance falls back to opening theirs.
func (s *Store) ensureKVBucket(ctx context.Context, js jetstream.JetStream) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, s.docsBucket)
	if err == nil {
		return kv, nil
	}
	if !isBucketNotFound(err) {
		return nil, errors.WrapTransient(err, "Store", "New",
			fmt.Sprintf("KV bucket %s lookup", s.docsBucket))
	}

	cfg := jetstream.KeyValueConfig{
		Bucket:       s.docsBucket,
		Description:  "document envelopes, one key per path",
		MaxValueSize: int32(s.maxValueSize),
		TTL:          s.ttl,
		Replicas:     s.replicas,
	}
	if s.markerTTL > 0 {
		cfg.LimitMarkerTTL = s.markerTTL
	}

	kv, err = js.CreateKeyValue(ctx, cfg)
	if err == nil {
		return kv, nil
	}
	if isBucketExists(err) {
		kv, err = js.KeyValue(ctx, s.docsBucket)
		if err == nil {
			return kv, nil
		}
	}
	return nil, errors.WrapTransient(err, "Store", "New",
		fmt.Sprintf("KV bucket %s create", s.docsBucket))
}

// ensureObjectBucket opens the attachments bucket, creating it on first use.
func (s *Store) ensureObjectBucket(ctx context.Context, js jetstream.JetStream) (jetstream.ObjectStore, error) {
	obj, err := js.ObjectStore(ctx, s.attachmentsBucket)
	if err == nil {
		return obj, nil
	}
	if !isBucketNotFound(err) {
		return nil, errors.WrapTransient(err, "Store", "New",
			fmt.Sprintf("object bucket %s lookup", s.attachmentsBucket))
	}

	cfg := jetstream.ObjectStoreConfig{
		Bucket:      s.attachmentsBucket,
		Description: "attachment bodies keyed by content hash",
		Replicas:    s.replicas,
	}

	obj, err = js.CreateObjectStore(ctx, cfg)
	if err == nil {
		return obj, nil
	}
	if isBucketExists(err) {
		obj, err = js.ObjectStore(ctx, s.attachmentsBucket)
		if err == nil {
			return obj, nil
		}
	}
	return nil, errors.WrapTransient(err, "Store", "New",
		fmt.Sprintf("object bucket %s create", s.attachmentsBucket))
}

// checkOpen gates every operation on context and store liveness.
func (s *Store) checkOpen(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.ErrStoreClosed
	}
	return nil
}

// GetLatestDocAtPath implements docstore.Reader.
func (s *Store) GetLatestDocAtPath(ctx context.Context, path string) (docstore.Document, error) {
	if err := s.checkOpen(ctx); err != nil {
		return docstore.Document{}, err
	}
	s.metrics.recordOp("get")

	key, err := keyForPath(path)
	if err != nil {
		return docstore.Document{}, fmt.Errorf("%w: %s", errors.ErrDocNotFound, path)
	}

	entry, err := s.kv.Get(ctx, key)
	if err != nil {
		if isKVKeyNotFound(err) {
			return docstore.Document{}, fmt.Errorf("%w: %s", errors.ErrDocNotFound, path)
		}
		s.metrics.recordError("get")
		return docstore.Document{}, errors.WrapTransient(err, "Store", "GetLatestDocAtPath", "kv get")
	}

	doc, err := decodeEnvelope(entry.Value())
	if err != nil {
		s.metrics.recordError("get")
		return docstore.Document{}, errors.WrapFatal(err, "Store", "GetLatestDocAtPath", "envelope decode")
	}
	return doc, nil
}

// QueryDocs implements docstore.Reader. Results are sorted by path.
func (s *Store) QueryDocs(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	if err := s.checkOpen(ctx); err != nil {
		return nil, err
	}
	s.metrics.recordOp("query_docs")

	keys, err := s.matchingKeys(ctx, func(path string) bool {
		return strings.HasPrefix(path, q.PathStartsWith)
	})
	if err != nil {
		s.metrics.recordError("query_docs")
		return nil, errors.WrapTransient(err, "Store", "QueryDocs", "key scan")
	}

	docs, err := s.fetchEnvelopes(ctx, keys)
	if err != nil {
		s.metrics.recordError("query_docs")
		return nil, errors.WrapTransient(err, "Store", "QueryDocs", "envelope fetch")
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Path < docs[j].Path })
	return docs, nil
}

// QueryPaths implements docstore.Reader. Tombstoned paths are excluded: the
// path namespace scan backs inverse lookup, and a deleted relation must not
// be found. Results are sorted.
func (s *Store) QueryPaths(ctx context.Context, q docstore.PathQuery) ([]string, error) {
	if err := s.checkOpen(ctx); err != nil {
		return nil, err
	}
	s.metrics.recordOp("query_paths")

	keys, err := s.matchingKeys(ctx, func(path string) bool {
		return strings.HasPrefix(path, q.PathStartsWith) && strings.HasSuffix(path, q.PathEndsWith)
	})
	if err != nil {
		s.metrics.recordError("query_paths")
		return nil, errors.WrapTransient(err, "Store", "QueryPaths", "key scan")
	}

	docs, err := s.fetchEnvelopes(ctx, keys)
	if err != nil {
		s.metrics.recordError("query_paths")
		return nil, errors.WrapTransient(err, "Store", "QueryPaths", "envelope fetch")
	}

	var result []string
	for _, doc := range docs {
		if doc.IsDeleted() {
			continue
		}
		result = append(result, doc.Path)
	}
	sort.Strings(result)
	return result, nil
}

// matchingKeys scans the bucket's key space and returns the keys whose
// decoded paths satisfy match. Keys this package did not write are skipped.
func (s *Store) matchingKeys(ctx context.Context, match func(path string) bool) ([]string, error) {
	lister, err := s.kv.ListKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("kv list keys: %w", err)
	}
	defer func() {
		_ = lister.Stop()
	}()

	var keys []string
	for key := range lister.Keys() {
		path, err := pathForKey(key)
		if err != nil {
			s.logger.Debug("skipping foreign key", "key", key, "error", err)
			continue
		}
		if match(path) {
			keys = append(keys, key)
		}
	}
	// A canceled context closes the lister channel early; surface that
	// instead of returning a partial scan.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

// fetchEnvelopes loads and decodes the documents behind the given keys.
// Keys deleted since the scan and undecodable envelopes are skipped.
func (s *Store) fetchEnvelopes(ctx context.Context, keys []string) ([]docstore.Document, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	found := make([]*docstore.Document, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(queryFanout)
	for i, key := range keys {
		g.Go(func() error {
			entry, err := s.kv.Get(gctx, key)
			if err != nil {
				if isKVKeyNotFound(err) {
					return nil
				}
				return fmt.Errorf("kv get %s: %w", key, err)
			}
			doc, err := decodeEnvelope(entry.Value())
			if err != nil {
				s.logger.Warn("skipping undecodable envelope", "key", key, "error", err)
				return nil
			}
			found[i] = &doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var docs []docstore.Document
	for _, doc := range found {
		if doc != nil {
			docs = append(docs, *doc)
		}
	}
	return docs, nil
}

// GetAttachment implements docstore.Reader. The caller owns the returned
// reader and must close it.
func (s *Store) GetAttachment(ctx context.Context, doc docstore.Document) (io.ReadCloser, error) {
	if err := s.checkOpen(ctx); err != nil {
		return nil, err
	}
	s.metrics.recordOp("get_attachment")

	if doc.Attachment == nil {
		return nil, errors.ErrNoAttachment
	}

	res, err := s.obj.Get(ctx, doc.Attachment.Hash)
	if err != nil {
		s.metrics.recordError("get_attachment")
		if isObjectNotFound(err) {
			return nil, errors.Wrap(errors.ErrAttachmentUnavailable,
				"Store", "GetAttachment", fmt.Sprintf("blob %s lookup", doc.Attachment.Hash))
		}
		return nil, errors.WrapTransient(err, "Store", "GetAttachment", "object get")
	}
	return res, nil
}

// Set implements docstore.Writer. Ingest is compare-and-swap against the
// envelope's KV revision: the incoming document must supersede whatever is
// stored, losers are rejected as obsolete, and revision races retry with
// backoff. Empty text writes a tombstone; the tombstone keeps its
// timestamp, so a late-arriving older write cannot resurrect the document.
func (s *Store) Set(ctx context.Context, author docstore.Author, input docstore.SetInput) error {
	if err := s.checkOpen(ctx); err != nil {
		return err
	}
	s.metrics.recordOp("set")

	key, err := keyForPath(input.Path)
	if err != nil {
		return errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidPath, err),
			"Store", "Set", "path validation")
	}

	doc := docstore.Document{
		Format:    docstore.FormatEs5,
		Path:      input.Path,
		Author:    author,
		Text:      input.Text,
		Timestamp: s.clock(),
	}

	// The blob lands before the envelope that references it, so any reader
	// that sees the envelope can fetch the blob.
	if input.Text != "" && input.Attachment != nil {
		ref, err := s.putAttachment(ctx, input.Attachment)
		if err != nil {
			s.metrics.recordError("set")
			return err
		}
		doc.Attachment = ref
	}

	data, err := encodeEnvelope(doc)
	if err != nil {
		s.metrics.recordError("set")
		return errors.WrapInvalid(err, "Store", "Set", "envelope encode")
	}
	if len(data) > s.maxValueSize {
		return errors.WrapInvalid(errors.ErrInvalidData, "Store", "Set",
			fmt.Sprintf("envelope size %d exceeds limit %d", len(data), s.maxValueSize))
	}

	err = retry.Do(ctx, s.casRetry, func() error {
		return s.ingest(ctx, key, doc, data)
	})
	if err != nil {
		if stderrors.Is(err, errors.ErrWriteRejected) {
			s.metrics.recordRejected()
			return errors.Wrap(err, "Store", "Set", "write")
		}
		s.metrics.recordError("set")
		return errors.Wrap(err, "Store", "Set", "document ingest")
	}
	return nil
}

// ingest attempts one compare-and-swap round. Revision conflicts return
// unwrapped so the retry loop re-reads and tries again.
func (s *Store) ingest(ctx context.Context, key string, doc docstore.Document, data []byte) error {
	rev := uint64(0)
	entry, err := s.kv.Get(ctx, key)
	switch {
	case err == nil:
		rev = entry.Revision()
		current, derr := decodeEnvelope(entry.Value())
		if derr != nil {
			s.logger.Warn("overwriting undecodable envelope", "key", key, "error", derr)
		} else {
			if sameDocument(doc, current) {
				return nil
			}
			if !supersedes(doc, current) {
				return retry.NonRetryable(errors.Rejected(fmt.Sprintf(
					"obsolete write at %s: stored document is newer", doc.Path)))
			}
		}
	case isKVKeyNotFound(err):
		// First write at this path.
	default:
		return fmt.Errorf("kv get %s: %w", key, err)
	}

	if rev == 0 {
		_, err = s.kv.Create(ctx, key, data)
	} else {
		_, err = s.kv.Update(ctx, key, data, rev)
	}
	if err != nil {
		if isKVConflict(err) {
			s.metrics.recordConflict()
			return err
		}
		return fmt.Errorf("kv put %s: %w", key, err)
	}
	return nil
}

// putAttachment stores a blob under its content hash. Re-putting the same
// content is harmless, so concurrent writers of identical bytes never
// conflict here.
func (s *Store) putAttachment(ctx context.Context, data []byte) (*docstore.AttachmentInfo, error) {
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	if _, err := s.obj.PutBytes(ctx, hash, data); err != nil {
		return nil, errors.WrapTransient(err, "Store", "Set", "attachment put")
	}
	return &docstore.AttachmentInfo{
		Size: int64(len(data)),
		Hash: hash,
	}, nil
}

// WipeDocAtPath implements docstore.Writer. A wipe is a tombstone write.
func (s *Store) WipeDocAtPath(ctx context.Context, author docstore.Author, path string) error {
	return s.Set(ctx, author, docstore.SetInput{Path: path})
}

// Close stops every open event stream and marks the store closed. The
// underlying NATS connection is owned by the caller and stays open.
// Idempotent.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	streams := make([]*kvEventStream, 0, len(s.streams))
	for _, stream := range s.streams {
		streams = append(streams, stream)
	}
	s.streams = make(map[int]*kvEventStream)
	s.mu.Unlock()

	for _, stream := range streams {
		stream.Stop()
	}
	s.logger.Debug("nats store closed", "streams", len(streams))
}

func (s *Store) dropStream(id int) {
	s.mu.Lock()
	delete(s.streams, id)
	s.mu.Unlock()
}

// Error matching follows the NATS client's conventions: sentinel errors
// where the jetstream package provides them, with message fragments as a
// fallback because server responses vary across versions.

func isKVKeyNotFound(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, jetstream.ErrKeyNotFound) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "key not found") || strings.Contains(msg, "10037")
}

func isKVConflict(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, jetstream.ErrKeyExists) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "wrong last sequence") ||
		strings.Contains(msg, "10071") ||
		strings.Contains(msg, "key exists") ||
		strings.Contains(msg, "10058")
}

func isBucketNotFound(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, jetstream.ErrBucketNotFound) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "bucket not found") ||
		strings.Contains(msg, "stream not found") ||
		strings.Contains(msg, "10059")
}

func isBucketExists(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, jetstream.ErrBucketExists) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "already in use") || strings.Contains(msg, "10058")
}

func isObjectNotFound(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, jetstream.ErrObjectNotFound) {
		return true
	}
	return strings.Contains(err.Error(), "object not found")
}
