package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys for cache and object-store operations, following
// OpenTelemetry semantic conventions where applicable.
const (
	// ========================================================================
	// Client attributes
	// ========================================================================
	AttrClientIP   = "client.ip"
	AttrClientAddr = "client.address"
	AttrClientPort = "client.port"
	AttrClientHost = "client.host"

	// ========================================================================
	// Operation attributes
	// ========================================================================
	AttrOperation = "fs.operation"  // Generic operation name
	AttrPath      = "fs.path"       // File path
	AttrOffset    = "fs.offset"     // I/O offset
	AttrCount     = "fs.count"      // Byte count requested
	AttrSize      = "fs.size"       // File size
	AttrStatus    = "fs.status"     // Operation status code
	AttrStatusMsg = "fs.status_msg" // Human-readable status
	AttrEOF       = "fs.eof"        // End of file indicator

	// ========================================================================
	// User attributes
	// ========================================================================
	AttrUID = "user.uid"
	AttrGID = "user.gid"

	// ========================================================================
	// Cache attributes (spec.md §4.1-4.4)
	// ========================================================================
	AttrCacheHit    = "cache.hit"
	AttrCacheSource = "cache.source"
	AttrCacheState  = "cache.state"
	AttrCacheSize   = "cache.size"

	// ========================================================================
	// Journal attributes (spec.md §4.2)
	// ========================================================================
	AttrContentID     = "content.id"
	AttrJournalPath   = "journal.path"
	AttrFragmentCount = "journal.fragment_count"

	// ========================================================================
	// S3 object store attributes (spec.md §4.5-4.6)
	// ========================================================================
	AttrBucket     = "storage.bucket"
	AttrKey        = "storage.key"
	AttrRegion     = "storage.region"
	AttrUploadID   = "storage.upload_id"
	AttrPartNumber = "storage.part_number"
	AttrETag       = "storage.etag"
	AttrOptimized  = "storage.optimized_path"
)

// Span names for operations.
const (
	// ========================================================================
	// Journal operations (spec.md §4.2)
	// ========================================================================
	SpanJournalAttach = "journal.attach"
	SpanJournalPread  = "journal.pread"
	SpanJournalPwrite = "journal.pwrite"

	// ========================================================================
	// Cache operations (spec.md §4.1, §4.3, §4.4)
	// ========================================================================
	SpanCacheLookup = "cache.lookup"
	SpanCacheWrite  = "cache.write"
	SpanCacheFlush  = "cache.flush"
	SpanCacheEvict  = "cache.evict"

	// ========================================================================
	// S3 object store operations (spec.md §4.5-4.6)
	// ========================================================================
	SpanPutObject      = "s3.put_object"
	SpanGetObject      = "s3.get_object"
	SpanUploadPart     = "s3.upload_part"
	SpanCompleteUpload = "s3.complete_multipart_upload"
)

// ClientIP returns an attribute for client IP address
func ClientIP(ip string) attribute.KeyValue {
	return attribute.String(AttrClientIP, ip)
}

// ClientAddr returns an attribute for full client address
func ClientAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrClientAddr, addr)
}

// Offset returns an attribute for a journal I/O offset
func Offset(offset uint64) attribute.KeyValue {
	return attribute.Int64(AttrOffset, int64(offset))
}

// Count returns an attribute for a journal I/O byte count
func Count(count uint64) attribute.KeyValue {
	return attribute.Int64(AttrCount, int64(count))
}

// UID returns an attribute for user ID
func UID(uid int) attribute.KeyValue {
	return attribute.Int64(AttrUID, int64(uid))
}

// GID returns an attribute for group ID
func GID(gid int) attribute.KeyValue {
	return attribute.Int64(AttrGID, int64(gid))
}

// CacheHit returns an attribute for cache hit indicator
func CacheHit(hit bool) attribute.KeyValue {
	return attribute.Bool(AttrCacheHit, hit)
}

// CacheSource returns an attribute for cache source
func CacheSource(source string) attribute.KeyValue {
	return attribute.String(AttrCacheSource, source)
}

// CacheState returns an attribute for cache state
func CacheState(state string) attribute.KeyValue {
	return attribute.String(AttrCacheState, state)
}

// CacheSize returns an attribute for a cache's measured size in bytes
func CacheSize(size uint64) attribute.KeyValue {
	return attribute.Int64(AttrCacheSize, int64(size))
}

// ContentID returns an attribute for a vector-cache content ID
// (SHA256 of url/request-shape, spec.md §4.3)
func ContentID(id string) attribute.KeyValue {
	return attribute.String(AttrContentID, id)
}

// JournalPath returns an attribute for a journal's backing file path
func JournalPath(path string) attribute.KeyValue {
	return attribute.String(AttrJournalPath, path)
}

// FragmentCount returns an attribute for the number of fragments recorded in
// a journal
func FragmentCount(n int) attribute.KeyValue {
	return attribute.Int(AttrFragmentCount, n)
}

// Bucket returns an attribute for S3 bucket name
func Bucket(name string) attribute.KeyValue {
	return attribute.String(AttrBucket, name)
}

// StorageKey returns an attribute for S3 object key
func StorageKey(key string) attribute.KeyValue {
	return attribute.String(AttrKey, key)
}

// Region returns an attribute for cloud region
func Region(region string) attribute.KeyValue {
	return attribute.String(AttrRegion, region)
}

// UploadID returns an attribute for a multipart upload ID
func UploadID(id string) attribute.KeyValue {
	return attribute.String(AttrUploadID, id)
}

// PartNumber returns an attribute for a multipart upload part number
func PartNumber(n int) attribute.KeyValue {
	return attribute.Int(AttrPartNumber, n)
}

// ETag returns an attribute for an object or part ETag
func ETag(tag string) attribute.KeyValue {
	return attribute.String(AttrETag, tag)
}

// Optimized returns an attribute recording whether a multipart part used the
// optimized in-place write path (spec.md §4.6)
func Optimized(optimized bool) attribute.KeyValue {
	return attribute.Bool(AttrOptimized, optimized)
}

// StartJournalSpan starts a span for a journal operation (attach, pread,
// pwrite), tagging it with the journal's backing file path.
func StartJournalSpan(ctx context.Context, name, journalPath string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{JournalPath(journalPath)}
	allAttrs = append(allAttrs, attrs...)
	return StartSpan(ctx, name, trace.WithAttributes(allAttrs...))
}

// StartCacheSpan starts a span for a cache operation.
func StartCacheSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, "cache."+operation, trace.WithAttributes(attrs...))
}

// StartObjectSpan starts a span for an S3 object store operation, tagging
// it with the bucket and key.
func StartObjectSpan(ctx context.Context, name, bucket, key string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{Bucket(bucket), StorageKey(key)}
	allAttrs = append(allAttrs, attrs...)
	return StartSpan(ctx, name, trace.WithAttributes(allAttrs...))
}
