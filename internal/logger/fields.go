package logger

import (
	"log/slog"
)

// Standard field keys for structured logging across the cache and object
// store layers. Use these keys consistently across all log statements for
// log aggregation and querying.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// Operation Identity
	// ========================================================================
	KeyOperation = "operation"  // S3 operation name: PutObject, GetObject, etc.
	KeyStatus    = "status"     // HTTP status code
	KeyStatusMsg = "status_msg" // Human-readable status message

	// ========================================================================
	// Paths
	// ========================================================================
	KeyPath        = "path"         // Filesystem path of an object or journal
	KeyJournalPath = "journal_path" // Path of a cache journal file (spec.md §4.2)
	KeySize        = "size"         // File or object size in bytes

	// ========================================================================
	// I/O Operations (journal Pread/Pwrite, spec.md §4.2)
	// ========================================================================
	KeyOffset       = "offset"        // File offset for read/write operations
	KeyCount        = "count"         // Byte count requested
	KeyBytesRead    = "bytes_read"    // Actual bytes read
	KeyBytesWritten = "bytes_written" // Actual bytes written
	KeyEOF          = "eof"           // End of file indicator

	// ========================================================================
	// Client & Identity
	// ========================================================================
	KeyClientIP   = "client_ip"   // Client IP address
	KeyClientPort = "client_port" // Client source port
	KeyClientHost = "client_host" // Client hostname (if resolved)
	KeyUID        = "uid"         // Filesystem identity UID (fsid.Do)
	KeyGID        = "gid"         // Filesystem identity GID (fsid.Do)

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyErrorCode  = "error_code"  // S3 error code (e.g. NoSuchBucket)
	KeySource     = "source"      // Data source: journal, vector_cache, remote
	KeyRequestID  = "request_id"  // S3 request ID echoed in the XML error body

	// ========================================================================
	// S3 Object Store (spec.md §4.5-4.6)
	// ========================================================================
	KeyBucket     = "bucket"      // Bucket name
	KeyKey        = "key"         // Object key
	KeyRegion     = "region"      // SigV4 credential scope region
	KeyETag       = "etag"        // Object/part ETag
	KeyAttempt    = "attempt"     // Retry attempt number
	KeyMaxRetries = "max_retries" // Maximum retry attempts

	// ========================================================================
	// Multipart Upload (spec.md §4.6)
	// ========================================================================
	KeyUploadID      = "upload_id"      // Multipart upload ID
	KeyPartNumber    = "part_number"    // Part number within an upload
	KeyFragmentCount = "fragment_count" // Fragments recorded in a journal
	KeyOptimizedPath = "optimized_path" // Whether a part used the optimized write path

	// ========================================================================
	// Cache Layer (spec.md §4.1-4.4)
	// ========================================================================
	KeyCacheHit      = "cache_hit"      // Cache hit indicator
	KeyCacheState    = "cache_state"    // Cache state: dirty, clean, evicting
	KeyCacheSize     = "cache_size"     // Current cache size
	KeyCacheCapacity = "cache_capacity" // Maximum cache capacity
	KeyEvicted       = "evicted"        // Number of entries evicted

	// ========================================================================
	// Listing (spec.md §4.6)
	// ========================================================================
	KeyEntries           = "entries"            // Number of listing entries returned
	KeyMaxEntries        = "max_entries"        // Maximum entries requested
	KeyContinuationToken = "continuation_token" // Listing continuation marker
)

// ============================================================================
// Field constructors for type safety
// ============================================================================

// TraceID returns a slog.Attr for OpenTelemetry trace ID
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for OpenTelemetry span ID
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// Operation returns a slog.Attr for the S3 operation name
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// Status returns a slog.Attr for HTTP status code
func Status(code int) slog.Attr {
	return slog.Int(KeyStatus, code)
}

// StatusMsg returns a slog.Attr for human-readable status message
func StatusMsg(msg string) slog.Attr {
	return slog.String(KeyStatusMsg, msg)
}

// Path returns a slog.Attr for a filesystem path
func Path(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

// JournalPath returns a slog.Attr for a cache journal's path
func JournalPath(p string) slog.Attr {
	return slog.String(KeyJournalPath, p)
}

// Size returns a slog.Attr for file or object size
func Size(s uint64) slog.Attr {
	return slog.Uint64(KeySize, s)
}

// Offset returns a slog.Attr for file offset
func Offset(off uint64) slog.Attr {
	return slog.Uint64(KeyOffset, off)
}

// Count returns a slog.Attr for byte count requested
func Count(c uint64) slog.Attr {
	return slog.Uint64(KeyCount, c)
}

// BytesRead returns a slog.Attr for actual bytes read
func BytesRead(n int) slog.Attr {
	return slog.Int(KeyBytesRead, n)
}

// BytesWritten returns a slog.Attr for actual bytes written
func BytesWritten(n int) slog.Attr {
	return slog.Int(KeyBytesWritten, n)
}

// EOF returns a slog.Attr for end-of-file indicator
func EOF(eof bool) slog.Attr {
	return slog.Bool(KeyEOF, eof)
}

// ClientIP returns a slog.Attr for client IP address
func ClientIP(addr string) slog.Attr {
	return slog.String(KeyClientIP, addr)
}

// ClientPort returns a slog.Attr for client source port
func ClientPort(port int) slog.Attr {
	return slog.Int(KeyClientPort, port)
}

// ClientHost returns a slog.Attr for client hostname
func ClientHost(host string) slog.Attr {
	return slog.String(KeyClientHost, host)
}

// UID returns a slog.Attr for the fsid.Do filesystem identity UID
func UID(uid uint32) slog.Attr {
	return slog.Any(KeyUID, uid)
}

// GID returns a slog.Attr for the fsid.Do filesystem identity GID
func GID(gid uint32) slog.Attr {
	return slog.Any(KeyGID, gid)
}

// RequestID returns a slog.Attr for the S3 request ID
func RequestID(id string) slog.Attr {
	return slog.String(KeyRequestID, id)
}

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// ErrorCode returns a slog.Attr for the S3 error code
func ErrorCode(code string) slog.Attr {
	return slog.String(KeyErrorCode, code)
}

// Source returns a slog.Attr for data source
func Source(src string) slog.Attr {
	return slog.String(KeySource, src)
}

// Bucket returns a slog.Attr for the bucket name
func Bucket(name string) slog.Attr {
	return slog.String(KeyBucket, name)
}

// Key returns a slog.Attr for the object key
func Key(k string) slog.Attr {
	return slog.String(KeyKey, k)
}

// Region returns a slog.Attr for the SigV4 credential scope region
func Region(r string) slog.Attr {
	return slog.String(KeyRegion, r)
}

// ETag returns a slog.Attr for an object or part ETag
func ETag(tag string) slog.Attr {
	return slog.String(KeyETag, tag)
}

// Attempt returns a slog.Attr for retry attempt number
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// MaxRetries returns a slog.Attr for maximum retry attempts
func MaxRetries(n int) slog.Attr {
	return slog.Int(KeyMaxRetries, n)
}

// UploadID returns a slog.Attr for a multipart upload ID
func UploadID(id string) slog.Attr {
	return slog.String(KeyUploadID, id)
}

// PartNumber returns a slog.Attr for a multipart upload part number
func PartNumber(n int) slog.Attr {
	return slog.Int(KeyPartNumber, n)
}

// FragmentCount returns a slog.Attr for the number of fragments recorded in
// a journal (spec.md §4.2)
func FragmentCount(n int) slog.Attr {
	return slog.Int(KeyFragmentCount, n)
}

// OptimizedPath returns a slog.Attr recording whether a multipart part used
// the optimized in-place write path (spec.md §4.6) versus the fallback
// concatenation path
func OptimizedPath(optimized bool) slog.Attr {
	return slog.Bool(KeyOptimizedPath, optimized)
}

// CacheHit returns a slog.Attr for cache hit indicator
func CacheHit(hit bool) slog.Attr {
	return slog.Bool(KeyCacheHit, hit)
}

// CacheState returns a slog.Attr for cache state
func CacheState(state string) slog.Attr {
	return slog.String(KeyCacheState, state)
}

// CacheSize returns a slog.Attr for current cache size
func CacheSize(size int64) slog.Attr {
	return slog.Int64(KeyCacheSize, size)
}

// CacheCapacity returns a slog.Attr for maximum cache capacity
func CacheCapacity(capacity int64) slog.Attr {
	return slog.Int64(KeyCacheCapacity, capacity)
}

// Evicted returns a slog.Attr for number of entries evicted
func Evicted(n int) slog.Attr {
	return slog.Int(KeyEvicted, n)
}

// Entries returns a slog.Attr for number of listing entries returned
func Entries(n int) slog.Attr {
	return slog.Int(KeyEntries, n)
}

// MaxEntries returns a slog.Attr for maximum entries requested
func MaxEntries(n int) slog.Attr {
	return slog.Int(KeyMaxEntries, n)
}

// ContinuationToken returns a slog.Attr for a listing continuation marker
func ContinuationToken(token string) slog.Attr {
	return slog.String(KeyContinuationToken, token)
}
