// Package store is the Object Store core (spec.md §4.5): the orchestrator
// that wires bucket directory management, object metadata, streaming
// ingest, the multipart state machine, and listing into the operations an
// HTTP handler calls directly.
package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/cern-eos/xrdgojs3/internal/logger"
	"github.com/cern-eos/xrdgojs3/internal/s3core/auth/directory"
	s3errors "github.com/cern-eos/xrdgojs3/internal/s3core/errors"
	"github.com/cern-eos/xrdgojs3/internal/s3core/fsid"
	"github.com/cern-eos/xrdgojs3/internal/s3core/store/bucket"
	"github.com/cern-eos/xrdgojs3/internal/s3core/store/ingest"
	"github.com/cern-eos/xrdgojs3/internal/s3core/store/listing"
	"github.com/cern-eos/xrdgojs3/internal/s3core/store/multipart"
	"github.com/cern-eos/xrdgojs3/internal/s3core/store/objmeta"
	"github.com/cern-eos/xrdgojs3/internal/telemetry"
)

// maxPutSize is spec.md §4.5.1's "service-wide PUT cap".
const maxPutSize = 5 << 30

// Store is the Object Store core, holding every collaborator an S3
// operation needs.
type Store struct {
	Layout    bucket.Layout
	Directory *directory.Directory
	Meta      *objmeta.Store
	Multipart *multipart.Manager
}

// New wires a Store from its already-open collaborators.
func New(layout bucket.Layout, dir *directory.Directory, meta *objmeta.Store, mp *multipart.Manager) *Store {
	return &Store{Layout: layout, Directory: dir, Meta: meta, Multipart: mp}
}

// PutInput is one PutObject request's forwarded metadata.
type PutInput struct {
	ContentType        string
	CacheControl       string
	ContentDisposition string
	UserMeta           map[string]string
	ContentMD5Base64   string // if set, must match the computed digest
	ContentSHA256Hex   string // if set, must match the computed digest
}

// CreateBucket materializes a bucket's directories and registers its
// ownership record. A name already held by the caller is
// BucketAlreadyOwnedByYou; one held by anyone else is BucketAlreadyExists.
func (s *Store) CreateBucket(ctx context.Context, name string, owner bucket.Owner) error {
	if !bucket.ValidName(name) {
		return s3errors.New(s3errors.CodeInvalidArgument, "invalid bucket name")
	}
	if existing, err := s.Directory.Lookup(ctx, name); err == nil {
		if existing.Owner == owner.ID {
			return s3errors.New(s3errors.CodeBucketAlreadyOwnedByYou, "bucket already owned by you")
		}
		return s3errors.New(s3errors.CodeBucketAlreadyExists, "bucket already exists")
	} else if !errors.Is(err, directory.ErrNotFound) {
		return s3errors.Wrap(s3errors.CodeInternalError, err)
	}

	b := bucket.Bucket{Name: name, Owner: owner}
	if err := bucket.Create(s.Layout, b); err != nil {
		return s3errors.Wrap(s3errors.CodeInternalError, err)
	}

	rec := &directory.BucketRecord{Bucket: name, Owner: owner.ID}
	if err := s.Directory.Create(ctx, rec); err != nil {
		bucket.Delete(s.Layout, b) // best-effort rollback of the filesystem side
		return s3errors.Wrap(s3errors.CodeInternalError, err)
	}
	return nil
}

// DeleteBucket removes a bucket's directories and its ownership record.
func (s *Store) DeleteBucket(ctx context.Context, name string, owner bucket.Owner) error {
	b := bucket.Bucket{Name: name, Owner: owner}
	if err := bucket.Delete(s.Layout, b); err != nil {
		if errors.Is(err, bucket.ErrNotEmpty) {
			return s3errors.New(s3errors.CodeBucketNotEmpty, "bucket is not empty")
		}
		return s3errors.Wrap(s3errors.CodeInternalError, err)
	}
	if err := s.Directory.Delete(ctx, name); err != nil && !errors.Is(err, directory.ErrNotFound) {
		return s3errors.Wrap(s3errors.CodeInternalError, err)
	}
	return nil
}

// PutObject streams body into bucket/key under owner's filesystem
// identity, per spec.md §4.5.1.
func (s *Store) PutObject(ctx context.Context, bucketName, key string, owner bucket.Owner, body io.Reader, size int64, in PutInput) (etag string, err error) {
	ctx, span := telemetry.StartObjectSpan(ctx, telemetry.SpanPutObject, bucketName, key, telemetry.UID(owner.UID), telemetry.GID(owner.GID))
	defer span.End()

	if size > maxPutSize {
		return "", s3errors.New(s3errors.CodeEntityTooLarge, "object exceeds the 5 GiB PUT cap")
	}

	dest := filepath.Join(s.Layout.BucketPath(bucketName), key)
	var result ingest.Result
	var tempPath string

	err = fsid.Do(owner.UID, owner.GID, func() error {
		if pathErr := checkObjectPath(s.Layout.BucketPath(bucketName), key); pathErr != nil {
			return pathErr
		}
		var putErr error
		tempPath, result, putErr = ingest.ToTemp(dest, body, maxPutSize)
		return putErr
	})
	if err != nil {
		telemetry.RecordError(ctx, err)
		if errors.Is(err, ingest.ErrTooLarge) {
			return "", s3errors.New(s3errors.CodeEntityTooLarge, "object exceeds the 5 GiB PUT cap")
		}
		var se *s3errors.Error
		if errors.As(err, &se) {
			return "", err
		}
		return "", s3errors.Wrap(s3errors.CodeInternalError, err)
	}

	if in.ContentMD5Base64 != "" && in.ContentMD5Base64 != result.MD5Base64() {
		fsid.Do(owner.UID, owner.GID, func() error { return os.Remove(tempPath) })
		logger.WarnCtx(ctx, "store: PutObject rejected, Content-MD5 mismatch", logger.Bucket(bucketName), logger.Key(key))
		return "", s3errors.New(s3errors.CodeBadDigest, "Content-MD5 does not match")
	}
	if in.ContentSHA256Hex != "" && in.ContentSHA256Hex != result.SHA256Hex {
		fsid.Do(owner.UID, owner.GID, func() error { return os.Remove(tempPath) })
		logger.WarnCtx(ctx, "store: PutObject rejected, x-amz-content-sha256 mismatch", logger.Bucket(bucketName), logger.Key(key))
		return "", s3errors.New(s3errors.CodeXAmzContentSHA256Mismatch, "x-amz-content-sha256 does not match")
	}

	etag = fmt.Sprintf("%q", result.MD5Hex)
	meta := objmeta.ObjectMeta{
		ETag:               etag,
		ContentType:        in.ContentType,
		CacheControl:       in.CacheControl,
		ContentDisposition: in.ContentDisposition,
		UserMeta:           in.UserMeta,
		Size:               result.Size,
	}

	err = fsid.Do(owner.UID, owner.GID, func() error { return os.Rename(tempPath, dest) })
	if err != nil {
		telemetry.RecordError(ctx, err)
		return "", s3errors.Wrap(s3errors.CodeInternalError, err)
	}
	if err := s.Meta.PutObject(bucketName, key, meta); err != nil {
		telemetry.RecordError(ctx, err)
		return "", s3errors.Wrap(s3errors.CodeInternalError, err)
	}
	telemetry.SetAttributes(ctx, telemetry.ETag(etag))
	logger.InfoCtx(ctx, "store: object written", logger.Bucket(bucketName), logger.Key(key), logger.ETag(etag), logger.Size(uint64(meta.Size)))
	return etag, nil
}

// checkObjectPath implements §4.5.1 step 2's parent-chain validation: no
// intermediate path segment may be a non-directory, and the final segment
// may not already be a directory.
func checkObjectPath(bucketPath, key string) error {
	segments := strings.Split(key, "/")
	cur := bucketPath
	for i, seg := range segments {
		cur = filepath.Join(cur, seg)
		info, err := os.Lstat(cur)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return err
		}
		isLast := i == len(segments)-1
		if isLast {
			if info.IsDir() {
				return s3errors.New(s3errors.CodeObjectExistAsDir, "object exists as a directory")
			}
			continue
		}
		if !info.IsDir() {
			return s3errors.New(s3errors.CodeObjectExistInObjectPath, "an object exists in the key's path")
		}
	}
	if err := os.MkdirAll(filepath.Dir(filepath.Join(bucketPath, key)), 0o755); err != nil {
		return err
	}
	return nil
}

// GetObject opens bucket/key for reading under owner's filesystem
// identity, returning its metadata and a reader the caller must close.
func (s *Store) GetObject(bucketName, key string, owner bucket.Owner) (*objmeta.ObjectMeta, io.ReadCloser, error) {
	meta, err := s.Meta.GetObject(bucketName, key)
	if errors.Is(err, objmeta.ErrNotFound) {
		return nil, nil, s3errors.New(s3errors.CodeNoSuchKey, "key not found")
	}
	if err != nil {
		return nil, nil, s3errors.Wrap(s3errors.CodeInternalError, err)
	}

	var f *os.File
	err = fsid.Do(owner.UID, owner.GID, func() error {
		var openErr error
		f, openErr = os.Open(filepath.Join(s.Layout.BucketPath(bucketName), key))
		return openErr
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, s3errors.New(s3errors.CodeNoSuchKey, "key not found")
	}
	if err != nil {
		return nil, nil, s3errors.Wrap(s3errors.CodeInternalError, err)
	}
	return meta, f, nil
}

// HeadObject returns bucket/key's metadata without opening its content.
func (s *Store) HeadObject(bucketName, key string) (*objmeta.ObjectMeta, error) {
	meta, err := s.Meta.GetObject(bucketName, key)
	if errors.Is(err, objmeta.ErrNotFound) {
		return nil, s3errors.New(s3errors.CodeNoSuchKey, "key not found")
	}
	if err != nil {
		return nil, s3errors.Wrap(s3errors.CodeInternalError, err)
	}
	return meta, nil
}

// DeleteObject removes bucket/key, if present. Deleting an absent key is
// not an error, matching S3 semantics.
func (s *Store) DeleteObject(bucketName, key string, owner bucket.Owner) error {
	err := fsid.Do(owner.UID, owner.GID, func() error {
		err := os.Remove(filepath.Join(s.Layout.BucketPath(bucketName), key))
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	})
	if err != nil {
		return s3errors.Wrap(s3errors.CodeInternalError, err)
	}
	return s.Meta.DeleteObject(bucketName, key)
}

// ListObjects runs the common ListObjects/ListObjectsV2/ListObjectVersions
// traversal (spec.md §4.5.3) over bucketName.
func (s *Store) ListObjects(bucketName, prefix, delimiter, marker string, maxKeys int) (listing.Result, error) {
	return listing.List(listing.Options{
		Root:      s.Layout.BucketPath(bucketName),
		Prefix:    prefix,
		Delimiter: delimiter,
		Marker:    marker,
		MaxKeys:   maxKeys,
		Meta:      s.objectMeta(bucketName),
	})
}

func (s *Store) objectMeta(bucketName string) listing.MetaFunc {
	return func(relKey, absPath string) (listing.Object, error) {
		info, err := os.Stat(absPath)
		if err != nil {
			return listing.Object{}, err
		}
		etag := ""
		if m, err := s.Meta.GetObject(bucketName, relKey); err == nil {
			etag = m.ETag
		}
		return listing.Object{
			Key:     relKey,
			ETag:    etag,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		}, nil
	}
}

// ListMultipartUploads returns every in-progress upload for bucketName.
func (s *Store) ListMultipartUploads(bucketName string) ([]*objmeta.UploadMeta, error) {
	uploads, err := s.Meta.ListUploads(bucketName)
	if err != nil {
		return nil, s3errors.Wrap(s3errors.CodeInternalError, err)
	}
	return uploads, nil
}

// CreateMultipartUpload starts a new upload for bucket/key.
func (s *Store) CreateMultipartUpload(ctx context.Context, bucketName, key string, owner bucket.Owner) (uploadID string, err error) {
	ctx, span := telemetry.StartObjectSpan(ctx, "s3.create_multipart_upload", bucketName, key)
	defer span.End()

	meta, err := s.Multipart.Create(bucketName, key, owner.UID, owner.GID)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return "", s3errors.Wrap(s3errors.CodeInternalError, err)
	}
	logger.InfoCtx(ctx, "store: multipart upload created", logger.Bucket(bucketName), logger.Key(key), logger.UploadID(meta.UploadID))
	return meta.UploadID, nil
}

// UploadPart stores one part's body for an in-progress upload.
func (s *Store) UploadPart(ctx context.Context, bucketName, uploadID, key string, partNumber int, body io.Reader, size int64, chunked bool) (string, error) {
	ctx, span := telemetry.StartObjectSpan(ctx, telemetry.SpanUploadPart, bucketName, key, telemetry.UploadID(uploadID), telemetry.PartNumber(partNumber))
	defer span.End()

	etag, optimized, err := s.Multipart.UploadPart(bucketName, uploadID, key, partNumber, body, size, chunked)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return "", mapMultipartErr(err)
	}
	quoted := fmt.Sprintf("%q", etag)
	telemetry.SetAttributes(ctx, telemetry.ETag(quoted), telemetry.Optimized(optimized))
	logger.InfoCtx(ctx, "store: part uploaded", logger.Bucket(bucketName), logger.Key(key), logger.UploadID(uploadID), logger.PartNumber(partNumber), logger.ETag(quoted), logger.OptimizedPath(optimized))
	return quoted, nil
}

// ListParts returns every part uploaded so far for uploadID.
func (s *Store) ListParts(ctx context.Context, bucketName, uploadID string) ([]multipart.Part, error) {
	parts, err := s.Multipart.ListParts(bucketName, uploadID)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, mapMultipartErr(err)
	}
	return parts, nil
}

// CompleteMultipartUpload assembles the final object from the requested
// parts and returns its ETag.
func (s *Store) CompleteMultipartUpload(ctx context.Context, bucketName, uploadID, key string, parts []multipart.RequestedPart) (etag string, err error) {
	ctx, span := telemetry.StartObjectSpan(ctx, telemetry.SpanCompleteUpload, bucketName, key, telemetry.UploadID(uploadID))
	defer span.End()

	dest := filepath.Join(s.Layout.BucketPath(bucketName), key)
	hexEtag, size, err := s.Multipart.Complete(bucketName, uploadID, key, dest, parts)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return "", mapMultipartErr(err)
	}
	etag = fmt.Sprintf("%q", hexEtag)
	if err := s.Meta.PutObject(bucketName, key, objmeta.ObjectMeta{ETag: etag, Size: size}); err != nil {
		telemetry.RecordError(ctx, err)
		return "", s3errors.Wrap(s3errors.CodeInternalError, err)
	}
	logger.InfoCtx(ctx, "store: multipart upload completed", logger.Bucket(bucketName), logger.Key(key), logger.UploadID(uploadID), logger.ETag(etag), logger.Size(uint64(size)))
	return etag, nil
}

// AbortMultipartUpload discards an in-progress upload.
func (s *Store) AbortMultipartUpload(ctx context.Context, bucketName, uploadID string) error {
	if err := s.Multipart.Abort(bucketName, uploadID); err != nil {
		telemetry.RecordError(ctx, err)
		return mapMultipartErr(err)
	}
	logger.InfoCtx(ctx, "store: multipart upload aborted", logger.Bucket(bucketName), logger.UploadID(uploadID))
	return nil
}

func mapMultipartErr(err error) error {
	switch {
	case errors.Is(err, multipart.ErrNotFound):
		return s3errors.New(s3errors.CodeNoSuchUpload, "upload not found")
	case errors.Is(err, multipart.ErrKeyMismatch):
		return s3errors.New(s3errors.CodeInvalidArgument, "key does not match upload")
	case errors.Is(err, multipart.ErrInvalidPartOrder):
		return s3errors.New(s3errors.CodeInvalidPartOrder, "parts must be strictly ascending")
	case errors.Is(err, multipart.ErrInvalidPart):
		return s3errors.New(s3errors.CodeInvalidPart, err.Error())
	case errors.Is(err, multipart.ErrTooManyParts):
		return s3errors.New(s3errors.CodeInvalidArgument, "more than 10000 parts")
	default:
		return s3errors.Wrap(s3errors.CodeInternalError, err)
	}
}
