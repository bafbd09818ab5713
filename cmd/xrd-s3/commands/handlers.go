package commands

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/cern-eos/xrdgojs3/internal/s3core/auth"
	"github.com/cern-eos/xrdgojs3/internal/s3core/auth/directory"
	s3errors "github.com/cern-eos/xrdgojs3/internal/s3core/errors"
	"github.com/cern-eos/xrdgojs3/internal/s3core/reqctx"
	"github.com/cern-eos/xrdgojs3/internal/s3core/router"
	"github.com/cern-eos/xrdgojs3/internal/s3core/store"
	"github.com/cern-eos/xrdgojs3/internal/s3core/store/bucket"
	"github.com/cern-eos/xrdgojs3/internal/s3core/store/ingest"
	"github.com/cern-eos/xrdgojs3/internal/s3core/store/listing"
	"github.com/cern-eos/xrdgojs3/internal/s3core/store/multipart"
	"github.com/cern-eos/xrdgojs3/internal/s3core/store/objmeta"
	"github.com/cern-eos/xrdgojs3/internal/s3core/xmlresp"
)

const userMetaPrefix = "X-Amz-Meta-"

// authenticatedRequest parses and authenticates r, authorizes the
// identity against the path's bucket, and resolves the bucket owner to
// POSIX ids — the steps every bucket- and object-scoped handler below
// needs before it can touch the store. Access keys are scoped to owner
// identities, not buckets, so authorization is a per-request ownership
// lookup: an absent bucket is NoSuchBucket, someone else's bucket is
// AccessDenied. CreateBucket and ListBuckets authenticate without this
// check, since the path's bucket does not exist yet (or there is none).
func (s *server) authenticatedRequest(r *http.Request, m router.Match) (*reqctx.Request, *auth.Identity, bucket.Owner, error) {
	req, ident, err := s.authenticate(r, m)
	if err != nil {
		return nil, nil, bucket.Owner{}, err
	}

	rec, err := s.store.Directory.Lookup(r.Context(), m.Bucket)
	if errors.Is(err, directory.ErrNotFound) {
		return nil, nil, bucket.Owner{}, s3errors.New(s3errors.CodeNoSuchBucket, "bucket does not exist")
	}
	if err != nil {
		return nil, nil, bucket.Owner{}, s3errors.Wrap(s3errors.CodeInternalError, err)
	}
	if rec.Owner != ident.Owner {
		return nil, nil, bucket.Owner{}, s3errors.New(s3errors.CodeAccessDenied, "bucket is owned by another identity")
	}

	owner, err := bucket.ResolveOwner(rec.Owner, "")
	if err != nil {
		return nil, nil, bucket.Owner{}, s3errors.Wrap(s3errors.CodeInternalError, err)
	}
	return req, ident, owner, nil
}

// authenticate is the ownership-check-free half of authenticatedRequest.
func (s *server) authenticate(r *http.Request, m router.Match) (*reqctx.Request, *auth.Identity, error) {
	req, err := reqctx.Parse(r, m)
	if err != nil {
		return nil, nil, err
	}
	ident, err := s.authn.Authenticate(r.Context(), req)
	if err != nil {
		return nil, nil, err
	}
	return req, ident, nil
}

// requestBody returns r's body, transparently de-chunking it first when
// the request used the streaming SigV4 payload framing (spec.md §4.5.1).
func requestBody(r *http.Request, req *reqctx.Request) io.Reader {
	if req.AuthType == reqctx.AuthStreamingSigned {
		return ingest.NewChunkedReader(r.Body)
	}
	return r.Body
}

func userMetaFromHeaders(h http.Header) map[string]string {
	var out map[string]string
	for name, values := range h {
		if len(values) == 0 || !strings.HasPrefix(http.CanonicalHeaderKey(name), userMetaPrefix) {
			continue
		}
		if out == nil {
			out = make(map[string]string)
		}
		key := strings.ToLower(strings.TrimPrefix(http.CanonicalHeaderKey(name), userMetaPrefix))
		out[key] = values[0]
	}
	return out
}

// handleCreateBucket serves PUT /⟨bucket⟩. The path's bucket does not
// exist yet, so only the identity is authenticated; whether the name is
// free, already the caller's, or someone else's is the store's decision
// (BucketAlreadyOwnedByYou / BucketAlreadyExists).
func (s *server) handleCreateBucket(w http.ResponseWriter, r *http.Request, m router.Match) {
	_, ident, err := s.authenticate(r, m)
	if err != nil {
		writeError(w, r, err)
		return
	}

	owner, err := bucket.ResolveOwner(ident.Owner, "")
	if err != nil {
		writeError(w, r, s3errors.Wrap(s3errors.CodeInternalError, err))
		return
	}
	if err := s.store.CreateBucket(r.Context(), m.Bucket, owner); err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/"+m.Bucket)
	w.WriteHeader(http.StatusOK)
}

// handleListBuckets serves GET / — no bucket appears in the path, so only
// the identity is authenticated; the response lists every bucket the
// identity's owner holds.
func (s *server) handleListBuckets(w http.ResponseWriter, r *http.Request, m router.Match) {
	_, ident, err := s.authenticate(r, m)
	if err != nil {
		writeError(w, r, err)
		return
	}

	recs, err := s.store.Directory.ListByOwner(r.Context(), ident.Owner)
	if err != nil {
		writeError(w, r, s3errors.Wrap(s3errors.CodeInternalError, err))
		return
	}

	buckets := make([]xmlresp.Bucket, len(recs))
	for i, rec := range recs {
		buckets[i] = xmlresp.Bucket{Name: rec.Bucket, CreationDate: rec.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z")}
	}
	writeXML(w, http.StatusOK, xmlresp.ListAllMyBucketsResult{
		Owner:   xmlresp.Owner{ID: ident.Owner, DisplayName: ident.Owner},
		Buckets: buckets,
	})
}

func (s *server) handleHeadBucket(w http.ResponseWriter, r *http.Request, m router.Match) {
	if _, _, _, err := s.authenticatedRequest(r, m); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *server) handlePutObject(w http.ResponseWriter, r *http.Request, m router.Match) {
	req, _, owner, err := s.authenticatedRequest(r, m)
	if err != nil {
		writeError(w, r, err)
		return
	}

	in := storePutInput(r, req)
	etag, err := s.store.PutObject(r.Context(), m.Bucket, m.Key, owner, requestBody(r, req), req.ContentLength, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("ETag", etag)
	w.WriteHeader(http.StatusOK)
}

func (s *server) handleGetObject(w http.ResponseWriter, r *http.Request, m router.Match) {
	_, _, owner, err := s.authenticatedRequest(r, m)
	if err != nil {
		writeError(w, r, err)
		return
	}

	meta, rc, err := s.store.GetObject(m.Bucket, m.Key, owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer rc.Close()

	writeObjectHeaders(w, meta)
	w.WriteHeader(http.StatusOK)
	io.Copy(w, rc)
}

func (s *server) handleHeadObject(w http.ResponseWriter, r *http.Request, m router.Match) {
	if _, _, _, err := s.authenticatedRequest(r, m); err != nil {
		writeError(w, r, err)
		return
	}

	meta, err := s.store.HeadObject(m.Bucket, m.Key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeObjectHeaders(w, meta)
	w.WriteHeader(http.StatusOK)
}

func (s *server) handleDeleteObject(w http.ResponseWriter, r *http.Request, m router.Match) {
	_, _, owner, err := s.authenticatedRequest(r, m)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.store.DeleteObject(m.Bucket, m.Key, owner); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleDeleteBucket(w http.ResponseWriter, r *http.Request, m router.Match) {
	_, _, owner, err := s.authenticatedRequest(r, m)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.store.DeleteBucket(r.Context(), m.Bucket, owner); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleListObjects(w http.ResponseWriter, r *http.Request, m router.Match) {
	if _, _, _, err := s.authenticatedRequest(r, m); err != nil {
		writeError(w, r, err)
		return
	}

	q := r.URL.Query()
	maxKeys := parseMaxKeys(q.Get("max-keys"))
	result, err := s.store.ListObjects(m.Bucket, q.Get("prefix"), q.Get("delimiter"), q.Get("marker"), maxKeys)
	if err != nil {
		writeError(w, r, err)
		return
	}

	body := xmlresp.ListBucketResult{
		Name:           m.Bucket,
		Prefix:         q.Get("prefix"),
		Marker:         q.Get("marker"),
		NextMarker:     result.NextMarker,
		MaxKeys:        maxKeys,
		Delimiter:      q.Get("delimiter"),
		IsTruncated:    result.IsTruncated,
		Contents:       toXMLContents(result.Objects),
		CommonPrefixes: toXMLCommonPrefixes(result.CommonPrefixes),
	}
	writeXML(w, http.StatusOK, body)
}

func (s *server) handleListObjectsV2(w http.ResponseWriter, r *http.Request, m router.Match) {
	if _, _, _, err := s.authenticatedRequest(r, m); err != nil {
		writeError(w, r, err)
		return
	}

	q := r.URL.Query()
	maxKeys := parseMaxKeys(q.Get("max-keys"))
	marker := q.Get("continuation-token")
	if marker == "" {
		marker = q.Get("start-after")
	}
	result, err := s.store.ListObjects(m.Bucket, q.Get("prefix"), q.Get("delimiter"), marker, maxKeys)
	if err != nil {
		writeError(w, r, err)
		return
	}

	contents := toXMLContents(result.Objects)
	body := xmlresp.ListBucketResultV2{
		Name:                  m.Bucket,
		Prefix:                q.Get("prefix"),
		StartAfter:            q.Get("start-after"),
		ContinuationToken:     q.Get("continuation-token"),
		NextContinuationToken: result.NextMarker,
		KeyCount:              len(contents),
		MaxKeys:               maxKeys,
		Delimiter:             q.Get("delimiter"),
		IsTruncated:           result.IsTruncated,
		Contents:              contents,
		CommonPrefixes:        toXMLCommonPrefixes(result.CommonPrefixes),
	}
	writeXML(w, http.StatusOK, body)
}

// handleListObjectVersions is the degenerate versioned flavour of the
// common listing: the store is unversioned, so every object appears once
// with the synthetic VersionId "1".
func (s *server) handleListObjectVersions(w http.ResponseWriter, r *http.Request, m router.Match) {
	if _, _, _, err := s.authenticatedRequest(r, m); err != nil {
		writeError(w, r, err)
		return
	}

	q := r.URL.Query()
	maxKeys := parseMaxKeys(q.Get("max-keys"))
	result, err := s.store.ListObjects(m.Bucket, q.Get("prefix"), q.Get("delimiter"), q.Get("key-marker"), maxKeys)
	if err != nil {
		writeError(w, r, err)
		return
	}

	versions := make([]xmlresp.Version, len(result.Objects))
	for i, o := range result.Objects {
		versions[i] = xmlresp.Version{Key: o.Key, LastModified: o.ModTime.UTC().Format("2006-01-02T15:04:05.000Z"), Size: o.Size, VersionId: "1"}
	}
	body := xmlresp.ListVersionsResult{
		Name:            m.Bucket,
		Prefix:          q.Get("prefix"),
		KeyMarker:       q.Get("key-marker"),
		VersionIdMarker: q.Get("version-id-marker"),
		NextKeyMarker:   result.NextMarker,
		MaxKeys:         maxKeys,
		Delimiter:       q.Get("delimiter"),
		IsTruncated:     result.IsTruncated,
		Versions:        versions,
		CommonPrefixes:  toXMLCommonPrefixes(result.CommonPrefixes),
	}
	if result.IsTruncated {
		body.NextVersionIdMarker = "1"
	}
	writeXML(w, http.StatusOK, body)
}

func (s *server) handleListMultipartUploads(w http.ResponseWriter, r *http.Request, m router.Match) {
	if _, _, _, err := s.authenticatedRequest(r, m); err != nil {
		writeError(w, r, err)
		return
	}

	uploads, err := s.store.ListMultipartUploads(m.Bucket)
	if err != nil {
		writeError(w, r, err)
		return
	}

	xmlUploads := make([]xmlresp.Upload, len(uploads))
	for i, u := range uploads {
		xmlUploads[i] = xmlresp.Upload{Key: u.Key, UploadId: u.UploadID}
	}
	writeXML(w, http.StatusOK, xmlresp.ListMultipartUploadsResult{Bucket: m.Bucket, Uploads: xmlUploads})
}

// handleGetAcl serves both GetBucketAcl and GetObjectAcl: the store has no
// per-grantee ACL model, so both return the fixed owner-FULL_CONTROL grant.
func (s *server) handleGetAcl(w http.ResponseWriter, r *http.Request, m router.Match) {
	_, ident, _, err := s.authenticatedRequest(r, m)
	if err != nil {
		writeError(w, r, err)
		return
	}
	owner := xmlresp.Owner{ID: ident.Owner, DisplayName: ident.Owner}
	writeXML(w, http.StatusOK, xmlresp.NewAccessControlPolicy(owner))
}

func (s *server) handleCreateMultipartUpload(w http.ResponseWriter, r *http.Request, m router.Match) {
	_, _, owner, err := s.authenticatedRequest(r, m)
	if err != nil {
		writeError(w, r, err)
		return
	}

	uploadID, err := s.store.CreateMultipartUpload(r.Context(), m.Bucket, m.Key, owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeXML(w, http.StatusOK, xmlresp.InitiateMultipartUploadResult{Bucket: m.Bucket, Key: m.Key, UploadId: uploadID})
}

func (s *server) handleUploadPart(w http.ResponseWriter, r *http.Request, m router.Match) {
	req, _, _, err := s.authenticatedRequest(r, m)
	if err != nil {
		writeError(w, r, err)
		return
	}

	q := r.URL.Query()
	partNumber, convErr := strconv.Atoi(q.Get("partNumber"))
	if convErr != nil {
		writeError(w, r, s3errors.New(s3errors.CodeInvalidArgument, "malformed partNumber"))
		return
	}
	chunked := req.AuthType == reqctx.AuthStreamingSigned

	etag, err := s.store.UploadPart(r.Context(), m.Bucket, q.Get("uploadId"), m.Key, partNumber, requestBody(r, req), req.ContentLength, chunked)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("ETag", etag)
	w.WriteHeader(http.StatusOK)
}

func (s *server) handleListParts(w http.ResponseWriter, r *http.Request, m router.Match) {
	if _, _, _, err := s.authenticatedRequest(r, m); err != nil {
		writeError(w, r, err)
		return
	}

	uploadID := r.URL.Query().Get("uploadId")
	parts, err := s.store.ListParts(r.Context(), m.Bucket, uploadID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	xmlParts := make([]xmlresp.Part, len(parts))
	for i, p := range parts {
		xmlParts[i] = xmlresp.Part{ETag: fmt.Sprintf("%q", p.ETag), PartNumber: p.Number, Size: p.Size}
	}
	writeXML(w, http.StatusOK, xmlresp.ListPartsResult{Bucket: m.Bucket, Key: m.Key, UploadId: uploadID, Parts: xmlParts})
}

func (s *server) handleCompleteMultipartUpload(w http.ResponseWriter, r *http.Request, m router.Match) {
	_, _, _, err := s.authenticatedRequest(r, m)
	if err != nil {
		writeError(w, r, err)
		return
	}

	parts, err := parseCompleteBody(r.Body)
	if err != nil {
		writeError(w, r, err)
		return
	}

	uploadID := r.URL.Query().Get("uploadId")
	etag, err := s.store.CompleteMultipartUpload(r.Context(), m.Bucket, uploadID, m.Key, parts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeXML(w, http.StatusOK, xmlresp.CompleteMultipartUploadResult{Bucket: m.Bucket, Key: m.Key, ETag: etag})
}

func (s *server) handleAbortMultipartUpload(w http.ResponseWriter, r *http.Request, m router.Match) {
	if _, _, _, err := s.authenticatedRequest(r, m); err != nil {
		writeError(w, r, err)
		return
	}

	uploadID := r.URL.Query().Get("uploadId")
	if err := s.store.AbortMultipartUpload(r.Context(), m.Bucket, uploadID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) notFound(w http.ResponseWriter, r *http.Request, _ router.Match) {
	writeError(w, r, s3errors.New(s3errors.CodeNoSuchKey, "no route matched this request"))
}

func storePutInput(r *http.Request, req *reqctx.Request) store.PutInput {
	return store.PutInput{
		ContentType:        r.Header.Get("Content-Type"),
		CacheControl:       r.Header.Get("Cache-Control"),
		ContentDisposition: r.Header.Get("Content-Disposition"),
		UserMeta:           userMetaFromHeaders(r.Header),
		ContentMD5Base64:   req.ContentMD5,
		ContentSHA256Hex:   sha256ForValidation(req),
	}
}

// sha256ForValidation returns the digest to validate PutObject's body
// against, skipping the sentinel values that mean "unsigned" or
// "streaming" rather than a literal expected hash.
func sha256ForValidation(req *reqctx.Request) string {
	switch req.AmzContentSHA256 {
	case "", "UNSIGNED-PAYLOAD":
		return ""
	}
	if strings.HasPrefix(req.AmzContentSHA256, "STREAMING-") {
		return ""
	}
	return req.AmzContentSHA256
}

func parseMaxKeys(raw string) int {
	const def = 1000
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	if n > def {
		return def
	}
	return n
}

func toXMLContents(objs []listing.Object) []xmlresp.Content {
	out := make([]xmlresp.Content, len(objs))
	for i, o := range objs {
		out[i] = xmlresp.Content{ETag: o.ETag, Key: o.Key, LastModified: o.ModTime.UTC().Format("2006-01-02T15:04:05.000Z"), Size: o.Size}
	}
	return out
}

func toXMLCommonPrefixes(prefixes []string) []xmlresp.CommonPrefix {
	out := make([]xmlresp.CommonPrefix, len(prefixes))
	for i, p := range prefixes {
		out[i] = xmlresp.CommonPrefix{Prefix: p}
	}
	return out
}

func writeObjectHeaders(w http.ResponseWriter, meta *objmeta.ObjectMeta) {
	w.Header().Set("ETag", meta.ETag)
	w.Header().Set("Content-Length", strconv.FormatInt(meta.Size, 10))
	if meta.ContentType != "" {
		w.Header().Set("Content-Type", meta.ContentType)
	}
	if meta.CacheControl != "" {
		w.Header().Set("Cache-Control", meta.CacheControl)
	}
	if meta.ContentDisposition != "" {
		w.Header().Set("Content-Disposition", meta.ContentDisposition)
	}
	for k, v := range meta.UserMeta {
		w.Header().Set(userMetaPrefix+k, v)
	}
}

func writeXML(w http.ResponseWriter, status int, v any) {
	body, err := xmlresp.Encode(v)
	if err != nil {
		writeError(w, nil, s3errors.Wrap(s3errors.CodeInternalError, err))
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	w.Write(body)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var se *s3errors.Error
	if !errors.As(err, &se) {
		se = s3errors.Wrap(s3errors.CodeInternalError, err)
	}
	resource, requestID := "", ""
	if r != nil {
		resource = r.URL.Path
		requestID = middleware.GetReqID(r.Context())
	}
	se = se.WithResource(resource, requestID)

	body, encErr := xmlresp.Encode(xmlresp.ErrorResponse{
		Code:      string(se.Code),
		Message:   se.Message,
		Resource:  se.Resource,
		RequestId: se.RequestID,
	})
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(se.Status())
	if encErr == nil {
		w.Write(body)
	}
}

func parseCompleteBody(r io.Reader) ([]multipart.RequestedPart, error) {
	var body struct {
		Parts []struct {
			PartNumber int    `xml:"PartNumber"`
			ETag       string `xml:"ETag"`
		} `xml:"Part"`
	}
	if err := xml.NewDecoder(r).Decode(&body); err != nil {
		return nil, s3errors.New(s3errors.CodeInvalidArgument, "malformed CompleteMultipartUpload body")
	}
	parts := make([]multipart.RequestedPart, len(body.Parts))
	for i, p := range body.Parts {
		parts[i] = multipart.RequestedPart{Number: p.PartNumber, ETag: strings.Trim(p.ETag, `"`)}
	}
	return parts, nil
}
