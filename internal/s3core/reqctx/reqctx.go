// Package reqctx parses an inbound HTTP request into the typed fields the
// rest of the S3 core needs, per spec.md §4.7's request-context surface.
package reqctx

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	s3errors "github.com/cern-eos/xrdgojs3/internal/s3core/errors"
	"github.com/cern-eos/xrdgojs3/internal/s3core/router"
)

// AuthType classifies how a request claims to be authenticated, per
// spec.md §4.7.
type AuthType int

const (
	AuthUnknown AuthType = iota
	AuthSigned
	AuthStreamingSigned
	AuthPresigned
)

// SigV4 holds the parsed fields of an "Authorization: AWS4-HMAC-SHA256 ..."
// header value.
type SigV4 struct {
	AccessKey     string
	Date          string // yyyymmdd
	Region        string
	Service       string
	SignedHeaders []string
	Signature     string
}

// Request is the parsed, typed view of one inbound S3 HTTP request.
type Request struct {
	Raw *http.Request

	Bucket      string
	Key         string
	Subresource string // e.g. "acl", "uploadId", "list-type" — first recognized subresource query key

	ContentLength    int64
	ContentMD5       string
	AmzContentSHA256 string
	Date             string // x-amz-date or Date header, verbatim
	AuthType         AuthType
	SigV4            *SigV4 // non-nil only when AuthType is Signed or StreamingSigned
}

// subresourceKeys lists query keys recognized as S3 subresource markers, in
// the order they should be checked (first hit wins).
var subresourceKeys = []string{"acl", "uploadId", "uploads", "list-type", "delete", "tagging", "versioning"}

// Parse builds a Request from r and m (the router's bucket/key match).
// Validation failures map to *s3errors.Error values (InvalidArgument for a
// malformed Content-Length).
func Parse(r *http.Request, m router.Match) (*Request, error) {
	req := &Request{
		Raw:              r,
		Bucket:           m.Bucket,
		Key:              m.Key,
		ContentMD5:       r.Header.Get("Content-MD5"),
		AmzContentSHA256: r.Header.Get("X-Amz-Content-Sha256"),
		Date:             firstNonEmpty(r.Header.Get("X-Amz-Date"), r.Header.Get("Date")),
	}

	if cl := r.Header.Get("Content-Length"); cl != "" {
		n, err := strconv.ParseInt(cl, 10, 64)
		if err != nil {
			return nil, s3errors.New(s3errors.CodeInvalidArgument, "malformed Content-Length")
		}
		req.ContentLength = n
	} else if r.ContentLength > 0 {
		req.ContentLength = r.ContentLength
	}

	query := r.URL.Query()
	for _, key := range subresourceKeys {
		if _, ok := query[key]; ok {
			req.Subresource = key
			break
		}
	}

	req.AuthType, req.SigV4 = classifyAuth(r)

	return req, nil
}

func classifyAuth(r *http.Request) (AuthType, *SigV4) {
	if r.URL.Query().Get("X-Amz-Algorithm") == "AWS4-HMAC-SHA256" {
		return AuthPresigned, nil
	}

	authz := r.Header.Get("Authorization")
	sha := r.Header.Get("X-Amz-Content-Sha256")
	streaming := sha == "STREAMING-AWS4-HMAC-SHA256-PAYLOAD" ||
		sha == "STREAMING-AWS4-HMAC-SHA256-PAYLOAD-TRAILER" ||
		sha == "STREAMING-UNSIGNED-PAYLOAD-TRAILER"

	if strings.HasPrefix(authz, "AWS4-HMAC-SHA256 ") {
		sig, err := ParseSigV4(authz)
		if err != nil {
			return AuthUnknown, nil
		}
		if streaming {
			return AuthStreamingSigned, sig
		}
		return AuthSigned, sig
	}

	return AuthUnknown, nil
}

// ParseSigV4 parses an "AWS4-HMAC-SHA256 Credential=..., SignedHeaders=...,
// Signature=..." header value per spec.md §4.7 step 1.
func ParseSigV4(header string) (*SigV4, error) {
	const prefix = "AWS4-HMAC-SHA256 "
	if !strings.HasPrefix(header, prefix) {
		return nil, s3errors.New(s3errors.CodeSignatureDoesNotMatch, "unsupported authorization scheme")
	}
	rest := strings.TrimPrefix(header, prefix)

	fields := map[string]string{}
	for _, part := range strings.Split(rest, ",") {
		part = strings.TrimSpace(part)
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		fields[kv[0]] = kv[1]
	}

	cred, ok := fields["Credential"]
	if !ok {
		return nil, s3errors.New(s3errors.CodeSignatureDoesNotMatch, "missing Credential")
	}
	credParts := strings.Split(cred, "/")
	if len(credParts) != 5 || credParts[4] != "aws4_request" {
		return nil, s3errors.New(s3errors.CodeSignatureDoesNotMatch, "malformed credential scope")
	}

	signedHeaders, ok := fields["SignedHeaders"]
	if !ok {
		return nil, s3errors.New(s3errors.CodeSignatureDoesNotMatch, "missing SignedHeaders")
	}
	signature, ok := fields["Signature"]
	if !ok {
		return nil, s3errors.New(s3errors.CodeSignatureDoesNotMatch, "missing Signature")
	}

	return &SigV4{
		AccessKey:     credParts[0],
		Date:          credParts[1],
		Region:        credParts[2],
		Service:       credParts[3],
		SignedHeaders: strings.Split(signedHeaders, ";"),
		Signature:     signature,
	}, nil
}

// ParsedDate parses req.Date as an ISO8601 basic-format timestamp
// ("20060102T150405Z"), as used by x-amz-date.
func (req *Request) ParsedDate() (time.Time, error) {
	return time.Parse("20060102T150405Z", req.Date)
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if v != "" {
			return v
		}
	}
	return ""
}
