package reqctx

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cern-eos/xrdgojs3/internal/s3core/router"
)

func TestParseClassifiesSignedAuth(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/bucket/key", nil)
	r.Header.Set("Authorization", "AWS4-HMAC-SHA256 Credential=AKIDEXAMPLE/20130524/us-east-1/s3/aws4_request, SignedHeaders=host;x-amz-date, Signature=deadbeef")
	r.Header.Set("X-Amz-Content-Sha256", "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855")

	req, err := Parse(r, router.Match{Bucket: "bucket", Key: "key"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if req.AuthType != AuthSigned {
		t.Fatalf("auth type = %v, want AuthSigned", req.AuthType)
	}
	if req.SigV4 == nil || req.SigV4.AccessKey != "AKIDEXAMPLE" || req.SigV4.Region != "us-east-1" {
		t.Fatalf("sigv4 = %+v", req.SigV4)
	}
}

func TestParseClassifiesStreamingSigned(t *testing.T) {
	r := httptest.NewRequest(http.MethodPut, "/bucket/key", nil)
	r.Header.Set("Authorization", "AWS4-HMAC-SHA256 Credential=AK/20130524/us-east-1/s3/aws4_request, SignedHeaders=host, Signature=abc")
	r.Header.Set("X-Amz-Content-Sha256", "STREAMING-AWS4-HMAC-SHA256-PAYLOAD")

	req, err := Parse(r, router.Match{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if req.AuthType != AuthStreamingSigned {
		t.Fatalf("auth type = %v, want AuthStreamingSigned", req.AuthType)
	}
}

func TestParseClassifiesPresigned(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/bucket/key?X-Amz-Algorithm=AWS4-HMAC-SHA256&X-Amz-Signature=x", nil)

	req, err := Parse(r, router.Match{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if req.AuthType != AuthPresigned {
		t.Fatalf("auth type = %v, want AuthPresigned", req.AuthType)
	}
}

func TestParseClassifiesUnknown(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/bucket/key", nil)
	req, err := Parse(r, router.Match{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if req.AuthType != AuthUnknown {
		t.Fatalf("auth type = %v, want AuthUnknown", req.AuthType)
	}
}

func TestParseExtractsSubresource(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/bucket/key?uploadId=abc123&partNumber=1", nil)
	req, err := Parse(r, router.Match{Bucket: "bucket", Key: "key"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if req.Subresource != "uploadId" {
		t.Fatalf("subresource = %q, want uploadId", req.Subresource)
	}
}

func TestParseRejectsMalformedContentLength(t *testing.T) {
	r := httptest.NewRequest(http.MethodPut, "/bucket/key", nil)
	r.Header.Set("Content-Length", "not-a-number")
	if _, err := Parse(r, router.Match{}); err == nil {
		t.Fatalf("expected error for malformed Content-Length")
	}
}

func TestParseSigV4RejectsMissingAws4Request(t *testing.T) {
	_, err := ParseSigV4("AWS4-HMAC-SHA256 Credential=AK/20130524/us-east-1/s3/bogus, SignedHeaders=host, Signature=x")
	if err == nil {
		t.Fatalf("expected error for malformed credential scope")
	}
}
