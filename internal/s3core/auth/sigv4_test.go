package auth

import (
	"net/url"
	"testing"
)

// TestCanonicalRequestMatchesAWSExample reproduces the AWS SigV4
// "GET object" example from AWS's published test vectors: a GET to
// examplebucket/test.txt, dated 20130524, signed with host, range and
// x-amz-date/x-amz-content-sha256.
func TestCanonicalRequestMatchesAWSExample(t *testing.T) {
	headers := map[string]string{
		"host":                 "examplebucket.s3.amazonaws.com",
		"range":                "bytes=0-9",
		"x-amz-content-sha256": "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		"x-amz-date":           "20130524T000000Z",
	}
	signedHeaders := []string{"host", "range", "x-amz-content-sha256", "x-amz-date"}

	got := CanonicalRequest("GET", "/test.txt", url.Values{}, headers, signedHeaders, headers["x-amz-content-sha256"])

	want := "GET\n" +
		"/test.txt\n" +
		"\n" +
		"host:examplebucket.s3.amazonaws.com\n" +
		"range:bytes=0-9\n" +
		"x-amz-content-sha256:e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855\n" +
		"x-amz-date:20130524T000000Z\n" +
		"\n" +
		"host;range;x-amz-content-sha256;x-amz-date\n" +
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

	if got != want {
		t.Fatalf("canonical request mismatch:\ngot:  %q\nwant: %q", got, want)
	}
}

// TestSignatureMatchesAWSExampleVector carries the same AWS example all
// the way to the final signature, which AWS documents as
// f0e8bdb87c964420e857bd35b5d6ed310bd44f0170aba48dd91039c6036bdb41.
func TestSignatureMatchesAWSExampleVector(t *testing.T) {
	headers := map[string]string{
		"host":                 "examplebucket.s3.amazonaws.com",
		"range":                "bytes=0-9",
		"x-amz-content-sha256": "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		"x-amz-date":           "20130524T000000Z",
	}
	signedHeaders := []string{"host", "range", "x-amz-content-sha256", "x-amz-date"}

	canonical := CanonicalRequest("GET", "/test.txt", url.Values{}, headers, signedHeaders, headers["x-amz-content-sha256"])
	scope := Scope("20130524", "us-east-1", "s3")
	stringToSign := StringToSign("20130524T000000Z", scope, Sha256Hex(canonical))
	key := SigningKey("wJalrXUtnFEMI/K7MDENG/bPxRfiCYEXAMPLEKEY", "20130524", "us-east-1", "s3")

	got := Sign(key, stringToSign)
	want := "f0e8bdb87c964420e857bd35b5d6ed310bd44f0170aba48dd91039c6036bdb41"
	if got != want {
		t.Fatalf("signature mismatch:\ngot:  %s\nwant: %s", got, want)
	}
}

// TestSigningKeyDeterministic checks that the same inputs always derive the
// same signing key (property 8: SigV4 determinism).
func TestSigningKeyDeterministic(t *testing.T) {
	k1 := SigningKey("wJalrXUtnFEMI/K7MDENG/bPxRfiCYEXAMPLEKEY", "20130524", "us-east-1", "s3")
	k2 := SigningKey("wJalrXUtnFEMI/K7MDENG/bPxRfiCYEXAMPLEKEY", "20130524", "us-east-1", "s3")
	if string(k1) != string(k2) {
		t.Fatalf("signing key not deterministic")
	}

	stringToSign := "AWS4-HMAC-SHA256\n20130524T000000Z\n20130524/us-east-1/s3/aws4_request\n" + Sha256Hex("x")
	sig1 := Sign(k1, stringToSign)
	sig2 := Sign(k2, stringToSign)
	if sig1 != sig2 {
		t.Fatalf("signature not deterministic: %q vs %q", sig1, sig2)
	}
}

func TestVerifySignatureRejectsWrongSecret(t *testing.T) {
	stringToSign := "AWS4-HMAC-SHA256\n20130524T000000Z\n20130524/us-east-1/s3/aws4_request\n" + Sha256Hex("payload")
	key := SigningKey("correct-secret", "20130524", "us-east-1", "s3")
	sig := Sign(key, stringToSign)

	if !VerifySignature("correct-secret", "20130524", "us-east-1", "s3", stringToSign, sig) {
		t.Fatalf("expected verification to succeed with correct secret")
	}
	if VerifySignature("wrong-secret", "20130524", "us-east-1", "s3", stringToSign, sig) {
		t.Fatalf("expected verification to fail with wrong secret")
	}
}

func TestRequireSignedHeadersRejectsMissingAmzHeader(t *testing.T) {
	headers := map[string]string{"host": "h", "x-amz-date": "d"}
	if err := requireSignedHeaders(headers, []string{"host"}); err == nil {
		t.Fatalf("expected error when x-amz-date is unsigned")
	}
}

func TestRequireSignedHeadersAcceptsCompleteSet(t *testing.T) {
	headers := map[string]string{"host": "h", "x-amz-date": "d", "content-type": "text/plain"}
	if err := requireSignedHeaders(headers, []string{"host", "x-amz-date", "content-type"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
