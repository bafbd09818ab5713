// Package auth implements request authentication for the S3 core: SigV4
// canonicalization/verification (spec.md §4.7) and the bucket directory
// lookup it depends on, grounded on the teacher's pkg/auth.Authenticator
// provider-chain shape (CanHandle, then Authenticate; first match wins).
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// CanonicalRequest builds the canonical request string per spec.md §4.7
// step 2.
func CanonicalRequest(method, path string, query url.Values, headers map[string]string, signedHeaders []string, hashedPayload string) string {
	canonPath := uriEncodePath(path)
	canonQuery := canonicalQuery(query)
	canonHeaders := canonicalHeaders(headers, signedHeaders)
	joinedSignedHeaders := strings.Join(sortedCopy(signedHeaders), ";")

	return strings.Join([]string{
		method,
		canonPath,
		canonQuery,
		canonHeaders,
		joinedSignedHeaders,
		hashedPayload,
	}, "\n")
}

func canonicalQuery(query url.Values) string {
	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		values := append([]string(nil), query[k]...)
		sort.Strings(values)
		for _, v := range values {
			parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(v))
		}
	}
	return strings.Join(parts, "&")
}

func canonicalHeaders(headers map[string]string, signedHeaders []string) string {
	sorted := sortedCopy(signedHeaders)
	var b strings.Builder
	for _, name := range sorted {
		lower := strings.ToLower(name)
		value := squash(strings.TrimSpace(headers[lower]))
		b.WriteString(lower)
		b.WriteByte(':')
		b.WriteString(value)
		b.WriteByte('\n')
	}
	return b.String()
}

func squash(v string) string {
	fields := strings.Fields(v)
	return strings.Join(fields, " ")
}

func sortedCopy(vs []string) []string {
	cp := append([]string(nil), vs...)
	sort.Strings(cp)
	return cp
}

func uriEncodePath(path string) string {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}

// StringToSign builds the SigV4 string-to-sign per spec.md §4.7 step 4.
func StringToSign(isoDate, scope, canonicalRequestHash string) string {
	return strings.Join([]string{
		"AWS4-HMAC-SHA256",
		isoDate,
		scope,
		canonicalRequestHash,
	}, "\n")
}

// Scope builds the "date/region/service/aws4_request" credential scope.
func Scope(date, region, service string) string {
	return strings.Join([]string{date, region, service, "aws4_request"}, "/")
}

func hmacSHA256(key []byte, data string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(data))
	return mac.Sum(nil)
}

// SigningKey derives kSigning per spec.md §4.7 step 5.
func SigningKey(secret, date, region, service string) []byte {
	kDate := hmacSHA256([]byte("AWS4"+secret), date)
	kRegion := hmacSHA256(kDate, region)
	kService := hmacSHA256(kRegion, service)
	return hmacSHA256(kService, "aws4_request")
}

// Sign computes hex(HMAC(kSigning, stringToSign)).
func Sign(signingKey []byte, stringToSign string) string {
	return hex.EncodeToString(hmacSHA256(signingKey, stringToSign))
}

// Sha256Hex returns hex(SHA256(data)), used to hash the canonical request.
func Sha256Hex(data string) string {
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

// VerifySignature recomputes the expected signature and compares it against
// provided in constant time.
func VerifySignature(secret, date, region, service, stringToSign, provided string) bool {
	key := SigningKey(secret, date, region, service)
	expected := Sign(key, stringToSign)
	return hmac.Equal([]byte(expected), []byte(provided))
}

// requireSignedHeaders enforces spec.md §4.7 step 3: SignedHeaders must
// include every x-amz-* header present, "host", and "content-type" if
// present.
func requireSignedHeaders(headers map[string]string, signedHeaders []string) error {
	signed := make(map[string]bool, len(signedHeaders))
	for _, h := range signedHeaders {
		signed[strings.ToLower(h)] = true
	}
	if !signed["host"] {
		return fmt.Errorf("signed headers must include host")
	}
	for name := range headers {
		if strings.HasPrefix(name, "x-amz-") && !signed[name] {
			return fmt.Errorf("signed headers must include %s", name)
		}
	}
	if _, hasCT := headers["content-type"]; hasCT && !signed["content-type"] {
		return fmt.Errorf("signed headers must include content-type")
	}
	return nil
}
