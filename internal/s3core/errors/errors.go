// Package errors maps S3 error codes to HTTP status codes and XML-ready
// error bodies, per spec.md §6's S3ErrorMap table.
package errors

import "fmt"

// Code is an S3 error code, e.g. "NoSuchBucket".
type Code string

const (
	CodeNoSuchBucket            Code = "NoSuchBucket"
	CodeBucketAlreadyExists     Code = "BucketAlreadyExists"
	CodeBucketAlreadyOwnedByYou Code = "BucketAlreadyOwnedByYou"
	CodeBucketNotEmpty          Code = "BucketNotEmpty"
	CodeAccessDenied            Code = "AccessDenied"
	CodeSignatureDoesNotMatch   Code = "SignatureDoesNotMatch"
	CodeInvalidAccessKeyId      Code = "InvalidAccessKeyId"
	CodeBadDigest               Code = "BadDigest"
	CodePreconditionFailed      Code = "PreconditionFailed"
	CodeNotModified             Code = "NotModified"
	CodeInvalidRange            Code = "InvalidRange"
	CodeEntityTooLarge          Code = "EntityTooLarge"
	CodeMissingContentLength    Code = "MissingContentLength"
	CodeIncompleteBody          Code = "IncompleteBody"
	CodeInternalError           Code = "InternalError"
	CodeNotImplemented          Code = "NotImplemented"
	CodeNoSuchKey               Code = "NoSuchKey"
	CodeNoSuchUpload            Code = "NoSuchUpload"
	CodeInvalidPart             Code = "InvalidPart"
	CodeInvalidPartOrder        Code = "InvalidPartOrder"
	CodeInvalidArgument         Code = "InvalidArgument"
	// CodeXAmzContentSHA256Mismatch is returned when the x-amz-content-sha256
	// header does not match the payload's actual SHA-256 (spec.md §4.5.1
	// step 5).
	CodeXAmzContentSHA256Mismatch Code = "XAmzContentSHA256Mismatch"
	// CodeObjectExistInObjectPath is returned when a PUT's key would need
	// to create a directory component at a path segment that is already a
	// regular object (spec.md §4.5.1's "object exists in object's path").
	CodeObjectExistInObjectPath Code = "XrdS3ObjectExistInObjectPath"
	// CodeObjectExistAsDir is returned when a PUT's key collides with an
	// existing directory component (spec.md §4.5.1's "object exists as
	// dir").
	CodeObjectExistAsDir Code = "XrdS3ObjectExistAsDir"
)

// statusByCode is the representative mapping table from spec.md §6.
var statusByCode = map[Code]int{
	CodeNoSuchBucket:              404,
	CodeBucketAlreadyExists:       409,
	CodeBucketAlreadyOwnedByYou:   409,
	CodeBucketNotEmpty:            409,
	CodeAccessDenied:              403,
	CodeSignatureDoesNotMatch:     403,
	CodeInvalidAccessKeyId:        403,
	CodeBadDigest:                 400,
	CodePreconditionFailed:        412,
	CodeNotModified:               304,
	CodeInvalidRange:              416,
	CodeEntityTooLarge:            400,
	CodeMissingContentLength:      411,
	CodeIncompleteBody:            400,
	CodeInternalError:             500,
	CodeNotImplemented:            501,
	CodeNoSuchKey:                 404,
	CodeNoSuchUpload:              404,
	CodeInvalidPart:               400,
	CodeInvalidPartOrder:          400,
	CodeInvalidArgument:           400,
	CodeXAmzContentSHA256Mismatch: 400,
	CodeObjectExistInObjectPath:   409,
	CodeObjectExistAsDir:          409,
}

// Error is a request-scoped S3 error: a code, an HTTP status, a message,
// and the resource/request-id pair the XML error body needs.
type Error struct {
	Code      Code
	Message   string
	Resource  string
	RequestID string
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Status returns the HTTP status code for e.Code, defaulting to 500 for
// codes not present in the S3ErrorMap table (an unmapped code is always a
// programmer error, never client input).
func (e *Error) Status() int {
	if s, ok := statusByCode[e.Code]; ok {
		return s
	}
	return 500
}

// New builds an *Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap builds an *Error from an underlying cause, defaulting Message to
// cause's text.
func Wrap(code Code, cause error) *Error {
	return &Error{Code: code, Message: cause.Error(), Cause: cause}
}

// WithResource returns a copy of e carrying resource/request-id, used when
// handing the error to the xmlresp encoder.
func (e *Error) WithResource(resource, requestID string) *Error {
	cp := *e
	cp.Resource = resource
	cp.RequestID = requestID
	return &cp
}

// StatusFor is a convenience for callers holding only a Code.
func StatusFor(code Code) int {
	if s, ok := statusByCode[code]; ok {
		return s
	}
	return 500
}
