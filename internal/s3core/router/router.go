// Package router implements the declarative (method, path-shape, required
// query keys, required headers) route matcher described in spec.md §4.6.
//
// This is deliberately distinct from chi's trie-based routing (used by the
// teacher's pkg/api.NewRouter for the control-plane REST API): S3's
// operation selection depends on query-string and header predicates that a
// path trie cannot express (e.g. "GET /bucket/key" means different things
// depending on whether "?uploadId=" or "?acl" is present). The router is
// mounted as a single catch-all handler under chi, which still supplies
// the outer transport concerns — request ID, real IP, recovery, timeouts —
// exactly as the teacher's pkg/api/router.go does.
package router

import (
	"net/http"
	"strings"
)

// PathShape classifies the bucket/key structure of a request path.
type PathShape int

const (
	// MatchNoBucket matches "/" (service-level operations, e.g. ListBuckets).
	MatchNoBucket PathShape = iota
	// MatchBucket matches "/{bucket}" or "/{bucket}/" (bucket-level operations).
	MatchBucket
	// MatchObject matches "/{bucket}/{key...}" (object-level operations).
	MatchObject
)

// KeySpec describes one required query or header predicate, per spec.md
// §4.6's four-case table.
type KeySpec struct {
	Key     string
	Pattern string // "" = present (any value), "+" = present non-empty, "*" = optional, else literal match
}

// Present is the zero-value convenience constructor for "(k, \"\")".
func Present(key string) KeySpec { return KeySpec{Key: key} }

// NonEmpty constructs a "(k, \"+\")" predicate.
func NonEmpty(key string) KeySpec { return KeySpec{Key: key, Pattern: "+"} }

// Optional constructs a "(k, \"*\")" predicate.
func Optional(key string) KeySpec { return KeySpec{Key: key, Pattern: "*"} }

// Equals constructs a "(k, literal)" predicate. An empty literal is the
// "(k, \"\")" case and matches any present value, exactly like Present.
func Equals(key, value string) KeySpec { return KeySpec{Key: key, Pattern: value} }

// Match carries the path-derived bucket/key for a matched route.
type Match struct {
	Bucket string
	Key    string
}

// Handler serves a matched request.
type Handler func(w http.ResponseWriter, r *http.Request, m Match)

// Route is one (method, shape, required predicates) -> handler binding.
type Route struct {
	Name            string
	Method          string
	Shape           PathShape
	RequiredQueries []KeySpec
	RequiredHeaders []KeySpec
	Handler         Handler
}

// Router tries routes in registration order; the first whose predicates
// all match wins. Registration order therefore encodes specificity —
// register subresource routes (ACL, multipart) before the bare
// object/bucket fallbacks they would otherwise be shadowed by.
type Router struct {
	routes   []Route
	notFound Handler
}

// New returns an empty Router. notFound is invoked when no route matches.
func New(notFound Handler) *Router {
	return &Router{notFound: notFound}
}

// Register appends route to the match list.
func (rt *Router) Register(route Route) {
	rt.routes = append(rt.routes, route)
}

// ServeHTTP implements http.Handler, matching spec.md §4.6's semantics.
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	shape, bucket, key, ok := parsePathShape(r.URL.Path)
	if !ok {
		rt.notFound(w, r, Match{})
		return
	}
	match := Match{Bucket: bucket, Key: key}

	for _, route := range rt.routes {
		if route.Method != r.Method {
			continue
		}
		if route.Shape != shape {
			continue
		}
		if !matchQueries(route.RequiredQueries, r.URL.Query()) {
			continue
		}
		if !matchHeaders(route.RequiredHeaders, r.Header) {
			continue
		}
		route.Handler(w, r, match)
		return
	}
	rt.notFound(w, r, match)
}

func parsePathShape(path string) (shape PathShape, bucket, key string, ok bool) {
	trimmed := strings.TrimPrefix(path, "/")
	if trimmed == "" {
		return MatchNoBucket, "", "", true
	}

	parts := strings.SplitN(trimmed, "/", 2)
	bucket = parts[0]
	if bucket == "" {
		return MatchNoBucket, "", "", false
	}

	if len(parts) == 1 || parts[1] == "" {
		return MatchBucket, bucket, "", true
	}
	return MatchObject, bucket, parts[1], true
}

func matchQueries(specs []KeySpec, values map[string][]string) bool {
	for _, spec := range specs {
		vs, present := values[spec.Key]
		if !specMatches(spec, present, firstOrEmpty(vs)) {
			return false
		}
	}
	return true
}

func matchHeaders(specs []KeySpec, header http.Header) bool {
	for _, spec := range specs {
		v := header.Get(spec.Key)
		_, present := header[http.CanonicalHeaderKey(spec.Key)]
		if !specMatches(spec, present, v) {
			return false
		}
	}
	return true
}

func specMatches(spec KeySpec, present bool, value string) bool {
	switch spec.Pattern {
	case "*":
		return true
	case "":
		return present
	case "+":
		return present && value != ""
	default:
		return present && value == spec.Pattern
	}
}

func firstOrEmpty(vs []string) string {
	if len(vs) == 0 {
		return ""
	}
	return vs[0]
}
