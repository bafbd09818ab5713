package commands

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/cern-eos/xrdgojs3/internal/s3core/auth"
	"github.com/cern-eos/xrdgojs3/internal/s3core/router"
	"github.com/cern-eos/xrdgojs3/internal/s3core/store"
)

// server holds every collaborator an S3 HTTP operation needs, the way the
// teacher's pkg/api handler struct bundles its dependencies.
type server struct {
	store *store.Store
	authn *auth.Authenticator
	log   *slog.Logger
}

func newServer(st *store.Store, authn *auth.Authenticator, log *slog.Logger) *server {
	return &server{store: st, authn: authn, log: log}
}

// router builds the declarative route table, per spec.md §4.6. Routes
// whose required-query predicates are a strict superset of a later route's
// (same method and path shape) must be registered first, since
// Router.ServeHTTP takes the first match in registration order.
func (s *server) router() *router.Router {
	rt := router.New(s.notFound)

	// Object-level multipart operations first: each carries query
	// predicates a bare PutObject/GetObject/DeleteObject route lacks, so a
	// plain object route registered first would shadow them.
	rt.Register(router.Route{
		Name: "CreateMultipartUpload", Method: "POST", Shape: router.MatchObject,
		RequiredQueries: []router.KeySpec{router.Present("uploads")},
		Handler:         s.withRoute("CreateMultipartUpload", s.handleCreateMultipartUpload),
	})
	rt.Register(router.Route{
		Name: "UploadPart", Method: "PUT", Shape: router.MatchObject,
		RequiredQueries: []router.KeySpec{router.NonEmpty("partNumber"), router.NonEmpty("uploadId")},
		Handler:         s.withRoute("UploadPart", s.handleUploadPart),
	})
	rt.Register(router.Route{
		Name: "ListParts", Method: "GET", Shape: router.MatchObject,
		RequiredQueries: []router.KeySpec{router.NonEmpty("uploadId")},
		Handler:         s.withRoute("ListParts", s.handleListParts),
	})
	rt.Register(router.Route{
		Name: "CompleteMultipartUpload", Method: "POST", Shape: router.MatchObject,
		RequiredQueries: []router.KeySpec{router.NonEmpty("uploadId")},
		Handler:         s.withRoute("CompleteMultipartUpload", s.handleCompleteMultipartUpload),
	})
	rt.Register(router.Route{
		Name: "AbortMultipartUpload", Method: "DELETE", Shape: router.MatchObject,
		RequiredQueries: []router.KeySpec{router.NonEmpty("uploadId")},
		Handler:         s.withRoute("AbortMultipartUpload", s.handleAbortMultipartUpload),
	})

	// ACL subresources before the bare object/bucket reads they would
	// otherwise be shadowed by.
	rt.Register(router.Route{
		Name: "GetObjectAcl", Method: "GET", Shape: router.MatchObject,
		RequiredQueries: []router.KeySpec{router.Present("acl")},
		Handler:         s.withRoute("GetObjectAcl", s.handleGetAcl),
	})

	// Plain object operations.
	rt.Register(router.Route{
		Name: "PutObject", Method: "PUT", Shape: router.MatchObject,
		Handler: s.withRoute("PutObject", s.handlePutObject),
	})
	rt.Register(router.Route{
		Name: "HeadObject", Method: "HEAD", Shape: router.MatchObject,
		Handler: s.withRoute("HeadObject", s.handleHeadObject),
	})
	rt.Register(router.Route{
		Name: "GetObject", Method: "GET", Shape: router.MatchObject,
		Handler: s.withRoute("GetObject", s.handleGetObject),
	})
	rt.Register(router.Route{
		Name: "DeleteObject", Method: "DELETE", Shape: router.MatchObject,
		Handler: s.withRoute("DeleteObject", s.handleDeleteObject),
	})

	// Bucket-level operations: the subresource-predicated routes (acl,
	// uploads, versions, list-type=2) before the v1 ListObjects fallback
	// they would otherwise be shadowed by.
	rt.Register(router.Route{
		Name: "GetBucketAcl", Method: "GET", Shape: router.MatchBucket,
		RequiredQueries: []router.KeySpec{router.Present("acl")},
		Handler:         s.withRoute("GetBucketAcl", s.handleGetAcl),
	})
	rt.Register(router.Route{
		Name: "ListMultipartUploads", Method: "GET", Shape: router.MatchBucket,
		RequiredQueries: []router.KeySpec{router.Present("uploads")},
		Handler:         s.withRoute("ListMultipartUploads", s.handleListMultipartUploads),
	})
	rt.Register(router.Route{
		Name: "ListObjectVersions", Method: "GET", Shape: router.MatchBucket,
		RequiredQueries: []router.KeySpec{router.Present("versions")},
		Handler:         s.withRoute("ListObjectVersions", s.handleListObjectVersions),
	})
	rt.Register(router.Route{
		Name: "ListObjectsV2", Method: "GET", Shape: router.MatchBucket,
		RequiredQueries: []router.KeySpec{router.Equals("list-type", "2")},
		Handler:         s.withRoute("ListObjectsV2", s.handleListObjectsV2),
	})
	rt.Register(router.Route{
		Name: "ListObjects", Method: "GET", Shape: router.MatchBucket,
		Handler: s.withRoute("ListObjects", s.handleListObjects),
	})
	rt.Register(router.Route{
		Name: "HeadBucket", Method: "HEAD", Shape: router.MatchBucket,
		Handler: s.withRoute("HeadBucket", s.handleHeadBucket),
	})
	rt.Register(router.Route{
		Name: "CreateBucket", Method: "PUT", Shape: router.MatchBucket,
		Handler: s.withRoute("CreateBucket", s.handleCreateBucket),
	})
	rt.Register(router.Route{
		Name: "DeleteBucket", Method: "DELETE", Shape: router.MatchBucket,
		Handler: s.withRoute("DeleteBucket", s.handleDeleteBucket),
	})

	// Service-level operations.
	rt.Register(router.Route{
		Name: "ListBuckets", Method: "GET", Shape: router.MatchNoBucket,
		Handler: s.withRoute("ListBuckets", s.handleListBuckets),
	})

	return rt
}

// routeCtxKey carries a mutable route-name holder through the request
// context: the metrics middleware plants it before routing, the matched
// handler fills it via withRoute, and the middleware reads it back after
// the handler returns. A plain context value set by the handler would be
// invisible to the middleware, since the derived context never propagates
// back up.
type routeCtxKey struct{}

type routeHolder struct{ name string }

func withRouteHolder(r *http.Request) (*http.Request, *routeHolder) {
	h := &routeHolder{name: "unmatched"}
	return r.WithContext(context.WithValue(r.Context(), routeCtxKey{}, h)), h
}

// withRoute records name in the request's route holder (if the metrics
// middleware planted one) before delegating to h.
func (s *server) withRoute(name string, h router.Handler) router.Handler {
	return func(w http.ResponseWriter, r *http.Request, m router.Match) {
		if holder, ok := r.Context().Value(routeCtxKey{}).(*routeHolder); ok {
			holder.name = name
		}
		h(w, r, m)
	}
}
