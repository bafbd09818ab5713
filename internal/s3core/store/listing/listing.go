// Package listing implements the shared ListObjects/ListObjectsV2/
// ListObjectVersions traversal algorithm, spec.md §4.5.3: a deque-driven,
// depth-first, sorted walk that groups delimiter-bounded subtrees into
// common prefixes without listing their contents.
package listing

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Object is one emitted listing entry.
type Object struct {
	Key     string
	ETag    string
	Size    int64
	ModTime time.Time
	Owner   string
}

// MetaFunc resolves the listing metadata (etag, mtime, size, owner) for
// one regular-file entry. Returning an error skips the entry (treated the
// same as a file that vanished mid-walk, e.g. raced by the Cleaner).
type MetaFunc func(relKey, absPath string) (Object, error)

// Options configures one List call.
type Options struct {
	Root      string // backing directory the bucket is rooted at
	Prefix    string
	Delimiter string
	Marker    string // continuation marker; entries <= Marker are skipped
	MaxKeys   int
	Meta      MetaFunc
}

// Result is one page of a listing.
type Result struct {
	IsTruncated    bool
	NextMarker     string
	Objects        []Object
	CommonPrefixes []string
}

type queueItem struct {
	relDir string
	name   string
}

// List walks opts.Root per spec.md §4.5.3 and returns one page of results.
func List(opts Options) (Result, error) {
	if opts.MaxKeys <= 0 {
		opts.MaxKeys = 1000
	}

	basedir := opts.Prefix
	if idx := strings.LastIndex(opts.Prefix, "/"); idx >= 0 {
		basedir = opts.Prefix[:idx]
	} else {
		basedir = ""
	}

	names, err := sortedDirNames(filepath.Join(opts.Root, basedir))
	if os.IsNotExist(err) {
		return Result{}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("listing: read %s: %w", basedir, err)
	}

	deque := make([]queueItem, 0, len(names))
	for _, n := range names {
		deque = append(deque, queueItem{relDir: basedir, name: n})
	}

	var res Result
	var lastEmitted string
	seenPrefix := make(map[string]bool)

	for len(deque) > 0 {
		cur := deque[0]
		deque = deque[1:]

		if cur.name == "." || cur.name == ".." {
			continue
		}

		relKey := joinRel(cur.relDir, cur.name)
		if !strings.HasPrefix(relKey, opts.Prefix) {
			continue
		}
		// The marker is exclusive: everything up to and including it was
		// returned on an earlier page. A directory that is an ancestor of
		// the marker still has to be descended into, so only its own
		// emission is suppressed, not its subtree.
		if opts.Marker != "" && relKey <= opts.Marker && !strings.HasPrefix(opts.Marker, relKey+"/") {
			continue
		}

		if len(res.Objects)+len(res.CommonPrefixes) >= opts.MaxKeys {
			res.IsTruncated = true
			res.NextMarker = lastEmitted
			return res, nil
		}

		absPath := filepath.Join(opts.Root, relKey)
		info, statErr := os.Lstat(absPath)
		if statErr != nil {
			continue
		}

		suffix := relKey[len(opts.Prefix):]
		if opts.Delimiter != "" {
			if idx := strings.Index(suffix, opts.Delimiter); idx >= 0 {
				cp := opts.Prefix + suffix[:idx+len(opts.Delimiter)]
				if cp > opts.Marker && !seenPrefix[cp] {
					seenPrefix[cp] = true
					res.CommonPrefixes = append(res.CommonPrefixes, cp)
					lastEmitted = cp
				}
				continue
			}
		}

		if info.IsDir() {
			if opts.Delimiter == "/" {
				cp := relKey + "/"
				if cp > opts.Marker && !seenPrefix[cp] {
					seenPrefix[cp] = true
					res.CommonPrefixes = append(res.CommonPrefixes, cp)
					lastEmitted = cp
				}
				continue
			}

			children, err := sortedDirNames(absPath)
			if err != nil {
				continue
			}
			front := make([]queueItem, 0, len(children))
			for _, c := range children {
				front = append(front, queueItem{relDir: relKey, name: c})
			}
			deque = append(front, deque...)
			continue
		}

		obj, err := opts.Meta(relKey, absPath)
		if err != nil {
			continue
		}
		res.Objects = append(res.Objects, obj)
		lastEmitted = relKey
	}

	return res, nil
}

func joinRel(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}

func sortedDirNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	sort.Strings(names)
	return names, nil
}
