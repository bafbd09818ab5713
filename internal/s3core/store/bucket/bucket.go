// Package bucket implements bucket create/delete, spec.md §4.5.4: backing
// directory layout under the owner's filesystem identity, plus the two
// auxiliary trees (an owner-keyed metadata directory and the multipart
// scratch root) the original XRootD S3 gateway keeps alongside the
// backing bucket directory.
package bucket

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/cern-eos/xrdgojs3/internal/s3core/fsid"
)

// nameRe is spec.md §4.5.4's bucket-name regex.
var nameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

// ValidName reports whether name is an acceptable bucket name.
func ValidName(name string) bool { return nameRe.MatchString(name) }

// ErrInvalidName is returned by Create for a name ValidName rejects.
var ErrInvalidName = errors.New("bucket: invalid name")

// ErrNotEmpty is returned by Delete for a non-empty bucket.
var ErrNotEmpty = errors.New("bucket: not empty")

// Owner identifies a bucket's filesystem-identity principal.
type Owner struct {
	ID          string
	DisplayName string
	UID         int
	GID         int
}

// ResolveOwner looks up id as an OS account name and resolves it to POSIX
// ids, per spec.md §3's "Owner is resolved to POSIX ids for filesystem-id
// switching on every operation." displayName defaults to id when empty.
func ResolveOwner(id, displayName string) (Owner, error) {
	u, err := user.Lookup(id)
	if err != nil {
		return Owner{}, fmt.Errorf("bucket: resolve owner %q: %w", id, err)
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return Owner{}, fmt.Errorf("bucket: owner %q has non-numeric uid %q", id, u.Uid)
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return Owner{}, fmt.Errorf("bucket: owner %q has non-numeric gid %q", id, u.Gid)
	}
	if displayName == "" {
		displayName = id
	}
	return Owner{ID: id, DisplayName: displayName, UID: uid, GID: gid}, nil
}

// Bucket is the in-memory view of one bucket, per spec.md §3.
type Bucket struct {
	Name  string
	Owner Owner
	Path  string
}

// Layout locates the three directory trees a bucket touches: the backing
// POSIX-like namespace root (VMP), the owner-keyed metadata directory
// root, and the multipart scratch root.
type Layout struct {
	VMP         string
	UserMapRoot string
	MTPURoot    string
}

// BucketPath returns the backing directory for name.
func (l Layout) BucketPath(name string) string { return filepath.Join(l.VMP, name) }

// UserMapPath returns the owner-keyed metadata directory for (owner, name).
func (l Layout) UserMapPath(owner, name string) string {
	return filepath.Join(l.UserMapRoot, owner, name)
}

// MultipartRoot returns the multipart scratch directory for name.
func (l Layout) MultipartRoot(name string) string { return filepath.Join(l.MTPURoot, name) }

// Create materializes a bucket's three directory trees. The backing
// directory is created under the owner's filesystem identity (§4.5.4:
// "Create the backing bucket directory under the owner's filesystem
// identity"); the two auxiliary trees are service-owned bookkeeping and
// are created under the calling process's own identity.
func Create(l Layout, b Bucket) error {
	if !ValidName(b.Name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, b.Name)
	}

	if err := os.MkdirAll(l.UserMapPath(b.Owner.ID, b.Name), 0o755); err != nil {
		return fmt.Errorf("bucket: create user-map dir: %w", err)
	}
	if err := os.MkdirAll(l.MultipartRoot(b.Name), 0o755); err != nil {
		return fmt.Errorf("bucket: create multipart root: %w", err)
	}

	err := fsid.Do(b.Owner.UID, b.Owner.GID, func() error {
		return os.MkdirAll(l.BucketPath(b.Name), 0o755)
	})
	if err != nil {
		return fmt.Errorf("bucket: create backing dir: %w", err)
	}
	return nil
}

// Delete removes all three of a bucket's directory trees. The backing
// directory's empty check runs under the owner's filesystem identity, per
// §4.5.4 ("refuse non-empty buckets, checked under the owner's filesystem
// identity").
func Delete(l Layout, b Bucket) error {
	bucketPath := l.BucketPath(b.Name)

	err := fsid.Do(b.Owner.UID, b.Owner.GID, func() error {
		empty, err := isEmptyDir(bucketPath)
		if err != nil {
			return err
		}
		if !empty {
			return ErrNotEmpty
		}
		return os.Remove(bucketPath)
	})
	if err != nil {
		return err
	}

	if err := os.RemoveAll(l.MultipartRoot(b.Name)); err != nil {
		return fmt.Errorf("bucket: remove multipart root: %w", err)
	}
	if err := os.RemoveAll(l.UserMapPath(b.Owner.ID, b.Name)); err != nil {
		return fmt.Errorf("bucket: remove user-map dir: %w", err)
	}
	return nil
}

func isEmptyDir(path string) (bool, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	defer f.Close()

	_, err = f.Readdirnames(1)
	if errors.Is(err, io.EOF) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return false, nil
}
