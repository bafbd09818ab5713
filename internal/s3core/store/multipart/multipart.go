// Package multipart implements the multipart-upload state machine of
// spec.md §4.5.2: Create -> UploadPart* -> Complete|Abort, with its
// "optimized" path (parts land directly at their final offset inside a
// pre-allocated destination file, so completion can be a rename) and its
// "fallback" path (parts are separate files, concatenated at completion).
package multipart

import (
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/cern-eos/xrdgojs3/internal/s3core/fsid"
	"github.com/cern-eos/xrdgojs3/internal/s3core/store/ingest"
	"github.com/cern-eos/xrdgojs3/internal/s3core/store/objmeta"
)

var (
	// ErrNotFound is returned for an unknown upload id.
	ErrNotFound = errors.New("multipart: upload not found")
	// ErrKeyMismatch is returned when the request's key doesn't match the
	// upload's recorded key.
	ErrKeyMismatch = errors.New("multipart: key does not match upload")
	// ErrInvalidPartOrder is returned by Complete for a non-ascending part list.
	ErrInvalidPartOrder = errors.New("multipart: parts must be strictly ascending by number")
	// ErrInvalidPart is returned by Complete when a requested part is
	// missing or its ETag disagrees with what was uploaded.
	ErrInvalidPart = errors.New("multipart: invalid part")
	// ErrTooManyParts is returned by Complete above the 10000-part cap.
	ErrTooManyParts = errors.New("multipart: more than 10000 parts")
)

// maxParts is S3's per-upload part count cap.
const maxParts = 10000

// maxPartSize bounds one fallback-path part, matching the optimized path's
// implicit cap (no single part may exceed what a sane backing filesystem
// comfortably buffers as a scratch file).
const maxPartSize = 5 << 30

// Part is one uploaded part, as returned by ListParts.
type Part struct {
	Number int
	Size   int64
	ETag   string
}

// RequestedPart is one entry of a CompleteMultipartUpload request body.
type RequestedPart struct {
	Number int
	ETag   string
}

// Manager owns the on-disk scratch layout and metadata store for every
// multipart upload of one S3 core deployment.
type Manager struct {
	mtpuRoot string // ⟨mtpu⟩ root; per-bucket subdirectories live under it
	meta     *objmeta.Store

	mu    sync.Mutex
	locks map[string]*sync.Mutex // keyed by bucket+"/"+uploadID
}

// New returns a Manager rooted at mtpuRoot, backed by meta.
func New(mtpuRoot string, meta *objmeta.Store) *Manager {
	return &Manager{mtpuRoot: mtpuRoot, meta: meta, locks: make(map[string]*sync.Mutex)}
}

func (m *Manager) lockFor(bucket, uploadID string) func() {
	key := bucket + "/" + uploadID
	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	m.mu.Unlock()
	l.Lock()
	return l.Unlock
}

func (m *Manager) uploadDir(bucket, uploadID string) string {
	return filepath.Join(m.mtpuRoot, bucket, uploadID)
}

func newUploadID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("multipart: generate upload id: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Create starts a new upload for (bucket, key), pre-allocating the
// optimized-path scratch file under the owner's filesystem identity so a
// later rename-to-final needs no ownership fixup.
func (m *Manager) Create(bucket, key string, uid, gid int) (*objmeta.UploadMeta, error) {
	uploadID, err := newUploadID()
	if err != nil {
		return nil, err
	}

	dir := m.uploadDir(bucket, uploadID)
	tmp := filepath.Join(dir, "optimized.tmp")
	err = fsid.Do(uid, gid, func() error {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		return f.Close()
	})
	if err != nil {
		return nil, fmt.Errorf("multipart: allocate scratch: %w", err)
	}

	meta := &objmeta.UploadMeta{
		Bucket:        bucket,
		Key:           key,
		UploadID:      uploadID,
		Optimized:     true,
		Tmp:           tmp,
		UID:           uid,
		GID:           gid,
		Parts:         map[int]objmeta.PartInfo{},
		FallbackParts: map[int]string{},
	}
	if err := m.meta.PutUpload(meta); err != nil {
		return nil, err
	}
	return meta, nil
}

// UploadPart stores one part's body, returning its ETag (a bare hex MD5,
// unquoted — the HTTP layer wraps it in the S3 quoted-ETag form) and
// whether it landed on the optimized in-place path. chunked signals a
// chunked transfer encoding, which unconditionally disables the optimized
// path (no advance Content-Length to place the part correctly).
func (m *Manager) UploadPart(bucket, uploadID, key string, partNumber int, body io.Reader, size int64, chunked bool) (etag string, optimized bool, err error) {
	meta, err := m.meta.GetUpload(bucket, uploadID)
	if errors.Is(err, objmeta.ErrNotFound) {
		return "", false, ErrNotFound
	}
	if err != nil {
		return "", false, err
	}
	if meta.Key != key {
		return "", false, ErrKeyMismatch
	}

	if chunked && meta.Optimized {
		if err := m.disableOptimized(bucket, uploadID); err != nil {
			return "", false, err
		}
		meta.Optimized = false
	}

	if meta.Optimized {
		etag, accepted, err := m.uploadPartOptimized(bucket, uploadID, partNumber, body, size)
		if err != nil {
			return "", false, err
		}
		if accepted {
			return etag, true, nil
		}
		if err := m.disableOptimized(bucket, uploadID); err != nil {
			return "", false, err
		}
	}

	etag, err = m.uploadPartFallback(bucket, uploadID, partNumber, body)
	return etag, false, err
}

func (m *Manager) disableOptimized(bucket, uploadID string) error {
	_, err := m.meta.MutateUpload(bucket, uploadID, func(u *objmeta.UploadMeta) error {
		u.Optimized = false
		return nil
	})
	return err
}

// keepOptimized decides whether partNumber/size can still land at its
// computed offset inside the pre-allocated destination file: the first
// part fixes the upload's part size; later parts must match it exactly
// except for one allowed smaller tail part, which must stay the
// highest-numbered part — anything landing after a short part would leave
// a hole of garbage bytes in the pre-allocated file.
func keepOptimized(meta *objmeta.UploadMeta, partNumber int, size int64) bool {
	if _, exists := meta.Parts[partNumber]; exists {
		return false
	}
	if meta.PartSize == 0 {
		// Only part 1 may establish the part size: every other part's
		// offset depends on a size that is not known yet.
		return partNumber == 1
	}
	for n, p := range meta.Parts {
		if p.Size != meta.PartSize && partNumber > n {
			return false
		}
	}
	if size == meta.PartSize {
		return true
	}
	if size > meta.PartSize {
		return false
	}
	// A smaller size is only acceptable as the upload's one tail part, and
	// only if no higher-numbered part has already landed.
	if meta.LastPartSize != meta.PartSize {
		return false
	}
	for n := range meta.Parts {
		if n > partNumber {
			return false
		}
	}
	return true
}

func (m *Manager) uploadPartOptimized(bucket, uploadID string, partNumber int, body io.Reader, size int64) (etag string, accepted bool, err error) {
	unlock := m.lockFor(bucket, uploadID)
	defer unlock()

	meta, err := m.meta.GetUpload(bucket, uploadID)
	if err != nil {
		return "", false, err
	}
	if !meta.Optimized || !keepOptimized(meta, partNumber, size) {
		return "", false, nil
	}

	// keepOptimized guarantees the size-establishing part is number 1, so
	// PartSize==0 only ever coincides with offset 0.
	offset := int64(partNumber-1) * meta.PartSize

	var result ingest.Result
	err = fsid.Do(meta.UID, meta.GID, func() error {
		f, err := os.OpenFile(meta.Tmp, os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("multipart: open scratch: %w", err)
		}
		defer f.Close()

		result, err = ingest.Stream(&offsetWriter{f: f, offset: offset}, body)
		if err != nil {
			return fmt.Errorf("multipart: write part %d: %w", partNumber, err)
		}
		return nil
	})
	if err != nil {
		return "", false, err
	}

	if meta.PartSize == 0 {
		meta.PartSize = size
		meta.LastPartSize = size
	} else if size != meta.PartSize {
		meta.LastPartSize = size
	}
	meta.Parts[partNumber] = objmeta.PartInfo{Start: offset, Size: size, ETag: result.MD5Hex}
	if err := m.meta.PutUpload(meta); err != nil {
		return "", false, err
	}
	return result.MD5Hex, true, nil
}

func (m *Manager) uploadPartFallback(bucket, uploadID string, partNumber int, body io.Reader) (string, error) {
	unlock := m.lockFor(bucket, uploadID)
	defer unlock()

	meta, err := m.meta.GetUpload(bucket, uploadID)
	if err != nil {
		return "", err
	}

	dest := filepath.Join(m.uploadDir(bucket, uploadID), strconv.Itoa(partNumber))
	var result ingest.Result
	err = fsid.Do(meta.UID, meta.GID, func() error {
		tmp, res, err := ingest.ToTemp(dest, body, maxPartSize)
		if err != nil {
			return err
		}
		if err := os.Rename(tmp, dest); err != nil {
			os.Remove(tmp)
			return fmt.Errorf("multipart: commit part %d: %w", partNumber, err)
		}
		result = res
		return nil
	})
	if err != nil {
		return "", err
	}

	if _, err := m.meta.MutateUpload(bucket, uploadID, func(u *objmeta.UploadMeta) error {
		u.FallbackParts[partNumber] = result.MD5Hex
		return nil
	}); err != nil {
		return "", err
	}
	return result.MD5Hex, nil
}

// offsetWriter writes sequential Write calls to fixed, advancing offsets
// inside f, so a streaming hash pass (ingest.Stream) can land a part at an
// arbitrary position in the pre-allocated destination file.
type offsetWriter struct {
	f      *os.File
	offset int64
}

func (w *offsetWriter) Write(p []byte) (int, error) {
	n, err := w.f.WriteAt(p, w.offset)
	w.offset += int64(n)
	return n, err
}

// ListParts returns every part uploaded so far for (bucket, uploadID), in
// ascending part-number order.
func (m *Manager) ListParts(bucket, uploadID string) ([]Part, error) {
	meta, err := m.meta.GetUpload(bucket, uploadID)
	if errors.Is(err, objmeta.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var parts []Part
	for n, p := range meta.Parts {
		parts = append(parts, Part{Number: n, Size: p.Size, ETag: p.ETag})
	}
	for n, etag := range meta.FallbackParts {
		info, err := os.Stat(filepath.Join(m.uploadDir(bucket, uploadID), strconv.Itoa(n)))
		if err != nil {
			continue
		}
		parts = append(parts, Part{Number: n, Size: info.Size(), ETag: etag})
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].Number < parts[j].Number })
	return parts, nil
}

// Complete validates requested against the upload's recorded parts and
// assembles the final object at destPath, returning its ETag (bare hex
// MD5) and total size. If every requested part is an optimized-path part,
// completion still reads the pre-allocated file once to compute the
// aggregate MD5 (data movement is a single rename either way, per
// spec.md's "single rename of tmp to final" invariant — only the owning
// process's hashing pass touches the bytes, not a rewrite).
func (m *Manager) Complete(bucket, uploadID, key, destPath string, requested []RequestedPart) (etag string, size int64, err error) {
	unlock := m.lockFor(bucket, uploadID)
	defer unlock()

	meta, err := m.meta.GetUpload(bucket, uploadID)
	if errors.Is(err, objmeta.ErrNotFound) {
		return "", 0, ErrNotFound
	}
	if err != nil {
		return "", 0, err
	}
	if meta.Key != key {
		return "", 0, ErrKeyMismatch
	}
	if len(requested) > maxParts {
		return "", 0, ErrTooManyParts
	}
	for i := 1; i < len(requested); i++ {
		if requested[i].Number <= requested[i-1].Number {
			return "", 0, ErrInvalidPartOrder
		}
	}

	allOptimized := meta.Optimized
	for _, rp := range requested {
		if opt, ok := meta.Parts[rp.Number]; ok {
			if opt.ETag != rp.ETag {
				return "", 0, fmt.Errorf("%w: part %d", ErrInvalidPart, rp.Number)
			}
			continue
		}
		allOptimized = false
		if fbEtag, ok := meta.FallbackParts[rp.Number]; !ok || fbEtag != rp.ETag {
			return "", 0, fmt.Errorf("%w: part %d", ErrInvalidPart, rp.Number)
		}
	}
	// The rename-only fast path requires the requested parts to tile the
	// scratch file from offset 0 with no holes; a sparse subset still
	// completes, through the concatenation pass.
	if allOptimized {
		var expect int64
		for _, rp := range requested {
			p := meta.Parts[rp.Number]
			if p.Start != expect {
				allOptimized = false
				break
			}
			expect += p.Size
		}
	}

	err = fsid.Do(meta.UID, meta.GID, func() error {
		if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
			return fmt.Errorf("multipart: prepare destination: %w", err)
		}
		var cerr error
		if allOptimized {
			etag, size, cerr = m.completeOptimized(meta, requested, destPath)
		} else {
			etag, size, cerr = m.completeFallback(meta, requested, destPath)
		}
		return cerr
	})
	if err != nil {
		return "", 0, err
	}

	fsid.Do(meta.UID, meta.GID, func() error { m.cleanup(bucket, uploadID, meta); return nil })
	return etag, size, nil
}

func (m *Manager) completeOptimized(meta *objmeta.UploadMeta, requested []RequestedPart, destPath string) (string, int64, error) {
	last := requested[len(requested)-1]
	total := meta.Parts[last.Number].Start + meta.Parts[last.Number].Size

	f, err := os.Open(meta.Tmp)
	if err != nil {
		return "", 0, fmt.Errorf("multipart: open scratch for completion: %w", err)
	}
	h := md5.New()
	_, err = io.Copy(h, io.LimitReader(f, total))
	f.Close()
	if err != nil {
		return "", 0, fmt.Errorf("multipart: hash completed object: %w", err)
	}

	if err := os.Rename(meta.Tmp, destPath); err != nil {
		return "", 0, fmt.Errorf("multipart: commit completed object: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), total, nil
}

func (m *Manager) completeFallback(meta *objmeta.UploadMeta, requested []RequestedPart, destPath string) (string, int64, error) {
	tmp := destPath + fmt.Sprintf(".complete.%s", meta.UploadID)
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", 0, fmt.Errorf("multipart: create completion scratch: %w", err)
	}

	h := md5.New()
	w := io.MultiWriter(out, h)
	var total int64

	for _, rp := range requested {
		n, err := m.copyPart(w, meta, rp.Number)
		total += n
		if err != nil {
			out.Close()
			os.Remove(tmp)
			return "", 0, err
		}
	}

	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return "", 0, fmt.Errorf("multipart: finalize completion scratch: %w", err)
	}
	if err := os.Rename(tmp, destPath); err != nil {
		os.Remove(tmp)
		return "", 0, fmt.Errorf("multipart: commit completed object: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), total, nil
}

func (m *Manager) copyPart(w io.Writer, meta *objmeta.UploadMeta, partNumber int) (int64, error) {
	if opt, ok := meta.Parts[partNumber]; ok {
		f, err := os.Open(meta.Tmp)
		if err != nil {
			return 0, fmt.Errorf("multipart: open scratch for part %d: %w", partNumber, err)
		}
		defer f.Close()
		return io.Copy(w, io.NewSectionReader(f, opt.Start, opt.Size))
	}

	path := filepath.Join(m.uploadDir(meta.Bucket, meta.UploadID), strconv.Itoa(partNumber))
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("multipart: open part %d: %w", partNumber, err)
	}
	defer f.Close()
	return io.Copy(w, f)
}

func (m *Manager) cleanup(bucket, uploadID string, meta *objmeta.UploadMeta) {
	os.Remove(meta.Tmp)
	os.RemoveAll(m.uploadDir(bucket, uploadID))
	m.meta.DeleteUpload(bucket, uploadID)
}

// Abort discards an in-progress upload and all of its scratch state.
func (m *Manager) Abort(bucket, uploadID string) error {
	unlock := m.lockFor(bucket, uploadID)
	defer unlock()

	meta, err := m.meta.GetUpload(bucket, uploadID)
	if errors.Is(err, objmeta.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return fsid.Do(meta.UID, meta.GID, func() error { m.cleanup(bucket, uploadID, meta); return nil })
}
