package journal

import (
	"os"
	"path/filepath"
	"testing"
)

func tempJournalPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "object.jcache")
}

// S1 (journal hit): write (0,10,"abcdefghij"), then pread(2,5) -> "cdefg".
func TestPreadHit(t *testing.T) {
	path := tempJournalPath(t)
	j, err := Attach(path, 10, 1000, 0, false, AttachOptions{})
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	defer j.Detach()

	data := []byte("abcdefghij")
	if _, err := j.Pwrite(data, uint64(len(data)), 0); err != nil {
		t.Fatalf("pwrite: %v", err)
	}

	buf := make([]byte, 5)
	n, eof, err := j.Pread(buf, 5, 2)
	if err != nil {
		t.Fatalf("pread: %v", err)
	}
	if eof {
		t.Fatalf("unexpected eof")
	}
	if n != 5 || string(buf) != "cdefg" {
		t.Fatalf("got %q (n=%d), want %q", buf, n, "cdefg")
	}
	if j.MaxOffset() != 10 {
		t.Fatalf("maxOffset = %d, want 10", j.MaxOffset())
	}
}

// S2 (journal partial miss): empty journal with header filesize=8,
// pread(0,5) -> 0, eof=false.
func TestPreadPartialMiss(t *testing.T) {
	path := tempJournalPath(t)
	j, err := Attach(path, 8, 1000, 0, false, AttachOptions{})
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	defer j.Detach()

	buf := make([]byte, 5)
	n, eof, err := j.Pread(buf, 5, 0)
	if err != nil {
		t.Fatalf("pread: %v", err)
	}
	if n != 0 || eof {
		t.Fatalf("got n=%d eof=%v, want n=0 eof=false", n, eof)
	}
}

func TestPreadEntirelyBeyondEOF(t *testing.T) {
	path := tempJournalPath(t)
	j, err := Attach(path, 8, 1000, 0, false, AttachOptions{})
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	defer j.Detach()

	buf := make([]byte, 5)
	n, eof, err := j.Pread(buf, 5, 20)
	if err != nil {
		t.Fatalf("pread: %v", err)
	}
	if n != 0 || !eof {
		t.Fatalf("got n=%d eof=%v, want n=0 eof=true", n, eof)
	}
}

// Property 2 / overlap resolution: w1=(o,s,A) then w2=(o+d,s,B), read
// [o, o+2s) returns A[0:d] ++ B[0:s].
func TestOverlapResolution(t *testing.T) {
	path := tempJournalPath(t)
	j, err := Attach(path, 100, 1000, 0, false, AttachOptions{})
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	defer j.Detach()

	s := uint64(10)
	d := uint64(4)
	o := uint64(0)

	A := make([]byte, s)
	for i := range A {
		A[i] = 'A'
	}
	B := make([]byte, s)
	for i := range B {
		B[i] = 'B'
	}

	if _, err := j.Pwrite(A, s, o); err != nil {
		t.Fatalf("pwrite A: %v", err)
	}
	if _, err := j.Pwrite(B, s, o+d); err != nil {
		t.Fatalf("pwrite B: %v", err)
	}

	want := append(append([]byte{}, A[:d]...), B...)
	buf := make([]byte, len(want))
	n, eof, err := j.Pread(buf, uint64(len(want)), o)
	if err != nil {
		t.Fatalf("pread: %v", err)
	}
	if eof || n != uint64(len(want)) {
		t.Fatalf("n=%d eof=%v", n, eof)
	}
	if string(buf) != string(want) {
		t.Fatalf("got %q, want %q", buf, want)
	}
}

// Property 3 / header mismatch: reopening with a different (size, mtime)
// beyond the skew tolerance purges the journal.
func TestHeaderMismatchPurges(t *testing.T) {
	path := tempJournalPath(t)
	j, err := Attach(path, 10, 1000, 0, false, AttachOptions{})
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	data := []byte("abcdefghij")
	if _, err := j.Pwrite(data, uint64(len(data)), 0); err != nil {
		t.Fatalf("pwrite: %v", err)
	}
	if err := j.Detach(); err != nil {
		t.Fatalf("detach: %v", err)
	}

	j2, err := Attach(path, 20, 5000, 0, false, AttachOptions{})
	if err != nil {
		t.Fatalf("reattach: %v", err)
	}
	defer j2.Detach()

	if j2.index.Len() != 0 {
		t.Fatalf("expected empty index after purge, got %d entries", j2.index.Len())
	}

	buf := make([]byte, 5)
	n, eof, err := j2.Pread(buf, 5, 0)
	if err != nil {
		t.Fatalf("pread: %v", err)
	}
	if n != 0 || eof {
		t.Fatalf("expected miss after purge, got n=%d eof=%v", n, eof)
	}
}

func TestMtimeSkewToleratesOneSecond(t *testing.T) {
	path := tempJournalPath(t)
	j, err := Attach(path, 10, 1000, 0, false, AttachOptions{})
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	data := []byte("abcdefghij")
	if _, err := j.Pwrite(data, uint64(len(data)), 0); err != nil {
		t.Fatalf("pwrite: %v", err)
	}
	if err := j.Detach(); err != nil {
		t.Fatalf("detach: %v", err)
	}

	// Same size, mtime off by exactly 1s: should NOT purge.
	j2, err := Attach(path, 10, 1001, 0, false, AttachOptions{})
	if err != nil {
		t.Fatalf("reattach: %v", err)
	}
	defer j2.Detach()

	buf := make([]byte, 10)
	n, eof, err := j2.Pread(buf, 10, 0)
	if err != nil {
		t.Fatalf("pread: %v", err)
	}
	if eof || n != 10 || string(buf) != string(data) {
		t.Fatalf("expected cached data to survive within skew, got n=%d eof=%v buf=%q", n, eof, buf)
	}
}

func TestZeroMtimeAcceptsDisk(t *testing.T) {
	path := tempJournalPath(t)
	j, err := Attach(path, 10, 1000, 0, false, AttachOptions{})
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	data := []byte("abcdefghij")
	if _, err := j.Pwrite(data, uint64(len(data)), 0); err != nil {
		t.Fatalf("pwrite: %v", err)
	}
	if err := j.Detach(); err != nil {
		t.Fatalf("detach: %v", err)
	}

	j2, err := Attach(path, 0, 0, 0, false, AttachOptions{})
	if err != nil {
		t.Fatalf("reattach: %v", err)
	}
	defer j2.Detach()

	buf := make([]byte, 10)
	n, eof, err := j2.Pread(buf, 10, 0)
	if err != nil {
		t.Fatalf("pread: %v", err)
	}
	if eof || n != 10 {
		t.Fatalf("expected disconnected-mode hit, got n=%d eof=%v", n, eof)
	}
}

func TestAttachBusyOnContention(t *testing.T) {
	path := tempJournalPath(t)
	j, err := Attach(path, 10, 1000, 0, false, AttachOptions{})
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	defer j.Detach()

	if _, err := Attach(path, 10, 1000, 0, false, AttachOptions{}); err != ErrBusy {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
}

func TestAttachIfExistsNotFound(t *testing.T) {
	path := tempJournalPath(t)
	if _, err := Attach(path, 10, 1000, 0, true, AttachOptions{}); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAttachIfExistsInvalidShortFile(t *testing.T) {
	path := tempJournalPath(t)
	if err := os.WriteFile(path, []byte("short"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Attach(path, 10, 1000, 0, true, AttachOptions{}); err != ErrInvalid {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestReset(t *testing.T) {
	path := tempJournalPath(t)
	j, err := Attach(path, 10, 1000, 0, false, AttachOptions{})
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	defer j.Detach()

	data := []byte("abcdefghij")
	if _, err := j.Pwrite(data, uint64(len(data)), 0); err != nil {
		t.Fatalf("pwrite: %v", err)
	}
	if err := j.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}

	buf := make([]byte, 5)
	n, eof, err := j.Pread(buf, 5, 0)
	if err != nil {
		t.Fatalf("pread: %v", err)
	}
	if n != 0 || eof {
		t.Fatalf("expected miss after reset, got n=%d eof=%v", n, eof)
	}
}
