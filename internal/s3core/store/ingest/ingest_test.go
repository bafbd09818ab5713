package ingest

import (
	"bytes"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStreamComputesBothDigests(t *testing.T) {
	data := bytes.Repeat([]byte("abcdefgh"), 4096)
	var dst bytes.Buffer

	res, err := Stream(&dst, bytes.NewReader(data))
	require.NoError(t, err)

	wantMD5 := md5.Sum(data)
	wantSHA := sha256.Sum256(data)
	require.Equal(t, hex.EncodeToString(wantMD5[:]), res.MD5Hex)
	require.Equal(t, hex.EncodeToString(wantSHA[:]), res.SHA256Hex)
	require.Equal(t, int64(len(data)), res.Size)
	require.Equal(t, data, dst.Bytes())
}

func TestToTempWritesAndCleansUpOnOversize(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "object")

	tmp, res, err := ToTemp(dest, bytes.NewReader([]byte("hello world")), 1024)
	require.NoError(t, err)
	require.Equal(t, int64(11), res.Size)
	defer os.Remove(tmp)

	contents, err := os.ReadFile(tmp)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(contents))

	_, _, err = ToTemp(dest, bytes.NewReader(bytes.Repeat([]byte("x"), 10)), 4)
	require.ErrorIs(t, err, ErrTooLarge)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	// Only the first (successful) temp file should remain; the oversize
	// attempt must have cleaned up after itself.
	require.Len(t, entries, 1)
}

func TestChunkedReaderDecodesFraming(t *testing.T) {
	body := "4\r\nWiki\r\n5\r\npedia\r\n0\r\n\r\n"
	cr := NewChunkedReader(bytes.NewReader([]byte(body)))

	got, err := io.ReadAll(cr)
	require.NoError(t, err)
	require.Equal(t, "Wikipedia", string(got))
}

func TestChunkedReaderIgnoresSignatureExtension(t *testing.T) {
	body := "3;chunk-signature=deadbeef\r\nabc\r\n0;chunk-signature=cafef00d\r\n\r\n"
	cr := NewChunkedReader(bytes.NewReader([]byte(body)))

	got, err := io.ReadAll(cr)
	require.NoError(t, err)
	require.Equal(t, "abc", string(got))
}
