package objmeta

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestObjectRoundTrip(t *testing.T) {
	s := openTestStore(t)

	meta := ObjectMeta{ETag: `"abc123"`, ContentType: "text/plain", Size: 42}
	require.NoError(t, s.PutObject("bucket", "key", meta))

	got, err := s.GetObject("bucket", "key")
	require.NoError(t, err)
	require.Equal(t, meta, *got)

	require.NoError(t, s.DeleteObject("bucket", "key"))
	_, err = s.GetObject("bucket", "key")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUploadRoundTripAndList(t *testing.T) {
	s := openTestStore(t)

	u1 := &UploadMeta{Bucket: "b", Key: "k1", UploadID: "u1", Optimized: true, Tmp: "/tmp/u1"}
	u2 := &UploadMeta{Bucket: "b", Key: "k2", UploadID: "u2"}
	require.NoError(t, s.PutUpload(u1))
	require.NoError(t, s.PutUpload(u2))

	got, err := s.GetUpload("b", "u1")
	require.NoError(t, err)
	require.Equal(t, u1, got)

	all, err := s.ListUploads("b")
	require.NoError(t, err)
	require.Len(t, all, 2)

	require.NoError(t, s.DeleteUpload("b", "u1"))
	all, err = s.ListUploads("b")
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, "u2", all[0].UploadID)
}

func TestMutateUploadAndPartsCSV(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.PutUpload(&UploadMeta{Bucket: "b", Key: "k", UploadID: "u", Optimized: true, Parts: map[int]PartInfo{}}))

	_, err := s.MutateUpload("b", "u", func(m *UploadMeta) error {
		m.Parts[2] = PartInfo{Start: 5 * 1024 * 1024, Size: 5 * 1024 * 1024, ETag: "e2"}
		m.Parts[1] = PartInfo{Start: 0, Size: 5 * 1024 * 1024, ETag: "e1"}
		m.PartSize = 5 * 1024 * 1024
		return nil
	})
	require.NoError(t, err)

	got, err := s.GetUpload("b", "u")
	require.NoError(t, err)
	require.Equal(t, "1,2", got.FormatPartsCSV())
}
