package listing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func simpleMeta(relKey, absPath string) (Object, error) {
	info, err := os.Stat(absPath)
	if err != nil {
		return Object{}, err
	}
	return Object{Key: relKey, Size: info.Size(), ModTime: info.ModTime()}, nil
}

func TestListFlatNoDelimiter(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "a"))
	touch(t, filepath.Join(root, "b"))
	touch(t, filepath.Join(root, "dir", "c"))

	res, err := List(Options{Root: root, MaxKeys: 100, Meta: simpleMeta})
	require.NoError(t, err)
	require.False(t, res.IsTruncated)

	var keys []string
	for _, o := range res.Objects {
		keys = append(keys, o.Key)
	}
	require.Equal(t, []string{"a", "b", "dir/c"}, keys)
	require.Empty(t, res.CommonPrefixes)
}

func TestListWithSlashDelimiterGroupsDirectories(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "a"))
	touch(t, filepath.Join(root, "photos", "2024", "jan.jpg"))
	touch(t, filepath.Join(root, "photos", "2024", "feb.jpg"))
	touch(t, filepath.Join(root, "videos", "x.mp4"))

	res, err := List(Options{Root: root, Delimiter: "/", MaxKeys: 100, Meta: simpleMeta})
	require.NoError(t, err)

	var keys []string
	for _, o := range res.Objects {
		keys = append(keys, o.Key)
	}
	require.Equal(t, []string{"a"}, keys)
	require.ElementsMatch(t, []string{"photos/", "videos/"}, res.CommonPrefixes)
}

func TestListPrefixFiltersAndPaginates(t *testing.T) {
	root := t.TempDir()
	for _, k := range []string{"logs/a", "logs/b", "logs/c", "other/z"} {
		touch(t, filepath.Join(root, k))
	}

	page1, err := List(Options{Root: root, Prefix: "logs/", MaxKeys: 2, Meta: simpleMeta})
	require.NoError(t, err)
	require.True(t, page1.IsTruncated)
	require.Len(t, page1.Objects, 2)
	require.Equal(t, "logs/a", page1.Objects[0].Key)
	require.Equal(t, "logs/b", page1.Objects[1].Key)

	page2, err := List(Options{Root: root, Prefix: "logs/", Marker: page1.NextMarker, MaxKeys: 2, Meta: simpleMeta})
	require.NoError(t, err)
	require.False(t, page2.IsTruncated)
	require.Len(t, page2.Objects, 1)
	require.Equal(t, "logs/c", page2.Objects[0].Key)
}

func TestListPagingResumesInsideSubtree(t *testing.T) {
	root := t.TempDir()
	for _, k := range []string{"a", "dir/b", "dir/c", "e"} {
		touch(t, filepath.Join(root, k))
	}

	var keys []string
	marker := ""
	for {
		res, err := List(Options{Root: root, Marker: marker, MaxKeys: 2, Meta: simpleMeta})
		require.NoError(t, err)
		for _, o := range res.Objects {
			keys = append(keys, o.Key)
		}
		if !res.IsTruncated {
			break
		}
		marker = res.NextMarker
	}
	require.Equal(t, []string{"a", "dir/b", "dir/c", "e"}, keys)
}

func TestListEmptyRootIsNotAnError(t *testing.T) {
	root := filepath.Join(t.TempDir(), "missing")
	res, err := List(Options{Root: root, MaxKeys: 10, Meta: simpleMeta})
	require.NoError(t, err)
	require.Empty(t, res.Objects)
}
