package xmlresp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEncodeListBucketResult(t *testing.T) {
	res := ListBucketResultV2{
		Name:        "my-bucket",
		Prefix:      "",
		MaxKeys:     1000,
		IsTruncated: false,
		Contents: []Content{
			{ETag: `"abc"`, Key: "a", LastModified: formatTime(time.Unix(0, 0)), Size: 3},
		},
	}
	body, err := Encode(res)
	require.NoError(t, err)
	require.Contains(t, string(body), "<ListBucketResult>")
	require.Contains(t, string(body), "<Key>a</Key>")
}

func TestEncodeErrorResponse(t *testing.T) {
	body, err := Encode(ErrorResponse{Code: "NoSuchKey", Message: "key not found", Resource: "/b/k"})
	require.NoError(t, err)
	require.Contains(t, string(body), "<Code>NoSuchKey</Code>")
	require.Contains(t, string(body), "<Resource>/b/k</Resource>")
}

func TestNewAccessControlPolicyHardcodesFullControl(t *testing.T) {
	acp := NewAccessControlPolicy(Owner{ID: "o1", DisplayName: "Owner One"})
	require.Len(t, acp.Grants, 1)
	require.Equal(t, "FULL_CONTROL", acp.Grants[0].Permission)

	body, err := Encode(acp)
	require.NoError(t, err)
	require.Contains(t, string(body), "FULL_CONTROL")
}
