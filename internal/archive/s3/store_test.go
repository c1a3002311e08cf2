package s3

import (
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/require"
)

type stubAPI struct {
	lastInput *awss3.PutObjectInput
	err       error
}

func (s *stubAPI) PutObject(_ context.Context, params *awss3.PutObjectInput, _ ...func(*awss3.Options)) (*awss3.PutObjectOutput, error) {
	s.lastInput = params
	if s.err != nil {
		return nil, s.err
	}
	return &awss3.PutObjectOutput{}, nil
}

func TestPutObjectReturnsURI(t *testing.T) {
	t.Parallel()

	stub := &stubAPI{}
	store, err := New(stub, "snapshots")
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "collect/year=2026/month=01/day=07/a-b.json", "application/json", []byte(`{"ok":true}`))
	require.NoError(t, err)
	require.Equal(t, "s3://snapshots/collect/year=2026/month=01/day=07/a-b.json", uri)

	require.Equal(t, "snapshots", aws.ToString(stub.lastInput.Bucket))
	require.Equal(t, "collect/year=2026/month=01/day=07/a-b.json", aws.ToString(stub.lastInput.Key))
	require.Equal(t, "application/json", aws.ToString(stub.lastInput.ContentType))
	body, err := io.ReadAll(stub.lastInput.Body)
	require.NoError(t, err)
	require.Equal(t, `{"ok":true}`, string(body))
}

func TestPutObjectErrors(t *testing.T) {
	t.Parallel()

	stub := &stubAPI{err: fmt.Errorf("access denied")}
	store, err := New(stub, "snapshots")
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "key", "", nil)
	require.ErrorContains(t, err, "access denied")

	_, err = store.PutObject(context.Background(), "", "", nil)
	require.ErrorContains(t, err, "path is required")
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, "bucket")
	require.Error(t, err)
	_, err = New(&stubAPI{}, "")
	require.Error(t, err)
}
