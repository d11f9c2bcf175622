package db

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	getErr  error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = body
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	body, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(body))}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3Adapter(t *testing.T) {
	a, err := NewS3(newFakeS3(), "boards", "", quietLogger())
	require.NoError(t, err)
	adapterContract(t, a)
}

func TestS3AdapterStoresSealedObject(t *testing.T) {
	fake := newFakeS3()
	a, err := NewS3(fake, "boards", "team/board.snapshot", quietLogger())
	require.NoError(t, err)

	require.NoError(t, a.Save(context.Background(), []byte("payload")))
	stored := fake.objects["boards/team/board.snapshot"]
	assert.True(t, bytes.HasPrefix(stored, envelopeMagic))
}

func TestS3AdapterGetError(t *testing.T) {
	fake := newFakeS3()
	fake.getErr = errors.New("503 slow down")
	a, err := NewS3(fake, "boards", "", quietLogger())
	require.NoError(t, err)

	_, err = a.Load(context.Background())
	assert.Error(t, err)
}

func TestNewS3RequiresBucket(t *testing.T) {
	_, err := NewS3(newFakeS3(), "", "", nil)
	assert.Error(t, err)
}
