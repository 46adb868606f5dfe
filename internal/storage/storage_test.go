package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	objects map[string][]byte
	err     error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	if f.objects == nil {
		f.objects = make(map[string][]byte)
	}
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func TestLocalSink_WriteCreatesDirectories(t *testing.T) {
	root := t.TempDir()
	sink := &LocalSink{Root: root}

	require.NoError(t, sink.Write(context.Background(), "test_data_set_0/input_0.pb", []byte{1, 2, 3}))

	data, err := os.ReadFile(filepath.Join(root, "test_data_set_0", "input_0.pb"))
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, data)
	assert.Equal(t, "file", sink.Scheme())
	assert.Equal(t, filepath.Join(root, "model.onnx"), sink.Location("model.onnx"))
}

func TestLocalSink_PermissionDenied(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	root := t.TempDir()
	require.NoError(t, os.Chmod(root, 0o500))
	t.Cleanup(func() { _ = os.Chmod(root, 0o750) })

	err := (&LocalSink{Root: root}).Write(context.Background(), "model.onnx", []byte{0})
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrPermission)
}

func TestS3Sink_Write(t *testing.T) {
	fake := &fakeS3{}
	sink := &S3Sink{Client: fake, Bucket: "models", Prefix: "mnist/v1"}

	require.NoError(t, sink.Write(context.Background(), "test_data_set_0/output_0.pb", []byte("out")))

	assert.Equal(t, []byte("out"), fake.objects["models/mnist/v1/test_data_set_0/output_0.pb"])
	assert.Equal(t, "s3://models/mnist/v1/model.onnx", sink.Location("model.onnx"))
	assert.Equal(t, "s3", sink.Scheme())
}

func TestS3Sink_WriteError(t *testing.T) {
	boom := errors.New("access denied")
	sink := &S3Sink{Client: &fakeS3{err: boom}, Bucket: "models"}

	err := sink.Write(context.Background(), "model.onnx", nil)
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "s3://models/model.onnx")
}

func TestParseS3URI(t *testing.T) {
	tests := []struct {
		uri    string
		bucket string
		prefix string
		err    bool
	}{
		{"s3://models", "models", "", false},
		{"s3://models/", "models", "", false},
		{"s3://models/a/b/", "models", "a/b", false},
		{"s3://models/a//b", "models", "a/b", false},
		{"s3:///a", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			bucket, prefix, err := ParseS3URI(tt.uri)
			if tt.err {
				assert.ErrorIs(t, err, ErrInvalidURI)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.bucket, bucket)
			assert.Equal(t, tt.prefix, prefix)
		})
	}
}

func TestOpen(t *testing.T) {
	sink, err := Open(context.Background(), "out/dir")
	require.NoError(t, err)
	assert.Equal(t, &LocalSink{Root: "out/dir"}, sink)

	sink, err = Open(context.Background(), "file:///tmp/models")
	require.NoError(t, err)
	assert.Equal(t, &LocalSink{Root: "/tmp/models"}, sink)

	_, err = Open(context.Background(), "gs://bucket/x")
	assert.ErrorIs(t, err, ErrInvalidURI)
}

func TestSplit(t *testing.T) {
	dir, name := Split("s3://models/mnist/model.onnx")
	assert.Equal(t, "s3://models/mnist", dir)
	assert.Equal(t, "model.onnx", name)

	dir, name = Split("out/model.onnx")
	assert.Equal(t, "out", dir)
	assert.Equal(t, "model.onnx", name)

	dir, name = Split("model.onnx")
	assert.Equal(t, ".", dir)
	assert.Equal(t, "model.onnx", name)

	// Directory destinations have no file name.
	_, name = Split("out/")
	assert.Empty(t, name)
	_, name = Split("s3://models/mnist/")
	assert.Empty(t, name)
}
