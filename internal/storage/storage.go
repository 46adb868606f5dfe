// Package storage writes exported artifacts to a destination selected by URI
// scheme: a local directory or an S3 prefix.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// Protocol is a URI scheme prefix understood by Open.
type Protocol string

// Supported protocols. Paths without a scheme are local.
const (
	S3   Protocol = "s3://"
	File Protocol = "file://"
)

// SupportedProtocols lists the schemes Open accepts.
var SupportedProtocols = []Protocol{S3, File}

// ErrInvalidURI is returned for destinations Open cannot parse.
var ErrInvalidURI = errors.New("storage: invalid URI")

// Sink stores named artifacts. Names are slash-separated and relative to the
// sink root; intermediate directories are created as needed.
type Sink interface {
	Write(ctx context.Context, name string, data []byte) error
	// Scheme names the backing store for logs and metrics ("file", "s3").
	Scheme() string
	// Location returns the URI of a stored artifact.
	Location(name string) string
}

// Open returns the sink rooted at uri. An empty uri is the working directory.
func Open(ctx context.Context, uri string) (Sink, error) {
	switch {
	case strings.HasPrefix(uri, string(S3)):
		bucket, prefix, err := ParseS3URI(uri)
		if err != nil {
			return nil, err
		}
		client, err := NewS3Client(ctx)
		if err != nil {
			return nil, err
		}
		return &S3Sink{Client: client, Bucket: bucket, Prefix: prefix}, nil
	case strings.HasPrefix(uri, string(File)):
		return &LocalSink{Root: filepath.FromSlash(strings.TrimPrefix(uri, string(File)))}, nil
	case strings.Contains(uri, "://"):
		return nil, fmt.Errorf("%w: unsupported scheme in %q", ErrInvalidURI, uri)
	default:
		return &LocalSink{Root: uri}, nil
	}
}

// Split separates a file destination into the URI of its parent and the
// file name, so that the parent can be opened as a Sink.
func Split(uri string) (dir, name string) {
	if strings.Contains(uri, "://") {
		i := strings.LastIndex(uri, "/")
		if i < strings.Index(uri, "://")+3 {
			return uri, ""
		}
		return uri[:i], uri[i+1:]
	}
	dir, name = filepath.Split(uri)
	return filepath.Clean(dir), name
}

// ParseS3URI splits s3://bucket/prefix into its bucket and key prefix.
func ParseS3URI(uri string) (bucket, prefix string, err error) {
	rest := strings.TrimPrefix(uri, string(S3))
	bucket, prefix, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("%w: missing bucket in %q", ErrInvalidURI, uri)
	}
	return bucket, strings.Trim(path.Clean("/"+prefix), "/"), nil
}
