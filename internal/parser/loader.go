package parser

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/prasenjit/go-mockserver/internal/openapi"
)

// DocumentStore returns documents saved by the storage layer
type DocumentStore interface {
	ReadDocument(name string) ([]byte, error)
}

// S3API is the subset of the S3 client used to fetch documents
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Loader reads OpenAPI documents referenced by a project.
// A reference is an http(s) URL, an s3://bucket/key URL, the name of a
// stored document or a file path.
type Loader struct {
	docs   DocumentStore
	client *http.Client
	region string

	mu sync.Mutex
	s3 S3API
}

// NewLoader creates a loader. docs may be nil.
func NewLoader(docs DocumentStore, region string) *Loader {
	return &Loader{
		docs:   docs,
		client: &http.Client{Timeout: 30 * time.Second},
		region: region,
	}
}

// WithS3 sets the client used for s3:// references
func (l *Loader) WithS3(client S3API) *Loader {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.s3 = client
	return l
}

// Load reads and parses the document behind ref
func (l *Loader) Load(ctx context.Context, ref string) (*openapi.Document, error) {
	data, err := l.Read(ctx, ref)
	if err != nil {
		return nil, err
	}
	doc, err := openapi.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", ref, err)
	}
	return doc, nil
}

// Read returns the raw bytes behind ref
func (l *Loader) Read(ctx context.Context, ref string) ([]byte, error) {
	ref = strings.TrimSpace(ref)
	switch {
	case ref == "":
		return nil, fmt.Errorf("empty document reference")
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return l.readHTTP(ctx, ref)
	case strings.HasPrefix(ref, "s3://"):
		return l.readS3(ctx, ref)
	}

	if l.docs != nil {
		if data, err := l.docs.ReadDocument(ref); err == nil {
			return data, nil
		}
	}

	data, err := os.ReadFile(ref)
	if err != nil {
		return nil, fmt.Errorf("read document %s: %w", ref, err)
	}
	return data, nil
}

func (l *Loader) readHTTP(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// splitS3 parses s3://bucket/key
func splitS3(ref string) (bucket, key string, err error) {
	rest := strings.TrimPrefix(ref, "s3://")
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("invalid s3 reference %q", ref)
	}
	return bucket, key, nil
}

func (l *Loader) s3Client(ctx context.Context) (S3API, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.s3 != nil {
		return l.s3, nil
	}

	var opts []func(*awsconfig.LoadOptions) error
	if l.region != "" {
		opts = append(opts, awsconfig.WithRegion(l.region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	l.s3 = s3.NewFromConfig(cfg)
	return l.s3, nil
}

func (l *Loader) readS3(ctx context.Context, ref string) ([]byte, error) {
	bucket, key, err := splitS3(ref)
	if err != nil {
		return nil, err
	}

	client, err := l.s3Client(ctx)
	if err != nil {
		return nil, err
	}

	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", ref, err)
	}
	defer out.Body.Close()

	return io.ReadAll(out.Body)
}
