package s3infra

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/go-emailaddress/internal/domain"
)

// maxTemplateSize caps how much of an object is read as a message template.
const maxTemplateSize = 256 << 10

// NewClient creates an S3 client. When endpointURL is set (LocalStack),
// it overrides the endpoint and enables path-style addressing.
func NewClient(awsCfg aws.Config, endpointURL string) *s3.Client {
	var clientOpts []func(*s3.Options)
	if endpointURL != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpointURL)
			o.UsePathStyle = true
		})
	}
	return s3.NewFromConfig(awsCfg, clientOpts...)
}

type objectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// TemplateStore reads verification message templates from a bucket.
type TemplateStore struct {
	client objectGetter
	bucket string
}

// NewTemplateStore creates a TemplateStore for bucket.
func NewTemplateStore(client objectGetter, bucket string) *TemplateStore {
	return &TemplateStore{client: client, bucket: bucket}
}

// Get returns the template stored under key.
func (s *TemplateStore) Get(ctx context.Context, key string) (string, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return "", fmt.Errorf("template %s: %w", key, domain.ErrNotFound)
		}
		return "", fmt.Errorf("s3 get object: %w", err)
	}
	defer out.Body.Close()
	b, err := io.ReadAll(io.LimitReader(out.Body, maxTemplateSize+1))
	if err != nil {
		return "", fmt.Errorf("read template %s: %w", key, err)
	}
	if len(b) > maxTemplateSize {
		return "", fmt.Errorf("template %s exceeds %d bytes: %w", key, maxTemplateSize, domain.ErrBadRequest)
	}
	return string(b), nil
}
