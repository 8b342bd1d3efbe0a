package remote

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"snapsync/internal/credential"
	"snapsync/internal/snap"
)

// uploader is the part of manager.Uploader the store uses.
type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Store implements snap.RemoteStore on an S3 bucket. The object key is
// prefix + name, so a name maps to at most one object and the key doubles as
// the identifier.
type S3Store struct {
	bucket string
	prefix string
	client s3.ListObjectsV2APIClient
	up     uploader
}

var _ snap.RemoteStore = (*S3Store)(nil)

// NewS3Store creates a store over an S3 client.
func NewS3Store(client *s3.Client, bucket, prefix string) *S3Store {
	return &S3Store{
		bucket: bucket,
		prefix: prefix,
		client: client,
		up:     manager.NewUploader(client),
	}
}

func (s *S3Store) key(name string) string {
	return s.prefix + name
}

func (s *S3Store) List(ctx context.Context, name string) ([]snap.RemoteObject, error) {
	key := s.key(name)
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(key),
	})

	var out []snap.RemoteObject
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing s3://%s/%s: %w", s.bucket, key, err)
		}
		for _, o := range page.Contents {
			if aws.ToString(o.Key) != key {
				continue
			}
			out = append(out, snap.RemoteObject{
				ID:   key,
				Name: name,
				Size: aws.ToInt64(o.Size),
			})
		}
	}
	return out, nil
}

func (s *S3Store) Create(ctx context.Context, meta snap.ObjectMeta, r io.Reader) (*snap.RemoteObject, error) {
	return s.put(ctx, s.key(meta.Name), meta, r)
}

func (s *S3Store) Update(ctx context.Context, id string, meta snap.ObjectMeta, r io.Reader) (*snap.RemoteObject, error) {
	if !strings.HasPrefix(id, s.prefix) {
		return nil, fmt.Errorf("%w: key %s is outside prefix %q", ErrObjectNotFound, id, s.prefix)
	}
	return s.put(ctx, id, meta, r)
}

func (s *S3Store) put(ctx context.Context, key string, meta snap.ObjectMeta, r io.Reader) (*snap.RemoteObject, error) {
	_, err := s.up.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        r,
		ContentType: aws.String(meta.ContentType),
	})
	if err != nil {
		return nil, fmt.Errorf("uploading s3://%s/%s: %w", s.bucket, key, err)
	}
	return &snap.RemoteObject{
		ID:          key,
		Name:        meta.Name,
		ContentType: meta.ContentType,
		Size:        meta.Size,
	}, nil
}

// S3Connector opens an S3Store with the key pair acquired for the run.
type S3Connector struct {
	bucket   string
	prefix   string
	region   string
	endpoint string
}

var _ snap.Connector = (*S3Connector)(nil)

// NewS3Connector creates an S3Connector. A non-empty endpoint selects an
// S3-compatible service and path-style addressing.
func NewS3Connector(bucket, prefix, region, endpoint string) *S3Connector {
	return &S3Connector{bucket: bucket, prefix: prefix, region: region, endpoint: endpoint}
}

func (c *S3Connector) Connect(ctx context.Context, cred *snap.RemoteCredential) (snap.RemoteStore, error) {
	if cred == nil || cred.KeyID == "" {
		return nil, fmt.Errorf("s3 requires an access key")
	}
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithCredentialsProvider(credential.StaticProvider(cred)),
	}
	if c.region != "" {
		opts = append(opts, awsconfig.WithRegion(c.region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if c.endpoint != "" {
			o.BaseEndpoint = aws.String(c.endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3Store(client, c.bucket, c.prefix), nil
}
