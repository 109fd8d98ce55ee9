package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/s1ren-78/beiduoduo/internal/mirror"
)

// S3Archive stores payloads and events in an S3 bucket under a common
// key prefix:
//
//	<prefix>/payloads/<hash>
//	<prefix>/events/<domain>/<YYYY-MM-DD>/<hash-or-source>.json
//
// Event objects are one-per-fetch rather than appended, since S3 has no
// append primitive.
type S3Archive struct {
	client    *s3.Client
	uploader  *manager.Uploader
	bucket    string
	prefix    string
	encryptor mirror.Encryptor
}

// S3Options holds the connection settings for an S3 archive.
type S3Options struct {
	Bucket string
	Prefix string
	Region string

	// Optional static credentials. When empty the default AWS chain
	// applies (env, shared config, instance role).
	AccessKeyID     string
	SecretAccessKey string
}

// NewS3Archive creates an archive backed by the given bucket.
func NewS3Archive(ctx context.Context, o S3Options, enc mirror.Encryptor) (*S3Archive, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if o.Region != "" {
		opts = append(opts, awsconfig.WithRegion(o.Region))
	}
	if o.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(o.AccessKeyID, o.SecretAccessKey, "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg)
	return &S3Archive{
		client:    client,
		uploader:  manager.NewUploader(client),
		bucket:    o.Bucket,
		prefix:    o.Prefix,
		encryptor: enc,
	}, nil
}

func (a *S3Archive) payloadKey(hash string) string {
	return path.Join(a.prefix, "payloads", hash)
}

// PutPayload uploads a payload under its content hash. If the object
// already exists the upload is skipped.
func (a *S3Archive) PutPayload(hash string, r io.Reader, size int64) error {
	ctx := context.Background()
	key := a.payloadKey(hash)

	_, err := a.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		_, err := io.Copy(io.Discard, r)
		return err
	}
	var notFound *types.NotFound
	if !errors.As(err, &notFound) {
		return fmt.Errorf("checking payload %s: %w", hash, err)
	}

	body := r
	if a.encryptor != nil {
		pr, pw := io.Pipe()
		go func() {
			pw.CloseWithError(a.encryptor.Encrypt(r, pw))
		}()
		body = pr
	}

	_, err = a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
		Body:   body,
	})
	if err != nil {
		return fmt.Errorf("uploading payload %s: %w", hash, err)
	}
	return nil
}

// GetPayload downloads a payload by content hash and writes it to w.
func (a *S3Archive) GetPayload(hash string, w io.Writer) error {
	out, err := a.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.payloadKey(hash)),
	})
	if err != nil {
		return fmt.Errorf("payload not found: %s: %w", hash, err)
	}
	defer out.Body.Close()

	if _, err := io.Copy(w, out.Body); err != nil {
		return fmt.Errorf("failed to read payload: %w", err)
	}
	return nil
}

// AppendEvent writes one event object bucketed by domain and day.
func (a *S3Archive) AppendEvent(domain string, e *mirror.ArchiveEvent) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	day := e.FetchedAt.UTC().Format("2006-01-02")
	name := e.ContentHash
	if name == "" {
		name = e.SourceID
	}
	key := path.Join(a.prefix, "events", domain, day,
		fmt.Sprintf("%s-%d.json", name, e.FetchedAt.UTC().UnixNano()))

	_, err = a.client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	return nil
}

// ValidateSetup verifies the bucket is reachable with the current
// credentials.
func (a *S3Archive) ValidateSetup() error {
	_, err := a.client.HeadBucket(context.Background(), &s3.HeadBucketInput{
		Bucket: aws.String(a.bucket),
	})
	if err != nil {
		return fmt.Errorf("archive bucket not accessible: %w", err)
	}
	return nil
}

// Compile-time check that S3Archive implements the Archive interface
var _ mirror.Archive = (*S3Archive)(nil)
