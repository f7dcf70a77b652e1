package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"docstage/internal/stage"
)

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	manager.UploadAPIClient
	s3.ListObjectsV2APIClient
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Options configures an S3Store.
type S3Options struct {
	Bucket          string
	Prefix          string // key prefix; blobs live under <prefix>/blobs/
	Region          string
	Endpoint        string // custom endpoint, e.g. MinIO; enables path-style addressing
	AccessKeyID     string // optional; the default credential chain is used when empty
	SecretAccessKey string
}

// S3Store keeps blobs as objects in an S3 bucket under <prefix>/blobs/<checksum>.
type S3Store struct {
	client   S3API
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// NewS3Store creates an S3 blob store using the given client.
func NewS3Store(client S3API, bucket, prefix string) (*S3Store, error) {
	if bucket == "" {
		return nil, fmt.Errorf("s3 blob store requires a bucket")
	}
	return &S3Store{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		prefix:   path.Join(strings.Trim(prefix, "/"), "blobs") + "/",
	}, nil
}

// NewS3StoreFromOptions loads AWS configuration and creates an S3 blob store.
func NewS3StoreFromOptions(opts S3Options) (*S3Store, error) {
	ctx := context.Background()

	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3Store(client, opts.Bucket, opts.Prefix)
}

func (s *S3Store) key(checksum string) string {
	return s.prefix + checksum
}

// Put uploads content identified by its checksum. Existing objects are not
// re-uploaded.
func (s *S3Store) Put(checksum string, r io.Reader, size int64) error {
	if err := checkChecksum(checksum); err != nil {
		return err
	}
	ctx := context.Background()

	exists, err := s.exists(ctx, checksum)
	if err != nil {
		return err
	}
	if exists {
		written, err := io.Copy(io.Discard, r)
		if err != nil {
			return fmt.Errorf("failed to read content: %w", err)
		}
		if written != size {
			return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
		}
		return nil
	}

	counted := &countingReader{r: r}
	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(checksum)),
		Body:   counted,
	})
	if err != nil {
		return fmt.Errorf("uploading blob %s: %w", checksum, err)
	}
	if counted.n != size {
		// The object is named by its checksum, so a short read must not survive.
		s.Delete(checksum)
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, counted.n)
	}
	return nil
}

func (s *S3Store) exists(ctx context.Context, checksum string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(checksum)),
	})
	if err == nil {
		return true, nil
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return false, nil
	}
	return false, fmt.Errorf("checking blob %s: %w", checksum, err)
}

// Open streams the object for checksum. The caller must close it.
func (s *S3Store) Open(checksum string) (io.ReadCloser, error) {
	if err := checkChecksum(checksum); err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(checksum)),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, checksum)
		}
		return nil, fmt.Errorf("downloading blob %s: %w", checksum, err)
	}
	return out.Body, nil
}

// Delete removes the object for checksum. S3 treats missing keys as success.
func (s *S3Store) Delete(checksum string) error {
	if err := checkChecksum(checksum); err != nil {
		return err
	}
	_, err := s.client.DeleteObject(context.Background(), &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(checksum)),
	})
	if err != nil {
		return fmt.Errorf("deleting blob %s: %w", checksum, err)
	}
	return nil
}

// List pages through the blob prefix and returns the stored checksums.
func (s *S3Store) List() ([]string, error) {
	ctx := context.Background()
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})

	var sums []string
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing blobs: %w", err)
		}
		for _, obj := range page.Contents {
			sum := strings.TrimPrefix(aws.ToString(obj.Key), s.prefix)
			if ValidChecksum(sum) {
				sums = append(sums, sum)
			}
		}
	}
	sort.Strings(sums)
	return sums, nil
}

// ValidateSetup checks that the bucket exists and is reachable.
func (s *S3Store) ValidateSetup() error {
	_, err := s.client.HeadBucket(context.Background(), &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return fmt.Errorf("bucket %s not accessible: %w", s.bucket, err)
	}
	return nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// Compile-time check that S3Store implements stage.BlobStore
var _ stage.BlobStore = (*S3Store)(nil)
