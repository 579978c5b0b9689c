package datastore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/danthegoodman1/icescan/metrics"
	"github.com/danthegoodman1/icescan/utils"
	"github.com/rs/zerolog"
	s3_pq "github.com/xitongsys/parquet-go-source/s3"
	"github.com/xitongsys/parquet-go/source"
)

const s3MaxTries = 5

type (
	S3DataStore struct {
		client   s3iface.S3API
		uploader *s3manager.Uploader
		bucket   string
		prefix   string
	}

	S3Config struct {
		Bucket   string
		Prefix   string
		Region   string
		Endpoint string
	}

	// s3File reads an object with ranged GETs.
	s3File struct {
		ctx    context.Context
		store  *S3DataStore
		key    string
		size   int64
		offset int64
	}
)

func NewS3DataStore(cfg S3Config) (*S3DataStore, error) {
	s3Config := &aws.Config{
		Region:      aws.String(cfg.Region),
		Credentials: credentials.NewEnvCredentials(),
	}
	if cfg.Endpoint != "" {
		s3Config.Endpoint = aws.String(cfg.Endpoint)
		s3Config.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(s3Config)
	if err != nil {
		return nil, fmt.Errorf("error making new session: %w", err)
	}

	return NewS3DataStoreWithClient(s3.New(sess), s3manager.NewUploader(sess), cfg.Bucket, cfg.Prefix), nil
}

func NewS3DataStoreWithClient(client s3iface.S3API, uploader *s3manager.Uploader, bucket, prefix string) *S3DataStore {
	return &S3DataStore{
		client:   client,
		uploader: uploader,
		bucket:   bucket,
		prefix:   strings.Trim(prefix, "/"),
	}
}

func (s *S3DataStore) key(location string) string {
	return path.Join(s.prefix, strings.TrimPrefix(location, "/"))
}

func (s *S3DataStore) retry(ctx context.Context, op string, f func(ctx context.Context) error) error {
	tries := 0
	return utils.Retry(ctx, s3MaxTries, func(ctx context.Context) error {
		if tries > 0 {
			metrics.ObjectStoreRetries.WithLabelValues("s3", op).Inc()
		}
		tries++
		err := f(ctx)
		if isNotFound(err) {
			return utils.Permanent(err)
		}
		return err
	})
}

func (s *S3DataStore) Get(ctx context.Context, location string) (io.ReadCloser, error) {
	return s.get(ctx, location, nil)
}

func (s *S3DataStore) GetRange(ctx context.Context, location string, start, end int64) (io.ReadCloser, error) {
	if start >= end {
		return io.NopCloser(strings.NewReader("")), nil
	}
	return s.get(ctx, location, aws.String(fmt.Sprintf("bytes=%d-%d", start, end-1)))
}

func (s *S3DataStore) get(ctx context.Context, location string, byteRange *string) (io.ReadCloser, error) {
	var out *s3.GetObjectOutput
	err := s.retry(ctx, "get", func(ctx context.Context) (err error) {
		out, err = s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.key(location)),
			Range:  byteRange,
		})
		return
	})
	if err != nil {
		return nil, s.mapError(err, location)
	}
	return out.Body, nil
}

func (s *S3DataStore) Head(ctx context.Context, location string) (ObjectMeta, error) {
	var out *s3.HeadObjectOutput
	err := s.retry(ctx, "head", func(ctx context.Context) (err error) {
		out, err = s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.key(location)),
		})
		return
	})
	if err != nil {
		return ObjectMeta{}, s.mapError(err, location)
	}
	return ObjectMeta{
		Location:     location,
		Size:         aws.Int64Value(out.ContentLength),
		LastModified: aws.TimeValue(out.LastModified),
	}, nil
}

func (s *S3DataStore) List(ctx context.Context, prefix string) ([]ObjectMeta, error) {
	var objects []ObjectMeta
	err := s.retry(ctx, "list", func(ctx context.Context) error {
		objects = objects[:0]
		return s.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
			Bucket: aws.String(s.bucket),
			Prefix: aws.String(s.key(prefix)),
		}, func(page *s3.ListObjectsV2Output, _ bool) bool {
			for _, obj := range page.Contents {
				key := aws.StringValue(obj.Key)
				if s.prefix != "" {
					key = strings.TrimPrefix(key, s.prefix+"/")
				}
				objects = append(objects, ObjectMeta{
					Location:     key,
					Size:         aws.Int64Value(obj.Size),
					LastModified: aws.TimeValue(obj.LastModified),
				})
			}
			return true
		})
	})
	if err != nil {
		return nil, fmt.Errorf("error listing objects: %w", err)
	}
	return objects, nil
}

// Put uploads r in one pass, so it is not retried.
func (s *S3DataStore) Put(ctx context.Context, location string, r io.Reader) error {
	logger := zerolog.Ctx(ctx)

	st := time.Now()
	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(location)),
		Body:   r,
	})
	if err != nil {
		return fmt.Errorf("error uploading to s3: %w", err)
	}

	d := time.Since(st)
	logger.Debug().Str("location", location).Int64("durationNS", d.Nanoseconds()).Str("durationHuman", d.String()).Msg("uploaded file to s3")
	return nil
}

func (s *S3DataStore) Open(ctx context.Context, location string) (File, error) {
	meta, err := s.Head(ctx, location)
	if err != nil {
		return nil, err
	}
	return &s3File{ctx: ctx, store: s, key: location, size: meta.Size}, nil
}

func (s *S3DataStore) OpenParquetFile(ctx context.Context, location string) (source.ParquetFile, error) {
	pf, err := s3_pq.NewS3FileReaderWithParams(ctx, s3_pq.S3FileReaderParams{
		Bucket:   s.bucket,
		Key:      s.key(location),
		S3Client: s.client,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating new s3 file reader: %w", err)
	}
	return pf, nil
}

func (s *S3DataStore) Shutdown(context.Context) error {
	return nil
}

func (s *S3DataStore) mapError(err error, location string) error {
	if isNotFound(err) {
		return fmt.Errorf("%w: s3://%s/%s", ErrNotFound, s.bucket, s.key(location))
	}
	return fmt.Errorf("error reading s3://%s/%s: %w", s.bucket, s.key(location), err)
}

func isNotFound(err error) bool {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	return false
}

func (f *s3File) Size() int64 {
	return f.size
}

func (f *s3File) ReadAt(p []byte, off int64) (int, error) {
	if off >= f.size {
		return 0, io.EOF
	}
	end := off + int64(len(p))
	if end > f.size {
		end = f.size
	}
	body, err := f.store.GetRange(f.ctx, f.key, off, end)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	n, err := io.ReadFull(body, p[:end-off])
	if err != nil {
		return n, fmt.Errorf("error in io.ReadFull: %w", err)
	}
	if end-off < int64(len(p)) {
		return n, io.EOF
	}
	return n, nil
}

func (f *s3File) Read(p []byte) (int, error) {
	n, err := f.ReadAt(p, f.offset)
	f.offset += int64(n)
	return n, err
}

func (f *s3File) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		offset += f.offset
	case io.SeekEnd:
		offset += f.size
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if offset < 0 {
		return 0, fmt.Errorf("negative position %d", offset)
	}
	f.offset = offset
	return offset, nil
}

func (f *s3File) Close() error {
	return nil
}
