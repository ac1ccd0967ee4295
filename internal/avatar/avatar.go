// Package avatar stores profile pictures in an S3-compatible bucket and
// builds the generated fallback pictures used until a user uploads one.
package avatar

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// MaxSize is the largest accepted upload.
const MaxSize = 5 << 20

const defaultAvatarBase = "https://api.dicebear.com/8.x/lorelei/png"

var (
	ErrNotConfigured = errors.New("avatar storage not configured")
	ErrTooLarge      = errors.New("avatar exceeds 5 MiB")
	ErrUnsupported   = errors.New("avatar must be a JPEG, PNG or WebP image")
)

var extensions = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
}

// S3Config holds S3-compatible storage configuration.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	// PublicURL is the base under which uploaded objects are readable.
	// Defaults to <Endpoint>/<Bucket>.
	PublicURL string
}

// Configured reports whether uploads can be stored.
func (c S3Config) Configured() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Store uploads avatars. A Store built from an unconfigured S3Config rejects
// uploads with ErrNotConfigured.
type Store struct {
	cfg    S3Config
	client s3Client
	now    func() time.Time
}

func NewStore(cfg S3Config) *Store {
	s := &Store{cfg: cfg, now: time.Now}
	if cfg.Configured() {
		s.client = newS3Client(cfg)
	}
	return s
}

func newS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if opts.Region == "" {
		opts.Region = "auto"
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

func (s *Store) Configured() bool {
	return s.client != nil
}

// Upload validates data and stores it as <userID>-<unix>.<ext>, returning
// the public URL of the object.
func (s *Store) Upload(ctx context.Context, userID int64, data []byte) (string, error) {
	if s.client == nil {
		return "", ErrNotConfigured
	}
	if len(data) > MaxSize {
		return "", ErrTooLarge
	}
	contentType := http.DetectContentType(data)
	ext, ok := extensions[contentType]
	if !ok {
		return "", ErrUnsupported
	}

	key := fmt.Sprintf("%d-%d.%s", userID, s.now().Unix(), ext)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("upload avatar: %w", err)
	}
	return s.publicURL(key), nil
}

func (s *Store) publicURL(key string) string {
	base := s.cfg.PublicURL
	if base == "" {
		base = strings.TrimRight(s.cfg.Endpoint, "/") + "/" + s.cfg.Bucket
	}
	return strings.TrimRight(base, "/") + "/" + url.PathEscape(key)
}

// DefaultURL returns the generated avatar for seed. The same seed always
// yields the same picture.
func DefaultURL(seed string) string {
	return defaultAvatarBase + "?seed=" + url.QueryEscape(seed)
}
