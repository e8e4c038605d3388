package storage

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/reelroll/reelroll/internal/video"
)

var ErrEmptyLibrary = errors.New("clip library has no videos")

var videoExtensions = map[string]bool{
	".mp4":  true,
	".webm": true,
	".mov":  true,
	".m4v":  true,
}

// Library serves random clips from an S3 bucket through presigned URLs.
type Library struct {
	client    *s3.Client
	presigner *s3.PresignClient
	bucket    string
	prefix    string
	urlExpiry time.Duration
}

type Config struct {
	Endpoint       string
	PublicEndpoint string // Used for presigned URLs; falls back to Endpoint if empty
	Bucket         string
	Prefix         string
	AccessKey      string
	SecretKey      string
	Region         string
	URLExpiry      time.Duration
}

func New(ctx context.Context, cfg Config) (*Library, error) {
	if cfg.Region == "" {
		cfg.Region = "eu-central-1"
	}
	if cfg.URLExpiry <= 0 {
		cfg.URLExpiry = time.Hour
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = true
	})

	presignEndpoint := cfg.Endpoint
	if cfg.PublicEndpoint != "" {
		presignEndpoint = cfg.PublicEndpoint
	}
	presignClient := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if presignEndpoint != "" {
			o.BaseEndpoint = aws.String(presignEndpoint)
		}
		o.UsePathStyle = true
	})

	return &Library{
		client:    client,
		presigner: s3.NewPresignClient(presignClient),
		bucket:    cfg.Bucket,
		prefix:    cfg.Prefix,
		urlExpiry: cfg.URLExpiry,
	}, nil
}

// CheckBucket fails if the library bucket does not exist or is not readable.
func (l *Library) CheckBucket(ctx context.Context) error {
	_, err := l.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(l.bucket),
	})
	if err != nil {
		return fmt.Errorf("head bucket %s: %w", l.bucket, err)
	}
	return nil
}

// Random picks one video object under the library prefix.
func (l *Library) Random(ctx context.Context) (video.Descriptor, error) {
	keys, err := l.listVideoKeys(ctx)
	if err != nil {
		return video.Descriptor{}, err
	}
	if len(keys) == 0 {
		return video.Descriptor{}, ErrEmptyLibrary
	}

	key := keys[rand.Intn(len(keys))]

	head, err := l.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(l.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return video.Descriptor{}, fmt.Errorf("head object %s: %w", key, err)
	}

	url, err := l.downloadURL(ctx, key)
	if err != nil {
		return video.Descriptor{}, err
	}

	d := descriptorFromMetadata(key, head.Metadata)
	d.VideoURL = url
	return d, nil
}

func (l *Library) listVideoKeys(ctx context.Context) ([]string, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(l.bucket),
	}
	if l.prefix != "" {
		input.Prefix = aws.String(l.prefix)
	}

	var keys []string
	paginator := s3.NewListObjectsV2Paginator(l.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		keys = append(keys, videoKeys(page.Contents)...)
	}
	return keys, nil
}

func (l *Library) downloadURL(ctx context.Context, key string) (string, error) {
	req, err := l.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(l.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(l.urlExpiry))
	if err != nil {
		return "", fmt.Errorf("presign download: %w", err)
	}
	return req.URL, nil
}

func videoKeys(objects []types.Object) []string {
	keys := make([]string, 0, len(objects))
	for _, obj := range objects {
		key := aws.ToString(obj.Key)
		if videoExtensions[strings.ToLower(path.Ext(key))] {
			keys = append(keys, key)
		}
	}
	return keys
}

// descriptorFromMetadata reads x-amz-meta-title, -photographer and
// -duration, naming the clip after its file when no title is set.
func descriptorFromMetadata(key string, metadata map[string]string) video.Descriptor {
	meta := make(map[string]string, len(metadata))
	for k, v := range metadata {
		meta[strings.ToLower(k)] = v
	}

	title := strings.TrimSpace(meta["title"])
	if title == "" {
		base := path.Base(key)
		title = strings.TrimSuffix(base, path.Ext(base))
	}

	duration, err := strconv.Atoi(strings.TrimSpace(meta["duration"]))
	if err != nil || duration < 0 {
		duration = 0
	}

	return video.Descriptor{
		Title:        title,
		Photographer: meta["photographer"],
		Duration:     duration,
	}
}
