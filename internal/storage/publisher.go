// Package storage publishes speech artifacts at a URL the messaging gateway can fetch.
package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"
)

var ErrPublishFailed = errors.New("publish failed")

// KeyPrefix is prepended to the artifact base name to form the object key.
const KeyPrefix = "audio_"

// ObjectKey is the published name of the artifact at path.
func ObjectKey(path string) string {
	return KeyPrefix + filepath.Base(path)
}

type putObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Config struct {
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

type S3Publisher struct {
	client putObjectAPI
	bucket string
	region string
	log    *logrus.Entry
}

// NewS3Publisher builds a client from static keys when given, otherwise from
// the default AWS credential chain.
func NewS3Publisher(ctx context.Context, cfg S3Config, log *logrus.Entry) (*S3Publisher, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return newS3Publisher(s3.NewFromConfig(awsCfg), cfg.Bucket, cfg.Region, log), nil
}

func newS3Publisher(client putObjectAPI, bucket, region string, log *logrus.Entry) *S3Publisher {
	return &S3Publisher{client: client, bucket: bucket, region: region, log: log.WithField("component", "storage.s3")}
}

// Publish uploads the file and returns its virtual-hosted URL.
func (p *S3Publisher) Publish(ctx context.Context, path, contentType string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPublishFailed, err)
	}
	defer f.Close()

	key := ObjectKey(path)
	_, err = p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		p.log.WithError(err).WithField("key", key).Warn("s3 upload failed")
		return "", fmt.Errorf("%w: %v", ErrPublishFailed, err)
	}
	u := S3URL(p.bucket, p.region, key)
	p.log.WithField("url", u).Info("uploaded speech artifact")
	return u, nil
}

// S3URL is the public virtual-hosted-style URL of key.
func S3URL(bucket, region, key string) string {
	if region == "" || region == "us-east-1" {
		return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", bucket, url.PathEscape(key))
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bucket, region, url.PathEscape(key))
}

// LocalPublisher leaves the file in the artifact directory and hands out a
// URL served by GET /audio/{name}.
type LocalPublisher struct {
	baseURL string
	log     *logrus.Entry
}

func NewLocalPublisher(baseURL string, log *logrus.Entry) *LocalPublisher {
	return &LocalPublisher{baseURL: strings.TrimRight(baseURL, "/"), log: log.WithField("component", "storage.local")}
}

func (p *LocalPublisher) Publish(_ context.Context, path, _ string) (string, error) {
	if p.baseURL == "" {
		return "", fmt.Errorf("%w: no public base URL configured", ErrPublishFailed)
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("%w: %v", ErrPublishFailed, err)
	}
	u := p.baseURL + "/audio/" + url.PathEscape(filepath.Base(path))
	p.log.WithField("url", u).Debug("serving speech artifact locally")
	return u, nil
}
