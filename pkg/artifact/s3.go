/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package artifact

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"k8s.io/klog/v2"
	"k8s.io/utils/pointer"

	"github.com/AMD-AIG-AIMA/Custos/pkg/config"
	customerrors "github.com/AMD-AIG-AIMA/Custos/pkg/errors"
)

const (
	s3DefaultTimeout = 180 * time.Second

	uploadPartSize = 100 * 1024 * 1024 // 100MB per part
)

// S3Store persists blobs in an S3-compatible bucket. The upload manager
// buffers the stream, so the content hash is computed on the way in and a
// failed upload publishes nothing, matching the atomic-write contract.
type S3Store struct {
	bucket   *string
	s3Client *s3.Client
}

func NewS3Store(ctx context.Context) (*S3Store, error) {
	if !config.IsS3Enable() {
		return nil, fmt.Errorf("s3 is disabled")
	}
	ak, sk := config.GetS3AccessKey(), config.GetS3SecretKey()
	endpoint, bucket := config.GetS3Endpoint(), config.GetS3Bucket()
	if ak == "" || sk == "" {
		return nil, fmt.Errorf("the s3 credentials are empty")
	}
	if endpoint == "" {
		return nil, fmt.Errorf("the s3 endpoint is empty")
	}
	if bucket == "" {
		return nil, fmt.Errorf("the s3 bucket is empty")
	}

	credProvider := aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
		return aws.Credentials{
			AccessKeyID:     ak,
			SecretAccessKey: sk,
			Source:          "StaticCredentials",
		}, nil
	})
	httpClient := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: true,
			},
		},
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(""),
		awsconfig.WithCredentialsProvider(credProvider),
		awsconfig.WithHTTPClient(httpClient),
		awsconfig.WithEndpointResolverWithOptions(
			aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				return aws.Endpoint{
					URL: endpoint,
				}, nil
			}),
		),
	)
	if err != nil {
		return nil, err
	}
	s3Client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})
	store := &S3Store{
		bucket:   pointer.String(bucket),
		s3Client: s3Client,
	}
	if err = store.checkBucketExisted(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *S3Store) checkBucketExisted(ctx context.Context) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, s3DefaultTimeout)
	defer cancel()
	_, err := s.s3Client.HeadBucket(timeoutCtx, &s3.HeadBucketInput{
		Bucket: s.bucket,
	})
	return err
}

func (s *S3Store) Write(ctx context.Context, name string, r io.Reader) (*WriteResult, error) {
	hasher := sha256.New()
	tee := io.TeeReader(r, hasher)

	uploader := manager.NewUploader(s.s3Client, func(u *manager.Uploader) {
		u.PartSize = uploadPartSize
	})
	timeoutCtx, cancel := context.WithTimeout(ctx, s3DefaultTimeout)
	defer cancel()
	_, err := uploader.Upload(timeoutCtx, &s3.PutObjectInput{
		Bucket: s.bucket,
		Key:    aws.String(name),
		Body:   tee,
	})
	if err != nil {
		return nil, err
	}

	head, err := s.s3Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: s.bucket,
		Key:    aws.String(name),
	})
	if err != nil {
		return nil, err
	}
	result := &WriteResult{
		Path:      name,
		Sha256:    hex.EncodeToString(hasher.Sum(nil)),
		SizeBytes: aws.ToInt64(head.ContentLength),
	}
	klog.V(4).Infof("uploaded artifact s3://%s/%s, size: %d", aws.ToString(s.bucket), name, result.SizeBytes)
	return result, nil
}

// WriteImmutable refuses to overwrite an existing key in the WORM
// namespace. Bucket-level object lock supplies the storage-side guarantee.
func (s *S3Store) WriteImmutable(ctx context.Context, name string, r io.Reader) (*WriteResult, error) {
	if !strings.HasPrefix(name, ImmutablePrefix) {
		name = path.Join(ImmutablePrefix, name)
	}
	if exists, err := s.Exists(ctx, name); err != nil {
		return nil, err
	} else if exists {
		return nil, customerrors.NewAlreadyExist(fmt.Sprintf("immutable blob %s already exists", name))
	}
	return s.Write(ctx, name, r)
}

func (s *S3Store) Read(ctx context.Context, name string) (io.ReadCloser, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, s3DefaultTimeout)
	out, err := s.s3Client.GetObject(timeoutCtx, &s3.GetObjectInput{
		Bucket: s.bucket,
		Key:    aws.String(name),
	})
	if err != nil {
		cancel()
		return nil, err
	}
	// the body must outlive the call; buffer it so the deadline does not
	// cut a slow consumer off mid-read
	defer cancel()
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *S3Store) Exists(ctx context.Context, name string) (bool, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, s3DefaultTimeout)
	defer cancel()
	_, err := s.s3Client.HeadObject(timeoutCtx, &s3.HeadObjectInput{
		Bucket: s.bucket,
		Key:    aws.String(name),
	})
	if err != nil {
		if strings.Contains(err.Error(), "NotFound") || strings.Contains(err.Error(), "404") {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *S3Store) PresignGet(ctx context.Context, name string, expireSeconds int64) (string, error) {
	presigner := s3.NewPresignClient(s.s3Client)
	req, err := presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: s.bucket,
		Key:    aws.String(name),
	}, func(o *s3.PresignOptions) {
		o.Expires = time.Duration(expireSeconds) * time.Second
	})
	if err != nil {
		return "", err
	}
	return req.URL, nil
}
