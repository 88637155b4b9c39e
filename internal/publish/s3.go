package publish

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/John-Robertt/vidcollect/internal/infra/httpx"
)

// S3Options 描述一个 S3 兼容的存储桶。
type S3Options struct {
	Bucket   string
	Region   string
	Endpoint string // 为空则使用 AWS 默认 endpoint
	// PathStyle 用于 MinIO 等不支持虚拟主机风格的服务。
	PathStyle bool

	// 两者都为空时走默认凭证链（环境变量 / 共享配置 / 实例角色）。
	AccessKeyID     string
	SecretAccessKey string

	// Proxy 为空时遵循 HTTP(S)_PROXY 环境变量。
	Proxy string
}

// S3Store 通过 aws-sdk-go-v2 上传对象。
type S3Store struct {
	client *s3.Client
	bucket string
}

func NewS3Store(ctx context.Context, opt S3Options) (*S3Store, error) {
	if opt.Bucket == "" {
		return nil, fmt.Errorf("bucket 不能为空")
	}

	hc, err := httpx.NewUploadClient(opt.Proxy)
	if err != nil {
		return nil, fmt.Errorf("构造上传 HTTP client 失败：%w", err)
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opt.Region),
		awsconfig.WithHTTPClient(hc),
	}
	if opt.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opt.AccessKeyID, opt.SecretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("加载 AWS 配置失败：%w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = opt.PathStyle
		if opt.Endpoint != "" {
			o.BaseEndpoint = aws.String(opt.Endpoint)
		}
	})
	return &S3Store{client: client, bucket: opt.Bucket}, nil
}

func (s *S3Store) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          r,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("上传 s3://%s/%s 失败：%w", s.bucket, key, err)
	}
	return nil
}
