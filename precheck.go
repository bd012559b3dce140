package imago

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	awssession "github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// ErrObjectNotFound is returned when the source object does not exist.
var ErrObjectNotFound = errors.New("source object not found")

// Prechecker checks that a source object exists before an assembly is
// submitted for it.
type Prechecker interface {
	Check(ctx context.Context, bucket, key string) error
}

// S3Prechecker checks objects with an S3 HEAD request.
type S3Prechecker struct {
	c s3iface.S3API
}

// NewS3Prechecker creates a prechecker using the bucket credentials of cfg.
// Without explicit credentials the default AWS credential chain is used.
func NewS3Prechecker(cfg Config) (*S3Prechecker, error) {
	awsCfg := aws.NewConfig()
	if cfg.S3Region != "" {
		awsCfg = awsCfg.WithRegion(cfg.S3Region)
	}
	if cfg.S3Key != "" && cfg.S3Secret != "" {
		awsCfg = awsCfg.WithCredentials(credentials.NewStaticCredentials(cfg.S3Key, cfg.S3Secret, ""))
	}

	session, err := awssession.NewSession(awsCfg)
	if err != nil {
		return nil, err
	}
	return &S3Prechecker{c: s3.New(session)}, nil
}

func (p *S3Prechecker) Check(ctx context.Context, bucket, key string) error {
	_, err := p.c.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return nil
	}

	var rf awserr.RequestFailure
	if errors.As(err, &rf) && rf.StatusCode() == http.StatusNotFound {
		return fmt.Errorf("%w: s3://%s/%s", ErrObjectNotFound, bucket, key)
	}
	return err
}
