package s3

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"go.uber.org/zap"

	"github.com/ebogdum/davgate/config"
)

// S3Adapter implements the backends.Storage interface for one S3 identity.
// Each authenticated user gets an adapter bound to a client built from that
// user's own keys.
type S3Adapter struct {
	client               s3iface.S3API
	bucketName           string
	serverSideEncryption string
	acl                  string
	kmsKeyID             string
	logger               *zap.Logger
}

// NewS3Adapter wraps client for the bucket and write options in cfg.
func NewS3Adapter(client s3iface.S3API, cfg config.BackendConfig, logger *zap.Logger) (*S3Adapter, error) {
	if cfg.S3BucketName == "" {
		return nil, fmt.Errorf("S3 bucket name is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &S3Adapter{
		client:               client,
		bucketName:           cfg.S3BucketName,
		serverSideEncryption: cfg.S3ServerSideEncryption,
		acl:                  cfg.S3ACL,
		kmsKeyID:             cfg.S3KMSKeyID,
		logger:               logger,
	}, nil
}

// NewClient builds an S3 client that signs with the given static keys.
func NewClient(cfg config.BackendConfig, accessKey, secretKey string) (s3iface.S3API, error) {
	awsConfig := &aws.Config{
		Region:      aws.String(cfg.S3Region),
		Credentials: credentials.NewStaticCredentials(accessKey, secretKey, ""),
		DisableSSL:  aws.Bool(cfg.S3DisableSSL),
		// Retries would multiply the latency of a rejected login.
		MaxRetries: aws.Int(0),
	}

	// Custom endpoint (MinIO and other S3-compatible stores)
	if cfg.S3Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.S3Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(true)
		awsConfig.S3DisableContentMD5Validation = aws.Bool(true)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	return s3.New(sess), nil
}

// Close releases nothing; the client holds no per-user resources.
func (a *S3Adapter) Close() error {
	return nil
}

// pathToKey converts a rooted name to an object key.
func (a *S3Adapter) pathToKey(name string) string {
	return strings.TrimPrefix(name, "/")
}

// dirPrefix returns the key prefix under which the children of name live.
func (a *S3Adapter) dirPrefix(name string) string {
	prefix := a.pathToKey(name)
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix
}

// keyToPath converts an object key to a rooted name.
func (a *S3Adapter) keyToPath(key string) string {
	key = strings.TrimSuffix(key, "/")
	if key == "" {
		return "/"
	}
	return "/" + key
}

// isS3NotFound checks if an error indicates the object was not found
func isS3NotFound(err error) bool {
	var reqErr awserr.RequestFailure
	if errors.As(err, &reqErr) && reqErr.StatusCode() == http.StatusNotFound {
		return true
	}
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, s3.ErrCodeNoSuchBucket, "NotFound":
			return true
		}
	}
	return false
}

// isS3Denied reports whether S3 refused the caller's identity or permissions.
func isS3Denied(err error) bool {
	var reqErr awserr.RequestFailure
	if errors.As(err, &reqErr) {
		switch reqErr.StatusCode() {
		case http.StatusUnauthorized, http.StatusForbidden:
			return true
		}
	}
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case "InvalidAccessKeyId", "SignatureDoesNotMatch", "AccessDenied", "Forbidden":
			return true
		}
	}
	return false
}
