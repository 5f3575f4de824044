package s3

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"go.uber.org/zap"

	"github.com/ebogdum/davgate/auth"
	"github.com/ebogdum/davgate/config"
	"github.com/ebogdum/davgate/session"
)

const (
	backendName      = "s3"
	defaultOpTimeout = 10 * time.Second
)

// ClientFactory builds an S3 client signing with the given keys.
type ClientFactory func(cfg config.BackendConfig, accessKey, secretKey string) (s3iface.S3API, error)

// Authenticator treats the Basic username as an access key id and the
// password as its secret, and accepts them if S3 lets that identity see the
// configured bucket.
type Authenticator struct {
	cfg       config.BackendConfig
	newClient ClientFactory
	logger    *zap.Logger
}

var _ auth.BackendAuthenticator = (*Authenticator)(nil)

// NewAuthenticator returns an authenticator using NewClient for each login.
func NewAuthenticator(cfg config.BackendConfig, logger *zap.Logger) *Authenticator {
	return NewAuthenticatorWithFactory(cfg, NewClient, logger)
}

func NewAuthenticatorWithFactory(cfg config.BackendConfig, factory ClientFactory, logger *zap.Logger) *Authenticator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = defaultOpTimeout
	}
	return &Authenticator{cfg: cfg, newClient: factory, logger: logger.Named(backendName)}
}

func (a *Authenticator) Name() string {
	return backendName
}

func (a *Authenticator) Authenticate(ctx context.Context, accessKey, secretKey string) (*session.Descriptor, error) {
	if accessKey == "" || secretKey == "" {
		return nil, fmt.Errorf("%w: empty credentials", auth.ErrAuthenticationFailed)
	}

	client, err := a.newClient(a.cfg, accessKey, secretKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", auth.ErrBackendUnavailable, err)
	}

	probeCtx, cancel := context.WithTimeout(ctx, a.cfg.OpTimeout)
	defer cancel()

	_, err = client.HeadBucketWithContext(probeCtx, &s3.HeadBucketInput{
		Bucket: aws.String(a.cfg.S3BucketName),
	})
	switch {
	case err == nil:
	case isS3Denied(err):
		return nil, fmt.Errorf("%w: %v", auth.ErrAuthenticationFailed, err)
	default:
		return nil, fmt.Errorf("%w: head bucket %s: %v", auth.ErrBackendUnavailable, a.cfg.S3BucketName, err)
	}

	storage, err := NewS3Adapter(client, a.cfg, a.logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", auth.ErrBackendUnavailable, err)
	}

	return &session.Descriptor{
		User:            accessKey,
		Backend:         backendName,
		Home:            a.cfg.S3BucketName,
		AuthenticatedAt: time.Now().UTC(),
		Storage:         storage,
	}, nil
}
