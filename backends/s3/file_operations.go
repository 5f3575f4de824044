package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"go.uber.org/zap"

	"github.com/ebogdum/davgate/metadata"
)

// mapS3Error converts S3 errors to metadata errors, keeping anything else wrapped.
func mapS3Error(op string, err error) error {
	switch {
	case isS3NotFound(err):
		return metadata.ErrNotFound
	case isS3Denied(err):
		return metadata.ErrForbidden
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

// Open opens a file for reading
func (a *S3Adapter) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	key := a.pathToKey(name)

	result, err := a.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, mapS3Error("get object", err)
	}

	a.logger.Debug("Object opened",
		zap.String("bucket", a.bucketName),
		zap.String("key", key))

	return result.Body, nil
}

// Create uploads a new object. Existence is checked by the caller; S3 has no
// exclusive create.
func (a *S3Adapter) Create(ctx context.Context, name string, reader io.Reader, size int64) error {
	return a.put(ctx, name, reader, size)
}

// Update replaces an object.
func (a *S3Adapter) Update(ctx context.Context, name string, reader io.Reader, size int64) error {
	return a.put(ctx, name, reader, size)
}

func (a *S3Adapter) put(ctx context.Context, name string, reader io.Reader, size int64) error {
	key := a.pathToKey(name)

	body, ok := reader.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(reader)
		if err != nil {
			return fmt.Errorf("failed to read data: %w", err)
		}
		body = bytes.NewReader(data)
	}

	putInput := &s3.PutObjectInput{
		Bucket:      aws.String(a.bucketName),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(getContentType(name)),
	}
	a.applyWriteOptions(putInput)

	if _, err := a.client.PutObjectWithContext(ctx, putInput); err != nil {
		return mapS3Error("put object", err)
	}

	a.logger.Debug("Object written",
		zap.String("bucket", a.bucketName),
		zap.String("key", key),
		zap.Int64("size", size))

	return nil
}

func (a *S3Adapter) applyWriteOptions(in *s3.PutObjectInput) {
	if a.serverSideEncryption != "" {
		in.ServerSideEncryption = aws.String(a.serverSideEncryption)
		if a.serverSideEncryption == s3.ServerSideEncryptionAwsKms && a.kmsKeyID != "" {
			in.SSEKMSKeyId = aws.String(a.kmsKeyID)
		}
	}
	if a.acl != "" {
		in.ACL = aws.String(a.acl)
	}
}

// Delete removes an object, or the marker of an empty directory.
func (a *S3Adapter) Delete(ctx context.Context, name string) error {
	if a.pathToKey(name) == "" {
		return metadata.ErrForbidden
	}

	md, err := a.Stat(ctx, name)
	if err != nil {
		return err
	}

	key := a.pathToKey(name)
	if md.IsDir() {
		children, err := a.ListDirectory(ctx, name)
		if err != nil {
			return err
		}
		if len(children) > 0 {
			return fmt.Errorf("directory %s is not empty", name)
		}
		key = a.dirPrefix(name)
	}

	_, err = a.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return mapS3Error("delete object", err)
	}

	a.logger.Debug("Object deleted",
		zap.String("bucket", a.bucketName),
		zap.String("key", key))

	return nil
}

// Stat returns metadata for an object or a directory. A directory is either
// a "/"-suffixed marker object or any prefix with objects under it.
func (a *S3Adapter) Stat(ctx context.Context, name string) (*metadata.Metadata, error) {
	key := a.pathToKey(name)
	if key == "" {
		return a.directoryMetadata("/"), nil
	}

	result, err := a.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.bucketName),
		Key:    aws.String(key),
	})
	if err == nil {
		md := &metadata.Metadata{
			Name:        path.Base(name),
			Path:        a.keyToPath(key),
			Type:        metadata.TypeFile,
			Size:        aws.Int64Value(result.ContentLength),
			Mode:        "0644",
			ContentType: aws.StringValue(result.ContentType),
			ETag:        aws.StringValue(result.ETag),
			BackendType: "s3",
		}
		if result.LastModified != nil {
			md.MTime = *result.LastModified
			md.ATime = *result.LastModified
			md.CTime = *result.LastModified
		}
		return md, nil
	}
	if !isS3NotFound(err) {
		return nil, mapS3Error("stat object", err)
	}

	listed, err := a.client.ListObjectsV2WithContext(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(a.bucketName),
		Prefix:  aws.String(a.dirPrefix(name)),
		MaxKeys: aws.Int64(1),
	})
	if err != nil {
		return nil, mapS3Error("stat prefix", err)
	}
	if aws.Int64Value(listed.KeyCount) == 0 && len(listed.Contents) == 0 {
		return nil, metadata.ErrNotFound
	}
	return a.directoryMetadata(a.keyToPath(key)), nil
}

func (a *S3Adapter) directoryMetadata(name string) *metadata.Metadata {
	return &metadata.Metadata{
		Name:        path.Base(name),
		Path:        name,
		Type:        metadata.TypeDirectory,
		Mode:        "0755",
		BackendType: "s3",
	}
}

// getContentType returns the MIME type based on file extension
func getContentType(name string) string {
	ext := strings.ToLower(path.Ext(name))
	switch ext {
	case ".txt":
		return "text/plain"
	case ".md":
		return "text/markdown"
	case ".json":
		return "application/json"
	case ".xml":
		return "application/xml"
	case ".pdf":
		return "application/pdf"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
