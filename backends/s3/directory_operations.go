package s3

import (
	"bytes"
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"go.uber.org/zap"

	"github.com/ebogdum/davgate/metadata"
)

// ListDirectory lists the immediate children of a directory
func (a *S3Adapter) ListDirectory(ctx context.Context, name string) ([]*metadata.Metadata, error) {
	prefix := a.dirPrefix(name)

	input := &s3.ListObjectsV2Input{
		Bucket:    aws.String(a.bucketName),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	}

	var results []*metadata.Metadata

	err := a.client.ListObjectsV2PagesWithContext(ctx, input, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, commonPrefix := range page.CommonPrefixes {
			dirKey := aws.StringValue(commonPrefix.Prefix)
			if strings.TrimSuffix(strings.TrimPrefix(dirKey, prefix), "/") == "" {
				continue
			}
			results = append(results, a.directoryMetadata(a.keyToPath(dirKey)))
		}

		for _, object := range page.Contents {
			key := aws.StringValue(object.Key)
			// The directory marker itself
			if key == prefix || strings.HasSuffix(key, "/") {
				continue
			}

			md := &metadata.Metadata{
				Name:        strings.TrimPrefix(key, prefix),
				Path:        a.keyToPath(key),
				Type:        metadata.TypeFile,
				Size:        aws.Int64Value(object.Size),
				Mode:        "0644",
				ETag:        aws.StringValue(object.ETag),
				BackendType: "s3",
			}
			if object.LastModified != nil {
				md.MTime = *object.LastModified
				md.ATime = *object.LastModified
				md.CTime = *object.LastModified
			}
			results = append(results, md)
		}
		return true
	})
	if err != nil {
		return nil, mapS3Error("list objects", err)
	}

	return results, nil
}

// CreateDirectory writes an empty "/"-suffixed marker object.
func (a *S3Adapter) CreateDirectory(ctx context.Context, name string) error {
	if _, err := a.Stat(ctx, name); err == nil {
		return metadata.ErrAlreadyExists
	} else if !errors.Is(err, metadata.ErrNotFound) {
		return err
	}

	key := a.dirPrefix(name)
	putInput := &s3.PutObjectInput{
		Bucket: aws.String(a.bucketName),
		Key:    aws.String(key),
		Body:   bytes.NewReader(nil),
	}
	a.applyWriteOptions(putInput)

	if _, err := a.client.PutObjectWithContext(ctx, putInput); err != nil {
		return mapS3Error("create directory marker", err)
	}

	a.logger.Debug("Directory created",
		zap.String("bucket", a.bucketName),
		zap.String("key", key))

	return nil
}

// Rename copies every object under oldName to newName and then deletes the
// originals. It is not atomic: a failure part way leaves both copies.
func (a *S3Adapter) Rename(ctx context.Context, oldName, newName string) error {
	md, err := a.Stat(ctx, oldName)
	if err != nil {
		return err
	}

	if !md.IsDir() {
		if dst, err := a.Stat(ctx, newName); err == nil && dst.IsDir() {
			return metadata.ErrAlreadyExists
		}
		return a.moveObject(ctx, a.pathToKey(oldName), a.pathToKey(newName))
	}

	if _, err := a.Stat(ctx, newName); err == nil {
		return metadata.ErrAlreadyExists
	}

	oldPrefix, newPrefix := a.dirPrefix(oldName), a.dirPrefix(newName)
	if oldPrefix == "" || strings.HasPrefix(newPrefix, oldPrefix) {
		return metadata.ErrForbidden
	}

	var keys []string
	err = a.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucketName),
		Prefix: aws.String(oldPrefix),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, object := range page.Contents {
			keys = append(keys, aws.StringValue(object.Key))
		}
		return true
	})
	if err != nil {
		return mapS3Error("list objects", err)
	}

	for _, key := range keys {
		if err := a.moveObject(ctx, key, newPrefix+strings.TrimPrefix(key, oldPrefix)); err != nil {
			return err
		}
	}
	return nil
}

func (a *S3Adapter) moveObject(ctx context.Context, srcKey, dstKey string) error {
	copyInput := &s3.CopyObjectInput{
		Bucket:     aws.String(a.bucketName),
		Key:        aws.String(dstKey),
		CopySource: aws.String(url.PathEscape(a.bucketName + "/" + srcKey)),
	}
	if a.serverSideEncryption != "" {
		copyInput.ServerSideEncryption = aws.String(a.serverSideEncryption)
		if a.serverSideEncryption == s3.ServerSideEncryptionAwsKms && a.kmsKeyID != "" {
			copyInput.SSEKMSKeyId = aws.String(a.kmsKeyID)
		}
	}
	if a.acl != "" {
		copyInput.ACL = aws.String(a.acl)
	}

	if _, err := a.client.CopyObjectWithContext(ctx, copyInput); err != nil {
		return mapS3Error("copy object", err)
	}
	if _, err := a.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.bucketName),
		Key:    aws.String(srcKey),
	}); err != nil {
		return mapS3Error("delete object", err)
	}

	a.logger.Debug("Object moved",
		zap.String("bucket", a.bucketName),
		zap.String("from", srcKey),
		zap.String("to", dstKey))

	return nil
}
