package bodystore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/pkg/errors"
)

type S3Config struct {
	Endpoint string
	Region   string
	Bucket   string
	Key      string
	Secret   string
	Prefix   string
}

func (c S3Config) Enabled() bool {
	return strings.TrimSpace(c.Bucket) != ""
}

// S3Archive stores raw bodies as .eml objects. It works with DigitalOcean
// Spaces and other S3 compatible endpoints.
type S3Archive struct {
	client s3iface.S3API
	bucket string
	prefix string
}

func NewS3Archive(cfg S3Config) (*S3Archive, error) {
	if !cfg.Enabled() {
		return nil, errors.New("S3 bucket is required")
	}
	awsCfg := &aws.Config{
		Region:           aws.String(cfg.Region),
		S3ForcePathStyle: aws.Bool(true),
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
	}
	if cfg.Key != "" || cfg.Secret != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.Key, cfg.Secret, "")
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, errors.Wrap(err, "create S3 session")
	}
	return NewS3ArchiveWithClient(s3.New(sess), cfg.Bucket, cfg.Prefix), nil
}

func NewS3ArchiveWithClient(client s3iface.S3API, bucket, prefix string) *S3Archive {
	return &S3Archive{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
}

func (a *S3Archive) objectKey(account, messageID string) string {
	sum := sha256.Sum256([]byte(messageID))
	return path.Join(a.prefix, account, hex.EncodeToString(sum[:])+".eml")
}

func (a *S3Archive) Save(ctx context.Context, body Body) error {
	if err := body.validate(); err != nil {
		return err
	}
	metadata := map[string]*string{
		"Message-Id": aws.String(body.MessageID),
		"Folder":     aws.String(body.FolderID),
		"Uid":        aws.String(strconv.FormatUint(uint64(body.UID), 10)),
	}
	if !body.Date.IsZero() {
		metadata["Date"] = aws.String(body.Date.UTC().Format(time.RFC3339))
	}

	_, err := a.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(a.objectKey(body.Account, body.MessageID)),
		Body:        bytes.NewReader(body.Raw),
		ContentType: aws.String("message/rfc822"),
		Metadata:    metadata,
	})
	return errors.Wrapf(err, "put %s", body.MessageID)
}

func (a *S3Archive) Has(ctx context.Context, account, messageID string) (bool, error) {
	_, err := a.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.objectKey(account, messageID)),
	})
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (a *S3Archive) Get(ctx context.Context, account, messageID string) (Body, bool, error) {
	out, err := a.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.objectKey(account, messageID)),
	})
	if isNotFound(err) {
		return Body{}, false, nil
	}
	if err != nil {
		return Body{}, false, err
	}
	defer out.Body.Close()

	raw, err := io.ReadAll(out.Body)
	if err != nil {
		return Body{}, false, err
	}
	body := Body{Account: account, MessageID: messageID, Raw: raw}
	if v := out.Metadata["Folder"]; v != nil {
		body.FolderID = *v
	}
	if v := out.Metadata["Uid"]; v != nil {
		if uid, err := strconv.ParseUint(*v, 10, 32); err == nil {
			body.UID = uint32(uid)
		}
	}
	if out.LastModified != nil {
		body.SavedAt = *out.LastModified
	}
	return body, true, nil
}

// DownloadedIDs is not supported: object keys are hashed.
func (a *S3Archive) DownloadedIDs(context.Context, string) ([]string, error) {
	return nil, errors.New("S3 archive cannot list message ids")
}

func (a *S3Archive) Close() error {
	return nil
}

func isNotFound(err error) bool {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	return false
}
