package bodystore

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type object struct {
	body     []byte
	metadata map[string]*string
	ctype    string
}

type fakeS3 struct {
	s3iface.S3API

	mu      sync.Mutex
	objects map[string]object
	putErr  error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string]object{}}
}

func (f *fakeS3) PutObjectWithContext(_ aws.Context, in *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[*in.Bucket+"/"+*in.Key] = object{body: b, metadata: in.Metadata, ctype: aws.StringValue(in.ContentType)}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) HeadObjectWithContext(_ aws.Context, in *s3.HeadObjectInput, _ ...request.Option) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[*in.Bucket+"/"+*in.Key]; !ok {
		return nil, awserr.New("NotFound", "not found", nil)
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3) GetObjectWithContext(_ aws.Context, in *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "no such key", nil)
	}
	return &s3.GetObjectOutput{
		Body:         io.NopCloser(bytes.NewReader(obj.body)),
		Metadata:     obj.metadata,
		LastModified: aws.Time(time.Unix(1700000000, 0)),
	}, nil
}

func TestS3ArchiveSaveGet(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	archive := NewS3ArchiveWithClient(fake, "bucket", "/mail/")

	body := Body{
		Account:   "user@example.com",
		FolderID:  "INBOX",
		UID:       9,
		MessageID: "m1@example.com",
		Date:      time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Raw:       []byte("raw message"),
	}
	require.NoError(t, archive.Save(ctx, body))

	require.Len(t, fake.objects, 1)
	for key, obj := range fake.objects {
		assert.Regexp(t, `^bucket/mail/user@example.com/[0-9a-f]{64}\.eml$`, key)
		assert.Equal(t, "message/rfc822", obj.ctype)
		assert.Equal(t, "m1@example.com", aws.StringValue(obj.metadata["Message-Id"]))
		assert.Equal(t, "2024-01-02T03:04:05Z", aws.StringValue(obj.metadata["Date"]))
	}

	has, err := archive.Has(ctx, body.Account, body.MessageID)
	require.NoError(t, err)
	assert.True(t, has)

	got, ok, err := archive.Get(ctx, body.Account, body.MessageID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, body.Raw, got.Raw)
	assert.Equal(t, "INBOX", got.FolderID)
	assert.Equal(t, uint32(9), got.UID)
	assert.False(t, got.SavedAt.IsZero())
}

func TestS3ArchiveMissing(t *testing.T) {
	ctx := context.Background()
	archive := NewS3ArchiveWithClient(newFakeS3(), "bucket", "")

	has, err := archive.Has(ctx, "a", "m")
	require.NoError(t, err)
	assert.False(t, has)

	_, ok, err := archive.Get(ctx, "a", "m")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = archive.DownloadedIDs(ctx, "a")
	assert.Error(t, err)
}

func TestS3ArchiveSaveError(t *testing.T) {
	fake := newFakeS3()
	fake.putErr = errors.New("access denied")
	archive := NewS3ArchiveWithClient(fake, "bucket", "")

	err := archive.Save(context.Background(), Body{Account: "a", MessageID: "m"})
	assert.ErrorContains(t, err, "put m: access denied")
	assert.ErrorIs(t, archive.Save(context.Background(), Body{}), ErrInvalidBody)
}

func TestNewS3ArchiveRequiresBucket(t *testing.T) {
	_, err := NewS3Archive(S3Config{})
	assert.Error(t, err)

	archive, err := NewS3Archive(S3Config{
		Endpoint: "https://nyc3.digitaloceanspaces.com",
		Region:   "nyc3",
		Bucket:   "inboxsync",
		Key:      "key",
		Secret:   "secret",
	})
	require.NoError(t, err)
	assert.Equal(t, "inboxsync", archive.bucket)
}

func TestMultiFansOutSaves(t *testing.T) {
	ctx := context.Background()
	primary := openTemp(t)
	fake := newFakeS3()
	multi := NewMulti(primary, NewS3ArchiveWithClient(fake, "bucket", ""))

	require.NoError(t, multi.Save(ctx, Body{Account: "a", MessageID: "m", Raw: []byte("x")}))
	assert.Len(t, fake.objects, 1)

	ids, err := multi.DownloadedIDs(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"m"}, ids)

	has, err := multi.Has(ctx, "a", "m")
	require.NoError(t, err)
	assert.True(t, has)

	fake.putErr = errors.New("offline")
	err = multi.Save(ctx, Body{Account: "a", MessageID: "n", Raw: []byte("y")})
	assert.ErrorContains(t, err, "offline")

	// the primary still got the write
	_, ok, err := multi.Get(ctx, "a", "n")
	require.NoError(t, err)
	assert.True(t, ok)
}
