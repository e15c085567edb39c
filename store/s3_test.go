package store

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type fakeS3 struct {
	objects map[string][]byte
	puts    []*s3.PutObjectInput
	getErr  error
	putErr  error
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{Message: aws.String("The specified key does not exist.")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(string(data)))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	f.puts = append(f.puts, in)
	body, _ := io.ReadAll(in.Body)
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = body
	return &s3.PutObjectOutput{}, nil
}

type fakePresign struct {
	expires time.Duration
}

func (f *fakePresign) PresignGetObject(_ context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	var opts s3.PresignOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	f.expires = opts.Expires
	return &v4.PresignedHTTPRequest{
		URL:    "https://" + aws.ToString(in.Bucket) + ".s3.amazonaws.com/" + aws.ToString(in.Key) + "?X-Amz-Signature=sig",
		Method: "GET",
	}, nil
}

func TestS3Store_PutSetsMetadata(t *testing.T) {
	fake := &fakeS3{}
	st := newS3Store(fake, &fakePresign{}, S3Config{})

	err := st.Put(t.Context(), "b", "k.png", []byte("abc"), PutOptions{
		ContentType:  ContentTypePNG,
		StorageClass: StorageClassOneZoneIA,
		ACL:          ACLPublicRead,
	})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if len(fake.puts) != 1 {
		t.Fatalf("expected 1 put, got %d", len(fake.puts))
	}
	in := fake.puts[0]
	if aws.ToString(in.ContentType) != "image/png" {
		t.Errorf("content type = %q", aws.ToString(in.ContentType))
	}
	if in.StorageClass != s3types.StorageClassOnezoneIa {
		t.Errorf("storage class = %q", in.StorageClass)
	}
	if in.ACL != s3types.ObjectCannedACLPublicRead {
		t.Errorf("acl = %q", in.ACL)
	}
	if aws.ToInt64(in.ContentLength) != 3 {
		t.Errorf("content length = %d", aws.ToInt64(in.ContentLength))
	}
}

func TestS3Store_PutLeavesUnsetMetadataEmpty(t *testing.T) {
	fake := &fakeS3{}
	st := newS3Store(fake, &fakePresign{}, S3Config{})

	if err := st.Put(t.Context(), "b", "k", []byte("x"), PutOptions{}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	in := fake.puts[0]
	if in.ContentType != nil || in.StorageClass != "" || in.ACL != "" {
		t.Errorf("expected no metadata, got %+v", in)
	}
}

func TestS3Store_FetchRoundTrip(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{"b/k.png": []byte("payload")}}
	st := newS3Store(fake, &fakePresign{}, S3Config{})

	got, err := st.Fetch(t.Context(), "b", "k.png")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(got) != "payload" {
		t.Errorf("Fetch = %q", got)
	}
}

func TestS3Store_FetchNoSuchKey(t *testing.T) {
	st := newS3Store(&fakeS3{}, &fakePresign{}, S3Config{})

	_, err := st.Fetch(t.Context(), "b", "missing.png")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if IsTransient(err) {
		t.Error("missing object should not be transient")
	}
}

func TestS3Store_FetchTransportError(t *testing.T) {
	fake := &fakeS3{getErr: errors.New("dial tcp: connection refused")}
	st := newS3Store(fake, &fakePresign{}, S3Config{})

	_, err := st.Fetch(t.Context(), "b", "k")
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
	if !IsTransient(err) {
		t.Error("network errors should be transient")
	}
}

func TestS3Store_FetchTooLarge(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{"b/k": []byte("0123456789")}}
	st := newS3Store(fake, &fakePresign{}, S3Config{MaxObjectBytes: 4})

	if _, err := st.Fetch(t.Context(), "b", "k"); err == nil {
		t.Fatal("expected error for oversized object")
	}
}

func TestS3Store_Presign(t *testing.T) {
	ps := &fakePresign{}
	st := newS3Store(&fakeS3{}, ps, S3Config{PresignTTL: 10 * time.Minute})

	u, err := st.Presign(t.Context(), "b", "shots/x.png")
	if err != nil {
		t.Fatalf("Presign: %v", err)
	}
	if !strings.HasPrefix(u, "https://b.s3.amazonaws.com/shots/x.png?") {
		t.Errorf("url = %q", u)
	}
	if ps.expires != 10*time.Minute {
		t.Errorf("expires = %v", ps.expires)
	}
}

func TestS3Store_PresignDefaultTTL(t *testing.T) {
	ps := &fakePresign{}
	st := newS3Store(&fakeS3{}, ps, S3Config{})

	if _, err := st.Presign(t.Context(), "b", "k"); err != nil {
		t.Fatalf("Presign: %v", err)
	}
	if ps.expires != time.Hour {
		t.Errorf("expires = %v, want 1h", ps.expires)
	}
}
