package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// fakeS3 keeps objects in memory and can fail the first N calls of PutObject.
type fakeS3 struct {
	mu        sync.Mutex
	objects   map[string][]byte
	parts     map[int32][]byte
	putFails  int
	putCalls  int
	partCalls int
	aborted   bool
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte), parts: make(map[int32][]byte)}
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.putCalls++
	if f.putCalls <= f.putFails {
		return nil, errors.New("transient")
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{ETag: aws.String("etag-put")}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[aws.ToString(in.Key)]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) CreateMultipartUpload(ctx context.Context, in *s3.CreateMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return &s3.CreateMultipartUploadOutput{UploadId: aws.String("upload-1")}, nil
}

func (f *fakeS3) UploadPart(ctx context.Context, in *s3.UploadPartInput, _ ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.partCalls++
	f.parts[aws.ToInt32(in.PartNumber)] = data
	return &s3.UploadPartOutput{ETag: aws.String("part")}, nil
}

func (f *fakeS3) CompleteMultipartUpload(ctx context.Context, in *s3.CompleteMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []byte
	for _, p := range in.MultipartUpload.Parts {
		all = append(all, f.parts[aws.ToInt32(p.PartNumber)]...)
	}
	f.objects[aws.ToString(in.Key)] = all
	return &s3.CompleteMultipartUploadOutput{ETag: aws.String("etag-multipart")}, nil
}

func (f *fakeS3) AbortMultipartUpload(ctx context.Context, in *s3.AbortMultipartUploadInput, _ ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborted = true
	return &s3.AbortMultipartUploadOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := &s3.ListObjectsV2Output{}
	for k := range f.objects {
		if len(k) >= len(aws.ToString(in.Prefix)) && k[:len(aws.ToString(in.Prefix))] == aws.ToString(in.Prefix) {
			out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
		}
	}
	return out, nil
}

func newTestS3(fake *fakeS3, partSize int64) *S3Storage {
	s := NewS3StorageWithClient(fake, "bucket", S3Config{MultipartConfig: MultipartUploadConfig{PartSize: partSize}}, nil)
	s.backoff = time.Millisecond
	return s
}

func TestS3Storage_UploadRetries(t *testing.T) {
	fake := newFakeS3()
	fake.putFails = 2
	s := newTestS3(fake, 1024)

	etag, err := s.Upload(context.Background(), writeFile(t, "2 1500\n"), "runs/x/outputfile.summary")
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if etag != "etag-put" {
		t.Errorf("unexpected etag %s", etag)
	}
	if fake.putCalls != 3 {
		t.Errorf("expected 3 put attempts, got %d", fake.putCalls)
	}
	if string(fake.objects["runs/x/outputfile.summary"]) != "2 1500\n" {
		t.Errorf("unexpected object content %q", fake.objects["runs/x/outputfile.summary"])
	}
}

func TestS3Storage_UploadGivesUp(t *testing.T) {
	fake := newFakeS3()
	fake.putFails = 100
	s := newTestS3(fake, 1024)

	_, err := s.Upload(context.Background(), writeFile(t, "x"), "obj")
	if !errors.Is(err, ErrUploadFailed) {
		t.Errorf("expected ErrUploadFailed, got %v", err)
	}
	if fake.putCalls != 4 {
		t.Errorf("expected 4 put attempts, got %d", fake.putCalls)
	}
}

func TestS3Storage_MultipartUpload(t *testing.T) {
	fake := newFakeS3()
	s := newTestS3(fake, 4)

	etag, err := s.Upload(context.Background(), writeFile(t, "0123456789"), "snap")
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if etag != "etag-multipart" {
		t.Errorf("unexpected etag %s", etag)
	}
	if fake.partCalls != 3 {
		t.Errorf("expected 3 parts, got %d", fake.partCalls)
	}
	if string(fake.objects["snap"]) != "0123456789" {
		t.Errorf("unexpected object content %q", fake.objects["snap"])
	}
}

func TestS3Storage_DownloadExistsDeleteList(t *testing.T) {
	fake := newFakeS3()
	s := newTestS3(fake, 1024)
	ctx := context.Background()
	fake.objects["runs/a/x"] = []byte("hello")
	fake.objects["runs/b/y"] = []byte("world")

	dst := filepath.Join(t.TempDir(), "out")
	if err := s.Download(ctx, "runs/a/x", dst); err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if data, _ := os.ReadFile(dst); string(data) != "hello" {
		t.Errorf("unexpected content %q", data)
	}
	if err := s.Download(ctx, "missing", dst); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("expected ErrObjectNotFound, got %v", err)
	}

	objects, err := s.ListObjects(ctx, "runs/")
	if err != nil || len(objects) != 2 || objects[0] != "runs/a/x" {
		t.Errorf("unexpected list %v, %v", objects, err)
	}

	if ok, err := s.Exists(ctx, "runs/a/x"); err != nil || !ok {
		t.Errorf("expected object to exist, got %v, %v", ok, err)
	}
	if err := s.Delete(ctx, "runs/a/x"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if ok, err := s.Exists(ctx, "runs/a/x"); err != nil || ok {
		t.Errorf("expected object to be gone, got %v, %v", ok, err)
	}
}
