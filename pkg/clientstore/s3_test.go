package clientstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type fakeObject struct {
	data     []byte
	metadata map[string]string
}

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]fakeObject
	getErr  error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string]fakeObject)}
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Bucket)+":"+aws.ToString(in.Key)] = fakeObject{data: data, metadata: in.Metadata}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	obj, ok := f.objects[aws.ToString(in.Bucket)+":"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:     io.NopCloser(bytes.NewReader(obj.data)),
		Metadata: obj.metadata,
	}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Bucket)+":"+aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3Store(t *testing.T) {
	client := newFakeS3()
	store := NewS3Store(client, "bucket", "jj")
	ctx := context.Background()

	if err := store.Save(ctx, "chat/b1", []byte(`{"a":1}`), time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, ok := client.objects["bucket:jj/chat/b1.json"]; !ok {
		t.Fatalf("object keys=%v, want bucket:jj/chat/b1.json", client.objects)
	}

	loaded, err := store.Load(ctx, "chat/b1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(loaded) != `{"a":1}` {
		t.Fatalf("Load=%s, want {\"a\":1}", loaded)
	}

	if err := store.Delete(ctx, "chat/b1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	loaded, err = store.Load(ctx, "chat/b1")
	if err != nil || loaded != nil {
		t.Fatalf("Load after Delete=%s, %v; want nil, nil", loaded, err)
	}
}

func TestS3StoreExpired(t *testing.T) {
	store := NewS3Store(newFakeS3(), "bucket", "")
	ctx := context.Background()

	if err := store.Save(ctx, "k", []byte("x"), time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := store.Load(ctx, "k")
	if err != nil || loaded != nil {
		t.Fatalf("Load=%s, %v; want nil, nil", loaded, err)
	}
}

func TestS3StoreGetError(t *testing.T) {
	client := newFakeS3()
	client.getErr = errors.New("access denied")
	store := NewS3Store(client, "bucket", "")

	if _, err := store.Load(context.Background(), "k"); err == nil {
		t.Fatal("Load succeeded, want error")
	}
}

func TestS3StoreClosed(t *testing.T) {
	store := NewS3Store(newFakeS3(), "bucket", "")
	store.Close()

	var closed ErrStoreClosed
	if err := store.Save(context.Background(), "k", nil, time.Now()); !errors.As(err, &closed) {
		t.Fatalf("Save err=%v, want ErrStoreClosed", err)
	}
}
