package blob

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
)

func TestFilesystemPutGetRoundTrip(t *testing.T) {
	store, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("new filesystem: %v", err)
	}
	ctx := context.Background()

	payload := []byte("col_a,col_b\n1,2\n")
	info, err := store.Put(ctx, "exports/job1/a.csv", bytes.NewReader(payload), PutOptions{ContentType: "text/csv", Metadata: map[string]string{"job": "job1"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != int64(len(payload)) || info.ContentType != "text/csv" || info.ETag == "" {
		t.Fatalf("unexpected info %+v", info)
	}

	got, rc, err := store.Get(ctx, "exports/job1/a.csv")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(data, payload) {
		t.Fatalf("payload mismatch")
	}
	if got.Metadata["job"] != "job1" {
		t.Fatalf("expected metadata to round trip, got %+v", got.Metadata)
	}

	if _, err := store.Put(ctx, "exports/job1/a.csv", bytes.NewReader(payload), PutOptions{}); err == nil {
		t.Fatalf("expected create-only put to fail on existing key")
	}
}

func TestFilesystemListAndDelete(t *testing.T) {
	store, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("new filesystem: %v", err)
	}
	ctx := context.Background()
	for _, key := range []string{"exports/a/1.csv", "exports/b/2.json", "other/3.txt"} {
		if _, err := store.Put(ctx, key, strings.NewReader("x"), PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}

	infos, err := store.List(ctx, "exports/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 || infos[0].Key != "exports/a/1.csv" || infos[1].Key != "exports/b/2.json" {
		t.Fatalf("unexpected listing %+v", infos)
	}

	existed, err := store.Delete(ctx, "exports/a/1.csv")
	if err != nil || !existed {
		t.Fatalf("delete: existed=%v err=%v", existed, err)
	}
	existed, err = store.Delete(ctx, "exports/a/1.csv")
	if err != nil || existed {
		t.Fatalf("second delete should be a no-op, existed=%v err=%v", existed, err)
	}
}

func TestFilesystemKeySanitization(t *testing.T) {
	store, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("new filesystem: %v", err)
	}
	for _, key := range []string{"", "  ", "../escape", "/abs", "a/../../b"} {
		if _, err := store.Put(context.Background(), key, strings.NewReader("x"), PutOptions{}); err == nil {
			t.Fatalf("expected key %q to be rejected", key)
		}
	}
}

func TestMemoryStoreSemantics(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	if _, err := store.Put(ctx, "k", strings.NewReader("hello"), PutOptions{ContentType: "text/plain"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := store.Put(ctx, "k", strings.NewReader("again"), PutOptions{}); err == nil {
		t.Fatalf("expected duplicate put to fail")
	}

	info, rc, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != "hello" || info.Size != 5 {
		t.Fatalf("unexpected blob %q %+v", data, info)
	}

	if _, err := store.PresignURL(ctx, "k", SignedURLOptions{}); err != ErrUnsupported {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}

	existed, err := store.Delete(ctx, "k")
	if err != nil || !existed {
		t.Fatalf("delete: existed=%v err=%v", existed, err)
	}
	if _, err := store.Head(ctx, "k"); err == nil {
		t.Fatalf("expected head to fail after delete")
	}
}

func TestOpenSelectsDriver(t *testing.T) {
	t.Setenv("LABCORE_BLOB_DRIVER", "memory")
	store, err := Open(context.Background())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if store.Driver() != DriverMemory {
		t.Fatalf("expected memory driver, got %s", store.Driver())
	}

	t.Setenv("LABCORE_BLOB_DRIVER", "fs")
	t.Setenv("LABCORE_BLOB_FS_ROOT", t.TempDir())
	store, err = Open(context.Background())
	if err != nil {
		t.Fatalf("open fs: %v", err)
	}
	if store.Driver() != DriverFilesystem {
		t.Fatalf("expected fs driver, got %s", store.Driver())
	}

	t.Setenv("LABCORE_BLOB_DRIVER", "bogus")
	if _, err := Open(context.Background()); err == nil {
		t.Fatalf("expected unknown driver error")
	}

	t.Setenv("LABCORE_BLOB_DRIVER", "s3")
	t.Setenv("LABCORE_BLOB_S3_BUCKET", "")
	if _, err := Open(context.Background()); err == nil {
		t.Fatalf("expected missing bucket error")
	}
}
