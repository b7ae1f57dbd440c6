package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"dashcore/internal/config"
)

func exercise(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	info, err := s.Put(ctx, "exports/a/report.csv", bytes.NewReader([]byte("hello")), PutOptions{
		ContentType: "text/csv",
		Metadata:    map[string]string{"format": "csv"},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "exports/a/report.csv" || info.Size != 5 {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := s.Put(ctx, "exports/a/report.csv", bytes.NewReader([]byte("x")), PutOptions{}); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	if _, err := s.Put(ctx, "exports/b/report.json", bytes.NewReader([]byte("[]")), PutOptions{ContentType: "application/json"}); err != nil {
		t.Fatalf("put second: %v", err)
	}

	got, rc, err := s.Get(ctx, "exports/a/report.csv")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != "hello" || got.ContentType != "text/csv" {
		t.Fatalf("unexpected get %q %+v", body, got)
	}

	list, err := s.List(ctx, "exports/a/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Key != "exports/a/report.csv" {
		t.Fatalf("unexpected list %+v", list)
	}
	all, err := s.List(ctx, "")
	if err != nil || len(all) != 2 || all[0].Key > all[1].Key {
		t.Fatalf("unexpected full list %+v %v", all, err)
	}

	if _, err := s.Head(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if ok, err := s.Delete(ctx, "exports/a/report.csv"); err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if ok, err := s.Delete(ctx, "exports/a/report.csv"); err != nil || ok {
		t.Fatalf("second delete: %v %v", ok, err)
	}
}

func TestMemory(t *testing.T) {
	s := NewMemory()
	exercise(t, s)
	if _, err := s.PresignURL(context.Background(), "k", SignedURLOptions{}); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestMemoryMetadataIsCopied(t *testing.T) {
	s := NewMemory()
	md := map[string]string{"a": "1"}
	if _, err := s.Put(context.Background(), "k", bytes.NewReader(nil), PutOptions{Metadata: md}); err != nil {
		t.Fatal(err)
	}
	md["a"] = "2"
	info, _ := s.Head(context.Background(), "k")
	if info.Metadata["a"] != "1" {
		t.Fatalf("metadata aliased caller map")
	}
}

func TestFilesystem(t *testing.T) {
	s, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	exercise(t, s)

	info, err := s.Head(context.Background(), "exports/b/report.json")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if len(info.ETag) != 64 {
		t.Fatalf("expected sha256 etag, got %q", info.ETag)
	}
	url, err := s.PresignURL(context.Background(), "exports/b/report.json", SignedURLOptions{})
	if err != nil || url == "" {
		t.Fatalf("presign: %q %v", url, err)
	}
	if _, err := s.PresignURL(context.Background(), "k", SignedURLOptions{Method: "PUT"}); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported for PUT")
	}
}

func TestFilesystemRejectsBadKeys(t *testing.T) {
	s, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"", "/abs", "../escape", "a/../../b", "x.meta"} {
		if _, err := s.Put(context.Background(), key, bytes.NewReader(nil), PutOptions{}); err == nil {
			t.Fatalf("expected error for key %q", key)
		}
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, config.BlobConfig{})
	if err != nil || s.Driver() != DriverMemory {
		t.Fatalf("default driver: %v %v", s, err)
	}
	s, err = Open(ctx, config.BlobConfig{Driver: "fs", Root: t.TempDir()})
	if err != nil || s.Driver() != DriverFilesystem {
		t.Fatalf("fs driver: %v", err)
	}
	if _, err := Open(ctx, config.BlobConfig{Driver: "s3"}); err == nil {
		t.Fatalf("expected bucket error")
	}
	if _, err := Open(ctx, config.BlobConfig{Driver: "gcs"}); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}
