package artifacts

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
)

func zipArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, body := range files {
		f, err := w.Create(name)
		if err != nil {
			t.Fatalf("create zip entry: %v", err)
		}
		if _, err := f.Write([]byte(body)); err != nil {
			t.Fatalf("write zip entry: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func tgzArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, body := range files {
		if err := tw.WriteHeader(&tar.Header{
			Name:     name,
			Mode:     0o644,
			Size:     int64(len(body)),
			Typeflag: tar.TypeReg,
		}); err != nil {
			t.Fatalf("write tar header: %v", err)
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			t.Fatalf("write tar body: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("close gzip: %v", err)
	}
	return buf.Bytes()
}

func TestEnsureDownloadsAndExtracts(t *testing.T) {
	archive := zipArchive(t, map[string]string{
		"nsfw_model/open_nsfw.onnx":  "weights",
		"nsfw_model/preprocess.json": `{"resize_dim":256,"input_size":224,"mean":[104,117,123],"scale":255,"channel_order":"bgr"}`,
	})
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write(archive)
	}))
	defer server.Close()

	dir := t.TempDir()
	mgr := NewManager(dir, server.Client())
	descriptors := []Descriptor{{
		Name:   "scorer",
		URL:    server.URL + "/nsfw_model.zip",
		Marker: "nsfw_model/open_nsfw.onnx",
	}}

	if err := mgr.Ensure(context.Background(), descriptors); err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected 1 download, got %d", hits.Load())
	}
	if _, err := os.Stat(filepath.Join(dir, "nsfw_model", "open_nsfw.onnx")); err != nil {
		t.Fatalf("expected extracted weights file: %v", err)
	}
}

func TestEnsureIsIdempotent(t *testing.T) {
	archive := tgzArchive(t, map[string]string{
		"classify_image_graph_def.pb": "graph",
	})
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write(archive)
	}))
	defer server.Close()

	dir := t.TempDir()
	mgr := NewManager(dir, server.Client())
	descriptors := []Descriptor{{
		Name:   "classifier",
		URL:    server.URL + "/inception.tgz",
		Marker: "classify_image_graph_def.pb",
	}}

	if err := mgr.Ensure(context.Background(), descriptors); err != nil {
		t.Fatalf("first Ensure() error = %v", err)
	}
	if err := mgr.Ensure(context.Background(), descriptors); err != nil {
		t.Fatalf("second Ensure() error = %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("second run must perform zero network calls, total hits %d", hits.Load())
	}
}

func TestEnsureFailsOnCorruptArchive(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not an archive"))
	}))
	defer server.Close()

	mgr := NewManager(t.TempDir(), server.Client())
	err := mgr.Ensure(context.Background(), []Descriptor{{
		Name:   "scorer",
		URL:    server.URL + "/broken.zip",
		Marker: "nsfw_model/open_nsfw.onnx",
	}})
	if err == nil {
		t.Fatalf("expected error for corrupt archive")
	}
}

func TestEnsureFailsOnDownloadError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "missing", http.StatusNotFound)
	}))
	defer server.Close()

	mgr := NewManager(t.TempDir(), server.Client())
	err := mgr.Ensure(context.Background(), []Descriptor{{
		Name:   "classifier",
		URL:    server.URL + "/inception.tgz",
		Marker: "classify_image_graph_def.pb",
	}})
	if err == nil {
		t.Fatalf("expected error for failed download")
	}
}

func TestExtractRejectsPathEscape(t *testing.T) {
	archive := zipArchive(t, map[string]string{
		"../evil.txt": "nope",
	})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(archive)
	}))
	defer server.Close()

	mgr := NewManager(t.TempDir(), server.Client())
	err := mgr.Ensure(context.Background(), []Descriptor{{
		Name:   "scorer",
		URL:    server.URL + "/escape.zip",
		Marker: "nsfw_model/open_nsfw.onnx",
	}})
	if err == nil {
		t.Fatalf("expected error for archive entry escaping model dir")
	}
}
