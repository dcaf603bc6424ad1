package artifacts

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"
)

// Descriptor names one remote model archive and the local path whose
// presence proves it was already extracted.
type Descriptor struct {
	Name   string
	URL    string
	Marker string
}

// Manager fetches and unpacks model artifacts into a single directory
// before the server starts serving. Ensure is idempotent: with everything
// in place it performs no network or extraction work.
type Manager struct {
	dir        string
	httpClient *http.Client
}

func NewManager(dir string, httpClient *http.Client) *Manager {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Manager{dir: dir, httpClient: httpClient}
}

// Ensure makes every described artifact present and extracted. Any failure
// is returned as-is; callers treat it as fatal at startup.
func (m *Manager) Ensure(ctx context.Context, descriptors []Descriptor) error {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}

	for _, d := range descriptors {
		if err := m.ensureOne(ctx, d); err != nil {
			return fmt.Errorf("artifact %s: %w", d.Name, err)
		}
	}
	return nil
}

func (m *Manager) ensureOne(ctx context.Context, d Descriptor) error {
	if d.Marker != "" {
		if _, err := os.Stat(filepath.Join(m.dir, d.Marker)); err == nil {
			slog.Debug("artifact_present", "artifact", d.Name, "marker", d.Marker)
			return nil
		}
	}

	archivePath := filepath.Join(m.dir, filenameFromURL(d.URL))
	if _, err := os.Stat(archivePath); errors.Is(err, os.ErrNotExist) {
		if err := m.download(ctx, d, archivePath); err != nil {
			return err
		}
	} else if err != nil {
		return fmt.Errorf("stat archive: %w", err)
	}

	return m.extract(archivePath)
}

func (m *Manager) download(ctx context.Context, d Descriptor, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.URL, nil)
	if err != nil {
		return fmt.Errorf("build download request: %w", err)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("download archive: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("download archive: status %s", resp.Status)
	}

	// Write to a temp name first so a partial download never passes the
	// archive-presence check on the next startup.
	tmp, err := os.CreateTemp(m.dir, filepath.Base(dest)+".part-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	bar := progressbar.NewOptions64(resp.ContentLength,
		progressbar.OptionSetDescription("downloading "+d.Name),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowBytes(true),
		progressbar.OptionClearOnFinish(),
	)

	if _, err := io.Copy(io.MultiWriter(tmp, bar), resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("write archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close archive: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("finalize archive: %w", err)
	}

	slog.Info("artifact_downloaded", "artifact", d.Name, "path", dest)
	return nil
}

func (m *Manager) extract(archivePath string) error {
	switch {
	case strings.HasSuffix(archivePath, ".zip"):
		return m.extractZip(archivePath)
	case strings.HasSuffix(archivePath, ".gz") || strings.HasSuffix(archivePath, ".tgz"):
		return m.extractTarGz(archivePath)
	default:
		return fmt.Errorf("unsupported archive kind: %s", filepath.Base(archivePath))
	}
}

func (m *Manager) extractZip(archivePath string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open zip: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		dest, err := m.securePath(f.Name)
		if err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return fmt.Errorf("create dir %s: %w", f.Name, err)
			}
			continue
		}
		src, err := f.Open()
		if err != nil {
			return fmt.Errorf("open zip entry %s: %w", f.Name, err)
		}
		err = writeFile(dest, src)
		src.Close()
		if err != nil {
			return fmt.Errorf("extract %s: %w", f.Name, err)
		}
	}
	return nil
}

func (m *Manager) extractTarGz(archivePath string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("open gzip stream: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar entry: %w", err)
		}

		dest, err := m.securePath(hdr.Name)
		if err != nil {
			return err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return fmt.Errorf("create dir %s: %w", hdr.Name, err)
			}
		case tar.TypeReg:
			if err := writeFile(dest, tr); err != nil {
				return fmt.Errorf("extract %s: %w", hdr.Name, err)
			}
		}
	}
}

// securePath rejects archive entries that would escape the model dir.
func (m *Manager) securePath(name string) (string, error) {
	dest := filepath.Join(m.dir, name)
	if !strings.HasPrefix(dest, filepath.Clean(m.dir)+string(os.PathSeparator)) {
		return "", fmt.Errorf("archive entry escapes model dir: %s", name)
	}
	return dest, nil
}

func writeFile(dest string, src io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, src); err != nil {
		return err
	}
	return nil
}

func filenameFromURL(url string) string {
	parts := strings.Split(url, "/")
	return parts[len(parts)-1]
}
