// Package archive writes and restores .tar.gz snapshots of a kmud data
// directory: the account store, the text files and the config file.
package archive

import (
	"archive/tar"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Manifest describes the contents of an archive.
type Manifest struct {
	Version   int                  `json:"version"`
	Server    string               `json:"server"`
	Timestamp string               `json:"timestamp"`
	MudName   string               `json:"mud_name"`
	Driver    string               `json:"store_driver"`
	Files     map[string]FileEntry `json:"files"`
}

// FileEntry describes a single file within the archive.
type FileEntry struct {
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
	Type   string `json:"type"` // "store", "text", "conf"
}

const manifestName = "manifest.json"

// StoreEntry returns the archive path of the store snapshot for driver.
func StoreEntry(driver string) string {
	if driver == "sqlite" {
		return "data/kmud.sqlite"
	}
	return "data/kmud.bolt"
}

// Params holds the inputs of Create.
type Params struct {
	Snapshot func(destPath string) error // Writes a consistent copy of the store
	Driver   string                      // "bolt" or "sqlite"
	TextDir  string                      // Text files directory (empty = skip)
	ConfPath string                      // Config file (empty = skip)
	Dir      string                      // Output directory
	MudName  string
	Server   string
}

// Create writes a new archive into p.Dir and returns its path.
func Create(p Params) (string, error) {
	if p.Snapshot == nil {
		return "", fmt.Errorf("archive: no store snapshot function")
	}
	if err := os.MkdirAll(p.Dir, 0755); err != nil {
		return "", fmt.Errorf("archive: create dir %s: %w", p.Dir, err)
	}
	archivePath := filepath.Join(p.Dir, fmt.Sprintf("kmud-%s.tar.gz", time.Now().Format("20060102-150405.000000000")))

	tmpDir, err := os.MkdirTemp("", "kmud-archive-*")
	if err != nil {
		return "", fmt.Errorf("archive: create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	staged := filepath.Join(tmpDir, "store")
	if err := p.Snapshot(staged); err != nil {
		return "", fmt.Errorf("archive: store snapshot: %w", err)
	}

	out, err := os.Create(archivePath)
	if err != nil {
		return "", fmt.Errorf("archive: create %s: %w", archivePath, err)
	}
	w := newWriter(out)

	manifest := Manifest{
		Version:   1,
		Server:    p.Server,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		MudName:   p.MudName,
		Driver:    p.Driver,
		Files:     make(map[string]FileEntry),
	}

	if err := w.addFile(staged, StoreEntry(p.Driver), "store", manifest.Files); err != nil {
		w.close()
		return "", err
	}
	if p.TextDir != "" {
		if info, err := os.Stat(p.TextDir); err == nil && info.IsDir() {
			if err := w.addDir(p.TextDir, "text", manifest.Files); err != nil {
				w.close()
				return "", err
			}
		}
	}
	if p.ConfPath != "" {
		if _, err := os.Stat(p.ConfPath); err == nil {
			if err := w.addFile(p.ConfPath, "conf/"+filepath.Base(p.ConfPath), "conf", manifest.Files); err != nil {
				w.close()
				return "", err
			}
		}
	}

	// The manifest goes last so it can list every file.
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		w.close()
		return "", fmt.Errorf("archive: marshal manifest: %w", err)
	}
	if err := w.addBytes(manifestName, data); err != nil {
		w.close()
		return "", err
	}
	if err := w.close(); err != nil {
		return "", fmt.Errorf("archive: finish %s: %w", archivePath, err)
	}
	return archivePath, nil
}

// writer stacks tar over gzip over a file.
type writer struct {
	f  *os.File
	gw *gzip.Writer
	tw *tar.Writer
}

func newWriter(f *os.File) *writer {
	gw := gzip.NewWriter(f)
	return &writer{f: f, gw: gw, tw: tar.NewWriter(gw)}
}

func (w *writer) close() error {
	err := w.tw.Close()
	if gerr := w.gw.Close(); err == nil {
		err = gerr
	}
	if ferr := w.f.Close(); err == nil {
		err = ferr
	}
	return err
}

// addFile copies srcPath into the archive as name, recording its checksum.
func (w *writer) addFile(srcPath, name, typ string, files map[string]FileEntry) error {
	f, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("archive: open %s: %w", srcPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("archive: stat %s: %w", srcPath, err)
	}
	name = strings.ReplaceAll(name, "\\", "/")
	if err := w.tw.WriteHeader(&tar.Header{
		Name:    name,
		Size:    info.Size(),
		Mode:    0644,
		ModTime: info.ModTime(),
	}); err != nil {
		return fmt.Errorf("archive: header %s: %w", name, err)
	}

	h := sha256.New()
	n, err := io.Copy(w.tw, io.TeeReader(f, h))
	if err != nil {
		return fmt.Errorf("archive: write %s: %w", name, err)
	}
	files[name] = FileEntry{SHA256: hex.EncodeToString(h.Sum(nil)), Size: n, Type: typ}
	return nil
}

// addDir adds every regular file below dir under prefix.
func (w *writer) addDir(dir, prefix string, files map[string]FileEntry) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		return w.addFile(path, prefix+"/"+filepath.ToSlash(rel), "text", files)
	})
}

func (w *writer) addBytes(name string, data []byte) error {
	if err := w.tw.WriteHeader(&tar.Header{
		Name:    name,
		Size:    int64(len(data)),
		Mode:    0644,
		ModTime: time.Now(),
	}); err != nil {
		return fmt.Errorf("archive: header %s: %w", name, err)
	}
	if _, err := w.tw.Write(data); err != nil {
		return fmt.Errorf("archive: write %s: %w", name, err)
	}
	return nil
}

// copyFile copies a file from src to dst.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
