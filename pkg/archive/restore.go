package archive

import (
	"archive/tar"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// RestoreParams holds the inputs of Restore.
type RestoreParams struct {
	ArchivePath string
	StoreDest   string // Destination of the store file
	TextDest    string // Destination directory for text files (empty = skip)
	ConfDest    string // Destination of the config file (empty = skip)
	Overwrite   bool   // Replace an existing config file
}

// RestoreResult summarizes a completed restore.
type RestoreResult struct {
	Driver        string
	FilesRestored int
	Warnings      []string
}

// Restore verifies an archive against its manifest and copies its files
// to their destinations. Nothing is written if any checksum fails.
func Restore(p RestoreParams) (*RestoreResult, error) {
	tmpDir, err := os.MkdirTemp("", "kmud-restore-*")
	if err != nil {
		return nil, fmt.Errorf("restore: create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	if err := extract(p.ArchivePath, tmpDir); err != nil {
		return nil, fmt.Errorf("restore: extract: %w", err)
	}
	manifest, err := ReadManifest(p.ArchivePath)
	if err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}
	for name, entry := range manifest.Files {
		sum, err := checksum(filepath.Join(tmpDir, filepath.FromSlash(name)))
		if err != nil {
			return nil, fmt.Errorf("restore: checksum %s: %w", name, err)
		}
		if sum != entry.SHA256 {
			return nil, fmt.Errorf("restore: checksum mismatch for %s, archive may be corrupt", name)
		}
	}

	res := &RestoreResult{Driver: manifest.Driver}
	for name, entry := range manifest.Files {
		src := filepath.Join(tmpDir, filepath.FromSlash(name))
		var dest string
		switch entry.Type {
		case "store":
			dest = p.StoreDest
		case "text":
			if p.TextDest != "" {
				dest = filepath.Join(p.TextDest, filepath.FromSlash(strings.TrimPrefix(name, "text/")))
			}
		case "conf":
			dest = p.ConfDest
			if dest != "" && !p.Overwrite {
				if _, err := os.Stat(dest); err == nil {
					res.Warnings = append(res.Warnings, "kept current config "+dest)
					continue
				}
			}
		}
		if dest == "" {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			return nil, fmt.Errorf("restore: create dir for %s: %w", dest, err)
		}
		if err := copyFile(src, dest); err != nil {
			return nil, fmt.Errorf("restore: copy %s: %w", name, err)
		}
		res.FilesRestored++
	}
	return res, nil
}

// extract unpacks a .tar.gz into destDir.
func extract(path, destDir string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	gr, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer gr.Close()

	root := filepath.Clean(destDir) + string(os.PathSeparator)
	tr := tar.NewReader(gr)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		target := filepath.Join(destDir, filepath.FromSlash(hdr.Name))
		if !strings.HasPrefix(target, root) {
			return fmt.Errorf("invalid archive entry: %s", hdr.Name)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		out, err := os.Create(target)
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, tr); err != nil {
			out.Close()
			return err
		}
		if err := out.Close(); err != nil {
			return err
		}
	}
}

func checksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
