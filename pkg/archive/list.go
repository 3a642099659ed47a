package archive

import (
	"archive/tar"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
)

// Info holds metadata about an existing archive file.
type Info struct {
	Path      string
	Filename  string
	Size      int64
	Timestamp string // From manifest, or file mod time
	MudName   string
	Driver    string
}

// List scans dir for archives and returns them newest first.
func List(dir string) ([]Info, error) {
	pattern := filepath.Join(dir, "*.tar.gz")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("archive: glob %s: %w", pattern, err)
	}

	var out []Info
	for _, path := range matches {
		st, err := os.Stat(path)
		if err != nil {
			continue
		}
		ai := Info{
			Path:      path,
			Filename:  filepath.Base(path),
			Size:      st.Size(),
			Timestamp: st.ModTime().UTC().Format("2006-01-02T15:04:05Z07:00"),
		}
		if m, err := ReadManifest(path); err == nil {
			ai.Timestamp = m.Timestamp
			ai.MudName = m.MudName
			ai.Driver = m.Driver
		}
		out = append(out, ai)
	}

	// RFC3339 sorts lexically.
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp == out[j].Timestamp {
			return out[i].Filename > out[j].Filename
		}
		return out[i].Timestamp > out[j].Timestamp
	})
	return out, nil
}

// Prune deletes all but the newest keep archives in dir and returns how
// many were removed. keep <= 0 keeps everything.
func Prune(dir string, keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}
	all, err := List(dir)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, ai := range all[min(keep, len(all)):] {
		if err := os.Remove(ai.Path); err != nil {
			log.Printf("archive: prune %s: %v", ai.Path, err)
			continue
		}
		removed++
	}
	return removed, nil
}

// ReadManifest extracts the manifest from an archive.
func ReadManifest(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	gr, err := gzip.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer gr.Close()

	tr := tar.NewReader(gr)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if hdr.Name != manifestName {
			continue
		}
		var m Manifest
		if err := json.NewDecoder(tr).Decode(&m); err != nil {
			return nil, fmt.Errorf("archive: parse manifest: %w", err)
		}
		return &m, nil
	}
	return nil, fmt.Errorf("archive: %s has no manifest", path)
}
