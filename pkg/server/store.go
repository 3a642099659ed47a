package server

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/crystal-mush/kmud/pkg/archive"
	"github.com/crystal-mush/kmud/pkg/boltstore"
	"github.com/crystal-mush/kmud/pkg/gamedb"
	"github.com/crystal-mush/kmud/pkg/sqlstore"
)

// Store is a gamedb.Store that can also snapshot itself.
type Store interface {
	gamedb.Store
	Path() string
	Backup(path string) error
}

// OpenStore opens the backend named by cfg.StoreDriver, creating its
// directory if needed.
func OpenStore(cfg Config) (Store, error) {
	path := cfg.StorePath()
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("store: create %s: %w", dir, err)
		}
	}
	switch cfg.StoreDriver {
	case "bolt":
		st, err := boltstore.Open(path)
		if err != nil {
			return nil, err
		}
		log.Printf("Store: bolt at %s", path)
		return st, nil
	case "sqlite":
		st, err := sqlstore.Open(path, cfg.SQLTimeout)
		if err != nil {
			return nil, err
		}
		log.Printf("Store: sqlite at %s", path)
		return st, nil
	default:
		return nil, fmt.Errorf("store: unknown driver %q", cfg.StoreDriver)
	}
}

// CreateBackup archives the store, text files and config into
// cfg.ArchiveDir, then prunes old archives down to cfg.ArchiveRetain.
func CreateBackup(cfg Config, confPath string, st Store) (string, error) {
	path, err := archive.Create(archive.Params{
		Snapshot: st.Backup,
		Driver:   cfg.StoreDriver,
		TextDir:  cfg.TextDir,
		ConfPath: confPath,
		Dir:      cfg.ArchiveDir,
		MudName:  cfg.MudName,
		Server:   VersionString(),
	})
	if err != nil {
		return "", err
	}
	if cfg.ArchiveRetain > 0 {
		n, err := archive.Prune(cfg.ArchiveDir, cfg.ArchiveRetain)
		if err != nil {
			log.Printf("WARNING: pruning archives: %v", err)
		} else if n > 0 {
			log.Printf("Pruned %d old archive(s)", n)
		}
	}
	return path, nil
}
