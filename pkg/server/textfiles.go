package server

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// DefaultConnectText greets new connections when connect.txt is missing.
const DefaultConnectText = "Welcome to Hogwarts, young student of magic!\n" +
	"Type 'register <name> <password>' to create an account, or 'login <name> <password>'."

// TextFiles caches the text shown at points of a connection's life.
type TextFiles struct {
	dir string

	mu      sync.RWMutex
	connect string // connect.txt: sent on connect
	motd    string // motd.txt: sent after login
	quit    string // quit.txt: sent on quit
	full    string // full.txt: sent when the server is full
}

// trackedFiles lists the files TextFiles reads.
var trackedFiles = []struct {
	Name string
	Desc string
}{
	{"connect.txt", "welcome screen"},
	{"motd.txt", "post-login MOTD"},
	{"quit.txt", "quit message"},
	{"full.txt", "too many connections"},
}

// LoadTextFiles reads the text files in dir. Missing files are empty; an
// empty dir leaves only the built-in welcome.
func LoadTextFiles(dir string) *TextFiles {
	tf := &TextFiles{dir: dir}
	tf.Reload()
	return tf
}

// Connect returns the welcome text.
func (tf *TextFiles) Connect() string {
	tf.mu.RLock()
	defer tf.mu.RUnlock()
	if tf.connect == "" {
		return DefaultConnectText
	}
	return tf.connect
}

func (tf *TextFiles) Motd() string { tf.mu.RLock(); defer tf.mu.RUnlock(); return tf.motd }
func (tf *TextFiles) Quit() string { tf.mu.RLock(); defer tf.mu.RUnlock(); return tf.quit }
func (tf *TextFiles) Full() string { tf.mu.RLock(); defer tf.mu.RUnlock(); return tf.full }

func loadFile(dir, name string) string {
	if dir == "" {
		return ""
	}
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return ""
	}
	return strings.TrimRight(string(data), "\r\n")
}

// Reload rereads every file and returns how many are non-empty.
func (tf *TextFiles) Reload() int {
	connect := loadFile(tf.dir, "connect.txt")
	motd := loadFile(tf.dir, "motd.txt")
	quit := loadFile(tf.dir, "quit.txt")
	full := loadFile(tf.dir, "full.txt")

	tf.mu.Lock()
	tf.connect, tf.motd, tf.quit, tf.full = connect, motd, quit, full
	tf.mu.Unlock()

	count := 0
	for _, v := range []string{connect, motd, quit, full} {
		if v != "" {
			count++
		}
	}
	if tf.dir != "" {
		log.Printf("Loaded %d text files from %s", count, tf.dir)
	}
	return count
}

// Watch reloads the cache whenever a tracked file changes, until ctx is
// done. It returns nil at once when no directory is configured.
func (tf *TextFiles) Watch(ctx context.Context) error {
	if tf.dir == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("text watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(tf.dir); err != nil {
		log.Printf("WARNING: Could not watch text directory %s: %v", tf.dir, err)
		return nil
	}
	log.Printf("Watching text directory for changes: %s", tf.dir)

	tracked := make(map[string]string, len(trackedFiles))
	for _, f := range trackedFiles {
		tracked[f.Name] = f.Desc
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			name := filepath.Base(event.Name)
			desc, ok := tracked[name]
			if !ok {
				continue
			}
			log.Printf("Text file changed: %s (%s)", name, desc)
			tf.Reload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("Text file watcher error: %v", err)
		}
	}
}
