package counter

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	bolt "go.etcd.io/bbolt"

	"pdf-chat/internal/config"
)

// Counter counts visits.
type Counter interface {
	// Increment adds one and returns the new total.
	Increment() (int, error)
	Close() error
}

// New opens the counter named by cfg.Backend.
func New(cfg config.CounterConfig) (Counter, error) {
	switch cfg.Backend {
	case "file", "":
		return &FileCounter{Path: cfg.Path}, nil
	case "bolt":
		c := &BoltCounter{DBPath: cfg.Path}
		if err := c.Init(); err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown counter backend %q", cfg.Backend)
	}
}

// FileCounter keeps the total as a decimal integer in a text file.
// A missing file counts as zero.
type FileCounter struct {
	Path string
	mu   sync.Mutex
}

func (c *FileCounter) Increment() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	views := 0
	data, err := os.ReadFile(c.Path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return 0, fmt.Errorf("failed to read counter: %w", err)
	default:
		views, err = strconv.Atoi(strings.TrimSpace(string(data)))
		if err != nil {
			return 0, fmt.Errorf("corrupt counter file %s: %w", c.Path, err)
		}
	}
	views++
	if err := os.WriteFile(c.Path, []byte(strconv.Itoa(views)), 0644); err != nil {
		return 0, fmt.Errorf("failed to write counter: %w", err)
	}
	return views, nil
}

func (c *FileCounter) Close() error { return nil }

var (
	bucketName = []byte("counter")
	viewsKey   = []byte("views")
)

// BoltCounter keeps the total in a bbolt bucket.
type BoltCounter struct {
	DBPath string
	db     *bolt.DB
}

func (c *BoltCounter) Init() error {
	if dir := filepath.Dir(c.DBPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory for BoltDB: %w", err)
		}
	}
	db, err := bolt.Open(c.DBPath, 0600, nil)
	if err != nil {
		return fmt.Errorf("failed to open BoltDB: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	c.db = db
	return nil
}

func (c *BoltCounter) Increment() (int, error) {
	var views uint64
	err := c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		if v := b.Get(viewsKey); len(v) == 8 {
			views = binary.BigEndian.Uint64(v)
		}
		views++
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, views)
		return b.Put(viewsKey, buf)
	})
	if err != nil {
		return 0, err
	}
	return int(views), nil
}

func (c *BoltCounter) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}
