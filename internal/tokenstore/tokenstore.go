// Package tokenstore persists client-side credentials in a local bbolt file.
package tokenstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	defaultBucket = "hubchat"

	// AuthTokenKey is the fixed key the bearer token is stored under.
	AuthTokenKey = "auth_token"
)

// Store is a small key/value store backed by bbolt.
type Store struct {
	db        *bolt.DB
	closeOnce sync.Once
}

// Open opens (or creates) the store at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create token store directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open token store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(defaultBucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying file.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.db.Close()
	})
	return err
}

// Get returns the value for key, or empty string when unset.
func (s *Store) Get(key string) (string, error) {
	var value string
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(defaultBucket))
		if bucket == nil {
			return fmt.Errorf("bucket %s not found", defaultBucket)
		}
		if v := bucket.Get([]byte(key)); v != nil {
			value = string(v)
		}
		return nil
	})
	return value, err
}

// Put stores value under key.
func (s *Store) Put(key, value string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(defaultBucket))
		if bucket == nil {
			return fmt.Errorf("bucket %s not found", defaultBucket)
		}
		return bucket.Put([]byte(key), []byte(value))
	})
}

// Delete removes key.
func (s *Store) Delete(key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(defaultBucket))
		if bucket == nil {
			return fmt.Errorf("bucket %s not found", defaultBucket)
		}
		return bucket.Delete([]byte(key))
	})
}

// Token returns the persisted bearer token. A read failure is treated as
// "no token" so the request goes out without an Authorization header.
func (s *Store) Token() string {
	token, err := s.Get(AuthTokenKey)
	if err != nil {
		return ""
	}
	return token
}

// SetToken persists the bearer token.
func (s *Store) SetToken(token string) error {
	if token == "" {
		return s.Delete(AuthTokenKey)
	}
	return s.Put(AuthTokenKey, token)
}
