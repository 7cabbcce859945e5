package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"
	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/ipsecd/pkg/log"
	"github.com/cuemby/ipsecd/pkg/types"
)

// DefaultMaxErrors is how many errors are kept when no limit is given
const DefaultMaxErrors = 1000

var (
	// Bucket names
	bucketStats     = []byte("stats")
	bucketErrors    = []byte("errors")
	bucketManifests = []byte("manifests")

	keyCurrentManifest = []byte("current")
)

// BoltStore implements Store interface using BoltDB
type BoltStore struct {
	db        *bolt.DB
	maxErrors int
	logger    zerolog.Logger
}

// NewBoltStore creates a new BoltDB-backed store in dataDir. maxErrors
// bounds the error history; zero or less selects DefaultMaxErrors.
func NewBoltStore(dataDir string, maxErrors int) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "ipsecd.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketStats,
			bucketErrors,
			bucketManifests,
		}

		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	if maxErrors <= 0 {
		maxErrors = DefaultMaxErrors
	}

	return &BoltStore{
		db:        db,
		maxErrors: maxErrors,
		logger:    log.WithComponent("store"),
	}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func statKey(kind types.StatKind, key string) []byte {
	return []byte(string(kind) + "/" + key)
}

// Stat operations

// PutStat replaces the latest sample of an object
func (s *BoltStore) PutStat(snap *types.StatSnapshot) error {
	if snap == nil {
		return types.ErrNullParameter
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketStats)
		data, err := json.Marshal(snap)
		if err != nil {
			return err
		}
		return b.Put(statKey(snap.Kind, snap.Key()), data)
	})
}

func (s *BoltStore) GetStat(kind types.StatKind, key string) (*types.StatSnapshot, error) {
	var snap types.StatSnapshot
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketStats)
		data := b.Get(statKey(kind, key))
		if data == nil {
			return fmt.Errorf("stat %s/%s: %w", kind, key, types.ErrNotFound)
		}
		return json.Unmarshal(data, &snap)
	})
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// ListStats returns the latest sample of every object, ordered by kind and key
func (s *BoltStore) ListStats() ([]*types.StatSnapshot, error) {
	var snaps []*types.StatSnapshot
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketStats)
		return b.ForEach(func(k, v []byte) error {
			var snap types.StatSnapshot
			if err := json.Unmarshal(v, &snap); err != nil {
				return err
			}
			snaps = append(snaps, &snap)
			return nil
		})
	})
	return snaps, err
}

func (s *BoltStore) DeleteStat(kind types.StatKind, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketStats)
		return b.Delete(statKey(kind, key))
	})
}

// Publish stores a sample. It lets the store act as a publisher sink.
func (s *BoltStore) Publish(snap *types.StatSnapshot) {
	if err := s.PutStat(snap); err != nil {
		s.logger.Error().Err(err).Msg("Failed to store stat sample")
	}
}

// Error operations

// RecordError appends an error to the history and prunes the oldest
// entries past the retention limit
func (s *BoltStore) RecordError(ipsecErr *types.IPsecError) error {
	if ipsecErr == nil {
		return types.ErrNullParameter
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketErrors)

		seq, err := b.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to allocate error sequence: %w", err)
		}

		data, err := json.Marshal(ipsecErr)
		if err != nil {
			return err
		}

		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		if err := b.Put(key, data); err != nil {
			return err
		}

		// Keys are big-endian sequence numbers, so the cursor walks
		// oldest first
		var keys [][]byte
		c := b.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			keys = append(keys, append([]byte(nil), k...))
		}
		for i := 0; i < len(keys)-s.maxErrors; i++ {
			if err := b.Delete(keys[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListErrors returns up to limit errors, newest first. limit <= 0 returns
// the whole history.
func (s *BoltStore) ListErrors(limit int) ([]*types.IPsecError, error) {
	var errs []*types.IPsecError
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketErrors)
		c := b.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(errs) >= limit {
				break
			}
			var ipsecErr types.IPsecError
			if err := json.Unmarshal(v, &ipsecErr); err != nil {
				continue
			}
			errs = append(errs, &ipsecErr)
		}
		return nil
	})
	return errs, err
}

// Manifest operations

// SaveManifest stores the raw manifest last applied
func (s *BoltStore) SaveManifest(data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketManifests)
		return b.Put(keyCurrentManifest, data)
	})
}

func (s *BoltStore) GetManifest() ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketManifests)
		v := b.Get(keyCurrentManifest)
		if v == nil {
			return fmt.Errorf("manifest: %w", types.ErrNotFound)
		}
		// v is only valid inside the transaction
		data = append([]byte(nil), v...)
		return nil
	})
	return data, err
}
