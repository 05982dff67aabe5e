package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketStats = []byte("stats")
	statsKey    = []byte("counters")
)

// BoltStore persists the Stats Counter in a single-bucket BoltDB file.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store under dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "taskcomputer.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketStats)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create stats bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// SaveStats writes the current Stats Counter tallies, overwriting the
// previous snapshot.
func (s *BoltStore) SaveStats(snapshot StatsSnapshot) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketStats)
		data, err := json.Marshal(snapshot)
		if err != nil {
			return err
		}
		return b.Put(statsKey, data)
	})
}

// LoadStats reads the last saved Stats Counter tallies. A fresh database
// returns a zero-valued snapshot rather than an error.
func (s *BoltStore) LoadStats() (StatsSnapshot, error) {
	var snapshot StatsSnapshot
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketStats)
		data := b.Get(statsKey)
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &snapshot)
	})
	return snapshot, err
}
