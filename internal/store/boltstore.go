// Package store durably persists the relay core's chain-store snapshot.
// It knows nothing about chains, forks, or headers — it only round-trips
// whatever chainstore.PersistedState it's handed, the same separation of
// concerns the teacher draws between internal/sharechain's in-memory
// chain and its bolt-backed persistence.
package store

import (
	"github.com/fxamacker/cbor/v2"
	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/btcrelay-go/relay/internal/chainstore"
)

var stateBucket = []byte("chainstore_state")
var stateKey = []byte("snapshot")

// BoltStore durably persists a single chainstore.PersistedState blob keyed
// by a fixed name: the chain store is one value, not a growing log, so
// there is exactly one record to keep current.
type BoltStore struct {
	db  *bbolt.DB
	log *zap.Logger
}

// NewBoltStore opens (creating if necessary) a bbolt database at path.
func NewBoltStore(path string, log *zap.Logger) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(stateBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}
	return &BoltStore{db: db, log: log}, nil
}

// Save CBOR-encodes and persists the given snapshot, replacing whatever
// was previously stored.
func (b *BoltStore) Save(state chainstore.PersistedState) error {
	encoded, err := cbor.Marshal(state)
	if err != nil {
		return err
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(stateBucket).Put(stateKey, encoded)
	})
}

// Load reads back the most recently Save-d snapshot. ok is false on a
// freshly created database with nothing persisted yet.
func (b *BoltStore) Load() (state chainstore.PersistedState, ok bool, err error) {
	err = b.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(stateBucket).Get(stateKey)
		if raw == nil {
			return nil
		}
		ok = true
		return cbor.Unmarshal(raw, &state)
	})
	return state, ok, err
}

// Close releases the underlying bbolt file handle.
func (b *BoltStore) Close() error {
	return b.db.Close()
}
