package awmkit

import (
	"encoding/binary"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	boltBucketSlots = []byte("key_slots")
	boltBucketMeta  = []byte("key_meta")
	boltKeyActive   = []byte("active")
)

// BoltBackend implements KeyBackend on top of a single bbolt database file,
// grounded on this pack's bbolt node-store component: one bucket per
// logical table, Update/View closures, big-endian keys.
type BoltBackend struct {
	db   *bolt.DB
	path string
}

// OpenBoltBackend opens or creates the bbolt database at path.
func OpenBoltBackend(path string) (*BoltBackend, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(boltBucketSlots); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(boltBucketMeta)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}
	return &BoltBackend{db: db, path: path}, nil
}

func (b *BoltBackend) Label() string { return fmt.Sprintf("bbolt:%s", b.path) }

func slotKey(index int) []byte {
	var k [4]byte
	binary.BigEndian.PutUint32(k[:], uint32(index))
	return k[:]
}

func (b *BoltBackend) LoadAll() (map[int]storedSlot, error) {
	out := make(map[int]storedSlot)
	err := b.db.View(func(tx *bolt.Tx) error {
		bk := tx.Bucket(boltBucketSlots)
		return bk.ForEach(func(k, v []byte) error {
			if len(k) != 4 || len(v) < 1 {
				return nil
			}
			idx := int(binary.BigEndian.Uint32(k))
			labelLen := int(v[0])
			if len(v) < 1+labelLen+KeySize {
				return fmt.Errorf("slot %d: truncated record", idx)
			}
			label := string(v[1 : 1+labelLen])
			key := make([]byte, KeySize)
			copy(key, v[1+labelLen:1+labelLen+KeySize])
			out[idx] = storedSlot{Key: key, Label: label}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *BoltBackend) SaveSlot(index int, key []byte, label string) error {
	if len(label) > 255 {
		return fmt.Errorf("label too long: %d > 255", len(label))
	}
	v := make([]byte, 1+len(label)+len(key))
	v[0] = byte(len(label))
	copy(v[1:], label)
	copy(v[1+len(label):], key)
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucketSlots).Put(slotKey(index), v)
	})
}

func (b *BoltBackend) DeleteSlot(index int) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucketSlots).Delete(slotKey(index))
	})
}

func (b *BoltBackend) LoadActive() (int, error) {
	var active int
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(boltBucketMeta).Get(boltKeyActive)
		if len(v) != 4 {
			active = 0
			return nil
		}
		active = int(binary.BigEndian.Uint32(v))
		return nil
	})
	return active, err
}

func (b *BoltBackend) SaveActive(index int) error {
	var v [4]byte
	binary.BigEndian.PutUint32(v[:], uint32(index))
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucketMeta).Put(boltKeyActive, v[:])
	})
}

// Close releases the underlying bbolt database.
func (b *BoltBackend) Close() error { return b.db.Close() }
