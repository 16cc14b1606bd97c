// Package tth implements the TTH store: a persistent, crash-safe map from
// TTH->(leaf_data, active_inode) and inode->(tth, mtime) (spec.md §4.2).
//
// Grounded on backend/hasher/kv.go's use of one shared bbolt handle. There
// are no operation structs: each Store method runs its own bbolt View or
// Update transaction directly.
package tth

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"sync"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/shakespeer/sphubd/internal/errs"
	"github.com/shakespeer/sphubd/internal/share"
)

var (
	bucketTTH   = []byte("tth")   // tth (string) -> gob(tthEntry)
	bucketInode = []byte("inode") // inode (8 bytes BE) -> gob(inodeRecord)
)

// tthEntry is the persisted record for a TTH (spec.md §3 "TTH entry").
type tthEntry struct {
	LeafData    []byte
	ActiveInode uint64 // 0 means "no live file"
}

// inodeRecord is the persisted record for an inode (spec.md §3 "TTH inode
// record").
type inodeRecord struct {
	TTH   string
	Mtime int64
}

// Store is the bbolt-backed TTH store. A single *bolt.DB handle is shared;
// bbolt itself serializes writers, and every exported method already runs
// from the single event-loop goroutine per SPEC_FULL.md §5, so the mutex
// here only guards the lazily-populated leaf-data cache.
type Store struct {
	db *bolt.DB

	mu        sync.Mutex
	leafCache map[string][]byte // lazy, populated on demand
}

// Open opens (creating if needed) the TTH store at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, errs.Wrap(errs.Fatal, err, "opening tth store")
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketTTH); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketInode)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, errs.Wrap(errs.Fatal, err, "initializing tth buckets")
	}
	return &Store{db: db, leafCache: make(map[string][]byte)}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func inodeKey(i share.Inode) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(i))
	return b[:]
}

func decodeEntry(data []byte) (tthEntry, error) {
	var e tthEntry
	err := gob.NewDecoder(bytes.NewReader(data)).Decode(&e)
	return e, err
}

func encodeEntry(e tthEntry) ([]byte, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(e)
	return buf.Bytes(), err
}

func decodeRecord(data []byte) (inodeRecord, error) {
	var r inodeRecord
	err := gob.NewDecoder(bytes.NewReader(data)).Decode(&r)
	return r, err
}

func encodeRecord(r inodeRecord) ([]byte, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(r)
	return buf.Bytes(), err
}

// LookupInodeRecord implements share.TTHLookup.
func (s *Store) LookupInodeRecord(inode share.Inode) (string, int64, bool) {
	var tthStr string
	var mtime int64
	var ok bool
	_ = s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketInode).Get(inodeKey(inode))
		if len(data) == 0 {
			return nil
		}
		r, err := decodeRecord(data)
		if err != nil {
			return nil
		}
		tthStr, mtime, ok = r.TTH, r.Mtime, true
		return nil
	})
	return tthStr, mtime, ok
}

// LookupTTHEntry implements share.TTHLookup.
func (s *Store) LookupTTHEntry(tthStr string) (share.Inode, bool) {
	var inode share.Inode
	var ok bool
	_ = s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketTTH).Get([]byte(tthStr))
		if len(data) == 0 {
			return nil
		}
		e, err := decodeEntry(data)
		if err != nil {
			return nil
		}
		inode, ok = share.Inode(e.ActiveInode), true
		return nil
	})
	return inode, ok
}

// RemoveInodeRecord implements share.TTHLookup.
func (s *Store) RemoveInodeRecord(inode share.Inode) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketInode).Delete(inodeKey(inode))
	})
}

// SetActiveInode implements share.TTHLookup. It preserves the previous
// claim's departure implicitly: callers that need duplicate-swap semantics
// read the old value via LookupTTHEntry first, matching spec.md §4.2
// ("preserving previous claim for possible duplicate swap").
func (s *Store) SetActiveInode(tthStr string, inode share.Inode) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTTH)
		data := b.Get([]byte(tthStr))
		var e tthEntry
		if len(data) > 0 {
			var err error
			e, err = decodeEntry(data)
			if err != nil {
				return err
			}
		}
		e.ActiveInode = uint64(inode)
		enc, err := encodeEntry(e)
		if err != nil {
			return err
		}
		return b.Put([]byte(tthStr), enc)
	})
}

// Add inserts a freshly hashed file: the inode record, the TTH entry (if
// new) with its leaf data, and claims inode as the active inode for tth.
// Per spec.md §4.2: "after a successful add, a subsequent lookup within the
// same process returns the added entry; after a clean shutdown a lookup on
// a restarted process returns it too" -- both hold because every write
// above commits through a single bbolt transaction before returning.
func (s *Store) Add(tthStr string, inode share.Inode, mtime int64, leafData []byte) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		ib := tx.Bucket(bucketInode)
		rec, err := encodeRecord(inodeRecord{TTH: tthStr, Mtime: mtime})
		if err != nil {
			return err
		}
		if err := ib.Put(inodeKey(inode), rec); err != nil {
			return err
		}

		tb := tx.Bucket(bucketTTH)
		var e tthEntry
		if data := tb.Get([]byte(tthStr)); len(data) > 0 {
			e, _ = decodeEntry(data)
		}
		if len(leafData) > 0 {
			e.LeafData = leafData
		}
		e.ActiveInode = uint64(inode)
		enc, err := encodeEntry(e)
		if err != nil {
			return err
		}
		return tb.Put([]byte(tthStr), enc)
	})
	if err != nil {
		return errs.Wrap(errs.Integrity, err, "adding tth record")
	}
	s.mu.Lock()
	delete(s.leafCache, tthStr)
	s.mu.Unlock()
	return nil
}

// LeafData lazily loads and caches the leaf-data blob for tth, for
// tthl-stream uploads (spec.md §4.6 "Leaf-data uploads stream from the TTH
// store's leaf blob").
func (s *Store) LeafData(tthStr string) ([]byte, error) {
	s.mu.Lock()
	if data, ok := s.leafCache[tthStr]; ok {
		s.mu.Unlock()
		return data, nil
	}
	s.mu.Unlock()

	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketTTH).Get([]byte(tthStr))
		if len(raw) == 0 {
			return errors.New("no such tth")
		}
		e, err := decodeEntry(raw)
		if err != nil {
			return err
		}
		data = e.LeafData
		return nil
	})
	if err != nil {
		return nil, errs.Wrap(errs.Unavailable, err, tthStr)
	}
	s.mu.Lock()
	s.leafCache[tthStr] = data
	s.mu.Unlock()
	return data, nil
}
