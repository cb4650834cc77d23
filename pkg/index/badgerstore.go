package index

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
)

// Key prefixes for BadgerDB storage organization, one byte each.
const (
	prefixVector = byte(0x01) // id -> float32 vector, little-endian
	prefixKey    = byte(0x02) // key -> id, 8 bytes big-endian
)

// MetaItem is one entry of the sidecar metadata file: the stored
// (possibly normalized) vector plus enough to reconstruct the original.
type MetaItem struct {
	ID           int64     `json:"id"`
	Vector       []float32 `json:"vector"`
	OriginalNorm float64   `json:"original_norm,omitempty"`
}

// IndexMeta is the sidecar metadata persisted alongside the Badger
// vector store: dimension, metric tag, and the full key<->id map with
// stored vectors, so the index can be rebuilt in-memory even if the
// Badger directory is lost.
type IndexMeta struct {
	Dim    int                 `json:"dim"`
	Metric string              `json:"metric"`
	Items  map[string]MetaItem `json:"items"`
}

// BadgerStore persists a RequestIndex's vectors in a BadgerDB directory
// plus a JSON sidecar file, written atomically via temp-then-rename
// after every mutation.
type BadgerStore struct {
	db       *badger.DB
	dataDir  string
	metaPath string
}

// OpenBadgerStore opens (or creates) a BadgerDB at dataDir and locates
// its sidecar metadata file beside it: dataDir with its extension
// replaced by ".meta.json" (requests.db -> requests.meta.json).
func OpenBadgerStore(dataDir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dataDir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("index: open badger store: %w", err)
	}
	return &BadgerStore{
		db:       db,
		dataDir:  dataDir,
		metaPath: strings.TrimSuffix(dataDir, filepath.Ext(dataDir)) + ".meta.json",
	}, nil
}

// Close closes the underlying Badger database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// LoadMeta reads the sidecar metadata file. A missing file is not an
// error: it returns (nil, nil), meaning "open with no prior state".
// If the sidecar is absent but Badger holds vector records (a crash
// between a vector write and the sidecar rewrite), the index is
// rebuilt from Badger instead.
func (s *BadgerStore) LoadMeta() (*IndexMeta, error) {
	data, err := os.ReadFile(s.metaPath)
	if err != nil {
		if os.IsNotExist(err) {
			return s.rebuildMetaFromBadger()
		}
		return nil, fmt.Errorf("index: read sidecar: %w", err)
	}

	var meta IndexMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("index: decode sidecar: %w", err)
	}
	return &meta, nil
}

// rebuildMetaFromBadger reconstructs metadata purely from the vector
// store when the sidecar is missing. Dim and metric cannot be
// recovered this way, so Dim is left at 0 (fixed on next Save) and
// Metric empty (skips the conflict check — the caller supplied metric
// wins).
func (s *BadgerStore) rebuildMetaFromBadger() (*IndexMeta, error) {
	items := make(map[string]MetaItem)
	keyByID := make(map[int64]string)

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte{prefixKey}
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			k := item.Key()
			key := string(k[1:])
			err := item.Value(func(val []byte) error {
				id := int64(binary.BigEndian.Uint64(val))
				keyByID[id] = key
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("index: rebuild from badger: %w", err)
	}
	if len(keyByID) == 0 {
		return nil, nil
	}

	err = s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte{prefixVector}
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			id := int64(binary.BigEndian.Uint64(item.Key()[1:]))
			key, ok := keyByID[id]
			if !ok {
				continue
			}
			err := item.Value(func(val []byte) error {
				items[key] = MetaItem{ID: id, Vector: decodeVector(val)}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("index: rebuild from badger: %w", err)
	}

	return &IndexMeta{Items: items}, nil
}

// Persist writes meta's vectors into Badger and the sidecar metadata
// file, the latter via temp-then-rename for atomicity.
func (s *BadgerStore) Persist(meta *IndexMeta) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		existing := make(map[int64]struct{})
		prefix := []byte{prefixVector}
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			id := int64(binary.BigEndian.Uint64(it.Item().Key()[1:]))
			existing[id] = struct{}{}
		}
		it.Close()

		wanted := make(map[int64]struct{}, len(meta.Items))
		for _, item := range meta.Items {
			wanted[item.ID] = struct{}{}
			if err := txn.Set(vectorKey(item.ID), encodeVector(item.Vector)); err != nil {
				return err
			}
		}
		for key, item := range meta.Items {
			if err := txn.Set(keyKey(key), encodeID(item.ID)); err != nil {
				return err
			}
		}
		for id := range existing {
			if _, ok := wanted[id]; !ok {
				if err := txn.Delete(vectorKey(id)); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("index: persist vectors: %w", err)
	}

	return writeSidecarAtomic(s.metaPath, meta)
}

func writeSidecarAtomic(path string, meta *IndexMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("index: encode sidecar: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".sidecar-*.tmp")
	if err != nil {
		return fmt.Errorf("index: create temp sidecar: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("index: write temp sidecar: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("index: close temp sidecar: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("index: rename sidecar: %w", err)
	}
	return nil
}

func vectorKey(id int64) []byte {
	key := make([]byte, 9)
	key[0] = prefixVector
	binary.BigEndian.PutUint64(key[1:], uint64(id))
	return key
}

func keyKey(key string) []byte {
	return append([]byte{prefixKey}, []byte(key)...)
}

func encodeID(id int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(id))
	return buf
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(data []byte) []float32 {
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec
}
