// Package catalog persists table schemas, index definitions, and the
// database metadata file (version, edition, client connection id) that
// spec §4.9/§9 describe, the way the teacher's pkg/storage persists
// cluster state: a single bbolt file, one bucket per entity, JSON-encoded
// values.
package catalog

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"

	bolt "go.etcd.io/bbolt"

	"github.com/ridgedb/ridge/pkg/schema"
	"github.com/ridgedb/ridge/pkg/table"
)

var (
	bucketTables = []byte("tables")
	bucketMeta   = []byte("meta")
)

const metaKey = "database"

// DatabaseMeta is the metadata file spec §9 describes: written once when
// a database is created, checked on every subsequent open.
//
// Version matching is implemented at major.minor precision only — an
// explicit Open Question decision (see DESIGN.md) against reproducing a
// bug where pinning to an exact patch version refused to open databases
// a later patch could read just fine.
type DatabaseMeta struct {
	VersionMajor       int
	VersionMinor       int
	Edition            string
	ClientConnectionID string
}

// TableDef is one table's persisted definition.
type TableDef struct {
	TableID uint32
	Schema  schema.Schema
	Indexes []table.IndexSpec
}

// Catalog is the metadata store. It lives in its own bbolt file
// alongside the commit log directory, separate from the row data the
// commit log carries — schema changes are never logged as TxData (spec
// §4.6's TxData is rows only), so they need their own durable home.
type Catalog struct {
	db *bolt.DB
}

// Open creates (or opens) catalog.db under dir, creating its buckets on
// first use.
func Open(dir string) (*Catalog, error) {
	path := filepath.Join(dir, "catalog.db")
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketTables, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("catalog: create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Catalog{db: db}, nil
}

// Close closes the underlying bbolt file.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// PutTable persists def, upserting by table ID.
func (c *Catalog) PutTable(def TableDef) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTables)
		data, err := json.Marshal(def)
		if err != nil {
			return fmt.Errorf("catalog: encode table %d: %w", def.TableID, err)
		}
		return b.Put(tableKey(def.TableID), data)
	})
}

// Tables returns every persisted table definition in ascending table-ID
// order — the order Datastore.Open expects to bootstrap committed state
// in, since a lower table ID was always created first.
func (c *Catalog) Tables() ([]TableDef, error) {
	var defs []TableDef
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTables)
		return b.ForEach(func(k, v []byte) error {
			var def TableDef
			if err := json.Unmarshal(v, &def); err != nil {
				return fmt.Errorf("catalog: decode table %q: %w", k, err)
			}
			defs = append(defs, def)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].TableID < defs[j].TableID })
	return defs, nil
}

func tableKey(id uint32) []byte {
	return []byte(strconv.FormatUint(uint64(id), 10))
}

// PutMeta persists the database metadata file, upserting the single
// record.
func (c *Catalog) PutMeta(meta DatabaseMeta) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMeta)
		data, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("catalog: encode metadata: %w", err)
		}
		return b.Put([]byte(metaKey), data)
	})
}

// Meta reads the database metadata file. found is false for a brand new
// catalog that has never had one written.
func (c *Catalog) Meta() (meta DatabaseMeta, found bool, err error) {
	err = c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMeta)
		data := b.Get([]byte(metaKey))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &meta)
	})
	return meta, found, err
}

// CheckVersion implements spec §9's version-matching decision: a database
// opens only if its persisted major.minor matches the running binary's,
// regardless of patch version.
func CheckVersion(meta DatabaseMeta, runningMajor, runningMinor int) error {
	if meta.VersionMajor != runningMajor || meta.VersionMinor != runningMinor {
		return fmt.Errorf("catalog: database was created by version %d.%d, this binary is %d.%d",
			meta.VersionMajor, meta.VersionMinor, runningMajor, runningMinor)
	}
	return nil
}
