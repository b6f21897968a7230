package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/developingchet/sessiongate/internal/rules"
	"github.com/vmihailenco/msgpack/v5"
	bolt "go.etcd.io/bbolt"
)

const (
	bucketRuleset = "ruleset"
	keyCurrent    = "current"
)

// cachedSet is the msgpack wire form of a RuleSet.
type cachedSet struct {
	IPs      []string
	Licenses []string
	SteamIDs []int64
	BuiltAt  time.Time
}

// Cache persists the last successfully built RuleSet so a restart with an
// unreachable rule store can still serve the previous projection instead of
// an empty set.
type Cache struct {
	db *bolt.DB
}

// OpenCache opens (or creates) the bbolt snapshot cache at dataDir/ruleset.db.
func OpenCache(dataDir string) (*Cache, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	path := filepath.Join(dataDir, "ruleset.db")
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt at %s: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketRuleset))
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Cache{db: db}, nil
}

// Save stores set as the cached snapshot, replacing any previous one.
func (c *Cache) Save(set *rules.RuleSet) error {
	wire := cachedSet{
		IPs:      make([]string, 0, len(set.IPs)),
		Licenses: make([]string, 0, len(set.Licenses)),
		SteamIDs: make([]int64, 0, len(set.SteamIDs)),
		BuiltAt:  set.BuiltAt,
	}
	for ip := range set.IPs {
		wire.IPs = append(wire.IPs, ip)
	}
	for lic := range set.Licenses {
		wire.Licenses = append(wire.Licenses, lic)
	}
	for id := range set.SteamIDs {
		wire.SteamIDs = append(wire.SteamIDs, id)
	}
	data, err := msgpack.Marshal(wire)
	if err != nil {
		return fmt.Errorf("marshal ruleset: %w", err)
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketRuleset)).Put([]byte(keyCurrent), data)
	})
}

// Load returns the cached snapshot, or nil if none has been saved.
func (c *Cache) Load() (*rules.RuleSet, error) {
	var wire cachedSet
	var found bool
	err := c.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(bucketRuleset)).Get([]byte(keyCurrent))
		if v == nil {
			return nil
		}
		found = true
		return msgpack.Unmarshal(v, &wire)
	})
	if err != nil {
		return nil, fmt.Errorf("load cached ruleset: %w", err)
	}
	if !found {
		return nil, nil
	}
	set := &rules.RuleSet{
		IPs:      make(map[string]struct{}, len(wire.IPs)),
		Licenses: make(map[string]struct{}, len(wire.Licenses)),
		SteamIDs: make(map[int64]struct{}, len(wire.SteamIDs)),
		BuiltAt:  wire.BuiltAt,
	}
	for _, ip := range wire.IPs {
		set.IPs[ip] = struct{}{}
	}
	for _, lic := range wire.Licenses {
		set.Licenses[lic] = struct{}{}
	}
	for _, id := range wire.SteamIDs {
		set.SteamIDs[id] = struct{}{}
	}
	return set, nil
}

// SizeBytes returns the on-disk size of the cache file.
func (c *Cache) SizeBytes() (int64, error) {
	info, err := os.Stat(c.db.Path())
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Close closes the underlying bbolt database.
func (c *Cache) Close() error {
	return c.db.Close()
}
