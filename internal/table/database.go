package table

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const (
	tableBucketName    = "tables"
	settingsBucketName = "settings"

	currentTableKey = "current"
	apiKeySetting   = "api_key"
	proModelSetting = "pro_model"
)

// ErrNoTable is returned when no scan has been stored yet
var ErrNoTable = errors.New("no table has been scanned yet")

// DB defines the interface for database operations
type DB interface {
	// SaveTable replaces the current table
	SaveTable(table *Table) error

	// GetTable returns the current table or ErrNoTable
	GetTable() (*Table, error)

	// GetSetting returns a stored setting, empty if unset
	GetSetting(key string) (string, error)

	// SaveSetting stores a setting
	SaveSetting(key, value string) error

	// DeleteSetting removes a setting
	DeleteSetting(key string) error

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(tableBucketName)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(settingsBucketName)); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// SaveTable replaces the current table
func (b *BoltDB) SaveTable(table *Table) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(tableBucketName))
		data, err := json.Marshal(table)
		if err != nil {
			return fmt.Errorf("marshaling table: %w", err)
		}
		return bucket.Put([]byte(currentTableKey), data)
	})
}

// GetTable returns the current table
func (b *BoltDB) GetTable() (*Table, error) {
	var table *Table
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(tableBucketName))
		data := bucket.Get([]byte(currentTableKey))
		if data == nil {
			return ErrNoTable
		}
		return json.Unmarshal(data, &table)
	})
	if err != nil {
		return nil, err
	}
	return table, nil
}

// GetSetting returns a stored setting
func (b *BoltDB) GetSetting(key string) (string, error) {
	var value string
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(settingsBucketName))
		value = string(bucket.Get([]byte(key)))
		return nil
	})
	return value, err
}

// SaveSetting stores a setting
func (b *BoltDB) SaveSetting(key, value string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(settingsBucketName)).Put([]byte(key), []byte(value))
	})
}

// DeleteSetting removes a setting
func (b *BoltDB) DeleteSetting(key string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(settingsBucketName)).Delete([]byte(key))
	})
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
