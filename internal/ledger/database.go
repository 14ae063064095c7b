package ledger

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const (
	transactionsBucket = "transactions"
	importsBucket      = "imports"
	categoriesBucket   = "categories"
)

// DB defines the interface for database operations. Every record is scoped
// to a user.
type DB interface {
	// SaveTransactions writes all transactions in a single database transaction
	SaveTransactions(txns []*Transaction) error

	// GetTransaction retrieves a transaction by ID
	GetTransaction(userID, id string) (*Transaction, error)

	// ListTransactions returns all transactions for a user
	ListTransactions(userID string) ([]*Transaction, error)

	// DeleteTransaction removes a transaction
	DeleteTransaction(userID, id string) error

	// SaveImport records an ingested file
	SaveImport(rec *ImportRecord) error

	// ListImports returns the import history for a user
	ListImports(userID string) ([]*ImportRecord, error)

	// AddCategory stores a custom category name
	AddCategory(userID, name string) error

	// ListCategories returns the custom categories for a user
	ListCategories(userID string) ([]string, error)

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB. Each top-level bucket
// holds one nested bucket per user.
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
		for _, name := range []string{transactionsBucket, importsBucket, categoriesBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// userBucket returns the user's nested bucket, or nil when it does not exist yet
func userBucket(tx *bbolt.Tx, name, userID string) *bbolt.Bucket {
	return tx.Bucket([]byte(name)).Bucket([]byte(userID))
}

func createUserBucket(tx *bbolt.Tx, name, userID string) (*bbolt.Bucket, error) {
	bucket, err := tx.Bucket([]byte(name)).CreateBucketIfNotExists([]byte(userID))
	if err != nil {
		return nil, fmt.Errorf("creating %s bucket for user: %w", name, err)
	}
	return bucket, nil
}

// SaveTransactions saves transactions to the database
func (b *BoltDB) SaveTransactions(txns []*Transaction) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		for _, txn := range txns {
			bucket, err := createUserBucket(tx, transactionsBucket, txn.UserID)
			if err != nil {
				return err
			}
			data, err := json.Marshal(txn)
			if err != nil {
				return fmt.Errorf("marshaling transaction: %w", err)
			}
			if err := bucket.Put([]byte(txn.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetTransaction retrieves a transaction by ID
func (b *BoltDB) GetTransaction(userID, id string) (*Transaction, error) {
	var txn *Transaction
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := userBucket(tx, transactionsBucket, userID)
		if bucket == nil {
			return fmt.Errorf("transaction %s: %w", id, ErrNotFound)
		}
		data := bucket.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("transaction %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &txn)
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// ListTransactions returns all transactions for a user
func (b *BoltDB) ListTransactions(userID string) ([]*Transaction, error) {
	txns := make([]*Transaction, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := userBucket(tx, transactionsBucket, userID)
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			var txn Transaction
			if err := json.Unmarshal(v, &txn); err != nil {
				return fmt.Errorf("unmarshaling transaction: %w", err)
			}
			txns = append(txns, &txn)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return txns, nil
}

// DeleteTransaction removes a transaction from the database
func (b *BoltDB) DeleteTransaction(userID, id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := userBucket(tx, transactionsBucket, userID)
		if bucket == nil || bucket.Get([]byte(id)) == nil {
			return fmt.Errorf("transaction %s: %w", id, ErrNotFound)
		}
		return bucket.Delete([]byte(id))
	})
}

// SaveImport saves an import record to the database
func (b *BoltDB) SaveImport(rec *ImportRecord) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := createUserBucket(tx, importsBucket, rec.UserID)
		if err != nil {
			return err
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshaling import record: %w", err)
		}
		return bucket.Put([]byte(rec.ID), data)
	})
}

// ListImports returns all import records for a user
func (b *BoltDB) ListImports(userID string) ([]*ImportRecord, error) {
	records := make([]*ImportRecord, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := userBucket(tx, importsBucket, userID)
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			var rec ImportRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("unmarshaling import record: %w", err)
			}
			records = append(records, &rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// AddCategory stores a custom category. The name is the key.
func (b *BoltDB) AddCategory(userID, name string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := createUserBucket(tx, categoriesBucket, userID)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(name), []byte(time.Now().UTC().Format(time.RFC3339)))
	})
}

// ListCategories returns custom category names in key order
func (b *BoltDB) ListCategories(userID string) ([]string, error) {
	names := make([]string, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := userBucket(tx, categoriesBucket, userID)
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, _ []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
