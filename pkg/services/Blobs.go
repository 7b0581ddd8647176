package services

import (
	"fmt"
	"time"

	"github.com/adampresley/photomap/pkg/models"
	"github.com/rfberaldo/sqlz"
)

type BlobServicer interface {
	/*
	 * Delete removes every blob stored for a key.
	 */
	Delete(key string) error

	/*
	 * Get returns the blob of the given kind for key. ErrNotFound is
	 * returned when it was never stored.
	 */
	Get(kind models.BlobKind, key string) (*models.Blob, error)

	Put(kind models.BlobKind, key string, data []byte) (*models.Blob, error)
}

type BlobServiceConfig struct {
	DB *sqlz.DB
}

type BlobService struct {
	db *sqlz.DB
}

func NewBlobService(config BlobServiceConfig) BlobService {
	return BlobService{
		db: config.DB,
	}
}

func (s BlobService) Delete(key string) error {
	var (
		err error
	)

	ctx, cancel := DBContext()
	defer cancel()

	if _, err = s.db.Exec(ctx, `DELETE FROM blobs WHERE key=?`, key); err != nil {
		return fmt.Errorf("error deleting blobs of '%s': %w", key, err)
	}

	return nil
}

func (s BlobService) Get(kind models.BlobKind, key string) (*models.Blob, error) {
	var (
		err error
	)

	result := &models.Blob{}

	statement := `
SELECT
	kind
	, key
	, data
	, created_at
FROM blobs
WHERE 1=1
	AND kind=?
	AND key=?
	`

	ctx, cancel := DBContext()
	defer cancel()

	if err = s.db.QueryRow(ctx, result, statement, string(kind), key); err != nil {
		if sqlz.IsNotFound(err) {
			return nil, fmt.Errorf("%s '%s': %w", kind, key, ErrNotFound)
		}

		return nil, fmt.Errorf("error querying for %s '%s': %w", kind, key, err)
	}

	return result, nil
}

func (s BlobService) Put(kind models.BlobKind, key string, data []byte) (*models.Blob, error) {
	var (
		err error
	)

	result := &models.Blob{
		Kind:      string(kind),
		Key:       key,
		Data:      data,
		CreatedAt: time.Now().Unix(),
	}

	statement := `
INSERT INTO blobs (
	kind
	, key
	, data
	, created_at
) VALUES (
	?
	, ?
	, ?
	, ?
) ON CONFLICT (kind, key) DO
UPDATE SET
	data=excluded.data
	, created_at=excluded.created_at
	`

	ctx, cancel := DBContext()
	defer cancel()

	if _, err = s.db.Exec(ctx, statement, result.Kind, result.Key, result.Data, result.CreatedAt); err != nil {
		return nil, fmt.Errorf("error storing %s '%s': %w", kind, key, err)
	}

	return result, nil
}
