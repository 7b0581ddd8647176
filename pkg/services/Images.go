package services

import (
	"crypto/sha1"
	"encoding/base64"
	"fmt"

	"github.com/adampresley/photomap/pkg/models"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/rfberaldo/sqlz"
)

var (
	ErrNotFound = fmt.Errorf("not found")
)

type ImageInfoServicer interface {
	/*
	 * All returns every cached image entry, including failed ones.
	 */
	All() ([]*models.Image, error)

	/*
	 * DeleteMissing removes image entries and their blobs whose
	 * key is not in keep. It returns the number of removed entries.
	 */
	DeleteMissing(keep []string) (int, error)

	/*
	 * Get returns the image entry for a key. ErrNotFound is returned
	 * when no entry exists.
	 */
	Get(key string) (*models.Image, error)

	/*
	 * GetKey returns the short key for a source id, allocating a new
	 * one if the id was never seen before.
	 */
	GetKey(sourceID string) (string, error)

	Save(image *models.Image) error
}

type ImageInfoServiceConfig struct {
	DB *sqlz.DB
}

type ImageInfoService struct {
	db *sqlz.DB
}

func NewImageInfoService(config ImageInfoServiceConfig) ImageInfoService {
	return ImageInfoService{
		db: config.DB,
	}
}

func (s ImageInfoService) All() ([]*models.Image, error) {
	var (
		err    error
		result = []*models.Image{}
	)

	statement := `
SELECT
	key
	, source_id
	, mod_time
	, failed
	, created_at
	, width
	, height
	, latitude
	, longitude
FROM images
ORDER BY key ASC
	`

	ctx, cancel := DBContext()
	defer cancel()

	if err = s.db.Query(ctx, &result, statement); err != nil {
		return result, fmt.Errorf("error querying for all images: %w", err)
	}

	return result, nil
}

func (s ImageInfoService) DeleteMissing(keep []string) (int, error) {
	var (
		err     error
		all     []*models.Image
		tx      *sqlz.Tx
		deleted int
	)

	if all, err = s.All(); err != nil {
		return 0, err
	}

	keepSet := mapset.NewThreadUnsafeSet(keep...)

	ctx, cancel := DBContext()
	defer cancel()

	if tx, err = s.db.Begin(ctx); err != nil {
		return 0, fmt.Errorf("error starting transaction: %w", err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	for _, image := range all {
		if keepSet.Contains(image.Key) {
			continue
		}

		if _, err = tx.Exec(ctx, `DELETE FROM images WHERE key=?`, image.Key); err != nil {
			return 0, fmt.Errorf("error deleting image '%s': %w", image.Key, err)
		}

		if _, err = tx.Exec(ctx, `DELETE FROM blobs WHERE key=?`, image.Key); err != nil {
			return 0, fmt.Errorf("error deleting blobs of image '%s': %w", image.Key, err)
		}

		deleted++
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("error committing image cleanup: %w", err)
	}

	return deleted, nil
}

func (s ImageInfoService) Get(key string) (*models.Image, error) {
	var (
		err error
	)

	result := &models.Image{}

	statement := `
SELECT
	key
	, source_id
	, mod_time
	, failed
	, created_at
	, width
	, height
	, latitude
	, longitude
FROM images
WHERE 1=1
	AND key=?
	`

	ctx, cancel := DBContext()
	defer cancel()

	if err = s.db.QueryRow(ctx, result, statement, key); err != nil {
		if sqlz.IsNotFound(err) {
			return nil, fmt.Errorf("image '%s': %w", key, ErrNotFound)
		}

		return nil, fmt.Errorf("error querying for image '%s': %w", key, err)
	}

	return result, nil
}

/*
GetKey returns the key of sourceID. New keys are the URL-safe base64
encoding of the first 9 bytes of the SHA-1 hash of the source id. On a
collision the hash prefix is incremented until an unused key is found.
*/
func (s ImageInfoService) GetKey(sourceID string) (string, error) {
	var (
		err error
		tx  *sqlz.Tx
	)

	type keyRow struct {
		Key string
	}

	existing := &keyRow{}

	ctx, cancel := DBContext()
	defer cancel()

	if tx, err = s.db.Begin(ctx); err != nil {
		return "", fmt.Errorf("error starting transaction: %w", err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	err = tx.QueryRow(ctx, existing, `SELECT key FROM image_keys WHERE source_id=?`, sourceID)
	if err == nil {
		return existing.Key, nil
	}

	if !sqlz.IsNotFound(err) {
		return "", fmt.Errorf("error querying key of '%s': %w", sourceID, err)
	}

	sum := sha1.Sum([]byte(sourceID))
	h := sum[:9]

	for {
		key := base64.RawURLEncoding.EncodeToString(h)

		err = tx.QueryRow(ctx, existing, `SELECT key FROM image_keys WHERE key=?`, key)
		if sqlz.IsNotFound(err) {
			if _, err = tx.Exec(ctx, `INSERT INTO image_keys (source_id, key) VALUES (?, ?)`, sourceID, key); err != nil {
				return "", fmt.Errorf("error storing key of '%s': %w", sourceID, err)
			}

			if err = tx.Commit(); err != nil {
				return "", fmt.Errorf("error committing key of '%s': %w", sourceID, err)
			}

			return key, nil
		}

		if err != nil {
			return "", fmt.Errorf("error checking key '%s': %w", key, err)
		}

		incrementBytes(h)
	}
}

func (s ImageInfoService) Save(image *models.Image) error {
	var (
		err error
	)

	statement := `
INSERT INTO images (
	key
	, source_id
	, mod_time
	, failed
	, created_at
	, width
	, height
	, latitude
	, longitude
) VALUES (
	?
	, ?
	, ?
	, ?
	, ?
	, ?
	, ?
	, ?
	, ?
) ON CONFLICT (key) DO
UPDATE SET
	source_id=excluded.source_id
	, mod_time=excluded.mod_time
	, failed=excluded.failed
	, created_at=excluded.created_at
	, width=excluded.width
	, height=excluded.height
	, latitude=excluded.latitude
	, longitude=excluded.longitude
	`

	args := []any{
		image.Key,
		image.SourceID,
		image.ModTime,
		image.Failed,
		image.CreatedAt,
		image.Width,
		image.Height,
		image.Latitude,
		image.Longitude,
	}

	ctx, cancel := DBContext()
	defer cancel()

	if _, err = s.db.Exec(ctx, statement, args...); err != nil {
		return fmt.Errorf("error saving image '%s': %w", image.Key, err)
	}

	return nil
}

func incrementBytes(p []byte) {
	for i := len(p) - 1; i >= 0; i-- {
		p[i]++
		if p[i] != 0 {
			return
		}
	}
}
