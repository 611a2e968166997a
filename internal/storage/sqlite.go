// internal/storage/sqlite.go
package storage

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"

	_ "modernc.org/sqlite"

	"mcp-nutrient-profile/internal/embedding"
	"mcp-nutrient-profile/internal/models"
)

// SQLiteStorage is the prebuilt catalog database: foods in catalog order
// with their embeddings, and the nutrient names.
type SQLiteStorage struct {
	db *sql.DB
}

func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	storage := &SQLiteStorage{db: db}
	if err := storage.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func (s *SQLiteStorage) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS foods (
        position INTEGER PRIMARY KEY,
        fdc_id INTEGER NOT NULL UNIQUE,
        description TEXT NOT NULL,
        embedding BLOB
    );

    CREATE TABLE IF NOT EXISTS nutrients (
        id INTEGER PRIMARY KEY,
        name TEXT NOT NULL
    );
    `

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// SaveFoodCatalog replaces the stored foods. Stored embeddings are dropped
// with them, since positions change.
func (s *SQLiteStorage) SaveFoodCatalog(catalog *models.FoodCatalog) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM foods`); err != nil {
		return fmt.Errorf("failed to clear foods: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO foods (position, fdc_id, description) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare food insert: %w", err)
	}
	defer stmt.Close()

	for pos, food := range catalog.Entries() {
		if _, err := stmt.Exec(pos, food.ID, food.Name); err != nil {
			return fmt.Errorf("failed to insert food %d: %w", food.ID, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStorage) SaveNutrientCatalog(catalog *models.NutrientCatalog) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM nutrients`); err != nil {
		return fmt.Errorf("failed to clear nutrients: %w", err)
	}
	for _, n := range catalog.Entries() {
		if _, err := tx.Exec(`INSERT INTO nutrients (id, name) VALUES (?, ?)`, n.ID, n.Name); err != nil {
			return fmt.Errorf("failed to insert nutrient %d: %w", n.ID, err)
		}
	}

	return tx.Commit()
}

// SaveEmbeddings stores one vector per food, keyed by fdc id.
func (s *SQLiteStorage) SaveEmbeddings(index *embedding.Index) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	for _, e := range index.Entries() {
		res, err := tx.Exec(`UPDATE foods SET embedding = ? WHERE fdc_id = ?`, encodeVector(e.Vector), e.FoodID)
		if err != nil {
			return fmt.Errorf("failed to store embedding for food %d: %w", e.FoodID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: food %d is not in the catalog", embedding.ErrMisaligned, e.FoodID)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStorage) LoadFoodCatalog() (*models.FoodCatalog, error) {
	rows, err := s.db.Query(`SELECT fdc_id, description FROM foods ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to query foods: %w", err)
	}
	defer rows.Close()

	var entries []models.FoodEntry
	for rows.Next() {
		var e models.FoodEntry
		if err := rows.Scan(&e.ID, &e.Name); err != nil {
			return nil, fmt.Errorf("failed to scan food: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read foods: %w", err)
	}

	return models.NewFoodCatalog(entries), nil
}

func (s *SQLiteStorage) LoadNutrientCatalog() (*models.NutrientCatalog, error) {
	rows, err := s.db.Query(`SELECT id, name FROM nutrients ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query nutrients: %w", err)
	}
	defer rows.Close()

	var entries []models.NutrientEntry
	for rows.Next() {
		var e models.NutrientEntry
		if err := rows.Scan(&e.ID, &e.Name); err != nil {
			return nil, fmt.Errorf("failed to scan nutrient: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read nutrients: %w", err)
	}

	return models.NewNutrientCatalog(entries), nil
}

// LoadIndex reads the food embeddings in catalog order. A food without an
// embedding fails the load with embedding.ErrMisaligned.
func (s *SQLiteStorage) LoadIndex() (*embedding.Index, error) {
	rows, err := s.db.Query(`SELECT fdc_id, description, embedding FROM foods ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer rows.Close()

	var entries []embedding.Entry
	for rows.Next() {
		var e embedding.Entry
		var blob []byte
		if err := rows.Scan(&e.FoodID, &e.Name, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan embedding: %w", err)
		}
		if e.Vector, err = decodeVector(blob); err != nil {
			return nil, fmt.Errorf("food %d: %w", e.FoodID, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read embeddings: %w", err)
	}

	return embedding.FromEntries(entries)
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("embedding blob has %d bytes, not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}
