package database

import (
	"path/filepath"
	"testing"

	"github.com/AzielCF/az-prospector/core/config"
)

func TestNewDatabase_SQLiteFile(t *testing.T) {
	cfg := &config.Config{
		Database: config.DatabaseConfig{Driver: "sqlite", Name: filepath.Join(t.TempDir(), "nested", "test.db")},
	}

	db, err := NewDatabase(cfg)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	defer Close(db)

	var one int
	if err := db.Raw("SELECT 1").Scan(&one).Error; err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if one != 1 {
		t.Fatalf("expected 1, got %d", one)
	}
}

func TestNewDatabase_UnknownDriver(t *testing.T) {
	_, err := NewDatabase(&config.Config{Database: config.DatabaseConfig{Driver: "oracle"}})
	if err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}
