package repo

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/cotte4/portal-jai1-backend-sub001/internal/domain"
)

// openTestDB opens a migrated database in a fresh temp dir.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "monitor.db")
	db, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// seedCase inserts a minimal monitored case and returns it.
func seedCase(t *testing.T, db *gorm.DB, id string) *domain.TaxCase {
	t.Helper()
	c := &domain.TaxCase{
		ID:                   id,
		ClientSlug:           "doe-" + id[:4],
		OwnerUserID:          "owner-1",
		TaxYear:              2025,
		FilingStatus:         "single",
		WorkState:            "NY",
		PaymentMethod:        domain.PaymentDirectDeposit,
		EncryptedSSN:         "ciphertext",
		MonitoringEnabled:    true,
		FederalAlarmsEnabled: true,
		StateAlarmsEnabled:   true,
		CreatedAt:            time.Now().UTC(),
	}
	if err := db.Create(c).Error; err != nil {
		t.Fatalf("seed case: %v", err)
	}
	return c
}

func TestOpenSQLite_ErrorOnMissingParentDir(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "missing", "monitor.db")

	db, err := OpenSQLite(bad)
	if err == nil || db != nil {
		t.Fatalf("expected error opening %q, got db=%v err=%v", bad, db, err)
	}
	lower := strings.ToLower(err.Error())
	if !(os.IsNotExist(err) ||
		strings.Contains(lower, "unable to open database file") ||
		strings.Contains(lower, "no such file or directory") ||
		strings.Contains(lower, "out of memory")) {
		t.Fatalf("unexpected error opening %q: %v", bad, err)
	}
}

func TestOpenSQLite_PragmasAndMigration(t *testing.T) {
	db := openTestDB(t)

	var journalMode string
	if err := db.Raw("PRAGMA journal_mode;").Row().Scan(&journalMode); err != nil {
		t.Fatalf("PRAGMA journal_mode: %v", err)
	}
	if !strings.EqualFold(journalMode, "wal") {
		t.Fatalf("journal_mode = %q; want wal", journalMode)
	}

	var fkOn int
	if err := db.Raw("PRAGMA foreign_keys;").Row().Scan(&fkOn); err != nil {
		t.Fatalf("PRAGMA foreign_keys: %v", err)
	}
	if fkOn != 1 {
		t.Fatalf("foreign_keys = %d; want 1", fkOn)
	}

	for _, table := range []string{"tax_cases", "refund_checks", "status_history"} {
		if !db.Migrator().HasTable(table) {
			t.Fatalf("expected table %q after migration", table)
		}
	}
}
