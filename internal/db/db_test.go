package db

import (
	"path/filepath"
	"testing"

	"github.com/zulandar/rentbell/internal/models"
)

func TestDialector(t *testing.T) {
	tests := []struct {
		driver  string
		wantErr bool
		name    string
	}{
		{driver: "sqlite", name: "sqlite"},
		{driver: "sqlite3", name: "sqlite"},
		{driver: "", name: "sqlite"},
		{driver: "mysql", name: "mysql"},
		{driver: "postgres", wantErr: true},
	}
	for _, tt := range tests {
		d, err := Dialector(tt.driver, "dsn")
		if tt.wantErr {
			if err == nil {
				t.Errorf("Dialector(%q): expected error", tt.driver)
			}
			continue
		}
		if err != nil {
			t.Errorf("Dialector(%q): %v", tt.driver, err)
			continue
		}
		if got := d.Name(); got != tt.name {
			t.Errorf("Dialector(%q).Name() = %q, want %q", tt.driver, got, tt.name)
		}
	}
}

func TestAllModels(t *testing.T) {
	if n := len(AllModels()); n != 3 {
		t.Errorf("AllModels() has %d models, want 3", n)
	}
}

func TestConnectAndMigrate_SQLiteFile(t *testing.T) {
	gdb, err := Connect(DriverSQLite, filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := AutoMigrate(gdb); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	for _, m := range AllModels() {
		if !gdb.Migrator().HasTable(m) {
			t.Errorf("table for %T not created", m)
		}
	}

	run := models.DispatchRun{ID: "r1", TenantID: "t1", Total: 1}
	if err := gdb.Create(&run).Error; err != nil {
		t.Fatalf("create run: %v", err)
	}
	var got models.DispatchRun
	if err := gdb.First(&got, "id = ?", "r1").Error; err != nil {
		t.Fatalf("load run: %v", err)
	}
	if got.TenantID != "t1" {
		t.Errorf("TenantID = %q, want t1", got.TenantID)
	}
}
