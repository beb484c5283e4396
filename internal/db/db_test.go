package db

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/efyoos/bellhop/internal/config"
	"github.com/efyoos/bellhop/internal/models"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

func TestDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.DatabaseConfig
		want []string
	}{
		{
			name: "mysql defaults to root",
			cfg:  config.DatabaseConfig{Driver: "mysql", Host: "127.0.0.1", Port: 3306, Name: "bellhop"},
			want: []string{"root@tcp(127.0.0.1:3306)/bellhop", "parseTime=true"},
		},
		{
			name: "mysql with credentials",
			cfg:  config.DatabaseConfig{Driver: "mysql", Host: "db", Port: 3307, Name: "hotel", User: "app", Password: "pw"},
			want: []string{"app:pw@tcp(db:3307)/hotel"},
		},
		{
			name: "postgres",
			cfg:  config.DatabaseConfig{Driver: "postgres", Host: "pg", Port: 5432, Name: "bellhop", User: "app"},
			want: []string{"host=pg", "port=5432", "dbname=bellhop", "user=app"},
		},
		{
			name: "explicit dsn wins",
			cfg:  config.DatabaseConfig{Driver: "sqlite", DSN: "file:bellhop.db"},
			want: []string{"file:bellhop.db"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DSN(tt.cfg)
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("DSN() = %q, want to contain %q", got, w)
				}
			}
		})
	}
}

func TestDialector_UnsupportedDriver(t *testing.T) {
	_, err := Dialector(config.DatabaseConfig{Driver: "oracle"})
	if err == nil || !strings.Contains(err.Error(), "unsupported driver") {
		t.Errorf("error = %v, want unsupported driver", err)
	}
}

func TestDialector_Names(t *testing.T) {
	for _, driver := range []string{"mysql", "postgres", "sqlite"} {
		d, err := Dialector(config.DatabaseConfig{Driver: driver, DSN: "x"})
		if err != nil {
			t.Fatalf("Dialector(%s): %v", driver, err)
		}
		if d.Name() != driver {
			t.Errorf("Name() = %q, want %q", d.Name(), driver)
		}
	}
}

func TestCreateDatabase_SkipsNonMySQL(t *testing.T) {
	if err := CreateDatabase(config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"}); err != nil {
		t.Errorf("CreateDatabase(sqlite) = %v, want nil", err)
	}
}

func TestAllModels_Count(t *testing.T) {
	if got := len(AllModels()); got != 8 {
		t.Errorf("AllModels() = %d models, want 8", got)
	}
}

func TestConnectMigrateSeed_SQLite(t *testing.T) {
	gormDB, err := Connect(config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := AutoMigrate(gormDB); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}

	hotels := []config.HotelConfig{{
		ID: "grand",
		Staff: []config.StaffConfig{
			{Name: "Amal", Contact: "+966500000001", Role: "housekeeping"},
			{Name: "Omar", Contact: "+966500000002", Role: "maintenance"},
		},
		Admins: []config.AdminConfig{{Name: "Manager", WhatsApp: "+966500000099", Primary: true}},
	}}

	staffN, adminN, err := SeedHotels(gormDB, hotels)
	if err != nil {
		t.Fatalf("SeedHotels: %v", err)
	}
	if staffN != 2 || adminN != 1 {
		t.Errorf("seeded %d staff, %d admins; want 2, 1", staffN, adminN)
	}

	// Reseeding updates in place.
	hotels[0].Staff[0].Role = "room_service"
	if _, _, err := SeedHotels(gormDB, hotels); err != nil {
		t.Fatalf("SeedHotels again: %v", err)
	}
	var count int64
	gormDB.Model(&models.Staff{}).Count(&count)
	if count != 2 {
		t.Errorf("staff rows = %d, want 2", count)
	}
	var amal models.Staff
	gormDB.Where("contact_address = ?", "+966500000001").First(&amal)
	if amal.Role != "room_service" {
		t.Errorf("Role = %q, want room_service", amal.Role)
	}
	if !amal.IsActive {
		t.Error("seeded staff should be active")
	}
}

func TestIsDuplicateKey(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"gorm", fmt.Errorf("wrap: %w", gorm.ErrDuplicatedKey), true},
		{"mysql 1062", &mysqldriver.MySQLError{Number: 1062, Message: "Duplicate entry"}, true},
		{"mysql other", &mysqldriver.MySQLError{Number: 1045}, false},
		{"postgres 23505", &pgconn.PgError{Code: "23505"}, true},
		{"postgres other", &pgconn.PgError{Code: "40001"}, false},
		{"sqlite text", errors.New("UNIQUE constraint failed: tasks.short_code"), true},
		{"unrelated", errors.New("connection refused"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsDuplicateKey(tt.err); got != tt.want {
				t.Errorf("IsDuplicateKey(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
