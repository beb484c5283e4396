package db

import (
	"fmt"
	"time"

	"github.com/efyoos/bellhop/internal/config"
	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DSN builds the connection string for the configured driver. An explicit
// dsn in the config is returned unchanged.
func DSN(c config.DatabaseConfig) string {
	if c.DSN != "" {
		return c.DSN
	}
	switch c.Driver {
	case "postgres":
		dsn := fmt.Sprintf("host=%s port=%d dbname=%s sslmode=disable", c.Host, c.Port, c.Name)
		if c.User != "" {
			dsn += " user=" + c.User
		}
		if c.Password != "" {
			dsn += " password=" + c.Password
		}
		return dsn
	default:
		mc := mysqldriver.NewConfig()
		mc.Net = "tcp"
		mc.Addr = fmt.Sprintf("%s:%d", c.Host, c.Port)
		mc.DBName = c.Name
		mc.User = c.User
		if mc.User == "" {
			mc.User = "root"
		}
		mc.Passwd = c.Password
		mc.ParseTime = true
		mc.Loc = time.UTC
		return mc.FormatDSN()
	}
}

// Dialector returns the GORM dialector for the configured driver.
func Dialector(c config.DatabaseConfig) (gorm.Dialector, error) {
	dsn := DSN(c)
	switch c.Driver {
	case "mysql", "":
		return mysql.Open(dsn), nil
	case "postgres":
		return postgres.Open(dsn), nil
	case "sqlite":
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("db: unsupported driver %q", c.Driver)
	}
}

// Connect opens a GORM connection for the configured database.
func Connect(c config.DatabaseConfig) (*gorm.DB, error) {
	dialector, err := Dialector(c)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("db: connect %s %s: %w", c.Driver, c.Name, err)
	}
	if c.Driver == "sqlite" {
		// sqlite serializes writers; a single connection avoids SQLITE_BUSY.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("db: sqlite handle: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

// CreateDatabase creates the configured MySQL database if it does not exist.
// Other drivers expect the database to be provisioned already.
func CreateDatabase(c config.DatabaseConfig) error {
	if c.Driver != "mysql" || c.DSN != "" {
		return nil
	}
	admin := c
	admin.Name = ""
	adminDB, err := gorm.Open(mysql.Open(DSN(admin)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return fmt.Errorf("db: admin connect to %s:%d: %w", c.Host, c.Port, err)
	}
	if sqlDB, err := adminDB.DB(); err == nil {
		defer sqlDB.Close()
	}
	sql := fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", c.Name)
	if err := adminDB.Exec(sql).Error; err != nil {
		return fmt.Errorf("db: create database %s: %w", c.Name, err)
	}
	return nil
}
