// Package directory is the auth/ownership store behind the S3 core: a
// credential relation (owner, access_key, secret_key) keyed to an owner
// identity, plus a bucket-ownership relation (bucket, owner). Keys belong
// to owners, not buckets, so a credentialed caller can create buckets over
// plain authenticated HTTP — the same split the original gateway's
// XrdS3Auth keeps between its keystore and its bucket map. Backed by
// either SQLite (single-node) or PostgreSQL (HA), mirroring the teacher's
// pkg/controlplane/store.GORMStore DatabaseType switch and ApplyDefaults
// idiom. PostgreSQL deployments run schema migrations through
// golang-migrate, as the teacher's pkg/store/metadata/postgres package
// does; SQLite uses gorm.AutoMigrate directly, as the controlplane store
// does for its own SQLite path.
package directory

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DatabaseType selects the directory's backing store.
type DatabaseType string

const (
	DatabaseTypeSQLite   DatabaseType = "sqlite"
	DatabaseTypePostgres DatabaseType = "postgres"
)

// SQLiteConfig is the SQLite-backend configuration.
type SQLiteConfig struct {
	Path string
}

// PostgresConfig is the PostgreSQL-backend configuration.
type PostgresConfig struct {
	Host         string
	Port         int
	Database     string
	User         string
	Password     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

// DSN returns the PostgreSQL connection string.
func (c *PostgresConfig) DSN() string {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s",
		c.Host, c.Port, c.User, c.Password, c.Database)
	if c.SSLMode != "" {
		dsn += fmt.Sprintf(" sslmode=%s", c.SSLMode)
	}
	return dsn
}

// Config selects and configures the directory's backing store.
type Config struct {
	Type     DatabaseType
	SQLite   SQLiteConfig
	Postgres PostgresConfig
}

// ApplyDefaults fills in unset fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Type == "" {
		c.Type = DatabaseTypeSQLite
	}
	if c.Type == DatabaseTypeSQLite && c.SQLite.Path == "" {
		configDir := os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			home, _ := os.UserHomeDir()
			configDir = filepath.Join(home, ".config")
		}
		c.SQLite.Path = filepath.Join(configDir, "xrdgojs3", "directory.db")
	}
	if c.Type == DatabaseTypePostgres {
		if c.Postgres.Port == 0 {
			c.Postgres.Port = 5432
		}
		if c.Postgres.SSLMode == "" {
			c.Postgres.SSLMode = "disable"
		}
		if c.Postgres.MaxOpenConns == 0 {
			c.Postgres.MaxOpenConns = 25
		}
		if c.Postgres.MaxIdleConns == 0 {
			c.Postgres.MaxIdleConns = 5
		}
	}
}

// Validate checks the config for the selected backend.
func (c *Config) Validate() error {
	switch c.Type {
	case DatabaseTypeSQLite:
		if c.SQLite.Path == "" {
			return fmt.Errorf("sqlite path is required")
		}
	case DatabaseTypePostgres:
		if c.Postgres.Host == "" || c.Postgres.Database == "" || c.Postgres.User == "" {
			return fmt.Errorf("postgres host, database and user are required")
		}
	default:
		return fmt.Errorf("unsupported database type: %s", c.Type)
	}
	return nil
}

// CredentialRecord is one owner identity's SigV4 credential row. An owner
// holds exactly one access key, usable against every bucket it owns and
// for creating new ones.
type CredentialRecord struct {
	Owner     string    `gorm:"column:owner;primaryKey"`
	AccessKey string    `gorm:"column:access_key;uniqueIndex"`
	SecretKey string    `gorm:"column:secret_key"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (CredentialRecord) TableName() string { return "credential_records" }

// BucketRecord is one bucket's ownership row.
type BucketRecord struct {
	Bucket    string    `gorm:"column:bucket;primaryKey"`
	Owner     string    `gorm:"column:owner;index"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (BucketRecord) TableName() string { return "bucket_records" }

// ErrNotFound is returned when a bucket, owner, or access key has no record.
var ErrNotFound = errors.New("directory: record not found")

// Directory is the bucket auth/ownership store.
type Directory struct {
	db *gorm.DB
}

// New opens (and, for SQLite, migrates) the directory store.
func New(config *Config) (*Directory, error) {
	if config == nil {
		config = &Config{}
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid directory config: %w", err)
	}

	switch config.Type {
	case DatabaseTypeSQLite:
		return newSQLiteDirectory(config)
	case DatabaseTypePostgres:
		return newPostgresDirectory(config)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", config.Type)
	}
}

func newSQLiteDirectory(config *Config) (*Directory, error) {
	if err := os.MkdirAll(filepath.Dir(config.SQLite.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create directory db dir: %w", err)
	}
	dsn := config.SQLite.Path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open sqlite directory db: %w", err)
	}
	if err := db.AutoMigrate(&CredentialRecord{}, &BucketRecord{}); err != nil {
		return nil, fmt.Errorf("automigrate directory tables: %w", err)
	}
	return &Directory{db: db}, nil
}

func newPostgresDirectory(config *Config) (*Directory, error) {
	connStr := config.Postgres.DSN()
	if err := runPostgresMigrations(connStr); err != nil {
		return nil, err
	}
	db, err := gorm.Open(postgres.Open(connStr), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open postgres directory db: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(config.Postgres.MaxOpenConns)
		sqlDB.SetMaxIdleConns(config.Postgres.MaxIdleConns)
	}
	return &Directory{db: db}, nil
}

func runPostgresMigrations(connStr string) error {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return fmt.Errorf("open pgx connection: %w", err)
	}
	defer db.Close()

	driver, err := migratepg.WithInstance(db, &migratepg.Config{
		MigrationsTable: "schema_migrations",
		DatabaseName:    "xrdgojs3_directory",
	})
	if err != nil {
		return fmt.Errorf("postgres migrate driver: %w", err)
	}

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// Lookup returns the ownership record for bucket, or ErrNotFound.
func (d *Directory) Lookup(ctx context.Context, bucket string) (*BucketRecord, error) {
	var rec BucketRecord
	err := d.db.WithContext(ctx).Where("bucket = ?", bucket).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup bucket %q: %w", bucket, err)
	}
	return &rec, nil
}

// LookupByAccessKey returns the credential owning accessKey, or ErrNotFound.
func (d *Directory) LookupByAccessKey(ctx context.Context, accessKey string) (*CredentialRecord, error) {
	var rec CredentialRecord
	err := d.db.WithContext(ctx).Where("access_key = ?", accessKey).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup access key: %w", err)
	}
	return &rec, nil
}

// LookupCredential returns owner's credential, or ErrNotFound.
func (d *Directory) LookupCredential(ctx context.Context, owner string) (*CredentialRecord, error) {
	var rec CredentialRecord
	err := d.db.WithContext(ctx).Where("owner = ?", owner).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup credential for %q: %w", owner, err)
	}
	return &rec, nil
}

// CreateCredential inserts a new owner credential. CreatedAt is stamped if
// zero.
func (d *Directory) CreateCredential(ctx context.Context, rec *CredentialRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if err := d.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("create credential for %q: %w", rec.Owner, err)
	}
	return nil
}

// ListByOwner returns every bucket record owned by owner, sorted by name.
func (d *Directory) ListByOwner(ctx context.Context, owner string) ([]BucketRecord, error) {
	var recs []BucketRecord
	err := d.db.WithContext(ctx).Where("owner = ?", owner).Order("bucket").Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("list buckets for owner %q: %w", owner, err)
	}
	return recs, nil
}

// Create inserts a new bucket record. CreatedAt is stamped if zero.
func (d *Directory) Create(ctx context.Context, rec *BucketRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if err := d.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("create bucket record %q: %w", rec.Bucket, err)
	}
	return nil
}

// Delete removes bucket's record.
func (d *Directory) Delete(ctx context.Context, bucket string) error {
	res := d.db.WithContext(ctx).Delete(&BucketRecord{}, "bucket = ?", bucket)
	if res.Error != nil {
		return fmt.Errorf("delete bucket record %q: %w", bucket, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
