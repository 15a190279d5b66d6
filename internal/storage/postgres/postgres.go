// Package postgres implements PostgreSQL-backed storage for the co-pilot
// service using GORM. All GORM usage is confined to this package; domain
// types remain ORM-free.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/docuease/copilot/internal/audit"
	"github.com/docuease/copilot/internal/chat"
	"github.com/docuease/copilot/internal/emr"
	"github.com/docuease/copilot/internal/pending"
	"github.com/docuease/copilot/internal/storage"
)

// Config configures the PostgreSQL connection and pool.
type Config struct {
	DSN             string
	MaxOpenConns    int           // Default: 25
	MaxIdleConns    int           // Default: 5
	ConnMaxLifetime time.Duration // Default: 30m
	ConnMaxIdleTime time.Duration // Default: 10m
	PendingTTL      time.Duration // Default: pending.DefaultTTL
}

func (c Config) maxOpen() int {
	if c.MaxOpenConns > 0 {
		return c.MaxOpenConns
	}
	return 25
}

func (c Config) maxIdle() int {
	if c.MaxIdleConns > 0 {
		return c.MaxIdleConns
	}
	return 5
}

func (c Config) maxLifetime() time.Duration {
	if c.ConnMaxLifetime > 0 {
		return c.ConnMaxLifetime
	}
	return 30 * time.Minute
}

func (c Config) maxIdleTime() time.Duration {
	if c.ConnMaxIdleTime > 0 {
		return c.ConnMaxIdleTime
	}
	return 10 * time.Minute
}

func (c Config) pendingTTL() time.Duration {
	if c.PendingTTL > 0 {
		return c.PendingTTL
	}
	return pending.DefaultTTL
}

// Store implements storage.Store backed by PostgreSQL.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
	ttl    time.Duration

	// Sub-store instances (created lazily on first access).
	mu        sync.Mutex
	emrRepo   emr.Store
	pendings  pending.Store
	auditRepo audit.Store
	retriever chat.Retriever
}

// Open connects to PostgreSQL and configures the connection pool.
func Open(cfg Config, slogger *slog.Logger) (*Store, error) {
	gormLogger := logger.New(
		slogAdapter{slogger},
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)

	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger:      gormLogger,
		NowFunc:     func() time.Time { return time.Now().UTC() },
		PrepareStmt: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.maxOpen())
	sqlDB.SetMaxIdleConns(cfg.maxIdle())
	sqlDB.SetConnMaxLifetime(cfg.maxLifetime())
	sqlDB.SetConnMaxIdleTime(cfg.maxIdleTime())

	slogger.Info("postgres connected",
		slog.Int("max_open_conns", cfg.maxOpen()),
		slog.Int("max_idle_conns", cfg.maxIdle()),
	)

	return &Store{db: db, logger: slogger, ttl: cfg.pendingTTL()}, nil
}

// GormDB returns the underlying *gorm.DB for repository constructors.
func (s *Store) GormDB() *gorm.DB {
	return s.db
}

// Migrate creates/updates tables in FK-dependency order.
func (s *Store) Migrate(_ context.Context) error {
	return AutoMigrate(s.db)
}

// AutoMigrate creates or updates all tables. Shared with the SQLite backend,
// which reuses the same models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&PatientModel{},
		&EncounterModel{},
		&LabResultModel{},
		&MedicationModel{},
		&AppointmentModel{},
		&ProgressNoteModel{},
		&PendingOperationModel{},
		&AuditEntryModel{},
		&PatientEmbeddingModel{},
	)
}

// Ping checks the database connection for health/readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the database connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Driver returns "postgres".
func (s *Store) Driver() string {
	return storage.DriverPostgres
}

// --- Sub-store accessors ---

func (s *Store) EMR() emr.Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.emrRepo == nil {
		s.emrRepo = NewEMRRepository(s.db)
	}
	return s.emrRepo
}

func (s *Store) Pending() pending.Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pendings == nil {
		s.pendings = NewPendingRepository(s.db, s.ttl)
	}
	return s.pendings
}

func (s *Store) Audit() audit.Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditRepo == nil {
		s.auditRepo = NewAuditRepository(s.db)
	}
	return s.auditRepo
}

func (s *Store) Retriever() chat.Retriever {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.retriever == nil {
		s.retriever = NewEmbeddingRepository(s.db)
	}
	return s.retriever
}

// slogAdapter wraps *slog.Logger for GORM's logger.Writer interface.
type slogAdapter struct {
	logger *slog.Logger
}

func (s slogAdapter) Printf(format string, args ...any) {
	s.logger.Info(fmt.Sprintf(format, args...))
}

// compile-time interface check
var _ storage.Store = (*Store)(nil)
