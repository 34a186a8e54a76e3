package database

import (
	"log"
	"os"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sede-open/Scope3EApi-sub000/models"
)

var DB *gorm.DB

// Connect opens the database named by dsn and migrates the schema.
// Postgres DSNs get the postgres driver; anything that looks like a file
// path (or an empty dsn) falls back to sqlite, which is what the test
// suite and local development run on.
func Connect(dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch {
	case strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://"):
		dialector = postgres.Open(dsn)
	case dsn == "":
		dialector = sqlite.Open("scope3.db")
	case strings.HasPrefix(dsn, "file:") || strings.HasSuffix(dsn, ".db") || strings.Contains(dsn, ":memory:"):
		dialector = sqlite.Open(dsn)
	default:
		// Assume postgres DSN even without schema prefix
		dialector = postgres.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(
		&models.Company{},
		&models.User{},
		&models.CompanyRelationship{},
		&models.CorporateEmission{},
		&models.CorporateEmissionAccess{},
		&models.EmissionAllocation{},
		&models.QueuedJob{},
	); err != nil {
		return nil, err
	}

	return db, nil
}

func ConnectDB() {
	dsn := os.Getenv("DATABASE_URL")

	db, err := Connect(dsn)
	if err != nil {
		log.Fatal("database connection failed: ", err)
	}

	DB = db
	log.Println("database connected and migrated")
}
