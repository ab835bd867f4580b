// Command migrate управляет схемой PostgreSQL вне основного сервиса:
// применяет миграции, показывает версию, снимает dirty-состояние, откатывает шаг.
//
//	migrate up
//	migrate version
//	migrate force 1
//	migrate down
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/dha2608/MLN-AI/internal/config"
	"github.com/dha2608/MLN-AI/internal/pkg/logger"
	"github.com/dha2608/MLN-AI/pkg/database"
)

func main() {
	_ = godotenv.Load()

	log, err := logger.New(os.Getenv("LOG_MODE"))
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: migrate up|version|force <version>|down")
		os.Exit(2)
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.Load(configPath, log)
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}
	if cfg.Database.Driver != "postgres" {
		log.Fatal("Migrations require database.driver=postgres", zap.String("driver", cfg.Database.Driver))
	}

	db, err := database.NewPostgresDB(cfg.Database.PostgresConnectionString(), cfg.Log.Mode)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	source := cfg.Database.MigrationsPath

	switch os.Args[1] {
	case "up":
		if err := database.MigrateDB(db, source, log); err != nil {
			log.Fatal("Migration failed", zap.Error(err))
		}
	case "version":
		version, dirty, err := database.MigrationVersion(db, source)
		if err != nil {
			log.Fatal("Failed to read migration version", zap.Error(err))
		}
		log.Info("Current schema version", zap.Uint("version", version), zap.Bool("dirty", dirty))
	case "force":
		if len(os.Args) < 3 {
			log.Fatal("force requires a version argument")
		}
		version, err := strconv.Atoi(os.Args[2])
		if err != nil {
			log.Fatal("Invalid version", zap.String("version", os.Args[2]), zap.Error(err))
		}
		// Снимает dirty-состояние после ручного исправления неудачной миграции
		if err := database.ForceMigrationVersion(db, source, version); err != nil {
			log.Fatal("Failed to force version", zap.Error(err))
		}
		log.Info("Schema version forced", zap.Int("version", version))
	case "down":
		if err := database.RollbackMigration(db, source); err != nil {
			log.Fatal("Rollback failed", zap.Error(err))
		}
		log.Info("Rolled back one migration")
	default:
		log.Fatal("Unknown command", zap.String("command", os.Args[1]))
	}
}
