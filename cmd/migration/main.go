package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/fadedpez/spinz/pkg/db/migrations"
)

func main() {
	// Define command-line flags
	createCmd := flag.NewFlagSet("create", flag.ExitOnError)
	migrateCmd := flag.NewFlagSet("migrate", flag.ExitOnError)
	statusCmd := flag.NewFlagSet("status", flag.ExitOnError)

	// Create command options
	dialect := createCmd.String("dialect", "sqlite", "Dialect the migration is written for: sqlite | postgres")

	// Migrate and status command options
	var migrateDriver, migrateDB, statusDriver, statusDB string
	for _, fs := range []struct {
		set    *flag.FlagSet
		driver *string
		db     *string
	}{{migrateCmd, &migrateDriver, &migrateDB}, {statusCmd, &statusDriver, &statusDB}} {
		fs.set.StringVar(fs.driver, "driver", "sqlite", "Database driver: sqlite | postgres")
		fs.set.StringVar(fs.db, "db", "data/spinz.db", "SQLite path, or the Postgres connection string (defaults to DB_SOURCE)")
	}

	// Show usage if no arguments provided
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	// Parse command
	switch os.Args[1] {
	case "create":
		createCmd.Parse(os.Args[2:])
		if createCmd.NArg() < 1 {
			fmt.Println("Error: Missing migration description")
			createCmd.Usage()
			os.Exit(1)
		}
		createNewMigration(migrations.Dialect(*dialect), createCmd.Arg(0))

	case "migrate":
		migrateCmd.Parse(os.Args[2:])
		db, closeDB := openDatabase(migrateDriver, migrateDB)
		defer closeDB()
		printStatus(db, migrateDriver)
		fmt.Println("Migrations applied successfully!")

	case "status":
		statusCmd.Parse(os.Args[2:])
		db, closeDB := openDatabase(statusDriver, statusDB)
		defer closeDB()
		printStatus(db, statusDriver)

	case "help":
		printUsage()

	default:
		fmt.Printf("Error: Unknown command '%s'\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  go run cmd/migration/main.go create [-dialect sqlite|postgres] DESCRIPTION  - Create a new migration")
	fmt.Println("  go run cmd/migration/main.go migrate [-driver sqlite|postgres] [-db DSN]      - Apply pending migrations")
	fmt.Println("  go run cmd/migration/main.go status [-driver sqlite|postgres] [-db DSN]       - List applied migrations")
	fmt.Println("  go run cmd/migration/main.go help                                             - Show this help")
	fmt.Println("\nExamples:")
	fmt.Println("  go run cmd/migration/main.go create -dialect postgres \"add bonus rounds\"")
	fmt.Println("  go run cmd/migration/main.go migrate -db data/spinz.db")
}

func createNewMigration(dialect migrations.Dialect, description string) {
	if dialect != migrations.DialectSQLite && dialect != migrations.DialectPostgres {
		log.Fatalf("Unknown dialect %q", dialect)
	}

	// New files land next to the embedded schema so the next build picks them up
	dir := filepath.Join("pkg", "db", "migrations", string(dialect))
	filePath, err := migrations.CreateMigration(dir, description)
	if err != nil {
		log.Fatalf("Error creating migration: %v", err)
	}

	fmt.Printf("Created migration file: %s\n", filePath)
	fmt.Println("Edit this file to add your database schema changes, then add the same change for the other dialect.")
}

// openDatabase opens the database, which applies every pending migration
func openDatabase(driver, source string) (*sql.DB, func()) {
	switch driver {
	case "sqlite":
		db, err := migrations.OpenSQLite(source)
		if err != nil {
			log.Fatalf("Error opening database: %v", err)
		}
		return db, func() { db.Close() }

	case "postgres":
		if source == "" || source == "data/spinz.db" {
			source = os.Getenv("DB_SOURCE")
		}
		if source == "" {
			log.Fatal("A Postgres connection string is required, pass -db or set DB_SOURCE")
		}
		pool, db, err := migrations.OpenPostgres(context.Background(), source)
		if err != nil {
			log.Fatalf("Error opening database: %v", err)
		}
		return db, func() {
			db.Close()
			pool.Close()
		}

	default:
		log.Fatalf("Unknown driver %q", driver)
		return nil, nil
	}
}

func printStatus(db *sql.DB, driver string) {
	migrator, err := migrations.NewMigrator(db, migrations.Dialect(driver))
	if err != nil {
		log.Fatalf("Error creating migrator: %v", err)
	}

	applied, err := migrator.GetAppliedMigrations()
	if err != nil {
		log.Fatalf("Error reading applied migrations: %v", err)
	}
	all, err := migrator.LoadMigrations()
	if err != nil {
		log.Fatalf("Error loading migrations: %v", err)
	}

	for _, migration := range all {
		state := "pending"
		if applied[migration.Version] {
			state = "applied"
		}
		fmt.Printf("  %s  %-8s %s\n", migration.Version, state, migration.Description)
	}
}
