package db

import (
	"fmt"
	"io/fs"
	"log"
	"os"
)

// RunMigrateCommand handles the 'migrate' subcommand dispatching.
func RunMigrateCommand(args []string, dbPath string) {
	if len(args) < 1 {
		PrintMigrateHelp()
		os.Exit(1)
	}
	action := args[0]
	if action == "help" {
		PrintMigrateHelp()
		return
	}

	migrations, err := MigrationsFS()
	if err != nil {
		log.Fatalf("Failed to load migrations: %v", err)
	}

	// the schema is managed by the command, so skip NewDB's auto-migrate
	database, err := OpenDB(dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	switch action {
	case "up":
		log.Printf("Running migrations...")
		if err := database.MigrateUp(migrations); err != nil {
			log.Fatalf("Migration up failed: %v", err)
		}
		printVersion(database, migrations)

	case "down":
		log.Printf("Rolling back one migration...")
		if err := database.MigrateDown(migrations); err != nil {
			log.Fatalf("Migration down failed: %v", err)
		}
		printVersion(database, migrations)

	case "status":
		handleMigrateStatus(database, migrations)

	case "version":
		if len(args) < 2 {
			log.Fatal("Usage: drowsiness migrate version <version_number>")
		}
		var target uint
		if _, err := fmt.Sscanf(args[1], "%d", &target); err != nil {
			log.Fatalf("Invalid version number: %s", args[1])
		}
		if err := database.MigrateTo(migrations, target); err != nil {
			log.Fatalf("Migration to version %d failed: %v", target, err)
		}
		printVersion(database, migrations)

	case "force":
		if len(args) < 2 {
			log.Fatal("Usage: drowsiness migrate force <version_number>")
		}
		var forced int
		if _, err := fmt.Sscanf(args[1], "%d", &forced); err != nil {
			log.Fatalf("Invalid version number: %s", args[1])
		}
		if err := database.MigrateForce(migrations, forced); err != nil {
			log.Fatalf("Force migration failed: %v", err)
		}
		log.Printf("Migration version forced to %d", forced)

	default:
		fmt.Printf("Unknown migrate action: %s\n\n", action)
		PrintMigrateHelp()
		os.Exit(1)
	}
}

func printVersion(database *DB, migrations fs.FS) {
	version, dirty, err := database.MigrateVersion(migrations)
	if err != nil {
		log.Printf("Failed to read migration version: %v", err)
		return
	}
	log.Printf("Current version: %d (dirty: %v)", version, dirty)
}

func handleMigrateStatus(database *DB, migrations fs.FS) {
	version, dirty, err := database.MigrateVersion(migrations)
	if err != nil {
		log.Fatalf("Failed to get migration status: %v", err)
	}
	latest, err := LatestMigrationVersion(migrations)
	if err != nil {
		log.Fatalf("Failed to read migrations: %v", err)
	}

	fmt.Println("=== Migration Status ===")
	fmt.Printf("Current version: %d\n", version)
	fmt.Printf("Latest available: %d\n", latest)
	fmt.Printf("Dirty: %v\n", dirty)
	switch {
	case dirty:
		fmt.Println("\nWARNING: a migration failed mid-execution. Inspect the database, then run: drowsiness migrate force <version>")
	case version < latest:
		fmt.Printf("\nDatabase is %d version(s) behind. Run 'drowsiness migrate up'.\n", latest-version)
	}
}

// PrintMigrateHelp prints usage for the migrate subcommand.
func PrintMigrateHelp() {
	fmt.Println(`Usage: drowsiness migrate <action> [args]

Actions:
  up                 apply all pending migrations
  down               roll back the most recent migration
  status             show current and latest schema versions
  version <n>        migrate up or down to version n
  force <n>          mark version n as applied (dirty-state recovery only)
  help               show this message`)
}
