package main

import (
	"database/sql"
	"fmt"
	"log"

	_ "github.com/lib/pq"

	"darkpool-backend/internal/config"
)

// Verifies database connectivity and the column sizes the exchange depends
// on: commitment columns must hold 0x-prefixed keccak hashes (66 chars).
func main() {
	fmt.Println("🔍 Verifying database connection and column sizes...")

	if err := config.LoadConfig(""); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	sqlDB, err := sql.Open("postgres", config.AppConfig.Database.DSN)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	var dbName string
	if err := sqlDB.QueryRow("SELECT current_database()").Scan(&dbName); err != nil {
		log.Fatalf("Failed to get database name: %v", err)
	}
	fmt.Printf("📋 Connected to database: %s\n", dbName)

	checks := []struct {
		table  string
		column string
		min    int64
	}{
		{"commitment_records", "commitment", 66},
		{"orders", "commitment", 66},
		{"matches", "buy_commitment", 66},
		{"matches", "sell_commitment", 66},
		{"channels", "participant", 42},
	}

	failed := 0
	for _, check := range checks {
		var size sql.NullInt64
		err := sqlDB.QueryRow(`
			SELECT character_maximum_length
			FROM information_schema.columns
			WHERE table_schema = 'public'
			AND table_name = $1
			AND column_name = $2
		`, check.table, check.column).Scan(&size)
		if err == sql.ErrNoRows {
			fmt.Printf("❌ %s.%s does not exist (run the server once to migrate)\n", check.table, check.column)
			failed++
			continue
		}
		if err != nil {
			log.Fatalf("Failed to query column size: %v", err)
		}
		if !size.Valid {
			// Unbounded text column, always wide enough.
			fmt.Printf("✅ %s.%s: unbounded\n", check.table, check.column)
			continue
		}
		if size.Int64 < check.min {
			fmt.Printf("❌ %s.%s: VARCHAR(%d), need at least %d\n", check.table, check.column, size.Int64, check.min)
			failed++
			continue
		}
		fmt.Printf("✅ %s.%s: VARCHAR(%d)\n", check.table, check.column, size.Int64)
	}

	if failed > 0 {
		log.Fatalf("❌ %d column check(s) failed", failed)
	}
	fmt.Println("✅ All column checks passed")
}
