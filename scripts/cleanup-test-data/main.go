// cleanup-test-data removes facilities created by manual or UI testing,
// together with every schedule version imported for them.
//
// A facility is test data when its code or name matches one of
// testFacilityPatterns (case-insensitive), e.g. "TEST-001" or "Comisaria demo".
//
// Usage: go run ./scripts/cleanup-test-data [-dry-run=false]
//
// Database connection: Uses standard PG* environment variables
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// testFacilityPatterns are PostgreSQL ~* patterns matched against code and name.
var testFacilityPatterns = []string{
	`^test`,
	`test$`,
	`^uitest`,
	`^demo`,
	`^dummy`,
	`^sample`,
	`^prueba`,
	`^ejemplo`,
}

type testFacility struct {
	id        uuid.UUID
	code      string
	name      string
	schedules int
}

func main() {
	dryRun := flag.Bool("dry-run", true, "Show what would be deleted without actually deleting")
	flag.Parse()

	ctx := context.Background()

	conn, err := pgx.Connect(ctx, buildConnString())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close(ctx)

	if *dryRun {
		fmt.Println("DRY RUN - no changes will be made")
		fmt.Println("Run with -dry-run=false to actually delete facilities")
		fmt.Println()
	}

	seen := make(map[uuid.UUID]bool)
	var found []testFacility
	for _, pattern := range testFacilityPatterns {
		matches, err := findTestFacilities(ctx, conn, pattern)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error matching pattern %q: %v\n", pattern, err)
			os.Exit(1)
		}
		if len(matches) == 0 {
			fmt.Printf("  [%s] No matching facilities\n", pattern)
		}
		for _, f := range matches {
			if seen[f.id] {
				continue
			}
			seen[f.id] = true
			found = append(found, f)
			fmt.Printf("  [%s] %s %q (%d schedule versions)\n", pattern, f.code, truncate(f.name, 60), f.schedules)
		}
	}

	if *dryRun {
		fmt.Printf("\nTotal facilities that would be deleted: %d\n", len(found))
		return
	}

	deleted := 0
	for _, f := range found {
		if err := deleteFacility(ctx, conn, f.id); err != nil {
			fmt.Fprintf(os.Stderr, "Error deleting %s: %v\n", f.code, err)
			os.Exit(1)
		}
		deleted++
	}
	fmt.Printf("\nTotal facilities deleted: %d\n", deleted)
}

func findTestFacilities(ctx context.Context, conn *pgx.Conn, pattern string) ([]testFacility, error) {
	rows, err := conn.Query(ctx, `
		SELECT f.id, f.code, f.name, COUNT(s.id)
		FROM facilities f
		LEFT JOIN schedules s ON s.facility_id = f.id
		WHERE f.code ~* $1 OR f.name ~* $1
		GROUP BY f.id, f.code, f.name
		ORDER BY f.code
	`, pattern)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var out []testFacility
	for rows.Next() {
		var f testFacility
		if err := rows.Scan(&f.id, &f.code, &f.name, &f.schedules); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return out, nil
}

// deleteFacility removes the schedules first; the facility foreign key
// restricts deletes while versions exist. Line items cascade.
func deleteFacility(ctx context.Context, conn *pgx.Conn, id uuid.UUID) error {
	return pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM schedules WHERE facility_id = $1`, id); err != nil {
			return fmt.Errorf("delete schedules failed: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM facilities WHERE id = $1`, id); err != nil {
			return fmt.Errorf("delete facility failed: %w", err)
		}
		return nil
	})
}

func buildConnString() string {
	host := getEnvOrDefault("PGHOST", "localhost")
	port := getEnvOrDefault("PGPORT", "5432")
	user := getEnvOrDefault("PGUSER", "nemaec")
	password := os.Getenv("PGPASSWORD")
	dbname := getEnvOrDefault("PGDATABASE", "nemaec")

	connStr := fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=disable",
		host, port, user, dbname)
	if password != "" {
		connStr += fmt.Sprintf(" password=%s", password)
	}
	return connStr
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
