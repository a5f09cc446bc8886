package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"runtime"
	"time"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/pochenphys/Group-Project/internal/config"
	"github.com/pochenphys/Group-Project/internal/dispatch"
	"github.com/pochenphys/Group-Project/internal/transport"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check environment, configuration and backend health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("fridgeline doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, using defaults + env)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	fmt.Println()
	fmt.Println("  Credentials:")
	checkSecret("Channel secret", cfg.Line.ChannelSecret)
	checkSecret("Channel token", cfg.Line.ChannelToken)

	fmt.Println()
	fmt.Println("  Database:")
	if cfg.Database.PostgresDSN == "" {
		fmt.Printf("    %-12s FRIDGELINE_POSTGRES_DSN not set (inventory disabled)\n", "Status:")
	} else {
		db, dbErr := sql.Open("postgres", cfg.Database.PostgresDSN)
		if dbErr != nil {
			fmt.Printf("    %-12s CONNECT FAILED (%s)\n", "Status:", dbErr)
		} else if pingErr := db.Ping(); pingErr != nil {
			fmt.Printf("    %-12s CONNECT FAILED (%s)\n", "Status:", pingErr)
			db.Close()
		} else {
			fmt.Printf("    %-12s OK\n", "Status:")
			var version uint
			var dirty bool
			row := db.QueryRow("SELECT version, dirty FROM schema_migrations LIMIT 1")
			if scanErr := row.Scan(&version, &dirty); scanErr != nil {
				fmt.Printf("    %-12s unknown (run: fridgeline migrate up)\n", "Schema:")
			} else if dirty {
				fmt.Printf("    %-12s v%d (DIRTY — run: fridgeline migrate force %d)\n", "Schema:", version, version-1)
			} else {
				fmt.Printf("    %-12s v%d\n", "Schema:", version)
			}
			db.Close()
		}
	}

	fmt.Println()
	fmt.Println("  Backends:")
	if len(cfg.Backends) == 0 {
		fmt.Println("    (none configured)")
	} else {
		hc := transport.New(transport.Policy{MaxAttempts: 1}, 5*time.Second)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		for _, b := range cfg.Backends {
			backend := dispatch.NewBackend(b.Name, b.Role, b.URL, b.APIKey, hc)
			if err := backend.Health(ctx); err != nil {
				fmt.Printf("    %-10s %-8s UNREACHABLE (%s)\n", b.Name, b.Role, err)
			} else {
				fmt.Printf("    %-10s %-8s OK\n", b.Name, b.Role)
			}
		}
	}

	fmt.Println()
	fmt.Println("  Content store:")
	if cfg.ContentStore.URL == "" {
		fmt.Println("    (not configured)")
	} else {
		fmt.Printf("    %s\n", cfg.ContentStore.URL)
	}
}

func checkSecret(name, value string) {
	if value == "" {
		fmt.Printf("    %-16s MISSING\n", name+":")
	} else {
		fmt.Printf("    %-16s set (%d chars)\n", name+":", len(value))
	}
}
