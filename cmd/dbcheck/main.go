// Command dbcheck verifies that DATABASE_URL is reachable.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"user-admin-server/internal/config"
	"user-admin-server/internal/db"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "database connection failed:", err)
		os.Exit(1)
	}
	fmt.Println("database connection OK")
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := db.Connect(ctx, cfg.DBURL)
	if err != nil {
		return err
	}
	defer conn.Close()

	return db.Healthcheck(ctx, conn.SQL, 5*time.Second)
}
