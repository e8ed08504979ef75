// Package main provides the logtier provisioning CLI.
//
// The provisioner handles the out-of-band setup the serving path assumes:
// creating the cold store schema, seeding the tenant registry from a YAML
// file, and issuing API keys for registered applications.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/logtier-io/logtier/internal/auth"
	"github.com/logtier-io/logtier/internal/storage"
)

// Version information.
const (
	version = "1.0.0-dev"
	name    = "provisioner"
)

const commandTimeout = 30 * time.Second

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	var err error

	switch os.Args[1] {
	case "init":
		err = runInit(ctx, logger)
	case "seed":
		err = runSeed(ctx, logger, os.Args[2:])
	case "issue":
		err = runIssue(ctx, logger, os.Args[2:])
	case "help", "-h", "--help":
		printUsage()

		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		logger.Error("Provisioning failed",
			slog.String("command", os.Args[1]),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
}

// runInit creates the cold store logs table.
func runInit(ctx context.Context, logger *slog.Logger) error {
	cold, err := storage.NewClickHouseColdStore(storage.LoadColdConfig(), logger)
	if err != nil {
		return err
	}

	defer func() {
		_ = cold.Close()
	}()

	if err := cold.EnsureSchema(ctx); err != nil {
		return err
	}

	logger.Info("Cold store schema ensured")

	return nil
}

// runSeed registers the servers and apps listed in a YAML seed file.
// Seeding is idempotent: existing servers are left untouched and existing
// app names resolve to their current app_id.
func runSeed(ctx context.Context, logger *slog.Logger, args []string) error {
	flags := flag.NewFlagSet("seed", flag.ExitOnError)
	file := flags.String("file", "tenants.yaml", "path to the tenant seed file")

	if err := flags.Parse(args); err != nil {
		return err
	}

	seed, err := LoadSeedFile(*file)
	if err != nil {
		return err
	}

	conn, err := storage.NewConnection(storage.LoadRelationalConfig(), logger)
	if err != nil {
		return err
	}

	defer func() {
		_ = conn.Close()
	}()

	registry := storage.NewPersistentTenantRegistry(conn, logger)

	for _, server := range seed.Servers {
		if err := registry.InsertServer(ctx, server.ID, server.Name, server.Description); err != nil {
			return err
		}

		logger.Info("Server registered", slog.String("server_id", server.ID))
	}

	for _, app := range seed.Apps {
		appID, err := registry.InsertApp(ctx, app.Name, app.Description, app.ServerID)
		if err != nil {
			return err
		}

		logger.Info("App registered",
			slog.String("app_name", app.Name),
			slog.String("app_id", appID),
			slog.String("server_id", app.ServerID),
		)
		fmt.Printf("%s\t%s\n", app.Name, appID)
	}

	return nil
}

// runIssue mints an API key for a registered app and prints the token. The
// token is shown exactly once; only its bcrypt hash is recorded.
func runIssue(ctx context.Context, logger *slog.Logger, args []string) error {
	flags := flag.NewFlagSet("issue", flag.ExitOnError)
	appID := flags.String("app", "", "app_id to issue a key for")

	if err := flags.Parse(args); err != nil {
		return err
	}

	if *appID == "" {
		return fmt.Errorf("issue: -app is required")
	}

	cipher, err := auth.NewCipherFromEnv()
	if err != nil {
		return err
	}

	conn, err := storage.NewConnection(storage.LoadRelationalConfig(), logger)
	if err != nil {
		return err
	}

	defer func() {
		_ = conn.Close()
	}()

	registry := storage.NewPersistentTenantRegistry(conn, logger)
	authenticator := auth.NewAuthenticator(registry, cipher, logger)

	token, err := authenticator.Issue(ctx, *appID)
	if err != nil {
		return err
	}

	fmt.Println(token)

	return nil
}

func printUsage() {
	fmt.Printf(`%s v%s - Provisioning tool for logtier

Usage:
  provisioner init                 Create the cold store logs table
  provisioner seed -file <path>    Seed servers and apps from a YAML file
  provisioner issue -app <app_id>  Mint an API key for an app

Environment:
  Cold store:   CLICKHOUSE_HOST, CLICKHOUSE_PORT, CLICKHOUSE_DATABASE, CLICKHOUSE_USERNAME, CLICKHOUSE_PASSWORD
  Registry:     DB_HOST, DB_PORT, DB_NAME, DB_USER, DB_PASSWORD
  Issue:        AES_SECRET_KEY (32 bytes)
`, name, version)
}
