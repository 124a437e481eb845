package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/router-for-me/CreditEngine/internal/app"
	"github.com/router-for-me/CreditEngine/internal/config"

	log "github.com/sirupsen/logrus"
)

// main runs the CLI entrypoint and exits on unrecoverable command errors.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if errRun := run(ctx, os.Args[1:]); errRun != nil {
		log.WithError(errRun).Error("command failed")
		stop()
		os.Exit(1)
	}
}

// run parses flags, loads config, and dispatches to migrate, token issue or the server.
func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("creditengine", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "config file path (or env CONFIG_PATH)")
	port := fs.Int("port", config.DefaultServerPort, "server port when the config omits server.port")
	envFile := fs.String("env-file", ".env", "optional dotenv file loaded before config")
	migrateOnly := fs.Bool("migrate", false, "run database migrations and exit")
	issueToken := fs.String("issue-admin-token", "", "ensure the named admin exists, print a bearer token and exit")
	if errParse := fs.Parse(args); errParse != nil {
		return errParse
	}

	if errValidate := validatePort(*port); errValidate != nil {
		return errValidate
	}
	if errEnv := loadEnvFile(*envFile); errEnv != nil {
		return errEnv
	}

	appCfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}
	if strings.TrimSpace(*cfgPath) != "" {
		appCfg.ConfigPath = config.ResolveConfigPath(*cfgPath)
	}

	switch {
	case *migrateOnly:
		if errMigrate := app.Migrate(ctx, appCfg); errMigrate != nil {
			return errMigrate
		}
		log.Info("migrations applied")
		return nil
	case strings.TrimSpace(*issueToken) != "":
		token, errIssue := app.IssueAdminToken(ctx, appCfg, *issueToken)
		if errIssue != nil {
			return errIssue
		}
		fmt.Println(token)
		return nil
	}

	configPath := config.ResolveConfigPath(appCfg.ConfigPath)
	if !app.ConfigExists(configPath) && strings.TrimSpace(os.Getenv(config.EnvDBConnection)) == "" {
		return fmt.Errorf("config file %s not found and %s is unset", configPath, config.EnvDBConnection)
	}
	return app.RunServer(ctx, appCfg, *port)
}

// loadEnvFile loads a dotenv file when present without overriding the environment.
func loadEnvFile(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	if _, errStat := os.Stat(path); errStat != nil {
		if os.IsNotExist(errStat) {
			return nil
		}
		return errStat
	}
	if errLoad := godotenv.Load(path); errLoad != nil {
		return fmt.Errorf("load %s: %w", path, errLoad)
	}
	return nil
}

func validatePort(port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("invalid port: %d", port)
	}
	return nil
}
