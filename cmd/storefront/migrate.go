package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/trilltino/handyman/internal/catalog"
	"github.com/trilltino/handyman/internal/config"
	"github.com/trilltino/handyman/internal/repository"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply catalog and orders schema migrations, then exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()

		cat, err := openCatalog(cfg)
		if err != nil {
			return err
		}
		defer cat.Close()
		log.Info("catalog migrations applied", zap.String("path", cfg.CatalogDBPath))

		repo, err := repository.NewRepository(cmd.Context(), credentials(cfg))
		if err != nil {
			return err
		}
		defer repo.Close()
		if err := repo.RunMigrations(credentials(cfg)); err != nil {
			return fmt.Errorf("orders migrations: %w", err)
		}
		log.Info("orders migrations applied", zap.String("db", cfg.Postgres.DBName))
		return nil
	},
}

func openCatalog(cfg *config.Config) (*catalog.Repository, error) {
	cat, err := catalog.NewRepository(cfg.CatalogDBPath)
	if err != nil {
		return nil, err
	}
	if err := cat.RunMigrations(cfg.CatalogMigrationsPath); err != nil {
		cat.Close()
		return nil, fmt.Errorf("catalog migrations: %w", err)
	}
	return cat, nil
}

func credentials(cfg *config.Config) *repository.Credentials {
	return &repository.Credentials{
		Host:              cfg.Postgres.Host,
		Port:              cfg.Postgres.Port,
		User:              cfg.Postgres.User,
		Password:          cfg.Postgres.Password,
		DBName:            cfg.Postgres.DBName,
		MigrationsDirPath: cfg.Postgres.MigrationsDirPath,
	}
}
