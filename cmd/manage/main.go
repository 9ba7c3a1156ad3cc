package main

import (
	"context"
	"fmt"
	"os"

	"github.com/localnerve/reestrsi/data"
	"github.com/localnerve/reestrsi/internal/auth"
	"github.com/localnerve/reestrsi/internal/config"
	"github.com/localnerve/reestrsi/internal/database"
	"github.com/localnerve/reestrsi/internal/logging"
	"github.com/localnerve/reestrsi/internal/models"
	"github.com/localnerve/reestrsi/internal/repository"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// env is the connected application state shared by the commands
type env struct {
	cfg  *config.Config
	log  *zap.Logger
	db   *gorm.DB
	repo *repository.Repository
}

func open() (*env, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, nil, err
	}
	db, err := database.Connect(cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("database not connected: %w", err)
	}
	registry, err := models.NewRegistry()
	if err != nil {
		_ = database.Close(db)
		return nil, nil, err
	}
	cleanup := func() {
		_ = database.Close(db)
		_ = log.Sync()
	}
	return &env{cfg: cfg, log: log, db: db, repo: repository.New(db, registry, log)}, cleanup, nil
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, cleanup, err := open()
			if err != nil {
				return err
			}
			defer cleanup()
			if err := database.AutoMigrate(e.db); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			e.log.Info("tables migrated", zap.String("db", e.cfg.DBType))
			return nil
		},
	}
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Restore the default reference table rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, cleanup, err := open()
			if err != nil {
				return err
			}
			defer cleanup()
			if err := database.AutoMigrate(e.db); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			added, err := database.Seed(cmd.Context(), e.repo, data.Seed)
			if err != nil {
				return err
			}
			for table, n := range added {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d\n", table, n)
			}
			return nil
		},
	}
}

func newCreateUserCmd() *cobra.Command {
	var username, password, email, lastName, firstName string
	createUserCmd := &cobra.Command{
		Use:   "createuser",
		Short: "Create an active user account",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, cleanup, err := open()
			if err != nil {
				return err
			}
			defer cleanup()

			user := &models.UserProfile{Username: username}
			if email != "" {
				user.Email = &email
			}
			if lastName != "" {
				user.LastName = &lastName
			}
			if firstName != "" {
				user.FirstName = &firstName
			}
			if err := auth.NewService(e.repo, e.log).CreateUser(cmd.Context(), user, password); err != nil {
				return fmt.Errorf("user %q not created: %w", username, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user %q created\n", username)
			return nil
		},
	}
	createUserCmd.Flags().StringVarP(&username, "username", "u", "", "login name")
	createUserCmd.Flags().StringVarP(&password, "password", "p", "", "account password")
	createUserCmd.Flags().StringVar(&email, "email", "", "e-mail address")
	createUserCmd.Flags().StringVar(&lastName, "last-name", "", "")
	createUserCmd.Flags().StringVar(&firstName, "first-name", "", "")
	_ = createUserCmd.MarkFlagRequired("username")
	_ = createUserCmd.MarkFlagRequired("password")
	return createUserCmd
}

func main() {
	rootCmd := &cobra.Command{
		Use:           "manage",
		Short:         "Registry maintenance commands",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(newMigrateCmd(), newSeedCmd(), newCreateUserCmd())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
