package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/chitbox-dev/chitfund-portal/config"
	"github.com/chitbox-dev/chitfund-portal/storage"
	v1 "github.com/chitbox-dev/chitfund-portal/v1"
	"github.com/chitbox-dev/chitfund-portal/v1/models"
	"github.com/chitbox-dev/chitfund-portal/v1/services"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// adminPasswordEnv supplies the admin password when --password is omitted
const adminPasswordEnv = "PORTAL_ADMIN_PASSWORD"

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:          "portalctl",
		Short:        "Administrative tasks for the chit fund portal",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config.yaml (defaults to ./config.yaml)")

	root.AddCommand(
		newMigrateCmd(opts),
		newCreateAdminCmd(opts),
		newHashPasswordCmd(),
		newVerifyDocumentCmd(opts),
		newVerifyCertificateCmd(opts),
	)
	return root
}

// openDatabase loads the configuration and connects without auto-migrating
func (o *rootOptions) openDatabase() (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	cfg.Database.RunMigration = false
	db, err := v1.ConnectGormDB(cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return cfg, db, nil
}

func closeDatabase(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the portal tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, db, err := opts.openDatabase()
			if err != nil {
				return err
			}
			defer closeDatabase(db)

			if err := v1.Migrate(db); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migration complete")
			return nil
		},
	}
}

func newCreateAdminCmd(opts *rootOptions) *cobra.Command {
	var name, email, password string
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an active admin account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				password = os.Getenv(adminPasswordEnv)
			}
			if password == "" {
				return fmt.Errorf("a password is required: pass --password or set %s", adminPasswordEnv)
			}

			cfg, db, err := opts.openDatabase()
			if err != nil {
				return err
			}
			defer closeDatabase(db)

			// tokens are not issued here
			auth := services.NewAuthService(db, nil)
			user, err := auth.CreateAdmin(cmd.Context(), name, email, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created admin %s (%s) in %s database\n", user.UserID, user.Email, cfg.Database.Driver)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "login email")
	cmd.Flags().StringVar(&password, "password", "", "initial password (or set "+adminPasswordEnv+")")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password <password>",
		Short: "Print the bcrypt hash of a password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := services.HashPassword(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func newVerifyDocumentCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify-document <document-id>...",
		Short: "Recompute stored document hashes and compare them with the recorded hash",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := opts.openDatabase()
			if err != nil {
				return err
			}
			defer closeDatabase(db)

			blobs, err := storage.NewOsBlobStore(cfg.Storage.DocumentsDir)
			if err != nil {
				return err
			}
			catalog, err := config.LoadCatalog(cfg.Catalog.Path)
			if err != nil {
				return err
			}
			docs := services.NewDocumentService(db, catalog, blobs, cfg.Storage.MaxUploadBytes)
			return verifyDocuments(cmd.Context(), cmd, docs, args)
		},
	}
}

func verifyDocuments(ctx context.Context, cmd *cobra.Command, docs *services.DocumentService, ids []string) error {
	var failed []string
	for _, id := range ids {
		doc, actual, err := docs.VerifyDocument(ctx, id)
		switch {
		case errors.Is(err, models.ErrIntegrity):
			fmt.Fprintf(cmd.OutOrStdout(), "MISMATCH %s expected=%s actual=%s\n", id, doc.SHA256, actual)
			failed = append(failed, id)
		case err != nil:
			fmt.Fprintf(cmd.OutOrStdout(), "ERROR %s: %v\n", id, err)
			failed = append(failed, id)
		default:
			fmt.Fprintf(cmd.OutOrStdout(), "OK %s %s\n", id, actual)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d document(s) failed verification: %s", len(failed), strings.Join(failed, ", "))
	}
	return nil
}

func newVerifyCertificateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify-certificate <certificate-id>",
		Short: "Check a certificate body against its recorded hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := opts.openDatabase()
			if err != nil {
				return err
			}
			defer closeDatabase(db)

			result, err := services.NewCertificateService(db).VerifyCertificate(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !result.Valid {
				return fmt.Errorf("certificate %s (%s) does not match its recorded hash", result.Number, result.CertificateID)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "OK %s %s\n", result.Number, result.ActualHash)
			return nil
		},
	}
}
