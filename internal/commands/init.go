package commands

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/banksync/banksync/internal/config"
	"github.com/banksync/banksync/internal/store"
)

const sampleFeeds = `# Remote feeds synced with --extract-from teller.
# ${VAR} references are expanded from the environment or .env.
#
# - name: CHASE_CHECKING
#   account_id: acc_xxxxxxxx
#   access_token: ${TELLER_TOKEN_CHASE}
[]
`

const sampleMerchants = `# Merchant rules merged over the built-in list by label.
# A rule with a built-in label replaces it in place; new labels are checked last.
#
# - label: coffee
#   category: RESTAURANTS
#   pattern: 'blue bottle|philz'
[]
`

func newInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new banksync project",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			absDir, err := filepath.Abs(dir)
			if err != nil {
				return fmt.Errorf("resolving path: %w", err)
			}

			return runInit(cmd.Context(), absDir)
		},
	}
}

func runInit(ctx context.Context, dir string) error {
	cfgPath := filepath.Join(dir, config.FileName)
	if _, err := os.Stat(cfgPath); err == nil {
		return fmt.Errorf("%s already exists", cfgPath)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("checking config: %w", err)
	}

	cfg := config.Default()
	for _, d := range []string{cfg.Import.Directory, cfg.Export.Directory} {
		if err := os.MkdirAll(filepath.Join(dir, d), 0o755); err != nil {
			return fmt.Errorf("creating directory %s: %w", d, err)
		}
	}

	if err := config.Save(cfgPath, cfg); err != nil {
		return err
	}

	files := map[string]string{
		cfg.Teller.FeedsFile:        sampleFeeds,
		cfg.Merchants.OverridesPath: sampleMerchants,
		".gitignore":                "*.db\n*.db-*\n.env\nexports/\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", name, err)
		}
	}

	// Opening the store applies migrations.
	db, err := store.Open(ctx, filepath.Join(dir, cfg.Database.Path))
	if err != nil {
		return err
	}
	if err := db.Close(); err != nil {
		return fmt.Errorf("closing store: %w", err)
	}

	fmt.Printf("Initialized banksync project at %s\n", dir)
	return nil
}
