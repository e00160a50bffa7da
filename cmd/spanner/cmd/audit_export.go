package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"

	"github.com/heyvard/helse-spanner/audit"
	"github.com/heyvard/helse-spanner/internal/util"
)

var auditExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the audit chain as signed JSON",
	Long: `Reads the audit chain from storage, signs it with the audit HMAC key
derived from SPANNER_MASTER_KEY and writes the export to stdout.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := auditKeyFromEnv()
		if err != nil {
			return err
		}
		defer util.WipeBytes(key)

		repo, closeRepo, err := openRepository(cmd.Context())
		if err != nil {
			return err
		}
		defer closeRepo()

		logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
		store, err := audit.NewStore(repo, logger)
		if err != nil {
			return fmt.Errorf("opening audit store: %w", err)
		}

		export, err := store.ExportSigned(key)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(export)
	},
}

// auditKeyFromEnv derives the audit HMAC key from the master key in the
// environment, the same derivation the server uses.
func auditKeyFromEnv() ([]byte, error) {
	masterHex := os.Getenv("SPANNER_MASTER_KEY")
	if masterHex == "" {
		return nil, fmt.Errorf("SPANNER_MASTER_KEY is not set")
	}
	masterKey, err := util.HexDecode(masterHex)
	if err != nil {
		return nil, fmt.Errorf("decoding SPANNER_MASTER_KEY: %w", err)
	}

	master := memguard.NewBufferFromBytes(masterKey)
	defer master.Destroy()

	return util.HKDF(master.Bytes(), nil, []byte(auditKeyInfo))
}

func init() {
	auditCmd.AddCommand(auditExportCmd)
	auditExportCmd.Flags().StringVar(&dataDir, "data-dir", "./data", "Directory for persistent data")
	auditExportCmd.Flags().StringVar(&postgresDSN, "postgres-dsn", "", "Postgres DSN (bbolt in data-dir is used when empty)")
}
