package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/civicworks/civicledger/pkg/client"
)

// version is overridden at release time via -ldflags "-X main.version=...".
var version = "dev"

var (
	serverURL string
	authToken string
	cfgFile   string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ledgerctl",
	Short: "Operator CLI for the civicledger audit service",
	Long: `ledgerctl inspects and exercises a running auditd instance.

It reports the chain tip, runs full-chain integrity verification, fetches
individual entries, and can append operational smoke-test entries when given
a token.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.ledgerctl")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if serverURL == "" {
			serverURL = viper.GetString("server_url")
		}
		if serverURL == "" {
			serverURL = "http://localhost:8080"
		}
		if authToken == "" {
			authToken = viper.GetString("token")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.ledgerctl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "auditd base URL (default http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", "", "bearer token for authenticated operations")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(entryCmd)
	rootCmd.AddCommand(appendCmd)
	rootCmd.AddCommand(versionCmd)
}

func newClient() *client.Client {
	return client.New(serverURL, client.WithToken(authToken))
}

// ── status ───────────────────────────────────────────────────────────────────

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the chain tip and entry count",
	RunE: func(cmd *cobra.Command, args []string) error {
		tip, err := newClient().Tip(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "ENTRIES\t%d\n", tip.Sequence)
		fmt.Fprintf(w, "TIP HASH\t%s\n", tip.Hash)
		return w.Flush()
	},
}

// ── verify ───────────────────────────────────────────────────────────────────

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Run a full-chain integrity verification (requires admin token)",
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := newClient().Verify(cmd.Context())
		if err != nil {
			return err
		}

		if res.Intact {
			fmt.Printf("ledger intact (%d entries)\n", res.TotalEntries)
			return nil
		}

		fmt.Printf("ledger TAMPERED: %s at sequence %d\n", res.Reason, res.BrokenAtSequence)
		os.Exit(1)
		return nil
	},
}

// ── entry ────────────────────────────────────────────────────────────────────

var entryCmd = &cobra.Command{
	Use:   "entry <sequence>",
	Short: "Fetch a single ledger entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		seq, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || seq < 1 {
			return fmt.Errorf("sequence must be a positive integer, got %q", args[0])
		}

		entry, err := newClient().Entry(cmd.Context(), seq)
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(entry, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

// ── append ───────────────────────────────────────────────────────────────────

var (
	appendEntityType string
	appendEntityID   string
	appendDetails    string
)

var appendCmd = &cobra.Command{
	Use:   "append <action>",
	Short: "Append an audit entry (requires token)",
	Long: `Append records an audit entry with the given action verb.
The actor identity comes from the bearer token. Details are passed as a JSON
object via --details.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var details map[string]any
		if appendDetails != "" {
			if err := json.Unmarshal([]byte(appendDetails), &details); err != nil {
				return fmt.Errorf("parse --details: %w", err)
			}
		}

		entry, err := newClient().Append(cmd.Context(), client.AppendRequest{
			Action:     args[0],
			EntityType: appendEntityType,
			EntityID:   appendEntityID,
			Details:    details,
		})
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "SEQUENCE\t%d\n", entry.Sequence)
		fmt.Fprintf(w, "HASH\t%s\n", entry.Hash)
		fmt.Fprintf(w, "PREV HASH\t%s\n", entry.PrevHash)
		fmt.Fprintf(w, "TIMESTAMP\t%s\n", entry.Timestamp.Format(time.RFC3339))
		return w.Flush()
	},
}

func init() {
	appendCmd.Flags().StringVar(&appendEntityType, "entity-type", "", "business entity type (required)")
	appendCmd.Flags().StringVar(&appendEntityID, "entity-id", "", "business entity id (required)")
	appendCmd.Flags().StringVar(&appendDetails, "details", "", "JSON object with entry details")
	_ = appendCmd.MarkFlagRequired("entity-type")
	_ = appendCmd.MarkFlagRequired("entity-id")
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the ledgerctl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("ledgerctl", version)
	},
}
