package cmd

import (
	"fmt"
	"os"

	"bank-reconciliation-service/cmd/reconciler/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "reconciler",
	Short: "Bank transaction reconciliation tool",
	Long: `Reconciler matches imported bank transactions against accounting
vouchers (payment entries, journal entries, invoices and loans) and records
reconciliation allocations.

Examples:
  reconciler import statement.csv --bank-account "HDFC - Main"
  reconciler match BTX-0001 --document-types payment_entry,journal_entry
  reconciler reconcile BTX-0001 --voucher "Payment Entry:PAY-0001:150.00"
  reconciler auto-reconcile --bank-account "HDFC - Main"`,
	Version: getVersionString(),
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("db", "reconciler.db", "path to the ledger database")
	rootCmd.PersistentFlags().String("output-format", "text", "output format (text, json)")

	// Bind flags to viper
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("db", rootCmd.PersistentFlags().Lookup("db"))
	viper.BindPFlag("output-format", rootCmd.PersistentFlags().Lookup("output-format"))
}

// initConfig reads in config file and ENV variables.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)

		// If a config file is specified, read it in.
		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "Error reading config file: %s\n", err)
			os.Exit(1)
		}

		if viper.GetBool("verbose") {
			fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
		}
	}

	// Read environment variables that match
	viper.SetEnvPrefix("RECONCILER")
	viper.AutomaticEnv()
}

// buildApp wires the application components from the resolved settings.
func buildApp() (*config.App, error) {
	return config.Build(config.Options{
		DatabasePath: viper.GetString("db"),
		OutputFormat: viper.GetString("output-format"),
		Verbose:      viper.GetBool("verbose"),
		Output:       os.Stdout,
	})
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}
