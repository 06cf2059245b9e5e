package cmd

import (
	"fmt"
	"os"

	internalApp "github.com/haierkeys/contact-identity-service/internal/app"
	"github.com/haierkeys/contact-identity-service/internal/upgrade"

	"github.com/spf13/cobra"
)

var upgradeCmd = &cobra.Command{
	Use:   "upgrade",
	Short: "Upgrade database schema to the latest version",
	Long: `Upgrade database schema to the latest version.

This command will check the current database version and apply all pending migrations.
It is safe to run this command multiple times - already applied migrations will be skipped.`,
	Run: func(cmd *cobra.Command, args []string) {
		configPath, _ := cmd.Flags().GetString("config")

		appConfig, lg, err := loadConfigAndLogger(configPath)
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		db, err := openDatabase(appConfig)
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		fmt.Println("Starting database upgrade...")

		if err := upgrade.Execute(db, lg, internalApp.Version); err != nil {
			fmt.Printf("Upgrade failed: %v\n", err)
			os.Exit(1)
		}

		fmt.Println("Database upgrade completed successfully!")
	},
}

func init() {
	rootCmd.AddCommand(upgradeCmd)
	upgradeCmd.Flags().StringP("config", "c", "", "config file path")
}
