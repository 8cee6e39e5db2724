// Command swapmeet runs the swap meet exchange service and its admin tasks.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/swapmeet/swapmeet/internal/config"
	"github.com/swapmeet/swapmeet/internal/db"
)

// cli holds state shared by the subcommands once PersistentPreRunE has run.
type cli struct {
	v        *viper.Viper
	cfgFile  string
	cfg      *config.Config
	closeLog func()
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{v: config.New()}

	root := &cobra.Command{
		Use:          "swapmeet",
		Short:        "Community donation and barter exchange",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotenv(); err != nil {
				return err
			}
			cfg, err := config.Load(c.v, c.cfgFile)
			if err != nil {
				return err
			}
			c.cfg = cfg

			closeLog, err := setupLogger(cfg.Log.Level, cfg.Log.File)
			if err != nil {
				return err
			}
			c.closeLog = closeLog
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.closeLog != nil {
				c.closeLog()
			}
		},
	}

	root.PersistentFlags().StringVarP(&c.cfgFile, "config", "c", "", "config file (yaml, toml or json)")
	if err := config.BindFlags(c.v, root.PersistentFlags()); err != nil {
		panic(err)
	}

	root.AddCommand(serveCmd(c), initCmd(c), userCmd(c), sweepCmd(c))
	return root
}

// openDB opens the configured database and brings its schema up to date.
func (c *cli) openDB() (*db.DB, error) {
	database, err := db.Open(c.cfg.DB.Driver, c.cfg.DB.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(database); err != nil {
		database.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	return database, nil
}
