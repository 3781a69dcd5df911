package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/ternarybob/arbor"

	"github.com/Vogeltak/reading-addiction/internal/app"
	"github.com/Vogeltak/reading-addiction/internal/common"
)

// annotationDataOutput marks commands whose stdout is data, so logs must stay off it
const annotationDataOutput = "data-output"

// cli is the state shared by all commands of one invocation
type cli struct {
	dbPath      string
	configFiles []string

	config *common.Config
	logger arbor.ILogger
	app    *app.App
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "addiction",
		Short: "Archive, crawl and embed a Pocket reading list",
		Long: `Reading Addiction imports a Pocket export, crawls every saved page into
markdown, embeds the text and exports the results for analysis.

Each stage is idempotent and can be re-run; interrupted runs resume where they stopped.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" || cmd.Name() == "version" {
				return nil
			}
			return c.open(cmd)
		},
	}

	root.PersistentFlags().StringVar(&c.dbPath, "db", "", "Database directory (default addiction.db)")
	root.PersistentFlags().StringArrayVarP(&c.configFiles, "config", "c", nil, "Configuration file, repeatable; later files override earlier ones")

	root.AddCommand(
		newImportCmd(c),
		newCrawlCmd(c),
		newEmbedCmd(c),
		newHistogramCmd(c),
		newClusterCmd(c),
		newStatusCmd(c),
		newServeCmd(c),
		newVersionCmd(),
	)
	return root
}

// open loads configuration, sets up logging and opens the database.
// Order: defaults -> config files -> environment -> flags.
func (c *cli) open(cmd *cobra.Command) error {
	config, err := common.LoadFromFiles(c.configFiles...)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	common.ApplyFlagOverrides(config, c.dbPath, 0)
	if err := config.Validate(); err != nil {
		return err
	}
	c.config = config

	suppressConsole := false
	if cmd.Annotations[annotationDataOutput] != "" {
		if output, _ := cmd.Flags().GetString("output"); output == "" {
			suppressConsole = true
		}
	}
	c.logger = common.InitLogger(&config.Logging, suppressConsole)
	common.InstallCrashHandler(config.Logging.Dir)

	c.logger.Debug().
		Strs("config_files", c.configFiles).
		Str("db", config.Storage.Badger.Path).
		Str("log_level", config.Logging.Level).
		Str("command", cmd.Name()).
		Msg("Configuration loaded")

	application, err := app.New(config, c.logger)
	if err != nil {
		return err
	}
	c.app = application
	return nil
}

func (c *cli) close() error {
	if c.app == nil {
		return nil
	}
	err := c.app.Close()
	c.app = nil
	return err
}
