package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/atikulmunna/loglens/internal/enricher"
	"github.com/atikulmunna/loglens/internal/geo"
)

var (
	cfgFile   string
	outputFmt string
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "loglens",
	Short: "loglens: access-log enrichment and conversion analytics",
	Long: `loglens reads web-server access logs, enriches every request with a
parsed time, a conversion flag and a resolved country, and answers aggregate
queries over the result. It can follow a live log file and serve the enriched
dataset over a small JSON API.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "config file (default: $HOME/.loglens.yaml)")
	flags.StringVarP(&outputFmt, "output", "o", "text", "output format: text, json")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.String("geo-db", geo.DefaultDatabasePath, "path to a GeoLite2 country database")
	flags.StringP("format", "f", "auto", "input format: auto, csv, whitespace")
	flags.String("encoding", "utf-8", "input encoding: utf-8, windows-1251, windows-1252, iso-8859-1")
	flags.StringSlice("markers", enricher.DefaultMarkers, "resource substrings that mark a conversion")

	cobra.CheckErr(viper.BindPFlag("log.level", flags.Lookup("log-level")))
	cobra.CheckErr(viper.BindPFlag("geo.database", flags.Lookup("geo-db")))
	cobra.CheckErr(viper.BindPFlag("input.format", flags.Lookup("format")))
	cobra.CheckErr(viper.BindPFlag("input.encoding", flags.Lookup("encoding")))
	cobra.CheckErr(viper.BindPFlag("enrich.conversion_markers", flags.Lookup("markers")))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigName(".loglens")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("loglens")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// A missing default config file is fine; a broken or explicit one is not.
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			cobra.CheckErr(fmt.Errorf("read config: %w", err))
		}
	}
}
