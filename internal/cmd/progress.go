package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/atikulmunna/loglens/internal/tailer"
)

var progressCmd = &cobra.Command{
	Use:   "progress [state-file]",
	Short: "Show the ingestion progress written by watch or serve",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := viper.GetString("watch.state_file")
		if len(args) == 1 {
			path = args[0]
		}
		if path == "" {
			return fmt.Errorf("no state file given and watch.state_file is not set")
		}

		state, updated, err := tailer.ReadProgress(path)
		if err != nil {
			return fmt.Errorf("read progress: %w", err)
		}

		if outputFmt == "json" {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				Path      string    `json:"path"`
				Offset    int64     `json:"offset"`
				UpdatedAt time.Time `json:"updated_at"`
			}{state.Path, state.Offset, updated})
		}
		fmt.Printf("%s\n  offset   %s (%s)\n  updated  %s\n",
			state.Path,
			humanize.Comma(state.Offset), humanize.Bytes(uint64(state.Offset)),
			humanize.Time(updated))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(progressCmd)
}
