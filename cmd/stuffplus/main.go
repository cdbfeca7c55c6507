package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "stuffplus",
		Short:         "Score pitch quality (Stuff+) from TrackMan data",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")

	root.AddCommand(lookupCmd())
	root.AddCommand(scoreCmd())
	root.AddCommand(batchCmd())
	root.AddCommand(importCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(runCmd())

	return root
}

func lookupCmd() *cobra.Command {
	var (
		team       string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "lookup NAME",
		Short: `Show stored Stuff+ for a pitcher ("Last, First")`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLookup(args[0], team, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&team, "team", "", "only rows for this team")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func scoreCmd() *cobra.Command {
	var in customFlags

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score one hand-entered pitch",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScore(in)
		},
	}

	f := cmd.Flags()
	f.StringVar(&in.pitchType, "type", "", "pitch type (Fastball, Sinker, Cutter, Slider, Curveball, ChangeUp, Splitter)")
	f.StringVar(&in.throws, "throws", "", "pitcher handedness (Left or Right)")
	f.StringVar(&in.velocity, "velo", "", "release speed (mph)")
	f.StringVar(&in.relHeight, "rel-height", "", "release height (ft)")
	f.StringVar(&in.relSide, "rel-side", "", "release side (ft)")
	f.StringVar(&in.extension, "extension", "", "extension (ft)")
	f.StringVar(&in.ivb, "ivb", "", "induced vertical break (in)")
	f.StringVar(&in.hb, "hb", "", "horizontal break (in)")
	f.StringVar(&in.vaa, "vaa", "", "vertical approach angle (deg)")
	f.StringVar(&in.haa, "haa", "", "horizontal approach angle (deg)")
	f.StringVar(&in.primaryType, "primary-type", "", "primary fastball type (Fastball, Sinker or Cutter)")
	f.StringVar(&in.primaryVelocity, "primary-velo", "", "primary fastball speed (mph)")
	f.StringVar(&in.primaryIVB, "primary-ivb", "", "primary fastball induced vertical break (in)")
	f.StringVar(&in.primaryHB, "primary-hb", "", "primary fastball horizontal break (in)")
	f.BoolVar(&in.jsonOutput, "json", false, "output as JSON")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("throws")
	return cmd
}

func batchCmd() *cobra.Command {
	var opts batchOpts

	cmd := &cobra.Command{
		Use:   "batch FILE",
		Short: "Score a TrackMan CSV and report Stuff+ per pitcher and pitch type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(args[0], opts)
		},
	}

	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "output as JSON")
	cmd.Flags().BoolVar(&opts.csvOutput, "csv", false, "output as CSV")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "write output to a file instead of stdout")
	cmd.Flags().BoolVar(&opts.save, "save", false, "store the results for lookup")
	return cmd
}

func importCmd() *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:   "import FILE...",
		Short: "Load precomputed Stuff+ tables into the store",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(args, category)
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "category of files without a Category column (fb, bb, os)")
	return cmd
}

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func runCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start daemon with inbox scheduler and HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}
