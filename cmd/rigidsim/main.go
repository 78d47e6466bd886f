package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	_ "github.com/san-kum/rigidsim/internal/backend/planar"
	_ "github.com/san-kum/rigidsim/internal/backend/tree"
	"github.com/san-kum/rigidsim/internal/logging"
)

var (
	dataDir    string
	debug      bool
	preset     string
	configFile string
	duration   float64
	dt         float64
	rtf        float64
	integrator string
	noSave     bool
	record     bool
	gifPath    string
	sweepParam string
	sweepVals  []string
	plotModel  string
	plotLink   string
	plotFields []string
	outFile    string
	svgPlane   string
	loops      bool

	log logging.Logger = logging.Nop()
)

// main registers the rigidsim commands and executes the root command. It
// exits with status 1 if the command fails.
func main() {
	rootCmd := &cobra.Command{
		Use:           "rigidsim",
		Short:         "rigid body physics simulation lab",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log = logging.New("rigidsim", debug)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".rigidsim", "data directory")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "debug logging")

	runCmd := &cobra.Command{
		Use:   "run [scene]",
		Short: "run a scene headless and store its trajectory",
		Args:  cobra.ExactArgs(1),
		RunE:  runScene,
	}
	engineFlags(runCmd)
	runCmd.Flags().Float64Var(&duration, "time", 10.0, "duration in seconds")
	runCmd.Flags().Float64Var(&dt, "dt", 0, "tick interval (0 uses the update rate)")
	runCmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the run")

	liveCmd := &cobra.Command{
		Use:   "live [scene]",
		Short: "step a scene with live terminal visualization",
		Args:  cobra.ExactArgs(1),
		RunE:  runLive,
	}
	engineFlags(liveCmd)
	liveCmd.Flags().BoolVar(&record, "record", false, "store the trajectory")
	liveCmd.Flags().StringVar(&gifPath, "gif", "simulation.gif", "where the g key saves a recording")

	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "browse and replay stored runs",
		Args:  cobra.NoArgs,
		RunE:  runReplay,
	}

	scenarioCmd := &cobra.Command{
		Use:   "scenario [file]",
		Short: "run a scripted scenario and store its trajectory",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenario,
	}
	scenarioCmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the run")

	sweepCmd := &cobra.Command{
		Use:   "sweep [scene]",
		Short: "run a scene once per value of an engine parameter",
		Args:  cobra.ExactArgs(1),
		RunE:  runSweep,
	}
	sweepCmd.Flags().StringVar(&preset, "preset", "", "physics preset when the scene has none")
	sweepCmd.Flags().StringVar(&sweepParam, "param", "integrator_type", "parameter key")
	sweepCmd.Flags().StringSliceVar(&sweepVals, "values", []string{"semi_explicit_euler", "rk4"}, "parameter values")
	sweepCmd.Flags().Float64Var(&duration, "time", 5.0, "duration in seconds")
	sweepCmd.Flags().Float64Var(&dt, "dt", 0, "tick interval (0 uses the update rate)")

	graphCmd := &cobra.Command{
		Use:   "graph [scene]",
		Short: "print the multibody graph of every model",
		Args:  cobra.ExactArgs(1),
		RunE:  dumpGraph,
	}
	graphCmd.Flags().BoolVar(&loops, "loop-constraints", false, "close loops with constraints instead of welds")

	infoCmd := &cobra.Command{
		Use:   "info [scene]",
		Short: "load a scene and print the engine state",
		Args:  cobra.ExactArgs(1),
		RunE:  printInfo,
	}
	engineFlags(infoCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		Args:  cobra.NoArgs,
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot a link trajectory of a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringVar(&plotModel, "model", "", "model name (default: first stored)")
	plotCmd.Flags().StringVar(&plotLink, "link", "", "link name (default: first stored)")
	plotCmd.Flags().StringSliceVar(&plotFields, "fields", []string{"x", "z"}, "columns to plot")

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export run metadata",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export run data to JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}
	exportJSONCmd.Flags().StringVarP(&outFile, "out", "o", "", "output file (default: stdout)")

	svgCmd := &cobra.Command{
		Use:   "svg [run_id]",
		Short: "draw the link paths of a stored run as SVG",
		Args:  cobra.ExactArgs(1),
		RunE:  svgRun,
	}
	svgCmd.Flags().StringVar(&svgPlane, "plane", "xz", "axes to plot")
	svgCmd.Flags().StringVar(&plotModel, "model", "", "only this model")
	svgCmd.Flags().StringVar(&plotLink, "link", "", "only this link")
	svgCmd.Flags().StringVarP(&outFile, "out", "o", "", "output file (default: <run_id>.svg)")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list physics presets",
		Args:  cobra.NoArgs,
		RunE:  listPresets,
	}

	rootCmd.AddCommand(runCmd, liveCmd, replayCmd, scenarioCmd, sweepCmd, graphCmd, infoCmd, listCmd, plotCmd, exportCmd, exportJSONCmd, svgCmd, presetsCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func engineFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&preset, "preset", "", "physics preset when the scene has none")
	cmd.Flags().StringVar(&configFile, "config", "", "physics config file (yaml), overrides the scene")
	cmd.Flags().Float64Var(&rtf, "rtf", 1, "real time factor (0 runs unthrottled)")
	cmd.Flags().StringVar(&integrator, "integrator", "", "integrator type")
}
