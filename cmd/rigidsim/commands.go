package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/rigidsim/internal/analysis"
	"github.com/san-kum/rigidsim/internal/automation"
	"github.com/san-kum/rigidsim/internal/config"
	"github.com/san-kum/rigidsim/internal/export"
	"github.com/san-kum/rigidsim/internal/graph"
	"github.com/san-kum/rigidsim/internal/logging"
	"github.com/san-kum/rigidsim/internal/metrics"
	"github.com/san-kum/rigidsim/internal/physics"
	"github.com/san-kum/rigidsim/internal/scene"
	"github.com/san-kum/rigidsim/internal/sceneio"
	"github.com/san-kum/rigidsim/internal/sim"
	"github.com/san-kum/rigidsim/internal/storage"
	"github.com/san-kum/rigidsim/internal/viz"
)

// engineConfig resolves the physics of a scene. A config file wins over
// the scene, which wins over the preset; flags override all three.
func engineConfig(cmd *cobra.Command, sc *sceneio.Scene) (*config.Config, error) {
	if preset != "" && config.GetPreset(preset) == nil {
		return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
	}
	cfg := automation.EngineConfig(sc, preset)
	if configFile != "" {
		c, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = c
	}
	if cmd.Flags().Changed("rtf") {
		cfg.RealTimeFactor = rtf
	}
	if integrator != "" {
		cfg.Integrator = integrator
	}
	return cfg, cfg.Validate()
}

// loadEngine builds an engine for the scene at path with every model
// added.
func loadEngine(cmd *cobra.Command, path string) (*physics.Engine, *sceneio.Scene, error) {
	sc, err := sceneio.Load(path, log)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := engineConfig(cmd, sc)
	if err != nil {
		return nil, nil, err
	}
	eng, err := physics.New(cfg, physics.WithLogger(log))
	if err != nil {
		return nil, nil, err
	}
	for _, m := range sc.Models {
		if err := eng.AddModel(cmd.Context(), m); err != nil {
			eng.Close()
			return nil, nil, err
		}
	}
	return eng, sc, nil
}

func runMetadata(eng *physics.Engine, sc *sceneio.Scene, path string) storage.RunMetadata {
	info := eng.Info()
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	meta := storage.RunMetadata{
		Name:       sc.Name,
		Scene:      abs,
		Backend:    info.Backend,
		Solver:     info.SolverType,
		Integrator: info.IntegratorType,
		Gravity:    info.Gravity,
	}
	if meta.Name == "" {
		meta.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	for _, m := range sc.Models {
		meta.Models = append(meta.Models, m.Name)
	}
	return meta
}

func openStore() (*storage.Store, error) {
	st := storage.New(dataDir)
	return st, st.Init()
}

func runScene(cmd *cobra.Command, args []string) error {
	eng, sc, err := loadEngine(cmd, args[0])
	if err != nil {
		return err
	}
	defer eng.Close()

	s := sim.New(eng)
	s.AddMetric(metrics.NewEnergy())
	s.AddMetric(metrics.NewEnergyDrift())
	s.AddMetric(metrics.NewStability(100))
	s.AddMetric(metrics.NewDisplacement())

	var rec *storage.Recorder
	if !noSave {
		st, err := openStore()
		if err != nil {
			return err
		}
		meta := runMetadata(eng, sc, args[0])
		meta.Dt, meta.Duration = dt, duration
		if rec, err = st.Create(meta); err != nil {
			return err
		}
		s.AddObserver(rec)
	}

	log.Infof("running %s for %.2fs on %s/%s", args[0], duration, eng.Info().Backend, eng.Info().IntegratorType)
	result, err := s.Run(cmd.Context(), sim.Config{Duration: duration, Dt: dt})
	if err != nil {
		if rec != nil {
			rec.Finish(nil)
		}
		return err
	}

	fmt.Printf("completed in %v\n", result.Wall.Round(time.Millisecond))
	if rec != nil {
		id, err := rec.Finish(result)
		if err != nil {
			return err
		}
		fmt.Printf("run id: %s\n", id)
	}
	printResult(result)
	return nil
}

func printResult(result *sim.Result) {
	fmt.Printf("steps: %d (%d failed)\n", result.StepsTaken, len(result.Errors))
	fmt.Printf("sim time: %.4fs -> %.4fs\n", result.Start, result.End)
	fmt.Println("\nmetrics:")
	for _, name := range sortedKeys(result.Metrics) {
		fmt.Printf("  %s: %.6g\n", name, result.Metrics[name])
	}
}

func runLive(cmd *cobra.Command, args []string) error {
	// The viewer owns the terminal, so log lines would tear the screen.
	log = logging.Nop()
	eng, sc, err := loadEngine(cmd, args[0])
	if err != nil {
		return err
	}
	defer eng.Close()

	opts := viz.Options{Title: sc.Name, GIFPath: gifPath}
	var rec *storage.Recorder
	steps := 0
	if record {
		st, err := openStore()
		if err != nil {
			return err
		}
		if rec, err = st.Create(runMetadata(eng, sc, args[0])); err != nil {
			return err
		}
		opts.Observers = append(opts.Observers, rec, sim.ObserverFunc(func(sim.Frame) { steps++ }))
	}

	if err := viz.Run(cmd.Context(), eng, opts); err != nil {
		return err
	}
	if rec != nil {
		id, err := rec.Finish(&sim.Result{End: eng.Time(), StepsTaken: steps})
		if err != nil {
			return err
		}
		fmt.Printf("run id: %s\n", id)
	}
	return nil
}

func runReplay(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	return viz.RunBrowser(st)
}

func runScenario(cmd *cobra.Command, args []string) error {
	s, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}
	sc, err := sceneio.Load(s.ScenePath(), logging.Nop())
	if err != nil {
		return err
	}

	report, err := automation.RunScenario(cmd.Context(), s, log)
	if err != nil {
		return err
	}
	for _, e := range report.EventErrors {
		fmt.Printf("event failed: %v\n", e)
	}

	if !noSave {
		st, err := openStore()
		if err != nil {
			return err
		}
		cfg := automation.EngineConfig(sc, s.Preset)
		meta := storage.RunMetadata{
			Name:       s.Name,
			Scene:      s.ScenePath(),
			Backend:    cfg.Backend,
			Integrator: cfg.Integrator,
			Dt:         s.Dt,
			Duration:   s.Duration,
			Gravity:    [3]float64(cfg.GravityVec()),
		}
		for _, m := range sc.Models {
			meta.Models = append(meta.Models, m.Name)
		}
		id, err := st.Save(meta, report.Result)
		if err != nil {
			return err
		}
		fmt.Printf("run id: %s\n", id)
	}
	printResult(report.Result)
	return nil
}

// parseValue reads a flag value as a number, a bool, or a string.
func parseValue(s string) any {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}

func runSweep(cmd *cobra.Command, args []string) error {
	values := make([]any, len(sweepVals))
	for i, v := range sweepVals {
		values[i] = parseValue(v)
	}
	results, err := automation.RunSweep(cmd.Context(), &automation.ParameterSweep{
		Scene:    args[0],
		Preset:   preset,
		Param:    sweepParam,
		Values:   values,
		Duration: duration,
		Dt:       dt,
	}, log)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\tINTEG\tSTEPS\tFAILED\tENERGY_DRIFT\tSTABILITY\tMAX_DISP\tWALL\n", strings.ToUpper(sweepParam))
	for _, r := range results {
		m := r.Result.Metrics
		fmt.Fprintf(w, "%v\t%s\t%d\t%d\t%.3e\t%.3f\t%.4f\t%v\n",
			r.Value, r.Integrator, r.Result.StepsTaken, len(r.Result.Errors),
			m["energy_drift"], m["stability"], m["max_displacement"], r.Result.Wall.Round(time.Millisecond))
	}
	return w.Flush()
}

func dumpGraph(cmd *cobra.Command, args []string) error {
	sc, err := sceneio.Load(args[0], log)
	if err != nil {
		return err
	}
	opts := []graph.Option{graph.WithLogger(log)}
	if loops {
		opts = append(opts, graph.WithLoopConstraints())
	}
	for _, m := range sc.Models {
		g, err := graph.Build(m, opts...)
		if err != nil {
			return fmt.Errorf("model %q: %w", m.Name, err)
		}
		fmt.Printf("model %s (static=%t)\n", m.Name, g.Static)
		w := tabwriter.NewWriter(os.Stdout, 2, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  LEVEL\tINBOARD\tOUTBOARD\tKIND\tJOINT\tNOTES")
		for _, mob := range g.Mobilizers {
			fmt.Fprintf(w, "  %d\t%s\t%s\t%s\t%s\t%s\n",
				mob.Level, linkName(mob.Inboard), linkName(mob.Outboard), mob.Kind, jointName(mob), mobilizerNotes(mob))
		}
		w.Flush()
		for _, lc := range g.Loops {
			fmt.Printf("  loop %s: %s %s -> %s\n", lc.Joint.Name, lc.Kind, linkName(lc.Parent), linkName(lc.Child))
		}
		for _, j := range g.LoopJoints {
			fmt.Printf("  loop joint %s welded\n", j.Name)
		}
		for _, j := range g.Rejected {
			fmt.Printf("  rejected joint %s\n", j.Name)
		}
		fmt.Printf("  %d mobilizers, %d slaves, %d added bases\n\n", len(g.Mobilizers), g.NumSlaves(), g.NumAddedBases())
	}
	return nil
}

func jointName(mob graph.Mobilizer) string {
	if mob.Joint == nil {
		return "-"
	}
	return mob.Joint.Name
}

func mobilizerNotes(mob graph.Mobilizer) string {
	var notes []string
	if mob.Reversed {
		notes = append(notes, "reversed")
	}
	if mob.Slave {
		notes = append(notes, fmt.Sprintf("slave %d", mob.SlaveIndex))
	}
	if mob.AddedBase {
		notes = append(notes, "added base")
	}
	if mob.Fragments > 1 {
		notes = append(notes, fmt.Sprintf("%d fragments", mob.Fragments))
	}
	return strings.Join(notes, ", ")
}

func printInfo(cmd *cobra.Command, args []string) error {
	eng, _, err := loadEngine(cmd, args[0])
	if err != nil {
		return err
	}
	defer eng.Close()

	info := eng.Info()
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(info); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MODEL\tSTATIC\tLINKS\tJOINTS\tMOBILIZERS\tLOOPS")
	for _, m := range eng.Models() {
		g, err := eng.Graph(cmd.Context(), m.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%t\t%d\t%d\t%d\t%d\n", m.Name, m.Static, len(m.Links), len(m.Joints), len(g.Mobilizers), len(g.Loops)+len(g.LoopJoints))
	}
	return w.Flush()
}

func linkName(l *scene.Link) string {
	if l == nil {
		return "world"
	}
	return l.Name
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTIME\tSIM_TIME\tSTEPS\tBACKEND\tINTEG\tENERGY_DRIFT")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2fs\t%d\t%s\t%s\t%.2e\n",
			run.ID,
			run.Name,
			run.Timestamp.Format(time.DateTime),
			run.End-run.Start,
			run.Steps,
			run.Backend,
			run.Integrator,
			run.EnergyDrift,
		)
	}
	return w.Flush()
}

var sampleFields = map[string]func(storage.Sample) float64{
	"x":  func(s storage.Sample) float64 { return s.Pose.Pos[0] },
	"y":  func(s storage.Sample) float64 { return s.Pose.Pos[1] },
	"z":  func(s storage.Sample) float64 { return s.Pose.Pos[2] },
	"vx": func(s storage.Sample) float64 { return s.Velocity.Linear[0] },
	"vy": func(s storage.Sample) float64 { return s.Velocity.Linear[1] },
	"vz": func(s storage.Sample) float64 { return s.Velocity.Linear[2] },
	"wx": func(s storage.Sample) float64 { return s.Velocity.Angular[0] },
	"wy": func(s storage.Sample) float64 { return s.Velocity.Angular[1] },
	"wz": func(s storage.Sample) float64 { return s.Velocity.Angular[2] },
}

func svgRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	samples, err := st.LoadTrajectory(meta.ID)
	if err != nil {
		return err
	}

	path := outFile
	if path == "" {
		path = meta.ID + ".svg"
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	opts := export.SVGOptions{Plane: svgPlane, Model: plotModel, Link: plotLink}
	if err := export.TrajectorySVG(f, samples, opts); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Printf("wrote %s (%s plane)\n", path, svgPlane)
	return nil
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	samples, err := st.LoadTrajectory(runID)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return fmt.Errorf("no data to plot")
	}

	model, link := plotModel, plotLink
	if model == "" {
		model = samples[0].Model
	}
	if link == "" {
		for _, s := range samples {
			if s.Model == model {
				link = s.Link
				break
			}
		}
	}
	series := storage.Series(samples, model, link)
	if len(series) == 0 {
		return fmt.Errorf("run %s has no samples for %s/%s", meta.ID, model, link)
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("link: %s/%s\n", model, link)
	fmt.Printf("samples: %d (t=%.3f..%.3f)\n\n", len(series), series[0].Time, series[len(series)-1].Time)

	for _, field := range plotFields {
		get, ok := sampleFields[field]
		if !ok {
			return fmt.Errorf("unknown field %q (available: x y z vx vy vz wx wy wz)", field)
		}
		data := make([]float64, len(series))
		for i, s := range series {
			data[i] = get(s)
		}
		graph := asciigraph.Plot(data,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(field+" vs time"),
		)
		fmt.Println(graph)
		if len(series) > 1 {
			step := (series[len(series)-1].Time - series[0].Time) / float64(len(series)-1)
			if hz, err := analysis.DominantFrequency(data, step); err == nil && hz > 0 {
				fmt.Printf("dominant frequency: %.3f Hz\n", hz)
			}
		}
		fmt.Println()
	}
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(meta)
}

func exportJSON(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	if outFile != "" {
		return st.ExportJSONFile(outFile, args[0])
	}
	return st.ExportJSON(os.Stdout, args[0])
}

func listPresets(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PRESET\tBACKEND\tINTEGRATOR\tMAX_STEP\tRTF")
	for _, name := range config.ListPresets() {
		cfg := config.GetPreset(name)
		fmt.Fprintf(w, "%s\t%s\t%s\t%g\t%g\n", name, cfg.Backend, cfg.Integrator, cfg.MaxStepSize, cfg.RealTimeFactor)
	}
	return w.Flush()
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
