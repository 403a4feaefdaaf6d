package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/san-kum/mdmesh/internal/config"
	"github.com/san-kum/mdmesh/internal/engine"
	"github.com/san-kum/mdmesh/internal/metrics"
	"github.com/san-kum/mdmesh/internal/runner"
	"github.com/san-kum/mdmesh/internal/scenario"
	"github.com/san-kum/mdmesh/internal/storage"
)

var (
	dataDir    string
	logLevel   string
	configFile string
	system     string
	preset     string
	ranks      int
	dt         float64
	seed       int64
	count      int
	steps      int
	samples    int
	rank       int
	peers      []string
	noSave     bool
	field      string
	output     string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "mdmesh",
		Short:         "distributed molecular dynamics on a rank mesh",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".mdmesh", "data directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", config.DefaultLogLevel, "log level (debug, info, warn, error)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run a configured simulation",
		Args:  cobra.NoArgs,
		RunE:  runSimulation,
	}
	addSystemFlags(runCmd)
	runCmd.Flags().IntVar(&steps, "steps", config.DefaultSteps, "integration steps per sample")
	runCmd.Flags().IntVar(&samples, "samples", config.DefaultSamples, "number of samples")
	runCmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the run")

	scenarioCmd := &cobra.Command{
		Use:   "scenario [file]",
		Short: "run a yaml script of coordinator commands",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenario,
	}
	addSystemFlags(scenarioCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot run observables",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringVar(&field, "field", "", "plot a single observable (kinetic, lj, coulomb, total, pressure, momentum)")

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export run metadata and samples as json",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}
	exportCmd.Flags().StringVarP(&output, "output", "o", "", "write to this file instead of stdout")

	presetsCmd := &cobra.Command{
		Use:   "presets [system]",
		Short: "list available presets",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			systems := config.Systems()
			if len(args) == 1 {
				systems = args[:1]
			}
			for _, sys := range systems {
				presets := config.ListPresets(sys)
				if len(presets) == 0 {
					fmt.Printf("no presets for system: %s\n", sys)
					continue
				}
				fmt.Printf("presets for %s:\n", sys)
				for _, p := range presets {
					fmt.Printf("  %s\n", p)
				}
			}
			return nil
		},
	}

	rootCmd.AddCommand(runCmd, scenarioCmd, listCmd, plotCmd, exportCmd, presetsCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func addSystemFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().StringVar(&system, "system", "lj", "preset family")
	cmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	cmd.Flags().IntVar(&ranks, "ranks", config.DefaultRanks, "number of ranks")
	cmd.Flags().Float64Var(&dt, "dt", config.DefaultDt, "time step")
	cmd.Flags().Int64Var(&seed, "seed", 1, "random seed")
	cmd.Flags().IntVar(&count, "count", config.DefaultCount, "number of particles")
	cmd.Flags().IntVar(&rank, "rank", -1, "join a tcp mesh as this rank")
	cmd.Flags().StringSliceVar(&peers, "peers", nil, "tcp listen address of every rank, in rank order")
}

func newLogger(cmd *cobra.Command, cfg *config.Config) (*logrus.Logger, error) {
	level := logLevel
	if !cmd.Flags().Changed("log-level") && cfg != nil && cfg.LogLevel != "" {
		level = cfg.LogLevel
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log.SetLevel(lvl)
	return log, nil
}

// loadConfig resolves the configuration: defaults, then preset, then config
// file, then flags that were set explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()

	if preset != "" {
		cfg = config.GetPreset(system, preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets(system))
		}
	}

	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("ranks") {
		cfg.Ranks = ranks
		cfg.Grid = [3]int{}
	}
	if flags.Changed("dt") {
		cfg.Dt = dt
	}
	if flags.Changed("seed") {
		cfg.Seed = seed
	}
	if flags.Changed("count") {
		cfg.Particles.Count = count
	}
	if flags.Lookup("steps") != nil && flags.Changed("steps") {
		cfg.Schedule.StepsPerSample = steps
	}
	if flags.Lookup("samples") != nil && flags.Changed("samples") {
		cfg.Schedule.Samples = samples
	}
	if flags.Changed("peers") {
		cfg.Transport.Kind = "tcp"
		cfg.Transport.Peers = peers
		cfg.Ranks = len(peers)
	}
	if rank >= 0 && cfg.Transport.Kind != "tcp" {
		return nil, fmt.Errorf("--rank needs a tcp transport (--peers or transport.kind: tcp)")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// serve runs drive on the configured transport. It returns whether this
// process ran the coordinator.
func serve(ctx context.Context, cfg *config.Config, log logrus.FieldLogger, drive runner.Driver) (bool, error) {
	if cfg.Transport.Kind == "tcp" {
		if rank < 0 || rank >= cfg.Ranks {
			return false, fmt.Errorf("tcp transport needs --rank in [0,%d)", cfg.Ranks)
		}
		return rank == 0, runner.ServeTCP(ctx, cfg, rank, log, drive)
	}
	return true, runner.ServeLocal(ctx, cfg, log, drive)
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, err := newLogger(cmd, cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	name := system
	if preset != "" {
		name = system + "-" + preset
	}
	log.WithFields(logrus.Fields{
		"system":    name,
		"ranks":     cfg.Ranks,
		"particles": cfg.Particles.Count,
		"transport": cfg.Transport.Kind,
	}).Info("starting run")

	var res *runner.Result
	start := time.Now()
	coordinator, err := serve(ctx, cfg, log, func(ctx context.Context, sys *engine.System) error {
		r, err := runner.Drive(ctx, sys, cfg)
		res = r
		return err
	})
	if err != nil {
		return err
	}
	if !coordinator {
		return nil
	}
	elapsed := time.Since(start)

	warnings := make([]string, 0, len(res.RuntimeErrors))
	for _, e := range res.RuntimeErrors {
		warnings = append(warnings, e.String())
	}

	runID := "-"
	if !noSave {
		st := storage.New(dataDir)
		if err := st.Init(); err != nil {
			return err
		}
		runID, err = st.Save(storage.RunMetadata{
			System:         name,
			Ranks:          cfg.Ranks,
			Particles:      cfg.Particles.Count,
			Seed:           cfg.Seed,
			Dt:             cfg.Dt,
			Steps:          res.Steps,
			Electrostatics: cfg.Features.Electrostatics,
			Metrics:        res.Metrics,
			RuntimeErrors:  warnings,
		}, res.Samples)
		if err != nil {
			return fmt.Errorf("saving run: %w", err)
		}
	}

	fmt.Println(summary("run "+name, []row{
		{"run id", runID},
		{"ranks", fmt.Sprint(cfg.Ranks)},
		{"particles/rank", fmt.Sprint(res.Counts)},
		{"steps", fmt.Sprint(res.Steps)},
		{"samples", fmt.Sprint(len(res.Samples))},
		{"elapsed", elapsed.Round(time.Millisecond).String()},
	}, res.Metrics, warnings))
	return nil
}

func runScenario(cmd *cobra.Command, args []string) error {
	sc, err := scenario.LoadScenario(args[0])
	if err != nil {
		return fmt.Errorf("failed to load scenario: %w", err)
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, err := newLogger(cmd, cfg)
	if err != nil {
		return err
	}

	var res *scenario.Result
	coordinator, err := serve(context.Background(), cfg, log, func(ctx context.Context, sys *engine.System) error {
		r, err := scenario.Run(sys, sc, log)
		res = r
		return err
	})
	if err != nil {
		return err
	}
	if !coordinator {
		return nil
	}

	rows := make([]row, 0, len(res.Records))
	for _, rec := range res.Records {
		k := fmt.Sprintf("%d %s", rec.Step, rec.Op)
		if rec.Job != "" {
			k += " " + rec.Job
		}
		vals := make([]string, len(rec.Values))
		for i, v := range rec.Values {
			vals[i] = fmt.Sprintf("%.6g", v)
		}
		rows = append(rows, row{k, strings.Join(vals, " ")})
	}
	warnings := make([]string, 0, len(res.RuntimeErrors))
	for _, e := range res.RuntimeErrors {
		warnings = append(warnings, e.String())
	}
	heading := "scenario"
	if sc.Name != "" {
		heading += " " + sc.Name
	}
	fmt.Println(summary(heading, rows, nil, warnings))
	return nil
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
	fmt.Fprintln(w, "ID\tSYSTEM\tTIME\tRANKS\tPARTICLES\tSTEPS\tDT\tDRIFT")

	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%.4f\t%.2e\n",
			run.ID,
			run.System,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Ranks,
			run.Particles,
			run.Steps,
			run.Dt,
			run.Metrics["energy_drift"],
		)
	}

	return w.Flush()
}

var observables = []struct {
	name string
	get  metrics.Field
}{
	{"kinetic", metrics.Kinetic},
	{"lj", func(s metrics.Sample) float64 { return s.LJ }},
	{"coulomb", func(s metrics.Sample) float64 { return s.Coulomb }},
	{"total", metrics.Total},
	{"pressure", metrics.Pressure},
	{"momentum", metrics.Momentum},
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}

	smps, err := st.LoadSamples(runID)
	if err != nil {
		return err
	}

	if len(smps) == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("system: %s\n", meta.System)
	fmt.Printf("samples: %d\n\n", len(smps))

	plotted := 0
	for _, obs := range observables {
		if field != "" && obs.name != field {
			continue
		}
		if obs.name == "coulomb" && !meta.Electrostatics && field == "" {
			continue
		}
		data := make([]float64, len(smps))
		for i, s := range smps {
			data[i] = obs.get(s)
		}

		graph := asciigraph.Plot(data,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(obs.name+" vs sample"),
		)
		fmt.Println(graph)
		fmt.Println()
		plotted++
	}
	if plotted == 0 {
		return fmt.Errorf("unknown field: %s", field)
	}

	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	if output != "" {
		return st.ExportFile(output, args[0])
	}
	return st.Export(os.Stdout, args[0])
}
