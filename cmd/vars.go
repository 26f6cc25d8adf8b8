package cmd

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jaypierce/moos-ivp-agent/config"
)

var (
	flags      *config.Config = config.DefaultConfig()
	configPath string

	addr          string
	transport     string
	wsPath        string
	ioTimeout     int
	savePath      string
	debug         bool
	resolution    float64
	tracked       []string
	learner       string
	alpha         float64
	gamma         float64
	seed          uint64
	episodes      int
	epsilon       float64
	saveEvery     int
	viability     float64
	traceFrom     int
	writeWorkbook bool
)

func AddFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "JSON config file, flags given explicitly take precedence")
	cmd.PersistentFlags().StringVar(&addr, "addr", flags.Addr, "Address the bridge listens on (env "+config.EnvAddr+")")
	cmd.PersistentFlags().StringVar(&transport, "transport", flags.Transport, "Bridge transport, tcp or ws")
	cmd.PersistentFlags().StringVar(&wsPath, "ws-path", flags.WebSocketPath, "Upgrade path of the ws transport")
	cmd.PersistentFlags().IntVar(&ioTimeout, "io-timeout", int(flags.IOTimeout.Seconds()), "Seconds to wait on the simulator, 0 waits forever")
	cmd.PersistentFlags().StringVar(&savePath, "save-path", flags.SavePath, "Path to save results")
	cmd.PersistentFlags().BoolVar(&debug, "debug", flags.Debug, "Log at debug level")
	cmd.PersistentFlags().Float64Var(&resolution, "resolution", flags.Resolution, "Grid spacing of the field")
	cmd.PersistentFlags().StringSliceVar(&tracked, "track", flags.Tracked, "Vehicles whose position is part of the state")
	cmd.PersistentFlags().StringVar(&learner, "learner", flags.Learner, "Learner, one of qlearn, softmax, random")
	cmd.PersistentFlags().Float64Var(&alpha, "alpha", flags.Alpha, "Learning rate")
	cmd.PersistentFlags().Float64Var(&gamma, "gamma", flags.Gamma, "Discount factor")
	cmd.PersistentFlags().Uint64Var(&seed, "seed", flags.Seed, "Learner seed, 0 seeds from the clock")
	cmd.PersistentFlags().IntVar(&episodes, "episodes", flags.Episodes, "Number of episodes, 0 runs until interrupted")
	cmd.PersistentFlags().Float64Var(&epsilon, "epsilon", flags.EpsilonStart, "Initial exploration rate")
	cmd.PersistentFlags().IntVar(&saveEvery, "save-every", flags.SaveEvery, "Record the learner every n episodes")
	cmd.PersistentFlags().Float64Var(&viability, "viability", flags.ViabilityThreshold, "Shortest episode duration in seconds that counts")
	cmd.PersistentFlags().IntVar(&traceFrom, "trace-from", flags.TraceThreshold, "First episode whose decisions are written to traces/, negative disables")
	cmd.PersistentFlags().BoolVar(&writeWorkbook, "workbook", flags.Workbook, "Write episodes.xlsx")
}

// UpdateFlags builds the run configuration: defaults, then the --config file,
// then the environment, then the flags given on the command line.
func UpdateFlags(fs *pflag.FlagSet) error {
	base := config.DefaultConfig()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		base = loaded
	}
	if err := base.ApplyEnv(); err != nil {
		return err
	}
	flags = base

	fs.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "addr":
			flags.Addr = addr
		case "transport":
			flags.Transport = transport
		case "ws-path":
			flags.WebSocketPath = wsPath
		case "io-timeout":
			flags.IOTimeout = time.Duration(ioTimeout) * time.Second
		case "save-path":
			flags.SavePath = savePath
		case "debug":
			flags.Debug = debug
		case "resolution":
			flags.Resolution = resolution
		case "track":
			flags.Tracked = tracked
		case "learner":
			flags.Learner = learner
		case "alpha":
			flags.Alpha = alpha
		case "gamma":
			flags.Gamma = gamma
		case "seed":
			flags.Seed = seed
		case "episodes":
			flags.Episodes = episodes
		case "epsilon":
			flags.EpsilonStart = epsilon
		case "save-every":
			flags.SaveEvery = saveEvery
		case "viability":
			flags.ViabilityThreshold = viability
		case "trace-from":
			flags.TraceThreshold = traceFrom
		case "workbook":
			flags.Workbook = writeWorkbook
		}
	})
	return flags.Validate()
}
