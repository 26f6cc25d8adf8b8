package config

import (
	"errors"
	"fmt"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/jaypierce/moos-ivp-agent/bridge"
	"github.com/jaypierce/moos-ivp-agent/core"
	"github.com/jaypierce/moos-ivp-agent/field"
	"github.com/jaypierce/moos-ivp-agent/util"
)

var ErrConfig = errors.New("invalid configuration")

// Environment variables consulted by ApplyEnv, usually set through a .env
// file next to the mission.
const (
	EnvAddr      = "MOOS_AGENT_ADDR"
	EnvTransport = "MOOS_AGENT_TRANSPORT"
	EnvSavePath  = "MOOS_AGENT_SAVE_PATH"
	EnvSeed      = "MOOS_AGENT_SEED"
)

const (
	LearnerQLearn  = "qlearn"
	LearnerSoftmax = "softmax"
	LearnerRandom  = "random"
)

type Config struct {
	FieldFlags
	BridgeFlags
	LearnFlags
	RunFlags
	SavePath string
	// directory name under SavePath, assigned by NewRun
	RunID string
	Debug bool
}

type FieldFlags struct {
	Corners    []r2.Vec
	Resolution float64
	// vehicles from NODE_REPORTS that are part of the decision state
	Tracked []string
}

type BridgeFlags struct {
	Addr          string
	Transport     string
	WebSocketPath string
	IOTimeout     time.Duration
	MaxFrameSize  int
}

type LearnFlags struct {
	Learner string
	Alpha   float64
	Gamma   float64
	Initial float64
	Seed    uint64
}

type RunFlags struct {
	Episodes           int
	Actions            []core.Action
	RewardSuccess      float64
	RewardFailure      float64
	RewardStep         float64
	ViabilityThreshold float64
	EpsilonStart       float64
	EpsilonDecayStart  int
	EpsilonDecayEnd    int
	EpsilonDecayAmount float64
	SaveEvery          int
	ReferencePoint     r2.Vec
	FlagGrabRadius     float64
	// first episode whose decision trace is written, negative disables traces
	TraceThreshold int
	Workbook       bool
}

// DefaultConfig describes the aquaticus field with the agent chasing the
// blue flag.
func DefaultConfig() *Config {
	sync := core.DefaultSyncConfig()
	bc := bridge.DefaultConfig()
	return &Config{
		FieldFlags: FieldFlags{
			Corners: []r2.Vec{
				{X: -83, Y: -49},
				{X: 56, Y: 16},
				{X: 82, Y: -56},
				{X: -53, Y: -114},
			},
			Resolution: 10,
			Tracked:    []string{"evan"},
		},
		BridgeFlags: BridgeFlags{
			Addr:          bc.Addr,
			Transport:     bc.Transport,
			WebSocketPath: bc.Path,
			IOTimeout:     bc.IOTimeout,
			MaxFrameSize:  bc.MaxFrameSize,
		},
		LearnFlags: LearnFlags{
			Learner: LearnerQLearn,
			Alpha:   0.1,
			Gamma:   0.9,
			Initial: 0,
			Seed:    0,
		},
		RunFlags: RunFlags{
			Episodes:           sync.Episodes,
			Actions:            sync.Actions,
			RewardSuccess:      sync.RewardSuccess,
			RewardFailure:      sync.RewardFailure,
			RewardStep:         sync.RewardStep,
			ViabilityThreshold: sync.ViabilityThreshold,
			EpsilonStart:       sync.EpsilonStart,
			EpsilonDecayStart:  sync.EpsilonDecayStart,
			EpsilonDecayEnd:    sync.EpsilonDecayEnd,
			EpsilonDecayAmount: sync.EpsilonDecayAmount,
			SaveEvery:          sync.SaveEvery,
			ReferencePoint:     sync.ReferencePoint,
			FlagGrabRadius:     sync.FlagGrabRadius,
			TraceThreshold:     -1,
			Workbook:           true,
		},
		SavePath: "results",
		Debug:    false,
	}
}

// Load reads a JSON file written by Record. Keys missing from the file keep
// their default values.
func Load(p string) (*Config, error) {
	c := DefaultConfig()
	if err := util.LoadJson(p, c); err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrConfig, p, err)
	}
	return c, nil
}

// ApplyEnv overrides fields from the MOOS_AGENT_* environment variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv(EnvAddr); v != "" {
		c.Addr = v
	}
	if v := os.Getenv(EnvTransport); v != "" {
		c.Transport = v
	}
	if v := os.Getenv(EnvSavePath); v != "" {
		c.SavePath = v
	}
	if v := os.Getenv(EnvSeed); v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %w", ErrConfig, EnvSeed, v, err)
		}
		c.Seed = seed
	}
	return nil
}

func (c *Config) Validate() error {
	switch c.Learner {
	case LearnerQLearn, LearnerSoftmax, LearnerRandom:
	default:
		return fmt.Errorf("%w: unknown learner %q", ErrConfig, c.Learner)
	}
	switch c.Transport {
	case bridge.TransportTCP, bridge.TransportWebSocket:
	default:
		return fmt.Errorf("%w: unknown transport %q", ErrConfig, c.Transport)
	}
	if !(c.Alpha > 0 && c.Alpha <= 1) {
		return fmt.Errorf("%w: alpha %v outside (0, 1]", ErrConfig, c.Alpha)
	}
	if !(c.Gamma >= 0 && c.Gamma <= 1) {
		return fmt.Errorf("%w: gamma %v outside [0, 1]", ErrConfig, c.Gamma)
	}
	if c.SavePath == "" {
		return fmt.Errorf("%w: empty save path", ErrConfig)
	}
	if err := c.Sync(false).Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}
	return nil
}

// Field builds the discretizer for the configured corners.
func (c *Config) Field() (*field.Discretizer, error) {
	return field.New(c.Corners, c.Resolution)
}

// Encoder builds the field and the state encoder over it.
func (c *Config) Encoder() (*core.StateEncoder, error) {
	d, err := c.Field()
	if err != nil {
		return nil, err
	}
	return core.NewStateEncoder(d, c.Tracked...)
}

func (c *Config) Bridge() bridge.Config {
	return bridge.Config{
		Addr:         c.Addr,
		Transport:    c.Transport,
		Path:         c.WebSocketPath,
		IOTimeout:    c.IOTimeout,
		MaxFrameSize: c.MaxFrameSize,
	}
}

// Sync returns the synchronizer settings. Message keys and control posts are
// fixed by the episode manager and keep their defaults.
func (c *Config) Sync(evaluate bool) core.SyncConfig {
	s := core.DefaultSyncConfig()
	s.Actions = append([]core.Action(nil), c.Actions...)
	s.RewardSuccess = c.RewardSuccess
	s.RewardFailure = c.RewardFailure
	s.RewardStep = c.RewardStep
	s.ViabilityThreshold = c.ViabilityThreshold
	s.Episodes = c.Episodes
	s.EpsilonStart = c.EpsilonStart
	s.EpsilonDecayStart = c.EpsilonDecayStart
	s.EpsilonDecayEnd = c.EpsilonDecayEnd
	s.EpsilonDecayAmount = c.EpsilonDecayAmount
	s.SaveEvery = c.SaveEvery
	s.ReferencePoint = c.ReferencePoint
	s.FlagGrabRadius = c.FlagGrabRadius
	s.Evaluate = evaluate
	return s
}

// NewRun assigns a fresh run id.
func (c *Config) NewRun() string {
	c.RunID = uuid.NewString()
	return c.RunID
}

// RunDir is where a run keeps its tables, traces and workbook.
func (c *Config) RunDir() string {
	if c.RunID == "" {
		return c.SavePath
	}
	return path.Join(c.SavePath, c.RunID)
}

func (c *Config) Record() error {
	return util.SaveJson(path.Join(c.RunDir(), "config.json"), c)
}
