package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/zeu5/lattice-fold-rl/dqn"
	"github.com/zeu5/lattice-fold-rl/lattice"
	"github.com/zeu5/lattice-fold-rl/nn"
)

var ErrInvalidConfig = errors.New("invalid config")

const EnvPrefix = "FOLD"

type EnvConfig struct {
	CollisionPenalty float64 `mapstructure:"collision_penalty"`
	TrapPenalty      float64 `mapstructure:"trap_penalty"`
	MaxCollisions    int     `mapstructure:"max_collisions"`
}

type NetworkConfig struct {
	// mlp or conv
	Kind   string `mapstructure:"kind"`
	Hidden []int  `mapstructure:"hidden"`
	// output channels of the 3x3 convolutions of a conv network
	Channels []int `mapstructure:"channels"`
	// adam or sgd
	Optimizer    string  `mapstructure:"optimizer"`
	LearningRate float64 `mapstructure:"learning_rate"`
	// global gradient norm limit, 0 disables clipping
	Clip float64 `mapstructure:"clip"`
}

type AgentConfig struct {
	BufferCapacity int     `mapstructure:"buffer_capacity"`
	BatchSize      int     `mapstructure:"batch_size"`
	Alpha          float64 `mapstructure:"alpha"`
	StartTrain     int     `mapstructure:"start_train"`
	TrainEvery     int     `mapstructure:"train_every"`
	Gamma          float64 `mapstructure:"gamma"`

	EpsilonStart float64 `mapstructure:"epsilon_start"`
	EpsilonFinal float64 `mapstructure:"epsilon_final"`
	EpsilonDecay float64 `mapstructure:"epsilon_decay"`

	BetaStart  float64 `mapstructure:"beta_start"`
	BetaFrames int     `mapstructure:"beta_frames"`

	// hard or soft
	SyncMode  string  `mapstructure:"sync_mode"`
	SyncEvery int     `mapstructure:"sync_every"`
	Tau       float64 `mapstructure:"tau"`
}

type StoreConfig struct {
	// memory, sqlite or redis
	Kind string `mapstructure:"kind"`
	// database file for sqlite, address for redis
	Target string `mapstructure:"target"`
	// episodes between checkpoints, 0 only saves at the end
	CheckpointEvery int `mapstructure:"checkpoint_every"`
}

type MonitorConfig struct {
	// empty disables the monitor
	Addr string `mapstructure:"addr"`
}

// Config of a training or comparison run
type Config struct {
	Sequence string `mapstructure:"sequence"`
	Episodes int    `mapstructure:"episodes"`
	// steps per episode, 0 allows StepsPerResidue steps for every residue
	Horizon int    `mapstructure:"horizon"`
	Runs    int    `mapstructure:"runs"`
	Seed    uint64 `mapstructure:"seed"`

	SavePath   string `mapstructure:"save_path"`
	LogLevel   string `mapstructure:"log_level"`
	PrettyLogs bool   `mapstructure:"pretty_logs"`

	Env     EnvConfig     `mapstructure:"env"`
	Network NetworkConfig `mapstructure:"network"`
	Agent   AgentConfig   `mapstructure:"agent"`
	Store   StoreConfig   `mapstructure:"store"`
	Monitor MonitorConfig `mapstructure:"monitor"`
}

func Default() Config {
	env := lattice.DefaultConfig()
	return Config{
		Sequence:   "S1-1",
		Episodes:   1000,
		Horizon:    0,
		Runs:       1,
		Seed:       42,
		SavePath:   "results",
		LogLevel:   "info",
		PrettyLogs: true,
		Env: EnvConfig{
			CollisionPenalty: env.CollisionPenalty,
			TrapPenalty:      env.TrapPenalty,
			MaxCollisions:    env.MaxCollisions,
		},
		Network: NetworkConfig{
			Kind:         nn.MLPKind,
			Hidden:       []int{256, 128},
			Channels:     []int{16, 16},
			Optimizer:    "adam",
			LearningRate: 5e-4,
			Clip:         10,
		},
		Agent: AgentConfig{
			BufferCapacity: 10000,
			BatchSize:      32,
			Alpha:          0.6,
			StartTrain:     1000,
			TrainEvery:     1,
			Gamma:          0.98,
			EpsilonStart:   1.0,
			EpsilonFinal:   0.01,
			EpsilonDecay:   5000,
			BetaStart:      0.4,
			BetaFrames:     100000,
			SyncMode:       string(dqn.HardSyncMode),
			SyncEvery:      100,
			Tau:            0.005,
		},
		Store: StoreConfig{
			Kind:            "memory",
			CheckpointEvery: 100,
		},
	}
}

// flags that override file and environment values, flag name to key
var flagKeys = map[string]string{
	"episodes":         "episodes",
	"horizon":          "horizon",
	"runs":             "runs",
	"seed":             "seed",
	"save":             "save_path",
	"log-level":        "log_level",
	"network":          "network.kind",
	"store":            "store.kind",
	"store-target":     "store.target",
	"checkpoint-every": "store.checkpoint_every",
	"monitor":          "monitor.addr",
}

// Load reads the defaults, the optional config file, FOLD_ prefixed environment variables
// and the changed flags, later sources win
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
	}
	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, err
				}
			}
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("sequence", c.Sequence)
	v.SetDefault("episodes", c.Episodes)
	v.SetDefault("horizon", c.Horizon)
	v.SetDefault("runs", c.Runs)
	v.SetDefault("seed", c.Seed)
	v.SetDefault("save_path", c.SavePath)
	v.SetDefault("log_level", c.LogLevel)
	v.SetDefault("pretty_logs", c.PrettyLogs)

	v.SetDefault("env.collision_penalty", c.Env.CollisionPenalty)
	v.SetDefault("env.trap_penalty", c.Env.TrapPenalty)
	v.SetDefault("env.max_collisions", c.Env.MaxCollisions)

	v.SetDefault("network.kind", c.Network.Kind)
	v.SetDefault("network.hidden", c.Network.Hidden)
	v.SetDefault("network.channels", c.Network.Channels)
	v.SetDefault("network.optimizer", c.Network.Optimizer)
	v.SetDefault("network.learning_rate", c.Network.LearningRate)
	v.SetDefault("network.clip", c.Network.Clip)

	v.SetDefault("agent.buffer_capacity", c.Agent.BufferCapacity)
	v.SetDefault("agent.batch_size", c.Agent.BatchSize)
	v.SetDefault("agent.alpha", c.Agent.Alpha)
	v.SetDefault("agent.start_train", c.Agent.StartTrain)
	v.SetDefault("agent.train_every", c.Agent.TrainEvery)
	v.SetDefault("agent.gamma", c.Agent.Gamma)
	v.SetDefault("agent.epsilon_start", c.Agent.EpsilonStart)
	v.SetDefault("agent.epsilon_final", c.Agent.EpsilonFinal)
	v.SetDefault("agent.epsilon_decay", c.Agent.EpsilonDecay)
	v.SetDefault("agent.beta_start", c.Agent.BetaStart)
	v.SetDefault("agent.beta_frames", c.Agent.BetaFrames)
	v.SetDefault("agent.sync_mode", c.Agent.SyncMode)
	v.SetDefault("agent.sync_every", c.Agent.SyncEvery)
	v.SetDefault("agent.tau", c.Agent.Tau)

	v.SetDefault("store.kind", c.Store.Kind)
	v.SetDefault("store.target", c.Store.Target)
	v.SetDefault("store.checkpoint_every", c.Store.CheckpointEvery)

	v.SetDefault("monitor.addr", c.Monitor.Addr)
}

func (c Config) Validate() error {
	if _, _, err := lattice.Lookup(c.Sequence); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, err)
	}
	if c.Episodes <= 0 {
		return fmt.Errorf("%w: episodes must be positive, got %d", ErrInvalidConfig, c.Episodes)
	}
	if c.Horizon < 0 {
		return fmt.Errorf("%w: horizon must not be negative, got %d", ErrInvalidConfig, c.Horizon)
	}
	if c.Runs <= 0 {
		return fmt.Errorf("%w: runs must be positive, got %d", ErrInvalidConfig, c.Runs)
	}
	if c.Env.MaxCollisions < 0 {
		return fmt.Errorf("%w: max collisions must not be negative", ErrInvalidConfig)
	}
	switch c.Network.Kind {
	case nn.MLPKind:
	case nn.ConvKind:
		if len(c.Network.Channels) == 0 {
			return fmt.Errorf("%w: a conv network needs at least one convolution", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown network kind %q", ErrInvalidConfig, c.Network.Kind)
	}
	for _, ch := range c.Network.Channels {
		if ch <= 0 {
			return fmt.Errorf("%w: convolution channels must be positive, got %v", ErrInvalidConfig, c.Network.Channels)
		}
	}
	for _, h := range c.Network.Hidden {
		if h <= 0 {
			return fmt.Errorf("%w: hidden layer sizes must be positive, got %v", ErrInvalidConfig, c.Network.Hidden)
		}
	}
	switch c.Network.Optimizer {
	case "adam", "sgd":
	default:
		return fmt.Errorf("%w: unknown optimizer %q", ErrInvalidConfig, c.Network.Optimizer)
	}
	if c.Network.LearningRate <= 0 {
		return fmt.Errorf("%w: learning rate must be positive", ErrInvalidConfig)
	}
	switch c.Store.Kind {
	case "memory", "sqlite", "redis":
	default:
		return fmt.Errorf("%w: unknown store %q", ErrInvalidConfig, c.Store.Kind)
	}
	if c.Store.CheckpointEvery < 0 {
		return fmt.Errorf("%w: checkpoint interval must not be negative", ErrInvalidConfig)
	}
	if err := c.DQN().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// StepsPerResidue bounds episodes when no horizon is configured.
// A colliding action leaves the fold unchanged, so a greedy policy can otherwise repeat it forever.
const StepsPerResidue = 4

// EpisodeHorizon is the step limit of an episode on a sequence of the given length
func (c Config) EpisodeHorizon(length int) int {
	if c.Horizon > 0 {
		return c.Horizon
	}
	return StepsPerResidue * length
}

// DQN builds the learning loop configuration
func (c Config) DQN() dqn.Config {
	return dqn.Config{
		BufferCapacity: c.Agent.BufferCapacity,
		BatchSize:      c.Agent.BatchSize,
		Alpha:          c.Agent.Alpha,
		StartTrain:     c.Agent.StartTrain,
		TrainEvery:     c.Agent.TrainEvery,
		Gamma:          c.Agent.Gamma,
		Epsilon: dqn.EpsilonSchedule{
			Start: c.Agent.EpsilonStart,
			Final: c.Agent.EpsilonFinal,
			Decay: c.Agent.EpsilonDecay,
		},
		Beta: dqn.BetaSchedule{
			Start:  c.Agent.BetaStart,
			Frames: c.Agent.BetaFrames,
		},
		Sync: dqn.TargetSynchronizer{
			Mode:  dqn.SyncMode(c.Agent.SyncMode),
			Every: c.Agent.SyncEvery,
			Tau:   c.Agent.Tau,
		},
		Seed: c.Seed,
	}
}

func (c Config) Lattice() lattice.Config {
	return lattice.Config{
		CollisionPenalty: c.Env.CollisionPenalty,
		TrapPenalty:      c.Env.TrapPenalty,
		MaxCollisions:    c.Env.MaxCollisions,
	}
}

// Layers returns the network layer sizes for the given input and output sizes
func (c Config) Layers(inputs, outputs int) []int {
	layers := []int{inputs}
	layers = append(layers, c.Network.Hidden...)
	return append(layers, outputs)
}

// NewNetwork builds the configured network for observations of the given shape
func (c Config) NewNetwork(shape []int, actions int) (nn.Network, error) {
	if c.Network.Kind == nn.ConvKind {
		net, err := nn.NewConvNet(shape, c.Network.Channels, actions, c.Seed)
		if err != nil {
			return nil, err
		}
		return net, nil
	}
	inputs := 1
	for _, d := range shape {
		inputs *= d
	}
	net, err := nn.NewMLP(c.Layers(inputs, actions), c.Seed)
	if err != nil {
		return nil, err
	}
	return net, nil
}

func (c Config) Optimizer() dqn.Optimizer {
	if c.Network.Optimizer == "sgd" {
		return &nn.SGD{Rate: c.Network.LearningRate, Clip: c.Network.Clip}
	}
	opt := nn.NewAdam(c.Network.LearningRate)
	opt.Clip = c.Network.Clip
	return opt
}
