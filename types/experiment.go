package types

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/zeu5/lattice-fold-rl/util"
)

var ErrTooManyErrors = errors.New("too many consecutive episode errors")

// EpisodeCallback is invoked after every completed episode
// run, episode, experiment name, trace
// Callbacks are called concurrently when experiments run in parallel
type EpisodeCallback func(int, int, string, *Trace) error

type experimentRunConfig struct {
	CurrentRun int
	Episodes   int
	Horizon    int
	Analyzers  map[string]Analyzer
	Context    context.Context
	Logger     zerolog.Logger

	// threshold to abort the experiment
	ConsecutiveErrorsAbort int

	RecordTraces   bool
	ReportSavePath string
	Callbacks      []EpisodeCallback

	Output            *Output
	LongestExpNameLen int
}

// ExperimentResult summarizes one run of an experiment
type ExperimentResult struct {
	Name          string        `json:"name"`
	Run           int           `json:"run"`
	Episodes      int           `json:"episodes"`
	ValidEpisodes int           `json:"valid_episodes"`
	Errors        int           `json:"errors"`
	Timesteps     int           `json:"timesteps"`
	Duration      time.Duration `json:"duration"`
	Aborted       bool          `json:"aborted"`
}

// Experiment encapsulates the different parameters to configure an agent and analyze the traces
type Experiment struct {
	Name        string
	policy      Policy
	environment Environment
}

// NewExperiment creates a new experiment instance
// Experiments of one comparison may run concurrently, they must not share policies or environments
func NewExperiment(name string, policy Policy, environment Environment) *Experiment {
	return &Experiment{
		Name:        name,
		policy:      policy,
		environment: environment,
	}
}

func (e *Experiment) Policy() Policy {
	return e.policy
}

func (e *Experiment) recordTrace(rConfig *experimentRunConfig, trace *Trace) error {
	tracesFile := path.Join(rConfig.ReportSavePath, "traces", e.Name+"_"+strconv.Itoa(rConfig.CurrentRun)+".jsonl")
	bs, err := json.Marshal(trace)
	if err != nil {
		return err
	}
	return util.AppendToFile(tracesFile, string(bs))
}

// Run the experiment for the configured number of episodes
// Episodes that fail are counted, the experiment aborts after too many consecutive failures
func (e *Experiment) Run(rConfig *experimentRunConfig) (ExperimentResult, error) {
	result := ExperimentResult{Name: e.Name, Run: rConfig.CurrentRun}
	if rConfig.RecordTraces {
		if err := os.MkdirAll(path.Join(rConfig.ReportSavePath, "traces"), os.ModePerm); err != nil {
			return result, err
		}
	}

	agent := NewAgent(&AgentConfig{
		Episodes:    rConfig.Episodes,
		Horizon:     rConfig.Horizon,
		Policy:      e.policy,
		Environment: e.environment,
	})

	start := time.Now()
	consecutiveErrors := 0
	lastReward := 0.0
	epPadding := len(strconv.Itoa(rConfig.Episodes))
	e.status(rConfig, result, lastReward, epPadding)

	for episode := 0; episode < rConfig.Episodes; episode++ {
		if err := rConfig.Context.Err(); err != nil {
			result.Duration = time.Since(start)
			return result, err
		}

		trace, err := e.runEpisode(rConfig.Context, agent, episode)
		result.Episodes++
		if trace != nil {
			result.Timesteps += trace.Len()
		}
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				result.Duration = time.Since(start)
				return result, err
			}
			result.Errors++
			consecutiveErrors++
			rConfig.Logger.Warn().Err(err).Str("experiment", e.Name).Int("episode", episode).Msg("episode failed")
		} else {
			consecutiveErrors = 0
			result.ValidEpisodes++
			lastReward = trace.TotalReward()

			for _, a := range rConfig.Analyzers {
				a.Analyze(rConfig.CurrentRun, episode, e.Name, trace)
			}
			if rConfig.RecordTraces {
				if err := e.recordTrace(rConfig, trace); err != nil {
					return result, fmt.Errorf("recording trace: %w", err)
				}
			}
			for _, cb := range rConfig.Callbacks {
				if err := cb(rConfig.CurrentRun, episode, e.Name, trace); err != nil {
					return result, fmt.Errorf("episode %d callback: %w", episode, err)
				}
			}
		}

		e.status(rConfig, result, lastReward, epPadding)

		if rConfig.ConsecutiveErrorsAbort > 0 && consecutiveErrors >= rConfig.ConsecutiveErrorsAbort {
			result.Aborted = true
			rConfig.Logger.Error().Str("experiment", e.Name).Int("consecutive_errors", consecutiveErrors).Msg("aborting experiment")
			break
		}
	}
	result.Duration = time.Since(start)
	if result.Aborted {
		return result, fmt.Errorf("%w: %s", ErrTooManyErrors, e.Name)
	}
	return result, nil
}

func (e *Experiment) runEpisode(ctx context.Context, agent *Agent, episode int) (trace *Trace, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("episode %d panicked: %v", episode, r)
		}
	}()
	return agent.RunEpisode(ctx, episode)
}

func (e *Experiment) status(rConfig *experimentRunConfig, r ExperimentResult, lastReward float64, epPadding int) {
	if rConfig.Output == nil {
		return
	}
	rConfig.Output.TrySet(fmt.Sprintf("Exp:%*s, Eps:%*d/%d, Valid:%*d, Err:%*d, TSteps:%d, LastReward:%8.2f",
		rConfig.LongestExpNameLen, e.Name, epPadding, r.Episodes, rConfig.Episodes,
		epPadding, r.ValidEpisodes, epPadding, r.Errors, r.Timesteps, lastReward))
}

// Reset the policy of the experiment
func (e *Experiment) Reset() {
	e.policy.Reset()
}

// ComparisonConfig contains the configuration for the comparison
type ComparisonConfig struct {
	Runs     int // number of runs
	Episodes int // number of episodes
	Horizon  int // number of steps, 0 runs until the environment is done

	RecordPath string // path to store the results

	// threshold to abort an experiment, defaults to 10
	ConsecutiveErrorsAbort int
	RecordTraces           bool

	// experiments of one run executed at the same time, defaults to 1
	Parallelism   int
	PrintInterval time.Duration
	// disables the terminal printer
	Quiet bool

	Callbacks []EpisodeCallback
	Logger    zerolog.Logger
}

// Comparison contains the different experiments to compare
// The traces obtained from the experiments are analyzed
// The analyzed datasets are then compared
type Comparison struct {
	Experiments []*Experiment
	analyzers   map[string]AnalyzerConstructor
	comparators map[string]Comparator
	cConfig     *ComparisonConfig

	lock    *sync.Mutex
	results []ExperimentResult
}

// NewComparison creates a comparison instance and its record folder
func NewComparison(config *ComparisonConfig) (*Comparison, error) {
	if config.RecordPath != "" {
		if err := os.MkdirAll(config.RecordPath, os.ModePerm); err != nil {
			return nil, err
		}
	}
	if config.ConsecutiveErrorsAbort == 0 {
		config.ConsecutiveErrorsAbort = 10
	}
	if config.Parallelism <= 0 {
		config.Parallelism = 1
	}
	return &Comparison{
		Experiments: make([]*Experiment, 0),
		analyzers:   make(map[string]AnalyzerConstructor),
		comparators: make(map[string]Comparator),
		cConfig:     config,
		lock:        new(sync.Mutex),
		results:     make([]ExperimentResult, 0),
	}, nil
}

// AddAnalysis adds an analyzer and comparator to the comparison
func (c *Comparison) AddAnalysis(name string, analyzer AnalyzerConstructor, comparator Comparator) {
	c.analyzers[name] = analyzer
	c.comparators[name] = comparator
}

// Add experiments to compare
func (c *Comparison) AddExperiment(e *Experiment) {
	c.Experiments = append(c.Experiments, e)
}

// Results of all experiment runs executed so far
func (c *Comparison) Results() []ExperimentResult {
	c.lock.Lock()
	defer c.lock.Unlock()
	out := make([]ExperimentResult, len(c.results))
	copy(out, c.results)
	return out
}

// record the configuration of the comparison
func (c *Comparison) recordConfig() error {
	cfg := c.cConfig
	if cfg.RecordPath == "" {
		return nil
	}
	out := make(map[string]interface{})
	out["runs"] = cfg.Runs
	out["episodes"] = cfg.Episodes
	out["horizon"] = cfg.Horizon
	out["record_traces"] = cfg.RecordTraces
	out["parallelism"] = cfg.Parallelism
	out["consecutive_errors_abort"] = cfg.ConsecutiveErrorsAbort

	experiments := make([]string, 0)
	for _, e := range c.Experiments {
		experiments = append(experiments, e.Name)
	}
	out["experiments"] = experiments
	out["analyzers"] = c.analyzerNames()

	bs, err := json.Marshal(out)
	if err != nil {
		return err
	}
	return os.WriteFile(path.Join(cfg.RecordPath, "comparison_config.json"), bs, 0644)
}

func (c *Comparison) analyzerNames() []string {
	names := make([]string, 0, len(c.analyzers))
	for name := range c.analyzers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run the comparison
// Within a run, experiments execute in parallel up to the configured limit
func (c *Comparison) Run(ctx context.Context) error {
	if err := c.recordConfig(); err != nil {
		return fmt.Errorf("recording config: %w", err)
	}

	longestNameLen := 0
	for _, e := range c.Experiments {
		if len(e.Name) > longestNameLen {
			longestNameLen = len(e.Name)
		}
	}

	var errs []error
	for run := 0; run < c.cConfig.Runs; run++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.cConfig.Logger.Info().Int("run", run+1).Int("experiments", len(c.Experiments)).Msg("starting run")

		datasets := make(map[string][]DataSet)
		for name := range c.analyzers {
			datasets[name] = make([]DataSet, len(c.Experiments))
		}
		names := make([]string, len(c.Experiments))
		outputs := make([]*Output, len(c.Experiments))
		for i, e := range c.Experiments {
			names[i] = e.Name
			outputs[i] = NewOutput()
		}

		var printer *TerminalPrinter
		if !c.cConfig.Quiet {
			printer = NewTerminalPrinter(ctx, outputs, c.cConfig.PrintInterval)
			printer.Start()
		}

		runErrs := make([]error, len(c.Experiments))
		datasetsLock := new(sync.Mutex)
		slots := make(chan struct{}, c.cConfig.Parallelism)
		wg := new(sync.WaitGroup)
		for i, e := range c.Experiments {
			wg.Add(1)
			slots <- struct{}{}
			go func(i int, e *Experiment) {
				defer func() {
					<-slots
					wg.Done()
				}()
				analyzers := make(map[string]Analyzer, len(c.analyzers))
				for name, constructor := range c.analyzers {
					analyzers[name] = constructor()
				}
				result, err := e.Run(c.prepareRunConfig(ctx, run, analyzers, outputs[i], longestNameLen))
				runErrs[i] = err

				c.lock.Lock()
				c.results = append(c.results, result)
				c.lock.Unlock()

				datasetsLock.Lock()
				for name, a := range analyzers {
					datasets[name][i] = a.DataSet()
				}
				datasetsLock.Unlock()
			}(i, e)
		}
		wg.Wait()
		if printer != nil {
			printer.Stop()
		}

		for _, err := range runErrs {
			if err == nil {
				continue
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			errs = append(errs, err)
		}

		for _, name := range c.analyzerNames() {
			if err := c.comparators[name](run, names, datasets[name]); err != nil {
				errs = append(errs, fmt.Errorf("comparator %s: %w", name, err))
			}
		}
		// the last run keeps the learned policies
		if run < c.cConfig.Runs-1 {
			for _, e := range c.Experiments {
				e.Reset()
			}
		}
	}
	return errors.Join(errs...)
}

// prepare the run configuration for the experiment
func (c *Comparison) prepareRunConfig(ctx context.Context, run int, analyzers map[string]Analyzer, output *Output, longestExpNameLen int) *experimentRunConfig {
	return &experimentRunConfig{
		CurrentRun:             run,
		Episodes:               c.cConfig.Episodes,
		Horizon:                c.cConfig.Horizon,
		Analyzers:              analyzers,
		Context:                ctx,
		Logger:                 c.cConfig.Logger,
		ConsecutiveErrorsAbort: c.cConfig.ConsecutiveErrorsAbort,
		RecordTraces:           c.cConfig.RecordTraces,
		ReportSavePath:         c.cConfig.RecordPath,
		Callbacks:              c.cConfig.Callbacks,
		Output:                 output,
		LongestExpNameLen:      longestExpNameLen,
	}
}
