package types

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"strconv"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// Generic Dataset that contains information after processing the traces
type DataSet interface{}

// Analyzer compresses the information in the traces to a DataSet
type Analyzer interface {
	// run, episode, experiment, trace
	Analyze(int, int, string, *Trace)
	DataSet() DataSet
	Reset()
}

// AnalyzerConstructor creates a fresh analyzer for every experiment run
type AnalyzerConstructor func() Analyzer

// Comparator differentiates between different datasets with associated names
// run, experiment names, datasets
type Comparator func(int, []string, []DataSet) error

func NoopComparator() Comparator {
	return func(_ int, _ []string, _ []DataSet) error { return nil }
}

// Series is one value per episode
type Series []float64

// seriesAnalyzer extracts a value from each trace, episodes without a value repeat the previous one
type seriesAnalyzer struct {
	extract func(*Trace) (float64, bool)
	// combines the previous and current value, nil keeps the current
	running func(float64, float64) float64
	series  Series
}

func (s *seriesAnalyzer) Analyze(_, _ int, _ string, trace *Trace) {
	v, ok := s.extract(trace)
	if !ok {
		if len(s.series) == 0 {
			return
		}
		v = s.series[len(s.series)-1]
	} else if s.running != nil && len(s.series) > 0 {
		v = s.running(s.series[len(s.series)-1], v)
	}
	s.series = append(s.series, v)
}

func (s *seriesAnalyzer) DataSet() DataSet {
	out := make(Series, len(s.series))
	copy(out, s.series)
	return out
}

func (s *seriesAnalyzer) Reset() {
	s.series = nil
}

// RewardAnalyzer records the total reward of every episode
func RewardAnalyzer() Analyzer {
	return &seriesAnalyzer{
		extract: func(t *Trace) (float64, bool) {
			return t.TotalReward(), t.Len() > 0
		},
	}
}

// InfoAnalyzer records a numeric info value of the last step of every episode
func InfoAnalyzer(key string) Analyzer {
	return &seriesAnalyzer{
		extract: infoValue(key),
	}
}

// MinInfoAnalyzer records the lowest value of the info key seen so far
func MinInfoAnalyzer(key string) Analyzer {
	return &seriesAnalyzer{
		extract: infoValue(key),
		running: func(prev, cur float64) float64 {
			if cur < prev {
				return cur
			}
			return prev
		},
	}
}

func infoValue(key string) func(*Trace) (float64, bool) {
	return func(t *Trace) (float64, bool) {
		v, ok := t.LastInfo(key)
		if !ok {
			return 0, false
		}
		switch n := v.(type) {
		case int:
			return float64(n), true
		case int64:
			return float64(n), true
		case float64:
			return n, true
		case bool:
			if n {
				return 1, true
			}
			return 0, true
		}
		return 0, false
	}
}

// LinePlotComparator plots one line per experiment for Series datasets
func LinePlotComparator(plotPath, name, yLabel string) Comparator {
	return func(run int, names []string, ds []DataSet) error {
		if err := os.MkdirAll(plotPath, os.ModePerm); err != nil {
			return err
		}
		p := plot.New()
		p.Title.Text = name
		p.X.Label.Text = "Episode"
		p.Y.Label.Text = yLabel
		for i := 0; i < len(names); i++ {
			series, ok := ds[i].(Series)
			if !ok || len(series) == 0 {
				continue
			}
			points := make(plotter.XYs, len(series))
			for j, v := range series {
				points[j] = plotter.XY{X: float64(j), Y: v}
			}
			line, err := plotter.NewLine(points)
			if err != nil {
				continue
			}
			line.Color = plotutil.Color(i)
			p.Add(line)
			p.Legend.Add(names[i], line)
		}
		return p.Save(8*vg.Inch, 8*vg.Inch, path.Join(plotPath, strconv.Itoa(run)+"_"+name+".png"))
	}
}

// JSONComparator dumps the datasets keyed by experiment name
func JSONComparator(savePath, name string) Comparator {
	return func(run int, names []string, ds []DataSet) error {
		if err := os.MkdirAll(savePath, os.ModePerm); err != nil {
			return err
		}
		out := make(map[string]DataSet, len(names))
		for i, n := range names {
			out[n] = ds[i]
		}
		bs, err := json.Marshal(out)
		if err != nil {
			return err
		}
		return os.WriteFile(path.Join(savePath, strconv.Itoa(run)+"_"+name+".json"), bs, 0644)
	}
}

// SummaryComparator prints the mean of the last window values of every Series
func SummaryComparator(name string, window int) Comparator {
	return func(run int, names []string, ds []DataSet) error {
		for i, n := range names {
			series, ok := ds[i].(Series)
			if !ok || len(series) == 0 {
				continue
			}
			tail := series
			if window > 0 && len(tail) > window {
				tail = tail[len(tail)-window:]
			}
			mean, std := stat.MeanStdDev(tail, nil)
			fmt.Printf("Run %d, %s, %s: last %d mean %.3f std %.3f\n", run, n, name, len(tail), mean, std)
		}
		return nil
	}
}

// Comparators runs all the given comparators, stopping at the first error
func Comparators(cs ...Comparator) Comparator {
	return func(run int, names []string, ds []DataSet) error {
		for _, c := range cs {
			if err := c(run, names, ds); err != nil {
				return err
			}
		}
		return nil
	}
}
