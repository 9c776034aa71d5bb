package lattice

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"strconv"

	"github.com/zeu5/lattice-fold-rl/types"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// VisitsDataSet counts how often the chain head occupied each lattice cell
// Cells are indexed by observation row and column
type VisitsDataSet struct {
	Visits [][]int `json:"visits"`
	Width  int     `json:"width"`
}

var _ plotter.GridXYZ = &VisitsDataSet{}

func NewVisitsDataSet(width int) *VisitsDataSet {
	visits := make([][]int, width)
	for i := range visits {
		visits[i] = make([]int, width)
	}
	return &VisitsDataSet{Visits: visits, Width: width}
}

func (v *VisitsDataSet) Dims() (int, int) {
	return v.Width, v.Width
}

// Z with rows flipped so that larger y is drawn on top
func (v *VisitsDataSet) Z(c, r int) float64 {
	return float64(v.Visits[v.Width-1-r][c])
}

func (v *VisitsDataSet) X(c int) float64 {
	return float64(c - v.Width/2)
}

func (v *VisitsDataSet) Y(r int) float64 {
	return float64(r - v.Width/2)
}

func (v *VisitsDataSet) Min() float64 {
	return 0.0
}

func (v *VisitsDataSet) Max() float64 {
	max := 0
	for _, row := range v.Visits {
		for _, count := range row {
			if count > max {
				max = count
			}
		}
	}
	return float64(max)
}

func (v *VisitsDataSet) Total() int {
	total := 0
	for _, row := range v.Visits {
		for _, count := range row {
			total += count
		}
	}
	return total
}

type visitsAnalyzer struct {
	dataSet *VisitsDataSet
}

// VisitsAnalyzer reads the head channel of every observed state
func VisitsAnalyzer() types.Analyzer {
	return &visitsAnalyzer{}
}

func (a *visitsAnalyzer) Analyze(_, _ int, _ string, trace *types.Trace) {
	for i := 0; i < trace.Len(); i++ {
		step, _ := trace.Get(i)
		obs := step.NextState
		if obs == nil || len(obs.Shape) != 3 || obs.Shape[0] != numChannels {
			continue
		}
		width := obs.Shape[1]
		if a.dataSet == nil {
			a.dataSet = NewVisitsDataSet(width)
		} else if a.dataSet.Width != width {
			continue
		}
		head := obs.Data[ChannelHead*width*width : (ChannelHead+1)*width*width]
		for j, v := range head {
			if v > 0 {
				a.dataSet.Visits[j/width][j%width]++
				break
			}
		}
	}
}

func (a *visitsAnalyzer) DataSet() types.DataSet {
	if a.dataSet == nil {
		return NewVisitsDataSet(1)
	}
	out := NewVisitsDataSet(a.dataSet.Width)
	for i, row := range a.dataSet.Visits {
		copy(out.Visits[i], row)
	}
	return out
}

func (a *visitsAnalyzer) Reset() {
	a.dataSet = nil
}

// VisitsComparator saves a heat map and a json dump of the visits of every experiment
func VisitsComparator(savePath string) types.Comparator {
	return func(run int, names []string, ds []types.DataSet) error {
		if err := os.MkdirAll(savePath, os.ModePerm); err != nil {
			return err
		}
		for i, name := range names {
			dataSet, ok := ds[i].(*VisitsDataSet)
			if !ok || dataSet == nil {
				continue
			}
			prefix := path.Join(savePath, strconv.Itoa(run)+"_"+name+"_visits")

			bs, err := json.Marshal(dataSet)
			if err != nil {
				return err
			}
			if err := os.WriteFile(prefix+".json", bs, 0644); err != nil {
				return err
			}
			if dataSet.Max() == 0 {
				continue
			}

			p := plot.New()
			p.Title.Text = fmt.Sprintf("%s head visits", name)
			p.Add(plotter.NewHeatMap(dataSet, palette.Heat(20, 1)))
			if err := p.Save(6*vg.Inch, 6*vg.Inch, prefix+".png"); err != nil {
				return err
			}
		}
		return nil
	}
}
