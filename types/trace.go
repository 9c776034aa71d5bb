package types

// Step of an episode
type Step struct {
	State     *Observation           `json:"-"`
	Action    int                    `json:"action"`
	Reward    float64                `json:"reward"`
	NextState *Observation           `json:"-"`
	Done      bool                   `json:"done"`
	Info      map[string]interface{} `json:"info,omitempty"`
}

// Trace of an episode as a sequence of steps
type Trace struct {
	Steps []Step `json:"steps"`
}

func NewTrace() *Trace {
	return &Trace{
		Steps: make([]Step, 0),
	}
}

func (t *Trace) Append(state *Observation, action int, result StepResult) {
	t.Steps = append(t.Steps, Step{
		State:     state,
		Action:    action,
		Reward:    result.Reward,
		NextState: result.Next,
		Done:      result.Done,
		Info:      result.Info,
	})
}

func (t *Trace) Len() int {
	return len(t.Steps)
}

func (t *Trace) Get(i int) (Step, bool) {
	if i < 0 || i >= len(t.Steps) {
		return Step{}, false
	}
	return t.Steps[i], true
}

func (t *Trace) Last() (Step, bool) {
	if len(t.Steps) < 1 {
		return Step{}, false
	}
	return t.Steps[len(t.Steps)-1], true
}

// TotalReward sum of the rewards collected in the episode
func (t *Trace) TotalReward() float64 {
	total := 0.0
	for _, s := range t.Steps {
		total += s.Reward
	}
	return total
}

// Actions taken in the episode
func (t *Trace) Actions() []int {
	actions := make([]int, len(t.Steps))
	for i, s := range t.Steps {
		actions[i] = s.Action
	}
	return actions
}

// LastInfo returns the value of key in the info of the last step
func (t *Trace) LastInfo(key string) (interface{}, bool) {
	last, ok := t.Last()
	if !ok || last.Info == nil {
		return nil, false
	}
	v, ok := last.Info[key]
	return v, ok
}
