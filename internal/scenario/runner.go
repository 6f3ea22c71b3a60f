package scenario

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ipcviz/backend/internal/engine"
	"github.com/ipcviz/backend/internal/shared/types"
)

// ErrUnknownScenario is returned when running a scenario not loaded.
var ErrUnknownScenario = errors.New("unknown scenario")

// Result summarizes a scenario replay. Step errors are expected in demos
// that deliberately drive the system into blocking or deadlock, so they
// are reported rather than aborting the run.
type Result struct {
	Scenario    string            `json:"scenario"`
	Processes   map[string]string `json:"processes"` // scenario name -> process id
	Connections []string          `json:"connections"`
	StepsRun    int               `json:"steps_run"`
	StepErrors  []string          `json:"step_errors,omitempty"`
}

// Runner replays loaded scenarios against an engine.
type Runner struct {
	engine *engine.Engine
	defs   map[string]*Definition
}

// NewRunner creates a runner over the given definitions.
func NewRunner(eng *engine.Engine, defs []*Definition) *Runner {
	m := make(map[string]*Definition, len(defs))
	for _, d := range defs {
		m[d.Name] = d
	}
	return &Runner{engine: eng, defs: m}
}

// Names lists the loaded scenario names, sorted.
func (r *Runner) Names() []string {
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns a loaded definition by name.
func (r *Runner) Get(name string) (*Definition, bool) {
	d, ok := r.defs[name]
	return d, ok
}

// Run clears the simulation and replays the named scenario.
func (r *Runner) Run(name string) (*Result, error) {
	def, ok := r.defs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownScenario, name)
	}

	r.engine.Clear()

	result := &Result{
		Scenario:  def.Name,
		Processes: make(map[string]string, len(def.Processes)),
	}

	for _, pd := range def.Processes {
		p := r.engine.CreateProcess(pd.Name, pd.Position)
		result.Processes[pd.Name] = p.ID
	}

	for i, cd := range def.Connections {
		conn, err := r.engine.CreateConnection(
			result.Processes[cd.From],
			result.Processes[cd.To],
			types.ConnectionType(cd.Type),
			engine.ConnectionParams{Capacity: cd.Capacity, MaxReaders: cd.MaxReaders},
		)
		if err != nil {
			return nil, fmt.Errorf("scenario %s connection %d: %w", name, i, err)
		}
		result.Connections = append(result.Connections, conn.ID)
	}

	for i, step := range def.Steps {
		from := result.Processes[step.From]
		to := result.Processes[step.To]

		var err error
		switch step.Op {
		case "send":
			err = r.engine.Send(from, to)
		case "consume":
			err = r.engine.Consume(from, to)
		}
		result.StepsRun++
		if err != nil {
			result.StepErrors = append(result.StepErrors,
				fmt.Sprintf("step %d (%s %s->%s): %v", i, step.Op, step.From, step.To, err))
		}
	}

	return result, nil
}
