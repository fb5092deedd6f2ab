package runner

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"can-testbench/internal/database"
	"can-testbench/internal/models"
	"can-testbench/internal/plugin"
	"can-testbench/internal/scenario"
	"can-testbench/internal/transport"
	"can-testbench/internal/vehicle"
)

// StepHandler executes one step of an extension type. Returning an
// error terminates the run in the error state.
type StepHandler func(scenarioID string, step scenario.Step) error

// Runner executes scenario definitions, one worker goroutine per
// active scenario. The active-run registry and the per-run states are
// the only shared mutable structures; every access goes through the
// runner's lock.
type Runner struct {
	mu       sync.Mutex
	active   map[string]*runState
	last     map[string]State
	handlers map[string]StepHandler

	store   *scenario.Store
	adapter transport.Adapter
	plugins *plugin.Registry
	vehicle vehicle.Controller
	db      database.Logger

	joinTimeout time.Duration
}

type runState struct {
	state State
	done  chan struct{}
}

// New creates a runner over its collaborators. The db logger may be
// database.Nop when persistence is disabled.
func New(store *scenario.Store, adapter transport.Adapter, plugins *plugin.Registry,
	controller vehicle.Controller, db database.Logger) *Runner {
	return &Runner{
		active:      make(map[string]*runState),
		last:        make(map[string]State),
		handlers:    make(map[string]StepHandler),
		store:       store,
		adapter:     adapter,
		plugins:     plugins,
		vehicle:     controller,
		db:          db,
		joinTimeout: 5 * time.Second,
	}
}

// RegisterStepHandler installs a handler for an extension step type.
// Builtin types cannot be overridden.
func (r *Runner) RegisterStepHandler(stepType string, handler StepHandler) error {
	switch stepType {
	case scenario.StepCANMessage, scenario.StepPause,
		scenario.StepPluginAction, scenario.StepVehicleControl:
		return fmt.Errorf("cannot override builtin step type %s", stepType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[stepType]; exists {
		return fmt.Errorf("step handler already registered for type %s", stepType)
	}
	r.handlers[stepType] = handler
	return nil
}

// Run starts a scenario. It fails when the scenario is already active
// or its definition cannot be loaded. The state entry and the
// registry slot are established atomically before the worker starts.
func (r *Runner) Run(scenarioID string) bool {
	def, ok := r.store.Get(scenarioID)
	if !ok {
		log.Printf("runner: failed to load scenario: %s", scenarioID)
		return false
	}

	r.mu.Lock()
	if _, running := r.active[scenarioID]; running {
		r.mu.Unlock()
		log.Printf("runner: scenario %s is already running", scenarioID)
		return false
	}

	rs := &runState{
		state: State{
			ID:         scenarioID,
			Name:       def.Name,
			Status:     StatusStarting,
			TotalSteps: len(def.Steps),
			StartTime:  time.Now().UTC(),
		},
		done: make(chan struct{}),
	}
	r.active[scenarioID] = rs
	r.mu.Unlock()

	r.db.LogEvent("scenario_start", scenarioID, fmt.Sprintf("Started scenario: %s", def.Name))
	log.Printf("runner: started scenario %s (%d steps)", scenarioID, len(def.Steps))

	go r.runScenario(scenarioID, def, rs)
	return true
}

// Stop requests a running scenario to stop. Cancellation is
// cooperative: the worker observes the request at the next step
// boundary, so a long pause step delays actual termination by up to
// its remaining duration.
func (r *Runner) Stop(scenarioID string) bool {
	r.mu.Lock()
	rs, ok := r.active[scenarioID]
	if !ok || rs.state.Status.Terminal() {
		r.mu.Unlock()
		log.Printf("runner: scenario %s is not running", scenarioID)
		return false
	}
	rs.state.Status = StatusStopping
	r.mu.Unlock()

	r.db.LogEvent("scenario_stop", scenarioID, fmt.Sprintf("Stop requested for scenario: %s", scenarioID))
	log.Printf("runner: stopping scenario %s", scenarioID)
	return true
}

// StopAll requests every active scenario to stop
func (r *Runner) StopAll() {
	for _, id := range r.activeIDs() {
		r.Stop(id)
	}
}

// Status returns a snapshot of an active run's state
func (r *Runner) Status(scenarioID string) (State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rs, ok := r.active[scenarioID]; ok {
		return rs.state.clone(), true
	}
	return State{}, false
}

// LastResult returns the final snapshot of the most recent terminated
// run of a scenario, including its full error history
func (r *Runner) LastResult(scenarioID string) (State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.last[scenarioID]
	return state, ok
}

// Active returns snapshots of all active runs, sorted by id
func (r *Runner) Active() []State {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]State, 0, len(r.active))
	for _, rs := range r.active {
		out = append(out, rs.state.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Close stops all scenarios and joins the workers with a bounded
// wait. A worker that fails to exit in time is abandoned, not
// forcibly killed; this is a known limitation of cooperative
// step-boundary cancellation.
func (r *Runner) Close() {
	r.StopAll()

	r.mu.Lock()
	doneChans := make(map[string]chan struct{}, len(r.active))
	for id, rs := range r.active {
		doneChans[id] = rs.done
	}
	r.mu.Unlock()

	// One shared deadline for the whole join, not per worker. Once it
	// fires, every remaining worker is abandoned without waiting.
	timer := time.NewTimer(r.joinTimeout)
	defer timer.Stop()
	expired := false
	for id, done := range doneChans {
		if expired {
			select {
			case <-done:
			default:
				log.Printf("runner: abandoning worker for scenario %s after %v", id, r.joinTimeout)
			}
			continue
		}
		select {
		case <-done:
		case <-timer.C:
			expired = true
			log.Printf("runner: abandoning worker for scenario %s after %v", id, r.joinTimeout)
		}
	}
}

func (r *Runner) activeIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.active))
	for id := range r.active {
		ids = append(ids, id)
	}
	return ids
}

// runScenario is the worker for one scenario run
func (r *Runner) runScenario(scenarioID string, def *scenario.Definition, rs *runState) {
	defer close(rs.done)

	// Preload failures are recorded but do not prevent the run.
	var preloaded []string
	for _, name := range def.Plugins {
		if r.plugins.Load(name) {
			preloaded = append(preloaded, name)
		} else {
			r.addError(rs, fmt.Sprintf("failed to load plugin: %s", name))
		}
	}

	r.setStatus(rs, StatusRunning)

	fatal := false
	for i, step := range def.Steps {
		if !r.stepAllowed(rs) {
			break
		}

		if err := r.executeStep(scenarioID, rs, step); err != nil {
			r.addError(rs, fmt.Sprintf("error executing step %d: %v", i, err))
			r.db.LogError("runner", "step_execution_error",
				fmt.Sprintf("error executing step %d in scenario %s: %v", i, scenarioID, err))
			log.Printf("runner: error executing step %d in scenario %s: %v", i, scenarioID, err)
			fatal = true
			break
		}

		r.setStep(rs, i+1)
	}

	r.finish(scenarioID, def, rs, fatal, preloaded)
}

// stepAllowed reports whether the run may execute another step
func (r *Runner) stepAllowed(rs *runState) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return rs.state.Status == StatusStarting || rs.state.Status == StatusRunning
}

// executeStep dispatches one step by its type. A returned error is
// fatal to the run; recoverable failures (transport refusals, plugin
// action failures) are appended to the error list instead.
func (r *Runner) executeStep(scenarioID string, rs *runState, step scenario.Step) error {
	switch step.Type {
	case scenario.StepCANMessage:
		return r.executeCANMessage(scenarioID, rs, step)

	case scenario.StepPause:
		// Blocking sleep; cancellation granularity is the step boundary.
		time.Sleep(time.Duration(step.DurationSec * float64(time.Second)))
		return nil

	case scenario.StepPluginAction:
		result, err := r.plugins.ExecuteAction(step.Plugin, step.Action, step.Params)
		if err != nil || result == nil {
			r.addError(rs, fmt.Sprintf("plugin action %s.%s failed: %v", step.Plugin, step.Action, err))
		}
		return nil

	case scenario.StepVehicleControl:
		return r.vehicle.Apply(step.Control, step.Value)

	default:
		r.mu.Lock()
		handler, ok := r.handlers[step.Type]
		r.mu.Unlock()
		if !ok {
			return fmt.Errorf("no handler for step type %q", step.Type)
		}
		return handler(scenarioID, step)
	}
}

// executeCANMessage sends one frame and logs it
func (r *Runner) executeCANMessage(scenarioID string, rs *runState, step scenario.Step) error {
	id := uint32(step.ID)
	data := step.DataBytes()

	if !r.adapter.Send(id, data, step.Extended) {
		r.addError(rs, fmt.Sprintf("transport refused frame 0x%X", id))
	} else {
		msg := models.NewMessage(id, data, step.Extended, r.adapter.Name(), false)
		msg.ScenarioID = scenarioID
		r.db.LogCANMessage(msg)
	}

	if step.DelayMs > 0 {
		time.Sleep(time.Duration(step.DelayMs) * time.Millisecond)
	}
	return nil
}

// finish records the terminal status, reports it, and evicts the
// registry entry only after the worker is fully done with the state
func (r *Runner) finish(scenarioID string, def *scenario.Definition, rs *runState,
	fatal bool, preloaded []string) {

	r.mu.Lock()
	switch {
	case fatal:
		rs.state.Status = StatusError
	case rs.state.CurrentStep >= rs.state.TotalSteps && rs.state.Status == StatusRunning:
		rs.state.Status = StatusCompleted
	default:
		rs.state.Status = StatusStopped
	}
	rs.state.EndTime = time.Now().UTC()
	final := rs.state.clone()
	r.last[scenarioID] = final
	r.mu.Unlock()

	for _, name := range preloaded {
		r.plugins.Unload(name)
	}

	duration := final.EndTime.Sub(final.StartTime)
	r.db.LogEvent("scenario_end", scenarioID,
		fmt.Sprintf("Ended scenario %s: status=%s steps=%d/%d errors=%d duration=%s",
			def.Name, final.Status, final.CurrentStep, final.TotalSteps,
			len(final.Errors), duration.Round(time.Millisecond)))
	log.Printf("runner: scenario %s finished: status=%s steps=%d/%d errors=%d",
		scenarioID, final.Status, final.CurrentStep, final.TotalSteps, len(final.Errors))

	r.mu.Lock()
	delete(r.active, scenarioID)
	r.mu.Unlock()
}

func (r *Runner) setStatus(rs *runState, status Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	// A stop request observed between transitions must not be undone.
	if rs.state.Status == StatusStopping && status == StatusRunning {
		return
	}
	rs.state.Status = status
}

func (r *Runner) setStep(rs *runState, step int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rs.state.CurrentStep = step
}

func (r *Runner) addError(rs *runState, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rs.state.Errors = append(rs.state.Errors, ScenarioError{
		Time:    time.Now().UTC(),
		Message: message,
	})
}
