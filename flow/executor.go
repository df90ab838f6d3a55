package flow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/causeway-data/causeway/errors"
	"github.com/causeway-data/causeway/merge"
	"github.com/causeway-data/causeway/stamp"
	"github.com/causeway-data/causeway/store"
	"github.com/causeway-data/causeway/tabular"
)

// DefaultWorkers bounds step concurrency when Options.Workers is unset.
const DefaultWorkers = 4

// Options configure an Executor.
type Options struct {
	// Workers is the number of steps allowed to run at once.
	Workers int

	// Overwrite is the put default for steps that do not set their own
	// overwrite flag.
	Overwrite bool

	// Reports, when set, persists every run's report under the hub root.
	Reports *ReportWriter
}

// Executor runs step sets against the store. Register all logic before
// calling Run; the logic table is read concurrently by workers and is not
// guarded for concurrent registration.
type Executor struct {
	store  *store.Store
	opts   Options
	logics map[string]Logic
	logger *zap.SugaredLogger
}

// NewExecutor creates an executor over the store.
func NewExecutor(st *store.Store, opts Options, logger *zap.SugaredLogger) *Executor {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Executor{
		store:  st,
		opts:   opts,
		logics: make(map[string]Logic),
		logger: logger,
	}
}

// RegisterLogic binds a logic function to a name steps can reference.
func (e *Executor) RegisterLogic(name string, fn Logic) error {
	if name == "" {
		return errors.New("logic name must not be blank")
	}
	if fn == nil {
		return errors.Newf("logic %q is nil", name)
	}
	if _, dup := e.logics[name]; dup {
		return errors.Newf("logic %q already registered", name)
	}
	e.logics[name] = fn
	return nil
}

// Run executes the steps at the given run stamp and returns the run report.
// Registration problems (invalid steps, unknown logic, cycles) fail the run
// before any step starts. Once execution begins, a failing step never stops
// independent steps: its transitive dependents are skipped with the root
// cause named, everything else proceeds, and the report carries the
// per-step outcomes.
func (e *Executor) Run(ctx context.Context, runStamp stamp.Stamp, steps []Step) (*RunReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "run canceled before start")
	}
	if runStamp.IsZero() {
		return nil, errors.New("run stamp must not be zero")
	}
	if len(steps) == 0 {
		return nil, errors.New("nothing to run: the step set is empty")
	}
	if err := ValidateSteps(steps); err != nil {
		return nil, err
	}
	if err := e.preflight(steps); err != nil {
		return nil, err
	}
	nodes, err := buildGraph(steps)
	if err != nil {
		return nil, err
	}

	report := &RunReport{
		RunID:     uuid.NewString(),
		Stamp:     runStamp,
		StartedAt: time.Now().UTC(),
	}
	e.logger.Infow("run starting",
		"run_id", report.RunID,
		"stamp", runStamp.String(),
		"steps", len(nodes),
	)

	ready := make(chan *node, len(nodes))
	var wg sync.WaitGroup
	wg.Add(len(nodes))
	for _, n := range nodes {
		if n.remaining.Load() == 0 {
			ready <- n
		}
	}

	workers := e.opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	for i := 0; i < workers; i++ {
		go e.worker(ctx, ready, &wg, runStamp)
	}
	wg.Wait()
	close(ready)

	report.Steps = make([]StepOutcome, 0, len(nodes))
	for _, n := range nodes {
		report.Steps = append(report.Steps, n.getOutcome())
	}
	report.Verdict = verdictOf(report.Steps)
	report.FinishedAt = time.Now().UTC()

	e.logger.Infow("run finished",
		"run_id", report.RunID,
		"stamp", runStamp.String(),
		"verdict", report.Verdict,
	)

	if e.opts.Reports != nil {
		if _, err := e.opts.Reports.Write(report); err != nil {
			return report, err
		}
	}
	return report, nil
}

// preflight rejects runs whose steps reference logic or type declarations
// that cannot work, before anything executes.
func (e *Executor) preflight(steps []Step) error {
	registry := e.store.Taxonomy().Registry()
	for _, st := range steps {
		name := st.LogicName()
		if _, ok := e.logics[name]; !ok {
			return errors.Newf("step %q references unregistered logic %q", st.Name, name)
		}
		if st.MergePrior {
			def, err := registry.Type(st.Output.Object.TypeName)
			if err != nil {
				return err
			}
			if len(def.RowKey) == 0 {
				return errors.Newf("step %q sets merge_prior but type %q declares no row_key",
					st.Name, def.Name)
			}
		}
	}
	return nil
}

func (e *Executor) worker(ctx context.Context, ready chan *node, wg *sync.WaitGroup, runStamp stamp.Stamp) {
	for n := range ready {
		if ctx.Err() != nil {
			e.finishSkipped(n, wg, "run canceled")
			continue
		}
		if !n.claim() {
			continue
		}
		out := e.executeStep(ctx, n.step, runStamp)
		n.setOutcome(out)
		wg.Done()

		if out.Status == StatusSucceeded {
			for _, d := range n.dependents {
				if d.remaining.Add(-1) == 0 {
					ready <- d
				}
			}
			continue
		}
		reason := fmt.Sprintf("upstream step %q failed", n.step.Name)
		if out.Status == StatusSkipped {
			reason = fmt.Sprintf("upstream step %q was skipped", n.step.Name)
		}
		e.skipDependents(n, wg, reason)
	}
}

// finishSkipped settles a node without executing it.
func (e *Executor) finishSkipped(n *node, wg *sync.WaitGroup, reason string) {
	if !n.claim() {
		return
	}
	e.logger.Warnw("step skipped", "step", n.step.Name, "reason", reason)
	n.setOutcome(StepOutcome{Step: n.step.Name, Status: StatusSkipped, Reason: reason})
	wg.Done()
	e.skipDependents(n, wg, fmt.Sprintf("upstream step %q was skipped", n.step.Name))
}

// skipDependents walks everything downstream of n and settles each node as
// skipped, always naming the original root cause. A dependent that was
// already claimed settles through its own path and keeps the walk out of
// its subtree.
func (e *Executor) skipDependents(n *node, wg *sync.WaitGroup, reason string) {
	for _, d := range n.dependents {
		if !d.claim() {
			continue
		}
		e.logger.Warnw("step skipped", "step", d.step.Name, "reason", reason)
		d.setOutcome(StepOutcome{Step: d.step.Name, Status: StatusSkipped, Reason: reason})
		wg.Done()
		e.skipDependents(d, wg, reason)
	}
}

// executeStep resolves inputs, runs the logic, optionally merges prior
// annotations, and puts the output at the run stamp.
func (e *Executor) executeStep(ctx context.Context, st *Step, runStamp stamp.Stamp) StepOutcome {
	started := time.Now()
	out := StepOutcome{Step: st.Name}
	fail := func(err error) StepOutcome {
		out.Status = StatusFailed
		out.Error = err.Error()
		out.DurationMS = time.Since(started).Milliseconds()
		e.logger.Errorw("step failed", "step", st.Name, "error", err)
		return out
	}

	logic := e.logics[st.LogicName()]

	inputs := make(Inputs, len(st.Inputs))
	for _, in := range st.Inputs {
		art, target, err := e.resolveInput(ctx, in, runStamp)
		if err != nil {
			if errors.IsNotFound(err) {
				uerr := errors.WithStack(&errors.UnresolvedInputError{
					Step:      st.Name,
					Input:     in.Name,
					TypeName:  in.Object.TypeName,
					LogicalID: in.Object.LogicalID,
					Stamp:     target.String(),
				})
				if st.Optional {
					out.Status = StatusSkipped
					out.Reason = uerr.Error()
					out.DurationMS = time.Since(started).Milliseconds()
					e.logger.Infow("optional step skipped", "step", st.Name, "input", in.Name)
					return out
				}
				return fail(uerr)
			}
			return fail(err)
		}
		inputs[in.Name] = art
	}

	tbl, err := logic(ctx, inputs, runStamp)
	if err != nil {
		return fail(errors.Wrapf(err, "step %q logic", st.Name))
	}
	if tbl == nil {
		return fail(errors.Newf("step %q logic returned no table", st.Name))
	}

	if st.MergePrior {
		merged, warnings, err := e.mergePrior(ctx, st, runStamp, tbl)
		if err != nil {
			return fail(err)
		}
		tbl = merged
		out.Warnings = append(out.Warnings, warnings...)
	}

	overwrite := e.opts.Overwrite
	if st.Overwrite != nil {
		overwrite = *st.Overwrite
	}
	art, err := e.store.Put(ctx, st.Output.Node, st.Output.Object, runStamp, tbl, store.PutOptions{Overwrite: overwrite})
	if err != nil {
		return fail(err)
	}

	out.Status = StatusSucceeded
	out.Output = string(art.Address)
	out.DurationMS = time.Since(started).Milliseconds()
	e.logger.Infow("step succeeded",
		"step", st.Name,
		"output", art.Address,
		"duration_ms", out.DurationMS,
	)
	return out
}

// resolveInput fetches the artifact a binding names, along with the stamp
// the binding resolved to. Negative offsets take the latest version at or
// before runStamp+offset; offset 0 takes exactly the run stamp, which for
// in-run dependencies is the producer's fresh output.
func (e *Executor) resolveInput(ctx context.Context, in Binding, runStamp stamp.Stamp) (*store.Artifact, stamp.Stamp, error) {
	if in.Offset < 0 {
		target := runStamp.AddDays(in.Offset)
		art, err := e.store.GetLatestAtOrBefore(ctx, in.Node, in.Object, target)
		return art, target, err
	}
	art, err := e.store.Get(ctx, in.Node, in.Object, runStamp)
	return art, runStamp, err
}

// mergePrior carries annotations from the step's latest strictly-earlier
// output onto the fresh table. The first run of a step has no prior; that
// is not an error.
func (e *Executor) mergePrior(ctx context.Context, st *Step, runStamp stamp.Stamp, fresh *tabular.Table) (*tabular.Table, []string, error) {
	prior, err := e.store.GetLatestAtOrBefore(ctx, st.Output.Node, st.Output.Object, runStamp.AddDays(-1))
	if err != nil {
		if errors.IsNotFound(err) {
			e.logger.Debugw("no prior artifact to merge", "step", st.Name, "object", st.Output.Object)
			return fresh, nil, nil
		}
		return nil, nil, errors.Wrapf(err, "step %q loading prior output", st.Name)
	}

	def, err := e.store.Taxonomy().Registry().Type(st.Output.Object.TypeName)
	if err != nil {
		return nil, nil, err
	}
	merged, report, err := merge.Forward(prior.Table, fresh, merge.Spec{
		RowKey:    def.RowKey,
		Annotated: def.AnnotatedColumns,
		Policy:    def.AnnotationPolicy,
	})
	if err != nil {
		return nil, nil, errors.Wrapf(err, "step %q merging prior %s", st.Name, prior.Stamp)
	}

	var warnings []string
	for _, orphan := range report.Orphans {
		warnings = append(warnings, orphan.String())
	}
	if report.Carried > 0 {
		e.logger.Debugw("annotations carried forward",
			"step", st.Name, "carried", report.Carried, "prior", prior.Stamp.String())
	}
	return merged, warnings, nil
}
