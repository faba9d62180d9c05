// Package automation runs automation rules on record lifecycle events, on
// time conditions and on demand.
package automation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dukex/ruleflow/pkg/actions"
	"github.com/dukex/ruleflow/pkg/eventbus"
	"github.com/dukex/ruleflow/pkg/events"
	"github.com/dukex/ruleflow/pkg/filter"
	"github.com/dukex/ruleflow/pkg/lock"
	"github.com/dukex/ruleflow/pkg/metrics"
	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/otelhelper"
	"github.com/dukex/ruleflow/pkg/persistence"
	"github.com/dukex/ruleflow/pkg/record"
)

const (
	opRunRules     = "RunRules"
	opRunTimeBased = "RunTimeBased"
	opRunManual    = "RunManual"

	defaultLockTTL = 10 * time.Minute
)

type Engine struct {
	rules     persistence.RuleRepository
	actions   persistence.ActionRepository
	store     record.Store
	executor  *actions.Executor
	locker    lock.Locker
	publisher eventbus.EventPublisher
	idgen     func() string
	logger    *slog.Logger
	tracer    trace.Tracer
	metrics   *metrics.Metrics
	lockTTL   time.Duration
	now       func() time.Time
}

type Option func(*Engine)

// WithExecutor replaces the executor built from the engine's store and
// action repository.
func WithExecutor(executor *actions.Executor) Option {
	return func(e *Engine) { e.executor = executor }
}

func WithLocker(locker lock.Locker) Option {
	return func(e *Engine) { e.locker = locker }
}

// WithEventBus publishes rule.executed and rule.failed events on bus.
func WithEventBus(bus eventbus.EventBus) Option {
	return func(e *Engine) {
		e.publisher = bus
		e.idgen = bus.GenerateID
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger.With("module", "automation") }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) { e.tracer = tracer }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLockTTL bounds how long a crashed scheduler can hold a rule lock.
func WithLockTTL(ttl time.Duration) Option {
	return func(e *Engine) { e.lockTTL = ttl }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(
	rules persistence.RuleRepository,
	actionRepo persistence.ActionRepository,
	store record.Store,
	opts ...Option,
) *Engine {
	e := &Engine{
		rules:   rules,
		actions: actionRepo,
		store:   store,
		logger:  slog.Default().With("module", "automation"),
		lockTTL: defaultLockTTL,
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.executor == nil {
		e.executor = actions.NewExecutor(
			actions.WithStore(store),
			actions.WithActionSource(actionRepo),
			actions.WithLogger(e.logger),
			actions.WithTracer(e.tracer),
			actions.WithMetrics(e.metrics),
		)
	}

	if e.locker == nil {
		e.locker = lock.NewLocal()
	}

	e.tracer = otelhelper.Tracer(e.tracer)

	return e
}

// OnCreate runs the active on_create rules against freshly created records.
func (e *Engine) OnCreate(ctx context.Context, records []record.Record, actor models.Actor, vars map[string]any) *Report {
	return e.runLifecycle(ctx, models.TriggerOnCreate, records, nil, actor, vars)
}

// OnWrite runs the active on_write rules. records hold the written values;
// changes carries, per record, the old and new value of every written field.
// Domain is evaluated with the new values, BeforeDomain with the old ones.
func (e *Engine) OnWrite(
	ctx context.Context,
	records []record.Record,
	changes Changes,
	actor models.Actor,
	vars map[string]any,
) *Report {
	return e.runLifecycle(ctx, models.TriggerOnWrite, records, changes, actor, vars)
}

// OnDelete runs the active on_delete rules before records are removed.
func (e *Engine) OnDelete(ctx context.Context, records []record.Record, actor models.Actor, vars map[string]any) *Report {
	return e.runLifecycle(ctx, models.TriggerOnDelete, records, nil, actor, vars)
}

func (e *Engine) runLifecycle(
	ctx context.Context,
	trigger models.Trigger,
	records []record.Record,
	changes Changes,
	actor models.Actor,
	vars map[string]any,
) *Report {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "automation.lifecycle",
		attribute.String(otelhelper.TriggerKey, string(trigger)),
		attribute.Int(otelhelper.RecordCountKey, len(records)),
	)
	defer span.End()

	report := &Report{Trigger: trigger}
	cache := e.newCache()

	for _, group := range groupByModel(records) {
		rules, err := cache.activeRules(ctx, group.model, trigger)
		if err != nil {
			e.logger.ErrorContext(ctx, "failed to load rules", "model", group.model, "trigger", trigger, "error", err)
			report.Failures = append(report.Failures, Failure{Kind: models.KindOf(err), Err: err})

			continue
		}

		views := make([]writeView, len(group.records))
		for i, rec := range group.records {
			views[i] = newWriteView(rec, changes.Of(rec), actor, vars)
		}

		for _, rule := range rules {
			for _, view := range views {
				if !filter.Matches(rule.Domain, view.after, view.bindings) {
					continue
				}

				if trigger == models.TriggerOnWrite && !rule.BeforeDomain.IsEmpty() {
					if !filter.Matches(rule.BeforeDomain, view.before, view.bindings) {
						continue
					}
				}

				e.apply(ctx, cache, rule, view.rec, view.bindings, report)
			}
		}
	}

	if !report.OK() {
		otelhelper.SetError(span, report.Err())
	}

	e.logger.DebugContext(ctx, "lifecycle rules done",
		"trigger", trigger,
		"records", len(records),
		"executions", len(report.Executions),
		"failures", len(report.Failures),
	)

	return report
}

// RunTimeBased processes every active on_time rule once for now. Each rule
// runs under its own lock; a rule whose lock is held elsewhere is skipped.
// The error is only set when the rules themselves could not be listed.
func (e *Engine) RunTimeBased(ctx context.Context, now time.Time) ([]RuleRunResult, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "automation.time_based")
	defer span.End()

	rules, err := e.rules.List(ctx, persistence.RuleFilter{Trigger: models.TriggerOnTime, ActiveOnly: true})
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("%s: failed to list rules: %w", opRunTimeBased, err)
	}

	models.SortRules(rules)

	cache := e.newCache()
	results := make([]RuleRunResult, 0, len(rules))

	for _, rule := range rules {
		result := e.runTimeRule(ctx, cache, rule, now)
		e.metrics.ObserveTimeBasedRun(rule.Code, result.Status)

		logger := e.logger.With("rule", rule.Code, "status", result.Status)
		switch result.Status {
		case StatusFailed:
			logger.WarnContext(ctx, "time based rule failed", "reason", result.Reason, "failures", len(result.Failures))
		case StatusSkipped:
			logger.DebugContext(ctx, "time based rule skipped", "reason", result.Reason)
		default:
			logger.InfoContext(ctx, "time based rule ran", "processed", result.Processed, "advanced", result.Advanced)
		}

		results = append(results, result)
	}

	return results, nil
}

func (e *Engine) runTimeRule(ctx context.Context, cache *definitionCache, rule *models.AutomationRule, now time.Time) RuleRunResult {
	result := RuleRunResult{RuleID: rule.ID, RuleCode: rule.Code}

	if rule.TimeField == "" {
		result.Status, result.Reason = StatusSkipped, "rule has no time field"

		return result
	}

	unlock, ok, err := e.locker.TryLock(ctx, "rule:"+rule.ID, e.lockTTL)
	if err != nil {
		result.Status, result.Reason = StatusFailed, err.Error()

		return result
	}

	if !ok {
		result.Status, result.Reason = StatusSkipped, "rule is locked by another run"

		return result
	}

	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			e.logger.WarnContext(ctx, "failed to release rule lock", "rule", rule.Code, "error", err)
		}
	}()

	// The watermark may have moved while waiting for the lock.
	fresh, err := e.rules.GetByID(ctx, rule.ID)
	if err != nil {
		result.Status, result.Reason = StatusFailed, err.Error()

		return result
	}

	if fresh == nil || !fresh.Active {
		result.Status, result.Reason = StatusSkipped, "rule was deleted or deactivated"

		return result
	}

	rule = fresh

	target := now.Add(-time.Duration(rule.TimeDelta) * time.Minute)
	window := models.Domain{{Field: rule.TimeField, Operator: models.OpLessEqual, Value: target}}

	if rule.LastRun != nil {
		window = append(window, models.Condition{Field: rule.TimeField, Operator: models.OpGreater, Value: *rule.LastRun})
	}

	limit := rule.RecordLimit()

	candidates, err := e.store.Query(ctx, rule.ModelName, record.Query{
		Domain:  window,
		OrderBy: rule.TimeField,
		Limit:   limit,
	})
	if err != nil {
		result.Status, result.Reason = StatusFailed, err.Error()

		return result
	}

	watermark := now

	if len(candidates) == limit {
		candidates, watermark, err = e.completeBoundary(ctx, rule, candidates, now)
		if err != nil {
			result.Status, result.Reason = StatusFailed, err.Error()

			return result
		}
	}

	bindings := ruleBindings(models.Actor{}, map[string]any{
		"now":         now,
		"target_time": target,
		"last_run":    rule.LastRun,
	}, nil)

	report := &Report{Trigger: models.TriggerOnTime}

	for _, rec := range candidates {
		if !filter.Matches(rule.Domain, rec, bindings) {
			continue
		}

		result.Processed++
		e.apply(ctx, cache, rule, rec, bindings, report)
	}

	result.Failures = report.Failures

	if !report.OK() {
		result.Status, result.Reason = StatusFailed, "not every record succeeded, watermark kept"

		return result
	}

	if err := e.rules.UpdateLastRun(ctx, rule.ID, watermark); err != nil {
		result.Status, result.Reason = StatusFailed, "failed to advance watermark: "+err.Error()

		return result
	}

	result.Status, result.Advanced = StatusOK, true

	return result
}

// completeBoundary handles a batch cut at the record limit. The watermark
// becomes the latest time value of the batch, and every record sharing that
// value is pulled into the batch: the next run only selects strictly later
// records, so a tie left behind would never be seen again.
func (e *Engine) completeBoundary(
	ctx context.Context,
	rule *models.AutomationRule,
	batch []record.Record,
	now time.Time,
) ([]record.Record, time.Time, error) {
	var (
		boundary time.Time
		found    bool
	)

	for _, rec := range batch {
		v, ok := rec.Get(rule.TimeField)
		if !ok {
			continue
		}

		t, ok := asTime(v)
		if !ok {
			continue
		}

		if !found || t.After(boundary) {
			boundary, found = t, true
		}
	}

	if !found {
		e.logger.WarnContext(ctx, "capped batch has no readable time values, advancing to now", "rule", rule.Code)

		return batch, now, nil
	}

	ties, err := e.store.Query(ctx, rule.ModelName, record.Query{
		Domain: models.Domain{
			{Field: rule.TimeField, Operator: models.OpGreaterEqual, Value: boundary},
			{Field: rule.TimeField, Operator: models.OpLessEqual, Value: boundary},
		},
	})
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to load records at %s: %w", boundary.Format(time.RFC3339Nano), err)
	}

	seen := make(map[string]struct{}, len(batch))
	for _, rec := range batch {
		seen[rec.ID()] = struct{}{}
	}

	for _, rec := range ties {
		if _, ok := seen[rec.ID()]; ok {
			continue
		}

		batch = append(batch, rec)
	}

	if extra := len(batch) - rule.RecordLimit(); extra > 0 {
		e.logger.DebugContext(ctx, "capped batch extended to its boundary time", "rule", rule.Code, "extra", extra)
	}

	return batch, boundary, nil
}

// RunManual executes a manual rule on records on demand.
func (e *Engine) RunManual(
	ctx context.Context,
	ruleCode string,
	records []record.Record,
	actor models.Actor,
	vars map[string]any,
) (*Report, error) {
	rule, err := e.rules.GetByCode(ctx, ruleCode)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to load rule %q: %w", opRunManual, ruleCode, err)
	}

	if rule == nil {
		return nil, models.NewNotFoundError(opRunManual, "rule %q does not exist", ruleCode)
	}

	if rule.Trigger != models.TriggerManual {
		return nil, models.NewConfigurationError(opRunManual, "rule %q has trigger %s, not manual", ruleCode, rule.Trigger)
	}

	if !rule.Active {
		return nil, models.NewNotActiveError(opRunManual, "rule %q is not active", ruleCode)
	}

	report := &Report{Trigger: models.TriggerManual}
	cache := e.newCache()
	bindings := ruleBindings(actor, vars, nil)

	for _, rec := range records {
		if rec.Model() != rule.ModelName {
			err := models.NewConfigurationError(opRunManual, "rule %q targets %s, got %s", rule.Code, rule.ModelName, rec.Model())
			report.Failures = append(report.Failures, Failure{
				RuleID: rule.ID, RuleCode: rule.Code, Record: record.RefOf(rec), Kind: models.KindConfiguration, Err: err,
			})

			continue
		}

		if !filter.Matches(rule.Domain, rec, bindings) {
			continue
		}

		e.apply(ctx, cache, rule, rec, bindings, report)
	}

	return report, nil
}

// apply runs rule's effect on rec and records the outcome in report.
func (e *Engine) apply(
	ctx context.Context,
	cache *definitionCache,
	rule *models.AutomationRule,
	rec record.Record,
	bindings filter.Vars,
	report *Report,
) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "automation.rule",
		attribute.String(otelhelper.RuleIDKey, rule.ID),
		attribute.String(otelhelper.RuleCodeKey, rule.Code),
		attribute.String(otelhelper.TriggerKey, string(rule.Trigger)),
		attribute.String(otelhelper.ModelKey, rec.Model()),
		attribute.String(otelhelper.RecordIDKey, rec.ID()),
	)
	defer span.End()

	ref := record.RefOf(rec)

	result, err := e.runRule(ctx, cache, rule, rec, bindings)
	e.metrics.ObserveRule(rule.Code, string(rule.Trigger), err)

	if err != nil {
		otelhelper.SetError(span, err)

		kind := models.KindOf(err)
		if kind == "" {
			kind = models.KindActionFailed
		}

		e.logger.WarnContext(ctx, "rule failed", "rule", rule.Code, "model", ref.Model, "record", ref.ID, "error", err)
		report.Failures = append(report.Failures, Failure{
			RuleID:   rule.ID,
			RuleCode: rule.Code,
			Record:   ref,
			Kind:     kind,
			Err:      err,
		})

		e.publish(ctx, ref, events.RuleFailed{
			BaseEvent: e.baseEvent(events.RuleFailedEvent),
			RuleID:    rule.ID,
			RuleCode:  rule.Code,
			Trigger:   string(rule.Trigger),
			ModelName: ref.Model,
			RecordID:  ref.ID,
			Kind:      string(kind),
			Error:     err.Error(),
		})

		return
	}

	report.Executions = append(report.Executions, Execution{
		RuleID:   rule.ID,
		RuleCode: rule.Code,
		Record:   ref,
		Result:   result,
	})

	e.publish(ctx, ref, events.RuleExecuted{
		BaseEvent: e.baseEvent(events.RuleExecutedEvent),
		RuleID:    rule.ID,
		RuleCode:  rule.Code,
		Trigger:   string(rule.Trigger),
		ModelName: ref.Model,
		RecordID:  ref.ID,
		Result:    map[string]any{"result": result},
	})
}

func (e *Engine) runRule(
	ctx context.Context,
	cache *definitionCache,
	rule *models.AutomationRule,
	rec record.Record,
	bindings filter.Vars,
) (any, error) {
	if rule.InlineCode != "" {
		return e.executor.RunCode(ctx, rule.InlineCode, rec, bindings)
	}

	action, err := cache.action(ctx, rule)
	if err != nil {
		return nil, err
	}

	if action == nil {
		return nil, models.NewConfigurationError(opRunRules, "rule %q has no action or inline code", rule.Code)
	}

	return e.executor.Execute(ctx, action, rec, bindings)
}

func (e *Engine) baseEvent(t events.EventType) events.BaseEvent {
	id := ""
	if e.idgen != nil {
		id = e.idgen()
	}

	return events.NewBaseEvent(id, t)
}

func (e *Engine) publish(ctx context.Context, ref record.Ref, event eventbus.Event) {
	if e.publisher == nil {
		return
	}

	if err := e.publisher.Publish(ctx, ref.Model+":"+ref.ID, event); err != nil {
		e.logger.WarnContext(ctx, "failed to publish event", "event_type", event.GetType(), "error", err)
	}
}

type modelGroup struct {
	model   string
	records []record.Record
}

// groupByModel splits a batch per model, keeping first-seen model order.
func groupByModel(records []record.Record) []modelGroup {
	var groups []modelGroup

	index := make(map[string]int)

	for _, rec := range records {
		i, ok := index[rec.Model()]
		if !ok {
			i = len(groups)
			index[rec.Model()] = i
			groups = append(groups, modelGroup{model: rec.Model()})
		}

		groups[i].records = append(groups[i].records, rec)
	}

	return groups
}

// writeView is one record of a lifecycle batch with the values its domains
// are evaluated against.
type writeView struct {
	rec      record.Record
	before   filter.Fields
	after    filter.Fields
	bindings filter.Vars
}

func newWriteView(rec record.Record, changes map[string]Change, actor models.Actor, vars map[string]any) writeView {
	view := writeView{
		rec:      rec,
		before:   rec,
		after:    rec,
		bindings: ruleBindings(actor, vars, changes),
	}

	if len(changes) == 0 {
		return view
	}

	oldValues := make(map[string]any, len(changes))
	newValues := make(map[string]any, len(changes))

	for field, change := range changes {
		oldValues[field] = change.Old
		newValues[field] = change.New
	}

	view.before = record.Overlay{Record: rec, Values: oldValues}
	view.after = record.Overlay{Record: rec, Values: newValues}

	return view
}

// ruleBindings builds the variables visible to domains, templates and
// inline code: the caller's vars plus "user" and, for writes, "changes".
func ruleBindings(actor models.Actor, vars map[string]any, changes map[string]Change) filter.Vars {
	bindings := make(filter.Vars, len(vars)+2)
	for k, v := range vars {
		bindings[k] = v
	}

	if _, ok := bindings["user"]; !ok && actor.ID != "" {
		bindings["user"] = actor
	}

	if len(changes) > 0 {
		fields := make(map[string]any, len(changes))
		for field, change := range changes {
			fields[field] = map[string]any{"old": change.Old, "new": change.New}
		}

		bindings["changes"] = fields
	}

	return bindings
}
