// Package actions executes server actions against host records.
package actions

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"reflect"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dukex/ruleflow/pkg/filter"
	"github.com/dukex/ruleflow/pkg/metrics"
	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/otelhelper"
	"github.com/dukex/ruleflow/pkg/record"
	"github.com/dukex/ruleflow/pkg/template"
)

const opExecute = "ExecuteAction"

// Evaluator runs inline code with the given bindings and returns its result.
type Evaluator interface {
	Run(ctx context.Context, code string, bindings map[string]any) (any, error)
}

// ActionSource resolves actions referenced by id or code. Lookups return
// (nil, nil) when nothing matches.
type ActionSource interface {
	GetByID(ctx context.Context, id string) (*models.ServerAction, error)
	GetByCode(ctx context.Context, code string) (*models.ServerAction, error)
}

type Executor struct {
	store     record.Store
	source    ActionSource
	evaluator Evaluator
	notifier  Notifier
	webhooks  *WebhookClient
	logger    *slog.Logger
	tracer    trace.Tracer
	metrics   *metrics.Metrics
}

type Option func(*Executor)

func WithStore(store record.Store) Option {
	return func(e *Executor) { e.store = store }
}

func WithActionSource(source ActionSource) Option {
	return func(e *Executor) { e.source = source }
}

func WithEvaluator(evaluator Evaluator) Option {
	return func(e *Executor) { e.evaluator = evaluator }
}

func WithNotifier(notifier Notifier) Option {
	return func(e *Executor) { e.notifier = notifier }
}

func WithHTTPClient(client *http.Client) Option {
	return func(e *Executor) { e.webhooks = NewWebhookClient(client, e.logger) }
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) { e.logger = logger.With("module", "action_executor") }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(e *Executor) { e.tracer = tracer }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

func NewExecutor(opts ...Option) *Executor {
	e := &Executor{
		evaluator: template.NewEvaluator(),
		logger:    slog.Default().With("module", "action_executor"),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.notifier == nil {
		e.notifier = NewLogNotifier(e.logger)
	}

	if e.webhooks == nil {
		e.webhooks = NewWebhookClient(nil, e.logger)
	}

	e.tracer = otelhelper.Tracer(e.tracer)

	return e
}

// Resolve finds the action a rule or transition points at, preferring id
// over code. It returns (nil, nil) when neither is set.
func (e *Executor) Resolve(ctx context.Context, id, code string) (*models.ServerAction, error) {
	if id == "" && code == "" {
		return nil, nil
	}

	if e.source == nil {
		return nil, models.NewConfigurationError(opExecute, "no action source configured")
	}

	var (
		action *models.ServerAction
		err    error
	)

	if id != "" {
		action, err = e.source.GetByID(ctx, id)
	} else {
		action, err = e.source.GetByCode(ctx, code)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load action: %w", err)
	}

	if action == nil {
		ref := id
		if ref == "" {
			ref = code
		}

		return nil, models.NewConfigurationError(opExecute, "action %q does not exist", ref)
	}

	return action, nil
}

// Execute runs action against rec. vars are exposed to "$" references,
// templates and inline code as the "context" binding. Every failure of the
// effect itself is reported as an action_failed error.
func (e *Executor) Execute(ctx context.Context, action *models.ServerAction, rec record.Record, vars map[string]any) (any, error) {
	if action == nil {
		return nil, models.NewConfigurationError(opExecute, "no action given")
	}

	if !action.Active {
		return nil, models.NewNotActiveError(opExecute, "action %q is not active", action.Code)
	}

	if _, ok := action.Spec.(models.ChainActions); ok {
		if err := detectCycle(ctx, e.source, action); err != nil {
			return nil, err
		}
	}

	return e.execute(ctx, action, rec, vars)
}

// RunCode evaluates inline code bound to rec and saves rec when the code
// changed any of its fields.
func (e *Executor) RunCode(ctx context.Context, code string, rec record.Record, vars map[string]any) (any, error) {
	if e.evaluator == nil {
		return nil, models.NewConfigurationError(opExecute, "no evaluator configured")
	}

	var before map[string]any
	if rec != nil {
		before = rec.Fields()
	}

	result, err := e.evaluate(ctx, code, rec, vars)
	if err != nil {
		return nil, models.NewActionFailedError(opExecute, err, "inline code failed")
	}

	if rec != nil && e.store != nil && !reflect.DeepEqual(before, rec.Fields()) {
		if err := e.store.Save(ctx, rec); err != nil {
			return nil, models.NewActionFailedError(opExecute, err, "failed to save %s %s", rec.Model(), rec.ID())
		}
	}

	return result, nil
}

func (e *Executor) evaluate(ctx context.Context, code string, rec record.Record, vars map[string]any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("evaluator panic: %v", r)
		}
	}()

	bindings := map[string]any{
		"context": vars,
	}
	if rec != nil {
		bindings["record"] = rec
	}

	return e.evaluator.Run(ctx, code, bindings)
}

func (e *Executor) execute(ctx context.Context, action *models.ServerAction, rec record.Record, vars map[string]any) (result any, err error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "actions.execute",
		attribute.String(otelhelper.ActionIDKey, action.ID),
		attribute.String(otelhelper.ActionCodeKey, action.Code),
		attribute.String(otelhelper.ActionKindKey, string(action.Kind())),
	)
	defer span.End()

	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = models.NewActionFailedError(opExecute, fmt.Errorf("panic: %v", r), "action %q", action.Code)
		}

		if err != nil {
			otelhelper.SetError(span, err)
		}

		e.metrics.ObserveAction(string(action.Kind()), started, err)
	}()

	logger := e.logger.With("action", action.Code, "kind", action.Kind())
	logger.DebugContext(ctx, "executing action")

	switch spec := action.Spec.(type) {
	case models.RunCode:
		return e.RunCode(ctx, spec.Code, rec, vars)
	case models.CallMethod:
		return e.callMethod(ctx, action, spec, rec, vars)
	case models.UpdateRecord:
		return e.updateRecord(ctx, action, spec, rec, vars)
	case models.CreateRecord:
		return e.createRecord(ctx, action, spec, rec, vars)
	case models.SendNotification:
		return e.sendNotification(ctx, action, spec, rec, vars)
	case models.CallWebhook:
		return e.callWebhook(ctx, action, spec, rec, vars)
	case models.ChainActions:
		return e.chain(ctx, action, spec, rec, vars)
	default:
		return nil, models.NewConfigurationError(opExecute, "action %q has unsupported kind %q", action.Code, action.Kind())
	}
}

func (e *Executor) requireStore(action *models.ServerAction) error {
	if e.store == nil {
		return models.NewConfigurationError(opExecute, "action %q needs a record store", action.Code)
	}

	return nil
}

func (e *Executor) callMethod(ctx context.Context, action *models.ServerAction, spec models.CallMethod, rec record.Record, vars map[string]any) (any, error) {
	if err := e.requireStore(action); err != nil {
		return nil, err
	}

	if rec == nil {
		return nil, models.NewActionFailedError(opExecute, nil, "action %q: no record to call %q on", action.Code, spec.Method)
	}

	args := make([]any, len(spec.Args))
	for i, arg := range spec.Args {
		args[i] = resolveValue(arg, rec, vars)
	}

	result, err := e.store.Call(ctx, rec, spec.Method, args)
	if err != nil {
		return nil, models.NewActionFailedError(opExecute, err, "action %q: method %q", action.Code, spec.Method)
	}

	return result, nil
}

func (e *Executor) updateRecord(ctx context.Context, action *models.ServerAction, spec models.UpdateRecord, rec record.Record, vars map[string]any) (any, error) {
	if err := e.requireStore(action); err != nil {
		return nil, err
	}

	if rec == nil {
		return nil, models.NewActionFailedError(opExecute, nil, "action %q: no record to update", action.Code)
	}

	values := resolveValues(spec.Values, rec, vars)

	for _, field := range slices.Sorted(maps.Keys(values)) {
		if err := rec.Set(field, values[field]); err != nil {
			return nil, models.NewActionFailedError(opExecute, err, "action %q: set %q", action.Code, field)
		}
	}

	if err := e.store.Save(ctx, rec); err != nil {
		return nil, models.NewActionFailedError(opExecute, err, "action %q: save %s %s", action.Code, rec.Model(), rec.ID())
	}

	return values, nil
}

func (e *Executor) createRecord(ctx context.Context, action *models.ServerAction, spec models.CreateRecord, rec record.Record, vars map[string]any) (any, error) {
	if err := e.requireStore(action); err != nil {
		return nil, err
	}

	created, err := e.store.Create(ctx, spec.Model, resolveValues(spec.Values, rec, vars))
	if err != nil {
		return nil, models.NewActionFailedError(opExecute, err, "action %q: create %s", action.Code, spec.Model)
	}

	return record.RefOf(created), nil
}

func (e *Executor) sendNotification(ctx context.Context, action *models.ServerAction, spec models.SendNotification, rec record.Record, vars map[string]any) (any, error) {
	data := templateData(rec, vars)

	subject, err := renderText(spec.Subject, data)
	if err != nil {
		return nil, models.NewActionFailedError(opExecute, err, "action %q: subject", action.Code)
	}

	body, err := renderText(spec.Body, data)
	if err != nil {
		return nil, models.NewActionFailedError(opExecute, err, "action %q: body", action.Code)
	}

	recipients := make([]string, 0, len(spec.Recipients))
	for _, r := range spec.Recipients {
		resolved := resolveValue(r, rec, vars)
		if resolved == nil {
			continue
		}

		recipients = append(recipients, fmt.Sprint(resolved))
	}

	notification := Notification{
		ActionCode: action.Code,
		Channel:    spec.Channel,
		Recipients: recipients,
		Subject:    subject,
		Body:       body,
		Template:   spec.Template,
	}
	if rec != nil {
		notification.Record = record.RefOf(rec)
	}

	if err := e.notifier.Notify(ctx, notification); err != nil {
		return nil, models.NewActionFailedError(opExecute, err, "action %q: notify", action.Code)
	}

	return notification, nil
}

func (e *Executor) callWebhook(ctx context.Context, action *models.ServerAction, spec models.CallWebhook, rec record.Record, vars map[string]any) (any, error) {
	data := templateData(rec, vars)

	payload := resolveValues(spec.Payload, rec, vars)

	resp, err := e.webhooks.Call(ctx, spec, payload, data)
	if err != nil {
		return nil, models.NewActionFailedError(opExecute, err, "action %q: webhook", action.Code)
	}

	return resp, nil
}

func (e *Executor) chain(ctx context.Context, action *models.ServerAction, spec models.ChainActions, rec record.Record, vars map[string]any) (any, error) {
	if e.source == nil {
		return nil, models.NewConfigurationError(opExecute, "chain %q needs an action source", action.Code)
	}

	results := make([]any, 0, len(spec.ChildIDs))

	for _, childID := range spec.ChildIDs {
		child, err := e.source.GetByID(ctx, childID)
		if err != nil {
			return results, models.NewActionFailedError(opExecute, err, "chain %q: load child %q", action.Code, childID)
		}

		if child == nil {
			return results, models.NewConfigurationError(opExecute, "chain %q: child action %q does not exist", action.Code, childID)
		}

		if !child.Active {
			e.logger.DebugContext(ctx, "skipping inactive chain child", "chain", action.Code, "child", child.Code)

			continue
		}

		result, err := e.execute(ctx, child, rec, vars)
		if err != nil {
			return results, models.NewActionFailedError(opExecute, err, "chain %q stopped at child %q", action.Code, child.Code)
		}

		results = append(results, result)
	}

	return results, nil
}

func templateData(rec record.Record, vars map[string]any) map[string]any {
	data := make(map[string]any, len(vars)+4)
	maps.Copy(data, vars)
	data["context"] = vars

	if rec != nil {
		data["record"] = rec.Fields()
		data["model"] = rec.Model()
		data["id"] = rec.ID()
	}

	return data
}

func resolveValues(values map[string]any, rec record.Record, vars map[string]any) map[string]any {
	if values == nil {
		return nil
	}

	out := make(map[string]any, len(values))
	for k, v := range values {
		out[k] = resolveValue(v, rec, vars)
	}

	return out
}

// resolveValue substitutes "$" references and renders "{{ }}" templates,
// descending into maps and slices.
func resolveValue(value any, rec record.Record, vars map[string]any) any {
	switch v := value.(type) {
	case string:
		if template.NeedsTemplating(v) {
			rendered, err := template.RenderString(v, templateData(rec, vars))
			if err != nil {
				return v
			}

			return rendered
		}

		var fields filter.Fields
		if rec != nil {
			fields = rec
		}

		return filter.Resolve(v, fields, filter.Vars(vars))
	case map[string]any:
		return resolveValues(v, rec, vars)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = resolveValue(item, rec, vars)
		}

		return out
	default:
		return value
	}
}
