package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/spf13/cobra"

	"github.com/nimburion/entitykit/pkg/config"
	"github.com/nimburion/entitykit/pkg/eventbus"
	"github.com/nimburion/entitykit/pkg/eventbus/kafka"
	"github.com/nimburion/entitykit/pkg/fieldtype"
	"github.com/nimburion/entitykit/pkg/observability/logger"
	"github.com/nimburion/entitykit/pkg/observability/metrics"
	"github.com/nimburion/entitykit/pkg/observability/tracing"
	"github.com/nimburion/entitykit/pkg/persistence"
	"github.com/nimburion/entitykit/pkg/persistence/dao/memory"
	"github.com/nimburion/entitykit/pkg/resilience"
	"github.com/nimburion/entitykit/pkg/translation"
	"github.com/nimburion/entitykit/pkg/version"
)

const partEntity = "part"

// part is the client representation of the demo entity.
type part struct {
	ID         *int64     `json:"id,omitempty" yaml:"id,omitempty"`
	Name       *string    `json:"name,omitempty" yaml:"name,omitempty"`
	Stock      *int64     `json:"stock,omitempty" yaml:"stock,omitempty"`
	Tags       []string   `json:"tags,omitempty" yaml:"tags,omitempty"`
	Created    *time.Time `json:"created,omitempty" yaml:"created,omitempty"`
	CreatedBy  *string    `json:"createdBy,omitempty" yaml:"createdBy,omitempty"`
	Modified   *time.Time `json:"modified,omitempty" yaml:"modified,omitempty"`
	ModifiedBy *string    `json:"modifiedBy,omitempty" yaml:"modifiedBy,omitempty"`
}

// partRecord is the storage representation; tags are kept comma separated.
type partRecord struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Stock      int64     `json:"stock"`
	Tags       string    `json:"tags"`
	Created    time.Time `json:"created"`
	CreatedBy  string    `json:"createdBy"`
	Modified   time.Time `json:"modified"`
	ModifiedBy string    `json:"modifiedBy"`
}

func (r *partRecord) GetID() int64 { return r.ID }

var partFields = translation.MustTypeMapper(func() *part { return &part{} },
	translation.NewField("id", fieldtype.Int, func(p *part) *int64 { return p.ID }, func(p *part, v *int64) { p.ID = v }),
	translation.NewField("name", fieldtype.String, func(p *part) *string { return p.Name }, func(p *part, v *string) { p.Name = v }),
	translation.NewField("stock", fieldtype.Int, func(p *part) *int64 { return p.Stock }, func(p *part, v *int64) { p.Stock = v }),
	translation.NewField("tags", fieldtype.Any, func(p *part) []string { return p.Tags }, func(p *part, v []string) { p.Tags = v }),
	translation.NewField("created", fieldtype.Time, func(p *part) *time.Time { return p.Created }, func(p *part, v *time.Time) { p.Created = v }),
	translation.NewField("createdBy", fieldtype.String, func(p *part) *string { return p.CreatedBy }, func(p *part, v *string) { p.CreatedBy = v }),
	translation.NewField("modified", fieldtype.Time, func(p *part) *time.Time { return p.Modified }, func(p *part, v *time.Time) { p.Modified = v }),
	translation.NewField("modifiedBy", fieldtype.String, func(p *part) *string { return p.ModifiedBy }, func(p *part, v *string) { p.ModifiedBy = v }),
)

var partRecordFields = translation.MustTypeMapper(func() *partRecord { return &partRecord{} },
	translation.NewField("id", fieldtype.Int, func(r *partRecord) int64 { return r.ID }, func(r *partRecord, v int64) { r.ID = v }),
	translation.NewField("name", fieldtype.String, func(r *partRecord) string { return r.Name }, func(r *partRecord, v string) { r.Name = v }),
	translation.NewField("stock", fieldtype.Int, func(r *partRecord) int64 { return r.Stock }, func(r *partRecord, v int64) { r.Stock = v }),
	translation.NewField("tags", fieldtype.String, func(r *partRecord) string { return r.Tags }, func(r *partRecord, v string) { r.Tags = v }),
	translation.NewField("created", fieldtype.Time, func(r *partRecord) time.Time { return r.Created }, func(r *partRecord, v time.Time) { r.Created = v }),
	translation.NewField("createdBy", fieldtype.String, func(r *partRecord) string { return r.CreatedBy }, func(r *partRecord, v string) { r.CreatedBy = v }),
	translation.NewField("modified", fieldtype.Time, func(r *partRecord) time.Time { return r.Modified }, func(r *partRecord, v time.Time) { r.Modified = v }),
	translation.NewField("modifiedBy", fieldtype.String, func(r *partRecord) string { return r.ModifiedBy }, func(r *partRecord, v string) { r.ModifiedBy = v }),
)

type partOperations = persistence.Operations[*part, *partRecord, int64]

// demoOptions are the inputs of one demo run.
type demoOptions struct {
	User        string
	Filter      string
	Sort        string
	Start       int
	Limit       int
	ShowMetrics bool
}

// historyView renders a history entry with its payload as text.
type historyView struct {
	Action    persistence.HistoryAction `json:"action" yaml:"action"`
	Actor     string                    `json:"actor,omitempty" yaml:"actor,omitempty"`
	Timestamp time.Time                 `json:"timestamp" yaml:"timestamp"`
	Payload   string                    `json:"payload,omitempty" yaml:"payload,omitempty"`
}

type metricSample struct {
	Name   string            `json:"name" yaml:"name"`
	Labels map[string]string `json:"labels,omitempty" yaml:"labels,omitempty"`
	Value  float64           `json:"value" yaml:"value"`
}

// DemoReport is the output of the demo command.
type DemoReport struct {
	Query   *persistence.QueryResult[*part] `json:"query" yaml:"query"`
	History []historyView                   `json:"history" yaml:"history"`
	Deleted int                             `json:"deleted" yaml:"deleted"`
	Metrics []metricSample                  `json:"metrics,omitempty" yaml:"metrics,omitempty"`
}

func newDemoCommand(rt runtime) *cobra.Command {
	var (
		opts   demoOptions
		output string
	)

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run create, update, delete and query against an in-memory parts entity",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := rt.load(cmd.Flags())
			if err != nil {
				return err
			}
			report, err := runDemo(cmd.Context(), cfg, log, opts)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), output, report)
		},
	}

	cmd.Flags().StringVar(&opts.User, "user", "demo", "acting user recorded in audit fields and history")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter expression for the final query")
	cmd.Flags().StringVar(&opts.Sort, "sort", "", "sort expression for the final query")
	cmd.Flags().IntVar(&opts.Start, "start", 0, "1-based position of the first result")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of results")
	cmd.Flags().BoolVar(&opts.ShowMetrics, "metrics", false, "include operation metrics in the report")
	cmd.Flags().StringVarP(&output, "output", "o", "json", "output format (json, yaml)")
	return cmd
}

func newPartOperations(cfg *config.Config, log logger.Logger, observer persistence.OperationObserver) (*partOperations, error) {
	tr, err := translation.New(translation.Config[*part, *partRecord, int64]{
		Client:     partFields,
		Persistent: partRecordFields,
		Mappers: []translation.FieldMapper[*part, *partRecord]{
			translation.MapField[*part, *partRecord]("tags", "tags", translation.DelimitedListConverter{}),
		},
		Hooks: []translation.Hooks[*part, *partRecord]{
			translation.AuditHooks[*part, *partRecord](translation.DefaultAuditFields(), translation.DefaultAuditFields()),
		},
	})
	if err != nil {
		return nil, err
	}
	dao, err := memory.New[*partRecord, int64](partRecordFields)
	if err != nil {
		return nil, err
	}
	plugin, err := persistence.NewEntityPlugin[*part, *partRecord, int64](partEntity).
		WithDefaults(cfg.Persistence.PluginDefaults()).
		WithTranslator(tr).
		WithDao(dao).
		WithJSONHistory().
		Build()
	if err != nil {
		return nil, err
	}

	opts := []persistence.Option{persistence.WithLogger(log)}
	if observer != nil {
		opts = append(opts, persistence.WithObserver(observer))
	}
	return persistence.NewOperations(plugin, opts...), nil
}

// changeListeners returns the kafka publisher when an event bus is
// configured and a logging listener otherwise. The returned func releases
// the producer.
func changeListeners(cfg *config.Config, log logger.Logger, observer eventbus.PublishObserver) ([]persistence.ChangeListener, func(), error) {
	if cfg.EventBus.Type != config.EventBusTypeKafka {
		logListener := persistence.ChangeListenerFunc(func(_ context.Context, event persistence.EntityChangeEvent) error {
			log.Info("entity changed",
				"entity", event.Entity,
				"id", event.ID,
				"action", event.Action,
				"fields", event.Fields,
				"actor", event.Actor,
			)
			return nil
		})
		return []persistence.ChangeListener{logListener}, func() {}, nil
	}

	producer, err := kafka.NewProducer(kafka.Config{
		Brokers:          cfg.EventBus.Brokers,
		OperationTimeout: cfg.EventBus.OperationTimeout,
		MaxRetries:       cfg.EventBus.MaxRetries,
	}, log)
	if err != nil {
		return nil, nil, err
	}
	guarded := eventbus.NewGuardedProducer(producer, resilience.NewCircuitBreaker(resilience.BreakerConfig{
		MaxFailures: cfg.EventBus.BreakerFailures,
		Cooldown:    cfg.EventBus.BreakerCooldown,
	}))
	publisher, err := eventbus.NewChangePublisher(guarded,
		eventbus.PublisherConfig{Topic: cfg.EventBus.Topic, Source: cfg.Service.Name, System: "kafka"},
		eventbus.WithObserver(observer),
		eventbus.WithLogger(log),
	)
	if err != nil {
		_ = producer.Close()
		return nil, nil, err
	}
	release := func() {
		if err := producer.Close(); err != nil {
			log.Warn("failed to close kafka producer", "error", err)
		}
	}
	return []persistence.ChangeListener{publisher}, release, nil
}

func runDemo(ctx context.Context, cfg *config.Config, log logger.Logger, opts demoOptions) (*DemoReport, error) {
	if cfg.Observability.TracingEnabled {
		tp, err := tracing.NewTracerProvider(ctx, tracing.TracerConfig{
			ServiceName:    cfg.Service.Name,
			ServiceVersion: version.Current(cfg.Service.Name).Version,
			Environment:    cfg.Service.Environment,
			Endpoint:       cfg.Observability.TracingEndpoint,
			SampleRate:     cfg.Observability.TracingSampleRate,
			Enabled:        true,
		})
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				log.Warn("failed to shut down tracer provider", "error", err)
			}
		}()
	}

	// observability.metrics_enabled=false leaves the counters empty.
	reg := metrics.NewRegistry(metrics.WithoutRuntimeCollectors())
	var (
		opObserver  persistence.OperationObserver
		pubObserver eventbus.PublishObserver
	)
	if cfg.Observability.MetricsEnabled {
		pm := metrics.NewPersistenceMetrics(reg)
		opObserver, pubObserver = pm, pm
	}

	ops, err := newPartOperations(cfg, log, opObserver)
	if err != nil {
		return nil, err
	}
	listeners, release, err := changeListeners(cfg, log, pubObserver)
	if err != nil {
		return nil, err
	}
	defer release()

	newContext := func() *persistence.Context {
		return persistence.NewContext(partEntity, persistence.WithUser(opts.User))
	}
	dispatch := func(pc *persistence.Context) {
		if err := persistence.DispatchChangeEvents(ctx, pc, listeners...); err != nil {
			log.Warn("failed to dispatch change events", "error", err)
		}
	}

	var ids []int64
	for _, seed := range demoParts() {
		pc := newContext()
		created, ok, err := ops.CreateOrUpdateItem(ctx, seed, pc)
		if err != nil {
			return nil, err
		}
		if !ok || created.ID == nil {
			return nil, fmt.Errorf("part %s was not created", deref(seed.Name))
		}
		ids = append(ids, *created.ID)
		dispatch(pc)
	}

	// Restock the first part, then drop the last one.
	pc := newContext()
	if _, _, err := ops.UpdateItem(ctx, ids[:1], &part{Stock: ptr(int64(75))}, pc); err != nil {
		return nil, err
	}
	dispatch(pc)

	pc = newContext()
	deleted, err := ops.DeleteItem(ctx, ids[len(ids)-1:], pc)
	if err != nil {
		return nil, err
	}
	dispatch(pc)

	result, err := ops.Query(ctx, persistence.QueryRequest{
		Filter: opts.Filter,
		Sort:   opts.Sort,
		Start:  opts.Start,
		Limit:  opts.Limit,
	}, newContext())
	if err != nil {
		return nil, err
	}

	entries, err := ops.GetHistory(ctx, ids[0], 0, 0, newContext())
	if err != nil {
		return nil, err
	}

	report := &DemoReport{Query: result, Deleted: deleted}
	for _, e := range entries {
		report.History = append(report.History, historyView{
			Action:    e.Action,
			Actor:     e.Actor,
			Timestamp: e.Timestamp,
			Payload:   string(e.Payload),
		})
	}
	if opts.ShowMetrics {
		report.Metrics, err = gatherSamples(reg)
		if err != nil {
			return nil, err
		}
	}
	return report, nil
}

func demoParts() []*part {
	return []*part{
		{Name: ptr("bolt"), Stock: ptr(int64(120)), Tags: []string{"steel", "m8"}},
		{Name: ptr("bracket"), Stock: ptr(int64(8)), Tags: []string{"steel"}},
		{Name: ptr("nut"), Stock: ptr(int64(300)), Tags: []string{"brass", "m8"}},
		{Name: ptr("washer"), Stock: ptr(int64(0))},
	}
}

// gatherSamples flattens the counters of reg, sorted by name and labels.
func gatherSamples(reg *metrics.Registry) ([]metricSample, error) {
	families, err := reg.Gatherer().Gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}
	var samples []metricSample
	for _, mf := range families {
		if mf.GetType() != dto.MetricType_COUNTER {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := make(map[string]string, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			samples = append(samples, metricSample{
				Name:   mf.GetName(),
				Labels: labels,
				Value:  m.GetCounter().GetValue(),
			})
		}
	}
	sort.SliceStable(samples, func(i, j int) bool {
		if samples[i].Name != samples[j].Name {
			return samples[i].Name < samples[j].Name
		}
		return labelKey(samples[i].Labels) < labelKey(samples[j].Labels)
	})
	return samples, nil
}

func labelKey(labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k, v := range labels {
		keys = append(keys, k+"="+v)
	}
	sort.Strings(keys)
	return strings.Join(keys, ",")
}

func ptr[T any](v T) *T { return &v }

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
