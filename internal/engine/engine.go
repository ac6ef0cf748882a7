package engine

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"machinepulse/internal/config"
	"machinepulse/internal/domain"
	"machinepulse/internal/events"
	"machinepulse/internal/metrics"
	"machinepulse/internal/repo"
	"machinepulse/internal/report"
)

// Notifier receives domain events after the store write that produced them
// has committed. A nil Notifier disables emission.
type Notifier interface {
	MachineUpdated(m domain.Machine)
	ProductionRecorded(v domain.ProductionView)
}

// StatusHook runs after a status change commits. Hooks are advisory: a hook
// failure is logged and never unwinds the primary write.
type StatusHook func(ctx context.Context, m domain.Machine) error

type Engine struct {
	DB          *sql.DB
	Repo        repo.Repo
	Events      events.Writer
	Config      *config.Config
	Calc        metrics.Calculator
	Notifier    Notifier
	StatusHooks []StatusHook
	Logger      *zap.Logger
	Now         func() time.Time
}

// New wires an Engine over an open database. cfg must be non-nil; every
// command path reads it.
func New(db *sql.DB, cfg *config.Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Calc:   metrics.Calculator{IdealRatePerHour: cfg.Production.IdealRatePerHour},
		Logger: logger,
		Now:    time.Now,
	}
	e.StatusHooks = []StatusHook{e.alertOnStop}
	return e
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// CreateMachine registers a machine. New machines start stopped.
func (e *Engine) CreateMachine(ctx context.Context, name, line, actorID string) (domain.Machine, error) {
	if name == "" {
		return domain.Machine{}, invalidField("name", "is required")
	}
	if line == "" {
		return domain.Machine{}, invalidField("line", "is required")
	}
	now := e.now().UTC().Format(time.RFC3339)
	m := domain.Machine{
		ID:            uuid.New().String(),
		Name:          name,
		Line:          line,
		Status:        domain.StatusStopped,
		LastHeartbeat: now,
		CreatedAt:     now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Machine{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertMachine(ctx, tx, m); err != nil {
		return domain.Machine{}, fmt.Errorf("insert machine: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "machine.created", "machine", m.ID, actorID, events.EventPayload{
		"name": m.Name,
		"line": m.Line,
	}); err != nil {
		return domain.Machine{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Machine{}, err
	}
	e.notifyMachine(m)
	return m, nil
}

// SetMachineStatus applies a status transition. Any status may move to any
// other; the store's atomic update is the only serialization point, so
// concurrent commands on the same machine resolve last-write-wins.
func (e *Engine) SetMachineStatus(ctx context.Context, machineID, status, actorID string) (domain.Machine, error) {
	if !domain.ValidStatus(status) {
		return domain.Machine{}, fmt.Errorf("%w: %s", ErrInvalidStatus, status)
	}
	m, err := e.Repo.GetMachine(ctx, machineID)
	if err != nil {
		return domain.Machine{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Machine{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateMachineStatus(ctx, tx, machineID, status, now); err != nil {
		return domain.Machine{}, err
	}
	if err := e.Events.Append(ctx, tx, "machine.status_changed", "machine", m.ID, actorID, events.EventPayload{
		"from": m.Status,
		"to":   status,
	}); err != nil {
		return domain.Machine{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Machine{}, err
	}
	m.Status = status
	m.LastHeartbeat = now

	// Post-commit hooks; each one fault-isolated.
	for _, hook := range e.StatusHooks {
		if err := hook(ctx, m); err != nil {
			e.Logger.Warn("status hook failed",
				zap.String("machine_id", m.ID),
				zap.String("status", m.Status),
				zap.Error(err))
		}
	}
	e.notifyMachine(m)
	return m, nil
}

// alertOnStop raises a warning alert when a machine stops. Alerting is
// advisory: the status change stands whether or not this succeeds.
func (e *Engine) alertOnStop(ctx context.Context, m domain.Machine) error {
	if m.Status != domain.StatusStopped {
		return nil
	}
	level := e.Config.Alerts.StopLevel
	if level == "" {
		level = domain.LevelWarning
	}
	a := domain.Alert{
		ID:        uuid.New().String(),
		MachineID: m.ID,
		Message:   fmt.Sprintf("Machine %s has stopped", m.Name),
		Level:     level,
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertAlert(ctx, tx, a); err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "alert.created", "alert", a.ID, "system", events.EventPayload{
		"machine_id": m.ID,
		"level":      a.Level,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// ProductionOptions are parameters for recording production output.
type ProductionOptions struct {
	MachineID    string
	OperatorID   string
	OperatorName string
	Quantity     int
	Defects      int
	StartTime    string
	EndTime      string
	ActorID      string
}

// RecordProduction validates and persists one production record, then emits
// production:new with resolved machine and operator references.
func (e *Engine) RecordProduction(ctx context.Context, opts ProductionOptions) (domain.ProductionView, error) {
	if opts.MachineID == "" {
		return domain.ProductionView{}, invalidField("machine_id", "is required")
	}
	if opts.OperatorID == "" {
		return domain.ProductionView{}, invalidField("operator_id", "is required")
	}
	if opts.Quantity < 0 {
		return domain.ProductionView{}, invalidField("quantity", "must be >= 0")
	}
	if opts.Defects < 0 {
		return domain.ProductionView{}, invalidField("defects", "must be >= 0")
	}
	start, err := parseTime("start_time", opts.StartTime)
	if err != nil {
		return domain.ProductionView{}, err
	}
	end, err := parseTime("end_time", opts.EndTime)
	if err != nil {
		return domain.ProductionView{}, err
	}
	if end.Before(start) {
		return domain.ProductionView{}, invalidField("end_time", "must not precede start_time")
	}
	m, err := e.Repo.GetMachine(ctx, opts.MachineID)
	if err != nil {
		return domain.ProductionView{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	operatorName := opts.OperatorName
	if operatorName == "" {
		operatorName = opts.OperatorID
	}
	op := domain.Operator{ID: opts.OperatorID, Name: operatorName, CreatedAt: now}
	rec := domain.ProductionRecord{
		ID:         uuid.New().String(),
		MachineID:  m.ID,
		OperatorID: op.ID,
		Quantity:   opts.Quantity,
		Defects:    opts.Defects,
		StartTime:  start.UTC().Format(time.RFC3339),
		EndTime:    end.UTC().Format(time.RFC3339),
		CreatedAt:  now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ProductionView{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpsertOperator(ctx, tx, op); err != nil {
		return domain.ProductionView{}, fmt.Errorf("upsert operator: %w", err)
	}
	if err := e.Repo.InsertProduction(ctx, tx, rec); err != nil {
		return domain.ProductionView{}, fmt.Errorf("insert production: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "production.recorded", "production", rec.ID, opts.ActorID, events.EventPayload{
		"machine_id": m.ID,
		"quantity":   rec.Quantity,
		"defects":    rec.Defects,
	}); err != nil {
		return domain.ProductionView{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ProductionView{}, err
	}
	view := resolveView(rec, m, op)
	if e.Notifier != nil {
		e.Notifier.ProductionRecorded(view)
	}
	return view, nil
}

// Stats computes KPIs over all production records, fresh each call.
func (e *Engine) Stats(ctx context.Context) (metrics.Metrics, error) {
	records, err := e.Repo.ListProduction(ctx, "", "")
	if err != nil {
		return metrics.Metrics{}, err
	}
	return e.Calc.Compute(records), nil
}

// Report aggregates the optionally time-filtered record and alert sets.
// Bounds accept YYYY-MM-DD (expanded to cover the whole UTC day) or RFC3339;
// either bound may be empty.
func (e *Engine) Report(ctx context.Context, startDate, endDate string) (report.Report, error) {
	start, err := rangeBound("start_date", startDate, false)
	if err != nil {
		return report.Report{}, err
	}
	end, err := rangeBound("end_date", endDate, true)
	if err != nil {
		return report.Report{}, err
	}
	records, err := e.Repo.ListProduction(ctx, start, end)
	if err != nil {
		return report.Report{}, err
	}
	alerts, err := e.Repo.ListAlerts(ctx, start, end)
	if err != nil {
		return report.Report{}, err
	}
	machines, err := e.Repo.ListMachines(ctx)
	if err != nil {
		return report.Report{}, err
	}
	b := report.Builder{RecentAlerts: e.Config.Reports.RecentAlerts}
	return b.Build(records, alerts, machines), nil
}

func (e *Engine) notifyMachine(m domain.Machine) {
	if e.Notifier != nil {
		e.Notifier.MachineUpdated(m)
	}
}

func resolveView(rec domain.ProductionRecord, m domain.Machine, op domain.Operator) domain.ProductionView {
	return domain.ProductionView{
		ID:        rec.ID,
		Machine:   domain.MachineRef{ID: m.ID, Name: m.Name, Line: m.Line},
		Operator:  domain.OperatorRef{ID: op.ID, Name: op.Name},
		Quantity:  rec.Quantity,
		Defects:   rec.Defects,
		StartTime: rec.StartTime,
		EndTime:   rec.EndTime,
		CreatedAt: rec.CreatedAt,
	}
}

func parseTime(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, invalidField(field, "is required")
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, invalidField(field, "must be RFC3339")
	}
	return t, nil
}

// rangeBound normalizes a report bound. Date-only values cover the whole UTC
// day, so start_date=D,end_date=D selects exactly day D inclusive.
func rangeBound(field, value string, endOfDay bool) (string, error) {
	if value == "" {
		return "", nil
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		if endOfDay {
			t = t.Add(24*time.Hour - time.Second)
		}
		return t.UTC().Format(time.RFC3339), nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC().Format(time.RFC3339), nil
	}
	return "", invalidField(field, "must be YYYY-MM-DD or RFC3339")
}

// ListProduction returns resolved production views, most recent first.
func (e *Engine) ListProduction(ctx context.Context) ([]domain.ProductionView, error) {
	return e.Repo.ListProductionViews(ctx)
}

// ListMachines returns machines, most recent first.
func (e *Engine) ListMachines(ctx context.Context) ([]domain.Machine, error) {
	return e.Repo.ListMachines(ctx)
}
