package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"machinepulse/internal/config"
	"machinepulse/internal/db"
	"machinepulse/internal/domain"
	"machinepulse/internal/migrate"
	"machinepulse/internal/repo"
)

type captureNotifier struct {
	machines    []domain.Machine
	productions []domain.ProductionView
}

func (n *captureNotifier) MachineUpdated(m domain.Machine) {
	n.machines = append(n.machines, m)
}

func (n *captureNotifier) ProductionRecorded(v domain.ProductionView) {
	n.productions = append(n.productions, v)
}

func newTestEngine(t *testing.T) (*Engine, *captureNotifier) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	n := &captureNotifier{}
	e := New(conn, config.Default("plant-test"), nil)
	e.Notifier = n
	e.Now = func() time.Time { return time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC) }
	return e, n
}

func TestCreateMachine(t *testing.T) {
	e, n := newTestEngine(t)
	ctx := context.Background()

	m, err := e.CreateMachine(ctx, "Press 1", "line-a", "alice")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if m.ID == "" || m.Name != "Press 1" || m.Line != "line-a" {
		t.Fatalf("machine = %+v", m)
	}
	if m.Status != domain.StatusStopped {
		t.Fatalf("status = %s, want stopped", m.Status)
	}

	got, err := e.Repo.GetMachine(ctx, m.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != m {
		t.Fatalf("stored %+v != returned %+v", got, m)
	}
	if len(n.machines) != 1 || n.machines[0].ID != m.ID {
		t.Fatalf("notifications = %+v", n.machines)
	}

	evts, err := e.Repo.LatestEvents(ctx, 5, "machine.created", "", "")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(evts) != 1 || evts[0].ActorID != "alice" {
		t.Fatalf("audit events = %+v", evts)
	}
}

func TestCreateMachineValidation(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	var verr ValidationError
	if _, err := e.CreateMachine(ctx, "", "line-a", "alice"); !errors.As(err, &verr) || verr.Field != "name" {
		t.Fatalf("err = %v", err)
	}
	if _, err := e.CreateMachine(ctx, "Press 1", "", "alice"); !errors.As(err, &verr) || verr.Field != "line" {
		t.Fatalf("err = %v", err)
	}
}

func TestSetMachineStatusStopRaisesAlert(t *testing.T) {
	e, n := newTestEngine(t)
	ctx := context.Background()

	m, err := e.CreateMachine(ctx, "Press 1", "line-a", "alice")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := e.SetMachineStatus(ctx, m.ID, domain.StatusRunning, "alice"); err != nil {
		t.Fatalf("set running: %v", err)
	}
	stopped, err := e.SetMachineStatus(ctx, m.ID, domain.StatusStopped, "alice")
	if err != nil {
		t.Fatalf("set stopped: %v", err)
	}
	if stopped.Status != domain.StatusStopped {
		t.Fatalf("status = %s", stopped.Status)
	}

	alerts, err := e.Repo.ListAlerts(ctx, "", "")
	if err != nil {
		t.Fatalf("alerts: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("alerts = %+v, want exactly one", alerts)
	}
	a := alerts[0]
	if a.MachineID != m.ID || a.Level != domain.LevelWarning || a.Resolved {
		t.Fatalf("alert = %+v", a)
	}
	if a.Message != "Machine Press 1 has stopped" {
		t.Fatalf("message = %q", a.Message)
	}

	// create, running, stopped.
	if len(n.machines) != 3 {
		t.Fatalf("machine notifications = %d, want 3", len(n.machines))
	}
	if last := n.machines[2]; last.Status != domain.StatusStopped {
		t.Fatalf("last notification = %+v", last)
	}
}

func TestStopAlertLevelFollowsConfig(t *testing.T) {
	e, _ := newTestEngine(t)
	e.Config.Alerts.StopLevel = domain.LevelCritical
	ctx := context.Background()

	m, _ := e.CreateMachine(ctx, "Press 1", "line-a", "alice")
	if _, err := e.SetMachineStatus(ctx, m.ID, domain.StatusStopped, "alice"); err != nil {
		t.Fatalf("set stopped: %v", err)
	}

	alerts, err := e.Repo.ListAlerts(ctx, "", "")
	if err != nil {
		t.Fatalf("alerts: %v", err)
	}
	if len(alerts) != 1 || alerts[0].Level != domain.LevelCritical {
		t.Fatalf("alerts = %+v, want one critical", alerts)
	}
}

func TestSetMachineStatusRunningNoAlert(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	m, _ := e.CreateMachine(ctx, "Press 1", "line-a", "alice")
	if _, err := e.SetMachineStatus(ctx, m.ID, domain.StatusRunning, "alice"); err != nil {
		t.Fatalf("set running: %v", err)
	}
	if _, err := e.SetMachineStatus(ctx, m.ID, domain.StatusMaintenance, "alice"); err != nil {
		t.Fatalf("set maintenance: %v", err)
	}

	alerts, err := e.Repo.ListAlerts(ctx, "", "")
	if err != nil {
		t.Fatalf("alerts: %v", err)
	}
	if len(alerts) != 0 {
		t.Fatalf("alerts = %+v, want none", alerts)
	}
}

func TestSetMachineStatusInvalid(t *testing.T) {
	e, n := newTestEngine(t)
	ctx := context.Background()

	m, _ := e.CreateMachine(ctx, "Press 1", "line-a", "alice")
	created := len(n.machines)

	_, err := e.SetMachineStatus(ctx, m.ID, "exploded", "alice")
	if !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("err = %v, want ErrInvalidStatus", err)
	}

	got, _ := e.Repo.GetMachine(ctx, m.ID)
	if got.Status != domain.StatusStopped {
		t.Fatalf("status mutated to %s", got.Status)
	}
	if len(n.machines) != created {
		t.Fatalf("notification emitted for rejected transition")
	}
	if alerts, _ := e.Repo.ListAlerts(ctx, "", ""); len(alerts) != 0 {
		t.Fatalf("alerts = %+v, want none", alerts)
	}
}

func TestSetMachineStatusNotFound(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.SetMachineStatus(context.Background(), "nope", domain.StatusRunning, "alice")
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRecordProduction(t *testing.T) {
	e, n := newTestEngine(t)
	ctx := context.Background()

	m, _ := e.CreateMachine(ctx, "Press 1", "line-a", "alice")
	v, err := e.RecordProduction(ctx, ProductionOptions{
		MachineID:    m.ID,
		OperatorID:   "op-1",
		OperatorName: "Bob",
		Quantity:     150,
		Defects:      5,
		StartTime:    "2026-03-02T08:00:00Z",
		EndTime:      "2026-03-02T10:00:00Z",
		ActorID:      "op-1",
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if v.Machine.ID != m.ID || v.Machine.Name != "Press 1" {
		t.Fatalf("machine ref = %+v", v.Machine)
	}
	if v.Operator.ID != "op-1" || v.Operator.Name != "Bob" {
		t.Fatalf("operator ref = %+v", v.Operator)
	}
	if len(n.productions) != 1 || n.productions[0].ID != v.ID {
		t.Fatalf("notifications = %+v", n.productions)
	}

	stats, err := e.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalQuantity != 150 || stats.TotalDefects != 5 || stats.TotalRecords != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats.TotalHours != 2 {
		t.Fatalf("hours = %v", stats.TotalHours)
	}
}

func TestRecordProductionValidation(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	m, _ := e.CreateMachine(ctx, "Press 1", "line-a", "alice")
	base := ProductionOptions{
		MachineID:  m.ID,
		OperatorID: "op-1",
		Quantity:   10,
		StartTime:  "2026-03-02T08:00:00Z",
		EndTime:    "2026-03-02T09:00:00Z",
		ActorID:    "op-1",
	}

	cases := []struct {
		name  string
		mut   func(*ProductionOptions)
		field string
	}{
		{"negative quantity", func(o *ProductionOptions) { o.Quantity = -1 }, "quantity"},
		{"negative defects", func(o *ProductionOptions) { o.Defects = -1 }, "defects"},
		{"missing start", func(o *ProductionOptions) { o.StartTime = "" }, "start_time"},
		{"bad end", func(o *ProductionOptions) { o.EndTime = "yesterday" }, "end_time"},
		{"end before start", func(o *ProductionOptions) { o.EndTime = "2026-03-02T07:00:00Z" }, "end_time"},
		{"missing machine", func(o *ProductionOptions) { o.MachineID = "" }, "machine_id"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			opts := base
			tc.mut(&opts)
			_, err := e.RecordProduction(ctx, opts)
			var verr ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
			if verr.Field != tc.field {
				t.Fatalf("field = %s, want %s", verr.Field, tc.field)
			}
		})
	}

	if _, err := e.RecordProduction(ctx, ProductionOptions{
		MachineID: "missing", OperatorID: "op-1", Quantity: 1,
		StartTime: base.StartTime, EndTime: base.EndTime, ActorID: "op-1",
	}); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestReport(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	m1, _ := e.CreateMachine(ctx, "Press 1", "line-a", "alice")
	m2, _ := e.CreateMachine(ctx, "Press 2", "line-a", "alice")
	for _, rec := range []struct {
		machineID string
		qty       int
	}{{m1.ID, 50}, {m1.ID, 40}, {m2.ID, 30}} {
		if _, err := e.RecordProduction(ctx, ProductionOptions{
			MachineID:  rec.machineID,
			OperatorID: "op-1",
			Quantity:   rec.qty,
			Defects:    1,
			StartTime:  "2026-03-02T08:00:00Z",
			EndTime:    "2026-03-02T09:00:00Z",
			ActorID:    "op-1",
		}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	if _, err := e.SetMachineStatus(ctx, m2.ID, domain.StatusRunning, "alice"); err != nil {
		t.Fatalf("set running: %v", err)
	}
	if _, err := e.SetMachineStatus(ctx, m2.ID, domain.StatusStopped, "alice"); err != nil {
		t.Fatalf("set stopped: %v", err)
	}

	rep, err := e.Report(ctx, "2026-03-02", "2026-03-02")
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if got := rep.ByMachine["Press 1"].TotalQuantity; got != 90 {
		t.Fatalf("Press 1 quantity = %d, want 90", got)
	}
	if got := rep.ByMachine["Press 2"].TotalQuantity; got != 30 {
		t.Fatalf("Press 2 quantity = %d, want 30", got)
	}
	if got := rep.ByDate["2026-03-02"].Records; got != 3 {
		t.Fatalf("day records = %d, want 3", got)
	}
	if rep.Summary.TotalMachines != 2 || rep.Summary.TotalProductions != 3 {
		t.Fatalf("summary = %+v", rep.Summary)
	}
	if rep.Summary.TotalAlerts != 1 || rep.Summary.UnresolvedAlerts != 1 {
		t.Fatalf("alert summary = %+v", rep.Summary)
	}
	if len(rep.RecentAlerts) != 1 {
		t.Fatalf("recent alerts = %+v", rep.RecentAlerts)
	}

	// A window before any data is empty but still reports machine count.
	empty, err := e.Report(ctx, "2026-01-01", "2026-01-31")
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if empty.Summary.TotalProductions != 0 || empty.Summary.TotalAlerts != 0 {
		t.Fatalf("empty window summary = %+v", empty.Summary)
	}
	if empty.Summary.TotalMachines != 2 {
		t.Fatalf("machines = %d, want 2", empty.Summary.TotalMachines)
	}
}

func TestReportBadBounds(t *testing.T) {
	e, _ := newTestEngine(t)
	var verr ValidationError
	if _, err := e.Report(context.Background(), "last tuesday", ""); !errors.As(err, &verr) || verr.Field != "start_date" {
		t.Fatalf("err = %v", err)
	}
}
