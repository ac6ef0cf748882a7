package report

import (
	"fmt"
	"testing"

	"machinepulse/internal/domain"
)

func machine(id, name string) domain.Machine {
	return domain.Machine{ID: id, Name: name, Line: "A", Status: domain.StatusRunning}
}

func record(machineID string, qty, defects int, createdAt string) domain.ProductionRecord {
	return domain.ProductionRecord{
		MachineID: machineID,
		Quantity:  qty,
		Defects:   defects,
		CreatedAt: createdAt,
	}
}

func TestBuildGroupsByMachineAndDate(t *testing.T) {
	machines := []domain.Machine{machine("m1", "Press 1"), machine("m2", "Press 2")}
	records := []domain.ProductionRecord{
		record("m2", 30, 1, "2026-03-02T09:00:00Z"),
		record("m1", 50, 2, "2026-03-02T08:00:00Z"),
		record("m1", 40, 0, "2026-03-01T22:00:00Z"),
	}

	rep := Builder{RecentAlerts: 10}.Build(records, nil, machines)

	if got := rep.ByMachine["Press 1"]; got != (Rollup{TotalQuantity: 90, TotalDefects: 2, Records: 2}) {
		t.Fatalf("Press 1 rollup = %+v", got)
	}
	if got := rep.ByMachine["Press 2"]; got != (Rollup{TotalQuantity: 30, TotalDefects: 1, Records: 1}) {
		t.Fatalf("Press 2 rollup = %+v", got)
	}
	if got := rep.ByDate["2026-03-02"]; got != (Rollup{TotalQuantity: 80, TotalDefects: 3, Records: 2}) {
		t.Fatalf("2026-03-02 rollup = %+v", got)
	}
	if got := rep.ByDate["2026-03-01"]; got != (Rollup{TotalQuantity: 40, TotalDefects: 0, Records: 1}) {
		t.Fatalf("2026-03-01 rollup = %+v", got)
	}
	if rep.Summary.TotalProductions != 3 || rep.Summary.TotalMachines != 2 {
		t.Fatalf("summary = %+v", rep.Summary)
	}
}

func TestBuildOrphanRecord(t *testing.T) {
	machines := []domain.Machine{machine("m1", "Press 1")}
	records := []domain.ProductionRecord{
		record("m1", 10, 0, "2026-03-02T08:00:00Z"),
		record("gone", 99, 9, "2026-03-02T09:00:00Z"),
	}

	rep := Builder{RecentAlerts: 10}.Build(records, nil, machines)

	if len(rep.ByMachine) != 1 {
		t.Fatalf("by_machine = %+v, want only Press 1", rep.ByMachine)
	}
	if got := rep.ByDate["2026-03-02"]; got.Records != 2 || got.TotalQuantity != 109 {
		t.Fatalf("by_date rollup = %+v, orphan must still count", got)
	}
	if rep.Summary.TotalProductions != 2 {
		t.Fatalf("total productions = %d, want 2", rep.Summary.TotalProductions)
	}
}

func TestBuildAlertSummaryAndRecentCap(t *testing.T) {
	var alerts []domain.Alert
	for i := 0; i < 12; i++ {
		alerts = append(alerts, domain.Alert{
			ID:       fmt.Sprintf("a%d", i),
			Message:  "Machine Press 1 has stopped",
			Level:    domain.LevelWarning,
			Resolved: i%2 == 0,
		})
	}

	rep := Builder{RecentAlerts: 10}.Build(nil, alerts, nil)

	if rep.Summary.TotalAlerts != 12 {
		t.Fatalf("total alerts = %d, want 12", rep.Summary.TotalAlerts)
	}
	if rep.Summary.UnresolvedAlerts != 6 {
		t.Fatalf("unresolved = %d, want 6", rep.Summary.UnresolvedAlerts)
	}
	if len(rep.RecentAlerts) != 10 {
		t.Fatalf("recent alerts = %d, want 10", len(rep.RecentAlerts))
	}
	// Input order is preserved: the store hands alerts newest first.
	if rep.RecentAlerts[0].ID != "a0" || rep.RecentAlerts[9].ID != "a9" {
		t.Fatalf("recent alerts out of order: %s .. %s", rep.RecentAlerts[0].ID, rep.RecentAlerts[9].ID)
	}
}

func TestBuildEmpty(t *testing.T) {
	rep := Builder{RecentAlerts: 10}.Build(nil, nil, nil)
	if len(rep.ByMachine) != 0 || len(rep.ByDate) != 0 || len(rep.RecentAlerts) != 0 {
		t.Fatalf("expected empty report, got %+v", rep)
	}
	if rep.Summary != (Summary{}) {
		t.Fatalf("summary = %+v, want zero", rep.Summary)
	}
}
