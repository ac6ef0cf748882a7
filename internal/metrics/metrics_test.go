package metrics

import (
	"testing"

	"machinepulse/internal/domain"
)

func rec(qty, defects int, start, end string) domain.ProductionRecord {
	return domain.ProductionRecord{
		Quantity:  qty,
		Defects:   defects,
		StartTime: start,
		EndTime:   end,
	}
}

func TestComputeEmpty(t *testing.T) {
	c := Calculator{IdealRatePerHour: 100}
	m := c.Compute(nil)
	if m.TotalQuantity != 0 || m.TotalDefects != 0 || m.TotalRecords != 0 {
		t.Fatalf("expected zero totals, got %+v", m)
	}
	if m.DefectRate != 0 {
		t.Fatalf("defect rate = %v, want 0", m.DefectRate)
	}
	if m.QualityRate != 100 {
		t.Fatalf("quality rate = %v, want 100", m.QualityRate)
	}
	if m.Availability != 0 || m.OEE != 0 {
		t.Fatalf("availability/oee = %v/%v, want 0/0", m.Availability, m.OEE)
	}
}

func TestComputeRates(t *testing.T) {
	c := Calculator{IdealRatePerHour: 100}
	m := c.Compute([]domain.ProductionRecord{
		rec(150, 5, "2026-03-01T08:00:00Z", "2026-03-01T10:00:00Z"),
	})
	if m.TotalQuantity != 150 || m.TotalDefects != 5 || m.TotalRecords != 1 {
		t.Fatalf("totals = %+v", m)
	}
	if m.TotalHours != 2 {
		t.Fatalf("hours = %v, want 2", m.TotalHours)
	}
	if got := Round2(m.DefectRate); got != 3.33 {
		t.Fatalf("defect rate = %v, want 3.33", got)
	}
	if got := Round2(m.QualityRate); got != 96.67 {
		t.Fatalf("quality rate = %v, want 96.67", got)
	}
	// 150 units against an ideal of 200 in 2h.
	if got := Round2(m.Availability); got != 75 {
		t.Fatalf("availability = %v, want 75", got)
	}
	if got := Round2(m.OEE); got != 72.5 {
		t.Fatalf("oee = %v, want 72.5", got)
	}
}

func TestComputeQualityIdentity(t *testing.T) {
	c := Calculator{IdealRatePerHour: 100}
	m := c.Compute([]domain.ProductionRecord{
		rec(90, 7, "2026-03-01T08:00:00Z", "2026-03-01T09:00:00Z"),
		rec(60, 2, "2026-03-01T09:00:00Z", "2026-03-01T09:30:00Z"),
	})
	if sum := Round2(m.DefectRate + m.QualityRate); sum != 100 {
		t.Fatalf("defect+quality = %v, want 100", sum)
	}
}

func TestComputeZeroDuration(t *testing.T) {
	c := Calculator{IdealRatePerHour: 100}
	m := c.Compute([]domain.ProductionRecord{
		rec(10, 0, "2026-03-01T08:00:00Z", "2026-03-01T08:00:00Z"),
	})
	if m.TotalHours != 0 {
		t.Fatalf("hours = %v, want 0", m.TotalHours)
	}
	if m.Availability != 0 || m.OEE != 0 {
		t.Fatalf("availability/oee = %v/%v, want 0/0", m.Availability, m.OEE)
	}
}

func TestComputeAllDefects(t *testing.T) {
	c := Calculator{IdealRatePerHour: 100}
	m := c.Compute([]domain.ProductionRecord{
		rec(20, 20, "2026-03-01T08:00:00Z", "2026-03-01T09:00:00Z"),
	})
	if m.DefectRate != 100 || m.QualityRate != 0 {
		t.Fatalf("defect/quality = %v/%v, want 100/0", m.DefectRate, m.QualityRate)
	}
	if m.OEE != 0 {
		t.Fatalf("oee = %v, want 0", m.OEE)
	}
}

func TestRound2(t *testing.T) {
	cases := map[float64]float64{
		3.333333: 3.33,
		3.336:    3.34,
		0:        0,
		100:      100,
	}
	for in, want := range cases {
		if got := Round2(in); got != want {
			t.Fatalf("Round2(%v) = %v, want %v", in, got, want)
		}
	}
}
