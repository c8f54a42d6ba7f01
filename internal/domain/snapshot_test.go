package domain

import (
	"encoding/json"
	"testing"
)

func TestSnapshotEqualIgnoresOrderAndNumericType(t *testing.T) {
	a := Snapshot{"year": int64(2021), "rate": float64(350000), "status": "available"}
	b := Snapshot{"status": "available", "rate": json.Number("350000"), "year": float64(2021)}

	if !a.Equal(b) {
		t.Fatalf("expected snapshots to be equal: %v vs %v", a, b)
	}
}

func TestValuesEqualKeepsLargeIntegersExact(t *testing.T) {
	big := int64(1) << 53
	if ValuesEqual(big, big+1) {
		t.Fatalf("expected %d and %d to differ", big, big+1)
	}
	if ValuesEqual(json.Number("9007199254740993"), big) {
		t.Fatalf("expected json number to compare exactly against int64")
	}
	if !ValuesEqual(json.Number("9007199254740993"), big+1) {
		t.Fatalf("expected equal integers to match")
	}
	if !ValuesEqual(int64(2021), float64(2021)) {
		t.Fatalf("expected integral float to match integer")
	}

	changes := CompareSnapshots(Snapshot{"customer_id": big}, Snapshot{"customer_id": big + 1})
	if _, ok := changes["customer_id"]; !ok {
		t.Fatalf("expected large reference change to be reported, got %v", changes)
	}
}

func TestSnapshotEqualDetectsMissingField(t *testing.T) {
	a := Snapshot{"status": "available", "note": nil}
	b := Snapshot{"status": "available"}

	if a.Equal(b) {
		t.Fatalf("expected snapshots with different field sets to differ")
	}
}

func TestCompareSnapshotsReturnsOnlyDifferences(t *testing.T) {
	a := Snapshot{"status": "available", "year": int64(2020), "brand": "Honda"}
	b := Snapshot{"status": "rented", "year": int64(2020), "color": "red"}

	diff := CompareSnapshots(a, b)
	if len(diff) != 3 {
		t.Fatalf("expected 3 differing fields, got %d: %v", len(diff), diff)
	}
	if diff["status"].A != "available" || diff["status"].B != "rented" {
		t.Errorf("unexpected status diff: %+v", diff["status"])
	}
	if diff["brand"].B != nil {
		t.Errorf("removed field should compare against nil: %+v", diff["brand"])
	}
	if diff["color"].A != nil || diff["color"].B != "red" {
		t.Errorf("added field should compare against nil: %+v", diff["color"])
	}
	if _, ok := diff["year"]; ok {
		t.Errorf("equal field must not be reported")
	}
}

func TestChangesBetweenStringifies(t *testing.T) {
	changes := ChangesBetween(
		Snapshot{"daily_rate": float64(300000), "returned_at": nil, "customer_id": int64(3)},
		Snapshot{"daily_rate": float64(325000.5), "returned_at": "2024-05-02", "customer_id": int64(3)},
	)

	if got := changes["daily_rate"]; got.Old != "300000" || got.New != "325000.5" {
		t.Errorf("unexpected daily_rate change: %+v", got)
	}
	if got := changes["returned_at"]; got.Old != "null" || got.New != "2024-05-02" {
		t.Errorf("unexpected returned_at change: %+v", got)
	}
	if _, ok := changes["customer_id"]; ok {
		t.Errorf("unchanged reference must not be reported")
	}
}

func TestActionIsValid(t *testing.T) {
	for _, action := range []Action{ActionCreate, ActionUpdate, ActionDelete, ActionCommit, ActionRollback} {
		if !action.IsValid() {
			t.Errorf("expected %q to be valid", action)
		}
	}
	if Action("merge").IsValid() {
		t.Errorf("merge is not a supported action")
	}
}

func TestVersionKeyString(t *testing.T) {
	key := VersionKey{EntityType: "rental", EntityID: 42, Branch: "main"}
	if key.String() != "rental#42@main" {
		t.Fatalf("unexpected key rendering: %s", key.String())
	}
}
