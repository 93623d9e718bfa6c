package utils

import "testing"

func TestMergeLabel(t *testing.T) {
	tests := []struct {
		name     string
		existing Label
		incoming Label
		want     Label
	}{
		{"empty existing", Label{}, Label{Value: "usercf", Source: "recall"}, Label{Value: "usercf", Source: "recall"}},
		{"empty incoming", Label{Value: "usercf", Source: "recall"}, Label{}, Label{Value: "usercf", Source: "recall"}},
		{"append", Label{Value: "usercf", Source: "recall"}, Label{Value: "slopeone", Source: "rule"}, Label{Value: "usercf|slopeone", Source: "recall,rule"}},
		{"dedup", Label{Value: "usercf|slopeone", Source: "recall"}, Label{Value: "slopeone", Source: "recall"}, Label{Value: "usercf|slopeone", Source: "recall"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MergeLabel(tt.existing, tt.incoming); got != tt.want {
				t.Errorf("MergeLabel() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestLabel_Values(t *testing.T) {
	l := Label{Value: "recall.usercf|recall.popular"}
	if got := l.Values(); len(got) != 2 || got[1] != "recall.popular" {
		t.Errorf("Values() = %v", got)
	}
	if l.Primary() != "recall.usercf" {
		t.Errorf("Primary() = %q", l.Primary())
	}
	if !l.Has("recall.popular") || l.Has("recall") {
		t.Errorf("Has() mismatch for %q", l.Value)
	}
	if (Label{}).Values() != nil || (Label{}).Primary() != "" {
		t.Error("empty label should have no values")
	}
}
