package conv

import "testing"

func TestConfigGet(t *testing.T) {
	cfg := map[string]any{
		"name":    "usercf",
		"dedup":   false,
		"size":    4,
		"rate":    0.5,
		"min":     0,
		"ids":     []any{"a", 2.0},
		"rescore": map[string]any{"type": "tanh"},
	}

	if got := ConfigGet(cfg, "name", ""); got != "usercf" {
		t.Errorf("ConfigGet(name) = %q", got)
	}
	if got := ConfigGet(cfg, "dedup", true); got {
		t.Errorf("ConfigGet(dedup) = %v", got)
	}
	// 类型不符时返回默认值
	if got := ConfigGet(cfg, "size", "x"); got != "x" {
		t.Errorf("ConfigGet(size) = %q", got)
	}
	if got := ConfigGetInt64(cfg, "size", 0); got != 4 {
		t.Errorf("ConfigGetInt64(size) = %d", got)
	}
	if got := ConfigGetInt64(cfg, "missing", 7); got != 7 {
		t.Errorf("ConfigGetInt64(missing) = %d", got)
	}

	tests := []struct {
		key  string
		def  float64
		want float64
	}{
		{"rate", 1, 0.5},
		{"min", 1, 0},
		{"name", 1, 1},
		{"missing", 2, 2},
	}
	for _, tt := range tests {
		if got := ConfigGetFloat64(cfg, tt.key, tt.def); got != tt.want {
			t.Errorf("ConfigGetFloat64(%s) = %v, want %v", tt.key, got, tt.want)
		}
	}

	if sub := ConfigGetMap(cfg, "rescore"); ConfigGet(sub, "type", "") != "tanh" {
		t.Errorf("ConfigGetMap(rescore) = %v", sub)
	}
	if sub := ConfigGetMap(cfg, "name"); sub != nil {
		t.Errorf("ConfigGetMap(name) = %v, want nil", sub)
	}
	if ids := SliceAnyToString(cfg["ids"]); len(ids) != 2 || ids[1] != "2" {
		t.Errorf("SliceAnyToString() = %v", ids)
	}
}
