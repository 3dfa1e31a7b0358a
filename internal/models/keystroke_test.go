package models

import "testing"

func TestFileCounter_ObserveLines(t *testing.T) {
	var fc FileCounter

	if diff := fc.ObserveLines(10); diff != 0 {
		t.Errorf("first observation diff = %d, want 0", diff)
	}
	if fc.LinesAdded != 0 || fc.LinesRemoved != 0 {
		t.Error("first observation should only set the baseline")
	}

	steps := []struct {
		lines, wantDiff, wantAdded, wantRemoved int
	}{
		{12, 2, 2, 0},
		{12, 0, 2, 0},
		{9, -3, 2, 3},
		{11, 2, 4, 3},
	}
	for _, s := range steps {
		if diff := fc.ObserveLines(s.lines); diff != s.wantDiff {
			t.Errorf("ObserveLines(%d) = %d, want %d", s.lines, diff, s.wantDiff)
		}
		if fc.LinesAdded != s.wantAdded || fc.LinesRemoved != s.wantRemoved {
			t.Errorf("after %d lines: added=%d removed=%d, want %d/%d",
				s.lines, fc.LinesAdded, fc.LinesRemoved, s.wantAdded, s.wantRemoved)
		}
	}
	if fc.Lines != 11 {
		t.Errorf("Lines = %d, want 11", fc.Lines)
	}
}

func TestFileCounter_HasData(t *testing.T) {
	tests := []struct {
		name string
		fc   FileCounter
		want bool
	}{
		{"empty", FileCounter{}, false},
		{"length only", FileCounter{Length: 100, Lines: 4}, false},
		{"add", FileCounter{Add: 1}, true},
		{"delete", FileCounter{Delete: 1}, true},
		{"paste", FileCounter{Paste: 1}, true},
		{"open", FileCounter{Open: 1}, true},
		{"close", FileCounter{Close: 1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.fc.HasData(); got != tt.want {
				t.Errorf("HasData() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProjectAggregate_HasData(t *testing.T) {
	agg := NewProjectAggregate("/src/a", "a")
	if agg.HasData() {
		t.Error("new aggregate should have no data")
	}

	agg.File("/src/a/x.go").Length = 40
	if agg.HasData() {
		t.Error("a length-only file is not activity")
	}

	agg.File("/src/a/x.go").Close = 1
	if !agg.HasData() {
		t.Error("a close is activity")
	}

	other := NewProjectAggregate("/src/b", "b")
	other.Keystrokes = 1
	if !other.HasData() {
		t.Error("keystrokes are activity")
	}
}

func TestProjectAggregate_File(t *testing.T) {
	agg := NewProjectAggregate("/src/a", "a")
	fc := agg.File("/src/a/x.go")
	fc.Add = 3
	if agg.File("/src/a/x.go") != fc {
		t.Error("File should return the existing counter")
	}
	if len(agg.Source) != 1 {
		t.Errorf("Source len = %d, want 1", len(agg.Source))
	}
}

func TestProjectAggregate_Clone(t *testing.T) {
	agg := NewProjectAggregate("/src/a", "a")
	agg.Resource["branch"] = "main"
	agg.File("/src/a/x.go").Add = 2

	c := agg.Clone()
	c.Resource["branch"] = "dev"
	c.File("/src/a/x.go").Add = 99
	c.File("/src/a/y.go").Add = 1

	if agg.Resource["branch"] != "main" {
		t.Error("Clone shares Resource")
	}
	if agg.Source["/src/a/x.go"].Add != 2 {
		t.Error("Clone shares file counters")
	}
	if len(agg.Source) != 1 {
		t.Error("Clone shares Source map")
	}

	empty := &ProjectAggregate{}
	if empty.Clone().Resource == nil {
		t.Error("Clone should always allocate Resource")
	}
}

func TestProjectAggregate_TotalNetKeys(t *testing.T) {
	agg := NewProjectAggregate("/src/a", "a")
	x := agg.File("/src/a/x.go")
	x.Add, x.Delete = 10, 3
	x.UpdateNetKeys()
	y := agg.File("/src/a/y.go")
	y.Add, y.Delete = 1, 4
	y.UpdateNetKeys()

	if got := agg.TotalNetKeys(); got != 4 {
		t.Errorf("TotalNetKeys() = %d, want 4", got)
	}
}
