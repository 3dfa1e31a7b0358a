package components

import (
	"strings"
	"testing"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/lipgloss"
)

func TestNewSpinner(t *testing.T) {
	s := NewSpinner("Loading")
	if s.label != "Loading" {
		t.Error("Spinner label mismatch")
	}
}

func TestSpinner_Methods(t *testing.T) {
	s := NewSpinner("Init")

	s.SetLabel("Loading")
	if s.Label() != "Loading" {
		t.Errorf("Label = %s, want Loading", s.Label())
	}

	// Test View
	view := s.View()
	if view == "" {
		t.Error("View returned empty")
	}

	// Test ViewWithLabel
	view = s.ViewWithLabel()
	if view == "" {
		t.Error("ViewWithLabel returned empty")
	}

	// Test Init
	if s.Init() == nil {
		t.Error("Init should return command")
	}

	// Test Update
	m, cmd := s.Update(spinner.TickMsg{})
	_ = m
	if cmd == nil {
		t.Error("Update should return command for tick")
	}

	// Test Tick
	if s.Tick() == nil {
		t.Error("Tick should return command")
	}

	// Test Spinner accessor
	if s.Spinner().Spinner.Frames == nil {
		t.Error("Spinner accessor failed")
	}
}

func TestRenderSpinnerCentered(t *testing.T) {
	s := NewSpinner("Loading...")
	view := RenderSpinnerCentered(s, 20, 5)
	if view == "" {
		t.Error("RenderSpinnerCentered returned empty")
	}
}

func TestRenderLineChart(t *testing.T) {
	data := []float64{1, 2, 3, 4}
	s := RenderLineChart(data, 20, 5, "Test")
	if s == "" {
		t.Error("RenderLineChart returned empty")
	}
}

func TestRenderBarChart(t *testing.T) {
	values := []float64{10, 20}
	labels := []string{"A", "B"}
	s := RenderBarChart(values, labels, 20)
	if s == "" {
		t.Error("RenderBarChart returned empty")
	}
}

func TestRenderHourlyHeatmap(t *testing.T) {
	data := make([]float64, 24)
	s := RenderHourlyHeatmap(data)
	if s == "" {
		t.Error("RenderHourlyHeatmap returned empty")
	}
}

func TestRenderSparkline(t *testing.T) {
	data := []float64{1, 2, 3}
	s := RenderSparkline(data, 10)
	if s == "" {
		t.Error("RenderSparkline returned empty")
	}
}

func TestRenderLegend(t *testing.T) {
	items := []LegendItem{
		{Label: "A", Color: lipgloss.Color("#ffffff")},
	}
	s := RenderLegend(items)
	if s == "" {
		t.Error("RenderLegend returned empty")
	}
}

func TestRenderSparkline_Empty(t *testing.T) {
	if s := RenderSparkline(nil, 10); s != "" {
		t.Errorf("RenderSparkline(nil) = %q, want empty", s)
	}
	if s := RenderSparkline([]float64{1}, 0); s != "" {
		t.Errorf("RenderSparkline(width 0) = %q, want empty", s)
	}
}

func TestRenderLineChart_NoData(t *testing.T) {
	s := RenderLineChart(nil, 20, 5, "Empty")
	if !strings.Contains(s, "No data") {
		t.Errorf("RenderLineChart(nil) = %q", s)
	}
}

func TestRenderKindBreakdown(t *testing.T) {
	s := RenderKindBreakdown(12, 3, 1)
	for _, want := range []string{"+12", "-3", "1"} {
		if !strings.Contains(s, want) {
			t.Errorf("RenderKindBreakdown() = %q, missing %q", s, want)
		}
	}
}

func TestRenderBarChart_ScalesToPeak(t *testing.T) {
	s := RenderBarChart([]float64{0, 10}, []string{"idle", "busy"}, 30)
	lines := strings.Split(s, "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
	if strings.Count(lines[0], "█") != 0 {
		t.Errorf("zero value should have no bar: %q", lines[0])
	}
	if strings.Count(lines[1], "█") == 0 {
		t.Errorf("peak value should have a bar: %q", lines[1])
	}
}
