package runtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

// Test plugin with typed methods
type weatherPlugin struct{}

type forecastInput struct {
	City string `json:"city" validate:"required"`
	Days int    `json:"days" validate:"gte=1,lte=14"`
}

type forecastOutput struct {
	Summary string `json:"summary"`
	Days    int    `json:"days"`
}

func (p *weatherPlugin) Forecast(_ context.Context, input forecastInput) (forecastOutput, error) {
	return forecastOutput{
		Summary: fmt.Sprintf("%d days of sun in %s", input.Days, input.City),
		Days:    input.Days,
	}, nil
}

func (p *weatherPlugin) Alerts(_ context.Context, args map[string]any) (map[string]any, error) {
	return map[string]any{"city": args["city"], "alerts": []any{}}, nil
}

func (p *weatherPlugin) Broken(_ context.Context, _ forecastInput) (forecastOutput, error) {
	return forecastOutput{}, errors.New("station offline")
}

// Not tasks: wrong shapes
func (p *weatherPlugin) Units() string { return "metric" }

func (p *weatherPlugin) Lookup(city string) (map[string]any, error) { return nil, nil }

func (p *weatherPlugin) Raw(_ context.Context, s string) (string, error) { return s, nil }

func (p *weatherPlugin) helper(_ context.Context, m map[string]any) (map[string]any, error) {
	return m, nil
}

func TestContainer_DiscoversTasks(t *testing.T) {
	c := NewContainer()
	if err := c.RegisterPlugin("weather", &weatherPlugin{}); err != nil {
		t.Fatalf("RegisterPlugin failed: %v", err)
	}

	for _, name := range []string{"weather.forecast", "weather.alerts", "weather.broken"} {
		if c.GetTask(name) == nil {
			t.Errorf("task %s not registered", name)
		}
	}
	for _, name := range []string{"weather.units", "weather.lookup", "weather.raw", "weather.helper"} {
		if c.GetTask(name) != nil {
			t.Errorf("%s should not be registered as a task", name)
		}
	}
}

func TestContainer_TypedTask(t *testing.T) {
	c := NewContainer()
	if err := c.RegisterPlugin("weather", &weatherPlugin{}); err != nil {
		t.Fatalf("RegisterPlugin failed: %v", err)
	}
	task := c.GetTask("weather.forecast")

	tests := []struct {
		name    string
		args    map[string]any
		want    map[string]any
		wantErr string
	}{
		{
			name: "valid input",
			args: map[string]any{"city": "Oslo", "days": 3.0},
			want: map[string]any{"summary": "3 days of sun in Oslo", "days": 3.0},
		},
		{
			name:    "missing required field",
			args:    map[string]any{"days": 2},
			wantErr: "invalid input",
		},
		{
			name:    "out of range",
			args:    map[string]any{"city": "Oslo", "days": 30},
			wantErr: "invalid input",
		},
		{
			name:    "undecodable",
			args:    map[string]any{"city": "Oslo", "days": "a week"},
			wantErr: "invalid input",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := task.Execute(context.Background(), tt.args)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("error = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestContainer_MapTaskAndErrors(t *testing.T) {
	c := NewContainer()
	if err := c.RegisterPlugin("weather", &weatherPlugin{}); err != nil {
		t.Fatalf("RegisterPlugin failed: %v", err)
	}

	got, err := c.GetTask("weather.alerts").Execute(context.Background(), map[string]any{"city": "Bergen"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["city"] != "Bergen" {
		t.Errorf("city = %v", got["city"])
	}

	_, err = c.GetTask("weather.broken").Execute(context.Background(), map[string]any{"city": "Bergen", "days": 1})
	if err == nil || err.Error() != "station offline" {
		t.Errorf("error = %v, want station offline", err)
	}
}

func TestContainer_RegisterPluginErrors(t *testing.T) {
	c := NewContainer()
	if err := c.RegisterPlugin("nil", nil); err == nil {
		t.Error("expected error for nil plugin")
	}
	if err := c.RegisterPlugin("weather", &weatherPlugin{}); err != nil {
		t.Fatalf("RegisterPlugin failed: %v", err)
	}
	if err := c.RegisterPlugin("weather", &weatherPlugin{}); err == nil {
		t.Error("expected error for duplicate plugin name")
	}
}

type recordingPlugin struct {
	name    string
	failOn  string
	journal *[]string
}

func (p *recordingPlugin) Initialize(context.Context) error {
	if p.failOn == "init" {
		return errors.New("cannot connect")
	}
	*p.journal = append(*p.journal, "init:"+p.name)
	return nil
}

func (p *recordingPlugin) Shutdown(context.Context) error {
	*p.journal = append(*p.journal, "shutdown:"+p.name)
	if p.failOn == "shutdown" {
		return errors.New("still busy")
	}
	return nil
}

func (p *recordingPlugin) Search(context.Context, VectorQuery) ([]VectorMatch, error) {
	return nil, nil
}

func TestContainer_InterfaceDetection(t *testing.T) {
	var journal []string
	c := NewContainer()
	_ = c.RegisterPlugin("weather", &weatherPlugin{})
	_ = c.RegisterPlugin("vectors", &recordingPlugin{name: "vectors", journal: &journal})

	if got := c.PluginsImplementing(InterfaceVectorSearcher); len(got) != 1 {
		t.Errorf("VectorSearcher plugins = %d, want 1", len(got))
	}
	if got := c.PluginsImplementing(InterfaceLifecycle); len(got) != 1 {
		t.Errorf("Lifecycle plugins = %d, want 1", len(got))
	}
	if got := c.PluginsImplementing(InterfaceChatCompleter); len(got) != 0 {
		t.Errorf("ChatCompleter plugins = %d, want 0", len(got))
	}
	if c.GetPlugin("vectors") == nil {
		t.Error("GetPlugin should return the registered instance")
	}
}

func TestContainer_InitializeRollsBack(t *testing.T) {
	var journal []string
	c := NewContainer()
	_ = c.RegisterPlugin("a", &recordingPlugin{name: "a", journal: &journal})
	_ = c.RegisterPlugin("b", &recordingPlugin{name: "b", journal: &journal})
	_ = c.RegisterPlugin("c", &recordingPlugin{name: "c", failOn: "init", journal: &journal})

	if err := c.Initialize(context.Background()); err == nil {
		t.Fatal("expected initialization error")
	}

	want := "init:a,init:b,shutdown:b,shutdown:a"
	if got := strings.Join(journal, ","); got != want {
		t.Errorf("journal = %s, want %s", got, want)
	}
}

func TestContainer_ShutdownReverseOrder(t *testing.T) {
	var journal []string
	c := NewContainer()
	_ = c.RegisterPlugin("a", &recordingPlugin{name: "a", journal: &journal})
	_ = c.RegisterPlugin("b", &recordingPlugin{name: "b", failOn: "shutdown", journal: &journal})
	_ = c.RegisterPlugin("c", &recordingPlugin{name: "c", journal: &journal})

	if err := c.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	journal = nil

	err := c.Shutdown(context.Background())
	if err == nil || !strings.Contains(err.Error(), "still busy") {
		t.Errorf("Shutdown error = %v, want one mentioning still busy", err)
	}

	want := "shutdown:c,shutdown:b,shutdown:a"
	if got := strings.Join(journal, ","); got != want {
		t.Errorf("journal = %s, want %s", got, want)
	}
}
