package cli

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/scbrown/respec/internal/config"
)

func TestConfigCmdShowEmpty(t *testing.T) {
	resetFlags(t)

	out, err := execCtl(t, "config")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out, "KEY") || !strings.Contains(out, "VALUE") {
		t.Errorf("expected table headers, got: %s", out)
	}
	for _, key := range config.ValidKeys() {
		if !strings.Contains(out, key) {
			t.Errorf("expected key %s, got: %s", key, out)
		}
	}
	if !strings.Contains(out, "(not set)") {
		t.Errorf("expected (not set) for empty values, got: %s", out)
	}
}

func TestConfigCmdSetAndGet(t *testing.T) {
	resetFlags(t)

	out, err := execCtl(t, "config", "default_dir", "test/")
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	if strings.TrimSpace(out) != "default_dir = test" {
		t.Errorf("set output = %q", out)
	}

	out, err = execCtl(t, "config", "default_dir")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if strings.TrimSpace(out) != "test" {
		t.Errorf("get output = %q", out)
	}

	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DefaultDir != "test" {
		t.Errorf("saved DefaultDir = %q", cfg.DefaultDir)
	}
}

func TestConfigCmdJSON(t *testing.T) {
	resetFlags(t)
	if err := (&config.Config{Engine: "bin/rspec", HistoryDB: config.HistoryOff}).SaveTo(configPath); err != nil {
		t.Fatal(err)
	}

	out, err := execCtl(t, "config", "--json")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	var got config.Config
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	if got.Engine != "bin/rspec" || got.HistoryDB != config.HistoryOff {
		t.Errorf("got %+v", got)
	}
}

func TestConfigCmdErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown key suggests", []string{"config", "engin"}, `did you mean "engine"`},
		{"unknown key lists", []string{"config", "color", "on"}, "valid keys"},
		{"bad format", []string{"config", "default_format", "xml"}, "default_format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetFlags(t)
			_, err := execCtl(t, tt.args...)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestConfigCmdHelpDefaultDir(t *testing.T) {
	for _, line := range strings.Split(configCmd.Long, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "default_dir") {
			if !strings.Contains(line, "no files are given") || strings.Contains(line, `"d"`) {
				t.Errorf("default_dir help = %q", line)
			}
			return
		}
	}
	t.Fatal("default_dir missing from config help")
}
