package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/luma/vm"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
[runtime]
max-stack = 5000
max-native-depth = 150
short-string-limit = 32

[gc]
mode = "stopped"
pause = 150
step-multiplier = 300
memory-limit-kb = 2048

[log]
verbosity = 2
file = "luma.log"
`)

	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if c.Runtime.MaxStack != 5000 {
		t.Errorf("max-stack = %d, want 5000", c.Runtime.MaxStack)
	}
	if c.GC.Mode != "stopped" {
		t.Errorf("gc mode = %q, want stopped", c.GC.Mode)
	}
	if c.Log.Verbosity != 2 || c.Log.File != "luma.log" {
		t.Errorf("log = %+v, want verbosity 2 and file luma.log", c.Log)
	}
	if !filepath.IsAbs(c.Path) {
		t.Errorf("path %q is not absolute", c.Path)
	}

	o := c.Options()
	if o.MaxStackSize != 5000 || o.MaxNativeDepth != 150 || o.ShortStringLen != 32 {
		t.Errorf("runtime options = %+v", o)
	}
	if !o.GCStopped || o.GCPause != 150 || o.GCStepMul != 300 {
		t.Errorf("gc options = %+v", o)
	}
	if o.MemoryLimit != 2048*1024 {
		t.Errorf("memory limit = %d, want %d", o.MemoryLimit, 2048*1024)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "[log]\nverbosity = 1\n")

	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	want := vm.DefaultOptions()
	o := c.Options()
	if o.MaxStackSize != want.MaxStackSize || o.GCPause != want.GCPause || o.GCStopped {
		t.Errorf("options = %+v, want defaults", o)
	}
	if c.GC.Mode != "incremental" {
		t.Errorf("gc mode = %q, want incremental", c.GC.Mode)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"syntax", "[runtime\n", "parse error"},
		{"gc mode", "[gc]\nmode = \"generational\"\n", "unknown gc mode"},
		{"negative", "[runtime]\nmax-stack = -1\n", "must not be negative"},
	}

	for _, tc := range tests {
		dir := t.TempDir()
		writeConfig(t, dir, tc.content)
		_, err := Load(dir)
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Errorf("%s: error = %v, want it to contain %q", tc.name, err, tc.want)
		}
	}

	if _, err := Load(t.TempDir()); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestFindAndLoad(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "[runtime]\nmax-stack = 4000\n")
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	c, err := FindAndLoad(nested)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if c == nil || c.Runtime.MaxStack != 4000 {
		t.Fatalf("config = %+v, want max-stack 4000", c)
	}
	if want := filepath.Join(root, FileName); c.Path != want {
		t.Errorf("path = %q, want %q", c.Path, want)
	}
}
