package boc

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestReadConfig(t *testing.T) {
	in := strings.NewReader("cores: 3\nfairness: false\ndetect_leaks: true\n")
	got, err := ReadConfig(in)
	if err != nil {
		t.Fatal(err)
	}
	want := Config{Cores: 3, Fairness: false, DetectLeaks: true}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestReadConfigDefaults(t *testing.T) {
	got, err := ReadConfig(strings.NewReader("cores: 2\n"))
	if err != nil {
		t.Fatal(err)
	}
	if !got.Fairness {
		t.Error("fairness should default on")
	}
	if got.DetectLeaks {
		t.Error("leak detection should default off")
	}
}

func TestReadConfigRejectsBadCores(t *testing.T) {
	if _, err := ReadConfig(strings.NewReader("cores: 0\n")); err == nil {
		t.Error("zero cores accepted")
	}
}

func TestReadConfigRejectsUnknownKeys(t *testing.T) {
	if _, err := ReadConfig(strings.NewReader("coresx: 2\n")); err == nil {
		t.Error("unknown key accepted")
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "boc.yaml")
	if err := os.WriteFile(path, []byte("cores: 5\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Cores != 5 {
		t.Errorf("cores = %d, want 5", got.Cores)
	}
}
