package commands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
)

func newFlagCommand(t *testing.T, args ...string) (*cobra.Command, *settings) {
	t.Helper()
	values := &settings{}
	cmd := &cobra.Command{Use: "test"}
	bindFlags(cmd, values)
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("failed to parse flags: %v", err)
	}
	return cmd, values
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestResolveSettingsPrecedence(t *testing.T) {
	path := writeConfig(t, `
credentials: /etc/creds.json
device_model_id: file-model
language_code: de-DE
backend: miniaudio
sample_rate: 24000
location:
  latitude: 46.05
  longitude: 14.5
`)
	t.Setenv("EMA_ASSISTANT_LANGUAGE_CODE", "fr-FR")
	t.Setenv("EMA_ASSISTANT_SAMPLE_RATE", "22050")
	cmd, values := newFlagCommand(t, "--language", "sl-SI", "--state", "/tmp/state.yaml")

	s, err := resolveSettings(cmd, path, *values)
	if err != nil {
		t.Fatalf("failed to resolve settings: %v", err)
	}

	if s.Credentials != "/etc/creds.json" || s.DeviceModelID != "file-model" || s.Backend != backendMiniaudio {
		t.Fatalf("expected file values to be used, got %+v", s)
	}
	if s.SampleRate != 22050 {
		t.Fatalf("expected environment to override the file, got %d", s.SampleRate)
	}
	if s.LanguageCode != "sl-SI" {
		t.Fatalf("expected flag to override the environment, got %q", s.LanguageCode)
	}
	if s.StateFile != "/tmp/state.yaml" {
		t.Fatalf("expected state file from flag, got %q", s.StateFile)
	}
	if s.Location == nil || s.Location.Latitude != 46.05 {
		t.Fatalf("expected location from file, got %+v", s.Location)
	}
}

func TestResolveSettingsDefaults(t *testing.T) {
	cmd, values := newFlagCommand(t, "--credentials", "creds.json")

	s, err := resolveSettings(cmd, filepath.Join(t.TempDir(), "missing.yaml"), *values)
	if err != nil {
		t.Fatalf("failed to resolve settings: %v", err)
	}
	if s.Backend != backendPortAudio || s.SampleRate != 16000 || s.LanguageCode != "en-US" {
		t.Fatalf("unexpected defaults %+v", s)
	}
	if filepath.Base(s.StateFile) != DefaultStateFile {
		t.Fatalf("expected default state file, got %q", s.StateFile)
	}
}

func TestResolveSettingsErrors(t *testing.T) {
	t.Run("missing credentials", func(t *testing.T) {
		cmd, values := newFlagCommand(t)
		if _, err := resolveSettings(cmd, filepath.Join(t.TempDir(), "missing.yaml"), *values); err == nil {
			t.Fatalf("expected missing credentials to fail")
		}
	})

	t.Run("malformed file", func(t *testing.T) {
		cmd, values := newFlagCommand(t, "--credentials", "creds.json")
		if _, err := resolveSettings(cmd, writeConfig(t, "sample_rate: [nope"), *values); err == nil {
			t.Fatalf("expected malformed config to fail")
		}
	})

	t.Run("bad sample rate in environment", func(t *testing.T) {
		t.Setenv("EMA_ASSISTANT_SAMPLE_RATE", "fast")
		cmd, values := newFlagCommand(t, "--credentials", "creds.json")
		if _, err := resolveSettings(cmd, filepath.Join(t.TempDir(), "missing.yaml"), *values); err == nil {
			t.Fatalf("expected invalid sample rate to fail")
		}
	})
}

func TestStateStorePersistsVolume(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.yaml")

	store, err := loadState(path)
	if err != nil {
		t.Fatalf("failed to load missing state: %v", err)
	}
	if store.Volume() != 0 {
		t.Fatalf("expected no saved volume, got %d", store.Volume())
	}
	if err := store.SetVolume(35); err != nil {
		t.Fatalf("failed to save volume: %v", err)
	}

	reloaded, err := loadState(path)
	if err != nil {
		t.Fatalf("failed to reload state: %v", err)
	}
	if reloaded.Volume() != 35 {
		t.Fatalf("expected saved volume 35, got %d", reloaded.Volume())
	}
}

func TestNewAudioBackendRejectsUnknownBackend(t *testing.T) {
	if _, _, err := newAudioBackend("alsa", 16000); err == nil {
		t.Fatalf("expected unknown backend to fail")
	}
}
