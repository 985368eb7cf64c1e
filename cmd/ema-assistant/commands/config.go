package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
)

const (
	// DefaultBaseDir is the per-user directory holding config and state.
	DefaultBaseDir    = ".ema-assistant"
	DefaultConfigFile = "config.yaml"
	DefaultStateFile  = "state.yaml"

	envPrefix = "EMA_ASSISTANT_"
)

type location struct {
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
}

// settings is everything the client needs to build an engine.
type settings struct {
	// Credentials is the path of the OAuth client secrets JSON.
	Credentials string `yaml:"credentials"`

	DeviceModelID    string    `yaml:"device_model_id"`
	DeviceInstanceID string    `yaml:"device_instance_id,omitempty"`
	LanguageCode     string    `yaml:"language_code,omitempty"`
	Location         *location `yaml:"location,omitempty"`
	Endpoint         string    `yaml:"endpoint,omitempty"`

	Backend      string `yaml:"backend,omitempty"`
	SampleRate   int    `yaml:"sample_rate,omitempty"`
	InputDevice  string `yaml:"input_device,omitempty"`
	OutputDevice string `yaml:"output_device,omitempty"`

	HTML      bool   `yaml:"html,omitempty"`
	TapAddr   string `yaml:"tap_addr,omitempty"`
	StateFile string `yaml:"state_file,omitempty"`
}

func defaultSettings() settings {
	return settings{
		LanguageCode: "en-US",
		Backend:      backendPortAudio,
		SampleRate:   16000,
	}
}

func defaultPath(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return name
	}
	return filepath.Join(home, DefaultBaseDir, name)
}

// loadSettingsFile reads path over s. A missing file leaves s untouched.
func loadSettingsFile(s *settings, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, s); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if value, ok := os.LookupEnv(envPrefix + key); ok && value != "" {
		return value
	}
	return fallback
}

func applyEnv(s *settings) error {
	s.Credentials = envOrDefault("CREDENTIALS", s.Credentials)
	s.DeviceModelID = envOrDefault("DEVICE_MODEL_ID", s.DeviceModelID)
	s.DeviceInstanceID = envOrDefault("DEVICE_INSTANCE_ID", s.DeviceInstanceID)
	s.LanguageCode = envOrDefault("LANGUAGE_CODE", s.LanguageCode)
	s.Endpoint = envOrDefault("ENDPOINT", s.Endpoint)
	s.Backend = envOrDefault("BACKEND", s.Backend)
	s.InputDevice = envOrDefault("INPUT_DEVICE", s.InputDevice)
	s.OutputDevice = envOrDefault("OUTPUT_DEVICE", s.OutputDevice)
	s.TapAddr = envOrDefault("TAP_ADDR", s.TapAddr)
	s.StateFile = envOrDefault("STATE_FILE", s.StateFile)

	if value := envOrDefault("SAMPLE_RATE", ""); value != "" {
		rate, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid %sSAMPLE_RATE %q: %w", envPrefix, value, err)
		}
		s.SampleRate = rate
	}
	return nil
}

// applyFlags copies every flag the user actually set over s.
func applyFlags(s *settings, cmd *cobra.Command, values settings) {
	flags := cmd.Flags()
	if flags.Changed("credentials") {
		s.Credentials = values.Credentials
	}
	if flags.Changed("model-id") {
		s.DeviceModelID = values.DeviceModelID
	}
	if flags.Changed("instance-id") {
		s.DeviceInstanceID = values.DeviceInstanceID
	}
	if flags.Changed("language") {
		s.LanguageCode = values.LanguageCode
	}
	if flags.Changed("endpoint") {
		s.Endpoint = values.Endpoint
	}
	if flags.Changed("backend") {
		s.Backend = values.Backend
	}
	if flags.Changed("sample-rate") {
		s.SampleRate = values.SampleRate
	}
	if flags.Changed("input-device") {
		s.InputDevice = values.InputDevice
	}
	if flags.Changed("output-device") {
		s.OutputDevice = values.OutputDevice
	}
	if flags.Changed("html") {
		s.HTML = values.HTML
	}
	if flags.Changed("tap") {
		s.TapAddr = values.TapAddr
	}
	if flags.Changed("state") {
		s.StateFile = values.StateFile
	}
}

// resolveSettings layers defaults, the config file, the environment and
// flags.
func resolveSettings(cmd *cobra.Command, configPath string, values settings) (settings, error) {
	s := defaultSettings()

	if configPath == "" {
		configPath = defaultPath(DefaultConfigFile)
	}
	if err := loadSettingsFile(&s, configPath); err != nil {
		return settings{}, err
	}
	if err := applyEnv(&s); err != nil {
		return settings{}, err
	}
	applyFlags(&s, cmd, values)

	if s.StateFile == "" {
		s.StateFile = defaultPath(DefaultStateFile)
	}
	if s.Credentials == "" {
		return settings{}, fmt.Errorf("no credentials file, set --credentials or %sCREDENTIALS", envPrefix)
	}
	return s, nil
}

// bindFlags registers the settings flags of cmd on values.
func bindFlags(cmd *cobra.Command, values *settings) {
	flags := cmd.Flags()
	flags.StringVar(&values.Credentials, "credentials", "", "OAuth client secrets JSON with a refresh token")
	flags.StringVar(&values.DeviceModelID, "model-id", "", "registered device model id")
	flags.StringVar(&values.DeviceInstanceID, "instance-id", "", "registered device instance id (random when unset)")
	flags.StringVar(&values.LanguageCode, "language", "", "language code, for example en-US")
	flags.StringVar(&values.Endpoint, "endpoint", "", "assistant gRPC endpoint")
	flags.StringVar(&values.Backend, "backend", "", "audio backend: portaudio or miniaudio")
	flags.IntVar(&values.SampleRate, "sample-rate", 0, "capture and playback sample rate")
	flags.StringVar(&values.InputDevice, "input-device", "", "preferred capture device name")
	flags.StringVar(&values.OutputDevice, "output-device", "", "preferred playback device name")
	flags.BoolVar(&values.HTML, "html", false, "request HTML screen output")
	flags.StringVar(&values.TapAddr, "tap", "", "serve events over websocket on this address")
	flags.StringVar(&values.StateFile, "state", "", "state file (default is ~/.ema-assistant/state.yaml)")
}
