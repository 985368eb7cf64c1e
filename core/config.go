package assistant

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"
	"github.com/koscakluka/ema-assistant/core/audio"
	"github.com/koscakluka/ema-assistant/core/transport"
	"golang.org/x/oauth2"
)

const (
	DefaultLanguageCode = "en-US"
	DefaultVolume       = 100
)

type ResponseFormat int32

const (
	// ResponseFormatText asks for no screen output.
	ResponseFormatText ResponseFormat = iota
	// ResponseFormatHTML asks for HTML screen output with every response.
	ResponseFormatHTML
)

func (f ResponseFormat) String() string {
	switch f {
	case ResponseFormatText:
		return "text"
	case ResponseFormatHTML:
		return "html"
	}
	return fmt.Sprintf("ResponseFormat(%d)", int32(f))
}

type DeviceLocation struct {
	Latitude  float64
	Longitude float64
}

// Settings is the plain data part of Config. It is deep copied when the
// engine is built so later changes by the caller have no effect.
type Settings struct {
	SampleRate int
	// BlockSize is the capture frame size in bytes.
	BlockSize int

	DeviceModelID    string
	DeviceInstanceID string
	LanguageCode     string
	DeviceLocation   *DeviceLocation

	// Volume is the initial playback volume in percent.
	Volume         int
	ResponseFormat ResponseFormat

	PreferredInputDevice  string
	PreferredOutputDevice string

	Endpoint string
	// SizeHeuristic starts playback as soon as an audio chunk is not larger
	// than the largest one seen so far, instead of waiting for the stream to
	// complete.
	SizeHeuristic bool
}

type Config struct {
	Settings

	RequestHandler       Handler
	RequestExecutor      Executor
	ConversationHandler  Handler
	ConversationExecutor Executor

	Credentials oauth2.TokenSource

	AudioSource audio.Source
	SinkFactory audio.SinkFactory
	Transport   transport.Transport
}

func defaultConfig() Config {
	return Config{
		Settings: Settings{
			BlockSize:      audio.DefaultBlockSize,
			LanguageCode:   DefaultLanguageCode,
			Volume:         DefaultVolume,
			ResponseFormat: ResponseFormatText,
			Endpoint:       transport.DefaultEndpoint,
			SizeHeuristic:  true,
		},
	}
}

func (c Config) validate() error {
	switch {
	case c.RequestHandler == nil:
		return &ConfigError{Field: "RequestHandler", Reason: "is required"}
	case c.ConversationHandler == nil:
		return &ConfigError{Field: "ConversationHandler", Reason: "is required"}
	case c.Credentials == nil:
		return &ConfigError{Field: "Credentials", Reason: "is required"}
	case c.SampleRate <= 0:
		return &ConfigError{Field: "SampleRate", Reason: "must be positive"}
	case c.BlockSize <= 0 || c.BlockSize%2 != 0:
		return &ConfigError{Field: "BlockSize", Reason: "must be a positive even number of bytes"}
	case c.Volume < 0 || c.Volume > 100:
		return &ConfigError{Field: "Volume", Reason: "must be between 0 and 100"}
	case c.LanguageCode == "":
		return &ConfigError{Field: "LanguageCode", Reason: "must not be empty"}
	case c.ResponseFormat != ResponseFormatText && c.ResponseFormat != ResponseFormatHTML:
		return &ConfigError{Field: "ResponseFormat", Reason: "must be text or html"}
	case c.Transport == nil && c.Endpoint == "":
		return &ConfigError{Field: "Endpoint", Reason: "is required without a transport"}
	}

	if loc := c.DeviceLocation; loc != nil {
		if loc.Latitude < -90 || loc.Latitude > 90 || loc.Longitude < -180 || loc.Longitude > 180 {
			return &ConfigError{Field: "DeviceLocation", Reason: "must be valid coordinates"}
		}
	}

	return nil
}

// frozen returns a copy of c whose settings share no memory with c.
func (c Config) frozen() (Config, error) {
	var settings Settings
	if err := copier.CopyWithOption(&settings, &c.Settings, copier.Option{DeepCopy: true}); err != nil {
		return Config{}, fmt.Errorf("failed to copy settings: %w", err)
	}
	if settings.DeviceInstanceID == "" {
		settings.DeviceInstanceID = uuid.NewString()
	}

	c.Settings = settings
	return c, nil
}
