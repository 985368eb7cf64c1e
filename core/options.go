package assistant

import (
	"github.com/koscakluka/ema-assistant/core/audio"
	"github.com/koscakluka/ema-assistant/core/transport"
	"github.com/koscakluka/ema-assistant/internal/utils"
	"golang.org/x/oauth2"
)

type Option func(*Config)

// WithRequestHandler sets the handler for request events. Request events
// are delivered on a dedicated queue unless WithRequestExecutor is set.
func WithRequestHandler(handler Handler) Option {
	return func(c *Config) { c.RequestHandler = handler }
}

func WithRequestExecutor(executor Executor) Option {
	return func(c *Config) { c.RequestExecutor = executor }
}

// WithConversationHandler sets the handler for response and conversation
// events.
func WithConversationHandler(handler Handler) Option {
	return func(c *Config) { c.ConversationHandler = handler }
}

func WithConversationExecutor(executor Executor) Option {
	return func(c *Config) { c.ConversationExecutor = executor }
}

func WithCredentials(tokenSource oauth2.TokenSource) Option {
	return func(c *Config) { c.Credentials = tokenSource }
}

// WithSampleRate sets the rate used for capture, playback and both audio
// configs sent upstream.
func WithSampleRate(sampleRate int) Option {
	return func(c *Config) { c.SampleRate = sampleRate }
}

func WithBlockSize(blockSize int) Option {
	return func(c *Config) { c.BlockSize = blockSize }
}

func WithDeviceModelID(id string) Option {
	return func(c *Config) { c.DeviceModelID = id }
}

// WithDeviceInstanceID sets the registered device id. A random id is used
// when unset.
func WithDeviceInstanceID(id string) Option {
	return func(c *Config) { c.DeviceInstanceID = id }
}

func WithLanguageCode(code string) Option {
	return func(c *Config) { c.LanguageCode = code }
}

func WithVolume(percentage int) Option {
	return func(c *Config) { c.Volume = percentage }
}

func WithDeviceLocation(latitude, longitude float64) Option {
	return func(c *Config) {
		c.DeviceLocation = utils.Ptr(DeviceLocation{Latitude: latitude, Longitude: longitude})
	}
}

func WithResponseFormat(format ResponseFormat) Option {
	return func(c *Config) { c.ResponseFormat = format }
}

// WithPreferredInputDevice selects a capture device by name. It only has an
// effect on sources that implement audio.DeviceSelector.
func WithPreferredInputDevice(name string) Option {
	return func(c *Config) { c.PreferredInputDevice = name }
}

func WithPreferredOutputDevice(name string) Option {
	return func(c *Config) { c.PreferredOutputDevice = name }
}

func WithAudioSource(source audio.Source) Option {
	return func(c *Config) { c.AudioSource = source }
}

func WithAudioSinkFactory(factory audio.SinkFactory) Option {
	return func(c *Config) { c.SinkFactory = factory }
}

// WithTransport replaces the gRPC transport dialed by Connect.
func WithTransport(t transport.Transport) Option {
	return func(c *Config) { c.Transport = t }
}

func WithEndpoint(endpoint string) Option {
	return func(c *Config) { c.Endpoint = endpoint }
}

func WithSizeHeuristic(enabled bool) Option {
	return func(c *Config) { c.SizeHeuristic = enabled }
}
