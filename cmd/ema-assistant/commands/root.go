package commands

import (
	"context"
	"fmt"
	"log"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	assistant "github.com/koscakluka/ema-assistant/core"
	"github.com/koscakluka/ema-assistant/core/credentials"
	"github.com/koscakluka/ema-assistant/internal/eventtap"
)

var (
	cfgFile    string
	flagValues settings
)

var rootCmd = &cobra.Command{
	Use:   "ema-assistant",
	Short: "Push-to-talk Google Assistant client",
	Long: `ema-assistant talks to the Google Assistant over its embedded gRPC API.

Press space to talk, or t to type a query. The assistant answers out loud and
follow-on questions keep the microphone open without another key press.

Configuration is read from ~/.ema-assistant/config.yaml, then EMA_ASSISTANT_*
environment variables, then flags.

Examples:
  # Talk using a credentials file from google-oauthlib-tool
  ema-assistant --credentials ~/.config/google-oauthlib-tool/credentials.json --model-id my-model

  # Use miniaudio and forward events to a websocket viewer
  ema-assistant --backend miniaudio --tap localhost:8089
`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file (default is ~/.ema-assistant/config.yaml)")
	bindFlags(rootCmd, &flagValues)
}

func run(cmd *cobra.Command, _ []string) error {
	s, err := resolveSettings(cmd, cfgFile, flagValues)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	tokenSource, err := credentials.FromFile(ctx, s.Credentials)
	if err != nil {
		return err
	}

	state, err := loadState(s.StateFile)
	if err != nil {
		return err
	}

	var sinks []eventSink
	if s.TapAddr != "" {
		tap := eventtap.New()
		sinks = append(sinks, tap)
		go func() {
			if err := tap.ListenAndServe(ctx, s.TapAddr); err != nil {
				log.Printf("Event tap stopped: %v", err)
			}
		}()
	}
	eventBridge := newBridge(state, sinks...)
	defer eventBridge.close()

	source, sinkFactory, err := newAudioBackend(s.Backend, s.SampleRate)
	if err != nil {
		return err
	}

	opts := []assistant.Option{
		assistant.WithRequestHandler(eventBridge),
		assistant.WithConversationHandler(eventBridge),
		assistant.WithCredentials(tokenSource),
		assistant.WithSampleRate(s.SampleRate),
		assistant.WithDeviceModelID(s.DeviceModelID),
		assistant.WithDeviceInstanceID(s.DeviceInstanceID),
		assistant.WithLanguageCode(s.LanguageCode),
		assistant.WithAudioSource(source),
		assistant.WithAudioSinkFactory(sinkFactory),
		assistant.WithPreferredInputDevice(s.InputDevice),
		assistant.WithPreferredOutputDevice(s.OutputDevice),
	}
	if s.Endpoint != "" {
		opts = append(opts, assistant.WithEndpoint(s.Endpoint))
	}
	if volume := state.Volume(); volume > 0 {
		opts = append(opts, assistant.WithVolume(volume))
	}
	if s.HTML {
		opts = append(opts, assistant.WithResponseFormat(assistant.ResponseFormatHTML))
	}
	if loc := s.Location; loc != nil {
		opts = append(opts, assistant.WithDeviceLocation(loc.Latitude, loc.Longitude))
	}

	engine, err := assistant.New(opts...)
	if err != nil {
		_ = source.Close()
		return err
	}
	defer func() {
		// Handlers may be blocked on a UI that is gone.
		eventBridge.close()
		if err := engine.Destroy(); err != nil {
			log.Printf("Failed to shut down engine: %v", err)
		}
	}()

	if err := engine.Connect(ctx); err != nil {
		return err
	}

	program := tea.NewProgram(newModel(engine, eventBridge.Events()), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("terminal ui failed: %w", err)
	}
	return nil
}
