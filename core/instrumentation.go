package assistant

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const scopeName = "github.com/koscakluka/ema-assistant/core"

var (
	tracer = otel.Tracer(scopeName)
	meter  = otel.Meter(scopeName)
	logger = otelslog.NewLogger(scopeName)
)

var (
	turnsCounter, _ = meter.Int64Counter("assistant.turns",
		metric.WithDescription("Turns ended, by outcome"))
	audioInBytes, _ = meter.Int64Counter("assistant.audio_in.bytes",
		metric.WithDescription("Captured audio sent upstream"), metric.WithUnit("By"))
	audioOutBytes, _ = meter.Int64Counter("assistant.audio_out.bytes",
		metric.WithDescription("Response audio written to the sink"), metric.WithUnit("By"))
)
