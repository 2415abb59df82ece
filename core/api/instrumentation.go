package api

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const scopeName = "github.com/koscakluka/ema-discuss/core/api"

var (
	tracer = otel.Tracer(scopeName)
	meter  = otel.Meter(scopeName)
	logger = otelslog.NewLogger(scopeName)
)

var streamFrames, _ = meter.Int64Counter("dialog.stream.frames",
	metric.WithDescription("Server-sent event frames decoded from dialog streams"),
	metric.WithUnit("{frame}"),
)
