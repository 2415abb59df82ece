package controller

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const scopeName = "github.com/koscakluka/ema-discuss/core"

var (
	tracer = otel.Tracer(scopeName)
	meter  = otel.Meter(scopeName)
	logger = otelslog.NewLogger(scopeName)
)

var (
	dispatchedEvents, _ = meter.Int64Counter("dialog.events.dispatched",
		metric.WithDescription("Stream events dispatched to the turn assembler"),
		metric.WithUnit("{event}"),
	)
	protocolViolations, _ = meter.Int64Counter("dialog.events.protocol_violations",
		metric.WithDescription("Stream events ignored because they arrived out of order"),
		metric.WithUnit("{event}"),
	)
	streamReopens, _ = meter.Int64Counter("dialog.stream.reopens",
		metric.WithDescription("Streams reopened after an intervention extended a finished dialog"),
		metric.WithUnit("{stream}"),
	)
)
