package wsrelay

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const scopeName = "github.com/koscakluka/ema-discuss/core/presentation/wsrelay"

var (
	meter  = otel.Meter(scopeName)
	logger = otelslog.NewLogger(scopeName)
)

var (
	connectedClients, _ = meter.Int64UpDownCounter("relay.clients",
		metric.WithDescription("Websocket clients connected to the relay"),
		metric.WithUnit("{client}"),
	)
	droppedClients, _ = meter.Int64Counter("relay.clients.dropped",
		metric.WithDescription("Websocket clients disconnected for falling behind"),
		metric.WithUnit("{client}"),
	)
)
