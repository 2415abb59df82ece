package controller

import (
	"context"
	"errors"
	"fmt"

	"github.com/koscakluka/ema-discuss/core/dialog"
	"github.com/koscakluka/ema-discuss/core/events"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type eventHandler func(events.Event) error

// dispatchTable maps each stream event kind to its handler. Kinds without a
// handler are dropped.
type dispatchTable map[events.Kind]eventHandler

func newAssemblerDispatchTable(assembler *turnAssembler) dispatchTable {
	return dispatchTable{
		events.KindTurnStarted:   handlerFor(assembler.turnStarted),
		events.KindTokenReceived: handlerFor(assembler.tokenReceived),
		events.KindTurnEnded:     handlerFor(assembler.turnEnded),
		events.KindDialogEnded:   handlerFor(assembler.dialogEnded),
	}
}

func handlerFor[E events.Event](handle func(E) error) eventHandler {
	return func(event events.Event) error {
		typedEvent, ok := event.(E)
		if !ok {
			return fmt.Errorf("unexpected %T for %q event", event, event.Kind())
		}
		return handle(typedEvent)
	}
}

// dispatch runs the handler for event. Protocol violations are logged and
// otherwise ignored.
func (t dispatchTable) dispatch(ctx context.Context, event events.Event) {
	handle, ok := t[event.Kind()]
	if !ok {
		logger.DebugContext(ctx, "no handler for stream event", "event", event.Kind())
		return
	}

	kind := attribute.String("event", string(event.Kind()))
	dispatchedEvents.Add(ctx, 1, metric.WithAttributes(kind))

	err := handle(event)
	var violation *dialog.ProtocolViolation
	switch {
	case err == nil:
	case errors.As(err, &violation):
		protocolViolations.Add(ctx, 1, metric.WithAttributes(kind))
		logger.WarnContext(ctx, "ignoring out of order stream event", "event", event.Kind(), "error", err)
	default:
		logger.ErrorContext(ctx, "failed to handle stream event", "event", event.Kind(), "error", err)
	}
}
