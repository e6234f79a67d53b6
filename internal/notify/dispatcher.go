package notify

import (
	"context"
	"errors"
	"time"

	"circleburo/internal/events"
	"circleburo/internal/metrics"

	"github.com/rs/zerolog"
)

// ErrSinkDisabled синк не настроен, событие пропущено.
var ErrSinkDisabled = errors.New("notification sink disabled")

const defaultSendTimeout = 10 * time.Second

// Sink внешний получатель уведомлений о заявках.
type Sink interface {
	Name() string
	Notify(ctx context.Context, event *events.Event) error
}

type route struct {
	sink  Sink
	types map[string]bool
}

// Dispatcher доставляет события шины в синки из одной горутины.
// Очередь ограничена; при переполнении событие выбрасывается, мутация не ждёт.
type Dispatcher struct {
	routes  []route
	queue   chan *events.Event
	timeout time.Duration
	logger  *zerolog.Logger
}

func NewDispatcher(queueSize int, logger *zerolog.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 100
	}
	return &Dispatcher{
		queue:   make(chan *events.Event, queueSize),
		timeout: defaultSendTimeout,
		logger:  logger,
	}
}

// AddSink регистрирует синк для перечисленных типов событий.
func (d *Dispatcher) AddSink(sink Sink, eventTypes ...string) {
	types := make(map[string]bool, len(eventTypes))
	for _, t := range eventTypes {
		types[t] = true
	}
	d.routes = append(d.routes, route{sink: sink, types: types})
}

// Attach подписывает диспетчер на шину; вызывать после AddSink.
func (d *Dispatcher) Attach(bus *events.EventBus) {
	seen := make(map[string]bool)
	var types []string
	for _, r := range d.routes {
		for t := range r.types {
			if !seen[t] {
				seen[t] = true
				types = append(types, t)
			}
		}
	}
	bus.Subscribe(d.Enqueue, types...)
}

// Enqueue кладёт событие в очередь без блокировки.
func (d *Dispatcher) Enqueue(event *events.Event) error {
	select {
	case d.queue <- event:
	default:
		metrics.IncNotification("queue", "dropped")
		d.logger.Warn().Str("event_type", event.Type).Msg("notification queue full, event dropped")
	}
	return nil
}

// Run разбирает очередь до отмены ctx.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info().Int("sinks", len(d.routes)).Msg("notification dispatcher started")
	defer d.logger.Info().Msg("notification dispatcher stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-d.queue:
			d.deliver(ctx, event)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, event *events.Event) {
	for _, r := range d.routes {
		if !r.types[event.Type] {
			continue
		}

		sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
		err := r.sink.Notify(sendCtx, event)
		cancel()

		switch {
		case err == nil:
			metrics.IncNotification(r.sink.Name(), "sent")
		case errors.Is(err, ErrSinkDisabled):
			metrics.IncNotification(r.sink.Name(), "disabled")
		default:
			metrics.IncNotification(r.sink.Name(), "failed")
			d.logger.Error().Err(err).
				Str("sink", r.sink.Name()).
				Str("event_type", event.Type).
				Msg("failed to deliver notification")
		}
	}
}
