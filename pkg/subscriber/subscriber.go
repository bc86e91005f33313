package subscriber

import (
	"fmt"
	"strings"

	"github.com/jdtzmn/port/pkg/config"
	"github.com/jdtzmn/port/pkg/jobs"
	"github.com/jdtzmn/port/pkg/log"
	"github.com/jdtzmn/port/pkg/metrics"
	"github.com/jdtzmn/port/pkg/types"
)

// Handler delivers one event to a consumer. Handlers must be idempotent
// enough to tolerate redelivery of the same batch if a later event in it
// fails: DispatchBatch only advances the cursor once the whole batch
// succeeds.
type Handler interface {
	Handle(repo string, event types.TaskEvent) error
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(repo string, event types.TaskEvent) error

func (f HandlerFunc) Handle(repo string, event types.TaskEvent) error { return f(repo, event) }

// BatchSize is the default number of events delivered per dispatch call
// per consumer.
const BatchSize = 100

// Dispatcher fans the global event stream out to every configured
// consumer. It satisfies the narrow daemon.Dispatcher interface so a
// dispatch failure for one consumer never reaches the scheduler loop.
type Dispatcher struct {
	Consumers map[string]Handler
}

// NewDispatcher builds a Dispatcher from a repo's subscribers config,
// wiring the built-in "opencode" handler for any consumer named
// "opencode" and leaving any other named consumer unresolved (logged,
// skipped) unless the caller registers it via RegisterConsumer — the
// extension point §4.J's design notes call for.
func NewDispatcher(cfg config.SubscribersConfig) *Dispatcher {
	d := &Dispatcher{Consumers: map[string]Handler{}}
	if !cfg.Enabled {
		return d
	}
	for _, name := range cfg.Consumers {
		if name == "opencode" {
			d.Consumers[name] = OpencodeHandler{}
		} else {
			log.WithComponent("subscriber").Warn().Str("consumer", name).Msg("no built-in handler for consumer; skipping")
		}
	}
	return d
}

// RegisterConsumer wires an additional consumer handler, for extensions
// beyond the built-in opencode notifier.
func (d *Dispatcher) RegisterConsumer(name string, h Handler) {
	d.Consumers[name] = h
}

// Dispatch delivers one batch of unseen events to every configured
// consumer for repo. A failure dispatching to one consumer is logged and
// does not prevent the others from running.
func (d *Dispatcher) Dispatch(repo string) error {
	dispatchLog := log.WithComponent("subscriber")
	for name, handler := range d.Consumers {
		timer := metrics.NewTimer()
		_, err := jobs.DispatchBatch(repo, name, BatchSize, func(event types.TaskEvent) error {
			return handler.Handle(repo, event)
		})
		timer.ObserveDurationVec(metrics.SubscriberDispatchDuration, name)
		if err != nil {
			dispatchLog.Error().Err(err).Str("consumer", name).Msg("subscriber dispatch failed")
		}
	}
	return nil
}

// OpencodeHandler is the built-in consumer: it appends one XML-ish
// notification line per event to the consumer's notification log, the
// format opencode's session-event ingestion expects.
type OpencodeHandler struct{}

func (OpencodeHandler) Handle(repo string, event types.TaskEvent) error {
	line := formatOpencodeNotification(event)
	return jobs.AppendNotification(repo, "opencode", line)
}

func formatOpencodeNotification(event types.TaskEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<task-event id=%q task=%q type=%q at=%q",
		event.ID, event.TaskID, event.Type, event.At.Format("2006-01-02T15:04:05Z07:00"))
	if event.Message == "" {
		b.WriteString(" />")
		return b.String()
	}
	fmt.Fprintf(&b, ">%s</task-event>", escapeXML(event.Message))
	return b.String()
}

func escapeXML(s string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
	)
	return replacer.Replace(s)
}
