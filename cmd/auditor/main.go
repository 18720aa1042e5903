// The auditor tails the assembly event topic and writes an audit log
// line per lifecycle event. It is a read-side collaborator; the engine
// never depends on it.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/segmentio/kafka-go"

	"example.com/assembly/internal/config"
	"example.com/assembly/internal/events"
)

type auditHandler struct {
	logger *log.Logger
}

func (h *auditHandler) Handle(_ context.Context, msg events.Message) error {
	switch msg.EventType {
	case events.TypeAssemblyStarted:
		var event events.AssemblyStartedEvent
		if err := json.Unmarshal(msg.Payload, &event); err != nil {
			return err
		}
		h.logger.Printf("started entry=%s worker=%s unit=%s expected_end=%s",
			event.EntryID, event.WorkerID, event.UnitID, event.ExpectedEndAt.Format("15:04:05"))
	case events.TypeAssemblyCompleted:
		var event events.AssemblyCompletedEvent
		if err := json.Unmarshal(msg.Payload, &event); err != nil {
			return err
		}
		h.logger.Printf("completed entry=%s worker=%s unit=%s cause=%s ended=%s",
			event.EntryID, event.WorkerID, event.UnitID, event.Cause, event.EndedAt.Format("15:04:05"))
	default:
		h.logger.Printf("unknown event_type=%s offset=%d", msg.EventType, msg.Offset)
	}
	return nil
}

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.KafkaBrokers,
		GroupID: "assembly-auditor",
		Topic:   events.Topic,
	})
	defer reader.Close()

	processor := events.NewProcessor(reader, &auditHandler{
		logger: log.New(os.Stdout, "[audit] ", log.LstdFlags),
	})

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-shutdownCh
		cancel()
	}()

	if err := processor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("auditor error: %v", err)
	}
}
