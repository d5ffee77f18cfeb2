// workers/activity_consumer.go
package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"gamification-ledger/logger"
	"gamification-ledger/services"

	"github.com/streadway/amqp"
)

const (
	KindDailyActivity   = "daily_activity"
	KindMissionProgress = "mission_progress"
)

// ActivityEvent is published by platform modules when a user does something that counts.
type ActivityEvent struct {
	EventID    string `json:"event_id"`
	ProfileID  string `json:"profile_id"`
	Kind       string `json:"kind"`
	TargetType string `json:"target_type,omitempty"`
}

var errBadEvent = errors.New("malformed activity event")

type ActivityConsumer struct {
	profiles *services.ProfileService
	streaks  *services.StreakService
	missions *services.MissionService
	dedupe   Deduper
	log      *logger.Logger
}

func NewActivityConsumer(profiles *services.ProfileService, streaks *services.StreakService, missions *services.MissionService, dedupe Deduper, log *logger.Logger) *ActivityConsumer {
	return &ActivityConsumer{
		profiles: profiles,
		streaks:  streaks,
		missions: missions,
		dedupe:   dedupe,
		log:      log.With("worker", "activity_consumer"),
	}
}

// Connect dials the broker and declares the durable activity queue.
func Connect(url, queueName string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("declare queue %s: %w", queueName, err)
	}
	return conn, ch, nil
}

// Start runs n consumer goroutines until ctx is done. The returned WaitGroup tracks them.
func (c *ActivityConsumer) Start(ctx context.Context, ch *amqp.Channel, queueName string, n int) (*sync.WaitGroup, error) {
	if n < 1 {
		n = 1
	}
	if err := ch.Qos(n*4, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}
	msgs, err := ch.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", queueName, err)
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case d, ok := <-msgs:
					if !ok {
						return
					}
					c.Handle(ctx, d)
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	c.log.Info("activity consumers started", "queue", queueName, "consumers", n)
	return &wg, nil
}

// Handle processes one delivery. Successes and permanent failures are acked;
// anything else is requeued.
func (c *ActivityConsumer) Handle(ctx context.Context, d amqp.Delivery) {
	var ev ActivityEvent
	if err := json.Unmarshal(d.Body, &ev); err != nil {
		c.log.Warn("dropping undecodable event", "error", err)
		_ = d.Ack(false)
		return
	}

	if ev.EventID != "" {
		claimed, err := c.dedupe.Claim(ctx, ev.EventID)
		if err != nil {
			c.log.Error("dedupe claim failed", "event_id", ev.EventID, "error", err)
			_ = d.Nack(false, true)
			return
		}
		if !claimed {
			_ = d.Ack(false)
			return
		}
	}

	err := c.process(ctx, ev)
	switch {
	case err == nil:
	case isTerminal(err):
		c.log.Warn("dropping event", "event_id", ev.EventID, "kind", ev.Kind, "error", err)
	default:
		c.log.Error("event failed, requeueing", "event_id", ev.EventID, "kind", ev.Kind, "error", err)
		if ev.EventID != "" {
			if err := c.dedupe.Release(ctx, ev.EventID); err != nil {
				c.log.Warn("failed to release event claim", "event_id", ev.EventID, "error", err)
			}
		}
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}

func (c *ActivityConsumer) process(ctx context.Context, ev ActivityEvent) error {
	if strings.TrimSpace(ev.ProfileID) == "" {
		return errBadEvent
	}
	switch ev.Kind {
	case KindDailyActivity:
		if _, err := c.profiles.EnsureProfile(ctx, ev.ProfileID); err != nil {
			return err
		}
		_, err := c.streaks.RegisterActivity(ctx, ev.ProfileID)
		return err
	case KindMissionProgress:
		_, err := c.missions.UpdateMissionProgress(ctx, ev.ProfileID, ev.TargetType)
		return err
	default:
		return fmt.Errorf("kind %q: %w", ev.Kind, errBadEvent)
	}
}

func isTerminal(err error) bool {
	return errors.Is(err, errBadEvent) ||
		errors.Is(err, services.ErrInvalidInput) ||
		errors.Is(err, services.ErrProfileNotFound) ||
		errors.Is(err, services.ErrStreakNotFound)
}
