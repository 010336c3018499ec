package fleet

import (
	"context"
	"encoding/json"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aegis-fleet/orchestrator/internal/fleetmodel"
	"github.com/aegis-fleet/orchestrator/internal/pubsub"
)

// alertPayload is the subset of PredictiveAlert's wire shape the ingress
// listener needs; vehicle_id is all that drives the has_active_alert
// transition.
type alertPayload struct {
	VehicleID string `json:"vehicle_id"`
}

type heartbeatPayload struct {
	VehicleID string    `json:"vehicle_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Listen subscribes to the three vehicle-scoped patterns assigned to the
// orchestrator and feeds every decoded message into store, until ctx is
// cancelled. Malformed payloads are logged and dropped; they never stop
// the loop.
func Listen(ctx context.Context, transport pubsub.Transport, store *Store) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return listenTelemetry(ctx, transport, store) })
	g.Go(func() error { return listenHeartbeat(ctx, transport, store) })
	g.Go(func() error { return listenAlerts(ctx, transport, store) })

	return g.Wait()
}

func listenTelemetry(ctx context.Context, transport pubsub.Transport, store *Store) error {
	sub, err := transport.PSubscribe(ctx, pubsub.PatternTelemetry)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	logger := store.Logger()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-sub.C():
			if !ok {
				return nil
			}
			var t fleetmodel.VehicleTelemetry
			if err := json.Unmarshal(msg.Payload, &t); err != nil {
				logger.Warn().Err(err).Str("topic", msg.Topic).Msg("malformed telemetry payload")
				continue
			}
			if t.VehicleID == "" {
				logger.Warn().Str("topic", msg.Topic).Msg("telemetry payload missing vehicle_id")
				continue
			}
			if err := store.IngestTelemetry(ctx, t); err != nil {
				return err
			}
		}
	}
}

func listenHeartbeat(ctx context.Context, transport pubsub.Transport, store *Store) error {
	sub, err := transport.PSubscribe(ctx, pubsub.PatternHeartbeat)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	logger := store.Logger()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-sub.C():
			if !ok {
				return nil
			}
			var hb heartbeatPayload
			if err := json.Unmarshal(msg.Payload, &hb); err != nil || hb.VehicleID == "" {
				logger.Warn().Str("topic", msg.Topic).Msg("malformed heartbeat payload")
				continue
			}
			if err := store.IngestHeartbeat(ctx, hb.VehicleID, hb.Timestamp); err != nil {
				return err
			}
		}
	}
}

func listenAlerts(ctx context.Context, transport pubsub.Transport, store *Store) error {
	sub, err := transport.PSubscribe(ctx, pubsub.PatternAlerts)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	logger := store.Logger()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-sub.C():
			if !ok {
				return nil
			}
			var a alertPayload
			if err := json.Unmarshal(msg.Payload, &a); err != nil || a.VehicleID == "" {
				logger.Warn().Str("topic", msg.Topic).Msg("malformed alert payload")
				continue
			}
			if err := store.IngestAlert(ctx, a.VehicleID); err != nil {
				return err
			}
		}
	}
}
