package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aegis-fleet/orchestrator/internal/pubsub"
)

func publishJSON(ctx context.Context, transport pubsub.Transport, topic string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return transport.Publish(ctx, topic, payload)
}

func errEmergencyUnknown(emergencyID string) error {
	return fmt.Errorf("emergency %q unknown", emergencyID)
}

func errAlreadyResolved(emergencyID string) error {
	return fmt.Errorf("emergency %q already resolved", emergencyID)
}
