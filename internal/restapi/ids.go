package restapi

import "github.com/google/uuid"

func newEmergencyID() string {
	return uuid.NewString()
}
