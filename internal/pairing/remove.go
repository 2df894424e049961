package pairing

import (
	"context"

	"hap-ble-bridge/internal/hap"
)

// Remove asks the accessory to forget a controller pairing. It returns nil
// as its result on success.
type Remove struct {
	char         *hap.Characteristic
	controllerID string
}

// NewRemove builds a remove-pairing procedure writing to the pairings
// characteristic char.
func NewRemove(char *hap.Characteristic, controllerID string) *Remove {
	return &Remove{char: char, controllerID: controllerID}
}

// Name implements hap.Procedure.
func (r *Remove) Name() string { return "remove-pairing" }

// Execute implements hap.Procedure.
func (r *Remove) Execute(ctx context.Context, ch hap.Channel) (any, error) {
	_, err := exchange(ctx, ch, r.char, removeRequest{
		State:      1,
		Method:     MethodRemovePairing,
		Identifier: r.controllerID,
	}, 2)
	return nil, err
}
