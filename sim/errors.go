package sim

import "errors"

// Command errors. The orchestrator never fails fatally on a rejected command;
// callers may ignore these.
var (
	ErrNotEditMode      = errors.New("command requires edit mode")
	ErrNotRunning       = errors.New("command requires a running simulation")
	ErrOutOfBounds      = errors.New("position outside the grid")
	ErrCellOccupied     = errors.New("cell is not empty")
	ErrAutoDeployActive = errors.New("manual deploy is disabled while auto-deploy is on")
	ErrUnknownCommand   = errors.New("unknown command")
)
