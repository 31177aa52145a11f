package epos

import "context"

// Motor groups the basic functions every motor controller driver offers.
type Motor interface {
	// Bring the drive into its operational state
	Enable(ctx context.Context) Result
	// Remove power from the drive
	Disable(ctx context.Context) Result
	// Set the linear speed in mm/min and run the motor
	SetSpeed(ctx context.Context, speed float64) Result
}
