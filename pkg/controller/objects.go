package controller

import (
	"fmt"
	"math"
)

// Object dictionary entries used by the driver, all on subindex 0
const (
	ControlWord      int16 = 0x6040
	StatusWord       int16 = 0x6041
	OperationMode    int16 = 0x6060
	MaxVelocity      int16 = 0x607F
	MaxAcceleration  int16 = 0x60C5
	VelocitySetpoint int16 = 0x206B
)

// Control word commands
const (
	CommandDisableVoltage int32 = 0x0000
	CommandShutdown       int32 = 0x0006
	CommandEnable         int32 = 0x000F // Switch on and enable operation
	CommandFaultReset     int32 = 0x0080
)

const ModeVelocity int32 = -2

// PowerState is the masked status word of the controller
type PowerState uint16

const (
	SwitchOnDisabled PowerState = 0x0140
	ReadyToSwitchOn  PowerState = 0x0121
	SwitchedOn       PowerState = 0x0123
	OperationEnabled PowerState = 0x0137
	QuickStopActive  PowerState = 0x0117
	Fault            PowerState = 0x0108
)

var powerStateDescription = map[PowerState]string{
	SwitchOnDisabled: "SWITCH-ON-DISABLED",
	ReadyToSwitchOn:  "READY-TO-SWITCH-ON",
	SwitchedOn:       "SWITCHED-ON",
	OperationEnabled: "OPERATION-ENABLED",
	QuickStopActive:  "QUICK-STOP-ACTIVE",
	Fault:            "FAULT",
}

func (p PowerState) String() string {
	description, ok := powerStateDescription[p]
	if ok {
		return description
	}
	return fmt.Sprintf("UNKNOWN(x%x)", uint16(p))
}

// statusTransition returns the enable step that handles status word,
// false when the word is not a state the sequence knows how to leave.
func statusTransition(word uint16) (EnableStep, bool) {
	switch PowerState(word) {
	case SwitchOnDisabled:
		return EnableShutdown, true
	case ReadyToSwitchOn, SwitchedOn:
		return EnableSwitchOn, true
	case OperationEnabled:
		return EnableSetMode, true
	case QuickStopActive:
		return EnableClearQuickStop, true
	case Fault:
		return EnableResetFault, true
	}
	return EnableReadStatus, false
}

// RPM converts a linear speed into the velocity setpoint of the motor,
// truncated toward zero. The speed is not bounded.
func RPM(speed float64) int32 {
	return int32(speed * 81 / (math.Pi * 84) * 60)
}
