package sim

// Power states as reported by the status word, masked with 0x417F
const (
	StateSwitchOnDisabled uint16 = 0x0140
	StateReadyToSwitchOn  uint16 = 0x0121
	StateSwitchedOn       uint16 = 0x0123
	StateOperationEnabled uint16 = 0x0137
	StateQuickStopActive  uint16 = 0x0117
	StateFault            uint16 = 0x0108
)

// Control word commands understood by the device
const (
	cmdDisableVoltage int32 = 0x0000
	cmdQuickStop      int32 = 0x0002
	cmdShutdown       int32 = 0x0006
	cmdSwitchOn       int32 = 0x0007
	cmdEnable         int32 = 0x000F
	cmdFaultReset     int32 = 0x0080
)

// Power state machine, any command missing from the table is ignored
var powerTransitions = map[uint16]map[int32]uint16{
	StateSwitchOnDisabled: {
		cmdShutdown: StateReadyToSwitchOn,
	},
	StateReadyToSwitchOn: {
		cmdDisableVoltage: StateSwitchOnDisabled,
		cmdSwitchOn:       StateSwitchedOn,
		cmdEnable:         StateOperationEnabled,
	},
	StateSwitchedOn: {
		cmdDisableVoltage: StateSwitchOnDisabled,
		cmdShutdown:       StateReadyToSwitchOn,
		cmdEnable:         StateOperationEnabled,
	},
	StateOperationEnabled: {
		cmdDisableVoltage: StateSwitchOnDisabled,
		cmdQuickStop:      StateQuickStopActive,
		cmdShutdown:       StateReadyToSwitchOn,
		cmdSwitchOn:       StateSwitchedOn,
	},
	StateQuickStopActive: {
		cmdDisableVoltage: StateSwitchOnDisabled,
	},
	StateFault: {
		cmdFaultReset: StateSwitchOnDisabled,
	},
}

// nextState returns the status word after control was written
func nextState(status uint16, control int32) uint16 {
	transitions, ok := powerTransitions[status&0x417F]
	if !ok {
		return status
	}
	state, ok := transitions[control]
	if !ok {
		return status
	}
	return state
}
