package transaction

import "fmt"

// Step is the phase an exchange is in. Values follow the protocol
// description, terminal steps reset to [StepStart] once processed.
type Step uint8

const (
	StepStart          Step = 0
	StepSendOpcode     Step = 1
	StepAwaitOpcodeAck Step = 2
	StepDrainOpcodeAck Step = 3
	StepSendRequest    Step = 4
	StepAwaitResponse  Step = 5
	StepCheckResponse  Step = 6
	StepSendAck        Step = 7
	StepAwaitData      Step = 8
	StepDrainData      Step = 9
	StepSendFinalAck   Step = 10
	StepSuccess        Step = 20
	StepFailed         Step = 30
	StepTimedOut       Step = 40
)

var stepDescription = map[Step]string{
	StepStart:          "START",
	StepSendOpcode:     "SEND-OPCODE",
	StepAwaitOpcodeAck: "AWAIT-OPCODE-ACK",
	StepDrainOpcodeAck: "DRAIN-OPCODE-ACK",
	StepSendRequest:    "SEND-REQUEST",
	StepAwaitResponse:  "AWAIT-RESPONSE",
	StepCheckResponse:  "CHECK-RESPONSE",
	StepSendAck:        "SEND-ACK",
	StepAwaitData:      "AWAIT-DATA",
	StepDrainData:      "DRAIN-DATA",
	StepSendFinalAck:   "SEND-FINAL-ACK",
	StepSuccess:        "SUCCESS",
	StepFailed:         "FAILED",
	StepTimedOut:       "TIMED-OUT",
}

func (s Step) String() string {
	description, ok := stepDescription[s]
	if ok {
		return fmt.Sprintf("%d:%s", uint8(s), description)
	}
	return fmt.Sprintf("%d:UNKNOWN", uint8(s))
}

// Awaiting reports whether the step waits for the device
func (s Step) Awaiting() bool {
	return s == StepAwaitOpcodeAck || s == StepAwaitResponse || s == StepAwaitData
}

func (s Step) Terminal() bool {
	return s == StepSuccess || s == StepFailed || s == StepTimedOut
}

// Event is what was observed while processing a step
type Event uint8

const (
	EventNone        Event = iota // Nothing happened yet
	EventDone                     // Side effect of the step completed
	EventDataReady                // Device sent something
	EventDeadline                 // Phase deadline elapsed
	EventNack                     // Unexpected acknowledgement byte
	EventDecodeError              // Response could not be decoded
	EventIOError                  // Channel refused a write or read
	EventCancel                   // Caller gave up
)

var eventDescription = map[Event]string{
	EventNone:        "NONE",
	EventDone:        "DONE",
	EventDataReady:   "DATA-READY",
	EventDeadline:    "DEADLINE",
	EventNack:        "NACK",
	EventDecodeError: "DECODE-ERROR",
	EventIOError:     "IO-ERROR",
	EventCancel:      "CANCEL",
}

func (e Event) String() string {
	description, ok := eventDescription[e]
	if ok {
		return description
	}
	return "UNKNOWN"
}

// next returns the step that follows s once ev was observed.
// It has no side effect, read and write exchanges share it.
func next(s Step, ev Event) Step {
	switch {
	case s.Terminal():
		return StepStart

	case s == StepStart:
		return StepSendOpcode

	case s.Awaiting():
		switch ev {
		case EventDataReady:
			return s + 1
		case EventDeadline:
			return StepTimedOut
		case EventCancel:
			return StepFailed
		}
		return s
	}

	switch ev {
	case EventDone:
		if s == StepSendFinalAck {
			return StepSuccess
		}
		return s + 1
	case EventNack, EventDecodeError, EventIOError, EventCancel:
		return StepFailed
	}
	return s
}
