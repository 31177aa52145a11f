// Package channel defines the byte link used to talk to the controller.
package channel

import (
	"fmt"
	"sort"
	"sync"
)

// Listener is notified each time new bytes were appended to the receive
// buffer of a [Channel]. DataReady must not block.
type Listener interface {
	DataReady()
}

// ListenerFunc adapts a function to the [Listener] interface
type ListenerFunc func()

func (f ListenerFunc) DataReady() {
	f()
}

// A half-duplex byte channel
type Channel interface {
	Open() error                       // Open the underlying link
	Close() error                      // Close the underlying link
	IsOpen() bool                      // Whether the link is open
	Write(p []byte) (int, error)       // Write bytes on the line
	Buffered() int                     // Number of received bytes waiting to be read
	Read(p []byte) (int, error)        // Read received bytes, never blocks
	Subscribe(listener Listener) error // Register the data ready listener
}

// Settings of the serial line
type Settings struct {
	BaudRate      int
	DataBits      int
	StopBits      int
	Parity        string
	ReadTimeoutMs int
}

func DefaultSettings() Settings {
	return Settings{BaudRate: 9600, DataBits: 8, StopBits: 1, Parity: "N", ReadTimeoutMs: 50}
}

type NewInterfaceFunc func(channel string, settings Settings) (Channel, error)

var (
	registryMu        sync.RWMutex
	interfaceRegistry = make(map[string]NewInterfaceFunc)
)

// Register a new channel interface type
// This should be called inside an init() function of plugin
func RegisterInterface(interfaceType string, newInterface NewInterfaceFunc) {
	registryMu.Lock()
	defer registryMu.Unlock()
	interfaceRegistry[interfaceType] = newInterface
}

// Interfaces returns the registered interface types, sorted
func Interfaces() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(interfaceRegistry))
	for name := range interfaceRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Create a new channel with given interface
// The interface package must have been imported for its side effects
func New(interfaceType string, channel string, settings Settings) (Channel, error) {
	registryMu.RLock()
	createInterface, ok := interfaceRegistry[interfaceType]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported interface : %v", interfaceType)
	}
	return createInterface(channel, settings)
}
