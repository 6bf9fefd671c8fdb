package rig

import (
	"fmt"
	"strings"
	"sync"
)

// Pot names a heated vessel.
type Pot string

const (
	PotBK  Pot = "BK"
	PotHLT Pot = "HLT"
)

// Pump names a pump.
type Pump string

const (
	PumpP1 Pump = "P1"
	PumpP2 Pump = "P2"
)

// UnknownDeviceError reports a pot or pump name outside the fixed set.
type UnknownDeviceError struct {
	Kind string // "pot" or "pump"
	Name string // upper-cased as received
}

func (e *UnknownDeviceError) Error() string {
	return fmt.Sprintf("Unknown %s: %s", e.Kind, e.Name)
}

// ParsePot accepts BK or HLT in any case.
func ParsePot(s string) (Pot, error) {
	switch p := Pot(strings.ToUpper(s)); p {
	case PotBK, PotHLT:
		return p, nil
	default:
		return "", &UnknownDeviceError{Kind: "pot", Name: string(p)}
	}
}

// ParsePump accepts P1 or P2 in any case.
func ParsePump(s string) (Pump, error) {
	switch p := Pump(strings.ToUpper(s)); p {
	case PumpP1, PumpP2:
		return p, nil
	default:
		return "", &UnknownDeviceError{Kind: "pump", Name: string(p)}
	}
}

// PumpSpeedMemory remembers the last requested speed per pump so power-on
// can restore it. Unknown pumps read as 0.
type PumpSpeedMemory struct {
	mu     sync.Mutex
	speeds map[Pump]float64
}

// NewPumpSpeedMemory starts every pump at 0.
func NewPumpSpeedMemory() *PumpSpeedMemory {
	return &PumpSpeedMemory{speeds: map[Pump]float64{PumpP1: 0, PumpP2: 0}}
}

// Get returns the remembered speed.
func (m *PumpSpeedMemory) Get(p Pump) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.speeds[p]
}

// Set stores a speed.
func (m *PumpSpeedMemory) Set(p Pump, speed float64) {
	m.mu.Lock()
	m.speeds[p] = speed
	m.mu.Unlock()
}
