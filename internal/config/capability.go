package config

// Capability flags describe what operations a destination type legally
// supports. The matrix below is the single source of truth consulted by
// validation and the lifecycle manager alike.
type Capability uint8

const (
	CapSubscribeByName Capability = 1 << iota
	CapSubscribeByID
	CapUnsubscribe
	CapFileBacked
	CapTextFilter
)

var capabilityMatrix = map[DestinationType]Capability{
	TypeConsole:      CapSubscribeByName | CapSubscribeByID | CapUnsubscribe | CapTextFilter,
	TypeMemoryBuffer: CapSubscribeByName | CapSubscribeByID | CapUnsubscribe | CapTextFilter,
	TypeText:         CapSubscribeByName | CapSubscribeByID | CapUnsubscribe | CapFileBacked | CapTextFilter,
	TypeBinaryTrace:  CapSubscribeByID | CapUnsubscribe | CapFileBacked,
	TypeNetwork:      CapSubscribeByName | CapSubscribeByID | CapUnsubscribe | CapTextFilter,
}

// Capabilities returns the capability set for the type, or zero for an
// unknown type.
func (t DestinationType) Capabilities() Capability {
	return capabilityMatrix[t]
}

// Has reports whether the type supports every capability in c.
func (t DestinationType) Has(c Capability) bool {
	return capabilityMatrix[t]&c == c
}

// Known reports whether the type is part of the matrix.
func (t DestinationType) Known() bool {
	_, ok := capabilityMatrix[t]
	return ok
}
