package daemon

import (
	"context"
)

// HealthStatus is the daemon's lifecycle state as reported over the
// control API.
type HealthStatus string

const (
	StatusStarting HealthStatus = "starting"
	StatusRunning  HealthStatus = "running"
	StatusStopping HealthStatus = "stopping"
	StatusStopped  HealthStatus = "stopped"
)

// ComponentHealth is one component's answer to a health probe.
type ComponentHealth struct {
	Name    string
	Healthy bool
	Error   error
}

// Component is a unit the daemon manages: the socket server, the
// session registry, the control API, and so on. Components declare
// dependencies by name; the daemon initializes them in dependency
// order and stops them in reverse registration order.
type Component interface {
	Name() string
	Dependencies() []string
	Init(ctx context.Context) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Health(ctx context.Context) (*ComponentHealth, error)
}
