// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

// Default presentation colors for targets.
const (
	DefaultForeground = "#ffffff"
	DefaultBackground = "#000000"
)

// Target is a node in the hierarchy of controllable entities. A root
// target has an empty ParentTargets list and RootLevel set.
type Target struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	ParentTargets []string `json:"parentTargets"`
	ServiceID     string   `json:"serviceId"`
	Category      string   `json:"category"`
	FgColor       string   `json:"fgColor"`
	BgColor       string   `json:"bgColor"`
	LastUpdated   string   `json:"lastUpdated"`
	RootLevel     bool     `json:"rootLevel"`
}

func (Target) ItemType() string { return "Target" }

// Status is the availability of a target.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// TargetStatus records whether a target is currently served by an
// instance. There is one per target; its id is derived from the
// target id by [TargetStatusID].
type TargetStatus struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	TargetID    string `json:"targetId"`
	InstanceID  string `json:"instanceId"`
	Status      Status `json:"status"`
	LastUpdated string `json:"lastUpdated"`
}

func (TargetStatus) ItemType() string { return "TargetStatus" }

// TargetStatusID returns the status record id for a target.
func TargetStatusID(targetID string) string {
	return targetID + ":status"
}

// NewTargetStatus builds the status record for a target.
func NewTargetStatus(targetID, instanceID string, status Status, lastUpdated string) TargetStatus {
	return TargetStatus{
		ID:          TargetStatusID(targetID),
		Name:        targetID + " Status",
		TargetID:    targetID,
		InstanceID:  instanceID,
		Status:      status,
		LastUpdated: lastUpdated,
	}
}

// Action is an invocable operation on a target. Schema is a JSON
// schema object describing the command payload, or nil when the
// action takes no payload.
type Action struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	TargetID  string         `json:"targetId"`
	ServiceID string         `json:"serviceId"`
	Schema    map[string]any `json:"schema"`
}

func (Action) ItemType() string { return "Action" }

// Emitter is a data source bound to a target.
type Emitter struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	TargetID  string         `json:"targetId"`
	ServiceID string         `json:"serviceId"`
	Schema    map[string]any `json:"schema"`
}

func (Emitter) ItemType() string { return "Emitter" }

// Pulse is a single value pushed from an emitter. Its id is the
// emitter id, so each pulse replaces the last on the server. Hash is
// a fresh random token per pulse so downstream de-duplication never
// drops a repeated value.
type Pulse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	EmitterID string `json:"emitterId"`
	Data      any    `json:"data"`
	Hash      string `json:"hash"`
}

func (Pulse) ItemType() string { return "Pulse" }

// InstanceStatus is the lifecycle state of a running service
// instance.
type InstanceStatus string

const (
	InstanceStarting    InstanceStatus = "Starting"
	InstanceAvailable   InstanceStatus = "Available"
	InstanceStopping    InstanceStatus = "Stopping"
	InstanceUnavailable InstanceStatus = "Unavailable"
	InstanceError       InstanceStatus = "Error"
)

// Instance identifies this running service on a machine.
type Instance struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	ServiceID       string         `json:"serviceId"`
	ServiceTypeCode string         `json:"serviceTypeCode"`
	Status          InstanceStatus `json:"status"`
	MachineID       string         `json:"machineId"`
	Color           string         `json:"color"`
}

func (Instance) ItemType() string { return "Instance" }

// InstanceID returns the instance id for a service on a machine.
func InstanceID(machineID, serviceID string) string {
	return machineID + ":" + serviceID
}

// Machine describes the host the engine runs on. It is published only
// when the engine falls back to a locally derived machine id, since
// the link service otherwise registers the machine itself.
type Machine struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	DNSName  string `json:"dnsName"`
	ExecName string `json:"execName"`
	Address  string `json:"address"`
}

func (Machine) ItemType() string { return "Machine" }

// NewMachine builds a Machine whose display, DNS and executor names
// are all the host name.
func NewMachine(id, hostname, address string) Machine {
	return Machine{
		ID:       id,
		Name:     hostname,
		DNSName:  hostname,
		ExecName: hostname,
		Address:  address,
	}
}
