package device

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnknownMachine is returned when a symbolic machine id has no mapped
// device address. The registry never guesses.
var ErrUnknownMachine = errors.New("unknown machine")

// Registry maps machine ids to counting-device network addresses. It is
// loaded once at startup and validated eagerly; a bad map is a startup
// failure, not a per-call surprise.
type Registry struct {
	addresses map[string]string
}

type registryFile struct {
	Machines map[string]string `yaml:"machines"`
}

// LoadRegistry reads a YAML machine map of the form:
//
//	machines:
//	  P-101: 10.4.1.21:8080
//	  P-102: counter-p102.floor.local
func LoadRegistry(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read device map: %w", err)
	}
	var file registryFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse device map: %w", err)
	}
	return NewRegistry(file.Machines)
}

func NewRegistry(addresses map[string]string) (*Registry, error) {
	if len(addresses) == 0 {
		return nil, errors.New("device map is empty")
	}
	normalized := make(map[string]string, len(addresses))
	for id, address := range addresses {
		id = strings.TrimSpace(id)
		address = strings.TrimSpace(address)
		if id == "" {
			return nil, errors.New("device map contains a blank machine id")
		}
		if address == "" {
			return nil, fmt.Errorf("device map entry %q has a blank address", id)
		}
		if strings.ContainsAny(address, " \t") || strings.Contains(address, "://") {
			return nil, fmt.Errorf("device map entry %q has a malformed address %q", id, address)
		}
		if _, exists := normalized[id]; exists {
			return nil, fmt.Errorf("device map entry %q is duplicated", id)
		}
		normalized[id] = address
	}
	return &Registry{addresses: normalized}, nil
}

// Resolve answers the device address for a machine id. An id that already
// looks like an address (host:port or dotted host) passes through unchanged.
func (r *Registry) Resolve(machineID string) (string, error) {
	machineID = strings.TrimSpace(machineID)
	if machineID == "" {
		return "", errors.New("machine id is required")
	}
	if strings.ContainsAny(machineID, ".:") {
		return machineID, nil
	}
	if r == nil || r.addresses == nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownMachine, machineID)
	}
	address, ok := r.addresses[machineID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownMachine, machineID)
	}
	return address, nil
}

// Machines lists the mapped machine ids, sorted for stable logging.
func (r *Registry) Machines() []string {
	if r == nil {
		return nil
	}
	ids := make([]string, 0, len(r.addresses))
	for id := range r.addresses {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
