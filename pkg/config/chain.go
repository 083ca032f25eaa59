package config

import (
	"fmt"
	"sort"
	"sync"

	"github.com/codeready-toolchain/tarsy-core/pkg/models"
)

// ChainConfig defines a multi-stage agent chain configuration
type ChainConfig struct {
	// Alert types this chain handles (required, min 1)
	AlertTypes []string `yaml:"alert_types"`

	Description string `yaml:"description,omitempty"`

	// Stages to execute (required, min 1)
	Stages []StageConfig `yaml:"stages"`
}

// StageConfig defines a single stage in a chain
type StageConfig struct {
	Name string `yaml:"name"`

	// Agents to execute. More than one agent makes the stage parallel.
	Agents []StageAgentConfig `yaml:"agents"`

	// Replicas runs the same agent N times (default: 1)
	Replicas int `yaml:"replicas,omitempty"`
}

// StageAgentConfig references an agent by name.
type StageAgentConfig struct {
	Name string `yaml:"name"`
}

// Definition converts the configuration into the snapshot stored on each
// session running this chain.
func (c *ChainConfig) Definition(chainID string) *models.ChainDefinition {
	def := &models.ChainDefinition{
		ChainID:     chainID,
		AlertTypes:  append([]string(nil), c.AlertTypes...),
		Description: c.Description,
		Stages:      make([]models.ChainStageDefinition, 0, len(c.Stages)),
	}
	for _, st := range c.Stages {
		sd := models.ChainStageDefinition{Name: st.Name, Replicas: st.Replicas}
		if len(st.Agents) == 1 {
			sd.Agent = st.Agents[0].Name
		} else {
			for _, a := range st.Agents {
				sd.Agents = append(sd.Agents, a.Name)
			}
		}
		def.Stages = append(def.Stages, sd)
	}
	return def
}

// ChainRegistry stores chain configurations in memory with thread-safe access
type ChainRegistry struct {
	chains map[string]*ChainConfig
	mu     sync.RWMutex
}

// NewChainRegistry creates a new chain registry
func NewChainRegistry(chains map[string]*ChainConfig) *ChainRegistry {
	copied := make(map[string]*ChainConfig, len(chains))
	for k, v := range chains {
		copied[k] = v
	}
	return &ChainRegistry{
		chains: copied,
	}
}

// Get retrieves a chain configuration by ID (thread-safe)
func (r *ChainRegistry) Get(chainID string) (*ChainConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	chain, exists := r.chains[chainID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrChainNotFound, chainID)
	}
	return chain, nil
}

// GetIDByAlertType retrieves the chain ID that handles the given alert type (thread-safe)
func (r *ChainRegistry) GetIDByAlertType(alertType string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	chainID := r.findChainIDByAlertType(alertType)
	if chainID == "" {
		return "", fmt.Errorf("%w for alert type: %s", ErrChainNotFound, alertType)
	}
	return chainID, nil
}

// Resolve returns the chain definition snapshot for an alert type.
func (r *ChainRegistry) Resolve(alertType string) (*models.ChainDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	chainID := r.findChainIDByAlertType(alertType)
	if chainID == "" {
		return nil, fmt.Errorf("%w for alert type: %s", ErrChainNotFound, alertType)
	}
	return r.chains[chainID].Definition(chainID), nil
}

// findChainIDByAlertType assumes the lock is held. Chain IDs are scanned in
// sorted order so overlapping alert types resolve the same way every time.
func (r *ChainRegistry) findChainIDByAlertType(alertType string) string {
	for _, chainID := range r.sortedIDs() {
		for _, at := range r.chains[chainID].AlertTypes {
			if at == alertType {
				return chainID
			}
		}
	}
	return ""
}

func (r *ChainRegistry) sortedIDs() []string {
	ids := make([]string, 0, len(r.chains))
	for id := range r.chains {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// AlertTypes returns every alert type handled by some chain, sorted.
func (r *ChainRegistry) AlertTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	var out []string
	for _, chain := range r.chains {
		for _, at := range chain.AlertTypes {
			if _, ok := seen[at]; ok {
				continue
			}
			seen[at] = struct{}{}
			out = append(out, at)
		}
	}
	sort.Strings(out)
	return out
}

// GetAll returns all chain configurations (thread-safe, returns copy)
func (r *ChainRegistry) GetAll() map[string]*ChainConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]*ChainConfig, len(r.chains))
	for k, v := range r.chains {
		result[k] = v
	}
	return result
}

// Has checks if a chain exists in the registry (thread-safe)
func (r *ChainRegistry) Has(chainID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.chains[chainID]
	return exists
}

// Len returns the number of chains in the registry (thread-safe)
func (r *ChainRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.chains)
}
