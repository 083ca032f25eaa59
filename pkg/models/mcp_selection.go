package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MCPServerSelection represents a selected MCP server with optional tool filtering
type MCPServerSelection struct {
	Name  string   `json:"name"`            // MCP server ID
	Tools []string `json:"tools,omitempty"` // Specific tools, empty = all tools
}

// MCPSelectionConfig is the per-alert MCP override configuration
type MCPSelectionConfig struct {
	Servers []MCPServerSelection `json:"servers"`
}

// ServerNames returns the selected server IDs in order.
func (c *MCPSelectionConfig) ServerNames() []string {
	if c == nil {
		return nil
	}
	names := make([]string, 0, len(c.Servers))
	for _, s := range c.Servers {
		names = append(names, s.Name)
	}
	return names
}

// ParseMCPSelectionConfig decodes a stored selection. NULL, empty and "{}"
// mean no override and yield nil.
func ParseMCPSelectionConfig(raw json.RawMessage) (*MCPSelectionConfig, error) {
	if len(raw) == 0 || string(raw) == "null" || string(raw) == "{}" {
		return nil, nil
	}
	var cfg MCPSelectionConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("invalid mcp_selection: %w", err)
	}
	if len(cfg.Servers) == 0 {
		return nil, errors.New("invalid mcp_selection: at least one server required")
	}
	for i, s := range cfg.Servers {
		if s.Name == "" {
			return nil, fmt.Errorf("invalid mcp_selection: servers[%d] has no name", i)
		}
	}
	return &cfg, nil
}
