package config

const defaultAlertType = "kubernetes"

// builtinChains returns the chains available without any tarsy.yaml.
func builtinChains() map[string]ChainConfig {
	return map[string]ChainConfig{
		"kubernetes-agent-chain": {
			AlertTypes:  []string{"kubernetes"},
			Description: "Single-stage Kubernetes analysis",
			Stages: []StageConfig{
				{
					Name:   "analysis",
					Agents: []StageAgentConfig{{Name: "KubernetesAgent"}},
				},
			},
		},
	}
}

// mergeChains merges built-in and user-defined chain configurations.
// User-defined chains override built-in chains with the same ID.
func mergeChains(builtinChains map[string]ChainConfig, userChains map[string]ChainConfig) map[string]*ChainConfig {
	result := make(map[string]*ChainConfig)

	for id, chain := range builtinChains {
		chainCopy := chain
		result[id] = &chainCopy
	}

	for id, userChain := range userChains {
		chainCopy := userChain
		result[id] = &chainCopy
	}

	return result
}
