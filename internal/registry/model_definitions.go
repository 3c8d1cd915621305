// Package registry provides model definitions for the NVIDIA NIM catalog.
// This file contains the built-in model table clients see by default; rows
// from the configuration file are merged over it at client construction.
package registry

// GetNIMModels returns the built-in NIM model definitions
func GetNIMModels() []*ModelInfo {
	return []*ModelInfo{
		{
			ID:            "deepseek-r1",
			Object:        "model",
			Created:       1737331200, // 2025-01-20
			OwnedBy:       "deepseek-ai",
			Type:          "nim",
			DisplayName:   "DeepSeek R1",
			ContextLength: 131072,
			UpstreamName:  "deepseek-ai/deepseek-r1",
		},
		{
			ID:            "deepseek-r1-0528",
			Object:        "model",
			Created:       1748390400, // 2025-05-28
			OwnedBy:       "deepseek-ai",
			Type:          "nim",
			DisplayName:   "DeepSeek R1 0528",
			ContextLength: 131072,
			UpstreamName:  "deepseek-ai/deepseek-r1-0528",
		},
		{
			ID:            "deepseek-v3.1",
			Object:        "model",
			Created:       1755648000, // 2025-08-20
			OwnedBy:       "deepseek-ai",
			Type:          "nim",
			DisplayName:   "DeepSeek V3.1",
			ContextLength: 131072,
			UpstreamName:  "deepseek-ai/deepseek-v3_1",
			Capabilities:  CapThinkingFlag,
		},
		{
			ID:            "nemotron-ultra",
			Object:        "model",
			Created:       1744070400, // 2025-04-08
			OwnedBy:       "nvidia",
			Type:          "nim",
			DisplayName:   "Llama 3.1 Nemotron Ultra 253B",
			ContextLength: 131072,
			UpstreamName:  "nvidia/llama-3.1-nemotron-ultra-253b-v1",
			Capabilities:  CapThinkingSystemPrompt,
		},
		{
			ID:            "nemotron-super",
			Object:        "model",
			Created:       1742342400, // 2025-03-19
			OwnedBy:       "nvidia",
			Type:          "nim",
			DisplayName:   "Llama 3.3 Nemotron Super 49B",
			ContextLength: 131072,
			UpstreamName:  "nvidia/llama-3.3-nemotron-super-49b-v1",
			Capabilities:  CapThinkingSystemPrompt,
		},
		{
			ID:            "qwen3-235b",
			Object:        "model",
			Created:       1745884800, // 2025-04-29
			OwnedBy:       "qwen",
			Type:          "nim",
			DisplayName:   "Qwen3 235B A22B",
			ContextLength: 131072,
			UpstreamName:  "qwen/qwen3-235b-a22b",
			Capabilities:  CapThinkingFlag,
		},
		{
			ID:            "kimi-k2",
			Object:        "model",
			Created:       1752192000, // 2025-07-11
			OwnedBy:       "moonshotai",
			Type:          "nim",
			DisplayName:   "Kimi K2 Instruct",
			ContextLength: 131072,
			UpstreamName:  "moonshotai/kimi-k2-instruct",
		},
		{
			ID:            "llama-3.3-70b",
			Object:        "model",
			Created:       1733443200, // 2024-12-06
			OwnedBy:       "meta",
			Type:          "nim",
			DisplayName:   "Llama 3.3 70B Instruct",
			ContextLength: 131072,
			UpstreamName:  "meta/llama-3.3-70b-instruct",
		},
	}
}
