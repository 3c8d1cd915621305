// Package registry provides centralized model management for the proxy.
// It implements a dynamic model registry with reference counting to track active
// clients and automatically hide models when no clients are available or when
// quota is exceeded. It also records per-model capability flags that drive
// request translation for thinking-capable models.
package registry

import (
	"sort"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Capability is a bit set of per-model features that change how requests are
// translated for the upstream.
type Capability uint8

const (
	// CapThinkingFlag marks models whose reasoning is toggled through
	// chat_template_kwargs.thinking in the request body.
	CapThinkingFlag Capability = 1 << iota

	// CapThinkingSystemPrompt marks models whose reasoning is toggled by a
	// leading "detailed thinking on" system message.
	CapThinkingSystemPrompt
)

// ModelInfo represents information about an available model
type ModelInfo struct {
	// ID is the unique identifier clients use for the model
	ID string `json:"id"`
	// Object type for the model (typically "model")
	Object string `json:"object"`
	// Created timestamp when the model was created
	Created int64 `json:"created"`
	// OwnedBy indicates the organization that owns the model
	OwnedBy string `json:"owned_by"`
	// Type indicates the model type (e.g., "nim")
	Type string `json:"type"`
	// DisplayName is the human-readable name for the model
	DisplayName string `json:"display_name,omitempty"`
	// ContextLength is the context window size
	ContextLength int `json:"context_length,omitempty"`

	// UpstreamName is the identifier the upstream expects for this model.
	UpstreamName string `json:"-"`
	// Capabilities carries the translation-relevant feature flags.
	Capabilities Capability `json:"-"`
}

// Has reports whether the model carries the given capability flag.
func (m *ModelInfo) Has(c Capability) bool {
	return m != nil && m.Capabilities&c != 0
}

// ModelRegistration tracks a model's availability
type ModelRegistration struct {
	// Info contains the model metadata
	Info *ModelInfo
	// Count is the number of active clients that can provide this model
	Count int
	// LastUpdated tracks when this registration was last modified
	LastUpdated time.Time
	// QuotaExceededClients tracks which clients have exceeded quota for this model
	QuotaExceededClients map[string]*time.Time
}

// ModelRegistry manages the global registry of available models
type ModelRegistry struct {
	// models maps model ID to registration information
	models map[string]*ModelRegistration
	// clientModels maps client ID to the models it provides
	clientModels map[string][]string
	// mutex ensures thread-safe access to the registry
	mutex *sync.RWMutex
}

// quotaExpiredDuration is how long a quota-exceeded mark hides a client.
const quotaExpiredDuration = 5 * time.Minute

// Global model registry instance
var globalRegistry *ModelRegistry
var registryOnce sync.Once

// GetGlobalRegistry returns the global model registry instance
func GetGlobalRegistry() *ModelRegistry {
	registryOnce.Do(func() {
		globalRegistry = &ModelRegistry{
			models:       make(map[string]*ModelRegistration),
			clientModels: make(map[string][]string),
			mutex:        &sync.RWMutex{},
		}
	})
	return globalRegistry
}

// RegisterClient registers a client and its supported models
// Parameters:
//   - clientID: Unique identifier for the client
//   - models: List of models that this client can provide
func (r *ModelRegistry) RegisterClient(clientID string, models []*ModelInfo) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	// Remove any existing registration for this client
	r.unregisterClientInternal(clientID)

	modelIDs := make([]string, 0, len(models))
	now := time.Now()

	for _, model := range models {
		modelIDs = append(modelIDs, model.ID)

		if existing, exists := r.models[model.ID]; exists {
			existing.Count++
			existing.LastUpdated = now
			log.Debugf("Incremented count for model %s, now %d clients", model.ID, existing.Count)
		} else {
			r.models[model.ID] = &ModelRegistration{
				Info:                 model,
				Count:                1,
				LastUpdated:          now,
				QuotaExceededClients: make(map[string]*time.Time),
			}
			log.Debugf("Registered new model %s", model.ID)
		}
	}

	r.clientModels[clientID] = modelIDs
	log.Debugf("Registered client %s with %d models", clientID, len(models))
}

// UnregisterClient removes a client and decrements counts for its models
// Parameters:
//   - clientID: Unique identifier for the client to remove
func (r *ModelRegistry) UnregisterClient(clientID string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.unregisterClientInternal(clientID)
}

// unregisterClientInternal performs the actual client unregistration (internal, no locking)
func (r *ModelRegistry) unregisterClientInternal(clientID string) {
	models, exists := r.clientModels[clientID]
	if !exists {
		return
	}

	now := time.Now()
	for _, modelID := range models {
		if registration, isExists := r.models[modelID]; isExists {
			registration.Count--
			registration.LastUpdated = now
			delete(registration.QuotaExceededClients, clientID)

			// Remove model if no clients remain
			if registration.Count <= 0 {
				delete(r.models, modelID)
				log.Debugf("Removed model %s as no clients remain", modelID)
			}
		}
	}

	delete(r.clientModels, clientID)
	log.Debugf("Unregistered client %s", clientID)
}

// SetModelQuotaExceeded marks a model as quota exceeded for a specific client
// Parameters:
//   - clientID: The client that exceeded quota
//   - modelID: The model that exceeded quota
func (r *ModelRegistry) SetModelQuotaExceeded(clientID, modelID string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if registration, exists := r.models[modelID]; exists {
		now := time.Now()
		registration.QuotaExceededClients[clientID] = &now
		log.Debugf("Marked model %s as quota exceeded for client %s", modelID, clientID)
	}
}

// ClearModelQuotaExceeded removes quota exceeded status for a model and client
// Parameters:
//   - clientID: The client to clear quota status for
//   - modelID: The model to clear quota status for
func (r *ModelRegistry) ClearModelQuotaExceeded(clientID, modelID string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if registration, exists := r.models[modelID]; exists {
		delete(registration.QuotaExceededClients, clientID)
	}
}

// Lookup resolves a model identifier to its registration info. The match is
// case-insensitive on the model ID.
//
// Returns:
//   - *ModelInfo: The model metadata, or nil when unknown
//   - bool: True when the model is registered
func (r *ModelRegistry) Lookup(modelID string) (*ModelInfo, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if registration, exists := r.models[modelID]; exists {
		return registration.Info, true
	}
	lower := strings.ToLower(modelID)
	for id, registration := range r.models {
		if strings.ToLower(id) == lower {
			return registration.Info, true
		}
	}
	return nil, false
}

// GetAvailableModels returns all models that have at least one available client
//
// Returns:
//   - []*ModelInfo: List of available models sorted by ID
func (r *ModelRegistry) GetAvailableModels() []*ModelInfo {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	models := make([]*ModelInfo, 0, len(r.models))
	now := time.Now()

	for _, registration := range r.models {
		// Count clients that have exceeded quota and haven't recovered yet
		exceededClients := 0
		for _, quotaTime := range registration.QuotaExceededClients {
			if quotaTime != nil && now.Sub(*quotaTime) < quotaExpiredDuration {
				exceededClients++
			}
		}
		if registration.Count-exceededClients > 0 {
			models = append(models, registration.Info)
		}
	}

	sort.Slice(models, func(i, j int) bool {
		return models[i].ID < models[j].ID
	})
	return models
}
