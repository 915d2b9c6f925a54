package image

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/BaSui01/imagegen/types"
)

// Constructor 根据构造参数新建适配器实例.
type Constructor func(opts Options) Adapter

// Registry is a thread-safe registry of image vendor constructors.
// Every lookup returns a freshly constructed adapter; aliases fold to canonical ids.
type Registry struct {
	constructors map[string]Constructor
	aliases      map[string]string
	opts         Options
	mu           sync.RWMutex
}

// NewRegistry creates a Registry with the five built-in vendors registered.
func NewRegistry(opts Options) *Registry {
	r := NewEmptyRegistry(opts)
	r.Register(GeminiProviderID, func(o Options) Adapter { return NewGeminiAdapter(o) }, "google")
	r.Register(OpenAIProviderID, func(o Options) Adapter { return NewOpenAIAdapter(o) })
	r.Register(OpenRouterProviderID, func(o Options) Adapter { return NewOpenRouterAdapter(o) }, "open-router")
	r.Register(SeedreamProviderID, func(o Options) Adapter { return NewSeedreamAdapter(o) }, "doubao", "volcengine", "ark")
	r.Register(SiliconFlowProviderID, func(o Options) Adapter { return NewSiliconFlowAdapter(o) }, "silicon-flow", "kolors")
	return r
}

// NewEmptyRegistry creates a Registry without any vendor.
func NewEmptyRegistry(opts Options) *Registry {
	return &Registry{
		constructors: make(map[string]Constructor),
		aliases:      make(map[string]string),
		opts:         opts,
	}
}

func canonicalKey(id string) string { return strings.ToLower(strings.TrimSpace(id)) }

// Register adds a vendor under id plus optional aliases.
// An existing registration with the same id is replaced.
func (r *Registry) Register(id string, ctor Constructor, aliases ...string) {
	key := canonicalKey(id)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constructors[key] = ctor
	for _, alias := range aliases {
		r.aliases[canonicalKey(alias)] = key
	}
}

// Resolve 返回规范化后的厂商 ID，未注册时第二个返回值为 false.
func (r *Registry) Resolve(providerID string) (string, bool) {
	key := canonicalKey(providerID)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if target, ok := r.aliases[key]; ok {
		key = target
	}
	_, ok := r.constructors[key]
	return key, ok
}

// GetAdapter 按厂商 ID（大小写不敏感，支持别名）构造适配器.
func (r *Registry) GetAdapter(providerID string) (Adapter, error) {
	key, ok := r.Resolve(providerID)
	if !ok {
		return nil, types.NewConfigurationError("unsupported image provider: %q", providerID)
	}
	r.mu.RLock()
	ctor := r.constructors[key]
	r.mu.RUnlock()
	return ctor(r.opts), nil
}

// ProviderIDs returns the sorted canonical ids.
func (r *Registry) ProviderIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.constructors))
	for id := range r.constructors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Providers 返回全部已注册厂商的元数据.
func (r *Registry) Providers() []Provider {
	ids := r.ProviderIDs()
	out := make([]Provider, 0, len(ids))
	for _, id := range ids {
		a, err := r.GetAdapter(id)
		if err != nil {
			continue
		}
		out = append(out, a.Provider())
	}
	return out
}

// ListModels 支持动态发现的厂商走 ModelLister，其余返回静态目录.
func (r *Registry) ListModels(ctx context.Context, cfg *ModelConfig) ([]Model, error) {
	if cfg == nil {
		return nil, types.NewValidationError("model config is required")
	}
	a, err := r.GetAdapter(cfg.ProviderID)
	if err != nil {
		return nil, err
	}
	if lister, ok := a.(ModelLister); ok {
		return lister.ListModels(ctx, cfg)
	}
	return a.Models(), nil
}
