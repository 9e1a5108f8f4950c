package analysis

import (
	"fmt"
	"sort"

	"finproof/services/marketdata"
)

// Deps holds the external collaborators the network-bound modules need.
type Deps struct {
	News     marketdata.NewsSource
	Research marketdata.ResearchSource
}

// Registry is the process-wide catalog of analysis modules. It is built
// once at startup from a closed constructor table and never mutated
// afterwards, so lookups need no locking.
type Registry struct {
	modules map[string]Module
}

// builders is the closed set of module constructors. Adding an algorithm
// means adding a line here; there is no runtime registration.
var builders = []func(deps Deps) Module{
	func(Deps) Module { return newTrendForecast() },
	func(Deps) Module { return newRiskSimulation() },
	func(Deps) Module { return newMeanReversion() },
	func(Deps) Module { return newRandomForest() },
	func(Deps) Module { return newNeuralNet() },
	func(d Deps) Module { return newSentimentScorer(d.News) },
	func(d Deps) Module { return newResearchAgent(d.Research) },
}

// NewRegistry instantiates every known module.
func NewRegistry(deps Deps) *Registry {
	r := &Registry{modules: make(map[string]Module, len(builders))}
	for _, build := range builders {
		m := build(deps)
		name := m.Descriptor().Name
		if _, exists := r.modules[name]; exists {
			panic(fmt.Sprintf("duplicate analysis module name %q", name))
		}
		r.modules[name] = m
	}
	return r
}

// Resolve returns the module registered under name.
func (r *Registry) Resolve(name string) (Module, bool) {
	m, ok := r.modules[name]
	return m, ok
}

// Descriptor returns the metadata for a registered module.
func (r *Registry) Descriptor(name string) (Descriptor, bool) {
	m, ok := r.modules[name]
	if !ok {
		return Descriptor{}, false
	}
	return m.Descriptor(), true
}

// List returns all descriptors sorted by module name.
func (r *Registry) List() []Descriptor {
	out := make([]Descriptor, 0, len(r.modules))
	for _, m := range r.modules {
		out = append(out, m.Descriptor())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
