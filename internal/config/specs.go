// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"sort"

	"github.com/ManuGH/streamstage/internal/pipeline"
	"github.com/ManuGH/streamstage/internal/rpc"
)

// PipelineSpecs returns the built-in presets overlaid with configured
// pipelines. A configured pipeline replaces a preset of the same name.
func (c AppConfig) PipelineSpecs() map[string]pipeline.Spec {
	specs := pipeline.Presets()
	for name, p := range c.Pipelines {
		spec := pipeline.Spec{Name: name}
		for _, st := range p.Stages {
			spec.Stages = append(spec.Stages, pipeline.StageSpec{Backend: st.Backend, Target: st.Target})
		}
		specs[name] = spec
	}
	return specs
}

// RPCBackends lists the configured backends, sorted by name.
func (c AppConfig) RPCBackends() []rpc.Backend {
	out := make([]rpc.Backend, 0, len(c.Backends))
	for name, b := range c.Backends {
		out = append(out, rpc.Backend{Name: name, Address: b.Address, Method: b.Method})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
