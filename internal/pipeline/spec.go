// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package pipeline

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ManuGH/streamstage/internal/rpc"
)

// Preset pipeline names.
const (
	PipelineFace    = "face"
	PipelineObject  = "object"
	PipelineWithPre = "withpre"
)

// Artifact locations used by the presets, relative to the data root.
const (
	TargetPreProcess      = "video_data/pre_process"
	TargetFaceDetection   = "video_data/face_detection"
	TargetObjectDetection = "video_data/object_detection"
)

// StageSpec names a backend and the location its artifact lands in.
type StageSpec struct {
	Backend string `yaml:"backend"`
	Target  string `yaml:"target"`
}

// Spec is an ordered list of stages.
type Spec struct {
	Name   string      `yaml:"name"`
	Stages []StageSpec `yaml:"stages"`
}

// Validate rejects specs a chain cannot run.
func (s Spec) Validate() error {
	var errs []error
	if s.Name == "" {
		errs = append(errs, errors.New("pipeline name is empty"))
	}
	if len(s.Stages) == 0 {
		errs = append(errs, fmt.Errorf("pipeline %q has no stages", s.Name))
	}
	for i, st := range s.Stages {
		if st.Backend == "" {
			errs = append(errs, fmt.Errorf("pipeline %q stage %d: backend is empty", s.Name, i))
		}
		if st.Target == "" {
			errs = append(errs, fmt.Errorf("pipeline %q stage %d: target is empty", s.Name, i))
		}
	}
	return errors.Join(errs...)
}

// Backends lists the distinct backends the spec contacts, sorted.
func (s Spec) Backends() []string {
	seen := make(map[string]struct{}, len(s.Stages))
	var out []string
	for _, st := range s.Stages {
		if _, ok := seen[st.Backend]; ok {
			continue
		}
		seen[st.Backend] = struct{}{}
		out = append(out, st.Backend)
	}
	sort.Strings(out)
	return out
}

func (s Spec) clone() Spec {
	return Spec{Name: s.Name, Stages: append([]StageSpec(nil), s.Stages...)}
}

// Presets returns the built-in pipelines: face detection, object detection,
// and object detection behind a pre-processing stage.
func Presets() map[string]Spec {
	return map[string]Spec{
		PipelineFace: {
			Name:   PipelineFace,
			Stages: []StageSpec{{Backend: rpc.BackendFaceDetect, Target: TargetFaceDetection}},
		},
		PipelineObject: {
			Name:   PipelineObject,
			Stages: []StageSpec{{Backend: rpc.BackendObjectDetect, Target: TargetObjectDetection}},
		},
		PipelineWithPre: {
			Name: PipelineWithPre,
			Stages: []StageSpec{
				{Backend: rpc.BackendPreProcess, Target: TargetPreProcess},
				{Backend: rpc.BackendObjectDetect, Target: TargetObjectDetection},
			},
		},
	}
}
