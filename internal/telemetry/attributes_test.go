// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestStageAttributes(t *testing.T) {
	attrs := StageAttributes("job-1", 1, "object_detect_service", "video_data/object_detection")
	set := attribute.NewSet(attrs...)

	v, ok := set.Value(StageIndexKey)
	assert.True(t, ok)
	assert.Equal(t, int64(1), v.AsInt64())

	v, ok = set.Value(BackendKey)
	assert.True(t, ok)
	assert.Equal(t, "object_detect_service", v.AsString())

	v, ok = set.Value(JobIDKey)
	assert.True(t, ok)
	assert.Equal(t, "job-1", v.AsString())
}

func TestStageAttributesOmitsEmpty(t *testing.T) {
	attrs := StageAttributes("", 0, "face_detect_service", "")
	assert.Len(t, attrs, 2)
}
