package state

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskMetadata_Validate(t *testing.T) {
	tests := []struct {
		name    string
		meta    TaskMetadata
		wantErr bool
	}{
		{name: "empty", meta: TaskMetadata{}},
		{name: "full", meta: TaskMetadata{Complexity: ComplexityMedium, VerificationCriteria: []string{"go test passes"}, FilesModified: []string{"main.go"}}},
		{name: "unknown complexity", meta: TaskMetadata{Complexity: "extreme"}, wantErr: true},
		{name: "blank criterion", meta: TaskMetadata{VerificationCriteria: []string{"ok", " "}}, wantErr: true},
		{name: "blank file", meta: TaskMetadata{FilesModified: []string{""}}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.meta.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTaskMeta)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTaskMetadataOf_DecodedShapes(t *testing.T) {
	in := TaskMetadata{
		ReplanEvaluated:      true,
		VerificationCriteria: []string{"a", "b"},
		Complexity:           ComplexityLow,
		FilesModified:        []string{"x.go"},
		FailureReason:        "tests failed",
	}

	data, err := json.Marshal(in.Map())
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, in, TaskMetadataOf(decoded))
	assert.Equal(t, in, TaskMetadataOf(in.Map()))
	assert.Empty(t, TaskMetadata{}.Map())
}
