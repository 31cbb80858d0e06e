package job

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsTerminal(t *testing.T) {
	tests := []struct {
		status   string
		terminal bool
	}{
		{StatusQueued, false},
		{StatusProcessing, false},
		{StatusCompleted, true},
		{StatusFailed, true},
		{"unknown", false},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			assert.Equal(t, tt.terminal, IsTerminal(tt.status))

			j := &Job{Status: tt.status}
			assert.Equal(t, tt.terminal, j.IsTerminal())
		})
	}
}

func TestKnownType(t *testing.T) {
	assert.True(t, KnownType(TypeTraining))
	assert.True(t, KnownType(TypeImageGeneration))
	assert.True(t, KnownType(TypeTranscription))
	assert.False(t, KnownType("video-upscaling"))
	assert.False(t, KnownType(""))
}

func TestLatestVersion(t *testing.T) {
	t.Run("no versions", func(t *testing.T) {
		j := &Job{}
		assert.Nil(t, j.LatestVersion())
	})

	t.Run("returns newest", func(t *testing.T) {
		j := &Job{
			Versions: []ResultVersion{
				{Version: 1, ArtifactURL: "https://cdn.example.com/v1"},
				{Version: 2, ArtifactURL: "https://cdn.example.com/v2"},
			},
		}
		v := j.LatestVersion()
		require.NotNil(t, v)
		assert.Equal(t, 2, v.Version)
		assert.Equal(t, "https://cdn.example.com/v2", v.ArtifactURL)
	})
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		jobType string
		config  string
		wantErr bool
	}{
		{
			name:    "valid training config",
			jobType: TypeTraining,
			config:  `{"video_url":"https://example.com/clip.mp4","model_name":"portrait-v1","steps":2500}`,
			wantErr: false,
		},
		{
			name:    "training missing video_url",
			jobType: TypeTraining,
			config:  `{"model_name":"portrait-v1"}`,
			wantErr: true,
		},
		{
			name:    "training steps below range",
			jobType: TypeTraining,
			config:  `{"video_url":"https://example.com/clip.mp4","model_name":"portrait-v1","steps":10}`,
			wantErr: true,
		},
		{
			name:    "training invalid video url",
			jobType: TypeTraining,
			config:  `{"video_url":"not-a-url","model_name":"portrait-v1"}`,
			wantErr: true,
		},
		{
			name:    "valid image config",
			jobType: TypeImageGeneration,
			config:  `{"prompt":"a lighthouse at dusk","width":1024,"height":1024}`,
			wantErr: false,
		},
		{
			name:    "image missing prompt",
			jobType: TypeImageGeneration,
			config:  `{"width":1024}`,
			wantErr: true,
		},
		{
			name:    "image width out of range",
			jobType: TypeImageGeneration,
			config:  `{"prompt":"a lighthouse","width":32}`,
			wantErr: true,
		},
		{
			name:    "valid transcription config",
			jobType: TypeTranscription,
			config:  `{"audio_url":"https://example.com/talk.mp3","language":"en","format":"srt"}`,
			wantErr: false,
		},
		{
			name:    "transcription bad format",
			jobType: TypeTranscription,
			config:  `{"audio_url":"https://example.com/talk.mp3","format":"doc"}`,
			wantErr: true,
		},
		{
			name:    "unknown job type",
			jobType: "video-upscaling",
			config:  `{}`,
			wantErr: true,
		},
		{
			name:    "malformed json",
			jobType: TypeImageGeneration,
			config:  `{"prompt":`,
			wantErr: true,
		},
		{
			name:    "empty config",
			jobType: TypeImageGeneration,
			config:  ``,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConfig(tt.jobType, json.RawMessage(tt.config))

			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrValidation)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestRetryableError(t *testing.T) {
	inner := ErrNotFound
	err := NewRetryableError(inner)

	var re *RetryableError
	require.ErrorAs(t, err, &re)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "retryable error")
}
