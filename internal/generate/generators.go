package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/forgelabs/genjobs/internal/job"
	"github.com/forgelabs/genjobs/shared/objectstore"
)

// TrainingGenerator runs model fine-tuning jobs.
type TrainingGenerator struct {
	provider *ProviderClient
	storage  *objectstore.Client
}

// NewTrainingGenerator creates the generator for lora-training jobs.
func NewTrainingGenerator(provider *ProviderClient, storage *objectstore.Client) *TrainingGenerator {
	return &TrainingGenerator{provider: provider, storage: storage}
}

func (g *TrainingGenerator) Generate(ctx context.Context, j *job.Job, report ProgressFunc) (*job.VersionPayload, error) {
	var cfg job.TrainingConfig
	if err := json.Unmarshal(j.Config, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode training config: %w", err)
	}

	steps := cfg.Steps
	if steps == 0 {
		steps = 2500
	}
	trigger := cfg.Trigger
	if trigger == "" {
		trigger = "person"
	}

	input := map[string]any{
		"video_url":     cfg.VideoURL,
		"model_name":    cfg.ModelName,
		"trigger":       trigger,
		"steps":         steps,
		"learning_rate": cfg.LearningRate,
	}

	metadata, _ := json.Marshal(map[string]any{
		"model_name": cfg.ModelName,
		"trigger":    trigger,
		"steps":      steps,
	})

	return runAndStore(ctx, g.provider, g.storage, j, input, "model.safetensors", metadata, report)
}

// ImageGenerator runs image synthesis jobs.
type ImageGenerator struct {
	provider *ProviderClient
	storage  *objectstore.Client
}

// NewImageGenerator creates the generator for image-generation jobs.
func NewImageGenerator(provider *ProviderClient, storage *objectstore.Client) *ImageGenerator {
	return &ImageGenerator{provider: provider, storage: storage}
}

func (g *ImageGenerator) Generate(ctx context.Context, j *job.Job, report ProgressFunc) (*job.VersionPayload, error) {
	var cfg job.ImageGenerationConfig
	if err := json.Unmarshal(j.Config, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode image config: %w", err)
	}

	input := map[string]any{
		"prompt":          cfg.Prompt,
		"negative_prompt": cfg.NegativePrompt,
		"width":           cfg.Width,
		"height":          cfg.Height,
		"model_version":   cfg.ModelVersion,
	}

	metadata, _ := json.Marshal(map[string]any{
		"prompt": cfg.Prompt,
		"width":  cfg.Width,
		"height": cfg.Height,
	})

	return runAndStore(ctx, g.provider, g.storage, j, input, "image.png", metadata, report)
}

// TranscriptionGenerator runs audio transcription jobs.
type TranscriptionGenerator struct {
	provider *ProviderClient
	storage  *objectstore.Client
}

// NewTranscriptionGenerator creates the generator for transcription jobs.
func NewTranscriptionGenerator(provider *ProviderClient, storage *objectstore.Client) *TranscriptionGenerator {
	return &TranscriptionGenerator{provider: provider, storage: storage}
}

func (g *TranscriptionGenerator) Generate(ctx context.Context, j *job.Job, report ProgressFunc) (*job.VersionPayload, error) {
	var cfg job.TranscriptionConfig
	if err := json.Unmarshal(j.Config, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode transcription config: %w", err)
	}

	format := cfg.Format
	if format == "" {
		format = "text"
	}

	input := map[string]any{
		"audio_url": cfg.AudioURL,
		"language":  cfg.Language,
		"format":    format,
	}

	metadata, _ := json.Marshal(map[string]any{
		"language": cfg.Language,
		"format":   format,
	})

	return runAndStore(ctx, g.provider, g.storage, j, input, "transcript."+format, metadata, report)
}

// runAndStore drives the provider task, then persists the artifact under a
// versioned key and builds the result payload. Provider progress is scaled
// into the 5-90 band so the store/upload tail still moves the bar.
func runAndStore(
	ctx context.Context,
	provider *ProviderClient,
	storage *objectstore.Client,
	j *job.Job,
	input map[string]any,
	filename string,
	metadata json.RawMessage,
	report ProgressFunc,
) (*job.VersionPayload, error) {
	scaled := func(percent int) {
		if report != nil {
			report(5 + percent*85/100)
		}
	}

	result, err := provider.Run(ctx, input, scaled)
	if err != nil {
		return nil, err
	}

	data, contentType, err := provider.Fetch(ctx, result.OutputURL)
	if err != nil {
		return nil, err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if report != nil {
		report(95)
	}

	next := len(j.Versions) + 1
	key := fmt.Sprintf("artifacts/%s/%s/v%d/%s", j.UserID, j.JobID, next, filename)

	url, err := storage.Upload(ctx, key, bytes.NewReader(data), contentType)
	if err != nil {
		return nil, fmt.Errorf("failed to store artifact: %w", err)
	}

	return &job.VersionPayload{
		ArtifactURL: url,
		StorageKey:  key,
		SizeBytes:   int64(len(data)),
		ContentType: contentType,
		Metadata:    metadata,
	}, nil
}
