package job

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// TrainingConfig holds input parameters for lora-training jobs.
type TrainingConfig struct {
	VideoURL     string  `json:"video_url" validate:"required,url"`
	ModelName    string  `json:"model_name" validate:"required"`
	Trigger      string  `json:"trigger"`
	Steps        int     `json:"steps" validate:"omitempty,gte=1000,lte=10000"`
	LearningRate float64 `json:"learning_rate" validate:"omitempty,gt=0,lt=1"`
}

// ImageGenerationConfig holds input parameters for image-generation jobs.
type ImageGenerationConfig struct {
	Prompt         string `json:"prompt" validate:"required"`
	NegativePrompt string `json:"negative_prompt"`
	Width          int    `json:"width" validate:"omitempty,gte=64,lte=4096"`
	Height         int    `json:"height" validate:"omitempty,gte=64,lte=4096"`
	ModelVersion   string `json:"model_version"`
}

// TranscriptionConfig holds input parameters for transcription jobs.
type TranscriptionConfig struct {
	AudioURL string `json:"audio_url" validate:"required,url"`
	Language string `json:"language" validate:"omitempty,len=2"`
	Format   string `json:"format" validate:"omitempty,oneof=text srt vtt json"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateConfig decodes raw config into the variant for jobType and checks
// it against the type's schema. Unknown types and failing schemas are
// reported as ErrValidation.
func ValidateConfig(jobType string, raw json.RawMessage) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: config is required", ErrValidation)
	}

	var target any
	switch jobType {
	case TypeTraining:
		target = &TrainingConfig{}
	case TypeImageGeneration:
		target = &ImageGenerationConfig{}
	case TypeTranscription:
		target = &TranscriptionConfig{}
	default:
		return fmt.Errorf("%w: unknown job type %q", ErrValidation, jobType)
	}

	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("%w: malformed config JSON: %v", ErrValidation, err)
	}

	if err := validate.Struct(target); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	return nil
}
