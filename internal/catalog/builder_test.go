package catalog

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func imageDescriptor() *Descriptor {
	desc := &Descriptor{
		Name:     "flux-text-to-image",
		Model:    "Qubico/flux1-dev",
		TaskType: "txt2img",
		Params: []Param{
			{Name: "prompt", Type: ParamString, Required: true, Target: "input.prompt"},
			{Name: "negative_prompt", Type: ParamString, Target: "input.negative_prompt"},
			{Name: "width", Type: ParamInt, Default: 1024, Target: "input.width"},
			{Name: "guidance_scale", Type: ParamFloat, Target: "input.guidance_scale"},
			{Name: "service_mode", Type: ParamOptions, Options: []string{"public", "private"}, Target: "config.service_mode"},
			{Name: "reference_image", Type: ParamURL, Target: "input.image_url"},
		},
	}
	if err := desc.Validate(); err != nil {
		panic(err)
	}
	return desc
}

func TestBuildSubmitMapsTargets(t *testing.T) {
	req, err := BuildSubmit(imageDescriptor(), map[string]any{
		"prompt":         "a red fox",
		"guidance_scale": 3.5,
		"service_mode":   "public",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Model != "Qubico/flux1-dev" || req.TaskType != "txt2img" {
		t.Fatalf("unexpected model/task_type: %s/%s", req.Model, req.TaskType)
	}
	if req.Input["prompt"] != "a red fox" {
		t.Fatalf("prompt not mapped: %#v", req.Input)
	}
	if req.Input["width"] != 1024 {
		t.Fatalf("default width not applied: %#v", req.Input["width"])
	}
	if req.Input["guidance_scale"] != 3.5 {
		t.Fatalf("guidance_scale not mapped: %#v", req.Input["guidance_scale"])
	}
	if req.Config["service_mode"] != "public" {
		t.Fatalf("config target not mapped: %#v", req.Config)
	}
	if _, present := req.Input["negative_prompt"]; present {
		t.Fatalf("optional empty parameter should be omitted")
	}
}

func TestBuildSubmitMissingRequired(t *testing.T) {
	_, err := BuildSubmit(imageDescriptor(), map[string]any{})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Param != "prompt" {
		t.Fatalf("Param = %q, want %q", verr.Param, "prompt")
	}
}

func TestBuildSubmitRejectsMalformedURL(t *testing.T) {
	_, err := BuildSubmit(imageDescriptor(), map[string]any{
		"prompt":          "a red fox",
		"reference_image": "not a url",
	})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Param != "reference_image" {
		t.Fatalf("Param = %q, want %q", verr.Param, "reference_image")
	}
}

func TestBuildSubmitRejectsUnknownOption(t *testing.T) {
	_, err := BuildSubmit(imageDescriptor(), map[string]any{
		"prompt":       "a red fox",
		"service_mode": "turbo",
	})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if !strings.Contains(verr.Reason, "public") {
		t.Fatalf("reason should list valid options: %s", verr.Reason)
	}
}

func TestBuildSubmitCoercesNumbersFromJSON(t *testing.T) {
	// encoding/json delivers every number as float64.
	req, err := BuildSubmit(imageDescriptor(), map[string]any{
		"prompt": "a red fox",
		"width":  float64(768),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Input["width"] != 768 {
		t.Fatalf("width = %#v, want 768", req.Input["width"])
	}

	_, err = BuildSubmit(imageDescriptor(), map[string]any{
		"prompt": "a red fox",
		"width":  1.5,
	})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("fractional int should be rejected, got %v", err)
	}
}

func TestBuildSubmitBinaryBecomesDataURL(t *testing.T) {
	desc := &Descriptor{
		Name:     "face-swap",
		Model:    "Qubico/image-toolkit",
		TaskType: "face-swap",
		Params: []Param{
			{Name: "swap_image", Type: ParamBinary, Required: true, MIME: "image", Target: "input.swap_image"},
		},
	}
	if err := desc.Validate(); err != nil {
		t.Fatalf("descriptor invalid: %v", err)
	}

	payload := Binary{Data: []byte{0x89, 0x50, 0x4e, 0x47}, MIME: "image/png"}
	req, err := BuildSubmit(desc, map[string]any{"swap_image": payload})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "data:image/png;base64," + base64.StdEncoding.EncodeToString(payload.Data)
	if req.Input["swap_image"] != want {
		t.Fatalf("swap_image = %#v, want data url", req.Input["swap_image"])
	}
}

func TestBuildSubmitRejectsWrongMIME(t *testing.T) {
	desc := &Descriptor{
		Name:     "face-swap",
		Model:    "Qubico/image-toolkit",
		TaskType: "face-swap",
		Params: []Param{
			{Name: "swap_image", Type: ParamBinary, Required: true, MIME: "image", Target: "input.swap_image"},
		},
	}
	if err := desc.Validate(); err != nil {
		t.Fatalf("descriptor invalid: %v", err)
	}

	_, err := BuildSubmit(desc, map[string]any{
		"swap_image": Binary{Data: []byte("RIFF"), MIME: "audio/wav"},
	})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if !strings.Contains(verr.Reason, "audio/wav") {
		t.Fatalf("reason should name the offending type: %s", verr.Reason)
	}
}

func TestBuildSubmitBinaryFromJSONMap(t *testing.T) {
	desc := &Descriptor{
		Name:     "face-swap",
		Model:    "Qubico/image-toolkit",
		TaskType: "face-swap",
		Params: []Param{
			{Name: "swap_image", Type: ParamBinary, Required: true, MIME: "image", Target: "input.swap_image"},
		},
	}
	if err := desc.Validate(); err != nil {
		t.Fatalf("descriptor invalid: %v", err)
	}

	encoded := base64.StdEncoding.EncodeToString([]byte{0x01, 0x02})
	req, err := BuildSubmit(desc, map[string]any{
		"swap_image": map[string]any{"data": encoded, "mime": "image/jpeg"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := req.Input["swap_image"].(string); !strings.HasPrefix(got, "data:image/jpeg;base64,") {
		t.Fatalf("unexpected data url: %q", got)
	}

	_, err = BuildSubmit(desc, map[string]any{
		"swap_image": map[string]any{"data": "!!not base64!!", "mime": "image/jpeg"},
	})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for bad base64, got %v", err)
	}
}

func TestBuildSubmitNormalizesLanguageTags(t *testing.T) {
	desc := &Descriptor{
		Name:     "tts",
		Model:    "Qubico/tts",
		TaskType: "zero-shot",
		Params: []Param{
			{Name: "text", Type: ParamString, Required: true, Target: "input.gen_text"},
			{Name: "language", Type: ParamLanguage, Target: "input.language"},
		},
	}
	if err := desc.Validate(); err != nil {
		t.Fatalf("descriptor invalid: %v", err)
	}

	req, err := BuildSubmit(desc, map[string]any{
		"text":     "hello there",
		"language": "EN-us",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Input["language"] != "en-US" {
		t.Fatalf("language = %#v, want en-US", req.Input["language"])
	}

	_, err = BuildSubmit(desc, map[string]any{
		"text":     "hello there",
		"language": "zz-!!",
	})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for bad language tag, got %v", err)
	}
}

func TestBuildSubmitNestedTargets(t *testing.T) {
	desc := &Descriptor{
		Name:     "kling-video",
		Model:    "kling",
		TaskType: "video_generation",
		Params: []Param{
			{Name: "prompt", Type: ParamString, Required: true, Target: "input.prompt"},
			{Name: "camera_horizontal", Type: ParamInt, Target: "input.camera_control.config.horizontal"},
		},
	}
	if err := desc.Validate(); err != nil {
		t.Fatalf("descriptor invalid: %v", err)
	}

	req, err := BuildSubmit(desc, map[string]any{
		"prompt":            "slow pan over a bay",
		"camera_horizontal": 5,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	camera, ok := req.Input["camera_control"].(map[string]any)
	if !ok {
		t.Fatalf("camera_control not created: %#v", req.Input)
	}
	cfg, ok := camera["config"].(map[string]any)
	if !ok || cfg["horizontal"] != 5 {
		t.Fatalf("nested target not set: %#v", camera)
	}
}
