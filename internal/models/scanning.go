// Package models holds the payloads exchanged with the scanning backend.
package models

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/opencontainers/go-digest"
)

var (
	validate = validator.New()

	ErrInvalidDigest   = errors.New("invalid image digest")
	ErrEmptySubmission = errors.New("backend returned no image record")
)

// ImageSubmission is the body of an image scan request
type ImageSubmission struct {
	Tag         string            `json:"tag" validate:"required"`
	Dockerfile  string            `json:"dockerfile,omitempty"`
	Annotations map[string]string `json:"annotations,omitempty"`
}

// Validate checks if the submission is valid
func (s *ImageSubmission) Validate() error {
	return validate.Struct(s)
}

// ImageRecord is one element of the backend's image submission response
type ImageRecord struct {
	ImageDigest   string `json:"imageDigest" validate:"required"`
	AnalysisState string `json:"analysis_status,omitempty"`
}

// Validate checks the record carries a well-formed digest
func (r *ImageRecord) Validate() error {
	if err := validate.Struct(r); err != nil {
		return err
	}
	return ValidateDigest(r.ImageDigest)
}

// ParseSubmissionResponse returns the first image record of a submission
// response body.
func ParseSubmissionResponse(body []byte) (*ImageRecord, error) {
	var records []ImageRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("failed to decode submission response: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrEmptySubmission
	}
	if err := records[0].Validate(); err != nil {
		return nil, err
	}
	return &records[0], nil
}

// ValidateDigest checks an "algorithm:hex" image digest
func ValidateDigest(d string) error {
	if _, err := digest.Parse(d); err != nil {
		return fmt.Errorf("%w %q: %v", ErrInvalidDigest, d, err)
	}
	return nil
}

// VulnerabilityReport is the backend's vulnerability listing for an image.
// Its contents are passed through without interpretation.
type VulnerabilityReport map[string]interface{}

// CheckResults is the backend's policy evaluation for an image.
type CheckResults []interface{}
