package domain

import (
	"errors"
	"strings"
)

// ErrImageURLRequired is returned by Validate for a reference without a URL.
var ErrImageURLRequired = errors.New("image reference: url is required")

// ImageReference describes a stored image as passed between upload handling
// and rendering. UTKey is the object-storage key; BlurData is an encoded
// low-fidelity placeholder. Both are optional and independent of each other.
type ImageReference struct {
	URL      string  `json:"url"`
	UTKey    *string `json:"ut_key,omitempty"`
	BlurData *string `json:"blur_data,omitempty"`
}

// Validate reports whether the reference satisfies the interchange contract.
func (r ImageReference) Validate() error {
	if strings.TrimSpace(r.URL) == "" {
		return ErrImageURLRequired
	}
	return nil
}
