package domain

import (
	"fmt"
	"strings"
)

// Distance is the similarity metric a collection is created with
type Distance string

const (
	DistanceCosine Distance = "Cosine"
	DistanceDot    Distance = "Dot"
	DistanceEuclid Distance = "Euclid"
)

// ParseDistance accepts the metric name in any case.
func ParseDistance(s string) (Distance, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "cosine":
		return DistanceCosine, nil
	case "dot":
		return DistanceDot, nil
	case "euclid", "euclidean", "l2":
		return DistanceEuclid, nil
	default:
		return "", fmt.Errorf("%w: unknown distance %q", ErrConfig, s)
	}
}

// CollectionConfig fixes dimensionality and metric at creation time
type CollectionConfig struct {
	Name       string   `json:"name"`
	VectorSize int      `json:"vector_size"`
	Distance   Distance `json:"distance"`
}

// Validate checks the config is usable for creation.
func (c CollectionConfig) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: collection name is required", ErrConfig)
	}
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive, got %d", ErrConfig, c.VectorSize)
	}
	if _, err := ParseDistance(string(c.Distance)); err != nil {
		return err
	}
	return nil
}

// CollectionInfo describes a collection as configured in the store
type CollectionInfo struct {
	Name       string   `json:"name"`
	PointCount uint64   `json:"point_count"`
	VectorSize int      `json:"vector_size"`
	Distance   Distance `json:"distance"`
}

// CollectionHealth is the result of a read-only collection probe.
// Error is set only when Exists is false.
type CollectionHealth struct {
	Exists     bool     `json:"exists"`
	Name       string   `json:"name"`
	PointCount uint64   `json:"point_count"`
	VectorSize int      `json:"vector_size"`
	Distance   Distance `json:"distance"`
	Error      string   `json:"error,omitempty"`
}
