package core

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/dkeye/Stage/internal/domain"
)

const (
	DefaultPINLength = 6
	pinAlphabet      = "0123456789"
)

// NanoPINGenerator issues numeric PINs.
type NanoPINGenerator struct {
	length int
}

func NewNanoPINGenerator(length int) (*NanoPINGenerator, error) {
	if length < 4 || length > 12 {
		return nil, fmt.Errorf("pin length must be between 4 and 12, got %d", length)
	}
	return &NanoPINGenerator{length: length}, nil
}

func (g *NanoPINGenerator) Generate() (domain.PIN, error) {
	id, err := gonanoid.Generate(pinAlphabet, g.length)
	if err != nil {
		return "", fmt.Errorf("failed to generate pin: %w", err)
	}
	return domain.PIN(id), nil
}
