// Package jobs provides the background job engine: job kinds, the shared
// progress record, cooperative cancellation, one-shot result handles and the
// runner that puts job bodies on worker goroutines.
package jobs

import (
	"fmt"
	"strings"
)

// Kind identifies one of the independent background job categories.
// Each kind owns its own progress record, cancellation token and handle slot.
type Kind int

const (
	AnalyzeImage Kind = iota
	AnalyzePDF
	RotateImage
	GenerateThumbnails
)

var kindNames = [...]string{
	AnalyzeImage:       "analyze_image",
	AnalyzePDF:         "analyze_pdf",
	RotateImage:        "rotate_image",
	GenerateThumbnails: "generate_thumbnails",
}

// Kinds returns all job kinds in declaration order.
func Kinds() []Kind {
	return []Kind{AnalyzeImage, AnalyzePDF, RotateImage, GenerateThumbnails}
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k >= AnalyzeImage && k <= GenerateThumbnails
}

func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// MarshalText encodes the kind by name so events serialize readably.
func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, int(k))
	}
	return []byte(kindNames[k]), nil
}

// UnmarshalText decodes a kind name produced by MarshalText.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseKind resolves a kind name. Dashes are accepted in place of underscores.
func ParseKind(s string) (Kind, error) {
	name := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	for i, n := range kindNames {
		if n == name {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}
