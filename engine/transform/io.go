package transform

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/varikb/varikb/engine/domain"
)

// ReadHarvest loads a source harvest from the JSON file a harvester wrote.
func ReadHarvest(path string) (SourceHarvest, error) {
	var h SourceHarvest
	b, err := os.ReadFile(path)
	if err != nil {
		return h, fmt.Errorf("read harvest %s: %w", path, err)
	}
	if err := json.Unmarshal(b, &h); err != nil {
		return h, fmt.Errorf("parse harvest %s: %w", path, err)
	}
	return h, nil
}

// WriteBundle persists a canonical bundle as the interchange file consumed
// by the loader. Output is indented so diffs between pipeline runs stay
// reviewable.
func WriteBundle(path string, data *domain.TransformedData) error {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode bundle: %w", err)
	}
	if err := os.WriteFile(path, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("write bundle %s: %w", path, err)
	}
	return nil
}

// ReadBundle loads a canonical bundle from an interchange file.
func ReadBundle(path string) (*domain.TransformedData, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bundle %s: %w", path, err)
	}
	var data domain.TransformedData
	if err := json.Unmarshal(b, &data); err != nil {
		return nil, fmt.Errorf("parse bundle %s: %w", path, err)
	}
	return &data, nil
}
