package chain

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/eddiefleurent/options_strategist/internal/models"
)

// DecodeJSON reads one chain object from r and normalizes it.
func DecodeJSON(r io.Reader) (*models.Chain, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode chain: %w", err)
	}
	return Normalize(raw)
}
