package entity

import (
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"
)

// fixtureFile matches the fixtures JSON document layout.
type fixtureFile struct {
	Entities []fixtureEntity `json:"entities"`
}

type fixtureEntity struct {
	EntityID   string                 `json:"entity_id"`
	State      Value                  `json:"state"`
	Attributes map[string]interface{} `json:"attributes"`
}

// LoadFixtures populates the store from a fixtures file. The caller is
// expected to treat errors as non-fatal: a missing or malformed file
// leaves the store empty.
func (s *Store) LoadFixtures(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read fixtures: %w", err)
	}

	var doc fixtureFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse fixtures: %w", err)
	}

	s.mu.Lock()
	for _, fe := range doc.Entities {
		s.add(fe.EntityID, fe.State, fe.Attributes)
	}
	s.mu.Unlock()

	s.logger.Info("Loaded entities from fixtures",
		zap.String("path", path),
		zap.Int("count", s.Len()))
	return nil
}
