package registry

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/example/certverify/internal/certificate"
)

// LoadFile reads a JSON array of records and validates each one.
func LoadFile(path string) ([]certificate.RegistryRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry file: %w", err)
	}

	var records []certificate.RegistryRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode registry file %s: %w", path, err)
	}
	for i, rec := range records {
		if err := Validate(rec); err != nil {
			return nil, fmt.Errorf("registry file %s entry %d: %w", path, i, err)
		}
		records[i] = normalizeRecord(rec)
	}
	return records, nil
}
