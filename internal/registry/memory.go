package registry

import (
	"context"

	"github.com/example/certverify/internal/certificate"
)

// MemoryStore is an immutable in-process record set.
type MemoryStore struct {
	records       []certificate.RegistryRecord
	byFingerprint map[certificate.Fingerprint]int
	byNumber      map[string][]int
}

// NewMemoryStore indexes records, preserving their order. The first record
// wins when two share a fingerprint.
func NewMemoryStore(records []certificate.RegistryRecord) *MemoryStore {
	s := &MemoryStore{
		records:       make([]certificate.RegistryRecord, 0, len(records)),
		byFingerprint: make(map[certificate.Fingerprint]int, len(records)),
		byNumber:      make(map[string][]int, len(records)),
	}
	for _, rec := range records {
		rec = normalizeRecord(rec)
		idx := len(s.records)
		s.records = append(s.records, rec)
		if _, exists := s.byFingerprint[rec.Fingerprint]; !exists {
			s.byFingerprint[rec.Fingerprint] = idx
		}
		s.byNumber[rec.CertificateNumber] = append(s.byNumber[rec.CertificateNumber], idx)
	}
	return s
}

// FindByFingerprint returns the record registered for fp.
func (s *MemoryStore) FindByFingerprint(_ context.Context, fp certificate.Fingerprint) (*certificate.RegistryRecord, error) {
	idx, ok := s.byFingerprint[fp]
	if !ok {
		return nil, ErrNotFound
	}
	rec := s.records[idx]
	return &rec, nil
}

// FindByCertificateNumber returns all records carrying number.
func (s *MemoryStore) FindByCertificateNumber(_ context.Context, number string) ([]certificate.RegistryRecord, error) {
	idxs := s.byNumber[NormalizeNumber(number)]
	out := make([]certificate.RegistryRecord, 0, len(idxs))
	for _, idx := range idxs {
		out = append(out, s.records[idx])
	}
	return out, nil
}

// Len returns the number of records.
func (s *MemoryStore) Len() int { return len(s.records) }
