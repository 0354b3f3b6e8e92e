package registry

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/certverify/internal/certificate"
)

// RecordModel is the registry mirror row.
type RecordModel struct {
	ID                uint   `gorm:"primaryKey"`
	CertificateNumber string `gorm:"column:certificate_number;index;size:32"`
	Fingerprint       string `gorm:"column:fingerprint;uniqueIndex;size:64"`
	HolderName        string `gorm:"column:holder_name;size:255"`
	Institution       string `gorm:"column:institution;size:255"`
	Course            string `gorm:"column:course;size:255"`
	Year              int    `gorm:"column:year"`
}

// TableName overrides the default table name.
func (RecordModel) TableName() string {
	return "registry_records"
}

func (m RecordModel) toRecord() certificate.RegistryRecord {
	return certificate.RegistryRecord{
		CertificateNumber: m.CertificateNumber,
		Fingerprint:       certificate.Fingerprint(m.Fingerprint),
		HolderName:        m.HolderName,
		Institution:       m.Institution,
		Course:            m.Course,
		Year:              m.Year,
	}
}

// GormStore reads the registry mirror from Postgres. Record-set order is
// insertion order (primary key).
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a database backed Lookup.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// AutoMigrate ensures the mirror table exists.
func (s *GormStore) AutoMigrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&RecordModel{})
}

// Seed inserts records that are not yet present, keyed by fingerprint.
func (s *GormStore) Seed(ctx context.Context, records []certificate.RegistryRecord) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]RecordModel, 0, len(records))
	for _, rec := range records {
		if err := Validate(rec); err != nil {
			return err
		}
		rec = normalizeRecord(rec)
		rows = append(rows, RecordModel{
			CertificateNumber: rec.CertificateNumber,
			Fingerprint:       rec.Fingerprint.String(),
			HolderName:        rec.HolderName,
			Institution:       rec.Institution,
			Course:            rec.Course,
			Year:              rec.Year,
		})
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "fingerprint"}}, DoNothing: true}).
		Create(&rows).Error
	if err != nil {
		return fmt.Errorf("seed registry records: %w", err)
	}
	return nil
}

// FindByFingerprint returns the record registered for fp.
func (s *GormStore) FindByFingerprint(ctx context.Context, fp certificate.Fingerprint) (*certificate.RegistryRecord, error) {
	var row RecordModel
	err := s.db.WithContext(ctx).Order("id").First(&row, "fingerprint = ?", fp.String()).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rec := row.toRecord()
	return &rec, nil
}

// FindByCertificateNumber returns all records carrying number.
func (s *GormStore) FindByCertificateNumber(ctx context.Context, number string) ([]certificate.RegistryRecord, error) {
	var rows []RecordModel
	err := s.db.WithContext(ctx).
		Where("certificate_number = ?", NormalizeNumber(number)).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]certificate.RegistryRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toRecord())
	}
	return out, nil
}
