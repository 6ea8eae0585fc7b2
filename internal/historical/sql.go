package historical

import (
	"context"
	"strings"
	"time"

	"github.com/yanun0323/errors"
	"gorm.io/gorm"
)

// Row is one archived event in the SQL archive.
type Row struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement"`
	Kind       string    `gorm:"size:16;index"`
	RecordKey  string    `gorm:"size:64;index"`
	RecordedAt time.Time `gorm:"index"`
	Fields     string
}

func (Row) TableName() string { return "archive_rows" }

// SQLSink mirrors archived entries into a database table.
type SQLSink struct {
	db *gorm.DB
}

// NewSQLSink migrates the archive table and returns a sink writing to it.
func NewSQLSink(db *gorm.DB) (*SQLSink, error) {
	if db == nil {
		return nil, errors.New("sql sink: nil db")
	}
	if err := db.AutoMigrate(&Row{}); err != nil {
		return nil, errors.Wrap(err, "migrate archive rows")
	}
	return &SQLSink{db: db}, nil
}

// Insert stores one entry.
func (s *SQLSink) Insert(ctx context.Context, key string, e Entry) error {
	row := Row{
		Kind:       e.Kind.String(),
		RecordKey:  key,
		RecordedAt: e.Time.UTC(),
		Fields:     strings.Join(e.Fields, ","),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return errors.Wrap(err, "insert archive row").With("kind", row.Kind)
	}
	return nil
}

// Count returns the number of rows of kind.
func (s *SQLSink) Count(ctx context.Context, kind Kind) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&Row{}).Where("kind = ?", kind.String()).Count(&n).Error
	return n, err
}
