package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Document is one stored document of a named collection. Fields holds the
// document body as written by the client; Kind mirrors fields.type so feeds
// can be filtered without decoding the body.
type Document struct {
	DocumentID  uuid.UUID      `gorm:"column:document_id;type:uuid;primaryKey" json:"document_id"`
	Collection  string         `gorm:"column:collection;type:varchar(64);not null;index:idx_documents_collection_created,priority:1" json:"collection"`
	Kind        string         `gorm:"column:kind;type:varchar(20);not null;default:'produce'" json:"kind"`
	Fields      datatypes.JSON `gorm:"column:fields;type:json" json:"fields"`
	CreatedAt   time.Time      `gorm:"column:createdAt;index:idx_documents_collection_created,priority:2" json:"createdAt"`
	LastUpdated time.Time      `gorm:"column:lastUpdated" json:"lastUpdated"`
}

func (Document) TableName() string {
	return "documents"
}

// BeforeCreate sets document_id if not already set (DBs without default uuid).
func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.DocumentID == uuid.Nil {
		d.DocumentID = uuid.New()
	}
	return nil
}
