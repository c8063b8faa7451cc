package models

import (
	"time"

	"gorm.io/gorm"
)

// Author is a publication author in the catalog.
type Author struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	FirstName string         `gorm:"size:120;not null" json:"firstName"`
	LastName  string         `gorm:"size:120;not null" json:"lastName"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// Category groups publications by subject.
type Category struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Name      string         `gorm:"size:120;unique;not null" json:"name"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// Publication is a catalog entry with an optional attached file.
type Publication struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Title       string         `gorm:"size:254;not null" json:"title"`
	Description string         `gorm:"type:text" json:"description"`
	Year        int            `json:"year"`
	CategoryID  *uint          `gorm:"index" json:"category_id"`
	Category    *Category      `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
	Authors     []Author       `gorm:"many2many:publication_authors" json:"authors,omitempty"`
	FileName    string         `gorm:"size:254" json:"file_name,omitempty"`
	FileSize    int64          `json:"file_size,omitempty"`
	ContentType string         `gorm:"size:120" json:"content_type,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// HasFile reports whether a file has been attached to the publication.
func (p *Publication) HasFile() bool {
	return p.FileName != ""
}
