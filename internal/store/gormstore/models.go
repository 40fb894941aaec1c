package gormstore

import (
	"time"

	"github.com/JonMunkholm/valuedcustomer/internal/core"
)

// identifierCounter names the SequenceCounter row that serializes imports.
const identifierCounter = "valuedcustomer.vcustid"

// customerModel maps the valuedcustomer table.
type customerModel struct {
	VCustID     string    `gorm:"column:vcustid;primaryKey;size:11"`
	VCustName   string    `gorm:"column:vcustname;size:255;not null"`
	MotherCode  *string   `gorm:"column:mothercode;size:64"`
	VGroup      string    `gorm:"column:vgroup;size:64;not null"`
	Active      bool      `gorm:"column:active;not null"`
	UpdateCount int       `gorm:"column:update_count;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (customerModel) TableName() string { return "valuedcustomer" }

func (m customerModel) toCustomer() (core.Customer, error) {
	id, err := core.ParseIdentifier(m.VCustID)
	if err != nil {
		return core.Customer{}, err
	}
	c := core.Customer{
		Identifier:  id,
		Name:        m.VCustName,
		Group:       m.VGroup,
		Active:      m.Active,
		UpdateCount: m.UpdateCount,
		CreatedAt:   m.CreatedAt,
	}
	if m.MotherCode != nil {
		c.MotherCode = *m.MotherCode
	}
	return c, nil
}

// SequenceCounter stores the last value handed out by a named counter. The
// import transaction locks its row for the duration of the import.
type SequenceCounter struct {
	Name      string `gorm:"primaryKey;size:64"`
	LastValue string `gorm:"size:64;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (SequenceCounter) TableName() string { return "sequence_counters" }

// importModel maps the customer_imports history table.
type importModel struct {
	BatchID         string    `gorm:"column:batch_id;primaryKey;size:36"`
	FileName        string    `gorm:"column:file_name;size:255;not null"`
	RowsInserted    int       `gorm:"column:rows_inserted;not null"`
	RowsDiscarded   int       `gorm:"column:rows_discarded;not null"`
	FirstIdentifier *string   `gorm:"column:first_identifier;size:11"`
	LastIdentifier  *string   `gorm:"column:last_identifier;size:11"`
	Source          string    `gorm:"column:source;size:64;not null"`
	ImportedAt      time.Time `gorm:"column:imported_at;autoCreateTime;index"`
}

func (importModel) TableName() string { return "customer_imports" }

func (m importModel) toRecord() core.ImportRecord {
	rec := core.ImportRecord{
		BatchID:       m.BatchID,
		FileName:      m.FileName,
		RowsInserted:  m.RowsInserted,
		RowsDiscarded: m.RowsDiscarded,
		Source:        m.Source,
		ImportedAt:    m.ImportedAt,
	}
	if m.FirstIdentifier != nil {
		rec.FirstIdentifier = *m.FirstIdentifier
	}
	if m.LastIdentifier != nil {
		rec.LastIdentifier = *m.LastIdentifier
	}
	return rec
}
