package models

import (
	"time"

	"gorm.io/datatypes"
)

// CertificateUpload is the upload subdirectory for certificate files
const CertificateUpload = "certificates"

// Instrument is a measurement instrument (СИ)
type Instrument struct {
	Base
	GroupSiID           uint               `gorm:"not null" label:"Группа СИ"`
	GroupSi             *GroupSi           `gorm:"constraint:OnDelete:CASCADE"`
	NameSiID            uint               `gorm:"not null" label:"Наименование СИ"`
	NameSi              *NameSi            `gorm:"constraint:OnDelete:CASCADE"`
	TypeSiID            uint               `gorm:"not null" label:"Тип СИ"`
	TypeSi              *TypeSi            `gorm:"constraint:OnDelete:CASCADE"`
	Number              string             `gorm:"size:256;not null" label:"Заводской номер"`
	DescriptionMethodID *uint              `label:"Описание и методика поверки СИ"`
	DescriptionMethod   *DescriptionMethod `gorm:"constraint:OnDelete:CASCADE"`
	ServiceTypeID       uint               `gorm:"not null" label:"Вид метрологического обслуживания"`
	ServiceType         *ServiceType       `gorm:"constraint:OnDelete:CASCADE"`
	ServiceIntervalID   uint               `gorm:"not null" label:"Интервал обслуживания"`
	ServiceInterval     *ServiceInterval   `gorm:"constraint:OnDelete:CASCADE"`
	Etalon              bool               `gorm:"not null" label:"Эталон"`
	CategoryEtalon      *string            `gorm:"size:256" label:"Разряд эталона"`
	YearProduction      *int               `label:"Год выпуска"`
	Nomenclature        *string            `gorm:"size:256" label:"Номенклатурный номер"`
	PlaceID             *uint              `label:"Место обслуживания"`
	Place               *Place             `gorm:"constraint:OnDelete:CASCADE"`
	ControlVP           bool               `gorm:"column:control_vp;not null" label:"Контроль ВП"`
	RoomUseEtalonID     *uint              `label:"Помещение использования эталона"`
	RoomUseEtalon       *Room              `gorm:"foreignKey:RoomUseEtalonID;constraint:OnDelete:CASCADE"`
	RoomDeliveryID      uint               `gorm:"not null" label:"Помещение сдачи"`
	RoomDelivery        *Room              `gorm:"foreignKey:RoomDeliveryID;constraint:OnDelete:CASCADE"`
	EmployeeID          uint               `gorm:"not null" label:"Ответственное лицо"`
	Employee            *Employee          `gorm:"constraint:OnDelete:CASCADE"`
	DateLastService     *datatypes.Date    `label:"Дата последнего обслуживания"`
	DateNextService     datatypes.Date     `gorm:"not null" label:"Дата следующего обслуживания"`
	Certificate         *string            `gorm:"size:256" upload:"certificates" label:"Свидетельство"`
	CertificateHash     *string            `gorm:"size:64"`
	IsService           bool               `gorm:"not null" label:"На обслуживании"`
	StatusService       *string            `gorm:"size:256" label:"Статус обслуживания"`
	Services            []ServiceRecord    `gorm:"foreignKey:SiID;constraint:OnDelete:CASCADE"`
}

// TableName overrides the table name for Instrument
func (Instrument) TableName() string {
	return "si"
}

func (i Instrument) String() string {
	return i.Number
}

// ServiceRecord is one metrological service of an instrument
type ServiceRecord struct {
	Base
	SiID            uint            `gorm:"not null;index" label:"Средство измерения"`
	Si              *Instrument     `label:"Средство измерения"`
	DateInService   datatypes.Date  `gorm:"not null" label:"Дата приема на обслуживание"`
	DateOutService  *datatypes.Date `label:"Дата выдачи с обслуживания"`
	DateLastService *datatypes.Date `label:"Дата последнего обслуживания"`
	DateNextService *datatypes.Date `label:"Дата следующего обслуживания"`
	StatusServiceID *uint           `label:"Статус обслуживания"`
	StatusService   *StatusService  `gorm:"constraint:OnDelete:SET NULL"`
	Certificate     *string         `gorm:"size:256" upload:"certificates" label:"Свидетельство"`
	CertificateHash *string         `gorm:"size:64"`
	Note            *Text           `label:"Примечание"`
	IsReady         bool            `gorm:"not null" label:"Готово к выдаче"`
	IsOut           bool            `gorm:"not null" label:"Выдано"`
}

// TableName overrides the table name for ServiceRecord
func (ServiceRecord) TableName() string {
	return "service"
}

func (s ServiceRecord) String() string {
	if s.Si != nil {
		return s.Si.String()
	}
	return time.Time(s.DateInService).Format("02.01.2006")
}

// Date converts a calendar day into a date column value
func Date(year int, month time.Month, day int) datatypes.Date {
	return datatypes.Date(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// DatePtr is Date for nullable columns
func DatePtr(year int, month time.Month, day int) *datatypes.Date {
	d := Date(year, month, day)
	return &d
}
