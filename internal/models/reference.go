package models

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Base carries the integer primary key shared by every table
type Base struct {
	ID uint `gorm:"primaryKey;autoIncrement"`
}

// PrimaryKey implements meta.Entity
func (b Base) PrimaryKey() uint {
	return b.ID
}

// Named is embedded by the reference tables keyed by a unique name
type Named struct {
	Base
	Name string `gorm:"size:256;not null;uniqueIndex" label:"Наименование"`
}

func (n Named) String() string {
	return n.Name
}

// GroupSi is a group of instruments by measurement area
type GroupSi struct {
	Named
}

// NameSi is an instrument name
type NameSi struct {
	Named
}

// TypeSi is an instrument type
type TypeSi struct {
	Named
}

// ServiceType is a kind of metrological service (verification, calibration, attestation)
type ServiceType struct {
	Named
}

// ServiceInterval is a service interval in months
type ServiceInterval struct {
	Base
	Name int `gorm:"not null;uniqueIndex" label:"Наименование"`
}

func (s ServiceInterval) String() string {
	return strconv.Itoa(s.Name)
}

// Place is a place where service is performed
type Place struct {
	Named
}

// Room is a room number
type Room struct {
	Named
}

// DescriptionMethod pairs an instrument description with its verification method
type DescriptionMethod struct {
	Named
	Description *Text `label:"Описание СИ"`
	Method      *Text `label:"Методика поверки СИ"`
}

// Division is an organisational unit
type Division struct {
	Named
}

// StatusService is a service status, copied onto the instrument
type StatusService struct {
	Named
}

func (GroupSi) TableName() string           { return "group_si" }
func (NameSi) TableName() string            { return "name_si" }
func (TypeSi) TableName() string            { return "type_si" }
func (ServiceType) TableName() string       { return "service_type" }
func (ServiceInterval) TableName() string   { return "service_interval" }
func (Place) TableName() string             { return "place" }
func (Room) TableName() string              { return "room" }
func (DescriptionMethod) TableName() string { return "description_method" }
func (Division) TableName() string          { return "division" }
func (StatusService) TableName() string     { return "status_service" }

// Employee is the person responsible for an instrument
type Employee struct {
	Base
	LastName   *string   `gorm:"size:100" label:"Фамилия"`
	FirstName  string    `gorm:"size:100;not null" label:"Имя"`
	MiddleName *string   `gorm:"size:100" label:"Отчество"`
	Email      *string   `gorm:"size:256;uniqueIndex" label:"e-mail"`
	DivisionID uint      `gorm:"not null" label:"Подразделение"`
	Division   *Division `gorm:"constraint:OnDelete:CASCADE"`
}

// TableName overrides the table name for Employee
func (Employee) TableName() string {
	return "employee"
}

// FullName formats "Фамилия Имя Отчество"
func (e Employee) FullName() string {
	parts := []string{capitalize(deref(e.LastName)), capitalize(e.FirstName), capitalize(deref(e.MiddleName))}
	return strings.TrimSpace(strings.Join(nonEmpty(parts), " "))
}

// ShortName formats "Фамилия И.О."
func (e Employee) ShortName() string {
	return shortName(deref(e.LastName), e.FirstName, deref(e.MiddleName))
}

func (e Employee) String() string {
	return e.FullName()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nonEmpty(parts []string) []string {
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}

func initial(s string) string {
	r, _ := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return ""
	}
	return string(unicode.ToUpper(r)) + "."
}

func shortName(last, first, middle string) string {
	if first == "" || middle == "" {
		return capitalize(last)
	}
	return capitalize(last) + " " + initial(first) + initial(middle)
}
