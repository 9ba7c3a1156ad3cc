// descriptors.go
//
// Measurement instrument registry with metrological service tracking
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of reestrsi.
// reestrsi is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// reestrsi is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with reestrsi.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

package models

import (
	"github.com/localnerve/reestrsi/internal/meta"
)

// Registry names of the models
const (
	GroupSiName           = "groupsi"
	NameSiName            = "namesi"
	TypeSiName            = "typesi"
	ServiceTypeName       = "servicetype"
	ServiceIntervalName   = "serviceinterval"
	PlaceName             = "place"
	RoomName              = "room"
	DescriptionMethodName = "descriptionmethod"
	DivisionName          = "division"
	EmployeeName          = "employee"
	StatusServiceName     = "statusservice"
	InstrumentName        = "si"
	ServiceRecordName     = "service"
	UserProfileName       = "userprofile"
)

// Settings groups
const (
	GroupDatasource = "datasource"
	GroupUsers      = "users"
)

func named(name string, model meta.Entity, verbose, plural, change, suffix string) *meta.Descriptor {
	return &meta.Descriptor{
		Name:              name,
		Model:             model,
		VerboseName:       verbose,
		VerboseNamePlural: plural,
		VerboseNameChange: change,
		ActionSuffix:      suffix,
		FieldsDisplay:     []string{"name"},
		FieldsSearch:      []string{"name"},
		Ordering:          []string{"name"},
	}
}

// Descriptors builds the metadata of every model, in registration order
func Descriptors() []*meta.Descriptor {
	interval := named(ServiceIntervalName, &ServiceInterval{}, "Интервал обслуживания", "Интервалы обслуживания", "", "")
	// integer names are not searchable
	interval.FieldsSearch = nil

	descriptionMethod := named(DescriptionMethodName, &DescriptionMethod{},
		"Описание и методика поверки СИ", "Описания и методики поверки СИ", "Описание и методику поверки СИ", "о")
	descriptionMethod.FieldsSearch = []string{"name", "description", "method"}

	return []*meta.Descriptor{
		named(GroupSiName, &GroupSi{}, "Группа СИ", "Группы СИ", "Группу СИ", "а"),
		named(NameSiName, &NameSi{}, "Наименование СИ", "Наименования СИ", "", "о"),
		named(TypeSiName, &TypeSi{}, "Тип СИ", "Типы СИ", "", ""),
		named(ServiceTypeName, &ServiceType{}, "Вид метрологического обслуживания", "Виды метрологического обслуживания", "", ""),
		interval,
		named(PlaceName, &Place{}, "Место обслуживания", "Места обслуживания", "", "о"),
		named(RoomName, &Room{}, "Помещение", "Помещения", "", "о"),
		descriptionMethod,
		named(DivisionName, &Division{}, "Подразделение", "Подразделения", "", "о"),
		named(StatusServiceName, &StatusService{}, "Статус обслуживания", "Статусы обслуживания", "", ""),
		{
			Name:              EmployeeName,
			Model:             &Employee{},
			VerboseName:       "Ответственное лицо",
			VerboseNamePlural: "Ответственные лица",
			ActionSuffix:      "о",
			FieldsDisplay:     []string{meta.StrField, "email", "division"},
			FieldsSearch:      []string{"last_name", "first_name", "middle_name", "email", "division.name"},
			FieldsFilter:      []string{"division"},
			Ordering:          []string{"last_name", "first_name", "middle_name"},
			SelectRelated:     []string{"division"},
		},
		instrumentDescriptor(),
		{
			Name:              ServiceRecordName,
			Model:             &ServiceRecord{},
			VerboseName:       "Обслуживание СИ",
			VerboseNamePlural: "Обслуживание СИ",
			ActionSuffix:      "о",
			FieldsDisplay:     []string{"si", "date_in_service", "date_last_service", "is_ready", "date_next_service", "certificate", "note"},
			FieldsSearch:      []string{"si.number", "si.name_si.name", "si.type_si.name"},
			FieldsFilter:      []string{"is_ready", "date_in_service"},
			Ordering:          []string{"-date_in_service"},
			SelectRelated:     []string{"si.name_si", "si.type_si", "si.employee.division"},
			JoinedRelated:     []string{"status_service"},
		},
		{
			Name:              UserProfileName,
			Model:             &UserProfile{},
			VerboseName:       "Пользователь",
			VerboseNamePlural: "Пользователи",
			FieldsDisplay:     []string{"username", "get_full_name", "email", "is_active", "date_joined"},
			FieldsSearch:      []string{"username", "last_name", "email"},
			FieldsFilter:      []string{"is_active"},
			Ordering:          []string{"username"},
			Computed: map[string]*meta.Computed{
				"get_full_name": {
					ShortDescription: "Ф.И.О.",
					Func: func(e meta.Entity) any {
						return e.(*UserProfile).FullName()
					},
				},
			},
		},
	}
}

func instrumentDescriptor() *meta.Descriptor {
	return &meta.Descriptor{
		Name:              InstrumentName,
		Model:             &Instrument{},
		VerboseName:       "Средство измерения",
		VerboseNamePlural: "Средства измерения",
		ActionSuffix:      "о",
		FieldsDisplay: []string{
			"group_si", "name_si", "type_si", "number", "description_method", "service_type",
			"service_interval", "etalon", "category_etalon", "year_production", "nomenclature",
			"room_use_etalon", "place", "control_vp", "room_delivery", "employee",
			"date_last_service", "date_next_service", "certificate", "is_service",
		},
		FieldsSearch: []string{
			"group_si.name", "name_si.name", "type_si.name", "number",
			"employee.last_name", "employee.first_name", "employee.middle_name",
		},
		FieldsFilter: []string{
			"group_si", "name_si", "type_si", "service_type", "service_interval", "place",
			"control_vp", "etalon", "employee", "employee.division",
			"date_next_service", "is_service",
		},
		Ordering: []string{"date_next_service", "number"},
		SelectRelated: []string{
			"group_si", "name_si", "type_si", "service_type", "service_interval",
			"description_method", "place", "room_use_etalon", "room_delivery",
		},
		JoinedRelated: []string{"employee.division"},
		Computed: map[string]*meta.Computed{
			"division": {
				ShortDescription: "Подразделение",
				Func: func(e meta.Entity) any {
					if emp := e.(*Instrument).Employee; emp != nil && emp.Division != nil {
						return emp.Division.String()
					}
					return nil
				},
			},
			"email": {
				ShortDescription: "e-mail",
				Func: func(e meta.Entity) any {
					if emp := e.(*Instrument).Employee; emp != nil && emp.Email != nil {
						return *emp.Email
					}
					return nil
				},
			},
			"description": {
				ShortDescription: "Описание СИ",
				Func: func(e meta.Entity) any {
					if dm := e.(*Instrument).DescriptionMethod; dm != nil && dm.Description != nil {
						return string(*dm.Description)
					}
					return nil
				},
			},
			"method": {
				ShortDescription: "Методика поверки СИ",
				Func: func(e meta.Entity) any {
					if dm := e.(*Instrument).DescriptionMethod; dm != nil && dm.Method != nil {
						return string(*dm.Method)
					}
					return nil
				},
			},
		},
	}
}

// NewRegistry registers every model and the settings groups
func NewRegistry() (*meta.Registry, error) {
	reg := meta.NewRegistry()
	for _, d := range Descriptors() {
		if err := reg.Register(d); err != nil {
			return nil, err
		}
	}

	groups := []meta.Group{
		{
			Label:       GroupDatasource,
			VerboseName: "База зависимостей",
			Models: []string{
				GroupSiName, NameSiName, TypeSiName, ServiceTypeName, ServiceIntervalName,
				DescriptionMethodName, PlaceName, RoomName, DivisionName, EmployeeName, StatusServiceName,
			},
		},
		{
			Label:       GroupUsers,
			VerboseName: "Пользователи",
			Models:      []string{UserProfileName},
		},
	}
	for _, g := range groups {
		if err := reg.AddGroup(g); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
