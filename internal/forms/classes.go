package forms

import (
	"context"
	"fmt"
	"strings"

	"github.com/localnerve/reestrsi/internal/auth"
	"github.com/localnerve/reestrsi/internal/meta"
	"github.com/localnerve/reestrsi/internal/models"
)

const (
	MaxLength         = 256
	MaxLengthName     = 100
	MaxLengthTextarea = 1000
)

func maxDescription(n int) string {
	return fmt.Sprintf("максимум %d символов", n)
}

func namedClass(name, model string) *Class {
	return &Class{
		Name:  name,
		Model: model,
		Fields: []FieldSpec{{
			Name:        "name",
			Kind:        Text,
			Description: maxDescription(MaxLength),
			Validators:  []Validator{DataRequired{}, Length{Max: MaxLength}, Unique{}},
		}},
	}
}

func personName(name string) FieldSpec {
	return FieldSpec{
		Name:        name,
		Kind:        Text,
		Description: maxDescription(MaxLengthName),
		Validators:  []Validator{DataRequired{}, Length{Max: MaxLengthName}},
	}
}

func emailField(message string) FieldSpec {
	return FieldSpec{
		Name:       "email",
		Kind:       Email,
		Validators: []Validator{Optional{}, EmailAddress{}, Unique{Message: message}},
	}
}

func selectField(name string, required bool) FieldSpec {
	s := FieldSpec{Name: name, Kind: Select}
	if required {
		s.Validators = []Validator{DataRequired{}}
	}
	return s
}

func noteField() FieldSpec {
	return FieldSpec{
		Name:        "note",
		Kind:        Textarea,
		Description: maxDescription(MaxLengthTextarea),
		Validators:  []Validator{Length{Max: MaxLengthTextarea}},
	}
}

func dateField(name string, required bool) FieldSpec {
	s := FieldSpec{Name: name, Kind: Date, Validators: []Validator{Optional{}}}
	if required {
		s.Validators = []Validator{DataRequired{}}
	}
	return s
}

// InstrumentForm edits an instrument. Dates and the certificate follow the service records
// while the instrument is on service.
func InstrumentForm() *Class {
	return &Class{
		Name:  "SiForm",
		Model: models.InstrumentName,
		Fields: []FieldSpec{
			selectField("group_si", true),
			selectField("name_si", true),
			selectField("type_si", true),
			{
				Name:        "number",
				Kind:        Text,
				Description: maxDescription(MaxLength),
				Validators:  []Validator{DataRequired{}, Length{Max: MaxLength}},
			},
			selectField("description_method", false),
			{Name: "description", Kind: Textarea},
			{Name: "method", Kind: Textarea},
			selectField("service_type", true),
			selectField("service_interval", true),
			{Name: "etalon", Kind: Boolean},
			{
				Name:        "category_etalon",
				Kind:        Text,
				Description: maxDescription(MaxLength),
				Validators:  []Validator{Length{Max: MaxLength}},
			},
			{
				Name:        "year_production",
				Kind:        Integer,
				Description: "диапазон от 1900 до 2200",
				Validators:  []Validator{Optional{}, NumberRange{Min: 1900, Max: 2200}},
			},
			{
				Name:        "nomenclature",
				Kind:        Text,
				Description: maxDescription(MaxLength),
				Validators:  []Validator{Length{Max: MaxLength}},
			},
			selectField("room_use_etalon", false),
			selectField("place", false),
			{Name: "control_vp", Kind: Boolean},
			selectField("employee", true),
			{Name: "division", Kind: Text},
			{Name: "email", Kind: Text},
			selectField("room_delivery", true),
			dateField("date_last_service", false),
			dateField("date_next_service", true),
			{Name: "certificate", Kind: File, Validators: []Validator{DataRequired{}, UniqueFile{}}},
			{Name: "status_service", Kind: Text},
		},
		ReadOnly: []string{"description", "method", "division", "email", "status_service"},
		ReadOnlyFunc: func(instance meta.Entity) []string {
			if si, ok := instance.(*models.Instrument); ok && si.IsService {
				return []string{"date_last_service", "date_next_service", "certificate"}
			}
			return nil
		},
	}
}

// ServiceForm edits an open service record
func ServiceForm() *Class {
	return &Class{
		Name:  "ServiceForm",
		Model: models.ServiceRecordName,
		Fields: []FieldSpec{
			dateField("date_in_service", false),
			dateField("date_last_service", false),
			dateField("date_next_service", false),
			selectField("status_service", true),
			{Name: "certificate", Kind: File, Validators: []Validator{UniqueFile{}}},
			noteField(),
		},
		ReadOnly: []string{"date_in_service", "date_last_service"},
	}
}

// AddServiceForm sends an instrument to service
func AddServiceForm() *Class {
	return &Class{
		Name:  "AddServiceForm",
		Model: models.ServiceRecordName,
		Fields: []FieldSpec{
			dateField("date_in_service", true),
			selectField("status_service", true),
		},
	}
}

// OutServiceForm returns an instrument from service
func OutServiceForm() *Class {
	return &Class{
		Name:  "OutServiceForm",
		Model: models.ServiceRecordName,
		Fields: []FieldSpec{
			dateField("date_out_service", true),
			dateField("date_next_service", true),
			{Name: "certificate", Kind: File, Validators: []Validator{DataRequired{}, UniqueFile{}}},
			noteField(),
		},
	}
}

// EmployeeForm edits a responsible person
func EmployeeForm() *Class {
	return &Class{
		Name:  "EmployeeForm",
		Model: models.EmployeeName,
		Fields: []FieldSpec{
			personName("last_name"),
			personName("first_name"),
			personName("middle_name"),
			emailField("Сотрудник с таким e-mail уже существует"),
			selectField("division", true),
		},
	}
}

// UserProfileForm edits an account. The password is changed with PasswordChangeForm.
func UserProfileForm() *Class {
	return &Class{
		Name:  "UserProfileForm",
		Model: models.UserProfileName,
		Fields: []FieldSpec{
			{
				Name:        "username",
				Kind:        Text,
				Description: maxDescription(MaxLengthName),
				Validators:  []Validator{DataRequired{}, Length{Max: MaxLengthName}, Unique{}},
			},
			personName("last_name"),
			personName("first_name"),
			personName("middle_name"),
			emailField("Пользователь с таким e-mail уже существует"),
			{
				Name: "is_active",
				Kind: Boolean,
				Description: "Отметьте, если пользователь должен считаться активным. " +
					"Уберите эту отметку вместо удаления учётной записи.",
			},
		},
	}
}

func passwordFields() []FieldSpec {
	return []FieldSpec{
		{
			Name:        "password",
			Kind:        Password,
			Description: strings.Join(auth.PasswordHelp(), " "),
			Validators:  []Validator{DataRequired{}, EqualTo{Field: "password2", Message: "Пароли не совпадают"}},
		},
		{
			Name:        "password2",
			Kind:        Password,
			Label:       "Подтверждение пароля",
			Description: "Для подтверждения введите, пожалуйста, пароль ещё раз.",
			Validators:  []Validator{DataRequired{}},
		},
	}
}

// hashPassword runs the strength rules against the provisional account and
// replaces the plain password written by Validate with its hash
func hashPassword(_ context.Context, f *Form) bool {
	user, ok := f.Instance.(*models.UserProfile)
	if !ok {
		f.AddError("", "unexpected instance type")
		return false
	}
	password := f.Field("password").Raw
	if problems := auth.ValidatePassword(password, user); len(problems) > 0 {
		for _, p := range problems {
			f.AddError("password", p)
		}
		return false
	}
	if err := auth.SetPassword(user, password); err != nil {
		f.AddError("password", err.Error())
		return false
	}
	if f.Created {
		user.Active = true
	}
	return true
}

// AddUserForm creates an account with its password
func AddUserForm() *Class {
	profile := UserProfileForm()
	pw := passwordFields()
	return &Class{
		Name:  "AddUserForm",
		Model: models.UserProfileName,
		Fields: []FieldSpec{
			profile.Fields[0],
			pw[0], pw[1],
			profile.Fields[1], profile.Fields[2], profile.Fields[3], profile.Fields[4],
		},
		PostValidate: hashPassword,
	}
}

// PasswordChangeForm sets the password of any account
func PasswordChangeForm() *Class {
	return &Class{
		Name:         "PasswordChangeForm",
		Model:        models.UserProfileName,
		Fields:       passwordFields(),
		PostValidate: hashPassword,
	}
}

// UserPasswordChangeForm lets the signed in user change their own password
func UserPasswordChangeForm() *Class {
	old := FieldSpec{
		Name:  "old_password",
		Kind:  Password,
		Label: "Старый пароль",
		Validators: []Validator{DataRequired{}, OldPassword{Check: func(user meta.User, password string) bool {
			u, ok := user.(*models.UserProfile)
			return ok && auth.CheckPassword(u.Password, password)
		}}},
	}
	return &Class{
		Name:         "UserPasswordChangeForm",
		Model:        models.UserProfileName,
		Fields:       append([]FieldSpec{old}, passwordFields()...),
		PostValidate: hashPassword,
	}
}

// NewDefaultRegistry registers the form classes of every model. The first class of a model is its default.
func NewDefaultRegistry() (*Registry, error) {
	descriptionMethod := namedClass("DescriptionMethodForm", models.DescriptionMethodName)
	descriptionMethod.Fields = append(descriptionMethod.Fields,
		FieldSpec{Name: "description", Kind: Textarea},
		FieldSpec{Name: "method", Kind: Textarea},
	)

	interval := &Class{
		Name:  "ServiceIntervalForm",
		Model: models.ServiceIntervalName,
		Fields: []FieldSpec{{
			Name:       "name",
			Kind:       Integer,
			Validators: []Validator{DataRequired{}, NumberRange{Min: 1, Max: 1200}, Unique{}},
		}},
	}

	classes := []*Class{
		namedClass("GroupSiForm", models.GroupSiName),
		namedClass("NameSiForm", models.NameSiName),
		namedClass("TypeSiForm", models.TypeSiName),
		namedClass("ServiceTypeForm", models.ServiceTypeName),
		interval,
		namedClass("PlaceForm", models.PlaceName),
		namedClass("RoomForm", models.RoomName),
		descriptionMethod,
		namedClass("DivisionForm", models.DivisionName),
		namedClass("StatusServiceForm", models.StatusServiceName),
		EmployeeForm(),
		InstrumentForm(),
		ServiceForm(),
		AddServiceForm(),
		OutServiceForm(),
		UserProfileForm(),
		AddUserForm(),
		PasswordChangeForm(),
		UserPasswordChangeForm(),
	}

	reg := NewRegistry()
	for _, c := range classes {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
