package models

import "time"

// UserProfile is an account allowed to sign in. Password holds a bcrypt hash.
type UserProfile struct {
	Base
	Username   string    `gorm:"size:100;not null;uniqueIndex" label:"Логин"`
	Password   string    `gorm:"size:200;not null" json:"-" label:"Пароль"`
	LastName   *string   `gorm:"size:100" label:"Фамилия"`
	FirstName  *string   `gorm:"size:100" label:"Имя"`
	MiddleName *string   `gorm:"size:100" label:"Отчество"`
	Email      *string   `gorm:"size:256;uniqueIndex" label:"e-mail"`
	Active     bool      `gorm:"column:is_active;not null" label:"Активный"`
	DateJoined time.Time `gorm:"autoCreateTime" label:"Дата регистрации"`
}

// TableName overrides the table name for UserProfile
func (UserProfile) TableName() string {
	return "user_profile"
}

func (u UserProfile) String() string {
	return u.Username
}

// IsAuthenticated is true for every loaded account; anonymous visitors have no UserProfile
func (u UserProfile) IsAuthenticated() bool {
	return u.ID != 0
}

// IsActive reports whether the account may sign in
func (u UserProfile) IsActive() bool {
	return u.Active
}

// FullName formats "Фамилия Имя Отчество", falling back to the username
func (u UserProfile) FullName() string {
	e := Employee{LastName: u.LastName, FirstName: deref(u.FirstName), MiddleName: u.MiddleName}
	if name := e.FullName(); name != "" {
		return name
	}
	return u.Username
}

// ShortName formats "Фамилия И.О.", falling back to the username
func (u UserProfile) ShortName() string {
	if name := shortName(deref(u.LastName), deref(u.FirstName), deref(u.MiddleName)); name != "" {
		return name
	}
	return u.Username
}
