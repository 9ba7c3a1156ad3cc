package auth

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/localnerve/reestrsi/internal/fields"
	"github.com/localnerve/reestrsi/internal/models"
	zxcvbn "github.com/nbutton23/zxcvbn-go"
	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the shortest accepted password, in characters
const MinPasswordLength = 8

// MinPasswordScore is the lowest accepted zxcvbn score (0..4)
const MinPasswordScore = 2

// HashCost is the bcrypt cost used for new hashes; tests lower it
var HashCost = bcrypt.DefaultCost

var attributeSplit = regexp.MustCompile(`[^\p{L}\p{N}_]+`)

// HashPassword returns the bcrypt hash of password
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), HashCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword compares password with a stored bcrypt hash
func CheckPassword(hash, password string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// SetPassword stores the hash of password on u
func SetPassword(u *models.UserProfile, password string) error {
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	u.Password = hash
	return nil
}

// ValidatePassword applies the password rules and returns every violated rule as a message.
// user may be nil for a password without an owner yet.
func ValidatePassword(password string, user *models.UserProfile) []string {
	var problems []string

	if n := utf8.RuneCountInString(password); n < MinPasswordLength {
		problems = append(problems, fmt.Sprintf(
			"Введённый пароль слишком короткий. Он должен содержать как минимум %d %s.",
			MinPasswordLength, fields.Suffix("символ", MinPasswordLength)))
	}

	if label, ok := similarTo(password, user); ok {
		problems = append(problems, fmt.Sprintf("Введённый пароль слишком похож на %s.", label))
	}

	if zxcvbn.PasswordStrength(password, userInputs(user)).Score < MinPasswordScore {
		problems = append(problems, "Введённый пароль слишком широко распространён.")
	}

	if password != "" && strings.IndexFunc(password, func(r rune) bool { return !unicode.IsDigit(r) }) < 0 {
		problems = append(problems, "Введённый пароль состоит только из цифр.")
	}
	return problems
}

// PasswordHelp lists the rules shown next to password inputs
func PasswordHelp() []string {
	return []string{
		"Пароль не должен быть слишком похож на другую вашу личную информацию.",
		fmt.Sprintf("Ваш пароль должен содержать как минимум %d %s.", MinPasswordLength, fields.Suffix("символ", MinPasswordLength)),
		"Пароль не должен быть слишком простым и распространенным.",
		"Пароль не может состоять только из цифр.",
	}
}

type attribute struct {
	label string
	value string
}

func attributes(user *models.UserProfile) []attribute {
	if user == nil {
		return nil
	}
	str := func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	}
	return []attribute{
		{"Логин", user.Username},
		{"Имя", str(user.FirstName)},
		{"Отчество", str(user.MiddleName)},
		{"Фамилия", str(user.LastName)},
		{"e-mail", str(user.Email)},
	}
}

func userInputs(user *models.UserProfile) []string {
	var inputs []string
	for _, a := range attributes(user) {
		if a.value != "" {
			inputs = append(inputs, strings.ToLower(a.value))
		}
	}
	return inputs
}

// similarTo reports the first user attribute the password contains or is contained in
func similarTo(password string, user *models.UserProfile) (string, bool) {
	pw := strings.ToLower(password)
	if len([]rune(pw)) < 3 {
		return "", false
	}
	for _, a := range attributes(user) {
		value := strings.ToLower(a.value)
		if value == "" {
			continue
		}
		parts := append(attributeSplit.Split(value, -1), value)
		for _, part := range parts {
			if len([]rune(part)) < 3 {
				continue
			}
			if strings.Contains(pw, part) || strings.Contains(part, pw) {
				return a.label, true
			}
		}
	}
	return "", false
}
