// Package validation checks the signup, login and tweet forms and reports
// problems per field in the configured locale.
package validation

import (
	"errors"
	"reflect"
	"strings"
	"unicode"
	"unicode/utf8"

	"example.com/tweetgraph/internal/models"
	"github.com/go-playground/validator/v10"
)

// NonFieldKey holds errors that concern the form as a whole.
const NonFieldKey = "non_field_errors"

const MaxUsernameLength = 150

// Errors maps a form field (its json name) to its messages, in the order the
// rules were checked.
type Errors map[string][]string

func (e Errors) Add(field, msg string) {
	e[field] = append(e[field], msg)
}

func (e Errors) Has(field string) bool {
	return len(e[field]) > 0
}

type SignupForm struct {
	Username  string `json:"username" validate:"nonblank,max=150,username"`
	Email     string `json:"email" validate:"nonblank,email,dotted_domain"`
	Password1 string `json:"password1" validate:"nonblank"`
	Password2 string `json:"password2" validate:"nonblank"`
}

type LoginForm struct {
	Username string `json:"username" validate:"nonblank"`
	Password string `json:"password" validate:"nonblank"`
}

type TweetForm struct {
	Content string `json:"content" validate:"nonblank,max=200"`
}

// Validator wraps a configured go-playground validator and the message
// catalog of one locale.
type Validator struct {
	validate *validator.Validate
	messages map[string]string
}

// New builds a validator reporting in locale ("ja" or "en").
func New(locale string) *Validator {
	v := &Validator{
		validate: validator.New(),
		messages: catalog(locale),
	}

	// Use JSON tag names in error reports
	v.validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.validate.RegisterValidation("nonblank", nonBlankValidator)
	_ = v.validate.RegisterValidation("username", usernameValidator)
	_ = v.validate.RegisterValidation("dotted_domain", dottedDomainValidator)
	return v
}

// Message renders key in the validator's locale.
func (v *Validator) Message(key string, args ...any) string {
	return format(v.messages, key, args...)
}

// Signup checks the signup form. Username uniqueness is left to the caller,
// who reports it with MsgUsernameTaken.
func (v *Validator) Signup(f SignupForm) Errors {
	errs := v.structErrors(f)

	if errs.Has("password1") || errs.Has("password2") {
		return errs
	}
	if f.Password1 != f.Password2 {
		errs.Add("password2", v.Message(MsgPasswordMismatch))
		return errs
	}
	for _, key := range checkPassword(f.Password2, f.Username, f.Email) {
		if key == MsgPasswordShort {
			errs.Add("password2", v.Message(key, MinPasswordLength))
			continue
		}
		errs.Add("password2", v.Message(key))
	}
	return errs
}

func (v *Validator) Login(f LoginForm) Errors {
	return v.structErrors(f)
}

// Tweet checks the content of a new tweet. Surrounding whitespace is not
// counted.
func (v *Validator) Tweet(f TweetForm) Errors {
	f.Content = strings.TrimSpace(f.Content)
	return v.structErrors(f)
}

func (v *Validator) structErrors(s any) Errors {
	errs := Errors{}
	err := v.validate.Struct(s)
	if err == nil {
		return errs
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		errs.Add(NonFieldKey, err.Error())
		return errs
	}
	for _, fe := range verrs {
		errs.Add(fe.Field(), v.fieldMessage(fe))
	}
	return errs
}

func (v *Validator) fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "nonblank":
		return v.Message(MsgRequired)
	case "max":
		limit := MaxUsernameLength
		if fe.Field() == "content" {
			limit = models.MaxTweetLength
		}
		n := 0
		if s, ok := fe.Value().(string); ok {
			n = utf8.RuneCountInString(s)
		}
		return v.Message(MsgMaxLength, limit, n)
	case "username":
		return v.Message(MsgUsernameInvalid)
	case "email", "dotted_domain":
		return v.Message(MsgEmailInvalid)
	default:
		return fe.Error()
	}
}

// Custom validator implementations

// nonBlankValidator rejects empty and whitespace-only strings
func nonBlankValidator(fl validator.FieldLevel) bool {
	field := fl.Field()
	if field.Kind() == reflect.String {
		return strings.TrimSpace(field.String()) != ""
	}
	return !field.IsZero()
}

// usernameValidator accepts letters, digits and @ . + - _
func usernameValidator(fl validator.FieldLevel) bool {
	for _, r := range fl.Field().String() {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune("@.+-_", r) {
			continue
		}
		return false
	}
	return true
}

// dottedDomainValidator requires the part after the last @ to contain a dot
// that is neither its first nor its last character.
func dottedDomainValidator(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	at := strings.LastIndex(s, "@")
	if at < 0 {
		return false
	}
	domain := s[at+1:]
	dot := strings.Index(domain, ".")
	return dot > 0 && !strings.HasSuffix(domain, ".")
}
