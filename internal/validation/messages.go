package validation

import "fmt"

// Message keys.
const (
	MsgRequired             = "required"
	MsgMaxLength            = "max_length"
	MsgUsernameInvalid      = "username_invalid"
	MsgUsernameTaken        = "username_taken"
	MsgEmailInvalid         = "email_invalid"
	MsgPasswordMismatch     = "password_mismatch"
	MsgPasswordSimilar      = "password_similar"
	MsgPasswordSimilarEmail = "password_similar_email"
	MsgPasswordShort        = "password_short"
	MsgPasswordCommon       = "password_common"
	MsgPasswordNumeric      = "password_numeric"
	MsgInvalidLogin         = "invalid_login"
)

var catalogs = map[string]map[string]string{
	"ja": {
		MsgRequired:             "このフィールドは必須です。",
		MsgMaxLength:            "この値は %d 文字以下でなければなりません( %d 文字になっています)。",
		MsgUsernameInvalid:      "有効なユーザー名を入力してください。半角アルファベット、半角数字、@/./+/-/_ のみ使えます。",
		MsgUsernameTaken:        "同じユーザー名が既に登録済みです。",
		MsgEmailInvalid:         "有効なメールアドレスを入力してください。",
		MsgPasswordMismatch:     "確認用パスワードが一致しません。",
		MsgPasswordSimilar:      "このパスワードは ユーザー名 と似すぎています。",
		MsgPasswordSimilarEmail: "このパスワードは メールアドレス と似すぎています。",
		MsgPasswordShort:        "このパスワードは短すぎます。最低 %d 文字以上必要です。",
		MsgPasswordCommon:       "このパスワードは一般的すぎます。",
		MsgPasswordNumeric:      "このパスワードは数字しか使われていません。",
		MsgInvalidLogin:         "正しいユーザー名とパスワードを入力してください。どちらのフィールドも大文字と小文字は区別されます。",
	},
	"en": {
		MsgRequired:             "This field is required.",
		MsgMaxLength:            "Ensure this value has at most %d characters (it has %d).",
		MsgUsernameInvalid:      "Enter a valid username. This value may contain only letters, numbers, and @/./+/-/_ characters.",
		MsgUsernameTaken:        "A user with that username already exists.",
		MsgEmailInvalid:         "Enter a valid email address.",
		MsgPasswordMismatch:     "The two password fields didn't match.",
		MsgPasswordSimilar:      "The password is too similar to the username.",
		MsgPasswordSimilarEmail: "The password is too similar to the email address.",
		MsgPasswordShort:        "This password is too short. It must contain at least %d characters.",
		MsgPasswordCommon:       "This password is too common.",
		MsgPasswordNumeric:      "This password is entirely numeric.",
		MsgInvalidLogin:         "Please enter a correct username and password. Note that both fields may be case-sensitive.",
	},
}

// DefaultLocale is used for unknown locales.
const DefaultLocale = "ja"

func catalog(locale string) map[string]string {
	if c, ok := catalogs[locale]; ok {
		return c
	}
	return catalogs[DefaultLocale]
}

func format(c map[string]string, key string, args ...any) string {
	tmpl, ok := c[key]
	if !ok {
		return key
	}
	if len(args) == 0 {
		return tmpl
	}
	return fmt.Sprintf(tmpl, args...)
}
