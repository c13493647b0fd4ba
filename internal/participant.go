package internal

import (
	"errors"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// 名稱規則：去除前後空白後 2-16 個字元，只允許字母、數字、空白、_ 與 -
const (
	NameMinLength = 2
	NameMaxLength = 16
)

var (
	ErrNameInvalid  = errors.New("名稱無效")
	ErrNameTooShort = errors.New("名稱過短（最少 2 個字元）")
	ErrNameTooLong  = errors.New("名稱過長（最多 16 個字元）")
	ErrNameCharset  = errors.New("名稱包含不允許的字元")
)

var playerNamePattern = regexp.MustCompile(`^[\p{L}\p{N} _-]+$`)

// validate 共用的驗證器（註冊了 playername 規則）
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("playername", func(fl validator.FieldLevel) bool {
		return playerNamePattern.MatchString(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	return v
}

type nameInput struct {
	Name string `validate:"min=2,max=16,playername"`
}

// ValidateName 驗證並正規化玩家名稱
//
// 回傳去除前後空白後的名稱（保留大小寫）。長度以字元（rune）計算。
func ValidateName(raw string) (string, error) {
	name := strings.TrimSpace(raw)

	err := validate.Struct(nameInput{Name: name})
	if err == nil {
		return name, nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return "", ErrNameInvalid
	}

	switch fieldErrs[0].Tag() {
	case "min":
		return "", ErrNameTooShort
	case "max":
		return "", ErrNameTooLong
	case "playername":
		return "", ErrNameCharset
	default:
		return "", ErrNameInvalid
	}
}

// Participant 一個已連線的匿名玩家
//
// 由 Registry 擁有；Queue、PendingPair、Session 只持有參考。
type Participant struct {
	ID   string
	Name string
}

// DisplayName 顯示名稱，尚未設定時取連線 ID 前 4 碼
func (p *Participant) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	if len(p.ID) > 4 {
		return p.ID[:4]
	}
	return p.ID
}
