package tool

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Date layouts used in tool instructions.
const (
	DateLayout     = "02/01/2006"
	DateTimeLayout = "02/01/2006 15:04"
)

// ParseDay reads a DD/MM/YYYY date. Single-digit day and month are accepted.
func ParseDay(s string) (time.Time, error) {
	return time.Parse("2/1/2006", strings.TrimSpace(s))
}

// validate is shared by every tool; validator.Validate caches struct metadata
// and is safe for concurrent use.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	mustRegister(v, "dmy", func(fl validator.FieldLevel) bool {
		_, err := ParseDay(fl.Field().String())
		return err == nil
	})
	mustRegister(v, "dmyhm", func(fl validator.FieldLevel) bool {
		_, err := time.Parse(DateTimeLayout, strings.TrimSpace(fl.Field().String()))
		return err == nil
	})
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register validation %q: %v", tag, err))
	}
}

// checkParams validates p and renders the first failure as a sentence the
// tool-handler agent can relay to the user. It returns "" when p is valid.
func checkParams(p any) string {
	err := validate.Struct(p)
	if err == nil {
		return ""
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("'%s' is required", fe.Field())
	case "dmy":
		return fmt.Sprintf("'%s' must be a date in DD/MM/YYYY format", fe.Field())
	case "dmyhm":
		return fmt.Sprintf("'%s' must be a date and time in DD/MM/YYYY HH:MM format", fe.Field())
	case "email":
		return fmt.Sprintf("'%s' must be a valid email address", fe.Field())
	case "number", "numeric":
		return fmt.Sprintf("'%s' must be a number", fe.Field())
	case "min", "gte":
		return fmt.Sprintf("'%s' must be at least %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("'%s' is invalid (%s)", fe.Field(), fe.Tag())
	}
}

// flexString accepts a JSON string, number or boolean. Models write "20" and
// 20 interchangeably.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexString(n.String())
		return nil
	}
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexString(strconv.FormatBool(b))
		return nil
	}
	return fmt.Errorf("expected a string or number, got %s", data)
}

func (f flexString) String() string { return string(f) }

// Int parses the value as an integer, accepting integral floats like "5.0".
func (f flexString) Int() (int, error) {
	s := strings.TrimSpace(string(f))
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v != float64(int(v)) {
		return 0, fmt.Errorf("%q is not an integer", s)
	}
	return int(v), nil
}
