// Package validation 基于 validator/v10 的请求体校验，结果转换为字段错误列表
package validation

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"Travault/pkg/errors"

	"github.com/go-playground/validator/v10"
)

var (
	once     sync.Once
	instance *validator.Validate
)

func get() *validator.Validate {
	once.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		// 字段名取 json 标签
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
		_ = v.RegisterValidation("notpast", notPast)
		instance = v
	})
	return instance
}

// notPast 日期不早于今天（UTC）
func notPast(fl validator.FieldLevel) bool {
	t, ok := fl.Field().Interface().(time.Time)
	if !ok {
		return false
	}
	today := time.Now().UTC().Truncate(24 * time.Hour)
	return !t.UTC().Before(today)
}

// Fields 校验结构体，返回字段错误列表，通过时返回 nil
func Fields(s interface{}) []errors.FieldError {
	err := get().Struct(s)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []errors.FieldError{{Field: "body", Message: err.Error()}}
	}
	out := make([]errors.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, errors.FieldError{Field: fieldPath(fe), Message: message(fe)})
	}
	return out
}

// Check 校验失败时返回 CodeValidation 错误
func Check(s interface{}) error {
	if fields := Fields(s); len(fields) > 0 {
		return errors.Validation(fields)
	}
	return nil
}

// fieldPath 去掉顶层结构体名，保留嵌套路径
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func message(fe validator.FieldError) string {
	f := fe.Field()
	switch fe.Tag() {
	case "required", "required_with":
		return fmt.Sprintf("%s is required", f)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", f, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "min":
		if isString(fe) {
			return fmt.Sprintf("%s must be at least %s characters", f, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", f, fe.Param())
	case "max":
		if isString(fe) {
			return fmt.Sprintf("%s must be at most %s characters", f, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", f, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", f, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", f, fe.Param())
	case "gtfield":
		return fmt.Sprintf("%s must be after %s", f, fe.Param())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", f)
	case "len":
		return fmt.Sprintf("%s must be exactly %s characters", f, fe.Param())
	case "notpast":
		return fmt.Sprintf("%s cannot be in the past", f)
	}
	return fmt.Sprintf("%s is invalid", f)
}

func isString(fe validator.FieldError) bool {
	return fe.Kind() == reflect.String
}
