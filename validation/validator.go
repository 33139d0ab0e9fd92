// Package validation 命令的前置校验：字段校验函数与编排器钩子
//
// 校验失败返回 ErrCodeValidation 错误，在加载聚合之前快速失败，不触碰事件存储。
package validation

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"gocqrs/errors"
)

var identifierRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:\-]*$`)

// MaxIdentifierLength 与事件表 aggregate_id 列宽一致
const MaxIdentifierLength = 255

// IValidatable 可自校验的命令
type IValidatable interface {
	Validate() error
}

// ValidateRequired 验证必填字段
func ValidateRequired(value, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return errors.NewError(errors.ErrCodeValidation,
			fmt.Sprintf("%s不能为空", fieldName))
	}
	return nil
}

// ValidateStringLength 验证字符串长度；max 为 0 表示不限制
func ValidateStringLength(value, fieldName string, min, max int) error {
	length := len(value)
	if length < min {
		return errors.NewError(errors.ErrCodeValidation,
			fmt.Sprintf("%s长度不能少于%d个字符（当前%d）", fieldName, min, length))
	}
	if max > 0 && length > max {
		return errors.NewError(errors.ErrCodeValidation,
			fmt.Sprintf("%s长度不能超过%d个字符（当前%d）", fieldName, max, length))
	}
	return nil
}

// ValidateIdentifier 聚合 ID、支票号等标识符
func ValidateIdentifier(value, fieldName string) error {
	if err := ValidateRequired(value, fieldName); err != nil {
		return err
	}
	if err := ValidateStringLength(value, fieldName, 1, MaxIdentifierLength); err != nil {
		return err
	}
	if !identifierRegex.MatchString(value) {
		return errors.NewError(errors.ErrCodeValidation,
			fmt.Sprintf("%s只能包含字母、数字和 _ . : -", fieldName))
	}
	return nil
}

// ValidatePositiveAmount 金额必须为有限正数
func ValidatePositiveAmount(value float64, fieldName string) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return errors.NewError(errors.ErrCodeValidation,
			fmt.Sprintf("%s不是有效数字", fieldName))
	}
	if value <= 0 {
		return errors.NewError(errors.ErrCodeValidation,
			fmt.Sprintf("%s必须为正数（当前%g）", fieldName, value))
	}
	return nil
}

// ValidateEnum 验证枚举值
func ValidateEnum(value, fieldName string, validValues []string) error {
	for _, valid := range validValues {
		if value == valid {
			return nil
		}
	}
	return errors.NewError(errors.ErrCodeValidation,
		fmt.Sprintf("%s的值无效，必须是以下之一: %v", fieldName, validValues))
}

// Validate 依次执行校验，返回第一个错误
func Validate(checks ...error) error {
	for _, err := range checks {
		if err != nil {
			return err
		}
	}
	return nil
}
