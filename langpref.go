package awmkit

import "fmt"

// UI language override values accepted by the host application.
// An empty string means "follow system locale".
const (
	LangSimplifiedChinese = "zh-CN"
	LangEnglishUS         = "en-US"
)

var ErrInvalidLanguage = fmt.Errorf("language must be %q, %q, or empty", LangSimplifiedChinese, LangEnglishUS)

// ValidLanguage reports whether lang is one of the accepted override
// values, including the empty "unset" value.
func ValidLanguage(lang string) bool {
	return lang == "" || lang == LangSimplifiedChinese || lang == LangEnglishUS
}
