package localization

import (
	"slices"
	"strings"

	"golang.org/x/text/language"
)

const (
	English = "en"
	French  = "fr"
	Arabic  = "ar"
	Italian = "it"
	German  = "de"
	Chinese = "zh"
	Russian = "ru"

	DefaultLanguage = English
)

// Supported lists the application languages in fallback priority order.
var Supported = []string{English, French, Arabic, Italian, German, Chinese, Russian}

var supportedMatcher = language.NewMatcher([]language.Tag{
	language.English,
	language.French,
	language.Arabic,
	language.Italian,
	language.German,
	language.Chinese,
	language.Russian,
})

func IsSupported(code string) bool {
	return slices.Contains(Supported, code)
}

// IsRTL reports whether code is written right to left. Only Arabic is.
func IsRTL(code string) bool {
	return code == Arabic
}

// MatchLocale maps device locales such as "fr-CA" or "zh_Hant_TW" onto a supported code.
// Only the first parseable locale is considered, mirroring how the device preference is read.
func MatchLocale(locales ...string) (string, bool) {
	for _, locale := range locales {
		tag, err := language.Parse(strings.ReplaceAll(strings.TrimSpace(locale), "_", "-"))
		if err != nil {
			continue
		}

		_, idx, confidence := supportedMatcher.Match(tag)
		if confidence == language.No {
			return "", false
		}
		return Supported[idx], true
	}
	return "", false
}
