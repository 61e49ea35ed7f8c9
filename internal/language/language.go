// Package language maps wiki site abbreviations to language names.
package language

import (
	"fmt"
	"sort"
	"strings"
)

// Code is a wiki site subdomain abbreviation, e.g. "en" or "de".
type Code string

func (c Code) String() string { return string(c) }

// EnglishName returns the English name of the language.
func (c Code) EnglishName() string { return byAbbreviation[string(c)] }

var byAbbreviation = map[string]string{
	"en": "English",
	"fr": "French",
	"ru": "Russian",
	"de": "German",
	"fi": "Finnish",
	"es": "Spanish",
	"it": "Italian",
	"pt": "Portuguese",
	"nl": "Dutch",
	"pl": "Polish",
	"sv": "Swedish",
	"ja": "Japanese",
	"zh": "Chinese",
	"ko": "Korean",
	"tr": "Turkish",
	"el": "Greek",
	"cs": "Czech",
}

// FromAbbreviation resolves a site abbreviation to a Code.
func FromAbbreviation(abbr string) (Code, error) {
	abbr = strings.ToLower(strings.TrimSpace(abbr))
	if _, ok := byAbbreviation[abbr]; !ok {
		return "", fmt.Errorf("unknown language abbreviation %q", abbr)
	}
	return Code(abbr), nil
}

// FromEnglishName resolves an English language name to a Code.
func FromEnglishName(name string) (Code, error) {
	name = strings.TrimSpace(name)
	for abbr, english := range byAbbreviation {
		if strings.EqualFold(english, name) {
			return Code(abbr), nil
		}
	}
	return "", fmt.Errorf("unknown language name %q", name)
}

// Known returns every registered code, sorted by abbreviation.
func Known() []Code {
	codes := make([]Code, 0, len(byAbbreviation))
	for abbr := range byAbbreviation {
		codes = append(codes, Code(abbr))
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}
