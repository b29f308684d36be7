package catalog

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// MultiLang is the tag used by sources that serve several languages.
const MultiLang = "all"

// NormalizeLang canonicalises a BCP 47 language tag ("pt-br" becomes
// "pt-BR"). Unparseable tags and MultiLang are returned lower-cased.
func NormalizeLang(tag string) string {
	tag = strings.TrimSpace(tag)
	if tag == "" || strings.EqualFold(tag, MultiLang) {
		return strings.ToLower(tag)
	}
	t, err := language.Parse(tag)
	if err != nil {
		return strings.ToLower(tag)
	}
	return t.String()
}

// LangName returns the English display name of a language tag, falling back
// to the tag itself.
func LangName(tag string) string {
	if strings.EqualFold(tag, MultiLang) {
		return "Multi"
	}
	t, err := language.Parse(tag)
	if err != nil {
		return tag
	}
	if name := display.English.Tags().Name(t); name != "" {
		return name
	}
	return tag
}
