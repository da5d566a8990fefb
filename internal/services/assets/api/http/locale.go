package httpapi

import (
	"net/http"
	"strings"

	"golang.org/x/text/language"

	"github.com/louisbranch/bridgeassets/internal/platform/errors/i18n"
)

// resolveLocale picks the best registered message locale for the request's
// Accept-Language header.
func resolveLocale(r *http.Request) string {
	accept := strings.TrimSpace(r.Header.Get("Accept-Language"))
	if accept == "" {
		return i18n.BaseLocale
	}
	desired, _, err := language.ParseAcceptLanguage(accept)
	if err != nil || len(desired) == 0 {
		return i18n.BaseLocale
	}

	locales := make([]string, 0)
	tags := make([]language.Tag, 0)
	for _, locale := range i18n.Locales() {
		tag, err := language.Parse(locale)
		if err != nil {
			continue
		}
		locales = append(locales, locale)
		tags = append(tags, tag)
	}
	if len(tags) == 0 {
		return i18n.BaseLocale
	}
	_, index, confidence := language.NewMatcher(tags).Match(desired...)
	if confidence == language.No || index < 0 || index >= len(locales) {
		return i18n.BaseLocale
	}
	return locales[index]
}
