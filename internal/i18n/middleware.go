package i18n

import (
	"net/http"

	"golang.org/x/text/language"
)

// Middleware injects a localizer into every request context. The language is
// taken from the Accept-Language header when it matches a loaded locale,
// otherwise lang is used.
func Middleware(lang string) func(http.Handler) http.Handler {
	fallback := NewLocalizer(lang)
	matcher := language.NewMatcher(Languages())
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			loc := fallback
			if accept := r.Header.Get("Accept-Language"); accept != "" {
				if tag, ok := Match(matcher, accept); ok {
					loc = NewLocalizer(tag.String(), lang)
				}
			}
			next.ServeHTTP(w, r.WithContext(WithLocalizer(r.Context(), loc)))
		})
	}
}

// Match picks the best loaded locale for an Accept-Language header value.
func Match(matcher language.Matcher, accept string) (language.Tag, bool) {
	tags, _, err := language.ParseAcceptLanguage(accept)
	if err != nil || len(tags) == 0 {
		return language.Und, false
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return language.Und, false
	}
	return Languages()[idx], true
}
