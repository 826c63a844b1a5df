package i18n

import "net/http"

// Middleware injects a localizer into every request context. The server's
// configured language is the default; a lang query parameter overrides it
// per request so the client's language switcher works without a restart.
func Middleware(defaultLang string) func(http.Handler) http.Handler {
	fallback := NewLocalizer(defaultLang)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			loc := fallback
			if lang := r.URL.Query().Get("lang"); lang != "" {
				loc = NewLocalizer(lang, defaultLang)
			}
			ctx := WithLocalizer(r.Context(), loc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
