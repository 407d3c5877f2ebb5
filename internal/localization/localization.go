// Package localization provides functionality for internationalization (i18n).
// It loads translation strings from JSON files and provides a simple way to get
// localized strings for different languages.
package localization

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"

	errors "github.com/Laisky/errors/v2"
)

//go:embed locales/*.json
var embedded embed.FS

// DefaultLanguage is used when a key is missing in the requested language.
const DefaultLanguage = "uz"

// Localizer manages the translations for the application.
// It holds a map of languages, each with its own map of translation keys and values.
type Localizer struct {
	translations map[string]map[string]string
	fallback     string
	mu           sync.RWMutex
}

// Default loads the translations compiled into the binary.
func Default() (*Localizer, error) {
	return NewLocalizer(embedded, "locales")
}

// NewLocalizer loads every "<lang>.json" file found in dir of fsys.
func NewLocalizer(fsys fs.FS, dir string) (*Localizer, error) {
	l := &Localizer{
		translations: make(map[string]map[string]string),
		fallback:     DefaultLanguage,
	}

	files, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, errors.Wrap(err, "read localization directory")
	}

	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
			continue
		}

		lang := strings.TrimSuffix(file.Name(), ".json")
		data, err := fs.ReadFile(fsys, path.Join(dir, file.Name()))
		if err != nil {
			return nil, errors.Wrapf(err, "read localization file %s", file.Name())
		}

		var translations map[string]string
		if err := json.Unmarshal(data, &translations); err != nil {
			return nil, errors.Wrapf(err, "parse localization file %s", file.Name())
		}

		l.translations[lang] = translations
	}

	if len(l.translations) == 0 {
		return nil, errors.Errorf("no localization files in %s", dir)
	}
	return l, nil
}

// Has reports whether lang was loaded.
func (l *Localizer) Has(lang string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.translations[lang]
	return ok
}

// Languages lists the loaded language codes, sorted.
func (l *Localizer) Languages() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	langs := make([]string, 0, len(l.translations))
	for lang := range l.translations {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}

// GetString returns the localized string for a given key and language.
// If the language or the key is not found, it falls back to the default language
// and finally to the key itself.
func (l *Localizer) GetString(lang, key string) string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if langTranslations, ok := l.translations[lang]; ok {
		if value, ok := langTranslations[key]; ok {
			return value
		}
	}

	if lang != l.fallback {
		if fb, ok := l.translations[l.fallback]; ok {
			if value, ok := fb[key]; ok {
				return value
			}
		}
	}

	return key
}

// Format looks up key and applies fmt.Sprintf with args.
func (l *Localizer) Format(lang, key string, args ...interface{}) string {
	return fmt.Sprintf(l.GetString(lang, key), args...)
}

// Bundle binds a Localizer to one language.
type Bundle struct {
	l    *Localizer
	lang string
}

func (l *Localizer) Bundle(lang string) Bundle {
	return Bundle{l: l, lang: lang}
}

func (b Bundle) Lang() string { return b.lang }

func (b Bundle) T(key string) string {
	return b.l.GetString(b.lang, key)
}

func (b Bundle) F(key string, args ...interface{}) string {
	return b.l.Format(b.lang, key, args...)
}
