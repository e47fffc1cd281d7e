package i18n

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Language represents a supported language
type Language string

const (
	// Portuguese language
	LanguagePortuguese Language = "pt"
	// English language
	LanguageEnglish Language = "en"
)

// Translator manages translations for the application
type Translator struct {
	currentLanguage Language
	translations    map[Language]map[string]string
	mu              sync.RWMutex
}

// NewTranslator creates a translator preloaded with the built-in catalogs
func NewTranslator(language Language) *Translator {
	if !ValidateLanguage(string(language)) {
		language = LanguagePortuguese
	}
	return &Translator{
		currentLanguage: language,
		translations: map[Language]map[string]string{
			LanguagePortuguese: DefaultPortugueseTranslations(),
			LanguageEnglish:    DefaultEnglishTranslations(),
		},
	}
}

// LoadTranslations merges translations from JSON data over the catalog
func (t *Translator) LoadTranslations(language Language, data []byte) error {
	var overrides map[string]string
	if err := json.Unmarshal(data, &overrides); err != nil {
		return fmt.Errorf("failed to unmarshal translations: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	catalog, ok := t.translations[language]
	if !ok {
		catalog = make(map[string]string)
		t.translations[language] = catalog
	}
	for k, v := range overrides {
		catalog[k] = v
	}
	return nil
}

// LoadTranslationsFromFile merges translations from a JSON file
func (t *Translator) LoadTranslationsFromFile(language Language, filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read translation file: %w", err)
	}

	return t.LoadTranslations(language, data)
}

// SetLanguage sets the current language
func (t *Translator) SetLanguage(language Language) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.currentLanguage = language
}

// GetLanguage returns the current language
func (t *Translator) GetLanguage() Language {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.currentLanguage
}

// Translate translates a key in the current language, falling back to
// Portuguese and then to the key itself
func (t *Translator) Translate(key string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if text, ok := t.translations[t.currentLanguage][key]; ok {
		return text
	}
	if text, ok := t.translations[LanguagePortuguese][key]; ok {
		return text
	}
	return key
}

// TranslateWithFormat translates a key and replaces {param} placeholders
func (t *Translator) TranslateWithFormat(key string, params map[string]string) string {
	text := t.Translate(key)

	for param, value := range params {
		text = strings.ReplaceAll(text, "{"+param+"}", value)
	}

	return text
}

// HasTranslation checks if a translation key exists in the current language
func (t *Translator) HasTranslation(key string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	_, ok := t.translations[t.currentLanguage][key]
	return ok
}

// ValidateLanguage validates that a language is supported
func ValidateLanguage(language string) bool {
	return language == string(LanguagePortuguese) || language == string(LanguageEnglish)
}

// GetSupportedLanguages returns a list of supported languages
func GetSupportedLanguages() []Language {
	return []Language{LanguagePortuguese, LanguageEnglish}
}

// GlobalTranslator is set up in main
var GlobalTranslator *Translator

// T translates using the global translator
func T(key string) string {
	if GlobalTranslator == nil {
		return key
	}
	return GlobalTranslator.Translate(key)
}

// TF translates with formatting using the global translator
func TF(key string, params map[string]string) string {
	if GlobalTranslator == nil {
		return key
	}
	return GlobalTranslator.TranslateWithFormat(key, params)
}

// DefaultPortugueseTranslations returns the Portuguese catalog
func DefaultPortugueseTranslations() map[string]string {
	return map[string]string{
		// Menu items
		"menu.live_start":  "Iniciar classificação ao vivo",
		"menu.live_stop":   "Parar classificação ao vivo",
		"menu.train":       "Treinar",
		"menu.save":        "Salvar",
		"menu.copy_result": "Copiar resultado",
		"menu.quit":        "Sair",

		// Status
		"status.idle":         "Parado",
		"status.recording":    "Gravando",
		"status.uploading":    "Enviando",
		"status.interpreting": "Interpretando",
		"status.stopped":      "Parado",
		"status.failed":       "Falhou",

		// Samples
		"samples.class0":      "Classe 0",
		"samples.class1":      "Classe 1",
		"samples.classify":    "Classificar",
		"samples.temp":        "Temporário",
		"samples.duration":    "Duração",
		"samples.name":        "Arquivo",
		"samples.empty":       "Nenhuma amostra",
		"samples.deleted":     "Amostra {name} apagada.",
		"samples.playing":     "Reproduzindo {name}...",
		"samples.deleted_all": "Todos os arquivos foram deletados.",
		"samples.confirm_all": "Tem certeza de que deseja limpar todos os arquivos?",

		// Recording and classification
		"record.saved":      "Amostra {name} gravada em {bucket}.",
		"record.remaining":  "Tempo Restante: {seconds} segundos",
		"classify.result":   "Classificação: {class}",
		"classify.no_audio": "Nenhuma gravação para classificar.",
		"error.generic":     "Erro: {error}",

		// Network
		"network.last_saved": "Última rede salva: {name}",
		"network.none_saved": "Nenhuma rede salva.",
		"training.empty":     "Nenhuma amostra rotulada para treinar.",
	}
}

// DefaultEnglishTranslations returns the English catalog
func DefaultEnglishTranslations() map[string]string {
	return map[string]string{
		// Menu items
		"menu.live_start":  "Start live classification",
		"menu.live_stop":   "Stop live classification",
		"menu.train":       "Train",
		"menu.save":        "Save",
		"menu.copy_result": "Copy result",
		"menu.quit":        "Quit",

		// Status
		"status.idle":         "Idle",
		"status.recording":    "Recording",
		"status.uploading":    "Uploading",
		"status.interpreting": "Interpreting",
		"status.stopped":      "Stopped",
		"status.failed":       "Failed",

		// Samples
		"samples.class0":      "Class 0",
		"samples.class1":      "Class 1",
		"samples.classify":    "Classify",
		"samples.temp":        "Temporary",
		"samples.duration":    "Duration",
		"samples.name":        "File",
		"samples.empty":       "No samples",
		"samples.deleted":     "Sample {name} deleted.",
		"samples.playing":     "Playing {name}...",
		"samples.deleted_all": "All files were deleted.",
		"samples.confirm_all": "Are you sure you want to delete all files?",

		// Recording and classification
		"record.saved":      "Sample {name} recorded in {bucket}.",
		"record.remaining":  "Remaining Time: {seconds} seconds",
		"classify.result":   "Classification: {class}",
		"classify.no_audio": "No recording to classify.",
		"error.generic":     "Error: {error}",

		// Network
		"network.last_saved": "Last saved network: {name}",
		"network.none_saved": "No network saved.",
		"training.empty":     "No labeled samples to train on.",
	}
}
