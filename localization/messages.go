package localization

import (
	"context"
	"embed"
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/pitabwire/util"
	"golang.org/x/text/language"
)

// Message ids used by the client core.
const (
	MsgRestartRequired = "common.restartRequired"
	MsgRestartMessage  = "common.restartMessage"
	MsgRestartNow      = "common.restartNow"
	MsgNoInternet      = "common.noInternet"
	MsgOfflineCached   = "common.offlineCached"
	MsgError           = "common.error"
)

//go:embed translations/*.toml
var translations embed.FS

// NewBundle loads the embedded catalogs for every supported language.
func NewBundle() (*i18n.Bundle, error) {
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("toml", toml.Unmarshal)

	for _, code := range Supported {
		path := fmt.Sprintf("translations/messages.%s.toml", code)
		if _, err := bundle.LoadMessageFileFS(translations, path); err != nil {
			return nil, fmt.Errorf("load %s catalog: %w", code, err)
		}
	}
	return bundle, nil
}

// Translate looks up messageID for the given languages, falling back to English and then to the id.
func Translate(ctx context.Context, bundle *i18n.Bundle, messageID string, languages ...string) string {
	return TranslateWithMap(ctx, bundle, messageID, nil, languages...)
}

// TranslateWithMap performs a translation with template variables.
func TranslateWithMap(
	ctx context.Context,
	bundle *i18n.Bundle,
	messageID string,
	variables map[string]any,
	languages ...string,
) string {
	if bundle == nil {
		return messageID
	}

	localizer := i18n.NewLocalizer(bundle, languages...)
	translated, err := localizer.Localize(&i18n.LocalizeConfig{
		MessageID:      messageID,
		DefaultMessage: &i18n.Message{ID: messageID, Other: messageID},
		TemplateData:   variables,
	})
	if err != nil {
		util.Log(ctx).WithError(err).WithField("messageID", messageID).Warn("could not perform translation")
	}
	if translated == "" {
		return messageID
	}
	return translated
}

type contextKey string

func (c contextKey) String() string {
	return "guides/localization/" + string(c)
}

const ctxKeyLanguage = contextKey("languageKey")

// ToContext overrides the active language for calls made with the returned context.
func ToContext(ctx context.Context, lang string) context.Context {
	return context.WithValue(ctx, ctxKeyLanguage, lang)
}

// FromContext returns a language override set with ToContext.
func FromContext(ctx context.Context) (string, bool) {
	lang, ok := ctx.Value(ctxKeyLanguage).(string)
	return lang, ok && lang != ""
}
