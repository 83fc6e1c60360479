package localization

import (
	"context"
	"sync"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/pitabwire/util"

	"github.com/wosguides/guides/cache"
)

const DefaultStorageKey = "@app_language"

// DirectionController is the platform layout-direction flag.
type DirectionController interface {
	IsRTL() bool
	// SetRTL allows and forces the direction. It takes effect after a restart.
	SetRTL(rtl bool) error
}

// RestartPrompt is the localized content of the blocking restart dialog.
type RestartPrompt struct {
	Title   string
	Message string
	Action  string
}

// RestartPrompter shows a non-cancellable dialog whose single action restarts the app.
type RestartPrompter interface {
	PromptRestart(ctx context.Context, prompt RestartPrompt) error
}

type ManagerOption func(*Manager)

func WithDirectionController(dc DirectionController) ManagerOption {
	return func(m *Manager) {
		m.direction = dc
	}
}

func WithRestartPrompter(rp RestartPrompter) ManagerOption {
	return func(m *Manager) {
		m.prompter = rp
	}
}

// WithDeviceLocales sets the device preferred locales, most preferred first.
func WithDeviceLocales(locales ...string) ManagerOption {
	return func(m *Manager) {
		m.deviceLocales = locales
	}
}

func WithStorageKey(key string) ManagerOption {
	return func(m *Manager) {
		if key != "" {
			m.storageKey = key
		}
	}
}

// WithDefaultLanguage sets the language used when nothing is saved and no device locale matches.
func WithDefaultLanguage(code string) ManagerOption {
	return func(m *Manager) {
		if IsSupported(code) {
			m.fallback = code
		}
	}
}

func WithBundle(bundle *i18n.Bundle) ManagerOption {
	return func(m *Manager) {
		m.bundle = bundle
	}
}

// Manager owns the active language, its persistence and the layout direction.
type Manager struct {
	mu      sync.RWMutex
	current string

	store         cache.Cache[string, string]
	storageKey    string
	direction     DirectionController
	prompter      RestartPrompter
	deviceLocales []string
	fallback      string
	bundle        *i18n.Bundle
}

// NewManager restores the saved language, or picks one from the device locales, or English.
// The platform direction flag is aligned silently.
func NewManager(ctx context.Context, store cache.RawCache, opts ...ManagerOption) (*Manager, error) {
	m := &Manager{
		storageKey: DefaultStorageKey,
		current:    DefaultLanguage,
		fallback:   DefaultLanguage,
	}
	for _, opt := range opts {
		opt(m)
	}

	if store != nil {
		m.store = cache.NewGenericCache[string, string](store, nil)
	}

	if m.bundle == nil {
		bundle, err := NewBundle()
		if err != nil {
			return nil, err
		}
		m.bundle = bundle
	}

	m.current = m.initialLanguage(ctx)

	if m.direction != nil && m.direction.IsRTL() != IsRTL(m.current) {
		if err := m.direction.SetRTL(IsRTL(m.current)); err != nil {
			util.Log(ctx).WithError(err).Warn("could not align layout direction at startup")
		}
	}

	util.Log(ctx).WithField("language", m.current).Debug("language initialised")
	return m, nil
}

func (m *Manager) initialLanguage(ctx context.Context) string {
	if m.store != nil {
		saved, found, err := m.store.Get(ctx, m.storageKey)
		switch {
		case err != nil:
			util.Log(ctx).WithError(err).Warn("could not read saved language")
		case found && IsSupported(saved):
			return saved
		case found:
			util.Log(ctx).WithField("language", saved).Warn("ignoring unsupported saved language")
		}
	}

	if code, ok := MatchLocale(m.deviceLocales...); ok {
		return code
	}
	return m.fallback
}

// Language returns the active language code.
func (m *Manager) Language() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// IsRTL reports whether the active language is right to left.
func (m *Manager) IsRTL() bool {
	return IsRTL(m.Language())
}

func (m *Manager) Bundle() *i18n.Bundle {
	return m.bundle
}

// ChangeLanguage persists code and then activates it. A persistence failure is logged and the
// language is still activated. Layout direction is left to UpdateRTLBasedOnLanguage.
func (m *Manager) ChangeLanguage(ctx context.Context, code string) {
	log := util.Log(ctx).WithField("language", code)

	if !IsSupported(code) {
		log.Warn("ignoring unsupported language")
		return
	}

	if m.store != nil {
		if err := m.store.Set(ctx, m.storageKey, code, 0); err != nil {
			log.WithError(err).Warn("could not persist language")
		}
	}

	m.mu.Lock()
	m.current = code
	m.mu.Unlock()

	log.Debug("language changed")
}

// UpdateRTLBasedOnLanguage flips the platform direction flag when it disagrees with the active
// language and shows the restart prompt. It reports whether a restart is required.
func (m *Manager) UpdateRTLBasedOnLanguage(ctx context.Context) bool {
	log := util.Log(ctx)
	lang := m.Language()
	want := IsRTL(lang)

	if m.direction == nil {
		log.Debug("no layout direction controller, skipping direction update")
		return false
	}
	if m.direction.IsRTL() == want {
		return false
	}

	if err := m.direction.SetRTL(want); err != nil {
		log.WithError(err).Error("could not set layout direction")
		return false
	}

	if m.prompter != nil {
		prompt := RestartPrompt{
			Title:   m.Translate(ctx, MsgRestartRequired),
			Message: m.Translate(ctx, MsgRestartMessage),
			Action:  m.Translate(ctx, MsgRestartNow),
		}
		if err := m.prompter.PromptRestart(ctx, prompt); err != nil {
			log.WithError(err).Error("could not show restart prompt")
		}
	}

	log.WithField("language", lang).WithField("rtl", want).Info("layout direction changed, restart required")
	return true
}

// Translate localizes a UI message in the active language.
func (m *Manager) Translate(ctx context.Context, messageID string) string {
	return Translate(ctx, m.bundle, messageID, m.Language(), DefaultLanguage)
}

// Resolve picks the display string of t in the active language.
func (m *Manager) Resolve(ctx context.Context, t Text) string {
	return Resolve(ctx, t, m.Language())
}
