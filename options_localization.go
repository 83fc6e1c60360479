package guides

import (
	"context"

	"github.com/wosguides/guides/config"
	"github.com/wosguides/guides/localization"
)

// WithDirectionController supplies the platform layout-direction flag.
func WithDirectionController(dc localization.DirectionController) Option {
	return func(_ context.Context, s *Service) {
		s.direction = dc
	}
}

// WithRestartPrompter supplies the platform restart dialog.
func WithRestartPrompter(rp localization.RestartPrompter) Option {
	return func(_ context.Context, s *Service) {
		s.prompter = rp
	}
}

// WithDeviceLocales sets the device preferred locales, most preferred first.
// They take precedence over DEVICE_LOCALES.
func WithDeviceLocales(locales ...string) Option {
	return func(_ context.Context, s *Service) {
		s.deviceLocales = locales
	}
}

func (s *Service) initLocalization(ctx context.Context) error {
	locCfg := configAs[config.ConfigurationLocalization](s)
	storageCfg := configAs[config.ConfigurationStorage](s)

	locales := s.deviceLocales
	if len(locales) == 0 {
		locales = locCfg.GetDeviceLocales()
	}

	opts := []localization.ManagerOption{
		localization.WithStorageKey(storageCfg.GetLanguageStorageKey()),
		localization.WithDeviceLocales(locales...),
		localization.WithDefaultLanguage(locCfg.GetDefaultLanguage()),
	}
	if s.direction != nil {
		opts = append(opts, localization.WithDirectionController(s.direction))
	}
	if s.prompter != nil {
		opts = append(opts, localization.WithRestartPrompter(s.prompter))
	}

	languages, err := localization.NewManager(ctx, s.storage, opts...)
	if err != nil {
		return err
	}
	s.languages = languages
	return nil
}
