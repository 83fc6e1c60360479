package guides_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/wosguides/guides"
	"github.com/wosguides/guides/api"
	"github.com/wosguides/guides/cache"
	"github.com/wosguides/guides/config"
	"github.com/wosguides/guides/localization"
	"github.com/wosguides/guides/network"
	"github.com/wosguides/guides/query"
)

type fakeBackend struct {
	mu        sync.Mutex
	hits      map[string]int
	languages []string
}

func (b *fakeBackend) record(r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hits[r.Method+" "+r.URL.Path]++
	b.languages = append(b.languages, r.Header.Get(api.HeaderLanguage))
}

func (b *fakeBackend) count(route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits[route]
}

func (b *fakeBackend) lastLanguage() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.languages) == 0 {
		return ""
	}
	return b.languages[len(b.languages)-1]
}

func (b *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	reply := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"data": v})
	}

	mux.HandleFunc("GET /categories", func(w http.ResponseWriter, r *http.Request) {
		b.record(r)
		reply(w, []map[string]any{
			{"_id": "c1", "name": map[string]string{"en": "Heroes", "ar": "الأبطال"}, "isActive": true},
		})
	})
	mux.HandleFunc("GET /categories/{id}", func(w http.ResponseWriter, r *http.Request) {
		b.record(r)
		reply(w, map[string]any{"_id": r.PathValue("id"), "name": "Heroes", "isActive": true})
	})
	mux.HandleFunc("GET /guides", func(w http.ResponseWriter, r *http.Request) {
		b.record(r)
		reply(w, []map[string]any{
			{"_id": "g1", "title": "Beginner tips", "htmlContent": "<p>hi</p>", "category": "c1", "isActive": true},
		})
	})
	mux.HandleFunc("POST /guides", func(w http.ResponseWriter, r *http.Request) {
		b.record(r)
		w.WriteHeader(http.StatusCreated)
		reply(w, map[string]any{"_id": "g2", "title": "New", "htmlContent": "", "category": "c1", "isActive": true})
	})
	return mux
}

type fakeDirection struct {
	mu  sync.Mutex
	rtl bool
}

func (d *fakeDirection) IsRTL() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rtl
}

func (d *fakeDirection) SetRTL(rtl bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rtl = rtl
	return nil
}

type fakePrompter struct {
	prompts []localization.RestartPrompt
}

func (p *fakePrompter) PromptRestart(_ context.Context, prompt localization.RestartPrompt) error {
	p.prompts = append(p.prompts, prompt)
	return nil
}

type ServiceSuite struct {
	suite.Suite
	backend *fakeBackend
	server  *httptest.Server
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.backend = &fakeBackend{hits: map[string]int{}}
	s.server = httptest.NewServer(s.backend.handler())
}

func (s *ServiceSuite) TearDownTest() {
	s.server.Close()
}

func (s *ServiceSuite) config() *config.ConfigurationDefault {
	cfg, err := config.FromEnv[config.ConfigurationDefault]()
	s.Require().NoError(err)
	cfg.APIBaseURL = s.server.URL
	cfg.StorageURI = "mem://"
	cfg.ServiceVersion = "1.0.0"
	cfg.QueryRetryCount = 0
	cfg.MutationRetryCount = 0
	cfg.CacheGCInterval = 0
	cfg.NetworkProbeURL = ""
	cfg.DeviceLocales = nil
	return &cfg
}

func (s *ServiceSuite) newService(opts ...guides.Option) (context.Context, *guides.Service) {
	opts = append([]guides.Option{guides.WithConfig(s.config())}, opts...)
	ctx, svc, err := guides.NewService(s.T().Context(), "guides-test", opts...)
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = svc.Stop(context.Background()) })
	return ctx, svc
}

func (s *ServiceSuite) TestServiceInContext() {
	ctx, svc := s.newService()

	s.Same(svc, guides.FromContext(ctx))
	s.Nil(guides.FromContext(context.Background()))
	s.Equal("guides-test", svc.Name())
	s.Equal("1.0.0", svc.Version())
	s.NotNil(config.FromContext[*config.ConfigurationDefault](ctx))
	s.NotNil(svc.API())
	s.NotNil(svc.Queries())
	s.NotNil(svc.NetworkNotifier())
}

func (s *ServiceSuite) TestReadsAreServedFromCache() {
	ctx, svc := s.newService()

	first, err := svc.Categories(ctx)
	s.Require().NoError(err)
	s.Require().Len(first, 1)
	s.Equal("Heroes", svc.Resolve(ctx, first[0].Name))

	second, err := svc.Categories(ctx)
	s.Require().NoError(err)
	s.Equal(first, second)
	s.Equal(1, s.backend.count("GET /categories"))
	s.Equal("en", s.backend.lastLanguage())
	s.Equal(query.StateFresh, svc.Queries().State(guides.KeyCategories()))
}

func (s *ServiceSuite) TestSingleItemReads() {
	ctx, svc := s.newService()

	category, err := svc.Category(ctx, "c9")
	s.Require().NoError(err)
	s.Equal("c9", category.ID)

	_, err = svc.Category(ctx, "")
	s.ErrorIs(err, guides.ErrEmptyID)
	_, err = svc.Guide(ctx, "")
	s.ErrorIs(err, guides.ErrEmptyID)

	results, err := svc.SearchGuides(ctx, "   ")
	s.Require().NoError(err)
	s.Empty(results)
	s.Len(svc.Queries().Keys(), 1)
}

func (s *ServiceSuite) TestChangeLanguage() {
	direction := &fakeDirection{}
	prompter := &fakePrompter{}
	ctx, svc := s.newService(
		guides.WithDirectionController(direction),
		guides.WithRestartPrompter(prompter),
	)

	s.Equal("en", svc.Language())
	s.True(svc.ChangeLanguage(ctx, "ar"))
	s.True(direction.IsRTL())
	s.Require().Len(prompter.prompts, 1)

	_, err := svc.Guides(ctx)
	s.Require().NoError(err)
	s.Equal("ar", s.backend.lastLanguage())

	s.False(svc.ChangeLanguage(ctx, "ar"))
	s.False(svc.ChangeLanguage(ctx, "xx"))
	s.Equal("ar", svc.Language())
}

func (s *ServiceSuite) TestDeviceLocaleSelectsLanguage() {
	_, svc := s.newService(guides.WithDeviceLocales("fr-CA", "en-US"))
	s.Equal("fr", svc.Language())
}

func (s *ServiceSuite) TestMutationsNeedConnectivity() {
	ctx, svc := s.newService()

	_, err := svc.Guides(ctx)
	s.Require().NoError(err)

	notifier := svc.NetworkNotifier()
	notifier.Publish(ctx, network.Status{Connected: false})

	_, err = svc.CreateGuide(ctx, api.CreateGuideRequest{Title: "New", Category: "c1"})
	s.ErrorIs(err, query.ErrOffline)
	s.Equal(0, s.backend.count("POST /guides"))

	notifier.Publish(ctx, network.Status{Connected: true, InternetReachable: true})
	s.Eventually(func() bool {
		return s.backend.count("GET /guides") == 2
	}, 2*time.Second, 10*time.Millisecond)

	created, err := svc.CreateGuide(ctx, api.CreateGuideRequest{Title: "New", Category: "c1"})
	s.Require().NoError(err)
	s.Equal("g2", created.ID)
	s.Equal(1, s.backend.count("POST /guides"))
	s.Eventually(func() bool {
		return s.backend.count("GET /guides") == 3
	}, 2*time.Second, 10*time.Millisecond)
}

func (s *ServiceSuite) TestCreatedGuideServesDetailRead() {
	ctx, svc := s.newService()

	created, err := svc.CreateGuide(ctx, api.CreateGuideRequest{Title: "New", Category: "c1"})
	s.Require().NoError(err)

	got, err := svc.Guide(ctx, created.ID)
	s.Require().NoError(err)
	s.Equal("g2", got.ID)
	s.Equal(created.HTMLContent, got.HTMLContent)
	s.Equal(0, s.backend.count("GET /guides/g2"))
	s.Equal(query.StateFresh, svc.Queries().State(guides.KeyGuide("g2")))
}

func (s *ServiceSuite) TestOfflineCacheSurvivesRestart() {
	storage := cache.NewInMemoryCache()
	defer func() { _ = storage.Close() }()

	ctx, first := s.newService(guides.WithStorage(storage))
	_, err := first.Categories(ctx)
	s.Require().NoError(err)
	s.Require().NoError(first.Stop(ctx))

	ctx, second := s.newService(guides.WithStorage(storage))
	categories, err := second.Categories(ctx)
	s.Require().NoError(err)
	s.Len(categories, 1)
	s.Equal(1, s.backend.count("GET /categories"))

	s.Require().NoError(second.ClearCache(ctx))
	_, err = second.Categories(ctx)
	s.Require().NoError(err)
	s.Equal(2, s.backend.count("GET /categories"))
}

func (s *ServiceSuite) TestRestoredEntriesRefreshOnInvalidate() {
	storage := cache.NewInMemoryCache()
	defer func() { _ = storage.Close() }()

	ctx, first := s.newService(guides.WithStorage(storage))
	_, err := first.Guides(ctx)
	s.Require().NoError(err)
	s.Require().NoError(first.Stop(ctx))

	ctx, second := s.newService(guides.WithStorage(storage))
	s.Equal(1, second.Refresh(ctx))
	s.Eventually(func() bool {
		return s.backend.count("GET /guides") == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func (s *ServiceSuite) TestOnboardingAndLanguagePersist() {
	storage := cache.NewInMemoryCache()
	defer func() { _ = storage.Close() }()

	ctx, first := s.newService(guides.WithStorage(storage))
	s.False(first.IsOnboardingCompleted(ctx))
	s.Require().NoError(first.CompleteOnboarding(ctx))
	first.ChangeLanguage(ctx, "de")
	s.Require().NoError(first.Stop(ctx))

	ctx, second := s.newService(guides.WithStorage(storage))
	s.True(second.IsOnboardingCompleted(ctx))
	s.Equal("de", second.Language())
}

func (s *ServiceSuite) TestStopIsIdempotent() {
	ctx, svc := s.newService()
	cleaned := 0
	svc.AddCleanupMethod(func(context.Context) { cleaned++ })

	s.NoError(svc.Stop(ctx))
	s.NoError(svc.Stop(ctx))
	s.Equal(1, cleaned)
}

func (s *ServiceSuite) TestNamedStorageFromCacheManager() {
	raw := cache.NewInMemoryCache()
	_, svc := s.newService(guides.WithCache(guides.StorageCacheName, raw))

	s.Same(raw, svc.Storage())
	got, ok := svc.GetRawCache(guides.StorageCacheName)
	s.True(ok)
	s.Same(raw, got)

	_, ok = svc.GetRawCache("missing")
	s.False(ok)
}

func (s *ServiceSuite) TestRateLimitedAPI() {
	cfg := s.config()
	cfg.APIRateLimit = 1000
	ctx, svc, err := guides.NewService(s.T().Context(), "guides-test", guides.WithConfig(cfg))
	s.Require().NoError(err)
	defer func() { _ = svc.Stop(context.Background()) }()

	_, err = svc.Guides(ctx)
	s.Require().NoError(err)
	s.Equal(1, s.backend.count("GET /guides"))
}
