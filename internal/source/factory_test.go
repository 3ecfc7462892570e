package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeplaymaker/marketplaymaker-sub000/internal/config"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/devig"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/models"
)

func newTestFactory(providers []config.SourceConfig) *Factory {
	cfg := &config.Config{
		Devig: config.DevigConfig{FreshnessWindowMinutes: 10},
		Edge:  config.EdgeConfig{EstimateTTLMinutes: 5},
		Sources: config.SourcesConfig{
			HTTP:      testHTTPConfig(),
			Providers: providers,
		},
	}
	return NewFactory(cfg, devig.New(devig.DefaultConfig(), testLogger()), testLogger())
}

func TestFactoryNewProviderDispatch(t *testing.T) {
	tests := []struct {
		name string
		key  models.SourceKey
	}{
		{"forecastCrowd", models.SourceForecastCrowd},
		{"crossPlatform", models.SourceCrossPlatform},
		{"languageModel", models.SourceLanguageModel},
		{"sportsOdds", models.SourceSportsOdds},
		{"financialProxy", models.SourceFinancialProxy},
		{"regulatedExchange", models.SourceRegulatedExchange},
	}
	factory := newTestFactory(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := factory.NewProvider(config.SourceConfig{
				Name:    tt.name,
				Enabled: true,
				APIKey:  "key",
			})
			require.NoError(t, err)
			assert.Equal(t, tt.key, p.Key())
		})
	}
}

func TestFactoryUnknownSource(t *testing.T) {
	factory := newTestFactory(nil)
	_, err := factory.NewProvider(config.SourceConfig{Name: "tarotCards", Enabled: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown source")
}

func TestFactorySportsOddsRequiresAPIKey(t *testing.T) {
	factory := newTestFactory(nil)
	_, err := factory.NewProvider(config.SourceConfig{Name: "sportsOdds", Enabled: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key")
}

func TestFactoryNewProvidersSkipsDisabled(t *testing.T) {
	factory := newTestFactory([]config.SourceConfig{
		{Name: "forecastCrowd", Enabled: true},
		{Name: "crossPlatform", Enabled: false},
		{Name: "regulatedExchange", Enabled: true},
	})

	providers, err := factory.NewProviders()
	require.NoError(t, err)
	require.Len(t, providers, 2)
	assert.Equal(t, models.SourceForecastCrowd, providers[0].Key())
	assert.Equal(t, models.SourceRegulatedExchange, providers[1].Key())
}

func TestFactoryNewProvidersNoneEnabled(t *testing.T) {
	factory := newTestFactory([]config.SourceConfig{
		{Name: "forecastCrowd", Enabled: false},
	})
	_, err := factory.NewProviders()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no enabled sources")
}

func TestFactoryLegSourceWiring(t *testing.T) {
	factory := newTestFactory(nil)
	assert.Nil(t, factory.LegSource())
	assert.Nil(t, factory.SportsOdds())

	_, err := factory.NewProvider(config.SourceConfig{Name: "sportsOdds", Enabled: true, APIKey: "key"})
	require.NoError(t, err)

	assert.NotNil(t, factory.LegSource())
	assert.NotNil(t, factory.SportsOdds())
	assert.Empty(t, factory.Cooldowns())

	factory.Close()
}
