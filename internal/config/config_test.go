// internal/config/config_test.go
package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, "webpilot", cfg.Logger().ServiceName)
	assert.True(t, cfg.Browser().Headless)
	assert.Equal(t, 60*time.Second, cfg.Browser().NavigationTimeout)
	assert.Equal(t, 25, cfg.Agent().MaxSteps)
	assert.Equal(t, 5, cfg.Agent().DefaultTopK)
	assert.Equal(t, 5*time.Minute, cfg.Agent().UserInputTimeout)
	assert.Equal(t, "gemini", cfg.LLM().Provider)
	assert.Equal(t, 30, cfg.LLM().RequestsPerMin)
	assert.False(t, cfg.Captcha().Enabled)
	assert.Equal(t, ":8080", cfg.Server().Addr)
	assert.Equal(t, 4, cfg.Server().MaxConcurrent)
	assert.Equal(t, "memory", cfg.Jobs().Store)
}

func TestNewConfigFromViper_Overrides(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("agent.max_steps", 40)
	v.Set("browser.headless", false)
	v.Set("llm.model", "gemini-2.5-pro")
	v.Set("server.addr", ":9090")

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)

	assert.Equal(t, 40, cfg.Agent().MaxSteps)
	assert.False(t, cfg.Browser().Headless)
	assert.Equal(t, "gemini-2.5-pro", cfg.LLM().Model)
	assert.Equal(t, ":9090", cfg.Server().Addr)
}

func TestNewConfigFromViper_EnvAPIKeys(t *testing.T) {
	t.Setenv("WEBPILOT_LLM_API_KEY", "llm-secret")
	t.Setenv("WEBPILOT_CAPTCHA_API_KEY", "captcha-secret")

	v := viper.New()
	SetDefaults(v)
	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)

	assert.Equal(t, "llm-secret", cfg.LLM().APIKey)
	assert.Equal(t, "captcha-secret", cfg.Captcha().APIKey)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(v *viper.Viper)
		wantErr string
	}{
		{
			name:    "non-positive max steps",
			mutate:  func(v *viper.Viper) { v.Set("agent.max_steps", 0) },
			wantErr: "agent.max_steps",
		},
		{
			name:    "non-positive top k",
			mutate:  func(v *viper.Viper) { v.Set("agent.default_top_k", -1) },
			wantErr: "agent.default_top_k",
		},
		{
			name:    "non-positive input timeout",
			mutate:  func(v *viper.Viper) { v.Set("agent.user_input_timeout", "0s") },
			wantErr: "agent.user_input_timeout",
		},
		{
			name:    "unknown job store",
			mutate:  func(v *viper.Viper) { v.Set("jobs.store", "redis") },
			wantErr: "jobs.store",
		},
		{
			name:    "postgres store without url",
			mutate:  func(v *viper.Viper) { v.Set("jobs.store", "postgres") },
			wantErr: "jobs.postgres_url",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := viper.New()
			SetDefaults(v)
			tc.mutate(v)

			_, err := NewConfigFromViper(v)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestSetters(t *testing.T) {
	cfg := NewDefaultConfig()

	cfg.SetBrowserHeadless(false)
	cfg.SetAgentMaxSteps(50)
	cfg.SetServerAddr(":7777")

	assert.False(t, cfg.Browser().Headless)
	assert.Equal(t, 50, cfg.Agent().MaxSteps)
	assert.Equal(t, ":7777", cfg.Server().Addr)
}
