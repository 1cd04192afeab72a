package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewClientForProvider(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		wantType any
		wantNil  bool
		wantErr  bool
	}{
		{name: "disabled", cfg: Config{}, wantNil: true},
		{name: "openai default provider", cfg: Config{Endpoint: "http://localhost:8000/v1", Model: "m"}, wantType: &Client{}},
		{name: "openai explicit", cfg: Config{Provider: "OpenAI", Endpoint: "http://localhost/v1", Model: "m"}, wantType: &Client{}},
		{name: "anthropic", cfg: Config{Provider: "anthropic", Model: "claude", APIKey: "k"}, wantType: &AnthropicClient{}},
		{name: "anthropic without key", cfg: Config{Provider: "anthropic", Model: "claude"}, wantErr: true},
		{name: "unknown provider", cfg: Config{Provider: "bard", Model: "m"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			client, err := NewClientForProvider(&cfg, zap.NewNop())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, client)
				return
			}
			assert.IsType(t, tt.wantType, client)
		})
	}
}
