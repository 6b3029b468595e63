package channels

import (
	"errors"
	"testing"

	"synapse/pkg/api"
	"synapse/pkg/config"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChannel struct{ id string }

func (c stubChannel) ID() string                     { return c.id }
func (c stubChannel) Start(api.ChannelContext) error { return nil }
func (c stubChannel) Stop() error                    { return nil }

type stubFactory struct {
	err      error
	disabled bool
}

func (f stubFactory) Create(raw jsoniter.RawMessage, _ *config.SystemConfig) (api.Channel, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.disabled {
		return nil, nil
	}
	var cfg struct {
		ID string `json:"id"`
	}
	if err := jsoniter.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	return stubChannel{id: cfg.ID}, nil
}

func TestLoadFromConfig(t *testing.T) {
	RegisterChannel("stub-ok", stubFactory{})
	RegisterChannel("stub-broken", stubFactory{err: errors.New("missing token")})
	RegisterChannel("stub-off", stubFactory{disabled: true})

	got := LoadFromConfig(map[string]jsoniter.RawMessage{
		"stub-ok":        jsoniter.RawMessage(`{"id":"a"}`),
		"stub-broken":    jsoniter.RawMessage(`{}`),
		"stub-off":       jsoniter.RawMessage(`{}`),
		"carrier-pigeon": jsoniter.RawMessage(`{}`),
	}, config.DefaultSystemConfig())

	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID())
	assert.Contains(t, Names(), "stub-ok")
}
