package config

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAccount(t *testing.T) {
	t.Run("errors if json is invalid", func(t *testing.T) {
		data := []byte(`"`)
		acc := AccountConfig{}

		err := json.Unmarshal(data, &acc)
		assert.Error(t, err)
	})

	t.Run("errors if type is unknown", func(t *testing.T) {
		data := []byte(`{"Type":"unknown"}`)
		acc := AccountConfig{}

		err := json.Unmarshal(data, &acc)
		assert.Error(t, err)
	})

	t.Run("errors if config stanza is missing", func(t *testing.T) {
		data := []byte(`{"Type":"melcloud"}`)
		acc := AccountConfig{}

		err := json.Unmarshal(data, &acc)
		assert.Error(t, err)
	})

	t.Run("melcloud account", func(t *testing.T) {
		t.Run("parses credentials and tuning", func(t *testing.T) {
			data := []byte(`{"Type":"melcloud","Config":{"Email":"user@example.com","Password":"hunter2","PollIntervalSeconds":120,"SetDebounceMilliseconds":500}}`)
			acc := AccountConfig{}

			err := json.Unmarshal(data, &acc)
			assert.NoError(t, err)

			mcAcc, ok := acc.Config.(*MELCloudAccountConfig)
			assert.True(t, ok)

			assert.Equal(t, "user@example.com", mcAcc.Email)
			assert.Equal(t, "hunter2", mcAcc.Password)
			assert.Equal(t, 120, mcAcc.PollIntervalSeconds)
			assert.Equal(t, 500, mcAcc.SetDebounceMilliseconds)
		})

		t.Run("parses a pre-issued token", func(t *testing.T) {
			data := []byte(`{"Type":"melcloud","Config":{"Token":"ctx-key-123"}}`)
			acc := AccountConfig{}

			err := json.Unmarshal(data, &acc)
			assert.NoError(t, err)

			mcAcc, ok := acc.Config.(*MELCloudAccountConfig)
			assert.True(t, ok)
			assert.Equal(t, "ctx-key-123", mcAcc.Token)
		})
	})
}
