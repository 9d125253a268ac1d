package config

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

type AccountConfig struct {
	Name   string `json:"-"`
	Type   string
	Config any
}

func (a *AccountConfig) UnmarshalJSON(data []byte) error {
	if result := gjson.GetBytes(data, "Type"); !result.Exists() {
		return fmt.Errorf("failed to find account type information")
	} else {
		a.Type = result.String()
	}

	switch a.Type {
	case "melcloud":
		a.Config = &MELCloudAccountConfig{}
	default:
		return fmt.Errorf("unknown account configuration type: %s", a.Type)
	}

	if result := gjson.GetBytes(data, "Config"); result.Exists() {
		return json.Unmarshal([]byte(result.Raw), a.Config)
	} else {
		return fmt.Errorf("unable to find Config stanza: %s", a.Type)
	}
}

type MELCloudAccountConfig struct {
	// Email/Password or a previously issued Token, token takes precedence.
	Email    string
	Password string
	Token    string

	// BaseURL overrides the production endpoint, used against test doubles.
	BaseURL string

	PollIntervalSeconds       int
	ConfUpdateIntervalSeconds int
	SetDebounceMilliseconds   int
}
