package app

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/gourdian25/gourdianauth"
)

// Setting keys. Flags, environment variables and config file entries share
// these names.
const (
	keyConfig           = "config"
	keyDebug            = "debug"
	keyListenAddr       = "listen-addr"
	keySigningSecret    = "signing-secret"
	keyIssuerAPIKey     = "issuer-api-key"
	keyIssuer           = "issuer"
	keyAudience         = "audience"
	keyValidateIssuer   = "validate-issuer"
	keyValidateAudience = "validate-audience"
	keyAccessTokenTTL   = "access-token-ttl"
	keyRefreshTokenTTL  = "refresh-token-ttl"
	keyClockSkew        = "clock-skew"
	keyStoreTimeout     = "store-timeout"
	keyCleanupInterval  = "cleanup-interval"
	keyRedisAddr        = "redis-addr"
	keyRedisPassword    = "redis-password"
	keyRedisDB          = "redis-db"
	keyRedisKeyPrefix   = "redis-key-prefix"
	keyPolicies         = "policies"
	keyPrincipals       = "principals"
)

// settings is the resolved daemon configuration.
type settings struct {
	ListenAddr      string
	Debug           bool
	IssuerAPIKey    string
	Auth            gourdianauth.Config
	CleanupInterval time.Duration
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	RedisKeyPrefix  string
	Principals      map[string][]string
}

// policySetting and principalSetting are lists rather than maps in config
// files because viper lower-cases map keys.
type policySetting struct {
	Name  string   `mapstructure:"name"`
	Roles []string `mapstructure:"roles"`
}

type principalSetting struct {
	Subject string   `mapstructure:"subject"`
	Roles   []string `mapstructure:"roles"`
}

func mustBind(v *viper.Viper, key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("failed to bind %s flag: %v", key, err))
	}
}

// loadSettings reads the config file, if any, and resolves every setting.
// The result has been validated.
func loadSettings(v *viper.Viper) (*settings, error) {
	if path := v.GetString(keyConfig); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	auth := gourdianauth.DefaultConfig(v.GetString(keySigningSecret))
	auth.Issuer = v.GetString(keyIssuer)
	auth.Audience = v.GetString(keyAudience)
	auth.ValidateIssuer = v.GetBool(keyValidateIssuer)
	auth.ValidateAudience = v.GetBool(keyValidateAudience)
	auth.AccessTokenTTL = v.GetDuration(keyAccessTokenTTL)
	auth.RefreshTokenTTL = v.GetDuration(keyRefreshTokenTTL)
	auth.ClockSkew = v.GetDuration(keyClockSkew)
	auth.StoreTimeout = v.GetDuration(keyStoreTimeout)
	if v.IsSet(keyPolicies) {
		var policies []policySetting
		if err := v.UnmarshalKey(keyPolicies, &policies); err != nil {
			return nil, fmt.Errorf("%w: invalid policies: %v", gourdianauth.ErrConfiguration, err)
		}
		auth.Policies = make(map[string][]string, len(policies))
		for _, p := range policies {
			auth.Policies[p.Name] = p.Roles
		}
	}

	var principals []principalSetting
	if err := v.UnmarshalKey(keyPrincipals, &principals); err != nil {
		return nil, fmt.Errorf("%w: invalid principals: %v", gourdianauth.ErrConfiguration, err)
	}

	if err := auth.Validate(); err != nil {
		return nil, err
	}

	s := &settings{
		ListenAddr:      v.GetString(keyListenAddr),
		Debug:           v.GetBool(keyDebug),
		IssuerAPIKey:    v.GetString(keyIssuerAPIKey),
		Auth:            auth,
		CleanupInterval: v.GetDuration(keyCleanupInterval),
		RedisAddr:       v.GetString(keyRedisAddr),
		RedisPassword:   v.GetString(keyRedisPassword),
		RedisDB:         v.GetInt(keyRedisDB),
		RedisKeyPrefix:  v.GetString(keyRedisKeyPrefix),
		Principals:      make(map[string][]string, len(principals)),
	}
	for _, p := range principals {
		if p.Subject == "" {
			return nil, fmt.Errorf("%w: principal subject cannot be empty", gourdianauth.ErrConfiguration)
		}
		s.Principals[p.Subject] = p.Roles
	}
	if s.IssuerAPIKey == "" {
		return nil, fmt.Errorf("%w: issuer API key is required", gourdianauth.ErrConfiguration)
	}
	if s.ListenAddr == "" {
		return nil, fmt.Errorf("%w: listen address is required", gourdianauth.ErrConfiguration)
	}
	if s.CleanupInterval < 0 {
		return nil, fmt.Errorf("%w: cleanup interval cannot be negative", gourdianauth.ErrConfiguration)
	}
	return s, nil
}
