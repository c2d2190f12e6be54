package provider

import (
	"os"
	"strings"
)

// endpointConfig — эндпоинты известного провайдера (без учётных данных).
type endpointConfig struct {
	AuthURL        string
	TokenURL       string
	AccountInfoURL string
	Scopes         []string
}

// knownProviders — эндпоинты провайдеров, поддерживаемых из коробки.
// Учётные данные приложения приходят из окружения, а не из кода.
var knownProviders = map[string]endpointConfig{
	"google": {
		AuthURL:        "https://accounts.google.com/o/oauth2/v2/auth",
		TokenURL:       "https://oauth2.googleapis.com/token",
		AccountInfoURL: "https://openidconnect.googleapis.com/v1/userinfo",
		Scopes:         []string{"openid", "email", "profile"},
	},
	"github": {
		AuthURL:        "https://github.com/login/oauth/authorize",
		TokenURL:       "https://github.com/login/oauth/access_token",
		AccountInfoURL: "https://api.github.com/user",
		Scopes:         []string{"repo", "read:user"},
	},
	"slack": {
		AuthURL:        "https://slack.com/oauth/v2/authorize",
		TokenURL:       "https://slack.com/api/oauth.v2.access",
		AccountInfoURL: "https://slack.com/api/users.identity",
		Scopes:         []string{"chat:write"},
	},
}

// NewRegistryFromEnv создаёт реестр провайдеров, у которых заданы
// учётные данные в окружении: {PROVIDER}_CLIENT_ID и
// {PROVIDER}_CLIENT_SECRET (имя провайдера в верхнем регистре).
//
// Провайдеры без учётных данных не регистрируются: попытка
// использовать их вернёт ErrProviderNotFound.
func NewRegistryFromEnv() *Registry {
	registry := NewRegistry()

	for name, endpoints := range knownProviders {
		prefix := strings.ToUpper(name)
		clientID := os.Getenv(prefix + "_CLIENT_ID")
		clientSecret := os.Getenv(prefix + "_CLIENT_SECRET")
		if clientID == "" || clientSecret == "" {
			continue
		}

		registry.Register(NewOAuth2Provider(OAuth2Config{
			Name:           name,
			AuthURL:        endpoints.AuthURL,
			TokenURL:       endpoints.TokenURL,
			AccountInfoURL: endpoints.AccountInfoURL,
			ClientID:       clientID,
			ClientSecret:   clientSecret,
			Scopes:         endpoints.Scopes,
		}))
	}

	return registry
}
