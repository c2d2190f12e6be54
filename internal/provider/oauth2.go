package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const oauthHTTPTimeout = 15 * time.Second

// OAuth2Config — конфигурация стандартного OAuth2-провайдера.
type OAuth2Config struct {
	// Name — имя провайдера в реестре.
	Name string

	// AuthURL — эндпоинт авторизации.
	AuthURL string

	// TokenURL — эндпоинт обмена и обновления токенов.
	TokenURL string

	// AccountInfoURL — эндпоинт сведений об аккаунте.
	AccountInfoURL string

	// ClientID, ClientSecret — учётные данные приложения.
	ClientID     string
	ClientSecret string

	// Scopes — запрашиваемые права.
	Scopes []string
}

// OAuth2Provider — провайдер поверх стандартного authorization code flow.
//
// Покрывает провайдеров без причуд протокола; для остальных пишется
// отдельная реализация Provider.
type OAuth2Provider struct {
	cfg    OAuth2Config
	client *http.Client
}

// NewOAuth2Provider создаёт провайдера из конфигурации.
func NewOAuth2Provider(cfg OAuth2Config) *OAuth2Provider {
	return &OAuth2Provider{
		cfg:    cfg,
		client: &http.Client{Timeout: oauthHTTPTimeout},
	}
}

// Name возвращает имя провайдера.
func (p *OAuth2Provider) Name() string {
	return p.cfg.Name
}

// BuildAuthURL строит URL для начала авторизации.
func (p *OAuth2Provider) BuildAuthURL(state, redirectURI string) string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", p.cfg.ClientID)
	q.Set("redirect_uri", redirectURI)
	q.Set("state", state)
	if len(p.cfg.Scopes) > 0 {
		q.Set("scope", strings.Join(p.cfg.Scopes, " "))
	}
	return p.cfg.AuthURL + "?" + q.Encode()
}

// ExchangeToken обменивает authorization code на токены.
func (p *OAuth2Provider) ExchangeToken(ctx context.Context, code, redirectURI string) (*TokenPair, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", redirectURI)
	form.Set("client_id", p.cfg.ClientID)
	form.Set("client_secret", p.cfg.ClientSecret)

	return p.tokenRequest(ctx, form)
}

// RefreshToken обновляет access token по refresh token.
func (p *OAuth2Provider) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", p.cfg.ClientID)
	form.Set("client_secret", p.cfg.ClientSecret)

	return p.tokenRequest(ctx, form)
}

// tokenResponse — ответ token-эндпоинта.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	Error        string `json:"error"`
	ErrorDesc    string `json:"error_description"`
}

// tokenRequest выполняет запрос к token-эндпоинту.
func (p *OAuth2Provider) tokenRequest(ctx context.Context, form url.Values) (*TokenPair, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.TokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read token response: %w", err)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("parse token response: %w", err)
	}
	if resp.StatusCode >= 400 || tr.Error != "" {
		return nil, fmt.Errorf("token endpoint %s: HTTP %d: %s %s",
			p.cfg.Name, resp.StatusCode, tr.Error, tr.ErrorDesc)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("token endpoint %s: empty access_token", p.cfg.Name)
	}

	pair := &TokenPair{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
	}
	if tr.ExpiresIn > 0 {
		expires := time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
		pair.ExpiresAt = &expires
	}
	return pair, nil
}

// accountResponse — ответ account-эндпоинта; провайдеры называют поля
// по-разному, берём первое непустое.
type accountResponse struct {
	ID    string `json:"id"`
	Sub   string `json:"sub"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// FetchAccountInfo запрашивает сведения об аккаунте.
func (p *OAuth2Provider) FetchAccountInfo(ctx context.Context, accessToken string) (*AccountInfo, error) {
	if p.cfg.AccountInfoURL == "" {
		return &AccountInfo{}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.AccountInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build account request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("account request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("account endpoint %s: HTTP %d", p.cfg.Name, resp.StatusCode)
	}

	var ar accountResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return nil, fmt.Errorf("parse account response: %w", err)
	}

	externalID := ar.ID
	if externalID == "" {
		externalID = ar.Sub
	}
	return &AccountInfo{
		ExternalID: externalID,
		Name:       ar.Name,
		Email:      ar.Email,
	}, nil
}
