package executor

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shaiso/Conveyor/internal/engine"
)

const (
	// NodeTypeHTTP — тип узла HTTP запроса.
	NodeTypeHTTP = "http"

	defaultHTTPTimeout = 30 * time.Second
	maxResponseBody    = 10 * 1024 * 1024 // 10 MB
)

// Ключи конфигурации HTTP узла.
const (
	configMethod          = "method"
	configURL             = "url"
	configHeaders         = "headers"
	configBody            = "body"
	configFollowRedirects = "follow_redirects"
	configValidateSSL     = "validate_ssl"
	configTimeoutSec      = "timeout_sec"
)

// HTTPExecutor — узел HTTP запроса.
//
// Выполняет запрос к внешнему API и возвращает результат. Значения
// конфигурации могут содержать шаблоны над входами узла:
//
//	{
//	    "method": "POST",
//	    "url": "https://api.example.com/items/{{ .Inputs.item_id }}",
//	    "headers": {"Content-Type": "application/json"},
//	    "body": {"text": "{{ .Inputs.text }}"},
//	    "follow_redirects": true,
//	    "validate_ssl": true,
//	    "timeout_sec": 30
//	}
//
// Если у узла задан connection_id, в запрос подставляется заголовок
// Authorization с access token из TokenSource.
//
// Outputs:
//
//	{
//	    "status_code": 200,
//	    "headers": {"Content-Type": "application/json", ...},
//	    "body": {...}  // parsed JSON или строка
//	}
type HTTPExecutor struct {
	tokens TokenSource
}

// NewHTTPExecutor создаёт HTTPExecutor. tokens может быть nil.
func NewHTTPExecutor(tokens TokenSource) *HTTPExecutor {
	return &HTTPExecutor{tokens: tokens}
}

// Type возвращает тип узла.
func (e *HTTPExecutor) Type() string {
	return NodeTypeHTTP
}

// Execute выполняет HTTP запрос.
func (e *HTTPExecutor) Execute(ctx context.Context, node *engine.ExecutableNode, inputs map[string]any) (map[string]any, error) {
	cfg, err := e.parseConfig(node, inputs)
	if err != nil {
		return nil, err
	}

	httpReq, err := e.buildRequest(ctx, node, cfg)
	if err != nil {
		return nil, err
	}

	client := e.buildClient(cfg)
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	outputs, body, err := e.parseResponse(resp)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, engine.NewHTTPExecError(resp.StatusCode,
			fmt.Sprintf("HTTP %d: %s", resp.StatusCode, snippet(body)))
	}

	return outputs, nil
}

// httpConfig — распарсенная конфигурация HTTP узла.
type httpConfig struct {
	Method          string
	URL             string
	Headers         map[string]string
	Body            any
	FollowRedirects bool
	ValidateSSL     bool
	TimeoutSec      int
}

// parseConfig рендерит и парсит конфигурацию HTTP узла.
func (e *HTTPExecutor) parseConfig(node *engine.ExecutableNode, inputs map[string]any) (*httpConfig, error) {
	rendered, err := renderConfig(node.Config, &templateData{Inputs: inputs, Node: node.ID})
	if err != nil {
		return nil, engine.NewExecError(engine.ErrorTypeValidation, err.Error())
	}

	cfg := &httpConfig{
		Method:          configString(rendered, configMethod),
		URL:             configString(rendered, configURL),
		Headers:         configStringMap(rendered, configHeaders),
		Body:            rendered[configBody],
		FollowRedirects: configBool(rendered, configFollowRedirects, true),
		ValidateSSL:     configBool(rendered, configValidateSSL, true),
		TimeoutSec:      configInt(rendered, configTimeoutSec),
	}

	if cfg.URL == "" {
		return nil, engine.NewExecError(engine.ErrorTypeValidation, "http: url is required")
	}
	if cfg.Method == "" {
		cfg.Method = http.MethodGet
	}
	cfg.Method = strings.ToUpper(cfg.Method)
	if cfg.Headers == nil {
		cfg.Headers = make(map[string]string)
	}

	return cfg, nil
}

// buildClient создаёт HTTP клиент с нужными настройками.
func (e *HTTPExecutor) buildClient(cfg *httpConfig) *http.Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSec > 0 {
		timeout = time.Duration(cfg.TimeoutSec) * time.Second
	}

	var checkRedirect func(*http.Request, []*http.Request) error
	if !cfg.FollowRedirects {
		checkRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	return &http.Client{
		Timeout:       timeout,
		CheckRedirect: checkRedirect,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: !cfg.ValidateSSL},
		},
	}
}

// buildRequest создаёт HTTP запрос, подставляя токен учётки при наличии.
func (e *HTTPExecutor) buildRequest(ctx context.Context, node *engine.ExecutableNode, cfg *httpConfig) (*http.Request, error) {
	var bodyReader io.Reader
	if cfg.Body != nil {
		bodyBytes, err := serializeBody(cfg.Body)
		if err != nil {
			return nil, engine.NewExecError(engine.ErrorTypeValidation,
				fmt.Sprintf("http: serialize body: %v", err))
		}
		bodyReader = bytes.NewReader(bodyBytes)

		if _, hasContentType := cfg.Headers["Content-Type"]; !hasContentType {
			cfg.Headers["Content-Type"] = "application/json"
		}
	}

	req, err := http.NewRequestWithContext(ctx, cfg.Method, cfg.URL, bodyReader)
	if err != nil {
		return nil, engine.NewExecError(engine.ErrorTypeValidation,
			fmt.Sprintf("http: build request: %v", err))
	}

	for key, value := range cfg.Headers {
		req.Header.Set(key, value)
	}

	if node.ConnectionID != "" && req.Header.Get("Authorization") == "" {
		if e.tokens == nil {
			return nil, engine.NewExecError(engine.ErrorTypeAuthentication,
				"http: node references a connection, but no token source is configured")
		}
		token, err := e.tokens.AccessToken(ctx, node.ConnectionID)
		if err != nil {
			return nil, engine.NewExecError(engine.ErrorTypeAuthentication,
				fmt.Sprintf("http: resolve token for connection %s: %v", node.ConnectionID, err))
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return req, nil
}

// serializeBody сериализует body в bytes.
func serializeBody(body any) ([]byte, error) {
	switch v := body.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return json.Marshal(v)
	}
}

// parseResponse читает и парсит HTTP ответ.
func (e *HTTPExecutor) parseResponse(resp *http.Response) (map[string]any, string, error) {
	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, "", engine.NewExecError(engine.ErrorTypeNetwork,
			fmt.Sprintf("http: read response body: %v", err))
	}

	var body any = string(bodyBytes)
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		var parsed any
		if err := json.Unmarshal(bodyBytes, &parsed); err == nil {
			body = parsed
		}
	}

	headers := make(map[string]string, len(resp.Header))
	for key := range resp.Header {
		headers[key] = resp.Header.Get(key)
	}

	outputs := map[string]any{
		"status_code": resp.StatusCode,
		"headers":     headers,
		"body":        body,
	}
	return outputs, string(bodyBytes), nil
}

// classifyTransportError переводит ошибку транспорта в типизированную.
func classifyTransportError(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return context.Canceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return engine.NewExecError(engine.ErrorTypeTimeout,
			fmt.Sprintf("http: request timed out: %v", err))
	}
	return engine.NewExecError(engine.ErrorTypeNetwork,
		fmt.Sprintf("http: request failed: %v", err))
}

// snippet обрезает тело ответа для сообщения об ошибке.
func snippet(body string) string {
	const maxLen = 200
	body = strings.TrimSpace(body)
	if len(body) > maxLen {
		return body[:maxLen] + "..."
	}
	return body
}
