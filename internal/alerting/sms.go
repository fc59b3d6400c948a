package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"stock-alert-engine/internal/config"
)

// SMSNotifier sends alert texts through a Twilio-compatible HTTP API.
type SMSNotifier struct {
	accountSID string
	authToken  string
	from       string
	baseURL    string
	client     *http.Client
	logger     zerolog.Logger
}

// NewSMSNotifier 构造短信告警器。
func NewSMSNotifier(cfg config.SMSConfig, timeout time.Duration, logger zerolog.Logger) *SMSNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	baseURL := strings.TrimRight(cfg.APIBase, "/")
	if baseURL == "" {
		baseURL = "https://api.twilio.com"
	}

	return &SMSNotifier{
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		from:       cfg.From,
		baseURL:    baseURL,
		client:     &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "alert_sms").Logger(),
	}
}

// SendSMS delivers one text message to a single phone number.
func (n *SMSNotifier) SendSMS(ctx context.Context, to, body string) error {
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", n.from)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", n.baseURL, n.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(n.accountSID, n.authToken)

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send sms request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Message string `json:"message"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Message != "" {
			return fmt.Errorf("sms api error (%d): %s", resp.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("sms 响应码异常: %d", resp.StatusCode)
	}

	n.logger.Debug().Str("to", to).Msg("sms delivered")
	return nil
}

var _ SMSSender = (*SMSNotifier)(nil)
