package delivery

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"growthdesk_backend/internal/leads/domain"
	"growthdesk_backend/internal/nurture/repository"
	"growthdesk_backend/platform/config"
	"growthdesk_backend/platform/logger"
	"growthdesk_backend/platform/phone"
)

// SMSSender delivers nurture steps through an HTTP SMS gateway. A nil
// sender (gateway not configured) is safe: Send reports an error so the
// message is retried once the gateway comes up.
type SMSSender struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     *logger.Logger
}

type gatewayRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

func NewSMSSender(cfg config.SMSConfig, log *logger.Logger) *SMSSender {
	if cfg.GetSMSGatewayURL() == "" {
		return nil
	}
	return &SMSSender{
		baseURL: strings.TrimRight(cfg.GetSMSGatewayURL(), "/"),
		apiKey:  cfg.GetSMSGatewayKey(),
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     log,
	}
}

func (s *SMSSender) Send(ctx context.Context, lead domain.Lead, msg repository.Message) error {
	if s == nil {
		return fmt.Errorf("sms gateway not configured")
	}
	if lead.Phone == nil || *lead.Phone == "" {
		return fmt.Errorf("lead %s has no phone number", lead.ID)
	}

	normalized := phone.NormalizeE164(*lead.Phone)

	body, err := json.Marshal(gatewayRequest{Phone: normalized, Message: msg.Body})
	if err != nil {
		return fmt.Errorf("marshal sms payload: %w", err)
	}

	url := fmt.Sprintf("%s/send/message", s.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", formatAuthHeader(s.apiKey))
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("sms request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("sms gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	s.log.Info("nurture sms sent", "lead_id", lead.ID, "step", msg.StepNumber)
	return nil
}

func formatAuthHeader(apiKey string) string {
	if strings.HasPrefix(strings.ToLower(apiKey), "basic ") {
		return apiKey
	}
	encoded := base64.StdEncoding.EncodeToString([]byte(apiKey))
	return "Basic " + encoded
}
