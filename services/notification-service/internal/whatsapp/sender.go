// Package whatsapp sends text messages through an Evolution API instance.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Sender interface {
	Send(ctx context.Context, number string, text string) error
}

type EvolutionSender struct {
	baseURL  string
	instance string
	apiKey   string
	http     *http.Client
}

func NewEvolutionSender(baseURL, instance, apiKey string) *EvolutionSender {
	return &EvolutionSender{
		baseURL:  strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		instance: strings.TrimSpace(instance),
		apiKey:   strings.TrimSpace(apiKey),
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type sendTextRequest struct {
	Number string `json:"number"`
	Text   string `json:"text"`
}

func (s *EvolutionSender) Send(ctx context.Context, number string, text string) error {
	if s.baseURL == "" || s.instance == "" {
		return errors.New("evolution api url or instance not configured")
	}
	digits := NormalizeNumber(number)
	if digits == "" {
		return fmt.Errorf("invalid whatsapp number %q", number)
	}
	raw, err := json.Marshal(sendTextRequest{Number: digits, Text: text})
	if err != nil {
		return err
	}
	endpoint := s.baseURL + "/message/sendText/" + url.PathEscape(s.instance)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", s.apiKey)

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("evolution api: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("evolution api returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}

// NormalizeNumber keeps only the digits of a phone number.
func NormalizeNumber(number string) string {
	var b strings.Builder
	for _, r := range number {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
