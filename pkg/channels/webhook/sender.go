// Package webhook implements the channel-send contract against an HTTP
// message gateway. One gateway endpoint serves every channel type; the
// channel travels in the request body.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pulseops/automation/pkg/models"
	"github.com/pulseops/automation/pkg/protocol"
)

const defaultTimeout = 30 * time.Second

type Sender struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewSender(endpoint, apiKey string, client *http.Client) *Sender {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}

	return &Sender{endpoint: endpoint, apiKey: apiKey, client: client}
}

type sendRequest struct {
	Channel   string `json:"channel"`
	Recipient string `json:"recipient"`
	Content   string `json:"content"`
}

type sendResponse struct {
	MessageID string `json:"message_id"`
}

func (s *Sender) Send(ctx context.Context, channel models.ChannelType, recipient, content string) (*protocol.SendResult, error) {
	payload, err := json.Marshal(sendRequest{
		Channel:   string(channel),
		Recipient: recipient,
		Content:   content,
	})
	if err != nil {
		return nil, protocol.Validation("failed to encode send request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, protocol.Validation("failed to build send request", err)
	}

	req.Header.Set("Content-Type", "application/json")

	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, protocol.Transient("gateway unreachable", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, protocol.Transient(fmt.Sprintf("gateway returned %d", resp.StatusCode), nil)
	case resp.StatusCode >= http.StatusBadRequest:
		return nil, protocol.Terminal(fmt.Sprintf("gateway rejected send with %d", resp.StatusCode), nil)
	}

	var ack sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		// Accepted send with an unreadable body still counts as sent.
		return &protocol.SendResult{}, nil
	}

	return &protocol.SendResult{ProviderMessageID: ack.MessageID}, nil
}
