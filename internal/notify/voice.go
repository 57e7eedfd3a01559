package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// VoiceChannel posts the spoken form of a notification to a text-to-speech
// endpoint, e.g. a smart speaker bridge.
type VoiceChannel struct {
	endpoint string
	client   *http.Client
}

func NewVoiceChannel(endpoint string) (*VoiceChannel, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("voice endpoint is empty")
	}
	return &VoiceChannel{
		endpoint: endpoint,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}, nil
}

func (v *VoiceChannel) Name() string { return "voice" }

func (v *VoiceChannel) Send(ctx context.Context, msg Message) error {
	if msg.Spoken == "" {
		return nil
	}
	payload, err := json.Marshal(map[string]any{
		"text":     msg.Spoken,
		"priority": msg.Critical,
	})
	if err != nil {
		return fmt.Errorf("encode voice payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create voice request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("send voice announcement: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("voice endpoint returned status: %d", resp.StatusCode)
	}
	return nil
}
