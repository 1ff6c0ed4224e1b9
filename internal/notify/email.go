package notify

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
)

// EmailSender hands messages to the email relay service over HTTP.
type EmailSender struct {
	serviceURL string
	httpClient *http.Client
}

func NewEmailSender(serviceURL string, client *http.Client) *EmailSender {
	return &EmailSender{
		serviceURL: serviceURL,
		httpClient: client,
	}
}

type emailAttachment struct {
	Name string `json:"name"`
	Data string `json:"data"`
}

type emailRequest struct {
	To          string            `json:"to"`
	Subject     string            `json:"subject"`
	Body        string            `json:"body"`
	HTML        string            `json:"html,omitempty"`
	Attachments []emailAttachment `json:"attachments,omitempty"`
}

func (s *EmailSender) Send(ctx context.Context, to Recipient, msg Message) error {
	body := emailRequest{
		To:      to.Address,
		Subject: msg.Subject,
		Body:    msg.Text,
		HTML:    msg.HTML,
	}
	for _, a := range msg.Attachments {
		body.Attachments = append(body.Attachments, emailAttachment{
			Name: a.Name,
			Data: base64.StdEncoding.EncodeToString(a.Data),
		})
	}

	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.serviceURL+"/send", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusBadRequest {
		return fmt.Errorf("email service rejected message: %w", ErrPermanent)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("email service returned status %d", resp.StatusCode)
	}

	return nil
}
