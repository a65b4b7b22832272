package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a thin wrapper over the Telegram Bot API. Only the methods
// this bot actually calls are implemented.
type Client struct {
	apiBaseURL string
	http       *http.Client
}

func NewClient(token, apiBaseURL string) *Client {
	base := strings.TrimRight(apiBaseURL, "/")
	if base == "" {
		base = "https://api.telegram.org"
	}
	return &Client{
		apiBaseURL: base + "/bot" + strings.TrimSpace(token),
		http:       &http.Client{Timeout: 65 * time.Second},
	}
}

type updatesResponse struct {
	OK     bool           `json:"ok"`
	Result []updateRecord `json:"result"`
}

type updateRecord struct {
	UpdateID         int64             `json:"update_id"`
	Message          *messageBody      `json:"message"`
	ChannelPost      *messageBody      `json:"channel_post"`
	PreCheckoutQuery *preCheckoutQuery `json:"pre_checkout_query"`
}

type messageBody struct {
	MessageID int64      `json:"message_id"`
	From      *userBody  `json:"from"`
	Chat      chatBody   `json:"chat"`
	Text      string     `json:"text"`
	Caption   string     `json:"caption"`
	Photo     []photoRec `json:"photo"`
	Document  *docRec    `json:"document"`

	SuccessfulPayment *successfulPayment `json:"successful_payment"`
}

type userBody struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
}

type chatBody struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

type photoRec struct {
	FileID string `json:"file_id"`
}

type docRec struct {
	FileID string `json:"file_id"`
}

type successfulPayment struct {
	Currency                string `json:"currency"`
	TotalAmount             int    `json:"total_amount"`
	InvoicePayload          string `json:"invoice_payload"`
	TelegramPaymentChargeID string `json:"telegram_payment_charge_id"`
}

type preCheckoutQuery struct {
	ID             string   `json:"id"`
	From           userBody `json:"from"`
	Currency       string   `json:"currency"`
	TotalAmount    int      `json:"total_amount"`
	InvoicePayload string   `json:"invoice_payload"`
}

func (c *Client) FetchUpdates(ctx context.Context, offset int64) ([]updateRecord, error) {
	query := url.Values{}
	query.Set("timeout", "30")
	query.Set("limit", "50")
	query.Set("allowed_updates", `["message","channel_post","pre_checkout_query"]`)
	if offset != 0 {
		query.Set("offset", strconv.FormatInt(offset, 10))
	}

	endpoint := c.apiBaseURL + "/getUpdates?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("getUpdates status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var updates updatesResponse
	if err := json.Unmarshal(body, &updates); err != nil {
		return nil, fmt.Errorf("decode updates: %w", err)
	}
	return updates.Result, nil
}

func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return c.postJSON(ctx, "/sendMessage", map[string]any{
		"chat_id": chatID,
		"text":    text,
	})
}

// SendVoice uploads OGG/Opus audio as a voice note.
func (c *Client) SendVoice(ctx context.Context, chatID int64, audio []byte) error {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if err := writer.WriteField("chat_id", strconv.FormatInt(chatID, 10)); err != nil {
		return err
	}
	part, err := writer.CreateFormFile("voice", "audio.ogg")
	if err != nil {
		return err
	}
	if _, err := part.Write(audio); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBaseURL+"/sendVoice", &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sendVoice status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return nil
}

// SendInvoice issues a Telegram Stars invoice. Stars invoices use the
// XTR currency and an empty provider token.
func (c *Client) SendInvoice(ctx context.Context, chatID int64, title, description, payload string, amount int) error {
	return c.postJSON(ctx, "/sendInvoice", map[string]any{
		"chat_id":     chatID,
		"title":       title,
		"description": description,
		"payload":     payload,
		"currency":    "XTR",
		"prices":      []map[string]any{{"label": title, "amount": amount}},
	})
}

func (c *Client) AnswerPreCheckoutQuery(ctx context.Context, queryID string, ok bool, errorMessage string) error {
	payload := map[string]any{
		"pre_checkout_query_id": queryID,
		"ok":                    ok,
	}
	if !ok && errorMessage != "" {
		payload["error_message"] = errorMessage
	}
	return c.postJSON(ctx, "/answerPreCheckoutQuery", payload)
}

func (c *Client) postJSON(ctx context.Context, method string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBaseURL+method, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s status=%d body=%s", method, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return nil
}
