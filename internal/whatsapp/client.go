package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"whatsapp-suite/internal/apperr"
)

// Credentials identify one WhatsApp Business phone number.
type Credentials struct {
	APIURL            string
	PhoneNumberID     string
	BusinessAccountID string
	AccessToken       string
}

// Client talks to the Meta Cloud API on behalf of one phone number.
type Client struct {
	creds Credentials
	http  *http.Client
}

func NewClient(creds Credentials, httpClient *http.Client) *Client {
	creds.APIURL = strings.TrimRight(creds.APIURL, "/")
	return &Client{creds: creds, http: httpClient}
}

// --- Helper Functions ---

func (c *Client) sendRequest(ctx context.Context, method, endpoint string, body interface{}) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	req.Header.Set("Authorization", "Bearer "+c.creds.AccessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperr.Remote(0, "", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Remote(0, "", err)
	}

	if resp.StatusCode >= 300 {
		return respBody, apperr.Remote(resp.StatusCode, string(respBody), nil)
	}
	return respBody, nil
}

func (c *Client) url(parts ...string) string {
	return c.creds.APIURL + "/" + strings.Join(parts, "/")
}

// --- Messaging Methods ---

// SendResponse is the Cloud API answer to POST /messages.
type SendResponse struct {
	MessagingProduct string `json:"messaging_product"`
	Contacts         []struct {
		Input string `json:"input"`
		WaID  string `json:"wa_id"`
	} `json:"contacts"`
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Conversations []struct {
		ID string `json:"id"`
	} `json:"conversations,omitempty"`
}

// MessageID returns the wamid of the first accepted message.
func (r *SendResponse) MessageID() string {
	if r == nil || len(r.Messages) == 0 {
		return ""
	}
	return r.Messages[0].ID
}

func (r *SendResponse) ConversationID() string {
	if r == nil || len(r.Conversations) == 0 {
		return ""
	}
	return r.Conversations[0].ID
}

func (c *Client) SendMessage(ctx context.Context, msg GenericMessage) (*SendResponse, error) {
	resp, err := c.sendRequest(ctx, http.MethodPost, c.url(c.creds.PhoneNumberID, "messages"), msg)
	if err != nil {
		return nil, err
	}

	var out SendResponse
	if err := json.Unmarshal(resp, &out); err != nil {
		return nil, apperr.Wrap(apperr.KindRemote, err, "decode send response")
	}
	if out.MessageID() == "" {
		return nil, apperr.Remote(http.StatusOK, string(resp), fmt.Errorf("no message id returned"))
	}
	return &out, nil
}

// --- Media Methods ---

type MediaResponse struct {
	ID string `json:"id"`
}

// UploadMedia stores data on Meta's side and returns the media id to
// reference in a message or as a template header handle.
func (c *Client) UploadMedia(ctx context.Context, data []byte, mimeType, filename string) (*MediaResponse, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if err := writer.WriteField("messaging_product", "whatsapp"); err != nil {
		return nil, err
	}
	if err := writer.WriteField("type", mimeType); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(c.creds.PhoneNumberID, "media"), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var mediaResp MediaResponse
	if err := json.Unmarshal(resp, &mediaResp); err != nil {
		return nil, apperr.Wrap(apperr.KindRemote, err, "decode upload response")
	}
	if mediaResp.ID == "" {
		return nil, apperr.Remote(http.StatusOK, string(resp), fmt.Errorf("media id not found for %s", filename))
	}
	return &mediaResp, nil
}

func (c *Client) DeleteMedia(ctx context.Context, mediaID string) error {
	endpoint := c.url(mediaID) + "?phone_number_id=" + url.QueryEscape(c.creds.PhoneNumberID)
	_, err := c.sendRequest(ctx, http.MethodDelete, endpoint, nil)
	return err
}

// --- Account Methods ---

// PhoneNumberInfo is the Graph API view of the business phone number.
type PhoneNumberInfo struct {
	ID                     string `json:"id"`
	VerifiedName           string `json:"verified_name"`
	CodeVerificationStatus string `json:"code_verification_status"`
	DisplayPhoneNumber     string `json:"display_phone_number"`
	QualityRating          string `json:"quality_rating"`
	PlatformType           string `json:"platform_type"`
	Throughput             struct {
		Level string `json:"level"`
	} `json:"throughput"`
}

func (c *Client) GetPhoneNumber(ctx context.Context) (*PhoneNumberInfo, error) {
	resp, err := c.sendRequest(ctx, http.MethodGet, c.url(c.creds.PhoneNumberID), nil)
	if err != nil {
		return nil, err
	}
	var info PhoneNumberInfo
	if err := json.Unmarshal(resp, &info); err != nil {
		return nil, apperr.Wrap(apperr.KindRemote, err, "decode phone number")
	}
	return &info, nil
}

type BusinessProfile struct {
	Address     string   `json:"address"`
	Description string   `json:"description"`
	Vertical    string   `json:"vertical"`
	About       string   `json:"about"`
	Email       string   `json:"email"`
	Websites    []string `json:"websites"`
}

func (c *Client) GetBusinessProfile(ctx context.Context) (*BusinessProfile, error) {
	endpoint := c.url(c.creds.PhoneNumberID, "whatsapp_business_profile") +
		"?fields=messaging_product,address,description,vertical,about,email,websites"
	resp, err := c.sendRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Data []BusinessProfile `json:"data"`
	}
	if err := json.Unmarshal(resp, &out); err != nil {
		return nil, apperr.Wrap(apperr.KindRemote, err, "decode business profile")
	}
	if len(out.Data) == 0 {
		return &BusinessProfile{}, nil
	}
	return &out.Data[0], nil
}
