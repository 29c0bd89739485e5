// README: HTTP client for the external OTP provider.
package user

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// OTPSender hands one-time passwords to the rider's phone through an
// external provider and verifies what the rider typed back.
type OTPSender interface {
	Send(ctx context.Context, phone string) (orderID string, err error)
	Verify(ctx context.Context, phone, orderID, otp string) (bool, error)
	Resend(ctx context.Context, orderID string) error
}

var ErrOTPProvider = errors.New("otp provider unavailable")

// OTPClient talks to an otpless-compatible API. The provider addresses an
// in-flight OTP by the order id returned from Send.
type OTPClient struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpClient   *http.Client
}

func NewOTPClient(baseURL, clientID, clientSecret string) *OTPClient {
	return &OTPClient{
		baseURL:      baseURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
	}
}

type otpSendRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	OTPLength   int    `json:"otpLength"`
	Channel     string `json:"channel"`
	Expiry      int    `json:"expiry"`
}

type otpSendResponse struct {
	OrderID string `json:"orderId"`
}

type otpVerifyRequest struct {
	OrderID     string `json:"orderId"`
	PhoneNumber string `json:"phoneNumber"`
	OTP         string `json:"otp"`
}

type otpVerifyResponse struct {
	IsOTPVerified bool `json:"isOTPVerified"`
}

type otpResendRequest struct {
	OrderID string `json:"orderId"`
}

func (c *OTPClient) Send(ctx context.Context, phone string) (string, error) {
	var resp otpSendResponse
	err := c.post(ctx, "/auth/otp/v1/send", otpSendRequest{
		PhoneNumber: "91" + phone,
		OTPLength:   6,
		Channel:     "SMS",
		Expiry:      600,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.OrderID, nil
}

func (c *OTPClient) Verify(ctx context.Context, phone, orderID, otp string) (bool, error) {
	var resp otpVerifyResponse
	err := c.post(ctx, "/auth/otp/v1/verify", otpVerifyRequest{
		OrderID:     orderID,
		PhoneNumber: "91" + phone,
		OTP:         otp,
	}, &resp)
	if err != nil {
		return false, err
	}
	return resp.IsOTPVerified, nil
}

func (c *OTPClient) Resend(ctx context.Context, orderID string) error {
	return c.post(ctx, "/auth/otp/v1/resend", otpResendRequest{OrderID: orderID}, &struct{}{})
}

func (c *OTPClient) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("clientId", c.clientID)
	req.Header.Set("clientSecret", c.clientSecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOTPProvider, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: status %d", ErrOTPProvider, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("otp provider: status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

var _ OTPSender = (*OTPClient)(nil)
