package alerting

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/smtp"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DingTalkWebhookSender 将消息推送到钉钉群机器人。配置了签名密钥时按
// 机器人加签规范在 URL 上附加时间戳与签名。
type DingTalkWebhookSender struct {
	WebhookURL string
	Secret     string
	HTTPClient *http.Client
}

// Send 实现 DingTalkSender。
func (s *DingTalkWebhookSender) Send(ctx context.Context, content string) error {
	if s == nil || strings.TrimSpace(s.WebhookURL) == "" {
		return errors.New("钉钉 webhook 地址不能为空")
	}
	target := s.WebhookURL
	if s.Secret != "" {
		timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
		sign := signDingTalk(timestamp, s.Secret)
		separator := "?"
		if strings.Contains(target, "?") {
			separator = "&"
		}
		target = fmt.Sprintf("%s%stimestamp=%s&sign=%s", target, separator, timestamp, url.QueryEscape(sign))
	}
	payload := map[string]any{
		"msgtype": "text",
		"text":    map[string]string{"content": content},
	}
	return postJSON(ctx, s.HTTPClient, target, payload)
}

func signDingTalk(timestamp, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + "\n" + secret))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// SlackWebhookSender 将消息推送到 Slack incoming webhook。
type SlackWebhookSender struct {
	WebhookURL string
	HTTPClient *http.Client
}

// Send 实现 SlackSender。channel 为空时使用 webhook 绑定的默认频道。
func (s *SlackWebhookSender) Send(ctx context.Context, channel, content string) error {
	if s == nil || strings.TrimSpace(s.WebhookURL) == "" {
		return errors.New("Slack webhook 地址不能为空")
	}
	payload := map[string]any{"text": content}
	if strings.TrimSpace(channel) != "" {
		payload["channel"] = channel
	}
	return postJSON(ctx, s.HTTPClient, s.WebhookURL, payload)
}

func postJSON(ctx context.Context, client *http.Client, target string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化告警消息失败: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("构造告警请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("发送告警请求失败: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("告警接口返回异常状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return nil
}

// SMTPEmailSender 通过 SMTP 发送告警邮件。
type SMTPEmailSender struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Send 实现 EmailSender。
func (s *SMTPEmailSender) Send(_ context.Context, subject, content string, to []string) error {
	if s == nil || s.Host == "" || s.From == "" {
		return errors.New("SMTP 发件配置不完整")
	}
	if len(to) == 0 {
		return errors.New("收件人列表不能为空")
	}
	port := s.Port
	if port <= 0 {
		port = 25
	}
	addr := fmt.Sprintf("%s:%d", s.Host, port)

	var msg strings.Builder
	msg.WriteString("From: " + s.From + "\r\n")
	msg.WriteString("To: " + strings.Join(to, ", ") + "\r\n")
	msg.WriteString("Subject: " + subject + "\r\n")
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n")
	msg.WriteString(content)

	var auth smtp.Auth
	if s.Username != "" {
		auth = smtp.PlainAuth("", s.Username, s.Password, s.Host)
	}
	if err := smtp.SendMail(addr, auth, s.From, to, []byte(msg.String())); err != nil {
		return fmt.Errorf("发送告警邮件失败: %w", err)
	}
	return nil
}
