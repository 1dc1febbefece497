package webhook

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	hzclient "github.com/cloudwego/hertz/pkg/app/client"
	hzconfig "github.com/cloudwego/hertz/pkg/common/config"
	"github.com/cloudwego/hertz/pkg/network/standard"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"go.uber.org/zap"

	"KayaAttend/internal/model"
	"KayaAttend/pkg/logger"
)

// HTTPClient 通过 hertz client 调用固定的 webhook 地址
type HTTPClient struct {
	url     string
	timeout time.Duration
	cli     *hzclient.Client
}

// NewHTTPClient https 地址需要标准库 dialer 才能走 TLS
func NewHTTPClient(url string, timeout time.Duration) (*HTTPClient, error) {
	opts := []hzconfig.ClientOption{
		hzclient.WithDialer(standard.NewDialer()),
		hzclient.WithDialTimeout(timeout),
		hzclient.WithMaxConnsPerHost(16),
	}
	if strings.HasPrefix(url, "https://") {
		opts = append(opts, hzclient.WithTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12}))
	}

	cli, err := hzclient.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create webhook client: %w", err)
	}

	return &HTTPClient{
		url:     url,
		timeout: timeout,
		cli:     cli,
	}, nil
}

// Submit 一次 POST，只有 2xx 算成功，响应体忽略
func (c *HTTPClient) Submit(ctx context.Context, record model.SubmissionRecord) error {
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal submission record: %w", err)
	}

	req := protocol.AcquireRequest()
	resp := protocol.AcquireResponse()
	defer protocol.ReleaseRequest(req)
	defer protocol.ReleaseResponse(resp)

	req.SetRequestURI(c.url)
	req.SetMethod(consts.MethodPost)
	req.Header.SetContentTypeBytes([]byte(consts.MIMEApplicationJSON))
	req.SetBody(body)

	start := time.Now()
	if err := c.cli.DoTimeout(ctx, req, resp, c.timeout); err != nil {
		logger.Logger.Warn("Webhook request failed",
			zap.String("site", record.Site),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return fmt.Errorf("post webhook: %w", err)
	}

	status := resp.StatusCode()
	if status < consts.StatusOK || status >= consts.StatusMultipleChoices {
		logger.Logger.Warn("Webhook responded with non-success status",
			zap.String("site", record.Site),
			zap.Int("status", status),
			zap.Duration("elapsed", time.Since(start)),
		)
		return &StatusError{StatusCode: status}
	}

	logger.Logger.Debug("Webhook accepted submission",
		zap.String("site", record.Site),
		zap.Int("status", status),
		zap.Duration("elapsed", time.Since(start)),
	)

	return nil
}
