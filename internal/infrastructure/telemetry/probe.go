package telemetry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"confline/internal/core/domain"
	"confline/pkg/utils"

	"go.uber.org/zap"
)

// Unavailable is the provider for hosts that expose no connection telemetry.
type Unavailable struct{}

func (Unavailable) ConnectionInfo(ctx context.Context) (domain.ConnectionInfo, error) {
	return domain.ConnectionInfo{}, domain.ErrTelemetryUnavailable
}

// DownloadProbe estimates the connection by timing a bounded download.
// Time to first byte stands in for RTT; the body rate gives the downlink.
type DownloadProbe struct {
	url      string
	maxBytes int64
	client   *http.Client
	logger   *zap.SugaredLogger
}

func NewDownloadProbe(url string, maxBytes int64, timeout time.Duration, logger *zap.SugaredLogger) *DownloadProbe {
	return &DownloadProbe{
		url:      url,
		maxBytes: maxBytes,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

func (p *DownloadProbe) ConnectionInfo(ctx context.Context) (domain.ConnectionInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return domain.ConnectionInfo{}, fmt.Errorf("probe request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-cache")

	start := utils.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return domain.ConnectionInfo{}, fmt.Errorf("probe: %w", err)
	}
	defer resp.Body.Close()
	rtt := utils.Now().Sub(start)

	if resp.StatusCode >= 400 {
		return domain.ConnectionInfo{}, fmt.Errorf("probe: status %d", resp.StatusCode)
	}

	bodyStart := utils.Now()
	n, err := io.Copy(io.Discard, io.LimitReader(resp.Body, p.maxBytes))
	if err != nil {
		return domain.ConnectionInfo{}, fmt.Errorf("probe body: %w", err)
	}
	elapsed := utils.Now().Sub(bodyStart)

	info := domain.ConnectionInfo{
		DownlinkMbps: downlinkMbps(n, elapsed),
		RTT:          rtt,
	}
	info.EffectiveType = EffectiveType(info)

	p.logger.Debugw("connection probe",
		"bytes", n,
		"rtt_ms", rtt.Milliseconds(),
		"downlink_mbps", info.DownlinkMbps,
		"effective_type", info.EffectiveType,
	)
	return info, nil
}

func downlinkMbps(n int64, elapsed time.Duration) float64 {
	if n == 0 {
		return 0
	}
	if elapsed < time.Millisecond {
		elapsed = time.Millisecond
	}
	return float64(n*8) / elapsed.Seconds() / 1e6
}

// EffectiveType buckets a reading into the browser connection classes,
// using the same RTT and downlink thresholds.
func EffectiveType(info domain.ConnectionInfo) string {
	rtt := info.RTT.Milliseconds()
	switch {
	case rtt >= 2000 || info.DownlinkMbps < 0.05:
		return domain.EffectiveSlow2G
	case rtt >= 1400 || info.DownlinkMbps < 0.07:
		return domain.Effective2G
	case rtt >= 270 || info.DownlinkMbps < 0.7:
		return domain.Effective3G
	default:
		return domain.Effective4G
	}
}
