package utils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

var (
	ErrBadStatus          = errors.New("probe bad status code")
	ErrUnknownContentType = errors.New("probe could not determine content type")
)

const (
	probeHTTPClientTimeout         = 10 * time.Second
	probeHTTPDialTimeout           = 5 * time.Second
	probeHTTPKeepAlive             = 30 * time.Second
	probeHTTPTLSHandshakeTimeout   = 5 * time.Second
	probeHTTPResponseHeaderTimeout = 10 * time.Second
	probeHTTPIdleConnTimeout       = 90 * time.Second

	probeRetryMax = 2
	// filetype needs at most this many bytes to match.
	sniffLen = 261
)

var probeHTTPTransport = &http.Transport{
	Proxy: http.ProxyFromEnvironment,
	DialContext: (&net.Dialer{
		Timeout:   probeHTTPDialTimeout,
		KeepAlive: probeHTTPKeepAlive,
	}).DialContext,
	TLSHandshakeTimeout:   probeHTTPTLSHandshakeTimeout,
	ResponseHeaderTimeout: probeHTTPResponseHeaderTimeout,
	IdleConnTimeout:       probeHTTPIdleConnTimeout,
}

func newProbeClient() *http.Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = probeRetryMax
	retryClient.RetryWaitMin = 200 * time.Millisecond
	retryClient.RetryWaitMax = 1 * time.Second
	retryClient.Logger = nil
	retryClient.HTTPClient = &http.Client{
		Timeout:   probeHTTPClientTimeout,
		Transport: probeHTTPTransport,
	}

	return retryClient.StandardClient()
}

// ProbeContentType works out the media type of a remote media URL. It
// trusts a specific Content-Type from a HEAD request, then sniffs the
// first bytes of a ranged GET, and finally falls back to the URL's file
// extension.
func ProbeContentType(ctx context.Context, s string) (string, error) {
	u, err := url.ParseRequestURI(s)
	if err != nil {
		return "", fmt.Errorf("probe failed to parse url: %w", err)
	}

	client := newProbeClient()

	if mediaType, err := probeHead(ctx, client, s); err == nil && !shouldSniffContentType(mediaType) {
		return mediaType, nil
	}

	mediaType, head, err := probeRange(ctx, client, s)
	if err == nil {
		if !shouldSniffContentType(mediaType) {
			return mediaType, nil
		}
		if sniffed, err := GetMimeDetailsFromBytes(head); err == nil {
			return sniffed, nil
		}
	}

	if byExt, extErr := GetMimeDetailsFromPath(u.Path); extErr == nil {
		return byExt, nil
	}

	if err != nil {
		return "", err
	}
	return "", ErrUnknownContentType
}

func probeHead(ctx context.Context, client *http.Client, s string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, s, nil)
	if err != nil {
		return "", fmt.Errorf("probe failed to call NewRequest: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("probe failed to client.Do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", ErrBadStatus
	}

	return normalizeContentType(resp.Header.Get("Content-Type")), nil
}

func probeRange(ctx context.Context, client *http.Client, s string) (string, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s, nil)
	if err != nil {
		return "", nil, fmt.Errorf("probe failed to call NewRequest: %w", err)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=0-%d", sniffLen-1))

	resp, err := client.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("probe failed to client.Do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", nil, ErrBadStatus
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(resp.Body, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", nil, fmt.Errorf("probe failed to read body for mime detection: %w", err)
	}

	return normalizeContentType(resp.Header.Get("Content-Type")), head[:n], nil
}
