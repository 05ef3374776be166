package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/ValentinKolb/dMeta/lib/metaerr"
	"github.com/ValentinKolb/dMeta/rpc/common"
	"github.com/ValentinKolb/dMeta/rpc/transport"
	"github.com/ValentinKolb/dMeta/rpc/transport/base"
)

func NewHttpClientTransport() transport.IRPCClientTransport {
	return &httpClientTransport{}
}

type httpClientTransport struct {
	mu     sync.RWMutex
	client *http.Client
	config common.ClientConfig
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *httpClientTransport) Connect(config common.ClientConfig) error {
	perHost := max(1, config.Transport.ConnectionsPerEndpoint)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client != nil {
		t.client.CloseIdleConnections()
	}
	t.config = config
	t.client = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: perHost,
			IdleConnTimeout:     config.Timeout(),
		},
		Timeout: config.Timeout(),
	}
	return nil
}

func (t *httpClientTransport) Send(ctx context.Context, endpoint string, shardId uint64, req []byte) ([]byte, error) {
	t.mu.RLock()
	client := t.client
	t.mu.RUnlock()

	if client == nil {
		return nil, metaerr.Connection("send request to "+endpoint, errors.New("http transport not initialized"))
	}

	requestURL := fmt.Sprintf("%s/%d", baseURL(endpoint), shardId)
	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, bytes.NewReader(req))
	if err != nil {
		return nil, metaerr.Connection("build request for "+endpoint, err)
	}
	httpRequest.Header.Set("Content-Type", "application/octet-stream")

	httpResponse, err := client.Do(httpRequest)
	if err != nil {
		return nil, metaerr.Connection("send request to "+endpoint, err)
	}
	defer func() {
		if err := httpResponse.Body.Close(); err != nil {
			log.Errorf("Failed to close response body: %v", err)
		}
	}()

	if httpResponse.StatusCode != http.StatusOK {
		return nil, metaerr.Connection("send request to "+endpoint,
			metaerr.ProtocolError("http error: %s", httpResponse.Status))
	}

	data, err := io.ReadAll(io.LimitReader(httpResponse.Body, base.MaxFrameSize+1))
	if err != nil {
		return nil, metaerr.Connection("read response from "+endpoint, err)
	}
	if len(data) > base.MaxFrameSize {
		return nil, metaerr.Connection("read response from "+endpoint,
			metaerr.ProtocolError("response exceeds %d bytes", base.MaxFrameSize))
	}
	return data, nil
}

func (t *httpClientTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client != nil {
		t.client.CloseIdleConnections()
	}
	t.client = nil
	return nil
}

// baseURL adds the http scheme to endpoints given as host:port
func baseURL(endpoint string) string {
	endpoint = strings.TrimSuffix(endpoint, "/")
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	return "http://" + endpoint
}
