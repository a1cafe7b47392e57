package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"partcache/pkg/dberrors"
	"partcache/pkg/protocol"
	"partcache/pkg/types"
)

// TrackerEndpoint is the path the coordinator answers requests on.
const TrackerEndpoint = "/api/internal/tracker"

// Client talks to the coordinator with strict request/reply discipline:
// calls are serialised, so at most one request is in flight. Failures are
// not retried.
type Client struct {
	baseURL string
	client  *http.Client

	mu sync.Mutex
}

// NewClient connects to a coordinator published at baseURL
// (e.g. http://host:port). A zero timeout waits for the reply indefinitely.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Call sends one request and waits for its reply. Error replies are returned
// together with an error wrapping the matching dberrors sentinel; anything
// that prevents a reply from arriving wraps dberrors.ErrTransport.
func (c *Client) Call(ctx context.Context, req protocol.Request) (protocol.Reply, error) {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}

	body, err := json.Marshal(req)
	if err != nil {
		return protocol.Reply{}, fmt.Errorf("marshal %s request: %w", req.Kind, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+TrackerEndpoint, bytes.NewReader(body))
	if err != nil {
		return protocol.Reply{}, fmt.Errorf("create %s request: %w", req.Kind, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return protocol.Reply{}, fmt.Errorf("%w: %s: %v", dberrors.ErrTransport, req.Kind, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return protocol.Reply{}, fmt.Errorf("%w: %s: read reply: %v", dberrors.ErrTransport, req.Kind, err)
	}

	var reply protocol.Reply
	if err := json.Unmarshal(raw, &reply); err != nil || reply.Status == "" {
		return protocol.Reply{}, fmt.Errorf("%w: %s: status=%d body=%s",
			dberrors.ErrTransport, req.Kind, resp.StatusCode, string(raw))
	}
	if reply.ID != req.ID {
		return reply, fmt.Errorf("%w: reply %s does not answer request %s",
			dberrors.ErrProtocol, reply.ID, req.ID)
	}
	return reply, reply.Err()
}

func (c *Client) RegisterDataset(ctx context.Context, id types.DatasetID, numPartitions int) error {
	_, err := c.Call(ctx, protocol.RegisterDataset(id, numPartitions))
	return err
}

func (c *Client) AddedToCache(ctx context.Context, id types.DatasetID, partition int, host types.HostID) error {
	_, err := c.Call(ctx, protocol.AddedToCache(id, partition, host))
	return err
}

func (c *Client) DroppedFromCache(ctx context.Context, id types.DatasetID, partition int, host types.HostID) error {
	_, err := c.Call(ctx, protocol.DroppedFromCache(id, partition, host))
	return err
}

func (c *Client) HostLost(ctx context.Context, host types.HostID) error {
	_, err := c.Call(ctx, protocol.HostLost(host))
	return err
}

func (c *Client) Locations(ctx context.Context) (protocol.Snapshot, error) {
	reply, err := c.Call(ctx, protocol.GetLocations())
	if err != nil {
		return nil, err
	}
	return reply.Locations, nil
}

func (c *Client) Stop(ctx context.Context) error {
	_, err := c.Call(ctx, protocol.Stop())
	return err
}
