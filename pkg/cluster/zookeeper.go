// Package cluster tracks node liveness in ZooKeeper and reports nodes that
// leave so their cached partitions stop being advertised.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"

	"partcache/pkg/types"
)

const (
	nodesDir          = "/nodes"
	connectTimeout    = 10 * time.Second
	watchRetryBackoff = 2 * time.Second
)

// HostLossReporter is told about every host whose membership node vanished.
type HostLossReporter interface {
	ReportHostLost(ctx context.Context, host types.HostID) error
}

type nodeWatcher interface {
	ChildrenW(path string) ([]string, *zk.Stat, <-chan zk.Event, error)
}

type ZKMembership struct {
	conn     *zk.Conn
	watcher  nodeWatcher
	rootPath string
	local    types.HostID
}

// servers: ["zk1:2181", "zk2:2181"]
func NewZKMembership(servers []string, rootPath string, local types.HostID, sessionTimeout time.Duration) (*ZKMembership, error) {
	conn, _, err := zk.Connect(servers, sessionTimeout)
	if err != nil {
		return nil, fmt.Errorf("zk connect: %w", err)
	}
	return &ZKMembership{
		conn:     conn,
		watcher:  conn,
		rootPath: strings.TrimRight(rootPath, "/"),
		local:    local,
	}, nil
}

func (m *ZKMembership) Close() error {
	if m.conn != nil {
		m.conn.Close()
	}
	return nil
}

func (m *ZKMembership) nodesPath() string {
	return m.rootPath + nodesDir
}

func (m *ZKMembership) ensurePath(path string) error {
	parts := strings.Split(path, "/")
	cur := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		cur = cur + "/" + p
		exists, _, err := m.conn.Exists(cur)
		if err != nil {
			return err
		}
		if !exists {
			_, err = m.conn.Create(cur, nil, 0, zk.WorldACL(zk.PermAll))
			if err != nil && !errors.Is(err, zk.ErrNodeExists) {
				return err
			}
		}
	}
	return nil
}

// RegisterSelf creates the ephemeral node announcing this host. It vanishes
// with the ZooKeeper session.
func (m *ZKMembership) RegisterSelf() error {
	if err := m.waitConnected(connectTimeout); err != nil {
		return err
	}

	if err := m.ensurePath(m.nodesPath()); err != nil {
		return fmt.Errorf("ensure nodes path: %w", err)
	}

	nodePath := m.nodesPath() + "/" + string(m.local)

	_, err := m.conn.Create(nodePath, nil, zk.FlagEphemeral, zk.WorldACL(zk.PermAll))
	if err != nil && !errors.Is(err, zk.ErrNodeExists) {
		return fmt.Errorf("create ephemeral node: %w", err)
	}

	slog.Info("zk: registered node", "path", nodePath)
	return nil
}

// RunWatch follows the membership directory until ctx is done, reporting
// each host that disappears from it. It blocks.
func (m *ZKMembership) RunWatch(ctx context.Context, reporter HostLossReporter) {
	var known []string
	for {
		children, _, ch, err := m.watcher.ChildrenW(m.nodesPath())
		if err != nil {
			slog.Warn("zk: ChildrenW failed", "error", err)
			select {
			case <-time.After(watchRetryBackoff):
				continue
			case <-ctx.Done():
				return
			}
		}

		sort.Strings(children)
		if known != nil {
			for _, host := range departed(known, children) {
				slog.Info("zk: host left the cluster", "host", host)
				if err := reporter.ReportHostLost(ctx, types.HostID(host)); err != nil {
					slog.Error("zk: failed to report host loss", "host", host, "error", err)
				}
			}
		}
		known = children

		select {
		case ev := <-ch:
			slog.Debug("zk: membership event", "type", ev.Type, "path", ev.Path)
		case <-ctx.Done():
			slog.Info("zk: watch stopped")
			return
		}
	}
}

// departed returns the members of prev that are missing from cur. Both must
// be sorted.
func departed(prev, cur []string) []string {
	var gone []string
	i, j := 0, 0
	for i < len(prev) {
		switch {
		case j >= len(cur) || prev[i] < cur[j]:
			gone = append(gone, prev[i])
			i++
		case prev[i] == cur[j]:
			i++
			j++
		default:
			j++
		}
	}
	return gone
}

func (m *ZKMembership) waitConnected(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		st := m.conn.State()
		if st == zk.StateConnected || st == zk.StateHasSession {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("zk: not connected after %s, state=%v", timeout, st)
		}
		time.Sleep(200 * time.Millisecond)
	}
}
