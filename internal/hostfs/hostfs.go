// Package hostfs implements the filesystem capability over JSON-RPC, for
// hosts that own the files (an editor or desktop shell) and expose
// read and write calls instead of local disk access.
package hostfs

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/channel"
	"github.com/creachadair/jrpc2/handler"

	"github.com/sokinpui/changepipe/internal/fs"
)

const (
	MethodRead  = "fs.read"
	MethodWrite = "fs.write"
)

// ErrRemote wraps a failure the host reported with success=false.
var ErrRemote = errors.New("host filesystem error")

type ReadParams struct {
	Path string `json:"path"`
}

type ReadResult struct {
	Success bool   `json:"success"`
	Data    string `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

type WriteParams struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

type WriteResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Client is an fs.FileSystem backed by a remote host.
type Client struct {
	rpc *jrpc2.Client
}

var _ fs.FileSystem = (*Client)(nil)

// NewClient wraps an existing jrpc2 client.
func NewClient(rpc *jrpc2.Client) *Client {
	return &Client{rpc: rpc}
}

// Dial connects to a host at addr. ws:// and wss:// use a websocket;
// tcp://host:port and unix:///path use newline-framed JSON.
func Dial(ctx context.Context, addr string) (*Client, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("parse host address %q: %w", addr, err)
	}

	var ch channel.Channel
	switch u.Scheme {
	case "ws", "wss":
		ch, err = DialWebSocket(ctx, addr)
	case "tcp", "unix":
		target := u.Host
		if u.Scheme == "unix" {
			target = u.Path
		}
		var d net.Dialer
		var conn net.Conn
		conn, err = d.DialContext(ctx, u.Scheme, target)
		if err == nil {
			ch = channel.Line(conn, conn)
		}
	default:
		return nil, fmt.Errorf("unsupported host address scheme %q", u.Scheme)
	}
	if err != nil {
		return nil, fmt.Errorf("connect to host %s: %w", addr, err)
	}
	return NewClient(jrpc2.NewClient(ch, nil)), nil
}

func (c *Client) ReadFile(ctx context.Context, path string) (string, error) {
	var res ReadResult
	if err := c.rpc.CallResult(ctx, MethodRead, ReadParams{Path: path}, &res); err != nil {
		return "", fmt.Errorf("%s %s: %w", MethodRead, path, err)
	}
	if !res.Success {
		return "", remoteError(res.Error)
	}
	return res.Data, nil
}

func (c *Client) WriteFile(ctx context.Context, path, content string) error {
	var res WriteResult
	if err := c.rpc.CallResult(ctx, MethodWrite, WriteParams{Path: path, Content: content}, &res); err != nil {
		return fmt.Errorf("%s %s: %w", MethodWrite, path, err)
	}
	if !res.Success {
		return remoteError(res.Error)
	}
	return nil
}

// Close shuts down the connection.
func (c *Client) Close() error {
	return c.rpc.Close()
}

func remoteError(msg string) error {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return ErrRemote
	}
	return fmt.Errorf("%w: %s", ErrRemote, msg)
}

// Handlers serves the host side of the protocol from a local capability.
// Failures are reported in the result, never as RPC errors.
func Handlers(fsys fs.FileSystem) handler.Map {
	return handler.Map{
		MethodRead: handler.New(func(ctx context.Context, p ReadParams) (ReadResult, error) {
			data, err := fsys.ReadFile(ctx, p.Path)
			if err != nil {
				return ReadResult{Error: err.Error()}, nil
			}
			return ReadResult{Success: true, Data: data}, nil
		}),
		MethodWrite: handler.New(func(ctx context.Context, p WriteParams) (WriteResult, error) {
			if err := fsys.WriteFile(ctx, p.Path, p.Content); err != nil {
				return WriteResult{Error: err.Error()}, nil
			}
			return WriteResult{Success: true}, nil
		}),
	}
}
