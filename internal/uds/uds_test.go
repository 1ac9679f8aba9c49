package uds

import (
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// shortSockPath keeps socket paths under the 104-byte macOS limit.
func shortSockPath(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("/tmp", "ap-uds-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, DefaultSocketName)
}

func startServer(t *testing.T, register func(*Server)) (*Client, string) {
	t.Helper()
	sockPath := shortSockPath(t)
	server := NewServer(sockPath, zerolog.Nop())
	if register != nil {
		register(server)
	}
	require.NoError(t, server.Start())
	t.Cleanup(func() { _ = server.Stop() })

	client := NewClient(sockPath)
	client.SetTimeout(2 * time.Second)
	return client, sockPath
}

type statusPayload struct {
	State  string `json:"state"`
	Queued int    `json:"queued"`
}

func TestFraming_RoundTrip(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	go func() { _ = WriteFrame(client, NewRequest(CommandStatus)) }()

	var got Request
	require.NoError(t, ReadFrame(server, &got))
	assert.Equal(t, Request{ProtocolVersion: ProtocolVersion, Command: CommandStatus}, got)
}

func TestFraming_RejectsOversizedFrame(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	go func() {
		// length prefix of 64MB, no payload
		_, _ = client.Write([]byte{0x04, 0x00, 0x00, 0x00})
	}()

	var got Request
	err := ReadFrame(server, &got)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestServer_DispatchesCommands(t *testing.T) {
	client, _ := startServer(t, func(s *Server) {
		s.Handle(CommandPing, func() *Response {
			return SuccessResponse(map[string]string{"status": "ok"})
		})
		s.Handle(CommandStatus, func() *Response {
			return SuccessResponse(statusPayload{State: "running", Queued: 2})
		})
	})

	resp, err := client.SendCommand(CommandPing)
	require.NoError(t, err)
	assert.True(t, resp.Success)

	resp, err = client.SendCommand(CommandStatus)
	require.NoError(t, err)
	var st statusPayload
	require.NoError(t, resp.DecodeData(&st))
	assert.Equal(t, statusPayload{State: "running", Queued: 2}, st)
}

func TestServer_UnknownCommand(t *testing.T) {
	client, _ := startServer(t, nil)

	resp, err := client.SendCommand("reload")
	require.NoError(t, err)
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeUnknownCommand, resp.Error.Code)

	err = resp.DecodeData(&struct{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrCodeUnknownCommand)
}

func TestServer_ProtocolVersionMismatch(t *testing.T) {
	client, _ := startServer(t, func(s *Server) {
		s.Handle(CommandPing, func() *Response { return SuccessResponse(nil) })
	})

	resp, err := client.Send(&Request{ProtocolVersion: 999, Command: CommandPing})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, ErrCodeProtocolMismatch, resp.Error.Code)
}

func TestServer_RecoversFromHandlerPanic(t *testing.T) {
	client, _ := startServer(t, func(s *Server) {
		s.Handle("boom", func() *Response { panic("handler bug") })
		s.Handle(CommandPing, func() *Response { return SuccessResponse(nil) })
	})

	resp, err := client.SendCommand("boom")
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, ErrCodeInternal, resp.Error.Code)

	resp, err = client.SendCommand(CommandPing)
	require.NoError(t, err)
	assert.True(t, resp.Success, "server still serves after a panic")
}

func TestServer_ConcurrentClients(t *testing.T) {
	_, sockPath := startServer(t, func(s *Server) {
		s.Handle(CommandPing, func() *Response { return SuccessResponse(nil) })
	})

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := NewClient(sockPath)
			resp, err := c.SendCommand(CommandPing)
			if err == nil && !resp.Success {
				err = errors.New("ping failed")
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestServer_IdleConnectionTimesOut(t *testing.T) {
	sockPath := shortSockPath(t)
	server := NewServer(sockPath, zerolog.Nop())
	server.SetConnTimeout(200 * time.Millisecond)
	server.Handle(CommandPing, func() *Response { return SuccessResponse(nil) })
	require.NoError(t, server.Start())
	defer server.Stop()

	conn, err := net.Dial("unix", sockPath)
	require.NoError(t, err)
	defer conn.Close()

	time.Sleep(400 * time.Millisecond)
	_ = conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, readErr := conn.Read(make([]byte, 1))
	assert.Error(t, readErr)

	resp, err := NewClient(sockPath).SendCommand(CommandPing)
	require.NoError(t, err)
	assert.True(t, resp.Success)
}

func TestServer_SocketLifecycle(t *testing.T) {
	sockPath := shortSockPath(t)
	// stale socket from a crashed daemon
	require.NoError(t, os.WriteFile(sockPath, nil, 0o600))

	server := NewServer(sockPath, zerolog.Nop())
	require.NoError(t, server.Start())

	info, err := os.Stat(sockPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	require.NoError(t, server.Stop())
	_, err = os.Stat(sockPath)
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, server.Stop(), "second stop is a no-op")
}

func TestClient_NotRunning(t *testing.T) {
	client := NewClient(filepath.Join(t.TempDir(), "absent.sock"))
	client.SetTimeout(time.Second)

	_, err := client.SendCommand(CommandPing)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotRunning)
	assert.True(t, strings.Contains(err.Error(), "absent.sock"))
}

func TestResponses(t *testing.T) {
	resp := ErrorResponse(ErrCodeShuttingDown, "stop in progress")
	assert.False(t, resp.Success)
	assert.Equal(t, ErrCodeShuttingDown, resp.Error.Code)

	ok := SuccessResponse(nil)
	assert.True(t, ok.Success)
	assert.Nil(t, ok.Data)
	assert.NoError(t, ok.DecodeData(&struct{}{}))
}
