package ipc

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"
)

const (
	defaultDialTimeout = 2 * time.Second
	defaultRWTimeout   = 10 * time.Second
	maxResponseBytes   = 64 * 1024
)

// Send sends one request and waits for one response. An empty endpoint
// selects DefaultEndpoint.
func Send(endpoint string, req ControlRequest) (ControlResponse, error) {
	if endpoint == "" {
		endpoint = DefaultEndpoint()
	}

	conn, err := dialEndpoint(endpoint, defaultDialTimeout)
	if err != nil {
		return ControlResponse{}, err
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(defaultRWTimeout)); err != nil {
		return ControlResponse{}, fmt.Errorf("set deadline: %w", err)
	}

	rawReq, err := encodeRequest(req)
	if err != nil {
		return ControlResponse{}, err
	}
	if _, err := conn.Write(append(rawReq, '\n')); err != nil {
		return ControlResponse{}, err
	}

	respRaw, err := readDelimitedFrame(bufio.NewReaderSize(conn, maxResponseBytes+1), maxResponseBytes)
	if err != nil {
		return ControlResponse{}, err
	}

	resp, err := decodeResponse(respRaw)
	if err != nil {
		return ControlResponse{}, fmt.Errorf("invalid response: %w", err)
	}
	return resp, nil
}

func readDelimitedFrame(reader *bufio.Reader, maxBytes int) ([]byte, error) {
	raw, err := reader.ReadSlice('\n')
	if errors.Is(err, bufio.ErrBufferFull) {
		return nil, fmt.Errorf("response exceeds %d bytes", maxBytes)
	}
	if errors.Is(err, io.EOF) {
		if len(raw) == 0 {
			return nil, io.EOF
		}
		return raw, nil
	}
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// IsConnectionError reports whether err means no instance is listening.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial" || opErr.Op == "open"
	}
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return pathErr.Op == "open"
	}
	return false
}
