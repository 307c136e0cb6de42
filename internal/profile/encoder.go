package profile

import (
	"bytes"
	"compress/zlib"
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Encoder turns a serialized profile payload into the opaque token client
// applications import.
type Encoder interface {
	Encode(ctx context.Context, payload []byte) (string, error)
}

// ZlibEncoder is the native encoder: zlib-compress the payload, prepend a
// 4-byte big-endian uncompressed length, base64 URL-safe without padding.
// The framing matches what importers already accept.
type ZlibEncoder struct{}

func (ZlibEncoder) Encode(_ context.Context, payload []byte) (string, error) {
	var buf bytes.Buffer

	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(payload)))
	buf.Write(header)

	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(payload); err != nil {
		return "", err
	}
	if err := zw.Close(); err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(buf.Bytes()), nil
}

// ExecEncoder delegates encoding to an external command. The payload travels
// on stdin and the command runs with fixed argv entries, never through a
// shell, so payload content cannot influence what executes.
type ExecEncoder struct {
	Argv []string
}

func (e *ExecEncoder) Encode(ctx context.Context, payload []byte) (string, error) {
	if len(e.Argv) == 0 {
		return "", errors.New("encoder command not configured")
	}

	cmd := exec.CommandContext(ctx, e.Argv[0], e.Argv[1:]...)
	cmd.Stdin = bytes.NewReader(payload)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return "", fmt.Errorf("encoder command failed: %w: %s", err, detail)
		}
		return "", fmt.Errorf("encoder command failed: %w", err)
	}

	token := strings.TrimSpace(stdout.String())
	if token == "" {
		return "", errors.New("encoder produced no output")
	}
	return token, nil
}
