package xlog

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInfoWritesKeyValuePairs(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(&buf) // leave a buffer attached, never os.Stderr, for later tests in this package

	Info("jit mapping released", "bytes", 128)

	out := buf.String()
	require.Contains(t, out, "jit mapping released")
	require.Contains(t, out, "bytes=128")
	require.True(t, strings.Contains(out, "level=INFO"))
}

func TestErrorLevelAppears(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(&buf)

	Error("relocation target missing", "symbol", "bf_write")

	require.Contains(t, buf.String(), "level=ERROR")
}
