package tracing

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledProviderIsNoop(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{}, nil)
	require.NoError(t, err)
	assert.False(t, p.Enabled())

	_, span := p.Tracer().Start(context.Background(), "ignored")
	assert.False(t, span.SpanContext().IsValid())
	span.End()
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestStdoutExporterWritesSpans(t *testing.T) {
	var out bytes.Buffer
	cfg := DefaultConfig()
	cfg.Enabled = true
	p, err := NewProvider(context.Background(), cfg, &out)
	require.NoError(t, err)
	assert.True(t, p.Enabled())

	_, span := p.Tracer().Start(context.Background(), "jsonrpc echo")
	span.End()
	require.NoError(t, p.Shutdown(context.Background()))

	assert.Contains(t, out.String(), `"Name":"jsonrpc echo"`)
	assert.Contains(t, out.String(), "schemarpc")
}

func TestFileExporter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "traces", "spans.jsonl")
	p, err := NewProvider(context.Background(), Config{Enabled: true, Exporter: "file", FilePath: path}, nil)
	require.NoError(t, err)

	_, span := p.Tracer().Start(context.Background(), "to file")
	span.End()
	require.NoError(t, p.Shutdown(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")
}

func TestExporterErrors(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{Enabled: true, Exporter: "file"}, nil)
	assert.Error(t, err)

	_, err = NewProvider(context.Background(), Config{Enabled: true, Exporter: "zipkin"}, nil)
	assert.ErrorContains(t, err, "zipkin")
}

func TestNoneExporterStillSamples(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{Enabled: true, Exporter: "none"}, nil)
	require.NoError(t, err)
	_, span := p.Tracer().Start(context.Background(), "internal")
	assert.True(t, span.SpanContext().IsValid())
	span.End()
	assert.NoError(t, p.Shutdown(context.Background()))
}
