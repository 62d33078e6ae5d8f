package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestInitTracerProviderDisabled(t *testing.T) {
	p, err := InitTracerProvider(context.Background(), Config{})
	require.NoError(t, err)

	assert.IsType(t, noop.TracerProvider{}, p.TracerProvider())
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestInitTracerProviderExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	p, err := InitTracerProvider(context.Background(), Config{
		Enabled: true,
		RunID:   "run-42",
		Writer:  &buf,
	})
	require.NoError(t, err)
	t.Cleanup(func() { otel.SetTracerProvider(noop.NewTracerProvider()) })

	_, span := otel.Tracer("test").Start(context.Background(), "archive.url")
	span.End()
	require.NoError(t, p.Shutdown(context.Background()))

	out := buf.String()
	assert.Contains(t, out, `"Name":"archive.url"`)
	assert.Contains(t, out, DefaultServiceName)
	assert.Contains(t, out, "run-42")
}
