package observability

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestSetupExportsSpans(t *testing.T) {
	var out bytes.Buffer
	p, err := Setup(Options{ServiceName: "storygen-test", Version: "dev", Tracing: true, TraceOutput: &out})
	require.NoError(t, err)
	require.NotNil(t, p.Tracer)

	_, span := otel.Tracer("test").Start(context.Background(), "story.start")
	span.End()

	require.NoError(t, p.Shutdown(context.Background()))
	assert.Contains(t, out.String(), "story.start")
	assert.Contains(t, out.String(), "storygen-test")
}

func TestSetupWithoutTracing(t *testing.T) {
	p, err := Setup(Options{ServiceName: "storygen-test"})
	require.NoError(t, err)
	assert.Nil(t, p.Tracer)
	assert.NoError(t, p.Shutdown(context.Background()))
}
