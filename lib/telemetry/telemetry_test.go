package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestSetupWithoutEndpoints(t *testing.T) {
	ctx := context.Background()
	tel, err := Setup(ctx, "guapassist-test", Config{})
	require.NoError(t, err)
	require.NotNil(t, tel.TracerProvider)
	require.NotNil(t, tel.MeterProvider)

	_, span := otel.Tracer("guapassist.test").Start(ctx, "noop")
	require.True(t, span.SpanContext().IsValid())
	span.End()

	require.NoError(t, tel.Shutdown(ctx))
}

func TestShutdownZeroValue(t *testing.T) {
	require.NoError(t, Telemetry{}.Shutdown(context.Background()))
}

func TestSetupForTestingOnce(t *testing.T) {
	first := SetupForTesting(t, "guapassist-once")
	second := SetupForTesting(t, "guapassist-once")
	second()
	first()
}
