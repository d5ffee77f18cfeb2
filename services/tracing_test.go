package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return rec
}

func endedSpan(t *testing.T, rec *tracetest.SpanRecorder, name string) sdktrace.ReadOnlySpan {
	t.Helper()
	for _, s := range rec.Ended() {
		if s.Name() == name {
			return s
		}
	}
	require.Failf(t, "span not recorded", "%s", name)
	return nil
}

func TestDailyMissionSpanCoversProvisioning(t *testing.T) {
	l := newTestLedger(t)
	rec := recordSpans(t)

	_, err := l.missions.GetDailyMissionProgress(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	span := endedSpan(t, rec, "MissionService.GetDailyMissionProgress")
	assert.Equal(t, codes.Error, span.Status().Code)
}

func TestDailyMissionSpanRecordsOutcome(t *testing.T) {
	l := newTestLedger(t)
	rec := recordSpans(t)

	_, err := l.missions.GetDailyMissionProgress(context.Background(), "user-1")
	assert.ErrorIs(t, err, ErrMissionNotFound)

	span := endedSpan(t, rec, "MissionService.GetDailyMissionProgress")
	assert.Equal(t, codes.Error, span.Status().Code)
	assert.Len(t, span.Events(), 1)
}
