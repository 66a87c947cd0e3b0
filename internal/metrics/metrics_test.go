package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestParseHeaders(t *testing.T) {
	headers := parseHeaders("signoz-ingestion-key=abc, x-tenant = shop ,broken")
	assert.Equal(t, map[string]string{
		"signoz-ingestion-key": "abc",
		"x-tenant":             "shop",
	}, headers)
	assert.Empty(t, parseHeaders(""))
}

func TestNoopMetricsRecord(t *testing.T) {
	m := NewNoopMetrics()
	require.NotNil(t, m)

	ctx := context.Background()
	assert.NotPanics(t, func() {
		m.RecordDBQuery(ctx, "SELECT", "clothes", "SELECT 1", time.Now(), true)
		m.RecordTransition(ctx, "pending", "approved")
		m.RecordStock(ctx, 7, 3)
		m.RecordEmail(ctx, "approved", false)
	})
}

func TestWithServiceName(t *testing.T) {
	m := NewNoopMetrics()
	attrs := m.WithServiceName([]attribute.KeyValue{attribute.String("k", "v")})
	require.Len(t, attrs, 2)
	assert.Equal(t, attribute.String("service.name", "rentify"), attrs[1])
}
