package store

import (
	"strings"
	"testing"

	"github.com/Harshitk-cp/iotpilot/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestContainsPattern(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"gateway", `%gateway%`},
		{"100%", `%100\%%`},
		{"pi_01", `%pi\_01%`},
		{`C:\edge`, `%C:\\edge%`},
		{`\%_`, `%\\\%\_%`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, containsPattern(tt.in), tt.in)
	}
}

func TestDeviceListQuery(t *testing.T) {
	cust := uuid.New()

	query, args := deviceListQuery(cust, domain.DeviceFilter{})
	assert.Equal(t, []any{cust}, args)
	assert.NotContains(t, query, "ILIKE")
	assert.NotContains(t, query, "LIMIT")

	query, args = deviceListQuery(cust, domain.DeviceFilter{
		Status: domain.DeviceStatusOnline,
		Search: "rack_1%",
		Limit:  50,
		Offset: 100,
	})
	assert.Equal(t, []any{cust, domain.DeviceStatusOnline, `%rack\_1\%%`, 50, 100}, args)
	assert.Contains(t, query, "status = $2")
	assert.Equal(t, 4, strings.Count(query, "ILIKE $3 ESCAPE '\\'"))
	assert.True(t, strings.HasSuffix(query, "ORDER BY name LIMIT $4 OFFSET $5"), query)
}
