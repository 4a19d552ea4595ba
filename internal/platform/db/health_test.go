package db

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestPoolStats_HealthyFollowsConnCount(t *testing.T) {
	cases := []struct {
		name  string
		stats PoolStats
		want  bool
	}{
		{
			name: "active pool",
			stats: PoolStats{
				TotalConns: 10, IdleConns: 5, AcquiredConns: 5,
				MaxConns: 20, AcquireCount: 100,
				AcquireDuration: "1.5s", Healthy: true,
			},
			want: true,
		},
		{
			name: "drained pool",
			stats: PoolStats{
				MaxConns: 20, AcquireDuration: "0s", Healthy: false,
			},
			want: false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.stats.Healthy != tc.want {
				t.Errorf("Healthy = %v, want %v", tc.stats.Healthy, tc.want)
			}
		})
	}
}

func TestHealthResponse_JSONShape(t *testing.T) {
	resp := healthResponse{
		Status:    "healthy",
		CheckedAt: time.Date(2027, 3, 1, 9, 0, 0, 0, time.UTC),
		Pool: &PoolStats{
			TotalConns: 3, IdleConns: 2, AcquiredConns: 1,
			MaxConns: 10, AcquireCount: 42,
			AcquireDuration: "250ms", Healthy: true,
		},
	}
	b, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	body := string(b)

	for _, want := range []string{
		`"status":"healthy"`,
		`"checked_at":"2027-03-01T09:00:00Z"`,
		`"total_conns":3`,
		`"acquire_duration":"250ms"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("health JSON missing %s\n%s", want, body)
		}
	}
	if strings.Contains(body, `"error"`) {
		t.Error("empty error must be omitted from healthy response")
	}
}
