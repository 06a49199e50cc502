package app

import (
	"testing"
)

func TestMetrics_RegisterAndCount(t *testing.T) {
	t.Parallel()

	m := NewMetrics()
	m.APIRequests.WithLabelValues("GET", "200").Inc()
	m.TokenRefreshes.WithLabelValues("ok").Inc()
	m.ChannelDials.Inc()
	m.ChannelEvents.WithLabelValues("newMessage").Add(3)
	m.OnlineUsers.Set(5)

	mfs, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	want := map[string]bool{
		"loom_api_requests_total":     false,
		"loom_token_refresh_total":    false,
		"loom_realtime_dials_total":   false,
		"loom_realtime_events_total":  false,
		"loom_online_users":           false,
	}
	for _, mf := range mfs {
		if _, ok := want[mf.GetName()]; ok {
			want[mf.GetName()] = true
		}
	}
	for name, seen := range want {
		if !seen {
			t.Fatalf("metric %s not gathered", name)
		}
	}
}
