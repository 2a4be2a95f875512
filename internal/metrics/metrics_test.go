package metrics

import "testing"

func TestNormalizeRoute(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{"/healthz", "/healthz"},
		{"/readyz", "/readyz"},
		{"/metrics", "/metrics"},
		{"/api/v1/objects", "/api/v1/objects"},
		{"/api/v1/history", "/api/v1/history"},
		{"/api/v1/passes/27559", "/api/v1/passes/{catnr}"},
		{"/api/v1/passes/bogus", "/api/v1/passes/{catnr}"},
		{"/api/v1/position/36798", "/api/v1/position/{catnr}"},
		{"/", "other"},
		{"/admin.php", "other"},
		{"/api/v2/passes/27559", "other"},
	}

	for _, tc := range cases {
		if got := normalizeRoute(tc.path); got != tc.want {
			t.Errorf("normalizeRoute(%q) = %q, want %q", tc.path, got, tc.want)
		}
	}
}
