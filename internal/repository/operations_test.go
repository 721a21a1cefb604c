package repository

import (
	"net/http"
	"testing"
)

func TestIsRangeHonored(t *testing.T) {
	cases := []struct {
		name           string
		requestedRange bool
		status         int
		acceptRanges   string
		want           bool
	}{
		{
			name:           "no range requested",
			requestedRange: false,
			status:         http.StatusOK,
			want:           false,
		},
		{
			name:           "server resumed correctly",
			requestedRange: true,
			status:         http.StatusPartialContent,
			acceptRanges:   "bytes",
			want:           true,
		},
		{
			name:           "server ignored the range and sent the full body",
			requestedRange: true,
			status:         http.StatusOK,
			want:           false,
		},
		{
			name:           "206 without an Accept-Ranges header",
			requestedRange: true,
			status:         http.StatusPartialContent,
			want:           false,
		},
		{
			name:           "Accept-Ranges is case- and whitespace-insensitive",
			requestedRange: true,
			status:         http.StatusPartialContent,
			acceptRanges:   " Bytes ",
			want:           true,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			resp := &http.Response{StatusCode: c.status, Header: http.Header{}}
			if c.acceptRanges != "" {
				resp.Header.Set("Accept-Ranges", c.acceptRanges)
			}
			if got := isRangeHonored(c.requestedRange, resp); got != c.want {
				t.Errorf("isRangeHonored(%v, status=%d, Accept-Ranges=%q) = %v, want %v",
					c.requestedRange, c.status, c.acceptRanges, got, c.want)
			}
		})
	}
}
