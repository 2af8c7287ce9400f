package util

import "testing"

func TestCleanAddress(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "removes HTML tags", in: "400 Pine St<wbr><span></span>", want: "400 Pine St"},
		{name: "fixes escaped closing tags", in: `1301 5th Ave<\/span>`, want: "1301 5th Ave"},
		{name: "decodes entities", in: "Pike &amp; 1st", want: "Pike & 1st"},
		{name: "collapses whitespace", in: "  500   Union St\n Seattle ", want: "500 Union St Seattle"},
		{name: "drops country suffix", in: "1000 4th Ave, Seattle, WA 98104, USA", want: "1000 4th Ave, Seattle, WA 98104"},
		{name: "drops long country suffix", in: "1000 4th Ave, Seattle, WA United States", want: "1000 4th Ave, Seattle, WA"},
		{name: "empty stays empty", in: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanAddress(tt.in); got != tt.want {
				t.Errorf("CleanAddress(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDescribeLocation(t *testing.T) {
	addr := " 400 Pine St "
	if got := DescribeLocation(&addr, 1, 2); got != "400 Pine St" {
		t.Errorf("with address = %q", got)
	}
	blank := "<span></span>"
	if got := DescribeLocation(&blank, 47.6062, -122.3321); got != "47.6062, -122.3321" {
		t.Errorf("blank address = %q", got)
	}
	if got := DescribeLocation(nil, 47.6, -122.3); got != "47.6, -122.3" {
		t.Errorf("nil address = %q", got)
	}
}
