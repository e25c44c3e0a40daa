package config

import "testing"

func TestDomainsResolve(t *testing.T) {
	d := Domains{
		Dev:       "https://dev.example.com",
		Release:   "https://example.com",
		CNDev:     "https://dev.example.cn",
		CNRelease: "https://example.cn",
	}

	tests := []struct {
		env  string
		want string
	}{
		{"prod", d.Release},
		{"Production", d.Release},
		{"cn-prod", d.CNRelease},
		{"PROD_CN", d.CNRelease},
		{"cn", d.CNDev},
		{"cn-staging", d.CNDev},
		{"dev", d.Dev},
		{"", d.Dev},
		{"staging", d.Dev},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			if got := d.Resolve(tt.env); got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.env, got, tt.want)
			}
		})
	}
}
