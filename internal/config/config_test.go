package config

import "testing"

func TestSettingsValidateClampsRanges(t *testing.T) {
	cases := []struct {
		name string
		in   Settings
		want Settings
	}{
		{
			name: "below range",
			in:   Settings{AdLimit: 1, MaxSignups: -1, MinDelay: 1, MaxDelay: 1},
			want: Settings{AdLimit: 5, MaxSignups: 1, MinDelay: 5, MaxDelay: 10},
		},
		{
			name: "above range",
			in:   Settings{AdLimit: 500, MaxSignups: 999, MinDelay: 999, MaxDelay: 999},
			want: Settings{AdLimit: 100, MaxSignups: 100, MinDelay: 60, MaxDelay: 120},
		},
		{
			name: "zero uses documented default",
			in:   Settings{},
			want: Settings{AdLimit: 20, MaxSignups: 30, MinDelay: 10, MaxDelay: 30},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := tc.in
			s.Validate()
			if s.AdLimit != tc.want.AdLimit || s.MaxSignups != tc.want.MaxSignups ||
				s.MinDelay != tc.want.MinDelay || s.MaxDelay != tc.want.MaxDelay {
				t.Fatalf("got %+v, want clamped %+v", s, tc.want)
			}
		})
	}
}

func TestCredentialsFullName(t *testing.T) {
	c := Credentials{FirstName: "Ada", LastName: "Lovelace"}
	if got := c.FullName(); got != "Ada Lovelace" {
		t.Fatalf("FullName() = %q", got)
	}
	only := Credentials{FirstName: "Ada"}
	if got := only.FullName(); got != "Ada" {
		t.Fatalf("FullName() = %q", got)
	}
}

func TestCredentialsPhoneDefaultsCountryCode(t *testing.T) {
	c := Credentials{Phone: "5551234"}
	p := c.RenderPhone()
	if p.CountryCode != "+1" || p.Full != "+15551234" {
		t.Fatalf("RenderPhone() = %+v", p)
	}
}
