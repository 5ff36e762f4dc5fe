package utils

import "testing"

func TestParseAmount(t *testing.T) {
	cases := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "plain", input: "16.04", want: "16.04"},
		{name: "thousands separator", input: "1,234.50", want: "1234.5"},
		{name: "halfwidth yen sign", input: "¥17.00", want: "17"},
		{name: "fullwidth yen sign", input: "￥17.00", want: "17"},
		{name: "yuan suffix", input: "100 元", want: "100"},
		{name: "surrounding whitespace", input: "  50.00  ", want: "50"},
		{name: "negative", input: "-5.25", want: "-5.25"},
		{name: "integer", input: "200", want: "200"},
		{name: "empty", input: "", wantErr: true},
		{name: "only currency glyph", input: "¥", wantErr: true},
		{name: "letters only", input: "abc", wantErr: true},
		{name: "two decimal points", input: "1.2.3", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseAmount(tc.input)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ParseAmount(%q) = %s, want error", tc.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAmount(%q) returned error: %v", tc.input, err)
			}
			if got.String() != tc.want {
				t.Errorf("ParseAmount(%q) = %s, want %s", tc.input, got, tc.want)
			}
		})
	}
}

func TestParseAmountExactness(t *testing.T) {
	// 16.04 is not representable as a binary float; the parse must keep it
	// exact.
	got, err := ParseAmount("16.04")
	if err != nil {
		t.Fatalf("ParseAmount returned error: %v", err)
	}
	if got.StringFixed(2) != "16.04" {
		t.Errorf("ParseAmount(\"16.04\").StringFixed(2) = %s, want 16.04", got.StringFixed(2))
	}
}
