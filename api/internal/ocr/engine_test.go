package ocr

import "testing"

func TestAcceptCode(t *testing.T) {
	cases := []struct {
		in     string
		want   string
		accept bool
	}{
		{"4 006381 333931", "4006381333931", true},
		{"EAN: 9780-2013-7962\n", "978020137962", true},
		{"12345678", "12345678", true},
		{"1234", "", false},
		{"1234567", "", false},
		{"", "", false},
		{"٤٥٦٧٨٩٠١٢", "", false}, // non-ASCII digits are ignored
	}
	for _, c := range cases {
		got, ok := AcceptCode(c.in)
		if ok != c.accept || got != c.want {
			t.Errorf("AcceptCode(%q) = %q,%v want %q,%v", c.in, got, ok, c.want, c.accept)
		}
	}
}
