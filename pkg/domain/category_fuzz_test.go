//go:build go1.18

package domain

import "testing"

// FuzzParseCategory checks that parsing never panics and that accepted values
// always round-trip.
func FuzzParseCategory(f *testing.F) {
	f.Add("")
	f.Add("field_officer")
	f.Add(" SUPERVISOR ")
	f.Add("'; DROP TABLE accounts;--")
	f.Add(string([]byte{0x00, 0x01, 0x02}))

	f.Fuzz(func(t *testing.T, input string) {
		c, err := ParseCategory(input)
		if err != nil {
			return
		}
		if !c.IsValid() {
			t.Errorf("accepted invalid category %q", c)
		}
		again, err := ParseCategory(c.String())
		if err != nil || again != c {
			t.Errorf("round-trip changed category: %q -> %q (%v)", c, again, err)
		}
	})
}
