//go:build go1.18

package domain

import "testing"

// FuzzParsePlayerID checks that parsing never panics and that accepted ids
// round-trip unchanged.
func FuzzParsePlayerID(f *testing.F) {
	f.Add("")
	f.Add("80351110224678912")
	f.Add("'; DROP TABLE events;--")
	f.Add(string([]byte{0x00, 0x01, 0x02}))
	f.Add("123\x00456")

	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParsePlayerID(input)
		if err != nil {
			return
		}
		roundTrip, err := ParsePlayerID(id.String())
		if err != nil {
			t.Errorf("valid id failed round-trip: %v", err)
		}
		if roundTrip != id {
			t.Error("round-trip changed id value")
		}
	})
}
