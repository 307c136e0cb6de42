package peer

import (
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
)

// Tunables holds the AmneziaWG obfuscation parameters shared by the server
// and every exported profile. They are generated once on first run and kept
// stable afterwards, since changing them strands every issued profile.
type Tunables struct {
	Jc   int    `json:"jc"`
	Jmin int    `json:"jmin"`
	Jmax int    `json:"jmax"`
	S1   int    `json:"s1"`
	S2   int    `json:"s2"`
	H1   uint32 `json:"h1"`
	H2   uint32 `json:"h2"`
	H3   uint32 `json:"h3"`
	H4   uint32 `json:"h4"`
}

// GenerateTunables picks a fresh random parameter set within the ranges the
// protocol accepts.
func GenerateTunables() (Tunables, error) {
	jc, err := randInt(4, 12)
	if err != nil {
		return Tunables{}, err
	}

	s1, err := randInt(15, 150)
	if err != nil {
		return Tunables{}, err
	}

	// The handshake initiation grows by S1+56 bytes, so S2 must not land on
	// that size or responses become distinguishable.
	var s2 int
	for {
		s2, err = randInt(15, 150)
		if err != nil {
			return Tunables{}, err
		}
		if s2 != s1+56 {
			break
		}
	}

	// Header words must be distinct and clear of the four reserved
	// message types.
	headers := make([]uint32, 0, 4)
	seen := make(map[uint32]bool)
	for len(headers) < 4 {
		h, err := randUint32(5, math.MaxInt32)
		if err != nil {
			return Tunables{}, err
		}
		if !seen[h] {
			seen[h] = true
			headers = append(headers, h)
		}
	}

	return Tunables{
		Jc:   jc,
		Jmin: 8,
		Jmax: 80,
		S1:   s1,
		S2:   s2,
		H1:   headers[0],
		H2:   headers[1],
		H3:   headers[2],
		H4:   headers[3],
	}, nil
}

// Merge overlays non-zero fields from o. Operators can pin individual
// parameters from the environment without losing the generated rest.
func (t Tunables) Merge(o Tunables) Tunables {
	if o.Jc != 0 {
		t.Jc = o.Jc
	}
	if o.Jmin != 0 {
		t.Jmin = o.Jmin
	}
	if o.Jmax != 0 {
		t.Jmax = o.Jmax
	}
	if o.S1 != 0 {
		t.S1 = o.S1
	}
	if o.S2 != 0 {
		t.S2 = o.S2
	}
	if o.H1 != 0 {
		t.H1 = o.H1
	}
	if o.H2 != 0 {
		t.H2 = o.H2
	}
	if o.H3 != 0 {
		t.H3 = o.H3
	}
	if o.H4 != 0 {
		t.H4 = o.H4
	}
	return t
}

// Validate checks the parameter set against protocol limits.
func (t Tunables) Validate() error {
	if t.Jc < 1 || t.Jc > 128 {
		return fmt.Errorf("jc out of range: %d (must be 1-128)", t.Jc)
	}
	if t.Jmin < 0 || t.Jmax > 1280 || t.Jmin >= t.Jmax {
		return fmt.Errorf("junk size range invalid: jmin=%d jmax=%d", t.Jmin, t.Jmax)
	}
	if t.S1 < 0 || t.S1 > 1132 {
		return fmt.Errorf("s1 out of range: %d (must be 0-1132)", t.S1)
	}
	if t.S2 < 0 || t.S2 > 1188 {
		return fmt.Errorf("s2 out of range: %d (must be 0-1188)", t.S2)
	}
	if t.S1+56 == t.S2 {
		return fmt.Errorf("s2 must not equal s1+56")
	}

	headers := []uint32{t.H1, t.H2, t.H3, t.H4}
	seen := make(map[uint32]bool)
	for i, h := range headers {
		if h < 5 {
			return fmt.Errorf("h%d collides with a reserved message type: %d", i+1, h)
		}
		if seen[h] {
			return fmt.Errorf("header values must be distinct, h%d repeats %d", i+1, h)
		}
		seen[h] = true
	}

	return nil
}

func randInt(min, max int) (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max-min+1)))
	if err != nil {
		return 0, err
	}
	return min + int(n.Int64()), nil
}

func randUint32(min, max uint32) (uint32, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max-min+1)))
	if err != nil {
		return 0, err
	}
	return min + uint32(n.Int64()), nil
}
