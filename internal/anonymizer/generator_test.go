package anonymizer

import (
	"encoding/hex"
	"fmt"
	"strings"
	"testing"

	"github.com/ehr/deid/pkg/fhirmodels"
)

func contains(pool []string, s string) bool {
	for _, p := range pool {
		if p == s {
			return true
		}
	}
	return false
}

func TestFakerGenerator_ReproducibleUnderSeed(t *testing.T) {
	a := NewFakerGenerator(42)
	b := NewFakerGenerator(42)

	// Different call order on each generator.
	pa1 := a.Phone("555-0100")
	na := a.Name("Smith", []string{"John"}, fhirmodels.GenderMale)
	nb := b.Name("Smith", []string{"John"}, fhirmodels.GenderMale)
	pb1 := b.Phone("555-0100")

	if na != nb {
		t.Errorf("expected same name, got %+v and %+v", na, nb)
	}
	if pa1 != pb1 {
		t.Errorf("expected same phone, got %q and %q", pa1, pb1)
	}
	addrA := a.Address("1 Main St")
	addrB := b.Address("1 Main St")
	if addrA.City != addrB.City || addrA.PostalCode != addrB.PostalCode || addrA.Line[0] != addrB.Line[0] {
		t.Errorf("expected same address, got %+v and %+v", addrA, addrB)
	}
}

func TestFakerGenerator_GenderPools(t *testing.T) {
	g := NewFakerGenerator(7)
	for _, family := range []string{"Smith", "Jones", "Garcia", "Nguyen"} {
		if n := g.Name(family, nil, fhirmodels.GenderMale); !contains(maleFirstNames, n.First) {
			t.Errorf("male name %q not from male pool", n.First)
		}
		if n := g.Name(family, nil, fhirmodels.GenderFemale); !contains(femaleFirstNames, n.First) {
			t.Errorf("female name %q not from female pool", n.First)
		}
		if n := g.Name(family, nil, fhirmodels.GenderUnknown); !contains(neutralFirstNames, n.First) {
			t.Errorf("neutral name %q not from neutral pool", n.First)
		}
	}
}

func TestFakerGenerator_EmptyInputPlaceholders(t *testing.T) {
	g := NewFakerGenerator(1)
	if n := g.Name("  ", nil, fhirmodels.GenderMale); n != placeholderName {
		t.Errorf("expected placeholder name, got %+v", n)
	}
	if p := g.Phone(""); p != placeholderPhone {
		t.Errorf("expected placeholder phone, got %q", p)
	}
	if e := g.Email(""); e != placeholderEmail {
		t.Errorf("expected placeholder email, got %q", e)
	}
	if a := g.Address(""); a.City != placeholderAddress.City {
		t.Errorf("expected placeholder address, got %+v", a)
	}
	if id := g.GenericID("", 12); id != strings.Repeat("0", 12) {
		t.Errorf("expected placeholder id, got %q", id)
	}
}

func TestFakerGenerator_Email(t *testing.T) {
	g := NewFakerGenerator(3)
	email := g.Email("john@example.org")
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		t.Fatalf("expected user@domain, got %q", email)
	}
	if !contains(freeEmailDomains, email[at+1:]) {
		t.Errorf("unexpected domain in %q", email)
	}
}

func TestGenericID_IndependentOfSeed(t *testing.T) {
	a := NewFakerGenerator(1).GenericID("abc123", 16)
	b := NewFakerGenerator(99).GenericID("abc123", 16)
	if a != b {
		t.Fatalf("expected seed-independent ids, got %q and %q", a, b)
	}
	if len(a) != 16 {
		t.Errorf("expected 16 chars, got %d", len(a))
	}
	if _, err := hex.DecodeString(a); err != nil {
		t.Errorf("expected hex token, got %q", a)
	}
	if a == DigestID("abc124", 16) {
		t.Error("expected different inputs to yield different ids")
	}
}

func TestDigestID_LengthClamp(t *testing.T) {
	if n := len(DigestID("x", 0)); n != IDLength {
		t.Errorf("expected default length %d, got %d", IDLength, n)
	}
	if n := len(DigestID("x", 500)); n != 64 {
		t.Errorf("expected clamp to 64, got %d", n)
	}
}

func TestNewFakerGenerator_ZeroSeedRandomized(t *testing.T) {
	g := NewFakerGenerator(0)
	if g.Seed() == 0 {
		t.Fatal("expected a non-zero session seed")
	}
}

var commonSurnames = []string{
	"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia", "Miller", "Davis",
	"Rodriguez", "Martinez", "Hernandez", "Lopez", "Wilson", "Anderson", "Thomas",
	"Taylor", "Moore", "Jackson", "Martin", "Lee", "Thompson", "White", "Harris",
}

func TestFakerGenerator_NameNeverEchoesOriginal(t *testing.T) {
	for seed := uint64(1); seed <= 50; seed++ {
		g := NewFakerGenerator(seed)
		for _, family := range commonSurnames {
			for _, pool := range [][]string{maleFirstNames, femaleFirstNames} {
				gender := fhirmodels.GenderMale
				if pool[0] == femaleFirstNames[0] {
					gender = fhirmodels.GenderFemale
				}
				for _, given := range pool {
					n := g.Name(family, []string{given}, gender)
					if strings.EqualFold(n.Last, family) {
						t.Fatalf("seed %d: surname %q returned unchanged", seed, family)
					}
					if strings.EqualFold(n.First, given) {
						t.Fatalf("seed %d: first name %q returned unchanged", seed, given)
					}
				}
			}
		}
	}
}

func TestFakerGenerator_PhoneAndAddressNeverEchoOriginal(t *testing.T) {
	g := NewFakerGenerator(42)
	for i := 0; i < 200; i++ {
		orig := g.Phone(fmt.Sprintf("555-%04d", i))
		if got := g.Phone(orig); digits(got) == digits(orig) {
			t.Fatalf("phone %q returned unchanged", orig)
		}
		a := g.Address(orig)
		key := `{"city":"` + a.City + `","line":["` + a.Line[0] + `"]}`
		b := g.Address(key)
		if b.City == a.City || b.Line[0] == a.Line[0] {
			t.Fatalf("address %s echoed in %+v", key, b)
		}
	}
}
