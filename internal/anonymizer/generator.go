package anonymizer

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"strings"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/ehr/deid/pkg/fhirmodels"
)

// NamePair is a synthetic first/last name.
type NamePair struct {
	First string `json:"first"`
	Last  string `json:"last"`
}

// SyntheticAddress is a synthetic structured postal address.
type SyntheticAddress struct {
	Line       []string `json:"line"`
	City       string   `json:"city"`
	State      string   `json:"state"`
	PostalCode string   `json:"postalCode"`
	Country    string   `json:"country"`
}

// IdentityGenerator synthesizes replacement values. Name, phone, address and
// email values are reproducible for a fixed seed regardless of call order
// and never equal the original they replace; GenericID depends only on the
// original value.
type IdentityGenerator interface {
	Name(family string, given []string, gender string) NamePair
	Phone(original string) string
	Address(original string) SyntheticAddress
	Email(original string) string
	GenericID(original string, length int) string
}

// Placeholders substituted when an original value is empty.
var (
	placeholderName    = NamePair{First: "Anonymous", Last: "Patient"}
	placeholderPhone   = "000-000-0000"
	placeholderAddress = SyntheticAddress{Line: []string{"Unknown"}, City: "Unknown", State: "Unknown", PostalCode: "00000", Country: "US"}
	placeholderEmail   = "anonymous@example.invalid"
)

// PlaceholderID returns the token substituted for an empty identifier.
func PlaceholderID(length int) string {
	return strings.Repeat("0", clampLength(length))
}

// FakerGenerator backs IdentityGenerator with gofakeit. Each value gets its
// own generator seeded from the session seed mixed with a digest of the
// original value.
type FakerGenerator struct {
	seed uint64
}

// NewFakerGenerator returns a generator for the given session seed. A zero
// seed picks a random one, so values are stable only within the process.
func NewFakerGenerator(seed uint64) *FakerGenerator {
	for seed == 0 {
		var b [8]byte
		_, _ = rand.Read(b[:])
		seed = binary.BigEndian.Uint64(b[:])
	}
	return &FakerGenerator{seed: seed}
}

// Seed returns the session seed in use.
func (g *FakerGenerator) Seed() uint64 { return g.seed }

func (g *FakerGenerator) faker(class ValueClass, original string) *gofakeit.Faker {
	sum := sha256.Sum256([]byte(string(class) + "\x00" + original))
	s := g.seed ^ binary.BigEndian.Uint64(sum[:8])
	if s == 0 {
		s = g.seed
	}
	return gofakeit.New(s)
}

// maxRedraws bounds how often a colliding synthetic value is drawn again
// before the placeholder is used.
const maxRedraws = 16

// Name draws a first name from the gender's pool and a surname, skipping any
// value that matches the original family or given names.
func (g *FakerGenerator) Name(family string, given []string, gender string) NamePair {
	if strings.TrimSpace(family) == "" {
		return placeholderName
	}
	originals := append([]string{family}, given...)
	f := g.faker(ClassName, family+"|"+gender)

	var pool []string
	switch gender {
	case fhirmodels.GenderMale:
		pool = maleFirstNames
	case fhirmodels.GenderFemale:
		pool = femaleFirstNames
	default:
		pool = neutralFirstNames
	}
	first := placeholderName.First
	if candidates := excluding(pool, originals); len(candidates) > 0 {
		first = f.RandomString(candidates)
	}

	last := placeholderName.Last
	for i := 0; i < maxRedraws; i++ {
		if v := f.LastName(); !matchesAny(v, originals) {
			last = v
			break
		}
	}
	return NamePair{First: first, Last: last}
}

func (g *FakerGenerator) Phone(original string) string {
	if strings.TrimSpace(original) == "" {
		return placeholderPhone
	}
	f := g.faker(ClassPhone, original)
	want := digits(original)
	for i := 0; i < maxRedraws; i++ {
		v := f.PhoneFormatted()
		if got := digits(v); got != want && (len(want) < 7 || !strings.Contains(got, want)) {
			return v
		}
	}
	return placeholderPhone
}

// Address draws a synthetic address whose street and city do not appear in
// the original.
func (g *FakerGenerator) Address(original string) SyntheticAddress {
	if strings.TrimSpace(original) == "" {
		return placeholderAddress
	}
	f := g.faker(ClassAddress, original)
	lower := strings.ToLower(original)
	for i := 0; i < maxRedraws; i++ {
		street, city := f.Street(), f.City()
		if strings.Contains(lower, strings.ToLower(street)) || strings.Contains(lower, strings.ToLower(city)) {
			continue
		}
		return SyntheticAddress{
			Line:       []string{street},
			City:       city,
			State:      f.State(),
			PostalCode: f.Zip(),
			Country:    "US",
		}
	}
	return placeholderAddress
}

func (g *FakerGenerator) Email(original string) string {
	if strings.TrimSpace(original) == "" {
		return placeholderEmail
	}
	f := g.faker("email", original)
	return strings.ToLower(f.Username()) + "@" + f.RandomString(freeEmailDomains)
}

// GenericID derives a hex token from a SHA-256 digest of the original value.
// It never consults the random source, so ids stay stable across restarts.
func (g *FakerGenerator) GenericID(original string, length int) string {
	return DigestID(original, length)
}

// DigestID is the seed-independent id derivation used for resource ids and
// identifier values.
func DigestID(original string, length int) string {
	if strings.TrimSpace(original) == "" {
		return PlaceholderID(length)
	}
	sum := sha256.Sum256([]byte(original))
	return hex.EncodeToString(sum[:])[:clampLength(length)]
}

func clampLength(n int) int {
	switch {
	case n <= 0:
		return IDLength
	case n > sha256.Size*2:
		return sha256.Size * 2
	}
	return n
}

// minEchoLength is the shortest original checked as a substring of a
// synthetic value; shorter originals must match exactly.
const minEchoLength = 3

// matchesAny reports whether v equals or contains one of the originals,
// ignoring case.
func matchesAny(v string, originals []string) bool {
	lv := strings.ToLower(v)
	for _, o := range originals {
		lo := strings.ToLower(strings.TrimSpace(o))
		if lo == "" {
			continue
		}
		if lv == lo || (len(lo) >= minEchoLength && strings.Contains(lv, lo)) {
			return true
		}
	}
	return false
}

func excluding(pool, originals []string) []string {
	out := make([]string, 0, len(pool))
	for _, p := range pool {
		if !matchesAny(p, originals) {
			out = append(out, p)
		}
	}
	return out
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IDLength is the length of derived resource ids.
const IDLength = 16

var maleFirstNames = []string{
	"James", "Robert", "John", "Michael", "David", "William", "Richard", "Joseph",
	"Thomas", "Charles", "Christopher", "Daniel", "Matthew", "Anthony", "Mark",
	"Donald", "Steven", "Paul", "Andrew", "Joshua", "Kenneth", "Kevin", "Brian",
	"George", "Timothy", "Ronald", "Edward", "Jason", "Jeffrey", "Ryan",
}

var femaleFirstNames = []string{
	"Mary", "Patricia", "Jennifer", "Linda", "Elizabeth", "Barbara", "Susan",
	"Jessica", "Sarah", "Karen", "Lisa", "Nancy", "Betty", "Margaret", "Sandra",
	"Ashley", "Kimberly", "Emily", "Donna", "Michelle", "Carol", "Amanda",
	"Dorothy", "Melissa", "Deborah", "Stephanie", "Rebecca", "Sharon", "Laura", "Cynthia",
}

var neutralFirstNames = []string{
	"Alex", "Jordan", "Taylor", "Morgan", "Casey", "Riley", "Jamie", "Avery",
	"Quinn", "Parker", "Rowan", "Sage", "Skyler", "Emerson", "Finley", "Hayden",
	"Kendall", "Logan", "Reese", "Dakota",
}

var freeEmailDomains = []string{"gmail.com", "yahoo.com", "hotmail.com", "outlook.com"}
