package kb

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestBuiltin(t *testing.T) {
	k := Builtin()
	if k.Len() != 12 {
		t.Fatalf("expected 12 entities, got %d", k.Len())
	}
	wantIDs := []string{"Q1", "Q2", "Q3", "Q4", "Q5", "Q6", "Q7", "Q8", "Q9", "Q10", "Q11", "Q12"}
	if diff := cmp.Diff(wantIDs, k.IDs()); diff != "" {
		t.Errorf("IDs mismatch (-want +got):\n%s", diff)
	}

	musk, ok := k.Get("Q1")
	if !ok {
		t.Fatal("Q1 missing")
	}
	if musk.Name != "Elon Musk" || musk.Type != TypePerson {
		t.Errorf("unexpected Q1: %+v", musk)
	}
	if musk.Wikipedia != "https://en.wikipedia.org/wiki/Elon_Musk" {
		t.Errorf("unexpected wikipedia link %q", musk.Wikipedia)
	}
	if problems := k.Validate(); len(problems) != 0 {
		t.Errorf("builtin table has dangling links: %v", problems)
	}
}

func TestBuiltinReturnsCopy(t *testing.T) {
	a := Builtin()
	if err := a.Add(Entity{ID: "Q99", Name: "Extra"}); err != nil {
		t.Fatal(err)
	}
	if Builtin().Len() != 12 {
		t.Fatal("mutating one builtin copy leaked into another")
	}
}

func TestAddErrors(t *testing.T) {
	tests := []struct {
		name string
		e    Entity
		want error
	}{
		{"missing id", Entity{Name: "Nobody"}, ErrInvalidEntity},
		{"missing name", Entity{ID: "Q50"}, ErrInvalidEntity},
		{"blank name", Entity{ID: "Q50", Name: "   "}, ErrInvalidEntity},
		{"duplicate", Entity{ID: "Q1", Name: "Again"}, ErrDuplicateEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := Builtin()
			err := k.Add(tt.e)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if k.Len() != 12 {
				t.Fatalf("failed add changed the table size to %d", k.Len())
			}
		})
	}
}

func TestValidateReportsDanglingLinks(t *testing.T) {
	k, err := New(
		Entity{ID: "A", Name: "Alpha", Linked: []string{"B", "Z"}},
		Entity{ID: "B", Name: "Beta", Linked: []string{"B"}},
	)
	if err != nil {
		t.Fatal(err)
	}
	problems := k.Validate()
	if len(problems) != 2 {
		t.Fatalf("expected 2 problems, got %v", problems)
	}
}

func TestNameIndexLaterEntryWins(t *testing.T) {
	k, err := New(
		Entity{ID: "A", Name: "Alpha", Aliases: []string{"Shared"}},
		Entity{ID: "B", Name: "Beta", Aliases: []string{"Shared"}},
	)
	if err != nil {
		t.Fatal(err)
	}
	idx := BuildNameIndex(k)
	id, ok := idx.Lookup("Shared")
	if !ok || id != "B" {
		t.Fatalf("expected Shared -> B, got %q (ok=%v)", id, ok)
	}
	if diff := cmp.Diff([]string{"Alpha", "Shared", "Beta"}, idx.Keys()); diff != "" {
		t.Errorf("key order mismatch (-want +got):\n%s", diff)
	}
}

func TestNameIndexLookupIsCaseSensitive(t *testing.T) {
	idx := BuildNameIndex(Builtin())
	if id, ok := idx.Lookup("US"); !ok || id != "Q4" {
		t.Fatalf("expected US -> Q4, got %q", id)
	}
	if _, ok := idx.Lookup("us"); ok {
		t.Fatal("lowercase us should not be an exact hit")
	}
	if idx.Len() != 35 {
		t.Errorf("expected 35 keys, got %d", idx.Len())
	}
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"Elonn Mask", "Elon Musk", 200.0 * 8 / 19},
		{"Russian", "Russia", 200.0 * 6 / 13},
		{"Musk", "musk", 100},
		{"Trump Donald", "Donald Trump", 95},
		{"Donald J Trump", "Donald Trump", 95},
		// One string is 1.6 times longer: the substring match scores 100*0.9.
		{"Republican", "Republican Party", 90},
		{"Russian", "Russian Federation", 90},
		// Eight or more times longer: partial matches are scaled by 0.6.
		{"AI", "OpenAI Research Laboratory", 60},
		{"", "Elon Musk", 0},
	}
	for _, tt := range tests {
		got := Similarity(tt.a, tt.b)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Similarity(%q, %q) = %.4f, want %.4f", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestStrictRatioIgnoresSubstrings(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"republican", "republican party", 200.0 * 10 / 26},
		{"the", "the wall street journal", 200.0 * 3 / 26},
		{"trump donald", "donald trump", 95},
		{"musk", "musk", 100},
	}
	for _, tt := range tests {
		got := StrictRatio(tt.a, tt.b)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("StrictRatio(%q, %q) = %.4f, want %.4f", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestPartialRatio(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"musk", "elon musk", 100},
		{"elon musk", "musk", 100},
		// Best window "mask" shares three of four runes.
		{"musk", "elonn mask", 75},
		{"", "elon", 0},
	}
	for _, tt := range tests {
		got := partialRatio(tt.a, tt.b)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("partialRatio(%q, %q) = %.4f, want %.4f", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	tests := map[string]string{
		"Tesla, Inc.":     "tesla inc",
		"  V. Putin ":     "v putin",
		"Trump’s":         "trump s",
		"Space-X   Corp.": "space x corp",
	}
	for in, want := range tests {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBest(t *testing.T) {
	idx := BuildNameIndex(Builtin())
	tests := []struct {
		query  string
		wantID string
		found  bool
	}{
		{"Elonn Mask", "Q1", true},
		{"Vlademir Poutin", "Q5", true},
		{"Russian", "Q6", true},
		{"American", "Q4", true},
		{"Barak Obamma", "Q7", true},
		{"Republican", "Q9", true},
		{"zzzz qqqq", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			key, score, ok := idx.Best(tt.query, 80)
			if ok != tt.found {
				t.Fatalf("found=%v, want %v (key %q score %.1f)", ok, tt.found, key, score)
			}
			if !ok {
				return
			}
			id, _ := idx.Lookup(key)
			if id != tt.wantID {
				t.Fatalf("%q resolved via %q to %s, want %s", tt.query, key, id, tt.wantID)
			}
			if score < 80 {
				t.Fatalf("score %.1f below cutoff", score)
			}
		})
	}
}

func TestFileRoundTrip(t *testing.T) {
	for _, ext := range []string{".json", ".yaml", ".xlsx"} {
		t.Run(ext, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "kb"+ext)
			want := Builtin()
			if err := SaveFile(path, want); err != nil {
				t.Fatalf("saving: %v", err)
			}
			got, err := LoadFile(path)
			if err != nil {
				t.Fatalf("loading: %v", err)
			}
			if diff := cmp.Diff(want.Entities(), got.Entities(), cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadJSONList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "list.json")
	body := `[{"id":"A","name":"Alpha","linked":["B"]},{"id":"B","name":"Beta","type":"Company"}]`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	k, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if k.Len() != 2 {
		t.Fatalf("expected 2 entities, got %d", k.Len())
	}
	if b, _ := k.Get("B"); b.Type != TypeCompany {
		t.Errorf("expected Company, got %q", b.Type)
	}
}

func TestLoadYAMLList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "list.yml")
	body := "- id: A\n  name: Alpha\n  aliases: [Al]\n- id: B\n  name: Beta\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	k, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	a, _ := k.Get("A")
	if diff := cmp.Diff([]string{"Al"}, a.Aliases); diff != "" {
		t.Errorf("aliases mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadUnsupported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kb.csv")
	if err := os.WriteFile(path, []byte("id,name\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}
