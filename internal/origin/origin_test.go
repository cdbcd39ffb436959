package origin

import (
	"reflect"
	"testing"
)

func TestU_Normalize(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"example.com", "https://example.com", false},
		{"https://example.com", "https://example.com", false},
		{"https://Example.COM", "https://example.com", false},
		{"https://example.com:443", "https://example.com", false},
		{"https://example.com:8443", "https://example.com:8443", false},
		{"http://example.com:80", "http://example.com", false},
		{"http://localhost:3000", "http://localhost:3000", false},
		{"https://bücher.de", "https://xn--bcher-kva.de", false},
		{"", "", true},
		{"ftp://example.com", "", true},
		{"https://example.com/path", "", true},
		{"https://example.com:0", "", true},
		{"https://example.com:notaport", "", true},
		{"https://user@example.com", "", true},
	}

	for _, tc := range cases {
		got, err := Normalize(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("Normalize(%q): err=%v wantErr=%v", tc.in, err, tc.wantErr)
			continue
		}
		if err == nil && got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestU_NormalizeSet_DeduplicatesAndSorts(t *testing.T) {
	got, err := NormalizeSet([]string{"b.example.com", "https://a.example.com", "B.EXAMPLE.COM"})
	if err != nil {
		t.Fatalf("NormalizeSet failed: %v", err)
	}
	want := []string{"https://a.example.com", "https://b.example.com"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("NormalizeSet = %v, want %v", got, want)
	}
}

func TestU_NormalizeSet_RejectsInvalidMember(t *testing.T) {
	if _, err := NormalizeSet([]string{"example.com", "ftp://nope"}); err == nil {
		t.Error("expected error for invalid member")
	}
}

func TestU_Contains(t *testing.T) {
	set := []string{"https://acmecorp.com", "https://example.com"}

	if !Contains(set, "example.com") {
		t.Error("bare host should match its https origin")
	}
	if !Contains(set, "https://EXAMPLE.com:443") {
		t.Error("case/port variants should match")
	}
	if Contains(set, "https://other.com") {
		t.Error("unknown origin should not match")
	}
	if Contains(set, "") {
		t.Error("invalid origin should not match")
	}
}

func TestU_IsSuperset(t *testing.T) {
	oldSet := []string{"https://a.com", "https://b.com"}

	if !IsSuperset([]string{"https://a.com", "https://b.com", "https://c.com"}, oldSet) {
		t.Error("grown set should be a superset")
	}
	if !IsSuperset(oldSet, oldSet) {
		t.Error("equal set should be a superset")
	}
	if IsSuperset([]string{"https://a.com"}, oldSet) {
		t.Error("shrunk set must not be a superset")
	}
}
