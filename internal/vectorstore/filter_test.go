package vectorstore

import "testing"

func TestGlobToRegex(t *testing.T) {
	cases := map[string]string{
		"*.go":           `.*\.go`,
		"internal/*.go":  `internal/.*\.go`,
		"a?.go":          `a.\.go`,
		"no_glob_at_all": "no_glob_at_all",
	}
	for glob, want := range cases {
		if got := GlobToRegex(glob); got != want {
			t.Errorf("GlobToRegex(%q) = %q, want %q", glob, got, want)
		}
	}
}

func TestFilterMatchesEquals(t *testing.T) {
	f := &Filter{Equals: map[string]string{"language": "go"}}
	nf := toNative(f)

	if !nf.matches(map[string]any{"language": "go"}) {
		t.Error("expected match on equal value")
	}
	if nf.matches(map[string]any{"language": "python"}) {
		t.Error("expected no match on differing value")
	}
	if nf.matches(map[string]any{}) {
		t.Error("expected no match when key absent")
	}
}

func TestFilterMatchesAnyOf(t *testing.T) {
	f := &Filter{AnyOf: map[string][]string{"fileExtension": {".go", ".ts"}}}
	nf := toNative(f)

	if !nf.matches(map[string]any{"fileExtension": ".ts"}) {
		t.Error("expected match for value in any-of set")
	}
	if nf.matches(map[string]any{"fileExtension": ".py"}) {
		t.Error("expected no match for value outside any-of set")
	}
}

func TestNilFilterMatchesEverything(t *testing.T) {
	nf := toNative(nil)
	if !nf.matches(map[string]any{"anything": "goes"}) {
		t.Error("expected nil filter to match everything")
	}
}
