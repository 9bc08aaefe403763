package sparse

import "testing"

func TestGenerateDeterministic(t *testing.T) {
	g := NewGenerator(0)
	v1 := g.Generate("func getUserById(id int) User { return db.Find(id) }")
	v2 := g.Generate("func getUserById(id int) User { return db.Find(id) }")

	if len(v1.Indices) != len(v1.Values) {
		t.Fatalf("indices/values length mismatch: %d vs %d", len(v1.Indices), len(v1.Values))
	}
	if len(v1.Indices) != len(v2.Indices) {
		t.Fatal("expected identical input to produce identical output length")
	}
	for i := range v1.Indices {
		if v1.Indices[i] != v2.Indices[i] || v1.Values[i] != v2.Values[i] {
			t.Fatal("expected identical input to produce identical output")
		}
	}
}

func TestGenerateEmptyInput(t *testing.T) {
	g := NewGenerator(0)
	v := g.Generate("")
	if len(v.Indices) != 0 || len(v.Values) != 0 {
		t.Fatal("expected empty arrays for empty input")
	}
}

func TestGenerateAllValuesPositive(t *testing.T) {
	g := NewGenerator(0)
	v := g.Generate("the quick brown fox jumps over the lazy dog")
	for _, val := range v.Values {
		if val <= 0 {
			t.Fatalf("expected strictly positive value, got %f", val)
		}
	}
}

func TestTrainChangesIDF(t *testing.T) {
	g := NewGenerator(0)
	before := g.Generate("rare_token common_token")

	corpus := []string{
		"common_token appears in every document",
		"common_token here too",
		"common_token and here as well",
	}
	g.Train(corpus)
	if !g.IsTrained() {
		t.Fatal("expected generator to report trained after Train")
	}

	after := g.Generate("rare_token common_token")
	if len(before.Indices) != len(after.Indices) {
		t.Fatal("expected same term set before/after training")
	}
}

func TestIndicesWithinSpace(t *testing.T) {
	space := uint64(1024)
	g := NewGenerator(space)
	v := g.Generate("alpha beta gamma delta epsilon zeta eta theta")
	for _, idx := range v.Indices {
		if idx >= space {
			t.Fatalf("index %d out of configured space %d", idx, space)
		}
	}
}
