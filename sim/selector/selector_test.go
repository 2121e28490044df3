package selector

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Expansion(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"single literal", "/a", []string{"/a"}},
		{"nested literals", "/lpu0/out/gpot", []string{"/lpu0/out/gpot"}},
		{"integer range", "/a[0:3]", []string{"/a[0]", "/a[1]", "/a[2]"}},
		{"string list after slash", "/a/[b,c]", []string{"/a/b", "/a/c"}},
		{"string list without slash", "/a[b,c]/d", []string{"/a/b/d", "/a/c/d"}},
		{"mixed list", "/x[0,2:4,y]", []string{"/x[0]", "/x[2]", "/x[3]", "/x/y"}},
		{"combinatorial", "/a[0:2]/[p,q]", []string{"/a[0]/p", "/a[0]/q", "/a[1]/p", "/a[1]/q"}},
		{"comma separated paths", "/a,/b[1]", []string{"/a", "/b[1]"}},
		{"whitespace ignored", " /a , /b[ 0 : 2 ] ", []string{"/a", "/b[0]", "/b[1]"}},
		{"duplicates removed", "/a[0:2],/a[1],/a[0]", []string{"/a[0]", "/a[1]"}},
		{"empty input", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, err := Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, sel.Identifiers())
			assert.Equal(t, len(tt.want), sel.Len())
		})
	}
}

func TestParse_Malformed_ReturnsParseError(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"unclosed bracket", "/a[0:2"},
		{"stray closing bracket", "/a]"},
		{"nested brackets", "/a[[0]]"},
		{"empty level", "/a//b"},
		{"trailing slash", "/a/"},
		{"empty path", "/a,,/b"},
		{"empty bracket item", "/a[0,]"},
		{"descending range", "/a[3:1]"},
		{"bad range bound", "/a[x:2]"},
		{"missing leading slash", "a/b"},
		{"garbage after bracket", "/a[0]b"},
		{"range overflowing int", "/a[-9223372036854775808:9223372036854775807]"},
		{"range wider than limit", "/a[0:10000000000]"},
		{"bracket items over limit", "/a[0:1048576,x]"},
		{"product over limit", "/a[0:2048]/b[0:2048]"},
		{"union over limit", "/a[0:1048576],/b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrParse), "want ErrParse, got %v", err)
			var pe *ParseError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.in, pe.Input)
		})
	}
}

func TestParse_Idempotent(t *testing.T) {
	// GIVEN the same selector text parsed twice
	in := "/lpu0/[in,out]/gpot[0:4],/lpu0/out/spk[0:2]"
	a := MustParse(in)
	b := MustParse(in)

	// THEN the identifier sequences are identical
	assert.Equal(t, a.Identifiers(), b.Identifiers())
}

func TestIdentifiers_Restartable(t *testing.T) {
	sel := MustParse("/a[0:3]")

	first := sel.Identifiers()
	first[0] = "mutated"

	var iterated []string
	for id := range sel.All() {
		iterated = append(iterated, id)
	}
	assert.Equal(t, []string{"/a[0]", "/a[1]", "/a[2]"}, sel.Identifiers())
	assert.Equal(t, sel.Identifiers(), iterated)
}

func TestUnion_OrderAndCommutativity(t *testing.T) {
	a := MustParse("/x[0:3]")
	b := MustParse("/x[2:5]")

	ab := Union(a, b)
	ba := Union(b, a)

	// Union preserves insertion order.
	assert.Equal(t, []string{"/x[0]", "/x[1]", "/x[2]", "/x[3]", "/x[4]"}, ab.Identifiers())
	// As sets, union is commutative.
	assert.ElementsMatch(t, ab.Identifiers(), ba.Identifiers())
	assert.LessOrEqual(t, ab.Len(), a.Len()+b.Len())
}

func TestIntersectionAndDifference(t *testing.T) {
	a := MustParse("/x[0:4]")
	b := MustParse("/x[2:6]")

	assert.Equal(t, []string{"/x[2]", "/x[3]"}, Intersection(a, b).Identifiers())
	assert.Equal(t, []string{"/x[0]", "/x[1]"}, Difference(a, b).Identifiers())
	assert.False(t, Disjoint(a, b))
	assert.True(t, Disjoint(a, MustParse("/y")))
}

func TestContains(t *testing.T) {
	sel := MustParse("/lpu/out/gpot[0:3]")

	assert.True(t, sel.Contains("/lpu/out/gpot[1]"))
	assert.True(t, sel.Contains("/lpu/out/gpot[0:2]"))
	assert.False(t, sel.Contains("/lpu/out/gpot[0:4]"))
	assert.False(t, sel.Contains("/lpu/in/gpot[0]"))
	assert.False(t, sel.Contains("/lpu[0"), "malformed selector is never contained")
	assert.False(t, sel.Contains(""))
	assert.Equal(t, 2, sel.Index("/lpu/out/gpot[2]"))
	assert.Equal(t, -1, sel.Index("/nope"))
}

func TestNilSelector_IsEmpty(t *testing.T) {
	var s *Selector
	assert.Equal(t, 0, s.Len())
	assert.Nil(t, s.Identifiers())
	assert.Equal(t, []string{"/a"}, Union(s, MustParse("/a")).Identifiers())
}
