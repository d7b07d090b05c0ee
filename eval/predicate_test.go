package eval

import (
	"errors"
	"testing"
)

func TestParsePredicate(t *testing.T) {
	tests := []struct {
		text    string
		want    Predicate
		wantErr bool
	}{
		{"< 300", Predicate{OpLess, 300}, false},
		{"<=0.5", Predicate{OpLessEqual, 0.5}, false},
		{">  10", Predicate{OpGreater, 10}, false},
		{">= -1", Predicate{OpGreaterEqual, -1}, false},
		{"== 0", Predicate{OpEqual, 0}, false},
		{"!= 1", Predicate{OpNotEqual, 1}, false},
		{"any", Predicate{Op: OpAny}, false},
		{" ANY ", Predicate{Op: OpAny}, false},
		{"lambda x: x < 10", Predicate{}, true},
		{"< ten", Predicate{}, true},
		{"", Predicate{}, true},
		{"= 3", Predicate{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, err := ParsePredicate(tt.text)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPredicate) {
					t.Fatalf("ParsePredicate(%q) error = %v, want ErrInvalidPredicate", tt.text, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePredicate(%q) unexpected error: %v", tt.text, err)
			}
			if got != tt.want {
				t.Errorf("ParsePredicate(%q) = %+v, want %+v", tt.text, got, tt.want)
			}
		})
	}
}

func TestPredicate_Eval(t *testing.T) {
	tests := []struct {
		p     Predicate
		value float64
		want  bool
	}{
		{Predicate{OpLess, 1}, 0.99, true},
		{Predicate{OpLess, 1}, 1, false},
		{Predicate{OpLessEqual, 1}, 1, true},
		{Predicate{OpGreater, 1}, 1, false},
		{Predicate{OpGreaterEqual, 1}, 1, true},
		{Predicate{OpEqual, 0}, 0, true},
		{Predicate{OpNotEqual, 0}, 0, false},
		{Predicate{Op: OpAny}, -1e9, true},
		{Predicate{Op: "~"}, 0, false},
	}
	for _, tt := range tests {
		if got := tt.p.Eval(tt.value); got != tt.want {
			t.Errorf("%s applied to %v = %v, want %v", tt.p, tt.value, got, tt.want)
		}
	}
}

func TestPredicate_StringParsesBack(t *testing.T) {
	for _, text := range []string{"< 300", ">= 0.25", "any", "!= -2"} {
		p, err := ParsePredicate(text)
		if err != nil {
			t.Fatal(err)
		}
		back, err := ParsePredicate(p.String())
		if err != nil {
			t.Fatal(err)
		}
		if back != p {
			t.Errorf("round trip of %q: got %+v, want %+v", text, back, p)
		}
	}
}
