package purl

import (
	"testing"
)

func TestParse(t *testing.T) {
	p, err := Parse("pkg:maven/io.quarkus/quarkus-core@2.13.5.Final?type=jar")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p.Type != "maven" {
		t.Errorf("Type = %q, want maven", p.Type)
	}
	if p.Namespace != "io.quarkus" {
		t.Errorf("Namespace = %q, want io.quarkus", p.Namespace)
	}
	if p.Name != "quarkus-core" {
		t.Errorf("Name = %q, want quarkus-core", p.Name)
	}
	if p.Version != "2.13.5.Final" {
		t.Errorf("Version = %q, want 2.13.5.Final", p.Version)
	}
	if len(p.Qualifiers) != 1 || p.Qualifiers["type"] != "jar" {
		t.Errorf("Qualifiers = %v, want map[type:jar]", p.Qualifiers)
	}
}

func TestParse_NoNamespace(t *testing.T) {
	p, err := Parse("pkg:npm/lodash@4.17.21")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p.Namespace != "" {
		t.Errorf("Namespace = %q, want empty", p.Namespace)
	}
	if p.NamespaceOrNil() != nil {
		t.Errorf("NamespaceOrNil should be nil for an absent namespace")
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, ref := range []string{"", "not-a-purl", "pkg:"} {
		if _, err := Parse(ref); err == nil {
			t.Errorf("Parse(%q) succeeded, want error", ref)
		}
	}
}

func TestString_RoundTrip(t *testing.T) {
	refs := []string{
		"pkg:maven/io.quarkus/quarkus-core@2.13.5.Final?type=jar",
		"pkg:maven/jakarta.enterprise/jakarta.enterprise.cdi-api@2.0.2?cheese=cheddar&type=jar",
		"pkg:npm/lodash@4.17.21",
		"pkg:maven/org.apache.logging.log4j/log4j-core@2.13.3",
	}

	for _, ref := range refs {
		p, err := Parse(ref)
		if err != nil {
			t.Fatalf("Parse(%q): %v", ref, err)
		}
		again, err := Parse(p.String())
		if err != nil {
			t.Fatalf("re-Parse(%q): %v", p.String(), err)
		}
		if again.Type != p.Type || again.Namespace != p.Namespace ||
			again.Name != p.Name || again.Version != p.Version {
			t.Errorf("round trip changed coordinates: %+v vs %+v", p, again)
		}
		if !QualifiersEqual(p.Qualifiers, again.Qualifiers) {
			t.Errorf("round trip changed qualifiers: %v vs %v", p.Qualifiers, again.Qualifiers)
		}
	}
}

func TestString_QualifierOrderInsignificant(t *testing.T) {
	a := MustParse("pkg:maven/g/a@1.0?one=1&two=2")
	b := MustParse("pkg:maven/g/a@1.0?two=2&one=1")

	if a.String() != b.String() {
		t.Errorf("canonical encodings differ: %q vs %q", a.String(), b.String())
	}
}

func TestQualifiersEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b map[string]string
		want bool
	}{
		{"both empty", nil, map[string]string{}, true},
		{"equal", map[string]string{"type": "jar"}, map[string]string{"type": "jar"}, true},
		{"different value", map[string]string{"type": "jar"}, map[string]string{"type": "war"}, false},
		{"different size", map[string]string{"type": "jar"}, map[string]string{"type": "jar", "x": "y"}, false},
		{"empty vs non-empty", nil, map[string]string{"type": "jar"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := QualifiersEqual(tt.a, tt.b); got != tt.want {
				t.Errorf("QualifiersEqual = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEncodeQualifiers(t *testing.T) {
	if got := EncodeQualifiers(nil); got != "" {
		t.Errorf("EncodeQualifiers(nil) = %q, want empty", got)
	}
	got := EncodeQualifiers(map[string]string{"type": "jar", "cheese": "cheddar"})
	if got != "cheese=cheddar&type=jar" {
		t.Errorf("EncodeQualifiers = %q", got)
	}
}
