package agentcard

import "testing"

func TestBuilderAppliesOverride(t *testing.T) {
	base := Card{Name: "base-name", Description: "base-desc", Version: "1.0"}
	b := NewBuilder(base).WithOverride(&Override{Name: "agent-name"})
	got := b.Build()
	if got.Name != "agent-name" {
		t.Fatalf("expected override name, got %q", got.Name)
	}
	if got.Description != "base-desc" {
		t.Fatalf("expected base description to survive a partial override, got %q", got.Description)
	}
}

func TestBuilderWithoutOverrideReturnsBase(t *testing.T) {
	base := Card{Name: "base-name"}
	got := NewBuilder(base).Build()
	if got.Name != "base-name" {
		t.Fatalf("expected unmodified base card, got %+v", got)
	}
}

func TestVisibleFiltersByAuthentication(t *testing.T) {
	cases := []struct {
		visibility    Visibility
		authenticated bool
		want          bool
	}{
		{VisibilityPublic, false, true},
		{VisibilityPublic, true, true},
		{VisibilityInternal, false, false},
		{VisibilityInternal, true, true},
		{VisibilityPrivate, false, false},
		{VisibilityPrivate, true, true},
		{"", false, true},
	}
	for _, c := range cases {
		got := Visible(Card{Visibility: c.visibility}, c.authenticated)
		if got != c.want {
			t.Fatalf("visibility=%q authenticated=%v: got %v want %v", c.visibility, c.authenticated, got, c.want)
		}
	}
}
