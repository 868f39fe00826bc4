package posters

import (
	"errors"
	"strings"
	"testing"
)

func stringPointer(value string) *string {
	return &value
}

func boolPointer(value bool) *bool {
	return &value
}

func TestNewPosterAppliesDefaults(t *testing.T) {
	poster, err := NewPoster("user-1", Draft{RideID: 3, Name: "  Alpine Loop "})
	if err != nil {
		t.Fatalf("new poster: %v", err)
	}
	if poster.Name != "Alpine Loop" {
		t.Fatalf("expected trimmed name, got %q", poster.Name)
	}
	if poster.MapStyle != MapStyleStandard || poster.Layout != LayoutPortrait || poster.Size != SizeMedium {
		t.Fatalf("unexpected enum defaults %+v", poster)
	}
	if poster.PrimaryColor != DefaultPrimaryColor || poster.SecondaryColor != DefaultSecondaryColor {
		t.Fatalf("unexpected color defaults %+v", poster)
	}
	if !poster.ShowStats || !poster.ShowElevation {
		t.Fatalf("expected stats and elevation shown by default")
	}
	if poster.CustomTitle != nil {
		t.Fatalf("expected no custom title")
	}
}

func TestNewPosterKeepsExplicitFalse(t *testing.T) {
	poster, err := NewPoster("user-1", Draft{RideID: 3, Name: "Loop", ShowStats: boolPointer(false), MapStyle: stringPointer("Dark")})
	if err != nil {
		t.Fatalf("new poster: %v", err)
	}
	if poster.ShowStats {
		t.Fatalf("explicit false must not be replaced by the default")
	}
	if poster.MapStyle != MapStyleDark {
		t.Fatalf("expected normalized map style, got %q", poster.MapStyle)
	}
}

func TestPosterValidation(t *testing.T) {
	testCases := []struct {
		name  string
		draft Draft
	}{
		{name: "missing ride", draft: Draft{Name: "Loop"}},
		{name: "missing name", draft: Draft{RideID: 1, Name: "  "}},
		{name: "long name", draft: Draft{RideID: 1, Name: strings.Repeat("x", maxNameLength+1)}},
		{name: "unknown map style", draft: Draft{RideID: 1, Name: "Loop", MapStyle: stringPointer("neon")}},
		{name: "unknown layout", draft: Draft{RideID: 1, Name: "Loop", Layout: stringPointer("circle")}},
		{name: "unknown size", draft: Draft{RideID: 1, Name: "Loop", Size: stringPointer("huge")}},
		{name: "short color", draft: Draft{RideID: 1, Name: "Loop", PrimaryColor: stringPointer("#fff")}},
		{name: "color without hash", draft: Draft{RideID: 1, Name: "Loop", SecondaryColor: stringPointer("2c3e50")}},
		{name: "long custom title", draft: Draft{RideID: 1, Name: "Loop", CustomTitle: stringPointer(strings.Repeat("t", maxCustomTitleLength+1))}},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if _, err := NewPoster("user-1", testCase.draft); !errors.Is(err, ErrInvalidPoster) {
				t.Fatalf("expected ErrInvalidPoster, got %v", err)
			}
		})
	}
}

func TestApplyChangesOnlySuppliedFields(t *testing.T) {
	original, err := NewPoster("user-1", Draft{RideID: 3, Name: "Loop", CustomTitle: stringPointer("Summit Day")})
	if err != nil {
		t.Fatalf("new poster: %v", err)
	}
	updated, applyErr := original.Apply(Patch{PrimaryColor: stringPointer("#00AA11"), ShowElevation: boolPointer(false)})
	if applyErr != nil {
		t.Fatalf("apply: %v", applyErr)
	}
	if updated.PrimaryColor != "#00aa11" || updated.ShowElevation {
		t.Fatalf("expected patched fields, got %+v", updated)
	}
	if updated.Name != original.Name || updated.SecondaryColor != original.SecondaryColor || updated.ShowStats != original.ShowStats {
		t.Fatalf("unpatched fields changed: %+v", updated)
	}
	if updated.CustomTitle == nil || *updated.CustomTitle != "Summit Day" {
		t.Fatalf("custom title should be untouched")
	}

	cleared, clearErr := updated.Apply(Patch{CustomTitle: stringPointer("")})
	if clearErr != nil {
		t.Fatalf("clear title: %v", clearErr)
	}
	if cleared.CustomTitle != nil {
		t.Fatalf("blank title should clear the custom title")
	}
}

func TestApplyRejectsInvalidPatch(t *testing.T) {
	original, err := NewPoster("user-1", Draft{RideID: 3, Name: "Loop"})
	if err != nil {
		t.Fatalf("new poster: %v", err)
	}
	if _, applyErr := original.Apply(Patch{Layout: stringPointer("triangle")}); !errors.Is(applyErr, ErrInvalidPoster) {
		t.Fatalf("expected ErrInvalidPoster, got %v", applyErr)
	}
}

func TestPatchEmpty(t *testing.T) {
	if !(Patch{}).Empty() {
		t.Fatalf("zero patch should be empty")
	}
	if (Patch{Name: stringPointer("x")}).Empty() {
		t.Fatalf("patch with a field should not be empty")
	}
}
