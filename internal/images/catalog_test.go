package images

import (
	"context"
	"errors"
	"testing"

	"guessduel/internal/scoring"
)

func TestLoadCatalog_SkipsUnapproved(t *testing.T) {
	c, err := LoadCatalog("testdata/catalog.yaml")
	if err != nil {
		t.Fatalf("LoadCatalog() error: %v", err)
	}
	n, _ := c.CountApproved(context.Background())
	if n != 2 {
		t.Errorf("CountApproved() = %d, want %d", n, 2)
	}
}

func TestLoadCatalog_MissingFile(t *testing.T) {
	if _, err := LoadCatalog("testdata/nope.yaml"); err == nil {
		t.Error("LoadCatalog() on a missing file should error")
	}
}

func TestCatalog_RandomApprovedUsesSkip(t *testing.T) {
	c := NewCatalog(
		Image{ID: "a", URL: "u/a"},
		Image{ID: "b", URL: "u/b"},
		Image{ID: "c", URL: "u/c"},
	)
	var gotN int
	c.skip = func(n int) int { gotN = n; return n - 1 }

	img, err := c.RandomApproved(context.Background(), nil)
	if err != nil {
		t.Fatalf("RandomApproved() error: %v", err)
	}
	if gotN != 3 {
		t.Errorf("skip called with n = %d, want %d", gotN, 3)
	}
	if img.ID != "c" {
		t.Errorf("image = %q, want %q", img.ID, "c")
	}
}

func TestCatalog_RandomApprovedHonoursExclude(t *testing.T) {
	c := NewCatalog(
		Image{ID: "a", URL: "u/a", Answer: scoring.Coordinate{X: 0.1, Y: 0.1}},
		Image{ID: "b", URL: "u/b"},
	)
	for range 20 {
		img, err := c.RandomApproved(context.Background(), []string{"u/b"})
		if err != nil {
			t.Fatalf("RandomApproved() error: %v", err)
		}
		if img.ID != "a" {
			t.Fatalf("image = %q, want %q", img.ID, "a")
		}
	}
}

func TestCatalog_Empty(t *testing.T) {
	c := NewCatalog()
	_, err := c.RandomApproved(context.Background(), nil)
	if !errors.Is(err, ErrNoApprovedImages) {
		t.Errorf("err = %v, want ErrNoApprovedImages", err)
	}

	full := NewCatalog(Image{ID: "a", URL: "u/a"})
	_, err = full.RandomApproved(context.Background(), []string{"u/a"})
	if !errors.Is(err, ErrNoApprovedImages) {
		t.Errorf("all excluded err = %v, want ErrNoApprovedImages", err)
	}
}
