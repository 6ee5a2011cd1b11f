package errors

import (
	"fmt"
	"testing"
)

func TestBuildDefaultsCategoryAndComponent(t *testing.T) {
	t.Parallel()

	err := New(fmt.Errorf("test error")).Build()

	if err.Err.Error() != "test error" {
		t.Errorf("expected message 'test error', got %q", err.Err.Error())
	}
	if err.GetCategory() == "" {
		t.Error("expected a non-empty category to be detected")
	}
	if err.GetComponent() == "" {
		t.Error("expected a non-empty component to be detected")
	}
}

func TestBuildHonorsExplicitCategoryAndComponent(t *testing.T) {
	t.Parallel()

	err := New(fmt.Errorf("no free output buffer")).
		Component("convnode").
		Category(CategoryFlow).
		Context("port", "out").
		Build()

	if err.GetComponent() != "convnode" {
		t.Errorf("expected component 'convnode', got %q", err.GetComponent())
	}
	if err.Category != CategoryFlow {
		t.Errorf("expected category %q, got %q", CategoryFlow, err.Category)
	}
	if err.GetContext()["port"] != "out" {
		t.Errorf("expected context to round-trip, got %v", err.GetContext())
	}
}

func TestDetectCategoryHeuristics(t *testing.T) {
	t.Parallel()

	cases := []struct {
		msg      string
		expected ErrorCategory
	}{
		{"invalid sample format", CategoryValidation},
		{"port not initialized", CategoryState},
		{"command unsupported", CategoryUnsupported},
		{"broken pipe: no output buffer", CategoryFlow},
		{"parameter kind not found", CategoryNotFound},
		{"lock held by worker thread", CategoryConcurrency},
		{"something else entirely", CategoryGeneric},
	}

	for _, tc := range cases {
		got := detectCategory(fmt.Errorf("%s", tc.msg), "")
		if got != tc.expected {
			t.Errorf("detectCategory(%q) = %q, want %q", tc.msg, got, tc.expected)
		}
	}
}

func TestIsCategory(t *testing.T) {
	t.Parallel()

	err := New(fmt.Errorf("boom")).Category(CategoryFlow).Build()
	if !IsCategory(err, CategoryFlow) {
		t.Error("expected IsCategory to match CategoryFlow")
	}
	if IsCategory(err, CategoryValidation) {
		t.Error("expected IsCategory to reject CategoryValidation")
	}
}