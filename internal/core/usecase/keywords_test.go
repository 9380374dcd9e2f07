package usecase

import (
	"reflect"
	"testing"
)

func TestExtractKeywordsPreservesAcronyms(t *testing.T) {
	got := NewKeywordExtractor(testTerms).Extract("What is BECCS doing at KTH?")

	set := make(map[string]struct{}, len(got))
	for _, keyword := range got {
		set[keyword] = struct{}{}
	}
	if _, ok := set["BECCS"]; !ok {
		t.Fatalf("expected BECCS in keywords, got %v", got)
	}
	for _, excluded := range []string{"what", "is", "doing", "at", "kth", "KTH", "What"} {
		if _, ok := set[excluded]; ok {
			t.Fatalf("expected %q to be excluded, got %v", excluded, got)
		}
	}
}

func TestExtractKeywordsShoutedQuestionKeepsOnlyRealAcronyms(t *testing.T) {
	got := NewKeywordExtractor(testTerms).Extract("WHAT IS BECCS DOING AT KTH?")
	want := []string{"BECCS"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestExtractKeywordsKeepsUnlistedAcronymShape(t *testing.T) {
	got := NewKeywordExtractor(testTerms).Extract("grid storage with PEMFC stacks")
	want := []string{"grid", "storage", "PEMFC", "stacks"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestExtractKeywordsLowercasesAndCollapsesDuplicates(t *testing.T) {
	got := NewKeywordExtractor(testTerms).Extract("Hydrogen hydrogen STORAGE in Sweden")
	want := []string{"hydrogen", "storage", "sweden"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestExtractKeywordsCanonicalizesAllowlistedAcronyms(t *testing.T) {
	got := NewKeywordExtractor(testTerms).Extract("beccs and co2 capture")
	want := []string{"BECCS", "CO2", "capture"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestExtractKeywordsDropsShortTokensButKeepsShortAcronyms(t *testing.T) {
	got := NewKeywordExtractor(testTerms).Extract("go to the AI lab")
	want := []string{"AI", "lab"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestExtractKeywordsEmptyInput(t *testing.T) {
	if got := NewKeywordExtractor(testTerms).Extract("  ?! "); len(got) != 0 {
		t.Fatalf("expected no keywords, got %v", got)
	}
}
