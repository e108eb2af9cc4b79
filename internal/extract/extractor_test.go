package extract

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/regdelta/regdelta/internal/diffengine"
	"github.com/regdelta/regdelta/internal/document"
	"github.com/regdelta/regdelta/internal/lexicon"
)

func newTestExtractor(t *testing.T) *Extractor {
	t.Helper()
	lex, err := lexicon.Compile(lexicon.Default())
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return New(lex)
}

func para(text string) document.Paragraph {
	return document.Paragraph{
		RawText:        text,
		NormalizedText: document.Normalize(text),
		SectionLabel:   "Section 4",
	}
}

func TestParagraphExtractsMandatory(t *testing.T) {
	e := newTestExtractor(t)

	obs := e.Paragraph("doc1", para("Operators must maintain access records for all systems."))
	if len(obs) != 1 {
		t.Fatalf("expected 1 obligation, got %d", len(obs))
	}
	ob := obs[0]
	if ob.ModalPhrase != "must" {
		t.Errorf("modal phrase = %q, want %q", ob.ModalPhrase, "must")
	}
	if ob.SectionLabel != "Section 4" {
		t.Errorf("section label = %q, want %q", ob.SectionLabel, "Section 4")
	}
	if ob.DocumentID != "doc1" {
		t.Errorf("document id = %q", ob.DocumentID)
	}
	if ob.Excerpt == "" {
		t.Error("expected non-empty excerpt")
	}
}

func TestParagraphNoModalNoObligation(t *testing.T) {
	e := newTestExtractor(t)

	obs := e.Paragraph("doc1", para("This chapter describes the general structure of the regulation."))
	if len(obs) != 0 {
		t.Errorf("expected no obligations, got %+v", obs)
	}
}

func TestStopPhraseSuppression(t *testing.T) {
	e := newTestExtractor(t)

	obs := e.Paragraph("doc1", para("For the purposes of this definition, an operator must be a registered legal entity."))
	if len(obs) != 0 {
		t.Errorf("stop phrase sentence produced obligations: %+v", obs)
	}
}

func TestSeverityHighKeywordWins(t *testing.T) {
	e := newTestExtractor(t)

	obs := e.Paragraph("doc1", para("Operators shall pay a penalty for late filings."))
	if len(obs) != 1 {
		t.Fatalf("expected 1 obligation, got %d", len(obs))
	}
	if obs[0].Severity != SeverityHigh {
		t.Errorf("severity = %s, want high", obs[0].Severity)
	}
}

func TestSeverityProhibitionIsHigh(t *testing.T) {
	e := newTestExtractor(t)

	obs := e.Paragraph("doc1", para("Operators must not share credentials between accounts."))
	if len(obs) != 1 {
		t.Fatalf("expected 1 obligation, got %d", len(obs))
	}
	if obs[0].ModalPhrase != "must not" {
		t.Errorf("modal phrase = %q, want %q", obs[0].ModalPhrase, "must not")
	}
	if obs[0].Severity != SeverityHigh {
		t.Errorf("severity = %s, want high", obs[0].Severity)
	}
}

func TestSeverityDeadlineBoostsMandatory(t *testing.T) {
	e := newTestExtractor(t)

	obs := e.Paragraph("doc1", para("The operator must submit the filing within 30 days of quarter end."))
	if len(obs) != 1 {
		t.Fatalf("expected 1 obligation, got %d", len(obs))
	}
	if obs[0].Deadline != "within 30 days" {
		t.Errorf("deadline = %q, want %q", obs[0].Deadline, "within 30 days")
	}
	if obs[0].Severity != SeverityHigh {
		t.Errorf("severity = %s, want high (mandatory with deadline)", obs[0].Severity)
	}
}

func TestSeverityPlainMandatoryIsMedium(t *testing.T) {
	e := newTestExtractor(t)

	obs := e.Paragraph("doc1", para("The operator must keep adequate written policies."))
	if len(obs) != 1 {
		t.Fatalf("expected 1 obligation, got %d", len(obs))
	}
	if obs[0].Severity != SeverityMedium {
		t.Errorf("severity = %s, want medium", obs[0].Severity)
	}
}

func TestSeverityAdvisoryIsLow(t *testing.T) {
	e := newTestExtractor(t)

	obs := e.Paragraph("doc1", para("Operators should consult industry guidance where practical."))
	if len(obs) != 1 {
		t.Fatalf("expected 1 obligation, got %d", len(obs))
	}
	if obs[0].Severity != SeverityLow {
		t.Errorf("severity = %s, want low", obs[0].Severity)
	}
}

func TestMultipleSentences(t *testing.T) {
	e := newTestExtractor(t)

	obs := e.Paragraph("doc1", para("Operators must retain records for five years. Operators should publish a summary annually."))
	if len(obs) != 2 {
		t.Fatalf("expected 2 obligations, got %d", len(obs))
	}
	if obs[0].Severity != SeverityMedium || obs[1].Severity != SeverityLow {
		t.Errorf("severities = %s/%s, want medium/low", obs[0].Severity, obs[1].Severity)
	}
}

func TestShortFragmentsSkipped(t *testing.T) {
	e := newTestExtractor(t)

	obs := e.Paragraph("doc1", para("Must comply. The operator must notify the regulator of ownership changes."))
	if len(obs) != 1 {
		t.Fatalf("expected the short fragment skipped, got %d obligations", len(obs))
	}
}

func TestExcerptTruncatesOnRuneBoundary(t *testing.T) {
	e := newTestExtractor(t)

	// 25-byte ASCII lead followed by two-byte runes puts the byte-160
	// cutoff in the middle of a rune.
	text := "The operator must retain " + strings.Repeat("é", 120) + " records."
	obs := e.Paragraph("doc1", para(text))
	if len(obs) != 1 {
		t.Fatalf("expected 1 obligation, got %d", len(obs))
	}
	ex := obs[0].Excerpt
	if !utf8.ValidString(ex) {
		t.Errorf("excerpt is not valid UTF-8: %q", ex)
	}
	if len(ex) > excerptLen {
		t.Errorf("excerpt is %d bytes, want at most %d", len(ex), excerptLen)
	}
	if !strings.HasPrefix(document.Normalize(text), ex) {
		t.Errorf("excerpt %q is not a prefix of the normalized sentence", ex)
	}
}

func TestCitations(t *testing.T) {
	e := newTestExtractor(t)

	obs := e.Paragraph("doc1", para("Operators must follow the procedures in Section 4.2 and Article 12 when reporting."))
	if len(obs) != 1 {
		t.Fatalf("expected 1 obligation, got %d", len(obs))
	}
	cits := obs[0].Citations
	if len(cits) != 2 {
		t.Fatalf("citations = %v, want 2 entries", cits)
	}
	if cits[0] != "Article 12" || cits[1] != "Section 4.2" {
		t.Errorf("citations = %v, want sorted [Article 12, Section 4.2]", cits)
	}
}

func TestChangedParagraphsOnlyTouchedRanges(t *testing.T) {
	e := newTestExtractor(t)

	paras := []document.Paragraph{
		para("Operators must maintain records at all times."),
		para("Operators must encrypt stored data without exception."),
		para("Operators must report breaches immediately."),
	}
	ops := []diffengine.ChangeOp{
		{Kind: diffengine.OpEqual, OldStart: 0, OldEnd: 1, NewStart: 0, NewEnd: 1},
		{Kind: diffengine.OpReplace, OldStart: 1, OldEnd: 2, NewStart: 1, NewEnd: 2},
		{Kind: diffengine.OpEqual, OldStart: 2, OldEnd: 3, NewStart: 2, NewEnd: 3},
	}

	obs := e.ChangedParagraphs("doc1", paras, ops)
	if len(obs) != 1 {
		t.Fatalf("expected obligations only from the replaced paragraph, got %d", len(obs))
	}
	if obs[0].Text != "Operators must encrypt stored data without exception" {
		t.Errorf("unexpected obligation text: %q", obs[0].Text)
	}
}

func TestSummarize(t *testing.T) {
	e := newTestExtractor(t)

	paras := []document.Paragraph{
		para("Operators shall pay a penalty for violations."),
		para("Operators must document retention schedules."),
		para("Operators should consider periodic reviews."),
	}
	obs := e.AllParagraphs("doc1", paras)
	s := Summarize(obs)

	if s.Total != 3 {
		t.Fatalf("total = %d, want 3", s.Total)
	}
	if s.High != 1 || s.Medium != 1 || s.Low != 1 {
		t.Errorf("high/medium/low = %d/%d/%d, want 1/1/1", s.High, s.Medium, s.Low)
	}
}
