package service

import (
	"context"
	"regexp"
	"sort"

	"go.uber.org/zap"

	"github.com/doxalabs/doxa/internal/domain"
	"github.com/doxalabs/doxa/internal/similarity"
)

// unknownConfidence caps the confidence of the degraded Unknown label.
const unknownConfidence = 0.2

// Structured tag patterns, compiled once. Dates cover ISO and the common
// d/m/y orderings.
var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	urlPattern   = regexp.MustCompile(`https?://[^\s<>"]+`)
	datePattern  = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2}|\d{1,2}/\d{1,2}/\d{2,4})\b`)
	phonePattern = regexp.MustCompile(`\+?\d[\d\s\-().]{7,}\d`)
)

// CategorizationService classifies memory content and extracts tags. It
// never fails the pipeline: a provider error degrades to the Unknown label.
type CategorizationService struct {
	extractor domain.ExtractionClient
	logger    *zap.Logger
}

func NewCategorizationService(extractor domain.ExtractionClient, logger *zap.Logger) *CategorizationService {
	return &CategorizationService{extractor: extractor, logger: logger}
}

// Categorize classifies content into a CategoryLabel. Metadata may carry an
// explicit "category" override, which wins over the provider.
func (s *CategorizationService) Categorize(ctx context.Context, content string, metadata map[string]any) domain.CategoryLabel {
	tags := s.ExtractTags(ctx, content)

	if override, ok := metadata["category"].(string); ok && override != "" {
		return domain.CategoryLabel{
			Primary:    override,
			Tags:       tags,
			Confidence: 1.0,
		}
	}

	category, confidence, err := s.extractor.ExtractCategory(ctx, content)
	if err != nil || category == "" {
		if err != nil {
			s.logger.Warn("categorization failed, labeling Unknown", zap.Error(err))
		}
		return domain.CategoryLabel{
			Primary:    domain.CategoryUnknown,
			Tags:       tags,
			Confidence: unknownConfidence,
		}
	}

	return domain.CategoryLabel{
		Primary:    category,
		Tags:       tags,
		Confidence: domain.Clamp01(confidence),
	}
}

// ExtractTags pulls structured tags (emails, URLs, dates, phone numbers)
// via regex and adds distinctive keyword tokens as semantic tags. The
// result is deduplicated and sorted for stable output.
func (s *CategorizationService) ExtractTags(ctx context.Context, content string) []string {
	seen := make(map[string]bool)
	var tags []string
	add := func(tag string) {
		if tag != "" && !seen[tag] {
			seen[tag] = true
			tags = append(tags, tag)
		}
	}

	for _, m := range emailPattern.FindAllString(content, -1) {
		add("email:" + m)
	}
	for _, m := range urlPattern.FindAllString(content, -1) {
		add("url:" + m)
	}
	for _, m := range datePattern.FindAllString(content, -1) {
		add("date:" + m)
	}
	for _, m := range phonePattern.FindAllString(content, -1) {
		add("phone:" + m)
	}

	for _, tok := range keywordTokens(content, 5) {
		add(tok)
	}

	sort.Strings(tags)
	return tags
}

// keywordTokens picks up to max longer tokens as semantic tags.
func keywordTokens(content string, max int) []string {
	var out []string
	toks := make([]string, 0)
	for tok := range similarity.Tokens(content) {
		if len(tok) >= 5 {
			toks = append(toks, tok)
		}
	}
	sort.Strings(toks)
	for _, tok := range toks {
		out = append(out, tok)
		if len(out) == max {
			break
		}
	}
	return out
}
