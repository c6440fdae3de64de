// internal/pipeline/narrative/narrator.go
package narrative

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"nycdb-insight/internal/common/logger"
	"nycdb-insight/internal/genai"
	"nycdb-insight/internal/models"
)

// Confidence values attached to successful generations. These are fixed
// placeholders, not calibrated probabilities.
const (
	narrativeConfidence      = 0.85
	recommendationConfidence = 0.8
)

const defaultPromptBudget = 4000

// FallbackText is returned whenever the completion service cannot produce a
// usable narrative. The numbers are still in the envelope; only the prose is
// missing.
const FallbackText = "I analyzed the data but couldn't generate a detailed narrative. " +
	"Please review the statistics and visualizations below."

// Narrative is the parsed output of one generation.
type Narrative struct {
	Text        string
	KeyFindings []string
	Explanation []string
	Confidence  float64
}

// Recommendations is the parsed output of the recommendation generation.
type Recommendations struct {
	Items      []string
	Confidence float64
}

// Narrator renders analysis numbers into prose via the completion service.
// It never returns an error: generation failures degrade to a fixed fallback
// so a narrative outage cannot take down the whole answer.
type Narrator struct {
	completer genai.Completer
	budget    int
	logger    logger.Logger
}

func New(completer genai.Completer, promptCharBudget int, log logger.Logger) *Narrator {
	if promptCharBudget <= 0 {
		promptCharBudget = defaultPromptBudget
	}
	return &Narrator{
		completer: completer,
		budget:    promptCharBudget,
		logger:    log.WithFields(map[string]interface{}{"stage": "narrative"}),
	}
}

// Narrate produces the narrative text plus structured findings.
func (n *Narrator) Narrate(ctx context.Context, q models.StructuredQuery, analysis *models.AnalysisResult, report models.PatternReport) Narrative {
	prompt := n.buildNarrativePrompt(q, analysis, report)

	reply, err := n.completer.Complete(ctx, genai.Request{
		Prompt:  prompt,
		Purpose: "narrate",
	})
	if err != nil || strings.TrimSpace(reply) == "" {
		n.logger.Warn("narrative generation failed, using fallback", map[string]interface{}{
			"intent": string(q.Intent),
		})
		return Narrative{Text: FallbackText, KeyFindings: []string{}, Explanation: []string{}}
	}

	parsed := parseNarrative(reply)
	parsed.Confidence = narrativeConfidence
	return parsed
}

// Recommend produces actionable follow-up suggestions. Failures yield an
// empty list rather than an error.
func (n *Narrator) Recommend(ctx context.Context, q models.StructuredQuery, analysis *models.AnalysisResult, report models.PatternReport) Recommendations {
	prompt := n.buildRecommendPrompt(q, analysis, report)

	reply, err := n.completer.Complete(ctx, genai.Request{
		Prompt:  prompt,
		Purpose: "recommend",
	})
	if err != nil || strings.TrimSpace(reply) == "" {
		n.logger.Warn("recommendation generation failed, using fallback", map[string]interface{}{
			"intent": string(q.Intent),
		})
		return Recommendations{Items: []string{}}
	}

	items := parseListItems(reply)
	if len(items) == 0 {
		return Recommendations{Items: []string{}}
	}
	return Recommendations{Items: items, Confidence: recommendationConfidence}
}

// buildNarrativePrompt embeds a JSON digest of the analysis, truncated to the
// character budget so large result sets cannot blow up completion cost.
func (n *Narrator) buildNarrativePrompt(q models.StructuredQuery, analysis *models.AnalysisResult, report models.PatternReport) string {
	var b strings.Builder

	b.WriteString("You write short factual summaries of NYC building data analysis.\n")
	fmt.Fprintf(&b, "Question: %s\n", q.OriginalQuery)
	fmt.Fprintf(&b, "Intent: %s\n", q.Intent)
	b.WriteString("Write 2-4 sentences of narrative, then a 'Key findings:' section with bullet points, then an 'Explanation:' section.\n")
	b.WriteString("Use only the numbers in the data below; never invent figures.\n")
	b.WriteString("Data:\n")
	b.WriteString(n.digest(analysis, report))

	return b.String()
}

func (n *Narrator) buildRecommendPrompt(q models.StructuredQuery, analysis *models.AnalysisResult, report models.PatternReport) string {
	var b strings.Builder

	b.WriteString("You suggest practical next steps based on NYC building data analysis.\n")
	fmt.Fprintf(&b, "Question: %s\n", q.OriginalQuery)
	b.WriteString("List up to 3 short recommendations, one per line, each starting with '- '.\n")
	b.WriteString("Data:\n")
	b.WriteString(n.digest(analysis, report))

	return b.String()
}

// digest serializes the analysis and findings, truncating at the budget.
func (n *Narrator) digest(analysis *models.AnalysisResult, report models.PatternReport) string {
	payload := map[string]interface{}{
		"analysis": analysis,
		"findings": report.All(),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "{}"
	}
	s := string(data)
	if len(s) > n.budget {
		s = s[:n.budget]
	}
	return s
}

// parseNarrative splits the reply into narrative text, key findings, and
// explanations using section headers, falling back to marker words when the
// completion ignored the requested format.
func parseNarrative(reply string) Narrative {
	out := Narrative{KeyFindings: []string{}, Explanation: []string{}}

	lines := strings.Split(reply, "\n")
	section := "narrative"
	var textLines []string

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		lower := strings.ToLower(trimmed)

		switch {
		case strings.HasPrefix(lower, "key findings"):
			section = "findings"
			continue
		case strings.HasPrefix(lower, "explanation"):
			section = "explanation"
			continue
		case strings.HasPrefix(lower, "recommendation"):
			section = "skip"
			continue
		}

		if trimmed == "" {
			continue
		}

		switch section {
		case "narrative":
			textLines = append(textLines, trimmed)
		case "findings":
			if item := stripBullet(trimmed); item != "" {
				out.KeyFindings = append(out.KeyFindings, item)
			}
		case "explanation":
			if item := stripBullet(trimmed); item != "" {
				out.Explanation = append(out.Explanation, item)
			}
		}
	}

	out.Text = strings.Join(textLines, " ")
	if out.Text == "" {
		out.Text = strings.TrimSpace(reply)
	}

	// Header-less replies: treat sentences with emphasis markers as findings.
	if len(out.KeyFindings) == 0 {
		for _, sentence := range strings.Split(out.Text, ". ") {
			lower := strings.ToLower(sentence)
			if strings.Contains(lower, "significant") || strings.Contains(lower, "notable") {
				out.KeyFindings = append(out.KeyFindings, strings.TrimSpace(sentence))
			}
		}
	}

	return out
}

// parseListItems extracts bulleted or numbered lines.
func parseListItems(reply string) []string {
	var items []string
	for _, line := range strings.Split(reply, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if item := stripBullet(trimmed); item != trimmed && item != "" {
			items = append(items, item)
		}
	}

	// A reply with no list markers still counts as one recommendation.
	if len(items) == 0 {
		if trimmed := strings.TrimSpace(reply); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// stripBullet removes leading list markers: "-", "*", "•", "1.", "2)".
func stripBullet(line string) string {
	s := strings.TrimSpace(line)
	for _, prefix := range []string{"- ", "* ", "• "} {
		if strings.HasPrefix(s, prefix) {
			return strings.TrimSpace(s[len(prefix):])
		}
	}
	for i, r := range s {
		if r >= '0' && r <= '9' {
			continue
		}
		if i > 0 && (r == '.' || r == ')') {
			return strings.TrimSpace(s[i+1:])
		}
		break
	}
	return s
}
