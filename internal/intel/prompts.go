package intel

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ibeckermayer/dailyintel/internal/classifier"
	"github.com/ibeckermayer/dailyintel/internal/types"
)

// buildReportPrompt is the single-shot prompt: the whole digest in one request
func buildReportPrompt(t classifier.Taxonomy, digestText string) string {
	var sb strings.Builder

	sb.WriteString("You are a Senior Strategic Intelligence Analyst. Transform the following social media posts into a high-level \"Global Situation Report\".\n\n")
	sb.WriteString("STRUCTURE YOUR OUTPUT EXACTLY AS FOLLOWS:\n")
	sb.WriteString("1. Title: Global Situation Report: [Current Date]\n")
	sb.WriteString("2. Executive Summary: One paragraph overview of the most critical global trends.\n")
	sb.WriteString("3. Thematic sections (use these EXACT categories, do not invent others):\n")
	for _, l := range t.Labels() {
		sb.WriteString("   - " + l + "\n")
	}
	sb.WriteString("4. Use bullet points for specific developments within themes.\n\n")
	sb.WriteString("TONE: Professional, concise, objective. Focus on strategic significance.\n\n")
	sb.WriteString("STRICT DATA RULES:\n")
	sb.WriteString("- ONLY include information explicitly present in the RAW SUMMARY provided below.\n")
	sb.WriteString("- Do NOT use knowledge from your training data: no invented names, handles, events, or figures.\n")
	sb.WriteString("- If a section has no relevant data, write \"No significant developments identified.\"\n\n")
	sb.WriteString("RAW SUMMARY:\n")
	sb.WriteString(digestText)

	return sb.String()
}

// buildSectionPrompt asks for one thematic section from a category's posts
func buildSectionPrompt(category string, posts []types.CategorizedPost) string {
	var sb strings.Builder

	sb.WriteString("You are a strategic intelligence analyst. Write a short thematic section for a Global Situation Report using ONLY the posts below. Use bullet points. Be concise and professional.\n\n")
	sb.WriteString("CRITICAL RULES:\n")
	sb.WriteString("1. ONLY use information explicitly stated in the provided posts.\n")
	sb.WriteString("2. DO NOT hallucinate, guess, infer, or extrapolate.\n")
	sb.WriteString("3. DO NOT speculate on potential impacts or global consequences unless they are explicitly in the text.\n")
	sb.WriteString("4. If a post's relation to the topic is weak, just state the facts of the post without padding.\n\n")
	sb.WriteString(fmt.Sprintf("Section topic: %s\n\n", category))
	sb.WriteString("Posts:\n")
	for _, p := range posts {
		sb.WriteString(fmt.Sprintf("- [@%s] %s\n", p.AuthorHandle, strings.Join(strings.Fields(p.Text), " ")))
	}
	sb.WriteString("\nWrite the section now:")

	return sb.String()
}

// buildSummaryPrompt asks for the executive summary over drafted sections
func buildSummaryPrompt(sections []string) string {
	var sb strings.Builder

	sb.WriteString("You are a Strategic Intelligence Analyst.\n")
	sb.WriteString(fmt.Sprintf("Read the following %d drafted sections of a Global Situation Report.\n", len(sections)))
	sb.WriteString("Write a SINGLE PARAGRAPH (max 4-5 sentences) \"Executive Summary\" that highlights the most critical developments from these sections.\n")
	sb.WriteString("Do not use bullet points. Do not invent facts.\n\n")
	sb.WriteString("DRAFTED SECTIONS:\n")
	sb.WriteString(strings.Join(sections, "\n\n"))
	sb.WriteString("\n")

	return sb.String()
}

var (
	urlRe        = regexp.MustCompile(`https?://[^\s)]+`)
	emptyParenRe = regexp.MustCompile(`\(\s*\)`)
	emptyLinkRe  = regexp.MustCompile(`\[\s*\]\(\s*\)`)
)

// cleanSection drops a repeated category header and any links the model
// added on its own; the only links in a section are its source list.
func cleanSection(category, text string) string {
	text = strings.TrimSpace(text)

	lines := strings.Split(text, "\n")
	if len(lines) > 0 && strings.Contains(strings.ToLower(lines[0]), strings.ToLower(category)) {
		text = strings.TrimSpace(strings.Join(lines[1:], "\n"))
	}

	text = urlRe.ReplaceAllString(text, "")
	text = emptyLinkRe.ReplaceAllString(text, "")
	text = emptyParenRe.ReplaceAllString(text, "")

	lines = strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// stripTitle removes a title line the model wrote itself, since reports get
// the canonical header
func stripTitle(text string) string {
	text = strings.TrimSpace(text)
	lines := strings.Split(text, "\n")
	if len(lines) > 0 && (strings.HasPrefix(lines[0], "#") || strings.Contains(lines[0], "Global Situation Report")) {
		return strings.TrimSpace(strings.Join(lines[1:], "\n"))
	}
	return text
}
