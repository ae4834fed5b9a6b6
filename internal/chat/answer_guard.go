package chat

import (
	"regexp"
	"strings"
)

// AnswerGuardResult contains the result of the post-generation review of a
// complete answer. The review runs after streaming finishes, so a failed
// check replaces the stored answer rather than the streamed one.
type AnswerGuardResult struct {
	// Replaced is true when the answer was swapped for a safe fallback.
	Replaced bool
	// FinalAnswer is the text that should be persisted and shown on reload.
	FinalAnswer string
	// NeedsDisclaimer is true when the answer stands but must carry the
	// general-information disclaimer.
	NeedsDisclaimer bool
	// Reasons lists the detection signals that fired.
	Reasons []string
}

// advicePattern flags phrasing that turns general legal information into
// personalized legal advice.
type advicePattern struct {
	re     *regexp.Regexp
	reason string
}

var adviceAnswerPatterns = []advicePattern{
	{regexp.MustCompile(`(?i)\byou should (file|sue|sign|plead|accept|reject|demand|report)\b`), "advice:directive_en"},
	{regexp.MustCompile(`(?i)\bi (recommend|advise|suggest) that you\b`), "advice:recommendation_en"},
	{regexp.MustCompile(`(?i)\bin your (case|situation),? (you|the best)\b`), "advice:case_specific_en"},
	{regexp.MustCompile(`(?i)\byour best (option|course of action|legal remedy) is\b`), "advice:best_option_en"},
	{regexp.MustCompile(`(?i)\bdapat (mong?|kang|ka nang?) (mag|i-?|kasuhan|sampahan)`), "advice:directive_fil"},
	{regexp.MustCompile(`(?i)\b(inirerekomenda|ipinapayo) ko(ng)? (na )?\b`), "advice:recommendation_fil"},
	{regexp.MustCompile(`(?i)\bsa (kaso|sitwasyon) mo,?\b`), "advice:case_specific_fil"},
}

// answerLeakPattern mirrors the prompt-side scan for text that must never
// leave the service in an answer.
type answerLeakPattern struct {
	re     *regexp.Regexp
	reason string
}

var answerLeakPatterns = []answerLeakPattern{
	{regexp.MustCompile(`(?i)my (system\s+)?prompt\s+(is|says|tells|instructs)`), "leak:system_prompt_disclosure"},
	{regexp.MustCompile(`(?i)my instructions?\s+(are|say|tell|include|require)`), "leak:instructions_disclosure"},
	{regexp.MustCompile(`(?i)i('m| am) (programmed|instructed|told|designed|configured) to`), "leak:programming_disclosure"},
	{regexp.MustCompile(`(?i)(powered by|built on|running on|using)\s+(Claude|GPT|OpenAI|Anthropic|Bedrock|AWS)`), "leak:tech_stack"},
	{regexp.MustCompile(`(?i)(api[_\s]?key|secret[_\s]?key|access[_\s]?token|bearer\s+token)\s*[:=]\s*\S+`), "leak:credential"},
	{regexp.MustCompile(`(?i)(postgres|mysql|redis|mongodb)://\S+`), "leak:database_url"},
}

// unsafeAnswerPatterns catch answers that drifted into content the service
// refuses to produce even when grounded.
var unsafeAnswerPatterns = []answerLeakPattern{
	{regexp.MustCompile(`(?i)\bhow to (evade|avoid) (arrest|prosecution|a warrant)\b`), "unsafe:evasion"},
	{regexp.MustCompile(`(?i)\b(falsify|forge) (a |an )?(document|affidavit|signature|evidence)\b`), "unsafe:falsification"},
	{regexp.MustCompile(`(?i)\bwithout getting caught\b`), "unsafe:concealment"},
}

// ReviewAnswer validates a complete generated answer. Personalized advice or
// unsafe content replaces the answer entirely; an otherwise clean answer is
// marked as needing the standing disclaimer.
func ReviewAnswer(answer string, lang Language) AnswerGuardResult {
	trimmed := strings.TrimSpace(answer)
	if trimmed == "" {
		return AnswerGuardResult{
			Replaced:    true,
			FinalAnswer: InsufficientGroundingText(lang),
			Reasons:     []string{"empty_answer"},
		}
	}

	var reasons []string
	replace := false

	for _, p := range adviceAnswerPatterns {
		if p.re.MatchString(trimmed) {
			reasons = append(reasons, p.reason)
			replace = true
		}
	}
	for _, p := range answerLeakPatterns {
		if p.re.MatchString(trimmed) {
			reasons = append(reasons, p.reason)
			replace = true
		}
	}
	for _, p := range unsafeAnswerPatterns {
		if p.re.MatchString(trimmed) {
			reasons = append(reasons, p.reason)
			replace = true
		}
	}

	if replace {
		return AnswerGuardResult{
			Replaced:    true,
			FinalAnswer: ReplacedAnswerText(lang),
			Reasons:     reasons,
		}
	}

	return AnswerGuardResult{
		FinalAnswer:     trimmed,
		NeedsDisclaimer: true,
	}
}
