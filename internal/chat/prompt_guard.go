package chat

import (
	"regexp"
	"strings"
)

// InjectionCategory labels the dominant family of injection signals found.
type InjectionCategory string

const (
	InjectionNone                InjectionCategory = ""
	InjectionDirect              InjectionCategory = "direct_injection"
	InjectionExfiltration        InjectionCategory = "exfiltration"
	InjectionObfuscation         InjectionCategory = "obfuscation"
	InjectionContextManipulation InjectionCategory = "context_manipulation"
)

// RiskLevel buckets the severity score for logging and violation records.
type RiskLevel string

const (
	RiskNone     RiskLevel = "none"
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// InjectionResult contains the result of a prompt injection scan.
type InjectionResult struct {
	// Detected is true if the message should NOT reach the retrieval gate.
	Detected bool
	// Category is the family with the highest-weighted matched pattern.
	Category InjectionCategory
	// Severity is a heuristic risk score (0.0 = safe, 1.0 = definitely injection).
	Severity float64
	// RiskLevel buckets Severity.
	RiskLevel RiskLevel
	// Reasons lists the detection signals that fired.
	Reasons []string
}

type injectionPattern struct {
	re       *regexp.Regexp
	reason   string
	category InjectionCategory
	weight   float64
}

// injectionBlockThreshold: messages scoring at or above this are treated as
// injection attempts and refused.
const injectionBlockThreshold = 0.7

var injectionPatterns = []injectionPattern{
	// Direct injection: attempts to override system instructions.
	{regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above|earlier|your)\s+(instructions?|rules?|prompts?|guidelines?|directives?|programming)`), "direct_injection:ignore_instructions", InjectionDirect, 0.9},
	{regexp.MustCompile(`(?i)(disregard|forget)\s+(all\s+)?(previous|prior|above|earlier|your)\s+(instructions?|rules?|prompts?|guidelines?|directives?)`), "direct_injection:discard_instructions", InjectionDirect, 0.9},
	{regexp.MustCompile(`(?i)kalimutan\s+mo\s+(na\s+)?(ang\s+)?(lahat\s+ng\s+)?(instructions?|utos|patakaran)`), "direct_injection:discard_instructions_tl", InjectionDirect, 0.9},
	{regexp.MustCompile(`(?i)you\s+are\s+now\s+(a|an|my)\s+`), "direct_injection:role_reassignment", InjectionDirect, 0.7},
	{regexp.MustCompile(`(?i)new\s+role\s*:|new\s+instructions?\s*:|system\s*prompt\s*:|<<\s*sys(tem)?\s*>>`), "direct_injection:new_role", InjectionDirect, 0.9},
	{regexp.MustCompile(`(?i)override\s+(your\s+)?(system|instructions?|rules?|safety|guidelines?)`), "direct_injection:override", InjectionDirect, 0.8},
	{regexp.MustCompile(`(?i)(pretend|imagine|suppose|assume)\s+(that\s+)?(you\s+)?(are|have|were|don'?t\s+have)\s+(no\s+)?(rules?|restrictions?|limits?|boundaries|guidelines?|filters?|safety)`), "direct_injection:pretend_no_rules", InjectionDirect, 0.9},
	{regexp.MustCompile(`(?i)do\s+not\s+follow\s+(your|the|any)\s+(rules?|instructions?|guidelines?|safety)`), "direct_injection:do_not_follow", InjectionDirect, 0.9},
	{regexp.MustCompile(`(?i)bypass\s+(your\s+)?(safety|filters?|restrictions?|guidelines?|rules?|content\s+policy)`), "direct_injection:bypass", InjectionDirect, 0.8},
	{regexp.MustCompile(`(?i)jailbreak|DAN\s*mode|developer\s*mode|unrestricted\s*mode|god\s*mode`), "direct_injection:jailbreak_keyword", InjectionDirect, 0.9},

	// Exfiltration: attempts to extract the system prompt or internal data.
	{regexp.MustCompile(`(?i)(reveal|show|display|print|output|repeat|tell\s+me|what\s+(is|are))\s+(your\s+)?(system\s+prompt|instructions?|rules?|initial\s+prompt|hidden\s+prompt|system\s+message|original\s+prompt)`), "exfiltration:system_prompt", InjectionExfiltration, 0.8},
	{regexp.MustCompile(`(?i)(what|list|show|give|tell)\s+(me\s+)?(all\s+)?(the\s+)?(other\s+)?users?('?s)?\s+(data|questions?|conversations?|records?|details?|histor(y|ies))`), "exfiltration:user_data", InjectionExfiltration, 0.7},
	{regexp.MustCompile(`(?i)(what|list|show|give|tell)\s+(me\s+)?(the\s+)?(all\s+)?(api|secret|key|token|password|credential|database|env|config)\b`), "exfiltration:credentials", InjectionExfiltration, 0.8},
	{regexp.MustCompile(`(?i)\b(api|secret|aws|openai|bedrock|database|db)\s*(key|token|secret|password|credential)s?\b`), "exfiltration:credentials_keyword", InjectionExfiltration, 0.8},
	{regexp.MustCompile(`(?i)repeat\s+(everything|all|the\s+text)\s+(above|before|from\s+the\s+start|from\s+the\s+beginning)`), "exfiltration:repeat_above", InjectionExfiltration, 0.7},
	{regexp.MustCompile(`(?i)what\s+(?:were\s+)?you\s+(?:were\s+)?told\s+(before|initially|at\s+the\s+(start|beginning))`), "exfiltration:what_told", InjectionExfiltration, 0.6},

	// Obfuscation: attempts to smuggle instructions past the filters.
	{regexp.MustCompile(`(?i)base64\s*(encode|decode|:)|\\x[0-9a-fA-F]{2}`), "obfuscation:encoding", InjectionObfuscation, 0.5},
	{regexp.MustCompile(`(?i)(translate|convert|encode)\s+(this|the\s+following)\s+(to|into|as)\s+(base64|hex|rot13|binary|morse)`), "obfuscation:encoding_request", InjectionObfuscation, 0.4},
	{regexp.MustCompile(`!\[.*\]\(https?://`), "obfuscation:markdown_image", InjectionObfuscation, 0.4},
	{regexp.MustCompile(`<\s*(script|img|iframe|object|embed|link|style|svg|form)\b`), "obfuscation:html_injection", InjectionObfuscation, 0.6},

	// Context manipulation: attempts to change the conversation frame.
	{regexp.MustCompile(`(?i)(end\s+of\s+)?(system|assistant)\s*(message|prompt|instructions?)\s*[\-=]{2,}`), "context_manipulation:fake_boundary", InjectionContextManipulation, 0.8},
	{regexp.MustCompile(`(?i)\[/?INST\]|\[/?SYS\]|<\|im_start\|>|<\|im_end\|>|<\|system\|>|<\|user\|>|<\|assistant\|>`), "context_manipulation:special_tokens", InjectionContextManipulation, 0.9},
	{regexp.MustCompile(`(?i)###\s*(system|instruction|human|assistant|user)\s*:`), "context_manipulation:role_markers", InjectionContextManipulation, 0.7},
	{regexp.MustCompile(`(?i)(previous|above)\s+conversation\s+(is|was)\s+(just\s+)?(a\s+)?(test|example|fake|simulation)`), "context_manipulation:dismiss_context", InjectionContextManipulation, 0.7},
	{regexp.MustCompile(`(?i)the\s+real\s+(instructions?|task|prompt|conversation)\s+(is|starts?|begins?)`), "context_manipulation:real_instructions", InjectionContextManipulation, 0.8},
}

// ScanForInjection analyzes inbound user text for prompt injection attempts.
func ScanForInjection(message string) InjectionResult {
	if strings.TrimSpace(message) == "" {
		return InjectionResult{RiskLevel: RiskNone}
	}

	var reasons []string
	maxWeight := 0.0
	category := InjectionNone

	for _, p := range injectionPatterns {
		if p.re.MatchString(message) {
			reasons = append(reasons, p.reason)
			if p.weight > maxWeight {
				maxWeight = p.weight
				category = p.category
			}
		}
	}

	// Severity: the max individual weight, boosted when multiple signals
	// fire (capped at 1.0).
	severity := maxWeight
	if len(reasons) > 1 {
		severity = maxWeight + float64(len(reasons)-1)*0.1
		if severity > 1.0 {
			severity = 1.0
		}
	}

	result := InjectionResult{
		Category:  category,
		Severity:  severity,
		RiskLevel: riskLevelFor(severity),
		Reasons:   reasons,
	}
	if severity >= injectionBlockThreshold {
		result.Detected = true
	}
	return result
}

func riskLevelFor(severity float64) RiskLevel {
	switch {
	case severity == 0:
		return RiskNone
	case severity < 0.3:
		return RiskLow
	case severity < injectionBlockThreshold:
		return RiskMedium
	case severity < 0.9:
		return RiskHigh
	default:
		return RiskCritical
	}
}
