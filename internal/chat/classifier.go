package chat

import (
	"regexp"
	"strings"
	"unicode"
)

// VerdictKind identifies the classification outcome for a request.
type VerdictKind string

const (
	VerdictGreeting        VerdictKind = "greeting"
	VerdictGibberish       VerdictKind = "gibberish"
	VerdictProhibited      VerdictKind = "prohibited"
	VerdictOutOfScope      VerdictKind = "out_of_scope"
	VerdictPersonalAdvice  VerdictKind = "personal_advice"
	VerdictRoleplay        VerdictKind = "roleplay"
	VerdictConversationRef VerdictKind = "conversation_reference"
	VerdictInScope         VerdictKind = "in_scope"
)

// Verdict is the single classification result attached to a request.
type Verdict struct {
	Kind VerdictKind
	// Topic is set for out-of-scope verdicts ("political", "medical", ...,
	// or "unknown" when nothing matched at all).
	Topic string
	// Matched is the keyword or pattern that decided the verdict, for logs.
	Matched string
}

// PriorSignals carries intent hints from earlier turns of the conversation.
type PriorSignals struct {
	HasHistory  bool
	LastVerdict VerdictKind
}

// Keyword sets are bilingual (English + Tagalog). They are package-level and
// never mutated after init.

var legalKeywords = []string{
	"legal", "illegal", "law", "batas", "rights", "karapatan",
	"contract", "kontrata", "sue", "lawsuit", "demanda", "kaso",
	"attorney", "lawyer", "abogado", "court", "korte", "hukuman",
	"republic act", "penal code", "civil code", "labor code", "family code",
	"constitution", "saligang batas", "annulment", "divorce", "custody",
	"inheritance", "mana", "deed", "titulo", "land title", "tenant",
	"lease", "upa", "eviction", "paalisin", "salary", "sahod", "back pay",
	"separation pay", "termination", "tanggal sa trabaho", "barangay",
	"complaint", "reklamo", "warrant", "bail", "piyansa", "estafa",
	"libel", "slander", "harassment", "vawc", "child support", "sustento",
	"crime", "krimen", "penalty", "parusa", "fine", "multa",
}

// outOfScopeTopics are checked in this order. Ties on hit count keep the
// earlier topic, so the reported topic is deterministic.
var outOfScopeTopics = []struct {
	name  string
	words []string
}{
	{"political", []string{
		"election", "eleksyon", "halalan", "politician", "politiko",
		"senator", "senador", "congressman", "president ng pilipinas",
		"partido", "political party", "campaign", "kampanya", "vote for",
		"iboto", "boto", "administration", "oposisyon",
	}},
	{"medical", []string{
		"symptoms", "sintomas", "diagnosis", "gamot", "medication",
		"dosage", "treatment para", "sakit ko", "doctor ba", "vaccine",
		"operasyon", "surgery", "prescription", "reseta",
	}},
	{"financial", []string{
		"stock market", "crypto", "bitcoin", "forex", "trading tips",
		"investment advice", "saan mag-invest", "paano yumaman",
		"best stocks", "mutual fund", "interest rate forecast",
	}},
	{"religious", []string{
		"bible", "bibliya", "quran", "salvation", "kaligtasan ng kaluluwa",
		"simbahan ba", "religion ba", "panalangin", "prayer", "pastor",
		"pari", "diyos ba",
	}},
	{"entertainment", []string{
		"teleserye", "celebrity", "artista", "chismis", "showbiz",
		"basketball", "pba", "movie", "pelikula", "kdrama", "concert",
		"lyrics", "kanta",
	}},
}

// prohibitedPatterns match requests to facilitate crime. A match is a hard
// refusal regardless of any legal keyword also present.
var prohibitedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bhow\s+to\s+(launder|smuggle|forge|counterfeit|bribe)\b`),
	regexp.MustCompile(`(?i)\bpaano\s+(mag|maka|i)?-?\s*(nakaw|scam|dupe|peke|lusot\s+sa\s+batas)`),
	regexp.MustCompile(`(?i)\b(evade|avoid\s+paying|iwasan\s+ang)\s+(tax(es)?|buwis)\b.*\b(illegally|without\s+getting\s+caught|nang\s+hindi\s+nahuhuli)`),
	regexp.MustCompile(`(?i)\b(fake|pekeng)\s+(id|passport|documents?|dokumento|birth\s+certificate|nbi\s+clearance)\b`),
	regexp.MustCompile(`(?i)\bget\s+away\s+with\s+(a\s+)?(crime|murder|theft|estafa)\b`),
	regexp.MustCompile(`(?i)\bmakalusot\s+sa\s+(kaso|krimen|batas)\b`),
	regexp.MustCompile(`(?i)\b(hack|hacking|i-hack)\b.*\b(account|system|database|cctv)\b`),
	regexp.MustCompile(`(?i)\b(buy|bumili|saan\s+makakabili)\b.*\b(unlicensed|ilegal\s+na)\s+(gun|baril|armas)\b`),
	regexp.MustCompile(`(?i)\bdestroy\s+(the\s+)?evidence\b|\bsirain\s+ang\s+ebidensya\b`),
	regexp.MustCompile(`(?i)\bthreaten\s+(a\s+)?witness\b|\btakutin\s+ang\s+testigo\b`),
}

var personalAdvicePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bwhat\s+should\s+i\s+do\b`),
	regexp.MustCompile(`(?i)\bshould\s+i\s+(file|sue|sign|accept|settle|plead)\b`),
	regexp.MustCompile(`(?i)\bano\s+(ang\s+)?dapat\s+kong\s+gawin\b`),
	regexp.MustCompile(`(?i)\bdapat\s+ba\s+akong?\b`),
	regexp.MustCompile(`(?i)\b(advice|payo)\s+(for|sa|tungkol\s+sa)\s+(my|aking|akin)\b`),
	regexp.MustCompile(`(?i)\bhandle\s+my\s+case\b`),
	regexp.MustCompile(`(?i)\btulungan\s+mo\s+ako\s+sa\s+kaso\s+ko\b`),
	regexp.MustCompile(`(?i)\bin\s+my\s+(case|situation)\b.*\?`),
	regexp.MustCompile(`(?i)\bpanalo\s+ba\s+ako\b|\bwill\s+i\s+win\b`),
}

var roleplayPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(act|magpanggap)\s+as\s+(my|if\s+you\s+are\s+(a|my))\s*(lawyer|attorney|abogado)?\b`),
	regexp.MustCompile(`(?i)\bpretend\s+(that\s+)?you('?re|\s+are)\s+(a\s+|my\s+)?(lawyer|attorney|abogado)\b`),
	regexp.MustCompile(`(?i)\bbe\s+my\s+(lawyer|attorney|abogado)\b`),
	regexp.MustCompile(`(?i)\bmagpanggap\s+ka(ng)?\s+(na\s+)?abogado\b`),
	regexp.MustCompile(`(?i)\broleplay\b`),
	regexp.MustCompile(`(?i)\brepresent\s+me\s+in\s+court\b`),
}

var conversationRefPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(earlier|kanina|before)\s+(you|mo|i|ko)\s+(said|sinabi|asked|tinanong)\b`),
	regexp.MustCompile(`(?i)\bwhat\s+did\s+(i|you)\s+(just\s+)?(say|ask)\b`),
	regexp.MustCompile(`(?i)\b(my|ang)\s+(previous|last|huling|naunang)\s+(question|message|tanong|mensahe)\b`),
	regexp.MustCompile(`(?i)\bano\s+(ulit|nga\s+ulit)\s+(ang|yung)\b`),
	regexp.MustCompile(`(?i)\bgoing\s+back\s+to\s+(what|your)\b`),
	regexp.MustCompile(`(?i)\bbalikan\s+natin\b`),
	regexp.MustCompile(`(?i)\bsummari[sz]e\s+(our|this|the)\s+(chat|conversation|usapan)\b`),
}

var greetingPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\s*(hi|hello|hey|yo|sup)\s*[!.,]*\s*(po|there)?\s*[!.,]*$`),
	regexp.MustCompile(`(?i)^\s*(good\s+(morning|afternoon|evening)|magandang\s+(umaga|hapon|gabi))\s*(po)?\s*[!.,]*$`),
	regexp.MustCompile(`(?i)^\s*(kumusta|kamusta|musta)\s*(po|ka|kayo|na)?\s*[?!.,]*$`),
	regexp.MustCompile(`(?i)^\s*(thank\s*you|thanks|salamat)\s*(po)?\s*[!.,]*$`),
}

var questionIndicators = []string{
	"what", "how", "why", "when", "where", "who", "which", "can i",
	"is it", "are there", "do i", "does", "ano", "paano", "bakit",
	"kailan", "saan", "sino", "alin", "pwede ba", "puwede ba", "may",
	"meron ba", "legal ba", "bawal ba", "?",
}

// classifierInput is the pre-computed view of a request that every checker
// reads. Checkers never re-lowercase or re-scan on their own.
type classifierInput struct {
	raw     string
	lowered string
	prior   PriorSignals
}

// verdictCheck returns a verdict when its condition matches, nil otherwise.
// Checkers run in a fixed priority order and the first match wins.
type verdictCheck func(in classifierInput) *Verdict

var verdictChecks = []verdictCheck{
	checkGibberish,
	checkProhibited,
	checkConversationRef,
	checkPersonalAdvice,
	checkRoleplay,
	checkGreeting,
	checkOutOfScope,
}

// Classify assigns exactly one verdict to the raw request text. It is a pure
// function over the lexical pattern sets above: no I/O, no side effects.
//
// Priority order matters and is part of the contract:
// gibberish and prohibited-activity checks short-circuit everything;
// conversation references are resolved before the casual/legal split;
// personal-advice and roleplay requests trigger regardless of topic scope;
// and any in-scope legal keyword suppresses out-of-scope classification so
// that mixed questions ("is it legal to invest without a contract") are not
// falsely refused.
func Classify(text string, prior PriorSignals) Verdict {
	in := classifierInput{
		raw:     strings.TrimSpace(text),
		lowered: strings.ToLower(strings.TrimSpace(text)),
		prior:   prior,
	}

	for _, check := range verdictChecks {
		if v := check(in); v != nil {
			return *v
		}
	}

	if hasAnyKeyword(in.lowered, legalKeywords) || hasQuestionIndicator(in.lowered) {
		return Verdict{Kind: VerdictInScope}
	}
	return Verdict{Kind: VerdictOutOfScope, Topic: "unknown"}
}

func checkGibberish(in classifierInput) *Verdict {
	runes := []rune(in.raw)
	if len(runes) < 2 {
		return &Verdict{Kind: VerdictGibberish, Matched: "too_short"}
	}

	letters, total := 0, 0
	vowels := 0
	uniq := map[rune]bool{}
	for _, r := range runes {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		uniq[r] = true
		if unicode.IsLetter(r) {
			letters++
			switch unicode.ToLower(r) {
			case 'a', 'e', 'i', 'o', 'u':
				vowels++
			}
		}
	}
	if total == 0 {
		return &Verdict{Kind: VerdictGibberish, Matched: "too_short"}
	}
	if float64(letters)/float64(total) < 0.3 {
		return &Verdict{Kind: VerdictGibberish, Matched: "low_letter_ratio"}
	}
	if len(uniq) <= 2 && total >= 5 {
		return &Verdict{Kind: VerdictGibberish, Matched: "repeated_chars"}
	}
	if letters >= 6 && vowels == 0 {
		return &Verdict{Kind: VerdictGibberish, Matched: "no_vowels"}
	}
	return nil
}

func checkProhibited(in classifierInput) *Verdict {
	for _, re := range prohibitedPatterns {
		if re.MatchString(in.raw) {
			return &Verdict{Kind: VerdictProhibited, Matched: re.String()}
		}
	}
	return nil
}

func checkConversationRef(in classifierInput) *Verdict {
	for _, re := range conversationRefPatterns {
		if re.MatchString(in.raw) {
			return &Verdict{Kind: VerdictConversationRef, Matched: re.String()}
		}
	}
	// Bare follow-ups ("and then?", "ano pa?") only count as references to
	// the prior exchange when there is one.
	if in.prior.HasHistory && len([]rune(in.raw)) <= 12 {
		switch in.lowered {
		case "and then?", "then what?", "ano pa?", "tapos?", "more", "continue", "ituloy mo":
			return &Verdict{Kind: VerdictConversationRef, Matched: "short_follow_up"}
		}
	}
	return nil
}

func checkPersonalAdvice(in classifierInput) *Verdict {
	for _, re := range personalAdvicePatterns {
		if re.MatchString(in.raw) {
			return &Verdict{Kind: VerdictPersonalAdvice, Matched: re.String()}
		}
	}
	return nil
}

func checkRoleplay(in classifierInput) *Verdict {
	for _, re := range roleplayPatterns {
		if re.MatchString(in.raw) {
			return &Verdict{Kind: VerdictRoleplay, Matched: re.String()}
		}
	}
	return nil
}

func checkGreeting(in classifierInput) *Verdict {
	for _, re := range greetingPatterns {
		if re.MatchString(in.raw) {
			return &Verdict{Kind: VerdictGreeting, Matched: re.String()}
		}
	}
	return nil
}

func checkOutOfScope(in classifierInput) *Verdict {
	// Any legal indicator suppresses out-of-scope classification outright.
	if hasAnyKeyword(in.lowered, legalKeywords) {
		return nil
	}

	bestTopic := ""
	bestHits := 0
	bestMatch := ""
	for _, topic := range outOfScopeTopics {
		hits := 0
		match := ""
		for _, w := range topic.words {
			if containsWord(in.lowered, w) {
				hits++
				if match == "" {
					match = w
				}
			}
		}
		if hits > bestHits {
			bestHits = hits
			bestTopic = topic.name
			bestMatch = match
		}
	}
	if bestHits > 0 {
		return &Verdict{Kind: VerdictOutOfScope, Topic: bestTopic, Matched: bestMatch}
	}
	return nil
}

func hasAnyKeyword(lowered string, words []string) bool {
	for _, w := range words {
		if containsWord(lowered, w) {
			return true
		}
	}
	return false
}

func hasQuestionIndicator(lowered string) bool {
	if strings.Contains(lowered, "?") {
		return true
	}
	for _, w := range questionIndicators {
		if w == "?" {
			continue
		}
		if containsWord(lowered, w) {
			return true
		}
	}
	return false
}

// containsWord reports whether the phrase appears on word boundaries. Plain
// strings.Contains would make "law" match "flaw" and "pba" match "probably".
func containsWord(lowered, phrase string) bool {
	idx := 0
	for {
		i := strings.Index(lowered[idx:], phrase)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(phrase)
		beforeOK := start == 0 || !isWordRune(rune(lowered[start-1]))
		afterOK := end >= len(lowered) || !isWordRune(rune(lowered[end]))
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
		if idx >= len(lowered) {
			return false
		}
	}
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
