package chat

// Canned responses for requests that never reach generation. Each verdict
// kind maps to a fixed English and Filipino reply; Taglish callers get the
// Filipino variant.

var refusalTexts = map[VerdictKind]map[Language]string{
	VerdictGreeting: {
		LanguageEnglish:  "Hello! I can help you with questions about Philippine law. What would you like to know?",
		LanguageFilipino: "Kumusta! Maaari akong tumulong sa mga tanong tungkol sa batas ng Pilipinas. Ano ang nais mong malaman?",
	},
	VerdictGibberish: {
		LanguageEnglish:  "I couldn't understand that message. Could you rephrase your question about Philippine law?",
		LanguageFilipino: "Hindi ko naintindihan ang mensaheng iyon. Maaari mo bang ulitin ang iyong tanong tungkol sa batas?",
	},
	VerdictProhibited: {
		LanguageEnglish:  "I can't help with that request. I only provide general information about Philippine law for lawful purposes.",
		LanguageFilipino: "Hindi ako makakatulong sa kahilingang iyan. Pangkalahatang impormasyon lamang tungkol sa batas ng Pilipinas ang maibibigay ko, para sa mga naaayon sa batas na layunin.",
	},
	VerdictOutOfScope: {
		LanguageEnglish:  "That topic is outside what I can help with. I answer general questions about Philippine law only.",
		LanguageFilipino: "Ang paksang iyan ay labas sa aking saklaw. Mga pangkalahatang tanong lamang tungkol sa batas ng Pilipinas ang masasagot ko.",
	},
	VerdictPersonalAdvice: {
		LanguageEnglish:  "I can't give advice on your specific case. For decisions about your own situation, please consult a licensed Philippine lawyer. I can still explain the general law on the topic if you'd like.",
		LanguageFilipino: "Hindi ako makapagbigay ng payo para sa iyong partikular na kaso. Para sa mga desisyon tungkol sa sarili mong sitwasyon, kumonsulta sa isang lisensyadong abogado. Maaari ko pa ring ipaliwanag ang pangkalahatang batas tungkol sa paksa kung nais mo.",
	},
	VerdictRoleplay: {
		LanguageEnglish:  "I can't take on other roles or personas. I can answer general questions about Philippine law.",
		LanguageFilipino: "Hindi ako maaaring gumanap ng ibang papel o persona. Masasagot ko ang mga pangkalahatang tanong tungkol sa batas ng Pilipinas.",
	},
	VerdictConversationRef: {
		LanguageEnglish:  "I don't keep details from earlier sessions. Could you restate your question in full?",
		LanguageFilipino: "Hindi ko naitatago ang mga detalye mula sa mga naunang sesyon. Maaari mo bang isulat muli nang buo ang iyong tanong?",
	},
}

// RefusalText returns the canned reply for a non-answerable verdict, or ""
// when the verdict should proceed to generation.
func RefusalText(kind VerdictKind, lang Language) string {
	byLang, ok := refusalTexts[kind]
	if !ok {
		return ""
	}
	if lang == LanguageEnglish {
		return byLang[LanguageEnglish]
	}
	return byLang[LanguageFilipino]
}

// InsufficientGroundingText is the terminal reply when retrieval finds no
// usable sources. The wording never claims the law is silent, only that the
// service can't answer from its sources.
func InsufficientGroundingText(lang Language) string {
	if lang == LanguageEnglish {
		return "I don't have enough information in my legal sources to answer that reliably. Please consult a licensed Philippine lawyer for this question."
	}
	return "Wala akong sapat na impormasyon sa aking mga legal na sanggunian upang masagot iyan nang maayos. Mangyaring kumonsulta sa isang lisensyadong abogado para sa tanong na ito."
}

// BlockedText is the reply shown when safety screening rejects the message.
func BlockedText(lang Language) string {
	if lang == LanguageEnglish {
		return "I can't respond to that message. Please keep questions respectful and within the scope of Philippine law."
	}
	return "Hindi ako makakatugon sa mensaheng iyan. Panatilihing magalang ang mga tanong at nasa saklaw ng batas ng Pilipinas."
}

// ReplacedAnswerText substitutes for a generated answer that failed the
// post-generation review.
func ReplacedAnswerText(lang Language) string {
	if lang == LanguageEnglish {
		return "I can only provide general legal information, and part of my draft answer went beyond that. For guidance on your specific situation, please consult a licensed Philippine lawyer."
	}
	return "Pangkalahatang legal na impormasyon lamang ang maibibigay ko, at lumampas doon ang bahagi ng aking sagot. Para sa gabay sa iyong partikular na sitwasyon, kumonsulta sa isang lisensyadong abogado."
}

// DisclaimerText is appended (as a separate event) to every successful answer.
func DisclaimerText(lang Language) string {
	if lang == LanguageEnglish {
		return "This is general legal information, not legal advice. For advice on your specific situation, consult a licensed Philippine lawyer."
	}
	return "Ito ay pangkalahatang legal na impormasyon, hindi legal na payo. Para sa payo sa iyong partikular na sitwasyon, kumonsulta sa isang lisensyadong abogado."
}
