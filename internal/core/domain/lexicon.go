package domain

// Lexicon holds the hand-curated term lists used by query understanding and
// ranking. Every list can be replaced from a YAML file at startup.
type Lexicon struct {
	Acronyms            []string `yaml:"acronyms"`
	TechnicalTerms      []string `yaml:"technical_terms"`
	Stopwords           []string `yaml:"stopwords"`
	IgnoredTerms        []string `yaml:"ignored_terms"`
	GenericTitles       []string `yaml:"generic_titles"`
	GenericPatterns     []string `yaml:"generic_patterns"`
	SiteSuffixes        []string `yaml:"site_suffixes"`
	ResearchIndicators  []string `yaml:"research_indicators"`
	SmallTalkPatterns   []string `yaml:"small_talk_patterns"`
	SubstantiveTriggers []string `yaml:"substantive_triggers"`
	ListNamesTriggers   []string `yaml:"list_names_triggers"`
	ListNamesNoise      []string `yaml:"list_names_noise"`
	KTHMarkers          []string `yaml:"kth_markers"`
}

// Merge returns l with every non-empty list of override replacing its own.
func (l Lexicon) Merge(override Lexicon) Lexicon {
	pick := func(base, next []string) []string {
		if len(next) > 0 {
			return next
		}
		return base
	}
	return Lexicon{
		Acronyms:            pick(l.Acronyms, override.Acronyms),
		TechnicalTerms:      pick(l.TechnicalTerms, override.TechnicalTerms),
		Stopwords:           pick(l.Stopwords, override.Stopwords),
		IgnoredTerms:        pick(l.IgnoredTerms, override.IgnoredTerms),
		GenericTitles:       pick(l.GenericTitles, override.GenericTitles),
		GenericPatterns:     pick(l.GenericPatterns, override.GenericPatterns),
		SiteSuffixes:        pick(l.SiteSuffixes, override.SiteSuffixes),
		ResearchIndicators:  pick(l.ResearchIndicators, override.ResearchIndicators),
		SmallTalkPatterns:   pick(l.SmallTalkPatterns, override.SmallTalkPatterns),
		SubstantiveTriggers: pick(l.SubstantiveTriggers, override.SubstantiveTriggers),
		ListNamesTriggers:   pick(l.ListNamesTriggers, override.ListNamesTriggers),
		ListNamesNoise:      pick(l.ListNamesNoise, override.ListNamesNoise),
		KTHMarkers:          pick(l.KTHMarkers, override.KTHMarkers),
	}
}

// DefaultLexicon is tuned for the KTH energy and climate research corpus.
func DefaultLexicon() Lexicon {
	return Lexicon{
		Acronyms: []string{
			"BECCS", "CCS", "CCUS", "DAC", "CO2", "GHG", "LCA", "HVDC", "EV", "PV",
			"CHP", "SOFC", "AI", "ML", "IOT", "NLP", "LLM", "ICT", "SDG", "IPCC",
			"IEA", "EU", "BIM", "CFD", "MOF", "H2", "LNG", "SMR",
		},
		TechnicalTerms: []string{
			"beccs", "ccs", "ccus", "dac", "co2", "ghg", "lca", "hvdc", "pv", "chp",
			"sofc", "smr", "h2", "carbon", "capture", "sequestration", "bioenergy",
			"biomass", "biofuel", "climate", "emission", "emissions", "hydrogen",
			"electrolysis", "battery", "batteries", "solar", "photovoltaic", "wind",
			"renewable", "renewables", "nuclear", "fusion", "geothermal", "grid",
			"electrification", "decarbonization", "decarbonisation", "sustainability",
			"energy", "thermal", "combustion", "heatpump", "fuel", "methane",
		},
		Stopwords: []string{
			// articles and prepositions
			"a", "an", "the", "at", "in", "on", "of", "for", "to", "from", "by",
			"with", "about", "into", "onto", "over", "under", "between", "within",
			"and", "or", "but", "as", "than", "via", "per",
			// question words
			"what", "who", "whom", "whose", "which", "where", "when", "why", "how",
			// auxiliary verbs
			"is", "are", "was", "were", "be", "been", "being", "am", "do", "does",
			"did", "doing", "done", "has", "have", "had", "having", "can", "could",
			"will", "would", "shall", "should", "may", "might", "must",
			// pronouns
			"i", "me", "my", "mine", "you", "your", "yours", "he", "him", "his",
			"she", "her", "hers", "it", "its", "we", "us", "our", "ours", "they",
			"them", "their", "theirs", "this", "that", "these", "those",
			// generic adjectives
			"any", "some", "all", "more", "most", "other", "such", "new", "good",
			"best", "latest", "recent", "current", "main", "different", "various",
			"many", "much", "few", "specific", "general",
			// conversational filler
			"please", "tell", "show", "give", "know", "find", "search", "list",
			"explain", "describe", "want", "like", "need", "get", "let", "just",
			"also", "really", "thanks", "thank", "hello", "hey", "there", "here",
			"something", "anything", "things", "thing", "info", "information",
			"yes", "sure", "okay", "kind", "sort", "lot", "lots",
			// frequent question-word typos
			"waht", "wht", "whta", "hwo", "whos", "wich", "wher", "whats",
		},
		IgnoredTerms: []string{"kth"},
		GenericTitles: []string{
			"kth", "research | kth", "education | kth", "about kth | kth",
			"news | kth", "events | kth", "contact | kth", "staff | kth",
			"people | kth", "schools | kth", "departments | kth", "home | kth",
			"search | kth", "sitemap | kth", "cookies | kth", "login | kth",
			"page not found | kth", "research areas | kth", "research projects | kth",
			"collaboration | kth", "kth intranet", "kth royal institute of technology",
		},
		GenericPatterns: []string{
			`^(school|department|division|unit) of [^|]+\| kth$`,
			`^(about|contact|news|events|calendar|staff|people|organisation|organization|vacancies)( [a-z]+)? \| kth$`,
			`^kth [a-z ]*(portal|intranet|start page)$`,
		},
		SiteSuffixes: []string{"| kth royal institute of technology", "| kth", "- kth"},
		ResearchIndicators: []string{
			"project", "study", "studies", "thesis", "publication", "paper",
			"beccs", "climate", "carbon", "energy", "hydrogen", "battery",
			"emission", "sustainab", "analysis", "experiment", "laboratory",
			"overview", "programme", "program",
		},
		SmallTalkPatterns: []string{
			`^(hi|hello|hey|hej|hiya|yo|greetings|good (morning|afternoon|evening))( there)?[\s!.,]*$`,
			`^(thanks|thank you|thx|ty|cheers|tack)( (so|very) much)?[\s!.,]*$`,
			`^(bye|goodbye|see you|see ya|farewell|ciao|hej då)[\s!.,]*$`,
			`^(how are you|how's it going|what's up)( today)?[\s?!.,]*$`,
		},
		SubstantiveTriggers: []string{
			"research", "researchers", "project", "projects", "paper", "papers",
			"publication", "study", "thesis", "professor", "department", "course",
			"find", "search", "show", "list", "more", "tell", "explain", "continue",
		},
		ListNamesTriggers: []string{
			"who", "researchers", "researcher", "scientists", "scientist",
			"professors", "professor", "experts", "expert", "people", "names",
			"staff", "faculty",
		},
		ListNamesNoise: []string{
			"who", "researchers", "researcher", "scientists", "scientist",
			"professors", "professor", "experts", "expert", "people", "person",
			"names", "name", "staff", "faculty", "team", "members", "group",
			"list", "at", "in", "on", "of", "the", "are", "is", "with", "working",
			"work", "works", "involved", "does", "do", "and", "kth",
		},
		KTHMarkers: []string{"kth", "royal institute of technology", "kungliga tekniska", "eecs", "itm", "abe", "cbh"},
	}
}
