package kb

// Builtin returns the bundled twelve-entity table. A fresh copy is built on
// every call so callers may mutate the result.
func Builtin() *KB {
	k, err := New(builtinEntities()...)
	if err != nil {
		panic("kb: builtin table is invalid: " + err.Error())
	}
	return k
}

func builtinEntities() []Entity {
	return []Entity{
		{
			ID:          "Q1",
			Name:        "Elon Musk",
			Aliases:     []string{"Musk", "Elon Reeve Musk"},
			Description: "CEO of SpaceX and Tesla.",
			Wikipedia:   "https://en.wikipedia.org/wiki/Elon_Musk",
			Linked:      []string{"Q2", "Q3", "Q4", "Q8", "Q10", "Q11", "Q12"},
			Type:        TypePerson,
		},
		{
			ID:          "Q2",
			Name:        "SpaceX",
			Aliases:     []string{"Space Exploration Technologies Corp."},
			Description: "American aerospace company founded by Elon Musk.",
			Wikipedia:   "https://en.wikipedia.org/wiki/SpaceX",
			Linked:      []string{"Q4"},
			Type:        TypeCompany,
		},
		{
			ID:          "Q3",
			Name:        "Tesla",
			Aliases:     []string{"Tesla Inc.", "Tesla Motors"},
			Description: "Electric vehicle company founded by Elon Musk.",
			Wikipedia:   "https://en.wikipedia.org/wiki/Tesla,_Inc.",
			Linked:      []string{"Q4"},
			Type:        TypeCompany,
		},
		{
			ID:          "Q4",
			Name:        "USA",
			Aliases:     []string{"United States", "United States of America", "America", "US"},
			Description: "Country in North America.",
			Wikipedia:   "https://en.wikipedia.org/wiki/United_States",
			Linked:      []string{},
			Type:        TypeCountry,
		},
		{
			ID:          "Q5",
			Name:        "Vladimir Putin",
			Aliases:     []string{"Putin", "V. Putin"},
			Description: "President of Russia.",
			Wikipedia:   "https://en.wikipedia.org/wiki/Vladimir_Putin",
			Linked:      []string{"Q6"},
			Type:        TypePerson,
		},
		{
			ID:          "Q6",
			Name:        "Russia",
			Aliases:     []string{"Russian Federation", "RF"},
			Description: "Country in Eastern Europe and Northern Asia.",
			Wikipedia:   "https://en.wikipedia.org/wiki/Russia",
			Linked:      []string{},
			Type:        TypeCountry,
		},
		{
			ID:          "Q7",
			Name:        "Barack Obama",
			Aliases:     []string{"Obama", "Barack H. Obama"},
			Description: "44th President of the United States.",
			Wikipedia:   "https://en.wikipedia.org/wiki/Barack_Obama",
			Linked:      []string{"Q4"},
			Type:        TypePerson,
		},
		{
			ID:          "Q8",
			Name:        "Donald Trump",
			Aliases:     []string{"Trump", "Donald J. Trump"},
			Description: "45th President of the United States and Republican nominee in 2024.",
			Wikipedia:   "https://en.wikipedia.org/wiki/Donald_Trump",
			Linked:      []string{"Q4", "Q9"},
			Type:        TypePerson,
		},
		{
			ID:          "Q9",
			Name:        "Republican Party",
			Aliases:     []string{"GOP"},
			Description: "One of the two major political parties in the United States.",
			Wikipedia:   "https://en.wikipedia.org/wiki/Republican_Party_(United_States)",
			Linked:      []string{"Q4"},
			Type:        TypeOrganization,
		},
		{
			ID:          "Q10",
			Name:        "The Wall Street Journal",
			Aliases:     []string{"WSJ"},
			Description: "American business-focused newspaper.",
			Wikipedia:   "https://en.wikipedia.org/wiki/The_Wall_Street_Journal",
			Linked:      []string{"Q4"},
			Type:        TypeOrganization,
		},
		{
			ID:          "Q11",
			Name:        "The Associated Press",
			Aliases:     []string{"AP"},
			Description: "American non-profit news agency headquartered in New York City.",
			Wikipedia:   "https://en.wikipedia.org/wiki/Associated_Press",
			Linked:      []string{"Q4"},
			Type:        TypeOrganization,
		},
		{
			ID:          "Q12",
			Name:        "X",
			Aliases:     []string{"Twitter", "X Corp", "Twitter Inc."},
			Description: "Social media platform owned by Elon Musk, formerly known as Twitter.",
			Wikipedia:   "https://en.wikipedia.org/wiki/X_Corp.",
			Linked:      []string{"Q1", "Q4"},
			Type:        TypeCompany,
		},
	}
}
