package nelgraph

// DemoTexts returns the two sample texts: a short one with misspelled names
// and a news paragraph.
func DemoTexts() []string {
	return []string{
		"Elonn Mask and Vlademir Poutin met in the US",
		"WASHINGTON (AP) — Elon Musk, the billionaire owner of major government contractor SpaceX and a key ally of Republican presidential nominee Donald Trump, has been in regular contact with Russian President Vladimir Putin for the last two years, The Wall Street Journal reported. A person familiar with the situation, who spoke on condition of anonymity to discuss the sensitive matter, confirmed to The Associated Press that Musk and Putin have had contact through calls. The person didn’t provide additional details about the frequency of the calls, when they occurred or their content. Musk, the world’s richest man who also owns Tesla and the social platform X, has emerged as a leading voice on the American right. He’s poured millions of dollars into Trump’s presidential bid and turned the platform once known as Twitter into a site popular with Trump supporters, as well as conspiracy theorists, extremists and Russian propagandists. ",
	}
}
