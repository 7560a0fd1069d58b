package eval

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Difficulty levels for evaluation datasets.
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

// Dataset is a collection of annotated texts.
type Dataset struct {
	Name       string     `json:"name" yaml:"name"`
	Difficulty string     `json:"difficulty" yaml:"difficulty"`
	Tests      []TestCase `json:"tests" yaml:"tests"`
}

// TestCase is one text with its gold mentions.
type TestCase struct {
	Text        string         `json:"text" yaml:"text"`
	Expected    []ExpectedLink `json:"expected" yaml:"expected"`
	Category    string         `json:"category" yaml:"category"` // exact, alias, misspelled, news, nil
	Explanation string         `json:"explanation,omitempty" yaml:"explanation,omitempty"`
}

// ExpectedLink is a gold mention. An empty EntityID marks a mention that
// should be tagged but left unlinked.
type ExpectedLink struct {
	Mention  string `json:"mention" yaml:"mention"`
	EntityID string `json:"entity_id,omitempty" yaml:"entity_id,omitempty"`
}

// LoadDataset reads a dataset from a .json, .yaml or .yml file.
func LoadDataset(path string) (Dataset, error) {
	var ds Dataset
	data, err := os.ReadFile(path)
	if err != nil {
		return ds, fmt.Errorf("reading dataset: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &ds)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &ds)
	default:
		return ds, fmt.Errorf("unsupported dataset format %q", filepath.Ext(path))
	}
	if err != nil {
		return ds, fmt.Errorf("parsing dataset %s: %w", path, err)
	}
	if ds.Name == "" {
		ds.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	for i, tc := range ds.Tests {
		if strings.TrimSpace(tc.Text) == "" {
			return ds, fmt.Errorf("dataset %s: test %d has empty text", path, i+1)
		}
	}
	return ds, nil
}

// Datasets returns the builtin datasets for a difficulty, or all of them
// for "all".
func Datasets(difficulty string) ([]Dataset, error) {
	all := []Dataset{EasyDataset(), MediumDataset(), HardDataset()}
	if difficulty == "" || difficulty == "all" {
		return all, nil
	}
	for _, ds := range all {
		if ds.Difficulty == difficulty {
			return []Dataset{ds}, nil
		}
	}
	return nil, fmt.Errorf("unknown difficulty %q", difficulty)
}

// EasyDataset covers canonical names and aliases spelled as in the KB.
func EasyDataset() Dataset {
	return Dataset{
		Name:       "Easy - Exact Names",
		Difficulty: DifficultyEasy,
		Tests: []TestCase{
			{
				Text:     "Obama met Trump.",
				Expected: []ExpectedLink{{"Obama", "Q7"}, {"Trump", "Q8"}},
				Category: "alias",
			},
			{
				Text:     "Elon Musk runs SpaceX and Tesla.",
				Expected: []ExpectedLink{{"Elon Musk", "Q1"}, {"SpaceX", "Q2"}, {"Tesla", "Q3"}},
				Category: "exact",
			},
			{
				Text:     "The WSJ and the AP both covered the GOP convention.",
				Expected: []ExpectedLink{{"WSJ", "Q10"}, {"AP", "Q11"}, {"GOP", "Q9"}},
				Category: "alias",
			},
			{
				Text:     "Vladimir Putin spoke about Russia and the United States.",
				Expected: []ExpectedLink{{"Vladimir Putin", "Q5"}, {"Russia", "Q6"}, {"United States", "Q4"}},
				Category: "exact",
			},
		},
	}
}

// MediumDataset covers misspelled names that need fuzzy matching.
func MediumDataset() Dataset {
	return Dataset{
		Name:       "Medium - Misspellings",
		Difficulty: DifficultyMedium,
		Tests: []TestCase{
			{
				Text:        "Elonn Mask and Vlademir Poutin met in the US",
				Expected:    []ExpectedLink{{"Elonn Mask", "Q1"}, {"Vlademir Poutin", "Q5"}, {"US", "Q4"}},
				Category:    "misspelled",
				Explanation: "short demo text",
			},
			{
				Text:     "Barak Obama and Donald Trumpp debated.",
				Expected: []ExpectedLink{{"Barak Obama", "Q7"}, {"Donald Trumpp", "Q8"}},
				Category: "misspelled",
			},
			{
				Text:     "Reporters from The Wall Street Journel were there.",
				Expected: []ExpectedLink{{"The Wall Street Journel", "Q10"}},
				Category: "misspelled",
			},
		},
	}
}

// HardDataset covers a full news paragraph and mentions with no KB entry.
func HardDataset() Dataset {
	return Dataset{
		Name:       "Hard - News and NIL Mentions",
		Difficulty: DifficultyHard,
		Tests: []TestCase{
			{
				Text: "WASHINGTON (AP) — Elon Musk, the billionaire owner of major government contractor SpaceX and a key ally of Republican presidential nominee Donald Trump, has been in regular contact with Russian President Vladimir Putin for the last two years, The Wall Street Journal reported. A person familiar with the situation confirmed to The Associated Press that Musk and Putin have had contact through calls. Musk also owns Tesla and turned the platform once known as Twitter into a site popular with Trump supporters.",
				Expected: []ExpectedLink{
					{"AP", "Q11"},
					{"Elon Musk", "Q1"},
					{"SpaceX", "Q2"},
					{"Donald Trump", "Q8"},
					{"Vladimir Putin", "Q5"},
					{"The Wall Street Journal", "Q10"},
					{"The Associated Press", "Q11"},
					{"Musk", "Q1"},
					{"Putin", "Q5"},
					{"Musk", "Q1"},
					{"Tesla", "Q3"},
					{"Twitter", "Q12"},
					{"Trump", "Q8"},
				},
				Category:    "news",
				Explanation: "abridged news demo paragraph",
			},
			{
				Text:     "Angela Merkel visited Tesla in Berlin.",
				Expected: []ExpectedLink{{"Angela Merkel", ""}, {"Tesla", "Q3"}, {"Berlin", ""}},
				Category: "nil",
			},
		},
	}
}
