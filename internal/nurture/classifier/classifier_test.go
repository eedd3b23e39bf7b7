package classifier

import "testing"

func TestKeywordClassify(t *testing.T) {
	cases := []struct {
		text string
		want Verdict
	}{
		{"Yes, I'd like to come in", VerdictPositive},
		{"When can you see me?", VerdictPositive},
		{"Please call me tomorrow morning", VerdictPositive},
		{"I want to schedule an appointment", VerdictPositive},
		{"Sounds good, sign me up", VerdictPositive},
		{"Not interested, thanks", VerdictNegative},
		{"please stop contacting me", VerdictNegative},
		{"We went with another practice", VerdictNegative},
		{"unsubscribe", VerdictNegative},
		{"Who is this?", VerdictNeutral},
		{"", VerdictNeutral},
		{"My eyes hurt", VerdictNeutral}, // "yes" must not fire inside "eyes"
	}

	k := NewKeyword()
	for _, tc := range cases {
		if got := k.Classify(tc.text); got != tc.want {
			t.Errorf("Classify(%q): expected %s, got %s", tc.text, tc.want, got)
		}
	}
}

func TestNegativeWinsOverPositive(t *testing.T) {
	k := NewKeyword()
	// Contains "book" but the negative phrase must dominate.
	if got := k.Classify("Please don't book me, not interested"); got != VerdictNegative {
		t.Errorf("expected negative verdict for mixed reply, got %s", got)
	}
}
