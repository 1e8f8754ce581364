package survey

// MentalStateOption is one point on the 1..7 self-report scale shown after
// the last question.
type MentalStateOption struct {
	Value  int    `json:"value"`
	Emoji  string `json:"emoji"`
	TextEn string `json:"text_en"`
	TextHi string `json:"text_hi"`
	Color  string `json:"color"`
}

// MentalStateOptions is the fixed scale, lowest to highest.
var MentalStateOptions = []MentalStateOption{
	{Value: 1, Emoji: "😰", TextEn: "Very Low", TextHi: "बहुत उदास", Color: "#dc2626"},
	{Value: 2, Emoji: "😟", TextEn: "Low", TextHi: "उदास", Color: "#ea580c"},
	{Value: 3, Emoji: "😐", TextEn: "Neutral", TextHi: "सामान्य", Color: "#d97706"},
	{Value: 4, Emoji: "🙂", TextEn: "Slightly Positive", TextHi: "थोड़े खुश", Color: "#65a30d"},
	{Value: 5, Emoji: "😊", TextEn: "Positive", TextHi: "खुश", Color: "#16a34a"},
	{Value: 6, Emoji: "😁", TextEn: "Very Positive", TextHi: "बहुत खुश", Color: "#059669"},
	{Value: 7, Emoji: "🤩", TextEn: "Excellent", TextHi: "शानदार", Color: "#0d9488"},
}

// MentalStateOptionFor returns the option for a rating, or nil if the rating
// is off the scale.
func MentalStateOptionFor(rating int) *MentalStateOption {
	for i := range MentalStateOptions {
		if MentalStateOptions[i].Value == rating {
			return &MentalStateOptions[i]
		}
	}
	return nil
}
