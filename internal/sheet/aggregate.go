package sheet

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/gradesheet-api/internal/models"
)

var (
	minGrade = decimal.NewFromInt(1)
	maxGrade = decimal.NewFromInt(5)
	hundred  = decimal.NewFromInt(100)
	three    = decimal.NewFromInt(3)

	gradePattern = regexp.MustCompile(`^-?(\d+(\.\d*)?|\.\d+)$`)
)

// Score is an aggregate that is either a rounded number or not applicable.
type Score struct {
	Value decimal.Decimal
	Valid bool
}

// NormalizeGradeText trims the text and turns the first comma into a decimal point.
func NormalizeGradeText(raw string) string {
	return strings.Replace(strings.TrimSpace(raw), ",", ".", 1)
}

// ParseGrade interprets raw text as a signed decimal. It does not check the grading range.
func ParseGrade(raw string) (decimal.Decimal, bool) {
	text := NormalizeGradeText(raw)
	if !gradePattern.MatchString(text) {
		return decimal.Zero, false
	}
	sign := ""
	if strings.HasPrefix(text, "-") {
		sign, text = "-", text[1:]
	}
	if strings.HasPrefix(text, ".") {
		text = "0" + text
	}
	text = strings.TrimSuffix(text, ".")
	d, err := decimal.NewFromString(sign + text)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// ValidGrade reports whether raw parses to a grade inside [1.0, 5.0].
func ValidGrade(raw string) (decimal.Decimal, bool) {
	d, ok := ParseGrade(raw)
	if !ok || d.LessThan(minGrade) || d.GreaterThan(maxGrade) {
		return decimal.Zero, false
	}
	return d, true
}

// Round1 rounds half away from zero to one decimal place.
func Round1(d decimal.Decimal) decimal.Decimal {
	return d.Round(1)
}

// Average is the rounded mean of the valid grades of a bucket. Blank, non-numeric and
// out-of-range entries count neither toward the sum nor the count.
func Average(entries []models.GradeEntry, policy models.EmptyAveragePolicy) Score {
	sum := decimal.Zero
	count := 0
	for _, entry := range entries {
		d, ok := ValidGrade(string(entry.Value))
		if !ok {
			continue
		}
		sum = sum.Add(d)
		count++
	}
	if count == 0 {
		if policy == models.EmptyAverageNotApplicable {
			return Score{}
		}
		return Score{Value: decimal.Zero, Valid: true}
	}
	return Score{Value: Round1(sum.Div(decimal.NewFromInt(int64(count)))), Valid: true}
}

// FinalScore weighs the already rounded averages and rounds the result.
// With equal weighting the three averages count one third each.
func FinalScore(averages map[models.Competency]Score, weights models.Weights, equal bool) Score {
	total := decimal.Zero
	for _, c := range models.Competencies {
		avg, ok := averages[c]
		if !ok || !avg.Valid {
			return Score{}
		}
		if equal {
			total = total.Add(avg.Value)
			continue
		}
		weight := decimal.NewFromFloat(weights.Of(c)).Div(hundred)
		total = total.Add(avg.Value.Mul(weight))
	}
	if equal {
		total = total.Div(three)
	}
	return Score{Value: Round1(total), Valid: true}
}

// WeightsSumTo100 checks the editable-weights invariant.
func WeightsSumTo100(w models.Weights) bool {
	sum := decimal.NewFromFloat(w.Ser).Add(decimal.NewFromFloat(w.Saber)).Add(decimal.NewFromFloat(w.Hacer))
	return sum.Equal(hundred)
}

// Classification is the performance band selected for a final score.
type Classification struct {
	Label string
	Class string
}

var fallbackTiers = []struct {
	below decimal.Decimal
	Classification
}{
	{decimal.RequireFromString("3.0"), Classification{Label: "BAJO", Class: "nota-roja"}},
	{decimal.RequireFromString("4.0"), Classification{Label: "BASICO", Class: "nota-amarilla"}},
	{decimal.RequireFromString("4.6"), Classification{Label: "ALTO", Class: "nota-verde"}},
}

var fallbackTop = Classification{Label: "SUPERIOR", Class: "nota-azul"}

// Classify picks the first band containing score; without a matching band the fixed
// four-tier rule applies.
func Classify(score Score, scale []models.PerformanceBand) Classification {
	if !score.Valid {
		return Classification{Class: "nota-na"}
	}
	for _, band := range scale {
		lo := decimal.NewFromFloat(band.Min)
		hi := decimal.NewFromFloat(band.Max)
		if score.Value.GreaterThanOrEqual(lo) && score.Value.LessThanOrEqual(hi) {
			return Classification{Label: band.Label, Class: bandClass(band.Label)}
		}
	}
	for _, tier := range fallbackTiers {
		if score.Value.LessThan(tier.below) {
			return tier.Classification
		}
	}
	return fallbackTop
}

var accentFolder = strings.NewReplacer("á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u", "ñ", "n", "ü", "u")

func bandClass(label string) string {
	var b strings.Builder
	b.WriteString("desempeno-")
	lastDash := true
	for _, r := range accentFolder.Replace(strings.ToLower(strings.TrimSpace(label))) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// FormatScore renders a score with one decimal, or the N/A marker.
func FormatScore(score Score, decimalComma bool) string {
	if !score.Valid {
		return models.NotApplicable
	}
	text := score.Value.StringFixed(1)
	if decimalComma {
		text = strings.Replace(text, ".", ",", 1)
	}
	return text
}
